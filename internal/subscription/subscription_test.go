package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/internal/clinic"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/metrics"
	"github.com/licensehub/pkg/models"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	clinic   *models.Clinic
	license  *models.License
	sessions int64
	deletes  int
}

func (f *fakeStore) GetClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	if f.clinic == nil || f.clinic.ID != id {
		return nil, clinic.ErrClinicNotFound
	}
	c := *f.clinic
	return &c, nil
}

func (f *fakeStore) GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	if f.license == nil {
		return nil, license.ErrLicenseNotFound
	}
	l := *f.license
	return &l, nil
}

func (f *fakeStore) DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error) {
	f.deletes++
	n := f.sessions
	f.sessions = 0
	return n, nil
}

func at(t time.Time) *time.Time { return &t }

func newResolver(store *fakeStore) (*Resolver, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	r := NewResolver(store, metrics.New(reg))
	r.now = func() time.Time { return testNow }
	return r, reg
}

func forceLogouts(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "licensehub_force_logouts_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("force logout counter not registered")
	return 0
}

func approvedWith(l *models.License) *fakeStore {
	return &fakeStore{
		clinic:   &models.Clinic{ID: 7, Name: "Acme", Status: models.ClinicApproved},
		license:  l,
		sessions: 2,
	}
}

func TestActiveLicenseKeepsSessions(t *testing.T) {
	store := approvedWith(&models.License{
		Serial: "SP-2026-AAAA-BBBB-CCCC", Status: models.LicenseActive, DeviceLimit: 2, ActivationCount: 3,
		ExpireDate: at(testNow.Add(36 * time.Hour)),
		Plan:       &models.PlanSummary{ID: 1, Name: "Standard", DurationMonths: 12},
	})
	r, reg := newResolver(store)

	st, err := r.Status(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, st.ForceLogout)
	require.NotNil(t, st.RemainingDays)
	assert.Equal(t, 2, *st.RemainingDays)
	require.NotNil(t, st.License)
	assert.Equal(t, "Standard", st.License.Plan.Name)
	assert.Equal(t, 3, st.License.ActivationCount)
	assert.Zero(t, store.deletes)
	assert.EqualValues(t, 2, store.sessions)
	assert.Zero(t, forceLogouts(t, reg))
}

func TestInactiveStatesForceLogout(t *testing.T) {
	tests := []struct {
		name    string
		status  models.ClinicStatus
		license *models.License
		days    *int
	}{
		{name: "suspended clinic", status: models.ClinicSuspended},
		{name: "pending clinic", status: models.ClinicPending},
		{name: "approved without license", status: models.ClinicApproved},
		{
			name:    "paused license",
			status:  models.ClinicApproved,
			license: &models.License{Status: models.LicensePaused, ExpireDate: at(testNow.AddDate(0, 1, 0))},
			days:    ptr(31),
		},
		{
			name:    "expired date",
			status:  models.ClinicApproved,
			license: &models.License{Status: models.LicenseActive, ExpireDate: at(testNow.Add(-time.Hour))},
			days:    ptr(0),
		},
		{
			name:    "revoked",
			status:  models.ClinicApproved,
			license: &models.License{Status: models.LicenseRevoked},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := approvedWith(tt.license)
			store.clinic.Status = tt.status
			r, reg := newResolver(store)

			st, err := r.Status(context.Background(), 7)
			require.NoError(t, err)
			assert.True(t, st.ForceLogout)
			assert.Equal(t, tt.days, st.RemainingDays)
			if tt.status != models.ClinicApproved {
				assert.Nil(t, st.License)
			}
			assert.Equal(t, 1, store.deletes)
			assert.Zero(t, store.sessions)
			assert.Equal(t, 1.0, forceLogouts(t, reg))

			// a second poll finds nothing left to revoke
			_, err = r.Status(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, 1.0, forceLogouts(t, reg))
		})
	}
}

func TestLicenseWithoutExpiryNeverExpires(t *testing.T) {
	store := approvedWith(&models.License{Status: models.LicenseActive})
	r, _ := newResolver(store)

	st, err := r.Status(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, st.ForceLogout)
	assert.Nil(t, st.RemainingDays)
}

func TestUnknownClinic(t *testing.T) {
	r, _ := newResolver(&fakeStore{})
	_, err := r.Status(context.Background(), 1)
	assert.ErrorIs(t, err, clinic.ErrClinicNotFound)
}

func TestRemainingDays(t *testing.T) {
	assert.Equal(t, 0, RemainingDays(testNow, testNow))
	assert.Equal(t, 0, RemainingDays(testNow.Add(-48*time.Hour), testNow))
	assert.Equal(t, 1, RemainingDays(testNow.Add(time.Minute), testNow))
	assert.Equal(t, 1, RemainingDays(testNow.Add(24*time.Hour), testNow))
	assert.Equal(t, 2, RemainingDays(testNow.Add(24*time.Hour+time.Second), testNow))
}

func ptr[T any](v T) *T { return &v }
