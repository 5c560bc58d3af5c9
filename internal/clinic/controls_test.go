package clinic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func newControls(t *testing.T) (*Controls, *memStore, int64) {
	t.Helper()
	svc, store := newTestService()
	c := register(t, svc, "Acme", "a@acme.test", "HW-1")
	return NewControls(store), store, c.ID
}

func TestControlsDefaultsCreatedOnFirstRead(t *testing.T) {
	ctl, store, id := newControls(t)

	got, err := ctl.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1024, got.StorageLimitMB)
	assert.Equal(t, 3, got.UsersLimit)
	assert.Nil(t, got.PatientsLimit)
	assert.Equal(t, models.ClinicFeatures{Patients: true, Appointments: true}, got.Features)
	assert.False(t, got.Locked)
	assert.Nil(t, got.LockReason)
	assert.Len(t, store.controls, 1)

	_, err = ctl.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrClinicNotFound)
	assert.Len(t, store.controls, 1)
}

func TestControlsUpdateMergesFeatures(t *testing.T) {
	ctl, store, id := newControls(t)

	var patch ControlsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"usersLimit": 5, "features": {"xray": true}}`), &patch))
	got, err := ctl.Update(context.Background(), testAdmin, id, patch)
	require.NoError(t, err)

	assert.Equal(t, 5, got.UsersLimit)
	assert.Equal(t, 1024, got.StorageLimitMB)
	assert.Equal(t, models.ClinicFeatures{Patients: true, Appointments: true, Xray: true}, got.Features)

	last := store.audits[len(store.audits)-1]
	assert.Equal(t, audit.ActionControlsUpdated, last.Action)
	assert.Equal(t, "clinic=1 usersLimit: 3 → 5; features.xray: false → true", last.Details)
	assert.Equal(t, testAdmin.UserID, last.UserID)
}

func TestControlsPatientsLimitNullVersusOmitted(t *testing.T) {
	ctl, _, id := newControls(t)
	ctx := context.Background()

	var set ControlsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"patientsLimit": 250}`), &set))
	got, err := ctl.Update(ctx, testAdmin, id, set)
	require.NoError(t, err)
	require.NotNil(t, got.PatientsLimit)
	assert.Equal(t, 250, *got.PatientsLimit)

	var omitted ControlsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"storageLimitMB": 2048}`), &omitted))
	got, err = ctl.Update(ctx, testAdmin, id, omitted)
	require.NoError(t, err)
	require.NotNil(t, got.PatientsLimit)
	assert.Equal(t, 250, *got.PatientsLimit)

	var cleared ControlsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"patientsLimit": null}`), &cleared))
	got, err = ctl.Update(ctx, testAdmin, id, cleared)
	require.NoError(t, err)
	assert.Nil(t, got.PatientsLimit)
}

func TestControlsLockRequiresReason(t *testing.T) {
	ctl, store, id := newControls(t)
	ctx := context.Background()

	_, err := ctl.Update(ctx, testAdmin, id, ControlsPatch{Locked: ptr(true)})
	assert.ErrorIs(t, err, ErrLockReason)
	_, err = ctl.Update(ctx, testAdmin, id, ControlsPatch{Locked: ptr(true), LockReason: ptr("   ")})
	assert.ErrorIs(t, err, ErrLockReason)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	before := len(store.audits)
	got, err := ctl.Update(ctx, testAdmin, id, ControlsPatch{Locked: ptr(true), LockReason: ptr(" unpaid invoice ")})
	require.NoError(t, err)
	assert.True(t, got.Locked)
	require.NotNil(t, got.LockReason)
	assert.Equal(t, "unpaid invoice", *got.LockReason)
	assert.Len(t, store.audits, before+1)

	read, err := ctl.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, read.Locked)
	assert.Equal(t, "unpaid invoice", *read.LockReason)

	got, err = ctl.Update(ctx, testAdmin, id, ControlsPatch{Locked: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Nil(t, got.LockReason)
	assert.Equal(t, `clinic=1 locked: true → false; lockReason: "unpaid invoice" → none`, store.audits[len(store.audits)-1].Details)
}

func TestControlsRejectsNegativeLimits(t *testing.T) {
	ctl, store, id := newControls(t)
	before := len(store.audits)

	_, err := ctl.Update(context.Background(), testAdmin, id, ControlsPatch{UsersLimit: ptr(-1)})
	assert.ErrorIs(t, err, ErrNegativeLimit)
	_, err = ctl.Update(context.Background(), testAdmin, id, ControlsPatch{PatientsLimit: OptionalInt{Set: true, Value: ptr(-5)}})
	assert.ErrorIs(t, err, ErrNegativeLimit)
	assert.Len(t, store.audits, before)
}

func TestControlsNoChangesStillAudited(t *testing.T) {
	ctl, store, id := newControls(t)

	_, err := ctl.Update(context.Background(), testAdmin, id, ControlsPatch{UsersLimit: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, "clinic=1 no changes", store.audits[len(store.audits)-1].Details)
}

func TestEnforce(t *testing.T) {
	ctl, _, id := newControls(t)
	ctx := context.Background()

	_, err := ctl.Enforce(ctx, id, Usage{StorageMB: 1024, Users: 3, Patients: 10000}, "patients")
	require.NoError(t, err)

	_, err = ctl.Enforce(ctx, id, Usage{StorageMB: 1025}, "")
	assert.ErrorIs(t, err, ErrStorageExhausted)
	_, err = ctl.Enforce(ctx, id, Usage{Users: 4}, "")
	assert.ErrorIs(t, err, ErrUsersExhausted)
	assert.Equal(t, apperr.KindResourceExhausted, apperr.KindOf(err))

	_, err = ctl.Enforce(ctx, id, Usage{}, "xray")
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = ctl.Enforce(ctx, id, Usage{}, "teleport")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	_, err = ctl.Update(ctx, testAdmin, id, ControlsPatch{PatientsLimit: OptionalInt{Set: true, Value: ptr(100)}})
	require.NoError(t, err)
	_, err = ctl.Enforce(ctx, id, Usage{Patients: 101}, "")
	assert.ErrorIs(t, err, ErrPatientsExhausted)

	_, err = ctl.Update(ctx, testAdmin, id, ControlsPatch{Locked: ptr(true), LockReason: ptr("audit")})
	require.NoError(t, err)
	_, err = ctl.Enforce(ctx, id, Usage{}, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "Clinic is locked: audit", apperr.MessageOf(err))
}
