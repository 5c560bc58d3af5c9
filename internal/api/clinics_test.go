package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/internal/subscription"
	"github.com/licensehub/pkg/models"
)

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// registerClinic self-registers a clinic through the public endpoint
func (h *harness) registerClinic(t *testing.T, name, email, hwid string) models.Clinic {
	t.Helper()
	w := h.do(http.MethodPost, "/api/clinics/register", "",
		fmt.Sprintf(`{"name":%q,"doctorName":"Dr. Roe","email":%q,"hwid":%q}`, name, email, hwid))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Clinic](t, w)
}

func (h *harness) activate(serial, hwid string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, "/license/activate", "",
		fmt.Sprintf(`{"serial":%q,"hardwareId":%q,"deviceName":"desk-%s","appVersion":"2.4.0"}`, serial, hwid, hwid))
}

func TestClinicApprovalAndActivationFlow(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	plan := h.office.addPlan(models.Plan{
		Name: "Standard", PriceUSD: 240, Currency: "USD", DurationMonths: 12, DeviceLimit: 2, IsActive: true,
	})

	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")
	assert.Equal(t, models.ClinicPending, acme.Status)

	w := h.do(http.MethodPost, "/api/clinics/register", "", `{"name":"Acme Copy","email":"front@acme.test","hwid":"ACME-HW-2"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"message":"Email already registered"}`, w.Body.String())

	approvePath := fmt.Sprintf("/api/clinics/%d/approve", acme.ID)
	w = h.do(http.MethodPost, approvePath, admin, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[models.Clinic](t, w)
	assert.Equal(t, models.ClinicApproved, approved.Status)
	require.NotNil(t, approved.License)
	lic := approved.License
	assert.True(t, strings.HasPrefix(lic.Serial, "SP-"), lic.Serial)
	assert.Equal(t, plan.ID, lic.PlanID)
	assert.Equal(t, 2, lic.DeviceLimit)
	require.NotNil(t, lic.ExpireDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 12, 0), *lic.ExpireDate, time.Minute)

	w = h.do(http.MethodPost, approvePath, admin, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Clinic is already approved"}`, w.Body.String())

	// two seats, then the third device is turned away; a known device comes back in
	codes := []int{}
	for _, hw := range []string{"A", "B", "C", "A"} {
		codes = append(codes, h.activate(lic.Serial, hw).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusForbidden, http.StatusOK}, codes)
	assert.Equal(t, 2, h.office.activeDevices(lic.ID))

	w = h.activate(lic.Serial, "C")
	assert.JSONEq(t, `{"message":"Device limit exceeded"}`, w.Body.String())

	w = h.activate(lic.Serial, "A")
	res := decode[map[string]any](t, w)
	assert.Equal(t, true, res["success"])
	assert.NotEmpty(t, res["activationDate"])

	w = h.do(http.MethodGet, "/license/validate?serial="+lic.Serial, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = h.do(http.MethodGet, fmt.Sprintf("/api/licenses/%d/devices", lic.ID), admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Device](t, w), 2)

	w = h.activate("SP-2026-ZZZZ-ZZZZ-ZZZZ", "A")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"License not found"}`, w.Body.String())

	w = h.do(http.MethodPost, fmt.Sprintf("/api/licenses/%d/revoke", lic.ID), admin, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.activate(lic.Serial, "A")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"License is revoked"}`, w.Body.String())
}

func TestApproveWithChunkedPlanChoice(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	h.office.addPlan(models.Plan{Name: "Trial", DurationMonths: 1, DeviceLimit: 1, IsActive: true})
	premium := h.office.addPlan(models.Plan{Name: "Premium", PriceUSD: 900, DurationMonths: 24, DeviceLimit: 5, IsActive: true})
	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/clinics/%d/approve", acme.ID),
		strings.NewReader(fmt.Sprintf(`{"planId":%d}`, premium.ID)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)
	req.ContentLength = -1
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[models.Clinic](t, w)
	require.NotNil(t, approved.License)
	assert.Equal(t, premium.ID, approved.License.PlanID)
	assert.Equal(t, 5, approved.License.DeviceLimit)
}

func TestApproveWithoutPlanUsesOldestActive(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	h.office.addPlan(models.Plan{Name: "Retired", PriceUSD: 50, DurationMonths: 12, DeviceLimit: 1})
	trial := h.office.addPlan(models.Plan{Name: "Trial", DurationMonths: 1, DeviceLimit: 1, IsActive: true})
	h.office.addPlan(models.Plan{Name: "Premium", PriceUSD: 900, DurationMonths: 24, DeviceLimit: 5, IsActive: true})
	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")

	w := h.do(http.MethodPost, fmt.Sprintf("/api/clinics/%d/approve", acme.ID), admin, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[models.Clinic](t, w)
	require.NotNil(t, approved.License)
	assert.Equal(t, trial.ID, approved.License.PlanID)
	assert.True(t, strings.HasPrefix(approved.License.Serial, "TR-"), approved.License.Serial)
}

func TestSubscriptionStatusRoutes(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	h.office.addPlan(models.Plan{Name: "Standard", PriceUSD: 240, DurationMonths: 12, DeviceLimit: 2, IsActive: true})

	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")
	other := h.registerClinic(t, "Other Smiles", "hello@other.test", "OTHER-HW-1")

	w := h.do(http.MethodGet, fmt.Sprintf("/subscription/status?clinicId=%d", other.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(
		`{"id":%d,"name":"Other Smiles","status":"PENDING","license":null,"remainingDays":null,"forceLogout":true}`,
		other.ID), w.Body.String())

	w = h.do(http.MethodPost, fmt.Sprintf("/api/clinics/%d/approve", acme.ID), admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	serial := decode[models.Clinic](t, w).License.Serial
	require.Equal(t, http.StatusOK, h.activate(serial, "A").Code)

	// a clinic user's own clinic wins over the query parameter
	_, clinicToken := h.login(t, models.RoleClinic, &acme.ID)
	w = h.do(http.MethodGet, fmt.Sprintf("/subscription/status?clinicId=%d", other.ID), clinicToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[subscription.Status](t, w)
	assert.Equal(t, acme.ID, st.ID)
	assert.Equal(t, models.ClinicApproved, st.Status)
	assert.False(t, st.ForceLogout)
	require.NotNil(t, st.License)
	assert.Equal(t, serial, st.License.Serial)
	assert.Equal(t, models.LicenseActive, st.License.Status)
	assert.Equal(t, 1, st.License.ActivationCount)
	require.NotNil(t, st.License.Plan)
	assert.Equal(t, 12, st.License.Plan.DurationMonths)
	require.NotNil(t, st.RemainingDays)
	assert.InDelta(t, 365, *st.RemainingDays, 2)

	w = h.do(http.MethodGet, "/api/auth/me", clinicToken, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscriptionForceLogoutEndsClinicSessions(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	h.office.addPlan(models.Plan{Name: "Standard", PriceUSD: 240, DurationMonths: 12, DeviceLimit: 2, IsActive: true})
	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")

	w := h.do(http.MethodPost, fmt.Sprintf("/api/clinics/%d/approve", acme.ID), admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	_, clinicToken := h.login(t, models.RoleClinic, &acme.ID)

	// the issued license is still pending, so the clinic is not allowed in yet
	w = h.do(http.MethodGet, "/subscription/status", clinicToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[subscription.Status](t, w)
	assert.True(t, st.ForceLogout)
	require.NotNil(t, st.License)
	assert.Equal(t, models.LicensePending, st.License.Status)

	w = h.do(http.MethodGet, "/api/auth/me", clinicToken, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/auth/me", admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscriptionStatusUnknownClinic(t *testing.T) {
	h := newHarness(t, 0)
	w := h.do(http.MethodGet, "/subscription/status?clinicId=404", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Clinic not found"}`, w.Body.String())
}

func TestClinicControlsRoutes(t *testing.T) {
	h := newHarness(t, 0)
	_, admin := h.login(t, models.RoleAdmin, nil)
	_, staff := h.login(t, models.RoleStaff, nil)
	acme := h.registerClinic(t, "Acme Dental", "front@acme.test", "ACME-HW-1")
	path := fmt.Sprintf("/api/clinics/%d/controls", acme.ID)

	w := h.do(http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, `"storageLimitMB":1024`)
	assert.Contains(t, body, `"usersLimit":3`)
	assert.Contains(t, body, `"patientsLimit":null`)
	assert.Contains(t, body, `"features":{"patients":true,"appointments":true,"orthodontics":false,"xray":false,"ai":false}`)
	assert.Contains(t, body, `"locked":false`)
	assert.Contains(t, body, `"lockReason":null`)

	w = h.do(http.MethodGet, "/api/clinics/404/controls", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPut, path, "", `{"usersLimit":5}`).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPut, path, staff, `{"usersLimit":5}`).Code)

	w = h.do(http.MethodPut, path, admin, `{"locked":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"lockReason is required when locking"}`, w.Body.String())

	// partial update: omitted fields keep their values and the full resource comes back
	w = h.do(http.MethodPut, path, admin, `{"features":{"xray":true},"patientsLimit":250}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ctl := decode[models.ClinicControl](t, w)
	assert.Equal(t, 1024, ctl.StorageLimitMB)
	assert.Equal(t, 3, ctl.UsersLimit)
	require.NotNil(t, ctl.PatientsLimit)
	assert.Equal(t, 250, *ctl.PatientsLimit)
	assert.Equal(t, models.ClinicFeatures{Patients: true, Appointments: true, Xray: true}, ctl.Features)

	w = h.do(http.MethodGet, path, "", "")
	assert.Equal(t, ctl.Features, decode[models.ClinicControl](t, w).Features)

	checkPath := path + "/check"
	checks := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"within quota", `{"users":3,"patients":250,"feature":"xray"}`, http.StatusOK, ""},
		{"too many users", `{"users":4}`, http.StatusForbidden, "User limit exceeded"},
		{"too many patients", `{"patients":251}`, http.StatusForbidden, "Patient limit exceeded"},
		{"disabled feature", `{"feature":"ai"}`, http.StatusForbidden, "Feature is disabled for this clinic"},
		{"unknown feature", `{"feature":"teleport"}`, http.StatusBadRequest, "Unknown feature"},
	}
	for _, tc := range checks {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(http.MethodPost, checkPath, "", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.msg != "" {
				assert.JSONEq(t, fmt.Sprintf(`{"message":%q}`, tc.msg), w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"allowed":true`)
			}
		})
	}

	w = h.do(http.MethodPut, path, admin, `{"locked":true,"lockReason":"  Unpaid invoice "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ctl = decode[models.ClinicControl](t, w)
	assert.True(t, ctl.Locked)
	require.NotNil(t, ctl.LockReason)
	assert.Equal(t, "Unpaid invoice", *ctl.LockReason)

	w = h.do(http.MethodPost, checkPath, "", `{"users":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"Clinic is locked: Unpaid invoice"}`, w.Body.String())

	w = h.do(http.MethodPut, path, admin, `{"locked":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lockReason":null`)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, checkPath, "", `{"users":1}`).Code)
}
