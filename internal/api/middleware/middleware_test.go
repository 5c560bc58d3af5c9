package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/internal/apperr"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin staff clinic"`
}

func TestValidatorMessagesUseJSONNames(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		in   loginBody
		want string
	}{
		{"missing email", loginBody{Password: "longenough"}, "email is required"},
		{"bad email", loginBody{Email: "nope", Password: "longenough"}, "email must be a valid email address"},
		{"short password", loginBody{Email: "a@b.co", Password: "short"}, "password must be at least 8"},
		{"bad role", loginBody{Email: "a@b.co", Password: "longenough", Role: "root"}, "role must be one of: admin, staff, clinic"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(&tc.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tc.want, apperr.MessageOf(err))
		})
	}

	assert.NoError(t, v.Validate(&loginBody{Email: "a@b.co", Password: "longenough", Role: "staff"}))
}

func serve(t *testing.T, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) (int, string) {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/x", h, mw...)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body ErrorResponse
	if w.Code >= 400 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body.Message
}

func TestErrorHandlerEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", apperr.NotFound("License not found"), http.StatusNotFound, "License not found"},
		{"state conflict", apperr.StateConflict("License is revoked"), http.StatusBadRequest, "License is revoked"},
		{"exhausted", apperr.ResourceExhausted("Device limit exceeded"), http.StatusForbidden, "Device limit exceeded"},
		{"duplicate", apperr.Wrap(apperr.Duplicate("Email already registered"), errors.New("pq: duplicate key")), http.StatusConflict, "Email already registered"},
		{"auth", apperr.Auth("Invalid or expired token"), http.StatusUnauthorized, "Invalid or expired token"},
		{"echo error", echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests"), http.StatusTooManyRequests, "Too many requests"},
		{"internal", errors.New("pq: relation \"licenses\" does not exist"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := serve(t, func(c echo.Context) error { return tc.err })
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestRateLimitDeniesAfterBurst(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/license/validate", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(1))

	codes := []int{}
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/license/validate", nil)
		req.Header.Set(echo.HeaderXRealIP, "198.51.100.4")
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/license/validate", nil)
	req.Header.Set(echo.HeaderXRealIP, "198.51.100.5")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per client")
}

func TestRateLimitDisabled(t *testing.T) {
	for i := 0; i < 10; i++ {
		status, _ := serve(t, func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(0))
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestBindOptionalJSON(t *testing.T) {
	type approveBody struct {
		PlanID *int64 `json:"planId"`
	}
	tests := []struct {
		name    string
		body    string
		length  int64
		planID  *int64
		wantErr bool
	}{
		{name: "no body", body: "", length: 0},
		{name: "empty chunked body", body: "", length: -1},
		{name: "sized body", body: `{"planId":4}`, length: 12, planID: int64Ptr(4)},
		{name: "chunked body", body: `{"planId":9}`, length: -1, planID: int64Ptr(9)},
		{name: "malformed", body: `{"planId":`, length: -1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/clinics/1/approve", strings.NewReader(tc.body))
			req.ContentLength = tc.length
			c := echo.New().NewContext(req, httptest.NewRecorder())

			var got approveBody
			err := BindOptionalJSON(c, &got)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadBody)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.planID, got.PlanID)
		})
	}
}

func int64Ptr(v int64) *int64 { return &v }
