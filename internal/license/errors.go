package license

import "github.com/licensehub/internal/apperr"

var (
	ErrLicenseNotFound     = apperr.NotFound("License not found")
	ErrLicenseRevoked      = apperr.StateConflict("License is revoked")
	ErrLicenseExpired      = apperr.StateConflict("License is expired")
	ErrLicensePaused       = apperr.StateConflict("License is paused")
	ErrDeviceLimitExceeded = apperr.ResourceExhausted("Device limit exceeded")
	ErrDeviceNotFound      = apperr.NotFound("Device not found")
	ErrPlanNotFound        = apperr.NotFound("Plan not found")
	ErrPlanInactive        = apperr.StateConflict("Plan is not active")
	ErrSerialTaken         = apperr.Duplicate("Serial already exists")
	ErrClinicHasLicense    = apperr.Duplicate("Clinic already has a license")
	ErrInvalidSerial       = apperr.Validation("Invalid serial format")
	ErrInvalidMonths       = apperr.Validation("months must be at least 1")
	ErrInvalidDeviceLimit  = apperr.Validation("deviceLimit must not be negative")
	ErrHardwareIDRequired  = apperr.Validation("hardwareId is required")
)

// NetworkError wraps transport failures of the activation client so callers
// can tell them apart from server rejections.
type NetworkError struct{ Err error }

func (e NetworkError) Error() string { return "network: " + e.Err.Error() }
func (e NetworkError) Unwrap() error { return e.Err }
