// Package clinic runs the tenant workflow: self-registration, approval with
// license issuance, suspension, force logout, and the per-clinic controls
// (quotas, feature flags, lock).
package clinic

import (
	"context"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

var (
	ErrClinicNotFound    = apperr.NotFound("Clinic not found")
	ErrEmailTaken        = apperr.Duplicate("Email already registered")
	ErrHWIDTaken         = apperr.Duplicate("Hardware ID already registered")
	ErrAlreadyApproved   = apperr.StateConflict("Clinic is already approved")
	ErrSuspended         = apperr.StateConflict("Clinic is suspended; reactivate it instead")
	ErrNotPending        = apperr.StateConflict("Only pending clinics can be rejected")
	ErrNotSuspendable    = apperr.StateConflict("Only approved or suspended clinics can be suspended or reactivated")
	ErrNoActivePlan      = apperr.StateConflict("No active plan available")
	ErrLockReason        = apperr.Validation("lockReason is required when locking")
	ErrNegativeLimit     = apperr.Validation("limits must not be negative")
	ErrUnknownFeature    = apperr.Validation("Unknown feature")
	ErrFeatureDisabled   = apperr.Forbidden("Feature is disabled for this clinic")
	ErrStorageExhausted  = apperr.ResourceExhausted("Storage limit exceeded")
	ErrUsersExhausted    = apperr.ResourceExhausted("User limit exceeded")
	ErrPatientsExhausted = apperr.ResourceExhausted("Patient limit exceeded")
)

// Store is the persistence the clinic services need. Lookups report
// ErrClinicNotFound, license.ErrLicenseNotFound or license.ErrPlanNotFound
// for absent rows.
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	CreateClinic(ctx context.Context, c *models.Clinic) error
	GetClinic(ctx context.Context, id int64) (*models.Clinic, error)
	LockClinic(ctx context.Context, id int64) (*models.Clinic, error)
	ListClinics(ctx context.Context, f ListFilter) ([]models.Clinic, int, error)
	SetClinicStatus(ctx context.Context, id int64, status models.ClinicStatus) error
	DeleteClinic(ctx context.Context, id int64) error

	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	OldestActivePlan(ctx context.Context) (*models.Plan, error)

	CreateLicense(ctx context.Context, l *models.License) error
	GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error)
	LockLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error)
	UpdateLicense(ctx context.Context, l *models.License) error
	DeleteLicense(ctx context.Context, id int64) error
	CreateTransaction(ctx context.Context, t *models.Transaction) error

	DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error)

	// GetControl returns nil without error when no row exists yet
	GetControl(ctx context.Context, clinicID int64, forUpdate bool) (*models.ClinicControl, error)
	// InsertDefaultControl creates c unless a row already exists, then
	// returns whatever row is stored.
	InsertDefaultControl(ctx context.Context, c *models.ClinicControl) (*models.ClinicControl, error)
	UpdateControl(ctx context.Context, c *models.ClinicControl) error

	InsertAudit(ctx context.Context, e models.AuditLog) error
}

// ListFilter narrows ListClinics
type ListFilter struct {
	Status models.ClinicStatus
	Search string
	Limit  int
	Offset int
}
