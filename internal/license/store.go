package license

import (
	"context"
	"time"

	"github.com/licensehub/pkg/models"
)

// Store is the persistence the license service needs. Lookups report
// ErrLicenseNotFound / ErrPlanNotFound / ErrDeviceNotFound when the row is
// absent; CreateLicense reports ErrSerialTaken on a serial collision.
type Store interface {
	// WithinTx runs fn against a Store bound to one transaction. Nested calls
	// reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error

	GetLicense(ctx context.Context, id int64) (*models.License, error)
	// LockLicense reads the license with a row lock held until the
	// surrounding transaction ends.
	LockLicense(ctx context.Context, id int64) (*models.License, error)
	LockLicenseBySerial(ctx context.Context, serial string) (*models.License, error)
	GetLicenseBySerial(ctx context.Context, serial string) (*models.License, error)
	ListLicenses(ctx context.Context, f ListFilter) ([]models.License, int, error)
	CreateLicense(ctx context.Context, l *models.License) error
	UpdateLicense(ctx context.Context, l *models.License) error
	DeleteLicense(ctx context.Context, id int64) error
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)

	GetPlan(ctx context.Context, id int64) (*models.Plan, error)

	// FindDevice returns nil without error when no device is bound
	FindDevice(ctx context.Context, licenseID int64, hardwareID string) (*models.Device, error)
	GetDevice(ctx context.Context, licenseID, deviceID int64) (*models.Device, error)
	CountActiveDevices(ctx context.Context, licenseID int64) (int, error)
	ListDevices(ctx context.Context, licenseID int64) ([]models.Device, error)
	CreateDevice(ctx context.Context, d *models.Device) error
	UpdateDevice(ctx context.Context, d *models.Device) error

	CreateTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error)

	InsertAudit(ctx context.Context, e models.AuditLog) error
}

// ListFilter narrows ListLicenses
type ListFilter struct {
	Status   models.LicenseStatus
	Search   string
	ClinicID *int64
	Limit    int
	Offset   int
}

// TransactionFilter narrows ListTransactions
type TransactionFilter struct {
	LicenseID *int64
	Limit     int
	Offset    int
}
