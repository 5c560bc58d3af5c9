// Package catalog manages the reference data the back office sells and
// publishes: plans, currencies, client app versions and notifications.
package catalog

import (
	"context"
	"time"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

var (
	ErrPlanInUse            = apperr.Duplicate("Plan is referenced by issued licenses")
	ErrCurrencyNotFound     = apperr.NotFound("Currency not found")
	ErrCurrencyExists       = apperr.Duplicate("Currency code already exists")
	ErrUnknownCurrency      = apperr.Validation("currency must reference an existing currency code")
	ErrInvalidCurrencyCode  = apperr.Validation("code must be 3 upper-case letters")
	ErrInvalidExchangeRate  = apperr.Validation("exchangeRate must be greater than 0")
	ErrVersionNotFound      = apperr.NotFound("Version not found")
	ErrVersionExists        = apperr.Duplicate("Version already exists for this product")
	ErrInvalidVersion       = apperr.Validation("version must be a valid semantic version")
	ErrUnknownProduct       = apperr.Validation("product must be pos or clinic")
	ErrNotificationNotFound = apperr.NotFound("Notification not found")
	ErrInvalidLevel         = apperr.Validation("level must be info, warning or critical")
)

// Store is the persistence behind Service. Plan lookups report
// license.ErrPlanNotFound for absent rows.
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, p *models.Plan) error
	DeletePlan(ctx context.Context, id int64) error

	ListCurrencies(ctx context.Context) ([]models.Currency, error)
	GetCurrency(ctx context.Context, id int64) (*models.Currency, error)
	CurrencyByCode(ctx context.Context, code string) (*models.Currency, error)
	CreateCurrency(ctx context.Context, c *models.Currency) error
	UpdateCurrency(ctx context.Context, c *models.Currency) error
	DeleteCurrency(ctx context.Context, id int64) error

	ListVersions(ctx context.Context, product string) ([]models.AppVersion, error)
	GetVersion(ctx context.Context, id int64) (*models.AppVersion, error)
	CreateVersion(ctx context.Context, v *models.AppVersion) error
	UpdateVersion(ctx context.Context, v *models.AppVersion) error
	DeleteVersion(ctx context.Context, id int64) error

	ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	DeleteNotification(ctx context.Context, id int64) (*models.Notification, error)

	InsertAudit(ctx context.Context, e models.AuditLog) error
}

// NotificationFilter narrows ListNotifications. With ClinicID set only
// broadcasts and that clinic's notifications match. ActiveAt drops entries
// expired at that instant.
type NotificationFilter struct {
	ClinicID *int64
	ActiveAt *time.Time
	Limit    int
	Offset   int
}

// Service validates and audits catalog changes
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}
