package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// Storage is the Postgres Store
type Storage struct {
	db *sql.DB
	q  database.Querier
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db, q: db} }

func (s *Storage) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Storage{db: s.db, q: tx})
	})
}

func (s *Storage) InsertAudit(ctx context.Context, e models.AuditLog) error {
	return audit.Insert(ctx, s.q, e)
}

// plans

func (s *Storage) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := `SELECT ` + license.PlanColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	out := []models.Plan{}
	for rows.Next() {
		p, err := license.ScanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Storage) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	return license.NewStorageOn(s.db, s.q).GetPlan(ctx, id)
}

func (s *Storage) CreatePlan(ctx context.Context, p *models.Plan) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO plans
		(name, price_usd, price_monthly, price_yearly, currency, duration_months, device_limit, features, limits, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`,
		p.Name, p.PriceUSD, p.PriceMonthly, p.PriceYearly, p.Currency, p.DurationMonths, p.DeviceLimit,
		p.Features, p.Limits, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *Storage) UpdatePlan(ctx context.Context, p *models.Plan) error {
	err := s.q.QueryRowContext(ctx, `UPDATE plans SET
		name = $2, price_usd = $3, price_monthly = $4, price_yearly = $5, currency = $6,
		duration_months = $7, device_limit = $8, features = $9, limits = $10, is_active = $11,
		updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		p.ID, p.Name, p.PriceUSD, p.PriceMonthly, p.PriceYearly, p.Currency,
		p.DurationMonths, p.DeviceLimit, p.Features, p.Limits, p.IsActive,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return license.ErrPlanNotFound
	}
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

func (s *Storage) DeletePlan(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if database.IsForeignKeyViolation(err) {
		return apperr.Wrap(ErrPlanInUse, err)
	}
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return license.ErrPlanNotFound
	}
	return nil
}

// currencies

const currencyColumns = `id, code, name, symbol, exchange_rate, is_active, created_at, updated_at`

func scanCurrency(row interface{ Scan(...any) error }) (*models.Currency, error) {
	var c models.Currency
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &c.ExchangeRate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+currencyColumns+` FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	out := []models.Currency{}
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Storage) currency(ctx context.Context, where string, arg any) (*models.Currency, error) {
	c, err := scanCurrency(s.q.QueryRowContext(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query currency: %w", err)
	}
	return c, nil
}

func (s *Storage) GetCurrency(ctx context.Context, id int64) (*models.Currency, error) {
	return s.currency(ctx, `id = $1`, id)
}

func (s *Storage) CurrencyByCode(ctx context.Context, code string) (*models.Currency, error) {
	return s.currency(ctx, `code = $1`, code)
}

func (s *Storage) CreateCurrency(ctx context.Context, c *models.Currency) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO currencies (code, name, symbol, exchange_rate, is_active)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		c.Code, c.Name, c.Symbol, c.ExchangeRate, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if database.IsUniqueViolation(err, "currencies_code_key") {
		return apperr.Wrap(ErrCurrencyExists, err)
	}
	if err != nil {
		return fmt.Errorf("insert currency: %w", err)
	}
	return nil
}

func (s *Storage) UpdateCurrency(ctx context.Context, c *models.Currency) error {
	err := s.q.QueryRowContext(ctx, `UPDATE currencies SET
		name = $2, symbol = $3, exchange_rate = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		c.ID, c.Name, c.Symbol, c.ExchangeRate, c.IsActive,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCurrencyNotFound
	}
	if err != nil {
		return fmt.Errorf("update currency: %w", err)
	}
	return nil
}

func (s *Storage) DeleteCurrency(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM currencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete currency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCurrencyNotFound
	}
	return nil
}

// app versions

const versionColumns = `id, product, version, download_url, release_notes, mandatory, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*models.AppVersion, error) {
	var v models.AppVersion
	if err := row.Scan(&v.ID, &v.Product, &v.Version, &v.DownloadURL, &v.ReleaseNotes, &v.Mandatory, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Storage) ListVersions(ctx context.Context, product string) ([]models.AppVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM app_versions`
	args := []any{}
	if product != "" {
		query += ` WHERE product = $1`
		args = append(args, product)
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	out := []models.AppVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Storage) GetVersion(ctx context.Context, id int64) (*models.AppVersion, error) {
	v, err := scanVersion(s.q.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM app_versions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}
	return v, nil
}

func (s *Storage) CreateVersion(ctx context.Context, v *models.AppVersion) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO app_versions (product, version, download_url, release_notes, mandatory)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		v.Product, v.Version, v.DownloadURL, v.ReleaseNotes, v.Mandatory,
	).Scan(&v.ID, &v.CreatedAt)
	if database.IsUniqueViolation(err, "app_versions_product_version_key") {
		return apperr.Wrap(ErrVersionExists, err)
	}
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *Storage) UpdateVersion(ctx context.Context, v *models.AppVersion) error {
	res, err := s.q.ExecContext(ctx, `UPDATE app_versions SET download_url = $2, release_notes = $3, mandatory = $4
		WHERE id = $1`, v.ID, v.DownloadURL, v.ReleaseNotes, v.Mandatory)
	if err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func (s *Storage) DeleteVersion(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM app_versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// notifications

const notificationColumns = `id, title, message, level, clinic_id, created_by, expires_at, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.Title, &n.Message, &n.Level, &n.ClinicID, &n.CreatedBy, &n.ExpiresAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Storage) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE TRUE`
	args := []any{}
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		query += fmt.Sprintf(` AND (clinic_id IS NULL OR clinic_id = $%d)`, len(args))
	}
	if f.ActiveAt != nil {
		args = append(args, *f.ActiveAt)
		query += fmt.Sprintf(` AND (expires_at IS NULL OR expires_at > $%d)`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO notifications (title, message, level, clinic_id, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		n.Title, n.Message, n.Level, n.ClinicID, n.CreatedBy, n.ExpiresAt,
	).Scan(&n.ID, &n.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.NotFound("Clinic not found"), err)
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Storage) DeleteNotification(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := scanNotification(s.q.QueryRowContext(ctx,
		`DELETE FROM notifications WHERE id = $1 RETURNING `+notificationColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete notification: %w", err)
	}
	return n, nil
}
