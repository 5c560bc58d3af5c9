package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

// Storage is the Postgres Store. q is either the pool or the transaction the
// storage was bound to by WithinTx.
type Storage struct {
	db *sql.DB
	q  database.Querier
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db, q: db} }

// NewStorageOn binds a storage to q, normally a transaction owned by another
// package's storage.
func NewStorageOn(db *sql.DB, q database.Querier) *Storage { return &Storage{db: db, q: q} }

// InTx reports whether the storage is bound to a transaction
func (s *Storage) InTx() bool {
	_, ok := s.q.(*sql.Tx)
	return ok
}

func (s *Storage) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.InTx() {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(NewStorageOn(s.db, tx))
	})
}

const licenseColumns = `l.id, l.serial, l.plan_id, p.name, p.duration_months, l.clinic_id, l.customer_name,
	l.hardware_id, l.device_limit, l.status, l.expire_date, l.activation_date, l.activation_count,
	l.last_check_in, l.last_renewal_date, l.created_at, l.updated_at`

const licenseFrom = ` FROM licenses l JOIN plans p ON p.id = l.plan_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*models.License, error) {
	var l models.License
	var plan models.PlanSummary
	err := row.Scan(&l.ID, &l.Serial, &l.PlanID, &plan.Name, &plan.DurationMonths, &l.ClinicID, &l.CustomerName,
		&l.HardwareID, &l.DeviceLimit, &l.Status, &l.ExpireDate, &l.ActivationDate, &l.ActivationCount,
		&l.LastCheckIn, &l.LastRenewalDate, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	plan.ID = l.PlanID
	l.Plan = &plan
	return &l, nil
}

func (s *Storage) queryLicense(ctx context.Context, where string, args ...any) (*models.License, error) {
	l, err := scanLicense(s.q.QueryRowContext(ctx, `SELECT `+licenseColumns+licenseFrom+` WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query license: %w", err)
	}
	return l, nil
}

func (s *Storage) GetLicense(ctx context.Context, id int64) (*models.License, error) {
	return s.queryLicense(ctx, `l.id = $1`, id)
}

func (s *Storage) LockLicense(ctx context.Context, id int64) (*models.License, error) {
	return s.queryLicense(ctx, `l.id = $1 FOR UPDATE OF l`, id)
}

func (s *Storage) LockLicenseBySerial(ctx context.Context, serial string) (*models.License, error) {
	return s.queryLicense(ctx, `l.serial = $1 FOR UPDATE OF l`, serial)
}

func (s *Storage) GetLicenseBySerial(ctx context.Context, serial string) (*models.License, error) {
	return s.queryLicense(ctx, `l.serial = $1`, serial)
}

// GetLicenseByClinic returns the license linked to a clinic
func (s *Storage) GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	return s.queryLicense(ctx, `l.clinic_id = $1`, clinicID)
}

// LockLicenseByClinic is GetLicenseByClinic with a row lock
func (s *Storage) LockLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	return s.queryLicense(ctx, `l.clinic_id = $1 FOR UPDATE OF l`, clinicID)
}

// LicensesByClinics maps clinic id to its license for the given clinics
func (s *Storage) LicensesByClinics(ctx context.Context, clinicIDs []int64) (map[int64]*models.License, error) {
	out := make(map[int64]*models.License, len(clinicIDs))
	if len(clinicIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+licenseColumns+licenseFrom+` WHERE l.clinic_id = ANY($1)`, pq.Array(clinicIDs))
	if err != nil {
		return nil, fmt.Errorf("query clinic licenses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		if l.ClinicID != nil {
			out[*l.ClinicID] = l
		}
	}
	return out, rows.Err()
}

func (s *Storage) ListLicenses(ctx context.Context, f ListFilter) ([]models.License, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("l.status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(l.serial ILIKE $%d OR l.customer_name ILIKE $%d)", len(args), len(args)))
	}
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		where = append(where, fmt.Sprintf("l.clinic_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses l`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s%s%s ORDER BY l.created_at DESC, l.id DESC LIMIT $%d OFFSET $%d`,
			licenseColumns, licenseFrom, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()

	out := []models.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan license: %w", err)
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// CreateLicense inserts l. A serial collision is reported as ErrSerialTaken
// without aborting the surrounding transaction.
func (s *Storage) CreateLicense(ctx context.Context, l *models.License) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO licenses
		(serial, plan_id, clinic_id, customer_name, hardware_id, device_limit, status, expire_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT licenses_serial_key DO NOTHING
		RETURNING id, created_at, updated_at`,
		l.Serial, l.PlanID, l.ClinicID, l.CustomerName, l.HardwareID, l.DeviceLimit, l.Status, l.ExpireDate,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrSerialTaken
	case database.IsUniqueViolation(err, "licenses_clinic_id_key"):
		return apperr.Wrap(ErrClinicHasLicense, err)
	case database.IsForeignKeyViolation(err):
		return apperr.Wrap(ErrPlanNotFound, err)
	case err != nil:
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (s *Storage) UpdateLicense(ctx context.Context, l *models.License) error {
	err := s.q.QueryRowContext(ctx, `UPDATE licenses SET
		customer_name = $2, hardware_id = $3, device_limit = $4, status = $5, expire_date = $6,
		activation_date = $7, activation_count = $8, last_check_in = $9, last_renewal_date = $10,
		updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		l.ID, l.CustomerName, l.HardwareID, l.DeviceLimit, l.Status, l.ExpireDate,
		l.ActivationDate, l.ActivationCount, l.LastCheckIn, l.LastRenewalDate,
	).Scan(&l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLicenseNotFound
	}
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	return nil
}

func (s *Storage) DeleteLicense(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE licenses SET status = $1, updated_at = NOW()
		WHERE status = $2 AND expire_date IS NOT NULL AND expire_date < $3`,
		models.LicenseExpired, models.LicenseActive, now)
	if err != nil {
		return 0, fmt.Errorf("expire licenses: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PlanColumns is the select list matching ScanPlan
const PlanColumns = `id, name, price_usd, price_monthly, price_yearly, currency, duration_months,
	device_limit, features, limits, is_active, created_at, updated_at`

// ScanPlan reads one plans row selected with PlanColumns
func ScanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.ID, &p.Name, &p.PriceUSD, &p.PriceMonthly, &p.PriceYearly, &p.Currency, &p.DurationMonths,
		&p.DeviceLimit, &p.Features, &p.Limits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	p, err := ScanPlan(s.q.QueryRowContext(ctx, `SELECT `+PlanColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return p, nil
}

// OldestActivePlan returns the first active plan by creation order
func (s *Storage) OldestActivePlan(ctx context.Context) (*models.Plan, error) {
	p, err := ScanPlan(s.q.QueryRowContext(ctx,
		`SELECT `+PlanColumns+` FROM plans WHERE is_active ORDER BY created_at, id LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active plan: %w", err)
	}
	return p, nil
}

const deviceColumns = `id, license_id, hardware_id, device_name, app_version, last_check_in, is_active, created_at`

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	if err := row.Scan(&d.ID, &d.LicenseID, &d.HardwareID, &d.DeviceName, &d.AppVersion, &d.LastCheckIn, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Storage) FindDevice(ctx context.Context, licenseID int64, hardwareID string) (*models.Device, error) {
	d, err := scanDevice(s.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE license_id = $1 AND hardware_id = $2`, licenseID, hardwareID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	return d, nil
}

func (s *Storage) GetDevice(ctx context.Context, licenseID, deviceID int64) (*models.Device, error) {
	d, err := scanDevice(s.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE license_id = $1 AND id = $2`, licenseID, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	return d, nil
}

func (s *Storage) CountActiveDevices(ctx context.Context, licenseID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE license_id = $1 AND is_active`, licenseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}

func (s *Storage) ListDevices(ctx context.Context, licenseID int64) ([]models.Device, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE license_id = $1 ORDER BY created_at, id`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	out := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Storage) CreateDevice(ctx context.Context, d *models.Device) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO devices
		(license_id, hardware_id, device_name, app_version, last_check_in, is_active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		d.LicenseID, d.HardwareID, d.DeviceName, d.AppVersion, d.LastCheckIn, d.IsActive,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (s *Storage) UpdateDevice(ctx context.Context, d *models.Device) error {
	_, err := s.q.ExecContext(ctx, `UPDATE devices SET
		device_name = $2, app_version = $3, last_check_in = $4, is_active = $5
		WHERE id = $1`,
		d.ID, d.DeviceName, d.AppVersion, d.LastCheckIn, d.IsActive)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	return nil
}

func (s *Storage) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO transactions
		(license_id, plan_id, type, months, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		t.LicenseID, t.PlanID, t.Type, t.Months, t.Amount, t.Currency,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Storage) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	query := `SELECT id, license_id, plan_id, type, months, amount, currency, created_at FROM transactions`
	args := []any{}
	if f.LicenseID != nil {
		args = append(args, *f.LicenseID)
		query += ` WHERE license_id = $1`
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.LicenseID, &t.PlanID, &t.Type, &t.Months, &t.Amount, &t.Currency, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Storage) InsertAudit(ctx context.Context, e models.AuditLog) error {
	return audit.Insert(ctx, s.q, e)
}

// Querier exposes the bound querier to composing storages
func (s *Storage) Querier() database.Querier { return s.q }

// DB exposes the pool to composing storages
func (s *Storage) DB() *sql.DB { return s.db }
