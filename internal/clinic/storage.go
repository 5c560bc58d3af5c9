package clinic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/sessions"
	"github.com/licensehub/pkg/models"
)

// Storage is the Postgres Store. License, plan and audit rows go through the
// embedded license storage bound to the same querier.
type Storage struct {
	*license.Storage
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{Storage: license.NewStorage(db)}
}

func (s *Storage) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.InTx() {
		return fn(s)
	}
	return database.WithTx(ctx, s.DB(), func(tx *sql.Tx) error {
		return fn(&Storage{Storage: license.NewStorageOn(s.DB(), tx)})
	})
}

const clinicColumns = `id, name, doctor_name, email, phone, address, hwid, status, created_at, updated_at`

func scanClinic(row interface{ Scan(...any) error }) (*models.Clinic, error) {
	var c models.Clinic
	err := row.Scan(&c.ID, &c.Name, &c.DoctorName, &c.Email, &c.Phone, &c.Address, &c.HWID, &c.Status,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) CreateClinic(ctx context.Context, c *models.Clinic) error {
	err := s.Querier().QueryRowContext(ctx, `INSERT INTO clinics
		(name, doctor_name, email, phone, address, hwid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		c.Name, c.DoctorName, c.Email, c.Phone, c.Address, c.HWID, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err, "clinics_email_key"):
		return apperr.Wrap(ErrEmailTaken, err)
	case database.IsUniqueViolation(err, "clinics_hwid_key"):
		return apperr.Wrap(ErrHWIDTaken, err)
	case err != nil:
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

func (s *Storage) getClinic(ctx context.Context, suffix string, id int64) (*models.Clinic, error) {
	c, err := scanClinic(s.Querier().QueryRowContext(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClinicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query clinic: %w", err)
	}
	return c, nil
}

func (s *Storage) GetClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	return s.getClinic(ctx, "", id)
}

func (s *Storage) LockClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	return s.getClinic(ctx, " FOR UPDATE", id)
}

// ListClinics pages clinics newest first, each with its license attached
func (s *Storage) ListClinics(ctx context.Context, f ListFilter) ([]models.Clinic, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR email ILIKE $%[1]d OR doctor_name ILIKE $%[1]d)", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.Querier().QueryRowContext(ctx, `SELECT COUNT(*) FROM clinics`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clinics: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.Querier().QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM clinics%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			clinicColumns, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()

	out := []models.Clinic{}
	ids := []int64{}
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan clinic: %w", err)
		}
		out = append(out, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	byClinic, err := s.LicensesByClinics(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].License = byClinic[out[i].ID]
	}
	return out, total, nil
}

func (s *Storage) SetClinicStatus(ctx context.Context, id int64, status models.ClinicStatus) error {
	res, err := s.Querier().ExecContext(ctx, `UPDATE clinics SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update clinic status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClinicNotFound
	}
	return nil
}

func (s *Storage) DeleteClinic(ctx context.Context, id int64) error {
	res, err := s.Querier().ExecContext(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete clinic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClinicNotFound
	}
	return nil
}

func (s *Storage) DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error) {
	return sessions.DeleteForClinic(ctx, s.Querier(), clinicID)
}

const controlColumns = `clinic_id, storage_limit_mb, users_limit, patients_limit, features, locked, lock_reason, updated_at`

func scanControl(row interface{ Scan(...any) error }) (*models.ClinicControl, error) {
	var c models.ClinicControl
	var patients sql.NullInt64
	var reason sql.NullString
	err := row.Scan(&c.ClinicID, &c.StorageLimitMB, &c.UsersLimit, &patients, &c.Features, &c.Locked, &reason, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if patients.Valid {
		v := int(patients.Int64)
		c.PatientsLimit = &v
	}
	if reason.Valid {
		c.LockReason = &reason.String
	}
	return &c, nil
}

func (s *Storage) GetControl(ctx context.Context, clinicID int64, forUpdate bool) (*models.ClinicControl, error) {
	query := `SELECT ` + controlColumns + ` FROM clinic_controls WHERE clinic_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	c, err := scanControl(s.Querier().QueryRowContext(ctx, query, clinicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query clinic controls: %w", err)
	}
	return c, nil
}

func (s *Storage) InsertDefaultControl(ctx context.Context, c *models.ClinicControl) (*models.ClinicControl, error) {
	_, err := s.Querier().ExecContext(ctx, `INSERT INTO clinic_controls
		(clinic_id, storage_limit_mb, users_limit, patients_limit, features, locked, lock_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (clinic_id) DO NOTHING`,
		c.ClinicID, c.StorageLimitMB, c.UsersLimit, c.PatientsLimit, c.Features, c.Locked, c.LockReason)
	if database.IsForeignKeyViolation(err) {
		return nil, apperr.Wrap(ErrClinicNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("insert clinic controls: %w", err)
	}
	return s.GetControl(ctx, c.ClinicID, false)
}

func (s *Storage) UpdateControl(ctx context.Context, c *models.ClinicControl) error {
	err := s.Querier().QueryRowContext(ctx, `UPDATE clinic_controls SET
		storage_limit_mb = $2, users_limit = $3, patients_limit = $4, features = $5,
		locked = $6, lock_reason = $7, updated_at = NOW()
		WHERE clinic_id = $1 RETURNING updated_at`,
		c.ClinicID, c.StorageLimitMB, c.UsersLimit, c.PatientsLimit, c.Features, c.Locked, c.LockReason,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrClinicNotFound
	}
	if err != nil {
		return fmt.Errorf("update clinic controls: %w", err)
	}
	return nil
}
