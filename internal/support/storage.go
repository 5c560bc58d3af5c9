package support

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/database"
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

const ticketColumns = `id, reference, clinic_id, subject, status, created_by, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (*models.Ticket, error) {
	var t models.Ticket
	if err := row.Scan(&t.ID, &t.Reference, &t.ClinicID, &t.Subject, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) CreateTicket(ctx context.Context, t *models.Ticket) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO tickets (reference, clinic_id, subject, status, created_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		t.Reference, t.ClinicID, t.Subject, t.Status, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperr.Wrap(ErrClinicNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *Storage) ticket(ctx context.Context, suffix string, id int64) (*models.Ticket, error) {
	t, err := scanTicket(s.q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query ticket: %w", err)
	}
	return t, nil
}

func (s *Storage) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.ticket(ctx, "", id)
}

func (s *Storage) LockTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.ticket(ctx, " FOR UPDATE", id)
}

func (s *Storage) ListTickets(ctx context.Context, f ListFilter) ([]models.Ticket, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		where = append(where, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			ticketColumns, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func (s *Storage) SetTicketStatus(ctx context.Context, id int64, status string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (s *Storage) AddMessage(ctx context.Context, m *models.TicketMessage) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO ticket_messages (ticket_id, sender_id, sender_role, body)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		m.TicketID, m.SenderID, m.SenderRole, m.Body,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket message: %w", err)
	}
	return nil
}

func (s *Storage) ListMessages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, ticket_id, sender_id, sender_role, body, created_at
		FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at, id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query ticket messages: %w", err)
	}
	defer rows.Close()

	out := []models.TicketMessage{}
	for rows.Next() {
		var m models.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) InsertAudit(ctx context.Context, e models.AuditLog) error {
	return audit.Insert(ctx, s.q, e)
}
