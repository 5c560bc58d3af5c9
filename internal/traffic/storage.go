package traffic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

// Filter narrows List. Path matches as a prefix.
type Filter struct {
	Method string
	Path   string
	Status int
	UserID *int64
	Limit  int
	Offset int
}

// Storage owns the traffic_logs table
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db} }

// Insert writes one entry
func (s *Storage) Insert(ctx context.Context, e *models.TrafficLog) error {
	err := s.db.QueryRowContext(ctx, `INSERT INTO traffic_logs
		(request_id, method, path, status, latency_ms, ip_address, user_agent, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		e.RequestID, e.Method, e.Path, e.Status, e.LatencyMS, e.IPAddress, e.UserAgent, e.UserID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert traffic log: %w", err)
	}
	return nil
}

// EnqueueTraffic writes the entry synchronously. Used when the job queue
// is disabled.
func (s *Storage) EnqueueTraffic(ctx context.Context, e models.TrafficLog) error {
	return s.Insert(ctx, &e)
}

// List returns matching entries, newest first, and the total match count
func (s *Storage) List(ctx context.Context, f Filter) ([]models.TrafficLog, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if m := strings.TrimSpace(f.Method); m != "" {
		args = append(args, strings.ToUpper(m))
		where = append(where, fmt.Sprintf("method = $%d", len(args)))
	}
	if p := strings.TrimSpace(f.Path); p != "" {
		args = append(args, p+"%")
		where = append(where, fmt.Sprintf("path LIKE $%d", len(args)))
	}
	if f.Status > 0 {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM traffic_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count traffic logs: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, request_id, method, path, status, latency_ms, ip_address, user_agent, user_id, created_at
		FROM traffic_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query traffic logs: %w", err)
	}
	defer rows.Close()

	out := []models.TrafficLog{}
	for rows.Next() {
		var l models.TrafficLog
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Method, &l.Path, &l.Status, &l.LatencyMS,
			&l.IPAddress, &l.UserAgent, &l.UserID, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan traffic log: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// Clear deletes every entry and audits the clear
func (s *Storage) Clear(ctx context.Context, actor models.Actor) (int64, error) {
	var removed int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM traffic_logs`)
		if err != nil {
			return fmt.Errorf("clear traffic logs: %w", err)
		}
		removed, _ = res.RowsAffected()
		return audit.Insert(ctx, tx, audit.Entry(actor, audit.ActionTrafficCleared, fmt.Sprintf("removed %d entries", removed)))
	})
	return removed, err
}
