package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/pkg/models"
)

// Stats is the dashboard summary
type Stats struct {
	Licenses    map[string]int `json:"licenses"`
	Clinics     map[string]int `json:"clinics"`
	OpenTickets int            `json:"openTickets"`
	Users       int            `json:"users"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// StatsSource computes the dashboard summary
type StatsSource interface {
	Stats(ctx context.Context) (*Stats, error)
}

// StatsStorage computes Stats with a handful of aggregate queries
type StatsStorage struct {
	db *sql.DB
}

func NewStatsStorage(db *sql.DB) *StatsStorage { return &StatsStorage{db: db} }

func (s *StatsStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{LastUpdated: time.Now().UTC()}

	var err error
	if st.Licenses, err = s.countBy(ctx, `SELECT status, COUNT(*) FROM licenses GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count licenses: %w", err)
	}
	if st.Clinics, err = s.countBy(ctx, `SELECT status, COUNT(*) FROM clinics GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count clinics: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE status <> $1`, models.TicketClosed).Scan(&st.OpenTickets)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&st.Users); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return st, nil
}

func (s *StatsStorage) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.deps.Stats.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
