// Package audit stores the append-only audit trail. Domain packages write
// entries through Insert inside their own transactions; the admin API reads
// and clears them through Storage.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

// Actions written by the domain services
const (
	ActionLicenseIssued       = "LICENSE_ISSUED"
	ActionLicenseUpdated      = "LICENSE_UPDATED"
	ActionLicenseDeleted      = "LICENSE_DELETED"
	ActionLicenseActivated    = "LICENSE_ACTIVATED"
	ActionLicensePaused       = "LICENSE_PAUSED"
	ActionLicenseResumed      = "LICENSE_RESUMED"
	ActionLicenseRevoked      = "LICENSE_REVOKED"
	ActionLicenseRenewed      = "LICENSE_RENEWED"
	ActionDeviceDeactivated   = "DEVICE_DEACTIVATED"
	ActionClinicRegistered    = "CLINIC_REGISTERED"
	ActionClinicApproved      = "CLINIC_APPROVED"
	ActionClinicRejected      = "CLINIC_REJECTED"
	ActionClinicSuspended     = "CLINIC_SUSPENDED"
	ActionClinicReactivated   = "CLINIC_REACTIVATED"
	ActionClinicDeleted       = "CLINIC_DELETED"
	ActionClinicForceLogout   = "CLINIC_FORCE_LOGOUT"
	ActionControlsUpdated     = "CLINIC_CONTROLS_UPDATED"
	ActionPlanCreated         = "PLAN_CREATED"
	ActionPlanUpdated         = "PLAN_UPDATED"
	ActionPlanDeleted         = "PLAN_DELETED"
	ActionCurrencyCreated     = "CURRENCY_CREATED"
	ActionCurrencyUpdated     = "CURRENCY_UPDATED"
	ActionCurrencyDeleted     = "CURRENCY_DELETED"
	ActionVersionCreated      = "VERSION_CREATED"
	ActionVersionUpdated      = "VERSION_UPDATED"
	ActionVersionDeleted      = "VERSION_DELETED"
	ActionNotificationCreated = "NOTIFICATION_CREATED"
	ActionNotificationDeleted = "NOTIFICATION_DELETED"
	ActionTicketOpened        = "TICKET_OPENED"
	ActionTicketReplied       = "TICKET_REPLIED"
	ActionTicketClosed        = "TICKET_CLOSED"
	ActionUserCreated         = "USER_CREATED"
	ActionUserUpdated         = "USER_UPDATED"
	ActionUserDeleted         = "USER_DELETED"
	ActionUserForceLogout     = "USER_FORCE_LOGOUT"
	ActionLogsCleared         = "AUDIT_LOGS_CLEARED"
	ActionTrafficCleared      = "TRAFFIC_LOGS_CLEARED"
)

// Entry builds an audit row for actor
func Entry(actor models.Actor, action, details string) models.AuditLog {
	return models.AuditLog{
		UserID:    actor.UserID,
		Action:    action,
		Details:   details,
		IPAddress: actor.IP,
	}
}

// Insert writes e using q, which is normally the caller's transaction
func Insert(ctx context.Context, q database.Querier, e models.AuditLog) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, details, ip_address) VALUES ($1, $2, $3, $4)`,
		e.UserID, e.Action, e.Details, e.IPAddress)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Filter narrows List
type Filter struct {
	Action string
	UserID *int64
	Limit  int
	Offset int
}

// Storage reads and clears the audit trail
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db} }

// List returns matching entries, newest first, and the total match count
func (s *Storage) List(ctx context.Context, f Filter) ([]models.AuditLog, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if a := strings.TrimSpace(f.Action); a != "" {
		args = append(args, strings.ToUpper(a))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, user_id, action, details, ip_address, created_at FROM audit_logs%s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// Clear deletes every entry and records the clear itself. It returns the
// number of rows removed.
func (s *Storage) Clear(ctx context.Context, actor models.Actor) (int64, error) {
	var removed int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audit_logs`)
		if err != nil {
			return fmt.Errorf("clear audit logs: %w", err)
		}
		removed, _ = res.RowsAffected()
		return Insert(ctx, tx, Entry(actor, ActionLogsCleared, fmt.Sprintf("removed %d entries", removed)))
	})
	return removed, err
}
