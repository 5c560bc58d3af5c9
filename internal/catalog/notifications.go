package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

type NotificationInput struct {
	Title     string     `json:"title" validate:"required,max=255"`
	Message   string     `json:"message" validate:"required"`
	Level     string     `json:"level" validate:"omitempty,oneof=info warning critical"`
	ClinicID  *int64     `json:"clinicId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func validLevel(l string) bool {
	switch l {
	case models.NotificationInfo, models.NotificationWarning, models.NotificationCritical:
		return true
	}
	return false
}

// Notifications lists every notification, newest first
func (s *Service) Notifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, NotificationFilter{Limit: limit, Offset: offset})
}

// ForClinic returns the broadcasts and the clinic's own notifications that
// have not expired.
func (s *Service) ForClinic(ctx context.Context, clinicID int64) ([]models.Notification, error) {
	now := s.now()
	return s.store.ListNotifications(ctx, NotificationFilter{ClinicID: &clinicID, ActiveAt: &now})
}

func (s *Service) CreateNotification(ctx context.Context, actor models.Actor, in NotificationInput) (*models.Notification, error) {
	n := &models.Notification{
		Title:     strings.TrimSpace(in.Title),
		Message:   strings.TrimSpace(in.Message),
		Level:     strings.ToLower(strings.TrimSpace(in.Level)),
		ClinicID:  in.ClinicID,
		CreatedBy: actor.UserID,
		ExpiresAt: in.ExpiresAt,
	}
	if n.Level == "" {
		n.Level = models.NotificationInfo
	}
	switch {
	case n.Title == "" || n.Message == "":
		return nil, apperr.Validation("title and message are required")
	case !validLevel(n.Level):
		return nil, ErrInvalidLevel
	case n.ExpiresAt != nil && !n.ExpiresAt.After(s.now()):
		return nil, apperr.Validation("expiresAt must be in the future")
	}

	target := "all"
	if n.ClinicID != nil {
		target = fmt.Sprintf("clinic=%d", *n.ClinicID)
	}
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateNotification(ctx, n); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionNotificationCreated,
			fmt.Sprintf("title=%q level=%s target=%s", n.Title, n.Level, target)))
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) DeleteNotification(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		n, err := tx.DeleteNotification(ctx, id)
		if err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionNotificationDeleted, fmt.Sprintf("title=%q", n.Title)))
	})
}
