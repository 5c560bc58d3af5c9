// Package support routes ticket conversations between clinic users and
// staff.
package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

var (
	ErrTicketNotFound = apperr.NotFound("Ticket not found")
	ErrTicketClosed   = apperr.StateConflict("Ticket is closed")
	ErrNotYourTicket  = apperr.Forbidden("Ticket belongs to another clinic")
	ErrNoClinic       = apperr.Validation("clinicId is required")
	ErrEmptyMessage   = apperr.Validation("body is required")
	ErrEmptySubject   = apperr.Validation("subject is required")
	ErrClinicNotFound = apperr.NotFound("Clinic not found")
)

// Requester is the authenticated caller of a ticket operation
type Requester struct {
	models.Actor
	Role     string
	ClinicID *int64
}

func (r Requester) isClinic() bool { return r.Role == models.RoleClinic }

// Store is the persistence behind Service
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	LockTicket(ctx context.Context, id int64) (*models.Ticket, error)
	ListTickets(ctx context.Context, f ListFilter) ([]models.Ticket, int, error)
	SetTicketStatus(ctx context.Context, id int64, status string) error
	AddMessage(ctx context.Context, m *models.TicketMessage) error
	ListMessages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error)

	InsertAudit(ctx context.Context, e models.AuditLog) error
}

type ListFilter struct {
	ClinicID *int64
	Status   string
	Limit    int
	Offset   int
}

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// OpenRequest starts a ticket. Staff must name the clinic; clinic users
// always open tickets for their own clinic.
type OpenRequest struct {
	ClinicID *int64 `json:"clinicId"`
	Subject  string `json:"subject" validate:"required,max=255"`
	Body     string `json:"body" validate:"required"`
}

func (s *Service) Open(ctx context.Context, r Requester, req OpenRequest) (*models.Ticket, error) {
	clinicID := req.ClinicID
	if r.isClinic() {
		clinicID = r.ClinicID
	}
	if clinicID == nil {
		return nil, ErrNoClinic
	}
	subject, body := strings.TrimSpace(req.Subject), strings.TrimSpace(req.Body)
	if subject == "" {
		return nil, ErrEmptySubject
	}
	if body == "" {
		return nil, ErrEmptyMessage
	}

	t := &models.Ticket{
		Reference: uuid.NewString(),
		ClinicID:  *clinicID,
		Subject:   subject,
		Status:    models.TicketOpen,
		CreatedBy: r.UserID,
	}
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateTicket(ctx, t); err != nil {
			return err
		}
		m := &models.TicketMessage{TicketID: t.ID, SenderID: r.UserID, SenderRole: r.Role, Body: body}
		if err := tx.AddMessage(ctx, m); err != nil {
			return err
		}
		t.Messages = []models.TicketMessage{*m}
		return tx.InsertAudit(ctx, audit.Entry(r.Actor, audit.ActionTicketOpened,
			fmt.Sprintf("ticket=%s clinic=%d subject=%q", t.Reference, t.ClinicID, t.Subject)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("ticket", t.Reference).Int64("clinic_id", t.ClinicID).Msg("ticket opened")
	return t, nil
}

// Reply appends a message. A staff reply marks the ticket answered and a
// clinic reply re-opens it.
func (s *Service) Reply(ctx context.Context, r Requester, ticketID int64, body string) (*models.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	var out *models.TicketMessage
	err := s.store.WithinTx(ctx, func(tx Store) error {
		t, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := authorize(r, t); err != nil {
			return err
		}
		if t.Status == models.TicketClosed {
			return ErrTicketClosed
		}
		m := &models.TicketMessage{TicketID: t.ID, SenderID: r.UserID, SenderRole: r.Role, Body: body}
		if err := tx.AddMessage(ctx, m); err != nil {
			return err
		}
		next := models.TicketAnswered
		if r.isClinic() {
			next = models.TicketOpen
		}
		if err := tx.SetTicketStatus(ctx, t.ID, next); err != nil {
			return err
		}
		out = m
		return tx.InsertAudit(ctx, audit.Entry(r.Actor, audit.ActionTicketReplied,
			fmt.Sprintf("ticket=%s role=%s status=%s", t.Reference, r.Role, next)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close is terminal; closing a closed ticket is a no-op
func (s *Service) Close(ctx context.Context, r Requester, ticketID int64) (*models.Ticket, error) {
	var out *models.Ticket
	err := s.store.WithinTx(ctx, func(tx Store) error {
		t, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := authorize(r, t); err != nil {
			return err
		}
		out = t
		if t.Status == models.TicketClosed {
			return nil
		}
		if err := tx.SetTicketStatus(ctx, t.ID, models.TicketClosed); err != nil {
			return err
		}
		t.Status = models.TicketClosed
		return tx.InsertAudit(ctx, audit.Entry(r.Actor, audit.ActionTicketClosed, "ticket="+t.Reference))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the ticket with its messages in order
func (s *Service) Get(ctx context.Context, r Requester, ticketID int64) (*models.Ticket, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authorize(r, t); err != nil {
		return nil, err
	}
	if t.Messages, err = s.store.ListMessages(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// List pages tickets. Clinic users only ever see their own clinic's.
func (s *Service) List(ctx context.Context, r Requester, f ListFilter) ([]models.Ticket, int, error) {
	if r.isClinic() {
		if r.ClinicID == nil {
			return []models.Ticket{}, 0, nil
		}
		f.ClinicID = r.ClinicID
	}
	switch f.Status {
	case "", models.TicketOpen, models.TicketAnswered, models.TicketClosed:
	default:
		return nil, 0, apperr.Validation("unknown ticket status: " + f.Status)
	}
	return s.store.ListTickets(ctx, f)
}

func authorize(r Requester, t *models.Ticket) error {
	if !r.isClinic() {
		return nil
	}
	if r.ClinicID == nil || *r.ClinicID != t.ClinicID {
		return ErrNotYourTicket
	}
	return nil
}
