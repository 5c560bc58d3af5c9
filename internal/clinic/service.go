package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// Service runs registration, approval and suspension
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// RegisterRequest is the public self-registration body
type RegisterRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	DoctorName string `json:"doctorName" validate:"max=255"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"max=64"`
	Address    string `json:"address" validate:"max=512"`
	HWID       string `json:"hwid" validate:"required,max=255"`
}

// Register creates a PENDING clinic
func (s *Service) Register(ctx context.Context, actor models.Actor, req RegisterRequest) (*models.Clinic, error) {
	c := &models.Clinic{
		Name:       strings.TrimSpace(req.Name),
		DoctorName: strings.TrimSpace(req.DoctorName),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      strings.TrimSpace(req.Phone),
		Address:    strings.TrimSpace(req.Address),
		HWID:       strings.TrimSpace(req.HWID),
		Status:     models.ClinicPending,
	}
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateClinic(ctx, c); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionClinicRegistered,
			fmt.Sprintf("clinic=%q email=%s", c.Name, c.Email)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("clinic_id", c.ID).Str("email", c.Email).Msg("clinic registered")
	return c, nil
}

// Approve issues a license from planID, or from the oldest active plan when
// planID is nil, and flips the clinic to APPROVED.
func (s *Service) Approve(ctx context.Context, actor models.Actor, clinicID int64, planID *int64) (*models.Clinic, error) {
	now := s.now()

	var out *models.Clinic
	err := s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.LockClinic(ctx, clinicID)
		if err != nil {
			return err
		}
		switch c.Status {
		case models.ClinicApproved:
			return ErrAlreadyApproved
		case models.ClinicSuspended:
			return ErrSuspended
		}

		plan, err := s.pickPlan(ctx, tx, planID)
		if err != nil {
			return err
		}

		l := license.NewFromPlan(plan, now)
		l.CustomerName = c.Name
		l.ClinicID = &c.ID
		if _, err := license.IssueSerial(ctx, plan, now, func(ctx context.Context, serial string) error {
			l.Serial = serial
			return tx.CreateLicense(ctx, l)
		}); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, &models.Transaction{
			LicenseID: l.ID,
			PlanID:    plan.ID,
			Type:      models.TransactionPurchase,
			Months:    plan.DurationMonths,
			Amount:    plan.PriceUSD,
			Currency:  plan.Currency,
		}); err != nil {
			return err
		}

		if err := tx.SetClinicStatus(ctx, c.ID, models.ClinicApproved); err != nil {
			return err
		}
		c.Status = models.ClinicApproved
		c.License = l
		out = c
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionClinicApproved,
			fmt.Sprintf("clinic=%q plan=%s serial=%s", c.Name, plan.Name, l.Serial)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("clinic_id", clinicID).Str("serial", out.License.Serial).Msg("clinic approved")
	return out, nil
}

func (s *Service) pickPlan(ctx context.Context, tx Store, planID *int64) (*models.Plan, error) {
	if planID == nil {
		plan, err := tx.OldestActivePlan(ctx)
		if errors.Is(err, license.ErrPlanNotFound) {
			return nil, ErrNoActivePlan
		}
		return plan, err
	}
	plan, err := tx.GetPlan(ctx, *planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, license.ErrPlanInactive
	}
	return plan, nil
}

// Reject moves a PENDING clinic to REJECTED
func (s *Service) Reject(ctx context.Context, actor models.Actor, clinicID int64) (*models.Clinic, error) {
	var out *models.Clinic
	err := s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.LockClinic(ctx, clinicID)
		if err != nil {
			return err
		}
		if c.Status != models.ClinicPending {
			return ErrNotPending
		}
		if err := tx.SetClinicStatus(ctx, c.ID, models.ClinicRejected); err != nil {
			return err
		}
		c.Status = models.ClinicRejected
		out = c
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionClinicRejected, fmt.Sprintf("clinic=%q", c.Name)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleSuspension flips APPROVED and SUSPENDED, pausing or resuming the
// linked license in the same transaction. Suspending also ends every
// session of the clinic's users.
func (s *Service) ToggleSuspension(ctx context.Context, actor models.Actor, clinicID int64) (*models.Clinic, error) {
	var out *models.Clinic
	err := s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.LockClinic(ctx, clinicID)
		if err != nil {
			return err
		}

		var (
			next   models.ClinicStatus
			apply  func(*models.License) (bool, error)
			action string
		)
		switch c.Status {
		case models.ClinicApproved:
			next, apply, action = models.ClinicSuspended, license.ApplyPause, audit.ActionClinicSuspended
		case models.ClinicSuspended:
			next, apply, action = models.ClinicApproved, license.ApplyResume, audit.ActionClinicReactivated
		default:
			return ErrNotSuspendable
		}

		l, err := tx.LockLicenseByClinic(ctx, c.ID)
		switch {
		case errors.Is(err, license.ErrLicenseNotFound):
			l = nil
		case err != nil:
			return err
		}
		// a revoked license stays revoked whatever the clinic does
		if l != nil && l.Status != models.LicenseRevoked {
			changed, err := apply(l)
			if err != nil {
				return err
			}
			if changed {
				if err := tx.UpdateLicense(ctx, l); err != nil {
					return err
				}
			}
		}

		if err := tx.SetClinicStatus(ctx, c.ID, next); err != nil {
			return err
		}
		var ended int64
		if next == models.ClinicSuspended {
			if ended, err = tx.DeleteClinicSessions(ctx, c.ID); err != nil {
				return err
			}
		}
		c.Status = next
		c.License = l
		out = c

		detail := fmt.Sprintf("clinic=%q status=%s", c.Name, next)
		if l != nil {
			detail += fmt.Sprintf(" license=%s:%s", l.Serial, l.Status)
		}
		if ended > 0 {
			detail += fmt.Sprintf(" sessionsEnded=%d", ended)
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, action, detail))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("clinic_id", clinicID).Str("status", string(out.Status)).Msg("clinic suspension toggled")
	return out, nil
}

// Get returns the clinic with its license, if any
func (s *Service) Get(ctx context.Context, id int64) (*models.Clinic, error) {
	c, err := s.store.GetClinic(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.store.GetLicenseByClinic(ctx, id)
	switch {
	case errors.Is(err, license.ErrLicenseNotFound):
	case err != nil:
		return nil, err
	default:
		c.License = l
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Clinic, int, error) {
	return s.store.ListClinics(ctx, f)
}

// Delete removes the clinic, its license and its users' sessions
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.LockClinic(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteClinicSessions(ctx, id); err != nil {
			return err
		}
		l, err := tx.GetLicenseByClinic(ctx, id)
		switch {
		case errors.Is(err, license.ErrLicenseNotFound):
		case err != nil:
			return err
		default:
			if err := tx.DeleteLicense(ctx, l.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteClinic(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionClinicDeleted,
			fmt.Sprintf("clinic=%q email=%s", c.Name, c.Email)))
	})
}

// ForceLogout ends every session of the clinic's users and reports how many
// were removed.
func (s *Service) ForceLogout(ctx context.Context, actor models.Actor, clinicID int64) (int64, error) {
	var n int64
	err := s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.GetClinic(ctx, clinicID)
		if err != nil {
			return err
		}
		if n, err = tx.DeleteClinicSessions(ctx, clinicID); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionClinicForceLogout,
			fmt.Sprintf("clinic=%q sessions=%d", c.Name, n)))
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("clinic_id", clinicID).Int64("sessions", n).Msg("clinic force logout")
	return n, nil
}
