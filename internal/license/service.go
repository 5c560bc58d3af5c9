package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/metrics"
	"github.com/licensehub/pkg/models"
)

// Service runs the license lifecycle. Every transition locks the license
// row, so concurrent activations of one serial serialise on the database.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m, now: time.Now}
}

// ActivateRequest is the body of POST /license/activate
type ActivateRequest struct {
	Serial     string `json:"serial" validate:"required"`
	HardwareID string `json:"hardwareId" validate:"required,max=255"`
	DeviceName string `json:"deviceName" validate:"max=255"`
	AppVersion string `json:"appVersion" validate:"max=64"`
}

// ActivationResult is returned on a successful activation
type ActivationResult struct {
	Success        bool      `json:"success"`
	ActivationDate time.Time `json:"activationDate"`
	Message        string    `json:"message"`
}

// ValidationResult is the public license check. Status, Plan and ExpireDate
// are nil when the serial is unknown.
type ValidationResult struct {
	Valid      bool                  `json:"valid"`
	Status     *models.LicenseStatus `json:"status"`
	IsPaused   bool                  `json:"isPaused"`
	Plan       *models.PlanSummary   `json:"plan"`
	ExpireDate *time.Time            `json:"expireDate"`
}

// IssueRequest creates a license from a plan
type IssueRequest struct {
	PlanID       int64      `json:"planId" validate:"required"`
	CustomerName string     `json:"customerName" validate:"required,max=255"`
	DeviceLimit  *int       `json:"deviceLimit"`
	ExpireDate   *time.Time `json:"expireDate"`
	ClinicID     *int64     `json:"clinicId"`
}

// UpdateRequest is a partial admin edit of a license
type UpdateRequest struct {
	CustomerName *string    `json:"customerName" validate:"omitempty,max=255"`
	DeviceLimit  *int       `json:"deviceLimit"`
	ExpireDate   *time.Time `json:"expireDate"`
}

// NewFromPlan builds a pending license carrying the plan's defaults
func NewFromPlan(plan *models.Plan, now time.Time) *models.License {
	l := &models.License{
		PlanID:      plan.ID,
		DeviceLimit: plan.DeviceLimit,
		Status:      models.LicensePending,
		Plan:        &models.PlanSummary{ID: plan.ID, Name: plan.Name, DurationMonths: plan.DurationMonths},
	}
	if plan.DurationMonths > 0 {
		exp := now.AddDate(0, plan.DurationMonths, 0)
		l.ExpireDate = &exp
	}
	return l
}

// ApplyPause moves l to paused. It reports false when l was already paused.
func ApplyPause(l *models.License) (bool, error) {
	switch l.Status {
	case models.LicenseRevoked:
		return false, ErrLicenseRevoked
	case models.LicensePaused:
		return false, nil
	}
	l.Status = models.LicensePaused
	return true, nil
}

// ApplyResume moves a paused l back to active. Non-paused licenses are left
// alone and report false.
func ApplyResume(l *models.License) (bool, error) {
	switch l.Status {
	case models.LicenseRevoked:
		return false, ErrLicenseRevoked
	case models.LicensePaused:
		l.Status = models.LicenseActive
		return true, nil
	}
	return false, nil
}

// Activate binds hardwareId to the license and marks it active. A hardware
// ID already bound to the license re-activates without taking a new seat.
func (s *Service) Activate(ctx context.Context, actor models.Actor, req ActivateRequest) (*ActivationResult, error) {
	serial := NormalizeSerial(req.Serial)
	hwid := strings.TrimSpace(req.HardwareID)
	if hwid == "" {
		return nil, ErrHardwareIDRequired
	}
	if !ValidSerialFormat(serial) {
		return nil, ErrInvalidSerial
	}

	now := s.now()
	err := s.store.WithinTx(ctx, func(tx Store) error {
		l, err := tx.LockLicenseBySerial(ctx, serial)
		if err != nil {
			return err
		}
		switch {
		case l.Status == models.LicenseRevoked:
			return ErrLicenseRevoked
		case l.IsExpiredAt(now):
			return ErrLicenseExpired
		case l.IsPaused():
			return ErrLicensePaused
		}

		dev, err := tx.FindDevice(ctx, l.ID, hwid)
		if err != nil {
			return err
		}
		if dev == nil || !dev.IsActive {
			if err := s.checkSeat(ctx, tx, l); err != nil {
				return err
			}
		}
		if dev == nil {
			dev = &models.Device{LicenseID: l.ID, HardwareID: hwid}
			applyDeviceMeta(dev, req, now)
			if err := tx.CreateDevice(ctx, dev); err != nil {
				return err
			}
		} else {
			applyDeviceMeta(dev, req, now)
			if err := tx.UpdateDevice(ctx, dev); err != nil {
				return err
			}
		}

		l.Status = models.LicenseActive
		l.ActivationCount++
		l.ActivationDate = &now
		l.LastCheckIn = &now
		l.HardwareID = &hwid
		if err := tx.UpdateLicense(ctx, l); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionLicenseActivated,
			fmt.Sprintf("serial=%s hardwareId=%s device=%q", l.Serial, hwid, dev.DeviceName)))
	})
	if err != nil {
		s.metrics.Activation(apperr.KindOf(err).String())
		return nil, err
	}

	s.metrics.Activation("success")
	log.Info().Str("serial", serial).Str("hardware_id", hwid).Msg("license activated")
	return &ActivationResult{
		Success:        true,
		ActivationDate: now,
		Message:        "License activated successfully",
	}, nil
}

func (s *Service) checkSeat(ctx context.Context, tx Store, l *models.License) error {
	if l.DeviceLimit == 0 {
		return nil
	}
	n, err := tx.CountActiveDevices(ctx, l.ID)
	if err != nil {
		return err
	}
	if n >= l.DeviceLimit {
		return ErrDeviceLimitExceeded
	}
	return nil
}

func applyDeviceMeta(d *models.Device, req ActivateRequest, now time.Time) {
	d.DeviceName = strings.TrimSpace(req.DeviceName)
	d.AppVersion = strings.TrimSpace(req.AppVersion)
	d.LastCheckIn = now
	d.IsActive = true
}

// Validate reports whether serial is currently usable. It never writes and
// an unknown serial yields an invalid result rather than an error.
func (s *Service) Validate(ctx context.Context, serial string) (*ValidationResult, error) {
	serial = NormalizeSerial(serial)
	if !ValidSerialFormat(serial) {
		s.metrics.Validation(false)
		return &ValidationResult{}, nil
	}
	l, err := s.store.GetLicenseBySerial(ctx, serial)
	if errors.Is(err, ErrLicenseNotFound) {
		s.metrics.Validation(false)
		return &ValidationResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	status := l.Status
	res := &ValidationResult{
		Valid:      IsUsable(l, s.now()),
		Status:     &status,
		IsPaused:   l.IsPaused(),
		Plan:       l.Plan,
		ExpireDate: l.ExpireDate,
	}
	s.metrics.Validation(res.Valid)
	return res, nil
}

// IsUsable is the effective validity of a license at now
func IsUsable(l *models.License, now time.Time) bool {
	return l.Status == models.LicenseActive && !l.IsPaused() && !l.IsExpiredAt(now)
}

// Issue creates a pending license from a plan and records the purchase
func (s *Service) Issue(ctx context.Context, actor models.Actor, req IssueRequest) (*models.License, error) {
	if req.DeviceLimit != nil && *req.DeviceLimit < 0 {
		return nil, ErrInvalidDeviceLimit
	}
	now := s.now()

	var issued *models.License
	err := s.store.WithinTx(ctx, func(tx Store) error {
		plan, err := tx.GetPlan(ctx, req.PlanID)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return ErrPlanInactive
		}

		l := NewFromPlan(plan, now)
		l.CustomerName = strings.TrimSpace(req.CustomerName)
		l.ClinicID = req.ClinicID
		if req.DeviceLimit != nil {
			l.DeviceLimit = *req.DeviceLimit
		}
		if req.ExpireDate != nil {
			exp := req.ExpireDate.UTC()
			l.ExpireDate = &exp
		}

		if _, err := IssueSerial(ctx, plan, now, func(ctx context.Context, serial string) error {
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
		issued = l
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionLicenseIssued,
			fmt.Sprintf("serial=%s plan=%s customer=%q", l.Serial, plan.Name, l.CustomerName)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("serial", issued.Serial).Int64("plan_id", issued.PlanID).Msg("license issued")
	return issued, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.License, error) {
	return s.store.GetLicense(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.License, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation(fmt.Sprintf("unknown license status %q", f.Status))
	}
	return s.store.ListLicenses(ctx, f)
}

// Update applies a partial edit
func (s *Service) Update(ctx context.Context, actor models.Actor, id int64, req UpdateRequest) (*models.License, error) {
	if req.DeviceLimit != nil && *req.DeviceLimit < 0 {
		return nil, ErrInvalidDeviceLimit
	}
	var changes []string
	return s.mutate(ctx, actor, id, audit.ActionLicenseUpdated, func(l *models.License) (bool, error) {
		if req.CustomerName != nil {
			name := strings.TrimSpace(*req.CustomerName)
			if name != l.CustomerName {
				changes = append(changes, fmt.Sprintf("customerName: %q → %q", l.CustomerName, name))
				l.CustomerName = name
			}
		}
		if req.DeviceLimit != nil && *req.DeviceLimit != l.DeviceLimit {
			changes = append(changes, fmt.Sprintf("deviceLimit: %d → %d", l.DeviceLimit, *req.DeviceLimit))
			l.DeviceLimit = *req.DeviceLimit
		}
		if req.ExpireDate != nil {
			exp := req.ExpireDate.UTC()
			if l.ExpireDate == nil || !l.ExpireDate.Equal(exp) {
				changes = append(changes, fmt.Sprintf("expireDate: %s → %s", formatDate(l.ExpireDate), formatDate(&exp)))
				l.ExpireDate = &exp
			}
		}
		return len(changes) > 0, nil
	}, func(l *models.License) string {
		return "serial=" + l.Serial + " " + strings.Join(changes, ", ")
	})
}

// Delete removes a license; devices and transactions cascade
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		l, err := tx.LockLicense(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteLicense(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionLicenseDeleted, "serial="+l.Serial))
	})
}

// Pause soft-disables a license. Pausing a paused license is a no-op.
func (s *Service) Pause(ctx context.Context, actor models.Actor, id int64) (*models.License, error) {
	return s.mutate(ctx, actor, id, audit.ActionLicensePaused, ApplyPause, serialDetail)
}

// Resume re-enables a paused license. Other states are returned untouched.
func (s *Service) Resume(ctx context.Context, actor models.Actor, id int64) (*models.License, error) {
	return s.mutate(ctx, actor, id, audit.ActionLicenseResumed, ApplyResume, serialDetail)
}

// Revoke is terminal; nothing moves a license out of revoked
func (s *Service) Revoke(ctx context.Context, actor models.Actor, id int64) (*models.License, error) {
	return s.mutate(ctx, actor, id, audit.ActionLicenseRevoked, func(l *models.License) (bool, error) {
		if l.Status == models.LicenseRevoked {
			return false, nil
		}
		l.Status = models.LicenseRevoked
		return true, nil
	}, serialDetail)
}

// Renew extends the license by months from max(expireDate, now) and
// records a pro-rated renewal transaction.
func (s *Service) Renew(ctx context.Context, actor models.Actor, id int64, months int) (*models.License, error) {
	if months < 1 {
		return nil, ErrInvalidMonths
	}
	now := s.now()

	var renewed *models.License
	err := s.store.WithinTx(ctx, func(tx Store) error {
		l, err := tx.LockLicense(ctx, id)
		if err != nil {
			return err
		}
		if l.Status == models.LicenseRevoked {
			return ErrLicenseRevoked
		}
		plan, err := tx.GetPlan(ctx, l.PlanID)
		if err != nil {
			return err
		}

		base := now
		if l.ExpireDate != nil && l.ExpireDate.After(now) {
			base = *l.ExpireDate
		}
		exp := base.AddDate(0, months, 0)
		old := formatDate(l.ExpireDate)
		l.ExpireDate = &exp
		l.LastRenewalDate = &now
		if !l.IsPaused() {
			l.Status = models.LicenseActive
		}
		if err := tx.UpdateLicense(ctx, l); err != nil {
			return err
		}

		amount := RenewalAmount(plan, months)
		if err := tx.CreateTransaction(ctx, &models.Transaction{
			LicenseID: l.ID,
			PlanID:    plan.ID,
			Type:      models.TransactionRenewal,
			Months:    months,
			Amount:    amount,
			Currency:  plan.Currency,
		}); err != nil {
			return err
		}
		renewed = l
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionLicenseRenewed,
			fmt.Sprintf("serial=%s months=%d expireDate: %s → %s amount=%.2f %s",
				l.Serial, months, old, formatDate(&exp), amount, plan.Currency)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("serial", renewed.Serial).Int("months", months).Msg("license renewed")
	return renewed, nil
}

// Devices lists every device bound to the license
func (s *Service) Devices(ctx context.Context, licenseID int64) ([]models.Device, error) {
	if _, err := s.store.GetLicense(ctx, licenseID); err != nil {
		return nil, err
	}
	return s.store.ListDevices(ctx, licenseID)
}

// DeactivateDevice frees the seat held by a device. The same hardware ID
// may activate again later and reuses the row.
func (s *Service) DeactivateDevice(ctx context.Context, actor models.Actor, licenseID, deviceID int64) (*models.Device, error) {
	var dev *models.Device
	err := s.store.WithinTx(ctx, func(tx Store) error {
		l, err := tx.LockLicense(ctx, licenseID)
		if err != nil {
			return err
		}
		dev, err = tx.GetDevice(ctx, licenseID, deviceID)
		if err != nil {
			return err
		}
		if !dev.IsActive {
			return nil
		}
		dev.IsActive = false
		if err := tx.UpdateDevice(ctx, dev); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionDeviceDeactivated,
			fmt.Sprintf("serial=%s hardwareId=%s", l.Serial, dev.HardwareID)))
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (s *Service) Transactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// ExpireOverdue marks active licenses past their expire date as expired
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	n, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("expired overdue licenses")
	}
	return n, nil
}

// mutate locks the license, applies fn and, when fn reports a change,
// persists it and writes one audit entry.
func (s *Service) mutate(ctx context.Context, actor models.Actor, id int64, action string,
	fn func(*models.License) (bool, error), detail func(*models.License) string) (*models.License, error) {
	var out *models.License
	err := s.store.WithinTx(ctx, func(tx Store) error {
		l, err := tx.LockLicense(ctx, id)
		if err != nil {
			return err
		}
		changed, err := fn(l)
		if err != nil {
			return err
		}
		out = l
		if !changed {
			return nil
		}
		if err := tx.UpdateLicense(ctx, l); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, action, detail(l)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("license_id", id).Str("action", action).Str("status", string(out.Status)).Msg("license updated")
	return out, nil
}

func serialDetail(l *models.License) string {
	return fmt.Sprintf("serial=%s status=%s", l.Serial, l.Status)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format("2006-01-02")
}
