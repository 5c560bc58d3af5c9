// Package subscription answers the polling "am I still allowed in" check of
// the clinic software and revokes sessions when the answer is no.
package subscription

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/metrics"
	"github.com/licensehub/pkg/models"
)

// Store is the slice of clinic storage the resolver reads. clinic.Storage
// satisfies it.
type Store interface {
	GetClinic(ctx context.Context, id int64) (*models.Clinic, error)
	GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error)
	DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error)
}

// LicenseBlock is the license part of a status response
type LicenseBlock struct {
	Serial          string               `json:"serial"`
	Status          models.LicenseStatus `json:"status"`
	IsPaused        bool                 `json:"isPaused"`
	ExpireDate      *time.Time           `json:"expireDate"`
	DeviceLimit     int                  `json:"deviceLimit"`
	ActivationCount int                  `json:"activationCount"`
	Plan            *models.PlanSummary  `json:"plan"`
}

// Status is the body of GET /subscription/status
type Status struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Status        models.ClinicStatus `json:"status"`
	License       *LicenseBlock       `json:"license"`
	RemainingDays *int                `json:"remainingDays"`
	ForceLogout   bool                `json:"forceLogout"`
}

type Resolver struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewResolver(store Store, m *metrics.Metrics) *Resolver {
	return &Resolver{store: store, metrics: m, now: time.Now}
}

// Status computes the clinic's effective access. Whenever the result says
// forceLogout, every session of the clinic's users is deleted before
// returning.
func (r *Resolver) Status(ctx context.Context, clinicID int64) (*Status, error) {
	c, err := r.store.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	out := &Status{ID: c.ID, Name: c.Name, Status: c.Status}

	if c.Status != models.ClinicApproved {
		return r.forceLogout(ctx, out)
	}
	l, err := r.store.GetLicenseByClinic(ctx, c.ID)
	if errors.Is(err, license.ErrLicenseNotFound) {
		return r.forceLogout(ctx, out)
	}
	if err != nil {
		return nil, err
	}

	out.License = &LicenseBlock{
		Serial:          l.Serial,
		Status:          l.Status,
		IsPaused:        l.IsPaused(),
		ExpireDate:      l.ExpireDate,
		DeviceLimit:     l.DeviceLimit,
		ActivationCount: l.ActivationCount,
		Plan:            l.Plan,
	}
	active := l.Status == models.LicenseActive && !l.IsPaused()
	if l.ExpireDate != nil {
		days := RemainingDays(*l.ExpireDate, r.now())
		out.RemainingDays = &days
		active = active && days > 0
	}
	if !active {
		return r.forceLogout(ctx, out)
	}
	return out, nil
}

func (r *Resolver) forceLogout(ctx context.Context, out *Status) (*Status, error) {
	out.ForceLogout = true
	n, err := r.store.DeleteClinicSessions(ctx, out.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		r.metrics.ForceLogout()
		log.Info().Int64("clinic_id", out.ID).Int64("sessions", n).Str("status", string(out.Status)).
			Msg("subscription inactive, sessions revoked")
	}
	return out, nil
}

// RemainingDays is the number of started days until expire, never negative
func RemainingDays(expire, now time.Time) int {
	d := expire.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
