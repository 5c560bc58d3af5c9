package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// PlanInput creates a plan
type PlanInput struct {
	Name           string              `json:"name" validate:"required,max=255"`
	PriceUSD       float64             `json:"priceUSD" validate:"gte=0"`
	PriceMonthly   float64             `json:"price_monthly" validate:"gte=0"`
	PriceYearly    float64             `json:"price_yearly" validate:"gte=0"`
	Currency       string              `json:"currency" validate:"omitempty,len=3"`
	DurationMonths int                 `json:"durationMonths" validate:"gte=1"`
	DeviceLimit    int                 `json:"deviceLimit" validate:"gte=0"`
	Features       models.PlanFeatures `json:"features"`
	Limits         models.PlanLimits   `json:"limits"`
	IsActive       *bool               `json:"isActive"`
}

// PlanPatch is a partial plan edit. Features and limits merge key by key.
type PlanPatch struct {
	Name           *string             `json:"name" validate:"omitempty,max=255"`
	PriceUSD       *float64            `json:"priceUSD"`
	PriceMonthly   *float64            `json:"price_monthly"`
	PriceYearly    *float64            `json:"price_yearly"`
	Currency       *string             `json:"currency"`
	DurationMonths *int                `json:"durationMonths"`
	DeviceLimit    *int                `json:"deviceLimit"`
	Features       models.PlanFeatures `json:"features"`
	Limits         models.PlanLimits   `json:"limits"`
	IsActive       *bool               `json:"isActive"`
}

func (s *Service) Plans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	return s.store.ListPlans(ctx, activeOnly)
}

func (s *Service) Plan(ctx context.Context, id int64) (*models.Plan, error) {
	return s.store.GetPlan(ctx, id)
}

func (s *Service) CreatePlan(ctx context.Context, actor models.Actor, in PlanInput) (*models.Plan, error) {
	p := &models.Plan{
		Name:           strings.TrimSpace(in.Name),
		PriceUSD:       in.PriceUSD,
		PriceMonthly:   in.PriceMonthly,
		PriceYearly:    in.PriceYearly,
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		DurationMonths: in.DurationMonths,
		DeviceLimit:    in.DeviceLimit,
		Features:       in.Features,
		Limits:         in.Limits,
		IsActive:       in.IsActive == nil || *in.IsActive,
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.Features == nil {
		p.Features = models.PlanFeatures{}
	}
	if p.Limits == nil {
		p.Limits = models.PlanLimits{}
	}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := validatePlan(ctx, tx, p, in.Currency != ""); err != nil {
			return err
		}
		if err := tx.CreatePlan(ctx, p); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionPlanCreated,
			fmt.Sprintf("plan=%q price=%.2f %s duration=%d devices=%d", p.Name, p.PriceUSD, p.Currency, p.DurationMonths, p.DeviceLimit)))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdatePlan(ctx context.Context, actor models.Actor, id int64, patch PlanPatch) (*models.Plan, error) {
	var out *models.Plan
	err := s.store.WithinTx(ctx, func(tx Store) error {
		p, err := tx.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		var changed []string
		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
			changed = append(changed, "name")
		}
		if patch.PriceUSD != nil {
			p.PriceUSD = *patch.PriceUSD
			changed = append(changed, "priceUSD")
		}
		if patch.PriceMonthly != nil {
			p.PriceMonthly = *patch.PriceMonthly
			changed = append(changed, "price_monthly")
		}
		if patch.PriceYearly != nil {
			p.PriceYearly = *patch.PriceYearly
			changed = append(changed, "price_yearly")
		}
		if patch.Currency != nil {
			p.Currency = strings.ToUpper(strings.TrimSpace(*patch.Currency))
			changed = append(changed, "currency")
		}
		if patch.DurationMonths != nil {
			p.DurationMonths = *patch.DurationMonths
			changed = append(changed, "durationMonths")
		}
		if patch.DeviceLimit != nil {
			p.DeviceLimit = *patch.DeviceLimit
			changed = append(changed, "deviceLimit")
		}
		if patch.Features != nil {
			if err := license.ValidatePlanFeatures(patch.Features); err != nil {
				return err
			}
			p.Features = license.MergePlanFeatures(p.Features, patch.Features)
			changed = append(changed, "features")
		}
		if patch.Limits != nil {
			if err := license.ValidatePlanLimits(patch.Limits); err != nil {
				return err
			}
			p.Limits = license.MergePlanLimits(p.Limits, patch.Limits)
			changed = append(changed, "limits")
		}
		if patch.IsActive != nil {
			p.IsActive = *patch.IsActive
			changed = append(changed, "isActive")
		}

		if err := validatePlan(ctx, tx, p, patch.Currency != nil); err != nil {
			return err
		}
		if err := tx.UpdatePlan(ctx, p); err != nil {
			return err
		}
		out = p
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionPlanUpdated,
			fmt.Sprintf("plan=%q fields=%s", p.Name, strings.Join(changed, ","))))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) DeletePlan(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		p, err := tx.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeletePlan(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionPlanDeleted, fmt.Sprintf("plan=%q", p.Name)))
	})
}

func validatePlan(ctx context.Context, tx Store, p *models.Plan, checkCurrency bool) error {
	switch {
	case p.Name == "":
		return apperr.Validation("name is required")
	case p.PriceUSD < 0 || p.PriceMonthly < 0 || p.PriceYearly < 0:
		return apperr.Validation("prices must not be negative")
	case p.DurationMonths < 1:
		return apperr.Validation("durationMonths must be at least 1")
	case p.DeviceLimit < 0:
		return license.ErrInvalidDeviceLimit
	}
	if err := license.ValidatePlanFeatures(p.Features); err != nil {
		return err
	}
	if err := license.ValidatePlanLimits(p.Limits); err != nil {
		return err
	}
	if checkCurrency {
		if _, err := tx.CurrencyByCode(ctx, p.Currency); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return ErrUnknownCurrency
			}
			return err
		}
	}
	return nil
}
