package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

type CurrencyInput struct {
	Code         string  `json:"code" validate:"required,len=3"`
	Name         string  `json:"name" validate:"required,max=64"`
	Symbol       string  `json:"symbol" validate:"max=8"`
	ExchangeRate float64 `json:"exchangeRate"`
	IsActive     *bool   `json:"isActive"`
}

type CurrencyPatch struct {
	Name         *string  `json:"name" validate:"omitempty,max=64"`
	Symbol       *string  `json:"symbol" validate:"omitempty,max=8"`
	ExchangeRate *float64 `json:"exchangeRate"`
	IsActive     *bool    `json:"isActive"`
}

func (s *Service) Currencies(ctx context.Context) ([]models.Currency, error) {
	return s.store.ListCurrencies(ctx)
}

func (s *Service) CreateCurrency(ctx context.Context, actor models.Actor, in CurrencyInput) (*models.Currency, error) {
	c := &models.Currency{
		Code:         strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:         strings.TrimSpace(in.Name),
		Symbol:       strings.TrimSpace(in.Symbol),
		ExchangeRate: in.ExchangeRate,
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	if c.ExchangeRate == 0 {
		c.ExchangeRate = 1
	}
	if !validCurrencyCode(c.Code) {
		return nil, ErrInvalidCurrencyCode
	}
	if c.ExchangeRate < 0 {
		return nil, ErrInvalidExchangeRate
	}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateCurrency(ctx, c); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionCurrencyCreated,
			fmt.Sprintf("code=%s rate=%g", c.Code, c.ExchangeRate)))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCurrency(ctx context.Context, actor models.Actor, id int64, patch CurrencyPatch) (*models.Currency, error) {
	if patch.ExchangeRate != nil && *patch.ExchangeRate <= 0 {
		return nil, ErrInvalidExchangeRate
	}
	var out *models.Currency
	err := s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.GetCurrency(ctx, id)
		if err != nil {
			return err
		}
		old := *c
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Symbol != nil {
			c.Symbol = strings.TrimSpace(*patch.Symbol)
		}
		if patch.ExchangeRate != nil {
			c.ExchangeRate = *patch.ExchangeRate
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		if err := tx.UpdateCurrency(ctx, c); err != nil {
			return err
		}
		out = c
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionCurrencyUpdated,
			fmt.Sprintf("code=%s rate: %g → %g active: %t → %t", c.Code, old.ExchangeRate, c.ExchangeRate, old.IsActive, c.IsActive)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) DeleteCurrency(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		c, err := tx.GetCurrency(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteCurrency(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionCurrencyDeleted, "code="+c.Code))
	})
}

func validCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
