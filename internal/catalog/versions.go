package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

type VersionInput struct {
	Product      string `json:"product" validate:"required,oneof=pos clinic"`
	Version      string `json:"version" validate:"required"`
	DownloadURL  string `json:"downloadUrl" validate:"omitempty,url"`
	ReleaseNotes string `json:"releaseNotes"`
	Mandatory    bool   `json:"mandatory"`
}

type VersionPatch struct {
	DownloadURL  *string `json:"downloadUrl" validate:"omitempty,url"`
	ReleaseNotes *string `json:"releaseNotes"`
	Mandatory    *bool   `json:"mandatory"`
}

// LatestResult answers the client's update check
type LatestResult struct {
	Latest          *models.AppVersion `json:"latest"`
	UpdateAvailable bool               `json:"updateAvailable"`
	Mandatory       bool               `json:"mandatory"`
}

func validProduct(p string) bool {
	return p == models.ProductPOS || p == models.ProductClinic
}

func (s *Service) Versions(ctx context.Context, product string) ([]models.AppVersion, error) {
	if product != "" && !validProduct(product) {
		return nil, ErrUnknownProduct
	}
	return s.store.ListVersions(ctx, product)
}

func (s *Service) CreateVersion(ctx context.Context, actor models.Actor, in VersionInput) (*models.AppVersion, error) {
	product := strings.ToLower(strings.TrimSpace(in.Product))
	if !validProduct(product) {
		return nil, ErrUnknownProduct
	}
	sv, err := semver.NewVersion(strings.TrimSpace(in.Version))
	if err != nil {
		return nil, ErrInvalidVersion
	}
	v := &models.AppVersion{
		Product:      product,
		Version:      sv.String(),
		DownloadURL:  strings.TrimSpace(in.DownloadURL),
		ReleaseNotes: in.ReleaseNotes,
		Mandatory:    in.Mandatory,
	}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateVersion(ctx, v); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionVersionCreated,
			fmt.Sprintf("product=%s version=%s mandatory=%t", v.Product, v.Version, v.Mandatory)))
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) UpdateVersion(ctx context.Context, actor models.Actor, id int64, patch VersionPatch) (*models.AppVersion, error) {
	var out *models.AppVersion
	err := s.store.WithinTx(ctx, func(tx Store) error {
		v, err := tx.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		if patch.DownloadURL != nil {
			v.DownloadURL = strings.TrimSpace(*patch.DownloadURL)
		}
		if patch.ReleaseNotes != nil {
			v.ReleaseNotes = *patch.ReleaseNotes
		}
		if patch.Mandatory != nil {
			v.Mandatory = *patch.Mandatory
		}
		if err := tx.UpdateVersion(ctx, v); err != nil {
			return err
		}
		out = v
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionVersionUpdated,
			fmt.Sprintf("product=%s version=%s mandatory=%t", v.Product, v.Version, v.Mandatory)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) DeleteVersion(ctx context.Context, actor models.Actor, id int64) error {
	return s.store.WithinTx(ctx, func(tx Store) error {
		v, err := tx.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteVersion(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionVersionDeleted,
			fmt.Sprintf("product=%s version=%s", v.Product, v.Version)))
	})
}

// Latest returns the highest release of product. When current is given the
// result also says whether it is outdated, and mandatory is set when any
// newer release is marked mandatory.
func (s *Service) Latest(ctx context.Context, product, current string) (*LatestResult, error) {
	product = strings.ToLower(strings.TrimSpace(product))
	if !validProduct(product) {
		return nil, ErrUnknownProduct
	}
	var cur *semver.Version
	if current = strings.TrimSpace(current); current != "" {
		c, err := semver.NewVersion(current)
		if err != nil {
			return nil, ErrInvalidVersion
		}
		cur = c
	}

	versions, err := s.store.ListVersions(ctx, product)
	if err != nil {
		return nil, err
	}

	res := &LatestResult{}
	var best *semver.Version
	for i := range versions {
		sv, err := semver.NewVersion(versions[i].Version)
		if err != nil {
			continue
		}
		if best == nil || sv.GreaterThan(best) {
			best = sv
			res.Latest = &versions[i]
		}
		if cur != nil && sv.GreaterThan(cur) && versions[i].Mandatory {
			res.Mandatory = true
		}
	}
	if best != nil {
		res.UpdateAvailable = cur == nil || best.GreaterThan(cur)
	}
	return res, nil
}
