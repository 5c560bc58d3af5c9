package license

import (
	"fmt"
	"sort"
	"strings"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

// PlanFeatureKeys is the closed set of capability names a plan may grant
var PlanFeatureKeys = map[string]struct{}{
	"pos":              {},
	"clinic":           {},
	"inventory":        {},
	"reports":          {},
	"multi_branch":     {},
	"patients":         {},
	"appointments":     {},
	"orthodontics":     {},
	"xray":             {},
	"ai":               {},
	"cloud_backup":     {},
	"priority_support": {},
}

// PlanLimitKeys is the closed set of quota names a plan may carry
var PlanLimitKeys = map[string]struct{}{
	"max_users":    {},
	"max_branches": {},
	"max_products": {},
	"max_patients": {},
	"storage_mb":   {},
}

// ValidatePlanFeatures rejects keys outside PlanFeatureKeys
func ValidatePlanFeatures(f models.PlanFeatures) error {
	if unknown := unknownKeys(f, PlanFeatureKeys); len(unknown) > 0 {
		return apperr.Validation(fmt.Sprintf("unknown plan feature: %s", strings.Join(unknown, ", ")))
	}
	return nil
}

// ValidatePlanLimits rejects unknown keys and negative quotas
func ValidatePlanLimits(l models.PlanLimits) error {
	if unknown := unknownKeys(l, PlanLimitKeys); len(unknown) > 0 {
		return apperr.Validation(fmt.Sprintf("unknown plan limit: %s", strings.Join(unknown, ", ")))
	}
	for k, v := range l {
		if v < 0 {
			return apperr.Validation(fmt.Sprintf("plan limit %s must not be negative", k))
		}
	}
	return nil
}

// MergePlanFeatures overlays patch onto base key by key. base is not modified.
func MergePlanFeatures(base, patch models.PlanFeatures) models.PlanFeatures {
	out := make(models.PlanFeatures, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// MergePlanLimits overlays patch onto base key by key. base is not modified.
func MergePlanLimits(base, patch models.PlanLimits) models.PlanLimits {
	out := make(models.PlanLimits, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func unknownKeys[V any](m map[string]V, allowed map[string]struct{}) []string {
	var out []string
	for k := range m {
		if _, ok := allowed[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// RenewalAmount pro-rates the plan's base price linearly over months
func RenewalAmount(plan *models.Plan, months int) float64 {
	if plan == nil || plan.DurationMonths <= 0 {
		return 0
	}
	return plan.PriceUSD / float64(plan.DurationMonths) * float64(months)
}
