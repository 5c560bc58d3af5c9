package license

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

func TestValidatePlanFeatures(t *testing.T) {
	assert.NoError(t, ValidatePlanFeatures(models.PlanFeatures{"pos": true, "reports": false}))

	err := ValidatePlanFeatures(models.PlanFeatures{"pos": true, "teleport": true, "flying": true})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.EqualError(t, err, "unknown plan feature: flying, teleport")
}

func TestValidatePlanLimits(t *testing.T) {
	assert.NoError(t, ValidatePlanLimits(models.PlanLimits{"max_users": 5}))
	assert.Error(t, ValidatePlanLimits(models.PlanLimits{"max_users": -1}))
	assert.Error(t, ValidatePlanLimits(models.PlanLimits{"bandwidth": 1}))
}

func TestMergePlanFeaturesKeepsOmittedKeys(t *testing.T) {
	base := models.PlanFeatures{"pos": true, "reports": true}
	merged := MergePlanFeatures(base, models.PlanFeatures{"reports": false, "ai": true})

	want := models.PlanFeatures{"pos": true, "reports": false, "ai": true}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged features mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, base["reports"], "base must not be modified")
}

func TestMergePlanLimits(t *testing.T) {
	merged := MergePlanLimits(models.PlanLimits{"max_users": 3}, models.PlanLimits{"storage_mb": 2048})
	assert.Equal(t, models.PlanLimits{"max_users": 3, "storage_mb": 2048}, merged)
}

func TestRenewalAmount(t *testing.T) {
	plan := &models.Plan{PriceUSD: 120, DurationMonths: 12}
	assert.InDelta(t, 30.0, RenewalAmount(plan, 3), 1e-9)
	assert.Equal(t, 0.0, RenewalAmount(&models.Plan{PriceUSD: 120}, 3))
	assert.Equal(t, 0.0, RenewalAmount(nil, 3))
}
