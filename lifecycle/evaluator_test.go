package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/lifecycle"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	today   = inventory.MustParseDate("2025-06-15")
	clock   = inventory.FixedClock{At: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
	c9300   = inventory.TypeRef{Kind: inventory.KindDevice, ID: "dt-c9300"}
	c9300Hw = inventory.HardwareType{ID: "dt-c9300", Kind: inventory.KindDevice, ManufacturerID: "cisco", PartNumber: "C9300-48P"}
)

func deviceAsset() inventory.Asset {
	return inventory.Asset{ID: "asset-1", Status: inventory.AssetUsed, DeviceTypeID: c9300.ID}
}

func evaluatorWith(t inventory.HardwareType, l *inventory.HardwareLifecycle, cfg lifecycle.Config) *lifecycle.Evaluator {
	src := lifecycle.StaticSource{
		Types:      map[inventory.TypeRef]inventory.HardwareType{t.Ref(): t},
		Lifecycles: map[inventory.TypeRef]inventory.HardwareLifecycle{},
	}
	if l != nil {
		src.Lifecycles[l.Type] = *l
	}
	return lifecycle.NewEvaluator(src, cfg, clock)
}

func lifecycleEOS(eos inventory.Date) *inventory.HardwareLifecycle {
	return &inventory.HardwareLifecycle{Type: c9300, EndOfSupport: inventory.DatePtr(eos)}
}

// =============================================================================
// POLICY TESTS
// =============================================================================

func TestEvaluate_NoHardwareType_Unknown(t *testing.T) {
	e := evaluatorWith(c9300Hw, nil, lifecycle.Config{})
	v, err := e.Evaluate(context.Background(), inventory.Asset{ID: "asset-1"})

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityUnknown, v.Eligibility)
	assert.Contains(t, v.Reason, "cannot evaluate")
}

func TestEvaluate_ExcludedType_AlwaysIneligible(t *testing.T) {
	// GIVEN: An excluded type whose support runs for years
	hw := c9300Hw
	hw.Excluded = true
	hw.ExclusionReason = "Lab only"
	e := evaluatorWith(hw, lifecycleEOS(today.AddYears(5)), lifecycle.Config{})

	// WHEN: Evaluated
	v, err := e.Evaluate(context.Background(), deviceAsset())

	// THEN: Exclusion wins over lifecycle dates
	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityIneligible, v.Eligibility)
	assert.Equal(t, "Device type excluded: Lab only", v.Reason)
	assert.Nil(t, v.EndOfSupport)
}

func TestEvaluate_ExcludedType_GenericReason(t *testing.T) {
	hw := c9300Hw
	hw.Excluded = true
	v, err := evaluatorWith(hw, nil, lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, "Device type excluded: excluded by vendor", v.Reason)
}

func TestEvaluate_NoLifecycle_AssumedSupported(t *testing.T) {
	v, err := evaluatorWith(c9300Hw, nil, lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityEligible, v.Eligibility)
	assert.Contains(t, v.Reason, "assumed supported")
}

func TestEvaluate_MissingEndDate_AssumedSupported(t *testing.T) {
	l := &inventory.HardwareLifecycle{Type: c9300, EndOfSale: inventory.DatePtr(today)}
	v, err := evaluatorWith(c9300Hw, l, lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityEligible, v.Eligibility)
	assert.Contains(t, v.Reason, "missing end of support")
}

func TestEvaluate_EOSYesterday_Ineligible(t *testing.T) {
	eos := today.AddDays(-1)
	v, err := evaluatorWith(c9300Hw, lifecycleEOS(eos), lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityIneligible, v.Eligibility)
	assert.Equal(t, "Past End of Support (EOS: 2025-06-14)", v.Reason)
	require.NotNil(t, v.EndOfSupport)
	assert.True(t, v.EndOfSupport.Equal(eos))
}

func TestEvaluate_EOSToday_Ineligible(t *testing.T) {
	v, err := evaluatorWith(c9300Hw, lifecycleEOS(today), lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityIneligible, v.Eligibility)
}

func TestEvaluate_EOSTomorrow_Eligible(t *testing.T) {
	v, err := evaluatorWith(c9300Hw, lifecycleEOS(today.AddDays(1)), lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())

	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityEligible, v.Eligibility)
	assert.Equal(t, "Supported until 2025-06-16", v.Reason)
}

func TestEvaluate_SecurityBasis_FallsBackToEOSWhenConfigured(t *testing.T) {
	// GIVEN: Security basis but only end_of_support is known (and already passed)
	l := lifecycleEOS(today.AddDays(-10))
	l.SupportBasis = inventory.BasisSecurity

	// WHEN: Fallback disabled, the basis date is missing
	v, err := evaluatorWith(c9300Hw, l, lifecycle.Config{}).Evaluate(context.Background(), deviceAsset())
	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityEligible, v.Eligibility)

	// WHEN: Fallback enabled, end_of_support stands in
	v, err = evaluatorWith(c9300Hw, l, lifecycle.Config{UseEOSForMissingData: true}).Evaluate(context.Background(), deviceAsset())
	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityIneligible, v.Eligibility)
}
