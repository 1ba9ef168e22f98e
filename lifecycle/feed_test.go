package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/inventory"
	memstore "github.com/warp/coverage-engine/inventory/store"
	"github.com/warp/coverage-engine/lifecycle"
)

const sampleFeed = `
manufacturer: cisco
records:
  - part_number: C9300-48P
    end_of_sale: "2025-10-30"
    end_of_support: "2030-10-31"
    notice_url: https://vendor.example/eol/c9300
  - part_number: C3850-24T
    end_of_sale: "2020-01-01"
    end_of_support: "2025-01-31"
    excluded: true
    exclusion_reason: Legacy platform
  - part_number: UNKNOWN-PID
    end_of_support: "2030-01-01"
`

func seededStore(t *testing.T) *memstore.Memory {
	t.Helper()
	ctx := context.Background()
	m := memstore.NewMemory()
	require.NoError(t, m.SaveHardwareType(ctx, c9300Hw))
	require.NoError(t, m.SaveHardwareType(ctx, inventory.HardwareType{
		ID: "dt-c3850", Kind: inventory.KindDevice, ManufacturerID: "cisco", PartNumber: "C3850-24T",
	}))
	require.NoError(t, m.SaveAsset(ctx, deviceAsset()))
	return m
}

func TestParseFeed_RejectsBadDate(t *testing.T) {
	_, err := lifecycle.ParseFeed([]byte(`records: [{part_number: X, end_of_support: "31/12/2030"}]`))
	assert.Error(t, err)
}

func TestImport_OnlyActiveTypes(t *testing.T) {
	// GIVEN: C9300 has an asset, C3850 has none
	ctx := context.Background()
	m := seededStore(t)
	feed, err := lifecycle.ParseFeed([]byte(sampleFeed))
	require.NoError(t, err)

	// WHEN: Imported with the default flags
	im := lifecycle.NewImporter(m, lifecycle.DefaultConfig(), nil)
	report, err := im.Import(ctx, feed)
	require.NoError(t, err)

	// THEN: Only the active type gets a record; unknown PIDs are skipped
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.TypesExcluded)

	l, err := m.FindLifecycle(ctx, c9300)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "2030-10-31", l.EndOfSupport.String())
	assert.Equal(t, "2030-10-31", l.EndOfSecurity.String(), "security filled from end of support")

	none, err := m.FindLifecycle(ctx, inventory.TypeRef{Kind: inventory.KindDevice, ID: "dt-c3850"})
	require.NoError(t, err)
	assert.Nil(t, none)

	excluded, err := m.GetHardwareType(ctx, inventory.TypeRef{Kind: inventory.KindDevice, ID: "dt-c3850"})
	require.NoError(t, err)
	assert.True(t, excluded.Excluded)
	assert.Equal(t, "Legacy platform", excluded.ExclusionReason)
}

func TestImport_SecondRunUnchanged(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t)
	feed, err := lifecycle.ParseFeed([]byte(sampleFeed))
	require.NoError(t, err)
	im := lifecycle.NewImporter(m, lifecycle.DefaultConfig(), nil)

	_, err = im.Import(ctx, feed)
	require.NoError(t, err)
	report, err := im.Import(ctx, feed)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
}

func TestImport_FeedsEvaluator(t *testing.T) {
	// GIVEN: The imported C3850 record is excluded; the C9300 is supported until 2030
	ctx := context.Background()
	m := seededStore(t)
	feed, err := lifecycle.ParseFeed([]byte(sampleFeed))
	require.NoError(t, err)
	_, err = lifecycle.NewImporter(m, lifecycle.DefaultConfig(), nil).Import(ctx, feed)
	require.NoError(t, err)

	e := lifecycle.NewEvaluator(lifecycle.StoreSource{Store: m}, lifecycle.DefaultConfig(), clock)
	v, err := e.Evaluate(ctx, deviceAsset())
	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityEligible, v.Eligibility)
	assert.Equal(t, "Supported until 2030-10-31", v.Reason)

	legacy := inventory.Asset{ID: "asset-2", DeviceTypeID: "dt-c3850"}
	v, err = e.Evaluate(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, inventory.EligibilityIneligible, v.Eligibility)
}
