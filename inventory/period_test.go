package inventory_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// HELPERS
// =============================================================================

func d(s string) *inventory.Date {
	return inventory.DatePtr(inventory.MustParseDate(s))
}

func resolved(id, asset, sku string, start, end *inventory.Date, contract inventory.Contract) inventory.ResolvedAssignment {
	return inventory.ResolvedAssignment{
		ContractAssignment: inventory.ContractAssignment{
			ID:         inventory.AssignmentID(id),
			AssetID:    inventory.AssetID(asset),
			ContractID: contract.ID,
			SKUID:      inventory.SKUID(sku),
			StartDate:  start,
			EndDate:    end,
		},
		Contract: contract,
		SKU:      inventory.ContractSKU{ID: inventory.SKUID(sku), ContractType: contract.Type, ManufacturerID: "cisco"},
	}
}

var eaContract = inventory.Contract{ID: "c-1", Number: "EA-1", Type: inventory.ContractSupportEA}

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriod_Overlaps_InclusiveEndpoints(t *testing.T) {
	// GIVEN: Two periods that touch on 2025-12-31
	a := inventory.Period{Start: d("2025-01-01"), End: d("2025-12-31")}
	b := inventory.Period{Start: d("2025-12-31"), End: d("2026-12-31")}

	// THEN: Touching endpoints count as overlap
	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))

	// AND: The next day does not
	c := inventory.Period{Start: d("2026-01-01"), End: nil}
	assert.False(t, a.Overlaps(c))
}

func TestPeriod_Overlaps_OpenEndsClamp(t *testing.T) {
	open := inventory.Period{Start: d("2020-01-01")}
	unknownStart := inventory.Period{End: d("2019-06-30")}
	later := inventory.Period{Start: d("2030-01-01"), End: d("2030-12-31")}

	assert.True(t, open.Overlaps(later), "open end extends to max date")
	assert.False(t, open.Overlaps(unknownStart))
	assert.True(t, unknownStart.Overlaps(inventory.Period{Start: d("1990-01-01"), End: d("1990-01-02")}),
		"missing start extends to min date")
}

func TestPeriod_Current(t *testing.T) {
	today := inventory.MustParseDate("2025-06-15")

	assert.True(t, inventory.Period{Start: d("2025-06-15")}.Current(today))
	assert.True(t, inventory.Period{Start: d("2025-01-01"), End: d("2025-06-15")}.Current(today))
	assert.False(t, inventory.Period{Start: d("2025-06-16")}.Current(today))
	assert.False(t, inventory.Period{Start: d("2025-01-01"), End: d("2025-06-14")}.Current(today))
	assert.False(t, inventory.Period{End: d("2026-01-01")}.Current(today), "unknown start is never current")
}

// =============================================================================
// OVERLAP VALIDATOR TESTS
// =============================================================================

func TestCheckOverlap_SameAssetSKU_Rejected(t *testing.T) {
	// GIVEN: A1 covers 2025-01-01..2025-12-31
	existing := resolved("a-1", "asset-1", "sku-1", d("2025-01-01"), d("2025-12-31"), eaContract)

	// WHEN: A2 starts on the last day of A1
	candidate := resolved("", "asset-1", "sku-1", d("2025-12-31"), d("2026-12-31"), eaContract)
	err := inventory.CheckOverlap(candidate, []inventory.ResolvedAssignment{existing})

	// THEN: Rejected, naming the conflicting assignment
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrOverlappingCoverage))
	assert.True(t, errors.Is(err, inventory.ErrValidation))
	var oe *inventory.OverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, inventory.AssignmentID("a-1"), oe.ConflictID)
	assert.Len(t, inventory.FieldErrorsOf(err), 1)
}

func TestCheckOverlap_Adjacent_Accepted(t *testing.T) {
	existing := resolved("a-1", "asset-1", "sku-1", d("2025-01-01"), d("2025-12-31"), eaContract)
	candidate := resolved("", "asset-1", "sku-1", d("2026-01-01"), nil, eaContract)

	assert.NoError(t, inventory.CheckOverlap(candidate, []inventory.ResolvedAssignment{existing}))
}

func TestCheckOverlap_OtherSKUOrAsset_Ignored(t *testing.T) {
	peers := []inventory.ResolvedAssignment{
		resolved("a-1", "asset-1", "sku-2", d("2025-01-01"), nil, eaContract),
		resolved("a-2", "asset-2", "sku-1", d("2025-01-01"), nil, eaContract),
	}
	candidate := resolved("", "asset-1", "sku-1", d("2025-01-01"), nil, eaContract)

	assert.NoError(t, inventory.CheckOverlap(candidate, peers))
}

func TestCheckOverlap_EditSkipsItself(t *testing.T) {
	// GIVEN: An assignment being edited is compared against its stored version
	stored := resolved("a-1", "asset-1", "sku-1", d("2025-01-01"), d("2025-12-31"), eaContract)
	edited := resolved("a-1", "asset-1", "sku-1", d("2025-01-01"), d("2026-06-30"), eaContract)

	assert.NoError(t, inventory.CheckOverlap(edited, []inventory.ResolvedAssignment{stored}))
}

func TestCheckOverlap_InheritsContractDates(t *testing.T) {
	// GIVEN: Neither assignment has own dates; contracts supply them
	c1 := inventory.Contract{ID: "c-1", Type: inventory.ContractSupportEA,
		StartDate: d("2025-01-01"), EndDate: d("2025-12-31")}
	c2 := inventory.Contract{ID: "c-2", Type: inventory.ContractSupportEA,
		StartDate: d("2025-06-01"), EndDate: d("2026-05-31")}
	existing := resolved("a-1", "asset-1", "sku-1", nil, nil, c1)
	candidate := resolved("", "asset-1", "sku-1", nil, nil, c2)

	// THEN: The effective (inherited) periods collide
	err := inventory.CheckOverlap(candidate, []inventory.ResolvedAssignment{existing})
	assert.ErrorIs(t, err, inventory.ErrOverlappingCoverage)
}
