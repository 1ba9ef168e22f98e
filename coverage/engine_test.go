package coverage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
	memstore "github.com/warp/coverage-engine/inventory/store"
)

// refusingStore rejects field updates to one coverage row.
type refusingStore struct {
	*memstore.Memory
	refuse inventory.CoverageID
}

func (s refusingStore) UpdateCoverageFields(ctx context.Context, c inventory.AssetProgramCoverage, fields ...string) error {
	if c.ID == s.refuse {
		return inventory.NewFieldError("program coverage", "status", "Row is locked.")
	}
	return s.Memory.UpdateCoverageFields(ctx, c, fields...)
}

func TestReconcileAsset_RowFailureDoesNotStopThePass(t *testing.T) {
	// GIVEN: Two active rows on a1 with no assignment behind either
	f := newFixture(t)
	require.NoError(t, f.store.SaveProgram(f.ctx, inventory.VendorProgram{
		ID: "p2", Name: "Cisco Warranty", Slug: "cisco-warranty", ManufacturerID: "cisco", ContractType: inventory.ContractWarranty,
	}))
	for _, row := range []inventory.AssetProgramCoverage{
		{ID: "c1", AssetID: "a1", ProgramID: "p1"},
		{ID: "c2", AssetID: "a1", ProgramID: "p2"},
	} {
		row.Status = inventory.CoverageActive
		row.Eligibility = inventory.EligibilityEligible
		row.EffectiveStart = d("2025-01-01")
		require.NoError(t, f.store.SaveCoverage(f.ctx, row))
	}

	// WHEN: Reconciled through a store that refuses c1
	engine := coverage.NewEngine(inventory.FixedClock{At: today}, nil)
	res, err := engine.ReconcileAsset(f.ctx, refusingStore{Memory: f.store, refuse: "c1"}, "a1")
	require.NoError(t, err)

	// THEN: c1 is reported and left alone
	require.Len(t, res.Failed, 1)
	assert.Equal(t, inventory.CoverageID("c1"), res.Failed[0].CoverageID)
	assert.ErrorIs(t, res.Failed[0].Err, inventory.ErrValidation)
	assert.Equal(t, inventory.CoverageActive, f.coverageRow(t, "c1").Status)

	// AND: c2 is still downgraded
	assert.Equal(t, []inventory.CoverageID{"c2"}, res.Downgraded)
	assert.Equal(t, inventory.CoveragePlanned, f.coverageRow(t, "c2").Status)

	// AND: The support aggregate is written in the same pass
	assert.True(t, res.SupportChanged)
	a := f.asset(t, "a1")
	assert.Equal(t, inventory.SupportUnsupported, a.SupportState)
	assert.Equal(t, inventory.ReasonContractMissing, a.SupportReason)
}

func TestDowngrade(t *testing.T) {
	day := inventory.MustParseDate("2025-06-15")
	row := inventory.AssetProgramCoverage{
		Status: inventory.CoverageActive, Eligibility: inventory.EligibilityEligible,
	}

	// No start: the end stays unset
	got := coverage.Downgrade(row, day)
	assert.Equal(t, inventory.CoveragePlanned, got.Status)
	assert.Equal(t, inventory.EligibilityUnknown, got.Eligibility)
	assert.Nil(t, got.EffectiveEnd)

	// Started: closed today
	row.EffectiveStart = d("2025-01-01")
	assert.Equal(t, "2025-06-15", coverage.Downgrade(row, day).EffectiveEnd.String())

	// Starts later: closed at its start
	row.EffectiveStart = d("2025-09-01")
	assert.Equal(t, "2025-09-01", coverage.Downgrade(row, day).EffectiveEnd.String())

	// Already closed: untouched
	row.EffectiveEnd = d("2025-12-31")
	assert.Equal(t, "2025-12-31", coverage.Downgrade(row, day).EffectiveEnd.String())
}
