package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
)

func TestActivate_CreatesAssignmentAndActivates(t *testing.T) {
	// GIVEN: A planned row
	f := newFixture(t)
	row := f.planned(t)

	// WHEN: Activated against the EA contract
	res, err := f.svc.Activate(f.ctx, coverage.ActivateRequest{CoverageID: row.ID, ContractID: "k1", SKUID: "s1"})
	require.NoError(t, err)

	// THEN: The row is active/eligible from the assignment's effective start
	got := f.coverageRow(t, row.ID)
	assert.Equal(t, inventory.CoverageActive, got.Status)
	assert.Equal(t, inventory.EligibilityEligible, got.Eligibility)
	require.NotNil(t, got.EffectiveStart)
	assert.Equal(t, "2025-01-01", got.EffectiveStart.String())
	assert.Nil(t, got.EffectiveEnd)

	// AND: The assignment carries the program
	assert.Equal(t, inventory.ProgramID("p1"), res.Assignment.ProgramID)
	all, err := f.store.AssignmentsForAsset(f.ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, inventory.SupportSupported, f.asset(t, "a1").SupportState)
}

func TestActivate_ExplicitStartWins(t *testing.T) {
	f := newFixture(t)
	row := f.planned(t)

	_, err := f.svc.Activate(f.ctx, coverage.ActivateRequest{
		CoverageID: row.ID, ContractID: "k1", SKUID: "s1", StartDate: d("2025-03-01"),
	})

	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", f.coverageRow(t, row.ID).EffectiveStart.String())
}

func TestActivate_ContractTypeMismatchWritesNothing(t *testing.T) {
	// GIVEN: A warranty contract and SKU, and a planned EA row
	f := newFixture(t)
	require.NoError(t, f.store.SaveContract(f.ctx, inventory.Contract{
		ID: "k2", Number: "W-1", Type: inventory.ContractWarranty, StartDate: d("2025-01-01"), EndDate: d("2027-12-31"),
	}))
	require.NoError(t, f.store.SaveSKU(f.ctx, inventory.ContractSKU{
		ID: "s2", SKU: "WARRANTY", ManufacturerID: "cisco", ContractType: inventory.ContractWarranty,
	}))
	row := f.planned(t)

	// WHEN: Activated against the warranty
	_, err := f.svc.Activate(f.ctx, coverage.ActivateRequest{CoverageID: row.ID, ContractID: "k2", SKUID: "s2"})

	// THEN: Refused on the contract field with no writes
	require.Error(t, err)
	assert.True(t, inventory.IsClientError(err))
	fields := inventory.FieldErrorsOf(err)
	require.NotEmpty(t, fields)
	assert.Equal(t, "contract", fields[0].Field)

	all, err := f.store.AssignmentsForAsset(f.ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, inventory.CoveragePlanned, f.coverageRow(t, row.ID).Status)
}

func TestActivate_ExpiredAssignmentRollsBack(t *testing.T) {
	// GIVEN: A planned row
	f := newFixture(t)
	row := f.planned(t)

	// WHEN: Activated with an assignment that already ended
	_, err := f.svc.Activate(f.ctx, coverage.ActivateRequest{
		CoverageID: row.ID, ContractID: "k1", SKUID: "s1", StartDate: d("2025-01-01"), EndDate: d("2025-03-31"),
	})

	// THEN: The row cannot be active, and the assignment insert is rolled back
	require.Error(t, err)
	all, err := f.store.AssignmentsForAsset(f.ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, inventory.CoveragePlanned, f.coverageRow(t, row.ID).Status)
}

func TestActivate_RequiresPlanned(t *testing.T) {
	f := newFixture(t)
	row := f.planned(t)
	_, err := f.svc.Transition(f.ctx, coverage.TransitionRequest{CoverageID: row.ID, To: inventory.CoverageExcluded})
	require.NoError(t, err)

	_, err = f.svc.Activate(f.ctx, coverage.ActivateRequest{CoverageID: row.ID, ContractID: "k1", SKUID: "s1"})

	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
}

func TestActivate_UnknownManufacturerRefused(t *testing.T) {
	// GIVEN: A planned row on an asset whose hardware type is gone
	f := newFixture(t)
	require.NoError(t, f.store.SaveAsset(f.ctx, inventory.Asset{
		ID: "a9", Status: inventory.AssetStored, StorageLocationID: "wh-1", DeviceTypeID: "missing",
		SupportState: inventory.SupportUnknown, SupportSource: inventory.SourceManual,
	}))
	row, err := f.svc.SaveCoverage(f.ctx, inventory.AssetProgramCoverage{
		AssetID: "a9", ProgramID: "p1", Status: inventory.CoveragePlanned,
	})
	require.NoError(t, err)

	// WHEN: Activated
	_, err = f.svc.Activate(f.ctx, coverage.ActivateRequest{CoverageID: row.ID, ContractID: "k1", SKUID: "s1"})

	// THEN: Refused on the asset field
	require.Error(t, err)
	fields := inventory.FieldErrorsOf(err)
	require.NotEmpty(t, fields)
	assert.Equal(t, "asset", fields[0].Field)
}

func TestActivate_ClosedRowWithCurrentSiblingRefused(t *testing.T) {
	// GIVEN: A closed planned row and a current planned row for (a1, p1)
	f := newFixture(t)
	require.NoError(t, f.store.SaveCoverage(f.ctx, inventory.AssetProgramCoverage{
		ID: "old", AssetID: "a1", ProgramID: "p1",
		Status: inventory.CoveragePlanned, Eligibility: inventory.EligibilityUnknown,
		EffectiveStart: d("2024-01-01"), EffectiveEnd: d("2024-12-31"),
	}))
	f.planned(t)

	// WHEN: The closed row is activated
	_, err := f.svc.Activate(f.ctx, coverage.ActivateRequest{CoverageID: "old", ContractID: "k1", SKUID: "s1"})

	// THEN: Refused on effective_end, with no assignment created
	require.Error(t, err)
	fields := inventory.FieldErrorsOf(err)
	require.NotEmpty(t, fields)
	assert.Equal(t, "effective_end", fields[0].Field)

	all, err := f.store.AssignmentsForAsset(f.ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, all)
}
