package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// STATUS / ELIGIBILITY MATRIX TESTS
// =============================================================================

func TestValidateStatusEligibility_Matrix(t *testing.T) {
	tests := []struct {
		status      inventory.CoverageStatus
		eligibility inventory.Eligibility
		ok          bool
	}{
		{inventory.CoveragePlanned, inventory.EligibilityEligible, true},
		{inventory.CoveragePlanned, inventory.EligibilityUnknown, true},
		{inventory.CoveragePlanned, inventory.EligibilityIneligible, false},
		{inventory.CoverageActive, inventory.EligibilityEligible, true},
		{inventory.CoverageActive, inventory.EligibilityUnknown, false},
		{inventory.CoverageExcluded, inventory.EligibilityUnknown, true},
		{inventory.CoverageExcluded, inventory.EligibilityIneligible, false},
		{inventory.CoverageTerminated, inventory.EligibilityIneligible, true},
		{inventory.CoverageTerminated, inventory.EligibilityEligible, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.eligibility), func(t *testing.T) {
			err := inventory.ValidateStatusEligibility(tt.status, tt.eligibility)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, inventory.ErrValidation)
			}
		})
	}
}

func TestValidateStatusEligibility_TerminatedMessage(t *testing.T) {
	err := inventory.ValidateStatusEligibility(inventory.CoverageTerminated, inventory.EligibilityEligible)
	fields := inventory.FieldErrorsOf(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "eligibility", fields[0].Field)
	assert.Contains(t, fields[0].Message, "cannot be re-added")
}

// =============================================================================
// COVERAGE VALIDATION TESTS
// =============================================================================

func ciscoEA() inventory.VendorProgram {
	return inventory.VendorProgram{ID: "p-1", Name: "Cisco EA", Slug: "cisco-ea",
		ManufacturerID: "cisco", ContractType: inventory.ContractSupportEA}
}

func TestValidateCoverage_ActiveRequiresMatchingAssignment(t *testing.T) {
	c := inventory.AssetProgramCoverage{AssetID: "asset-1", ProgramID: "p-1",
		Status: inventory.CoverageActive, Eligibility: inventory.EligibilityEligible}

	err := inventory.ValidateCoverage(c, inventory.CoverageFacts{Program: ciscoEA(), AssetManufacturer: "cisco"})
	require.Error(t, err)
	assert.Equal(t, "status", inventory.FieldErrorsOf(err)[0].Field)

	err = inventory.ValidateCoverage(c, inventory.CoverageFacts{
		Program: ciscoEA(), AssetManufacturer: "cisco", HasCurrentMatchingAssignment: true,
	})
	assert.NoError(t, err)
}

func TestValidateCoverage_ManufacturerRules(t *testing.T) {
	planned := inventory.AssetProgramCoverage{AssetID: "asset-1", ProgramID: "p-1",
		Status: inventory.CoveragePlanned, Eligibility: inventory.EligibilityUnknown}

	// Mismatch is rejected for any status
	err := inventory.ValidateCoverage(planned, inventory.CoverageFacts{Program: ciscoEA(), AssetManufacturer: "juniper"})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	// Undeterminable manufacturer is fine while planned
	assert.NoError(t, inventory.ValidateCoverage(planned, inventory.CoverageFacts{Program: ciscoEA()}))

	// ...but not for active
	active := planned
	active.Status, active.Eligibility = inventory.CoverageActive, inventory.EligibilityEligible
	err = inventory.ValidateCoverage(active, inventory.CoverageFacts{Program: ciscoEA(), HasCurrentMatchingAssignment: true})
	require.Error(t, err)
	assert.Equal(t, "asset", inventory.FieldErrorsOf(err)[0].Field)
}

func TestValidateCoverage_TerminatedRequiresEnd(t *testing.T) {
	c := inventory.AssetProgramCoverage{AssetID: "asset-1", ProgramID: "p-1",
		Status: inventory.CoverageTerminated, Eligibility: inventory.EligibilityIneligible}

	err := inventory.ValidateCoverage(c, inventory.CoverageFacts{Program: ciscoEA(), AssetManufacturer: "cisco"})
	require.Error(t, err)
	assert.Equal(t, "effective_end", inventory.FieldErrorsOf(err)[0].Field)

	c.EffectiveEnd = d("2025-06-01")
	assert.NoError(t, inventory.ValidateCoverage(c, inventory.CoverageFacts{Program: ciscoEA(), AssetManufacturer: "cisco"}))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, inventory.CanTransition(inventory.CoveragePlanned, inventory.CoverageActive))
	assert.True(t, inventory.CanTransition(inventory.CoverageActive, inventory.CoveragePlanned))
	assert.True(t, inventory.CanTransition(inventory.CoverageExcluded, inventory.CoverageTerminated))
	assert.False(t, inventory.CanTransition(inventory.CoverageExcluded, inventory.CoverageActive))
	assert.False(t, inventory.CanTransition(inventory.CoverageTerminated, inventory.CoveragePlanned))
	assert.False(t, inventory.CanTransition(inventory.CoverageTerminated, inventory.CoverageActive))
}

func TestChangedCoverageFields(t *testing.T) {
	before := inventory.AssetProgramCoverage{Status: inventory.CoverageActive, Eligibility: inventory.EligibilityEligible}
	after := before
	after.Status = inventory.CoveragePlanned
	after.EffectiveEnd = d("2025-06-01")

	assert.Equal(t, []string{inventory.CoverageFieldStatus, inventory.CoverageFieldEffectiveEnd},
		inventory.ChangedCoverageFields(before, after))
	assert.Empty(t, inventory.ChangedCoverageFields(before, before))
}

func TestCanTransitionManually(t *testing.T) {
	assert.True(t, inventory.CanTransitionManually(inventory.CoverageActive, inventory.CoverageTerminated))
	assert.True(t, inventory.CanTransitionManually(inventory.CoveragePlanned, inventory.CoverageExcluded))
	assert.True(t, inventory.CanTransitionManually(inventory.CoverageExcluded, inventory.CoveragePlanned))
	assert.False(t, inventory.CanTransitionManually(inventory.CoverageActive, inventory.CoveragePlanned))
	assert.False(t, inventory.CanTransitionManually(inventory.CoverageActive, inventory.CoverageExcluded))
	assert.False(t, inventory.CanTransitionManually(inventory.CoveragePlanned, inventory.CoverageActive))
}
