package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
)

var (
	c9300Ref = inventory.TypeRef{Kind: inventory.KindDevice, ID: "c9300"}
	c2960Ref = inventory.TypeRef{Kind: inventory.KindDevice, ID: "c2960"}
)

// withSyncData adds a past-EOS switch model and lifecycle records, plus a
// Juniper asset the Cisco program must ignore.
func withSyncData(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.store.SaveHardwareType(f.ctx, inventory.HardwareType{
		ID: "c2960", Kind: inventory.KindDevice, ManufacturerID: "cisco", Model: "C2960", PartNumber: "WS-C2960X-48TS",
	}))
	require.NoError(t, f.store.SaveLifecycle(f.ctx, inventory.HardwareLifecycle{
		Type: c9300Ref, EndOfSale: d("2025-10-30"), EndOfSupport: d("2030-10-31"),
	}))
	require.NoError(t, f.store.SaveLifecycle(f.ctx, inventory.HardwareLifecycle{
		Type: c2960Ref, EndOfSale: d("2019-10-30"), EndOfSupport: d("2024-10-31"),
	}))
	require.NoError(t, f.store.SaveAsset(f.ctx, inventory.Asset{
		ID: "old", Status: inventory.AssetStored, StorageLocationID: "wh-1", DeviceTypeID: "c2960",
		SupportState: inventory.SupportUnknown, SupportSource: inventory.SourceManual,
	}))
	require.NoError(t, f.store.SaveAsset(f.ctx, inventory.Asset{
		ID: "jun", Status: inventory.AssetStored, StorageLocationID: "wh-1", DeviceTypeID: "ex4300",
		SupportState: inventory.SupportUnknown, SupportSource: inventory.SourceManual,
	}))
}

func currentOrLatest(t *testing.T, f *fixture, asset inventory.AssetID) inventory.AssetProgramCoverage {
	t.Helper()
	rows, err := f.store.CoveragesForAsset(f.ctx, asset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestSyncProgram_CreatesAndEvaluates(t *testing.T) {
	// GIVEN: One supported and one past-EOS Cisco switch
	f := newFixture(t)
	withSyncData(t, f)

	// WHEN: Synced for real
	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{UpdateExisting: true})
	require.NoError(t, err)

	// THEN: Only Cisco assets are considered; both get a row
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Created)
	assert.Zero(t, report.Failed)

	ok := currentOrLatest(t, f, "a1")
	assert.Equal(t, inventory.CoveragePlanned, ok.Status)
	assert.Equal(t, inventory.EligibilityEligible, ok.Eligibility)
	assert.Equal(t, "Supported until 2030-10-31", ok.DecisionReason)
	assert.Equal(t, inventory.CoverageSourceSync, ok.Source)
	assert.NotNil(t, ok.LastSynced)

	// AND: The past-EOS switch is terminated at its end of support
	old := currentOrLatest(t, f, "old")
	assert.Equal(t, inventory.CoverageTerminated, old.Status)
	assert.Equal(t, inventory.EligibilityIneligible, old.Eligibility)
	require.NotNil(t, old.EffectiveEnd)
	assert.Equal(t, "2024-10-31", old.EffectiveEnd.String())

	rows, err := f.store.CoveragesForAsset(f.ctx, "jun")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSyncProgram_SecondRunUnchanged(t *testing.T) {
	// GIVEN: A completed sync
	f := newFixture(t)
	withSyncData(t, f)
	_, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{UpdateExisting: true})
	require.NoError(t, err)

	// WHEN: Synced again
	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{UpdateExisting: true, Verbose: true})
	require.NoError(t, err)

	// THEN: Nothing changes and terminated rows are not re-added
	assert.Equal(t, 2, report.Unchanged)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Updated)
	assert.Len(t, report.Lines, 2)
}

func TestSyncProgram_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	withSyncData(t, f)

	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{DryRun: true, UpdateExisting: true, Verbose: true})

	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Created)
	require.NotEmpty(t, report.Lines)
	assert.Contains(t, report.Lines[0], "(DRY RUN)")
	for _, id := range []inventory.AssetID{"a1", "old"} {
		rows, err := f.store.CoveragesForAsset(f.ctx, id)
		require.NoError(t, err)
		assert.Empty(t, rows, "asset %s", id)
	}
}

func TestSyncProgram_UpdatesExistingRow(t *testing.T) {
	// GIVEN: A manual planned row with an operator reason
	f := newFixture(t)
	withSyncData(t, f)
	row := f.planned(t)

	// WHEN: Synced
	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{UpdateExisting: true})
	require.NoError(t, err)

	// THEN: The row is updated in place
	assert.Equal(t, 1, report.Updated)
	got := f.coverageRow(t, row.ID)
	assert.Equal(t, inventory.EligibilityEligible, got.Eligibility)
	assert.Equal(t, inventory.CoverageSourceSync, got.Source)
}

func TestSyncProgram_SkipsExistingWithoutUpdateFlag(t *testing.T) {
	f := newFixture(t)
	withSyncData(t, f)
	row := f.planned(t)

	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged, "a1 is left alone")
	assert.Equal(t, 1, report.Created, "old still gets a row")
	got := f.coverageRow(t, row.ID)
	assert.Equal(t, inventory.EligibilityUnknown, got.Eligibility)
	assert.Equal(t, inventory.CoverageSourceManual, got.Source)
}

func TestSyncProgram_PastEOSTerminatesActiveRow(t *testing.T) {
	// GIVEN: Active coverage on a switch whose support has now ended
	f := newFixture(t)
	withSyncData(t, f)
	act := f.active(t)
	require.NoError(t, f.store.SaveLifecycle(f.ctx, inventory.HardwareLifecycle{
		Type: c9300Ref, EndOfSale: d("2020-01-01"), EndOfSupport: d("2025-05-31"),
	}))

	// WHEN: Synced
	report, err := f.svc.SyncProgram(f.ctx, "p1", coverage.SyncOptions{UpdateExisting: true})
	require.NoError(t, err)

	// THEN: The active row is terminated at end of support
	assert.Equal(t, 1, report.Updated)
	got := f.coverageRow(t, act.Coverage.ID)
	assert.Equal(t, inventory.CoverageTerminated, got.Status)
	assert.Equal(t, inventory.EligibilityIneligible, got.Eligibility)
	assert.Equal(t, "2025-05-31", got.EffectiveEnd.String())
}

func TestSyncProgram_UnknownProgram(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SyncProgram(f.ctx, "nope", coverage.SyncOptions{})

	assert.True(t, inventory.IsNotFound(err))
}
