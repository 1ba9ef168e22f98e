package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) *inventory.Date {
	return inventory.DatePtr(inventory.MustParseDate(s))
}

// seed stores one Cisco switch asset, an EA contract, SKU and program.
func seed(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveHardwareType(ctx, inventory.HardwareType{
		ID: "c9300", Kind: inventory.KindDevice, ManufacturerID: "cisco", Model: "C9300", PartNumber: "C9300-48P",
	}))
	require.NoError(t, s.SaveAsset(ctx, inventory.Asset{
		ID: "a1", Name: "sw-01", Status: inventory.AssetStored, StorageLocationID: "wh-1",
		DeviceTypeID: "c9300", SupportState: inventory.SupportUnknown, SupportSource: inventory.SourceManual,
	}))
	require.NoError(t, s.SaveContract(ctx, inventory.Contract{
		ID: "k1", Number: "EA-2025", Type: inventory.ContractSupportEA, Status: inventory.ContractActive,
		StartDate: d("2025-01-01"), EndDate: d("2025-12-31"),
	}))
	require.NoError(t, s.SaveSKU(ctx, inventory.ContractSKU{
		ID: "s1", SKU: "CON-EA", ManufacturerID: "cisco", ContractType: inventory.ContractSupportEA,
	}))
	require.NoError(t, s.SaveProgram(ctx, inventory.VendorProgram{
		ID: "p1", Name: "Cisco EA", Slug: "cisco-ea", ManufacturerID: "cisco", ContractType: inventory.ContractSupportEA,
	}))
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestAsset_RoundTripWithHardware(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	validated := time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)

	in := inventory.Asset{
		ID: "a1", Name: "sw-01", Serial: "FOC123", AssetTag: "T-1",
		Status: inventory.AssetUsed, Allocation: inventory.AllocationConsumed,
		DeviceTypeID: "c9300",
		Hardware:     &inventory.HardwareRef{Kind: inventory.KindDevice, ID: "dev-7", TypeID: "c9300", SiteID: "site-1"},
		WarrantyEnd:  d("2026-01-31"),
		SupportState: inventory.SupportSupported, SupportSource: inventory.SourceComputed,
		SupportValidatedAt: &validated,
	}
	require.NoError(t, s.SaveAsset(ctx, in))

	got, err := s.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, in.Hardware, got.Hardware)
	assert.Equal(t, "2026-01-31", got.WarrantyEnd.String())
	assert.Nil(t, got.WarrantyStart)
	require.NotNil(t, got.SupportValidatedAt)
	assert.True(t, validated.Equal(*got.SupportValidatedAt))
	assert.Equal(t, inventory.KindDevice, got.Kind())
}

func TestGetAsset_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAsset(context.Background(), "missing")

	assert.True(t, inventory.IsNotFound(err))
}

func TestUpdateAssetFields_TouchesOnlyNamedFields(t *testing.T) {
	// GIVEN: A stored asset
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	// WHEN: Only support_state is updated from a copy with other edits
	a, err := s.GetAsset(ctx, "a1")
	require.NoError(t, err)
	edit := *a
	edit.Name = "changed"
	edit.SupportState = inventory.SupportUnsupported
	edit.SupportReason = "should not be written"
	require.NoError(t, s.UpdateAssetFields(ctx, edit, inventory.AssetFieldSupportState))

	// THEN: Name and reason are untouched
	got, err := s.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, inventory.SupportUnsupported, got.SupportState)
	assert.Equal(t, "sw-01", got.Name)
	assert.Empty(t, got.SupportReason)
}

func TestLifecycle_FindMissingIsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := inventory.TypeRef{Kind: inventory.KindDevice, ID: "c9300"}

	none, err := s.FindLifecycle(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SaveLifecycle(ctx, inventory.HardwareLifecycle{
		Type: ref, EndOfSale: d("2025-10-30"), EndOfSupport: d("2030-10-31"), SupportBasis: inventory.BasisSecurity,
	}))
	got, err := s.FindLifecycle(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2030-10-31", got.EndOfSupport.String())
	assert.Nil(t, got.EndOfSecurity)
	assert.Equal(t, inventory.BasisSecurity, got.SupportBasis)

	require.NoError(t, s.DeleteLifecycle(ctx, ref))
	gone, err := s.FindLifecycle(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestAssignments_JoinContractAndSKU(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	require.NoError(t, s.SaveAssignment(ctx, inventory.ContractAssignment{
		ID: "as1", AssetID: "a1", ContractID: "k1", SKUID: "s1", ProgramID: "p1",
	}))

	got, err := s.GetAssignment(ctx, "as1")
	require.NoError(t, err)
	assert.Equal(t, inventory.ContractSupportEA, got.Contract.Type)
	assert.Equal(t, inventory.ManufacturerID("cisco"), got.SKU.ManufacturerID)
	assert.Nil(t, got.StartDate)
	assert.Equal(t, "2025-01-01", got.EffectiveStart().String(), "inherits the contract start")
	assert.Equal(t, inventory.ProgramID("p1"), got.ProgramID)
}

// =============================================================================
// CONSTRAINTS
// =============================================================================

func TestSaveAssignment_MissingReferenceIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	err := s.SaveAssignment(ctx, inventory.ContractAssignment{ID: "as1", AssetID: "a1", ContractID: "nope", SKUID: "s1"})

	assert.True(t, inventory.IsNotFound(err))
}

func TestDeleteAsset_ProtectedByReferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	require.NoError(t, s.SaveAssignment(ctx, inventory.ContractAssignment{ID: "as1", AssetID: "a1", ContractID: "k1", SKUID: "s1"}))

	err := s.DeleteAsset(ctx, "a1")

	assert.ErrorIs(t, err, inventory.ErrAssetProtected)
}

func TestDeleteContract_CascadesToAssignments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	require.NoError(t, s.SaveAssignment(ctx, inventory.ContractAssignment{ID: "as1", AssetID: "a1", ContractID: "k1", SKUID: "s1"}))

	require.NoError(t, s.DeleteContract(ctx, "k1"))

	all, err := s.AssignmentsForAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveContract_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	err := s.SaveContract(ctx, inventory.Contract{ID: "k2", Number: "EA-2025", Type: inventory.ContractSupportEA, Status: inventory.ContractDraft})

	assert.ErrorIs(t, err, inventory.ErrDuplicate)
}

func TestSaveProgram_PairIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	err := s.SaveProgram(ctx, inventory.VendorProgram{
		ID: "p2", Name: "Other", Slug: "other", ManufacturerID: "cisco", ContractType: inventory.ContractSupportEA,
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicate)

	found, err := s.FindProgram(ctx, "cisco", inventory.ContractWarranty)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCoverage_OneCurrentRowPerPair(t *testing.T) {
	// GIVEN: An open planned row
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	row := inventory.AssetProgramCoverage{
		ID: "c1", AssetID: "a1", ProgramID: "p1",
		Status: inventory.CoveragePlanned, Eligibility: inventory.EligibilityUnknown, Source: inventory.CoverageSourceManual,
	}
	require.NoError(t, s.SaveCoverage(ctx, row))

	// WHEN: A second open row is inserted
	second := row
	second.ID = "c2"
	err := s.SaveCoverage(ctx, second)

	// THEN: Rejected; once the first is closed the second fits
	assert.ErrorIs(t, err, inventory.ErrDuplicate)

	row.Status = inventory.CoverageTerminated
	row.Eligibility = inventory.EligibilityIneligible
	row.EffectiveEnd = d("2025-06-15")
	require.NoError(t, s.UpdateCoverageFields(ctx, row,
		inventory.CoverageFieldStatus, inventory.CoverageFieldEligibility, inventory.CoverageFieldEffectiveEnd))
	require.NoError(t, s.SaveCoverage(ctx, second))

	current, err := s.CurrentCoverage(ctx, "a1", "p1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, inventory.CoverageID("c2"), current.ID)

	terminated, err := s.CoveragesForAsset(ctx, "a1", inventory.CoverageTerminated)
	require.NoError(t, err)
	require.Len(t, terminated, 1)
	assert.Equal(t, inventory.CoverageID("c1"), terminated[0].ID)
}

func TestUpdateCoverageFields_UnknownRow(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateCoverageFields(context.Background(), inventory.AssetProgramCoverage{ID: "nope"}, inventory.CoverageFieldNotes)

	assert.True(t, inventory.IsNotFound(err))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		require.NoError(t, tx.SaveAssignment(ctx, inventory.ContractAssignment{ID: "as1", AssetID: "a1", ContractID: "k1", SKUID: "s1"}))
		// Reads inside the transaction see its writes.
		peers, err := tx.AssignmentsForAssetSKU(ctx, "a1", "s1")
		require.NoError(t, err)
		require.Len(t, peers, 1)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	all, err := s.AssignmentsForAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWithTx_ConcurrentWriterIsRetryable(t *testing.T) {
	// GIVEN: Two stores on one database file, the first holding a write transaction
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "coverage.db")
	holder, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { holder.Close() })
	other, err := sqlite.New(path, sqlite.WithBusyTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.WithTx(ctx, func(tx inventory.Store) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	// WHEN: The second store tries to write
	err = other.WithTx(ctx, func(tx inventory.Store) error {
		return tx.SaveHardwareType(ctx, inventory.HardwareType{ID: "x", Kind: inventory.KindDevice, Model: "X"})
	})
	close(release)
	require.NoError(t, <-done)

	// THEN: The conflict is reported as retryable, not as a client error
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrConcurrentModification)
	assert.True(t, inventory.IsRetryable(err))
	assert.False(t, inventory.IsClientError(err))

	// AND: Once the lock is released the write goes through
	require.NoError(t, other.WithTx(ctx, func(tx inventory.Store) error {
		return tx.SaveHardwareType(ctx, inventory.HardwareType{ID: "x", Kind: inventory.KindDevice, Model: "X"})
	}))
}

func TestAssignmentsForSKU(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	require.NoError(t, s.SaveAssignment(ctx, inventory.ContractAssignment{ID: "as1", AssetID: "a1", ContractID: "k1", SKUID: "s1"}))

	got, err := s.AssignmentsForSKU(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.AssignmentID("as1"), got[0].ID)
	assert.Equal(t, inventory.ContractSupportEA, got[0].SKU.ContractType)

	none, err := s.AssignmentsForSKU(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReset_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	require.NoError(t, s.Reset(ctx))

	assets, err := s.ListAssets(ctx)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

// =============================================================================
// SYNC RUNS
// =============================================================================

func TestSyncRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordSyncRun(ctx, sqlite.SyncRun{
		ID: "r1", Kind: "reconcile", Status: "completed", StartedAt: t0, FinishedAt: t0.Add(time.Second),
		Report: json.RawMessage(`{"assets":3}`),
	}))
	require.NoError(t, s.RecordSyncRun(ctx, sqlite.SyncRun{
		ID: "r2", Kind: "program_sync", ProgramID: "p1", DryRun: true, Status: "failed", Error: "boom",
		StartedAt: t0.Add(time.Hour), FinishedAt: t0.Add(time.Hour),
	}))

	runs, err := s.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.JSONEq(t, `{"assets":3}`, string(runs[1].Report))
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestService_ActivateAndDowngradeOnSQLite(t *testing.T) {
	// GIVEN: The coverage service over SQLite, with today pinned
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	clock := inventory.FixedClock{At: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)}
	svc := coverage.NewService(s, coverage.Options{Clock: clock})

	row, err := svc.SaveCoverage(ctx, inventory.AssetProgramCoverage{AssetID: "a1", ProgramID: "p1", Status: inventory.CoveragePlanned})
	require.NoError(t, err)

	// WHEN: Activated, then the contract is deleted
	act, err := svc.Activate(ctx, coverage.ActivateRequest{CoverageID: row.ID, ContractID: "k1", SKUID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, inventory.CoverageActive, act.Coverage.Status)

	_, err = svc.DeleteContract(ctx, "k1")
	require.NoError(t, err)

	// THEN: The row is downgraded and the asset is unsupported
	got, err := s.GetCoverage(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.CoveragePlanned, got.Status)
	assert.Equal(t, "2025-06-15", got.EffectiveEnd.String())

	a, err := s.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, inventory.SupportUnsupported, a.SupportState)
	assert.Equal(t, inventory.ReasonContractMissing, a.SupportReason)
}
