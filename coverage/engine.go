/*
Package coverage keeps contract assignments, program coverage rows and the
asset support aggregate consistent with each other.

PURPOSE:
  Every write that can change an asset's coverage (assignment create, edit
  or delete; contract date edit or delete; activation; sync) goes through
  Service, which validates, persists and then calls Engine.ReconcileAsset
  inside the same transaction. There are no hidden hooks: the call graph is
  the one you read here.

RECONCILIATION (per asset):
  1. Load the asset's coverage rows with status=active.
  2. For each, look for a current assignment matching the row's program
     (contract type, and SKU manufacturer when the program has one).
  3. No match: downgrade to planned/unknown and close an open row at today
     (never before its start). Only the status matrix is checked and only
     the changed fields are written.
  4. Recompute the asset support aggregate from ANY current assignment,
     regardless of program. excluded is sticky.

FAILURE ISOLATION:
  A validation failure on one coverage row is recorded in Result.Failed and
  the remaining rows are still processed. Store errors abort the pass and
  the caller's transaction rolls everything back.

IDEMPOTENCE:
  A second pass with no data change writes nothing (Result.Writes == 0).
*/
package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/logger"
)

// =============================================================================
// RESULT
// =============================================================================

// RowFailure is a coverage row whose update was refused.
type RowFailure struct {
	CoverageID inventory.CoverageID
	Err        error
}

// Result summarises one reconciliation pass.
type Result struct {
	AssetID        inventory.AssetID
	Downgraded     []inventory.CoverageID
	Failed         []RowFailure
	SupportChanged bool
	Writes         int
}

func (r *Result) merge(other Result) {
	r.Downgraded = append(r.Downgraded, other.Downgraded...)
	r.Failed = append(r.Failed, other.Failed...)
	r.SupportChanged = r.SupportChanged || other.SupportChanged
	r.Writes += other.Writes
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	clock inventory.Clock
	log   *logger.Logger
}

func NewEngine(clock inventory.Clock, log *logger.Logger) *Engine {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	return &Engine{clock: clock, log: logger.OrNop(log)}
}

// ReconcileAsset re-derives coverage status and the support aggregate for
// one asset. tx must be the transaction of the triggering write.
func (e *Engine) ReconcileAsset(ctx context.Context, tx inventory.Store, assetID inventory.AssetID) (Result, error) {
	result := Result{AssetID: assetID}
	today := inventory.Today(e.clock)

	asset, err := tx.GetAsset(ctx, assetID)
	if err != nil {
		return result, err
	}
	assignments, err := tx.AssignmentsForAsset(ctx, assetID)
	if err != nil {
		return result, fmt.Errorf("load assignments: %w", err)
	}

	active, err := tx.CoveragesForAsset(ctx, assetID, inventory.CoverageActive)
	if err != nil {
		return result, fmt.Errorf("load active coverage: %w", err)
	}
	for _, cov := range active {
		if err := e.reconcileCoverage(ctx, tx, cov, assignments, today, &result); err != nil {
			return result, err
		}
	}

	if err := e.refreshSupport(ctx, tx, *asset, assignments, today, &result); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) reconcileCoverage(
	ctx context.Context,
	tx inventory.Store,
	cov inventory.AssetProgramCoverage,
	assignments []inventory.ResolvedAssignment,
	today inventory.Date,
	result *Result,
) error {
	program, err := tx.GetProgram(ctx, cov.ProgramID)
	if err != nil {
		return fmt.Errorf("load program %s: %w", cov.ProgramID, err)
	}
	if HasCurrentMatch(assignments, *program, today) {
		return nil
	}

	after := Downgrade(cov, today)
	if err := inventory.ValidateStatusEligibility(after.Status, after.Eligibility); err != nil {
		e.log.Warn("coverage downgrade refused", "asset_id", cov.AssetID, "coverage_id", cov.ID, "error", err)
		result.Failed = append(result.Failed, RowFailure{CoverageID: cov.ID, Err: err})
		return nil
	}

	fields := inventory.ChangedCoverageFields(cov, after)
	if len(fields) == 0 {
		return nil
	}
	if err := tx.UpdateCoverageFields(ctx, after, fields...); err != nil {
		if inventory.IsClientError(err) {
			result.Failed = append(result.Failed, RowFailure{CoverageID: cov.ID, Err: err})
			return nil
		}
		return fmt.Errorf("downgrade coverage %s: %w", cov.ID, err)
	}
	e.log.Info("coverage downgraded", "asset_id", cov.AssetID, "coverage_id", cov.ID, "program_id", cov.ProgramID)
	result.Downgraded = append(result.Downgraded, cov.ID)
	result.Writes++
	return nil
}

// Downgrade returns cov moved to planned/unknown. An open row is closed at
// today, or at its start when the start is still in the future.
func Downgrade(cov inventory.AssetProgramCoverage, today inventory.Date) inventory.AssetProgramCoverage {
	after := cov
	after.Status = inventory.CoveragePlanned
	after.Eligibility = inventory.EligibilityUnknown
	if after.EffectiveStart != nil && after.EffectiveEnd == nil {
		end := today
		if end.Before(*after.EffectiveStart) {
			end = *after.EffectiveStart
		}
		after.EffectiveEnd = inventory.DatePtr(end)
	}
	return after
}

// refreshSupport recomputes the asset-wide support aggregate.
func (e *Engine) refreshSupport(
	ctx context.Context,
	tx inventory.Store,
	asset inventory.Asset,
	assignments []inventory.ResolvedAssignment,
	today inventory.Date,
	result *Result,
) error {
	state, reason := ComputeSupport(asset, assignments, today)

	var fields []string
	if asset.SupportState != state {
		fields = append(fields, inventory.AssetFieldSupportState)
	}
	if asset.SupportReason != reason {
		fields = append(fields, inventory.AssetFieldSupportReason)
	}
	if asset.SupportSource != inventory.SourceComputed {
		fields = append(fields, inventory.AssetFieldSupportSource)
	}
	if len(fields) == 0 {
		return nil
	}

	asset.SupportState = state
	asset.SupportReason = reason
	asset.SupportSource = inventory.SourceComputed
	asset.SupportValidatedAt = stamp(e.clock)
	fields = append(fields, inventory.AssetFieldSupportValidatedAt)

	if err := tx.UpdateAssetFields(ctx, asset, fields...); err != nil {
		return fmt.Errorf("update support state for asset %s: %w", asset.ID, err)
	}
	e.log.Debug("asset support refreshed", "asset_id", asset.ID, "support_state", state, "support_reason", reason)
	result.SupportChanged = true
	result.Writes++
	return nil
}

// =============================================================================
// SHARED RULES
// =============================================================================

// ComputeSupport derives the support aggregate. Any current assignment makes
// the asset supported. Otherwise excluded sticks, and everything else is
// unsupported, keeping a reason already given.
func ComputeSupport(asset inventory.Asset, assignments []inventory.ResolvedAssignment, today inventory.Date) (inventory.SupportState, string) {
	for _, a := range assignments {
		if a.IsCurrent(today) {
			return inventory.SupportSupported, ""
		}
	}
	if asset.SupportState == inventory.SupportExcluded {
		return inventory.SupportExcluded, asset.SupportReason
	}
	if asset.SupportReason != "" {
		return inventory.SupportUnsupported, asset.SupportReason
	}
	return inventory.SupportUnsupported, inventory.ReasonContractMissing
}

// HasCurrentMatch reports whether any assignment is current today and
// matches the program's contract type and manufacturer.
func HasCurrentMatch(assignments []inventory.ResolvedAssignment, program inventory.VendorProgram, today inventory.Date) bool {
	for _, a := range assignments {
		if a.IsCurrent(today) && a.Matches(program.ContractType, program.ManufacturerID) {
			return true
		}
	}
	return false
}

// AssetManufacturer resolves the manufacturer through the asset's hardware
// type. An unresolvable manufacturer is "" rather than an error.
func AssetManufacturer(ctx context.Context, tx inventory.HardwareStore, asset inventory.Asset) (inventory.ManufacturerID, error) {
	ref := asset.TypeRef()
	if ref.IsZero() {
		return "", nil
	}
	t, err := tx.GetHardwareType(ctx, ref)
	if errors.Is(err, inventory.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load hardware type %s: %w", ref, err)
	}
	return t.ManufacturerID, nil
}

// stamp returns the current instant as a pointer, in UTC.
func stamp(clock inventory.Clock) *time.Time {
	now := clock.Now().UTC()
	return &now
}
