/*
sync.go - Batch program sync

PURPOSE:
  SyncProgram makes sure every matching asset has a current coverage row in
  a program and that the row reflects the eligibility evaluator's verdict.

FLOW (per asset, each in its own transaction):
  1. find the current row; create planned/unknown (source=sync) if missing.
     An asset whose latest row is terminated is not re-added.
  2. skip existing rows unless UpdateExisting
  3. evaluate; copy eligibility and reason (max 100 chars), source=sync
  4. an ineligible verdict terminates the row:
     effective_end = existing end, else end of support, else today
  5. validate against the matrix; a refused row is counted as failed and
     only that asset's update is skipped
  6. persist the changed fields plus last_synced, then reconcile the asset

  DryRun runs the same path and rolls every transaction back.

MATCHING ASSETS:
  hardware kind in Kinds (default: device) and, when the program names a
  manufacturer, hardware type manufacturer equal to it.
*/
package coverage

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/lifecycle"
)

// DefaultLogLimit caps verbose per-asset lines.
const DefaultLogLimit = 200

type SyncOptions struct {
	DryRun         bool
	UpdateExisting bool
	Verbose        bool
	LogLimit       int
	Kinds          []inventory.HardwareKind
}

// DefaultSyncOptions mirrors a safe operator run: dry run, update existing.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{DryRun: true, UpdateExisting: true, LogLimit: DefaultLogLimit}
}

type SyncFailure struct {
	AssetID inventory.AssetID `json:"asset_id"`
	Error   string            `json:"error"`
}

// SyncReport has per-asset outcome counts. Each asset lands in exactly one
// of Created, Updated, Unchanged or Failed.
type SyncReport struct {
	ProgramID inventory.ProgramID `json:"program_id"`
	DryRun    bool                `json:"dry_run"`
	Total     int                 `json:"total"`
	Created   int                 `json:"created"`
	Updated   int                 `json:"updated"`
	Unchanged int                 `json:"unchanged"`
	Failed    int                 `json:"failed"`
	Failures  []SyncFailure       `json:"failures,omitempty"`
	Lines     []string            `json:"lines,omitempty"`
}

type syncAction string

const (
	actionCreate   syncAction = "CREATE"
	actionUpdate   syncAction = "UPDATE"
	actionNoChange syncAction = "NOCHANGE"
	actionSkip     syncAction = "SKIP"
	actionFail     syncAction = "FAIL"
)

// errDryRun rolls back a dry-run transaction after the work is done.
var errDryRun = errors.New("dry run")

func (s *Service) SyncProgram(ctx context.Context, programID inventory.ProgramID, opts SyncOptions) (SyncReport, error) {
	report := SyncReport{ProgramID: programID, DryRun: opts.DryRun}
	if opts.LogLimit <= 0 {
		opts.LogLimit = DefaultLogLimit
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = []inventory.HardwareKind{inventory.KindDevice}
	}

	program, err := s.store.GetProgram(ctx, programID)
	if err != nil {
		return report, err
	}
	assets, err := s.matchingAssets(ctx, *program, opts.Kinds)
	if err != nil {
		return report, err
	}
	report.Total = len(assets)
	s.log.Info("program sync started", "program_id", programID, "assets", len(assets), "dry_run", opts.DryRun)

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		action, detail, err := s.syncAsset(ctx, *program, asset, opts)
		switch {
		case err != nil:
			action = actionFail
			detail = err.Error()
			report.Failed++
			report.Failures = append(report.Failures, SyncFailure{AssetID: asset.ID, Error: err.Error()})
			s.log.Warn("program sync failed for asset", "program_id", programID, "asset_id", asset.ID, "error", err)
		case action == actionCreate:
			report.Created++
		case action == actionUpdate:
			report.Updated++
		default:
			report.Unchanged++
		}
		if opts.Verbose && len(report.Lines) < opts.LogLimit {
			line := fmt.Sprintf("[%s] asset=%s %s", action, asset.ID, detail)
			if opts.DryRun {
				line += " (DRY RUN)"
			}
			report.Lines = append(report.Lines, line)
		}
	}

	s.log.Info("program sync done", "program_id", programID,
		"created", report.Created, "updated", report.Updated,
		"unchanged", report.Unchanged, "failed", report.Failed, "dry_run", opts.DryRun)
	return report, nil
}

func (s *Service) matchingAssets(ctx context.Context, program inventory.VendorProgram, kinds []inventory.HardwareKind) ([]inventory.Asset, error) {
	all, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	types, err := s.store.ListHardwareTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hardware types: %w", err)
	}
	manufacturers := make(map[inventory.TypeRef]inventory.ManufacturerID, len(types))
	for _, t := range types {
		manufacturers[t.Ref()] = t.ManufacturerID
	}
	wanted := make(map[inventory.HardwareKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	var result []inventory.Asset
	for _, a := range all {
		ref := a.TypeRef()
		if !wanted[ref.Kind] {
			continue
		}
		if program.ManufacturerID != "" && manufacturers[ref] != program.ManufacturerID {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// syncAsset processes one asset in its own transaction. A validation
// failure is returned as err; the created row (if any) is kept.
func (s *Service) syncAsset(ctx context.Context, program inventory.VendorProgram, asset inventory.Asset, opts SyncOptions) (syncAction, string, error) {
	// Evaluated before the transaction: the evaluator reads through the
	// store itself, not through tx.
	verdict, err := s.evaluator.Evaluate(ctx, asset)
	if err != nil {
		return actionFail, "", err
	}

	var (
		action  syncAction
		detail  string
		refused error
	)
	err = s.store.WithTx(ctx, func(tx inventory.Store) error {
		action, detail, refused = actionNoChange, "", nil

		cov, err := tx.CurrentCoverage(ctx, asset.ID, program.ID)
		if err != nil {
			return err
		}
		created := false
		if cov == nil {
			terminated, err := hasTerminatedRow(ctx, tx, asset.ID, program.ID)
			if err != nil {
				return err
			}
			if terminated {
				action, detail = actionSkip, "terminated, not re-added"
				return nil
			}
			cov = &inventory.AssetProgramCoverage{
				ID:          inventory.CoverageID(newID()),
				AssetID:     asset.ID,
				ProgramID:   program.ID,
				Status:      inventory.CoveragePlanned,
				Eligibility: inventory.EligibilityUnknown,
				Source:      inventory.CoverageSourceSync,
				LastSynced:  stamp(s.clock),
			}
			if err := tx.SaveCoverage(ctx, *cov); err != nil {
				return err
			}
			created = true
			action = actionCreate
		}

		if !created && !opts.UpdateExisting {
			action, detail = actionSkip, fmt.Sprintf("elig=%s status=%s", cov.Eligibility, cov.Status)
			return s.finishSync(opts)
		}

		after := applyVerdict(*cov, verdict, s.Today())
		detail = fmt.Sprintf("elig: %s->%s status: %s->%s end: %s->%s reason=%q",
			cov.Eligibility, after.Eligibility, cov.Status, after.Status,
			dateText(cov.EffectiveEnd), dateText(after.EffectiveEnd), after.DecisionReason)

		fields := inventory.ChangedCoverageFields(*cov, after)
		if len(fields) == 0 {
			return s.finishSync(opts)
		}

		facts, err := s.coverageFacts(ctx, tx, after)
		if err != nil {
			return err
		}
		if err := inventory.ValidateCoverage(after, facts); err != nil {
			refused = err
			return s.finishSync(opts)
		}

		after.LastSynced = stamp(s.clock)
		fields = append(fields, inventory.CoverageFieldLastSynced)
		if err := tx.UpdateCoverageFields(ctx, after, fields...); err != nil {
			return err
		}
		if !created {
			action = actionUpdate
		}
		if _, err := s.engine.ReconcileAsset(ctx, tx, asset.ID); err != nil {
			return err
		}
		return s.finishSync(opts)
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	if err == nil && refused != nil {
		return actionFail, detail, refused
	}
	return action, detail, err
}

// finishSync ends a sync transaction, rolling it back on a dry run.
func (s *Service) finishSync(opts SyncOptions) error {
	if opts.DryRun {
		return errDryRun
	}
	return nil
}

// applyVerdict returns cov updated with the evaluator's verdict.
func applyVerdict(cov inventory.AssetProgramCoverage, v lifecycle.Verdict, today inventory.Date) inventory.AssetProgramCoverage {
	after := cov
	after.Eligibility = v.Eligibility
	after.DecisionReason = trimReason(v.Reason)
	after.Source = inventory.CoverageSourceSync

	if v.Eligibility == inventory.EligibilityIneligible && after.Status != inventory.CoverageTerminated {
		after.Status = inventory.CoverageTerminated
		if after.EffectiveEnd == nil {
			after.EffectiveEnd = terminationDate(after.EffectiveStart, v.EndOfSupport, today)
		}
	}
	return after
}

// terminationDate picks the end of support when it does not precede the
// row's start, otherwise today (never before the start).
func terminationDate(start, eos *inventory.Date, today inventory.Date) *inventory.Date {
	if eos != nil && (start == nil || !eos.Before(*start)) {
		return eos
	}
	if start != nil && today.Before(*start) {
		return start
	}
	return inventory.DatePtr(today)
}

func hasTerminatedRow(ctx context.Context, tx inventory.Store, assetID inventory.AssetID, programID inventory.ProgramID) (bool, error) {
	rows, err := tx.CoveragesForAsset(ctx, assetID, inventory.CoverageTerminated)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.ProgramID == programID {
			return true, nil
		}
	}
	return false, nil
}

func dateText(d *inventory.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
