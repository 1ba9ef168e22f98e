/*
programs.go - Program coverage rows: manual saves and explicit transitions

PURPOSE:
  Program coverage rows are decision records. They change in four ways:
  - SaveCoverage:  manual create/edit (never into active)
  - Transition:    explicit planned <-> excluded, or -> terminated
  - Activate:      planned -> active (activate.go)
  - Reconcile:     active -> planned when coverage lapses (engine.go)

  Every path builds the complete row first and validates it against the
  status matrix before anything is written.
*/
package coverage

import (
	"context"

	"github.com/warp/coverage-engine/inventory"
)

// coverageFacts gathers the facts ValidateCoverage needs for row c.
func (s *Service) coverageFacts(ctx context.Context, tx inventory.Store, c inventory.AssetProgramCoverage) (inventory.CoverageFacts, error) {
	program, err := tx.GetProgram(ctx, c.ProgramID)
	if err != nil {
		if inventory.IsNotFound(err) {
			return inventory.CoverageFacts{}, inventory.NewFieldError("program coverage", "program", "Program %q does not exist.", c.ProgramID)
		}
		return inventory.CoverageFacts{}, err
	}
	asset, err := tx.GetAsset(ctx, c.AssetID)
	if err != nil {
		if inventory.IsNotFound(err) {
			return inventory.CoverageFacts{}, inventory.NewFieldError("program coverage", "asset", "Asset %q does not exist.", c.AssetID)
		}
		return inventory.CoverageFacts{}, err
	}
	manufacturer, err := AssetManufacturer(ctx, tx, *asset)
	if err != nil {
		return inventory.CoverageFacts{}, err
	}
	facts := inventory.CoverageFacts{Program: *program, AssetManufacturer: manufacturer}
	if c.Status == inventory.CoverageActive {
		assignments, err := tx.AssignmentsForAsset(ctx, c.AssetID)
		if err != nil {
			return facts, err
		}
		facts.HasCurrentMatchingAssignment = HasCurrentMatch(assignments, *program, s.Today())
	}
	return facts, nil
}

// SaveCoverage creates or edits a coverage row by hand. A row can only
// become active through Activate.
func (s *Service) SaveCoverage(ctx context.Context, c inventory.AssetProgramCoverage) (inventory.AssetProgramCoverage, error) {
	if c.ID == "" {
		c.ID = inventory.CoverageID(newID())
	}
	if c.Source == "" {
		c.Source = inventory.CoverageSourceManual
	}
	if c.Eligibility == "" {
		c.Eligibility = inventory.EligibilityUnknown
	}
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetCoverage(ctx, c.ID)
		if err != nil && !inventory.IsNotFound(err) {
			return err
		}
		from := inventory.CoverageStatus("")
		if prev != nil {
			from = prev.Status
		}
		if c.Status == inventory.CoverageActive && from != inventory.CoverageActive {
			return &inventory.TransitionError{From: from, To: c.Status}
		}
		if prev != nil && !inventory.CanTransition(prev.Status, c.Status) {
			return &inventory.TransitionError{From: prev.Status, To: c.Status}
		}

		facts, err := s.coverageFacts(ctx, tx, c)
		if err != nil {
			return err
		}
		if err := inventory.ValidateCoverage(c, facts); err != nil {
			return err
		}
		return tx.SaveCoverage(ctx, c)
	})
	return c, err
}

// TransitionRequest asks for an explicit status move.
type TransitionRequest struct {
	CoverageID inventory.CoverageID
	To         inventory.CoverageStatus
	// EffectiveEnd closes the row; terminated falls back to the stored end, then today.
	EffectiveEnd *inventory.Date
	Reason       string
}

// Transition moves a row to planned, excluded or terminated. An active row
// can only be terminated. Terminated forces eligibility to ineligible and
// requires an end date.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (inventory.AssetProgramCoverage, error) {
	var out inventory.AssetProgramCoverage
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		cov, err := tx.GetCoverage(ctx, req.CoverageID)
		if err != nil {
			return err
		}
		if !inventory.CanTransitionManually(cov.Status, req.To) {
			return &inventory.TransitionError{From: cov.Status, To: req.To}
		}

		after := *cov
		after.Status = req.To
		if req.Reason != "" {
			after.DecisionReason = trimReason(req.Reason)
		}
		if req.EffectiveEnd != nil {
			after.EffectiveEnd = req.EffectiveEnd
		}
		if forced, ok := inventory.ForcedEligibility(req.To); ok {
			after.Eligibility = forced
		} else if after.Eligibility == inventory.EligibilityIneligible {
			after.Eligibility = inventory.EligibilityUnknown
		}
		if req.To == inventory.CoverageTerminated && after.EffectiveEnd == nil {
			after.EffectiveEnd = inventory.DatePtr(s.Today())
		}

		facts, err := s.coverageFacts(ctx, tx, after)
		if err != nil {
			return err
		}
		if err := inventory.ValidateCoverage(after, facts); err != nil {
			return err
		}
		if fields := inventory.ChangedCoverageFields(*cov, after); len(fields) > 0 {
			if err := tx.UpdateCoverageFields(ctx, after, fields...); err != nil {
				return err
			}
		}
		s.log.Info("coverage transitioned", "coverage_id", cov.ID, "from", cov.Status, "to", after.Status)
		out = after
		return nil
	})
	return out, err
}

const maxReasonLength = 100

// trimReason caps a decision reason at maxReasonLength characters.
func trimReason(reason string) string {
	r := []rune(reason)
	if len(r) > maxReasonLength {
		return string(r[:maxReasonLength])
	}
	return reason
}
