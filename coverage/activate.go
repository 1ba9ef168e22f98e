/*
activate.go - The planned -> active activation action

PURPOSE:
  activate(coverage, contract, sku, start, end) creates the contract
  assignment that backs a coverage row and then flips the row to active.

CHECKS (all before any write):
  - the row exists, is planned and is not ineligible
  - a closed row is only reopened when no other row is current for the
    same (asset, program)
  - the asset's manufacturer can be determined and matches the program
  - contract type matches the program's contract type
  - SKU manufacturer matches the program's manufacturer (when set)
  - SKU contract type matches the contract type

  The assignment then goes through the normal write path (overlap check
  included) and the row is validated as active against the fresh
  assignment set. Any failure rolls back both writes.
*/
package coverage

import (
	"context"

	"github.com/warp/coverage-engine/inventory"
)

// ActivateRequest names the contract coverage that activates a row.
type ActivateRequest struct {
	CoverageID inventory.CoverageID
	ContractID inventory.ContractID
	SKUID      inventory.SKUID
	StartDate  *inventory.Date
	EndDate    *inventory.Date
}

// ActivateResult is the activated row and the assignment created for it.
type ActivateResult struct {
	Coverage   inventory.AssetProgramCoverage
	Assignment inventory.ResolvedAssignment
	Reconcile  Result
}

func (s *Service) Activate(ctx context.Context, req ActivateRequest) (ActivateResult, error) {
	var out ActivateResult
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		cov, err := tx.GetCoverage(ctx, req.CoverageID)
		if err != nil {
			return err
		}
		if cov.Eligibility == inventory.EligibilityIneligible {
			return inventory.NewFieldError("program coverage", "eligibility", "Ineligible coverage cannot be activated.")
		}
		if cov.Status != inventory.CoveragePlanned {
			return &inventory.TransitionError{From: cov.Status, To: inventory.CoverageActive}
		}

		if cov.EffectiveEnd != nil {
			current, err := tx.CurrentCoverage(ctx, cov.AssetID, cov.ProgramID)
			if err != nil {
				return err
			}
			if current != nil && current.ID != cov.ID {
				return inventory.NewFieldError("program coverage", "effective_end",
					"Coverage %s is already current for this asset and program; activating would reopen a closed row.", current.ID)
			}
		}

		facts, err := s.coverageFacts(ctx, tx, *cov)
		if err != nil {
			return err
		}
		program := facts.Program

		assignment := inventory.ContractAssignment{
			ID:         inventory.AssignmentID(newID()),
			AssetID:    cov.AssetID,
			ContractID: req.ContractID,
			SKUID:      req.SKUID,
			ProgramID:  program.ID,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
		}
		resolved, err := s.resolveAssignment(ctx, tx, assignment)
		if err != nil {
			return err
		}
		if err := checkActivation(program, facts.AssetManufacturer, resolved); err != nil {
			return err
		}

		saved, err := s.saveAssignment(ctx, tx, assignment, "")
		if err != nil {
			return err
		}

		after := *cov
		after.Status = inventory.CoverageActive
		after.Eligibility = inventory.EligibilityEligible
		if after.EffectiveStart == nil {
			after.EffectiveStart = saved.Assignment.EffectiveStart()
		}
		after.EffectiveEnd = nil

		assignments, err := tx.AssignmentsForAsset(ctx, cov.AssetID)
		if err != nil {
			return err
		}
		facts.HasCurrentMatchingAssignment = HasCurrentMatch(assignments, program, s.Today())
		if err := inventory.ValidateCoverage(after, facts); err != nil {
			return err
		}
		if fields := inventory.ChangedCoverageFields(*cov, after); len(fields) > 0 {
			if err := tx.UpdateCoverageFields(ctx, after, fields...); err != nil {
				return err
			}
		}

		reconcile, err := s.engine.ReconcileAsset(ctx, tx, cov.AssetID)
		if err != nil {
			return err
		}
		saved.Reconcile.merge(reconcile)

		s.log.Info("coverage activated", "coverage_id", cov.ID, "asset_id", cov.AssetID,
			"contract_id", req.ContractID, "sku_id", req.SKUID)
		out = ActivateResult{Coverage: after, Assignment: saved.Assignment, Reconcile: saved.Reconcile}
		return nil
	})
	return out, err
}

// checkActivation applies the program/contract/SKU consistency rules.
func checkActivation(program inventory.VendorProgram, assetMfr inventory.ManufacturerID, a inventory.ResolvedAssignment) error {
	v := &inventory.ValidationError{Entity: "activation"}
	if program.ManufacturerID != "" {
		switch {
		case assetMfr == "":
			v.Add("asset", "Cannot determine asset manufacturer.")
		case assetMfr != program.ManufacturerID:
			v.Add("asset", "Asset manufacturer (%s) does not match program manufacturer (%s).", assetMfr, program.ManufacturerID)
		}
	}
	if a.Contract.Type != program.ContractType {
		v.Add("contract", "Contract type (%s) does not match program contract type (%s).", a.Contract.Type, program.ContractType)
	}
	if program.ManufacturerID != "" && a.SKU.ManufacturerID != program.ManufacturerID {
		v.Add("sku", "SKU manufacturer (%s) does not match program manufacturer (%s).", a.SKU.ManufacturerID, program.ManufacturerID)
	}
	if a.SKU.ContractType != a.Contract.Type {
		v.Add("sku", "SKU type (%s) does not match contract type (%s).", a.SKU.ContractType, a.Contract.Type)
	}
	return v.OrNil()
}
