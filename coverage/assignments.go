/*
assignments.go - Contract assignment write path

PURPOSE:
  Create, update and delete ContractAssignments. Each call:
  1. resolves the contract and SKU (effective dates need them)
  2. derives the program from (SKU manufacturer, contract type) if unset
  3. validates the assignment on its own
  4. re-reads the (asset, sku) peers INSIDE the transaction and runs the
     overlap check against them
  5. persists
  6. reconciles the affected asset(s), including the previous asset when an
     edit moves the assignment

  Steps 4 and 5 share a transaction; the store serialises writers, so two
  concurrent creates cannot both pass step 4.
*/
package coverage

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/coverage-engine/inventory"
)

// AssignmentResult is the saved assignment and the reconciliation it caused.
type AssignmentResult struct {
	Assignment inventory.ResolvedAssignment
	Reconcile  Result
}

// CreateAssignment validates and inserts a new assignment.
func (s *Service) CreateAssignment(ctx context.Context, a inventory.ContractAssignment) (AssignmentResult, error) {
	if a.ID == "" {
		a.ID = inventory.AssignmentID(newID())
	}
	var out AssignmentResult
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		var err error
		out, err = s.saveAssignment(ctx, tx, a, "")
		return err
	})
	return out, err
}

// UpdateAssignment validates and replaces an existing assignment.
func (s *Service) UpdateAssignment(ctx context.Context, a inventory.ContractAssignment) (AssignmentResult, error) {
	var out AssignmentResult
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetAssignment(ctx, a.ID)
		if err != nil {
			return err
		}
		out, err = s.saveAssignment(ctx, tx, a, prev.AssetID)
		return err
	})
	return out, err
}

// DeleteAssignment removes an assignment and reconciles its asset.
func (s *Service) DeleteAssignment(ctx context.Context, id inventory.AssignmentID) (Result, error) {
	var out Result
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, id); err != nil {
			return err
		}
		out, err = s.engine.ReconcileAsset(ctx, tx, prev.AssetID)
		return err
	})
	return out, err
}

// saveAssignment is the shared body of create/update. prevAsset is the
// asset the stored version pointed at ("" on create).
func (s *Service) saveAssignment(ctx context.Context, tx inventory.Store, a inventory.ContractAssignment, prevAsset inventory.AssetID) (AssignmentResult, error) {
	var out AssignmentResult

	resolved, err := s.resolveAssignment(ctx, tx, a)
	if err != nil {
		return out, err
	}
	if err := resolved.Validate(); err != nil {
		return out, err
	}
	if err := s.deriveProgram(ctx, tx, &resolved); err != nil {
		return out, err
	}

	peers, err := tx.AssignmentsForAssetSKU(ctx, resolved.AssetID, resolved.SKUID)
	if err != nil {
		return out, fmt.Errorf("load peers: %w", err)
	}
	if err := inventory.CheckOverlap(resolved, peers); err != nil {
		return out, err
	}

	if err := tx.SaveAssignment(ctx, resolved.ContractAssignment); err != nil {
		return out, err
	}
	s.log.Info("contract assignment saved",
		"assignment_id", resolved.ID, "asset_id", resolved.AssetID, "sku_id", resolved.SKUID,
		"period", resolved.Period().String())

	out.Assignment = resolved
	out.Reconcile, err = s.reconcileAssets(ctx, tx, resolved.AssetID, prevAsset)
	return out, err
}

// resolveAssignment loads the contract and SKU. Missing references become
// field errors rather than not-found errors; they are part of the input.
func (s *Service) resolveAssignment(ctx context.Context, tx inventory.Store, a inventory.ContractAssignment) (inventory.ResolvedAssignment, error) {
	resolved := inventory.ResolvedAssignment{ContractAssignment: a}
	v := &inventory.ValidationError{Entity: "contract assignment"}

	if a.AssetID != "" {
		if _, err := tx.GetAsset(ctx, a.AssetID); err != nil {
			if !errors.Is(err, inventory.ErrNotFound) {
				return resolved, err
			}
			v.Add("asset", "Asset %q does not exist.", a.AssetID)
		}
	}
	if a.ContractID != "" {
		c, err := tx.GetContract(ctx, a.ContractID)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			v.Add("contract", "Contract %q does not exist.", a.ContractID)
		case err != nil:
			return resolved, err
		default:
			resolved.Contract = *c
		}
	}
	if a.SKUID != "" {
		sku, err := tx.GetSKU(ctx, a.SKUID)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			v.Add("sku", "SKU %q does not exist.", a.SKUID)
		case err != nil:
			return resolved, err
		default:
			resolved.SKU = *sku
		}
	}
	return resolved, v.OrNil()
}

// deriveProgram fills ProgramID from (SKU manufacturer, contract type) when
// unset. A given program must agree with the contract type.
func (s *Service) deriveProgram(ctx context.Context, tx inventory.Store, a *inventory.ResolvedAssignment) error {
	if a.ProgramID != "" {
		p, err := tx.GetProgram(ctx, a.ProgramID)
		if errors.Is(err, inventory.ErrNotFound) {
			return inventory.NewFieldError("contract assignment", "program", "Program %q does not exist.", a.ProgramID)
		}
		if err != nil {
			return err
		}
		if p.ContractType != a.Contract.Type {
			return inventory.NewFieldError("contract assignment", "program",
				"Program contract type (%s) does not match contract type (%s).", p.ContractType, a.Contract.Type)
		}
		return nil
	}
	p, err := tx.FindProgram(ctx, a.SKU.ManufacturerID, a.Contract.Type)
	if err != nil {
		return err
	}
	if p != nil {
		a.ProgramID = p.ID
	}
	return nil
}
