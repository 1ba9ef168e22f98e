package coverage

import (
	"context"
	"fmt"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// CONTRACTS, SKUS AND PROGRAMS
// =============================================================================

// ContractResult is the saved contract and the reconciliation it caused.
type ContractResult struct {
	Contract  inventory.Contract
	Reconcile Result
}

// SaveContract creates or updates a contract. Status is recomputed from the
// dates. When the dates change, every assignment that inherits them is
// re-validated (including overlap) and the affected assets are reconciled.
func (s *Service) SaveContract(ctx context.Context, c inventory.Contract) (ContractResult, error) {
	if c.ID == "" {
		c.ID = inventory.ContractID(newID())
	}
	c.RefreshStatus(s.Today())
	if err := c.Validate(); err != nil {
		return ContractResult{}, err
	}

	var out ContractResult
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetContract(ctx, c.ID)
		if err != nil && !inventory.IsNotFound(err) {
			return err
		}
		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		out.Contract = c
		if prev == nil || !contractTermsChanged(*prev, c) {
			return nil
		}

		assignments, err := tx.AssignmentsForContract(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load assignments for contract: %w", err)
		}
		assets := make([]inventory.AssetID, 0, len(assignments))
		for _, a := range assignments {
			if err := s.revalidateInherited(ctx, tx, a); err != nil {
				return err
			}
			assets = append(assets, a.AssetID)
		}
		out.Reconcile, err = s.reconcileAssets(ctx, tx, assets...)
		return err
	})
	return out, err
}

func contractTermsChanged(prev, next inventory.Contract) bool {
	return prev.Type != next.Type ||
		!inventory.SameDate(prev.StartDate, next.StartDate) ||
		!inventory.SameDate(prev.EndDate, next.EndDate)
}

// revalidateInherited re-checks an assignment after its contract changed.
// a was loaded after the contract save, so it already carries the new terms.
func (s *Service) revalidateInherited(ctx context.Context, tx inventory.Store, a inventory.ResolvedAssignment) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	if a.StartDate != nil && a.EndDate != nil {
		return nil
	}
	peers, err := tx.AssignmentsForAssetSKU(ctx, a.AssetID, a.SKUID)
	if err != nil {
		return fmt.Errorf("load peers: %w", err)
	}
	return inventory.CheckOverlap(a, peers)
}

// DeleteContract deletes a contract with its assignments and reconciles
// every asset that lost coverage.
func (s *Service) DeleteContract(ctx context.Context, id inventory.ContractID) (Result, error) {
	var out Result
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		assignments, err := tx.AssignmentsForContract(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteContract(ctx, id); err != nil {
			return err
		}
		assets := make([]inventory.AssetID, 0, len(assignments))
		for _, a := range assignments {
			assets = append(assets, a.AssetID)
		}
		s.log.Info("contract deleted", "contract_id", id, "assignments", len(assignments))
		out, err = s.reconcileAssets(ctx, tx, assets...)
		return err
	})
	return out, err
}

// SKUResult is the saved SKU and the reconciliation it caused.
type SKUResult struct {
	SKU       inventory.ContractSKU
	Reconcile Result
}

// SaveSKU creates or updates a contract SKU. When the contract type or
// manufacturer changes, every assignment using the SKU is re-validated and
// the affected assets are reconciled.
func (s *Service) SaveSKU(ctx context.Context, sku inventory.ContractSKU) (SKUResult, error) {
	if sku.ID == "" {
		sku.ID = inventory.SKUID(newID())
	}
	out := SKUResult{SKU: sku}
	if err := sku.Validate(); err != nil {
		return out, err
	}

	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetSKU(ctx, sku.ID)
		if err != nil && !inventory.IsNotFound(err) {
			return err
		}
		if err := tx.SaveSKU(ctx, sku); err != nil {
			return err
		}
		if prev == nil || (prev.ContractType == sku.ContractType && prev.ManufacturerID == sku.ManufacturerID) {
			return nil
		}

		assignments, err := tx.AssignmentsForSKU(ctx, sku.ID)
		if err != nil {
			return fmt.Errorf("load assignments for sku: %w", err)
		}
		assets := make([]inventory.AssetID, 0, len(assignments))
		for _, a := range assignments {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("assignment %s: %w", a.ID, err)
			}
			assets = append(assets, a.AssetID)
		}
		out.Reconcile, err = s.reconcileAssets(ctx, tx, assets...)
		return err
	})
	return out, err
}

// SaveProgram creates or updates a vendor program. (manufacturer,
// contract type) is unique and enforced by the store.
func (s *Service) SaveProgram(ctx context.Context, p inventory.VendorProgram) (inventory.VendorProgram, error) {
	if p.ID == "" {
		p.ID = inventory.ProgramID(newID())
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, s.store.SaveProgram(ctx, p)
}

// SaveHardwareType creates or updates a device/module/inventory item/rack type.
func (s *Service) SaveHardwareType(ctx context.Context, t inventory.HardwareType) (inventory.HardwareType, error) {
	if t.ID == "" {
		t.ID = inventory.HardwareTypeID(newID())
	}
	v := &inventory.ValidationError{Entity: "hardware type"}
	if !t.Kind.Valid() {
		v.Add("kind", "Unknown hardware kind %q.", t.Kind)
	}
	if t.Model == "" {
		v.Add("model", "Model is required.")
	}
	if err := v.OrNil(); err != nil {
		return t, err
	}
	return t, s.store.SaveHardwareType(ctx, t)
}
