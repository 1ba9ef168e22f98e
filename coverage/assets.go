package coverage

import (
	"context"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// ASSETS
// =============================================================================

// SaveAsset runs the lifecycle guard and persists the asset. The support
// aggregate is owned by reconciliation: on update, fields left empty keep
// their stored values, and a new asset starts as unknown.
func (s *Service) SaveAsset(ctx context.Context, a inventory.Asset, opts inventory.GuardOptions) (inventory.Asset, error) {
	if a.ID == "" {
		a.ID = inventory.AssetID(newID())
	}
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetAsset(ctx, a.ID)
		if err != nil && !inventory.IsNotFound(err) {
			return err
		}
		keepSupport(&a, prev)
		if err := a.Clean(prev, opts); err != nil {
			return err
		}
		return tx.SaveAsset(ctx, a)
	})
	return a, err
}

func keepSupport(a *inventory.Asset, prev *inventory.Asset) {
	if prev == nil {
		if a.SupportState == "" {
			a.SupportState = inventory.SupportUnknown
		}
		if a.SupportSource == "" {
			a.SupportSource = inventory.SourceManual
		}
		return
	}
	if a.SupportState == "" {
		a.SupportState = prev.SupportState
		a.SupportReason = prev.SupportReason
	}
	if a.SupportSource == "" {
		a.SupportSource = prev.SupportSource
	}
	if a.SupportValidatedAt == nil {
		a.SupportValidatedAt = prev.SupportValidatedAt
	}
}

// FreeAsset is called when the hardware an asset is installed as is deleted:
// the asset is unbound and marked stored. storageLocation is used when the
// asset has none, since stored assets require one.
func (s *Service) FreeAsset(ctx context.Context, id inventory.AssetID, storageLocation string) (inventory.Asset, error) {
	var out inventory.Asset
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		prev, err := tx.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		a := *prev
		a.Hardware = nil
		a.Status = inventory.AssetStored
		if a.StorageLocationID == "" {
			a.StorageLocationID = storageLocation
		}
		if err := a.Clean(prev, inventory.GuardOptions{}); err != nil {
			return err
		}
		if err := tx.SaveAsset(ctx, a); err != nil {
			return err
		}
		s.log.Info("asset marked as stored", "asset_id", id)
		out = a
		return nil
	})
	return out, err
}

// DeleteAsset removes an asset that nothing references.
func (s *Service) DeleteAsset(ctx context.Context, id inventory.AssetID) error {
	return s.store.WithTx(ctx, func(tx inventory.Store) error {
		return tx.DeleteAsset(ctx, id)
	})
}
