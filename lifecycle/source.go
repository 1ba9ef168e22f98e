package lifecycle

import (
	"context"
	"errors"

	"github.com/warp/coverage-engine/inventory"
)

// StoreSource reads hardware facts from an inventory store.
type StoreSource struct {
	Store inventory.HardwareStore
}

func (s StoreSource) HardwareType(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareType, error) {
	t, err := s.Store.GetHardwareType(ctx, ref)
	if errors.Is(err, inventory.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func (s StoreSource) Lifecycle(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareLifecycle, error) {
	// Only device and module types carry lifecycle records.
	if ref.Kind != inventory.KindDevice && ref.Kind != inventory.KindModule {
		return nil, nil
	}
	return s.Store.FindLifecycle(ctx, ref)
}

// StaticSource serves fixed maps. Useful for tests and dry runs.
type StaticSource struct {
	Types      map[inventory.TypeRef]inventory.HardwareType
	Lifecycles map[inventory.TypeRef]inventory.HardwareLifecycle
}

func (s StaticSource) HardwareType(_ context.Context, ref inventory.TypeRef) (*inventory.HardwareType, error) {
	t, ok := s.Types[ref]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s StaticSource) Lifecycle(_ context.Context, ref inventory.TypeRef) (*inventory.HardwareLifecycle, error) {
	l, ok := s.Lifecycles[ref]
	if !ok {
		return nil, nil
	}
	return &l, nil
}
