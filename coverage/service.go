package coverage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/lifecycle"
	"github.com/warp/coverage-engine/logger"
)

// =============================================================================
// SERVICE - The write path for every coverage-relevant record
// =============================================================================

// Service validates, persists and reconciles. Each public method runs in a
// single store transaction.
type Service struct {
	store     inventory.TxStore
	engine    *Engine
	evaluator *lifecycle.Evaluator
	clock     inventory.Clock
	log       *logger.Logger
}

type Options struct {
	Clock     inventory.Clock
	Logger    *logger.Logger
	Evaluator *lifecycle.Evaluator // defaults to a store-backed evaluator
	Lifecycle lifecycle.Config
}

func NewService(store inventory.TxStore, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	log := logger.OrNop(opts.Logger)
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = lifecycle.NewEvaluator(lifecycle.StoreSource{Store: store}, opts.Lifecycle, clock)
	}
	return &Service{
		store:     store,
		engine:    NewEngine(clock, log),
		evaluator: evaluator,
		clock:     clock,
		log:       log,
	}
}

func (s *Service) Store() inventory.TxStore { return s.store }
func (s *Service) Evaluator() *lifecycle.Evaluator { return s.evaluator }

// Today is the service clock's calendar day.
func (s *Service) Today() inventory.Date {
	return inventory.Today(s.clock)
}

func newID() string {
	return uuid.NewString()
}

// Reconcile runs the engine for one asset in its own transaction.
func (s *Service) Reconcile(ctx context.Context, assetID inventory.AssetID) (Result, error) {
	var result Result
	err := s.store.WithTx(ctx, func(tx inventory.Store) error {
		var err error
		result, err = s.engine.ReconcileAsset(ctx, tx, assetID)
		return err
	})
	return result, err
}

// ReconcileSummary counts the outcome of ReconcileAll.
type ReconcileSummary struct {
	Assets     int `json:"assets"`
	Downgraded int `json:"downgraded"`
	Changed    int `json:"support_changed"`
	RowsFailed int `json:"rows_failed"`
	Failed     int `json:"failed"`
}

// ReconcileAll reconciles every asset, each in its own transaction, so one
// asset's failure does not block the others. Time passing alone can expire
// an assignment, so this is what the scheduler runs.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return summary, fmt.Errorf("list assets: %w", err)
	}
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Assets++
		result, err := s.Reconcile(ctx, a.ID)
		if err != nil {
			s.log.Error("reconcile failed", "asset_id", a.ID, "error", err)
			summary.Failed++
			continue
		}
		summary.Downgraded += len(result.Downgraded)
		summary.RowsFailed += len(result.Failed)
		if result.SupportChanged {
			summary.Changed++
		}
	}
	return summary, nil
}

// reconcileAssets runs the engine for each distinct asset inside tx.
func (s *Service) reconcileAssets(ctx context.Context, tx inventory.Store, ids ...inventory.AssetID) (Result, error) {
	var total Result
	seen := make(map[inventory.AssetID]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		r, err := s.engine.ReconcileAsset(ctx, tx, id)
		if err != nil {
			return total, fmt.Errorf("reconcile asset %s: %w", id, err)
		}
		if total.AssetID == "" {
			total.AssetID = id
		}
		total.merge(r)
	}
	return total, nil
}
