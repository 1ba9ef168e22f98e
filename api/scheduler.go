/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Time passing alone can expire an assignment, so coverage has to be
  reconciled even when nobody edits anything. The scheduler periodically
  reconciles every asset and optionally syncs a list of vendor programs.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each tick records one run per job in sync_runs for audit and UI display
  - A tick that is still running when the next one fires delays it; ticks
    never overlap

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Programs:      Program IDs synced on every tick
  - SyncOptions:   Options for those syncs (dry run by default)

USAGE:
  scheduler := NewScheduler(svc, store, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReconcileAll and SyncProgram endpoints (manual runs)
  - coverage/service.go: ReconcileAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/logger"
	"github.com/warp/coverage-engine/store/sqlite"
)

// Scheduler runs reconciliation and program syncs on a ticker.
type Scheduler struct {
	Service       *coverage.Service
	Store         *sqlite.Store
	Log           *logger.Logger
	CheckInterval time.Duration
	Programs      []inventory.ProgramID
	SyncOptions   coverage.SyncOptions

	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler.
func NewScheduler(svc *coverage.Service, store *sqlite.Store, log *logger.Logger) *Scheduler {
	return &Scheduler{
		Service:       svc,
		Store:         store,
		Log:           logger.OrNop(log),
		CheckInterval: 1 * time.Hour,
		SyncOptions:   coverage.DefaultSyncOptions(),
	}
}

// Start begins the scheduler. A zero interval disables it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CheckInterval <= 0 {
		s.Log.Info("scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info("scheduler started", "interval", s.CheckInterval.String(), "programs", len(s.Programs))
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.Log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(s.ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunOnce performs one tick: reconcile everything, then sync each
// configured program.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()
	summary, err := s.Service.ReconcileAll(ctx)
	recordRun(ctx, s.Store, s.Log, sqlite.SyncRun{Kind: RunReconcile, StartedAt: started}, summary, err)
	if err != nil {
		s.Log.Error("scheduled reconcile failed", "error", err)
	} else if summary.Downgraded > 0 || summary.Changed > 0 || summary.Failed > 0 {
		s.Log.Info("scheduled reconcile completed",
			"assets", summary.Assets, "downgraded", summary.Downgraded,
			"support_changed", summary.Changed, "failed", summary.Failed)
	}

	for _, programID := range s.Programs {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		report, err := s.Service.SyncProgram(ctx, programID, s.SyncOptions)
		recordRun(ctx, s.Store, s.Log, sqlite.SyncRun{
			Kind:      RunProgramSync,
			ProgramID: string(programID),
			DryRun:    s.SyncOptions.DryRun,
			StartedAt: started,
		}, report, err)
		if err != nil {
			s.Log.Error("scheduled sync failed", "program_id", programID, "error", err)
			continue
		}
		s.Log.Info("scheduled sync completed", "program_id", programID,
			"created", report.Created, "updated", report.Updated, "failed", report.Failed)
	}
}
