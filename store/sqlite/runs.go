package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// SYNC RUNS
// =============================================================================

// SyncRun records one scheduled or manual batch run.
type SyncRun struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"` // reconcile, program_sync, lifecycle_import
	ProgramID  string          `json:"program_id,omitempty"`
	DryRun     bool            `json:"dry_run"`
	Status     string          `json:"status"` // completed, failed
	Report     json.RawMessage `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// RecordSyncRun saves a finished run.
func (s *Store) RecordSyncRun(ctx context.Context, r SyncRun) error {
	var report sql.NullString
	if len(r.Report) > 0 {
		report = sql.NullString{String: string(r.Report), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, kind, program_id, dry_run, status, report_json, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.ProgramID, r.DryRun, r.Status, report, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return mapError(err, "failed to record sync run %s", r.ID)
}

// ListSyncRuns returns the most recent runs first. limit <= 0 means 50.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, program_id, dry_run, status, report_json, error, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, mapError(err, "failed to query sync runs")
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var (
			r                 SyncRun
			report            sql.NullString
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.ProgramID, &r.DryRun, &r.Status, &report, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if report.Valid {
			r.Report = json.RawMessage(report.String)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
