/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements inventory.TxStore using SQLite. The same schema maps onto
  PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  inventory.Store:   assets, hardware, contracts, assignments, programs, coverage
  inventory.TxStore: WithTx
  sync run history:  RecordSyncRun / ListSyncRuns (scheduler and API)

KEY TABLES:
  assets:                  hardware assets and their support aggregate
  hardware_types:          device/module/inventory item/rack types, keyed by (kind, id)
  hardware_lifecycles:     vendor end-of-life dates per type
  contracts, contract_skus
  contract_assignments:    (asset, contract, sku) coverage periods
  vendor_programs:         (manufacturer, contract type) policy contexts
  asset_program_coverages: per (asset, program) decision records
  sync_runs:               scheduler and sync history

CONSTRAINTS IN THE SCHEMA:
  - idx_programs_pair:            one program per (manufacturer, contract type)
  - idx_coverages_current:        one open row per (asset, program)
  - assets are ON DELETE RESTRICT from assignments and coverage rows
  - contract delete cascades to its assignments
  Assignment overlap has no index equivalent; it is checked in code inside
  the writing transaction.

CONCURRENCY:
  Transactions are opened with _txlock=immediate, so a writer takes the
  database write lock at BEGIN and the overlap check reads the same peers
  the insert is checked against. A writer that cannot get the lock within
  the busy timeout gets inventory.ErrConcurrentModification.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/coverage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := coverage.NewService(store, coverage.Options{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/coverage-engine/inventory"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements inventory.Store against the pool or one transaction.
type queries struct {
	db execer
}

// Store implements inventory.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

// DefaultBusyTimeout is how long a writer waits for the lock before the
// store reports ErrConcurrentModification.
const DefaultBusyTimeout = 5 * time.Second

type options struct {
	busyTimeout time.Duration
}

// Option configures New.
type Option func(*options)

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		dbPath, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: &queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		serial TEXT NOT NULL DEFAULT '',
		asset_tag TEXT,
		status TEXT NOT NULL,
		allocation TEXT NOT NULL DEFAULT '',
		device_type_id TEXT,
		module_type_id TEXT,
		inventory_item_type_id TEXT,
		rack_type_id TEXT,
		hardware_kind TEXT,
		hardware_id TEXT,
		hardware_type_id TEXT,
		hardware_site_id TEXT,
		storage_location_id TEXT,
		installed_site_override_id TEXT,
		warranty_start TEXT,
		warranty_end TEXT,
		support_state TEXT NOT NULL DEFAULT 'unknown',
		support_reason TEXT NOT NULL DEFAULT '',
		support_source TEXT NOT NULL DEFAULT 'manual',
		support_validated_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_tag
		ON assets(asset_tag) WHERE asset_tag IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_assets_support_state
		ON assets(support_state);

	CREATE TABLE IF NOT EXISTS hardware_types (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		manufacturer_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		part_number TEXT NOT NULL DEFAULT '',
		excluded BOOLEAN NOT NULL DEFAULT FALSE,
		exclusion_reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_hardware_types_part_number
		ON hardware_types(part_number);

	CREATE TABLE IF NOT EXISTS hardware_lifecycles (
		kind TEXT NOT NULL,
		type_id TEXT NOT NULL,
		end_of_sale TEXT,
		end_of_maintenance TEXT,
		end_of_security TEXT,
		end_of_support TEXT,
		last_contract_attach TEXT,
		last_contract_renewal TEXT,
		notice_url TEXT NOT NULL DEFAULT '',
		support_basis TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (kind, type_id)
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		vendor_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		renewal_date TEXT,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS contract_skus (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL,
		manufacturer_id TEXT NOT NULL,
		contract_type TEXT NOT NULL,
		service_level TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS contract_assignments (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE RESTRICT,
		contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		sku_id TEXT NOT NULL REFERENCES contract_skus(id) ON DELETE RESTRICT,
		program_id TEXT,
		start_date TEXT,
		end_date TEXT,
		renewal_date TEXT
	);

	-- Overlap peers: (asset, sku) is the hot path for every assignment write
	CREATE INDEX IF NOT EXISTS idx_assignments_asset_sku
		ON contract_assignments(asset_id, sku_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_contract
		ON contract_assignments(contract_id);

	CREATE TABLE IF NOT EXISTS vendor_programs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		manufacturer_id TEXT NOT NULL DEFAULT '',
		contract_type TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_programs_pair
		ON vendor_programs(manufacturer_id, contract_type);

	CREATE TABLE IF NOT EXISTS asset_program_coverages (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE RESTRICT,
		program_id TEXT NOT NULL REFERENCES vendor_programs(id) ON DELETE RESTRICT,
		status TEXT NOT NULL,
		eligibility TEXT NOT NULL,
		effective_start TEXT,
		effective_end TEXT,
		decision_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		evidence_url TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'manual',
		last_synced TEXT
	);

	-- CRITICAL: at most one current (open-ended) row per (asset, program)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_coverages_current
		ON asset_program_coverages(asset_id, program_id)
		WHERE effective_end IS NULL;
	CREATE INDEX IF NOT EXISTS idx_coverages_asset_status
		ON asset_program_coverages(asset_id, status);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		program_id TEXT NOT NULL DEFAULT '',
		dry_run BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		report_json TEXT,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_started
		ON sync_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads made
// through the Store passed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

// Reset deletes all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx inventory.Store) error {
		q := tx.(*queries)
		// Children first; foreign keys are enforced.
		for _, table := range []string{
			"asset_program_coverages", "contract_assignments", "vendor_programs",
			"contract_skus", "contracts", "hardware_lifecycles", "hardware_types",
			"assets", "sync_runs",
		} {
			if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return mapError(err, "failed to clear %s", table)
			}
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// upsertSQL builds an INSERT ... ON CONFLICT DO UPDATE for cols. An upsert
// keeps the row id stable, so foreign keys pointing at it are untouched.
func upsertSQL(table string, key, cols []string) string {
	keys := make(map[string]bool, len(key))
	for _, k := range key {
		keys[k] = true
	}
	var sets []string
	for _, c := range cols {
		if !keys[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(key, ", "),
		strings.Join(sets, ", "),
	)
}

// updateSQL builds an UPDATE of the given columns for one id.
func updateSQL(table string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dateArg(d *inventory.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDate(ns sql.NullString) (*inventory.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := inventory.ParseDate(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", ns.String, err)
	}
	return &d, nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

// dateCol pairs a scanned nullable column with the field it fills.
type dateCol struct {
	dst **inventory.Date
	src sql.NullString
}

func parseDates(cols ...dateCol) error {
	for _, c := range cols {
		d, err := parseDate(c.src)
		if err != nil {
			return err
		}
		*c.dst = d
	}
	return nil
}

// mapError attaches the inventory sentinel matching a driver error.
func mapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			err = fmt.Errorf("%w: %v", inventory.ErrConcurrentModification, se)
		case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			err = fmt.Errorf("%w: %v", inventory.ErrDuplicate, se)
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			err = fmt.Errorf("referenced record missing: %w", inventory.ErrNotFound)
		}
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func notFound(entity, id string) error {
	return &inventory.NotFoundError{Entity: entity, ID: id}
}

var _ inventory.TxStore = (*Store)(nil)
