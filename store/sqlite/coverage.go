package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// VENDOR PROGRAMS (inventory.ProgramStore interface)
// =============================================================================

const selectPrograms = `SELECT id, name, slug, manufacturer_id, contract_type FROM vendor_programs`

func (q *queries) GetProgram(ctx context.Context, id inventory.ProgramID) (*inventory.VendorProgram, error) {
	p, err := scanProgram(q.db.QueryRowContext(ctx, selectPrograms+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("vendor program", string(id))
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) ListPrograms(ctx context.Context) ([]inventory.VendorProgram, error) {
	rows, err := q.db.QueryContext(ctx, selectPrograms+" ORDER BY id")
	if err != nil {
		return nil, mapError(err, "failed to query programs")
	}
	defer rows.Close()

	var programs []inventory.VendorProgram
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

func (q *queries) FindProgram(ctx context.Context, mfr inventory.ManufacturerID, ct inventory.ContractType) (*inventory.VendorProgram, error) {
	p, err := scanProgram(q.db.QueryRowContext(ctx,
		selectPrograms+" WHERE manufacturer_id = ? AND contract_type = ?", mfr, ct))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) SaveProgram(ctx context.Context, p inventory.VendorProgram) error {
	cols := []string{"id", "name", "slug", "manufacturer_id", "contract_type"}
	_, err := q.db.ExecContext(ctx, upsertSQL("vendor_programs", []string{"id"}, cols),
		p.ID, p.Name, p.Slug, p.ManufacturerID, p.ContractType,
	)
	return mapError(err, "failed to save program %s", p.ID)
}

func scanProgram(row scanner) (inventory.VendorProgram, error) {
	var p inventory.VendorProgram
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.ManufacturerID, &p.ContractType)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("failed to scan program: %w", err)
	}
	return p, err
}

// =============================================================================
// ASSET PROGRAM COVERAGE (inventory.CoverageStore interface)
// =============================================================================

var coverageColumns = []string{
	"id", "asset_id", "program_id", "status", "eligibility",
	"effective_start", "effective_end", "decision_reason", "notes", "evidence_url",
	"source", "last_synced",
}

const selectCoverages = `
	SELECT id, asset_id, program_id, status, eligibility,
	       effective_start, effective_end, decision_reason, notes, evidence_url,
	       source, last_synced
	FROM asset_program_coverages`

// coverageFieldColumns maps partial-update field names onto columns.
var coverageFieldColumns = map[string]string{
	inventory.CoverageFieldStatus:         "status",
	inventory.CoverageFieldEligibility:    "eligibility",
	inventory.CoverageFieldEffectiveStart: "effective_start",
	inventory.CoverageFieldEffectiveEnd:   "effective_end",
	inventory.CoverageFieldDecisionReason: "decision_reason",
	inventory.CoverageFieldNotes:          "notes",
	inventory.CoverageFieldEvidenceURL:    "evidence_url",
	inventory.CoverageFieldSource:         "source",
	inventory.CoverageFieldLastSynced:     "last_synced",
}

func (q *queries) GetCoverage(ctx context.Context, id inventory.CoverageID) (*inventory.AssetProgramCoverage, error) {
	list, err := q.queryCoverages(ctx, selectCoverages+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, notFound("program coverage", string(id))
	}
	return &list[0], nil
}

func (q *queries) CoveragesForAsset(ctx context.Context, assetID inventory.AssetID, statuses ...inventory.CoverageStatus) ([]inventory.AssetProgramCoverage, error) {
	query := selectCoverages + " WHERE asset_id = ?"
	args := []any{assetID}
	if len(statuses) > 0 {
		query += " AND status IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")"
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	return q.queryCoverages(ctx, query+" ORDER BY id", args...)
}

func (q *queries) CurrentCoverage(ctx context.Context, assetID inventory.AssetID, programID inventory.ProgramID) (*inventory.AssetProgramCoverage, error) {
	list, err := q.queryCoverages(ctx,
		selectCoverages+" WHERE asset_id = ? AND program_id = ? AND effective_end IS NULL", assetID, programID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (q *queries) SaveCoverage(ctx context.Context, c inventory.AssetProgramCoverage) error {
	_, err := q.db.ExecContext(ctx, upsertSQL("asset_program_coverages", []string{"id"}, coverageColumns),
		c.ID, c.AssetID, c.ProgramID, c.Status, c.Eligibility,
		dateArg(c.EffectiveStart), dateArg(c.EffectiveEnd), c.DecisionReason, c.Notes, c.EvidenceURL,
		c.Source, timeArg(c.LastSynced),
	)
	return mapError(err, "failed to save coverage %s", c.ID)
}

func (q *queries) UpdateCoverageFields(ctx context.Context, c inventory.AssetProgramCoverage, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := coverageFieldColumns[f]
		if !ok {
			return fmt.Errorf("unknown coverage field %q", f)
		}
		cols = append(cols, col)
		args = append(args, coverageFieldValue(c, f))
	}
	args = append(args, c.ID)

	res, err := q.db.ExecContext(ctx, updateSQL("asset_program_coverages", cols), args...)
	if err != nil {
		return mapError(err, "failed to update coverage %s", c.ID)
	}
	return requireRow(res, "program coverage", string(c.ID))
}

func coverageFieldValue(c inventory.AssetProgramCoverage, field string) any {
	switch field {
	case inventory.CoverageFieldStatus:
		return c.Status
	case inventory.CoverageFieldEligibility:
		return c.Eligibility
	case inventory.CoverageFieldEffectiveStart:
		return dateArg(c.EffectiveStart)
	case inventory.CoverageFieldEffectiveEnd:
		return dateArg(c.EffectiveEnd)
	case inventory.CoverageFieldDecisionReason:
		return c.DecisionReason
	case inventory.CoverageFieldNotes:
		return c.Notes
	case inventory.CoverageFieldEvidenceURL:
		return c.EvidenceURL
	case inventory.CoverageFieldSource:
		return c.Source
	default:
		return timeArg(c.LastSynced)
	}
}

func (q *queries) queryCoverages(ctx context.Context, query string, args ...any) ([]inventory.AssetProgramCoverage, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to query coverage")
	}
	defer rows.Close()

	var result []inventory.AssetProgramCoverage
	for rows.Next() {
		var (
			c                  inventory.AssetProgramCoverage
			start, end, synced sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.AssetID, &c.ProgramID, &c.Status, &c.Eligibility,
			&start, &end, &c.DecisionReason, &c.Notes, &c.EvidenceURL,
			&c.Source, &synced,
		); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		if err := parseDates(dateCol{&c.EffectiveStart, start}, dateCol{&c.EffectiveEnd, end}); err != nil {
			return nil, err
		}
		if c.LastSynced, err = parseTime(synced); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
