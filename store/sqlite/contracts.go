package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// CONTRACTS AND SKUS (inventory.ContractStore interface)
// =============================================================================

const selectContracts = `
	SELECT id, number, type, status, vendor_name, description,
	       start_date, end_date, renewal_date, notes
	FROM contracts`

func (q *queries) GetContract(ctx context.Context, id inventory.ContractID) (*inventory.Contract, error) {
	var (
		c                   inventory.Contract
		start, end, renewal sql.NullString
	)
	err := q.db.QueryRowContext(ctx, selectContracts+" WHERE id = ?", id).Scan(
		&c.ID, &c.Number, &c.Type, &c.Status, &c.VendorName, &c.Description,
		&start, &end, &renewal, &c.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contract", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	if err := parseDates(
		dateCol{&c.StartDate, start},
		dateCol{&c.EndDate, end},
		dateCol{&c.RenewalDate, renewal},
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) SaveContract(ctx context.Context, c inventory.Contract) error {
	cols := []string{
		"id", "number", "type", "status", "vendor_name", "description",
		"start_date", "end_date", "renewal_date", "notes",
	}
	_, err := q.db.ExecContext(ctx, upsertSQL("contracts", []string{"id"}, cols),
		c.ID, c.Number, c.Type, c.Status, c.VendorName, c.Description,
		dateArg(c.StartDate), dateArg(c.EndDate), dateArg(c.RenewalDate), c.Notes,
	)
	return mapError(err, "failed to save contract %s", c.ID)
}

// DeleteContract relies on ON DELETE CASCADE for the assignments.
func (q *queries) DeleteContract(ctx context.Context, id inventory.ContractID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id)
	if err != nil {
		return mapError(err, "failed to delete contract %s", id)
	}
	return requireRow(res, "contract", string(id))
}

func (q *queries) GetSKU(ctx context.Context, id inventory.SKUID) (*inventory.ContractSKU, error) {
	var s inventory.ContractSKU
	err := q.db.QueryRowContext(ctx, `
		SELECT id, sku, manufacturer_id, contract_type, service_level, description
		FROM contract_skus WHERE id = ?`, id,
	).Scan(&s.ID, &s.SKU, &s.ManufacturerID, &s.ContractType, &s.ServiceLevel, &s.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contract sku", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sku: %w", err)
	}
	return &s, nil
}

func (q *queries) SaveSKU(ctx context.Context, s inventory.ContractSKU) error {
	cols := []string{"id", "sku", "manufacturer_id", "contract_type", "service_level", "description"}
	_, err := q.db.ExecContext(ctx, upsertSQL("contract_skus", []string{"id"}, cols),
		s.ID, s.SKU, s.ManufacturerID, s.ContractType, s.ServiceLevel, s.Description,
	)
	return mapError(err, "failed to save sku %s", s.ID)
}

// =============================================================================
// CONTRACT ASSIGNMENTS (inventory.AssignmentStore interface)
// =============================================================================

// Assignments are always read with their contract and SKU joined in;
// effective dates and program matching need both.
const selectAssignments = `
	SELECT a.id, a.asset_id, a.contract_id, a.sku_id, a.program_id,
	       a.start_date, a.end_date, a.renewal_date,
	       c.id, c.number, c.type, c.status, c.vendor_name, c.description,
	       c.start_date, c.end_date, c.renewal_date, c.notes,
	       s.id, s.sku, s.manufacturer_id, s.contract_type, s.service_level, s.description
	FROM contract_assignments a
	JOIN contracts c ON c.id = a.contract_id
	JOIN contract_skus s ON s.id = a.sku_id`

func (q *queries) GetAssignment(ctx context.Context, id inventory.AssignmentID) (*inventory.ResolvedAssignment, error) {
	list, err := q.queryAssignments(ctx, selectAssignments+" WHERE a.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, notFound("contract assignment", string(id))
	}
	return &list[0], nil
}

func (q *queries) AssignmentsForAsset(ctx context.Context, assetID inventory.AssetID) ([]inventory.ResolvedAssignment, error) {
	return q.queryAssignments(ctx, selectAssignments+" WHERE a.asset_id = ? ORDER BY a.id", assetID)
}

func (q *queries) AssignmentsForAssetSKU(ctx context.Context, assetID inventory.AssetID, skuID inventory.SKUID) ([]inventory.ResolvedAssignment, error) {
	return q.queryAssignments(ctx, selectAssignments+" WHERE a.asset_id = ? AND a.sku_id = ? ORDER BY a.id", assetID, skuID)
}

func (q *queries) AssignmentsForContract(ctx context.Context, contractID inventory.ContractID) ([]inventory.ResolvedAssignment, error) {
	return q.queryAssignments(ctx, selectAssignments+" WHERE a.contract_id = ? ORDER BY a.id", contractID)
}

func (q *queries) AssignmentsForSKU(ctx context.Context, skuID inventory.SKUID) ([]inventory.ResolvedAssignment, error) {
	return q.queryAssignments(ctx, selectAssignments+" WHERE a.sku_id = ? ORDER BY a.id", skuID)
}

func (q *queries) SaveAssignment(ctx context.Context, a inventory.ContractAssignment) error {
	cols := []string{"id", "asset_id", "contract_id", "sku_id", "program_id", "start_date", "end_date", "renewal_date"}
	_, err := q.db.ExecContext(ctx, upsertSQL("contract_assignments", []string{"id"}, cols),
		a.ID, a.AssetID, a.ContractID, a.SKUID, nullString(string(a.ProgramID)),
		dateArg(a.StartDate), dateArg(a.EndDate), dateArg(a.RenewalDate),
	)
	return mapError(err, "failed to save assignment %s", a.ID)
}

func (q *queries) DeleteAssignment(ctx context.Context, id inventory.AssignmentID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM contract_assignments WHERE id = ?", id)
	if err != nil {
		return mapError(err, "failed to delete assignment %s", id)
	}
	return requireRow(res, "contract assignment", string(id))
}

func (q *queries) queryAssignments(ctx context.Context, query string, args ...any) ([]inventory.ResolvedAssignment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to query assignments")
	}
	defer rows.Close()

	var result []inventory.ResolvedAssignment
	for rows.Next() {
		var (
			r                      inventory.ResolvedAssignment
			program                sql.NullString
			aStart, aEnd, aRenewal sql.NullString
			cStart, cEnd, cRenewal sql.NullString
		)
		c, s := &r.Contract, &r.SKU
		if err := rows.Scan(
			&r.ID, &r.AssetID, &r.ContractID, &r.SKUID, &program,
			&aStart, &aEnd, &aRenewal,
			&c.ID, &c.Number, &c.Type, &c.Status, &c.VendorName, &c.Description,
			&cStart, &cEnd, &cRenewal, &c.Notes,
			&s.ID, &s.SKU, &s.ManufacturerID, &s.ContractType, &s.ServiceLevel, &s.Description,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		r.ProgramID = inventory.ProgramID(program.String)
		if err := parseDates(
			dateCol{&r.StartDate, aStart},
			dateCol{&r.EndDate, aEnd},
			dateCol{&r.RenewalDate, aRenewal},
			dateCol{&c.StartDate, cStart},
			dateCol{&c.EndDate, cEnd},
			dateCol{&c.RenewalDate, cRenewal},
		); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
