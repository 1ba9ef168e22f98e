package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// ASSETS (inventory.AssetStore interface)
// =============================================================================

var assetColumns = []string{
	"id", "name", "serial", "asset_tag", "status", "allocation",
	"device_type_id", "module_type_id", "inventory_item_type_id", "rack_type_id",
	"hardware_kind", "hardware_id", "hardware_type_id", "hardware_site_id",
	"storage_location_id", "installed_site_override_id",
	"warranty_start", "warranty_end",
	"support_state", "support_reason", "support_source", "support_validated_at",
}

const selectAssets = `
	SELECT id, name, serial, asset_tag, status, allocation,
	       device_type_id, module_type_id, inventory_item_type_id, rack_type_id,
	       hardware_kind, hardware_id, hardware_type_id, hardware_site_id,
	       storage_location_id, installed_site_override_id,
	       warranty_start, warranty_end,
	       support_state, support_reason, support_source, support_validated_at
	FROM assets`

// assetFieldColumns maps partial-update field names onto columns.
var assetFieldColumns = map[string]string{
	inventory.AssetFieldSupportState:       "support_state",
	inventory.AssetFieldSupportReason:      "support_reason",
	inventory.AssetFieldSupportSource:      "support_source",
	inventory.AssetFieldSupportValidatedAt: "support_validated_at",
}

func (q *queries) GetAsset(ctx context.Context, id inventory.AssetID) (*inventory.Asset, error) {
	a, err := scanAsset(q.db.QueryRowContext(ctx, selectAssets+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("asset", string(id))
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *queries) ListAssets(ctx context.Context) ([]inventory.Asset, error) {
	rows, err := q.db.QueryContext(ctx, selectAssets+" ORDER BY id")
	if err != nil {
		return nil, mapError(err, "failed to query assets")
	}
	defer rows.Close()

	var assets []inventory.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (q *queries) SaveAsset(ctx context.Context, a inventory.Asset) error {
	var hwKind, hwID, hwType, hwSite string
	if a.Hardware != nil {
		hwKind, hwID, hwType, hwSite = string(a.Hardware.Kind), a.Hardware.ID, string(a.Hardware.TypeID), a.Hardware.SiteID
	}
	_, err := q.db.ExecContext(ctx, upsertSQL("assets", []string{"id"}, assetColumns),
		a.ID, a.Name, a.Serial, nullString(a.AssetTag), a.Status, a.Allocation,
		nullString(string(a.DeviceTypeID)), nullString(string(a.ModuleTypeID)),
		nullString(string(a.InventoryItemTypeID)), nullString(string(a.RackTypeID)),
		nullString(hwKind), nullString(hwID), nullString(hwType), nullString(hwSite),
		nullString(a.StorageLocationID), nullString(a.InstalledSiteOverrideID),
		dateArg(a.WarrantyStart), dateArg(a.WarrantyEnd),
		a.SupportState, a.SupportReason, a.SupportSource, timeArg(a.SupportValidatedAt),
	)
	return mapError(err, "failed to save asset %s", a.ID)
}

func (q *queries) UpdateAssetFields(ctx context.Context, a inventory.Asset, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := assetFieldColumns[f]
		if !ok {
			return fmt.Errorf("unknown asset field %q", f)
		}
		cols = append(cols, col)
		switch f {
		case inventory.AssetFieldSupportState:
			args = append(args, a.SupportState)
		case inventory.AssetFieldSupportReason:
			args = append(args, a.SupportReason)
		case inventory.AssetFieldSupportSource:
			args = append(args, a.SupportSource)
		case inventory.AssetFieldSupportValidatedAt:
			args = append(args, timeArg(a.SupportValidatedAt))
		}
	}
	args = append(args, a.ID)

	res, err := q.db.ExecContext(ctx, updateSQL("assets", cols), args...)
	if err != nil {
		return mapError(err, "failed to update asset %s", a.ID)
	}
	return requireRow(res, "asset", string(a.ID))
}

func (q *queries) DeleteAsset(ctx context.Context, id inventory.AssetID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if isForeignKeyError(err) {
		return inventory.ErrAssetProtected
	}
	if err != nil {
		return mapError(err, "failed to delete asset %s", id)
	}
	return requireRow(res, "asset", string(id))
}

func scanAsset(row scanner) (inventory.Asset, error) {
	var a inventory.Asset
	var tag, devType, modType, itemType, rackType, hwKind, hwID, hwType sql.NullString
	var hwSite, storage, siteOverride, warrantyStart, warrantyEnd, stamp sql.NullString
	err := row.Scan(
		&a.ID, &a.Name, &a.Serial, &tag, &a.Status, &a.Allocation,
		&devType, &modType, &itemType, &rackType,
		&hwKind, &hwID, &hwType, &hwSite,
		&storage, &siteOverride,
		&warrantyStart, &warrantyEnd,
		&a.SupportState, &a.SupportReason, &a.SupportSource, &stamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("failed to scan asset: %w", err)
	}

	a.AssetTag = tag.String
	a.DeviceTypeID = inventory.HardwareTypeID(devType.String)
	a.ModuleTypeID = inventory.HardwareTypeID(modType.String)
	a.InventoryItemTypeID = inventory.HardwareTypeID(itemType.String)
	a.RackTypeID = inventory.HardwareTypeID(rackType.String)
	if hwKind.Valid {
		a.Hardware = &inventory.HardwareRef{
			Kind:   inventory.HardwareKind(hwKind.String),
			ID:     hwID.String,
			TypeID: inventory.HardwareTypeID(hwType.String),
			SiteID: hwSite.String,
		}
	}
	a.StorageLocationID = storage.String
	a.InstalledSiteOverrideID = siteOverride.String

	if err := parseDates(
		dateCol{&a.WarrantyStart, warrantyStart},
		dateCol{&a.WarrantyEnd, warrantyEnd},
	); err != nil {
		return a, err
	}
	a.SupportValidatedAt, err = parseTime(stamp)
	return a, err
}

// requireRow turns a zero-row write into a NotFoundError.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

// =============================================================================
// HARDWARE TYPES AND LIFECYCLE (inventory.HardwareStore interface)
// =============================================================================

const selectHardwareTypes = `
	SELECT kind, id, manufacturer_id, model, part_number, excluded, exclusion_reason
	FROM hardware_types`

func (q *queries) GetHardwareType(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareType, error) {
	row := q.db.QueryRowContext(ctx, selectHardwareTypes+" WHERE kind = ? AND id = ?", ref.Kind, ref.ID)
	t, err := scanHardwareType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("hardware type", ref.String())
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) ListHardwareTypes(ctx context.Context) ([]inventory.HardwareType, error) {
	rows, err := q.db.QueryContext(ctx, selectHardwareTypes+" ORDER BY kind, id")
	if err != nil {
		return nil, mapError(err, "failed to query hardware types")
	}
	defer rows.Close()

	var types []inventory.HardwareType
	for rows.Next() {
		t, err := scanHardwareType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (q *queries) SaveHardwareType(ctx context.Context, t inventory.HardwareType) error {
	cols := []string{"kind", "id", "manufacturer_id", "model", "part_number", "excluded", "exclusion_reason"}
	_, err := q.db.ExecContext(ctx, upsertSQL("hardware_types", []string{"kind", "id"}, cols),
		t.Kind, t.ID, t.ManufacturerID, t.Model, t.PartNumber, t.Excluded, t.ExclusionReason,
	)
	return mapError(err, "failed to save hardware type %s", t.Ref())
}

func scanHardwareType(row scanner) (inventory.HardwareType, error) {
	var t inventory.HardwareType
	err := row.Scan(&t.Kind, &t.ID, &t.ManufacturerID, &t.Model, &t.PartNumber, &t.Excluded, &t.ExclusionReason)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("failed to scan hardware type: %w", err)
	}
	return t, err
}

func (q *queries) FindLifecycle(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareLifecycle, error) {
	l := inventory.HardwareLifecycle{Type: ref}
	var eosale, eom, eosec, eos, attach, renewal sql.NullString
	err := q.db.QueryRowContext(ctx, `
		SELECT end_of_sale, end_of_maintenance, end_of_security, end_of_support,
		       last_contract_attach, last_contract_renewal, notice_url, support_basis
		FROM hardware_lifecycles WHERE kind = ? AND type_id = ?`, ref.Kind, ref.ID,
	).Scan(&eosale, &eom, &eosec, &eos, &attach, &renewal, &l.NoticeURL, &l.SupportBasis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle %s: %w", ref, err)
	}
	if err := parseDates(
		dateCol{&l.EndOfSale, eosale},
		dateCol{&l.EndOfMaintenance, eom},
		dateCol{&l.EndOfSecurity, eosec},
		dateCol{&l.EndOfSupport, eos},
		dateCol{&l.LastContractAttach, attach},
		dateCol{&l.LastContractRenewal, renewal},
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *queries) SaveLifecycle(ctx context.Context, l inventory.HardwareLifecycle) error {
	cols := []string{
		"kind", "type_id", "end_of_sale", "end_of_maintenance", "end_of_security", "end_of_support",
		"last_contract_attach", "last_contract_renewal", "notice_url", "support_basis",
	}
	_, err := q.db.ExecContext(ctx, upsertSQL("hardware_lifecycles", []string{"kind", "type_id"}, cols),
		l.Type.Kind, l.Type.ID,
		dateArg(l.EndOfSale), dateArg(l.EndOfMaintenance), dateArg(l.EndOfSecurity), dateArg(l.EndOfSupport),
		dateArg(l.LastContractAttach), dateArg(l.LastContractRenewal),
		l.NoticeURL, l.SupportBasis,
	)
	return mapError(err, "failed to save lifecycle %s", l.Type)
}

func (q *queries) DeleteLifecycle(ctx context.Context, ref inventory.TypeRef) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM hardware_lifecycles WHERE kind = ? AND type_id = ?", ref.Kind, ref.ID)
	return mapError(err, "failed to delete lifecycle %s", ref)
}
