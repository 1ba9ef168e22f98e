/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The inventory types
  carry no JSON tags; these types are the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates are "YYYY-MM-DD" strings (inventory.Date implements
  TextMarshaler). Timestamps are RFC 3339.

VALIDATION:
  Validation is done by the coverage service, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details string                 `json:"details,omitempty"`
	Fields  []inventory.FieldError `json:"fields,omitempty"`
}

// =============================================================================
// ASSETS
// =============================================================================

type HardwareDTO struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	TypeID string `json:"type_id,omitempty"`
	SiteID string `json:"site_id,omitempty"`
}

// AssetRequest creates or replaces an asset. Support fields are owned by
// reconciliation and are not accepted here.
type AssetRequest struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	Serial                  string          `json:"serial"`
	AssetTag                string          `json:"asset_tag"`
	Status                  string          `json:"status"`
	DeviceTypeID            string          `json:"device_type_id,omitempty"`
	ModuleTypeID            string          `json:"module_type_id,omitempty"`
	InventoryItemTypeID     string          `json:"inventory_item_type_id,omitempty"`
	RackTypeID              string          `json:"rack_type_id,omitempty"`
	Hardware                *HardwareDTO    `json:"hardware,omitempty"`
	StorageLocationID       string          `json:"storage_location_id,omitempty"`
	InstalledSiteOverrideID string          `json:"installed_site_override_id,omitempty"`
	WarrantyStart           *inventory.Date `json:"warranty_start,omitempty"`
	WarrantyEnd             *inventory.Date `json:"warranty_end,omitempty"`
	Reassigning             bool            `json:"reassigning,omitempty"`
}

func (r AssetRequest) toAsset() inventory.Asset {
	a := inventory.Asset{
		ID:                      inventory.AssetID(r.ID),
		Name:                    r.Name,
		Serial:                  r.Serial,
		AssetTag:                r.AssetTag,
		Status:                  inventory.AssetStatus(r.Status),
		DeviceTypeID:            inventory.HardwareTypeID(r.DeviceTypeID),
		ModuleTypeID:            inventory.HardwareTypeID(r.ModuleTypeID),
		InventoryItemTypeID:     inventory.HardwareTypeID(r.InventoryItemTypeID),
		RackTypeID:              inventory.HardwareTypeID(r.RackTypeID),
		StorageLocationID:       r.StorageLocationID,
		InstalledSiteOverrideID: r.InstalledSiteOverrideID,
		WarrantyStart:           r.WarrantyStart,
		WarrantyEnd:             r.WarrantyEnd,
	}
	if r.Hardware != nil {
		a.Hardware = &inventory.HardwareRef{
			Kind:   inventory.HardwareKind(r.Hardware.Kind),
			ID:     r.Hardware.ID,
			TypeID: inventory.HardwareTypeID(r.Hardware.TypeID),
			SiteID: r.Hardware.SiteID,
		}
	}
	return a
}

type AssetDTO struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Serial             string          `json:"serial"`
	AssetTag           string          `json:"asset_tag,omitempty"`
	Status             string          `json:"status"`
	Allocation         string          `json:"allocation,omitempty"`
	Kind               string          `json:"kind,omitempty"`
	TypeID             string          `json:"type_id,omitempty"`
	Hardware           *HardwareDTO    `json:"hardware,omitempty"`
	InstalledSiteID    string          `json:"installed_site_id,omitempty"`
	StorageLocationID  string          `json:"storage_location_id,omitempty"`
	WarrantyStart      *inventory.Date `json:"warranty_start,omitempty"`
	WarrantyEnd        *inventory.Date `json:"warranty_end,omitempty"`
	SupportState       string          `json:"support_state"`
	SupportReason      string          `json:"support_reason,omitempty"`
	SupportSource      string          `json:"support_source"`
	SupportValidatedAt *time.Time      `json:"support_validated_at,omitempty"`
}

func toAssetDTO(a inventory.Asset) AssetDTO {
	dto := AssetDTO{
		ID:                 string(a.ID),
		Name:               a.Name,
		Serial:             a.Serial,
		AssetTag:           a.AssetTag,
		Status:             string(a.Status),
		Allocation:         string(a.Allocation),
		Kind:               string(a.Kind()),
		TypeID:             string(a.TypeRef().ID),
		InstalledSiteID:    a.InstalledSiteID(),
		StorageLocationID:  a.StorageLocationID,
		WarrantyStart:      a.WarrantyStart,
		WarrantyEnd:        a.WarrantyEnd,
		SupportState:       string(a.SupportState),
		SupportReason:      a.SupportReason,
		SupportSource:      string(a.SupportSource),
		SupportValidatedAt: a.SupportValidatedAt,
	}
	if h := a.Hardware; h != nil {
		dto.Hardware = &HardwareDTO{Kind: string(h.Kind), ID: h.ID, TypeID: string(h.TypeID), SiteID: h.SiteID}
	}
	return dto
}

// AssetDetailDTO is an asset with its assignments and coverage rows.
type AssetDetailDTO struct {
	AssetDTO
	Assignments []AssignmentDTO `json:"assignments"`
	Coverages   []CoverageDTO   `json:"coverages"`
}

// =============================================================================
// CONTRACTS AND ASSIGNMENTS
// =============================================================================

type ContractRequest struct {
	ID          string          `json:"id"`
	Number      string          `json:"contract_id"`
	Type        string          `json:"contract_type"`
	Status      string          `json:"status,omitempty"`
	VendorName  string          `json:"vendor,omitempty"`
	Description string          `json:"description,omitempty"`
	StartDate   *inventory.Date `json:"start_date,omitempty"`
	EndDate     *inventory.Date `json:"end_date,omitempty"`
	RenewalDate *inventory.Date `json:"renewal_date,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

func (r ContractRequest) toContract() inventory.Contract {
	return inventory.Contract{
		ID:          inventory.ContractID(r.ID),
		Number:      r.Number,
		Type:        inventory.ContractType(r.Type),
		Status:      inventory.ContractStatus(r.Status),
		VendorName:  r.VendorName,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		RenewalDate: r.RenewalDate,
		Notes:       r.Notes,
	}
}

type ContractDTO struct {
	ContractRequest
	NeedsRenewal bool            `json:"needs_renewal"`
	Progress     decimal.Decimal `json:"progress_percent"`
}

func toContractDTO(c inventory.Contract, today inventory.Date) ContractDTO {
	return ContractDTO{
		ContractRequest: ContractRequest{
			ID:          string(c.ID),
			Number:      c.Number,
			Type:        string(c.Type),
			Status:      string(c.Status),
			VendorName:  c.VendorName,
			Description: c.Description,
			StartDate:   c.StartDate,
			EndDate:     c.EndDate,
			RenewalDate: c.RenewalDate,
			Notes:       c.Notes,
		},
		NeedsRenewal: c.NeedsRenewal(today),
		Progress:     c.ProgressPercent(today),
	}
}

type SKURequest struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	ManufacturerID string `json:"manufacturer_id"`
	ContractType   string `json:"contract_type"`
	ServiceLevel   string `json:"service_level,omitempty"`
	Description    string `json:"description,omitempty"`
}

func (r SKURequest) toSKU() inventory.ContractSKU {
	return inventory.ContractSKU{
		ID:             inventory.SKUID(r.ID),
		SKU:            r.SKU,
		ManufacturerID: inventory.ManufacturerID(r.ManufacturerID),
		ContractType:   inventory.ContractType(r.ContractType),
		ServiceLevel:   r.ServiceLevel,
		Description:    r.Description,
	}
}

func toSKUDTO(s inventory.ContractSKU) SKURequest {
	return SKURequest{
		ID:             string(s.ID),
		SKU:            s.SKU,
		ManufacturerID: string(s.ManufacturerID),
		ContractType:   string(s.ContractType),
		ServiceLevel:   s.ServiceLevel,
		Description:    s.Description,
	}
}

type AssignmentRequest struct {
	AssetID     string          `json:"asset_id"`
	ContractID  string          `json:"contract_id"`
	SKUID       string          `json:"sku_id"`
	ProgramID   string          `json:"program_id,omitempty"`
	StartDate   *inventory.Date `json:"start_date,omitempty"`
	EndDate     *inventory.Date `json:"end_date,omitempty"`
	RenewalDate *inventory.Date `json:"renewal_date,omitempty"`
}

func (r AssignmentRequest) toAssignment(id string) inventory.ContractAssignment {
	return inventory.ContractAssignment{
		ID:          inventory.AssignmentID(id),
		AssetID:     inventory.AssetID(r.AssetID),
		ContractID:  inventory.ContractID(r.ContractID),
		SKUID:       inventory.SKUID(r.SKUID),
		ProgramID:   inventory.ProgramID(r.ProgramID),
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		RenewalDate: r.RenewalDate,
	}
}

type AssignmentDTO struct {
	ID              string          `json:"id"`
	AssetID         string          `json:"asset_id"`
	ContractID      string          `json:"contract_id"`
	ContractNumber  string          `json:"contract_number"`
	SKUID           string          `json:"sku_id"`
	SKU             string          `json:"sku"`
	ProgramID       string          `json:"program_id,omitempty"`
	EffectiveStart  *inventory.Date `json:"effective_start,omitempty"`
	EffectiveEnd    *inventory.Date `json:"effective_end,omitempty"`
	EffectiveRenew  *inventory.Date `json:"effective_renewal,omitempty"`
	Current         bool            `json:"current"`
	Expired         bool            `json:"expired"`
	NeedsRenewal    bool            `json:"needs_renewal"`
	DaysUntilExpiry *int            `json:"days_until_expiry,omitempty"`
	Progress        decimal.Decimal `json:"progress_percent"`
}

func toAssignmentDTO(a inventory.ResolvedAssignment, today inventory.Date) AssignmentDTO {
	dto := AssignmentDTO{
		ID:             string(a.ID),
		AssetID:        string(a.AssetID),
		ContractID:     string(a.ContractID),
		ContractNumber: a.Contract.Number,
		SKUID:          string(a.SKUID),
		SKU:            a.SKU.SKU,
		ProgramID:      string(a.ProgramID),
		EffectiveStart: a.EffectiveStart(),
		EffectiveEnd:   a.EffectiveEnd(),
		EffectiveRenew: a.EffectiveRenewal(),
		Current:        a.IsCurrent(today),
		Expired:        a.IsExpired(today),
		NeedsRenewal:   a.NeedsRenewal(today),
		Progress:       a.ProgressPercent(today),
	}
	if days, ok := a.DaysUntilExpiry(today); ok {
		dto.DaysUntilExpiry = &days
	}
	return dto
}

// =============================================================================
// PROGRAMS AND COVERAGE
// =============================================================================

type ProgramRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	ManufacturerID string `json:"manufacturer_id,omitempty"`
	ContractType   string `json:"contract_type"`
}

func (r ProgramRequest) toProgram() inventory.VendorProgram {
	return inventory.VendorProgram{
		ID:             inventory.ProgramID(r.ID),
		Name:           r.Name,
		Slug:           r.Slug,
		ManufacturerID: inventory.ManufacturerID(r.ManufacturerID),
		ContractType:   inventory.ContractType(r.ContractType),
	}
}

func toProgramDTO(p inventory.VendorProgram) ProgramRequest {
	return ProgramRequest{
		ID:             string(p.ID),
		Name:           p.Name,
		Slug:           p.Slug,
		ManufacturerID: string(p.ManufacturerID),
		ContractType:   string(p.ContractType),
	}
}

type CoverageRequest struct {
	ID             string          `json:"id"`
	AssetID        string          `json:"asset_id"`
	ProgramID      string          `json:"program_id"`
	Status         string          `json:"status"`
	Eligibility    string          `json:"eligibility,omitempty"`
	EffectiveStart *inventory.Date `json:"effective_start,omitempty"`
	EffectiveEnd   *inventory.Date `json:"effective_end,omitempty"`
	DecisionReason string          `json:"decision_reason,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	EvidenceURL    string          `json:"evidence_url,omitempty"`
	Source         string          `json:"source,omitempty"`
}

func (r CoverageRequest) toCoverage() inventory.AssetProgramCoverage {
	return inventory.AssetProgramCoverage{
		ID:             inventory.CoverageID(r.ID),
		AssetID:        inventory.AssetID(r.AssetID),
		ProgramID:      inventory.ProgramID(r.ProgramID),
		Status:         inventory.CoverageStatus(r.Status),
		Eligibility:    inventory.Eligibility(r.Eligibility),
		EffectiveStart: r.EffectiveStart,
		EffectiveEnd:   r.EffectiveEnd,
		DecisionReason: r.DecisionReason,
		Notes:          r.Notes,
		EvidenceURL:    r.EvidenceURL,
		Source:         inventory.CoverageSource(r.Source),
	}
}

type CoverageDTO struct {
	CoverageRequest
	Current    bool       `json:"current"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
}

func toCoverageDTO(c inventory.AssetProgramCoverage) CoverageDTO {
	return CoverageDTO{
		CoverageRequest: CoverageRequest{
			ID:             string(c.ID),
			AssetID:        string(c.AssetID),
			ProgramID:      string(c.ProgramID),
			Status:         string(c.Status),
			Eligibility:    string(c.Eligibility),
			EffectiveStart: c.EffectiveStart,
			EffectiveEnd:   c.EffectiveEnd,
			DecisionReason: c.DecisionReason,
			Notes:          c.Notes,
			EvidenceURL:    c.EvidenceURL,
			Source:         string(c.Source),
		},
		Current:    c.IsCurrent(),
		LastSynced: c.LastSynced,
	}
}

type ActivateRequest struct {
	ContractID string          `json:"contract_id"`
	SKUID      string          `json:"sku_id"`
	StartDate  *inventory.Date `json:"start_date,omitempty"`
	EndDate    *inventory.Date `json:"end_date,omitempty"`
}

type TransitionRequest struct {
	Status       string          `json:"status"`
	EffectiveEnd *inventory.Date `json:"effective_end,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// SyncRequest runs a program sync. Omitted fields take the sync defaults
// (dry run on, update existing on).
type SyncRequest struct {
	DryRun         *bool    `json:"dry_run,omitempty"`
	UpdateExisting *bool    `json:"update_existing,omitempty"`
	Verbose        bool     `json:"verbose,omitempty"`
	LogLimit       int      `json:"log_limit,omitempty"`
	Kinds          []string `json:"kinds,omitempty"`
}

func (r SyncRequest) toOptions() coverage.SyncOptions {
	opts := coverage.DefaultSyncOptions()
	if r.DryRun != nil {
		opts.DryRun = *r.DryRun
	}
	if r.UpdateExisting != nil {
		opts.UpdateExisting = *r.UpdateExisting
	}
	opts.Verbose = r.Verbose
	if r.LogLimit > 0 {
		opts.LogLimit = r.LogLimit
	}
	for _, k := range r.Kinds {
		opts.Kinds = append(opts.Kinds, inventory.HardwareKind(k))
	}
	return opts
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type RowFailureDTO struct {
	CoverageID string                 `json:"coverage_id"`
	Error      string                 `json:"error"`
	Fields     []inventory.FieldError `json:"fields,omitempty"`
}

type ReconcileDTO struct {
	AssetID        string          `json:"asset_id,omitempty"`
	Downgraded     []string        `json:"downgraded"`
	Failed         []RowFailureDTO `json:"failed,omitempty"`
	SupportChanged bool            `json:"support_changed"`
	Writes         int             `json:"writes"`
}

func toReconcileDTO(r coverage.Result) ReconcileDTO {
	dto := ReconcileDTO{
		AssetID:        string(r.AssetID),
		Downgraded:     make([]string, len(r.Downgraded)),
		SupportChanged: r.SupportChanged,
		Writes:         r.Writes,
	}
	for i, id := range r.Downgraded {
		dto.Downgraded[i] = string(id)
	}
	for _, f := range r.Failed {
		dto.Failed = append(dto.Failed, RowFailureDTO{
			CoverageID: string(f.CoverageID),
			Error:      f.Err.Error(),
			Fields:     inventory.FieldErrorsOf(f.Err),
		})
	}
	return dto
}

type AssignmentResponse struct {
	Assignment AssignmentDTO `json:"assignment"`
	Reconcile  ReconcileDTO  `json:"reconcile"`
}

type ContractResponse struct {
	Contract  ContractDTO  `json:"contract"`
	Reconcile ReconcileDTO `json:"reconcile"`
}

type ActivateResponse struct {
	Coverage   CoverageDTO   `json:"coverage"`
	Assignment AssignmentDTO `json:"assignment"`
	Reconcile  ReconcileDTO  `json:"reconcile"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// HARDWARE TYPES AND LIFECYCLE
// =============================================================================

type HardwareTypeRequest struct {
	Kind            string `json:"kind"`
	ID              string `json:"id"`
	ManufacturerID  string `json:"manufacturer_id"`
	Model           string `json:"model"`
	PartNumber      string `json:"part_number,omitempty"`
	Excluded        bool   `json:"excluded"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`
}

func (r HardwareTypeRequest) toHardwareType() inventory.HardwareType {
	return inventory.HardwareType{
		ID:              inventory.HardwareTypeID(r.ID),
		Kind:            inventory.HardwareKind(r.Kind),
		ManufacturerID:  inventory.ManufacturerID(r.ManufacturerID),
		Model:           r.Model,
		PartNumber:      r.PartNumber,
		Excluded:        r.Excluded,
		ExclusionReason: r.ExclusionReason,
	}
}

func toHardwareTypeDTO(t inventory.HardwareType) HardwareTypeRequest {
	return HardwareTypeRequest{
		Kind:            string(t.Kind),
		ID:              string(t.ID),
		ManufacturerID:  string(t.ManufacturerID),
		Model:           t.Model,
		PartNumber:      t.PartNumber,
		Excluded:        t.Excluded,
		ExclusionReason: t.ExclusionReason,
	}
}

type LifecycleDTO struct {
	EndOfSale           *inventory.Date `json:"end_of_sale,omitempty"`
	EndOfMaintenance    *inventory.Date `json:"end_of_maintenance,omitempty"`
	EndOfSecurity       *inventory.Date `json:"end_of_security,omitempty"`
	EndOfSupport        *inventory.Date `json:"end_of_support,omitempty"`
	LastContractAttach  *inventory.Date `json:"last_contract_attach,omitempty"`
	LastContractRenewal *inventory.Date `json:"last_contract_renewal,omitempty"`
	NoticeURL           string          `json:"notice_url,omitempty"`
	SupportBasis        string          `json:"support_basis,omitempty"`
	ReplacementYear     *int            `json:"replacement_year,omitempty"`
	BudgetYear          *int            `json:"budget_year,omitempty"`
	DaysToEOS           *int            `json:"days_to_eos,omitempty"`
}

func toLifecycleDTO(l inventory.HardwareLifecycle, migrationMonth time.Month, today inventory.Date) *LifecycleDTO {
	dto := &LifecycleDTO{
		EndOfSale:           l.EndOfSale,
		EndOfMaintenance:    l.EndOfMaintenance,
		EndOfSecurity:       l.EndOfSecurity,
		EndOfSupport:        l.EndOfSupport,
		LastContractAttach:  l.LastContractAttach,
		LastContractRenewal: l.LastContractRenewal,
		NoticeURL:           l.NoticeURL,
		SupportBasis:        string(l.SupportBasis),
	}
	if y, ok := l.ReplacementYear(migrationMonth); ok {
		dto.ReplacementYear = &y
	}
	if y, ok := l.BudgetYear(migrationMonth); ok {
		dto.BudgetYear = &y
	}
	if d, ok := l.DaysToVendorEOS(today); ok {
		dto.DaysToEOS = &d
	}
	return dto
}

// EligibilityDTO is the evaluator verdict for one asset.
type EligibilityDTO struct {
	AssetID      string          `json:"asset_id"`
	Eligibility  string          `json:"eligibility"`
	Reason       string          `json:"reason"`
	EndOfSupport *inventory.Date `json:"end_of_support,omitempty"`
	Lifecycle    *LifecycleDTO   `json:"lifecycle,omitempty"`
}

type FreeAssetRequest struct {
	StorageLocationID string `json:"storage_location_id"`
}
