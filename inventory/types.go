/*
Package inventory provides the domain model and consistency rules for
hardware assets and the vendor contracts that cover them.

PURPOSE:
  Three facts must stay mutually consistent at all times:
  - an asset's physical/allocation lifecycle state
  - the set of non-overlapping contract coverage periods on the asset
  - the derived program coverage/eligibility decision for vendor renewals

  This package holds the data types and the pure rules. Orchestration
  (reconciliation, activation, sync) lives in the coverage package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers for every record kind
  - Choice sets (asset status, contract type, coverage status, ...)
  - HardwareKind and TypeRef, the tagged hardware-type reference

SEE ALSO:
  - asset.go:    Asset and the lifecycle guard
  - contract.go: Contract, ContractSKU, ContractAssignment
  - program.go:  VendorProgram, AssetProgramCoverage and the status matrix
  - period.go:   Period and the interval overlap validator
*/
package inventory

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AssetID string
type ContractID string
type SKUID string
type AssignmentID string
type ProgramID string
type CoverageID string
type ManufacturerID string
type HardwareTypeID string

// =============================================================================
// HARDWARE KINDS
// =============================================================================

// HardwareKind is the family of hardware an asset (or lifecycle record) refers to.
type HardwareKind string

const (
	KindDevice        HardwareKind = "device"
	KindModule        HardwareKind = "module"
	KindInventoryItem HardwareKind = "inventoryitem"
	KindRack          HardwareKind = "rack"
)

// AllKinds lists kinds in the order they are resolved.
var AllKinds = []HardwareKind{KindDevice, KindModule, KindInventoryItem, KindRack}

func (k HardwareKind) Valid() bool {
	switch k {
	case KindDevice, KindModule, KindInventoryItem, KindRack:
		return true
	}
	return false
}

// TypeRef points at a hardware type record of a given kind.
// Lookups are dispatched on Kind; there is no runtime type inspection.
type TypeRef struct {
	Kind HardwareKind
	ID   HardwareTypeID
}

func (r TypeRef) IsZero() bool   { return r.ID == "" }
func (r TypeRef) String() string { return string(r.Kind) + ":" + string(r.ID) }

// HardwareType is a make/model record (device type, module type, ...).
// Excluded carries the vendor exclusion flag consumed by eligibility evaluation.
type HardwareType struct {
	ID              HardwareTypeID
	Kind            HardwareKind
	ManufacturerID  ManufacturerID
	Model           string
	PartNumber      string
	Excluded        bool
	ExclusionReason string
}

func (t HardwareType) Ref() TypeRef { return TypeRef{Kind: t.Kind, ID: t.ID} }

// =============================================================================
// ASSET CHOICES
// =============================================================================

type AssetStatus string

const (
	AssetStored    AssetStatus = "stored"
	AssetUsed      AssetStatus = "used"
	AssetInTransit AssetStatus = "in-transit"
	AssetDisposed  AssetStatus = "disposed"
	AssetRetired   AssetStatus = "retired"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStored, AssetUsed, AssetInTransit, AssetDisposed, AssetRetired:
		return true
	}
	return false
}

// AllocationStatus is the logical allocation of an asset. Empty means null.
type AllocationStatus string

const (
	AllocationNone        AllocationStatus = ""
	AllocationUnallocated AllocationStatus = "unallocated"
	AllocationAllocated   AllocationStatus = "allocated"
	AllocationConsumed    AllocationStatus = "consumed"
)

type SupportState string

const (
	SupportSupported   SupportState = "supported"
	SupportUnsupported SupportState = "unsupported"
	SupportExcluded    SupportState = "excluded"
	SupportUnknown     SupportState = "unknown"
)

type SupportSource string

const (
	SourceComputed SupportSource = "computed"
	SourceManual   SupportSource = "manual"
	SourceImported SupportSource = "imported"
	SourceAPI      SupportSource = "api"
)

// Support reasons. Operational gaps are fixable, exclusions are intentional,
// structural reasons are not fixable.
const (
	ReasonContractMissing     = "contract_missing"
	ReasonContractExpired     = "contract_expired"
	ReasonCoveragePending     = "coverage_pending"
	ReasonDataMissing         = "data_missing"
	ReasonLab                 = "lab"
	ReasonSpare               = "spare"
	ReasonDecommissionPlanned = "decommission_planned"
	ReasonPastEndOfSupport    = "past_end_of_support"
	ReasonVendorUnsupported   = "vendor_unsupported"
)

// =============================================================================
// CONTRACT CHOICES
// =============================================================================

type ContractType string

const (
	ContractSupportEA  ContractType = "support-ea"
	ContractSupportALC ContractType = "support-alc"
	ContractWarranty   ContractType = "warranty"
	ContractOther      ContractType = "other"
)

func (t ContractType) Valid() bool {
	switch t {
	case ContractSupportEA, ContractSupportALC, ContractWarranty, ContractOther:
		return true
	}
	return false
}

type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractExpired   ContractStatus = "expired"
	ContractRenewed   ContractStatus = "renewed"
	ContractCancelled ContractStatus = "cancelled"
)

// =============================================================================
// PROGRAM COVERAGE CHOICES
// =============================================================================

type CoverageStatus string

const (
	CoveragePlanned    CoverageStatus = "planned"
	CoverageActive     CoverageStatus = "active"
	CoverageExcluded   CoverageStatus = "excluded"
	CoverageTerminated CoverageStatus = "terminated"
)

func (s CoverageStatus) Valid() bool {
	switch s {
	case CoveragePlanned, CoverageActive, CoverageExcluded, CoverageTerminated:
		return true
	}
	return false
}

type Eligibility string

const (
	EligibilityUnknown    Eligibility = "unknown"
	EligibilityEligible   Eligibility = "eligible"
	EligibilityIneligible Eligibility = "ineligible"
)

func (e Eligibility) Valid() bool {
	switch e {
	case EligibilityUnknown, EligibilityEligible, EligibilityIneligible:
		return true
	}
	return false
}

type CoverageSource string

const (
	CoverageSourceManual CoverageSource = "manual"
	CoverageSourceSync   CoverageSource = "sync"
	CoverageSourceImport CoverageSource = "import"
)

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now". Engines take a Clock so tests can pin today.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }
