/*
asset.go - Hardware assets and the asset lifecycle guard

PURPOSE:
  An Asset is a physical unit of hardware (or a license bound to a hardware
  family). It has exactly one hardware type (device, module, inventory item
  or rack), may be installed into hardware of the same kind, and carries the
  asset-wide support aggregate maintained by reconciliation.

GUARD (Clean):
  Runs before every asset save, in this order:
  1. warranty sanity
  2. exactly one hardware type
  3. installed hardware matches the asset's kind and type
  4. status flips stored <-> used when hardware is assigned/removed,
     unless status was also edited by hand in the same change
  5. allocation: used + installed hardware => consumed
  6. storage location required iff stored, cleared otherwise
  7. installed site override kept only for used + allocated + no hardware

  Steps 4-7 mutate the asset; steps 1-3 and 6 reject.

SEE ALSO:
  - coverage/assets.go: save path that calls Clean
  - coverage/engine.go: writes the support_* fields
*/
package inventory

import "time"

// =============================================================================
// ASSET
// =============================================================================

// HardwareRef is the hardware an asset is installed as.
type HardwareRef struct {
	Kind HardwareKind
	ID   string
	// TypeID is the hardware's own type. Inventory items carry none.
	TypeID HardwareTypeID
	SiteID string
}

type Asset struct {
	ID       AssetID
	Name     string
	Serial   string
	AssetTag string

	Status     AssetStatus
	Allocation AllocationStatus

	// Exactly one of these is set.
	DeviceTypeID        HardwareTypeID
	ModuleTypeID        HardwareTypeID
	InventoryItemTypeID HardwareTypeID
	RackTypeID          HardwareTypeID

	Hardware                *HardwareRef
	StorageLocationID       string
	InstalledSiteOverrideID string

	WarrantyStart *Date
	WarrantyEnd   *Date

	SupportState       SupportState
	SupportReason      string
	SupportSource      SupportSource
	SupportValidatedAt *time.Time
}

// Asset field names accepted by partial updates.
const (
	AssetFieldSupportState       = "support_state"
	AssetFieldSupportReason      = "support_reason"
	AssetFieldSupportSource      = "support_source"
	AssetFieldSupportValidatedAt = "support_validated_at"
)

func (a Asset) typeIDs() map[HardwareKind]HardwareTypeID {
	return map[HardwareKind]HardwareTypeID{
		KindDevice:        a.DeviceTypeID,
		KindModule:        a.ModuleTypeID,
		KindInventoryItem: a.InventoryItemTypeID,
		KindRack:          a.RackTypeID,
	}
}

// Kind returns the kind of the first hardware type set, or "" if none.
func (a Asset) Kind() HardwareKind {
	ids := a.typeIDs()
	for _, k := range AllKinds {
		if ids[k] != "" {
			return k
		}
	}
	return ""
}

// TypeRef returns the asset's hardware type reference (zero if none).
func (a Asset) TypeRef() TypeRef {
	k := a.Kind()
	if k == "" {
		return TypeRef{}
	}
	return TypeRef{Kind: k, ID: a.typeIDs()[k]}
}

// IsDeployed reports whether the asset is in use on installed hardware.
func (a Asset) IsDeployed() bool {
	return a.Status == AssetUsed && a.Hardware != nil
}

// InstalledSiteID resolves the effective installed site: the hardware's site
// first, then the manual override.
func (a Asset) InstalledSiteID() string {
	if a.Hardware != nil && a.Hardware.SiteID != "" {
		return a.Hardware.SiteID
	}
	return a.InstalledSiteOverrideID
}

// =============================================================================
// ASSET LIFECYCLE GUARD
// =============================================================================

// GuardOptions tunes Clean for special write paths.
type GuardOptions struct {
	// Reassigning skips the installed-hardware type check while an asset is
	// being moved to other hardware.
	Reassigning bool
}

// Clean validates and normalizes the asset before it is saved. prev is the
// stored version (nil on create) and is used to detect hardware changes
// and hand-edited status.
func (a *Asset) Clean(prev *Asset, opts GuardOptions) error {
	v := &ValidationError{Entity: "asset"}

	if !a.Status.Valid() {
		v.Add("status", "Unknown status %q.", a.Status)
	}
	if a.WarrantyStart != nil && a.WarrantyEnd != nil && !a.WarrantyEnd.After(*a.WarrantyStart) {
		v.Add("warranty_end", "Warranty end date must be after warranty start date.")
	}
	a.validateHardwareTypes(v)
	if len(v.Fields) > 0 {
		return v
	}
	a.validateHardware(v, opts)
	if len(v.Fields) > 0 {
		return v
	}

	a.updateStatus(prev)
	a.updateAllocation()

	if a.Status == AssetStored && a.StorageLocationID == "" {
		v.Add("storage_location", "Storage Location is required when Status is 'stored'.")
	}
	if a.Status != AssetStored {
		a.StorageLocationID = ""
	}
	a.cleanInstalledSiteOverride()

	if a.SupportState == SupportExcluded && a.SupportReason == "" {
		v.Add("support_reason", "Excluded assets require a support reason.")
	}
	return v.OrNil()
}

func (a *Asset) validateHardwareTypes(v *ValidationError) {
	set := 0
	for _, id := range a.typeIDs() {
		if id != "" {
			set++
		}
	}
	switch {
	case set > 1:
		v.Add("", "Only one of device type, module type, inventory item type and rack type can be set for the same asset.")
	case set == 0:
		v.Add("", "One of device type, module type, inventory item type or rack type must be set.")
	}
}

func (a *Asset) validateHardware(v *ValidationError, opts GuardOptions) {
	if a.Hardware == nil {
		return
	}
	kind := a.Kind()
	if a.Hardware.Kind != kind {
		v.Add(string(a.Hardware.Kind), "Cannot set %s for asset that is a %s.", a.Hardware.Kind, kind)
		return
	}
	// Inventory items have no type link to compare against.
	if kind == KindInventoryItem || opts.Reassigning {
		return
	}
	if a.Hardware.TypeID != a.typeIDs()[kind] {
		v.Add(string(kind), "%s type of %s does not match %s type of asset.", kind, kind, kind)
	}
}

// updateStatus flips stored/used when hardware was assigned or removed.
// A status edited in the same change always wins.
func (a *Asset) updateStatus(prev *Asset) {
	if prev == nil || prev.Status != a.Status {
		return
	}
	switch {
	case a.Hardware != nil && prev.Hardware == nil:
		a.Status = AssetUsed
	case a.Hardware == nil && prev.Hardware != nil:
		a.Status = AssetStored
	}
}

func (a *Asset) updateAllocation() {
	if a.Status != AssetUsed {
		return
	}
	if a.Hardware != nil {
		a.Allocation = AllocationConsumed
		return
	}
	// "used but not deployed" carries no allocation rather than the default.
	if a.Allocation == AllocationUnallocated {
		a.Allocation = AllocationNone
	}
}

func (a *Asset) cleanInstalledSiteOverride() {
	if a.InstalledSiteOverrideID == "" {
		return
	}
	deployedWithoutHardware := a.Status == AssetUsed &&
		a.Allocation == AllocationAllocated &&
		a.Hardware == nil
	if !deployedWithoutHardware {
		a.InstalledSiteOverrideID = ""
	}
}
