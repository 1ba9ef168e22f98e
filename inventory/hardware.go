package inventory

import (
	"time"
)

// =============================================================================
// HARDWARE LIFECYCLE - End-of-life facts for a device or module type
// =============================================================================

// SupportBasis selects which lifecycle date decides "supported".
type SupportBasis string

const (
	BasisSupport  SupportBasis = "support"
	BasisSecurity SupportBasis = "security"
)

// HardwareLifecycle holds vendor EoX dates for one hardware type. Records
// come from an external feed; only device and module types carry them.
type HardwareLifecycle struct {
	Type                TypeRef
	EndOfSale           *Date
	EndOfMaintenance    *Date
	EndOfSecurity       *Date
	EndOfSupport        *Date
	LastContractAttach  *Date
	LastContractRenewal *Date
	NoticeURL           string
	SupportBasis        SupportBasis
}

// BasisDate returns the lifecycle date selected by SupportBasis.
// An empty basis means end of support.
func (l HardwareLifecycle) BasisDate() *Date {
	if l.SupportBasis == BasisSecurity {
		return l.EndOfSecurity
	}
	return l.EndOfSupport
}

// IsSupported is false only when the basis date exists and has been reached.
func (l HardwareLifecycle) IsSupported(today Date) bool {
	end := l.BasisDate()
	return end == nil || today.Before(*end)
}

// DaysToVendorEOS counts days until the basis date; ok is false if unset.
func (l HardwareLifecycle) DaysToVendorEOS(today Date) (days int, ok bool) {
	end := l.BasisDate()
	if end == nil {
		return 0, false
	}
	return DaysBetween(today, *end), true
}

// ReplacementYear is the year hardware should be replaced: the year before
// the basis date when that date falls on or before migrationMonth.
func (l HardwareLifecycle) ReplacementYear(migrationMonth time.Month) (int, bool) {
	end := l.BasisDate()
	if end == nil {
		return 0, false
	}
	if end.Month() <= migrationMonth {
		return end.Year() - 1, true
	}
	return end.Year(), true
}

// BudgetYear is one year ahead of ReplacementYear.
func (l HardwareLifecycle) BudgetYear(migrationMonth time.Month) (int, bool) {
	year, ok := l.ReplacementYear(migrationMonth)
	if !ok {
		return 0, false
	}
	return year - 1, true
}

// FillMissingFromEndOfSupport copies end_of_support into missing security and
// maintenance dates. Returns true if anything was filled.
func (l *HardwareLifecycle) FillMissingFromEndOfSupport() bool {
	if l.EndOfSupport == nil {
		return false
	}
	filled := false
	if l.EndOfSecurity == nil {
		l.EndOfSecurity = DatePtr(*l.EndOfSupport)
		filled = true
	}
	if l.EndOfMaintenance == nil {
		l.EndOfMaintenance = DatePtr(*l.EndOfSupport)
		filled = true
	}
	return filled
}

func (l HardwareLifecycle) Validate() error {
	v := &ValidationError{Entity: "hardware lifecycle"}
	if l.Type.Kind != KindDevice && l.Type.Kind != KindModule {
		v.Add("assigned_object_type", "Lifecycle records attach to device or module types only.")
	}
	if l.Type.ID == "" {
		v.Add("assigned_object_id", "Hardware type is required.")
	}
	switch l.SupportBasis {
	case "", BasisSupport, BasisSecurity:
	default:
		v.Add("support_basis", "Unknown support basis %q.", l.SupportBasis)
	}
	return v.OrNil()
}
