/*
contract.go - Vendor contracts, SKUs and contract assignments

PURPOSE:
  A Contract is a vendor agreement; a ContractSKU is the atomic purchasable
  coverage unit; a ContractAssignment binds one asset to one (contract, sku)
  pair for a coverage period.

EFFECTIVE DATES:
  Assignment start/end/renewal fall back to the parent contract's dates when
  unset. Every interval computation uses the effective values, never the raw
  nullable fields. ResolvedAssignment carries the contract and SKU so the
  fallback can be applied without another lookup.

CONTRACT STATUS:
  Recomputed from dates on every save while status is draft/active/expired.
  cancelled and renewed are manual terminal states and never recomputed.

SEE ALSO:
  - period.go: CheckOverlap uses ResolvedAssignment.Period
  - coverage/assignments.go: the write path that enforces these rules
*/
package inventory

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACT
// =============================================================================

type Contract struct {
	ID          ContractID
	Number      string // vendor contract number, unique
	Type        ContractType
	Status      ContractStatus
	VendorName  string
	Description string
	StartDate   *Date
	EndDate     *Date
	RenewalDate *Date
	Notes       string
}

// Period returns the contract term.
func (c Contract) Period() Period {
	return Period{Start: c.StartDate, End: c.EndDate}
}

// RefreshStatus recomputes Status from the dates. Returns true if it changed.
// Only draft/active/expired (or empty) are recomputed; cancelled and renewed stick.
func (c *Contract) RefreshStatus(today Date) bool {
	original := c.Status
	switch c.Status {
	case "", ContractDraft, ContractActive, ContractExpired:
	default:
		return false
	}

	switch {
	case c.EndDate != nil && c.EndDate.Before(today):
		c.Status = ContractExpired
	case c.StartDate != nil && c.StartDate.After(today):
		c.Status = ContractDraft
	case c.StartDate != nil:
		c.Status = ContractActive
	case c.Status == "":
		c.Status = ContractDraft
	}
	return c.Status != original
}

// Validate checks the contract's own fields.
func (c Contract) Validate() error {
	v := &ValidationError{Entity: "contract"}
	if c.Number == "" {
		v.Add("contract_id", "Contract ID is required.")
	}
	if !c.Type.Valid() {
		v.Add("contract_type", "Unknown contract type %q.", c.Type)
	}
	if !c.Period().Valid() {
		v.Add("end_date", "End date must be after or equal to start date.")
	}
	return v.OrNil()
}

// NeedsRenewal reports whether the renewal date has been reached.
func (c Contract) NeedsRenewal(today Date) bool {
	return c.RenewalDate != nil && !today.Before(*c.RenewalDate)
}

// ProgressPercent is the elapsed share of the contract term.
func (c Contract) ProgressPercent(today Date) decimal.Decimal {
	return progressPercent(c.Period(), today)
}

// =============================================================================
// CONTRACT SKU
// =============================================================================

// ContractSKU is scoped to a manufacturer and a contract type; it must match
// the contract type of any contract or program it is used with.
type ContractSKU struct {
	ID             SKUID
	SKU            string
	ManufacturerID ManufacturerID
	ContractType   ContractType
	ServiceLevel   string
	Description    string
}

func (s ContractSKU) Validate() error {
	v := &ValidationError{Entity: "contract sku"}
	if s.SKU == "" {
		v.Add("sku", "SKU is required.")
	}
	if s.ManufacturerID == "" {
		v.Add("manufacturer", "Manufacturer is required.")
	}
	if !s.ContractType.Valid() {
		v.Add("contract_type", "Unknown contract type %q.", s.ContractType)
	}
	return v.OrNil()
}

// =============================================================================
// CONTRACT ASSIGNMENT
// =============================================================================

type ContractAssignment struct {
	ID          AssignmentID
	AssetID     AssetID
	ContractID  ContractID
	SKUID       SKUID
	ProgramID   ProgramID // optional; derived from (sku manufacturer, contract type) when empty
	StartDate   *Date
	EndDate     *Date
	RenewalDate *Date
}

// ResolvedAssignment is an assignment together with the records its
// effective dates and matching rules depend on.
type ResolvedAssignment struct {
	ContractAssignment
	Contract Contract
	SKU      ContractSKU
}

// EffectiveStart prefers the explicit start, then the contract start.
func (a ResolvedAssignment) EffectiveStart() *Date {
	if a.StartDate != nil {
		return a.StartDate
	}
	return a.Contract.StartDate
}

// EffectiveEnd prefers the explicit end, then the contract end. nil is open-ended.
func (a ResolvedAssignment) EffectiveEnd() *Date {
	if a.EndDate != nil {
		return a.EndDate
	}
	return a.Contract.EndDate
}

// EffectiveRenewal prefers the explicit renewal date, then the contract's.
func (a ResolvedAssignment) EffectiveRenewal() *Date {
	if a.RenewalDate != nil {
		return a.RenewalDate
	}
	return a.Contract.RenewalDate
}

// Period is the effective coverage period used for all interval math.
func (a ResolvedAssignment) Period() Period {
	return Period{Start: a.EffectiveStart(), End: a.EffectiveEnd()}
}

// IsCurrent reports effective_start <= today <= (effective_end or +inf).
// An assignment with no effective start is never current.
func (a ResolvedAssignment) IsCurrent(today Date) bool {
	return a.Period().Current(today)
}

// Matches reports whether the assignment can back coverage for a program of
// the given contract type and (optional) manufacturer.
func (a ResolvedAssignment) Matches(contractType ContractType, manufacturer ManufacturerID) bool {
	if a.Contract.Type != contractType {
		return false
	}
	return manufacturer == "" || a.SKU.ManufacturerID == manufacturer
}

// Validate checks the rules that need only the assignment and its references.
// Overlap is checked separately against peers.
func (a ResolvedAssignment) Validate() error {
	v := &ValidationError{Entity: "contract assignment"}
	if a.AssetID == "" {
		v.Add("asset", "Asset is required.")
	}
	if a.ContractID == "" {
		v.Add("contract", "Contract is required.")
	}
	if a.SKUID == "" {
		v.Add("sku", "SKU is required.")
	}
	if a.ContractID != "" && a.SKUID != "" && a.Contract.Type != "" && a.SKU.ContractType != "" &&
		a.Contract.Type != a.SKU.ContractType {
		v.Add("sku", "SKU type (%s) does not match contract type (%s).", a.SKU.ContractType, a.Contract.Type)
	}
	if !a.Period().Valid() {
		v.Add("start_date", "Start date must be before or equal to end date.")
		v.Add("end_date", "End date must be after or equal to start date.")
	}
	return v.OrNil()
}

// DaysUntilExpiry returns days left until the effective end; 0 once passed.
// ok is false for open-ended assignments.
func (a ResolvedAssignment) DaysUntilExpiry(today Date) (days int, ok bool) {
	end := a.EffectiveEnd()
	if end == nil {
		return 0, false
	}
	if end.After(today) {
		return DaysBetween(today, *end), true
	}
	return 0, true
}

// IsExpired reports whether the effective end has passed.
func (a ResolvedAssignment) IsExpired(today Date) bool {
	end := a.EffectiveEnd()
	return end != nil && end.Before(today)
}

// NeedsRenewal reports whether the effective renewal date has been reached.
func (a ResolvedAssignment) NeedsRenewal(today Date) bool {
	r := a.EffectiveRenewal()
	return r != nil && !today.Before(*r)
}

// ProgressPercent is the elapsed share of the effective period.
func (a ResolvedAssignment) ProgressPercent(today Date) decimal.Decimal {
	return progressPercent(a.Period(), today)
}

var hundred = decimal.NewFromInt(100)

// progressPercent returns elapsed/duration*100 clamped to [0, 100] with two
// decimals. Unknown or zero-length periods report 0.
func progressPercent(p Period, today Date) decimal.Decimal {
	if p.Start == nil || p.End == nil {
		return decimal.Zero
	}
	duration := DaysBetween(*p.Start, *p.End)
	if duration <= 0 {
		return decimal.Zero
	}
	if p.End.Before(today) {
		return hundred
	}
	elapsed := DaysBetween(*p.Start, today)
	if elapsed <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(duration))).Mul(hundred)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return pct.Round(2)
}
