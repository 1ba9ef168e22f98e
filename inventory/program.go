/*
program.go - Vendor programs, program coverage and the status matrix

PURPOSE:
  A VendorProgram is a (manufacturer, contract type) policy context such as
  "Cisco EA". An AssetProgramCoverage row is the decision record for one
  (asset, program) pair: its lifecycle stage (status) and its renewal
  verdict (eligibility).

STATUS / ELIGIBILITY MATRIX:
  | status     | permitted eligibility |
  |------------|-----------------------|
  | planned    | eligible, unknown     |
  | active     | eligible              |
  | excluded   | eligible, unknown     |
  | terminated | ineligible            |

  Additional rules:
  - terminated requires effective_end
  - active requires a manufacturer match (when determinable) and a current
    contract assignment matching the program

TRANSITIONS:
  planned  -> active      explicit activation only
  active   -> planned     automatic downgrade by reconciliation
  planned  <-> excluded   explicit, manual
  planned|active|excluded -> terminated   explicit, terminal

  Nothing leaves terminated.

SEE ALSO:
  - coverage/engine.go: downgrade path
  - coverage/activate.go: planned -> active
*/
package inventory

import "time"

// =============================================================================
// VENDOR PROGRAM
// =============================================================================

// VendorProgram is unique per (manufacturer, contract type).
type VendorProgram struct {
	ID             ProgramID
	Name           string
	Slug           string
	ManufacturerID ManufacturerID // optional
	ContractType   ContractType
}

func (p VendorProgram) Validate() error {
	v := &ValidationError{Entity: "vendor program"}
	if p.Name == "" {
		v.Add("name", "Name is required.")
	}
	if p.Slug == "" {
		v.Add("slug", "Slug is required.")
	}
	if !p.ContractType.Valid() {
		v.Add("contract_type", "Unknown contract type %q.", p.ContractType)
	}
	return v.OrNil()
}

// =============================================================================
// ASSET PROGRAM COVERAGE
// =============================================================================

// AssetProgramCoverage is the derived decision record for (asset, program).
// At most one row per pair may have a nil EffectiveEnd (the "current" row).
type AssetProgramCoverage struct {
	ID             CoverageID
	AssetID        AssetID
	ProgramID      ProgramID
	Status         CoverageStatus
	Eligibility    Eligibility
	EffectiveStart *Date
	EffectiveEnd   *Date
	DecisionReason string
	Notes          string
	EvidenceURL    string
	Source         CoverageSource
	LastSynced     *time.Time
}

// IsCurrent reports whether this is the open (current) row for its pair.
func (c AssetProgramCoverage) IsCurrent() bool {
	return c.EffectiveEnd == nil
}

// Coverage field names accepted by partial updates.
const (
	CoverageFieldStatus         = "status"
	CoverageFieldEligibility    = "eligibility"
	CoverageFieldEffectiveStart = "effective_start"
	CoverageFieldEffectiveEnd   = "effective_end"
	CoverageFieldDecisionReason = "decision_reason"
	CoverageFieldNotes          = "notes"
	CoverageFieldEvidenceURL    = "evidence_url"
	CoverageFieldSource         = "source"
	CoverageFieldLastSynced     = "last_synced"
)

// ChangedCoverageFields lists the fields that differ between before and after.
// LastSynced is excluded; sync stamps it explicitly.
func ChangedCoverageFields(before, after AssetProgramCoverage) []string {
	var fields []string
	if before.Status != after.Status {
		fields = append(fields, CoverageFieldStatus)
	}
	if before.Eligibility != after.Eligibility {
		fields = append(fields, CoverageFieldEligibility)
	}
	if !SameDate(before.EffectiveStart, after.EffectiveStart) {
		fields = append(fields, CoverageFieldEffectiveStart)
	}
	if !SameDate(before.EffectiveEnd, after.EffectiveEnd) {
		fields = append(fields, CoverageFieldEffectiveEnd)
	}
	if before.DecisionReason != after.DecisionReason {
		fields = append(fields, CoverageFieldDecisionReason)
	}
	if before.Notes != after.Notes {
		fields = append(fields, CoverageFieldNotes)
	}
	if before.EvidenceURL != after.EvidenceURL {
		fields = append(fields, CoverageFieldEvidenceURL)
	}
	if before.Source != after.Source {
		fields = append(fields, CoverageFieldSource)
	}
	return fields
}

// =============================================================================
// COVERAGE STATUS MATRIX
// =============================================================================

var allowedEligibility = map[CoverageStatus]map[Eligibility]bool{
	CoveragePlanned:    {EligibilityEligible: true, EligibilityUnknown: true},
	CoverageActive:     {EligibilityEligible: true},
	CoverageExcluded:   {EligibilityEligible: true, EligibilityUnknown: true},
	CoverageTerminated: {EligibilityIneligible: true},
}

// forcedEligibility is the only eligibility a status permits, if there is one.
var forcedEligibility = map[CoverageStatus]Eligibility{
	CoverageActive:     EligibilityEligible,
	CoverageTerminated: EligibilityIneligible,
}

// ForcedEligibility returns the single eligibility permitted for status.
func ForcedEligibility(status CoverageStatus) (Eligibility, bool) {
	e, ok := forcedEligibility[status]
	return e, ok
}

// ValidateStatusEligibility is the pure matrix check.
func ValidateStatusEligibility(status CoverageStatus, eligibility Eligibility) error {
	if !status.Valid() {
		return NewFieldError("program coverage", "status", "Unknown status %q.", status)
	}
	if !eligibility.Valid() {
		return NewFieldError("program coverage", "eligibility", "Unknown eligibility %q.", eligibility)
	}
	if allowedEligibility[status][eligibility] {
		return nil
	}
	switch status {
	case CoverageActive:
		return NewFieldError("program coverage", "eligibility", "ACTIVE coverage requires eligibility to be ELIGIBLE.")
	case CoverageTerminated:
		return NewFieldError("program coverage", "eligibility", "TERMINATED coverage requires eligibility to be INELIGIBLE (cannot be re-added).")
	default:
		return NewFieldError("program coverage", "status", "INELIGIBLE records must be TERMINATED.")
	}
}

// CoverageFacts are the facts outside the row that ValidateCoverage needs.
type CoverageFacts struct {
	Program VendorProgram
	// AssetManufacturer is empty when it can't be determined.
	AssetManufacturer ManufacturerID
	// HasCurrentMatchingAssignment is only consulted for active rows.
	HasCurrentMatchingAssignment bool
}

// ValidateCoverage applies date sanity, the matrix, manufacturer rules,
// terminated-requires-end and active-requires-matching-contract.
// Violations are reported, never coerced.
func ValidateCoverage(c AssetProgramCoverage, facts CoverageFacts) error {
	v := &ValidationError{Entity: "program coverage"}

	if c.AssetID == "" {
		v.Add("asset", "Asset is required.")
	}
	if c.ProgramID == "" {
		v.Add("program", "Program is required.")
	}
	if !(Period{Start: c.EffectiveStart, End: c.EffectiveEnd}).Valid() {
		v.Add("effective_end", "effective_end cannot be before effective_start.")
	}
	if err := ValidateStatusEligibility(c.Status, c.Eligibility); err != nil {
		v.Fields = append(v.Fields, FieldErrorsOf(err)...)
	}

	programMfr := facts.Program.ManufacturerID
	if c.Status == CoverageActive && programMfr != "" && facts.AssetManufacturer == "" {
		v.Add("asset", "Cannot determine asset manufacturer (no hardware type/manufacturer found for this asset).")
	}
	if programMfr != "" && facts.AssetManufacturer != "" && programMfr != facts.AssetManufacturer {
		v.Add("program", "Program manufacturer does not match this asset's manufacturer (%s).", facts.AssetManufacturer)
	}

	if c.Status == CoverageTerminated && c.EffectiveEnd == nil {
		v.Add("effective_end", "TERMINATED coverage should have an effective_end date.")
	}
	if c.Status == CoverageActive && !facts.HasCurrentMatchingAssignment {
		v.Add("status", "ACTIVE coverage requires a current contract assignment matching the program.")
	}
	return v.OrNil()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

var transitions = map[CoverageStatus]map[CoverageStatus]bool{
	CoveragePlanned:  {CoverageActive: true, CoverageExcluded: true, CoverageTerminated: true},
	CoverageActive:   {CoveragePlanned: true, CoverageTerminated: true},
	CoverageExcluded: {CoveragePlanned: true, CoverageTerminated: true},
}

// CanTransition reports whether from -> to is a legal status move.
// Staying in the same status is always allowed except out of nothing.
func CanTransition(from, to CoverageStatus) bool {
	if from == to {
		return from.Valid()
	}
	return transitions[from][to]
}

// CanTransitionManually is CanTransition for operator-requested moves.
// active -> planned is reserved for reconciliation, so an active row can
// only be terminated by hand, and nothing is moved to active here.
func CanTransitionManually(from, to CoverageStatus) bool {
	if to == CoverageActive {
		return false
	}
	if from == CoverageActive && to != CoverageTerminated {
		return false
	}
	return CanTransition(from, to)
}
