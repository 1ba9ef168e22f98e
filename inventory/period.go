package inventory

// =============================================================================
// PERIOD - A coverage interval with optional bounds
// =============================================================================

// Period is an inclusive [Start, End] coverage interval.
// A nil Start is unknown, a nil End is open-ended.
//
// Examples:
//   - Three year EA term: 2025-01-01 .. 2027-12-31
//   - Open-ended warranty: 2024-06-01 .. (open)
type Period struct {
	Start *Date
	End   *Date
}

// Bounds resolves the period for comparison: a missing start is clamped to
// MinDate and an open end to MaxDate.
func (p Period) Bounds() (Date, Date) {
	start, end := MinDate, MaxDate
	if p.Start != nil {
		start = *p.Start
	}
	if p.End != nil {
		end = *p.End
	}
	return start, end
}

// Overlaps is the classic inclusive interval intersection test:
// start <= other.end AND other.start <= end. Touching endpoints overlap.
func (p Period) Overlaps(other Period) bool {
	start, end := p.Bounds()
	oStart, oEnd := other.Bounds()
	return start.BeforeOrEqual(oEnd) && oStart.BeforeOrEqual(end)
}

// Current reports whether day falls inside the period. Unlike Bounds, an
// unknown start never counts as in force.
func (p Period) Current(day Date) bool {
	if p.Start == nil || day.Before(*p.Start) {
		return false
	}
	return p.End == nil || day.BeforeOrEqual(*p.End)
}

// Valid reports whether start <= end when both are known.
func (p Period) Valid() bool {
	return p.Start == nil || p.End == nil || !p.Start.After(*p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	start, end := "(unknown)", "(open)"
	if p.Start != nil {
		start = p.Start.String()
	}
	if p.End != nil {
		end = p.End.String()
	}
	return "[" + start + ", " + end + "]"
}

// =============================================================================
// INTERVAL OVERLAP VALIDATOR
// =============================================================================

// CheckOverlap rejects candidate if its effective period intersects any peer
// for the same (asset, sku). Peers with the candidate's ID are skipped so an
// edit never conflicts with its own stored version.
//
// Callers must pass peers read under the same transaction that will persist
// the candidate; this check is the only guard against overlapping coverage.
func CheckOverlap(candidate ResolvedAssignment, peers []ResolvedAssignment) error {
	period := candidate.Period()
	for _, peer := range peers {
		if candidate.ID != "" && peer.ID == candidate.ID {
			continue
		}
		if peer.AssetID != candidate.AssetID || peer.SKUID != candidate.SKUID {
			continue
		}
		if other := peer.Period(); period.Overlaps(other) {
			return &OverlapError{
				AssetID:    candidate.AssetID,
				SKUID:      candidate.SKUID,
				Candidate:  period,
				ConflictID: peer.ID,
				Conflict:   other,
			}
		}
	}
	return nil
}
