/*
Package lifecycle decides whether hardware is still eligible for vendor
support programs, using end-of-life facts supplied by an external feed.

PURPOSE:
  Evaluate(asset) -> Verdict{eligibility, reason, end of support}. The policy
  is checked in order; the first rule that applies wins:

  1. no resolvable hardware type        -> unknown
  2. hardware type excluded by vendor   -> ineligible (exclusion reason)
  3. no lifecycle record                -> eligible (assumed supported)
  4. lifecycle basis date unset         -> eligible (assumed supported)
  5. basis date <= today                -> ineligible
     basis date >  today                -> eligible

  Missing data is an "unknown" or "assumed supported" outcome, never an
  error. Errors are reserved for the source itself failing.

PURITY:
  The evaluator reads and never writes. Callers apply verdicts through the
  coverage service so the status matrix is always consulted.

SEE ALSO:
  - feed.go:            loads lifecycle records from a YAML feed
  - coverage/sync.go:   applies verdicts to program coverage
*/
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// CONFIG
// =============================================================================

// DefaultMigrationMonth: hardware whose support ends on or before June is
// replaced the year before.
const DefaultMigrationMonth = time.June

// Config holds the evaluator/feed flags. Passed explicitly, never global.
type Config struct {
	// UseEOSForMissingData fills missing end_of_security/end_of_maintenance
	// from end_of_support before the basis date is read.
	UseEOSForMissingData bool

	// OnlyActiveTypes keeps lifecycle records only for hardware types that
	// have at least one asset. Used by the feed import.
	OnlyActiveTypes bool

	// MigrationMonth drives ReplacementYear/BudgetYear.
	MigrationMonth time.Month
}

func DefaultConfig() Config {
	return Config{
		UseEOSForMissingData: true,
		OnlyActiveTypes:      true,
		MigrationMonth:       DefaultMigrationMonth,
	}
}

// =============================================================================
// SOURCE - Read-only hardware facts
// =============================================================================

// Source supplies the facts the evaluator needs. Both methods return
// (nil, nil) when the record does not exist.
type Source interface {
	HardwareType(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareType, error)
	Lifecycle(ctx context.Context, ref inventory.TypeRef) (*inventory.HardwareLifecycle, error)
}

// =============================================================================
// EVALUATOR
// =============================================================================

// Verdict is the evaluator's output for one asset.
type Verdict struct {
	Eligibility  inventory.Eligibility
	Reason       string
	EndOfSupport *inventory.Date
}

type Evaluator struct {
	source Source
	cfg    Config
	clock  inventory.Clock
}

func NewEvaluator(source Source, cfg Config, clock inventory.Clock) *Evaluator {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if cfg.MigrationMonth == 0 {
		cfg.MigrationMonth = DefaultMigrationMonth
	}
	return &Evaluator{source: source, cfg: cfg, clock: clock}
}

func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate applies the eligibility policy to asset.
func (e *Evaluator) Evaluate(ctx context.Context, asset inventory.Asset) (Verdict, error) {
	ref := asset.TypeRef()
	if ref.IsZero() {
		return Verdict{Eligibility: inventory.EligibilityUnknown, Reason: "No hardware type on asset (cannot evaluate)"}, nil
	}

	hwType, err := e.source.HardwareType(ctx, ref)
	if err != nil {
		return Verdict{}, fmt.Errorf("load hardware type %s: %w", ref, err)
	}
	if hwType == nil {
		return Verdict{Eligibility: inventory.EligibilityUnknown, Reason: "Hardware type not found (cannot evaluate)"}, nil
	}

	if hwType.Excluded {
		reason := hwType.ExclusionReason
		if reason == "" {
			reason = "excluded by vendor"
		}
		return Verdict{
			Eligibility: inventory.EligibilityIneligible,
			Reason:      fmt.Sprintf("%s type excluded: %s", kindLabel(ref.Kind), reason),
		}, nil
	}

	record, err := e.source.Lifecycle(ctx, ref)
	if err != nil {
		return Verdict{}, fmt.Errorf("load lifecycle %s: %w", ref, err)
	}
	if record == nil {
		return Verdict{Eligibility: inventory.EligibilityEligible, Reason: "No lifecycle record (assumed supported)"}, nil
	}

	l := *record
	if e.cfg.UseEOSForMissingData {
		l.FillMissingFromEndOfSupport()
	}
	end := l.BasisDate()
	if end == nil {
		return Verdict{
			Eligibility: inventory.EligibilityEligible,
			Reason:      fmt.Sprintf("Lifecycle record missing end of %s (assumed supported)", basisLabel(l.SupportBasis)),
		}, nil
	}

	today := inventory.Today(e.clock)
	if !end.After(today) {
		return Verdict{
			Eligibility:  inventory.EligibilityIneligible,
			Reason:       fmt.Sprintf("Past End of Support (EOS: %s)", end),
			EndOfSupport: end,
		}, nil
	}
	return Verdict{
		Eligibility:  inventory.EligibilityEligible,
		Reason:       fmt.Sprintf("Supported until %s", end),
		EndOfSupport: end,
	}, nil
}

func kindLabel(k inventory.HardwareKind) string {
	switch k {
	case inventory.KindDevice:
		return "Device"
	case inventory.KindModule:
		return "Module"
	case inventory.KindInventoryItem:
		return "Inventory item"
	case inventory.KindRack:
		return "Rack"
	}
	return "Hardware"
}

func basisLabel(b inventory.SupportBasis) string {
	if b == inventory.BasisSecurity {
		return "security"
	}
	return "support"
}
