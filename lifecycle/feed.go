/*
feed.go - Hardware lifecycle feed import

PURPOSE:
  The vendor EoX data arrives as a YAML document keyed by part number.
  Import matches each record to the device/module types carrying that part
  number and upserts their lifecycle records.

FEED FORMAT:
  manufacturer: cisco            # optional, restricts part number matching
  records:
    - part_number: C9300-48P
      end_of_sale: "2025-10-30"
      end_of_maintenance: "2026-10-30"
      end_of_security: "2027-10-30"
      end_of_support: "2030-10-31"
      last_contract_attach: "2026-10-30"
      last_contract_renewal: "2029-07-31"
      notice_url: https://vendor.example/eol/c9300
      support_basis: support
      excluded: false            # optional; overrides the type's exclusion flag
      exclusion_reason: ""

RULES:
  - A record is written only when it changes something and carries both
    end_of_sale and end_of_support; partial records are ignored.
  - OnlyActiveTypes: types with no assets get no record, and an existing
    record for them is removed.
  - UseEOSForMissingData: missing security/maintenance dates are copied
    from end_of_support before saving.
  - Each matched type is written in its own transaction; one failure does
    not stop the import.
*/
package lifecycle

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/logger"
)

// =============================================================================
// FEED DOCUMENT
// =============================================================================

type Feed struct {
	Manufacturer string       `yaml:"manufacturer"`
	Records      []FeedRecord `yaml:"records"`
}

type FeedRecord struct {
	PartNumber          string `yaml:"part_number"`
	EndOfSale           string `yaml:"end_of_sale"`
	EndOfMaintenance    string `yaml:"end_of_maintenance"`
	EndOfSecurity       string `yaml:"end_of_security"`
	EndOfSupport        string `yaml:"end_of_support"`
	LastContractAttach  string `yaml:"last_contract_attach"`
	LastContractRenewal string `yaml:"last_contract_renewal"`
	NoticeURL           string `yaml:"notice_url"`
	SupportBasis        string `yaml:"support_basis"`
	Excluded            *bool  `yaml:"excluded"`
	ExclusionReason     string `yaml:"exclusion_reason"`
}

// LoadFeed reads a feed document from a YAML file.
func LoadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lifecycle feed: %w", err)
	}
	return ParseFeed(data)
}

func ParseFeed(data []byte) (*Feed, error) {
	var feed Feed
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse lifecycle feed: %w", err)
	}
	for i, r := range feed.Records {
		if _, err := r.dates(); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.PartNumber, err)
		}
		switch inventory.SupportBasis(r.SupportBasis) {
		case "", inventory.BasisSupport, inventory.BasisSecurity:
		default:
			return nil, fmt.Errorf("record %d (%s): unknown support_basis %q", i, r.PartNumber, r.SupportBasis)
		}
	}
	return &feed, nil
}

// recordDates is the parsed form of a record's date strings.
type recordDates struct {
	endOfSale, endOfMaintenance, endOfSecurity, endOfSupport *inventory.Date
	lastAttach, lastRenewal                                  *inventory.Date
}

func (r FeedRecord) dates() (recordDates, error) {
	var out recordDates
	fields := []struct {
		raw string
		dst **inventory.Date
	}{
		{r.EndOfSale, &out.endOfSale},
		{r.EndOfMaintenance, &out.endOfMaintenance},
		{r.EndOfSecurity, &out.endOfSecurity},
		{r.EndOfSupport, &out.endOfSupport},
		{r.LastContractAttach, &out.lastAttach},
		{r.LastContractRenewal, &out.lastRenewal},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := inventory.ParseDate(f.raw)
		if err != nil {
			return recordDates{}, err
		}
		*f.dst = inventory.DatePtr(d)
	}
	return out, nil
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportReport counts outcomes per matched hardware type.
type ImportReport struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Unchanged     int `json:"unchanged"`
	Removed       int `json:"removed"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	TypesExcluded int `json:"types_excluded"`
}

type Importer struct {
	store inventory.TxStore
	cfg   Config
	log   *logger.Logger
}

func NewImporter(store inventory.TxStore, cfg Config, log *logger.Logger) *Importer {
	return &Importer{store: store, cfg: cfg, log: logger.OrNop(log)}
}

// Import applies feed to the store.
func (im *Importer) Import(ctx context.Context, feed *Feed) (ImportReport, error) {
	var report ImportReport

	types, err := im.store.ListHardwareTypes(ctx)
	if err != nil {
		return report, fmt.Errorf("list hardware types: %w", err)
	}
	assets, err := im.store.ListAssets(ctx)
	if err != nil {
		return report, fmt.Errorf("list assets: %w", err)
	}
	instances := make(map[inventory.TypeRef]int)
	for _, a := range assets {
		instances[a.TypeRef()]++
	}

	byPart := make(map[string][]inventory.HardwareType)
	for _, t := range types {
		if t.Kind != inventory.KindDevice && t.Kind != inventory.KindModule {
			continue
		}
		if t.PartNumber == "" {
			continue
		}
		if feed.Manufacturer != "" && string(t.ManufacturerID) != feed.Manufacturer {
			continue
		}
		byPart[t.PartNumber] = append(byPart[t.PartNumber], t)
	}

	for _, rec := range feed.Records {
		matched := byPart[rec.PartNumber]
		if len(matched) == 0 {
			im.log.Info("lifecycle feed: no hardware type for part number", "part_number", rec.PartNumber)
			report.Skipped++
			continue
		}
		for _, t := range matched {
			outcome, err := im.importOne(ctx, t, rec, instances[t.Ref()])
			if err != nil {
				im.log.Error("lifecycle feed: import failed", "part_number", rec.PartNumber, "type", t.Ref().String(), "error", err)
				report.Failed++
				continue
			}
			report.add(outcome)
		}
	}

	im.log.Info("lifecycle feed imported",
		"created", report.Created, "updated", report.Updated, "unchanged", report.Unchanged,
		"removed", report.Removed, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

type importOutcome struct {
	lifecycle string // created, updated, unchanged, removed, skipped
	excluded  bool
}

func (r *ImportReport) add(o importOutcome) {
	switch o.lifecycle {
	case "created":
		r.Created++
	case "updated":
		r.Updated++
	case "unchanged":
		r.Unchanged++
	case "removed":
		r.Removed++
	case "skipped":
		r.Skipped++
	}
	if o.excluded {
		r.TypesExcluded++
	}
}

func (im *Importer) importOne(ctx context.Context, t inventory.HardwareType, rec FeedRecord, instances int) (importOutcome, error) {
	var outcome importOutcome
	ref := t.Ref()

	err := im.store.WithTx(ctx, func(tx inventory.Store) error {
		outcome = importOutcome{}

		if rec.Excluded != nil && (t.Excluded != *rec.Excluded || t.ExclusionReason != rec.ExclusionReason) {
			t.Excluded = *rec.Excluded
			t.ExclusionReason = rec.ExclusionReason
			if err := tx.SaveHardwareType(ctx, t); err != nil {
				return err
			}
			outcome.excluded = t.Excluded
		}

		existing, err := tx.FindLifecycle(ctx, ref)
		if err != nil {
			return err
		}

		if instances == 0 && im.cfg.OnlyActiveTypes {
			if existing != nil {
				im.log.Info("lifecycle feed: no assets for type, removing record", "type", ref.String())
				outcome.lifecycle = "removed"
				return tx.DeleteLifecycle(ctx, ref)
			}
			outcome.lifecycle = "skipped"
			return nil
		}

		dates, err := rec.dates()
		if err != nil {
			return err
		}

		l := inventory.HardwareLifecycle{Type: ref}
		if existing != nil {
			l = *existing
		}
		changed := applyRecord(&l, rec, dates)
		if !changed || dates.endOfSale == nil || dates.endOfSupport == nil {
			outcome.lifecycle = "unchanged"
			return nil
		}
		if im.cfg.UseEOSForMissingData {
			l.FillMissingFromEndOfSupport()
		}
		if err := l.Validate(); err != nil {
			return err
		}
		if err := tx.SaveLifecycle(ctx, l); err != nil {
			return err
		}
		if existing == nil {
			outcome.lifecycle = "created"
		} else {
			outcome.lifecycle = "updated"
		}
		return nil
	})
	return outcome, err
}

// applyRecord copies the feed values that are present onto l.
func applyRecord(l *inventory.HardwareLifecycle, rec FeedRecord, d recordDates) bool {
	changed := false
	setDate := func(dst **inventory.Date, v *inventory.Date) {
		if v != nil && !inventory.SameDate(*dst, v) {
			*dst = v
			changed = true
		}
	}
	setDate(&l.EndOfSale, d.endOfSale)
	setDate(&l.EndOfMaintenance, d.endOfMaintenance)
	setDate(&l.EndOfSecurity, d.endOfSecurity)
	setDate(&l.EndOfSupport, d.endOfSupport)
	setDate(&l.LastContractAttach, d.lastAttach)
	setDate(&l.LastContractRenewal, d.lastRenewal)

	if rec.NoticeURL != "" && rec.NoticeURL != l.NoticeURL {
		l.NoticeURL = rec.NoticeURL
		changed = true
	}
	if basis := inventory.SupportBasis(rec.SupportBasis); basis != "" && basis != l.SupportBasis {
		l.SupportBasis = basis
		changed = true
	}
	return changed
}
