// Package store provides in-memory inventory.Store implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// state holds the records. Its methods do no locking; Memory locks around
// them and the transactional view runs under the lock WithTx already holds.
type state struct {
	assets      map[inventory.AssetID]inventory.Asset
	types       map[inventory.TypeRef]inventory.HardwareType
	lifecycles  map[inventory.TypeRef]inventory.HardwareLifecycle
	contracts   map[inventory.ContractID]inventory.Contract
	skus        map[inventory.SKUID]inventory.ContractSKU
	assignments map[inventory.AssignmentID]inventory.ContractAssignment
	programs    map[inventory.ProgramID]inventory.VendorProgram
	coverages   map[inventory.CoverageID]inventory.AssetProgramCoverage
}

func newState() *state {
	return &state{
		assets:      make(map[inventory.AssetID]inventory.Asset),
		types:       make(map[inventory.TypeRef]inventory.HardwareType),
		lifecycles:  make(map[inventory.TypeRef]inventory.HardwareLifecycle),
		contracts:   make(map[inventory.ContractID]inventory.Contract),
		skus:        make(map[inventory.SKUID]inventory.ContractSKU),
		assignments: make(map[inventory.AssignmentID]inventory.ContractAssignment),
		programs:    make(map[inventory.ProgramID]inventory.VendorProgram),
		coverages:   make(map[inventory.CoverageID]inventory.AssetProgramCoverage),
	}
}

func (s *state) clone() *state {
	return &state{
		assets:      maps.Clone(s.assets),
		types:       maps.Clone(s.types),
		lifecycles:  maps.Clone(s.lifecycles),
		contracts:   maps.Clone(s.contracts),
		skus:        maps.Clone(s.skus),
		assignments: maps.Clone(s.assignments),
		programs:    maps.Clone(s.programs),
		coverages:   maps.Clone(s.coverages),
	}
}

// Assets

func (s *state) GetAsset(_ context.Context, id inventory.AssetID) (*inventory.Asset, error) {
	a, ok := s.assets[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "asset", ID: string(id)}
	}
	return &a, nil
}

func (s *state) ListAssets(_ context.Context) ([]inventory.Asset, error) {
	result := make([]inventory.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SaveAsset(_ context.Context, a inventory.Asset) error {
	s.assets[a.ID] = a
	return nil
}

func (s *state) UpdateAssetFields(_ context.Context, a inventory.Asset, fields ...string) error {
	stored, ok := s.assets[a.ID]
	if !ok {
		return &inventory.NotFoundError{Entity: "asset", ID: string(a.ID)}
	}
	for _, f := range fields {
		switch f {
		case inventory.AssetFieldSupportState:
			stored.SupportState = a.SupportState
		case inventory.AssetFieldSupportReason:
			stored.SupportReason = a.SupportReason
		case inventory.AssetFieldSupportSource:
			stored.SupportSource = a.SupportSource
		case inventory.AssetFieldSupportValidatedAt:
			stored.SupportValidatedAt = a.SupportValidatedAt
		default:
			return fmt.Errorf("unknown asset field %q", f)
		}
	}
	s.assets[a.ID] = stored
	return nil
}

func (s *state) DeleteAsset(_ context.Context, id inventory.AssetID) error {
	if _, ok := s.assets[id]; !ok {
		return &inventory.NotFoundError{Entity: "asset", ID: string(id)}
	}
	for _, a := range s.assignments {
		if a.AssetID == id {
			return inventory.ErrAssetProtected
		}
	}
	for _, c := range s.coverages {
		if c.AssetID == id {
			return inventory.ErrAssetProtected
		}
	}
	delete(s.assets, id)
	return nil
}

// Hardware types and lifecycle

func (s *state) GetHardwareType(_ context.Context, ref inventory.TypeRef) (*inventory.HardwareType, error) {
	t, ok := s.types[ref]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "hardware type", ID: ref.String()}
	}
	return &t, nil
}

func (s *state) ListHardwareTypes(_ context.Context) ([]inventory.HardwareType, error) {
	result := make([]inventory.HardwareType, 0, len(s.types))
	for _, t := range s.types {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ref().String() < result[j].Ref().String() })
	return result, nil
}

func (s *state) SaveHardwareType(_ context.Context, t inventory.HardwareType) error {
	s.types[t.Ref()] = t
	return nil
}

func (s *state) FindLifecycle(_ context.Context, ref inventory.TypeRef) (*inventory.HardwareLifecycle, error) {
	l, ok := s.lifecycles[ref]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *state) SaveLifecycle(_ context.Context, l inventory.HardwareLifecycle) error {
	s.lifecycles[l.Type] = l
	return nil
}

func (s *state) DeleteLifecycle(_ context.Context, ref inventory.TypeRef) error {
	delete(s.lifecycles, ref)
	return nil
}

// Contracts and SKUs

func (s *state) GetContract(_ context.Context, id inventory.ContractID) (*inventory.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "contract", ID: string(id)}
	}
	return &c, nil
}

func (s *state) SaveContract(_ context.Context, c inventory.Contract) error {
	for id, other := range s.contracts {
		if id != c.ID && other.Number == c.Number {
			return fmt.Errorf("contract number %q: %w", c.Number, inventory.ErrDuplicate)
		}
	}
	s.contracts[c.ID] = c
	return nil
}

func (s *state) DeleteContract(_ context.Context, id inventory.ContractID) error {
	if _, ok := s.contracts[id]; !ok {
		return &inventory.NotFoundError{Entity: "contract", ID: string(id)}
	}
	for aid, a := range s.assignments {
		if a.ContractID == id {
			delete(s.assignments, aid)
		}
	}
	delete(s.contracts, id)
	return nil
}

func (s *state) GetSKU(_ context.Context, id inventory.SKUID) (*inventory.ContractSKU, error) {
	sku, ok := s.skus[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "contract sku", ID: string(id)}
	}
	return &sku, nil
}

func (s *state) SaveSKU(_ context.Context, sku inventory.ContractSKU) error {
	s.skus[sku.ID] = sku
	return nil
}

// Assignments

func (s *state) resolve(a inventory.ContractAssignment) inventory.ResolvedAssignment {
	return inventory.ResolvedAssignment{
		ContractAssignment: a,
		Contract:           s.contracts[a.ContractID],
		SKU:                s.skus[a.SKUID],
	}
}

func (s *state) assignmentsWhere(match func(inventory.ContractAssignment) bool) []inventory.ResolvedAssignment {
	var result []inventory.ResolvedAssignment
	for _, a := range s.assignments {
		if match(a) {
			result = append(result, s.resolve(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *state) GetAssignment(_ context.Context, id inventory.AssignmentID) (*inventory.ResolvedAssignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "contract assignment", ID: string(id)}
	}
	r := s.resolve(a)
	return &r, nil
}

func (s *state) AssignmentsForAsset(_ context.Context, assetID inventory.AssetID) ([]inventory.ResolvedAssignment, error) {
	return s.assignmentsWhere(func(a inventory.ContractAssignment) bool {
		return a.AssetID == assetID
	}), nil
}

func (s *state) AssignmentsForAssetSKU(_ context.Context, assetID inventory.AssetID, skuID inventory.SKUID) ([]inventory.ResolvedAssignment, error) {
	return s.assignmentsWhere(func(a inventory.ContractAssignment) bool {
		return a.AssetID == assetID && a.SKUID == skuID
	}), nil
}

func (s *state) AssignmentsForContract(_ context.Context, contractID inventory.ContractID) ([]inventory.ResolvedAssignment, error) {
	return s.assignmentsWhere(func(a inventory.ContractAssignment) bool {
		return a.ContractID == contractID
	}), nil
}

func (s *state) AssignmentsForSKU(_ context.Context, skuID inventory.SKUID) ([]inventory.ResolvedAssignment, error) {
	return s.assignmentsWhere(func(a inventory.ContractAssignment) bool {
		return a.SKUID == skuID
	}), nil
}

func (s *state) SaveAssignment(_ context.Context, a inventory.ContractAssignment) error {
	if _, ok := s.assets[a.AssetID]; !ok {
		return &inventory.NotFoundError{Entity: "asset", ID: string(a.AssetID)}
	}
	if _, ok := s.contracts[a.ContractID]; !ok {
		return &inventory.NotFoundError{Entity: "contract", ID: string(a.ContractID)}
	}
	if _, ok := s.skus[a.SKUID]; !ok {
		return &inventory.NotFoundError{Entity: "contract sku", ID: string(a.SKUID)}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *state) DeleteAssignment(_ context.Context, id inventory.AssignmentID) error {
	if _, ok := s.assignments[id]; !ok {
		return &inventory.NotFoundError{Entity: "contract assignment", ID: string(id)}
	}
	delete(s.assignments, id)
	return nil
}

// Programs

func (s *state) GetProgram(_ context.Context, id inventory.ProgramID) (*inventory.VendorProgram, error) {
	p, ok := s.programs[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "vendor program", ID: string(id)}
	}
	return &p, nil
}

func (s *state) ListPrograms(_ context.Context) ([]inventory.VendorProgram, error) {
	result := make([]inventory.VendorProgram, 0, len(s.programs))
	for _, p := range s.programs {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) FindProgram(_ context.Context, mfr inventory.ManufacturerID, ct inventory.ContractType) (*inventory.VendorProgram, error) {
	for _, p := range s.programs {
		if p.ManufacturerID == mfr && p.ContractType == ct {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *state) SaveProgram(_ context.Context, p inventory.VendorProgram) error {
	for id, other := range s.programs {
		if id == p.ID {
			continue
		}
		if other.Slug == p.Slug {
			return fmt.Errorf("program slug %q: %w", p.Slug, inventory.ErrDuplicate)
		}
		if other.ManufacturerID == p.ManufacturerID && other.ContractType == p.ContractType {
			return fmt.Errorf("program for %s/%s: %w", p.ManufacturerID, p.ContractType, inventory.ErrDuplicate)
		}
	}
	s.programs[p.ID] = p
	return nil
}

// Coverage

func (s *state) GetCoverage(_ context.Context, id inventory.CoverageID) (*inventory.AssetProgramCoverage, error) {
	c, ok := s.coverages[id]
	if !ok {
		return nil, &inventory.NotFoundError{Entity: "program coverage", ID: string(id)}
	}
	return &c, nil
}

func (s *state) CoveragesForAsset(_ context.Context, assetID inventory.AssetID, statuses ...inventory.CoverageStatus) ([]inventory.AssetProgramCoverage, error) {
	var result []inventory.AssetProgramCoverage
	for _, c := range s.coverages {
		if c.AssetID != assetID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, c.Status) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func containsStatus(statuses []inventory.CoverageStatus, s inventory.CoverageStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s *state) CurrentCoverage(_ context.Context, assetID inventory.AssetID, programID inventory.ProgramID) (*inventory.AssetProgramCoverage, error) {
	for _, c := range s.coverages {
		if c.AssetID == assetID && c.ProgramID == programID && c.IsCurrent() {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *state) SaveCoverage(_ context.Context, c inventory.AssetProgramCoverage) error {
	if _, ok := s.assets[c.AssetID]; !ok {
		return &inventory.NotFoundError{Entity: "asset", ID: string(c.AssetID)}
	}
	if _, ok := s.programs[c.ProgramID]; !ok {
		return &inventory.NotFoundError{Entity: "vendor program", ID: string(c.ProgramID)}
	}
	if err := s.checkCurrentUnique(c); err != nil {
		return err
	}
	s.coverages[c.ID] = c
	return nil
}

func (s *state) UpdateCoverageFields(_ context.Context, c inventory.AssetProgramCoverage, fields ...string) error {
	stored, ok := s.coverages[c.ID]
	if !ok {
		return &inventory.NotFoundError{Entity: "program coverage", ID: string(c.ID)}
	}
	for _, f := range fields {
		switch f {
		case inventory.CoverageFieldStatus:
			stored.Status = c.Status
		case inventory.CoverageFieldEligibility:
			stored.Eligibility = c.Eligibility
		case inventory.CoverageFieldEffectiveStart:
			stored.EffectiveStart = c.EffectiveStart
		case inventory.CoverageFieldEffectiveEnd:
			stored.EffectiveEnd = c.EffectiveEnd
		case inventory.CoverageFieldDecisionReason:
			stored.DecisionReason = c.DecisionReason
		case inventory.CoverageFieldNotes:
			stored.Notes = c.Notes
		case inventory.CoverageFieldEvidenceURL:
			stored.EvidenceURL = c.EvidenceURL
		case inventory.CoverageFieldSource:
			stored.Source = c.Source
		case inventory.CoverageFieldLastSynced:
			stored.LastSynced = c.LastSynced
		default:
			return fmt.Errorf("unknown coverage field %q", f)
		}
	}
	if err := s.checkCurrentUnique(stored); err != nil {
		return err
	}
	s.coverages[c.ID] = stored
	return nil
}

// checkCurrentUnique enforces one open row per (asset, program).
func (s *state) checkCurrentUnique(c inventory.AssetProgramCoverage) error {
	if !c.IsCurrent() {
		return nil
	}
	for id, other := range s.coverages {
		if id != c.ID && other.AssetID == c.AssetID && other.ProgramID == c.ProgramID && other.IsCurrent() {
			return fmt.Errorf("current coverage for asset %s program %s: %w", c.AssetID, c.ProgramID, inventory.ErrDuplicate)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// Memory is a TxStore backed by maps. Writers are serialised by one mutex.
type Memory struct {
	mu   sync.RWMutex
	data *state
}

func NewMemory() *Memory {
	return &Memory{data: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(txMemoryView{state: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// txMemoryView is the Store handed to WithTx callbacks; it runs unlocked
// because WithTx holds the write lock.
type txMemoryView struct {
	*state
}

func (m *Memory) read(fn func(s *state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.data)
}

func (m *Memory) write(fn func(s *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.data)
}

func (m *Memory) GetAsset(ctx context.Context, id inventory.AssetID) (a *inventory.Asset, err error) {
	err = m.read(func(s *state) error { a, err = s.GetAsset(ctx, id); return err })
	return a, err
}

func (m *Memory) ListAssets(ctx context.Context) (as []inventory.Asset, err error) {
	err = m.read(func(s *state) error { as, err = s.ListAssets(ctx); return err })
	return as, err
}

func (m *Memory) SaveAsset(ctx context.Context, a inventory.Asset) error {
	return m.write(func(s *state) error { return s.SaveAsset(ctx, a) })
}

func (m *Memory) UpdateAssetFields(ctx context.Context, a inventory.Asset, fields ...string) error {
	return m.write(func(s *state) error { return s.UpdateAssetFields(ctx, a, fields...) })
}

func (m *Memory) DeleteAsset(ctx context.Context, id inventory.AssetID) error {
	return m.write(func(s *state) error { return s.DeleteAsset(ctx, id) })
}

func (m *Memory) GetHardwareType(ctx context.Context, ref inventory.TypeRef) (t *inventory.HardwareType, err error) {
	err = m.read(func(s *state) error { t, err = s.GetHardwareType(ctx, ref); return err })
	return t, err
}

func (m *Memory) ListHardwareTypes(ctx context.Context) (ts []inventory.HardwareType, err error) {
	err = m.read(func(s *state) error { ts, err = s.ListHardwareTypes(ctx); return err })
	return ts, err
}

func (m *Memory) SaveHardwareType(ctx context.Context, t inventory.HardwareType) error {
	return m.write(func(s *state) error { return s.SaveHardwareType(ctx, t) })
}

func (m *Memory) FindLifecycle(ctx context.Context, ref inventory.TypeRef) (l *inventory.HardwareLifecycle, err error) {
	err = m.read(func(s *state) error { l, err = s.FindLifecycle(ctx, ref); return err })
	return l, err
}

func (m *Memory) SaveLifecycle(ctx context.Context, l inventory.HardwareLifecycle) error {
	return m.write(func(s *state) error { return s.SaveLifecycle(ctx, l) })
}

func (m *Memory) DeleteLifecycle(ctx context.Context, ref inventory.TypeRef) error {
	return m.write(func(s *state) error { return s.DeleteLifecycle(ctx, ref) })
}

func (m *Memory) GetContract(ctx context.Context, id inventory.ContractID) (c *inventory.Contract, err error) {
	err = m.read(func(s *state) error { c, err = s.GetContract(ctx, id); return err })
	return c, err
}

func (m *Memory) SaveContract(ctx context.Context, c inventory.Contract) error {
	return m.write(func(s *state) error { return s.SaveContract(ctx, c) })
}

func (m *Memory) DeleteContract(ctx context.Context, id inventory.ContractID) error {
	return m.write(func(s *state) error { return s.DeleteContract(ctx, id) })
}

func (m *Memory) GetSKU(ctx context.Context, id inventory.SKUID) (sku *inventory.ContractSKU, err error) {
	err = m.read(func(s *state) error { sku, err = s.GetSKU(ctx, id); return err })
	return sku, err
}

func (m *Memory) SaveSKU(ctx context.Context, sku inventory.ContractSKU) error {
	return m.write(func(s *state) error { return s.SaveSKU(ctx, sku) })
}

func (m *Memory) GetAssignment(ctx context.Context, id inventory.AssignmentID) (a *inventory.ResolvedAssignment, err error) {
	err = m.read(func(s *state) error { a, err = s.GetAssignment(ctx, id); return err })
	return a, err
}

func (m *Memory) AssignmentsForAsset(ctx context.Context, assetID inventory.AssetID) (as []inventory.ResolvedAssignment, err error) {
	err = m.read(func(s *state) error { as, err = s.AssignmentsForAsset(ctx, assetID); return err })
	return as, err
}

func (m *Memory) AssignmentsForAssetSKU(ctx context.Context, assetID inventory.AssetID, skuID inventory.SKUID) (as []inventory.ResolvedAssignment, err error) {
	err = m.read(func(s *state) error { as, err = s.AssignmentsForAssetSKU(ctx, assetID, skuID); return err })
	return as, err
}

func (m *Memory) AssignmentsForContract(ctx context.Context, contractID inventory.ContractID) (as []inventory.ResolvedAssignment, err error) {
	err = m.read(func(s *state) error { as, err = s.AssignmentsForContract(ctx, contractID); return err })
	return as, err
}

func (m *Memory) AssignmentsForSKU(ctx context.Context, skuID inventory.SKUID) (as []inventory.ResolvedAssignment, err error) {
	err = m.read(func(s *state) error { as, err = s.AssignmentsForSKU(ctx, skuID); return err })
	return as, err
}

func (m *Memory) SaveAssignment(ctx context.Context, a inventory.ContractAssignment) error {
	return m.write(func(s *state) error { return s.SaveAssignment(ctx, a) })
}

func (m *Memory) DeleteAssignment(ctx context.Context, id inventory.AssignmentID) error {
	return m.write(func(s *state) error { return s.DeleteAssignment(ctx, id) })
}

func (m *Memory) GetProgram(ctx context.Context, id inventory.ProgramID) (p *inventory.VendorProgram, err error) {
	err = m.read(func(s *state) error { p, err = s.GetProgram(ctx, id); return err })
	return p, err
}

func (m *Memory) ListPrograms(ctx context.Context) (ps []inventory.VendorProgram, err error) {
	err = m.read(func(s *state) error { ps, err = s.ListPrograms(ctx); return err })
	return ps, err
}

func (m *Memory) FindProgram(ctx context.Context, mfr inventory.ManufacturerID, ct inventory.ContractType) (p *inventory.VendorProgram, err error) {
	err = m.read(func(s *state) error { p, err = s.FindProgram(ctx, mfr, ct); return err })
	return p, err
}

func (m *Memory) SaveProgram(ctx context.Context, p inventory.VendorProgram) error {
	return m.write(func(s *state) error { return s.SaveProgram(ctx, p) })
}

func (m *Memory) GetCoverage(ctx context.Context, id inventory.CoverageID) (c *inventory.AssetProgramCoverage, err error) {
	err = m.read(func(s *state) error { c, err = s.GetCoverage(ctx, id); return err })
	return c, err
}

func (m *Memory) CoveragesForAsset(ctx context.Context, assetID inventory.AssetID, statuses ...inventory.CoverageStatus) (cs []inventory.AssetProgramCoverage, err error) {
	err = m.read(func(s *state) error { cs, err = s.CoveragesForAsset(ctx, assetID, statuses...); return err })
	return cs, err
}

func (m *Memory) CurrentCoverage(ctx context.Context, assetID inventory.AssetID, programID inventory.ProgramID) (c *inventory.AssetProgramCoverage, err error) {
	err = m.read(func(s *state) error { c, err = s.CurrentCoverage(ctx, assetID, programID); return err })
	return c, err
}

func (m *Memory) SaveCoverage(ctx context.Context, c inventory.AssetProgramCoverage) error {
	return m.write(func(s *state) error { return s.SaveCoverage(ctx, c) })
}

func (m *Memory) UpdateCoverageFields(ctx context.Context, c inventory.AssetProgramCoverage, fields ...string) error {
	return m.write(func(s *state) error { return s.UpdateCoverageFields(ctx, c, fields...) })
}

var (
	_ inventory.TxStore = (*Memory)(nil)
	_ inventory.Store   = txMemoryView{}
)
