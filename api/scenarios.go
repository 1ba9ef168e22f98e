/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  inventory data. Every record goes through the coverage service, so the
  loaded data obeys the same invariants as hand-entered data.

AVAILABLE SCENARIOS:
  supported-fleet:    Cisco switches covered by an EA contract
  expiring-contract:  One contract already lapsed, one about to renew
  end-of-life:        Lifecycle records past end of support, program synced

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create hardware types, lifecycle records and programs
 3. Create assets
 4. Create contracts, SKUs and assignments (reconciles as it goes)
 5. Optionally sync a program

Dates are relative to the service clock so a scenario looks the same
whenever it is loaded.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "end-of-life"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "supported-fleet",
		Name:        "Supported Fleet",
		Description: "Three deployed Cisco switches under one Enterprise Agreement",
	},
	{
		ID:          "expiring-contract",
		Name:        "Expiring Contract",
		Description: "A lapsed contract downgrades its asset; a second one nears renewal",
	},
	{
		ID:          "end-of-life",
		Name:        "End of Life",
		Description: "Program sync terminates coverage for hardware past end of support",
	},
}

type scenarioLoader func(ctx context.Context, svc *coverage.Service) error

var scenarioLoaders = map[string]scenarioLoader{
	"supported-fleet":   loadSupportedFleet,
	"expiring-contract": loadExpiringContract,
	"end-of-life":       loadEndOfLife,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Service); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seed collects the first error so loaders read as a flat list of records.
type seed struct {
	ctx   context.Context
	svc   *coverage.Service
	today inventory.Date
	err   error
}

func newSeed(ctx context.Context, svc *coverage.Service) *seed {
	return &seed{ctx: ctx, svc: svc, today: svc.Today()}
}

// day is today shifted by n days.
func (s *seed) day(n int) *inventory.Date {
	return inventory.DatePtr(s.today.AddDays(n))
}

func (s *seed) hardwareType(id, mfr, model string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.SaveHardwareType(s.ctx, inventory.HardwareType{
		ID: inventory.HardwareTypeID(id), Kind: inventory.KindDevice,
		ManufacturerID: inventory.ManufacturerID(mfr), Model: model, PartNumber: model,
	})
}

func (s *seed) lifecycle(typeID string, endOfSupport *inventory.Date) {
	if s.err != nil {
		return
	}
	s.err = s.svc.Store().WithTx(s.ctx, func(tx inventory.Store) error {
		return tx.SaveLifecycle(s.ctx, inventory.HardwareLifecycle{
			Type:         inventory.TypeRef{Kind: inventory.KindDevice, ID: inventory.HardwareTypeID(typeID)},
			EndOfSale:    inventory.DatePtr(endOfSupport.AddYears(-5)),
			EndOfSupport: endOfSupport,
		})
	})
}

// switchAsset creates a deployed device asset.
func (s *seed) switchAsset(id, typeID, site string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.SaveAsset(s.ctx, inventory.Asset{
		ID:           inventory.AssetID(id),
		Name:         id,
		Serial:       "SN-" + id,
		Status:       inventory.AssetUsed,
		DeviceTypeID: inventory.HardwareTypeID(typeID),
		Hardware: &inventory.HardwareRef{
			Kind: inventory.KindDevice, ID: "dev-" + id,
			TypeID: inventory.HardwareTypeID(typeID), SiteID: site,
		},
	}, inventory.GuardOptions{})
}

func (s *seed) program(id, mfr string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.SaveProgram(s.ctx, inventory.VendorProgram{
		ID: inventory.ProgramID(id), Name: id, Slug: id,
		ManufacturerID: inventory.ManufacturerID(mfr), ContractType: inventory.ContractSupportEA,
	})
}

func (s *seed) contract(id, number string, start, end, renewal *inventory.Date) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.SaveContract(s.ctx, inventory.Contract{
		ID: inventory.ContractID(id), Number: number, Type: inventory.ContractSupportEA,
		VendorName: "Acme Networks", StartDate: start, EndDate: end, RenewalDate: renewal,
	})
}

func (s *seed) sku(id, mfr string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.SaveSKU(s.ctx, inventory.ContractSKU{
		ID: inventory.SKUID(id), SKU: "CON-SNT-" + id,
		ManufacturerID: inventory.ManufacturerID(mfr), ContractType: inventory.ContractSupportEA,
		ServiceLevel: "8x5xNBD",
	})
}

func (s *seed) assign(asset, contract, sku string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.CreateAssignment(s.ctx, inventory.ContractAssignment{
		AssetID: inventory.AssetID(asset), ContractID: inventory.ContractID(contract), SKUID: inventory.SKUID(sku),
	})
}

func (s *seed) cisco() {
	s.hardwareType("c9300-48p", "cisco", "C9300-48P")
	s.hardwareType("ws-c2960x", "cisco", "WS-C2960X-48FPD-L")
	s.program("cisco-ea", "cisco")
	s.sku("sku-ea", "cisco")
}

func loadSupportedFleet(ctx context.Context, svc *coverage.Service) error {
	s := newSeed(ctx, svc)
	s.cisco()
	s.lifecycle("c9300-48p", s.day(5*365))
	for _, id := range []string{"sw-core-01", "sw-core-02", "sw-edge-01"} {
		s.switchAsset(id, "c9300-48p", "hq")
	}
	s.contract("ea-main", "EA-1001", s.day(-180), s.day(545), s.day(485))
	for _, id := range []string{"sw-core-01", "sw-core-02", "sw-edge-01"} {
		s.assign(id, "ea-main", "sku-ea")
	}
	return s.err
}

func loadExpiringContract(ctx context.Context, svc *coverage.Service) error {
	s := newSeed(ctx, svc)
	s.cisco()
	s.switchAsset("sw-branch-01", "c9300-48p", "branch-1")
	s.switchAsset("sw-branch-02", "c9300-48p", "branch-2")

	s.contract("ea-lapsed", "EA-0900", s.day(-400), s.day(30), nil)
	s.contract("ea-renewing", "EA-0950", s.day(-300), s.day(60), s.day(-5))
	s.assign("sw-branch-01", "ea-lapsed", "sku-ea")
	s.assign("sw-branch-02", "ea-renewing", "sku-ea")
	if s.err != nil {
		return s.err
	}

	// Pull the first contract's end into the past: the edit cascades to its
	// assignment and the asset is downgraded.
	s.contract("ea-lapsed", "EA-0900", s.day(-400), s.day(-10), nil)
	return s.err
}

func loadEndOfLife(ctx context.Context, svc *coverage.Service) error {
	s := newSeed(ctx, svc)
	s.cisco()
	s.lifecycle("c9300-48p", s.day(4*365))
	s.lifecycle("ws-c2960x", s.day(-120))
	s.switchAsset("sw-new-01", "c9300-48p", "dc-1")
	s.switchAsset("sw-old-01", "ws-c2960x", "dc-1")
	s.switchAsset("sw-old-02", "ws-c2960x", "dc-2")
	if s.err != nil {
		return s.err
	}

	opts := coverage.DefaultSyncOptions()
	opts.DryRun = false
	_, err := svc.SyncProgram(ctx, "cisco-ea", opts)
	return err
}
