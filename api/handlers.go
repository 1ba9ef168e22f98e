/*
handlers.go - HTTP API handlers for the coverage engine

PURPOSE:
  Exposes the coverage service via REST API. Handlers decode the request,
  call the service, and serialize the result. They never write to the store
  directly, so every write passes the same validation and reconciliation
  as any other caller.

ENDPOINTS:
  Assets:
    GET    /api/assets                   List assets
    POST   /api/assets                   Create asset
    GET    /api/assets/{id}              Asset with assignments and coverage rows
    PUT    /api/assets/{id}              Update asset
    DELETE /api/assets/{id}              Delete unreferenced asset
    POST   /api/assets/{id}/reconcile    Reconcile one asset
    POST   /api/assets/{id}/free         Unbind from hardware, mark stored
    GET    /api/assets/{id}/eligibility  Lifecycle verdict

  Contracts:
    POST   /api/contracts                Create contract
    GET    /api/contracts/{id}           Contract with assignments
    PUT    /api/contracts/{id}           Update contract (cascades to assignments)
    DELETE /api/contracts/{id}           Delete contract and its assignments
    POST   /api/skus                     Create or update SKU

  Assignments:
    POST   /api/assignments              Create assignment
    PUT    /api/assignments/{id}         Update assignment
    DELETE /api/assignments/{id}         Delete assignment

  Programs and coverage:
    GET    /api/programs                 List programs
    POST   /api/programs                 Create program
    POST   /api/programs/{id}/sync       Sync program coverage rows
    POST   /api/coverages                Create or update a coverage row
    GET    /api/coverages/{id}           Get coverage row
    POST   /api/coverages/{id}/activate  Activate with a contract
    POST   /api/coverages/{id}/transition  Move to planned/excluded/terminated

  Hardware:
    GET    /api/hardware-types           List hardware types
    POST   /api/hardware-types           Create or update hardware type
    POST   /api/lifecycle/import         Import a YAML lifecycle feed

  Runs:
    POST   /api/reconcile                Reconcile every asset
    GET    /api/sync/runs                Recent batch runs

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed request body
  - 404: Resource not found
  - 409: Duplicate, protected, invalid transition, concurrent writer
  - 422: Validation errors (field errors in "fields")
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/lifecycle"
	"github.com/warp/coverage-engine/logger"
	"github.com/warp/coverage-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *coverage.Service
	Store   *sqlite.Store
	Log     *logger.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around svc. store must be the store svc
// writes to; the handler reads run history and resets it for scenarios.
func NewHandler(svc *coverage.Service, store *sqlite.Store, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Store: store, Log: logger.OrNop(log)}
}

// =============================================================================
// ASSET HANDLERS
// =============================================================================

// ListAssets returns all assets.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Store.ListAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}
	dtos := make([]AssetDTO, len(assets))
	for i, a := range assets {
		dtos[i] = toAssetDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAsset runs the lifecycle guard and stores a new asset.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if !decode(w, r, &req) {
		return
	}
	asset, err := h.Service.SaveAsset(r.Context(), req.toAsset(), inventory.GuardOptions{Reassigning: req.Reassigning})
	if err != nil {
		h.fail(w, "Failed to save asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetDTO(asset))
}

// UpdateAsset replaces an asset. The ID comes from the path.
func (h *Handler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if !decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	if _, err := h.Store.GetAsset(r.Context(), inventory.AssetID(req.ID)); err != nil {
		h.fail(w, "Failed to load asset", err)
		return
	}
	asset, err := h.Service.SaveAsset(r.Context(), req.toAsset(), inventory.GuardOptions{Reassigning: req.Reassigning})
	if err != nil {
		h.fail(w, "Failed to save asset", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(asset))
}

// GetAsset returns an asset with its assignments and coverage rows.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := inventory.AssetID(chi.URLParam(r, "id"))

	asset, err := h.Store.GetAsset(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load asset", err)
		return
	}
	assignments, err := h.Store.AssignmentsForAsset(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load assignments", err)
		return
	}
	coverages, err := h.Store.CoveragesForAsset(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load coverage", err)
		return
	}

	today := h.Service.Today()
	detail := AssetDetailDTO{
		AssetDTO:    toAssetDTO(*asset),
		Assignments: make([]AssignmentDTO, len(assignments)),
		Coverages:   make([]CoverageDTO, len(coverages)),
	}
	for i, a := range assignments {
		detail.Assignments[i] = toAssignmentDTO(a, today)
	}
	for i, c := range coverages {
		detail.Coverages[i] = toCoverageDTO(c)
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteAsset removes an asset nothing references.
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := inventory.AssetID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteAsset(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileAsset runs the engine for one asset.
func (h *Handler) ReconcileAsset(w http.ResponseWriter, r *http.Request) {
	id := inventory.AssetID(chi.URLParam(r, "id"))
	result, err := h.Service.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to reconcile asset", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(result))
}

// FreeAsset unbinds an asset from its hardware.
func (h *Handler) FreeAsset(w http.ResponseWriter, r *http.Request) {
	var req FreeAssetRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	id := inventory.AssetID(chi.URLParam(r, "id"))
	asset, err := h.Service.FreeAsset(r.Context(), id, req.StorageLocationID)
	if err != nil {
		h.fail(w, "Failed to free asset", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(asset))
}

// GetEligibility evaluates the asset against its lifecycle record.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, err := h.Store.GetAsset(ctx, inventory.AssetID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to load asset", err)
		return
	}

	evaluator := h.Service.Evaluator()
	verdict, err := evaluator.Evaluate(ctx, *asset)
	if err != nil {
		h.fail(w, "Failed to evaluate asset", err)
		return
	}
	dto := EligibilityDTO{
		AssetID:      string(asset.ID),
		Eligibility:  string(verdict.Eligibility),
		Reason:       verdict.Reason,
		EndOfSupport: verdict.EndOfSupport,
	}
	if ref := asset.TypeRef(); !ref.IsZero() {
		record, err := h.Store.FindLifecycle(ctx, ref)
		if err != nil {
			h.fail(w, "Failed to load lifecycle", err)
			return
		}
		if record != nil {
			dto.Lifecycle = toLifecycleDTO(*record, evaluator.Config().MigrationMonth, h.Service.Today())
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// SaveContract creates a contract, or updates the one named in the path.
func (h *Handler) SaveContract(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if !decode(w, r, &req) {
		return
	}
	status := http.StatusCreated
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
		status = http.StatusOK
		if _, err := h.Store.GetContract(r.Context(), inventory.ContractID(id)); err != nil {
			h.fail(w, "Failed to load contract", err)
			return
		}
	}
	result, err := h.Service.SaveContract(r.Context(), req.toContract())
	if err != nil {
		h.fail(w, "Failed to save contract", err)
		return
	}
	writeJSON(w, status, ContractResponse{
		Contract:  toContractDTO(result.Contract, h.Service.Today()),
		Reconcile: toReconcileDTO(result.Reconcile),
	})
}

// GetContract returns a contract with its assignments.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := inventory.ContractID(chi.URLParam(r, "id"))
	contract, err := h.Store.GetContract(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load contract", err)
		return
	}
	assignments, err := h.Store.AssignmentsForContract(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load assignments", err)
		return
	}
	today := h.Service.Today()
	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dtos[i] = toAssignmentDTO(a, today)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract":    toContractDTO(*contract, today),
		"assignments": dtos,
	})
}

// DeleteContract removes a contract; its assignments go with it.
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.DeleteContract(r.Context(), inventory.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to delete contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(result))
}

// SaveSKU creates or updates a contract SKU.
func (h *Handler) SaveSKU(w http.ResponseWriter, r *http.Request) {
	var req SKURequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Service.SaveSKU(r.Context(), req.toSKU())
	if err != nil {
		h.fail(w, "Failed to save sku", err)
		return
	}
	writeJSON(w, http.StatusOK, toSKUDTO(res.SKU))
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignment validates and inserts an assignment.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.Service.CreateAssignment(r.Context(), req.toAssignment(""))
	if err != nil {
		h.fail(w, "Failed to create assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.assignmentResponse(result))
}

// UpdateAssignment validates and replaces an assignment.
func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.Service.UpdateAssignment(r.Context(), req.toAssignment(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to update assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, h.assignmentResponse(result))
}

// DeleteAssignment removes an assignment and reconciles its asset.
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.DeleteAssignment(r.Context(), inventory.AssignmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to delete assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(result))
}

func (h *Handler) assignmentResponse(result coverage.AssignmentResult) AssignmentResponse {
	return AssignmentResponse{
		Assignment: toAssignmentDTO(result.Assignment, h.Service.Today()),
		Reconcile:  toReconcileDTO(result.Reconcile),
	}
}

// =============================================================================
// PROGRAM AND COVERAGE HANDLERS
// =============================================================================

// ListPrograms returns all vendor programs.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.Store.ListPrograms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list programs", err)
		return
	}
	dtos := make([]ProgramRequest, len(programs))
	for i, p := range programs {
		dtos[i] = toProgramDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProgram stores a vendor program.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req ProgramRequest
	if !decode(w, r, &req) {
		return
	}
	program, err := h.Service.SaveProgram(r.Context(), req.toProgram())
	if err != nil {
		h.fail(w, "Failed to save program", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramDTO(program))
}

// SyncProgram creates and updates coverage rows for a program and records
// the run. The request body is optional; an empty body is a dry run.
func (h *Handler) SyncProgram(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	programID := inventory.ProgramID(chi.URLParam(r, "id"))
	opts := req.toOptions()

	started := time.Now()
	report, err := h.Service.SyncProgram(r.Context(), programID, opts)
	h.recordRun(r.Context(), sqlite.SyncRun{
		Kind:      RunProgramSync,
		ProgramID: string(programID),
		DryRun:    opts.DryRun,
		StartedAt: started,
	}, report, err)
	if err != nil {
		h.fail(w, "Failed to sync program", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SaveCoverage creates or updates a coverage row.
func (h *Handler) SaveCoverage(w http.ResponseWriter, r *http.Request) {
	var req CoverageRequest
	if !decode(w, r, &req) {
		return
	}
	cov, err := h.Service.SaveCoverage(r.Context(), req.toCoverage())
	if err != nil {
		h.fail(w, "Failed to save coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(cov))
}

// GetCoverage returns one coverage row.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	cov, err := h.Store.GetCoverage(r.Context(), inventory.CoverageID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to load coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(*cov))
}

// ActivateCoverage attaches contract coverage to a planned row.
func (h *Handler) ActivateCoverage(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.Service.Activate(r.Context(), coverage.ActivateRequest{
		CoverageID: inventory.CoverageID(chi.URLParam(r, "id")),
		ContractID: inventory.ContractID(req.ContractID),
		SKUID:      inventory.SKUID(req.SKUID),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	})
	if err != nil {
		h.fail(w, "Failed to activate coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivateResponse{
		Coverage:   toCoverageDTO(result.Coverage),
		Assignment: toAssignmentDTO(result.Assignment, h.Service.Today()),
		Reconcile:  toReconcileDTO(result.Reconcile),
	})
}

// TransitionCoverage moves a row to planned, excluded or terminated.
func (h *Handler) TransitionCoverage(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decode(w, r, &req) {
		return
	}
	cov, err := h.Service.Transition(r.Context(), coverage.TransitionRequest{
		CoverageID:   inventory.CoverageID(chi.URLParam(r, "id")),
		To:           inventory.CoverageStatus(req.Status),
		EffectiveEnd: req.EffectiveEnd,
		Reason:       req.Reason,
	})
	if err != nil {
		h.fail(w, "Failed to transition coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(cov))
}

// =============================================================================
// HARDWARE HANDLERS
// =============================================================================

// ListHardwareTypes returns every hardware type of every kind.
func (h *Handler) ListHardwareTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListHardwareTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hardware types", err)
		return
	}
	dtos := make([]HardwareTypeRequest, len(types))
	for i, t := range types {
		dtos[i] = toHardwareTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveHardwareType creates or updates a hardware type.
func (h *Handler) SaveHardwareType(w http.ResponseWriter, r *http.Request) {
	var req HardwareTypeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.Service.SaveHardwareType(r.Context(), req.toHardwareType())
	if err != nil {
		h.fail(w, "Failed to save hardware type", err)
		return
	}
	writeJSON(w, http.StatusOK, toHardwareTypeDTO(t))
}

// ImportLifecycle applies a YAML lifecycle feed posted as the request body.
func (h *Handler) ImportLifecycle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFeedBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	feed, err := lifecycle.ParseFeed(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lifecycle feed", err)
		return
	}

	started := time.Now()
	importer := lifecycle.NewImporter(h.Service.Store(), h.Service.Evaluator().Config(), h.Log)
	report, err := importer.Import(r.Context(), feed)
	h.recordRun(r.Context(), sqlite.SyncRun{Kind: RunLifecycleImport, StartedAt: started}, report, err)
	if err != nil {
		h.fail(w, "Failed to import lifecycle feed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const maxFeedBytes = 8 << 20

// =============================================================================
// RUN HANDLERS
// =============================================================================

// Run kinds recorded in the sync_runs table.
const (
	RunReconcile       = "reconcile"
	RunProgramSync     = "program_sync"
	RunLifecycleImport = "lifecycle_import"
)

// ReconcileAll reconciles every asset.
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	summary, err := h.Service.ReconcileAll(r.Context())
	h.recordRun(r.Context(), sqlite.SyncRun{Kind: RunReconcile, StartedAt: started}, summary, err)
	if err != nil {
		h.fail(w, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListSyncRuns returns recent batch runs, newest first.
// GET /api/sync/runs?limit=20
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	runs, err := h.Store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []sqlite.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// recordRun stores a finished run. Failing to record is logged, never
// surfaced to the caller.
func (h *Handler) recordRun(ctx context.Context, run sqlite.SyncRun, report any, runErr error) {
	recordRun(ctx, h.Store, h.Log, run, report, runErr)
}

func recordRun(ctx context.Context, store *sqlite.Store, log *logger.Logger, run sqlite.SyncRun, report any, runErr error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.FinishedAt = time.Now()
	run.Status = "completed"
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	} else if data, err := json.Marshal(report); err == nil {
		run.Report = data
	}
	// A cancelled request must not lose the run record.
	if err := store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record run", "run_id", run.ID, "kind", run.Kind, "error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		resp.Fields = inventory.FieldErrorsOf(err)
	}
	writeJSON(w, status, resp)
}

// fail maps a service error onto a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error(message, "error", err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case inventory.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inventory.ErrDuplicate),
		errors.Is(err, inventory.ErrAssetProtected),
		errors.Is(err, inventory.ErrInvalidTransition),
		errors.Is(err, inventory.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", fmt.Errorf("decode: %w", err))
		return false
	}
	return true
}
