package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/store/sqlite"
)

func loadScenario(t *testing.T, s *testServer, id string) {
	t.Helper()
	code := s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id}, nil)
	require.Equal(t, http.StatusOK, code, "scenario %s", id)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	s := newTestServer(t)
	for _, sc := range scenarios {
		loadScenario(t, s, sc.ID)

		var current ScenarioDTO
		require.Equal(t, http.StatusOK, s.do("GET", "/api/scenarios/current", nil, &current))
		assert.Equal(t, sc.ID, current.ID)
	}
}

func TestScenario_SupportedFleet(t *testing.T) {
	s := newTestServer(t)
	loadScenario(t, s, "supported-fleet")

	// THEN: The seed data was reset and every switch is supported
	var assets []AssetDTO
	require.Equal(t, http.StatusOK, s.do("GET", "/api/assets", nil, &assets))
	require.Len(t, assets, 3)
	for _, a := range assets {
		assert.Equal(t, "supported", a.SupportState, a.ID)
		assert.Equal(t, "consumed", a.Allocation, a.ID)
	}
}

func TestScenario_ExpiringContract(t *testing.T) {
	s := newTestServer(t)
	loadScenario(t, s, "expiring-contract")

	lapsed, err := s.store.GetAsset(s.ctx, "sw-branch-01")
	require.NoError(t, err)
	assert.Equal(t, inventory.SupportUnsupported, lapsed.SupportState)

	renewing, err := s.store.GetAsset(s.ctx, "sw-branch-02")
	require.NoError(t, err)
	assert.Equal(t, inventory.SupportSupported, renewing.SupportState)

	var contract map[string]any
	require.Equal(t, http.StatusOK, s.do("GET", "/api/contracts/ea-renewing", nil, &contract))
	assert.Equal(t, true, contract["contract"].(map[string]any)["needs_renewal"])
}

func TestScenario_EndOfLife(t *testing.T) {
	s := newTestServer(t)
	loadScenario(t, s, "end-of-life")

	for id, want := range map[inventory.AssetID]inventory.CoverageStatus{
		"sw-new-01": inventory.CoveragePlanned,
		"sw-old-01": inventory.CoverageTerminated,
		"sw-old-02": inventory.CoverageTerminated,
	} {
		rows, err := s.store.CoveragesForAsset(s.ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, 1, id)
		assert.Equal(t, want, rows[0].Status, id)
	}
}

func TestScenario_UnknownAndReset(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest,
		s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}, nil))

	// An unknown scenario leaves the data alone
	_, err := s.store.GetAsset(s.ctx, "a1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/reset", nil, nil))
	_, err = s.store.GetAsset(s.ctx, "a1")
	assert.True(t, inventory.IsNotFound(err))
}

func TestScheduler_RunOnceRecordsRuns(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A scheduler that also syncs p1 for real
	sched := NewScheduler(s.svc, s.store, nil)
	sched.Programs = []inventory.ProgramID{"p1"}
	sched.SyncOptions.DryRun = false

	// WHEN: One tick runs
	sched.RunOnce(s.ctx)

	// THEN: The asset was reconciled and given a coverage row
	asset, err := s.store.GetAsset(s.ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, inventory.SupportUnsupported, asset.SupportState)

	rows, err := s.store.CoveragesForAsset(s.ctx, "a1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, inventory.CoverageSourceSync, rows[0].Source)

	// AND: Both jobs were recorded
	runs, err := s.store.ListSyncRuns(s.ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	kinds := map[string]sqlite.SyncRun{}
	for _, r := range runs {
		kinds[r.Kind] = r
	}
	assert.Equal(t, "completed", kinds[RunReconcile].Status)
	assert.False(t, kinds[RunProgramSync].DryRun)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)

	sched := NewScheduler(s.svc, s.store, nil)
	sched.CheckInterval = 0
	sched.Start()
	sched.Stop()

	runs, err := s.store.ListSyncRuns(s.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "disabled scheduler never runs")
}
