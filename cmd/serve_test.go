package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "serve.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	analysis := config.AnalysisConfig{
		WindowStart:            "2023-01-01",
		WindowEnd:              "2023-12-31",
		Locations:              []string{"Downtown"},
		AskingPrice:            950000,
		EBITDAMarginTarget:     0.15,
		EquipmentFallbackValue: 125000,
	}

	srv := httptest.NewServer(newRouter(st, analysis, rate.NewLimiter(rate.Inf, 0)))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_ComputeLifecycle(t *testing.T) {
	srv, st := newTestServer(t)

	dealJSON := `{
		"deal": "riverside-cafe",
		"statements": [
			{
				"source_file": "pl_2023_01.xlsx",
				"period": "2023-01",
				"columns": ["Downtown"],
				"rows": [
					{"label": "Total Income", "values": {"Downtown": "20000"}},
					{"label": "Rent", "values": {"Downtown": "6000"}}
				]
			}
		]
	}`

	resp, err := http.Post(srv.URL+"/api/compute", "application/json", strings.NewReader(dealJSON))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)
	assert.Equal(t, "riverside-cafe", accepted["deal"])

	// The computation completes in the background.
	require.Eventually(t, func() bool {
		run, err := st.GetRun(context.Background(), runID)
		return err == nil && run.Status == model.RunStatusComplete
	}, 5*time.Second, 20*time.Millisecond)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.NotNil(t, run.Bundle)
	assert.Equal(t, 240000.0, run.Bundle.Sales.AnnualRevenueProjection)

	// Lineage is queryable over the API once the run is complete.
	lresp, err := http.Get(srv.URL + "/api/runs/" + runID + "/lineage")
	require.NoError(t, err)
	defer lresp.Body.Close()
	require.Equal(t, http.StatusOK, lresp.StatusCode)

	var export struct {
		Records []struct {
			MetricName string `json:"metric_name"`
		} `json:"records"`
		Summary struct {
			TotalRecords int `json:"total_records"`
		} `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(lresp.Body).Decode(&export))
	assert.Equal(t, 5, export.Summary.TotalRecords)
	assert.Equal(t, "annual_revenue_projection", export.Records[0].MetricName)
}

func TestServe_ComputeRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/compute", "application/json", strings.NewReader(`{"deal": `))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_ListRuns(t *testing.T) {
	srv, st := newTestServer(t)

	_, err := st.CreateRun(context.Background(), "deal-a")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/runs?status=queued")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "deal-a", runs[0].Deal)
}

func TestServe_GetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_RateLimit(t *testing.T) {
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "rl.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	// Burst of one: the second immediate request is rejected.
	srv := httptest.NewServer(newRouter(st, config.AnalysisConfig{}, rate.NewLimiter(1, 1)))
	t.Cleanup(srv.Close)

	first, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
