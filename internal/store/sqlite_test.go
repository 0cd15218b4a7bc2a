package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleExport() *lineage.Export {
	records := []lineage.ExportRecord{
		{
			MetricName:  "annual_revenue_projection",
			Description: "annualized revenue across the analysis window",
			Steps: []lineage.ExportStep{
				{Sequence: 1, Operation: "sum", Field: "total_revenue", Description: "total across periods"},
				{Sequence: 2, Operation: "annualize", Field: "annual_revenue_projection", Description: "monthly average x 12"},
			},
			FinalValue: 240000,
		},
		{
			MetricName:  "roi_pct",
			Description: "annual EBITDA over asking price",
			Steps: []lineage.ExportStep{
				{Sequence: 1, Operation: "divide", Field: "roi_ratio", Description: "EBITDA / asking"},
			},
			FinalValue: 18,
		},
	}
	return &lineage.Export{Records: records, Summary: lineage.SummaryOf(records)}
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "riverside-cafe")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	bundle := &model.MetricsBundle{}
	bundle.Sales.AnnualRevenueProjection = 240000
	bundle.Valuation.ROIPct = 18

	require.NoError(t, s.FinishRun(ctx, run.ID, bundle, sampleExport()))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, "riverside-cafe", got.Deal)
	require.NotNil(t, got.Bundle)
	assert.Equal(t, 240000.0, got.Bundle.Sales.AnnualRevenueProjection)
	assert.Empty(t, got.Error)
}

func TestSQLiteStore_FailRun(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "harborside-deli")
	require.NoError(t, err)

	require.NoError(t, s.FailRun(ctx, run.ID, assert.AnError))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Bundle)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	require.Error(t, err)

	require.Error(t, s.UpdateRunStatus(ctx, "missing", model.RunStatusRunning))
	require.Error(t, s.FailRun(ctx, "missing", assert.AnError))
	require.Error(t, s.FinishRun(ctx, "missing", &model.MetricsBundle{}, nil))
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "deal-a")
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "deal-b")
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	byDeal, err := s.ListRuns(ctx, RunFilter{Deal: "deal-b"})
	require.NoError(t, err)
	require.Len(t, byDeal, 1)
	assert.Equal(t, "deal-b", byDeal[0].Deal)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_LineageRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "riverside-cafe")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, run.ID, &model.MetricsBundle{}, sampleExport()))

	export, err := s.GetLineage(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, export.Records, 2)

	// Insert order is preserved.
	assert.Equal(t, "annual_revenue_projection", export.Records[0].MetricName)
	assert.Equal(t, "roi_pct", export.Records[1].MetricName)
	assert.Len(t, export.Records[0].Steps, 2)
	assert.Equal(t, 240000.0, export.Records[0].FinalValue)

	assert.Equal(t, 2, export.Summary.TotalRecords)
	assert.Equal(t, 3, export.Summary.TotalSteps)
	assert.Equal(t, 2, export.Summary.DistinctMetrics)
}

func TestSQLiteStore_LineageAllowsRepeatedMetric(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "riverside-cafe")
	require.NoError(t, err)

	// A metric can be re-derived within one run; both sealed records persist
	// in order.
	records := []lineage.ExportRecord{
		{
			MetricName: "roi_pct",
			FinalValue: 18,
			Steps:      []lineage.ExportStep{{Sequence: 1, Operation: "divide", Field: "roi_ratio"}},
		},
		{
			MetricName: "roi_pct",
			FinalValue: 21,
			Steps:      []lineage.ExportStep{{Sequence: 1, Operation: "divide", Field: "roi_ratio"}},
		},
	}
	export := &lineage.Export{Records: records, Summary: lineage.SummaryOf(records)}
	require.NoError(t, s.FinishRun(ctx, run.ID, &model.MetricsBundle{}, export))

	got, err := s.GetLineage(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, 18.0, got.Records[0].FinalValue)
	assert.Equal(t, 21.0, got.Records[1].FinalValue)
	assert.Equal(t, 1, got.Summary.DistinctMetrics)
}

func TestSQLiteStore_FinishRunReplacesLineage(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "riverside-cafe")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, run.ID, &model.MetricsBundle{}, sampleExport()))

	second := sampleExport()
	second.Records = second.Records[:1]
	require.NoError(t, s.FinishRun(ctx, run.ID, &model.MetricsBundle{}, second))

	export, err := s.GetLineage(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, export.Records, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLiteDefault(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateRun(context.Background(), "deal")
	require.NoError(t, err)
}
