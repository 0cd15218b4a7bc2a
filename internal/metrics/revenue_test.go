package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/period"
)

func TestComputeRevenue_FullYear(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := period.ExpectedPeriods(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	)

	res, err := e.computeRevenue(fullYearStatements(10000, 3000), expected)
	require.NoError(t, err)

	// 12 months x 2 locations x 10000.
	assert.Equal(t, 240000.0, f64(res.Total))
	assert.Equal(t, 20000.0, f64(res.MonthlyAverage))
	assert.Equal(t, 240000.0, f64(res.Annual))
	assert.Equal(t, 12, res.Observed)
	assert.Equal(t, 0, res.Imputed)
	assert.Equal(t, 12, res.Processed)
	assert.False(t, res.UsedTotalFallback)

	rec := findRecord(t, tr, "annual_revenue_projection")
	require.NotNil(t, rec.FinalValue)
	assert.True(t, rec.FinalValue.Equal(res.Annual))

	// One file contribution per in-scope cell of each revenue row.
	assert.Len(t, stepsOf(rec, lineage.OpFileContribution), 24)
	assert.Empty(t, stepsOf(rec, lineage.OpFallback))
	assert.Len(t, stepsOf(rec, lineage.OpDivide), 1)
	assert.Len(t, stepsOf(rec, lineage.OpAnnualize), 1)
}

func TestComputeRevenue_MissingMonthImputed(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := period.ExpectedPeriods(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	)

	var stmts []model.Statement
	for _, s := range fullYearStatements(10000, 3000) {
		if s.Period == "2023-07" {
			continue
		}
		stmts = append(stmts, s)
	}

	res, err := e.computeRevenue(stmts, expected)
	require.NoError(t, err)

	assert.Equal(t, 11, res.Observed)
	assert.Equal(t, 1, res.Imputed)

	// The imputed month equals the mean of the other 11 (all 20000 here),
	// so the total behaves as if July were observed.
	assert.Equal(t, 240000.0, f64(res.Total))

	rec := findRecord(t, tr, "annual_revenue_projection")
	fallbacks := stepsOf(rec, lineage.OpFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "2023-07", fallbacks[0].Field)
	assert.Equal(t, 20000.0, f64(*fallbacks[0].Value))
}

func TestComputeRevenue_TotalColumnFallback(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := []string{"2023-01"}

	// Statement with no in-scope columns at all, only a combined TOTAL.
	s := stmt("2023-01", []string{"Suburb", "TOTAL"},
		row("Total Income", map[string]float64{"Suburb": 4000, "TOTAL": 9000}),
	)

	res, err := e.computeRevenue([]model.Statement{s}, expected)
	require.NoError(t, err)

	assert.True(t, res.UsedTotalFallback)
	assert.Equal(t, 9000.0, f64(res.Total))

	rec := findRecord(t, tr, "annual_revenue_projection")
	// The TOTAL contribution is fallback-tagged, never a plain file_contribution.
	assert.Empty(t, stepsOf(rec, lineage.OpFileContribution))
	fallbacks := stepsOf(rec, lineage.OpFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "pl_2023-01.xlsx", fallbacks[0].Meta["file_name"])
	assert.Equal(t, "combined TOTAL includes out-of-scope locations", fallbacks[0].Meta["reason"])
}

func TestComputeRevenue_InScopeWinsOverTotal(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := []string{"2023-01"}

	// TOTAL disagrees with the in-scope sum; in-scope columns win.
	s := stmt("2023-01", []string{"Downtown", "TOTAL"},
		row("Total Income", map[string]float64{"Downtown": 5000, "TOTAL": 99999}),
	)

	res, err := e.computeRevenue([]model.Statement{s}, expected)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, f64(res.Total))
	assert.False(t, res.UsedTotalFallback)

	rec := findRecord(t, tr, "annual_revenue_projection")
	assert.Len(t, stepsOf(rec, lineage.OpFileContribution), 1)
	assert.Empty(t, stepsOf(rec, lineage.OpFallback))
}

func TestComputeRevenue_UnidentifiableStatementSkipped(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := []string{"2023-01", "2023-02"}

	stmts := []model.Statement{
		stmt("2023-01", []string{"Downtown"},
			row("Total Income", map[string]float64{"Downtown": 8000})),
		// No in-scope column and no TOTAL: skipped entirely, so February
		// becomes a missing period and gets imputed from January.
		stmt("2023-02", []string{"Mystery Column"},
			row("Total Income", map[string]float64{"Mystery Column": 7000})),
	}

	res, err := e.computeRevenue(stmts, expected)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Imputed)
	assert.Equal(t, 16000.0, f64(res.Total))

	rec := findRecord(t, tr, "annual_revenue_projection")
	fallbacks := stepsOf(rec, lineage.OpFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "2023-02", fallbacks[0].Field)
}

func TestComputeRevenue_UnparseableCellContributesZero(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)
	expected := []string{"2023-01"}

	s := stmt("2023-01", []string{"Downtown", "Airport"},
		row("Total Income", map[string]float64{"Downtown": 5000}),
	)
	// Airport cell present but unparseable.
	s.Rows[0].Values["Airport"] = nil
	s.Rows[0].Raw = map[string]string{"Airport": "n/a"}

	res, err := e.computeRevenue([]model.Statement{s}, expected)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, f64(res.Total))

	rec := findRecord(t, tr, "annual_revenue_projection")
	contribs := stepsOf(rec, lineage.OpFileContribution)
	require.Len(t, contribs, 2)
	for _, c := range contribs {
		if c.Field == "Airport" {
			assert.True(t, c.Value.IsZero())
			assert.Equal(t, "n/a", c.Meta["raw_value"])
		}
	}
}

func TestComputeRevenue_NoStatements(t *testing.T) {
	t.Parallel()
	tr := lineage.New()
	e := New(testAnalysisConfig(), tr)

	res, err := e.computeRevenue(nil, []string{"2023-01", "2023-02"})
	require.NoError(t, err)
	assert.Zero(t, f64(res.Total))
	assert.Zero(t, f64(res.MonthlyAverage))
	assert.Zero(t, res.Processed)

	// Empty found means no imputation; the record still seals cleanly.
	rec := findRecord(t, tr, "annual_revenue_projection")
	require.NotNil(t, rec.FinalValue)
	assert.True(t, rec.FinalValue.IsZero())
	assert.Empty(t, stepsOf(rec, lineage.OpFallback))
}
