package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

func TestRender(t *testing.T) {
	t.Parallel()

	b := &model.MetricsBundle{}
	b.Sales.AnnualRevenueProjection = 240000
	b.Sales.MonthlyRevenueAverage = 20000
	b.Sales.ObservedPeriods = 11
	b.Sales.ImputedPeriods = 1
	b.Financial.AnnualEBITDA = 168000
	b.Financial.EBITDAMarginPct = 70
	b.Valuation.AskingPrice = 950000
	b.Valuation.ROIPct = 18
	b.Valuation.PaybackYears = 5.65
	b.Equipment.TotalValue = 34000
	b.Equipment.ItemCount = 3
	b.Operational.StatementsProcessed = 12

	var buf bytes.Buffer
	err := Render(&buf, "riverside-cafe", b, lineage.Summary{TotalRecords: 5, TotalSteps: 42})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Deal: riverside-cafe")
	assert.Contains(t, out, "$240,000")
	assert.Contains(t, out, "11/1")
	assert.Contains(t, out, "70.0%")
	assert.Contains(t, out, "5.7 years")
	assert.Contains(t, out, "(3 items)")
	assert.Contains(t, out, "5 records, 42 steps")
	assert.NotContains(t, out, "fallback")
}

func TestRender_Fallbacks(t *testing.T) {
	t.Parallel()

	b := &model.MetricsBundle{}
	b.Financial.UsedMarginFallback = true
	b.Equipment.UsedFallback = true
	b.Equipment.TotalValue = 125000

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "harborside-deli", b, lineage.Summary{}))

	out := buf.String()
	assert.Contains(t, out, "(margin fallback)")
	assert.Contains(t, out, "$125,000 (fallback)")
}
