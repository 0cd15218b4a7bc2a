package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		WindowStart:            "2023-01-01",
		WindowEnd:              "2023-12-31",
		Locations:              []string{"Downtown", "Airport"},
		AskingPrice:            950000,
		EBITDAMarginTarget:     0.15,
		EquipmentFallbackValue: 125000,
		AnnualizeMonths:        12,
	}
}

func dec(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func row(label string, vals map[string]float64) model.StatementRow {
	r := model.StatementRow{Label: label, Values: make(map[string]*decimal.Decimal)}
	for col, v := range vals {
		r.Values[col] = dec(v)
	}
	return r
}

func stmt(p string, cols []string, rows ...model.StatementRow) model.Statement {
	return model.Statement{
		SourceFile: fmt.Sprintf("pl_%s.xlsx", p),
		Period:     p,
		Columns:    cols,
		Rows:       rows,
	}
}

// fullYearStatements builds 12 monthly statements with constant in-scope
// revenue and expenses for 2023.
func fullYearStatements(revenuePerLoc, rentPerLoc float64) []model.Statement {
	cols := []string{"Downtown", "Airport", "TOTAL"}
	var stmts []model.Statement
	for m := 1; m <= 12; m++ {
		p := time.Date(2023, time.Month(m), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
		stmts = append(stmts, stmt(p, cols,
			row("Total Income", map[string]float64{
				"Downtown": revenuePerLoc, "Airport": revenuePerLoc, "TOTAL": revenuePerLoc * 2,
			}),
			row("Rent", map[string]float64{
				"Downtown": rentPerLoc, "Airport": rentPerLoc, "TOTAL": rentPerLoc * 2,
			}),
		))
	}
	return stmts
}

// findRecord returns the sealed lineage record for a metric, failing the
// test when absent.
func findRecord(t *testing.T, tr *lineage.Tracker, metric string) lineage.Record {
	t.Helper()
	for _, r := range tr.Records() {
		if r.MetricName == metric {
			return r
		}
	}
	require.Failf(t, "record not found", "no sealed record for metric %q", metric)
	return lineage.Record{}
}

// stepsOf filters a record's steps by operation.
func stepsOf(r lineage.Record, op lineage.Operation) []lineage.Step {
	var out []lineage.Step
	for _, s := range r.Steps {
		if s.Operation == op {
			out = append(out, s)
		}
	}
	return out
}
