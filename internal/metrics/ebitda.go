package metrics

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/currency"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/period"
)

// ebitdaResult carries the EBITDA-side outputs between pipeline stages.
type ebitdaResult struct {
	Monthly            decimal.Decimal
	Annual             decimal.Decimal
	TotalExpenses      decimal.Decimal
	UsedMarginFallback bool
}

// computeEBITDA derives monthly EBITDA per statement period, imputes missing
// months against the EBITDA series specifically (expense mix differs per
// period, so the revenue series' imputation is not reused), and annualizes
// the mean.
func (e *Engine) computeEBITDA(stmts []model.Statement, expected []string) (ebitdaResult, error) {
	var res ebitdaResult
	if err := e.tracker.Start("annual_ebitda",
		"annualized EBITDA for in-scope locations"); err != nil {
		return res, err
	}

	series := period.NewSeries()
	totalExpenses := decimal.Zero
	inWindow := periodSet(expected)

	for _, stmt := range stmts {
		if _, ok := inWindow[stmt.Period]; !ok {
			continue
		}
		monthly, expenses, ok, err := e.statementEBITDA(stmt)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		series.Add(stmt.Period, monthly)
		totalExpenses = totalExpenses.Add(expenses)
	}

	observed := series.Len()
	missing, imputed := period.Reconcile(series.Map(), expected)
	for _, p := range missing {
		v, ok := imputed[p]
		if !ok {
			continue
		}
		series.Add(p, v)
		if err := e.tracker.Fallback(p, v.Round(2),
			fmt.Sprintf("no statement for %s; imputed mean EBITDA of %d observed months", p, observed)); err != nil {
			return res, err
		}
	}

	values := make([]decimal.Decimal, 0, series.Len())
	for _, k := range series.Keys() {
		v, _ := series.Get(k)
		values = append(values, v)
	}

	res.Monthly = currency.Mean(values).Round(2)
	if err := e.tracker.AddStep(lineage.OpAggregate, "monthly_ebitda_average", &res.Monthly,
		fmt.Sprintf("mean of %d monthly EBITDA values", len(values)),
		map[string]any{"periods": len(values)}); err != nil {
		return res, err
	}

	months := e.annualizeMonths()
	factor := decimal.NewFromInt(int64(months))
	res.Annual = currency.SafeMultiply(&res.Monthly, &factor)
	if err := e.tracker.Annualize("annual_ebitda", res.Monthly, months,
		fmt.Sprintf("monthly EBITDA average projected over %d months", months)); err != nil {
		return res, err
	}

	res.TotalExpenses = totalExpenses.Round(2)
	_, err := e.tracker.Finish(&res.Annual)
	return res, err
}

// statementEBITDA computes one statement's monthly EBITDA: in-scope revenue
// minus in-scope operational expenses. Every expense row enters the lineage
// as a file contribution; excluded rows contribute with a zero normalized
// value so what was deliberately left out stays visible.
func (e *Engine) statementEBITDA(stmt model.Statement) (ebitda, expenses decimal.Decimal, ok bool, err error) {
	inScope := e.inScopeColumns(stmt.Columns)
	totalCol, hasTotal := totalColumn(stmt.Columns)
	if len(inScope) == 0 && !hasTotal {
		return decimal.Zero, decimal.Zero, false, nil
	}

	revenue := decimal.Zero
	for _, row := range stmt.Rows {
		switch Classify(row.Label, e.rules) {
		case CategoryRevenue:
			revenue = revenue.Add(e.rowTotal(stmt, row, inScope, totalCol))

		case CategoryExcluded:
			actual := e.rowTotal(stmt, row, inScope, totalCol)
			if err := e.tracker.FileContribution(stmt.SourceFile, row.Label, actual.String(), decimal.Zero,
				fmt.Sprintf("excluded from EBITDA for %s", stmt.Period)); err != nil {
				return ebitda, expenses, ok, err
			}

		case CategoryOperational:
			v := e.rowTotal(stmt, row, inScope, totalCol)
			if err := e.tracker.FileContribution(stmt.SourceFile, row.Label, v.String(), v,
				fmt.Sprintf("operational expense for %s", stmt.Period)); err != nil {
				return ebitda, expenses, ok, err
			}
			expenses = expenses.Add(v)
		}
	}

	ebitda = revenue.Sub(expenses)

	// The combined TOTAL also covers out-of-scope locations. A statement
	// valued off it is flagged here the same way the revenue series flags
	// its TOTAL-column substitutions.
	if len(inScope) == 0 {
		if err := e.tracker.AddStep(lineage.OpFallback, totalCol, &ebitda,
			fmt.Sprintf("in-scope columns absent for %s; row values taken from combined TOTAL", stmt.Period),
			map[string]any{
				"file_name": stmt.SourceFile,
				"reason":    "combined TOTAL includes out-of-scope locations",
			}); err != nil {
			return ebitda, expenses, ok, err
		}
	}

	if err := e.tracker.AddStep(lineage.OpCalculate, stmt.Period, &ebitda,
		fmt.Sprintf("monthly EBITDA for %s: revenue %s - operating expenses %s",
			stmt.Period, revenue.Round(2), expenses.Round(2)),
		map[string]any{"file_name": stmt.SourceFile}); err != nil {
		return ebitda, expenses, ok, err
	}

	return ebitda, expenses, true, nil
}

// rowTotal sums a row across in-scope columns, or falls back to the combined
// total column when no in-scope column exists.
func (e *Engine) rowTotal(stmt model.Statement, row model.StatementRow, inScope []string, totalCol string) decimal.Decimal {
	if len(inScope) > 0 {
		sum := decimal.Zero
		for _, col := range inScope {
			sum = sum.Add(e.cellValue(stmt, row, col))
		}
		return sum
	}
	return e.cellValue(stmt, row, totalCol)
}

// computeEBITDAFallback derives EBITDA from the transaction ledger at the
// configured margin target. This runs only when no statement data exists at
// all, as its own named calculation so the fallback path never blends into
// the primary one.
func (e *Engine) computeEBITDAFallback(ledger []model.LedgerEntry, expected []string) (ebitdaResult, error) {
	res := ebitdaResult{UsedMarginFallback: true}
	if err := e.tracker.Start("annual_ebitda_margin_fallback",
		"EBITDA derived from transaction ledger at configured margin target"); err != nil {
		return res, err
	}

	margin := decimal.NewFromFloat(e.cfg.EBITDAMarginTarget)
	if err := e.tracker.Fallback("annual_ebitda", decimal.Zero,
		fmt.Sprintf("no usable statement data; deriving EBITDA from ledger at margin target %s", margin)); err != nil {
		return res, err
	}

	series := period.NewSeries()
	inWindow := periodSet(expected)
	for _, entry := range ledger {
		p := entry.Period()
		if _, ok := inWindow[p]; !ok {
			continue
		}
		if len(e.cfg.Locations) > 0 && entry.Location != "" && !e.cfg.InScope(entry.Location) {
			continue
		}
		series.Add(p, entry.Amount)
	}

	total := series.Total().Round(2)
	count := series.Len()
	if count == 0 {
		zap.L().Warn("metrics: ledger has no in-scope transactions in window; EBITDA is zero")
	}
	if err := e.tracker.Sum("ledger_total", total,
		fmt.Sprintf("in-scope ledger revenue across %d months", count)); err != nil {
		return res, err
	}

	divisor := decimal.NewFromInt(int64(count))
	monthlyRevenue := currency.SafeDivide(&total, &divisor)
	if err := e.tracker.Divide("ledger_monthly_average", &total, divisor,
		"ledger total / months with activity"); err != nil {
		return res, err
	}

	res.Monthly = currency.SafeMultiply(&monthlyRevenue, &margin)
	if err := e.tracker.Multiply("monthly_ebitda", res.Monthly, margin,
		"ledger monthly average at EBITDA margin target"); err != nil {
		return res, err
	}

	months := e.annualizeMonths()
	factor := decimal.NewFromInt(int64(months))
	res.Annual = currency.SafeMultiply(&res.Monthly, &factor)
	if err := e.tracker.Annualize("annual_ebitda", res.Monthly, months,
		fmt.Sprintf("monthly EBITDA projected over %d months", months)); err != nil {
		return res, err
	}

	_, err := e.tracker.Finish(&res.Annual)
	return res, err
}
