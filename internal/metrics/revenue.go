package metrics

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/currency"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/period"
)

// revenueResult carries the revenue-side outputs between pipeline stages.
type revenueResult struct {
	Total             decimal.Decimal
	MonthlyAverage    decimal.Decimal
	Annual            decimal.Decimal
	Observed          int
	Imputed           int
	UsedTotalFallback bool
	Processed         int
	Skipped           int
}

// computeRevenue builds the revenue series from statements, imputes missing
// months, and derives the monthly average and annual projection, all under
// one lineage record.
func (e *Engine) computeRevenue(stmts []model.Statement, expected []string) (revenueResult, error) {
	var res revenueResult
	if err := e.tracker.Start("annual_revenue_projection",
		"annualized revenue projection for in-scope locations"); err != nil {
		return res, err
	}

	series := period.NewSeries()
	inWindow := periodSet(expected)

	for _, stmt := range stmts {
		if _, ok := inWindow[stmt.Period]; !ok {
			zap.L().Warn("metrics: statement outside analysis window, skipping",
				zap.String("file", stmt.SourceFile),
				zap.String("period", stmt.Period),
			)
			res.Skipped++
			continue
		}

		contrib, usedTotal, ok, err := e.statementRevenue(stmt)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped++
			continue
		}
		if usedTotal {
			res.UsedTotalFallback = true
		}
		series.Add(stmt.Period, contrib)
		res.Processed++
	}

	res.Observed = series.Len()

	missing, imputed := period.Reconcile(series.Map(), expected)
	for _, p := range missing {
		v, ok := imputed[p]
		if !ok {
			continue
		}
		series.Add(p, v)
		if err := e.tracker.Fallback(p, v.Round(2),
			fmt.Sprintf("no statement for %s; imputed mean of %d observed months", p, res.Observed)); err != nil {
			return res, err
		}
		res.Imputed++
	}

	res.Total = series.Total().Round(2)
	count := series.Len()
	if err := e.tracker.Sum("total_revenue", res.Total,
		fmt.Sprintf("total in-scope revenue across %d periods", count)); err != nil {
		return res, err
	}

	total := res.Total
	divisor := decimal.NewFromInt(int64(count))
	res.MonthlyAverage = currency.SafeDivide(&total, &divisor)
	if err := e.tracker.Divide("monthly_revenue_average", &total, divisor,
		"total revenue / period count"); err != nil {
		return res, err
	}

	months := e.annualizeMonths()
	factor := decimal.NewFromInt(int64(months))
	res.Annual = currency.SafeMultiply(&res.MonthlyAverage, &factor)
	if err := e.tracker.Annualize("annual_revenue_projection", res.MonthlyAverage, months,
		fmt.Sprintf("monthly average projected over %d months", months)); err != nil {
		return res, err
	}

	_, err := e.tracker.Finish(&res.Annual)
	return res, err
}

// statementRevenue extracts one statement's in-scope revenue. Returns
// ok=false when the statement has no identifiable location columns at all;
// such statements contribute nothing and their period stays a candidate for
// imputation.
func (e *Engine) statementRevenue(stmt model.Statement) (sum decimal.Decimal, usedTotal, ok bool, err error) {
	inScope := e.inScopeColumns(stmt.Columns)
	totalCol, hasTotal := totalColumn(stmt.Columns)

	if len(inScope) == 0 && !hasTotal {
		zap.L().Warn("metrics: no identifiable location columns, skipping statement",
			zap.String("file", stmt.SourceFile),
			zap.String("period", stmt.Period),
			zap.Strings("columns", stmt.Columns),
		)
		return decimal.Zero, false, false, nil
	}

	matched := false
	for _, row := range stmt.Rows {
		if Classify(row.Label, e.rules) != CategoryRevenue {
			continue
		}
		matched = true

		if len(inScope) > 0 {
			rowSum := decimal.Zero
			for _, col := range inScope {
				norm := e.cellValue(stmt, row, col)
				if err := e.tracker.FileContribution(stmt.SourceFile, col, row.RawValue(col), norm,
					fmt.Sprintf("revenue row %q for %s", row.Label, stmt.Period)); err != nil {
					return sum, usedTotal, ok, err
				}
				rowSum = rowSum.Add(norm)
			}

			// In-scope columns win over TOTAL. A disagreeing TOTAL is worth
			// seeing in the logs but does not enter the lineage.
			if hasTotal {
				if tv := row.Value(totalCol); tv != nil && !tv.Round(2).Equal(rowSum.Round(2)) {
					zap.L().Warn("metrics: TOTAL column disagrees with in-scope sum",
						zap.String("file", stmt.SourceFile),
						zap.String("row", row.Label),
						zap.String("total_column", tv.String()),
						zap.String("in_scope_sum", rowSum.String()),
					)
				}
			}
			sum = sum.Add(rowSum)
			continue
		}

		// No in-scope columns present: the combined TOTAL also includes
		// out-of-scope locations, so it enters as a lineage-flagged
		// fallback, never a plain contribution.
		norm := e.cellValue(stmt, row, totalCol)
		if err := e.tracker.AddStep(lineage.OpFallback, totalCol, &norm,
			fmt.Sprintf("revenue row %q for %s: in-scope columns absent, using combined TOTAL", row.Label, stmt.Period),
			map[string]any{
				"file_name":        stmt.SourceFile,
				"field_name":       totalCol,
				"raw_value":        row.RawValue(totalCol),
				"normalized_value": f64(norm),
				"reason":           "combined TOTAL includes out-of-scope locations",
			}); err != nil {
			return sum, usedTotal, ok, err
		}
		usedTotal = true
		sum = sum.Add(norm)
	}

	if !matched {
		zap.L().Warn("metrics: statement has no revenue row",
			zap.String("file", stmt.SourceFile),
			zap.String("period", stmt.Period),
		)
	}
	return sum, usedTotal, true, nil
}

// cellValue normalizes a single statement cell, logging unparseable cells
// which contribute zero.
func (e *Engine) cellValue(stmt model.Statement, row model.StatementRow, col string) decimal.Decimal {
	v := row.Value(col)
	if v == nil {
		if _, present := row.Values[col]; present || row.RawValue(col) != "" {
			zap.L().Warn("metrics: unparseable cell contributes zero",
				zap.String("file", stmt.SourceFile),
				zap.String("row", row.Label),
				zap.String("column", col),
				zap.String("raw", row.RawValue(col)),
			)
		}
		return decimal.Zero
	}
	return currency.RoundCurrency(v)
}

// inScopeColumns returns the statement columns matching configured in-scope
// locations, in statement order.
func (e *Engine) inScopeColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		if e.cfg.InScope(c) {
			out = append(out, c)
		}
	}
	return out
}

// totalColumn finds a combined total column, if any.
func totalColumn(columns []string) (string, bool) {
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "total") {
			return c, true
		}
	}
	return "", false
}

func periodSet(periods []string) map[string]struct{} {
	s := make(map[string]struct{}, len(periods))
	for _, p := range periods {
		s[p] = struct{}{}
	}
	return s
}
