// Package metrics is the computation core deriving sale-readiness metrics
// (revenue, EBITDA, ROI, payback, equipment valuation) from normalized
// statements, with a complete lineage record for every derived number.
package metrics

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/period"
)

// Engine orchestrates one metrics computation. It is not safe for concurrent
// use; give each parallel run its own Engine and Tracker.
type Engine struct {
	cfg     config.AnalysisConfig
	tracker *lineage.Tracker
	rules   []Rule
}

// New creates an Engine bound to a tracker.
func New(cfg config.AnalysisConfig, tracker *lineage.Tracker) *Engine {
	return &Engine{cfg: cfg, tracker: tracker, rules: RulesFor(cfg.RevenuePatterns, cfg.ExcludePatterns)}
}

// Compute derives the full MetricsBundle. Data-quality gaps degrade to zero
// contributions with recorded fallback steps; the only returned errors are
// lineage protocol violations and an unparseable analysis window, both
// caller bugs.
func (e *Engine) Compute(stmts []model.Statement, ledger []model.LedgerEntry, equipment []model.EquipmentItem) (*model.MetricsBundle, error) {
	start, end, err := e.cfg.Window()
	if err != nil {
		return nil, err
	}
	expected := period.ExpectedPeriods(start, end)

	rev, err := e.computeRevenue(stmts, expected)
	if err != nil {
		return nil, err
	}

	var ebitda ebitdaResult
	if rev.Processed > 0 {
		ebitda, err = e.computeEBITDA(stmts, expected)
	} else {
		ebitda, err = e.computeEBITDAFallback(ledger, expected)
	}
	if err != nil {
		return nil, err
	}

	asking := decimal.NewFromFloat(e.cfg.AskingPrice)

	roi, err := e.computeROI(ebitda.Annual, asking)
	if err != nil {
		return nil, err
	}
	payback, err := e.computePayback(ebitda.Annual, asking)
	if err != nil {
		return nil, err
	}
	equip, err := e.computeEquipment(equipment)
	if err != nil {
		return nil, err
	}

	return e.assemble(rev, ebitda, roi, payback, equip, asking, len(ledger)), nil
}

// assemble builds the complete, zero-filled bundle from the per-metric
// results.
func (e *Engine) assemble(rev revenueResult, ebitda ebitdaResult, roi, payback decimal.Decimal, equip equipmentResult, asking decimal.Decimal, ledgerCount int) *model.MetricsBundle {
	marginNum := ebitda.Annual
	margin := safePct(&marginNum, &rev.Annual)

	b := &model.MetricsBundle{
		Sales: model.SalesMetrics{
			TotalRevenue:            f64(rev.Total),
			MonthlyRevenueAverage:   f64(rev.MonthlyAverage),
			AnnualRevenueProjection: f64(rev.Annual),
			PeriodCount:             rev.Observed + rev.Imputed,
			ObservedPeriods:         rev.Observed,
			ImputedPeriods:          rev.Imputed,
			UsedTotalFallback:       rev.UsedTotalFallback,
		},
		Financial: model.FinancialMetrics{
			MonthlyEBITDAAverage:   f64(ebitda.Monthly),
			AnnualEBITDA:           f64(ebitda.Annual),
			EBITDAMarginPct:        f64(margin),
			TotalOperatingExpenses: f64(ebitda.TotalExpenses),
			UsedMarginFallback:     ebitda.UsedMarginFallback,
		},
		Operational: model.OperationalMetrics{
			LocationsInScope:    append([]string{}, e.cfg.Locations...),
			StatementsProcessed: rev.Processed,
			StatementsSkipped:   rev.Skipped,
			LedgerTransactions:  ledgerCount,
		},
		Valuation: model.ValuationMetrics{
			AskingPrice:  f64(asking.Round(2)),
			ROIPct:       f64(roi),
			PaybackYears: f64(payback),
		},
		Equipment: model.EquipmentMetrics{
			TotalValue:   f64(equip.Total),
			ItemCount:    equip.ItemCount,
			UsedFallback: equip.UsedFallback,
		},
	}

	b.LandingPage = model.LandingPageMetrics{
		AnnualRevenue: FormatCurrency(b.Sales.AnnualRevenueProjection),
		AnnualEBITDA:  FormatCurrency(b.Financial.AnnualEBITDA),
		ROI:           fmt.Sprintf("%.1f%%", b.Valuation.ROIPct),
		Payback:       fmt.Sprintf("%.1f years", b.Valuation.PaybackYears),
		AskingPrice:   FormatCurrency(b.Valuation.AskingPrice),
	}

	return b
}

// annualizeMonths returns the configured projection factor, defaulting to 12.
func (e *Engine) annualizeMonths() int {
	if e.cfg.AnnualizeMonths > 0 {
		return e.cfg.AnnualizeMonths
	}
	return 12
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// safePct returns num/den*100 rounded to cents, 0 when den is zero.
func safePct(num, den *decimal.Decimal) decimal.Decimal {
	if num == nil || den == nil || den.IsZero() {
		return decimal.Zero
	}
	return num.Div(*den).Mul(decimal.NewFromInt(100)).Round(2)
}

// FormatCurrency renders a dollar amount in compact human-readable form.
func FormatCurrency(amount float64) string {
	switch {
	case amount >= 1_000_000_000 || amount <= -1_000_000_000:
		return fmt.Sprintf("$%.1fB", amount/1_000_000_000)
	case amount >= 1_000_000 || amount <= -1_000_000:
		return fmt.Sprintf("$%.1fM", amount/1_000_000)
	case amount >= 10_000 || amount <= -10_000:
		return fmt.Sprintf("$%.0fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.0f", amount)
	}
}
