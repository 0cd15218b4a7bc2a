// Package report renders a computed metrics bundle for terminal output.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

var printer = message.NewPrinter(language.English)

// Render writes a human-readable summary of one deal's metrics.
func Render(w io.Writer, deal string, b *model.MetricsBundle, summary lineage.Summary) error {
	fmt.Fprintf(w, "Deal: %s\n", deal)
	fmt.Fprintln(w, strings.Repeat("-", 40))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Annual revenue projection:\t%s\n", dollars(b.Sales.AnnualRevenueProjection))
	fmt.Fprintf(tw, "Monthly revenue average:\t%s\n", dollars(b.Sales.MonthlyRevenueAverage))
	fmt.Fprintf(tw, "Periods (observed/imputed):\t%d/%d\n", b.Sales.ObservedPeriods, b.Sales.ImputedPeriods)

	ebitdaLine := dollars(b.Financial.AnnualEBITDA)
	if b.Financial.UsedMarginFallback {
		ebitdaLine += " (margin fallback)"
	}
	fmt.Fprintf(tw, "Annual EBITDA:\t%s\n", ebitdaLine)
	fmt.Fprintf(tw, "EBITDA margin:\t%.1f%%\n", b.Financial.EBITDAMarginPct)

	fmt.Fprintf(tw, "Asking price:\t%s\n", dollars(b.Valuation.AskingPrice))
	fmt.Fprintf(tw, "ROI:\t%.1f%%\n", b.Valuation.ROIPct)
	fmt.Fprintf(tw, "Payback:\t%.1f years\n", b.Valuation.PaybackYears)

	equipLine := dollars(b.Equipment.TotalValue)
	if b.Equipment.UsedFallback {
		equipLine += " (fallback)"
	} else {
		equipLine += printer.Sprintf(" (%d items)", b.Equipment.ItemCount)
	}
	fmt.Fprintf(tw, "Equipment valuation:\t%s\n", equipLine)

	fmt.Fprintf(tw, "Statements processed:\t%d (%d skipped)\n",
		b.Operational.StatementsProcessed, b.Operational.StatementsSkipped)
	fmt.Fprintf(tw, "Lineage:\t%d records, %d steps\n", summary.TotalRecords, summary.TotalSteps)

	return tw.Flush()
}

// dollars renders a grouped dollar amount, whole dollars only.
func dollars(v float64) string {
	return printer.Sprintf("$%.0f", v)
}
