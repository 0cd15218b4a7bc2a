package metrics

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/currency"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

var hundred = decimal.NewFromInt(100)

// computeROI derives annual EBITDA as a percentage of asking price. A zero
// asking price resolves to 0 with a recorded fallback, never an error.
func (e *Engine) computeROI(annualEBITDA, asking decimal.Decimal) (decimal.Decimal, error) {
	if err := e.tracker.Start("roi_pct",
		"annual EBITDA as a percentage of asking price"); err != nil {
		return decimal.Zero, err
	}

	if err := e.tracker.AddStep(lineage.OpInput, "annual_ebitda", &annualEBITDA, "", nil); err != nil {
		return decimal.Zero, err
	}
	if err := e.tracker.AddStep(lineage.OpInput, "asking_price", &asking, "", nil); err != nil {
		return decimal.Zero, err
	}

	roi := decimal.Zero
	if asking.IsZero() {
		if err := e.tracker.Fallback("roi_pct", roi,
			"asking price is zero; ROI reported as 0"); err != nil {
			return roi, err
		}
	} else {
		ratio := currency.SafeDivide(&annualEBITDA, &asking)
		if err := e.tracker.Divide("ebitda_to_price_ratio", &annualEBITDA, asking,
			"annual EBITDA / asking price"); err != nil {
			return roi, err
		}
		roi = currency.SafeMultiply(&ratio, &hundred)
		if err := e.tracker.Multiply("roi_pct", roi, hundred, "ratio as percentage"); err != nil {
			return roi, err
		}
	}

	_, err := e.tracker.Finish(&roi)
	return roi, err
}

// computePayback derives the years of annual EBITDA needed to recover the
// asking price. Zero annual EBITDA resolves to 0, not infinity.
func (e *Engine) computePayback(annualEBITDA, asking decimal.Decimal) (decimal.Decimal, error) {
	if err := e.tracker.Start("payback_years",
		"years of annual EBITDA to recover the asking price"); err != nil {
		return decimal.Zero, err
	}

	if err := e.tracker.AddStep(lineage.OpInput, "asking_price", &asking, "", nil); err != nil {
		return decimal.Zero, err
	}
	if err := e.tracker.AddStep(lineage.OpInput, "annual_ebitda", &annualEBITDA, "", nil); err != nil {
		return decimal.Zero, err
	}

	payback := decimal.Zero
	if annualEBITDA.IsZero() {
		if err := e.tracker.Fallback("payback_years", payback,
			"annual EBITDA is zero; payback reported as 0"); err != nil {
			return payback, err
		}
	} else {
		payback = currency.SafeDivide(&asking, &annualEBITDA)
		if err := e.tracker.Divide("payback_years", &asking, annualEBITDA,
			"asking price / annual EBITDA"); err != nil {
			return payback, err
		}
	}

	_, err := e.tracker.Finish(&payback)
	return payback, err
}

// equipmentResult carries the equipment valuation outputs.
type equipmentResult struct {
	Total        decimal.Decimal
	ItemCount    int
	UsedFallback bool
}

// computeEquipment sums itemized equipment line totals. Only when every
// source item read failed does the configured constant substitute, recorded
// as a fallback naming its configuration source.
func (e *Engine) computeEquipment(items []model.EquipmentItem) (equipmentResult, error) {
	var res equipmentResult
	if err := e.tracker.Start("equipment_valuation",
		"itemized equipment value from source records"); err != nil {
		return res, err
	}

	total := decimal.Zero
	for _, item := range items {
		if item.UnitCost == nil {
			zap.L().Warn("metrics: unreadable equipment line, zero contribution",
				zap.String("file", item.SourceFile),
				zap.String("item", item.Name),
			)
			continue
		}

		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		q := decimal.NewFromInt(int64(qty))
		line := currency.SafeMultiply(item.UnitCost, &q)
		if err := e.tracker.FileContribution(item.SourceFile, item.Name,
			fmt.Sprintf("%s x %d", item.UnitCost, qty), line, "equipment line item"); err != nil {
			return res, err
		}
		total = total.Add(line)
		res.ItemCount++
	}

	if res.ItemCount == 0 {
		total = decimal.NewFromFloat(e.cfg.EquipmentFallbackValue).Round(2)
		res.UsedFallback = true
		if err := e.tracker.Fallback("equipment_value", total,
			"no readable equipment source records; using configured analysis.equipment_fallback_value"); err != nil {
			return res, err
		}
	} else {
		if err := e.tracker.Sum("equipment_total", total.Round(2),
			fmt.Sprintf("sum of %d equipment line items", res.ItemCount)); err != nil {
			return res, err
		}
	}

	res.Total = total.Round(2)
	_, err := e.tracker.Finish(&res.Total)
	return res, err
}
