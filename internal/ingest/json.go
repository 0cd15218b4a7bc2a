package ingest

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/currency"
	"github.com/sells-group/saleready-cli/internal/model"
)

// dealFile is the JSON interchange shape. Cell values arrive as the raw
// source text (possibly with currency symbols and separators) and are
// coerced here.
type dealFile struct {
	Deal       string          `json:"deal"`
	Analysis   *analysisFile   `json:"analysis,omitempty"`
	Statements []statementFile `json:"statements"`
	Ledger     []ledgerRow     `json:"ledger"`
	Equipment  []equipmentRow  `json:"equipment"`
}

type analysisFile struct {
	WindowStart            string   `json:"window_start"`
	WindowEnd              string   `json:"window_end"`
	Locations              []string `json:"locations"`
	AskingPrice            float64  `json:"asking_price"`
	EBITDAMarginTarget     float64  `json:"ebitda_margin_target"`
	EquipmentFallbackValue float64  `json:"equipment_fallback_value"`
}

type statementFile struct {
	SourceFile string   `json:"source_file"`
	Period     string   `json:"period"`
	Columns    []string `json:"columns"`
	Rows       []struct {
		Label  string            `json:"label"`
		Values map[string]string `json:"values"`
	} `json:"rows"`
}

type ledgerRow struct {
	Date     string `json:"date"`
	Location string `json:"location"`
	Amount   string `json:"amount"`
	Memo     string `json:"memo,omitempty"`
}

type equipmentRow struct {
	Name       string `json:"name"`
	UnitCost   string `json:"unit_cost"`
	Quantity   int    `json:"quantity"`
	SourceFile string `json:"source_file"`
}

// ReadJSON loads a JSON deal file.
func ReadJSON(path string) (*Deal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read deal file")
	}
	return ParseJSON(data, baseName(path))
}

// ParseJSON decodes an in-memory JSON deal document. fallbackName is used
// when the document does not carry a deal name; the HTTP API feeds request
// bodies through here.
func ParseJSON(data []byte, fallbackName string) (*Deal, error) {
	var df dealFile
	if err := json.Unmarshal(data, &df); err != nil {
		return nil, eris.Wrap(err, "ingest: parse deal file")
	}

	deal := &Deal{Name: df.Deal}
	if deal.Name == "" {
		deal.Name = fallbackName
	}

	for _, sf := range df.Statements {
		deal.Statements = append(deal.Statements, convertStatement(sf))
	}
	deal.Ledger = convertLedger(fallbackName, df.Ledger)
	deal.Equipment = convertEquipment(df.Equipment)

	if df.Analysis != nil {
		deal.Analysis = &config.AnalysisConfig{
			WindowStart:            df.Analysis.WindowStart,
			WindowEnd:              df.Analysis.WindowEnd,
			Locations:              df.Analysis.Locations,
			AskingPrice:            df.Analysis.AskingPrice,
			EBITDAMarginTarget:     df.Analysis.EBITDAMarginTarget,
			EquipmentFallbackValue: df.Analysis.EquipmentFallbackValue,
		}
	}

	return deal, nil
}

func convertStatement(sf statementFile) model.Statement {
	s := model.Statement{
		SourceFile: sf.SourceFile,
		Period:     sf.Period,
		Columns:    sf.Columns,
	}
	for _, r := range sf.Rows {
		row := model.StatementRow{
			Label:  r.Label,
			Values: make(map[string]*decimal.Decimal, len(r.Values)),
			Raw:    make(map[string]string, len(r.Values)),
		}
		for col, raw := range r.Values {
			row.Raw[col] = raw
			if d, ok := currency.Parse(raw); ok {
				row.Values[col] = currency.Ptr(d)
			} else {
				zap.L().Warn("ingest: unparseable statement cell",
					zap.String("file", sf.SourceFile),
					zap.String("row", r.Label),
					zap.String("column", col),
					zap.String("raw", raw),
				)
				row.Values[col] = nil
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func convertLedger(path string, rows []ledgerRow) []model.LedgerEntry {
	var out []model.LedgerEntry
	for _, lr := range rows {
		date, err := time.Parse("2006-01-02", lr.Date)
		if err != nil {
			zap.L().Warn("ingest: ledger row with unparseable date skipped",
				zap.String("file", path),
				zap.String("date", lr.Date),
			)
			continue
		}
		amount, ok := currency.Parse(lr.Amount)
		if !ok {
			zap.L().Warn("ingest: ledger row with unparseable amount skipped",
				zap.String("file", path),
				zap.String("date", lr.Date),
				zap.String("amount", lr.Amount),
			)
			continue
		}
		out = append(out, model.LedgerEntry{
			Date:     date,
			Location: lr.Location,
			Amount:   amount,
			Memo:     lr.Memo,
		})
	}
	return out
}

func convertEquipment(rows []equipmentRow) []model.EquipmentItem {
	var out []model.EquipmentItem
	for _, er := range rows {
		item := model.EquipmentItem{
			Name:       er.Name,
			Quantity:   er.Quantity,
			SourceFile: er.SourceFile,
		}
		if d, ok := currency.Parse(er.UnitCost); ok {
			item.UnitCost = currency.Ptr(d)
		}
		out = append(out, item)
	}
	return out
}
