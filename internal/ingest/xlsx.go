package ingest

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/currency"
	"github.com/sells-group/saleready-cli/internal/model"
)

// Sheet names with special meaning in a deal workbook; every other sheet is
// expected to be one statement named by its period (YYYY-MM).
const (
	sheetLedger    = "Ledger"
	sheetEquipment = "Equipment"
)

// ReadXLSX loads a deal workbook: one sheet per statement period plus
// optional Ledger and Equipment sheets. Unrecognized sheets are skipped
// with a warning rather than failing the whole workbook.
func ReadXLSX(path string) (*Deal, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook")
	}

	deal := &Deal{Name: baseName(path)}

	for _, sheet := range f.Sheets {
		switch {
		case strings.EqualFold(sheet.Name, sheetLedger):
			deal.Ledger = parseLedgerSheet(path, sheet)
		case strings.EqualFold(sheet.Name, sheetEquipment):
			deal.Equipment = parseEquipmentSheet(path, sheet)
		default:
			p, ok := sheetPeriod(sheet.Name)
			if !ok {
				zap.L().Warn("ingest: unrecognized workbook sheet skipped",
					zap.String("file", path),
					zap.String("sheet", sheet.Name),
				)
				continue
			}
			deal.Statements = append(deal.Statements, parseStatementSheet(path, sheet, p))
		}
	}

	return deal, nil
}

// sheetPeriod parses a statement sheet name as a period key.
func sheetPeriod(name string) (string, bool) {
	t, err := time.Parse("2006-01", strings.TrimSpace(name))
	if err != nil {
		return "", false
	}
	return t.Format("2006-01"), true
}

// parseStatementSheet reads a statement sheet: header row of a label column
// followed by location columns, then one row per statement line.
func parseStatementSheet(path string, sheet *xlsx.Sheet, p string) model.Statement {
	s := model.Statement{
		SourceFile: path + "#" + sheet.Name,
		Period:     p,
	}
	if len(sheet.Rows) == 0 {
		return s
	}

	header := rowStrings(sheet.Rows[0])
	if len(header) > 1 {
		s.Columns = header[1:]
	}

	for _, r := range sheet.Rows[1:] {
		cells := rowStrings(r)
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		row := model.StatementRow{
			Label:  strings.TrimSpace(cells[0]),
			Values: make(map[string]*decimal.Decimal, len(s.Columns)),
			Raw:    make(map[string]string, len(s.Columns)),
		}
		for i, col := range s.Columns {
			if i+1 >= len(cells) {
				break
			}
			raw := cells[i+1]
			if strings.TrimSpace(raw) == "" {
				continue
			}
			row.Raw[col] = raw
			if d, ok := currency.Parse(raw); ok {
				row.Values[col] = currency.Ptr(d)
			} else {
				zap.L().Warn("ingest: unparseable statement cell",
					zap.String("file", s.SourceFile),
					zap.String("row", row.Label),
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

// parseLedgerSheet reads a Ledger sheet with columns: date, location,
// amount, memo. Malformed rows are skipped with a warning.
func parseLedgerSheet(path string, sheet *xlsx.Sheet) []model.LedgerEntry {
	var rows []ledgerRow
	for i, r := range sheet.Rows {
		if i == 0 {
			continue // header
		}
		cells := rowStrings(r)
		if len(cells) < 3 {
			continue
		}
		lr := ledgerRow{Date: cells[0], Location: cells[1], Amount: cells[2]}
		if len(cells) > 3 {
			lr.Memo = cells[3]
		}
		rows = append(rows, lr)
	}
	return convertLedger(path, rows)
}

// parseEquipmentSheet reads an Equipment sheet with columns: name,
// unit cost, quantity.
func parseEquipmentSheet(path string, sheet *xlsx.Sheet) []model.EquipmentItem {
	var items []model.EquipmentItem
	for i, r := range sheet.Rows {
		if i == 0 {
			continue // header
		}
		cells := rowStrings(r)
		if len(cells) < 2 || strings.TrimSpace(cells[0]) == "" {
			continue
		}

		item := model.EquipmentItem{
			Name:       strings.TrimSpace(cells[0]),
			Quantity:   1,
			SourceFile: path + "#" + sheet.Name,
		}
		if d, ok := currency.Parse(cells[1]); ok {
			item.UnitCost = currency.Ptr(d)
		} else {
			zap.L().Warn("ingest: unreadable equipment cost",
				zap.String("file", item.SourceFile),
				zap.String("item", item.Name),
				zap.String("raw", cells[1]),
			)
		}
		if len(cells) > 2 {
			if q, ok := currency.Parse(cells[2]); ok {
				item.Quantity = int(q.IntPart())
			}
		}
		items = append(items, item)
	}
	return items
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
