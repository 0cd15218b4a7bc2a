// Package model defines the domain types shared across the sale-readiness engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is one normalized profit-and-loss statement covering a single
// reporting period. Columns carry the location column names exactly as they
// appeared in the source document, in source order.
type Statement struct {
	SourceFile string         `json:"source_file"`
	Period     string         `json:"period"` // YYYY-MM
	Columns    []string       `json:"columns"`
	Rows       []StatementRow `json:"rows"`
}

// StatementRow is one labeled line of a statement with per-location values.
// A nil value means the source cell could not be parsed; it contributes zero.
// Raw preserves the original cell text for the lineage trail.
type StatementRow struct {
	Label  string                      `json:"label"`
	Values map[string]*decimal.Decimal `json:"values"`
	Raw    map[string]string           `json:"raw,omitempty"`
}

// Value returns the row's value for a column, or nil if absent.
func (r StatementRow) Value(column string) *decimal.Decimal {
	return r.Values[column]
}

// RawValue returns the original cell text for a column, falling back to the
// normalized value's string form when the loader did not keep the raw text.
func (r StatementRow) RawValue(column string) string {
	if raw, ok := r.Raw[column]; ok {
		return raw
	}
	if v := r.Values[column]; v != nil {
		return v.String()
	}
	return ""
}

// LedgerEntry is a single transaction from the flat transaction ledger.
type LedgerEntry struct {
	Date     time.Time       `json:"date"`
	Location string          `json:"location"`
	Amount   decimal.Decimal `json:"amount"`
	Memo     string          `json:"memo,omitempty"`
}

// Period returns the entry's reporting period key (YYYY-MM).
func (e LedgerEntry) Period() string {
	return e.Date.Format("2006-01")
}

// EquipmentItem is one itemized equipment line from the source records.
// A nil UnitCost means the source value could not be read.
type EquipmentItem struct {
	Name       string           `json:"name"`
	UnitCost   *decimal.Decimal `json:"unit_cost"`
	Quantity   int              `json:"quantity"`
	SourceFile string           `json:"source_file"`
}
