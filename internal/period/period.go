// Package period reconciles the reporting periods actually found in source
// statements against the contiguous monthly sequence expected for an
// analysis window, and imputes values for the gaps.
package period

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/saleready-cli/internal/currency"
)

// Key formats a time as a period key (YYYY-MM).
func Key(t time.Time) string {
	return t.Format("2006-01")
}

// ExpectedPeriods returns one period key per calendar month from start to
// end, inclusive of both boundary months, strictly increasing. A window
// ending before it starts yields nil.
func ExpectedPeriods(start, end time.Time) []string {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var periods []string
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		periods = append(periods, Key(m))
	}
	return periods
}

// Reconcile compares found observations against the expected sequence.
// Missing periods come back in expected order. When found is non-empty,
// each missing period is imputed with the arithmetic mean of the found
// values: one absent statement should not be assumed to be a zero-revenue
// month. When found is empty no imputation is possible and the caller must
// fall back to an alternate source entirely, recording that fallback itself.
func Reconcile(found map[string]decimal.Decimal, expected []string) (missing []string, imputed map[string]decimal.Decimal) {
	imputed = make(map[string]decimal.Decimal)

	for _, p := range expected {
		if _, ok := found[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 || len(found) == 0 {
		return missing, imputed
	}

	values := make([]decimal.Decimal, 0, len(found))
	for _, v := range found {
		values = append(values, v)
	}
	mean := currency.Mean(values)

	for _, p := range missing {
		imputed[p] = mean
	}
	return missing, imputed
}

// Series accumulates period observations in first-seen order. Adding to an
// existing period sums into it, which is how multiple statements covering
// the same month combine.
type Series struct {
	keys   []string
	values map[string]decimal.Decimal
}

// NewSeries returns an empty Series.
func NewSeries() *Series {
	return &Series{values: make(map[string]decimal.Decimal)}
}

// Add accumulates v into the given period.
func (s *Series) Add(period string, v decimal.Decimal) {
	if _, ok := s.values[period]; !ok {
		s.keys = append(s.keys, period)
	}
	s.values[period] = s.values[period].Add(v)
}

// Get returns the value for a period and whether it was observed.
func (s *Series) Get(period string) (decimal.Decimal, bool) {
	v, ok := s.values[period]
	return v, ok
}

// Len returns the number of distinct periods observed.
func (s *Series) Len() int {
	return len(s.keys)
}

// Keys returns the periods in first-seen order.
func (s *Series) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Map returns a copy of the period-to-value mapping.
func (s *Series) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Total returns the sum of all observed values.
func (s *Series) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range s.values {
		sum = sum.Add(v)
	}
	return sum
}
