// Package lineage records a replayable provenance trail for every derived
// metric. A Tracker enforces a single-active-calculation protocol: exactly
// one Record may be open at a time, steps append to it in strict sequence
// order, and Finish seals it into an append-only history.
package lineage

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/currency"
)

// Operation tags the kind of contribution a step makes to a calculation.
type Operation string

const (
	OpInput            Operation = "input"
	OpSum              Operation = "sum"
	OpMultiply         Operation = "multiply"
	OpDivide           Operation = "divide"
	OpAnnualize        Operation = "annualize"
	OpAggregate        Operation = "aggregate"
	OpFileContribution Operation = "file_contribution"
	OpFallback         Operation = "fallback"
	OpCalculate        Operation = "calculate"
)

// Step is one atomic contribution to a Record. Meta carries
// operation-specific detail (divisor, factor, file/field bindings) and must
// only contain JSON-safe primitives.
type Step struct {
	Sequence    int              `json:"sequence"`
	Operation   Operation        `json:"operation"`
	Field       string           `json:"field,omitempty"`
	Value       *decimal.Decimal `json:"value"`
	Description string           `json:"description,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Meta        map[string]any   `json:"meta,omitempty"`
}

// Record is one named metric derivation. EndTime and FinalValue stay nil
// until Finish seals the record; after that the record is immutable.
type Record struct {
	MetricName  string           `json:"metric_name"`
	Description string           `json:"description,omitempty"`
	Steps       []Step           `json:"steps"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	FinalValue  *decimal.Decimal `json:"final_value,omitempty"`
}

// Tracker owns the in-flight record and the sealed history. All mutating
// operations hold the internal lock, so a tracker may be shared by parallel
// computation goroutines without interleaving record creation or sealing.
type Tracker struct {
	mu      sync.Mutex
	current *Record
	seq     int
	history []Record
}

// New creates an idle Tracker with empty history.
func New() *Tracker {
	return &Tracker{}
}

// Start opens a new record. Starting while another record is open is a
// protocol violation: silently replacing an unfinished record would corrupt
// the audit trail, so it fails loudly instead.
func (t *Tracker) Start(metric, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return eris.Errorf("lineage: calculation %q already in progress, cannot start %q",
			t.current.MetricName, metric)
	}

	t.current = &Record{
		MetricName:  metric,
		Description: description,
		StartTime:   time.Now().UTC(),
	}
	t.seq = 0
	return nil
}

// AddStep appends a step to the open record with the next sequence number.
// Value is normalized to cents before recording. Fails if no record is open.
func (t *Tracker) AddStep(op Operation, field string, value *decimal.Decimal, description string, meta map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addStepLocked(op, field, value, description, meta)
}

func (t *Tracker) addStepLocked(op Operation, field string, value *decimal.Decimal, description string, meta map[string]any) error {
	if t.current == nil {
		return eris.Errorf("lineage: no calculation in progress, cannot add %s step", op)
	}

	t.seq++
	step := Step{
		Sequence:    t.seq,
		Operation:   op,
		Field:       field,
		Description: description,
		Timestamp:   time.Now().UTC(),
		Meta:        meta,
	}
	if value != nil {
		step.Value = currency.Ptr(currency.RoundCurrency(value))
	}
	t.current.Steps = append(t.current.Steps, step)
	return nil
}

// Sum records a sum step over the named fields.
func (t *Tracker) Sum(field string, value decimal.Decimal, description string, fields ...string) error {
	var meta map[string]any
	if len(fields) > 0 {
		meta = map[string]any{"fields": fields}
	}
	return t.AddStep(OpSum, field, &value, description, meta)
}

// Multiply records a multiplication by factor.
func (t *Tracker) Multiply(field string, value, factor decimal.Decimal, description string) error {
	f, _ := factor.Float64()
	return t.AddStep(OpMultiply, field, &value, description, map[string]any{"factor": f})
}

// Divide records a division by divisor. A nil numerator or zero divisor is
// not a meaningful operation; it logs and records nothing rather than
// polluting the lineage.
func (t *Tracker) Divide(field string, numerator *decimal.Decimal, divisor decimal.Decimal, description string) error {
	if numerator == nil || divisor.Round(2).IsZero() {
		zap.L().Debug("lineage: divide step skipped",
			zap.String("field", field),
			zap.Bool("nil_numerator", numerator == nil),
			zap.String("divisor", divisor.String()),
		)
		return nil
	}
	d, _ := divisor.Float64()
	result := currency.SafeDivide(numerator, &divisor)
	return t.AddStep(OpDivide, field, &result, description, map[string]any{"divisor": d})
}

// Annualize records a projection from a periodic value to an annual one.
// A non-positive period count defaults to 12.
func (t *Tracker) Annualize(field string, value decimal.Decimal, periods int, description string) error {
	if periods <= 0 {
		periods = 12
	}
	factor := decimal.NewFromInt(int64(periods))
	result := currency.SafeMultiply(&value, &factor)
	return t.AddStep(OpAnnualize, field, &result, description, map[string]any{"factor": periods})
}

// FileContribution binds a raw source file/field pair to its normalized
// value. Excluded rows contribute with a zero normalized value so the
// exclusion stays visible in the export.
func (t *Tracker) FileContribution(file, field, raw string, normalized decimal.Decimal, description string) error {
	nf, _ := normalized.Round(2).Float64()
	return t.AddStep(OpFileContribution, field, &normalized, description, map[string]any{
		"file_name":        file,
		"field_name":       field,
		"raw_value":        raw,
		"normalized_value": nf,
	})
}

// Fallback records that a substitute value was used instead of a directly
// observed one, with the reason it was needed.
func (t *Tracker) Fallback(field string, value decimal.Decimal, reason string) error {
	return t.AddStep(OpFallback, field, &value, reason, map[string]any{"reason": reason})
}

// Finish seals the open record with its final value, moves it into history,
// and returns a deep copy. Fails if no record is open.
func (t *Tracker) Finish(final *decimal.Decimal) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil, eris.New("lineage: no calculation in progress, cannot finish")
	}

	now := time.Now().UTC()
	t.current.EndTime = &now
	rounded := currency.RoundCurrency(final)
	t.current.FinalValue = &rounded

	t.history = append(t.history, *t.current)
	sealed := copyRecord(*t.current)
	t.current = nil
	t.seq = 0

	return &sealed, nil
}

// InProgress reports whether a calculation is currently open.
func (t *Tracker) InProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Records returns deep copies of all sealed records in completion order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.history))
	for _, r := range t.history {
		out = append(out, copyRecord(r))
	}
	return out
}

func copyRecord(r Record) Record {
	cp := r
	cp.Steps = make([]Step, len(r.Steps))
	copy(cp.Steps, r.Steps)
	for i, s := range r.Steps {
		if s.Value != nil {
			cp.Steps[i].Value = currency.Ptr(*s.Value)
		}
		if s.Meta != nil {
			m := make(map[string]any, len(s.Meta))
			for k, v := range s.Meta {
				m[k] = v
			}
			cp.Steps[i].Meta = m
		}
	}
	if r.EndTime != nil {
		end := *r.EndTime
		cp.EndTime = &end
	}
	if r.FinalValue != nil {
		cp.FinalValue = currency.Ptr(*r.FinalValue)
	}
	return cp
}
