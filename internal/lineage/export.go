package lineage

import "time"

// Export is the serializable form of a tracker's sealed history. Every leaf
// is a native JSON-safe type: numbers as float64, timestamps as RFC 3339
// strings, no live object references.
type Export struct {
	Records []ExportRecord `json:"records"`
	Summary Summary        `json:"summary"`
}

// ExportRecord is the JSON-safe form of a sealed Record.
type ExportRecord struct {
	MetricName  string       `json:"metric_name"`
	Description string       `json:"description,omitempty"`
	Steps       []ExportStep `json:"steps"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	FinalValue  float64      `json:"final_value"`
}

// ExportStep is the JSON-safe form of a Step.
type ExportStep struct {
	Sequence    int            `json:"sequence"`
	Operation   string         `json:"operation"`
	Field       string         `json:"field,omitempty"`
	Value       *float64       `json:"value"`
	Description string         `json:"description,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Summary holds aggregate counts over the exported records.
type Summary struct {
	TotalRecords    int `json:"total_records"`
	TotalSteps      int `json:"total_steps"`
	DistinctMetrics int `json:"distinct_metrics"`
}

// Export returns every sealed record plus aggregate counts.
func (t *Tracker) Export() Export {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Export{Records: make([]ExportRecord, 0, len(t.history))}
	metrics := make(map[string]struct{}, len(t.history))

	for _, r := range t.history {
		out.Records = append(out.Records, exportRecord(r))
		out.Summary.TotalSteps += len(r.Steps)
		metrics[r.MetricName] = struct{}{}
	}
	out.Summary.TotalRecords = len(t.history)
	out.Summary.DistinctMetrics = len(metrics)

	return out
}

func exportRecord(r Record) ExportRecord {
	er := ExportRecord{
		MetricName:  r.MetricName,
		Description: r.Description,
		Steps:       make([]ExportStep, 0, len(r.Steps)),
		StartTime:   r.StartTime.Format(time.RFC3339Nano),
	}
	if r.EndTime != nil {
		er.EndTime = r.EndTime.Format(time.RFC3339Nano)
	}
	if r.FinalValue != nil {
		er.FinalValue, _ = r.FinalValue.Float64()
	}

	for _, s := range r.Steps {
		es := ExportStep{
			Sequence:    s.Sequence,
			Operation:   string(s.Operation),
			Field:       s.Field,
			Description: s.Description,
			Timestamp:   s.Timestamp.Format(time.RFC3339Nano),
		}
		if s.Value != nil {
			f, _ := s.Value.Float64()
			es.Value = &f
		}
		if len(s.Meta) > 0 {
			m := make(map[string]any, len(s.Meta))
			for k, v := range s.Meta {
				m[k] = v
			}
			es.Meta = m
		}
		er.Steps = append(er.Steps, es)
	}

	return er
}

// SummaryOf recomputes a Summary from already-exported records. Used when
// reassembling an export from per-record storage.
func SummaryOf(records []ExportRecord) Summary {
	s := Summary{TotalRecords: len(records)}
	metrics := make(map[string]struct{}, len(records))
	for _, r := range records {
		s.TotalSteps += len(r.Steps)
		metrics[r.MetricName] = struct{}{}
	}
	s.DistinctMetrics = len(metrics)
	return s
}
