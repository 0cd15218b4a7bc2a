package model

import "time"

// RunStatus is the lifecycle state of a stored computation run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted metrics computation for a deal.
type Run struct {
	ID        string         `json:"id"`
	Deal      string         `json:"deal"`
	Status    RunStatus      `json:"status"`
	Bundle    *MetricsBundle `json:"bundle,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
