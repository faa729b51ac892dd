package models

import "time"

// RunStatus is the lifecycle state of a ScrapingRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunKind records what triggered a run.
type RunKind string

const (
	KindScheduled RunKind = "scheduled"
	KindStartup   RunKind = "startup"
	KindManual    RunKind = "manual"
	KindRefresh   RunKind = "refresh"
)

// RunCounts tallies what a run did with its candidates.
type RunCounts struct {
	Found     int `json:"found"`
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errored   int `json:"errored"`
}

// ScrapingRun is the log entry of one pipeline execution. It is created as
// running and finalized exactly once.
type ScrapingRun struct {
	ID     string    `json:"id"`
	Kind   RunKind   `json:"kind"`
	Status RunStatus `json:"status"`
	RunCounts
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
