package job

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the pipeline's run lifecycle in the database.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Step event statuses as stored in step_events.
const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
	EventSkipped   = "skipped"
)

// Run is the persisted record of one workflow execution.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Workflow     string     `json:"workflow"`
	Paper        string     `json:"paper,omitempty"`
	InputPath    string     `json:"input_path"`
	Status       RunStatus  `json:"status"`
	StepIndex    int        `json:"step_index"`
	StepCount    int        `json:"step_count"`
	FailedStep   string     `json:"failed_step,omitempty"`
	ExitCode     int        `json:"exit_code,omitempty"`
	PPI          int        `json:"ppi,omitempty"`
	ImportedPath string     `json:"imported_path,omitempty"`
	ArchiveKey   string     `json:"archive_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StepEvent is one recorded step transition for a run.
type StepEvent struct {
	ID        int64     `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	StepIndex int       `json:"step_index"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	ExitCode  int       `json:"exit_code"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunWithEvents combines a run with its latest step events.
type RunWithEvents struct {
	Run
	LatestEvents []StepEvent `json:"latest_events"`
}

// StepUpdate is broadcast to SSE subscribers as a run progresses.
type StepUpdate struct {
	RunID     uuid.UUID `json:"run_id"`
	Status    RunStatus `json:"status"`
	StepIndex int       `json:"step_index"`
	StepCount int       `json:"step_count"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
