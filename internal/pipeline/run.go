package pipeline

import (
	"time"

	"PrintForge/internal/catalog"

	"github.com/google/uuid"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Request identifies one pipeline invocation. ID may be pre-assigned by
// callers that create the run record before executing; otherwise the
// engine assigns one.
type Request struct {
	ID       uuid.UUID
	Workflow string
	Paper    string
	Input    string
}

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Code       string `json:"code"`
	Display    string `json:"display,omitempty"`
	Command    string `json:"command,omitempty"`
	ExitCode   int    `json:"exit_code"`
	Skipped    bool   `json:"skipped,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Run is the transient state of one file moving through a workflow:
// pending, then running a step index, then succeeded or failed at a step.
// A run is never retried or resumed, and is only ever touched by one
// goroutine.
type Run struct {
	ID              uuid.UUID             `json:"id"`
	Workflow        string                `json:"workflow"`
	StepCodes       []string              `json:"step_codes"`
	WorkingPath     string                `json:"working_path"`
	SourcePath      string                `json:"-"`
	Paper           *catalog.PaperProfile `json:"paper,omitempty"`
	PPI             int                   `json:"ppi,omitempty"`
	ImportRequested bool                  `json:"import_requested,omitempty"`

	Status     RunStatus    `json:"status"`
	StepIndex  int          `json:"step_index"`
	FailedStep string       `json:"failed_step,omitempty"`
	ExitCode   int          `json:"exit_code,omitempty"`
	Results    []StepResult `json:"results"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	temps []string
}

func newRun(id uuid.UUID, workflow string, codes []string, input string, paper *catalog.PaperProfile) *Run {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Run{
		ID:          id,
		Workflow:    workflow,
		StepCodes:   codes,
		WorkingPath: input,
		Paper:       paper,
		Status:      StatusPending,
	}
}

// start moves pending to running.
func (r *Run) start() {
	r.Status = StatusRunning
	r.StepIndex = 0
	r.StartedAt = time.Now()
}

// advance moves the running cursor to step i.
func (r *Run) advance(i int) {
	r.StepIndex = i
}

// succeed moves running to succeeded.
func (r *Run) succeed() {
	r.Status = StatusSucceeded
	r.FinishedAt = time.Now()
}

// fail moves running to failed, keeping the step code and exit status of
// the cause. A failed run cannot be resumed.
func (r *Run) fail(step string, exitCode int) {
	r.Status = StatusFailed
	r.FailedStep = step
	r.ExitCode = exitCode
	r.FinishedAt = time.Now()
}

// addTemp registers a step-created file for removal at finalize or
// cleanup.
func (r *Run) addTemp(path string) {
	r.temps = append(r.temps, path)
}

func (r *Run) Finished() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
