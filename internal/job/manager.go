package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"PrintForge/internal/pipeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager persists run progress and broadcasts it to SSE subscribers. It
// is the pipeline's Recorder: store failures are logged but never abort a
// run that is already transforming a file.
type Manager struct {
	store     *Store
	logger    *zap.Logger
	clients   map[uuid.UUID][]chan StepUpdate
	clientsMu sync.RWMutex
}

func NewManager(store *Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		logger:  logger,
		clients: make(map[uuid.UUID][]chan StepUpdate),
	}
}

// CreateRun creates a pending run record.
func (m *Manager) CreateRun(ctx context.Context, workflow, paper, inputPath string) (*Run, error) {
	run, err := m.store.CreateRun(ctx, workflow, paper, inputPath)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Run created",
		zap.String("run_id", run.ID.String()),
		zap.String("workflow", workflow),
	)

	return run, nil
}

// GetRun retrieves a run by ID.
func (m *Manager) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	return m.store.GetRun(ctx, runID)
}

// GetRunWithEvents retrieves a run with its step events.
func (m *Manager) GetRunWithEvents(ctx context.Context, runID uuid.UUID, limit int) (*RunWithEvents, error) {
	return m.store.GetRunWithEvents(ctx, runID, limit)
}

// ListRuns returns recent runs.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return m.store.ListRuns(ctx, limit)
}

// RunStarted records that the pipeline accepted the run and began work.
func (m *Manager) RunStarted(ctx context.Context, r *pipeline.Run) {
	if err := m.store.UpdateRunStarted(ctx, r.ID, len(r.StepCodes)); err != nil {
		m.logger.Error("Failed to record run start",
			zap.String("run_id", r.ID.String()),
			zap.Error(err),
		)
	}

	m.broadcast(r.ID, StepUpdate{
		RunID:     r.ID,
		Status:    StatusRunning,
		StepCount: len(r.StepCodes),
		Message:   "run started",
		Timestamp: time.Now(),
	})
}

// StepStarted records the step cursor and an event for the step.
func (m *Manager) StepStarted(ctx context.Context, r *pipeline.Run, code string) {
	if err := m.store.UpdateRunStep(ctx, r.ID, r.StepIndex); err != nil {
		m.logger.Error("Failed to record run step",
			zap.String("run_id", r.ID.String()),
			zap.Error(err),
		)
	}
	if err := m.store.AddStepEvent(ctx, r.ID, r.StepIndex, code, EventStarted, 0, ""); err != nil {
		m.logger.Error("Failed to add step event",
			zap.String("run_id", r.ID.String()),
			zap.Error(err),
		)
	}

	m.broadcast(r.ID, StepUpdate{
		RunID:     r.ID,
		Status:    StatusRunning,
		StepIndex: r.StepIndex,
		StepCount: len(r.StepCodes),
		Code:      code,
		Message:   fmt.Sprintf("running step %s", code),
		Timestamp: time.Now(),
	})
}

// StepFinished records how the step ended.
func (m *Manager) StepFinished(ctx context.Context, r *pipeline.Run, result pipeline.StepResult, stepErr error) {
	status := EventSucceeded
	message := ""
	switch {
	case stepErr != nil:
		status = EventFailed
		message = stepErr.Error()
	case result.Skipped:
		status = EventSkipped
		message = "empty command, nothing to run"
	}

	if err := m.store.AddStepEvent(ctx, r.ID, r.StepIndex, result.Code, status, result.ExitCode, message); err != nil {
		m.logger.Error("Failed to add step event",
			zap.String("run_id", r.ID.String()),
			zap.Error(err),
		)
	}

	update := StepUpdate{
		RunID:     r.ID,
		Status:    StatusRunning,
		StepIndex: r.StepIndex,
		StepCount: len(r.StepCodes),
		Code:      result.Code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if update.Message == "" {
		update.Message = fmt.Sprintf("step %s completed", result.Code)
	}
	m.broadcast(r.ID, update)
}

// RunFinished records the terminal state and tells subscribers.
func (m *Manager) RunFinished(ctx context.Context, r *pipeline.Run) {
	var message string
	if r.Status == pipeline.StatusFailed {
		if r.FailedStep != "" {
			message = fmt.Sprintf("failed at step %s with exit code %d", r.FailedStep, r.ExitCode)
		} else {
			message = "aborted before steps completed"
		}
	}

	if err := m.store.FinishRun(ctx, r.ID, RunStatus(r.Status), r.FailedStep, r.ExitCode, r.PPI, message); err != nil {
		m.logger.Error("Failed to record run finish",
			zap.String("run_id", r.ID.String()),
			zap.Error(err),
		)
	}

	update := StepUpdate{
		RunID:     r.ID,
		Status:    RunStatus(r.Status),
		StepIndex: r.StepIndex,
		StepCount: len(r.StepCodes),
		Code:      r.FailedStep,
		Message:   message,
		Timestamp: time.Now(),
	}
	if update.Message == "" {
		update.Message = "run succeeded"
	}
	m.broadcast(r.ID, update)
}

// FailBeforeStart records a run the pipeline rejected before any step
// could spawn, such as an unknown step code or a missing input file.
func (m *Manager) FailBeforeStart(ctx context.Context, runID uuid.UUID, reason string) {
	if err := m.store.FinishRun(ctx, runID, StatusFailed, "", 0, 0, reason); err != nil {
		m.logger.Error("Failed to record rejected run",
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
	}

	m.broadcast(runID, StepUpdate{
		RunID:     runID,
		Status:    StatusFailed,
		Message:   reason,
		Timestamp: time.Now(),
	})

	m.logger.Warn("Run rejected",
		zap.String("run_id", runID.String()),
		zap.String("reason", reason),
	)
}

// RecordArtifacts stores where the finished output went after the run.
func (m *Manager) RecordArtifacts(ctx context.Context, runID uuid.UUID, importedPath, archiveKey string) error {
	if importedPath == "" && archiveKey == "" {
		return nil
	}

	err := m.store.SetRunArtifacts(ctx, runID, importedPath, archiveKey)
	if err != nil {
		m.logger.Error("Failed to record run artifacts",
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
		return err
	}

	m.logger.Info("Run artifacts recorded",
		zap.String("run_id", runID.String()),
		zap.String("imported_path", importedPath),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

// Subscribe adds an SSE client for a run.
func (m *Manager) Subscribe(runID uuid.UUID) chan StepUpdate {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	ch := make(chan StepUpdate, 10)
	m.clients[runID] = append(m.clients[runID], ch)

	m.logger.Info("Client subscribed",
		zap.String("run_id", runID.String()),
		zap.Int("total_clients", len(m.clients[runID])),
	)

	return ch
}

// Unsubscribe removes an SSE client.
func (m *Manager) Unsubscribe(runID uuid.UUID, ch chan StepUpdate) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	clients := m.clients[runID]
	for i, client := range clients {
		if client == ch {
			m.clients[runID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}

	if len(m.clients[runID]) == 0 {
		delete(m.clients, runID)
	}

	m.logger.Info("Client unsubscribed",
		zap.String("run_id", runID.String()),
		zap.Int("remaining_clients", len(m.clients[runID])),
	)
}

// broadcast sends an update to all subscribers without ever blocking the
// pipeline.
func (m *Manager) broadcast(runID uuid.UUID, update StepUpdate) {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()

	clients := m.clients[runID]
	if len(clients) == 0 {
		return
	}

	for _, ch := range clients {
		select {
		case ch <- update:
		default:
			// Channel full, skip this update
			m.logger.Warn("Client channel full, skipping update",
				zap.String("run_id", runID.String()),
			)
		}
	}
}

// CleanupOldRuns removes runs older than the given age.
func (m *Manager) CleanupOldRuns(ctx context.Context, olderThan time.Duration) error {
	count, err := m.store.CleanupOldRuns(ctx, olderThan)
	if err != nil {
		m.logger.Error("Failed to cleanup old runs", zap.Error(err))
		return err
	}

	m.logger.Info("Cleaned up old runs",
		zap.Int64("count", count),
		zap.Duration("older_than", olderThan),
	)

	return nil
}

// FormatSSEMessage formats a step update as an SSE message.
func FormatSSEMessage(update StepUpdate) (string, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("failed to marshal update: %w", err)
	}

	return fmt.Sprintf("event: step\ndata: %s\n\n", data), nil
}
