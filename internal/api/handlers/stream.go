package handlers

import (
	"PrintForge/internal/job"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StreamHandler handles SSE streaming for run progress
type StreamHandler struct {
	manager *job.Manager
	logger  *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(manager *job.Manager, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		manager: manager,
		logger:  logger,
	}
}

// StreamProgress streams run progress via Server-Sent Events
func (h *StreamHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	runIDStr := chi.URLParam(r, "id")
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		h.logger.Error("Invalid run ID", zap.String("run_id", runIDStr), zap.Error(err))
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	// Verify the run exists before opening the stream
	existing, err := h.manager.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to look up run", zap.String("run_id", runID.String()), zap.Error(err))
		http.Error(w, "Failed to look up run", http.StatusInternalServerError)
		return
	}

	// SSE requires a flusher
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("Streaming not supported - ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Headers must be set before the first write
	h.setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("SSE stream established",
		zap.String("run_id", runID.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	updates := h.manager.Subscribe(runID)
	defer func() {
		h.manager.Unsubscribe(runID, updates)
		h.logger.Info("SSE stream closed",
			zap.String("run_id", runID.String()),
		)
	}()

	// Send the current state immediately so late subscribers see
	// finished runs without waiting for a broadcast that never comes
	if err := h.sendInitialStatus(w, flusher, existing); err != nil {
		h.logger.Error("Failed to send initial status",
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Heartbeat keeps proxies from timing the connection out
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	h.streamEventLoop(ctx, w, flusher, runID, updates, heartbeat)
}

// setSSEHeaders configures all necessary headers for SSE
func (h *StreamHandler) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")

	// Disables buffering in nginx and similar reverse proxies
	w.Header().Set("X-Accel-Buffering", "no")

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Type")
}

// sendInitialStatus sends the current run state when a client connects
func (h *StreamHandler) sendInitialStatus(w http.ResponseWriter, flusher http.Flusher, run *job.Run) error {
	data := map[string]interface{}{
		"run_id":     run.ID.String(),
		"status":     run.Status,
		"step_index": run.StepIndex,
		"step_count": run.StepCount,
		"message":    "Connected to progress stream",
	}
	if run.FailedStep != "" {
		data["failed_step"] = run.FailedStep
	}

	if err := h.writeSSEEvent(w, flusher, "status", data); err != nil {
		return fmt.Errorf("failed to write initial status: %w", err)
	}

	return nil
}

// streamEventLoop handles the main SSE event streaming loop
func (h *StreamHandler) streamEventLoop(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	runID uuid.UUID,
	updates <-chan job.StepUpdate,
	heartbeat *time.Ticker,
) {
	runFinished := false

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Client disconnected",
				zap.String("run_id", runID.String()),
				zap.String("reason", ctx.Err().Error()),
			)
			return

		case update, ok := <-updates:
			if !ok {
				h.logger.Info("Update channel closed",
					zap.String("run_id", runID.String()),
				)
				return
			}

			if err := h.sendStepUpdate(w, flusher, update); err != nil {
				h.logger.Error("Failed to send step update",
					zap.String("run_id", runID.String()),
					zap.Error(err),
				)
				return
			}

			if h.isRunFinished(update) && !runFinished {
				runFinished = true

				if err := h.sendCompletionEvent(w, flusher, update); err != nil {
					h.logger.Error("Failed to send completion event",
						zap.String("run_id", runID.String()),
						zap.Error(err),
					)
				}

				// Give the client time to receive the final event
				time.Sleep(100 * time.Millisecond)

				h.logger.Info("Run finished, closing stream",
					zap.String("run_id", runID.String()),
					zap.String("final_status", string(update.Status)),
				)
				return
			}

		case <-heartbeat.C:
			if err := h.writeHeartbeat(w, flusher); err != nil {
				h.logger.Error("Failed to send heartbeat",
					zap.String("run_id", runID.String()),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// sendStepUpdate sends a step progress event to the client
func (h *StreamHandler) sendStepUpdate(w http.ResponseWriter, flusher http.Flusher, update job.StepUpdate) error {
	message, err := job.FormatSSEMessage(update)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, message); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	flusher.Flush()

	return nil
}

// sendCompletionEvent sends a final completion event
func (h *StreamHandler) sendCompletionEvent(w http.ResponseWriter, flusher http.Flusher, update job.StepUpdate) error {
	eventType := "complete"
	if update.Status == job.StatusFailed {
		eventType = "error"
	}

	return h.writeSSEEvent(w, flusher, eventType, h.updateData(update))
}

func (h *StreamHandler) updateData(update job.StepUpdate) map[string]interface{} {
	data := map[string]interface{}{
		"run_id":     update.RunID.String(),
		"status":     update.Status,
		"step_index": update.StepIndex,
		"step_count": update.StepCount,
		"message":    update.Message,
		"timestamp":  update.Timestamp.Format(time.RFC3339),
	}
	if update.Code != "" {
		data["code"] = update.Code
	}
	return data
}

// writeSSEEvent writes a properly formatted SSE event
func (h *StreamHandler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event, jsonData)

	n, err := fmt.Fprint(w, message)
	if err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("wrote 0 bytes")
	}

	// Flush immediately so the event reaches the client now
	flusher.Flush()

	return nil
}

// writeHeartbeat sends a heartbeat comment to keep the connection alive.
// SSE comments (lines starting with :) are ignored by clients.
func (h *StreamHandler) writeHeartbeat(w http.ResponseWriter, flusher http.Flusher) error {
	n, err := fmt.Fprint(w, ": heartbeat\n\n")
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("wrote 0 bytes for heartbeat")
	}

	flusher.Flush()

	return nil
}

// isRunFinished checks whether an update reports a terminal state
func (h *StreamHandler) isRunFinished(update job.StepUpdate) bool {
	return update.Status == job.StatusSucceeded || update.Status == job.StatusFailed
}
