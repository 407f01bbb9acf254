package handlers

import (
	"PrintForge/internal/job"
	"PrintForge/internal/pipeline/storage"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunsHandler serves run history and archived outputs.
type RunsHandler struct {
	manager  *job.Manager
	archiver *storage.Archiver
	logger   *zap.Logger
}

func NewRunsHandler(manager *job.Manager, archiver *storage.Archiver, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		manager:  manager,
		archiver: archiver,
		logger:   logger,
	}
}

// List returns recent runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.manager.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []job.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs": runs,
	})
}

// Get returns a run with its latest step events.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.parseRunID(w, r)
	if !ok {
		return
	}

	runWithEvents, err := h.manager.GetRunWithEvents(r.Context(), runID, 10)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get run", zap.String("run_id", runID.String()), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(runWithEvents)
}

// Artifact serves the archived output of a finished run.
func (h *RunsHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.parseRunID(w, r)
	if !ok {
		return
	}

	run, err := h.manager.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get run", zap.String("run_id", runID.String()), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	if h.archiver == nil || run.ArchiveKey == "" {
		http.Error(w, "No archived output for run", http.StatusNotFound)
		return
	}

	data, err := h.archiver.Fetch(r.Context(), run.ArchiveKey)
	if err != nil {
		h.logger.Error("Failed to fetch archived output",
			zap.String("run_id", runID.String()),
			zap.String("key", run.ArchiveKey),
			zap.Error(err),
		)
		http.Error(w, "Failed to fetch archived output", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(run.ArchiveKey))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(run.ArchiveKey)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *RunsHandler) parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	runID, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Error("Invalid run ID", zap.String("run_id", raw), zap.Error(err))
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return runID, true
}
