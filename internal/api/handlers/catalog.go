package handlers

import (
	"PrintForge/internal/catalog"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// CatalogHandler serves the workflow definition tables and the selection.
type CatalogHandler struct {
	store  *catalog.Store
	logger *zap.Logger
}

func NewCatalogHandler(store *catalog.Store, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		store:  store,
		logger: logger,
	}
}

// Get returns the current catalog snapshot and selection.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	cat := h.store.Catalog()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"steps":     cat.Steps(),
		"workflows": cat.Workflows(),
		"papers":    cat.Papers(),
		"selection": h.store.Selection(),
	})
}

// Reload re-reads the definition file. A broken file still swaps in empty
// tables, so the response reports the degraded state with 422 rather than
// pretending the old catalog survived.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	err := h.store.Reload(r.Context())

	cat := h.store.Catalog()
	body := map[string]interface{}{
		"steps":     len(cat.Steps()),
		"workflows": cat.WorkflowCount(),
		"papers":    cat.PaperCount(),
		"selection": h.store.Selection(),
	}

	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		var ce *catalog.ConfigError
		if errors.As(err, &ce) {
			h.logger.Warn("Catalog reload degraded", zap.Error(err))
			body["error"] = ce.Error()
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(body)
			return
		}
		h.logger.Error("Catalog reload failed", zap.Error(err))
		http.Error(w, "Failed to reload catalog", http.StatusInternalServerError)
		return
	}

	body["message"] = "Catalog reloaded"
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)

	h.logger.Info("Catalog reloaded via API",
		zap.Int("workflows", cat.WorkflowCount()),
		zap.Int("papers", cat.PaperCount()),
	)
}

type selectionRequest struct {
	Workflow int `json:"workflow"`
	Paper    int `json:"paper"`
}

// SetSelection updates the 1-based workflow/paper selection, clamped to
// the current tables, and returns what actually took effect.
func (h *CatalogHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid selection body", http.StatusBadRequest)
		return
	}

	sel, err := h.store.Select(r.Context(), req.Workflow, req.Paper)
	if err != nil {
		// The in-memory selection applied; only persistence failed
		h.logger.Warn("Selection saved in memory only", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"selection": sel,
	})
}
