package handlers

import (
	"PrintForge/internal/catalog"
	"PrintForge/internal/job"
	"PrintForge/internal/pipeline"
	"PrintForge/internal/sdk"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecuteHandler accepts an uploaded image and queues a workflow run for
// it. Runs execute one at a time; the response returns immediately with
// the run id.
type ExecuteHandler struct {
	manager  *job.Manager
	client   *sdk.Client
	catalog  *catalog.Store
	inputDir string
	logger   *zap.Logger
}

func NewExecuteHandler(manager *job.Manager, client *sdk.Client, catalogStore *catalog.Store, inputDir string, logger *zap.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		manager:  manager,
		client:   client,
		catalog:  catalogStore,
		inputDir: inputDir,
		logger:   logger,
	}
}

// Handle saves the upload, creates the run record and returns 202.
func (h *ExecuteHandler) Handle(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(100 << 20) // 100 MB max
	if err != nil {
		h.logger.Error("Failed to parse multipart form", zap.Error(err))
		http.Error(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.logger.Error("Failed to read image file", zap.Error(err))
		http.Error(w, "Failed to read image file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Fall back to the saved selection when the form names nothing
	workflow := r.FormValue("workflow")
	if workflow == "" {
		wf, ok := h.catalog.SelectedWorkflow()
		if !ok {
			http.Error(w, "No workflow specified and none selected", http.StatusBadRequest)
			return
		}
		workflow = wf.Name
	}
	paper := r.FormValue("paper")
	if paper == "" {
		if pp, ok := h.catalog.SelectedPaper(); ok {
			paper = pp.Name
		}
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("image_%d", time.Now().Unix())
	}

	inputPath, err := h.saveUpload(file, name)
	if err != nil {
		h.logger.Error("Failed to save upload", zap.Error(err))
		http.Error(w, "Failed to save upload", http.StatusInternalServerError)
		return
	}

	created, err := h.manager.CreateRun(r.Context(), workflow, paper, inputPath)
	if err != nil {
		h.logger.Error("Failed to create run", zap.Error(err))
		http.Error(w, "Failed to create run", http.StatusInternalServerError)
		return
	}

	// Execute asynchronously; queued behind any in-flight run
	go h.execute(created.ID, workflow, paper, inputPath)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":  created.ID,
		"message": "Workflow run queued",
	})

	h.logger.Info("Run queued",
		zap.String("run_id", created.ID.String()),
		zap.String("workflow", workflow),
		zap.String("input", inputPath),
	)
}

// saveUpload writes the upload into the input directory under a unique
// name so queued runs never clobber each other.
func (h *ExecuteHandler) saveUpload(file io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.inputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create input directory: %w", err)
	}

	inputPath := filepath.Join(h.inputDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), name))
	out, err := os.Create(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create input file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(inputPath)
		return "", fmt.Errorf("failed to write input file: %w", err)
	}
	return inputPath, nil
}

// execute runs the workflow and records the outcome. The manager is wired
// into the engine as its recorder, so step progress lands in the run
// record as it happens; only rejections and artifacts are handled here.
func (h *ExecuteHandler) execute(runID uuid.UUID, workflow, paper, inputPath string) {
	ctx := context.Background()

	res, err := h.client.RunWorkflow(ctx, pipeline.Request{
		ID:       runID,
		Workflow: workflow,
		Paper:    paper,
		Input:    inputPath,
	})
	if err != nil {
		if res.Run == nil {
			// Rejected before any step could spawn
			h.manager.FailBeforeStart(ctx, runID, err.Error())
			return
		}
		h.logger.Error("Workflow run failed",
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
	}

	if res.Run != nil {
		imported := ""
		if res.Imported != nil {
			imported = res.Imported.Path
		}
		h.manager.RecordArtifacts(ctx, runID, imported, res.ArchiveKey)
	}
}
