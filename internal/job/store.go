package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PrintForge/internal/catalog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a run id has no record.
var ErrNotFound = errors.New("run not found")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		workflow TEXT NOT NULL,
		paper TEXT,
		input_path TEXT NOT NULL,
		status TEXT NOT NULL,
		step_index INT NOT NULL DEFAULT 0,
		step_count INT NOT NULL DEFAULT 0,
		failed_step TEXT,
		exit_code INT,
		ppi INT,
		imported_path TEXT,
		archive_key TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS step_events (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		step_index INT NOT NULL,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INT NOT NULL DEFAULT 0,
		message TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_step_events_run ON step_events (run_id, id)`,
	`CREATE TABLE IF NOT EXISTS catalog_selection (
		id INT PRIMARY KEY CHECK (id = 1),
		workflow_index INT NOT NULL,
		paper_index INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Store handles database operations for runs and the saved selection.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables on startup if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// CreateRun inserts a pending run record and returns it.
func (s *Store) CreateRun(ctx context.Context, workflow, paper, inputPath string) (*Run, error) {
	now := time.Now()
	run := &Run{
		ID:        uuid.New(),
		Workflow:  workflow,
		Paper:     paper,
		InputPath: inputPath,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO runs (id, workflow, paper, input_path, status, step_index, step_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		run.ID, run.Workflow, run.Paper, run.InputPath, run.Status,
		run.StepIndex, run.StepCount, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

const runColumns = `id, workflow, paper, input_path, status, step_index, step_count,
	       failed_step, exit_code, ppi, imported_path, archive_key, error_message,
	       created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var paper, failedStep, importedPath, archiveKey, errorMessage *string
	var exitCode, ppi *int
	var completedAt *time.Time

	err := row.Scan(
		&run.ID, &run.Workflow, &paper, &run.InputPath, &run.Status,
		&run.StepIndex, &run.StepCount,
		&failedStep, &exitCode, &ppi, &importedPath, &archiveKey, &errorMessage,
		&run.CreatedAt, &run.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if paper != nil {
		run.Paper = *paper
	}
	if failedStep != nil {
		run.FailedStep = *failedStep
	}
	if exitCode != nil {
		run.ExitCode = *exitCode
	}
	if ppi != nil {
		run.PPI = *ppi
	}
	if importedPath != nil {
		run.ImportedPath = *importedPath
	}
	if archiveKey != nil {
		run.ArchiveKey = *archiveKey
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	run.CompletedAt = completedAt

	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetRunWithEvents retrieves a run with its latest step events.
func (s *Store) GetRunWithEvents(ctx context.Context, runID uuid.UUID, limit int) (*RunWithEvents, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, run_id, step_index, code, status, exit_code, message, created_at
		FROM step_events
		WHERE run_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get step events: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var event StepEvent
		var message *string

		err := rows.Scan(
			&event.ID, &event.RunID, &event.StepIndex, &event.Code,
			&event.Status, &event.ExitCode, &message, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step event: %w", err)
		}
		if message != nil {
			event.Message = *message
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step events: %w", err)
	}

	// Reverse so the oldest event comes first
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return &RunWithEvents{
		Run:          *run,
		LatestEvents: events,
	}, nil
}

// UpdateRunStarted marks the run running and records its step count.
func (s *Store) UpdateRunStarted(ctx context.Context, runID uuid.UUID, stepCount int) error {
	query := `
		UPDATE runs
		SET status = $2, step_count = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := s.db.Exec(ctx, query, runID, StatusRunning, stepCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update run start: %w", err)
	}
	return nil
}

// UpdateRunStep moves the run's step cursor.
func (s *Store) UpdateRunStep(ctx context.Context, runID uuid.UUID, stepIndex int) error {
	query := `
		UPDATE runs
		SET step_index = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := s.db.Exec(ctx, query, runID, stepIndex, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update run step: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, status RunStatus, failedStep string, exitCode, ppi int, errorMessage string) error {
	query := `
		UPDATE runs
		SET status = $2, failed_step = $3, exit_code = $4, ppi = $5,
		    error_message = $6, updated_at = $7, completed_at = $7
		WHERE id = $1
	`

	now := time.Now()
	_, err := s.db.Exec(ctx, query, runID, status, failedStep, exitCode, ppi, errorMessage, now)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// SetRunArtifacts records where the output ended up after the run.
func (s *Store) SetRunArtifacts(ctx context.Context, runID uuid.UUID, importedPath, archiveKey string) error {
	query := `
		UPDATE runs
		SET imported_path = $2, archive_key = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := s.db.Exec(ctx, query, runID, importedPath, archiveKey, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set run artifacts: %w", err)
	}
	return nil
}

// AddStepEvent appends a step transition to the run's event log.
func (s *Store) AddStepEvent(ctx context.Context, runID uuid.UUID, stepIndex int, code, status string, exitCode int, message string) error {
	query := `
		INSERT INTO step_events (run_id, step_index, code, status, exit_code, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query, runID, stepIndex, code, status, exitCode, message, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add step event: %w", err)
	}
	return nil
}

// CleanupOldRuns deletes runs older than the specified duration. Step
// events go with them via the foreign key.
func (s *Store) CleanupOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	query := `
		DELETE FROM runs
		WHERE created_at < $1
	`

	result, err := s.db.Exec(ctx, query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	return result.RowsAffected(), nil
}

// SaveSelection upserts the single saved workflow/paper selection.
func (s *Store) SaveSelection(ctx context.Context, sel catalog.Selection) error {
	query := `
		INSERT INTO catalog_selection (id, workflow_index, paper_index, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET workflow_index = EXCLUDED.workflow_index,
		    paper_index = EXCLUDED.paper_index,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.Exec(ctx, query, sel.Workflow, sel.Paper, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// LoadSelection reads the saved selection; ok is false when none was ever
// saved.
func (s *Store) LoadSelection(ctx context.Context) (catalog.Selection, bool, error) {
	query := `SELECT workflow_index, paper_index FROM catalog_selection WHERE id = 1`

	var sel catalog.Selection
	err := s.db.QueryRow(ctx, query).Scan(&sel.Workflow, &sel.Paper)
	if err != nil {
		if err == pgx.ErrNoRows {
			return catalog.Selection{}, false, nil
		}
		return catalog.Selection{}, false, fmt.Errorf("failed to load selection: %w", err)
	}
	return sel, true, nil
}
