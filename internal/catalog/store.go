package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Selection tracks the last-chosen workflow and paper as 1-based indexes
// into the ordered tables. Zero means the table has nothing to select.
type Selection struct {
	Workflow int `json:"workflow"`
	Paper    int `json:"paper"`
}

// SelectionStore persists the selection across restarts.
type SelectionStore interface {
	SaveSelection(ctx context.Context, sel Selection) error
	LoadSelection(ctx context.Context) (Selection, bool, error)
}

// Store owns the published catalog and the selection. Reload builds a
// complete replacement catalog and swaps it in under the lock; readers
// keep whatever snapshot they already hold.
type Store struct {
	logger  *zap.Logger
	loader  *Loader
	path    string
	persist SelectionStore

	mu  sync.RWMutex
	cat *Catalog
	sel Selection
}

func NewStore(loader *Loader, path string, persist SelectionStore, logger *zap.Logger) *Store {
	return &Store{
		logger:  logger,
		loader:  loader,
		path:    path,
		persist: persist,
		cat:     newCatalog(),
	}
}

// Reload replaces the catalog wholesale from the definition file. On a
// ConfigError the empty replacement is still published, so the pipeline
// degrades to a no-op, and the error is returned for reporting. The
// selection survives the reload, clamped into the new table ranges.
func (s *Store) Reload(ctx context.Context) error {
	cat, err := s.loader.Load(s.path)

	s.mu.Lock()
	s.cat = cat
	if s.persist != nil && s.sel == (Selection{}) {
		saved, ok, loadErr := s.persist.LoadSelection(ctx)
		if loadErr != nil {
			s.logger.Warn("Failed to load saved selection", zap.Error(loadErr))
		} else if ok {
			s.sel = saved
		}
	}
	prev := s.sel
	s.sel = Selection{
		Workflow: clampIndex(prev.Workflow, len(cat.workflowOrder)),
		Paper:    clampIndex(prev.Paper, len(cat.paperOrder)),
	}
	changed := s.sel != prev
	sel := s.sel
	s.mu.Unlock()

	if changed && s.persist != nil {
		if saveErr := s.persist.SaveSelection(ctx, sel); saveErr != nil {
			s.logger.Warn("Failed to persist selection", zap.Error(saveErr))
		}
	}

	if err != nil {
		s.logger.Warn("Workflow definitions degraded to empty tables", zap.Error(err))
		return err
	}
	return nil
}

// Catalog returns the current snapshot.
func (s *Store) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cat
}

func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sel
}

// Select sets the 1-based workflow and paper indexes, clamped against the
// current tables, and persists the result.
func (s *Store) Select(ctx context.Context, workflow, paper int) (Selection, error) {
	s.mu.Lock()
	s.sel = Selection{
		Workflow: clampIndex(workflow, len(s.cat.workflowOrder)),
		Paper:    clampIndex(paper, len(s.cat.paperOrder)),
	}
	sel := s.sel
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveSelection(ctx, sel); err != nil {
			s.logger.Warn("Failed to persist selection", zap.Error(err))
			return sel, err
		}
	}
	return sel, nil
}

// SelectedWorkflow resolves the currently selected workflow, if any.
func (s *Store) SelectedWorkflow() (WorkflowDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cat.WorkflowAt(s.sel.Workflow)
}

// SelectedPaper resolves the currently selected paper profile, if any.
func (s *Store) SelectedPaper() (PaperProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cat.PaperAt(s.sel.Paper)
}

// clampIndex keeps a previously chosen 1-based index while it is still in
// range, clamps it down to the last entry when the table shrank, and falls
// back to the first entry when nothing was chosen before.
func clampIndex(prev, count int) int {
	if count == 0 {
		return 0
	}
	if prev < 1 {
		return 1
	}
	if prev > count {
		return count
	}
	return prev
}
