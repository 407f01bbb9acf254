package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySelectionStore struct {
	sel   Selection
	saved bool
}

func (m *memorySelectionStore) SaveSelection(_ context.Context, sel Selection) error {
	m.sel = sel
	m.saved = true
	return nil
}

func (m *memorySelectionStore) LoadSelection(_ context.Context) (Selection, bool, error) {
	return m.sel, m.saved, nil
}

func writeDefinitions(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "workflows.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestStoreReloadSwapsTables(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinitions(t, dir, "[workflows]\nW1:A\nW2:B\n[papers]\nA4:210\n")

	store := NewStore(NewLoader(zap.NewNop()), path, nil, zap.NewNop())
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, 2, store.Catalog().WorkflowCount())
	assert.Equal(t, 1, store.Catalog().PaperCount())

	writeDefinitions(t, dir, "[workflows]\nOnly:A\n")
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, 1, store.Catalog().WorkflowCount())
	assert.Equal(t, 0, store.Catalog().PaperCount())
}

func TestStoreReloadKeepsOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinitions(t, dir, "[workflows]\nW1:A\n")

	store := NewStore(NewLoader(zap.NewNop()), path, nil, zap.NewNop())
	require.NoError(t, store.Reload(context.Background()))
	snapshot := store.Catalog()

	writeDefinitions(t, dir, "[workflows]\nW1:A\nW2:B\n")
	require.NoError(t, store.Reload(context.Background()))

	// The snapshot taken before the reload is untouched.
	assert.Equal(t, 1, snapshot.WorkflowCount())
	assert.Equal(t, 2, store.Catalog().WorkflowCount())
}

func TestStoreSelectionClamps(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinitions(t, dir, "[workflows]\nW1:A\nW2:B\nW3:C\n[papers]\nA4:210\n")

	mem := &memorySelectionStore{}
	store := NewStore(NewLoader(zap.NewNop()), path, mem, zap.NewNop())
	require.NoError(t, store.Reload(context.Background()))

	// Nothing chosen before: both indexes fall back to the first entry.
	assert.Equal(t, Selection{Workflow: 1, Paper: 1}, store.Selection())

	_, err := store.Select(context.Background(), 3, 1)
	require.NoError(t, err)
	assert.Equal(t, Selection{Workflow: 3, Paper: 1}, store.Selection())

	// The file shrinks to one workflow; the saved index clamps down.
	writeDefinitions(t, dir, "[workflows]\nOnly:A\n[papers]\nA4:210\n")
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, Selection{Workflow: 1, Paper: 1}, store.Selection())
	assert.Equal(t, Selection{Workflow: 1, Paper: 1}, mem.sel)
}

func TestStoreSelectionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinitions(t, dir, "[workflows]\nW1:A\nW2:B\n[papers]\nA4:210\nA3:297\n")
	mem := &memorySelectionStore{}

	first := NewStore(NewLoader(zap.NewNop()), path, mem, zap.NewNop())
	require.NoError(t, first.Reload(context.Background()))
	_, err := first.Select(context.Background(), 2, 2)
	require.NoError(t, err)

	second := NewStore(NewLoader(zap.NewNop()), path, mem, zap.NewNop())
	require.NoError(t, second.Reload(context.Background()))
	assert.Equal(t, Selection{Workflow: 2, Paper: 2}, second.Selection())

	wf, ok := second.SelectedWorkflow()
	require.True(t, ok)
	assert.Equal(t, "W2", wf.Name)
	paper, ok := second.SelectedPaper()
	require.True(t, ok)
	assert.Equal(t, "A3", paper.Name)
}

func TestStoreDegradesOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinitions(t, dir, "[workflows]\nW1:A\n")

	store := NewStore(NewLoader(zap.NewNop()), path, nil, zap.NewNop())
	require.NoError(t, store.Reload(context.Background()))
	require.Equal(t, 1, store.Catalog().WorkflowCount())

	require.NoError(t, os.Remove(path))
	err := store.Reload(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	// Tables were still replaced, leaving a degraded no-op catalog.
	assert.Equal(t, 0, store.Catalog().WorkflowCount())
	assert.Equal(t, Selection{}, store.Selection())
}

func TestClampIndex(t *testing.T) {
	tcs := map[string]struct {
		prev, count, want int
	}{
		"kept while in range":       {2, 3, 2},
		"clamped down":              {3, 1, 1},
		"unset defaults":            {0, 2, 1},
		"empty table":               {5, 0, 0},
		"negative treated as unset": {-1, 2, 1},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, clampIndex(tc.prev, tc.count))
		})
	}
}
