package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"PrintForge/internal/catalog"
	"PrintForge/pkg/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, stepOpts map[string]map[string]interface{}) *Engine {
	t.Helper()
	e, err := NewEngine(tool.NewRunner(""), Options{StepOptions: stepOpts}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func parseCatalog(t *testing.T, defs string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.NewLoader(zap.NewNop()).Parse(strings.NewReader(defs))
	require.NoError(t, err)
	return cat
}

func writeWorkingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.jpg")
	require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0644))
	return path
}

func TestExecuteTransformsInPlace(t *testing.T) {
	defs := "[steps]\nAP:Append=echo done >> %s\n[workflows]\nExport:AP\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)

	data, err := os.ReadFile(working)
	require.NoError(t, err)
	assert.Contains(t, string(data), "done")
	assert.NoFileExists(t, working+snapshotSuffix)

	require.Len(t, run.Results, 1)
	assert.Equal(t, "AP", run.Results[0].Code)
	assert.Equal(t, 0, run.Results[0].ExitCode)
	assert.False(t, run.Results[0].Skipped)
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "third-ran")
	defs := "[steps]\n" +
		"A:First=true\n" +
		"B:Second=false\n" +
		"C:Third=touch " + marker + "\n" +
		"[workflows]\nExport:A,B,C\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})

	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "B", stepErr.Step)
	assert.Equal(t, 1, stepErr.ExitCode)

	require.NotNil(t, run)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "B", run.FailedStep)
	assert.Equal(t, 1, run.ExitCode)
	assert.Equal(t, 1, run.StepIndex)
	require.Len(t, run.Results, 2)

	// The third step never ran and the partial output was removed.
	assert.NoFileExists(t, marker)
	assert.NoFileExists(t, working)
	assert.NoFileExists(t, working+snapshotSuffix)
}

func TestExecuteUnknownStepBeforeSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "first-ran")
	defs := "[steps]\nA:First=touch " + marker + "\n[workflows]\nExport:A,Z\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})

	var unknownErr *UnknownStepError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "Z", unknownErr.Code)
	assert.Nil(t, run)

	// Nothing was spawned and the input is untouched.
	assert.NoFileExists(t, marker)
	assert.FileExists(t, working)
}

func TestExecuteSkipsEmptyCommand(t *testing.T) {
	defs := "[steps]\nNP:NoOp=\n[workflows]\nExport:NP\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].Skipped)
}

func TestExecuteGrainReplacesWorkingFile(t *testing.T) {
	defs := "[steps]\nGR:Grain=out=%s; printf %s > \"$out\"\n[workflows]\nExport:GR\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, map[string]map[string]interface{}{
		"GR": {"strength": 60},
	})
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)

	// The grain output was promoted over the working file.
	data, err := os.ReadFile(working)
	require.NoError(t, err)
	assert.Equal(t, "60", string(data))
	assert.NoFileExists(t, working+".grain")
	assert.NoFileExists(t, working+snapshotSuffix)
}

func TestExecuteResolutionComputesPPI(t *testing.T) {
	probe := filepath.Join(t.TempDir(), "probe.sh")
	require.NoError(t, os.WriteFile(probe, []byte("#!/bin/sh\nprintf 4000x3000 > \"$2\"\n"), 0755))

	defs := "[workflows]\nExport:RES\n[papers]\nA4:210\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, map[string]map[string]interface{}{
		"RES": {"probe_command": probe + " %s %s"},
	})
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Paper: "A4", Input: working})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, 484, run.PPI)
	assert.NoFileExists(t, working+".dims")
}

func TestExecuteResolutionRequiresPaper(t *testing.T) {
	defs := "[workflows]\nExport:RES\n[papers]\nA4:210\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})

	var cfgErr *catalog.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Nil(t, run)
	assert.FileExists(t, working)
}

func TestExecuteCollectionImportMarksRun(t *testing.T) {
	defs := "[workflows]\nExport:CI\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.True(t, run.ImportRequested)
}

func TestExecuteBuiltinShadowsTemplate(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "generic-ran")
	defs := "[steps]\nCI:Fake=touch " + marker + "\n[workflows]\nExport:CI\n"
	cat := parseCatalog(t, defs)
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.NoError(t, err)
	assert.True(t, run.ImportRequested)

	// The template entry stayed in the catalog but the builtin ran.
	_, ok := cat.Step("CI")
	assert.True(t, ok)
	assert.NoFileExists(t, marker)
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	cat := parseCatalog(t, "[steps]\nA:First=true\n")
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Nope", Input: working})

	var cfgErr *catalog.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Nil(t, run)
}

func TestExecuteUnknownPaper(t *testing.T) {
	cat := parseCatalog(t, "[steps]\nA:First=true\n[workflows]\nExport:A\n")
	e := newTestEngine(t, nil)
	working := writeWorkingFile(t)

	run, err := e.Execute(context.Background(), cat, Request{Workflow: "Export", Paper: "Letter", Input: working})

	var cfgErr *catalog.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Nil(t, run)
}

func TestExecuteMissingInput(t *testing.T) {
	cat := parseCatalog(t, "[steps]\nA:First=true\n[workflows]\nExport:A\n")
	e := newTestEngine(t, nil)

	run, err := e.Execute(context.Background(), cat, Request{
		Workflow: "Export",
		Input:    filepath.Join(t.TempDir(), "missing.jpg"),
	})

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Nil(t, run)
}

type recordingRecorder struct {
	events []string
}

func (r *recordingRecorder) RunStarted(_ context.Context, _ *Run) {
	r.events = append(r.events, "run-started")
}

func (r *recordingRecorder) StepStarted(_ context.Context, _ *Run, code string) {
	r.events = append(r.events, "step-started:"+code)
}

func (r *recordingRecorder) StepFinished(_ context.Context, _ *Run, result StepResult, stepErr error) {
	if stepErr != nil {
		r.events = append(r.events, "step-failed:"+result.Code)
		return
	}
	r.events = append(r.events, "step-finished:"+result.Code)
}

func (r *recordingRecorder) RunFinished(_ context.Context, run *Run) {
	r.events = append(r.events, "run-finished:"+string(run.Status))
}

func TestExecuteNotifiesRecorder(t *testing.T) {
	rec := &recordingRecorder{}
	e, err := NewEngine(tool.NewRunner(""), Options{}, rec, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	defs := "[steps]\nA:First=true\nB:Second=false\n[workflows]\nExport:A,B\n"
	cat := parseCatalog(t, defs)
	working := writeWorkingFile(t)

	_, execErr := e.Execute(context.Background(), cat, Request{Workflow: "Export", Input: working})
	require.Error(t, execErr)

	assert.Equal(t, []string{
		"run-started",
		"step-started:A",
		"step-finished:A",
		"step-started:B",
		"step-failed:B",
		"run-finished:failed",
	}, rec.events)
}
