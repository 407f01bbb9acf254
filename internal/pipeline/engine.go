package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"PrintForge/internal/catalog"
	"PrintForge/pkg/tool"

	"go.uber.org/zap"
)

// Recorder observes run lifecycle transitions, typically to persist them
// and fan them out to subscribers. Recorder failures are the recorder's
// own problem and never change a run's outcome.
type Recorder interface {
	RunStarted(ctx context.Context, r *Run)
	StepStarted(ctx context.Context, r *Run, code string)
	StepFinished(ctx context.Context, r *Run, result StepResult, stepErr error)
	RunFinished(ctx context.Context, r *Run)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(context.Context, *Run)                      {}
func (nopRecorder) StepStarted(context.Context, *Run, string)             {}
func (nopRecorder) StepFinished(context.Context, *Run, StepResult, error) {}
func (nopRecorder) RunFinished(context.Context, *Run)                     {}

// Engine executes workflows against one file at a time: every step is
// resolved up front, steps run in order, and the first failure aborts
// the rest.
type Engine struct {
	logger   *zap.Logger
	runner   *tool.Runner
	builtins *Registry
	rec      Recorder
	exif     *exifSession
	opts     *stepOptions
}

func NewEngine(runner *tool.Runner, opts Options, rec Recorder, logger *zap.Logger) (*Engine, error) {
	if rec == nil {
		rec = nopRecorder{}
	}

	decoded, err := decodeStepOptions(opts.StepOptions)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:   logger,
		runner:   runner,
		builtins: NewRegistry(),
		rec:      rec,
		exif:     newExifSession(opts.ExiftoolPath),
		opts:     decoded,
	}

	for _, step := range []Step{
		&collectionImportStep{logger: logger},
		&resolutionStep{runner: runner, opts: decoded.Resolution, logger: logger},
		&exifTransferStep{session: e.exif, opts: decoded.Exif, logger: logger},
	} {
		if err := e.builtins.Register(step); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Close stops the shared exiftool process.
func (e *Engine) Close() error {
	return e.exif.Close()
}

// Builtins returns the registered builtin step codes.
func (e *Engine) Builtins() []string {
	return e.builtins.List()
}

// Execute runs one workflow against one file. Failures before the run
// starts (unknown workflow or paper, unknown step, unreadable input)
// return a nil run; once started, the returned run carries the full step
// trail whether or not err is nil.
func (e *Engine) Execute(ctx context.Context, cat *catalog.Catalog, req Request) (*Run, error) {
	wf, ok := cat.Workflow(req.Workflow)
	if !ok {
		return nil, &catalog.ConfigError{Reason: fmt.Sprintf("workflow %q is not defined", req.Workflow)}
	}

	var paper *catalog.PaperProfile
	if req.Paper != "" {
		p, ok := cat.Paper(req.Paper)
		if !ok {
			return nil, &catalog.ConfigError{Reason: fmt.Sprintf("paper profile %q is not defined", req.Paper)}
		}
		paper = &p
	}

	if _, err := os.Stat(req.Input); err != nil {
		return nil, &IOError{Op: "stat input", Path: req.Input, Err: err}
	}

	steps, err := e.resolveSteps(cat, wf.Steps, paper)
	if err != nil {
		return nil, err
	}

	run := newRun(req.ID, wf.Name, wf.Steps, req.Input, paper)
	run.start()
	e.rec.RunStarted(ctx, run)
	e.logger.Info("Run started",
		zap.String("run_id", run.ID.String()),
		zap.String("workflow", wf.Name),
		zap.String("file", req.Input),
		zap.Int("steps", len(steps)))

	snap, err := snapshot(run.WorkingPath)
	if err != nil {
		ioErr := &IOError{Op: "snapshot input", Path: run.WorkingPath, Err: err}
		run.fail("", 0)
		e.rec.RunFinished(ctx, run)
		return run, ioErr
	}
	run.SourcePath = snap

	for i, step := range steps {
		run.advance(i)
		e.rec.StepStarted(ctx, run, step.Code())

		stepStart := time.Now()
		result, stepErr := step.Run(ctx, run)
		result.DurationMS = time.Since(stepStart).Milliseconds()
		run.Results = append(run.Results, result)
		e.rec.StepFinished(ctx, run, result, stepErr)

		if stepErr != nil {
			e.logger.Error("Step failed, aborting run",
				zap.String("run_id", run.ID.String()),
				zap.String("code", step.Code()),
				zap.Int("exit_code", result.ExitCode),
				zap.Error(stepErr))
			e.cleanup(run)
			run.fail(step.Code(), exitCodeOf(stepErr))
			e.rec.RunFinished(ctx, run)
			return run, stepErr
		}

		e.logger.Info("Step completed",
			zap.String("run_id", run.ID.String()),
			zap.String("code", step.Code()),
			zap.Duration("duration", time.Since(stepStart)))
	}

	if err := e.finalize(run); err != nil {
		e.cleanup(run)
		run.fail("", 0)
		e.rec.RunFinished(ctx, run)
		return run, err
	}

	run.succeed()
	e.rec.RunFinished(ctx, run)
	e.logger.Info("Run succeeded",
		zap.String("run_id", run.ID.String()),
		zap.Int("ppi", run.PPI),
		zap.Bool("import_requested", run.ImportRequested),
		zap.Duration("duration", time.Since(run.StartedAt)))
	return run, nil
}

// resolveSteps maps every code to a builtin or template step before
// anything is spawned. Codes match exactly; a miss in both tables is an
// UnknownStepError.
func (e *Engine) resolveSteps(cat *catalog.Catalog, codes []string, paper *catalog.PaperProfile) ([]Step, error) {
	steps := make([]Step, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}

		if builtin, ok := e.builtins.Get(code); ok {
			if code == CodeResolution && paper == nil {
				return nil, &catalog.ConfigError{Reason: "resolution step requires a paper profile"}
			}
			steps = append(steps, builtin)
			continue
		}

		if tmpl, ok := cat.Step(code); ok {
			steps = append(steps, &GenericStep{
				code:     tmpl.Code,
				display:  tmpl.Display,
				template: tmpl.Template,
				runner:   e.runner,
				grain:    e.opts.Grain,
			})
			continue
		}

		return nil, &UnknownStepError{Code: code}
	}
	return steps, nil
}

// finalize writes the print resolution onto the working file when the
// sequence computed one and included a collection import, then drops the
// snapshot and any leftover temp files.
func (e *Engine) finalize(r *Run) error {
	if r.PPI > 0 && r.ImportRequested {
		if err := e.exif.WritePPI(r.WorkingPath, r.PPI); err != nil {
			return &IOError{Op: "write print resolution", Path: r.WorkingPath, Err: err}
		}
		e.logger.Info("Print resolution written", zap.String("file", r.WorkingPath), zap.Int("ppi", r.PPI))
	}

	for _, temp := range r.temps {
		os.Remove(temp)
	}
	if r.SourcePath != "" {
		if err := os.Remove(r.SourcePath); err != nil {
			e.logger.Warn("Failed to remove snapshot", zap.String("file", r.SourcePath), zap.Error(err))
		}
		r.SourcePath = ""
	}
	return nil
}

// cleanup removes the partial output at the working path, step temp
// files, and the snapshot after a failed run.
func (e *Engine) cleanup(r *Run) {
	if err := os.Remove(r.WorkingPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("Failed to remove partial output", zap.String("file", r.WorkingPath), zap.Error(err))
	}
	for _, temp := range r.temps {
		os.Remove(temp)
	}
	if r.SourcePath != "" {
		os.Remove(r.SourcePath)
		r.SourcePath = ""
	}
}

func exitCodeOf(err error) int {
	var stepErr *StepExecutionError
	if errors.As(err, &stepErr) {
		return stepErr.ExitCode
	}
	return 0
}
