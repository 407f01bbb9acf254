package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"PrintForge/pkg/tool"
)

// Step codes the engine treats specially. Everything else resolves
// through the catalog's step templates.
const (
	CodeCollectionImport = "CI"
	CodeResolution       = "RES"
	CodeExifTransfer     = "EXIF"
	CodeGrain            = "GR"
)

// Step is one resolved unit of work in a run. Builtins and generic
// template steps both implement it; dispatch happens once, up front, by
// exact code match.
type Step interface {
	Code() string
	Run(ctx context.Context, r *Run) (StepResult, error)
}

// GenericStep shells out a command template with the working path
// substituted for each %s placeholder. The GR code additionally receives
// a temp output path and the configured grain strength, and promotes the
// temp file over the working file after a zero exit.
type GenericStep struct {
	code     string
	display  string
	template string
	runner   *tool.Runner
	grain    GrainOptions
}

func (s *GenericStep) Code() string { return s.code }

func (s *GenericStep) Run(ctx context.Context, r *Run) (StepResult, error) {
	result := StepResult{Code: s.code, Display: s.display}

	var command, promote string
	switch s.code {
	case CodeGrain:
		tempOut := r.WorkingPath + ".grain"
		r.addTemp(tempOut)
		command = tool.Expand(s.template, tempOut, strconv.Itoa(s.grain.Strength))
		promote = tempOut
	default:
		command = tool.ExpandAll(s.template, r.WorkingPath)
	}

	if strings.TrimSpace(command) == "" {
		result.Skipped = true
		return result, nil
	}
	result.Command = command

	exit, output, err := s.runner.Run(ctx, command)
	if err != nil {
		return result, &StepExecutionError{Step: s.code, ExitCode: -1, Err: err}
	}
	result.ExitCode = exit
	if exit != 0 {
		return result, &StepExecutionError{Step: s.code, ExitCode: exit, Err: fmt.Errorf("output: %s", strings.TrimSpace(output))}
	}

	if promote != "" {
		if err := replaceFile(promote, r.WorkingPath); err != nil {
			return result, &IOError{Op: "promote step output", Path: promote, Err: err}
		}
	}
	return result, nil
}
