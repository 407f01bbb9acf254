package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"PrintForge/pkg/tool"

	"go.uber.org/zap"
)

// Millimetres per inch, used to turn a paper width into print resolution.
const mmPerInch = 25.4

// ComputePPI returns the print resolution for an image laid out with its
// longest edge across a paper of the given width, rounded half up.
func ComputePPI(width, height int, paperWidthMM float64) int {
	longest := float64(max(width, height))
	return int(math.Floor(longest/(paperWidthMM/mmPerInch) + 0.5))
}

// collectionImportStep marks the run for collection import. The import
// itself happens after the run succeeds, driven by the caller.
type collectionImportStep struct {
	logger *zap.Logger
}

func (s *collectionImportStep) Code() string { return CodeCollectionImport }

func (s *collectionImportStep) Run(_ context.Context, r *Run) (StepResult, error) {
	result := StepResult{Code: s.Code(), Display: "Collection Import"}

	if _, err := os.Stat(r.WorkingPath); err != nil {
		return result, &IOError{Op: "stat working file", Path: r.WorkingPath, Err: err}
	}

	r.ImportRequested = true
	s.logger.Debug("Collection import requested", zap.String("file", r.WorkingPath))
	return result, nil
}

var dimensionsRe = regexp.MustCompile(`(\d+)\s*x\s*(\d+)`)

// resolutionStep probes the working file's pixel dimensions through an
// external tool that writes WIDTHxHEIGHT to a side-channel file, then
// computes the print PPI against the run's paper profile. Resolution
// guarantees a paper is present before this step ever runs.
type resolutionStep struct {
	runner *tool.Runner
	opts   ResolutionOptions
	logger *zap.Logger
}

func (s *resolutionStep) Code() string { return CodeResolution }

func (s *resolutionStep) Run(ctx context.Context, r *Run) (StepResult, error) {
	result := StepResult{Code: s.Code(), Display: "Resolution"}

	dimsPath := r.WorkingPath + ".dims"
	r.addTemp(dimsPath)

	command := tool.Expand(s.opts.ProbeCommand, r.WorkingPath, dimsPath)
	result.Command = command

	exit, output, err := s.runner.Run(ctx, command)
	if err != nil {
		return result, &StepExecutionError{Step: s.Code(), ExitCode: -1, Err: err}
	}
	result.ExitCode = exit
	if exit != 0 {
		return result, &StepExecutionError{Step: s.Code(), ExitCode: exit, Err: fmt.Errorf("output: %s", strings.TrimSpace(output))}
	}

	data, err := os.ReadFile(dimsPath)
	if err != nil {
		return result, &IOError{Op: "read dimensions", Path: dimsPath, Err: err}
	}
	m := dimensionsRe.FindStringSubmatch(string(data))
	if m == nil {
		return result, &IOError{Op: "parse dimensions", Path: dimsPath, Err: fmt.Errorf("no WIDTHxHEIGHT in %q", strings.TrimSpace(string(data)))}
	}
	width, _ := strconv.Atoi(m[1])
	height, _ := strconv.Atoi(m[2])

	r.PPI = ComputePPI(width, height, r.Paper.WidthMM)
	s.logger.Info("Resolution computed",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Float64("paper_mm", r.Paper.WidthMM),
		zap.Int("ppi", r.PPI))
	return result, nil
}

// exifTransferStep copies metadata from the pre-run snapshot onto the
// transformed working file.
type exifTransferStep struct {
	session *exifSession
	opts    ExifOptions
	logger  *zap.Logger
}

func (s *exifTransferStep) Code() string { return CodeExifTransfer }

func (s *exifTransferStep) Run(_ context.Context, r *Run) (StepResult, error) {
	result := StepResult{Code: s.Code(), Display: "EXIF Transfer"}

	if r.SourcePath == "" {
		return result, &IOError{Op: "exif transfer", Path: r.WorkingPath, Err: fmt.Errorf("no snapshot of the original file")}
	}

	copied, err := s.session.TransferFields(r.SourcePath, r.WorkingPath, s.opts.Exclude)
	if err != nil {
		return result, &IOError{Op: "exif transfer", Path: r.WorkingPath, Err: err}
	}

	s.logger.Debug("EXIF fields transferred", zap.Int("fields", copied), zap.String("file", r.WorkingPath))
	return result, nil
}
