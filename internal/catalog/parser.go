package catalog

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// At most this many workflows are kept per definition file; extra lines
// are skipped with a warning.
const maxWorkflows = 3

type section int

const (
	sectionNone section = iota
	sectionSteps
	sectionWorkflows
	sectionPapers
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load parses the definition file at path. On failure it still returns a
// valid empty catalog so callers can degrade instead of crashing.
func (l *Loader) Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		l.logger.Error("Failed to open workflow definitions", zap.String("file", path), zap.Error(err))
		return newCatalog(), &ConfigError{Path: path, Reason: "cannot open file", Err: err}
	}
	defer f.Close()

	cat, err := l.Parse(f)
	if err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.Path = path
		}
		return cat, err
	}

	l.logger.Info("Workflow definitions loaded",
		zap.String("file", path),
		zap.Int("steps", len(cat.stepOrder)),
		zap.Int("workflows", len(cat.workflowOrder)),
		zap.Int("papers", len(cat.paperOrder)))
	return cat, nil
}

// Parse reads the line-oriented definition format. A line starting with '['
// switches the active section; header names are case-insensitive. Lines
// shorter than three characters after trimming are skipped, as are data
// lines outside a recognized section and lines that do not split on the
// section's delimiters.
func (l *Loader) Parse(r io.Reader) (*Catalog, error) {
	cat := newCatalog()
	active := sectionNone
	sawSection := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 3 {
			continue
		}

		if strings.HasPrefix(line, "[") {
			switch strings.ToLower(line) {
			case "[steps]":
				active = sectionSteps
				sawSection = true
			case "[workflows]":
				active = sectionWorkflows
				sawSection = true
			case "[papers]":
				active = sectionPapers
				sawSection = true
			default:
				l.logger.Warn("Unknown section in workflow definitions", zap.String("header", line))
				active = sectionNone
			}
			continue
		}

		switch active {
		case sectionSteps:
			l.parseStep(cat, line)
		case sectionWorkflows:
			l.parseWorkflow(cat, line)
		case sectionPapers:
			l.parsePaper(cat, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return newCatalog(), &ConfigError{Reason: "read failed", Err: err}
	}

	if !sawSection {
		return cat, &ConfigError{Reason: "no section markers found"}
	}
	return cat, nil
}

// Step lines: CODE:DisplayName=command-template, split on the first ':'
// then the first '='.
func (l *Loader) parseStep(cat *Catalog, line string) {
	code, rest, ok := strings.Cut(line, ":")
	if !ok {
		l.logger.Warn("Skipping step line without ':'", zap.String("line", line))
		return
	}
	display, template, ok := strings.Cut(rest, "=")
	if !ok {
		l.logger.Warn("Skipping step line without '='", zap.String("line", line))
		return
	}

	step := StepTemplate{
		Code:     strings.TrimSpace(code),
		Display:  strings.TrimSpace(display),
		Template: strings.TrimSpace(template),
	}
	if cat.addStep(step) {
		l.logger.Warn("Duplicate step code, last entry wins", zap.String("code", step.Code))
	}
}

// Workflow lines: Name:CODE1,CODE2,... with the step list split and
// trimmed here so execution never re-parses it.
func (l *Loader) parseWorkflow(cat *Catalog, line string) {
	name, list, ok := strings.Cut(line, ":")
	if !ok {
		l.logger.Warn("Skipping workflow line without ':'", zap.String("line", line))
		return
	}
	trimmedName := strings.TrimSpace(name)

	if _, exists := cat.workflows[trimmedName]; !exists && len(cat.workflowOrder) >= maxWorkflows {
		l.logger.Warn("Workflow limit reached, skipping",
			zap.String("name", trimmedName), zap.Int("limit", maxWorkflows))
		return
	}

	var steps []string
	for _, code := range strings.Split(list, ",") {
		if code = strings.TrimSpace(code); code != "" {
			steps = append(steps, code)
		}
	}

	if cat.addWorkflow(WorkflowDefinition{Name: trimmedName, Steps: steps}) {
		l.logger.Warn("Duplicate workflow name, last entry wins", zap.String("name", trimmedName))
	}
}

// Paper lines: Name:width-mm.
func (l *Loader) parsePaper(cat *Catalog, line string) {
	name, widthStr, ok := strings.Cut(line, ":")
	if !ok {
		l.logger.Warn("Skipping paper line without ':'", zap.String("line", line))
		return
	}

	width, err := strconv.ParseFloat(strings.TrimSpace(widthStr), 64)
	if err != nil {
		l.logger.Warn("Skipping paper line with bad width", zap.String("line", line), zap.Error(err))
		return
	}

	paper := PaperProfile{Name: strings.TrimSpace(name), WidthMM: width}
	if cat.addPaper(paper) {
		l.logger.Warn("Duplicate paper name, last entry wins", zap.String("name", paper.Name))
	}
}
