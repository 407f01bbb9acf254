package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const DefaultShell = "/bin/sh"

type Runner struct {
	shell string
}

func NewRunner(shell string) *Runner {
	if shell == "" {
		shell = DefaultShell
	}
	return &Runner{shell: shell}
}

// Run executes commandLine through the shell and blocks until it exits.
// A non-zero exit status is reported through the exit code, not the error;
// the error is reserved for commands that could not be run at all.
func (r *Runner) Run(ctx context.Context, commandLine string) (int, string, error) {
	cmd := exec.CommandContext(ctx, r.shell, "-c", commandLine)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), string(output), nil
		}
		return -1, string(output), fmt.Errorf("command failed to start: %v, output: %s", err, string(output))
	}

	return 0, string(output), nil
}

// Expand replaces successive %s placeholders with args, in order. Other
// %-sequences (identify format strings, printf verbs) pass through
// untouched, so templates never need escaping.
func Expand(template string, args ...string) string {
	out := template
	for _, arg := range args {
		if !strings.Contains(out, "%s") {
			break
		}
		out = strings.Replace(out, "%s", arg, 1)
	}
	return out
}

// ExpandAll replaces every %s placeholder with the same value.
func ExpandAll(template, value string) string {
	return strings.ReplaceAll(template, "%s", value)
}
