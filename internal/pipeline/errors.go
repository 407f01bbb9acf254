package pipeline

import "fmt"

// UnknownStepError reports a workflow step code with no builtin and no
// template entry. It is raised while resolving the step list, before any
// external process has been spawned.
type UnknownStepError struct {
	Code string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step code %q", e.Code)
}

// StepExecutionError reports an external tool that exited non-zero, or
// could not be started at all (ExitCode -1). The run is aborted and
// cannot be resumed.
type StepExecutionError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *StepExecutionError) Error() string {
	msg := fmt.Sprintf("step %s exited with code %d", e.Step, e.ExitCode)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// IOError reports a failure reading or writing the working file or one of
// its side-channel files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
