package catalog

import "fmt"

// ConfigError reports a definition file that could not be used: missing,
// unreadable, or carrying no recognized section markers. Callers get empty
// tables alongside it, so the pipeline degrades to a no-op instead of
// failing hard.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("workflow definitions: %s", e.Reason)
	}
	return fmt.Sprintf("workflow definitions %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }
