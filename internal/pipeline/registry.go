package pipeline

import (
	"fmt"
	"sync"
)

// Registry holds the builtin steps by code
type Registry struct {
	steps map[string]Step
	mu    sync.RWMutex
}

// NewRegistry creates an empty builtin registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a builtin step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}

	code := step.Code()
	if code == "" {
		return fmt.Errorf("step code cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[code]; exists {
		return fmt.Errorf("step %s is already registered", code)
	}

	r.steps[code] = step
	return nil
}

// Get retrieves a builtin step by exact code match
func (r *Registry) Get(code string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[code]
	return step, exists
}

// List returns all registered builtin codes
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.steps))
	for code := range r.steps {
		codes = append(codes, code)
	}
	return codes
}
