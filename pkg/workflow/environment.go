// Package workflow drives the declared workflow DAG to completion:
// steps execute in declared order, each step's condition and input
// templates are expanded against the accumulated outputs of prior
// steps, and the target function is invoked through the Value Proxy.
package workflow

import "sync"

// ValueEnvironment is the run-scoped, append-only record of every
// completed step's output. It is never shared across runs and
// implements pkg/template.Environment so step templates can resolve
// "<step-id>.output" references directly against it.
type ValueEnvironment struct {
	mu      sync.RWMutex
	outputs map[string]interface{}
}

// NewValueEnvironment creates an empty environment.
func NewValueEnvironment() *ValueEnvironment {
	return &ValueEnvironment{outputs: make(map[string]interface{})}
}

// StepOutput satisfies pkg/template.Environment.
func (e *ValueEnvironment) StepOutput(stepID string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.outputs[stepID]
	return v, ok
}

// Record stores a step's output. A step that completes records
// exactly once; a skipped step (falsy condition) never records.
func (e *ValueEnvironment) Record(stepID string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[stepID] = value
}
