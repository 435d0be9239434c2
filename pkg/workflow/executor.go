package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/template"
	"github.com/pypes-run/pypes/pkg/valueproxy"
)

// Target is one linked, invocable component. A pkg/linker.Instance
// becomes one through NewTarget, paired with its declared world.
type Target interface {
	valueproxy.Invoker
	Export(qualifiedName string) (component.Interface, bool)
}

// instanceAdapter narrows a linker Instance-shaped value down to the
// Export lookup the executor needs, without the executor package
// importing pkg/linker directly.
type instanceAdapter struct {
	valueproxy.Invoker
	world component.World
}

func (a instanceAdapter) Export(qualifiedName string) (component.Interface, bool) {
	return a.world.Export(qualifiedName)
}

// NewTarget wraps a component's Invoker and declared world as an
// Executor Target.
func NewTarget(invoker valueproxy.Invoker, world component.World) Target {
	return instanceAdapter{Invoker: invoker, world: world}
}

// StepResult records one step's outcome for the caller-facing run record.
type StepResult struct {
	StepID  string
	Skipped bool
	Output  interface{}
	Err     error
}

// RunRecord is the complete, ordered outcome of one workflow run.
type RunRecord struct {
	RunID   string
	Steps   []StepResult
	Aborted bool
}

// Executor drives a workflow's steps to completion against a fixed set
// of linked component targets.
type Executor struct {
	proxy   *valueproxy.Proxy
	targets map[string]Target
}

// New creates an Executor over the given linked targets, keyed by
// component name.
func New(proxy *valueproxy.Proxy, targets map[string]Target) *Executor {
	return &Executor{proxy: proxy, targets: targets}
}

// Run executes steps in declared order against a fresh ValueEnvironment,
// honoring per-step on_error fallback, condition skipping, and
// cooperative cancellation between steps. A non-zero timeout bounds
// the whole run; on expiry the run stops at the next step boundary
// with Cancelled.
func (ex *Executor) Run(ctx context.Context, steps []blueprint.WorkflowStep, timeout time.Duration) (*RunRecord, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	env := NewValueEnvironment()
	byID := make(map[string]blueprint.WorkflowStep, len(steps))
	indexOf := make(map[string]int, len(steps))
	for i, s := range steps {
		byID[s.ID] = s
		indexOf[s.ID] = i
	}

	record := &RunRecord{RunID: uuid.NewString()}

	idx := 0
	for idx < len(steps) {
		select {
		case <-ctx.Done():
			record.Aborted = true
			return record, pypeserrors.Cancelled(steps[idx].ID)
		default:
		}

		step := steps[idx]
		result := ex.runStep(env, step)
		record.Steps = append(record.Steps, result)

		if result.Err == nil {
			idx++
			continue
		}

		if step.OnError == "" || step.OnError == "abort" {
			record.Aborted = true
			return record, result.Err
		}

		fallback, ok := byID[step.OnError]
		if !ok {
			record.Aborted = true
			return record, pypeserrors.Wrap(pypeserrors.ErrCodeStepInvocationFailed, "on_error fallback step not found", result.Err).
				WithDetail("step", step.ID).WithDetail("fallback", step.OnError)
		}

		// The jump is non-recursive: the fallback step's own on_error is
		// never consulted, so a fallback failure always aborts the run.
		fallbackResult := ex.runStep(env, fallback)
		record.Steps = append(record.Steps, fallbackResult)
		if fallbackResult.Err != nil {
			record.Aborted = true
			return record, fallbackResult.Err
		}
		// Execution resumes after the fallback step when it lies later in
		// the declared order, so the fallback does not run a second time.
		if fi := indexOf[fallback.ID]; fi > idx {
			idx = fi + 1
		} else {
			idx++
		}
	}

	return record, nil
}

func (ex *Executor) runStep(env *ValueEnvironment, step blueprint.WorkflowStep) StepResult {
	if step.Condition != "" {
		truthy, err := ex.evaluateCondition(env, step.Condition)
		if err != nil {
			return StepResult{StepID: step.ID, Err: err}
		}
		if !truthy {
			return StepResult{StepID: step.ID, Skipped: true}
		}
	}

	input, err := ex.expandInput(env, step.Input)
	if err != nil {
		return StepResult{StepID: step.ID, Err: err}
	}

	target, ok := ex.targets[step.Component]
	if !ok {
		return StepResult{StepID: step.ID, Err: pypeserrors.UnknownReference("component", step.Component)}
	}

	ifaceName, funcName, err := component.ParseFunctionRef(step.Function)
	if err != nil {
		return StepResult{StepID: step.ID, Err: pypeserrors.Wrap(pypeserrors.ErrCodeMalformedConfig, "malformed function reference", err).
			WithDetail("step", step.ID)}
	}
	iface, ok := target.Export(ifaceName)
	if !ok {
		return StepResult{StepID: step.ID, Err: pypeserrors.UnsatisfiedExport(step.Component, ifaceName)}
	}

	args := buildArgs(input, step.Args)

	results, err := ex.proxy.Call(iface, funcName, args, target)
	if err != nil {
		return StepResult{StepID: step.ID, Err: pypeserrors.Wrap(pypeserrors.ErrCodeStepInvocationFailed, "step invocation failed", err).
			WithDetail("step", step.ID)}
	}

	var output interface{}
	if len(results) > 0 {
		output = results[0]
	}
	env.Record(step.ID, output)
	return StepResult{StepID: step.ID, Output: output}
}

// buildArgs assembles the Value Proxy's argument list: the expanded
// input template first (when the step declares one), followed by the
// step's named keyword arguments in sorted key order for determinism.
func buildArgs(input interface{}, kwargs map[string]string) []interface{} {
	var args []interface{}
	if input != nil {
		args = append(args, input)
	}
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, kwargs[k])
	}
	return args
}

func (ex *Executor) expandInput(env *ValueEnvironment, raw string) (interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	segments, err := template.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}
	return template.Expand(segments, env)
}

func (ex *Executor) evaluateCondition(env *ValueEnvironment, raw string) (bool, error) {
	segments, err := template.Parse(raw)
	if err != nil {
		return false, err
	}
	value, err := template.Expand(segments, env)
	if err != nil {
		return false, err
	}
	return template.Truthy(value), nil
}
