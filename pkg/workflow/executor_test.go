package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/valueproxy"
)

var findEventsInterface = component.Interface{
	QualifiedName: "example:calendar/events",
	Functions: []component.FunctionSignature{
		{
			Name:    "find",
			Returns: []component.ValueType{{Kind: component.KindString, Name: "result"}},
		},
	},
}

type fakeTarget struct {
	result string
	err    error
	calls  []string
}

func (f *fakeTarget) Invoke(funcName string, args []interface{}) ([]interface{}, error) {
	f.calls = append(f.calls, funcName)
	if f.err != nil {
		return nil, f.err
	}
	return []interface{}{f.result}, nil
}

func (f *fakeTarget) Export(qualifiedName string) (component.Interface, bool) {
	if qualifiedName == findEventsInterface.QualifiedName {
		return findEventsInterface, true
	}
	return component.Interface{}, false
}

func TestRun_ExecutesStepsInOrderAndRecordsOutput(t *testing.T) {
	target := &fakeTarget{result: "lunch with Sam"}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": target})

	steps := []blueprint.WorkflowStep{
		{ID: "find", Component: "matcher", Function: "example:calendar/events.find", Input: "{{ }}"},
	}

	record, err := ex.Run(context.Background(), steps, 0)
	require.NoError(t, err)
	require.Len(t, record.Steps, 1)
	assert.Equal(t, "lunch with Sam", record.Steps[0].Output)
}

func TestRun_SkipsStepOnFalsyCondition(t *testing.T) {
	target := &fakeTarget{result: "x"}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": target})

	steps := []blueprint.WorkflowStep{
		{ID: "maybe", Component: "matcher", Function: "example:calendar/events.find", Condition: "{{ }}", Input: "{{ }}"},
	}

	record, err := ex.Run(context.Background(), steps, 0)
	require.NoError(t, err)
	assert.True(t, record.Steps[0].Skipped)
	assert.Empty(t, target.calls)
}

func TestRun_OnErrorAbortsByDefault(t *testing.T) {
	target := &fakeTarget{err: assertErr("boom")}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": target})

	steps := []blueprint.WorkflowStep{
		{ID: "find", Component: "matcher", Function: "example:calendar/events.find", Input: "{{ }}", OnError: "abort"},
	}

	record, err := ex.Run(context.Background(), steps, 0)
	require.Error(t, err)
	assert.True(t, record.Aborted)
}

func TestRun_OnErrorJumpsToFallback(t *testing.T) {
	failing := &fakeTarget{err: assertErr("boom")}
	fallback := &fakeTarget{result: "fallback result"}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": failing, "backup": fallback})

	steps := []blueprint.WorkflowStep{
		{ID: "find", Component: "matcher", Function: "example:calendar/events.find", Input: "{{ }}", OnError: "retry"},
		{ID: "retry", Component: "backup", Function: "example:calendar/events.find", Input: "{{ }}", OnError: "abort"},
	}

	record, err := ex.Run(context.Background(), steps, 0)
	require.NoError(t, err)
	require.Len(t, record.Steps, 2)
	assert.Equal(t, "fallback result", record.Steps[1].Output)
}

func TestRun_CancellationBetweenSteps(t *testing.T) {
	target := &fakeTarget{result: "x"}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": target})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps := []blueprint.WorkflowStep{
		{ID: "find", Component: "matcher", Function: "example:calendar/events.find", Input: "{{ }}"},
	}

	_, err := ex.Run(ctx, steps, 0)
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeCancelled))
}

func TestRun_TimeoutBoundsTotalDuration(t *testing.T) {
	target := &fakeTarget{result: "x"}
	ex := New(valueproxy.New(0), map[string]Target{"matcher": target})

	steps := []blueprint.WorkflowStep{
		{ID: "find", Component: "matcher", Function: "example:calendar/events.find", Input: "{{ }}"},
	}

	_, err := ex.Run(context.Background(), steps, time.Nanosecond)
	// Either it completes before the timeout fires or it observes
	// cancellation at the (only) step boundary; both are acceptable,
	// but an error, if any, must be the structured Cancelled error.
	if err != nil {
		assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeCancelled))
	}
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
