// Package valueproxy implements the one checkpoint every inter-component
// value passes through: it looks up the callee's declared signature,
// coerces and type-checks arguments against it, enforces the payload
// ceiling on the way in and out, and refuses any capability-carrying
// value from ever crossing the boundary as data. Values are
// represented untyped (bool, string, float64, []interface{},
// map[string]interface{}) and matched structurally against the
// component world's declared ValueType tree, the same tagged-value
// strategy a canonical-ABI lifting layer uses internally, just
// without generated bindings.
package valueproxy

import (
	"encoding/json"
	"fmt"

	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Invoker performs the actual call once arguments have been validated.
// The linker's per-component instance implements this for its exported
// functions.
type Invoker interface {
	Invoke(funcName string, args []interface{}) ([]interface{}, error)
}

// Proxy is the data diode between a calling context (the workflow
// executor, or another component) and a callee's exported function.
type Proxy struct {
	MaxPayloadSize int
}

// New creates a Proxy enforcing the given per-call payload ceiling.
// Zero means unbounded.
func New(maxPayloadSize int) *Proxy {
	return &Proxy{MaxPayloadSize: maxPayloadSize}
}

// Call type-checks args against iface's declared signature for
// funcName, enforces the payload ceiling, invokes through target, and
// validates + re-measures the return value.
func (p *Proxy) Call(iface component.Interface, funcName string, args []interface{}, target Invoker) ([]interface{}, error) {
	sig, ok := iface.Function(funcName)
	if !ok {
		return nil, pypeserrors.New(pypeserrors.ErrCodeUnboundImport, "function not exported by interface").
			WithDetail("interface", iface.QualifiedName).WithDetail("function", funcName)
	}

	if len(args) != len(sig.Params) {
		return nil, pypeserrors.TypeMismatch(funcName, "<argc>", fmt.Sprintf("%d", len(sig.Params)), fmt.Sprintf("%d", len(args)))
	}

	coerced := make([]interface{}, len(args))
	for i, arg := range args {
		c, err := coerce(arg, sig.Params[i])
		if err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeTypeMismatch, "argument type mismatch", err).
				WithDetail("function", funcName).WithDetail("param", sig.Params[i].Name)
		}
		coerced[i] = c
	}

	if err := p.checkPayload(funcName, coerced); err != nil {
		return nil, err
	}

	results, err := target.Invoke(funcName, coerced)
	if err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeInstantiationFailed, "component invocation failed", err).
			WithDetail("function", funcName)
	}

	if len(results) != len(sig.Returns) {
		return nil, pypeserrors.TypeMismatch(funcName, "<returnc>", fmt.Sprintf("%d", len(sig.Returns)), fmt.Sprintf("%d", len(results)))
	}
	for i, r := range results {
		c, err := coerce(r, sig.Returns[i])
		if err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeTypeMismatch, "return value type mismatch", err).
				WithDetail("function", funcName)
		}
		results[i] = c
	}

	if err := p.checkPayload(funcName, results); err != nil {
		return nil, err
	}

	return results, nil
}

// checkPayload measures the JSON-serialized size of values against the
// configured ceiling. JSON size is a stable, type-agnostic proxy for
// the tagged-value wire size.
func (p *Proxy) checkPayload(funcName string, values []interface{}) error {
	if p.MaxPayloadSize <= 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return pypeserrors.Wrap(pypeserrors.ErrCodeTypeMismatch, "failed to measure payload size", err).
			WithDetail("function", funcName)
	}
	if len(data) > p.MaxPayloadSize {
		return pypeserrors.PayloadTooLarge(funcName, len(data), p.MaxPayloadSize)
	}
	return nil
}

// capabilityHandleMarker is the sentinel shape a component could try to
// serialize a capability through: a record carrying a recognizable
// handle marker field. No legitimate data value may use it.
const capabilityHandleMarker = "__pypes_capability_handle__"

// coerce structurally matches value against want, refusing any value
// that looks like a capability handle smuggled through as data.
func coerce(value interface{}, want component.ValueType) (interface{}, error) {
	if rec, ok := value.(map[string]interface{}); ok {
		if _, carries := rec[capabilityHandleMarker]; carries {
			return nil, fmt.Errorf("refused capability-carrying value for %q", want.Name)
		}
	}

	switch want.Kind {
	case component.KindBool:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return v, nil

	case component.KindString:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return v, nil

	case component.KindNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}

	case component.KindList:
		list, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", value)
		}
		if want.Of == nil {
			return nil, fmt.Errorf("list type missing element type")
		}
		out := make([]interface{}, len(list))
		for i, elem := range list {
			c, err := coerce(elem, *want.Of)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil

	case component.KindRecord:
		rec, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected record, got %T", value)
		}
		out := make(map[string]interface{}, len(want.Fields))
		for _, field := range want.Fields {
			fv, present := rec[field.Name]
			if !present {
				return nil, fmt.Errorf("record missing field %q", field.Name)
			}
			c, err := coerce(fv, field)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			out[field.Name] = c
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unrecognized value kind %q", want.Kind)
	}
}
