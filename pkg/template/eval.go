package template

import (
	"encoding/json"
	"fmt"
	"strings"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Environment resolves a step id to its previously recorded output
// value directly (the ".output" a ref may spell out is syntactic
// sugar, already stripped by the parser). pkg/workflow's
// ValueEnvironment implements this.
type Environment interface {
	StepOutput(stepID string) (interface{}, bool)
}

// Expand evaluates every segment of a parsed template against env and
// produces the final value. When segments is a sole expression (no
// surrounding literal text), the expression's native value is
// returned unchanged; otherwise every segment is stringified and
// concatenated.
func Expand(segments []Segment, env Environment) (interface{}, error) {
	if expr, ok := IsSoleExpression(segments); ok {
		return evalExpression(expr, env)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if seg.Expr != nil {
			v, err := evalExpression(seg.Expr, env)
			if err != nil {
				return nil, err
			}
			sb.WriteString(stringify(v))
			continue
		}
		sb.WriteString(seg.Literal)
	}
	return sb.String(), nil
}

func evalExpression(expr *Expression, env Environment) (interface{}, error) {
	var value interface{}

	if expr.Ref.StepID != "" {
		output, ok := env.StepOutput(expr.Ref.StepID)
		if !ok {
			return nil, pypeserrors.New(pypeserrors.ErrCodeTemplateError, "unresolved step reference").
				WithDetail("step", expr.Ref.StepID)
		}
		resolved, err := walkPath(output, expr.Ref.Path)
		if err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeTemplateError, "unresolved template path", err).
				WithDetail("step", expr.Ref.StepID)
		}
		value = resolved
	}

	for _, call := range expr.Filters {
		applied, err := applyFilter(call, value)
		if err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeTemplateError, "filter evaluation failed", err).
				WithDetail("filter", call.Name)
		}
		value = applied
	}

	return value, nil
}

func walkPath(value interface{}, path []string) (interface{}, error) {
	current := value
	for _, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot index non-record value with %q", segment)
		}
		next, ok := m[segment]
		if !ok {
			return nil, fmt.Errorf("field %q not present", segment)
		}
		current = next
	}
	return current, nil
}

func applyFilter(call FilterCall, value interface{}) (interface{}, error) {
	switch call.Name {
	case "length":
		return filterLength(value)
	case "summarize":
		n, err := ArgInt(call.Args, 0, 200)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		return filterSummarize(value, n), nil
	case "json":
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		return string(data), nil
	case "upper":
		return strings.ToUpper(stringify(value)), nil
	case "lower":
		return strings.ToLower(stringify(value)), nil
	default:
		return nil, fmt.Errorf("unknown filter %q", call.Name)
	}
}

func filterLength(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return len(v), nil
	case []interface{}:
		return len(v), nil
	case map[string]interface{}:
		return len(v), nil
	case nil:
		return 0, nil
	default:
		return nil, fmt.Errorf("length: unsupported value type %T", value)
	}
}

func filterSummarize(value interface{}, n int) string {
	s := stringify(value)
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Truthy implements the falsy rule workflow step conditions use:
// empty sequence, empty string, boolean false, and numeric zero are
// all falsy; everything else (including a present but zero-length
// record) is truthy unless covered above.
func Truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}
