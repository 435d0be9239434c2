// Package template implements the closed expression grammar workflow
// steps use for their "input" and "condition" fields:
//
//	{{ <ref> (| <filter>(<arg>, ...))* }}
//
// where <ref> is a step id optionally followed by ".output" and a
// dotted path into that step's recorded value. The filter set is
// fixed and enumerated; any other name is a hard parse error. This is
// an intentionally small, closed language: no arithmetic, no
// user-defined functions, to bound the covert-channel surface of the
// executor itself.
package template

import (
	"fmt"
	"strconv"
	"strings"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Ref is a parsed reference into a prior step's recorded value.
type Ref struct {
	StepID string
	Path   []string // dotted path segments after the optional ".output"
}

// FilterCall is one pipeline stage applied after a Ref is resolved.
type FilterCall struct {
	Name string
	Args []string
}

// Expression is one parsed "{{ ... }}" span.
type Expression struct {
	Ref     Ref
	Filters []FilterCall
}

// Segment is either literal text or a parsed expression, in the order
// they appeared in the source template.
type Segment struct {
	Literal string
	Expr    *Expression
}

// knownFilters is the fixed, enumerated filter set. Adding a filter
// here is the only way to extend the grammar.
var knownFilters = map[string]struct{}{
	"length": {}, "summarize": {}, "json": {}, "upper": {}, "lower": {},
}

// Parse scans raw for "{{ ... }}" spans, parsing each as an
// Expression and leaving everything else as literal text.
func Parse(raw string) ([]Segment, error) {
	var segments []Segment
	rest := raw

	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			if rest != "" {
				segments = append(segments, Segment{Literal: rest})
			}
			return segments, nil
		}
		if start > 0 {
			segments = append(segments, Segment{Literal: rest[:start]})
		}

		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return nil, pypeserrors.New(pypeserrors.ErrCodeTemplateError, "unterminated template expression").
				WithDetail("template", raw)
		}
		end += start

		body := strings.TrimSpace(rest[start+2 : end])
		expr, err := parseExpression(body)
		if err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeTemplateError, "malformed template expression", err).
				WithDetail("template", raw)
		}
		segments = append(segments, Segment{Expr: expr})

		rest = rest[end+2:]
	}
}

// IsSoleExpression reports whether segments is exactly one expression
// with no surrounding literal text, in which case Expand should
// preserve the expression's native value type rather than
// stringifying it.
func IsSoleExpression(segments []Segment) (*Expression, bool) {
	if len(segments) == 1 && segments[0].Expr != nil {
		return segments[0].Expr, true
	}
	return nil, false
}

func parseExpression(body string) (*Expression, error) {
	if body == "" {
		return &Expression{}, nil
	}

	parts := splitPipes(body)
	refPart := strings.TrimSpace(parts[0])

	var ref Ref
	if refPart != "" {
		segs := strings.Split(refPart, ".")
		ref.StepID = segs[0]
		path := segs[1:]
		if len(path) > 0 && path[0] == "output" {
			path = path[1:]
		}
		ref.Path = path
	}

	expr := &Expression{Ref: ref}
	for _, raw := range parts[1:] {
		call, err := parseFilterCall(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		expr.Filters = append(expr.Filters, call)
	}
	return expr, nil
}

func splitPipes(body string) []string {
	// Pipes only separate top-level filter stages; filter arguments are
	// parenthesized and never contain a bare "|" in this grammar, so a
	// plain split is sufficient.
	return strings.Split(body, "|")
}

func parseFilterCall(raw string) (FilterCall, error) {
	name := raw
	var argsRaw string
	if idx := strings.Index(raw, "("); idx != -1 {
		if !strings.HasSuffix(raw, ")") {
			return FilterCall{}, fmt.Errorf("malformed filter call %q", raw)
		}
		name = strings.TrimSpace(raw[:idx])
		argsRaw = raw[idx+1 : len(raw)-1]
	}

	if _, ok := knownFilters[name]; !ok {
		return FilterCall{}, fmt.Errorf("unknown filter %q", name)
	}

	var args []string
	if strings.TrimSpace(argsRaw) != "" {
		for _, a := range strings.Split(argsRaw, ",") {
			args = append(args, strings.TrimSpace(strings.Trim(a, `"'`)))
		}
	}
	return FilterCall{Name: name, Args: args}, nil
}

// ArgInt parses a filter argument as an integer, for filters like
// summarize(n) that take a numeric bound.
func ArgInt(args []string, index int, fallback int) (int, error) {
	if index >= len(args) {
		return fallback, nil
	}
	return strconv.Atoi(args[index])
}
