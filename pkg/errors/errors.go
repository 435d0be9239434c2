// Package errors provides structured error types for pypes.
package errors

import "fmt"

// ErrorCode identifies a specific error condition raised anywhere in the
// parse -> analyse -> link -> execute pipeline.
type ErrorCode string

const (
	// Configuration errors, raised while parsing a blueprint.
	ErrCodeMalformedConfig  ErrorCode = "MALFORMED_CONFIG"
	ErrCodeDuplicateName    ErrorCode = "DUPLICATE_NAME"
	ErrCodeMalformedWiring  ErrorCode = "MALFORMED_WIRING_KEY"
	ErrCodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"

	// Binding errors, raised while analysing or linking.
	ErrCodeUnboundImport     ErrorCode = "UNBOUND_IMPORT"
	ErrCodeUnsatisfiedExport ErrorCode = "UNSATISFIED_EXPORT"
	ErrCodeCyclicDependency  ErrorCode = "CYCLIC_DEPENDENCY"

	// Policy errors, raised by the capability graph analyser.
	ErrCodeLethalTrifecta ErrorCode = "LETHAL_TRIFECTA"
	ErrCodeDeadlyDuo      ErrorCode = "DEADLY_DUO"

	// Loading errors, raised by the component loader.
	ErrCodeArtifactNotFound ErrorCode = "ARTIFACT_NOT_FOUND"
	ErrCodeIntegrityFailure ErrorCode = "INTEGRITY_FAILURE"

	// Runtime errors, raised during instantiation or workflow execution.
	ErrCodeInstantiationFailed ErrorCode = "INSTANTIATION_FAILED"
	ErrCodeTypeMismatch        ErrorCode = "TYPE_MISMATCH"
	ErrCodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeTemplateError       ErrorCode = "TEMPLATE_ERROR"
	ErrCodeStepInvocationFailed ErrorCode = "STEP_INVOCATION_FAILED"
	ErrCodeCancelled           ErrorCode = "CANCELLED"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
)

// Error is the base error type for pypes.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Details: make(map[string]interface{})}
}

// Wrap creates a new error wrapping an existing cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Details: make(map[string]interface{})}
}

// WithDetail adds a single detail to an error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// WithDetails merges details into an error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// Is reports whether err is a *Error with the given code. It unwraps
// non-*Error wrappers until it reaches the first *Error and compares
// that error's code only; the Cause of a *Error is not inspected.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// MalformedConfig reports a blueprint that could not be parsed at all.
func MalformedConfig(path string, cause error) *Error {
	return Wrap(ErrCodeMalformedConfig, fmt.Sprintf("failed to parse blueprint %s", path), cause).
		WithDetail("path", path)
}

// DuplicateName reports a component or step id declared more than once.
func DuplicateName(kind, name string) *Error {
	return New(ErrCodeDuplicateName, fmt.Sprintf("duplicate %s name %q", kind, name)).
		WithDetail("kind", kind).WithDetail("name", name)
}

// MalformedWiringKey reports a wiring table key or value that doesn't
// match the "<name>.<interface>" shape.
func MalformedWiringKey(key, value string) *Error {
	return New(ErrCodeMalformedWiring, fmt.Sprintf("malformed wiring entry %q = %q", key, value)).
		WithDetail("key", key).WithDetail("value", value)
}

// UnknownReference reports a wiring entry or workflow step naming a
// component that was never declared in [components].
func UnknownReference(kind, name string) *Error {
	return New(ErrCodeUnknownReference, fmt.Sprintf("unknown %s reference %q", kind, name)).
		WithDetail("kind", kind).WithDetail("name", name)
}

// UnboundImport reports a component import with no wiring edge.
func UnboundImport(component, iface string) *Error {
	return New(ErrCodeUnboundImport, fmt.Sprintf("component %q import %q has no wiring edge", component, iface)).
		WithDetail("component", component).WithDetail("interface", iface)
}

// UnsatisfiedExport reports a wiring edge whose provider doesn't
// actually export the wired interface.
func UnsatisfiedExport(provider, iface string) *Error {
	return New(ErrCodeUnsatisfiedExport, fmt.Sprintf("provider %q does not export %q", provider, iface)).
		WithDetail("provider", provider).WithDetail("interface", iface)
}

// CyclicDependency reports an unbreakable cycle in the provider graph.
func CyclicDependency(cycle []string) *Error {
	return New(ErrCodeCyclicDependency, fmt.Sprintf("cyclic provider dependency: %v", cycle)).
		WithDetail("cycle", cycle)
}

// LethalTrifecta reports a component whose accumulated capability label
// is a superset of {UntrustedContentSource, SensitiveDataSource, Exfiltration}.
func LethalTrifecta(component string, classes []string, edges []string) *Error {
	return New(ErrCodeLethalTrifecta, fmt.Sprintf("component %q exhibits the lethal trifecta", component)).
		WithDetail("component", component).
		WithDetail("capability_classes", classes).
		WithDetail("edges", edges)
}

// DeadlyDuo reports a component whose accumulated capability label
// contains both UntrustedContentSource and DestructiveAction.
func DeadlyDuo(component string, classes []string, edges []string) *Error {
	return New(ErrCodeDeadlyDuo, fmt.Sprintf("component %q exhibits the deadly duo", component)).
		WithDetail("component", component).
		WithDetail("capability_classes", classes).
		WithDetail("edges", edges)
}

// ArtifactNotFound reports a component location that could not be resolved.
func ArtifactNotFound(location string, cause error) *Error {
	return Wrap(ErrCodeArtifactNotFound, fmt.Sprintf("artifact not found at %s", location), cause).
		WithDetail("location", location)
}

// IntegrityFailure reports a checksum mismatch between a fetched
// artifact and its manifest.
func IntegrityFailure(location, want, got string) *Error {
	return New(ErrCodeIntegrityFailure, fmt.Sprintf("checksum mismatch for %s", location)).
		WithDetail("location", location).WithDetail("want", want).WithDetail("got", got)
}

// InstantiationFailed reports a component that failed to instantiate
// under the sandboxed runtime.
func InstantiationFailed(component string, cause error) *Error {
	return Wrap(ErrCodeInstantiationFailed, fmt.Sprintf("failed to instantiate component %q", component), cause).
		WithDetail("component", component)
}

// TypeMismatch reports an argument or return value that doesn't match
// a function's declared signature.
func TypeMismatch(function, param, want, got string) *Error {
	return New(ErrCodeTypeMismatch, fmt.Sprintf("%s: parameter %q expected %s, got %s", function, param, want, got)).
		WithDetail("function", function).WithDetail("parameter", param).
		WithDetail("want", want).WithDetail("got", got)
}

// PayloadTooLarge reports a value proxy call or return that exceeded
// the configured payload ceiling.
func PayloadTooLarge(function string, size, max int) *Error {
	return New(ErrCodePayloadTooLarge, fmt.Sprintf("%s: payload size %d exceeds ceiling %d", function, size, max)).
		WithDetail("function", function).WithDetail("size", size).WithDetail("max", max)
}

// TemplateError reports a malformed template or an unresolved/forward
// reference in a step's input or condition.
func TemplateError(stepID, template string, cause error) *Error {
	return Wrap(ErrCodeTemplateError, fmt.Sprintf("step %q: invalid template %q", stepID, template), cause).
		WithDetail("step", stepID).WithDetail("template", template)
}

// StepInvocationFailed reports a component trap during a workflow step.
func StepInvocationFailed(stepID string, cause error) *Error {
	return Wrap(ErrCodeStepInvocationFailed, fmt.Sprintf("step %q invocation failed", stepID), cause).
		WithDetail("step", stepID)
}

// Cancelled reports a run cancelled at a step boundary.
func Cancelled(stepID string) *Error {
	return New(ErrCodeCancelled, fmt.Sprintf("run cancelled before step %q", stepID)).
		WithDetail("step", stepID)
}

// Timeout reports a run whose wall-clock timeout elapsed.
func Timeout(stepID string) *Error {
	return New(ErrCodeTimeout, fmt.Sprintf("run timed out before step %q", stepID)).
		WithDetail("step", stepID)
}
