// Package capability holds the fixed capability taxonomy the analyser
// classifies every wired interface against, and the two closed-form
// policy predicates (Lethal Trifecta, Deadly Duo) evaluated over a
// component's accumulated capability label.
package capability

import "strings"

// Class is one of the five fixed capability classes. A single interface
// may carry more than one class.
type Class string

const (
	UntrustedContentSource Class = "UntrustedContentSource"
	SensitiveDataSource    Class = "SensitiveDataSource"
	Exfiltration           Class = "Exfiltration"
	DestructiveAction      Class = "DestructiveAction"
	PureComputation        Class = "PureComputation"
)

// All lists every class in the closed enum, in a fixed order used for
// deterministic reporting.
var All = []Class{
	UntrustedContentSource,
	SensitiveDataSource,
	Exfiltration,
	DestructiveAction,
	PureComputation,
}

// taxonomy maps a qualified interface name ("namespace:package/interface")
// to the capability classes it carries. Entries here are the host
// capability surface named in the spec; component-declared interfaces
// that aren't host surfaces default to PureComputation unless their
// namespace matches a reserved prefix rule below.
var taxonomy = map[string][]Class{
	"wasi:filesystem/types":     {SensitiveDataSource}, // DestructiveAction added conditionally, see ClassifyFilesystem
	"wasi:http/outgoing-handler": {Exfiltration, UntrustedContentSource},
	"wasi:cli/environment":      {SensitiveDataSource},
	"wasi:random/random":        {PureComputation},
}

// reservedPrefixes maps a namespace prefix to the classes any interface
// under it carries by default, for host-style interfaces the fixed table
// doesn't name explicitly (e.g. a future wasi:sockets/* surface).
var reservedPrefixes = map[string][]Class{
	"wasi:http/":       {Exfiltration, UntrustedContentSource},
	"wasi:filesystem/": {SensitiveDataSource},
	"wasi:sockets/":    {Exfiltration, UntrustedContentSource},
	"wasi:clocks/":     {PureComputation},
	"wasi:random/":     {PureComputation},
	"wasi:cli/":        {SensitiveDataSource},
}

// Classify returns the capability classes a qualified interface name
// carries. Unknown interfaces default to PureComputation unless they
// match a reserved namespace prefix.
func Classify(qualifiedName string) []Class {
	if classes, ok := taxonomy[qualifiedName]; ok {
		return classes
	}
	for prefix, classes := range reservedPrefixes {
		if strings.HasPrefix(qualifiedName, prefix) {
			return classes
		}
	}
	return []Class{PureComputation}
}

// ClassifyFilesystem classifies wasi:filesystem/types conditionally on
// whether the wiring edge grants write access — DestructiveAction is
// only included when write is permitted, per the design decision that
// this is a host sub-policy rather than a blanket classification.
func ClassifyFilesystem(writeAllowed bool) []Class {
	classes := []Class{SensitiveDataSource}
	if writeAllowed {
		classes = append(classes, DestructiveAction)
	}
	return classes
}

// IsLethalTrifecta reports whether an accumulated class set is a
// superset of {UntrustedContentSource, SensitiveDataSource, Exfiltration}.
func IsLethalTrifecta(classes map[Class]struct{}) bool {
	_, u := classes[UntrustedContentSource]
	_, s := classes[SensitiveDataSource]
	_, e := classes[Exfiltration]
	return u && s && e
}

// IsDeadlyDuo reports whether an accumulated class set contains both
// UntrustedContentSource and DestructiveAction.
func IsDeadlyDuo(classes map[Class]struct{}) bool {
	_, u := classes[UntrustedContentSource]
	_, d := classes[DestructiveAction]
	return u && d
}

// StringSet converts a map[Class]struct{} label to a []string in the
// fixed order of All, for use in error details and reporting.
func StringSet(classes map[Class]struct{}) []string {
	out := make([]string, 0, len(classes))
	for _, c := range All {
		if _, ok := classes[c]; ok {
			out = append(out, string(c))
		}
	}
	return out
}

// ClassSet converts a []string label (as accumulated by pkg/graph, which
// stays capability-agnostic) into the map[Class]struct{} form the policy
// predicates expect. Unrecognized strings are dropped.
func ClassSet(strs []string) map[Class]struct{} {
	out := make(map[Class]struct{}, len(strs))
	for _, s := range strs {
		for _, c := range All {
			if string(c) == s {
				out[c] = struct{}{}
			}
		}
	}
	return out
}
