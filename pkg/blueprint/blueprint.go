// Package blueprint holds the Blueprint data model: the component table,
// wiring table, and workflow step sequence a config declares, plus the
// purely syntactic TOML parser that produces it.
package blueprint

// HostProvider is the literal sentinel naming the trusted Host Capability
// Provider as a wiring edge's provider.
const HostProvider = "host"

// ComponentRef is a named handle to a component location. Resolution to
// a ComponentArtifact (bytecode + parsed world) happens lazily, outside
// this package, in pkg/component.
type ComponentRef struct {
	// Name is the component's name within this blueprint, unique among
	// [components] entries.
	Name string

	// Location is either a local filesystem path, a
	// "remote://<host>/<name>@<version>" registry URI, or an additive
	// "git::<url>//<path>?ref=<ref>" form.
	Location string
}

// WiringEdge is a directed relation (consumer_component, consumer_import)
// -> (provider, provider_export). Provider is either another component's
// name or the HostProvider sentinel.
type WiringEdge struct {
	Consumer       string
	ConsumerImport string
	Provider       string
	ProviderExport string
}

// Key returns the (consumer, import) key a wiring table may not duplicate.
func (w WiringEdge) Key() string {
	return w.Consumer + "." + w.ConsumerImport
}

// WorkflowStep is one step of the optional workflow DAG.
type WorkflowStep struct {
	// ID must be unique among all steps in the blueprint.
	ID string

	// Component and Function name the target: Function is qualified as
	// "<interface>.<function>".
	Component string
	Function  string

	// Input is an optional template string expanded against the
	// ValueEnvironment before invocation.
	Input string

	// Condition is an optional template string; a falsy expansion
	// (empty sequence/string, boolean false, or zero) skips the step without
	// recording a ValueEnvironment entry.
	Condition string

	// OnError names the fallback behavior on a fatal step error: either
	// the literal "abort" (the default) or another step's ID to jump to.
	// The jump is non-recursive: a fallback step's own OnError is never
	// consulted.
	OnError string

	// Args holds arbitrary named keyword fields from the step's TOML
	// table, forwarded as named arguments to Function.
	Args map[string]string
}

// Blueprint is the fully parsed, syntactically valid configuration. It
// has not yet been checked against the capability taxonomy or any
// resolved component artifact — that's the analyser's job.
type Blueprint struct {
	Components []ComponentRef
	Wiring     []WiringEdge
	Workflow   []WorkflowStep
}

// ComponentNames returns the set of declared component names.
func (b *Blueprint) ComponentNames() map[string]struct{} {
	out := make(map[string]struct{}, len(b.Components))
	for _, c := range b.Components {
		out[c.Name] = struct{}{}
	}
	return out
}

// Component looks up a declared component by name.
func (b *Blueprint) Component(name string) (ComponentRef, bool) {
	for _, c := range b.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentRef{}, false
}

// ImportsOf returns the wiring edges whose consumer is the given
// component.
func (b *Blueprint) ImportsOf(component string) []WiringEdge {
	var out []WiringEdge
	for _, w := range b.Wiring {
		if w.Consumer == component {
			out = append(out, w)
		}
	}
	return out
}
