// Package analyser implements the capability graph analyser: the
// static verifier that decides, before any component runs, whether an
// otherwise well-formed Blueprint is safe to execute. It never
// instantiates a component and never runs component code; its output
// is always a value, either an Accepted artifact or a structured
// rejection error from pkg/errors.
package analyser

import (
	"fmt"
	"sort"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/capability"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/graph"
	"github.com/pypes-run/pypes/pkg/template"
)

// Accepted is the annotated result of a successful analysis: the
// capability graph and the provider-before-consumer instantiation
// order the linker should follow.
type Accepted struct {
	Graph *graph.Graph
	Order []string
	// Labels is the accumulated capability-class label of every
	// component node, sorted for deterministic reporting.
	Labels map[string][]string
}

// Options configures the parts of analysis that depend on the runtime
// environment rather than the Blueprint alone.
type Options struct {
	// HostExports is the Host Capability Provider's advertised export
	// set, from host.AdvertisedExports().
	HostExports map[string]bool
	// FilesystemWriteAllowed conditions wasi:filesystem/types'
	// classification: DestructiveAction is only carried when true.
	FilesystemWriteAllowed bool
	// AllowUnsafe bypasses the Lethal Trifecta and Deadly Duo policy
	// checks only; completeness, provider-validity, and the workflow
	// reference check always run.
	AllowUnsafe bool
}

// Analyse runs the full analysis pipeline over a parsed Blueprint and
// its resolved component artifacts, keyed by component name. It fails
// fast on the first violation found, mirroring the Blueprint parser's
// own fail-fast style.
func Analyse(bp *blueprint.Blueprint, artifacts map[string]*component.Artifact, opts Options) (*Accepted, error) {
	if err := checkCompleteness(bp, artifacts); err != nil {
		return nil, err
	}
	if err := checkProviderValidity(bp, artifacts, opts.HostExports); err != nil {
		return nil, err
	}

	g, err := buildGraph(bp, opts.FilesystemWriteAllowed)
	if err != nil {
		return nil, err
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, pypeserrors.CyclicDependency(g.CycleNodes())
	}

	if !opts.AllowUnsafe {
		if err := checkPolicy(g); err != nil {
			return nil, err
		}
	}

	if err := checkWorkflowReferences(bp, artifacts); err != nil {
		return nil, err
	}

	orderedNames := make([]string, len(order))
	labels := make(map[string][]string, len(g.Nodes))
	for i, n := range order {
		orderedNames[i] = n.ID
		labels[n.ID] = n.ClassList()
	}

	return &Accepted{Graph: g, Order: orderedNames, Labels: labels}, nil
}

// checkCompleteness verifies that every declared import of every
// instantiated component is the consumer of exactly one wiring edge.
func checkCompleteness(bp *blueprint.Blueprint, artifacts map[string]*component.Artifact) error {
	edgeKeys := make(map[string]bool, len(bp.Wiring))
	for _, w := range bp.Wiring {
		edgeKeys[w.Key()] = true
	}

	names := make([]string, 0, len(bp.Components))
	for _, c := range bp.Components {
		names = append(names, c.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		artifact, ok := artifacts[name]
		if !ok {
			return pypeserrors.ArtifactNotFound(name, fmt.Errorf("no resolved artifact for component %q", name))
		}
		imports := make([]string, len(artifact.World.Imports))
		for i, imp := range artifact.World.Imports {
			imports[i] = imp.QualifiedName
		}
		sort.Strings(imports)
		for _, imp := range imports {
			key := name + "." + imp
			if !edgeKeys[key] {
				return pypeserrors.UnboundImport(name, imp)
			}
		}
	}
	return nil
}

// checkProviderValidity verifies that every wiring edge's provider
// actually satisfies the wired export: host.* edges must name an
// interface the Host Capability Provider advertises, and component
// edges must name an interface the provider component actually
// exports.
func checkProviderValidity(bp *blueprint.Blueprint, artifacts map[string]*component.Artifact, hostExports map[string]bool) error {
	edges := sortedWiring(bp.Wiring)
	for _, edge := range edges {
		if edge.Provider == blueprint.HostProvider {
			if !hostExports[edge.ProviderExport] {
				return pypeserrors.UnsatisfiedExport(blueprint.HostProvider, edge.ProviderExport)
			}
			continue
		}

		providerArtifact, ok := artifacts[edge.Provider]
		if !ok {
			return pypeserrors.ArtifactNotFound(edge.Provider, fmt.Errorf("no resolved artifact for component %q", edge.Provider))
		}
		if _, ok := providerArtifact.World.Export(edge.ProviderExport); !ok {
			return pypeserrors.UnsatisfiedExport(edge.Provider, edge.ProviderExport)
		}
	}
	return nil
}

// buildGraph constructs the capability graph: one node per component
// plus the host sentinel, one edge per wiring entry, each edge
// contributing its interface's capability classes onto the consumer.
func buildGraph(bp *blueprint.Blueprint, fsWriteAllowed bool) (*graph.Graph, error) {
	g := graph.NewGraph()
	g.AddNode(blueprint.HostProvider)
	for _, c := range bp.Components {
		g.AddNode(c.Name)
	}

	for _, edge := range sortedWiring(bp.Wiring) {
		classes := classesFor(edge, fsWriteAllowed)
		if err := g.AddEdge(edge.Consumer, edge.Provider, classes...); err != nil {
			return nil, pypeserrors.Wrap(pypeserrors.ErrCodeUnknownReference, "failed to build capability graph", err)
		}
	}
	return g, nil
}

func classesFor(edge blueprint.WiringEdge, fsWriteAllowed bool) []string {
	var classes []capability.Class
	if edge.Provider == blueprint.HostProvider && edge.ProviderExport == "wasi:filesystem/types" {
		classes = capability.ClassifyFilesystem(fsWriteAllowed)
	} else {
		classes = capability.Classify(edge.ProviderExport)
	}
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}

// checkPolicy evaluates the Deadly Duo and Lethal Trifecta predicates
// over every node's accumulated label, in deterministic node-id order
// so the first rejection reported is stable across runs. A node whose
// label meets both predicates is reported as Deadly Duo.
func checkPolicy(g *graph.Graph) error {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := g.Nodes[id]
		classes := capability.ClassSet(node.ClassList())
		if capability.IsDeadlyDuo(classes) {
			return pypeserrors.DeadlyDuo(id, capability.StringSet(classes), inboundEdgeLabels(g, id))
		}
		if capability.IsLethalTrifecta(classes) {
			return pypeserrors.LethalTrifecta(id, capability.StringSet(classes), inboundEdgeLabels(g, id))
		}
	}
	return nil
}

// inboundEdgeLabels names the providers a node draws its capability
// label from, for the rejection's error detail.
func inboundEdgeLabels(g *graph.Graph, consumer string) []string {
	node := g.Nodes[consumer]
	if node == nil {
		return nil
	}
	providers := append([]string(nil), node.DependsOn...)
	sort.Strings(providers)
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = consumer + " -> " + p
	}
	return out
}

// checkWorkflowReferences verifies that every step's target exists and
// that every template reference in a step's input or condition
// resolves to a strictly earlier step in declaration order — the
// workflow's implicit topological order.
func checkWorkflowReferences(bp *blueprint.Blueprint, artifacts map[string]*component.Artifact) error {
	index := make(map[string]int, len(bp.Workflow))
	for i, step := range bp.Workflow {
		index[step.ID] = i
	}

	for i, step := range bp.Workflow {
		if step.Component == "" || step.Function == "" {
			continue
		}
		artifact, ok := artifacts[step.Component]
		if !ok {
			return pypeserrors.UnknownReference("component", step.Component)
		}
		ifaceName, funcName, err := component.ParseFunctionRef(step.Function)
		if err != nil {
			return pypeserrors.Wrap(pypeserrors.ErrCodeMalformedConfig, "malformed workflow step function reference", err).
				WithDetail("step", step.ID)
		}
		iface, ok := artifact.World.Export(ifaceName)
		if !ok {
			return pypeserrors.UnsatisfiedExport(step.Component, ifaceName)
		}
		if _, ok := iface.Function(funcName); !ok {
			return pypeserrors.UnsatisfiedExport(step.Component, step.Function)
		}

		for _, raw := range []string{step.Input, step.Condition} {
			if raw == "" {
				continue
			}
			if err := checkTemplateRefs(raw, step.ID, i, index); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkTemplateRefs(raw, stepID string, stepIndex int, index map[string]int) error {
	segments, err := template.Parse(raw)
	if err != nil {
		return pypeserrors.TemplateError(stepID, raw, err)
	}
	for _, seg := range segments {
		if seg.Expr == nil || seg.Expr.Ref.StepID == "" {
			continue
		}
		refID := seg.Expr.Ref.StepID
		refIndex, ok := index[refID]
		if !ok {
			return pypeserrors.TemplateError(stepID, raw, fmt.Errorf("reference to unknown step %q", refID))
		}
		if refIndex >= stepIndex {
			return pypeserrors.TemplateError(stepID, raw, fmt.Errorf("reference to step %q is not strictly earlier", refID))
		}
	}
	return nil
}

func sortedWiring(edges []blueprint.WiringEdge) []blueprint.WiringEdge {
	out := append([]blueprint.WiringEdge(nil), edges...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
