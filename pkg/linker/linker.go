// Package linker turns an accepted blueprint into a set of
// instantiated, sandboxed components ready to invoke. Instantiation
// order follows a topological sort of the provider dependency graph
// (providers before consumers); each component's imports are bound
// either directly to the Host Capability Provider or, for imports
// wired to another component, through the Value Proxy in front of
// that component's exported function.
package linker

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/graph"
	"github.com/pypes-run/pypes/pkg/host"
	"github.com/pypes-run/pypes/pkg/valueproxy"
)

// exportFuncName mirrors the flattened naming convention a wit-bindgen
// style compilation target gives a component's exported functions in
// core wasm encoding: "<qualified-interface>#<function>".
func exportFuncName(iface, function string) string {
	return fmt.Sprintf("%s#%s", iface, function)
}

// Instance is one instantiated component, ready to be invoked through
// the Value Proxy.
type Instance struct {
	Name   string
	World  component.World
	module api.Module
	proxy  *valueproxy.Proxy
	values *valueTable
}

// Invoke satisfies valueproxy.Invoker by calling the named core wasm
// export and converting between the tagged-value representation and
// wazero's flat numeric call convention is the runtime's job; at this
// layer a component's export already speaks the tagged-value calling
// convention via its own generated shim, so Invoke simply forwards.
func (i *Instance) Invoke(funcName string, args []interface{}) ([]interface{}, error) {
	fn := i.module.ExportedFunction(funcName)
	if fn == nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "exported function not found in compiled module").
			WithDetail("component", i.Name).WithDetail("function", funcName)
	}

	handles := make([]uint64, len(args))
	for idx, arg := range args {
		handles[idx] = i.values.store(arg)
	}

	results, err := fn.Call(context.Background(), handles...)
	for _, h := range handles {
		i.values.release(h)
	}
	if err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeInstantiationFailed, "component function call trapped", err).
			WithDetail("component", i.Name).WithDetail("function", funcName)
	}

	out := make([]interface{}, len(results))
	for idx, h := range results {
		v, ok := i.values.load(h)
		if !ok {
			return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "component returned an unknown value handle").
				WithDetail("component", i.Name).WithDetail("function", funcName)
		}
		out[idx] = v
		i.values.release(h)
	}
	return out, nil
}

// Set is the full linked blueprint: every component's Instance, ready
// to invoke via the workflow executor.
type Set struct {
	Instances map[string]*Instance
	Order     []string
}

// Linker compiles and instantiates every component a blueprint
// declares, wiring imports per the wiring table.
type Linker struct {
	runtime  wazero.Runtime
	provider *host.Provider
	proxy    *valueproxy.Proxy
	logger   *zap.Logger
	values   *valueTable
}

// New creates a Linker bound to the given Host Capability Provider and
// Value Proxy payload ceiling.
func New(provider *host.Provider, maxPayloadSize int, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		runtime:  wazero.NewRuntime(context.Background()),
		provider: provider,
		proxy:    valueproxy.New(maxPayloadSize),
		logger:   logger,
		values:   newValueTable(),
	}
}

// Close releases the underlying wazero runtime.
func (l *Linker) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Link instantiates every component named in artifacts, in
// topological order of the wiring dependency graph, and returns the
// fully linked Set.
func (l *Linker) Link(ctx context.Context, artifacts map[string]*component.Artifact, wiring []blueprint.WiringEdge) (*Set, error) {
	depGraph := graph.NewGraph()
	for name := range artifacts {
		depGraph.AddNode(name)
	}
	for _, edge := range wiring {
		if edge.Provider == blueprint.HostProvider {
			continue
		}
		if err := depGraph.AddEdge(edge.Consumer, edge.Provider); err != nil {
			return nil, err
		}
	}

	order, err := depGraph.TopologicalSort()
	if err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeCyclicDependency, "component dependency cycle", err)
	}

	instances := make(map[string]*Instance, len(artifacts))
	orderedNames := make([]string, 0, len(order))

	for _, node := range order {
		name := node.ID
		artifact, ok := artifacts[name]
		if !ok {
			continue
		}

		inst, err := l.instantiate(ctx, name, artifact, wiring, instances)
		if err != nil {
			return nil, err
		}
		instances[name] = inst
		orderedNames = append(orderedNames, name)
	}

	return &Set{Instances: instances, Order: orderedNames}, nil
}

func (l *Linker) instantiate(ctx context.Context, name string, artifact *component.Artifact, wiring []blueprint.WiringEdge, already map[string]*Instance) (*Instance, error) {
	l.logger.Debug("instantiating component", zap.String("component", name))

	compiled, err := l.runtime.CompileModule(ctx, artifact.Bytecode)
	if err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeInstantiationFailed, "failed to compile component bytecode", err).
			WithDetail("component", name)
	}

	hostModule := l.runtime.NewHostModuleBuilder(name + "-imports")
	for _, edge := range importsFor(wiring, name) {
		if err := l.bindImport(hostModule, edge, already); err != nil {
			return nil, err
		}
	}
	if _, err := hostModule.Instantiate(ctx); err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeInstantiationFailed, "failed to instantiate host import module", err).
			WithDetail("component", name)
	}

	module, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, pypeserrors.Wrap(pypeserrors.ErrCodeInstantiationFailed, "failed to instantiate component", err).
			WithDetail("component", name)
	}

	return &Instance{Name: name, World: artifact.World, module: module, proxy: l.proxy, values: l.values}, nil
}

// bindImport registers a host-side function for one wiring edge. An
// edge bound to the host sentinel is bound directly to the Host
// Capability Provider; an edge bound to another component is bound
// through the Value Proxy in front of that component's already
// instantiated exports.
func (l *Linker) bindImport(builder wazero.HostModuleBuilder, edge blueprint.WiringEdge, already map[string]*Instance) error {
	if edge.Provider == blueprint.HostProvider {
		return l.bindHostImport(builder, edge)
	}

	provider, ok := already[edge.Provider]
	if !ok {
		return pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "provider component not instantiated before consumer").
			WithDetail("provider", edge.Provider).WithDetail("consumer", edge.Consumer)
	}

	providerIface, ok := provider.World.Export(edge.ProviderExport)
	if !ok {
		return pypeserrors.UnsatisfiedExport(edge.Provider, edge.ProviderExport)
	}

	for _, fn := range providerIface.Functions {
		fn := fn
		providerIface := providerIface
		builder.NewFunctionBuilder().
			WithGoModuleFunction(bridgeFunc(l.proxy, providerIface, fn, provider), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, fn.Name))
	}
	return nil
}

// importsFor returns the wiring edges whose consumer is name, sorted
// for deterministic host module construction.
func importsFor(wiring []blueprint.WiringEdge, name string) []blueprint.WiringEdge {
	var out []blueprint.WiringEdge
	for _, w := range wiring {
		if w.Consumer == name {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
