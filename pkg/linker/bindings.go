package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/valueproxy"
)

// bindHostImport registers the fixed, enumerated host.* surfaces
// directly against the Host Capability Provider, without going
// through the Value Proxy: the host implementation is trusted, so its
// own bounds checks (payload ceiling, allowlists, root confinement)
// are the only gate.
func (l *Linker) bindHostImport(builder wazero.HostModuleBuilder, edge blueprint.WiringEdge) error {
	switch edge.ProviderExport {
	case "wasi:filesystem/types":
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostHandleFunc(l.values, func(args []interface{}) (interface{}, error) {
				path, _ := args[0].(string)
				return l.provider.Filesystem.Read(path)
			}), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, "read"))

		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostHandleFunc(l.values, func(args []interface{}) (interface{}, error) {
				path, _ := args[0].(string)
				data, _ := args[1].(string)
				return nil, l.provider.Filesystem.Write(path, []byte(data))
			}), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, "write"))

	case "wasi:http/outgoing-handler":
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostHandleFunc(l.values, func(args []interface{}) (interface{}, error) {
				url, _ := args[0].(string)
				body, err := l.provider.OutgoingHandler.Get(context.Background(), url)
				if err != nil {
					return nil, err
				}
				return string(body), nil
			}), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, "get"))

	case "wasi:cli/environment":
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostHandleFunc(l.values, func(args []interface{}) (interface{}, error) {
				name, _ := args[0].(string)
				return l.provider.Environment.Get(name)
			}), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, "get"))

	case "wasi:random/random":
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostHandleFunc(l.values, func(args []interface{}) (interface{}, error) {
				n := 32
				if len(args) > 0 {
					if f, ok := args[0].(float64); ok {
						n = int(f)
					}
				}
				b, err := l.provider.Random.Bytes(n)
				if err != nil {
					return nil, err
				}
				return string(b), nil
			}), nil, nil).
			Export(exportFuncName(edge.ConsumerImport, "get-random-bytes"))

	default:
		return pypeserrors.UnboundImport(edge.Consumer, edge.ProviderExport)
	}
	return nil
}

// hostHandleFunc adapts a plain Go function taking/returning decoded
// values into the wazero api.GoModuleFunction calling convention,
// translating to and from value-table handles.
func hostHandleFunc(values *valueTable, fn func(args []interface{}) (interface{}, error)) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]interface{}, len(stack))
		for i, h := range stack {
			v, _ := values.load(h)
			args[i] = v
		}

		result, err := fn(args)
		if err != nil {
			result = nil
		}
		if len(stack) > 0 {
			stack[0] = values.store(result)
		}
	})
}

// bridgeFunc adapts a call to another component's export, routed
// through the Value Proxy, into the wazero calling convention.
func bridgeFunc(proxy *valueproxy.Proxy, iface component.Interface, sig component.FunctionSignature, provider *Instance) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]interface{}, len(stack))
		for i, h := range stack {
			v, _ := provider.values.load(h)
			args[i] = v
		}

		results, err := proxy.Call(iface, sig.Name, args, provider)
		if err != nil || len(results) == 0 {
			if len(stack) > 0 {
				stack[0] = provider.values.store(nil)
			}
			return
		}
		if len(stack) > 0 {
			stack[0] = provider.values.store(results[0])
		}
	})
}
