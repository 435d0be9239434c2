package analyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/host"
)

func iface(name string, funcs ...component.FunctionSignature) component.Interface {
	return component.Interface{QualifiedName: name, Functions: funcs}
}

func artifactImporting(imports ...component.Interface) *component.Artifact {
	return &component.Artifact{World: component.World{Imports: imports}}
}

func artifactExporting(exports ...component.Interface) *component.Artifact {
	return &component.Artifact{World: component.World{Exports: exports}}
}

func defaultOpts() Options {
	return Options{HostExports: host.AdvertisedExports()}
}

func wellFormedBlueprint() (*blueprint.Blueprint, map[string]*component.Artifact) {
	bp := &blueprint.Blueprint{
		Components: []blueprint.ComponentRef{
			{Name: "calendar_reader", Location: "./calendar.wasm"},
			{Name: "matcher", Location: "./matcher.wasm"},
		},
		Wiring: []blueprint.WiringEdge{
			{Consumer: "calendar_reader", ConsumerImport: "wasi:filesystem/types", Provider: blueprint.HostProvider, ProviderExport: "wasi:filesystem/types"},
			{Consumer: "matcher", ConsumerImport: "example:calendar/events", Provider: "calendar_reader", ProviderExport: "example:calendar/events"},
		},
	}
	artifacts := map[string]*component.Artifact{
		"calendar_reader": {
			World: component.World{
				Imports: []component.Interface{iface("wasi:filesystem/types")},
				Exports: []component.Interface{iface("example:calendar/events", component.FunctionSignature{Name: "find"})},
			},
		},
		"matcher": {
			World: component.World{
				Imports: []component.Interface{iface("example:calendar/events")},
			},
		},
	}
	return bp, artifacts
}

func TestAnalyse_AcceptsWellFormedBlueprint(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	accepted, err := Analyse(bp, artifacts, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "calendar_reader", "matcher"}, accepted.Order)
	assert.Contains(t, accepted.Labels["calendar_reader"], "SensitiveDataSource")
}

func TestAnalyse_RejectsUnboundImport(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Wiring = bp.Wiring[:1] // drop matcher's wiring edge

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnboundImport))
}

func TestAnalyse_RejectsUnsatisfiedHostExport(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Wiring[0].ConsumerImport = "wasi:nonexistent/surface"
	bp.Wiring[0].ProviderExport = "wasi:nonexistent/surface"
	artifacts["calendar_reader"].World.Imports[0].QualifiedName = "wasi:nonexistent/surface"

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnsatisfiedExport))
}

func TestAnalyse_RejectsUnsatisfiedComponentExport(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Wiring[1].ProviderExport = "example:calendar/admin"

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnsatisfiedExport))
}

func TestAnalyse_RejectsLethalTrifecta(t *testing.T) {
	bp := &blueprint.Blueprint{
		Components: []blueprint.ComponentRef{{Name: "leaky", Location: "./leaky.wasm"}},
		Wiring: []blueprint.WiringEdge{
			{Consumer: "leaky", ConsumerImport: "wasi:http/outgoing-handler", Provider: blueprint.HostProvider, ProviderExport: "wasi:http/outgoing-handler"},
			{Consumer: "leaky", ConsumerImport: "wasi:cli/environment", Provider: blueprint.HostProvider, ProviderExport: "wasi:cli/environment"},
		},
	}
	artifacts := map[string]*component.Artifact{
		"leaky": artifactImporting(iface("wasi:http/outgoing-handler"), iface("wasi:cli/environment")),
	}

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeLethalTrifecta))
}

func TestAnalyse_RejectsDeadlyDuo(t *testing.T) {
	bp := &blueprint.Blueprint{
		Components: []blueprint.ComponentRef{{Name: "leaky", Location: "./leaky.wasm"}},
		Wiring: []blueprint.WiringEdge{
			{Consumer: "leaky", ConsumerImport: "wasi:http/outgoing-handler", Provider: blueprint.HostProvider, ProviderExport: "wasi:http/outgoing-handler"},
			{Consumer: "leaky", ConsumerImport: "wasi:filesystem/types", Provider: blueprint.HostProvider, ProviderExport: "wasi:filesystem/types"},
		},
	}
	artifacts := map[string]*component.Artifact{
		"leaky": artifactImporting(iface("wasi:http/outgoing-handler"), iface("wasi:filesystem/types")),
	}

	opts := defaultOpts()
	opts.FilesystemWriteAllowed = true
	_, err := Analyse(bp, artifacts, opts)
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeDeadlyDuo))
}

func TestAnalyse_FilesystemReadOnlyIsNotDestructive(t *testing.T) {
	bp := &blueprint.Blueprint{
		Components: []blueprint.ComponentRef{{Name: "leaky", Location: "./leaky.wasm"}},
		Wiring: []blueprint.WiringEdge{
			{Consumer: "leaky", ConsumerImport: "wasi:http/outgoing-handler", Provider: blueprint.HostProvider, ProviderExport: "wasi:http/outgoing-handler"},
			{Consumer: "leaky", ConsumerImport: "wasi:filesystem/types", Provider: blueprint.HostProvider, ProviderExport: "wasi:filesystem/types"},
		},
	}
	artifacts := map[string]*component.Artifact{
		"leaky": artifactImporting(iface("wasi:http/outgoing-handler"), iface("wasi:filesystem/types")),
	}

	// Read-only filesystem carries no DestructiveAction, so this is not a
	// Deadly Duo; HTTP plus filesystem read is still a Lethal Trifecta.
	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeLethalTrifecta))
	assert.False(t, pypeserrors.Is(err, pypeserrors.ErrCodeDeadlyDuo))
}

func TestAnalyse_AllowUnsafeBypassesPolicyOnlyNotCompleteness(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Wiring = bp.Wiring[:1]

	opts := defaultOpts()
	opts.AllowUnsafe = true
	_, err := Analyse(bp, artifacts, opts)
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnboundImport))
}

func TestAnalyse_AllowUnsafeAcceptsLethalTrifecta(t *testing.T) {
	bp := &blueprint.Blueprint{
		Components: []blueprint.ComponentRef{{Name: "leaky", Location: "./leaky.wasm"}},
		Wiring: []blueprint.WiringEdge{
			{Consumer: "leaky", ConsumerImport: "wasi:http/outgoing-handler", Provider: blueprint.HostProvider, ProviderExport: "wasi:http/outgoing-handler"},
			{Consumer: "leaky", ConsumerImport: "wasi:cli/environment", Provider: blueprint.HostProvider, ProviderExport: "wasi:cli/environment"},
		},
	}
	artifacts := map[string]*component.Artifact{
		"leaky": artifactImporting(iface("wasi:http/outgoing-handler"), iface("wasi:cli/environment")),
	}

	opts := defaultOpts()
	opts.AllowUnsafe = true
	accepted, err := Analyse(bp, artifacts, opts)
	require.NoError(t, err)
	assert.Contains(t, accepted.Labels["leaky"], "Exfiltration")
}

func TestAnalyse_RejectsForwardWorkflowReference(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Workflow = []blueprint.WorkflowStep{
		{ID: "find", Component: "calendar_reader", Function: "example:calendar/events.find", Input: "{{ rank.output }}"},
		{ID: "rank", Component: "calendar_reader", Function: "example:calendar/events.find", Input: "{{ }}"},
	}

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeTemplateError))
}

func TestAnalyse_RejectsUnknownWorkflowFunction(t *testing.T) {
	bp, artifacts := wellFormedBlueprint()
	bp.Workflow = []blueprint.WorkflowStep{
		{ID: "find", Component: "calendar_reader", Function: "example:calendar/events.delete"},
	}

	_, err := Analyse(bp, artifacts, defaultOpts())
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnsatisfiedExport))
}
