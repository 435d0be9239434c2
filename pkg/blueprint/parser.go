package blueprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// rawBlueprint mirrors the TOML shape exactly: [components], [wiring],
// and [[workflow.steps]]. Workflow steps are decoded as free-form maps so
// arbitrary named keyword fields survive without a fixed schema.
type rawBlueprint struct {
	Components map[string]string `toml:"components"`
	Wiring     map[string]string `toml:"wiring"`
	Workflow   struct {
		Steps []map[string]interface{} `toml:"steps"`
	} `toml:"workflow"`
}

// reservedStepKeys are the workflow step fields with fixed meaning; every
// other key in a step's TOML table is forwarded as a named argument.
var reservedStepKeys = map[string]struct{}{
	"id": {}, "component": {}, "function": {},
	"input": {}, "condition": {}, "on_error": {},
}

// Parse decodes and syntactically validates blueprint TOML text. This
// pass is purely syntactic: it never consults the capability taxonomy or
// resolves any component artifact — it only checks shape.
func Parse(path string, data []byte) (*Blueprint, error) {
	var raw rawBlueprint
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, pypeserrors.MalformedConfig(path, err)
	}

	bp := &Blueprint{}

	seenComponents := make(map[string]bool, len(raw.Components))
	// Sort for deterministic error ordering across runs.
	names := make([]string, 0, len(raw.Components))
	for name := range raw.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if seenComponents[name] {
			return nil, pypeserrors.DuplicateName("component", name)
		}
		seenComponents[name] = true
		bp.Components = append(bp.Components, ComponentRef{Name: name, Location: raw.Components[name]})
	}

	wiringKeys := make([]string, 0, len(raw.Wiring))
	for k := range raw.Wiring {
		wiringKeys = append(wiringKeys, k)
	}
	sort.Strings(wiringKeys)

	seenWiring := make(map[string]bool, len(wiringKeys))
	for _, key := range wiringKeys {
		value := raw.Wiring[key]

		consumer, consumerImport, err := splitWiringRef(key)
		if err != nil {
			return nil, pypeserrors.MalformedWiringKey(key, value)
		}
		provider, providerExport, err := splitWiringRef(value)
		if err != nil {
			return nil, pypeserrors.MalformedWiringKey(key, value)
		}

		if !seenComponents[consumer] {
			return nil, pypeserrors.UnknownReference("component", consumer)
		}
		if provider != HostProvider && !seenComponents[provider] {
			return nil, pypeserrors.UnknownReference("component", provider)
		}

		edgeKey := consumer + "." + consumerImport
		if seenWiring[edgeKey] {
			return nil, pypeserrors.DuplicateName("wiring entry", edgeKey)
		}
		seenWiring[edgeKey] = true

		bp.Wiring = append(bp.Wiring, WiringEdge{
			Consumer:       consumer,
			ConsumerImport: consumerImport,
			Provider:       provider,
			ProviderExport: providerExport,
		})
	}

	seenSteps := make(map[string]bool, len(raw.Workflow.Steps))
	for _, raw := range raw.Workflow.Steps {
		step, err := parseStep(raw)
		if err != nil {
			return nil, err
		}
		if seenSteps[step.ID] {
			return nil, pypeserrors.DuplicateName("workflow step", step.ID)
		}
		seenSteps[step.ID] = true

		if step.Component != "" && !seenComponents[step.Component] {
			return nil, pypeserrors.UnknownReference("component", step.Component)
		}

		bp.Workflow = append(bp.Workflow, step)
	}

	return bp, nil
}

// splitWiringRef splits a "<name>.<qualified-interface-name>" wiring key
// or value. The interface side may itself contain dots (qualified
// interface names are "namespace:package/interface"), so only the first
// segment is the component/provider name.
func splitWiringRef(ref string) (name, iface string, err error) {
	idx := strings.Index(ref, ".")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", fmt.Errorf("malformed wiring reference %q", ref)
	}
	return ref[:idx], ref[idx+1:], nil
}

func parseStep(raw map[string]interface{}) (WorkflowStep, error) {
	step := WorkflowStep{Args: make(map[string]string)}

	if v, ok := raw["id"].(string); ok {
		step.ID = v
	}
	if step.ID == "" {
		return step, pypeserrors.MalformedConfig("<workflow.steps>", fmt.Errorf("step missing required 'id' field"))
	}

	if v, ok := raw["component"].(string); ok {
		step.Component = v
	}
	if v, ok := raw["function"].(string); ok {
		step.Function = v
	}
	if v, ok := raw["input"].(string); ok {
		step.Input = v
	}
	if v, ok := raw["condition"].(string); ok {
		step.Condition = v
	}
	step.OnError = "abort"
	if v, ok := raw["on_error"].(string); ok && v != "" {
		step.OnError = v
	}

	for k, v := range raw {
		if _, reserved := reservedStepKeys[k]; reserved {
			continue
		}
		step.Args[k] = fmt.Sprintf("%v", v)
	}

	return step, nil
}
