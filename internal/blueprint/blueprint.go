// Package blueprint loads the declarative topology description an
// operator writes by hand: named components each bound to a recipe, the
// bindings wiring their ports, and per-capability budget overrides.
// Expansion into runnable ComponentDefs is delegated to
// internal/recipe; this package only parses and validates the document
// shape.
package blueprint

import (
	"fmt"
	"os"

	"github.com/autocoder/kernel/internal/recipe"
	"github.com/autocoder/kernel/internal/topology"
	"github.com/autocoder/kernel/pkg/models"
	"gopkg.in/yaml.v3"
)

// PortOverride overrides one port's buffer size and overflow policy from
// a Blueprint document.
type PortOverride struct {
	Schema         string                `yaml:"schema,omitempty"`
	BufferSize     int                   `yaml:"buffer_size,omitempty"`
	OverflowPolicy models.OverflowPolicy `yaml:"overflow_policy,omitempty"`
	TimeoutMs      int                   `yaml:"timeout_ms,omitempty"`
}

// CapabilityOverride opts a component into a non-kernel capability
// (StateCapability, RetryHandler, CircuitBreaker) with its config.
type CapabilityOverride struct {
	Name   string         `yaml:"name"`
	Config map[string]any `yaml:"config,omitempty"`
}

// ComponentNode is one entry in a Blueprint's components list.
type ComponentNode struct {
	Name          string                        `yaml:"name"`
	Recipe        string                        `yaml:"recipe"`
	Terminal      bool                          `yaml:"terminal,omitempty"`
	Config        map[string]any                `yaml:"config,omitempty"`
	PortOverrides map[string]PortOverride       `yaml:"ports,omitempty"`
	Capabilities  []CapabilityOverride          `yaml:"capabilities,omitempty"`
}

// BindingNode is one entry in a Blueprint's bindings list.
type BindingNode struct {
	From string `yaml:"from"` // "component.port"
	To   string `yaml:"to"`   // "component.port"
}

// Blueprint is the parsed, unexpanded document.
type Blueprint struct {
	Components []ComponentNode `yaml:"components"`
	Bindings   []BindingNode   `yaml:"bindings"`
}

// Load reads and parses a Blueprint document from path.
func Load(path string) (*Blueprint, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blueprint: reading %s: %w", path, err)
	}
	var bp Blueprint
	if err := yaml.Unmarshal(blob, &bp); err != nil {
		return nil, fmt.Errorf("blueprint: parsing %s: %w", path, err)
	}
	return &bp, nil
}

// Expand turns the parsed Blueprint into a topology.Graph of runnable
// ComponentDefs, by running each node's named recipe through the
// expander. The recipe registry is the single source of base
// port specs and method slots; Blueprint nodes only override and bind.
func (bp *Blueprint) Expand(reg *recipe.Registry) (topology.Graph, error) {
	var defs []models.ComponentDef
	for _, node := range bp.Components {
		rec, ok := reg.Lookup(node.Recipe)
		if !ok {
			return topology.Graph{}, fmt.Errorf("blueprint: component %q references unknown recipe %q", node.Name, node.Recipe)
		}

		overrides := map[string]models.PortSpec{}
		for portName, o := range node.PortOverrides {
			spec := models.PortSpec{BufferSize: o.BufferSize, OverflowPolicy: o.OverflowPolicy, TimeoutMs: o.TimeoutMs}
			if o.Schema != "" {
				spec.Schema = models.Schema{Name: o.Schema}
			}
			overrides[portName] = spec
		}

		var caps []models.CapabilityConfig
		for _, c := range node.Capabilities {
			caps = append(caps, models.CapabilityConfig{Name: c.Name, Config: c.Config, Tier: tierFor(c.Name)})
		}

		def, err := recipe.Expand(rec, node.Name, overrides, caps, node.Config, node.Terminal)
		if err != nil {
			return topology.Graph{}, fmt.Errorf("blueprint: expanding component %q: %w", node.Name, err)
		}
		defs = append(defs, def)
	}

	var bindings []models.Binding
	for _, b := range bp.Bindings {
		fromComp, fromPort, err := splitRef(b.From)
		if err != nil {
			return topology.Graph{}, fmt.Errorf("blueprint: binding %q: %w", b.From, err)
		}
		toComp, toPort, err := splitRef(b.To)
		if err != nil {
			return topology.Graph{}, fmt.Errorf("blueprint: binding %q: %w", b.To, err)
		}
		bindings = append(bindings, models.Binding{
			FromComponent: fromComp, FromPort: fromPort,
			ToComponent: toComp, ToPort: toPort,
			GeneratedBy: models.GeneratedByUser,
		})
	}

	return topology.Graph{Components: defs, Bindings: bindings}, nil
}

func splitRef(ref string) (component, port string, err error) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected \"component.port\", got %q", ref)
}

// tierFor maps an opt-in capability name to its fixed kernel tier.
func tierFor(name string) int {
	switch name {
	case "StateCapability":
		return 30
	case "RetryHandler":
		return 40
	case "CircuitBreaker":
		return 50
	default:
		return 0
	}
}
