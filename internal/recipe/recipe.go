// Package recipe implements the 13 named recipes and the deterministic
// Recipe Expander: a recipe is configuration over one of the
// five primitives, turned into a runnable ComponentDef by filling ports,
// capability wiring, and a method slot.
package recipe

import (
	"fmt"

	"github.com/autocoder/kernel/pkg/models"
)

// Names of the 13 recipes.
const (
	Store            = "Store"
	Controller       = "Controller"
	APIEndpoint      = "APIEndpoint"
	MessageQueue     = "MessageQueue"
	Aggregator       = "Aggregator"
	Filter           = "Filter"
	Router           = "Router"
	Cache            = "Cache"
	Validator        = "Validator"
	Logger           = "Logger"
	MetricsCollector = "MetricsCollector"
	WebSocket        = "WebSocket"
	StreamProcessor  = "StreamProcessor"
)

func evtSchema(name string) models.Schema {
	return models.Schema{Name: name}
}

// Registry holds the built-in recipe table, name-addressed.
type Registry struct {
	recipes map[string]models.Recipe
}

// NewRegistry builds the registry of all 13 built-in recipes. Port specs
// are deliberately thin here (schema name, plus a FlowType or
// OverflowPolicy on a few ports); BufferSize and any OverflowPolicy not
// set here are filled by the expander from the requested overrides or
// the kernel-wide defaults.
func NewRegistry() *Registry {
	r := &Registry{recipes: map[string]models.Recipe{}}
	r.add(models.Recipe{
		// Store is a Transformer, not a Sink: it persists each item
		// idempotently and re-emits it unchanged, so it can sit either at
		// the end of a pipeline (its "out" left unbound) or
		// in the middle as a store-and-forward stage. require_output=true
		// means it must never silently swallow an item.
		Name: Store, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform", RequireOutput: true,
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("record")},
		},
		DefaultConfig: map[string]any{"key_field": "id"},
	})
	r.add(models.Recipe{
		// Controller is a Splitter: it routes by an action field to
		// one of its declared OUT ports instead of transforming in place.
		Name: Controller, BasePrimitive: models.PrimitiveSplitter, MethodSlot: "split",
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("command")},
			{Name: "matched", Direction: models.DirectionOut, Schema: evtSchema("record")},
			{Name: "unmatched", Direction: models.DirectionOut, Schema: evtSchema("record")},
		},
		DefaultConfig: map[string]any{"action_field": "action"},
	})
	r.add(models.Recipe{
		Name: APIEndpoint, BasePrimitive: models.PrimitiveSource, MethodSlot: "produce",
		PortSpec: []models.PortSpec{{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("record"), FlowType: models.FlowReqRsp}},
	})
	r.add(models.Recipe{
		Name: MessageQueue, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform",
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("message"), OverflowPolicy: models.OverflowBlockWithTimeout},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("message")},
		},
	})
	r.add(models.Recipe{
		// Merger invariant: >=2 IN ports. Bindings may target either
		// declared input. PortOverrides only adjust these declared ports
		// at expand time; they do not add further IN ports, so fan-in is
		// fixed at two inputs.
		Name: Aggregator, BasePrimitive: models.PrimitiveMerger, MethodSlot: "merge",
		PortSpec: []models.PortSpec{
			{Name: "in_a", Direction: models.DirectionIn, Schema: evtSchema("event")},
			{Name: "in_b", Direction: models.DirectionIn, Schema: evtSchema("event")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("aggregate")},
		},
		DefaultConfig: map[string]any{"window_size": 10},
	})
	r.add(models.Recipe{
		Name: Filter, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform", RequireOutput: false,
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("record")},
		},
	})
	r.add(models.Recipe{
		// Splitter invariant: >=2 OUT ports. "matched" is the first rule
		// to fire; "default" is the fallback when no rule matches.
		Name: Router, BasePrimitive: models.PrimitiveSplitter, MethodSlot: "split",
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")},
			{Name: "matched", Direction: models.DirectionOut, Schema: evtSchema("record")},
			{Name: "default", Direction: models.DirectionOut, Schema: evtSchema("record")},
		},
	})
	r.add(models.Recipe{
		Name: Cache, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform",
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("lookup")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("result")},
		},
	})
	r.add(models.Recipe{
		// require_output=false: an invalid item is dropped, not errored.
		Name: Validator, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform", RequireOutput: false,
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("command")},
		},
		DefaultConfig: map[string]any{"required_fields": []string{}},
	})
	r.add(models.Recipe{
		Name: Logger, BasePrimitive: models.PrimitiveSink, MethodSlot: "consume",
		PortSpec: []models.PortSpec{{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")}},
	})
	r.add(models.Recipe{
		Name: MetricsCollector, BasePrimitive: models.PrimitiveSink, MethodSlot: "consume",
		PortSpec: []models.PortSpec{{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("metric")}},
	})
	r.add(models.Recipe{
		// WebSocket is a Source: it has no IN port of its own,
		// emitting inbound frames (including periodic heartbeats) onto
		// its single OUT port.
		Name: WebSocket, BasePrimitive: models.PrimitiveSource, MethodSlot: "produce",
		PortSpec:      []models.PortSpec{{Name: "inbound", Direction: models.DirectionOut, Schema: evtSchema("inbound")}},
		DefaultConfig: map[string]any{"heartbeat_interval_ms": 30000},
	})
	r.add(models.Recipe{
		Name: StreamProcessor, BasePrimitive: models.PrimitiveTransformer, MethodSlot: "transform",
		PortSpec: []models.PortSpec{
			{Name: "in", Direction: models.DirectionIn, Schema: evtSchema("record")},
			{Name: "out", Direction: models.DirectionOut, Schema: evtSchema("record")},
		},
	})
	return r
}

func (r *Registry) add(rec models.Recipe) { r.recipes[rec.Name] = rec }

// Lookup returns the named built-in recipe.
func (r *Registry) Lookup(name string) (models.Recipe, bool) {
	rec, ok := r.recipes[name]
	return rec, ok
}

// Names returns all registered recipe names, for topology inference and
// diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.recipes))
	for n := range r.recipes {
		names = append(names, n)
	}
	return names
}

// Expand deterministically turns a recipe invocation into a ComponentDef:
// port specs (with overrides merged over recipe defaults), the kernel
// capability triple plus any requested opt-ins, and the method slot the
// generator must fill. Expand is a pure function of its inputs —
// running it twice on the same recipe+overrides yields a byte-identical
// ComponentDef.
func Expand(rec models.Recipe, componentName string, portOverrides map[string]models.PortSpec, capabilities []models.CapabilityConfig, config map[string]any, terminal bool) (models.ComponentDef, error) {
	if rec.MethodSlot == "" {
		return models.ComponentDef{}, fmt.Errorf("recipe %q: missing method_slot", rec.Name)
	}

	var inputs, outputs []models.PortSpec
	for _, spec := range rec.PortSpec {
		if override, ok := portOverrides[spec.Name]; ok {
			spec = mergePortSpec(spec, override)
		}
		if spec.BufferSize <= 0 {
			spec.BufferSize = models.DefaultBufferSize
		}
		if spec.OverflowPolicy == "" {
			spec.OverflowPolicy = models.OverflowBlock
		}
		if spec.TimeoutMs <= 0 && spec.OverflowPolicy == models.OverflowBlockWithTimeout {
			spec.TimeoutMs = models.DefaultTimeoutMs
		}
		if spec.Direction == models.DirectionIn {
			inputs = append(inputs, spec)
		} else {
			outputs = append(outputs, spec)
		}
	}

	caps := kernelTripleConfig()
	caps = append(caps, capabilities...)

	merged := map[string]any{}
	for k, v := range rec.DefaultConfig {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}

	return models.ComponentDef{
		Name:         componentName,
		Primitive:    rec.BasePrimitive,
		InputPorts:   inputs,
		OutputPorts:  outputs,
		Capabilities: caps,
		Config:       merged,
		Terminal:     terminal,
		MethodSlot:   rec.MethodSlot,
	}, nil
}

func mergePortSpec(base, override models.PortSpec) models.PortSpec {
	if override.Schema.Name != "" {
		base.Schema = override.Schema
	}
	if override.BufferSize > 0 {
		base.BufferSize = override.BufferSize
	}
	if override.OverflowPolicy != "" {
		base.OverflowPolicy = override.OverflowPolicy
	}
	if override.TimeoutMs > 0 {
		base.TimeoutMs = override.TimeoutMs
	}
	if override.FlowType != "" {
		base.FlowType = override.FlowType
	}
	return base
}

// kernelTripleConfig names the three always-present capabilities so the
// expander never emits a ComponentDef without them.
func kernelTripleConfig() []models.CapabilityConfig {
	return []models.CapabilityConfig{
		{Name: "SchemaValidator", Tier: 10},
		{Name: "RateLimiter", Tier: 20, Config: map[string]any{"rate_per_sec": 1000.0, "burst": 1000}},
		{Name: "MetricsCollector", Tier: 90},
	}
}
