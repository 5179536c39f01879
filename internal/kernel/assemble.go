// Package kernel wires the independently testable pieces — blueprint,
// recipe, topology, capability, bodies, supervisor — into one runnable
// topology. It is the one place that knows how every package in this
// module fits together; cmd/kernel only calls Assemble and runs the
// result.
package kernel

import (
	"fmt"
	"strings"

	"github.com/autocoder/kernel/internal/blueprint"
	"github.com/autocoder/kernel/internal/bodies"
	"github.com/autocoder/kernel/internal/capability"
	"github.com/autocoder/kernel/internal/recipe"
	"github.com/autocoder/kernel/internal/shell"
	"github.com/autocoder/kernel/internal/state"
	"github.com/autocoder/kernel/internal/supervisor"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/internal/topology"
	"github.com/autocoder/kernel/pkg/models"
	"github.com/rs/zerolog"
)

// Assembled is a fully wired, ready-to-run topology plus the role view
// the validator settled on, for diagnostics.
type Assembled struct {
	Harness *supervisor.Harness
	Roles   []models.RoleView
}

// Assemble loads the Blueprint at path, expands it against reg, validates
// and — if the first pass reports hard lints — heals it in the one
// bounded reconciliation pass the topology package allows, then wires
// every component's ports and capability chain into a runnable
// supervisor.Harness.
//
// adapter may be nil. A component opting into StateCapability then fails
// to build, which is reported as an error. A Store component still
// builds, but every item it processes fails with an error instead of
// being persisted.
func Assemble(path string, reg *recipe.Registry, adapter state.Adapter, counters bodies.CounterSink, metrics *telemetry.Registry, logger zerolog.Logger) (*Assembled, error) {
	bp, err := blueprint.Load(path)
	if err != nil {
		return nil, err
	}

	graph, err := bp.Expand(reg)
	if err != nil {
		return nil, err
	}

	result := topology.Validate(graph)
	if len(result.Errors) > 0 {
		sinks := sinkNames(result.Roles)
		healed := topology.Heal(graph, sinks)
		if len(healed) > 0 {
			logger.Warn().Int("edges_added", len(healed)).Msg("topology validator found hard lints, healer proposed edges")
			graph.Bindings = append(graph.Bindings, healed...)
			metrics.ReconciliationEdges.Add(float64(len(healed)))
			result = topology.Validate(graph)
		}
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("kernel: topology invalid: %w", joinErrors(result.Errors))
	}

	for _, r := range result.Roles {
		if !strings.EqualFold(r.DeclaredRole, string(r.EffectiveRole)) {
			metrics.RoleFlips.WithLabelValues(r.DeclaredRole, string(r.EffectiveRole)).Inc()
		}
	}

	order, err := supervisor.TopoSort(graph.Components, graph.Bindings)
	if err != nil {
		return nil, err
	}
	wired, err := supervisor.Wire(graph.Components, graph.Bindings)
	if err != nil {
		return nil, err
	}

	requireOutput := requireOutputByComponent(bp, reg)
	recipeByComponent := recipeByComponent(bp)

	components := make(map[string]*shell.Component, len(graph.Components))
	for _, def := range graph.Components {
		comp, err := buildComponent(def, requireOutput[def.Name], recipeByComponent[def.Name], wired[def.Name], adapter, counters, metrics, logger)
		if err != nil {
			return nil, err
		}
		components[def.Name] = comp
	}

	harness := supervisor.NewHarness(components, order, logger)
	harness.Metrics = metrics
	return &Assembled{Harness: harness, Roles: result.Roles}, nil
}

func buildComponent(def models.ComponentDef, requireOutput bool, recipeName string, ports supervisor.Ports, adapter state.Adapter, counters bodies.CounterSink, metrics *telemetry.Registry, logger zerolog.Logger) (*shell.Component, error) {
	triple, extras, err := capability.Build(def.Name, def.Capabilities, adapter, metrics)
	if err != nil {
		return nil, fmt.Errorf("kernel: component %q: %w", def.Name, err)
	}
	chain, err := capability.NewChain(triple, extras...)
	if err != nil {
		return nil, fmt.Errorf("kernel: component %q: %w", def.Name, err)
	}

	compLogger := logger.With().Str("component", def.Name).Logger()
	logic, err := bodies.Build(recipeName, def.Name, def.Config, bodies.Deps{
		State:    adapter,
		Logger:   compLogger,
		Counters: counters,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("kernel: component %q: %w", def.Name, err)
	}

	comp, err := shell.New(def.Name, def.Primitive, def.Terminal, requireOutput, ports.Inputs, ports.Outputs, chain, logic, compLogger)
	if err != nil {
		return nil, fmt.Errorf("kernel: component %q: %w", def.Name, err)
	}
	comp.OnError = func(env models.ErrorEnvelope) {
		compLogger.Error().
			Str("port", env.Port).
			Str("code", string(env.Code)).
			Bool("retryable", env.Retryable).
			Str("payload_preview", env.PayloadPreview).
			Msg(env.Message)
	}
	return comp, nil
}

func sinkNames(roles []models.RoleView) []string {
	var names []string
	for _, r := range roles {
		if r.EffectiveRole == models.RoleSink {
			names = append(names, r.ComponentName)
		}
	}
	return names
}

func recipeByComponent(bp *blueprint.Blueprint) map[string]string {
	out := make(map[string]string, len(bp.Components))
	for _, c := range bp.Components {
		out[c.Name] = c.Recipe
	}
	return out
}

func requireOutputByComponent(bp *blueprint.Blueprint, reg *recipe.Registry) map[string]bool {
	out := make(map[string]bool, len(bp.Components))
	for _, c := range bp.Components {
		if rec, ok := reg.Lookup(c.Recipe); ok {
			out[c.Name] = rec.RequireOutput
		}
	}
	return out
}

func joinErrors(errs []error) error {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
