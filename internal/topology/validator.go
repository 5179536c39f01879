// Package topology implements the Topology Validator and Healer: role
// inference over a graph of ComponentDefs and Bindings, hard lints
// that must fail closed, and one bounded reconciliation pass that
// proposes the missing edges a hard lint names.
package topology

import (
	"fmt"

	"github.com/autocoder/kernel/pkg/models"
)

// Graph is the validator and healer's shared input: the declared
// components and the bindings wiring their ports together.
type Graph struct {
	Components []models.ComponentDef
	Bindings   []models.Binding
}

// Result is the validator's output: one RoleView per component plus any
// hard-lint errors. A non-empty Errors means the topology is invalid and
// must not be handed to the supervisor.
type Result struct {
	Roles  []models.RoleView
	Errors []error
}

func (g Graph) degrees() (in, out map[string]int) {
	in = make(map[string]int, len(g.Components))
	out = make(map[string]int, len(g.Components))
	for _, c := range g.Components {
		in[c.Name] = 0
		out[c.Name] = 0
	}
	for _, b := range g.Bindings {
		out[b.FromComponent]++
		in[b.ToComponent]++
	}
	return in, out
}

func (g Graph) byName() map[string]models.ComponentDef {
	m := make(map[string]models.ComponentDef, len(g.Components))
	for _, c := range g.Components {
		m[c.Name] = c
	}
	return m
}

// Validate infers each component's effective role (R1-R3), checks the
// terminal-flag and connectivity hard lints (R4, R6-R8), and reports every
// violation rather than stopping at the first.
func Validate(g Graph) Result {
	in, out := g.degrees()
	var roles []models.RoleView
	var errs []error

	for _, c := range g.Components {
		role, reasons := inferRole(c, in[c.Name], out[c.Name])
		roles = append(roles, models.RoleView{
			ComponentName: c.Name,
			DeclaredRole:  string(c.Primitive),
			EffectiveRole: role,
			Reasons:       reasons,
		})

		// R4: a component marked Terminal must have no outbound edges.
		if c.Terminal && out[c.Name] > 0 {
			errs = append(errs, fmt.Errorf("%s: component %q is terminal but has %d outbound binding(s)",
				models.ErrTerminalContradictionOutDegree, c.Name, out[c.Name]))
		}
		// R8: a component marked Terminal must declare no output ports at all.
		if c.Terminal && len(c.OutputPorts) > 0 {
			errs = append(errs, fmt.Errorf("%s: component %q is terminal but declares %d output port(s)",
				models.ErrTerminalContradictionOutputs, c.Name, len(c.OutputPorts)))
		}
	}

	hasSource, hasSink := false, false
	for _, r := range roles {
		switch r.EffectiveRole {
		case models.RoleSource:
			hasSource = true
		case models.RoleSink:
			hasSink = true
		}
	}
	if !hasSource || !hasSink {
		errs = append(errs, fmt.Errorf("%s: topology has no %s", models.ErrMissingSourceOrSink, missingRoleLabel(hasSource, hasSink)))
	}

	if hasSource && hasSink {
		errs = append(errs, unreachableSourceErrors(g, roles)...)
	}

	return Result{Roles: roles, Errors: errs}
}

func missingRoleLabel(hasSource, hasSink bool) string {
	switch {
	case !hasSource && !hasSink:
		return "source or sink"
	case !hasSource:
		return "source"
	default:
		return "sink"
	}
}

// inferRole applies R1-R3: a component with no inbound edges and at least
// one outbound edge behaves as a SOURCE; no outbound edges and at least
// one inbound edge behaves as a SINK; otherwise it behaves as a
// TRANSFORMER regardless of its declared primitive.
func inferRole(c models.ComponentDef, inDeg, outDeg int) (models.EffectiveRole, []string) {
	switch {
	case inDeg == 0 && outDeg > 0:
		return models.RoleSource, []string{"R1: no inbound bindings, has outbound bindings"}
	case outDeg == 0 && inDeg > 0:
		return models.RoleSink, []string{"R2: no outbound bindings, has inbound bindings"}
	case inDeg == 0 && outDeg == 0:
		if c.Primitive == models.PrimitiveSource {
			return models.RoleSource, []string{"R1: isolated component, declared primitive is source"}
		}
		return models.RoleSink, []string{"R2: isolated component, defaulting to sink"}
	default:
		return models.RoleTransformer, []string{"R3: has both inbound and outbound bindings"}
	}
}

// unreachableSourceErrors runs a forward BFS from every effective SOURCE
// and flags one that cannot reach any effective SINK (R7 "no sink path").
func unreachableSourceErrors(g Graph, roles []models.RoleView) []error {
	adjacency := make(map[string][]string, len(g.Components))
	for _, b := range g.Bindings {
		adjacency[b.FromComponent] = append(adjacency[b.FromComponent], b.ToComponent)
	}
	roleByName := make(map[string]models.EffectiveRole, len(roles))
	for _, r := range roles {
		roleByName[r.ComponentName] = r.EffectiveRole
	}

	var errs []error
	for _, r := range roles {
		if r.EffectiveRole != models.RoleSource {
			continue
		}
		if !canReachSink(r.ComponentName, adjacency, roleByName) {
			errs = append(errs, fmt.Errorf("%s: source %q has no path to any sink", models.ErrNoSinkPath, r.ComponentName))
		}
	}
	return errs
}

func canReachSink(start string, adjacency map[string][]string, roleByName map[string]models.EffectiveRole) bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if roleByName[n] == models.RoleSink {
			return true
		}
		for _, next := range adjacency[n] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
