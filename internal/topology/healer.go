package topology

import (
	"github.com/autocoder/kernel/pkg/models"
)

// Heal runs one bounded reconciliation pass — it never loops until
// clean, it proposes edges once. It binds any component with an
// unconnected output port to the first compatible unconnected input port
// on a component named in candidateSinks, preferring the earliest match
// in that order so the result is deterministic. Edges it proposes are
// tagged GeneratedBy: reconciliation; edges already present are left
// untouched, so running Heal twice over its own output is a no-op.
func Heal(g Graph, candidateSinks []string) []models.Binding {
	byName := g.byName()
	connectedOut := map[string]map[string]bool{}
	connectedIn := map[string]map[string]bool{}
	for _, b := range g.Bindings {
		markConnected(connectedOut, b.FromComponent, b.FromPort)
		markConnected(connectedIn, b.ToComponent, b.ToPort)
	}

	var proposed []models.Binding
	for _, c := range g.Components {
		for _, out := range c.OutputPorts {
			if connectedOut[c.Name][out.Name] {
				continue
			}
			sinkComponent, sinkPort, ok := findCompatibleSink(byName, connectedIn, candidateSinks, out)
			if !ok {
				continue
			}
			proposed = append(proposed, models.Binding{
				FromComponent: c.Name,
				FromPort:      out.Name,
				ToComponent:   sinkComponent,
				ToPort:        sinkPort,
				GeneratedBy:   models.GeneratedByReconciliation,
			})
			markConnected(connectedOut, c.Name, out.Name)
			markConnected(connectedIn, sinkComponent, sinkPort)
		}
	}
	return proposed
}

func markConnected(m map[string]map[string]bool, component, port string) {
	if m[component] == nil {
		m[component] = map[string]bool{}
	}
	m[component][port] = true
}

func findCompatibleSink(byName map[string]models.ComponentDef, connectedIn map[string]map[string]bool, candidates []string, out models.PortSpec) (component, port string, ok bool) {
	for _, candidateName := range candidates {
		candidate, present := byName[candidateName]
		if !present {
			continue
		}
		for _, in := range candidate.InputPorts {
			if connectedIn[candidateName][in.Name] {
				continue
			}
			if in.Schema.Name != out.Schema.Name {
				continue
			}
			return candidateName, in.Name, true
		}
	}
	return "", "", false
}
