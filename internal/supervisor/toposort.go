// Package supervisor implements the harness: a stable
// topological ordering of components, channel wiring from declared
// bindings, cooperative startup/shutdown, and fail-fast propagation.
package supervisor

import (
	"fmt"
	"sort"

	"github.com/autocoder/kernel/pkg/models"
)

// TopoSort orders components so every producer starts before its
// consumers. Ties among simultaneously-ready components are broken
// alphabetically by name, making the order stable across runs with the
// same topology — the basis for the determinism smoke test.
func TopoSort(components []models.ComponentDef, bindings []models.Binding) ([]string, error) {
	inDegree := make(map[string]int, len(components))
	adjacency := make(map[string][]string, len(components))
	for _, c := range components {
		inDegree[c.Name] = 0
	}
	for _, b := range bindings {
		inDegree[b.ToComponent]++
		adjacency[b.FromComponent] = append(adjacency[b.FromComponent], b.ToComponent)
	}
	for _, edges := range adjacency {
		sort.Strings(edges)
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, next := range adjacency[n] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(components) {
		return nil, fmt.Errorf("supervisor: topology has a cycle, %d of %d components ordered", len(order), len(components))
	}
	return order, nil
}
