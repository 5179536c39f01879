package supervisor_test

import (
	"reflect"
	"testing"

	"github.com/autocoder/kernel/internal/supervisor"
	"github.com/autocoder/kernel/pkg/models"
)

func TestTopoSort_OrdersProducersBeforeConsumers(t *testing.T) {
	components := []models.ComponentDef{
		{Name: "sink"}, {Name: "transform"}, {Name: "src"},
	}
	bindings := []models.Binding{
		{FromComponent: "src", ToComponent: "transform"},
		{FromComponent: "transform", ToComponent: "sink"},
	}
	order, err := supervisor.TopoSort(components, bindings)
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}
	if !reflect.DeepEqual(order, []string{"src", "transform", "sink"}) {
		t.Fatalf("TopoSort() = %v, want [src transform sink]", order)
	}
}

func TestTopoSort_BreaksTiesAlphabetically(t *testing.T) {
	components := []models.ComponentDef{{Name: "zebra"}, {Name: "alpha"}, {Name: "mike"}}
	order, err := supervisor.TopoSort(components, nil)
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}
	if !reflect.DeepEqual(order, []string{"alpha", "mike", "zebra"}) {
		t.Fatalf("TopoSort() = %v, want alphabetical order for independent components", order)
	}
}

func TestTopoSort_DetectsCycle(t *testing.T) {
	components := []models.ComponentDef{{Name: "a"}, {Name: "b"}}
	bindings := []models.Binding{
		{FromComponent: "a", ToComponent: "b"},
		{FromComponent: "b", ToComponent: "a"},
	}
	if _, err := supervisor.TopoSort(components, bindings); err == nil {
		t.Fatal("TopoSort() on a cyclic graph succeeded, want error")
	}
}

func TestTopoSort_IsDeterministicAcrossRuns(t *testing.T) {
	components := []models.ComponentDef{{Name: "c"}, {Name: "a"}, {Name: "b"}}
	bindings := []models.Binding{{FromComponent: "a", ToComponent: "c"}, {FromComponent: "b", ToComponent: "c"}}

	first, err := supervisor.TopoSort(components, bindings)
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := supervisor.TopoSort(components, bindings)
		if err != nil {
			t.Fatalf("TopoSort() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("TopoSort() run %d = %v, want %v (determinism smoke test)", i, again, first)
		}
	}
}
