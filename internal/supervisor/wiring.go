package supervisor

import (
	"fmt"

	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/pkg/models"
)

// Ports is the per-component port handles the harness hands to a shell
// component after wiring.
type Ports struct {
	Inputs  map[string]*port.InPort
	Outputs map[string]*port.OutPort
}

// Wire builds every declared port for every component, then connects
// them per the binding list, creating the shared channel each binding
// describes. A binding naming an undeclared port is a hard failure — the
// harness brings up all components or none.
func Wire(components []models.ComponentDef, bindings []models.Binding) (map[string]Ports, error) {
	built := make(map[string]Ports, len(components))
	outBySpec := make(map[string]map[string]*port.OutPort, len(components))
	inBySpec := make(map[string]map[string]*port.InPort, len(components))

	for _, c := range components {
		ins := make(map[string]*port.InPort, len(c.InputPorts))
		for _, spec := range c.InputPorts {
			ins[spec.Name] = port.NewInPort(spec)
		}
		outs := make(map[string]*port.OutPort, len(c.OutputPorts))
		for _, spec := range c.OutputPorts {
			outs[spec.Name] = port.NewOutPort(spec)
		}
		inBySpec[c.Name] = ins
		outBySpec[c.Name] = outs
		built[c.Name] = Ports{Inputs: ins, Outputs: outs}
	}

	for _, b := range bindings {
		fromOuts, ok := outBySpec[b.FromComponent]
		if !ok {
			return nil, fmt.Errorf("supervisor: binding references unknown component %q", b.FromComponent)
		}
		out, ok := fromOuts[b.FromPort]
		if !ok {
			return nil, fmt.Errorf("%s: component %q has no output port %q", models.ErrUnknownPort, b.FromComponent, b.FromPort)
		}
		toIns, ok := inBySpec[b.ToComponent]
		if !ok {
			return nil, fmt.Errorf("supervisor: binding references unknown component %q", b.ToComponent)
		}
		in, ok := toIns[b.ToPort]
		if !ok {
			return nil, fmt.Errorf("%s: component %q has no input port %q", models.ErrUnknownPort, b.ToComponent, b.ToPort)
		}
		if err := out.Connect(in); err != nil {
			return nil, fmt.Errorf("supervisor: wiring %s.%s -> %s.%s: %w", b.FromComponent, b.FromPort, b.ToComponent, b.ToPort, err)
		}
	}

	return built, nil
}
