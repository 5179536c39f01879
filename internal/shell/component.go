// Package shell implements the uniform component shell every generated
// component runs inside: configure_ports, setup, the five
// primitive process loops, and cleanup. The shell is the only caller of
// a component's business-logic hook and the only caller of the
// capability kernel's Chain.Process.
package shell

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/autocoder/kernel/internal/capability"
	"github.com/autocoder/kernel/internal/errors"
	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/internal/primitive"
	"github.com/autocoder/kernel/pkg/models"
	"github.com/rs/zerolog"
)

// DefaultMergerFairnessWindow bounds consecutive picks from one input port
// before a Merger is forced to poll the others.
const DefaultMergerFairnessWindow = 8

// Logic bundles the one business-logic hook a ComponentDef's MethodSlot
// names, plus the optional setup/cleanup lifecycle hooks every primitive
// may define. Exactly one of Produce/Consume/Transform/Split/Merge
// matches the component's Primitive.
type Logic struct {
	Setup   func(ctx context.Context, config map[string]any) error
	Cleanup func()

	Produce   primitive.ProduceFunc
	Consume   primitive.ConsumeFunc
	Transform primitive.TransformFunc
	Split     primitive.SplitFunc
	Merge     primitive.MergeFunc
}

// Component is the uniform runtime shell wrapping one business-logic hook
// with its ports and capability chain.
type Component struct {
	Name          string
	Primitive     models.Primitive
	Terminal      bool
	RequireOutput bool

	Inputs  map[string]*port.InPort
	Outputs map[string]*port.OutPort
	Chain   *capability.Chain
	Logic   Logic
	Config  map[string]any

	FairnessWindow int
	Logger         zerolog.Logger

	// OnError receives every ErrorEnvelope the shell builds. kernel.Assemble
	// installs a handler that logs the envelope; the envelope does not stop
	// the component or the harness. Tests may install their own.
	OnError func(models.ErrorEnvelope)
}

// New validates that exactly the hook matching def.Primitive is set and
// builds a Component.
func New(name string, prim models.Primitive, terminal, requireOutput bool, inputs map[string]*port.InPort, outputs map[string]*port.OutPort, chain *capability.Chain, logic Logic, logger zerolog.Logger) (*Component, error) {
	if err := validateLogic(prim, logic); err != nil {
		return nil, err
	}
	return &Component{
		Name:           name,
		Primitive:      prim,
		Terminal:       terminal,
		RequireOutput:  requireOutput,
		Inputs:         inputs,
		Outputs:        outputs,
		Chain:          chain,
		Logic:          logic,
		Config:         map[string]any{},
		FairnessWindow: DefaultMergerFairnessWindow,
		Logger:         logger,
		OnError:        func(models.ErrorEnvelope) {},
	}, nil
}

// Setup runs the component's optional setup hook, if any, before Run is
// started; the harness waits until every component reports ready or
// aborts on the first failure. A component with no Setup hook is
// immediately ready.
func (c *Component) Setup(ctx context.Context) error {
	if c.Logic.Setup == nil {
		return nil
	}
	if err := c.Logic.Setup(ctx, c.Config); err != nil {
		return fmt.Errorf("%s: setup: %w", c.Name, err)
	}
	return nil
}

func validateLogic(prim models.Primitive, logic Logic) error {
	switch prim {
	case models.PrimitiveSource:
		if logic.Produce == nil {
			return fmt.Errorf("component: primitive %q requires a Produce hook", prim)
		}
	case models.PrimitiveSink:
		if logic.Consume == nil {
			return fmt.Errorf("component: primitive %q requires a Consume hook", prim)
		}
	case models.PrimitiveTransformer:
		if logic.Transform == nil {
			return fmt.Errorf("component: primitive %q requires a Transform hook", prim)
		}
	case models.PrimitiveSplitter:
		if logic.Split == nil {
			return fmt.Errorf("component: primitive %q requires a Split hook", prim)
		}
	case models.PrimitiveMerger:
		if logic.Merge == nil {
			return fmt.Errorf("component: primitive %q requires a Merge hook", prim)
		}
	default:
		return fmt.Errorf("component: unknown primitive %q", prim)
	}
	return nil
}

// Run dispatches to the process loop matching the component's primitive
// and blocks until ctx is canceled or the loop exits on its own (source
// exhaustion, input closure).
func (c *Component) Run(ctx context.Context) error {
	switch c.Primitive {
	case models.PrimitiveSource:
		return c.runSource(ctx)
	case models.PrimitiveSink:
		return c.runSink(ctx)
	case models.PrimitiveTransformer:
		return c.runTransformer(ctx)
	case models.PrimitiveSplitter:
		return c.runSplitter(ctx)
	case models.PrimitiveMerger:
		return c.runMerger(ctx)
	default:
		return fmt.Errorf("component %s: unknown primitive %q", c.Name, c.Primitive)
	}
}

// Cleanup runs the component's optional cleanup hook, then closes every
// output port owned by this component, signaling end-of-stream
// downstream.
func (c *Component) Cleanup() {
	if c.Logic.Cleanup != nil {
		c.Logic.Cleanup()
	}
	for _, out := range c.Outputs {
		out.Close()
	}
}

func (c *Component) outPort(name string) (*port.OutPort, error) {
	out, ok := c.Outputs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", c.Name, errCode(models.ErrUnknownPort), name)
	}
	return out, nil
}

func errCode(code models.ErrorCode) error { return fmt.Errorf("%s", code) }

func (c *Component) reportError(port string, code models.ErrorCode, cause error, msg models.Message, retryable bool) {
	env := errors.New(c.Name, port, code, cause, msg, retryable)
	c.OnError(env)
}

// runSource drives the Produce hook until ctx is canceled; each emitted
// item is pushed through the capability chain before reaching the
// port.
func (c *Component) runSource(ctx context.Context) error {
	emit := func(portName string, msg models.Message) error {
		out, err := c.outPort(portName)
		if err != nil {
			c.reportError(portName, models.ErrUnknownPort, err, msg, false)
			return err
		}
		pc := &capability.ProcessContext{Component: c.Name, Port: portName}
		_, _, err = c.Chain.Process(ctx, pc, msg, func(ctx context.Context, m models.Message) (models.Message, bool, error) {
			sendDropped, sendErr := out.Send(ctx, m)
			if sendDropped {
				pc.PolicyDrop = true
			}
			return m, sendDropped, sendErr
		})
		if err != nil {
			c.reportError(portName, models.ErrSchemaValidation, err, msg, isRetryable(err))
			return err
		}
		return nil
	}
	return c.Logic.Produce(ctx, emit)
}

// runSink pulls from every declared input port concurrently, feeding each
// arrival through the capability chain and then the Consume hook.
func (c *Component) runSink(ctx context.Context) error {
	errCh := make(chan error, len(c.Inputs))
	for name, in := range c.Inputs {
		go func(portName string, in *port.InPort) {
			errCh <- c.sinkLoop(ctx, portName, in)
		}(name, in)
	}
	var firstErr error
	for range c.Inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Component) sinkLoop(ctx context.Context, portName string, in *port.InPort) error {
	for {
		msg, err := in.Receive(ctx)
		if err != nil {
			if err == port.ErrClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		pc := &capability.ProcessContext{Component: c.Name, Port: portName}
		_, _, err = c.Chain.Process(ctx, pc, msg, func(ctx context.Context, m models.Message) (models.Message, bool, error) {
			consumeErr := c.Logic.Consume(ctx, portName, m)
			return m, false, consumeErr
		})
		if err != nil {
			c.reportError(portName, models.ErrSchemaValidation, err, msg, isRetryable(err))
		}
	}
}

// runTransformer reads a single input port, applies the capability chain
// around the Transform hook, and forwards kept results to the single
// output port. The forward send happens inside the chain hook so a
// policy drop or send failure is accounted like any other item outcome.
func (c *Component) runTransformer(ctx context.Context) error {
	in, inName := c.soleInput()
	out, _ := c.soleOutput()

	for {
		msg, err := in.Receive(ctx)
		if err != nil {
			if err == port.ErrClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		pc := &capability.ProcessContext{Component: c.Name, Port: inName}
		_, dropped, err := c.Chain.Process(ctx, pc, msg, func(ctx context.Context, m models.Message) (models.Message, bool, error) {
			result, keep, transformErr := c.Logic.Transform(ctx, m)
			if transformErr != nil || !keep {
				return result, !keep, transformErr
			}
			if out == nil || out.Channel() == nil {
				// A Transformer's declared out port left unbound by the
				// Blueprint (e.g. Store acting as a terminal sink):
				// nothing downstream subscribes, so the result is simply
				// not forwarded rather than treated as a send failure.
				return result, false, nil
			}
			sendDropped, sendErr := out.Send(ctx, result)
			if sendDropped {
				pc.PolicyDrop = true
			}
			return result, sendDropped, sendErr
		})
		if err != nil {
			c.reportError(inName, models.ErrSchemaValidation, err, msg, isRetryable(err))
			continue
		}
		if dropped && !pc.PolicyDrop && c.RequireOutput {
			dropErr := fmt.Errorf("%s: dropped an item while require_output is set", errCode(models.ErrDropForbidden))
			c.reportError(inName, models.ErrDropForbidden, dropErr, msg, false)
		}
	}
}

// runSplitter reads the single input port and, for each declared output
// port the Split hook emits to, runs that emission through its own
// capability-chain invocation — each destination gets independent schema
// validation, rate limiting, and metrics.
func (c *Component) runSplitter(ctx context.Context) error {
	in, inName := c.soleInput()

	for {
		msg, err := in.Receive(ctx)
		if err != nil {
			if err == port.ErrClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		outputs, err := c.Logic.Split(ctx, msg)
		if err != nil {
			c.reportError(inName, models.ErrSchemaValidation, err, msg, isRetryable(err))
			continue
		}
		for portName, out := range outputs {
			dst, destErr := c.outPort(portName)
			if destErr != nil {
				c.reportError(portName, models.ErrUnknownPort, destErr, out, false)
				continue
			}
			pc := &capability.ProcessContext{Component: c.Name, Port: portName}
			_, _, sendErr := c.Chain.Process(ctx, pc, out, func(ctx context.Context, m models.Message) (models.Message, bool, error) {
				sendDropped, err := dst.Send(ctx, m)
				if sendDropped {
					pc.PolicyDrop = true
				}
				return m, sendDropped, err
			})
			if sendErr != nil {
				c.reportError(portName, models.ErrSchemaValidation, sendErr, out, isRetryable(sendErr))
			}
		}
	}
}

// runMerger fans in every input port to the single output port, round-
// robin across ports with a bounded run length per port so no single
// producer starves the others.
func (c *Component) runMerger(ctx context.Context) error {
	out, outName := c.soleOutput()
	names := make([]string, 0, len(c.Inputs))
	for name := range c.Inputs {
		names = append(names, name)
	}
	// Stable rotation order: map iteration order would make the
	// interleaving vary run-to-run.
	sort.Strings(names)

	window := c.FairnessWindow
	if window <= 0 {
		window = DefaultMergerFairnessWindow
	}

	idx := 0
	consecutive := 0
	emptyRound := 0
	closed := make(map[string]bool, len(names))

	for {
		if len(closed) == len(names) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		portName := names[idx%len(names)]
		in := c.Inputs[portName]

		if closed[portName] {
			idx++
			continue
		}

		msg, ok := in.TryReceive()
		if !ok {
			if in.Drained() {
				closed[portName] = true
			}
			idx++
			consecutive = 0
			emptyRound++
			if emptyRound >= len(names) {
				emptyRound = 0
				time.Sleep(time.Millisecond)
			}
			continue
		}
		emptyRound = 0

		consecutive++
		if consecutive >= window {
			idx++
			consecutive = 0
		}

		pc := &capability.ProcessContext{Component: c.Name, Port: portName}
		var produced []models.Message
		_, _, err := c.Chain.Process(ctx, pc, msg, func(ctx context.Context, m models.Message) (models.Message, bool, error) {
			outs, mergeErr := c.Logic.Merge(ctx, portName, m)
			if mergeErr != nil {
				return m, false, mergeErr
			}
			produced = outs
			return m, false, nil
		})
		if err != nil {
			c.reportError(portName, models.ErrSchemaValidation, err, msg, isRetryable(err))
			continue
		}
		for _, m := range produced {
			if out == nil {
				continue
			}
			if _, sendErr := out.Send(ctx, m); sendErr != nil {
				c.reportError(outName, models.ErrUnknownPort, sendErr, m, isRetryable(sendErr))
			}
		}
	}
}

func (c *Component) soleInput() (*port.InPort, string) {
	for name, in := range c.Inputs {
		return in, name
	}
	return nil, ""
}

func (c *Component) soleOutput() (*port.OutPort, string) {
	for name, out := range c.Outputs {
		return out, name
	}
	return nil, ""
}

// isRetryable classifies only a channel ingress timeout
// (port.ErrIngressTimeout) as retryable; every other error, including a
// closed channel or a schema error, is not.
func isRetryable(err error) bool {
	return err == port.ErrIngressTimeout
}
