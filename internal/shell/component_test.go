package shell_test

import (
	"context"
	"testing"
	"time"

	"github.com/autocoder/kernel/internal/capability"
	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/internal/primitive"
	"github.com/autocoder/kernel/internal/shell"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
	"github.com/rs/zerolog"
)

func kernelTriple(t *testing.T, component, portName string) [3]capability.Capability {
	t.Helper()
	return [3]capability.Capability{
		&capability.SchemaValidator{},
		capability.NewRateLimiter(1e6, 1e6, 0),
		capability.NewMetricsCollector(telemetry.NewRegistry(), component, portName),
	}
}

func wirePair(t *testing.T) (*port.OutPort, *port.InPort) {
	t.Helper()
	schema := models.Schema{Name: "evt"}
	out := port.NewOutPort(models.PortSpec{Name: "out", Direction: models.DirectionOut, Schema: schema, BufferSize: 4})
	in := port.NewInPort(models.PortSpec{Name: "in", Direction: models.DirectionIn, Schema: schema, BufferSize: 4})
	if err := out.Connect(in); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return out, in
}

func TestTransformer_PassesThroughAndAnnotates(t *testing.T) {
	in0, inPort := wirePair(t)
	outPort, out1 := wirePair(t)

	chain, err := capability.NewChain(kernelTriple(t, "upper", "out"))
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}

	logic := shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			msg.Fields["shout"] = true
			return msg, true, nil
		}),
	}

	c, err := shell.New("upper", models.PrimitiveTransformer, false, false,
		map[string]*port.InPort{"in": inPort},
		map[string]*port.OutPort{"out": outPort},
		chain, logic, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	if _, err := in0.Send(ctx, models.Message{ID: "1", Fields: map[string]any{}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	received, err := out1.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if received.ID != "1" {
		t.Fatalf("Receive().ID = %q, want %q", received.ID, "1")
	}
	if received.Fields["shout"] != true {
		t.Fatalf("Receive().Fields[shout] = %v, want true", received.Fields["shout"])
	}
}

func TestTransformer_DropForbiddenReportsError(t *testing.T) {
	in0, inPort := wirePair(t)
	outPort, _ := wirePair(t)

	chain, err := capability.NewChain(kernelTriple(t, "dropper", "out"))
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}

	logic := shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			return msg, false, nil
		}),
	}

	c, err := shell.New("dropper", models.PrimitiveTransformer, false, true,
		map[string]*port.InPort{"in": inPort},
		map[string]*port.OutPort{"out": outPort},
		chain, logic, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var reported models.ErrorEnvelope
	gotErr := make(chan struct{}, 1)
	c.OnError = func(env models.ErrorEnvelope) {
		reported = env
		select {
		case gotErr <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	if _, err := in0.Send(ctx, models.Message{ID: "1", Fields: map[string]any{}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-gotErr:
	case <-time.After(time.Second):
		t.Fatal("require_output drop never reported an error envelope")
	}
	if reported.Code != models.ErrDropForbidden {
		t.Fatalf("reported.Code = %q, want %q", reported.Code, models.ErrDropForbidden)
	}
}

func TestMerger_FairnessRoundRobinsAcrossInputs(t *testing.T) {
	inA0, inA := wirePair(t)
	inB0, inB := wirePair(t)
	outPort, outRecv := wirePair(t)

	chain, err := capability.NewChain(kernelTriple(t, "merge", "out"))
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}

	logic := shell.Logic{
		Merge: primitive.MergeFunc(func(ctx context.Context, fromPort string, msg models.Message) ([]models.Message, error) {
			msg.Fields["from"] = fromPort
			return []models.Message{msg}, nil
		}),
	}

	c, err := shell.New("merge", models.PrimitiveMerger, false, false,
		map[string]*port.InPort{"a": inA, "b": inB},
		map[string]*port.OutPort{"out": outPort},
		chain, logic, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.FairnessWindow = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := inA0.Send(ctx, models.Message{ID: "a", Fields: map[string]any{}}); err != nil {
			t.Fatalf("Send(a) error = %v", err)
		}
	}
	if _, err := inB0.Send(ctx, models.Message{ID: "b", Fields: map[string]any{}}); err != nil {
		t.Fatalf("Send(b) error = %v", err)
	}

	go func() { _ = c.Run(ctx) }()

	seenB := false
	for i := 0; i < 4; i++ {
		recvCtx, recvCancel := context.WithTimeout(ctx, time.Second)
		msg, err := outRecv.Receive(recvCtx)
		recvCancel()
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if msg.Fields["from"] == "b" {
			seenB = true
		}
	}
	if !seenB {
		t.Fatal("merger never serviced input port b within the fairness window, starvation")
	}
}
