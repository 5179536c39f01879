package port

import (
	"context"
	"fmt"
	"sync"

	"github.com/autocoder/kernel/pkg/models"
)

// OutPort is an OUT endpoint: validated messages are sent to its paired
// Channel. It owns exactly one channel endpoint after Connect.
type OutPort struct {
	Spec    models.PortSpec
	channel *Channel

	mu     sync.Mutex
	closed bool
}

// NewOutPort builds an unconnected OUT port from its spec. Connect must
// be called before Send.
func NewOutPort(spec models.PortSpec) *OutPort {
	if spec.BufferSize <= 0 {
		spec.BufferSize = models.DefaultBufferSize
	}
	if spec.OverflowPolicy == "" {
		spec.OverflowPolicy = models.OverflowBlock
	}
	return &OutPort{Spec: spec}
}

// Connect pairs this OUT port with an IN port, creating the shared
// channel. Rejects mismatched schemas.
func (p *OutPort) Connect(in *InPort) error {
	if !Compatible(p.Spec.Schema, in.Spec.Schema) {
		return fmt.Errorf("port %q: schema %q incompatible with consumer %q's %q", p.Spec.Name, p.Spec.Schema.Name, in.Spec.Name, in.Spec.Schema.Name)
	}
	ch := NewChannelWithTimeout(p.Spec.BufferSize, p.Spec.OverflowPolicy, p.Spec.TimeoutMs)
	p.channel = ch
	in.channel = ch
	return nil
}

// Channel exposes the underlying channel once connected (used by the
// harness to wire capability kernels and by tests).
func (p *OutPort) Channel() *Channel { return p.channel }

// Send validates msg against the port's schema, then enqueues it per the
// port's overflow policy; dropped reports whether the overflow policy
// discarded msg itself. Callers normally reach Send through the
// capability kernel's SchemaValidator; Send re-validates defensively so a
// misconfigured capability chain cannot bypass the contract.
func (p *OutPort) Send(ctx context.Context, msg models.Message) (dropped bool, err error) {
	if err := ValidateSchema(p.Spec.Schema, msg); err != nil {
		return false, fmt.Errorf("port %q: %w", p.Spec.Name, err)
	}
	if p.channel == nil {
		return false, fmt.Errorf("port %q: not connected", p.Spec.Name)
	}
	return p.channel.Send(ctx, msg)
}

// Close signals end-of-stream on the paired channel. Idempotent.
func (p *OutPort) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.channel == nil {
		return
	}
	p.closed = true
	p.channel.Close()
}

// InPort is an IN endpoint: dequeues messages from its paired Channel.
type InPort struct {
	Spec    models.PortSpec
	channel *Channel
}

// NewInPort builds an unconnected IN port from its spec.
func NewInPort(spec models.PortSpec) *InPort {
	if spec.BufferSize <= 0 {
		spec.BufferSize = models.DefaultBufferSize
	}
	return &InPort{Spec: spec}
}

// Channel exposes the underlying channel once connected.
func (p *InPort) Channel() *Channel { return p.channel }

// Receive dequeues the next message, blocking until one is available or
// the channel closes and drains.
func (p *InPort) Receive(ctx context.Context) (models.Message, error) {
	if p.channel == nil {
		return models.Message{}, fmt.Errorf("port %q: not connected", p.Spec.Name)
	}
	return p.channel.Receive(ctx)
}

// TryReceive polls without blocking (used by Merger fairness scheduling).
func (p *InPort) TryReceive() (models.Message, bool) {
	if p.channel == nil {
		return models.Message{}, false
	}
	return p.channel.TryReceive()
}

// Drained reports whether this port's channel is closed and empty.
func (p *InPort) Drained() bool {
	if p.channel == nil {
		return true
	}
	return p.channel.Drained()
}
