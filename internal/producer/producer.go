package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/pion/rtp"
)

var ErrProducerClosed = errors.New("producer closed")

type Type string

const (
	TypeSimple    Type = "simple"
	TypeSimulcast Type = "simulcast"
	TypeSVC       Type = "svc"
	TypeMixer     Type = "mixer"
)

type Options struct {
	ID       string
	Internal channel.Internal
	Kind     ortc.MediaKind
	Type     Type

	// RtpParameters and ConsumableRtpParameters are nil when no negotiation took place.
	RtpParameters           *ortc.RtpParameters
	ConsumableRtpParameters *ortc.RtpParameters
	PayloadChannel          channel.PayloadChannel
	AppData                 any
}

// Producer is a handle to a media source living inside the engine.
type Producer struct {
	id         string
	internal   channel.Internal
	kind       ortc.MediaKind
	typ        Type
	rtp        *ortc.RtpParameters
	consumable *ortc.RtpParameters
	payload    channel.PayloadChannel
	appData    any

	mu                      sync.Mutex
	closed                  bool
	paused                  bool
	closeListeners          []func()
	transportCloseListeners []func()
}

func New(opts Options) *Producer {
	internal := opts.Internal
	internal.ProducerID = opts.ID
	return &Producer{
		id:         opts.ID,
		internal:   internal,
		kind:       opts.Kind,
		typ:        opts.Type,
		rtp:        opts.RtpParameters,
		consumable: opts.ConsumableRtpParameters,
		payload:    opts.PayloadChannel,
		appData:    opts.AppData,
	}
}

func (p *Producer) ID() string {
	return p.id
}

func (p *Producer) Kind() ortc.MediaKind {
	return p.kind
}

func (p *Producer) Type() Type {
	return p.typ
}

func (p *Producer) AppData() any {
	return p.appData
}

func (p *Producer) Internal() channel.Internal {
	return p.internal
}

func (p *Producer) RtpParameters() *ortc.RtpParameters {
	return p.rtp.Clone()
}

func (p *Producer) ConsumableRtpParameters() *ortc.RtpParameters {
	return p.consumable.Clone()
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *Producer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeListeners = append(p.closeListeners, fn)
}

func (p *Producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transportCloseListeners = append(p.transportCloseListeners, fn)
}

// Close closes the handle locally. Later calls are no-ops.
func (p *Producer) Close() {
	listeners, ok := p.markClosed(false)
	if !ok {
		return
	}
	slog.Debug("producer closed", "producer_id", p.id)
	for _, fn := range listeners {
		fn()
	}
}

// TransportClosed is called by the owner when the thing carrying the producer
// went away. Later calls are no-ops.
func (p *Producer) TransportClosed() {
	listeners, ok := p.markClosed(true)
	if !ok {
		return
	}
	slog.Debug("producer transport closed", "producer_id", p.id)
	for _, fn := range listeners {
		fn()
	}
}

func (p *Producer) markClosed(transport bool) ([]func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	p.closed = true
	listeners := p.closeListeners
	if transport {
		listeners = p.transportCloseListeners
	}
	p.closeListeners = nil
	p.transportCloseListeners = nil
	return listeners, true
}

// Send injects a raw RTP packet into the engine through the payload channel.
func (p *Producer) Send(ctx context.Context, packet []byte) error {
	if p.Closed() {
		return ErrProducerClosed
	}
	if p.payload == nil {
		return fmt.Errorf("producer %s has no payload channel", p.id)
	}
	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return fmt.Errorf("invalid rtp packet: %w", err)
	}
	return p.payload.Notify(ctx, channel.EventProducerSend, p.internal, nil, packet)
}
