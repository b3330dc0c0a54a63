package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/foxseedlab/mixerd/internal/producer"
	"github.com/google/uuid"
)

// CapabilitiesProvider returns the owning router's current RTP capabilities.
// It is called on every negotiation and never cached.
type CapabilitiesProvider func() *ortc.RtpCapabilities

type Options struct {
	RouterID       string
	MixerID        string
	Channel        channel.Channel
	PayloadChannel channel.PayloadChannel
	AppData        any

	// GetRouterRtpCapabilities enables negotiation. RtpParameters is then
	// required and describes the mixer's output track.
	GetRouterRtpCapabilities CapabilitiesProvider
	RtpParameters            *ortc.RtpParameters
}

type member struct {
	producer *producer.Producer
	layout   *RenderOptions
}

// Mixer drives one composition session in the engine. The first producer
// admitted through Produce is the primary; other producers are laid out on
// top of it with Add, Update and Remove.
type Mixer struct {
	routerID       string
	id             string
	managed        bool
	channel        channel.Channel
	payloadChannel channel.PayloadChannel
	appData        any
	getCaps        CapabilitiesProvider
	rtpParameters  *ortc.RtpParameters

	mu        sync.Mutex
	closed    bool
	admitting bool
	primaryID string
	producers map[string]*member
	busy      map[string]struct{}

	admittedListeners []func(*producer.Producer)
	releasedListeners []func(*producer.Producer)
	closeListeners    []func()
}

// New creates a managed mixer whose identity is chosen by the caller.
func New(opts Options) (*Mixer, error) {
	if opts.RouterID == "" || opts.MixerID == "" {
		return nil, fmt.Errorf("%w: router id and mixer id are required", ErrInvalidArgument)
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidArgument)
	}
	if opts.GetRouterRtpCapabilities != nil && opts.RtpParameters == nil {
		return nil, fmt.Errorf("%w: rtp parameters are required for negotiation", ErrInvalidArgument)
	}
	return &Mixer{
		routerID:       opts.RouterID,
		id:             opts.MixerID,
		managed:        true,
		channel:        opts.Channel,
		payloadChannel: opts.PayloadChannel,
		appData:        opts.AppData,
		getCaps:        opts.GetRouterRtpCapabilities,
		rtpParameters:  opts.RtpParameters.Clone(),
		producers:      make(map[string]*member),
		busy:           make(map[string]struct{}),
	}, nil
}

// NewUnmanaged creates a mixer whose identity is assigned by the engine. It
// keeps no registry and performs no negotiation.
func NewUnmanaged(ch channel.Channel, payloadChannel channel.PayloadChannel, appData any) *Mixer {
	return &Mixer{
		channel:        ch,
		payloadChannel: payloadChannel,
		appData:        appData,
		producers:      make(map[string]*member),
		busy:           make(map[string]struct{}),
	}
}
// ID returns the mixer id. An unmanaged mixer learns it from the engine on
// its first produce and reports "" until then.
func (m *Mixer) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *Mixer) RouterID() string {
	return m.routerID
}

func (m *Mixer) Managed() bool {
	return m.managed
}

func (m *Mixer) AppData() any {
	return m.appData
}

func (m *Mixer) RtpParameters() *ortc.RtpParameters {
	return m.rtpParameters.Clone()
}

func (m *Mixer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Admitting reports whether a produce request is waiting for the engine.
func (m *Mixer) Admitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitting
}

// PrimaryProducerID returns the id of the first admitted producer, or "".
func (m *Mixer) PrimaryProducerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primaryID
}

func (m *Mixer) Producer(id string) (*producer.Producer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.producers[id]
	if !ok {
		return nil, false
	}
	return mem.producer, true
}

// Producers lists registered producers, primary first.
func (m *Mixer) Producers() []*producer.Producer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Layout returns the render options of a secondary producer.
func (m *Mixer) Layout(id string) (RenderOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.producers[id]
	if !ok || mem.layout == nil {
		return RenderOptions{}, false
	}
	return *mem.layout, true
}

func (m *Mixer) OnProducerAdmitted(fn func(*producer.Producer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admittedListeners = append(m.admittedListeners, fn)
}

func (m *Mixer) OnProducerReleased(fn func(*producer.Producer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releasedListeners = append(m.releasedListeners, fn)
}

func (m *Mixer) OnClose(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeListeners = append(m.closeListeners, fn)
}

// awaitEngine runs op with a context that ignores the caller's cancellation,
// so the engine's answer is always applied to the registry. A caller that
// stops waiting gets a transport failure while op finishes in the background.
func awaitEngine[T any](ctx context.Context, mixerID string, method channel.Method, op func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(context.WithoutCancel(ctx))
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		slog.Warn("caller stopped waiting for engine; result is applied in background", "mixer_id", mixerID, "method", method, "error", ctx.Err())
		var zero T
		return zero, transportFailure(method, ctx.Err())
	}
}

type produceRequest struct {
	Kind          ortc.MediaKind      `json:"kind"`
	RtpParameters *ortc.RtpParameters `json:"rtpParameters,omitempty"`
	RtpMapping    *ortc.RtpMapping    `json:"rtpMapping,omitempty"`
	Paused        bool                `json:"paused"`
}

type produceResponse struct {
	MixerID    string        `json:"mixerId,omitempty"`
	ProducerID string        `json:"producerId,omitempty"`
	Type       producer.Type `json:"type,omitempty"`
}

type negotiation struct {
	params     *ortc.RtpParameters
	mapping    *ortc.RtpMapping
	consumable *ortc.RtpParameters
}

// Produce creates the mixer's output producer in the engine. Only video is
// accepted and a managed mixer admits at most one producer over its lifetime.
// The admission guard stays held until the engine answers, even when the
// caller gives up first.
func (m *Mixer) Produce(ctx context.Context, kind ortc.MediaKind) (*producer.Producer, error) {
	mixerID := m.ID()
	slog.Debug("mixer produce requested", "mixer_id", mixerID, "kind", kind)
	if kind != ortc.MediaKindVideo {
		return nil, fmt.Errorf("%w: invalid kind %q", ErrInvalidArgument, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, transportFailure(channel.MethodMixerProduce, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.managed {
		if m.admitting || m.primaryID != "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: no more than one producer allowed", ErrConstraintViolation)
		}
		m.admitting = true
	}
	m.mu.Unlock()

	return awaitEngine(ctx, mixerID, channel.MethodMixerProduce, func(ctx context.Context) (*producer.Producer, error) {
		p, err := m.produce(ctx, kind)
		if m.managed {
			m.mu.Lock()
			m.admitting = false
			m.mu.Unlock()
		}
		return p, err
	})
}

func (m *Mixer) produce(ctx context.Context, kind ortc.MediaKind) (*producer.Producer, error) {
	var neg *negotiation
	if m.getCaps != nil {
		var err error
		neg, err = m.negotiate(kind)
		if err != nil {
			return nil, err
		}
	}

	internal := channel.Internal{RouterID: m.routerID, MixerID: m.ID()}
	if m.managed {
		internal.ProducerID = uuid.NewString()
	}
	req := produceRequest{Kind: kind}
	if neg != nil {
		req.RtpParameters = neg.params
		req.RtpMapping = neg.mapping
	}

	raw, err := m.channel.Request(ctx, channel.MethodMixerProduce, internal, req)
	if err != nil {
		return nil, transportFailure(channel.MethodMixerProduce, err)
	}
	var resp produceResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, transportFailure(channel.MethodMixerProduce, fmt.Errorf("decode response: %w", err))
		}
	}
	if resp.Type == "" {
		resp.Type = producer.TypeSimple
	}
	if !m.managed {
		internal.ProducerID = resp.ProducerID
		if internal.ProducerID == "" {
			internal.ProducerID = uuid.NewString()
		}
		m.mu.Lock()
		if m.id == "" && resp.MixerID != "" {
			m.id = resp.MixerID
		}
		internal.MixerID = m.id
		m.mu.Unlock()
	}

	opts := producer.Options{
		ID:             internal.ProducerID,
		Internal:       internal,
		Kind:           kind,
		Type:           resp.Type,
		PayloadChannel: m.payloadChannel,
	}
	if neg != nil {
		opts.RtpParameters = neg.params
		opts.ConsumableRtpParameters = neg.consumable
	}
	p := producer.New(opts)

	if !m.managed {
		slog.Info("unmanaged mixer produced", "mixer_id", internal.MixerID, "producer_id", p.ID(), "type", p.Type())
		return p, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.discardLateProducer(ctx, p)
		return nil, ErrClosed
	}
	m.producers[p.ID()] = &member{producer: p}
	m.primaryID = p.ID()
	listeners := append([]func(*producer.Producer){}, m.admittedListeners...)
	m.mu.Unlock()

	slog.Info("mixer producer admitted", "mixer_id", m.id, "producer_id", p.ID(), "type", p.Type())
	for _, fn := range listeners {
		fn(p)
	}
	return p, nil
}

// discardLateProducer handles a produce ack that arrived after the mixer
// closed without a primary. The engine now holds a mixer that nobody will
// close, so it is closed here with the acknowledged producer as primary.
func (m *Mixer) discardLateProducer(ctx context.Context, p *producer.Producer) {
	slog.Warn("mixer closed while produce was in flight; discarding producer", "mixer_id", m.id, "producer_id", p.ID())
	internal := channel.Internal{RouterID: m.routerID, MixerID: m.id, MixerProducerID: p.ID()}
	if _, err := m.channel.Request(ctx, channel.MethodMixerClose, internal, nil); err != nil {
		slog.Warn("mixer close request for discarded producer failed", "mixer_id", m.id, "producer_id", p.ID(), "error", err)
	}
	p.TransportClosed()
}

func (m *Mixer) negotiate(kind ortc.MediaKind) (*negotiation, error) {
	params := m.rtpParameters.Clone()
	if err := ortc.ValidateRtpParameters(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	caps := m.getCaps()
	mapping, err := ortc.GetProducerRtpParametersMapping(params, caps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNegotiation, err)
	}
	return &negotiation{
		params:     params,
		mapping:    mapping,
		consumable: ortc.GetConsumableRtpParameters(kind, params, caps, mapping),
	}, nil
}

type addRequest struct {
	Kind   ortc.MediaKind `json:"kind"`
	Render RenderOptions  `json:"render"`
}

type updateRequest struct {
	Render RenderOptions `json:"render"`
}

// Add composites p into the output of the primary producer.
func (m *Mixer) Add(ctx context.Context, p *producer.Producer, kind ortc.MediaKind, opts RenderOptions) error {
	if p == nil {
		return fmt.Errorf("%w: producer is required", ErrInvalidArgument)
	}
	if kind != ortc.MediaKindVideo {
		return fmt.Errorf("%w: invalid kind %q", ErrInvalidArgument, kind)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return transportFailure(channel.MethodMixerAdd, err)
	}
	opts = opts.withDefaults()
	id := p.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.primaryID == "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: mixer has no primary producer", ErrConstraintViolation)
	}
	if p.Closed() {
		m.mu.Unlock()
		return fmt.Errorf("%w: producer %q is closed", ErrConstraintViolation, id)
	}
	if _, exists := m.producers[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: duplicate producer %q", ErrConstraintViolation, id)
	}
	if _, pending := m.busy[id]; pending {
		m.mu.Unlock()
		return fmt.Errorf("%w: duplicate producer %q", ErrConstraintViolation, id)
	}
	m.busy[id] = struct{}{}
	internal := m.internalLocked(id)
	m.mu.Unlock()

	_, err := awaitEngine(ctx, m.id, channel.MethodMixerAdd, func(ctx context.Context) (struct{}, error) {
		_, err := m.channel.Request(ctx, channel.MethodMixerAdd, internal, addRequest{Kind: kind, Render: opts})

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.busy, id)
		if err != nil {
			return struct{}{}, transportFailure(channel.MethodMixerAdd, err)
		}
		if m.closed {
			return struct{}{}, ErrClosed
		}
		m.producers[id] = &member{producer: p, layout: &opts}
		slog.Info("producer added to mix", "mixer_id", m.id, "producer_id", id, "x", opts.X, "y", opts.Y, "z", opts.Z, "mode", opts.Mode)
		return struct{}{}, nil
	})
	return err
}

// Update moves or resizes a secondary producer.
func (m *Mixer) Update(ctx context.Context, producerID string, opts RenderOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return transportFailure(channel.MethodMixerUpdate, err)
	}
	opts = opts.withDefaults()

	internal, err := m.reserveSecondary(producerID)
	if err != nil {
		return err
	}
	_, err = awaitEngine(ctx, internal.MixerID, channel.MethodMixerUpdate, func(ctx context.Context) (struct{}, error) {
		_, err := m.channel.Request(ctx, channel.MethodMixerUpdate, internal, updateRequest{Render: opts})

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.busy, producerID)
		if err != nil {
			return struct{}{}, transportFailure(channel.MethodMixerUpdate, err)
		}
		if m.closed {
			return struct{}{}, ErrClosed
		}
		if mem, ok := m.producers[producerID]; ok {
			mem.layout = &opts
		}
		slog.Info("producer layout updated", "mixer_id", m.id, "producer_id", producerID, "x", opts.X, "y", opts.Y, "z", opts.Z, "mode", opts.Mode)
		return struct{}{}, nil
	})
	return err
}

// Remove takes a secondary producer out of the mix.
func (m *Mixer) Remove(ctx context.Context, producerID string) error {
	if err := ctx.Err(); err != nil {
		return transportFailure(channel.MethodMixerRemove, err)
	}
	internal, err := m.reserveSecondary(producerID)
	if err != nil {
		return err
	}
	_, err = awaitEngine(ctx, internal.MixerID, channel.MethodMixerRemove, func(ctx context.Context) (struct{}, error) {
		_, err := m.channel.Request(ctx, channel.MethodMixerRemove, internal, nil)

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.busy, producerID)
		if err != nil {
			return struct{}{}, transportFailure(channel.MethodMixerRemove, err)
		}
		if m.closed {
			return struct{}{}, ErrClosed
		}
		delete(m.producers, producerID)
		slog.Info("producer removed from mix", "mixer_id", m.id, "producer_id", producerID)
		return struct{}{}, nil
	})
	return err
}

func (m *Mixer) reserveSecondary(producerID string) (channel.Internal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return channel.Internal{}, ErrClosed
	}
	if _, ok := m.producers[producerID]; !ok {
		return channel.Internal{}, fmt.Errorf("%w: %q", ErrNotFound, producerID)
	}
	if producerID == m.primaryID {
		return channel.Internal{}, fmt.Errorf("%w: primary producer %q has no render slot", ErrConstraintViolation, producerID)
	}
	if _, pending := m.busy[producerID]; pending {
		return channel.Internal{}, fmt.Errorf("%w: producer %q has a request in flight", ErrConstraintViolation, producerID)
	}
	m.busy[producerID] = struct{}{}
	return m.internalLocked(producerID), nil
}

func (m *Mixer) internalLocked(producerID string) channel.Internal {
	return channel.Internal{
		RouterID:        m.routerID,
		MixerID:         m.id,
		ProducerID:      producerID,
		MixerProducerID: m.primaryID,
	}
}

// Close tears the mixer down. A managed mixer must have admitted its primary
// producer first. Engine failures are logged, never returned, and a second
// call does nothing. An unmanaged mixer the engine never named is closed
// locally.
func (m *Mixer) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if m.managed && m.primaryID == "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: mixer has no primary producer", ErrConstraintViolation)
	}
	m.closed = true
	internal := channel.Internal{RouterID: m.routerID, MixerID: m.id, MixerProducerID: m.primaryID}
	m.mu.Unlock()

	if internal.MixerID == "" {
		slog.Info("closing unnamed mixer locally")
		m.release()
		return nil
	}
	slog.Info("closing mixer", "mixer_id", internal.MixerID, "primary_producer_id", internal.MixerProducerID)
	if _, err := m.channel.Request(ctx, channel.MethodMixerClose, internal, nil); err != nil {
		slog.Warn("mixer close request failed", "mixer_id", internal.MixerID, "error", err)
	}
	m.release()
	return nil
}

// RouterClosed closes the mixer locally, with no engine request. The owner
// calls it for mixers the engine holds no state for. A produce that is still
// in flight closes its engine-side mixer itself once acknowledged.
func (m *Mixer) RouterClosed() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	id := m.id
	m.mu.Unlock()

	slog.Info("mixer closed locally", "mixer_id", id)
	m.release()
}

func (m *Mixer) release() {
	m.mu.Lock()
	members := m.snapshotLocked()
	m.producers = make(map[string]*member)
	released := append([]func(*producer.Producer){}, m.releasedListeners...)
	closed := append([]func(){}, m.closeListeners...)
	m.admittedListeners = nil
	m.releasedListeners = nil
	m.closeListeners = nil
	m.mu.Unlock()

	for _, p := range members {
		p.TransportClosed()
		for _, fn := range released {
			fn(p)
		}
	}
	for _, fn := range closed {
		fn()
	}
}

func (m *Mixer) snapshotLocked() []*producer.Producer {
	out := make([]*producer.Producer, 0, len(m.producers))
	if mem, ok := m.producers[m.primaryID]; ok {
		out = append(out, mem.producer)
	}
	ids := make([]string, 0, len(m.producers))
	for id := range m.producers {
		if id != m.primaryID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, m.producers[id].producer)
	}
	return out
}
