package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/foxseedlab/mixerd/internal/mixer"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/foxseedlab/mixerd/internal/producer"
	"github.com/foxseedlab/mixerd/internal/repository"
	"github.com/foxseedlab/mixerd/internal/webhook"
	"github.com/google/uuid"
)

const recordTimeout = 5 * time.Second

var (
	ErrRouterClosed  = errors.New("router closed")
	ErrMixerNotFound = errors.New("mixer not found")
)

type Options struct {
	ID             string
	Channel        channel.Channel
	PayloadChannel channel.PayloadChannel
	MediaCodecs    []*ortc.RtpCodecCapability
	OutputMimeType string
	Repository     repository.Repository
	Webhook        webhook.Sender
}

type CreateMixerOptions struct {
	// MixerID is generated when empty.
	MixerID string
	AppData any
}

// Router owns the mixers of one engine router and keeps the producer
// registry that Add looks secondary producers up in.
type Router struct {
	id             string
	channel        channel.Channel
	payloadChannel channel.PayloadChannel
	outputMimeType string
	repo           repository.Repository
	webhook        webhook.Sender

	mu        sync.RWMutex
	closed    bool
	caps      *ortc.RtpCapabilities
	mixers    map[string]*runningMixer
	producers map[string]*ownedProducer

	notifications sync.WaitGroup
}

type runningMixer struct {
	mixer     *mixer.Mixer
	createdAt time.Time

	mu        sync.Mutex
	primaryID string
	released  []string
}

type ownedProducer struct {
	producer *producer.Producer
	mixerID  string
}

func New(opts Options) (*Router, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("%w: router id is required", mixer.ErrInvalidArgument)
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("%w: channel is required", mixer.ErrInvalidArgument)
	}
	if opts.Repository == nil || opts.Webhook == nil {
		return nil, fmt.Errorf("%w: repository and webhook are required", mixer.ErrInvalidArgument)
	}
	caps, err := ortc.GenerateRouterRtpCapabilities(opts.MediaCodecs)
	if err != nil {
		return nil, err
	}
	return &Router{
		id:             opts.ID,
		channel:        opts.Channel,
		payloadChannel: opts.PayloadChannel,
		outputMimeType: opts.OutputMimeType,
		repo:           opts.Repository,
		webhook:        opts.Webhook,
		caps:           caps,
		mixers:         make(map[string]*runningMixer),
		producers:      make(map[string]*ownedProducer),
	}, nil
}

func (r *Router) ID() string {
	return r.id
}

// RtpCapabilities returns the current capabilities. Mixers read them through
// this method on every negotiation.
func (r *Router) RtpCapabilities() *ortc.RtpCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// UpdateRtpCapabilities regenerates the capabilities from a new codec list.
// Mixers that already produced keep their output parameters.
func (r *Router) UpdateRtpCapabilities(mediaCodecs []*ortc.RtpCodecCapability) error {
	caps, err := ortc.GenerateRouterRtpCapabilities(mediaCodecs)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.caps = caps
	r.mu.Unlock()
	slog.Info("router rtp capabilities updated", "router_id", r.id, "codecs", len(caps.Codecs))
	return nil
}

// RecoverOrphans completes mixers left running by a previous process that
// used the same router id, releasing their producer records too.
func (r *Router) RecoverOrphans(ctx context.Context) error {
	orphans, err := r.repo.ListRunningMixers(ctx, r.id)
	if err != nil {
		return fmt.Errorf("failed to list running mixers: %w", err)
	}
	now := time.Now()
	for _, o := range orphans {
		slog.Warn("found orphan running mixer in repository; completing", "mixer_id", o.ID, "router_id", r.id)
		producers, err := r.repo.ListProducersByMixerID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("failed to list producers of orphan mixer %s: %w", o.ID, err)
		}
		for _, p := range producers {
			if p.ReleasedAt != nil {
				continue
			}
			if err := r.repo.ReleaseProducer(ctx, repository.ReleaseProducerInput{
				ProducerID: p.ProducerID,
				MixerID:    o.ID,
				ReleasedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to release producer %s of orphan mixer %s: %w", p.ProducerID, o.ID, err)
			}
		}
		if err := r.repo.CompleteMixer(ctx, repository.CompleteMixerInput{MixerID: o.ID, ClosedAt: now}); err != nil {
			return fmt.Errorf("failed to complete orphan mixer %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *Router) CreateMixer(ctx context.Context, opts CreateMixerOptions) (*mixer.Mixer, error) {
	id := opts.MixerID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRouterClosed
	}
	if _, exists := r.mixers[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: mixer %q already exists", mixer.ErrConstraintViolation, id)
	}
	params, err := ortc.NewOutputRtpParameters(r.caps, r.outputMimeType, id)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", mixer.ErrInvalidArgument, err)
	}
	m, err := mixer.New(mixer.Options{
		RouterID:                 r.id,
		MixerID:                  id,
		Channel:                  r.channel,
		PayloadChannel:           r.payloadChannel,
		AppData:                  opts.AppData,
		GetRouterRtpCapabilities: r.RtpCapabilities,
		RtpParameters:            params,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	rm := &runningMixer{mixer: m, createdAt: time.Now()}
	r.mixers[id] = rm
	r.mu.Unlock()

	m.OnProducerAdmitted(func(p *producer.Producer) { r.handleAdmitted(rm, p) })
	m.OnProducerReleased(func(p *producer.Producer) { r.handleReleased(rm, p) })
	m.OnClose(func() { r.handleMixerClosed(rm) })

	if _, err := r.repo.CreateMixer(ctx, repository.CreateMixerInput{
		MixerID:   id,
		RouterID:  r.id,
		CreatedAt: rm.createdAt,
	}); err != nil {
		slog.Error("failed to record mixer", "error", err, "mixer_id", id)
	}
	slog.Info("mixer created", "router_id", r.id, "mixer_id", id, "output_mime_type", r.outputMimeType)
	return m, nil
}

func (r *Router) Mixer(id string) (*mixer.Mixer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.mixers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMixerNotFound, id)
	}
	return rm.mixer, nil
}

// Mixers returns the open mixers ordered by creation time.
func (r *Router) Mixers() []*mixer.Mixer {
	r.mu.RLock()
	list := make([]*runningMixer, 0, len(r.mixers))
	for _, rm := range r.mixers {
		list = append(list, rm)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].createdAt.Equal(list[j].createdAt) {
			return list[i].mixer.ID() < list[j].mixer.ID()
		}
		return list[i].createdAt.Before(list[j].createdAt)
	})
	out := make([]*mixer.Mixer, 0, len(list))
	for _, rm := range list {
		out = append(out, rm.mixer)
	}
	return out
}

// Producer looks up a producer admitted by any mixer of this router.
func (r *Router) Producer(id string) (*producer.Producer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.producers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", mixer.ErrNotFound, id)
	}
	return op.producer, nil
}

// CloseMixer closes a mixer. A mixer that never produced has no engine state
// and is dropped locally; one whose produce is still in flight is refused.
func (r *Router) CloseMixer(ctx context.Context, id string) error {
	m, err := r.Mixer(id)
	if err != nil {
		return err
	}
	return closeMixer(ctx, m)
}

func closeMixer(ctx context.Context, m *mixer.Mixer) error {
	if m.PrimaryProducerID() != "" {
		return m.Close(ctx)
	}
	if m.Admitting() {
		return fmt.Errorf("%w: mixer %q has a produce in flight", mixer.ErrConstraintViolation, m.ID())
	}
	m.RouterClosed()
	return nil
}

// Close closes every mixer, sending mixer.close for those the engine knows,
// and waits for pending closure notifications. Further calls do nothing.
func (r *Router) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	list := make([]*mixer.Mixer, 0, len(r.mixers))
	for _, rm := range r.mixers {
		list = append(list, rm.mixer)
	}
	r.mu.Unlock()

	slog.Info("closing router", "router_id", r.id, "mixers", len(list))
	for _, m := range list {
		if err := closeMixer(ctx, m); err != nil {
			// A produce still in flight closes the engine mixer itself once acked.
			slog.Warn("mixer close deferred to in-flight produce", "mixer_id", m.ID(), "error", err)
			m.RouterClosed()
		}
	}

	done := make(chan struct{})
	go func() {
		r.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("router close gave up waiting for notifications", "router_id", r.id, "error", ctx.Err())
	}
}

func (r *Router) handleAdmitted(rm *runningMixer, p *producer.Producer) {
	mixerID := rm.mixer.ID()
	rm.mu.Lock()
	rm.primaryID = p.ID()
	rm.mu.Unlock()

	r.mu.Lock()
	r.producers[p.ID()] = &ownedProducer{producer: p, mixerID: mixerID}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.repo.InsertProducer(ctx, repository.InsertProducerInput{
		ProducerID: p.ID(),
		MixerID:    mixerID,
		Kind:       string(p.Kind()),
		Type:       string(p.Type()),
		Primary:    true,
		AdmittedAt: time.Now(),
	}); err != nil {
		slog.Error("failed to record producer", "error", err, "mixer_id", mixerID, "producer_id", p.ID())
	}
}

func (r *Router) handleReleased(rm *runningMixer, p *producer.Producer) {
	mixerID := rm.mixer.ID()
	rm.mu.Lock()
	rm.released = append(rm.released, p.ID())
	rm.mu.Unlock()

	r.mu.Lock()
	owned := false
	if op, ok := r.producers[p.ID()]; ok && op.mixerID == mixerID {
		delete(r.producers, p.ID())
		owned = true
	}
	r.mu.Unlock()
	if !owned {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.repo.ReleaseProducer(ctx, repository.ReleaseProducerInput{
		ProducerID: p.ID(),
		MixerID:    mixerID,
		ReleasedAt: time.Now(),
	}); err != nil {
		slog.Error("failed to record producer release", "error", err, "mixer_id", mixerID, "producer_id", p.ID())
	}
}

func (r *Router) handleMixerClosed(rm *runningMixer) {
	mixerID := rm.mixer.ID()
	r.mu.Lock()
	delete(r.mixers, mixerID)
	r.mu.Unlock()

	closedAt := time.Now()
	rm.mu.Lock()
	payload := webhook.MixerClosedPayload{
		RouterID:          r.id,
		MixerID:           mixerID,
		PrimaryProducerID: rm.primaryID,
		ProducerIDs:       append([]string{}, rm.released...),
		CreatedAt:         rm.createdAt,
		ClosedAt:          closedAt,
		DurationSeconds:   int64(closedAt.Sub(rm.createdAt).Seconds()),
	}
	rm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.repo.CompleteMixer(ctx, repository.CompleteMixerInput{MixerID: mixerID, ClosedAt: closedAt}); err != nil {
		slog.Error("failed to complete mixer", "error", err, "mixer_id", mixerID)
	}
	slog.Info("mixer closed", "router_id", r.id, "mixer_id", mixerID, "producers", len(payload.ProducerIDs))

	r.notifications.Add(1)
	go func() {
		defer r.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.webhook.SendMixerClosed(ctx, payload); err != nil {
			slog.Error("failed to send mixer closed webhook", "error", err, "mixer_id", mixerID)
		}
	}()
}
