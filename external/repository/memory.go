package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/foxseedlab/mixerd/internal/repository"
)

// MemoryRepository keeps lifecycle records in process. It is used when no
// database is configured.
type MemoryRepository struct {
	mu        sync.Mutex
	mixers    map[string]*repository.Mixer
	producers map[string][]*repository.MixerProducer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mixers:    make(map[string]*repository.Mixer),
		producers: make(map[string][]*repository.MixerProducer),
	}
}

func (r *MemoryRepository) CreateMixer(_ context.Context, input repository.CreateMixerInput) (*repository.Mixer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mixers[input.MixerID]; exists {
		return nil, fmt.Errorf("mixer %q already recorded", input.MixerID)
	}
	m := &repository.Mixer{
		ID:        input.MixerID,
		RouterID:  input.RouterID,
		Status:    repository.MixerStatusRunning,
		CreatedAt: input.CreatedAt,
	}
	r.mixers[m.ID] = m
	out := *m
	return &out, nil
}

func (r *MemoryRepository) CompleteMixer(_ context.Context, input repository.CompleteMixerInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mixers[input.MixerID]
	if !ok {
		return fmt.Errorf("mixer %q not recorded", input.MixerID)
	}
	closedAt := input.ClosedAt
	m.Status = repository.MixerStatusClosed
	m.ClosedAt = &closedAt
	return nil
}

func (r *MemoryRepository) ListRunningMixers(_ context.Context, routerID string) ([]repository.Mixer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []repository.Mixer
	for _, m := range r.mixers {
		if m.RouterID == routerID && m.Status == repository.MixerStatusRunning {
			list = append(list, *m)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r *MemoryRepository) InsertProducer(_ context.Context, input repository.InsertProducerInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mixers[input.MixerID]; !ok {
		return fmt.Errorf("mixer %q not recorded", input.MixerID)
	}
	r.producers[input.MixerID] = append(r.producers[input.MixerID], &repository.MixerProducer{
		ProducerID: input.ProducerID,
		MixerID:    input.MixerID,
		Kind:       input.Kind,
		Type:       input.Type,
		Primary:    input.Primary,
		AdmittedAt: input.AdmittedAt,
	})
	return nil
}

func (r *MemoryRepository) ReleaseProducer(_ context.Context, input repository.ReleaseProducerInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.producers[input.MixerID] {
		if p.ProducerID == input.ProducerID && p.ReleasedAt == nil {
			releasedAt := input.ReleasedAt
			p.ReleasedAt = &releasedAt
		}
	}
	return nil
}

func (r *MemoryRepository) ListProducersByMixerID(_ context.Context, mixerID string) ([]repository.MixerProducer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]repository.MixerProducer, 0, len(r.producers[mixerID]))
	for _, p := range r.producers[mixerID] {
		list = append(list, *p)
	}
	return list, nil
}
