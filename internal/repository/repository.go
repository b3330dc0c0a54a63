package repository

import (
	"context"
	"time"
)

type CreateMixerInput struct {
	MixerID   string
	RouterID  string
	CreatedAt time.Time
}

type CompleteMixerInput struct {
	MixerID  string
	ClosedAt time.Time
}

type InsertProducerInput struct {
	ProducerID string
	MixerID    string
	Kind       string
	Type       string
	Primary    bool
	AdmittedAt time.Time
}

type ReleaseProducerInput struct {
	ProducerID string
	MixerID    string
	ReleasedAt time.Time
}

type MixerRepository interface {
	CreateMixer(ctx context.Context, input CreateMixerInput) (*Mixer, error)
	CompleteMixer(ctx context.Context, input CompleteMixerInput) error
	ListRunningMixers(ctx context.Context, routerID string) ([]Mixer, error)
}

type ProducerRepository interface {
	InsertProducer(ctx context.Context, input InsertProducerInput) error
	ReleaseProducer(ctx context.Context, input ReleaseProducerInput) error
	ListProducersByMixerID(ctx context.Context, mixerID string) ([]MixerProducer, error)
}

type Repository interface {
	MixerRepository
	ProducerRepository
}
