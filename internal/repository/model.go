package repository

import "time"

type MixerStatus string

const (
	MixerStatusRunning MixerStatus = "running"
	MixerStatusClosed  MixerStatus = "closed"
)

type Mixer struct {
	ID        string
	RouterID  string
	Status    MixerStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
}

type MixerProducer struct {
	ProducerID string
	MixerID    string
	Kind       string
	Type       string
	Primary    bool
	AdmittedAt time.Time
	ReleasedAt *time.Time
}
