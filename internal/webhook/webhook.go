package webhook

import (
	"context"
	"time"
)

// EventMixerClosed names the mixer-closed notification in the event header.
const EventMixerClosed = "mixer.closed"

type MixerClosedPayload struct {
	Event             string    `json:"event"`
	RouterID          string    `json:"router_id"`
	MixerID           string    `json:"mixer_id"`
	PrimaryProducerID string    `json:"primary_producer_id,omitempty"`
	ProducerIDs       []string  `json:"producer_ids"`
	CreatedAt         time.Time `json:"created_at"`
	ClosedAt          time.Time `json:"closed_at"`
	DurationSeconds   int64     `json:"duration_seconds"`
}

type Sender interface {
	SendMixerClosed(ctx context.Context, payload MixerClosedPayload) error
}
