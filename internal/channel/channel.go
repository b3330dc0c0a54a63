package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Method string

const (
	MethodMixerProduce Method = "mixer.produce"
	MethodMixerAdd     Method = "mixer.add"
	MethodMixerUpdate  Method = "mixer.update"
	MethodMixerRemove  Method = "mixer.remove"
	MethodMixerClose   Method = "mixer.close"
)

const EventProducerSend = "producer.send"

var ErrChannelClosed = errors.New("channel closed")

// Internal identifies the engine-side entities a request targets.
type Internal struct {
	RouterID        string `json:"routerId,omitempty"`
	MixerID         string `json:"mixerId,omitempty"`
	ProducerID      string `json:"producerId,omitempty"`
	MixerProducerID string `json:"mixerProducerId,omitempty"`
}

// RequestError is returned when the engine rejects a request.
type RequestError struct {
	Method Method
	Kind   string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("request %s rejected: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("request %s rejected (%s): %s", e.Method, e.Kind, e.Reason)
}

// Channel carries requests to the mixing engine and returns its acknowledgment payload.
type Channel interface {
	Request(ctx context.Context, method Method, internal Internal, data any) (json.RawMessage, error)
}

// PayloadChannel carries fire-and-forget notifications with a binary payload.
type PayloadChannel interface {
	Notify(ctx context.Context, event string, internal Internal, data any, payload []byte) error
}
