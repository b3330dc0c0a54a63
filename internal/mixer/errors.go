package mixer

import (
	"errors"
	"fmt"

	"github.com/foxseedlab/mixerd/internal/channel"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrValidation          = errors.New("rtp parameters validation failed")
	ErrNegotiation         = errors.New("rtp negotiation failed")
	ErrNotFound            = errors.New("producer not found")
	ErrTransportFailure    = errors.New("engine request failed")
	ErrClosed              = errors.New("mixer closed")
)

func transportFailure(method channel.Method, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransportFailure, method, err)
}
