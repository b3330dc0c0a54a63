package api

import (
	"errors"
	"net/http"

	"github.com/foxseedlab/mixerd/internal/mixer"
	"github.com/foxseedlab/mixerd/internal/router"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, mixer.ErrInvalidArgument), errors.Is(err, mixer.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, mixer.ErrNotFound), errors.Is(err, router.ErrMixerNotFound):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrConstraintViolation), errors.Is(err, mixer.ErrClosed), errors.Is(err, router.ErrRouterClosed):
		return http.StatusConflict
	case errors.Is(err, mixer.ErrNegotiation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mixer.ErrTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), ErrorResponse{Error: err.Error()})
}

func abortWithBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
