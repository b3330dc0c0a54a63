package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/mixerd/internal/mixer"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/foxseedlab/mixerd/internal/producer"
	"github.com/foxseedlab/mixerd/internal/router"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Router is the part of the mixer aggregator the HTTP surface drives.
type Router interface {
	RtpCapabilities() *ortc.RtpCapabilities
	CreateMixer(ctx context.Context, opts router.CreateMixerOptions) (*mixer.Mixer, error)
	Mixer(id string) (*mixer.Mixer, error)
	Mixers() []*mixer.Mixer
	Producer(id string) (*producer.Producer, error)
	CloseMixer(ctx context.Context, id string) error
}

type Server struct {
	engine *gin.Engine
	addr   string
	router Router
	http   *http.Server
}

func NewServer(addr string, r Router, development bool) *Server {
	if development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	s := &Server{
		engine: engine,
		addr:   addr,
		router: r,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/capabilities", s.GetCapabilitiesHandler)
		v1.POST("/mixers", s.CreateMixerHandler)
		v1.GET("/mixers", s.ListMixersHandler)
		v1.GET("/mixers/:id", s.GetMixerHandler)
		v1.DELETE("/mixers/:id", s.CloseMixerHandler)
		v1.POST("/mixers/:id/produce", s.ProduceHandler)
		v1.POST("/mixers/:id/producers", s.AddProducerHandler)
		v1.PATCH("/mixers/:id/producers/:pid", s.UpdateProducerHandler)
		v1.DELETE("/mixers/:id/producers/:pid", s.RemoveProducerHandler)
	}
}

// Handler returns the gin engine (for testing).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background. Serve errors other than a clean shutdown
// are logged.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("api server listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds())
	}
}
