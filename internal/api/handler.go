package api

import (
	"net/http"

	"github.com/foxseedlab/mixerd/internal/mixer"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/foxseedlab/mixerd/internal/producer"
	"github.com/foxseedlab/mixerd/internal/router"
	"github.com/gin-gonic/gin"
)

type CreateMixerRequest struct {
	MixerID string         `json:"mixerId"`
	AppData map[string]any `json:"appData"`
}

type ProduceRequest struct {
	Kind ortc.MediaKind `json:"kind" binding:"required"`
}

type AddProducerRequest struct {
	ProducerID string              `json:"producerId" binding:"required"`
	Kind       ortc.MediaKind      `json:"kind" binding:"required"`
	Render     mixer.RenderOptions `json:"render"`
}

type UpdateProducerRequest struct {
	Render mixer.RenderOptions `json:"render"`
}

type MixerMember struct {
	ProducerID string               `json:"producerId"`
	Primary    bool                 `json:"primary"`
	Render     *mixer.RenderOptions `json:"render,omitempty"`
}

type MixerResponse struct {
	ID                string              `json:"id"`
	RouterID          string              `json:"routerId"`
	Closed            bool                `json:"closed"`
	PrimaryProducerID string              `json:"primaryProducerId,omitempty"`
	Producers         []MixerMember       `json:"producers"`
	RtpParameters     *ortc.RtpParameters `json:"rtpParameters,omitempty"`
	AppData           any                 `json:"appData,omitempty"`
}

type ProducerResponse struct {
	ID                      string              `json:"id"`
	Kind                    ortc.MediaKind      `json:"kind"`
	Type                    producer.Type       `json:"type"`
	RtpParameters           *ortc.RtpParameters `json:"rtpParameters,omitempty"`
	ConsumableRtpParameters *ortc.RtpParameters `json:"consumableRtpParameters,omitempty"`
}

func newMixerResponse(m *mixer.Mixer) MixerResponse {
	primary := m.PrimaryProducerID()
	resp := MixerResponse{
		ID:                m.ID(),
		RouterID:          m.RouterID(),
		Closed:            m.Closed(),
		PrimaryProducerID: primary,
		Producers:         []MixerMember{},
		RtpParameters:     m.RtpParameters(),
		AppData:           m.AppData(),
	}
	for _, p := range m.Producers() {
		member := MixerMember{ProducerID: p.ID(), Primary: p.ID() == primary}
		if layout, ok := m.Layout(p.ID()); ok {
			member.Render = &layout
		}
		resp.Producers = append(resp.Producers, member)
	}
	return resp
}

// GetCapabilitiesHandler handles GET /api/v1/capabilities
func (s *Server) GetCapabilitiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.RtpCapabilities())
}

// CreateMixerHandler handles POST /api/v1/mixers
func (s *Server) CreateMixerHandler(c *gin.Context) {
	var req CreateMixerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithBadRequest(c, err)
			return
		}
	}
	opts := router.CreateMixerOptions{MixerID: req.MixerID}
	if req.AppData != nil {
		opts.AppData = req.AppData
	}
	m, err := s.router.CreateMixer(c.Request.Context(), opts)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMixerResponse(m))
}

// ListMixersHandler handles GET /api/v1/mixers
func (s *Server) ListMixersHandler(c *gin.Context) {
	mixers := s.router.Mixers()
	resp := make([]MixerResponse, 0, len(mixers))
	for _, m := range mixers {
		resp = append(resp, newMixerResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// GetMixerHandler handles GET /api/v1/mixers/:id
func (s *Server) GetMixerHandler(c *gin.Context) {
	m, err := s.router.Mixer(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMixerResponse(m))
}

// CloseMixerHandler handles DELETE /api/v1/mixers/:id
func (s *Server) CloseMixerHandler(c *gin.Context) {
	if err := s.router.CloseMixer(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ProduceHandler handles POST /api/v1/mixers/:id/produce
func (s *Server) ProduceHandler(c *gin.Context) {
	var req ProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	m, err := s.router.Mixer(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	p, err := m.Produce(c.Request.Context(), req.Kind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ProducerResponse{
		ID:                      p.ID(),
		Kind:                    p.Kind(),
		Type:                    p.Type(),
		RtpParameters:           p.RtpParameters(),
		ConsumableRtpParameters: p.ConsumableRtpParameters(),
	})
}

// AddProducerHandler handles POST /api/v1/mixers/:id/producers
func (s *Server) AddProducerHandler(c *gin.Context) {
	var req AddProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	m, err := s.router.Mixer(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	p, err := s.router.Producer(req.ProducerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := m.Add(c.Request.Context(), p, req.Kind, req.Render); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateProducerHandler handles PATCH /api/v1/mixers/:id/producers/:pid
func (s *Server) UpdateProducerHandler(c *gin.Context) {
	var req UpdateProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	m, err := s.router.Mixer(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := m.Update(c.Request.Context(), c.Param("pid"), req.Render); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveProducerHandler handles DELETE /api/v1/mixers/:id/producers/:pid
func (s *Server) RemoveProducerHandler(c *gin.Context) {
	m, err := s.router.Mixer(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := m.Remove(c.Request.Context(), c.Param("pid")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
