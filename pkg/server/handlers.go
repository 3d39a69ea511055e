package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/avatar"
	"github.com/realtime-ai/simli-avatar/pkg/orchestrator"
)

type SayRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string             `json:"error"`
	State orchestrator.State `json:"state"`
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	log.Warn().Str("module", "server").Str("path", c.FullPath()).Err(err).Msg("request failed")
	c.JSON(status, errorResponse{Error: err.Error(), State: s.ctrl.State()})
}

func (s *Server) handleStart(c *gin.Context) {
	err := s.ctrl.Start(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.ctrl.State())
	case errors.Is(err, avatar.ErrAlreadyStarted):
		s.fail(c, http.StatusConflict, err)
	case errors.Is(err, orchestrator.ErrClosed), errors.Is(err, avatar.ErrClosed):
		s.fail(c, http.StatusGone, err)
	default:
		s.fail(c, http.StatusBadGateway, err)
	}
}

func (s *Server) handleSay(c *gin.Context) {
	var req SayRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
		return
	}

	err := s.ctrl.Say(c.Request.Context(), req.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.ctrl.State())
	case errors.Is(err, orchestrator.ErrClosed):
		s.fail(c, http.StatusGone, err)
	default:
		s.fail(c, http.StatusBadGateway, err)
	}
}

func (s *Server) handleListenStart(c *gin.Context) {
	if err := s.ctrl.StartListening(); err != nil {
		s.fail(c, listenStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleListenStop(c *gin.Context) {
	if err := s.ctrl.StopListening(c.Request.Context()); err != nil {
		s.fail(c, listenStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.State())
}

func listenStatus(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrListeningUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.State())
}
