// Package server exposes the conversation over a small local HTTP API so a
// separate front end can drive the avatar.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/orchestrator"
)

// Controller is the conversation being exposed.
type Controller interface {
	Start(ctx context.Context) error
	Say(ctx context.Context, text string) error
	StartListening() error
	StopListening(ctx context.Context) error
	State() orchestrator.State
	Subscribe(fn func(orchestrator.State)) (unsubscribe func())
}

type Config struct {
	Addr       string
	Debug      bool
	PingPeriod time.Duration
}

type Server struct {
	cfg      Config
	ctrl     Controller
	engine   *gin.Engine
	upgrader websocket.Upgrader
	http     *http.Server
}

func New(cfg Config, ctrl Controller) *Server {
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:  cfg,
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	if s.cfg.Debug {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/start", s.handleStart)
	api.POST("/say", s.handleSay)
	api.POST("/listen/start", s.handleListenStart)
	api.POST("/listen/stop", s.handleListenStop)
	api.GET("/state", s.handleState)
	api.GET("/events", s.handleEvents)

	log.Info().Str("module", "server").Msg("router setup")
	return r
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	log.Info().Str("module", "server").Str("addr", s.cfg.Addr).Msg("control API listening")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
