package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/orchestrator"
)

const (
	eventBuffer = 16
	writeWait   = 10 * time.Second
)

// handleEvents streams the state as JSON: the current state first, then one
// message per change. Slow clients miss intermediate states.
func (s *Server) handleEvents(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "server").Err(err).Msg("ws upgrade failed")
		return
	}
	log.Info().Str("module", "server").Str("remote", c.Request.RemoteAddr).Msg("events client connected")

	send := make(chan orchestrator.State, eventBuffer)
	send <- s.ctrl.State()
	unsubscribe := s.ctrl.Subscribe(func(st orchestrator.State) {
		select {
		case send <- st:
		default:
			log.Debug().Str("module", "server").Msg("events client slow, dropping state")
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.writePump(ws, send, done)

	unsubscribe()
	ws.Close()
	log.Info().Str("module", "server").Str("remote", c.Request.RemoteAddr).Msg("events client disconnected")
}

func (s *Server) writePump(ws *websocket.Conn, send <-chan orchestrator.State, done <-chan struct{}) {
	ping := time.NewTicker(s.cfg.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case st := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(st); err != nil {
				log.Debug().Str("module", "server").Err(err).Msg("events write failed")
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
