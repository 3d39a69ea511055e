package avatar

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/simli"
	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

// initializeSession obtains a session token and sends it over dc. Failures
// emit EventFailed, except after Close.
func (c *Client) initializeSession(ctx context.Context, dc DataChannel, cfg Config) {
	err := trace.WithSpan(ctx, "avatar.initialize_session", func(ctx context.Context) error {
		token, err := c.api.StartAudioToVideoSession(ctx, simli.AudioToVideoRequest{
			FaceID:        cfg.FaceID,
			IsJPG:         false,
			APIKey:        cfg.APIKey,
			SyncAudio:     true,
			HandleSilence: cfg.HandleSilence,
		})
		if err != nil {
			return err
		}

		if dc.ReadyState() != webrtc.DataChannelStateOpen {
			return ErrChannelNotOpen
		}
		if err := dc.SendText(token); err != nil {
			return fmt.Errorf("avatar: send session token: %w", err)
		}
		return nil
	})

	if err == nil {
		log.Info().Str("module", "avatar").Msg("session token sent")
		return
	}
	if ctx.Err() != nil || c.isClosed() {
		log.Debug().Str("module", "avatar").Err(err).Msg("session initialization aborted by close")
		return
	}
	log.Error().Str("module", "avatar").Err(err).Msg("session initialization failed")
	c.emit(EventFailed)
}
