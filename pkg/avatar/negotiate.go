package avatar

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/simli-avatar/pkg/simli"
	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

var errNoLocalDescription = errors.New("avatar: no local description after ICE gathering")

// negotiate runs the offer/answer exchange. Failures are reported as
// EventFailed unless the client was closed or ctx cancelled meanwhile.
func (c *Client) negotiate(ctx context.Context, pc PeerConnection) {
	err := trace.WithSpan(ctx, "avatar.negotiate", func(ctx context.Context) error {
		return c.exchange(ctx, pc)
	})
	if err == nil {
		return
	}
	if c.isClosed() || ctx.Err() != nil {
		log.Debug().Str("module", "avatar").Err(err).Msg("negotiation aborted")
		return
	}
	log.Error().Str("module", "avatar").Err(err).Msg("negotiation failed")
	c.emit(EventFailed)
}

func (c *Client) exchange(ctx context.Context, pc PeerConnection) error {
	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("avatar: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("avatar: set local description: %w", err)
	}

	err = trace.WithSpan(ctx, "avatar.ice_gathering", func(ctx context.Context) error {
		return c.waitForGathering(ctx, pc)
	})
	if err != nil {
		return err
	}

	local := pc.LocalDescription()
	if local == nil {
		return errNoLocalDescription
	}

	span := oteltrace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int64(trace.AttrICECandidates, c.candidateCount.Load()),
		attribute.String(trace.AttrICEGathering, pc.ICEGatheringState().String()),
	)

	log.Info().
		Str("module", "avatar").
		Int64("candidates", c.candidateCount.Load()).
		Int("sdp_len", len(local.SDP)).
		Msg("sending offer")

	answer, err := c.api.StartWebRTCSession(ctx, simli.WebRTCSessionRequest{
		SDP:  local.SDP,
		Type: local.Type.String(),
	})
	if err != nil {
		return err
	}

	kinds, err := answer.MediaKinds()
	if err != nil {
		return fmt.Errorf("avatar: parse answer: %w", err)
	}
	span.SetAttributes(attribute.StringSlice(trace.AttrAnswerMedia, kinds))

	desc, err := remoteDescription(answer)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("avatar: set remote description: %w", err)
	}

	log.Info().Str("module", "avatar").Strs("media", kinds).Msg("remote description applied")
	return nil
}

// waitForGathering returns once ICE gathering is complete or no new candidate
// arrived since the previous poll.
func (c *Client) waitForGathering(ctx context.Context, pc PeerConnection) error {
	if pc.ICEGatheringState() == webrtc.ICEGatheringStateComplete {
		return nil
	}

	done := pc.GatheringComplete()
	t := c.newTicker(c.pollInterval)
	defer t.Stop()

	prev := int64(-1)
	for {
		count := c.candidateCount.Load()
		if pc.ICEGatheringState() == webrtc.ICEGatheringStateComplete || count == prev {
			log.Debug().Str("module", "avatar").Int64("candidates", count).Msg("ICE gathering settled")
			return nil
		}
		prev = count

		select {
		case <-done:
			return nil
		case <-t.C():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func remoteDescription(answer simli.SessionDescription) (webrtc.SessionDescription, error) {
	typ := webrtc.SDPTypeAnswer
	if answer.Type != "" {
		typ = webrtc.NewSDPType(answer.Type)
		if typ == webrtc.SDPTypeUnknown {
			return webrtc.SessionDescription{}, fmt.Errorf("avatar: unknown answer type %q", answer.Type)
		}
	}
	return webrtc.SessionDescription{Type: typ, SDP: answer.SDP}, nil
}
