// Package sink provides playback sinks for the avatar's inbound media tracks.
package sink

import (
	"errors"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Track is an inbound media track. *webrtc.TrackRemote satisfies it.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

var _ Track = (*webrtc.TrackRemote)(nil)

// MediaSink consumes inbound tracks of one kind. Attaching a new track
// replaces the one attached before it.
type MediaSink interface {
	Attach(track Track)
	Close() error
}

type discardSink struct{}

// Discard returns a sink that reads packets and drops them.
func Discard() MediaSink {
	return discardSink{}
}

func (discardSink) Attach(track Track) {
	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug().Str("module", "sink").Str("track", track.ID()).Err(err).Msg("discard read stopped")
				}
				return
			}
		}
	}()
}

func (discardSink) Close() error { return nil }
