package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// writerFactory opens a container writer for a track's codec.
type writerFactory func(path string, codec webrtc.RTPCodecParameters) (rtpWriter, error)

// FileSink records the most recently attached track into a media file.
// The container follows the codec: Opus to Ogg, VP8 to IVF, H264 to Annex-B.
type FileSink struct {
	path      string
	newWriter writerFactory

	mu         sync.Mutex
	writer     rtpWriter
	generation uint64
	closed     bool
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path, newWriter: openContainer}
}

// Attach starts recording track, replacing any previous track.
func (s *FileSink) Attach(track Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closeWriterLocked()
	s.generation++

	w, err := s.newWriter(s.path, track.Codec())
	if err != nil {
		log.Warn().Str("module", "sink").Str("path", s.path).Str("track", track.ID()).Err(err).Msg("cannot record track, discarding")
		Discard().Attach(track)
		return
	}
	s.writer = w

	log.Info().
		Str("module", "sink").
		Str("path", s.path).
		Str("track", track.ID()).
		Str("codec", track.Codec().MimeType).
		Msg("recording track")

	go s.consume(track, s.generation)
}

func (s *FileSink) consume(track Track, generation uint64) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("module", "sink").Str("track", track.ID()).Err(err).Msg("track read stopped")
			}
			return
		}

		s.mu.Lock()
		if s.generation != generation || s.writer == nil {
			s.mu.Unlock()
			return
		}
		if err := s.writer.WriteRTP(pkt); err != nil {
			log.Warn().Str("module", "sink").Str("path", s.path).Err(err).Msg("write failed")
		}
		s.mu.Unlock()
	}
}

// Close flushes and closes the current writer. Readers exit once their
// track ends.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.closeWriterLocked()
	s.generation++
	s.mu.Unlock()
	return err
}

func (s *FileSink) closeWriterLocked() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

func openContainer(path string, codec webrtc.RTPCodecParameters) (rtpWriter, error) {
	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		return oggwriter.New(path, codec.ClockRate, channels)
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		return ivfwriter.New(path)
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeH264):
		return h264writer.New(path)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec.MimeType)
	}
}
