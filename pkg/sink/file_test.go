package sink

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	codec   webrtc.RTPCodecParameters
	packets chan *rtp.Packet
}

func newFakeTrack(id string, kind webrtc.RTPCodecType, mime string) *fakeTrack {
	return &fakeTrack{
		id:      id,
		kind:    kind,
		codec:   webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 48000, Channels: 2}},
		packets: make(chan *rtp.Packet),
	}
}

func (t *fakeTrack) ID() string                       { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType        { return t.kind }
func (t *fakeTrack) Codec() webrtc.RTPCodecParameters { return t.codec }
func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

type recordingWriter struct {
	mu      sync.Mutex
	written []uint16
	closed  bool
}

func (w *recordingWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, p.SequenceNumber)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) snapshot() ([]uint16, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.written...), w.closed
}

func newTestSink(writers *[]*recordingWriter) *FileSink {
	s := NewFileSink("unused")
	s.newWriter = func(string, webrtc.RTPCodecParameters) (rtpWriter, error) {
		w := &recordingWriter{}
		*writers = append(*writers, w)
		return w, nil
	}
	return s
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestFileSink_WritesAttachedTrack(t *testing.T) {
	var writers []*recordingWriter
	s := newTestSink(&writers)

	track := newFakeTrack("a1", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus)
	s.Attach(track)
	require.Len(t, writers, 1)

	track.packets <- packet(1)
	track.packets <- packet(2)

	assert.Eventually(t, func() bool {
		got, _ := writers[0].snapshot()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	_, closed := writers[0].snapshot()
	assert.True(t, closed)
	close(track.packets)
}

func TestFileSink_MostRecentTrackWins(t *testing.T) {
	var writers []*recordingWriter
	s := newTestSink(&writers)

	first := newFakeTrack("v1", webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8)
	second := newFakeTrack("v2", webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8)

	s.Attach(first)
	first.packets <- packet(1)
	assert.Eventually(t, func() bool {
		got, _ := writers[0].snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	s.Attach(second)
	require.Len(t, writers, 2)
	_, closed := writers[0].snapshot()
	assert.True(t, closed, "previous writer closed on replacement")

	// The first track's reader gives up after its next packet.
	first.packets <- packet(2)
	second.packets <- packet(10)

	assert.Eventually(t, func() bool {
		got, _ := writers[1].snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	got, _ := writers[0].snapshot()
	assert.Equal(t, []uint16{1}, got)
	got, _ = writers[1].snapshot()
	assert.Equal(t, []uint16{10}, got)

	close(first.packets)
	close(second.packets)
	require.NoError(t, s.Close())
}

func TestFileSink_AttachAfterCloseIgnored(t *testing.T) {
	var writers []*recordingWriter
	s := newTestSink(&writers)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Attach(newFakeTrack("a1", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus))
	assert.Empty(t, writers)
}

func TestOpenContainer_UnsupportedCodec(t *testing.T) {
	_, err := openContainer(t.TempDir()+"/out.bin", webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/AV1"},
	})
	assert.Error(t, err)
}

func TestOpenContainer_Opus(t *testing.T) {
	w, err := openContainer(t.TempDir()+"/out.ogg", webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
