// Package avatar owns the WebRTC session with the Simli avatar service: peer
// connection setup, SDP negotiation, the "chat" data channel, the session-token
// handshake and the keep-alive loop.
//
// A Client is constructed, configured and started once, and closed at most
// once. Lifecycle changes are reported to observers as Events:
//
//	c := avatar.New(simli.New())
//	c.Configure(avatar.Config{APIKey: key, FaceID: face, HandleSilence: true})
//	unsubscribe := c.Subscribe(func(e avatar.Event) { ... })
//	defer unsubscribe()
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Close()
package avatar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/simli-avatar/pkg/simli"
	"github.com/realtime-ai/simli-avatar/pkg/sink"
	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

const (
	dataChannelLabel = "chat"

	// sessionNotInitialized is sent verbatim by the remote service when audio
	// arrives before the handshake completed. The misspelling is the service's.
	sessionNotInitialized = "Session Intialization not done, Ignoring audio"
	startSignal           = "START"

	defaultKeepAliveInterval = time.Second
	defaultGatheringPoll     = 250 * time.Millisecond
)

// DefaultSTUNServer is the public STUN server used when none is configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

var (
	ErrAlreadyStarted = errors.New("avatar: client already started")
	ErrClosed         = errors.New("avatar: client closed")
	ErrNotConfigured  = errors.New("avatar: client not configured")
	ErrChannelNotOpen = errors.New("avatar: data channel not open")
)

// SessionAPI is the remote avatar service.
type SessionAPI interface {
	StartAudioToVideoSession(ctx context.Context, req simli.AudioToVideoRequest) (string, error)
	StartWebRTCSession(ctx context.Context, req simli.WebRTCSessionRequest) (simli.SessionDescription, error)
}

// Config is the per-session configuration. It is fixed once Start is called.
type Config struct {
	APIKey        string
	FaceID        string
	HandleSilence bool

	// VideoSink and AudioSink receive inbound tracks by kind. Nil sinks
	// discard media.
	VideoSink sink.MediaSink
	AudioSink sink.MediaSink
}

// Option configures a Client.
type Option func(*Client)

// WithPeerFactory replaces the pion peer connection factory.
func WithPeerFactory(f PeerFactory) Option {
	return func(c *Client) { c.newPeer = f }
}

// WithICEServers replaces the default STUN server list.
func WithICEServers(urls ...string) Option {
	return func(c *Client) {
		if len(urls) > 0 {
			c.iceServers = []webrtc.ICEServer{{URLs: urls}}
		}
	}
}

// WithKeepAliveInterval sets the ping cadence.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithGatheringPollInterval sets how often ICE gathering progress is polled.
func WithGatheringPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// Client is the session transport to the avatar service.
type Client struct {
	api          SessionAPI
	newPeer      PeerFactory
	iceServers   []webrtc.ICEServer
	pingInterval time.Duration
	pollInterval time.Duration
	newTicker    func(time.Duration) ticker
	now          func() time.Time

	// ctx is cancelled by Close; in-flight handshakes observe it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	cfg        Config
	configured bool
	started    bool
	closed     bool
	pc         PeerConnection
	dc         DataChannel
	keepAlive  *keepAlive

	candidateCount atomic.Int64

	observers observers
}

// New creates an unconfigured client.
func New(api SessionAPI, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		api:          api,
		newPeer:      NewPionPeer,
		iceServers:   []webrtc.ICEServer{{URLs: []string{DefaultSTUNServer}}},
		pingInterval: defaultKeepAliveInterval,
		pollInterval: defaultGatheringPoll,
		newTicker:    newTimeTicker,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure stores the session configuration. It must be called before Start
// and is rejected afterwards.
func (c *Client) Configure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.closed {
		log.Warn().Str("module", "avatar").Msg("configure after start ignored")
		return ErrAlreadyStarted
	}

	if cfg.VideoSink == nil {
		cfg.VideoSink = sink.Discard()
	}
	if cfg.AudioSink == nil {
		cfg.AudioSink = sink.Discard()
	}
	c.cfg = cfg
	c.configured = true

	log.Info().
		Str("module", "avatar").
		Int("api_key_len", len(cfg.APIKey)).
		Str("face_id", cfg.FaceID).
		Bool("handle_silence", cfg.HandleSilence).
		Msg("configured")
	return nil
}

// Subscribe registers fn for lifecycle events and returns a function that
// removes it. Observers run on the goroutine that produced the event.
func (c *Client) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.observers.add(fn)
}

func (c *Client) emit(e Event) {
	log.Info().Str("module", "avatar").Stringer("event", e).Msg("lifecycle event")
	for _, fn := range c.observers.snapshot() {
		fn(e)
	}
}

// Start creates the peer connection and data channel and negotiates the
// session. Only setup failures are returned; negotiation failures are
// reported as EventFailed. A second call returns ErrAlreadyStarted without
// creating another peer connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	case !c.configured:
		c.mu.Unlock()
		return ErrNotConfigured
	}
	c.started = true
	cfg := c.cfg
	c.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(c.ctx, stop)()

	ctx, span := trace.StartSpan(ctx, "avatar.start",
		oteltrace.WithAttributes(trace.AvatarAttrs(cfg.FaceID, dataChannelLabel)...))
	defer span.End()

	pc, dc, err := c.setup(cfg)
	if err != nil {
		trace.RecordError(span, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		dc.Close()
		pc.Close()
		return ErrClosed
	}
	c.pc, c.dc = pc, dc
	c.mu.Unlock()

	c.negotiate(ctx, pc)
	span.SetAttributes(attribute.Int64(trace.AttrICECandidates, c.candidateCount.Load()))
	return nil
}

func (c *Client) setup(cfg Config) (PeerConnection, DataChannel, error) {
	log.Info().Str("module", "avatar").Interface("ice_servers", c.iceServers).Msg("creating peer connection")

	pc, err := c.newPeer(webrtc.Configuration{ICEServers: c.iceServers})
	if err != nil {
		return nil, nil, fmt.Errorf("avatar: create peer connection: %w", err)
	}
	c.watchPeer(pc, cfg)

	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("avatar: create data channel: %w", err)
	}
	c.watchChannel(dc)

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if err := pc.AddTransceiver(kind, webrtc.RTPTransceiverDirectionRecvonly); err != nil {
			dc.Close()
			pc.Close()
			return nil, nil, fmt.Errorf("avatar: add %s transceiver: %w", kind, err)
		}
	}
	return pc, dc, nil
}

func (c *Client) watchPeer(pc PeerConnection, cfg Config) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			log.Debug().Str("module", "avatar").Int64("candidates", c.candidateCount.Load()).Msg("ICE gathering complete")
			return
		}
		n := c.candidateCount.Add(1)
		log.Debug().Str("module", "avatar").Int64("n", n).Str("candidate", candidate.String()).Msg("ICE candidate")
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Info().Str("module", "avatar").Stringer("state", state).Msg("ICE connection state changed")
	})

	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		log.Debug().Str("module", "avatar").Stringer("state", state).Msg("signaling state changed")
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("module", "avatar").Stringer("state", state).Msg("peer connection state changed")
	})

	pc.OnTrack(func(track sink.Track) {
		log.Info().
			Str("module", "avatar").
			Str("track", track.ID()).
			Stringer("kind", track.Kind()).
			Str("codec", track.Codec().MimeType).
			Msg("track received")

		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			cfg.VideoSink.Attach(track)
		case webrtc.RTPCodecTypeAudio:
			cfg.AudioSink.Attach(track)
		}
	})
}

func (c *Client) watchChannel(dc DataChannel) {
	dc.OnOpen(func() {
		log.Info().Str("module", "avatar").Str("label", dc.Label()).Msg("data channel opened")
		c.emit(EventConnected)

		c.mu.Lock()
		cfg := c.cfg
		c.mu.Unlock()

		// The keep-alive does not wait for the handshake.
		go c.initializeSession(c.ctx, dc, cfg)
		c.startKeepAlive(dc)
	})

	dc.OnClose(func() {
		log.Info().Str("module", "avatar").Str("label", dc.Label()).Msg("data channel closed")
		c.emit(EventDisconnected)
		c.stopKeepAlive()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.handleMessage(msg)
	})
}

func (c *Client) handleMessage(msg webrtc.DataChannelMessage) {
	text := string(msg.Data)
	log.Debug().Str("module", "avatar").Bool("text", msg.IsString).Int("bytes", len(msg.Data)).Msg("message received")

	if strings.Contains(text, startSignal) {
		c.emit(EventStarted)
	}
	if text == sessionNotInitialized {
		log.Error().Str("module", "avatar").Msg("remote rejected audio: session not initialized")
		c.emit(EventFailed)
	}
}

// SendBytes writes a raw binary payload to the data channel. Payloads are
// dropped with a warning when the channel is not open; there is no buffering
// and no retry.
func (c *Client) SendBytes(payload []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		state := "none"
		if dc != nil {
			state = dc.ReadyState().String()
		}
		log.Warn().Str("module", "avatar").Str("state", state).Int("bytes", len(payload)).Msg("data channel not open, dropping payload")
		return ErrChannelNotOpen
	}

	if err := dc.Send(payload); err != nil {
		log.Error().Str("module", "avatar").Err(err).Int("bytes", len(payload)).Msg("failed to send payload")
		return fmt.Errorf("avatar: send payload: %w", err)
	}
	return nil
}

// Close stops the keep-alive and closes the data channel and the peer
// connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dc, pc := c.dc, c.pc
	c.dc, c.pc = nil, nil
	c.mu.Unlock()

	c.cancel()
	c.stopKeepAlive()

	var errs []error
	if dc != nil {
		if err := dc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data channel: %w", err))
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
	}

	log.Info().Str("module", "avatar").Msg("closed")
	return errors.Join(errs...)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
