package avatar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/realtime-ai/simli-avatar/pkg/simli"
	"github.com/realtime-ai/simli-avatar/pkg/sink"
)

const answerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

type fakeChannel struct {
	mu        sync.Mutex
	state     webrtc.DataChannelState
	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
	texts     []string
	binary    [][]byte
	sendErr   error
	closes    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: webrtc.DataChannelStateConnecting}
}

func (f *fakeChannel) Label() string { return dataChannelLabel }

func (f *fakeChannel) ReadyState() webrtc.DataChannelState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) setState(s webrtc.DataChannelState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeChannel) OnOpen(fn func()) { f.mu.Lock(); f.onOpen = fn; f.mu.Unlock() }

func (f *fakeChannel) OnClose(fn func()) { f.mu.Lock(); f.onClose = fn; f.mu.Unlock() }

func (f *fakeChannel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.binary = append(f.binary, append([]byte(nil), data...))
	return nil
}

func (f *fakeChannel) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, s)
	return nil
}

// Close fires onClose on the first transition to closed, as pion does.
func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closes++
	wasClosed := f.state == webrtc.DataChannelStateClosed
	f.state = webrtc.DataChannelStateClosed
	fn := f.onClose
	f.mu.Unlock()
	if !wasClosed && fn != nil {
		fn()
	}
	return nil
}

// open simulates the remote side opening the channel.
func (f *fakeChannel) open() {
	f.setState(webrtc.DataChannelStateOpen)
	f.mu.Lock()
	fn := f.onOpen
	f.mu.Unlock()
	fn()
}

// drop simulates the channel closing underneath the client.
func (f *fakeChannel) drop() {
	f.setState(webrtc.DataChannelStateClosed)
	f.mu.Lock()
	fn := f.onClose
	f.mu.Unlock()
	fn()
}

func (f *fakeChannel) receive(text string) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn(webrtc.DataChannelMessage{IsString: true, Data: []byte(text)})
}

func (f *fakeChannel) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeChannel) sentBinary() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.binary...)
}

type fakePeer struct {
	mu          sync.Mutex
	channel     *fakeChannel
	gathering   webrtc.ICEGatheringState
	candidates  int
	noLocal     bool
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	transceiver []webrtc.RTPCodecType
	dcInit      *webrtc.DataChannelInit
	onCandidate func(*webrtc.ICECandidate)
	onTrack     func(sink.Track)
	closes      int
}

func newFakePeer() *fakePeer {
	return &fakePeer{channel: newFakeChannel(), gathering: webrtc.ICEGatheringStateComplete}
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if !p.noLocal {
		p.local = &desc
	}
	fn, n := p.onCandidate, p.candidates
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		fn(&webrtc.ICECandidate{Foundation: "f", Protocol: webrtc.ICEProtocolUDP, Address: "10.0.0.1", Port: uint16(5000 + i), Typ: webrtc.ICECandidateTypeHost})
	}
	return nil
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &desc
	return nil
}

func (p *fakePeer) ICEGatheringState() webrtc.ICEGatheringState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gathering
}

func (p *fakePeer) GatheringComplete() <-chan struct{} { return make(chan struct{}) }

func (p *fakePeer) CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dcInit = init
	return p.channel, nil
}

func (p *fakePeer) AddTransceiver(kind webrtc.RTPCodecType, _ webrtc.RTPTransceiverDirection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transceiver = append(p.transceiver, kind)
	return nil
}

func (p *fakePeer) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *fakePeer) OnICEConnectionStateChange(func(webrtc.ICEConnectionState)) {}
func (p *fakePeer) OnSignalingStateChange(func(webrtc.SignalingState))         {}
func (p *fakePeer) OnConnectionStateChange(func(webrtc.PeerConnectionState))   {}

func (p *fakePeer) OnTrack(f func(sink.Track)) {
	p.mu.Lock()
	p.onTrack = f
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

type fakeAPI struct {
	mu        sync.Mutex
	token     string
	tokenErr  error
	beforeTok func()
	answer    simli.SessionDescription
	answerErr error
	sessions  []simli.AudioToVideoRequest
	offers    []simli.WebRTCSessionRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{token: "abc", answer: simli.SessionDescription{SDP: answerSDP, Type: "answer"}}
}

func (a *fakeAPI) StartAudioToVideoSession(_ context.Context, req simli.AudioToVideoRequest) (string, error) {
	a.mu.Lock()
	a.sessions = append(a.sessions, req)
	hook := a.beforeTok
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	return a.token, a.tokenErr
}

func (a *fakeAPI) StartWebRTCSession(_ context.Context, req simli.WebRTCSessionRequest) (simli.SessionDescription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offers = append(a.offers, req)
	return a.answer, a.answerErr
}

func (a *fakeAPI) sessionCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *fakeAPI) offerCalls() []simli.WebRTCSessionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]simli.WebRTCSessionRequest(nil), a.offers...)
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

// tick delivers one tick, or reports false if the ticker consumer is gone.
func (t *manualTicker) tick() bool {
	select {
	case t.ch <- time.Time{}:
		return true
	case <-t.stopped:
		return false
	case <-time.After(time.Second):
		return false
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) count(e Event) int {
	n := 0
	for _, got := range l.all() {
		if got == e {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu     sync.Mutex
	tracks []string
}

func (s *recordingSink) Attach(t sink.Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t.ID())
	s.mu.Unlock()
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) attached() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tracks...)
}

var errBoom = errors.New("boom")
