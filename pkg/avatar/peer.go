package avatar

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/realtime-ai/simli-avatar/pkg/sink"
)

// PeerConnection is the subset of a WebRTC peer connection the client drives.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	SetRemoteDescription(desc webrtc.SessionDescription) error

	ICEGatheringState() webrtc.ICEGatheringState
	// GatheringComplete returns a channel closed once ICE gathering is
	// complete. Platforms may never close it.
	GatheringComplete() <-chan struct{}

	CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error)
	AddTransceiver(kind webrtc.RTPCodecType, direction webrtc.RTPTransceiverDirection) error

	OnICECandidate(f func(*webrtc.ICECandidate))
	OnICEConnectionStateChange(f func(webrtc.ICEConnectionState))
	OnSignalingStateChange(f func(webrtc.SignalingState))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(sink.Track))

	Close() error
}

// DataChannel is the subset of a WebRTC data channel the client uses.
// *webrtc.DataChannel satisfies it.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	Send(data []byte) error
	SendText(s string) error
	Close() error
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// PeerFactory creates a peer connection. It fails when the platform has no
// usable WebRTC stack.
type PeerFactory func(cfg webrtc.Configuration) (PeerConnection, error)

type pionPeer struct {
	pc *webrtc.PeerConnection
}

var _ PeerConnection = (*pionPeer)(nil)

// NewPionPeer creates a PeerConnection backed by pion.
func NewPionPeer(cfg webrtc.Configuration) (PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &pionPeer{pc: pc}, nil
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeer) ICEGatheringState() webrtc.ICEGatheringState {
	return p.pc.ICEGatheringState()
}

func (p *pionPeer) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(p.pc)
}

func (p *pionPeer) CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, init)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p *pionPeer) AddTransceiver(kind webrtc.RTPCodecType, direction webrtc.RTPTransceiverDirection) error {
	_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: direction})
	return err
}

func (p *pionPeer) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(f)
}

func (p *pionPeer) OnICEConnectionStateChange(f func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(f)
}

func (p *pionPeer) OnSignalingStateChange(f func(webrtc.SignalingState)) {
	p.pc.OnSignalingStateChange(f)
}

func (p *pionPeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *pionPeer) OnTrack(f func(sink.Track)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f(track)
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
