// Package orchestrator drives a conversation through the avatar: user text
// or speech goes to the agent, the reply is synthesized and streamed to the
// avatar session in fixed-size PCM chunks.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/simli-avatar/pkg/agent"
	"github.com/realtime-ai/simli-avatar/pkg/asr"
	"github.com/realtime-ai/simli-avatar/pkg/audio"
	"github.com/realtime-ai/simli-avatar/pkg/avatar"
	"github.com/realtime-ai/simli-avatar/pkg/identity"
	"github.com/realtime-ai/simli-avatar/pkg/trace"
	"github.com/realtime-ai/simli-avatar/pkg/tts"
)

// primerSize is the silence sent once the avatar reports it started.
const primerSize = 6000

var (
	ErrListeningUnavailable = errors.New("orchestrator: no recorder or transcriber configured")
	ErrClosed               = errors.New("orchestrator: closed")
)

// Session is the avatar transport.
type Session interface {
	Start(ctx context.Context) error
	SendBytes(payload []byte) error
	Subscribe(fn func(avatar.Event)) (unsubscribe func())
	Close() error
}

// Recorder captures microphone audio.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
}

// Deps are the collaborators. Recorder and ASR may be nil when speech input
// is not wanted.
type Deps struct {
	Session  Session
	Agent    agent.Agent
	TTS      tts.Provider
	ASR      asr.Provider
	Recorder Recorder
}

// Options tune the conversation.
type Options struct {
	Identity    identity.Identity
	UserName    string
	Voice       string
	ChunkSize   int
	StreamTTS   bool
	AudioConfig asr.AudioConfig
}

// Orchestrator owns the conversation state.
type Orchestrator struct {
	deps Deps
	opts Options

	mu        sync.Mutex
	state     State
	cancelSay context.CancelFunc
	saySeq    uint64
	closed    bool

	unsubscribe func()
	listeners   listeners
}

// New wires the orchestrator to the session's lifecycle events.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = audio.DefaultChunkSize
	}
	if opts.UserName == "" {
		opts.UserName = "User"
	}
	if opts.AudioConfig.SampleRate == 0 {
		opts.AudioConfig = asr.DefaultAudioConfig()
	}

	o := &Orchestrator{deps: deps, opts: opts}
	o.unsubscribe = deps.Session.Subscribe(o.onEvent)
	return o
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn for state changes.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	return o.listeners.add(fn)
}

func (o *Orchestrator) update(fn func(*State)) {
	o.mu.Lock()
	fn(&o.state)
	s := o.state
	o.mu.Unlock()
	o.listeners.notify(s)
}

func (o *Orchestrator) onEvent(e avatar.Event) {
	switch e {
	case avatar.EventConnected:
		o.update(func(s *State) { s.Connected = true })

	case avatar.EventDisconnected:
		o.update(func(s *State) { s.Connected = false })

	case avatar.EventFailed:
		log.Warn().Str("module", "orchestrator").Msg("avatar session failed")
		o.update(func(s *State) {
			s.Error = MsgConnectFailed
			s.Connecting = false
		})

	case avatar.EventStarted:
		log.Info().Str("module", "orchestrator").Msg("avatar started")
		o.update(func(s *State) {
			s.Loading = false
			s.Connecting = false
			s.Started = true
		})
		if err := o.deps.Session.SendBytes(audio.Silence(primerSize)); err != nil {
			log.Warn().Str("module", "orchestrator").Err(err).Msg("failed to send primer")
		}
	}
}

// Start opens the avatar session.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	var prev State
	o.update(func(s *State) {
		prev = *s
		s.Loading = true
		s.Connecting = true
	})

	if err := o.deps.Session.Start(ctx); err != nil {
		if errors.Is(err, avatar.ErrAlreadyStarted) || errors.Is(err, avatar.ErrClosed) {
			o.update(func(s *State) {
				s.Loading = prev.Loading
				s.Connecting = prev.Connecting
			})
			return err
		}
		log.Error().Str("module", "orchestrator").Err(err).Msg("failed to start session")
		o.update(func(s *State) {
			s.Loading = false
			s.Connecting = false
			s.Error = MsgConnectFailed
		})
		return err
	}
	return nil
}

// Say sends text to the agent and speaks the reply through the avatar. A new
// Say cancels the one in flight; the cancelled call returns nil.
func (o *Orchestrator) Say(ctx context.Context, text string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.cancelSay != nil {
		o.cancelSay()
	}
	ctx, cancel := context.WithCancel(ctx)
	o.saySeq++
	seq := o.saySeq
	o.cancelSay = cancel
	o.state.Loading = true
	o.state.Error = ""
	s := o.state
	o.mu.Unlock()
	o.listeners.notify(s)

	defer func() {
		cancel()
		o.mu.Lock()
		if o.saySeq == seq {
			o.cancelSay = nil
			o.state.Loading = false
		}
		s := o.state
		o.mu.Unlock()
		o.listeners.notify(s)
	}()

	err := o.say(ctx, text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Info().Str("module", "orchestrator").Msg("request canceled")
		return nil
	case errors.Is(err, agent.ErrEmptyReply):
		o.update(func(s *State) { s.Error = MsgNoResponse })
		return err
	default:
		log.Error().Str("module", "orchestrator").Err(err).Msg("say failed")
		o.update(func(s *State) { s.Error = MsgGenericFailure })
		return err
	}
}

func (o *Orchestrator) say(ctx context.Context, text string) error {
	ctx, span := trace.StartSpan(ctx, "orchestrator.say",
		oteltrace.WithAttributes(trace.SessionAttrs(o.opts.Identity.RoomID, o.opts.Identity.UserID)...))
	defer span.End()

	reply, err := o.deps.Agent.Reply(ctx, agent.Message{
		Text:     text,
		RoomID:   o.opts.Identity.RoomID,
		UserID:   o.opts.Identity.UserID,
		UserName: o.opts.UserName,
	})
	if err != nil {
		trace.RecordError(span, err)
		return err
	}
	o.update(func(s *State) { s.Reply = reply })
	logger := trace.Logger(ctx, "orchestrator")
	logger.Info().Str("reply", reply).Msg("agent replied")

	req := &tts.SynthesizeRequest{Text: reply, Voice: o.opts.Voice}
	if o.opts.StreamTTS {
		err = o.speakStream(ctx, req)
	} else {
		err = o.speak(ctx, req)
	}
	if err != nil {
		trace.RecordError(span, err)
	}
	return err
}

func (o *Orchestrator) speak(ctx context.Context, req *tts.SynthesizeRequest) error {
	resp, err := o.deps.TTS.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	chunks := audio.Split(resp.AudioData, o.opts.ChunkSize)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.send(chunk)
	}
	oteltrace.SpanFromContext(ctx).SetAttributes(attribute.Int(trace.AttrAudioChunks, len(chunks)))
	logger := trace.Logger(ctx, "orchestrator")
	logger.Debug().Int("bytes", len(resp.AudioData)).Int("chunks", len(chunks)).Msg("reply sent")
	return nil
}

func (o *Orchestrator) speakStream(ctx context.Context, req *tts.SynthesizeRequest) error {
	audioChan, errChan := o.deps.TTS.StreamSynthesize(ctx, req)
	chunker := audio.NewChunker(o.opts.ChunkSize)

	for data := range audioChan {
		if ctx.Err() != nil {
			continue
		}
		for _, chunk := range chunker.Write(data) {
			o.send(chunk)
		}
	}
	if err := <-errChan; err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if rest := chunker.Flush(); rest != nil {
		o.send(rest)
	}
	return nil
}

// send drops the chunk when the channel is not open; the session logs it.
func (o *Orchestrator) send(chunk []byte) {
	if err := o.deps.Session.SendBytes(chunk); err != nil {
		log.Debug().Str("module", "orchestrator").Err(err).Msg("audio chunk dropped")
	}
}

// StartListening begins recording the microphone.
func (o *Orchestrator) StartListening() error {
	if o.deps.Recorder == nil || o.deps.ASR == nil {
		return ErrListeningUnavailable
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state.Listening {
		o.mu.Unlock()
		return nil
	}
	o.state.Listening = true
	s := o.state
	o.mu.Unlock()
	o.listeners.notify(s)

	if err := o.deps.Recorder.Start(); err != nil {
		log.Error().Str("module", "orchestrator").Err(err).Msg("microphone unavailable")
		o.update(func(s *State) {
			s.Listening = false
			s.Error = MsgMicrophone
		})
		return err
	}
	return nil
}

// StopListening stops recording, transcribes the utterance and says it.
func (o *Orchestrator) StopListening(ctx context.Context) error {
	if o.deps.Recorder == nil || o.deps.ASR == nil {
		return ErrListeningUnavailable
	}

	o.mu.Lock()
	if !o.state.Listening {
		o.mu.Unlock()
		return nil
	}
	o.state.Listening = false
	s := o.state
	o.mu.Unlock()
	o.listeners.notify(s)

	pcm, err := o.deps.Recorder.Stop()
	if err != nil {
		log.Error().Str("module", "orchestrator").Err(err).Msg("failed to stop recording")
		o.update(func(s *State) { s.Error = MsgMicrophone })
		return err
	}

	result, err := o.deps.ASR.Recognize(ctx, bytes.NewReader(pcm), o.opts.AudioConfig, asr.RecognitionConfig{})
	if err != nil {
		log.Error().Str("module", "orchestrator").Err(err).Msg("transcription failed")
		o.update(func(s *State) { s.Error = MsgTranscribe })
		return err
	}

	log.Info().Str("module", "orchestrator").Str("text", result.Text).Msg("transcribed")
	return o.Say(ctx, result.Text)
}

// ToggleListening starts or stops listening.
func (o *Orchestrator) ToggleListening(ctx context.Context) error {
	if o.State().Listening {
		return o.StopListening(ctx)
	}
	return o.StartListening()
}

// Close cancels work in flight and closes the session.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.cancelSay != nil {
		o.cancelSay()
	}
	listening := o.state.Listening
	o.state.Listening = false
	o.mu.Unlock()

	o.unsubscribe()
	if listening && o.deps.Recorder != nil {
		if _, err := o.deps.Recorder.Stop(); err != nil {
			log.Warn().Str("module", "orchestrator").Err(err).Msg("failed to stop recording")
		}
	}
	return o.deps.Session.Close()
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
