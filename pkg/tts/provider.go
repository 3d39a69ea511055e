// Package tts converts agent replies into PCM the avatar can lip-sync to.
package tts

import (
	"context"
)

// AudioFormat defines the audio format of synthesized speech.
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 16000)
	Channels   int    // Number of audio channels (1 for mono)
	Encoding   string // Audio encoding format (e.g., "pcm_s16le")
}

// SynthesizeRequest represents a request to synthesize speech
type SynthesizeRequest struct {
	Text  string // Text to synthesize
	Voice string // Voice ID; empty uses the provider default
}

// SynthesizeResponse represents the response from speech synthesis
type SynthesizeResponse struct {
	AudioData   []byte      // Raw audio data
	AudioFormat AudioFormat // Format of the audio data
}

// Provider is implemented by speech synthesis services.
type Provider interface {
	// Name returns the name of the TTS provider (e.g., "elevenlabs-http")
	Name() string

	// Synthesize converts text to speech and returns the complete audio.
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// StreamSynthesize streams audio chunks as they are generated. The audio
	// channel is closed when synthesis ends; at most one error is delivered.
	StreamSynthesize(ctx context.Context, req *SynthesizeRequest) (<-chan []byte, <-chan error)

	// GetDefaultVoice returns the default voice for this provider
	GetDefaultVoice() string

	// ValidateConfig returns an error if credentials or required settings
	// are missing.
	ValidateConfig() error
}
