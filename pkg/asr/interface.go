// Package asr turns recorded speech into text. Providers take a complete
// utterance; raw PCM is wrapped into WAV before it is uploaded.
package asr

import (
	"context"
	"io"
	"time"

	"github.com/realtime-ai/simli-avatar/pkg/audio"
)

// RecognitionResult represents the output of speech recognition.
type RecognitionResult struct {
	// Text is the recognized text
	Text string

	// Language used for recognition, if known
	Language string

	// Duration of the recognition request
	Duration time.Duration

	// Timestamp when recognition completed
	Timestamp time.Time

	// Additional provider-specific metadata
	Metadata map[string]interface{}
}

// AudioConfig specifies the audio format for recognition.
type AudioConfig struct {
	// SampleRate in Hz (e.g., 16000)
	SampleRate int

	// Channels (1 for mono)
	Channels int

	// Encoding format: "pcm" (or empty) for raw PCM, "wav" for a ready file
	Encoding string

	// BitsPerSample (e.g., 16)
	BitsPerSample int
}

// DefaultAudioConfig matches the microphone recorder.
func DefaultAudioConfig() AudioConfig {
	return PCMConfig(audio.DefaultFormat)
}

// PCMConfig describes raw PCM captured in format f.
func PCMConfig(f audio.Format) AudioConfig {
	return AudioConfig{
		SampleRate:    f.SampleRate,
		Channels:      f.Channels,
		Encoding:      "pcm",
		BitsPerSample: f.BitsPerSample,
	}
}

// RecognitionConfig contains settings for speech recognition.
type RecognitionConfig struct {
	// Language code (e.g., "en"); empty for auto-detection
	Language string

	// Model to use (provider-specific, e.g., "whisper-1")
	Model string

	// Prompt to guide the recognition, if supported
	Prompt string

	// Temperature for sampling (Whisper specific, 0.0-1.0)
	Temperature float32
}

// Provider is the interface for speech recognition backends.
type Provider interface {
	// Name returns the provider name (e.g., "openai-whisper", "agent-whisper")
	Name() string

	// Recognize transcribes a complete audio segment.
	Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Error types for ASR operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeAuthenticationFailed
	ErrCodeNetworkError
	ErrCodeProviderError
)

// readAudio reads the utterance and wraps raw PCM into WAV.
func readAudio(r io.Reader, cfg AudioConfig) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidAudio, Message: "failed to read audio data", Err: err}
	}
	if len(data) == 0 {
		return nil, &Error{Code: ErrCodeInvalidAudio, Message: "audio data is empty"}
	}

	if cfg.Encoding != "pcm" && cfg.Encoding != "" {
		return data, nil
	}
	return audio.EncodeWAV(data, audio.Format{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		BitsPerSample: cfg.BitsPerSample,
	}), nil
}
