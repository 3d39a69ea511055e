package asr

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

// WhisperProvider implements the Provider interface using OpenAI's Whisper API.
type WhisperProvider struct {
	client *openai.Client
}

// WhisperOption customizes the OpenAI client configuration.
type WhisperOption func(*openai.ClientConfig)

// WithWhisperBaseURL points the provider at an OpenAI-compatible endpoint.
func WithWhisperBaseURL(baseURL string) WhisperOption {
	return func(cfg *openai.ClientConfig) {
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
	}
}

// NewWhisperProvider creates a new OpenAI Whisper ASR provider.
func NewWhisperProvider(apiKey string, opts ...WhisperOption) (*WhisperProvider, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&clientConfig)
	}
	log.Debug().Str("module", "asr").Str("base_url", clientConfig.BaseURL).Msg("whisper provider configured")

	return &WhisperProvider{
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider name.
func (w *WhisperProvider) Name() string {
	return "openai-whisper"
}

// Recognize performs speech recognition on a complete audio segment.
func (w *WhisperProvider) Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error) {
	fileBytes, err := readAudio(audio, audioConfig)
	if err != nil {
		return nil, err
	}

	ctx, span := trace.InstrumentSTTRequest(ctx, w.Name(), len(fileBytes))
	defer span.End()

	req := openai.AudioRequest{
		Model:    config.Model,
		FilePath: "audio.wav", // filename hint for the API
		Reader:   bytes.NewReader(fileBytes),
		Prompt:   config.Prompt,
		Language: config.Language,
	}
	if req.Model == "" {
		req.Model = openai.Whisper1
	}
	if config.Temperature > 0 {
		req.Temperature = config.Temperature
	}

	startTime := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		trace.RecordError(span, err)
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	log.Debug().Str("module", "asr").Int("chars", len(resp.Text)).Dur("took", time.Since(startTime)).Msg("whisper transcription")

	return &RecognitionResult{
		Text:      resp.Text,
		Language:  config.Language,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model": req.Model,
		},
	}, nil
}

// Close releases resources.
func (w *WhisperProvider) Close() error {
	return nil
}
