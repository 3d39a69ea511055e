// ElevenLabs HTTP TTS Provider
//
// Synthesizes 16kHz mono PCM with the ElevenLabs text-to-speech API, either
// as one response or streamed.
//
// Reference: https://elevenlabs.io/docs/api-reference/text-to-speech

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

const (
	elevenLabsHTTPEndpoint           = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsHTTPDefaultModel       = "eleven_turbo_v2_5"
	elevenLabsHTTPDefaultVoice       = "21m00Tcm4TlvDq8ikWAM" // Rachel
	elevenLabsHTTPOutputFormat       = "pcm_16000"            // 16kHz mono PCM
	elevenLabsHTTPSampleRate         = 16000
	elevenLabsHTTPStreamingChunkSize = 4096
)

// ElevenLabsHTTPTTSConfig holds the configuration for ElevenLabs HTTP TTS
type ElevenLabsHTTPTTSConfig struct {
	APIKey          string  // Required: ElevenLabs API key
	VoiceID         string  // Optional: default voice (default: Rachel)
	Model           string  // Optional: model ID (default: eleven_turbo_v2_5)
	Endpoint        string  // Optional: API base (default: https://api.elevenlabs.io/v1/text-to-speech)
	Stability       float64 // Optional: voice stability 0-1; voice settings are sent only when set
	SimilarityBoost float64 // Optional: similarity boost 0-1
	Timeout         time.Duration
}

// ElevenLabsHTTPTTSProvider implements Provider over the HTTP API.
type ElevenLabsHTTPTTSProvider struct {
	apiKey          string
	voiceID         string
	model           string
	endpoint        string
	stability       float64
	similarityBoost float64
	httpClient      *http.Client
}

// NewElevenLabsHTTPTTSProvider creates a new ElevenLabs HTTP TTS provider
func NewElevenLabsHTTPTTSProvider(config ElevenLabsHTTPTTSConfig) (*ElevenLabsHTTPTTSProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}

	voice := config.VoiceID
	if voice == "" {
		voice = elevenLabsHTTPDefaultVoice
	}
	model := config.Model
	if model == "" {
		model = elevenLabsHTTPDefaultModel
	}
	endpoint := strings.TrimRight(config.Endpoint, "/")
	if endpoint == "" {
		endpoint = elevenLabsHTTPEndpoint
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &ElevenLabsHTTPTTSProvider{
		apiKey:          config.APIKey,
		voiceID:         voice,
		model:           model,
		endpoint:        endpoint,
		stability:       config.Stability,
		similarityBoost: config.SimilarityBoost,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name
func (p *ElevenLabsHTTPTTSProvider) Name() string {
	return "elevenlabs-http"
}

func (p *ElevenLabsHTTPTTSProvider) format() AudioFormat {
	return AudioFormat{SampleRate: elevenLabsHTTPSampleRate, Channels: 1, Encoding: "pcm_s16le"}
}

// Synthesize converts text to speech and returns the whole PCM buffer.
func (p *ElevenLabsHTTPTTSProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	voice := p.voiceFor(req)
	ctx, span := trace.InstrumentTTSRequest(ctx, p.Name(), voice, req.Text)
	defer span.End()

	resp, err := p.post(ctx, voice, req.Text, false)
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Debug().Str("module", "tts").Str("voice", voice).Int("bytes", len(audioData)).Msg("speech synthesized")

	return &SynthesizeResponse{AudioData: audioData, AudioFormat: p.format()}, nil
}

// StreamSynthesize streams audio data as it's generated
func (p *ElevenLabsHTTPTTSProvider) StreamSynthesize(ctx context.Context, req *SynthesizeRequest) (<-chan []byte, <-chan error) {
	audioChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(audioChan)
		defer close(errChan)

		if err := p.doStreamSynthesize(ctx, req, audioChan); err != nil {
			errChan <- err
		}
	}()

	return audioChan, errChan
}

func (p *ElevenLabsHTTPTTSProvider) doStreamSynthesize(ctx context.Context, req *SynthesizeRequest, audioChan chan<- []byte) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}

	voice := p.voiceFor(req)
	ctx, span := trace.InstrumentTTSRequest(ctx, p.Name(), voice, req.Text)
	defer span.End()

	resp, err := p.post(ctx, voice, req.Text, true)
	if err != nil {
		trace.RecordError(span, err)
		return err
	}
	defer resp.Body.Close()

	buffer := make([]byte, elevenLabsHTTPStreamingChunkSize)
	for {
		n, err := resp.Body.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])

			select {
			case audioChan <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			trace.RecordError(span, err)
			return fmt.Errorf("failed to read response body: %w", err)
		}
	}
}

func (p *ElevenLabsHTTPTTSProvider) voiceFor(req *SynthesizeRequest) string {
	if req.Voice != "" {
		return req.Voice
	}
	return p.voiceID
}

// post sends the synthesis request and returns the response once the status
// is known to be 200.
func (p *ElevenLabsHTTPTTSProvider) post(ctx context.Context, voice, text string, stream bool) (*http.Response, error) {
	params := url.Values{}
	params.Set("output_format", elevenLabsHTTPOutputFormat)

	path := url.PathEscape(voice)
	if stream {
		path += "/stream"
	}
	requestURL := fmt.Sprintf("%s/%s?%s", p.endpoint, path, params.Encode())

	body := elevenLabsHTTPRequestBody{Text: text, ModelID: p.model}
	if p.stability != 0 || p.similarityBoost != 0 {
		body.VoiceSettings = &elevenLabsHTTPVoiceSettings{
			Stability:       p.stability,
			SimilarityBoost: p.similarityBoost,
		}
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// GetDefaultVoice returns the configured voice ID
func (p *ElevenLabsHTTPTTSProvider) GetDefaultVoice() string {
	return p.voiceID
}

// ValidateConfig validates the provider configuration
func (p *ElevenLabsHTTPTTSProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("ElevenLabs API key is not set")
	}
	if p.voiceID == "" {
		return fmt.Errorf("ElevenLabs Voice ID is not set")
	}
	return nil
}

// HTTP request body types

type elevenLabsHTTPRequestBody struct {
	Text          string                       `json:"text"`
	ModelID       string                       `json:"model_id,omitempty"`
	VoiceSettings *elevenLabsHTTPVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsHTTPVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var _ Provider = (*ElevenLabsHTTPTTSProvider)(nil)
