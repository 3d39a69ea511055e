package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

// AgentWhisperProvider transcribes through the agent server's whisper route:
// POST {endpoint}/{agentID}/whisper with the WAV as multipart field "file".
type AgentWhisperProvider struct {
	url        string
	httpClient *http.Client
}

// NewAgentWhisperProvider creates a provider for the agent at endpoint.
func NewAgentWhisperProvider(endpoint, agentID string) (*AgentWhisperProvider, error) {
	if endpoint == "" || agentID == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "agent endpoint and id are required"}
	}
	return &AgentWhisperProvider{
		url:        fmt.Sprintf("%s/%s/whisper", strings.TrimRight(endpoint, "/"), agentID),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name returns the provider name.
func (p *AgentWhisperProvider) Name() string {
	return "agent-whisper"
}

// Recognize uploads the utterance and returns the transcript.
func (p *AgentWhisperProvider) Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error) {
	fileBytes, err := readAudio(audio, audioConfig)
	if err != nil {
		return nil, err
	}

	ctx, span := trace.InstrumentSTTRequest(ctx, p.Name(), len(fileBytes))
	defer span.End()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, &Error{Code: ErrCodeUnknown, Message: "failed to build form", Err: err}
	}
	if _, err := part.Write(fileBytes); err != nil {
		return nil, &Error{Code: ErrCodeUnknown, Message: "failed to build form", Err: err}
	}
	if err := form.Close(); err != nil {
		return nil, &Error{Code: ErrCodeUnknown, Message: "failed to build form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	startTime := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		trace.RecordError(span, err)
		return nil, &Error{Code: ErrCodeNetworkError, Message: "whisper request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetworkError, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &Error{
			Code:    codeForStatus(resp.StatusCode),
			Message: fmt.Sprintf("whisper request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
		trace.RecordError(span, err)
		return nil, err
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "invalid whisper response", Err: err}
	}

	log.Debug().Str("module", "asr").Int("chars", len(out.Text)).Dur("took", time.Since(startTime)).Msg("agent whisper transcription")

	return &RecognitionResult{
		Text:      out.Text,
		Language:  config.Language,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
	}, nil
}

// Close releases resources.
func (p *AgentWhisperProvider) Close() error {
	return nil
}

func codeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrCodeAuthenticationFailed
	default:
		return ErrCodeProviderError
	}
}

var (
	_ Provider = (*AgentWhisperProvider)(nil)
	_ Provider = (*WhisperProvider)(nil)
)
