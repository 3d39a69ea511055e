// Package simli is an HTTP client for the Simli avatar API: the session-token
// handshake and the WebRTC offer/answer exchange.
package simli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production Simli API.
	DefaultBaseURL = "https://api.simli.ai"

	startAudioToVideoPath = "/startAudioToVideoSession"
	startWebRTCPath       = "/StartWebRTCSession"

	defaultTimeout = 30 * time.Second
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("simli %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// AudioToVideoRequest is the body of the session-token handshake.
type AudioToVideoRequest struct {
	FaceID        string `json:"faceId"`
	IsJPG         bool   `json:"isJPG"`
	APIKey        string `json:"apiKey"`
	SyncAudio     bool   `json:"syncAudio"`
	HandleSilence bool   `json:"handleSilence"`
}

type audioToVideoResponse struct {
	SessionToken string `json:"session_token"`
}

// WebRTCSessionRequest carries the local SDP offer.
type WebRTCSessionRequest struct {
	SDP            string `json:"sdp"`
	Type           string `json:"type"`
	VideoTransform string `json:"video_transform"`
}

// Client talks to the Simli HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartAudioToVideoSession performs the handshake that authorizes audio
// delivery and returns the session token.
//
// The body is read as text before any JSON parsing so that non-JSON error
// bodies are still reported.
func (c *Client) StartAudioToVideoSession(ctx context.Context, req AudioToVideoRequest) (string, error) {
	log.Debug().
		Str("module", "simli").
		Str("face_id", req.FaceID).
		Int("api_key_len", len(req.APIKey)).
		Bool("handle_silence", req.HandleSilence).
		Msg("starting audio-to-video session")

	raw, err := c.post(ctx, startAudioToVideoPath, req)
	if err != nil {
		return "", err
	}

	var resp audioToVideoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("simli %s: decode response: %w", startAudioToVideoPath, err)
	}
	if resp.SessionToken == "" {
		return "", fmt.Errorf("simli %s: response has no session_token", startAudioToVideoPath)
	}
	return resp.SessionToken, nil
}

// StartWebRTCSession submits the local offer and returns the remote answer.
func (c *Client) StartWebRTCSession(ctx context.Context, req WebRTCSessionRequest) (SessionDescription, error) {
	if req.VideoTransform == "" {
		req.VideoTransform = "none"
	}

	raw, err := c.post(ctx, startWebRTCPath, req)
	if err != nil {
		return SessionDescription{}, err
	}

	var answer SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return SessionDescription{}, fmt.Errorf("simli %s: decode answer: %w", startWebRTCPath, err)
	}
	if answer.SDP == "" {
		return SessionDescription{}, fmt.Errorf("simli %s: answer has no sdp", startWebRTCPath)
	}
	return answer, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("simli %s: marshal request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("simli %s: create request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("simli %s: send request: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("simli %s: read response: %w", path, err)
	}

	log.Debug().Str("module", "simli").Str("path", path).Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: path, Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
