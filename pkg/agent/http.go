package agent

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

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

const defaultUserName = "User"

// HTTPAgent talks to an agent server: POST {endpoint}/{agentID}/message.
type HTTPAgent struct {
	agentID    string
	url        string
	httpClient *http.Client
}

// NewHTTPAgent creates an agent for agentID served at endpoint.
func NewHTTPAgent(endpoint, agentID string) *HTTPAgent {
	return &HTTPAgent{
		agentID:    agentID,
		url:        fmt.Sprintf("%s/%s/message", strings.TrimRight(endpoint, "/"), agentID),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *HTTPAgent) Name() string { return "http" }

type messageRequest struct {
	Text     string `json:"text"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type messageReply struct {
	Text string `json:"text"`
}

// Reply posts msg and returns the text of the first reply message.
func (a *HTTPAgent) Reply(ctx context.Context, msg Message) (string, error) {
	ctx, span := trace.InstrumentAgentRequest(ctx, a.Name(), a.agentID, msg.Text)
	defer span.End()

	reply, err := a.reply(ctx, msg)
	if err != nil {
		trace.RecordError(span, err)
		return "", err
	}
	return reply, nil
}

func (a *HTTPAgent) reply(ctx context.Context, msg Message) (string, error) {
	userName := msg.UserName
	if userName == "" {
		userName = defaultUserName
	}

	body, err := json.Marshal(messageRequest{
		Text:     msg.Text,
		RoomID:   msg.RoomID,
		UserID:   msg.UserID,
		UserName: userName,
	})
	if err != nil {
		return "", fmt.Errorf("agent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("agent: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var replies []messageReply
	if err := json.Unmarshal(raw, &replies); err != nil {
		return "", fmt.Errorf("agent: decode response: %w", err)
	}

	log.Debug().Str("module", "agent").Int("replies", len(replies)).Msg("agent responded")

	if len(replies) == 0 || replies[0].Text == "" {
		return "", ErrEmptyReply
	}
	return replies[0].Text, nil
}
