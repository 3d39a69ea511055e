package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiConfig configures the Gemini chat agent.
type GeminiConfig struct {
	APIKey       string
	BaseURL      string
	Model        string // default gemini-2.0-flash
	SystemPrompt string
	MaxHistory   int // messages kept per room (default 20)
}

// GeminiAgent answers with Gemini GenerateContent.
type GeminiAgent struct {
	config GeminiConfig
	client *genai.Client

	mu      sync.Mutex
	history map[string][]*genai.Content
}

// NewGeminiAgent creates a Gemini chat agent.
func NewGeminiAgent(ctx context.Context, config GeminiConfig) (*GeminiAgent, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("agent: Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = "You are a friendly avatar. Keep your responses short and conversational."
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 20
	}

	cc := &genai.ClientConfig{APIKey: config.APIKey}
	if config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = config.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("agent: create Gemini client: %w", err)
	}

	return &GeminiAgent{
		config:  config,
		client:  client,
		history: make(map[string][]*genai.Content),
	}, nil
}

func (a *GeminiAgent) Name() string { return "gemini" }

// Reply sends the room's recent history plus msg and records both turns.
func (a *GeminiAgent) Reply(ctx context.Context, msg Message) (string, error) {
	ctx, span := trace.InstrumentAgentRequest(ctx, a.Name(), a.config.Model, msg.Text)
	defer span.End()

	user := &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{{Text: msg.Text}}}

	a.mu.Lock()
	contents := append(append([]*genai.Content(nil), a.history[msg.RoomID]...), user)
	a.mu.Unlock()

	resp, err := a.client.Models.GenerateContent(ctx, a.config.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: a.config.SystemPrompt}}},
	})
	if err != nil {
		trace.RecordError(span, err)
		return "", fmt.Errorf("agent: generate content: %w", err)
	}

	reply := geminiText(resp)
	if reply == "" {
		return "", ErrEmptyReply
	}

	model := &genai.Content{Role: geminiRoleModel, Parts: []*genai.Part{{Text: reply}}}
	a.mu.Lock()
	a.history[msg.RoomID] = trimHistory(append(a.history[msg.RoomID], user, model), a.config.MaxHistory)
	a.mu.Unlock()

	log.Debug().Str("module", "agent").Str("model", a.config.Model).Int("chars", len(reply)).Msg("content generated")
	return reply, nil
}

// HistoryLen reports how many messages are kept for room.
func (a *GeminiAgent) HistoryLen(room string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history[room])
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}
