package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/trace"
)

// OpenAIConfig configures the chat completion agent.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string // default gpt-4o-mini
	SystemPrompt string
	MaxTokens    int
	MaxHistory   int // messages kept per room (default 20)
	Temperature  float64
}

// OpenAIAgent answers with OpenAI chat completions.
type OpenAIAgent struct {
	config OpenAIConfig
	client openai.Client

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessageParamUnion
}

// NewOpenAIAgent creates a chat completion agent.
func NewOpenAIAgent(config OpenAIConfig, opts ...option.RequestOption) (*OpenAIAgent, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("agent: OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = "You are a friendly avatar. Keep your responses short and conversational."
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 20
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(config.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIAgent{
		config:  config,
		client:  openai.NewClient(reqOpts...),
		history: make(map[string][]openai.ChatCompletionMessageParamUnion),
	}, nil
}

func (a *OpenAIAgent) Name() string { return "openai" }

// Reply sends the room's recent history plus msg and records both turns.
func (a *OpenAIAgent) Reply(ctx context.Context, msg Message) (string, error) {
	ctx, span := trace.InstrumentAgentRequest(ctx, a.Name(), a.config.Model, msg.Text)
	defer span.End()

	user := openai.UserMessage(msg.Text)
	params := openai.ChatCompletionNewParams{
		Messages: a.buildMessages(msg.RoomID, user),
		Model:    shared.ChatModel(a.config.Model),
	}
	if a.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(a.config.MaxTokens))
	}
	if a.config.Temperature > 0 {
		params.Temperature = openai.Float(a.config.Temperature)
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		trace.RecordError(span, err)
		return "", fmt.Errorf("agent: completion: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	reply := completion.Choices[0].Message.Content
	a.addToHistory(msg.RoomID, user, openai.AssistantMessage(reply))

	log.Debug().Str("module", "agent").Str("model", a.config.Model).Int("chars", len(reply)).Msg("completion received")
	return reply, nil
}

func (a *OpenAIAgent) buildMessages(room string, next openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	a.mu.Lock()
	defer a.mu.Unlock()

	past := a.history[room]
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(past)+2)
	messages = append(messages, openai.SystemMessage(a.config.SystemPrompt))
	messages = append(messages, past...)
	return append(messages, next)
}

// addToHistory appends a user/assistant pair, dropping the oldest pairs past
// MaxHistory.
func (a *OpenAIAgent) addToHistory(room string, msgs ...openai.ChatCompletionMessageParamUnion) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history[room] = trimHistory(append(a.history[room], msgs...), a.config.MaxHistory)
}

// HistoryLen reports how many messages are kept for room.
func (a *OpenAIAgent) HistoryLen(room string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history[room])
}

var (
	_ Agent = (*HTTPAgent)(nil)
	_ Agent = (*OpenAIAgent)(nil)
	_ Agent = (*GeminiAgent)(nil)
)
