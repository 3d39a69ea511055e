// Package agent answers user utterances on behalf of the avatar.
//
// Three backends are provided: the HTTP agent server the avatar front end
// talks to, and OpenAI and Gemini chat agents that keep a short history per
// room.
//
// Basic usage:
//
//	a := agent.NewHTTPAgent("http://localhost:3000", agentID)
//	reply, err := a.Reply(ctx, agent.Message{Text: "hi", RoomID: room, UserID: user})
//	if errors.Is(err, agent.ErrEmptyReply) {
//		// the agent had nothing to say
//	}
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyReply is returned when the agent produced no text.
var ErrEmptyReply = errors.New("agent: empty reply")

// Message is one user turn.
type Message struct {
	Text     string
	RoomID   string
	UserID   string
	UserName string
}

// Agent produces a reply for a user message.
type Agent interface {
	Name() string
	Reply(ctx context.Context, msg Message) (string, error)
}

// StatusError reports a non-2xx response from an agent server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent: status %d: %s", e.Code, e.Body)
}

// trimHistory drops the oldest user/assistant pairs past max messages.
func trimHistory[T any](h []T, max int) []T {
	excess := len(h) - max
	if excess <= 0 {
		return h
	}
	if excess%2 != 0 {
		excess++
	}
	return h[excess:]
}
