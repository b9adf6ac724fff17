package wxrelay

import (
	"context"
	"sync"
)

// Session is a multi-turn generation context for one user. It owns the
// conversation history and extends it on every exchange, mirroring the
// backend's chat-session semantics. A Session is owned exclusively by one
// ConversationStore entry; the mutex covers concurrent dispatches for the
// same user.
type Session struct {
	mu      sync.Mutex
	history []ChatMessage
}

// NewSession creates a session with empty history.
func NewSession() *Session {
	return &Session{}
}

// Send appends the user turn, calls the provider with the full history, and
// on success appends the assistant turn. The history is not extended when the
// call fails, so a failed exchange leaves the session as it was.
func (s *Session) Send(ctx context.Context, p Provider, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]ChatMessage, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, UserMessage(text))

	resp, err := p.Chat(ctx, ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}

	s.history = append(s.history, UserMessage(text), AssistantMessage(resp.Content))
	return resp.Content, nil
}

// Len returns the number of stored turns (user and assistant counted
// separately).
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
