// Package wxrelay relays WeChat Official Account messages to a generative
// language backend and pushes the generated replies back through the
// customer-service message API.
//
// The WeChat webhook must be answered within five seconds, which a model call
// routinely exceeds. The webhook handler therefore acknowledges immediately
// and the reply is produced and delivered out-of-band.
package wxrelay

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "gemini").
	Name() string
}

// Deliverer pushes an outbound reply to a user through the chat platform.
// Implementations segment and retry as the platform requires.
type Deliverer interface {
	Send(ctx context.Context, user, text string) error
}

// Journal records outbound delivery outcomes. Implementations must be safe
// for concurrent use; a nil Journal disables journaling.
type Journal interface {
	Record(ctx context.Context, d Delivery) error
}

// Delivery is one outbound push, successful or not.
type Delivery struct {
	ID        string
	User      string
	Segments  int
	Bytes     int
	Status    string // "ok" or "error"
	Error     string
	CreatedAt int64
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string      `json:"role"` // "system", "user", "assistant"
	Content string      `json:"content"`
	Images  []ImageData `json:"images,omitempty"`
}

type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// SystemMessage builds a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage builds a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage builds an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}
