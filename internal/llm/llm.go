// Package llm talks to the chat-completion backends that write answers.
package llm

import "context"

// Provider is a chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
	// SupportsImages is false for backends that silently drop
	// Message.Images.
	SupportsImages() bool
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline attachment on a user turn.
type Image struct {
	MIMEType string
	Data     []byte
}

type Message struct {
	Role    Role
	Content string
	Images  []Image
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

func (r CompletionRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// CompletionResponse carries the generated text plus token accounting when
// the backend reports it.
type CompletionResponse struct {
	Content      string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
}
