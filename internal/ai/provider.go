// ABOUTME: Provider contract for AI collaborators and shared message types.
// ABOUTME: Implementations: Ollama (ollama.go) and OpenAI-compatible (openai.go).

package ai

import (
	"context"
	"errors"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrProviderUnavailable indicates the provider's endpoint could not be
	// reached or did not identify itself as ready.
	ErrProviderUnavailable = errors.New("ai provider unavailable")

	// ErrEmptyAnswer indicates the model returned a response with no content.
	ErrEmptyAnswer = errors.New("ai provider returned an empty answer")
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the AI collaborator contract. Chat is a single non-streaming
// completion; model may be empty to use the provider's default. Calls are
// never retried by the dispatcher: a failed or slow answer is a domain error.
type Provider interface {
	// Chat sends the conversation and returns the assistant's answer.
	Chat(ctx context.Context, messages []Message, model string) (string, error)

	// Available reports whether the provider's endpoint is reachable,
	// wrapping ErrProviderUnavailable when it is not.
	Available(ctx context.Context) error

	// Name identifies the provider ("ollama", "openai") for results and logs.
	Name() string
}
