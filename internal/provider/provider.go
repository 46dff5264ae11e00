// Package provider implements the Provider Adapter (spec.md C5): a
// dialect abstraction over OpenAI-style chat-completions and
// Anthropic-style messages endpoints, normalizing both into a single
// OpenAI-shaped reply envelope.
package provider

import (
	"context"
	"errors"
)

// Name selects an upstream dialect (spec.md §4.5, §6).
type Name string

const (
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
)

// DefaultModel returns the default model identifier for name (spec.md §4.5).
func DefaultModel(name Name) string {
	switch name {
	case Anthropic:
		return "claude-3-5-sonnet-20241022"
	default:
		return "gpt-4"
	}
}

// MaxTokens is the fixed completion budget for every upstream call (spec.md §4.5).
const MaxTokens = 1000

// Message is one turn in the conversation sent to the upstream model.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NormalizedReply is the OpenAI-shaped envelope every dialect is
// normalized into, regardless of upstream (spec.md §4.5).
type NormalizedReply struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Content returns the first choice's message content, or the fallback
// sentinel if the reply is missing it (spec.md §4.5: "Missing fields →
// content = 'No response' rather than a hard failure").
func (r NormalizedReply) Content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == "" {
		return "No response"
	}
	return r.Choices[0].Message.Content
}

// UpstreamError wraps a transport or parse failure from the upstream
// provider (spec.md §4.5, §7). No retries happen within the adapter.
type UpstreamError struct {
	Provider Name
	Err      error
}

func (e *UpstreamError) Error() string { return "upstream(" + string(e.Provider) + "): " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrMissingAPIKey is returned when Call is invoked without an upstream key.
var ErrMissingAPIKey = errors.New("provider: missing upstream api key")

// Adapter is the uniform operation the orchestrator calls against either
// dialect (spec.md §4.5: "call(provider, key, messages, model) →
// NormalizedReply | UpstreamError").
type Adapter interface {
	Call(ctx context.Context, name Name, key string, messages []Message, model string) (NormalizedReply, error)
}
