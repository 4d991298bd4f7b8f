// Package llm defines the provider-neutral model interface used to parse
// resumes and review them against job ads.
//
// Concrete adapters live in the gemini, anthropic and openai subpackages;
// provider.New picks one from configuration.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is shorthand for a single user message.
func User(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// Usage reports token consumption when the provider returns it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut is a complete model reply.
type ChatOut struct {
	Text  string
	Usage Usage
}

// ChatModel returns a complete reply for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// StreamingModel also delivers a reply incrementally. fn is called once per
// chunk in order; a non-nil return from fn aborts the stream with that error.
type StreamingModel interface {
	ChatModel
	Stream(ctx context.Context, messages []Message, fn func(chunk string) error) error
}

// ErrStreamInterrupted marks a stream that failed after some chunks were
// already delivered. Restarting it would repeat those chunks, so IsRetryable
// reports it as permanent whatever the underlying cause.
var ErrStreamInterrupted = errors.New("stream interrupted after partial output")

// APIError is a provider failure carrying the HTTP status the provider
// answered with. Adapters wrap SDK errors in it so callers can classify them
// without importing every SDK.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a rate limit (429) or a server error
// (5xx). Everything else, including client errors and context cancellation,
// is permanent, as is any error marked ErrStreamInterrupted.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStreamInterrupted) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
}
