// Package llm provides a client for OpenAI-compatible chat completion
// backends (LM Studio, vLLM, llama.cpp server) with bounded concurrency and
// retry with exponential backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client. They are wrapped, use errors.Is.
var (
	ErrRateLimit    = errors.New("llm: rate limit exceeded")
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrEmptyPrompt  = errors.New("llm: empty prompt")
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Generator produces a completion for a system and user prompt pair.
// A zero temperature or maxTokens selects the implementation's default.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// ── Errors ──

// BackendError is returned when a completion could not be obtained, either
// because retries were exhausted or because the failure was terminal.
type BackendError struct {
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("llm: backend failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// MalformedResponseError is returned when the backend answered 2xx but the
// body did not carry choices[0].message.content.
type MalformedResponseError struct {
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	return "llm: malformed response: " + e.Reason
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: backend returned status %d: %s", e.Code, e.Body)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrProviderDown
	}
	return nil
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
