// Package llm talks to the completion service used for report generation.
//
// A Provider is built from configuration by New. The returned provider is a
// chain: the concrete backend (OpenAI-compatible or Ollama), wrapped by a
// Tracker that records every attempt, wrapped by Retrying which applies the
// per-attempt timeout and exponential backoff on transient failures.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/roshni/backend/internal/config"
)

// Provider is a chat-completion backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the backend ("openai", "ollama").
	Name() string

	// Complete sends the messages and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Heartbeat checks that the backend is reachable.
	Heartbeat(ctx context.Context) error
}

// Message is a single role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is one call to the completion service.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32

	// CallType labels the call in tracking and logs, e.g. "incident_report".
	CallType string

	// IncidentID is recorded with the call when set.
	IncidentID string
}

// Completion is the generated answer.
type Completion struct {
	Content      string
	Model        string
	PromptTokens int
	TotalTokens  int
}

// ErrorKind separates failures worth retrying from those that are not.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// UpstreamError is returned for every failed completion call.
type UpstreamError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Transient reports whether retrying might succeed.
func (e *UpstreamError) Transient() bool { return e.Kind == KindTransient }

var (
	// ErrInvalidResponse means the service answered without usable text.
	ErrInvalidResponse = errors.New("completion service returned no content")

	// ErrEmptyMessages means Complete was called without messages.
	ErrEmptyMessages = errors.New("messages cannot be empty")
)

// KindForStatus classifies an HTTP status returned by the service.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 408, status == 425, status == 429:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// transportError wraps failures that happened before an HTTP status was read.
// Deadlines, network errors and other transport failures are transient;
// response bodies that could not be decoded are permanent.
func transportError(provider string, err error) *UpstreamError {
	var netErr net.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return &UpstreamError{Provider: provider, Kind: KindTransient, Err: err}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, ErrInvalidResponse):
		return &UpstreamError{Provider: provider, Kind: KindPermanent, Err: err}
	default:
		return &UpstreamError{Provider: provider, Kind: KindTransient, Err: err}
	}
}

// asUpstream makes sure err is an *UpstreamError.
func asUpstream(provider string, err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return transportError(provider, err)
}

// New builds the provider chain described in the package comment.
func New(cfg config.LLMConfig, tracker *Tracker) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	case "ollama":
		base, err = NewOllama(OllamaConfig{Host: cfg.OllamaHost, Model: cfg.Model})
	case "":
		return nil, errors.New("llm provider not specified in configuration")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var p Provider = base
	if tracker != nil {
		p = tracker.Wrap(p)
	}
	return NewRetrying(p, RetryPolicy{
		MaxRetries:      cfg.MaxRetries,
		AttemptTimeout:  cfg.Timeout,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}), nil
}
