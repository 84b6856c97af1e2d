package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roshni/backend/internal/logger"
)

// DefaultTrackerSize is the number of calls kept when NewTracker gets 0.
const DefaultTrackerSize = 100

// APICall is one recorded attempt against the completion service.
type APICall struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	IncidentID    string        `json:"incident_id,omitempty"`
	CallType      string        `json:"call_type"`
	PromptChars   int           `json:"prompt_chars"`
	Status        string        `json:"status"` // "ok" or "error"
	StatusCode    int           `json:"status_code,omitempty"`
	Duration      time.Duration `json:"duration"`
	ResponseChars int           `json:"response_chars"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	PromptTokens  int           `json:"prompt_tokens,omitempty"`
	TotalTokens   int           `json:"total_tokens,omitempty"`
}

// Tracker keeps the most recent calls in memory for the /llm endpoints.
type Tracker struct {
	mu    sync.RWMutex
	calls []APICall
	limit int
	seq   uint64
}

// NewTracker creates a tracker holding up to limit calls.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerSize
	}
	return &Tracker{calls: make([]APICall, 0), limit: limit}
}

// Calls returns a copy of the tracked calls, oldest first.
func (t *Tracker) Calls() []APICall {
	t.mu.RLock()
	defer t.mu.RUnlock()

	calls := make([]APICall, len(t.calls))
	copy(calls, t.calls)
	return calls
}

// Clear drops the call history.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = make([]APICall, 0)
}

func (t *Tracker) add(call APICall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	call.ID = fmt.Sprintf("llm_%d_%d", call.Timestamp.UnixNano(), t.seq)

	// Keep only the last limit calls
	if len(t.calls) >= t.limit {
		t.calls = t.calls[1:]
	}
	t.calls = append(t.calls, call)
}

// Wrap returns a Provider that records every Complete call on t.
func (t *Tracker) Wrap(p Provider) Provider {
	return &trackedProvider{inner: p, tracker: t}
}

type trackedProvider struct {
	inner   Provider
	tracker *Tracker
}

func (tp *trackedProvider) Name() string { return tp.inner.Name() }

func (tp *trackedProvider) Heartbeat(ctx context.Context) error { return tp.inner.Heartbeat(ctx) }

func (tp *trackedProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	resp, err := tp.inner.Complete(ctx, req)

	call := APICall{
		Timestamp:   start,
		Provider:    tp.inner.Name(),
		Model:       req.Model,
		IncidentID:  req.IncidentID,
		CallType:    req.CallType,
		PromptChars: promptChars(req.Messages),
		Duration:    time.Since(start),
	}

	log := logger.WithLLM(call.Provider, call.Model, call.CallType).WithField("duration_ms", call.Duration.Milliseconds())
	if err != nil {
		call.Status = "error"
		call.Error = err.Error()
		var ue *UpstreamError
		if errors.As(err, &ue) {
			call.StatusCode = ue.StatusCode
			call.ErrorKind = ue.Kind.String()
		}
		log.WithField("error", err.Error()).Warn("LLM call failed")
	} else {
		call.Status = "ok"
		call.ResponseChars = len(resp.Content)
		call.PromptTokens = resp.PromptTokens
		call.TotalTokens = resp.TotalTokens
		if resp.Model != "" {
			call.Model = resp.Model
		}
		log.WithField("response_chars", call.ResponseChars).Debug("LLM call completed")
	}
	tp.tracker.add(call)

	return resp, err
}

func promptChars(messages []Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}
