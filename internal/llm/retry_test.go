package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedProvider returns the scripted errors in order, then succeeds.
type scriptedProvider struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	block    bool
	deadline []bool
}

func (s *scriptedProvider) Name() string { return "scripted" }
func (s *scriptedProvider) Heartbeat(context.Context) error { return nil }

func (s *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	_, hasDeadline := ctx.Deadline()
	s.deadline = append(s.deadline, hasDeadline)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(s.errs) {
		return nil, s.errs[n]
	}
	return &Completion{Content: "ok", Model: req.Model}, nil
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func transient(code int) error {
	return &UpstreamError{Provider: "scripted", Kind: KindForStatus(code), StatusCode: code, Err: errors.New("upstream")}
}

func TestRetryingRecoversFromTransientFailures(t *testing.T) {
	p := &scriptedProvider{errs: []error{transient(503), transient(429)}}
	r := NewRetrying(p, fastPolicy(3))

	resp, err := r.Complete(context.Background(), CompletionRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", p.calls)
	}
}

func TestRetryingStopsOnPermanentFailure(t *testing.T) {
	p := &scriptedProvider{errs: []error{transient(401), transient(500)}}
	r := NewRetrying(p, fastPolicy(3))

	_, err := r.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %T (%v)", err, err)
	}
	if ue.Transient() {
		t.Error("401 must be permanent")
	}
	if ue.StatusCode != 401 {
		t.Errorf("status = %d, want 401", ue.StatusCode)
	}
	if p.calls != 1 {
		t.Errorf("permanent failures must not be retried, got %d attempts", p.calls)
	}
}

func TestRetryingExhaustsBudget(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = transient(502)
	}
	p := &scriptedProvider{errs: errs}
	r := NewRetrying(p, fastPolicy(2))

	_, err := r.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	var ue *UpstreamError
	if !errors.As(err, &ue) || !ue.Transient() {
		t.Fatalf("expected transient *UpstreamError, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", p.calls)
	}
}

func TestRetryingZeroRetries(t *testing.T) {
	p := &scriptedProvider{errs: []error{transient(503)}}
	r := NewRetrying(p, fastPolicy(0))

	if _, err := r.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected a single attempt, got %d", p.calls)
	}
}

func TestRetryingAttemptTimeout(t *testing.T) {
	p := &scriptedProvider{block: true}
	policy := fastPolicy(1)
	policy.AttemptTimeout = 20 * time.Millisecond
	r := NewRetrying(p, policy)

	start := time.Now()
	_, err := r.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if !ue.Transient() {
		t.Error("timeouts must be transient")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", p.calls)
	}
	for i, ok := range p.deadline {
		if !ok {
			t.Errorf("attempt %d ran without a deadline", i+1)
		}
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("attempt timeout not honoured, took %v", time.Since(start))
	}
}

func TestRetryingCallerCancellation(t *testing.T) {
	p := &scriptedProvider{block: true}
	r := NewRetrying(p, fastPolicy(5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Complete(ctx, CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("a cancelled caller must not be retried, got %d attempts", p.calls)
	}
}
