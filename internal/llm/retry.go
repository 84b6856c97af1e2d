package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roshni/backend/internal/logger"
)

// RetryPolicy bounds how hard Retrying tries.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// AttemptTimeout caps each attempt; zero means no per-attempt limit.
	AttemptTimeout time.Duration

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries transient failures of the wrapped provider with
// exponential backoff. Permanent failures are returned at once.
type Retrying struct {
	inner  Provider
	policy RetryPolicy
}

// NewRetrying wraps p with policy.
func NewRetrying(p Provider, policy RetryPolicy) *Retrying {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 500 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &Retrying{inner: p, policy: policy}
}

func (r *Retrying) Name() string { return r.inner.Name() }

// Heartbeat runs a single attempt under the attempt timeout.
func (r *Retrying) Heartbeat(ctx context.Context) error {
	ctx, cancel := r.attemptContext(ctx)
	defer cancel()
	return r.inner.Heartbeat(ctx)
}

// Complete calls the wrapped provider until it succeeds, fails permanently,
// the retry budget is spent or ctx is done. The returned error is always an
// *UpstreamError.
func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var result *Completion
	attempt := 0

	operation := func() error {
		attempt++
		attemptCtx, cancel := r.attemptContext(ctx)
		defer cancel()

		resp, err := r.inner.Complete(attemptCtx, req)
		if err == nil {
			result = resp
			return nil
		}

		ue := asUpstream(r.inner.Name(), err)
		if !ue.Transient() || ctx.Err() != nil {
			return backoff.Permanent(ue)
		}
		if attempt <= r.policy.MaxRetries {
			logger.WithLLM(r.inner.Name(), req.Model, req.CallType).WithFields(map[string]interface{}{
				"attempt":     attempt,
				"max_retries": r.policy.MaxRetries,
				"status_code": ue.StatusCode,
				"error":       ue.Err.Error(),
			}).Warn("Transient LLM failure, retrying")
		}
		return ue
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return nil, ue
		}
		// ctx ended while waiting between attempts
		return nil, transportError(r.inner.Name(), err)
	}
	return result, nil
}

func (r *Retrying) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, r.policy.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}
