package ingest

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a failing embedding, completion or store call
// is attempted.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// CallTimeout limits each individual attempt. Zero means no limit.
	CallTimeout time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

func (p RetryPolicy) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.CallTimeout)
}

// do runs f until it succeeds or the attempts are spent. Every error f
// returns is treated as transient.
func do[T any](ctx context.Context, p RetryPolicy, f func(ctx context.Context) (T, error)) (T, error) {
	return retry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		callCtx, cancel := p.callContext(ctx)
		defer cancel()
		v, err := f(callCtx)
		if err != nil {
			return v, retry.RetryableError(err)
		}
		return v, nil
	})
}
