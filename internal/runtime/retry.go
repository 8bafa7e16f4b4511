package runtime

import (
	"context"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

// retryPolicy is a fixed-delay retry budget.
type retryPolicy struct {
	extra int
	delay time.Duration
}

func policyFor(enabled bool, r *domain.Retry) retryPolicy {
	if !enabled || r == nil || r.Max <= 0 {
		return retryPolicy{}
	}
	p := retryPolicy{extra: r.Max, delay: DefaultRetryDelay}
	if r.Delay > 0 {
		p.delay = time.Duration(r.Delay) * time.Millisecond
	}
	return p
}

// attemptFunc runs attempt n (1-based). retryable reports whether a failed
// attempt may be repeated.
type attemptFunc func(ctx context.Context, n int) (retryable bool, err error)

// retry runs fn until it succeeds, fails permanently or exhausts the policy.
// It returns the last error.
func (e *Engine) retry(ctx context.Context, p retryPolicy, fn attemptFunc) error {
	var err error
	for n := 1; n <= p.extra+1; n++ {
		var retryable bool
		retryable, err = fn(ctx, n)
		if err == nil || !retryable || n > p.extra {
			return err
		}
		if sleepErr := e.sleep(ctx, p.delay); sleepErr != nil {
			return err
		}
	}
	return err
}
