package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// NodePolicy configures how the engine executes one node.
type NodePolicy struct {
	// Timeout bounds a single attempt. Zero falls back to
	// Options.DefaultNodeTimeout; if both are zero the node is unbounded.
	Timeout time.Duration

	// RetryPolicy enables automatic retries. Nil means one attempt.
	RetryPolicy *RetryPolicy
}

// RetryPolicy describes retries with exponential backoff and jitter.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. 1 disables retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles each time.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable classifies errors. Nil treats every error as permanent.
	Retryable func(error) bool
}

// Validate checks the policy constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("%w: MaxAttempts must be >= 1", ErrInvalidRetryPolicy)
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return fmt.Errorf("%w: MaxDelay must be >= BaseDelay", ErrInvalidRetryPolicy)
	}
	return nil
}

func (rp *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if rp == nil || rp.Retryable == nil {
		return false
	}
	return attempt+1 < rp.MaxAttempts && rp.Retryable(err)
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus jitter in [0, base).
//
// With base=2s, maxDelay=10s: 2-4s, 4-6s, 8-10s, 10-12s...
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// Saturate rather than overflow into a negative delay.
	d := time.Duration(math.MaxInt64)
	if base <= d>>attempt {
		d = base << attempt
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	if rng != nil {
		jitter := time.Duration(rng.Int63n(int64(base))) // #nosec G404 -- retry jitter
		if d <= math.MaxInt64-jitter {
			d += jitter
		}
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nodeTimeout(policy NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy.Timeout > 0 {
		return policy.Timeout
	}
	return defaultTimeout
}

// executeWithTimeout runs node once under its timeout. A deadline hit is
// reported as an EngineError with CodeNodeTimeout, replacing whatever error
// the node returned.
func executeWithTimeout[S any](ctx context.Context, node Node[S], nodeID string, state S, timeout time.Duration) NodeResult[S] {
	if timeout <= 0 {
		return node.Run(ctx, state)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(tctx, state)
	if tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.Err = &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    CodeNodeTimeout,
		}
	}
	return result
}
