package garnix

import (
	"context"
	"fmt"
	"time"

	"garnix-insights/src/failure"
)

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps every wait, including one requested via Retry-After.
	MaxDelay time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 250ms and then 500ms.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   250 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// attemptFunc performs one attempt. hint is a server-requested wait, or 0.
type attemptFunc func(ctx context.Context) (body []byte, hint time.Duration, err error)

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the attempt budget is spent.
func (c *Client) withRetry(ctx context.Context, operation string, fn attemptFunc) ([]byte, error) {
	var lastErr error
	made := 0

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		made = attempt
		body, hint, err := fn(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !failure.Retryable(err) {
			c.logger.Warn("garnix request failed",
				"operation", operation,
				"attempt", attempt,
				"class", failure.ClassOf(err),
				"error", err,
			)
			return nil, err
		}
		if attempt == c.retry.MaxAttempts || ctx.Err() != nil {
			break
		}

		backoff := c.retry.Delay(attempt)
		if hint > 0 {
			backoff = min(hint, c.retry.MaxDelay)
		}

		c.logger.Debug("retrying garnix request",
			"operation", operation,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, failure.Wrap(failure.NetworkTransient, ctx.Err(),
				fmt.Sprintf("%s cancelled while waiting to retry", operation))
		case <-timer.C:
		}
	}

	c.logger.Warn("garnix request failed, retries exhausted",
		"operation", operation,
		"attempts", made,
		"error", lastErr,
	)

	fe := failure.As(lastErr)
	return nil, &failure.Error{
		Class:      failure.NetworkTransient,
		Message:    fmt.Sprintf("%s failed after %d attempts", operation, made),
		StatusCode: fe.StatusCode,
		Err:        lastErr,
	}
}
