// Package retrier wraps a single fallible upload request in a bounded,
// backoff-delayed retry loop with cooperative cancellation.
package retrier

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/avcloud-io/go-uploader/uploader/transport"
)

// DefaultMaxRetries bounds the default strategy when the caller does not
// configure a maximum.
const DefaultMaxRetries = 6

// RetryStrategy decides whether a failed attempt should be retried.
// attempt is 0-based. A true result means: wait delay, then retry.
// A false result surfaces err as the operation's final error.
type RetryStrategy func(attempt int, err error) (delay time.Duration, retry bool)

// DefaultRetryStrategy fails fast on client errors and backs off
// quadratically on everything else: attempt n sleeps 200 + 2000*n*(n+1)
// milliseconds. The growth is deliberately quadratic, not exponential;
// transient 5xx/network failures get patient waits while 4xx responses are
// surfaced immediately.
func DefaultRetryStrategy(maxRetries int) RetryStrategy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return func(attempt int, err error) (time.Duration, bool) {
		var tErr *transport.Error
		if errors.As(err, &tErr) &&
			tErr.StatusCode >= http.StatusBadRequest && tErr.StatusCode < http.StatusInternalServerError {
			return 0, false
		}
		if attempt >= maxRetries {
			return 0, false
		}
		delayMs := 200 + 2000*attempt*(attempt+1)
		return time.Duration(delayMs) * time.Millisecond, true
	}
}

// Operation is one attempt of the wrapped upload request.
type Operation func(ctx context.Context) (*transport.Video, error)

// Retrier runs an Operation until it succeeds, the strategy gives up, or the
// context is canceled.
type Retrier struct {
	strategy RetryStrategy
	logger   log.Logger
}

// New ...
func New(strategy RetryStrategy, logger log.Logger) *Retrier {
	if strategy == nil {
		strategy = DefaultRetryStrategy(DefaultMaxRetries)
	}
	return &Retrier{
		strategy: strategy,
		logger:   logger,
	}
}

// Do runs op with retries. Cancellation settles the result as an ABORTED
// error immediately, without consulting the strategy: an in-flight request is
// aborted through the context and a pending backoff sleep is cut short.
func (r *Retrier) Do(ctx context.Context, op Operation) (*transport.Video, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, abortedError(err)
		}

		video, err := op(ctx)
		if err == nil {
			return video, nil
		}
		if transport.IsAborted(err) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, abortedError(ctxErr)
		}

		delay, retry := r.strategy(attempt, err)
		if !retry {
			return nil, err
		}

		r.logger.Warnf("Upload attempt %d failed, retrying in %s: %s", attempt+1, delay, err)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, abortedError(err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func abortedError(cause error) error {
	return transport.NewAbortedError(cause)
}
