package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcloud-io/go-uploader/uploader/transport"
)

func TestDefaultRetryStrategy_QuadraticDelays(t *testing.T) {
	strategy := DefaultRetryStrategy(6)
	serverErr := transport.NewHTTPError(503, []byte("unavailable"))

	tests := []struct {
		attempt   int
		wantDelay time.Duration
	}{
		{attempt: 0, wantDelay: 200 * time.Millisecond},
		{attempt: 1, wantDelay: 4200 * time.Millisecond},
		{attempt: 2, wantDelay: 12200 * time.Millisecond},
		{attempt: 3, wantDelay: 24200 * time.Millisecond},
	}

	for _, tt := range tests {
		delay, retry := strategy(tt.attempt, serverErr)
		require.True(t, retry, "attempt %d should be retried", tt.attempt)
		assert.Equal(t, tt.wantDelay, delay, "attempt %d", tt.attempt)
	}
}

func TestDefaultRetryStrategy_ClientErrorsFailFast(t *testing.T) {
	strategy := DefaultRetryStrategy(10)

	for _, status := range []int{400, 401, 404, 422, 499} {
		_, retry := strategy(0, transport.NewHTTPError(status, nil))
		assert.False(t, retry, "status %d should not be retried", status)
	}

	_, retry := strategy(0, transport.NewHTTPError(500, nil))
	assert.True(t, retry, "status 500 should be retried")
}

func TestDefaultRetryStrategy_MaxAttempts(t *testing.T) {
	strategy := DefaultRetryStrategy(3)
	err := errors.New("connection reset")

	_, retry := strategy(2, err)
	assert.True(t, retry)

	_, retry = strategy(3, err)
	assert.False(t, retry)
}

func immediateStrategy(maxRetries int) RetryStrategy {
	return func(attempt int, err error) (time.Duration, bool) {
		var tErr *transport.Error
		if errors.As(err, &tErr) && tErr.StatusCode >= 400 && tErr.StatusCode < 500 {
			return 0, false
		}
		if attempt >= maxRetries {
			return 0, false
		}
		return time.Millisecond, true
	}
}

func TestRetrier_Do_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (*transport.Video, error) {
		calls++
		if calls <= 2 {
			return nil, transport.NewHTTPError(503, []byte("unavailable"))
		}
		return &transport.Video{VideoID: "vi123"}, nil
	}

	r := New(immediateStrategy(5), log.NewLogger())
	video, err := r.Do(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, "vi123", video.VideoID)
	assert.Equal(t, 3, calls, "expected 2 failures + 1 success")
}

func TestRetrier_Do_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (*transport.Video, error) {
		calls++
		return nil, transport.NewHTTPError(404, []byte("not found"))
	}

	r := New(DefaultRetryStrategy(10), log.NewLogger())
	_, err := r.Do(context.Background(), op)

	require.Error(t, err)
	var tErr *transport.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, 404, tErr.StatusCode)
	assert.Equal(t, 1, calls, "404 should fail on the first attempt")
}

func TestRetrier_Do_StrategyExhausted(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (*transport.Video, error) {
		calls++
		return nil, transport.NewHTTPError(503, []byte("unavailable"))
	}

	r := New(immediateStrategy(2), log.NewLogger())
	_, err := r.Do(context.Background(), op)

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt + 2 retries")
}

func TestRetrier_Do_CancellationDuringAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	op := func(ctx context.Context) (*transport.Video, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := New(DefaultRetryStrategy(6), log.NewLogger())
	_, err := r.Do(ctx, op)

	require.Error(t, err)
	assert.True(t, transport.IsAborted(err), "expected ABORTED, got: %v", err)
}

func TestRetrier_Do_CancellationCutsBackoffShort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	op := func(ctx context.Context) (*transport.Video, error) {
		calls++
		return nil, transport.NewHTTPError(503, []byte("unavailable"))
	}

	longBackoff := func(attempt int, err error) (time.Duration, bool) {
		return 30 * time.Second, true
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	r := New(longBackoff, log.NewLogger())
	start := time.Now()
	_, err := r.Do(ctx, op)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, transport.IsAborted(err), "expected ABORTED, got: %v", err)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
	assert.Less(t, elapsed, 2*time.Second, "backoff sleep should be cut short")
}

func TestRetrier_Do_CanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	op := func(ctx context.Context) (*transport.Video, error) {
		calls++
		return &transport.Video{}, nil
	}

	r := New(DefaultRetryStrategy(6), log.NewLogger())
	_, err := r.Do(ctx, op)

	require.Error(t, err)
	assert.True(t, transport.IsAborted(err))
	assert.Equal(t, 0, calls)
}
