package uploader

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	playablePollInterval = 500 * time.Millisecond

	// statusProcessing is the sentinel the platform serves while the
	// streaming asset is still being prepared.
	statusProcessing = http.StatusAccepted
)

type playableObserver struct {
	id int
	fn func(*Video)
}

// playableEmitter fans the single playable notification out to observers in
// registration order.
type playableEmitter struct {
	mu        sync.Mutex
	nextID    int
	observers []playableObserver
}

func newPlayableEmitter() *playableEmitter {
	return &playableEmitter{}
}

func (e *playableEmitter) subscribe(fn func(*Video)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.observers = append(e.observers, playableObserver{id: id, fn: fn})

	return func() { e.unsubscribe(id) }
}

func (e *playableEmitter) unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, obs := range e.observers {
		if obs.id == id {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

func (e *playableEmitter) hasObservers() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers) > 0
}

func (e *playableEmitter) emit(video *Video) {
	e.mu.Lock()
	observers := make([]playableObserver, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, obs := range observers {
		obs.fn(video)
	}
}

// maybePollPlayable starts the playable poll loop when the final response
// carries a streaming asset URL and anyone is listening.
func (u *Uploader) maybePollPlayable(ctx context.Context, video *Video) {
	if video.Assets == nil || video.Assets.Hls == "" || !u.playable.hasObservers() {
		return
	}
	go u.pollPlayable(ctx, video)
}

// pollPlayable polls the streaming asset until it serves non-empty content
// and the processing sentinel status clears, then notifies the playable
// observers exactly once with the original response. The loop has no attempt
// cap: it runs until success or until ctx is canceled.
func (u *Uploader) pollPlayable(ctx context.Context, video *Video) {
	assetURL := video.Assets.Hls
	ticker := time.NewTicker(playablePollInterval)
	defer ticker.Stop()

	for {
		ready, err := u.probePlayable(ctx, assetURL)
		if err != nil {
			u.logger.Debugf("Playable probe failed: %s", err)
		}
		if ready {
			u.logger.Donef("Video %s is playable", video.VideoID)
			u.playable.emit(video)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (u *Uploader) probePlayable(ctx context.Context, assetURL string) (bool, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, assetURL, nil)
	if err != nil {
		return false, err
	}
	req = req.WithContext(ctx)

	resp, err := u.pollClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			u.logger.Warnf("failed to close probe response body: %s", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	return resp.StatusCode != statusProcessing && len(body) > 0, nil
}
