package uploader

import (
	"context"
	"sync"
)

// Operation is one in-flight upload. It settles exactly once, either with the
// final chunk's video record or with the terminal error.
type Operation struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	video   *Video
	err     error
	videoID string
}

// ID returns the registry key of this operation.
func (o *Operation) ID() string {
	return o.id
}

// Cancel requests cooperative cancellation. It is idempotent and has no
// effect once the operation has settled.
func (o *Operation) Cancel() {
	o.cancel()
}

// Done is closed when the operation settles.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation settles and returns its result.
func (o *Operation) Wait() (*Video, error) {
	<-o.done
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.video, o.err
}

// VideoID returns the server-assigned resource id adopted so far. It is
// empty until the first chunk response arrives, unless a pre-known id was
// configured.
func (o *Operation) VideoID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.videoID
}

// setVideoID adopts a server-assigned id. An already-known id is never
// overwritten with an empty value.
func (o *Operation) setVideoID(id string) {
	if id == "" {
		return
	}
	o.mu.Lock()
	o.videoID = id
	o.mu.Unlock()
}

func (o *Operation) settle(video *Video, err error) {
	o.mu.Lock()
	o.video = video
	o.err = err
	o.mu.Unlock()
	close(o.done)
}

// registry maps operation ids to live operations so cancel requests can be
// routed. Entries exist from Upload() until the operation settles.
type registry struct {
	mu  sync.Mutex
	ops map[string]*Operation
}

func newRegistry() *registry {
	return &registry{ops: map[string]*Operation{}}
}

func (r *registry) add(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.id] = op
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, id)
}

func (r *registry) cancel(id string) bool {
	r.mu.Lock()
	op, ok := r.ops[id]
	delete(r.ops, id)
	r.mu.Unlock()

	if ok {
		op.Cancel()
	}
	return ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
