package uploader

import "sync"

// ProgressEvent is an immutable snapshot of overall transfer progress,
// recomputed on every tick.
type ProgressEvent struct {
	UploadedBytes  int64
	TotalBytes     int64
	ChunkCount     int
	ChunkSizeBytes int64
	// CurrentChunk is 1-based.
	CurrentChunk              int
	CurrentChunkUploadedBytes int64
}

type progressObserver struct {
	id int
	fn func(ProgressEvent)
}

// progressEmitter fans events out to registered observers, synchronously and
// in registration order.
type progressEmitter struct {
	mu        sync.Mutex
	nextID    int
	observers []progressObserver
}

func newProgressEmitter() *progressEmitter {
	return &progressEmitter{}
}

func (e *progressEmitter) subscribe(fn func(ProgressEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.observers = append(e.observers, progressObserver{id: id, fn: fn})

	return func() { e.unsubscribe(id) }
}

func (e *progressEmitter) unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, obs := range e.observers {
		if obs.id == id {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

func (e *progressEmitter) emit(event ProgressEvent) {
	e.mu.Lock()
	observers := make([]progressObserver, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, obs := range observers {
		obs.fn(event)
	}
}
