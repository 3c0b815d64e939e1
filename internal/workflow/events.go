package workflow

import "sync"

// Event reports pipeline progress. Err is set on the Failed event.
type Event struct {
	RunID             string
	State             State
	CompletedSegments int
	TotalSegments     int
	Err               error
}

// eventBus is a non-blocking publisher over a buffered channel.
type eventBus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEventBus(size int) *eventBus {
	if size < 1 {
		size = 1
	}
	return &eventBus{ch: make(chan Event, size)}
}

// publish delivers ev, dropping the oldest queued event when the buffer is full.
func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.sendLatest(ev)
}

// finish publishes the terminal event and closes the channel.
func (b *eventBus) finish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.sendLatest(ev)
	b.closed = true
	close(b.ch)
}

// sendLatest is only called with mu held, so this goroutine is the sole
// sender and a freed slot stays free until the retry.
func (b *eventBus) sendLatest(ev Event) {
	select {
	case b.ch <- ev:
		return
	default:
	}
	select {
	case <-b.ch:
	default:
	}
	select {
	case b.ch <- ev:
	default:
	}
}
