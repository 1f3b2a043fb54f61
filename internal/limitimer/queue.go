package limitimer

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the inbound queue capacity used when none is configured.
const DefaultQueueSize = 256

// queueItem is either a raw line or a control job run on the worker.
type queueItem struct {
	line string
	job  func()
}

// QueueStats reports inbound queue activity.
type QueueStats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Depth     int    `json:"depth"`
}

// Queue serialises inbound lines onto one worker goroutine.
//
// Lines are handled strictly in arrival order. Enqueue blocks while the
// queue is full rather than discarding lines; it only fails once Close has
// begun.
//
// Thread Safety:
//   - All methods are safe from any goroutine. Close is idempotent.
type Queue struct {
	handle func(string)
	items  chan queueItem

	// mu guards closed. Producers hold the read side while sending so Close
	// can wait for in-flight sends before sealing the channel.
	mu     sync.RWMutex
	closed bool

	closing chan struct{} // closed first: wakes blocked producers
	sealed  chan struct{} // closed once no producer can send again
	abort   chan struct{} // closed if Close's context expires
	done    chan struct{} // closed when the worker exits

	closeOnce sync.Once
	abortOnce sync.Once

	enqueued  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue starts a worker that calls handle for every enqueued line.
// size <= 0 selects DefaultQueueSize.
func NewQueue(size int, handle func(string)) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		handle:  handle,
		items:   make(chan queueItem, size),
		closing: make(chan struct{}),
		sealed:  make(chan struct{}),
		abort:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends a line. It blocks while the queue is full and returns
// ErrQueueClosed once Close has been called.
func (q *Queue) Enqueue(line string) error {
	return q.put(queueItem{line: line})
}

// Do runs fn on the worker after every item enqueued before it.
func (q *Queue) Do(fn func()) error {
	return q.put(queueItem{job: fn})
}

func (q *Queue) put(it queueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- it:
		q.enqueued.Add(1)
		return nil
	case <-q.closing:
		return ErrQueueClosed
	}
}

// Close stops accepting items and waits for the worker to drain everything
// already accepted. If ctx expires first the worker finishes the item in
// progress, counts the rest as dropped and exits.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		close(q.closing)

		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.sealed)
	})

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.abortOnce.Do(func() { close(q.abort) })
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.abort:
			q.dropRemaining()
			return
		default:
		}

		select {
		case it := <-q.items:
			q.process(it)
		case <-q.sealed:
			q.drain()
			return
		case <-q.abort:
			q.dropRemaining()
			return
		}
	}
}

// drain processes whatever is buffered after the queue was sealed.
func (q *Queue) drain() {
	for {
		select {
		case <-q.abort:
			q.dropRemaining()
			return
		default:
		}

		select {
		case it := <-q.items:
			q.process(it)
		default:
			return
		}
	}
}

func (q *Queue) dropRemaining() {
	for {
		select {
		case <-q.items:
			q.dropped.Add(1)
		default:
			return
		}
	}
}

func (q *Queue) process(it queueItem) {
	if it.job != nil {
		it.job()
	} else if q.handle != nil {
		q.handle(it.line)
	}
	q.processed.Add(1)
}

// Stats returns the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Dropped:   q.dropped.Load(),
		Depth:     len(q.items),
	}
}
