package eventsub

import (
	"log/slog"
	"sync"

	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/domain"
)

const (
	DefaultQueueSoftLimit = 10000
	minQueueCapacity      = 64
)

// Queue is the FIFO between the session goroutine (single producer) and the host's
// poll loop (single consumer). It grows without bound; SoftLimit only raises a warning.
type Queue struct {
	mu        sync.Mutex
	buf       []domain.Envelope
	head      int
	size      int
	closed    bool
	overLimit bool

	softLimit int
	metrics   *metrics.ClientMetrics
}

func NewQueue(softLimit int, m *metrics.ClientMetrics) *Queue {
	if softLimit <= 0 {
		softLimit = DefaultQueueSoftLimit
	}
	return &Queue{
		buf:       make([]domain.Envelope, minQueueCapacity),
		softLimit: softLimit,
		metrics:   m,
	}
}

// Push appends e. It returns false once the queue is closed.
func (q *Queue) Push(e domain.Envelope) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = e
	q.size++

	crossed := false
	if q.size > q.softLimit && !q.overLimit {
		q.overLimit = true
		crossed = true
	}
	depth := q.size
	// under the lock so the gauge follows the order of pushes and pops
	q.metrics.SetQueueDepth(depth, q.overLimit)
	q.mu.Unlock()

	if crossed {
		slog.Warn("Event queue above advisory limit, host is not polling fast enough", "depth", depth, "soft_limit", q.softLimit)
	}
	return true
}

// PopOne removes the oldest envelope. It never blocks.
func (q *Queue) PopOne() (domain.Envelope, bool) {
	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		return domain.Envelope{}, false
	}

	e := q.buf[q.head]
	q.buf[q.head] = domain.Envelope{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--

	if q.overLimit && q.size <= q.softLimit {
		q.overLimit = false
	}
	q.metrics.SetQueueDepth(q.size, q.overLimit)
	q.mu.Unlock()

	return e, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close rejects further pushes. Queued envelopes can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) grow() {
	next := make([]domain.Envelope, len(q.buf)*2)
	n := copy(next, q.buf[q.head:])
	copy(next[n:], q.buf[:q.head])
	q.buf = next
	q.head = 0
}
