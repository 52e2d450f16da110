// Package dlq implements the receive queue: a thread-safe FIFO of decoded
// frames, one per demodulated packet, annotated with enough provenance for
// the packet processor and later diagnostics (spec §2.4/§3).
package dlq

import (
	"sync"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
)

// ALevel carries the mark/space (or single-channel) signal level reported
// by the demodulator, on an arbitrary 0-100 display scale.
type ALevel struct {
	Mark  int
	Space int
}

// Item is one entry in the receive queue: a decoded frame plus the
// provenance a human or the packet processor needs to judge how it was
// received.
type Item struct {
	Channel    int
	Subchannel int
	Slice      int
	Packet     *ax25.Packet
	ALevel     ALevel
	Retries    int
	Spectrum   string
	Received   time.Time
}

// Queue is an unbounded, thread-safe FIFO shared by one or more producer
// goroutines (one per demodulator channel) and a single packet-processor
// consumer that blocks until an item is available.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []Item
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a received frame to the queue and wakes the consumer if it
// is waiting.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed, then
// removes and returns the oldest item. ok is false only when the queue was
// closed and drained.
func (q *Queue) Pop() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Item{}, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close unblocks any pending or future Pop calls once the queue drains; no
// further Push calls are accepted.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
