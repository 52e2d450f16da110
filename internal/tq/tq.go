// Package tq implements the per-channel transmit queue: two priority
// lanes (digipeated traffic goes out first, per APRS "fratricide"
// convention) and the CSMA gate that decides when the channel is actually
// clear to key up. Grounded on src/tq.go (queue/cond-var structure) and
// src/xmit.go's wait_for_clear_channel (busy/DWAIT/PERSIST gate).
package tq

import (
	"sync"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/digipeater"
)

type perChanQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	high   []*ax25.Packet
	low    []*ax25.Packet
	closed bool
}

// Queue holds one pair of priority lanes per radio channel.
type Queue struct {
	chans []*perChanQueue
}

// New creates a queue with numChans independent channels.
func New(numChans int) *Queue {
	q := &Queue{chans: make([]*perChanQueue, numChans)}
	for i := range q.chans {
		c := &perChanQueue{}
		c.cond = sync.NewCond(&c.mu)
		q.chans[i] = c
	}
	return q
}

func (q *Queue) chan_(channel int) *perChanQueue {
	return q.chans[channel]
}

// Enqueue appends pkt to the end of channel's high or low priority lane and
// wakes any goroutine blocked in BlockUntilNotEmpty. Implements
// digipeater.Transmitter.
func (q *Queue) Enqueue(toChan int, prio digipeater.Priority, pkt *ax25.Packet) {
	c := q.chan_(toChan)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prio == digipeater.PriorityHigh {
		c.high = append(c.high, pkt)
	} else {
		c.low = append(c.low, pkt)
	}
	c.cond.Signal()
}

// Remove pops the oldest packet from channel's prio lane, or reports false
// if it is empty.
func (q *Queue) Remove(channel int, prio digipeater.Priority) (*ax25.Packet, bool) {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	lane := &c.high
	if prio == digipeater.PriorityLow {
		lane = &c.low
	}
	if len(*lane) == 0 {
		return nil, false
	}
	pkt := (*lane)[0]
	*lane = (*lane)[1:]
	return pkt, true
}

// Peek reports the oldest packet in channel's prio lane without removing
// it.
func (q *Queue) Peek(channel int, prio digipeater.Priority) (*ax25.Packet, bool) {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	lane := c.high
	if prio == digipeater.PriorityLow {
		lane = c.low
	}
	if len(lane) == 0 {
		return nil, false
	}
	return lane[0], true
}

// IsEmpty reports whether both lanes of channel are empty.
func (q *Queue) IsEmpty(channel int) bool {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.high) == 0 && len(c.low) == 0
}

// Count reports the depth of channel's prio lane.
func (q *Queue) Count(channel int, prio digipeater.Priority) int {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prio == digipeater.PriorityHigh {
		return len(c.high)
	}
	return len(c.low)
}

// BlockUntilNotEmpty blocks the calling goroutine (the xmit thread for
// this channel) until at least one packet is queued or the channel is
// closed, returning false only in the latter case.
// Grounded on src/tq.go's tq_wait_while_empty / wake_up_cond.
func (q *Queue) BlockUntilNotEmpty(channel int) bool {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.high) == 0 && len(c.low) == 0 && !c.closed {
		c.cond.Wait()
	}
	return len(c.high) > 0 || len(c.low) > 0
}

// Close unblocks anything parked in BlockUntilNotEmpty for channel,
// shutting its transmit thread down cleanly.
func (q *Queue) Close(channel int) {
	c := q.chan_(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

const checkInterval = 10 * time.Millisecond
