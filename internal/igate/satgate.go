package igate

import (
	"sync"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
)

// satgateQueue is the SATgate delay queue (spec §4.5): a packet heard
// directly, whose via path is not yet fully used, waits here in case a
// digipeated copy arrives first and should be preferred once the
// duplicate gate runs again. Kept as a plain slice of {packet, channel,
// release time} records with the channel carried on each entry, rather
// than an intrusive linked list keyed by a single channel variable (spec
// §9's redesign note on that bug in the reference SATgate delay thread).
type satgateQueue struct {
	mu    sync.Mutex
	items []delayedPacket
}

type delayedPacket struct {
	pkt     *ax25.Packet
	channel int
	release time.Time
}

func (q *satgateQueue) insert(pkt *ax25.Packet, channel int, release time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, delayedPacket{pkt: pkt, channel: channel, release: release})
}

// due removes and returns every entry whose release time has arrived.
func (q *satgateQueue) due(now time.Time) []delayedPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready, kept []delayedPacket
	for _, e := range q.items {
		if now.Before(e.release) {
			kept = append(kept, e)
		} else {
			ready = append(ready, e)
		}
	}
	q.items = kept
	return ready
}

// runSatgate polls the delay queue once a second, re-entering the RX->IS
// duplicate gate for anything whose release time has passed.
func (c *Client) runSatgate(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, e := range c.sat.due(now) {
				c.emitToServer(e.pkt)
			}
		}
	}
}

// satgateDelay clamps the configured SATgate delay to [5s,30s], defaulting
// to 10s, matching DEFAULT/MIN/MAX_SATGATE_DELAY.
func (c *Client) satgateDelay() time.Duration {
	d := c.cfg.SatgateDelay
	if d <= 0 {
		d = defaultSatgateDelay
	}
	if d < minSatgateDelay {
		d = minSatgateDelay
	}
	if d > maxSatgateDelay {
		d = maxSatgateDelay
	}
	return d
}
