// Package digipeater implements the APRS digital repeater: deciding
// whether a received packet's next unused digipeater address matches this
// station's call, an alias pattern, or a WIDEn-N pattern, and producing the
// (possibly preemptively trimmed) packet to retransmit. Grounded on
// src/digipeater.go's digipeat_match.
package digipeater

import (
	"strings"
	"sync"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/dedupe"
)

// PreemptMode controls what happens to digipeater addresses ahead of a
// preemptive match (spec §8, direwolf's "The New n-N Paradigm").
type PreemptMode int

const (
	// PreemptOff disables preemptive digipeating: only the first unused
	// address is ever considered.
	PreemptOff PreemptMode = iota
	// PreemptDrop removes every address ahead of the match, used or not.
	PreemptDrop
	// PreemptMark leaves addresses in place but marks everything ahead
	// of the match as used.
	PreemptMark
	// PreemptTrace removes only the unused addresses ahead of the
	// match, preserving an accurate record of the addresses actually
	// used so far. This is the default behavior direwolf falls back to.
	PreemptTrace
)

// Priority selects which of the two transmit-queue priority lanes a
// digipeated packet goes out on (spec §5): same-channel repeats bypass the
// random hold-off and go out immediately (HI), cross-channel repeats queue
// normally (LO).
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityLow
)

// Transmitter is the outbound side the digipeater hands retransmitted
// packets to; internal/tq.Queue implements it.
type Transmitter interface {
	Enqueue(toChan int, priority Priority, pkt *ax25.Packet)
}

// Route is one enabled from-channel -> to-channel digipeating rule.
type Route struct {
	FromChan   int
	ToChan     int
	MyCallRec  ax25.Address // this station's call on FromChan
	MyCallXmit ax25.Address // this station's call on ToChan (may differ)
	Alias      Matcher      // trap-and-replace-once pattern, e.g. "WIDE|TRACE|RELAY"
	Wide       Matcher      // WIDEn-N pattern, e.g. "^WIDE[4-7]-[1-7]$"
	Preempt    PreemptMode
	ATGP       string                   // alias prefix exempted from trace-insertion, empty to disable
	Filter     func(*ax25.Packet) bool // optional packet filter, nil means always pass
}

// Matcher abstracts the alias/wide pattern matchers so a Route can be built
// either with a *regexp.Regexp or with internal/pfilter-style matching
// without this package importing regexp directly into its public surface.
type Matcher interface {
	MatchString(s string) bool
}

// Digipeater evaluates routes and dispatches retransmissions.
type Digipeater struct {
	routes []Route
	dedup  *dedupe.Ring
	tx     Transmitter

	// IG2TX, if set, is the IS->TX duplicate cache the IGate client
	// consults before re-transmitting a packet from APRS-IS. A
	// successful digipeat records into it too (spec §4.4's final step,
	// "insert ... into the IS->TX cache (marked by-digi)"), so the IGate
	// won't turn around and resend to RF the same packet we just
	// repeated. Left nil when no IGate is configured.
	IG2TX *dedupe.Ring

	mu     sync.Mutex
	counts map[[2]int]int
}

// New builds a Digipeater from its configured routes. dedup is shared
// across every route, keyed by (dedupe key, to-channel), matching
// direwolf's single dedupe history indexed by destination channel.
func New(routes []Route, dedup *dedupe.Ring, tx Transmitter) *Digipeater {
	return &Digipeater{
		routes: routes,
		dedup:  dedup,
		tx:     tx,
		counts: make(map[[2]int]int),
	}
}

// Count reports how many packets have been digipeated from fromChan to
// toChan so far.
func (d *Digipeater) Count(fromChan, toChan int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[[2]int{fromChan, toChan}]
}

// Digipeat evaluates every enabled route whose FromChan matches, in two
// passes: same-channel routes first (high priority, to clear the channel
// in one packet time per APRS fratricide convention), then cross-channel
// routes (low priority).
func (d *Digipeater) Digipeat(fromChan int, pkt *ax25.Packet) {
	for _, r := range d.routes {
		if r.FromChan != fromChan || r.ToChan != fromChan {
			continue
		}
		d.tryRoute(r, pkt, PriorityHigh)
	}
	for _, r := range d.routes {
		if r.FromChan != fromChan || r.ToChan == fromChan {
			continue
		}
		d.tryRoute(r, pkt, PriorityLow)
	}
}

func (d *Digipeater) tryRoute(r Route, pkt *ax25.Packet, prio Priority) {
	result := d.Match(r, pkt)
	if result == nil {
		return
	}
	d.dedup.Remember(pkt.DedupeKey(), r.ToChan)
	if d.IG2TX != nil {
		d.IG2TX.Remember(pkt.DedupeKey(), r.ToChan)
	}
	d.tx.Enqueue(r.ToChan, prio, result)
	d.mu.Lock()
	d.counts[[2]int{r.FromChan, r.ToChan}]++
	d.mu.Unlock()
}

// Match applies digipeat_match's decision sequence to a single route and
// returns the packet to transmit, or nil if this route does not digipeat
// it. The input packet is never modified; a match always returns a clone.
func (d *Digipeater) Match(r Route, pkt *ax25.Packet) *ax25.Packet {
	if r.Filter != nil && !r.Filter(pkt) {
		return nil
	}

	idx := pkt.FirstUnused()
	if idx < 0 {
		return nil
	}
	repeater := pkt.Digis[idx]

	// Explicit use of our call, including SSID, bypasses the dedupe
	// check entirely -- someone spelled out a path for testing.
	if sameCall(repeater, r.MyCallRec) {
		result := pkt.Clone()
		result.Digis[idx] = usedAddr(r.MyCallXmit)
		return result
	}

	if sameCall(pkt.Source, r.MyCallRec) {
		return nil
	}

	if d.dedup.Seen(pkt.DedupeKey(), r.ToChan) {
		return nil
	}

	if r.Alias != nil && r.Alias.MatchString(repeater.String()) {
		result := pkt.Clone()
		result.Digis[idx] = usedAddr(r.MyCallXmit)
		return result
	}

	if result := d.preempt(r, pkt, idx); result != nil {
		return result
	}

	if r.Wide != nil && r.Wide.MatchString(repeater.String()) {
		return d.wideMatch(r, pkt, idx)
	}

	return nil
}

// preempt scans the remaining unused digipeater addresses for a match
// against mycall or the alias pattern, per "The New n-N Paradigm".
func (d *Digipeater) preempt(r Route, pkt *ax25.Packet, idx int) *ax25.Packet {
	if r.Preempt == PreemptOff {
		return nil
	}
	for i := idx + 1; i < len(pkt.Digis); i++ {
		a := pkt.Digis[i]
		if !sameCall(a, r.MyCallRec) && !(r.Alias != nil && r.Alias.MatchString(a.String())) {
			continue
		}

		result := pkt.Clone()
		result.Digis[i] = usedAddr(r.MyCallXmit)

		switch r.Preempt {
		case PreemptDrop:
			for i > 0 {
				result.Digis = removeAddr(result.Digis, i-1)
				i--
			}
		case PreemptMark:
			j := i - 1
			for j >= 0 && !result.Digis[j].H {
				result.Digis[j].H = true
				j--
			}
		default: // PreemptTrace
			for i > 0 && !result.Digis[i-1].H {
				result.Digis = removeAddr(result.Digis, i-1)
				i--
			}
		}
		return result
	}
	return nil
}

// wideMatch applies the usual WIDEn-N rules once the Wide pattern has
// matched the first unused address: decrement the SSID, insert our call
// ahead of it for tracing unless the path is already full, or replace it
// outright when the SSID reaches 1.
func (d *Digipeater) wideMatch(r Route, pkt *ax25.Packet, idx int) *ax25.Packet {
	repeater := pkt.Digis[idx]
	ssid := repeater.SSID

	if r.ATGP != "" && strings.HasPrefix(strings.ToUpper(repeater.Call), strings.ToUpper(r.ATGP)) {
		if ssid < 1 || ssid > 7 {
			return nil
		}
		result := pkt.Clone()

		// Special ATGP hack: keep the via path from growing past the 8
		// available slots by discarding already-used digis first.
		for len(result.Digis) >= 1 && result.Digis[0].H {
			result.Digis = removeAddr(result.Digis, 0)
			idx--
		}

		ssid--
		result.Digis[idx].SSID = ssid
		if ssid == 0 {
			result.Digis[idx].H = true
		}
		result.Digis = insertAddr(result.Digis, 0, usedAddr(r.MyCallXmit))
		return result
	}

	if ssid == 1 {
		result := pkt.Clone()
		result.Digis[idx] = usedAddr(r.MyCallXmit)
		return result
	}

	if ssid >= 2 && ssid <= 7 {
		result := pkt.Clone()
		result.Digis[idx].SSID = ssid - 1
		if len(result.Digis) < ax25.MaxDigipeats {
			result.Digis = insertAddr(result.Digis, idx, usedAddr(r.MyCallXmit))
		}
		return result
	}

	return nil
}

func sameCall(a, b ax25.Address) bool {
	return a.Call == b.Call && a.SSID == b.SSID
}

func usedAddr(a ax25.Address) ax25.Address {
	a.H = true
	return a
}

func removeAddr(digis []ax25.Address, i int) []ax25.Address {
	return append(digis[:i], digis[i+1:]...)
}

func insertAddr(digis []ax25.Address, i int, a ax25.Address) []ax25.Address {
	digis = append(digis, ax25.Address{})
	copy(digis[i+1:], digis[i:])
	digis[i] = a
	return digis
}
