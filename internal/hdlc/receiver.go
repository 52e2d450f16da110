// Package hdlc implements the AX.25 HDLC framing layer: flag detection,
// bit-destuffing, FCS validation with an optional bounded bit-inversion
// retry on the receive side (spec §4.2), and bit-stuffed NRZI frame
// assembly with TXDELAY/TXTAIL padding on the transmit side (spec §4.6).
package hdlc

import (
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/bitops"
)

// RetryLevel bounds the bit-inversion recovery effort applied to a frame
// that fails its FCS (spec §4.2's FIX_BITS, spec §9's cost warning).
type RetryLevel int

const (
	RetryNone RetryLevel = iota
	RetrySingle
	RetryDouble
	RetryTriple
	RetryTwoSeparated
	retryLevelCount
)

// defaultMaxRetryLevel is the highest level enabled without an explicit,
// logged opt-in: single and double/adjacent-triple inversion are cheap
// (O(bits), O(bits) for contiguous windows); two separated bits is O(bits²)
// and, per spec §9, should require the caller to accept the false-positive
// cost explicitly.
const defaultMaxRetryLevel = RetryTriple

const flagPattern = 0x7E

// minFrameBits/maxFrameBits bound the bit count of a candidate frame
// between flags (spec §4.2: shorter than 17 bytes is rejected outright).
const (
	minFrameBits = ax25.MinPacketLen * 8
	maxFrameBits = ax25.MaxPacketLen * 8
)

// Frame is a successfully decoded candidate, still owned exclusively by
// whoever receives it from Receiver's callback (spec §3 ownership model).
type Frame struct {
	Data    []byte // AX.25 bytes, FCS stripped
	Retries int    // number of bits flipped to make the FCS pass, 0 if none
}

// Receiver implements the SEARCHING_FOR_FLAG / IN_FRAME state machine from
// spec §4.2. One Receiver exists per (channel, subchannel, slicer) — each
// runs independently and to completion on every bit, with no suspension
// point in the hot path (spec §5).
type Receiver struct {
	maxRetry RetryLevel
	passAll  bool
	onFrame  func(Frame)

	patDet byte
	buf    []byte // raw (pre-destuff) bits accumulated since the last flag
}

// NewReceiver constructs a Receiver. maxRetry is clamped to the defined
// levels, RetryNone through RetryTwoSeparated; callers passing a level
// above defaultMaxRetryLevel are expected to have logged a one-time
// warning per spec §9.
func NewReceiver(maxRetry RetryLevel, passAll bool, onFrame func(Frame)) *Receiver {
	if maxRetry < RetryNone {
		maxRetry = RetryNone
	}
	if maxRetry >= retryLevelCount {
		maxRetry = retryLevelCount - 1
	}
	return &Receiver{maxRetry: maxRetry, passAll: passAll, onFrame: onFrame}
}

// ProcessBit feeds one demodulated data bit (already NRZI-decoded and, for
// 9600 baud, LFSR-descrambled — the "descrambled bits" of spec §4.2) into
// the state machine.
func (r *Receiver) ProcessBit(bit byte) {
	r.patDet = (r.patDet >> 1) | (bit << 7)
	r.buf = append(r.buf, bit)

	if r.patDet != flagPattern {
		return
	}

	// The trailing 8 bits that just matched the flag aren't part of
	// either the frame that's closing or the one that's about to start.
	candidate := r.buf[:len(r.buf)-8]
	r.buf = r.buf[:0]

	if len(candidate) < minFrameBits || len(candidate) > maxFrameBits {
		return
	}
	r.tryDecode(candidate)
}

// tryDecode attempts to destuff and FCS-validate candidate, first as-is and
// then — if that fails — with a bounded search over single/double/triple
// contiguous bit inversions and, at the highest configured level, two
// separated bit inversions (spec §4.2 FIX_BITS, spec §9's cost bound).
func (r *Receiver) tryDecode(candidate []byte) {
	if data, ok := destuffAndCheck(candidate); ok {
		r.emit(data, 0)
		return
	}

	if r.maxRetry >= RetrySingle {
		for i := range candidate {
			if data, ok := destuffAndCheck(flipBits(candidate, i)); ok {
				r.emit(data, 1)
				return
			}
		}
	}

	if r.maxRetry >= RetryDouble {
		for i := 0; i < len(candidate)-1; i++ {
			if data, ok := destuffAndCheck(flipBits(candidate, i, i+1)); ok {
				r.emit(data, 2)
				return
			}
		}
	}

	if r.maxRetry >= RetryTriple {
		for i := 0; i < len(candidate)-2; i++ {
			if data, ok := destuffAndCheck(flipBits(candidate, i, i+1, i+2)); ok {
				r.emit(data, 3)
				return
			}
		}
	}

	if r.maxRetry >= RetryTwoSeparated {
		// O(bits²): only reached when a caller has explicitly raised
		// maxRetry past RetryTriple.
		for i := 0; i < len(candidate); i++ {
			for j := i + 2; j < len(candidate); j++ {
				if data, ok := destuffAndCheck(flipBits(candidate, i, j)); ok {
					r.emit(data, 2)
					return
				}
			}
		}
	}

	if r.passAll {
		if data, ok := destuff(candidate); ok && len(data) >= ax25.MinPacketLen {
			r.emit(data, -1)
		}
	}
}

func (r *Receiver) emit(data []byte, retries int) {
	if r.onFrame != nil {
		r.onFrame(Frame{Data: data, Retries: retries})
	}
}

func flipBits(bits []byte, positions ...int) []byte {
	out := append([]byte(nil), bits...)
	for _, p := range positions {
		out[p] ^= 1
	}
	return out
}

// destuff runs the raw bit sequence through bitops.Destuffer and packs the
// surviving data bits into bytes, LSB first per octet (AX.25 transmits
// octets least-significant-bit first).
func destuff(bits []byte) ([]byte, bool) {
	var d bitops.Destuffer
	var out []byte
	var acc byte
	var nbits int
	for _, b := range bits {
		outcome, dataBit := d.Feed(b)
		switch outcome {
		case bitops.Abort:
			return nil, false
		case bitops.Dropped:
			continue
		case bitops.Data:
			acc >>= 1
			if dataBit != 0 {
				acc |= 0x80
			}
			nbits++
			if nbits == 8 {
				out = append(out, acc)
				acc = 0
				nbits = 0
			}
		}
	}
	return out, true
}

// destuffAndCheck destuffs bits and validates the resulting frame's FCS,
// rejecting anything shorter than the minimum packet length (spec §4.2).
func destuffAndCheck(bits []byte) ([]byte, bool) {
	data, ok := destuff(bits)
	if !ok || len(data) < ax25.MinPacketLen+2 {
		return nil, false
	}
	if !ax25.CheckFCS(data) {
		return nil, false
	}
	return data[:len(data)-2], true
}
