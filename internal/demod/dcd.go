// Package demod implements the AFSK and scrambled-baseband demodulators and
// the multi-subchannel/multi-slicer fan-out that feeds the HDLC receiver
// (spec §4.1).
package demod

import "math/bits"

// DCDConfig tunes the data-carrier-detect hysteresis thresholds. The
// defaults are tuned for 1200 baud AFSK; other modem types may want
// different values.
type DCDConfig struct {
	ThreshOn  int
	ThreshOff int
	GoodWidth int32
}

// DefaultDCDConfig returns the thresholds direwolf uses for 1200 baud AFSK:
// hysteresis that tolerates missing 2 of the last 32 expected transitions
// before declaring lock, and drops lock once only 6 or fewer of the last 32
// were good.
func DefaultDCDConfig() DCDConfig {
	return DCDConfig{ThreshOn: 30, ThreshOff: 6, GoodWidth: 512}
}

// DCD tracks whether the demodulator is currently locked onto a signal by
// scoring each symbol's clock-transition timing against where a transition
// is expected, over a rolling 32-symbol window.
type DCD struct {
	cfg DCDConfig

	goodFlag, badFlag   bool
	goodHist, badHist   uint8
	score               uint32
	locked              bool
}

func NewDCD(cfg DCDConfig) *DCD {
	return &DCD{cfg: cfg}
}

// OnTransition records whether a just-observed clock transition landed
// inside the "good" window around the expected sampling point
// (pllPhase is the PLL accumulator value at the moment of transition).
func (d *DCD) OnTransition(pllPhase int32) {
	width := d.cfg.GoodWidth * 1024 * 1024
	if pllPhase > -width && pllPhase < width {
		d.goodFlag = true
	} else {
		d.badFlag = true
	}
}

// EachSymbol advances the rolling window by one symbol and reports whether
// lock state changed this symbol; Locked() reflects the new state.
func (d *DCD) EachSymbol() (changed bool) {
	d.goodHist <<= 1
	if d.goodFlag {
		d.goodHist |= 1
	}
	d.goodFlag = false

	d.badHist <<= 1
	if d.badFlag {
		d.badHist |= 1
	}
	d.badFlag = false

	d.score <<= 1
	// The margin of 2 catches flag patterns, which have two transitions
	// per octet.
	if bits.OnesCount8(d.goodHist)-bits.OnesCount8(d.badHist) >= 2 {
		d.score |= 1
	}

	s := bits.OnesCount32(d.score)
	switch {
	case s >= d.cfg.ThreshOn && !d.locked:
		d.locked = true
		return true
	case s <= d.cfg.ThreshOff && d.locked:
		d.locked = false
		return true
	}
	return false
}

// Locked reports whether the demodulator is currently considered locked
// onto an incoming signal.
func (d *DCD) Locked() bool { return d.locked }
