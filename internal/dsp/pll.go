package dsp

// PLL implements the bit-clock recovery contract from spec §4.1: a signed
// accumulator advances by a fixed step every sample; when it wraps from a
// large positive value to a large negative one, a data bit is sampled.
// On every zero-crossing of the pre-slice signal the accumulator is pulled
// toward the interpolated crossing point, scaled by a locked or searching
// inertia constant depending on whether the HDLC layer is currently
// tracking a frame — smaller inertia pulls harder, so searching uses a
// smaller constant than locked (spec §4.1's tuned defaults: 0.88/0.67 for
// 9600 baud, 0.74/0.50 for 1200).
type PLL struct {
	StepPerSample int32
	LockedInertia float64
	SearchingInertia float64

	acc     int32
	prevAcc int32
}

// overflowGuard bounds how close to the int32 extremes the accumulator must
// be for a sign flip to count as a genuine wrap, rather than a small
// inertia-driven dip across zero right after a transition nudge. Matches
// direwolf's own threshold in nudge_pll_9600.
const overflowGuard = 1000000000

// Advance steps the accumulator by one sample and reports whether it just
// wrapped — the signal to sample a data bit this sample.
func (p *PLL) Advance() bool {
	p.prevAcc = p.acc
	// Add as unsigned to sidestep signed-overflow UB semantics from the
	// C original; Go's int32 addition already wraps modulo 2^32, so this
	// is just documentation of intent.
	p.acc = int32(uint32(p.acc) + uint32(p.StepPerSample))
	return p.prevAcc > overflowGuard && p.acc < -overflowGuard
}

// Value returns the current accumulator value (its sign is the slicer's
// sample-timing reference).
func (p *PLL) Value() int32 { return p.acc }

// OnZeroCrossing nudges the accumulator toward the interpolated
// zero-crossing point between the previous and current demodulator output,
// pulled harder (smaller inertia) while the HDLC layer is still searching
// for a frame than while it is locked onto one. This is the 9600-baud
// variant (nudge_pll_9600), which interpolates the crossing point from the
// two surrounding demodulator samples.
func (p *PLL) OnZeroCrossing(prevOut, curOut float64, locked bool) {
	target := float64(p.StepPerSample) * curOut / (curOut - prevOut)

	inertia := p.SearchingInertia
	if locked {
		inertia = p.LockedInertia
	}
	p.acc = int32(float64(p.acc)*inertia + target*(1.0-inertia))
}

// OnTransition nudges the accumulator by simple multiplicative decay toward
// zero, without interpolating a crossing point. This is the AFSK variant
// (nudge_pll_afsk), used when the demodulator only reports a sign, not an
// amplitude trend between samples.
func (p *PLL) OnTransition(locked bool) {
	inertia := p.SearchingInertia
	if locked {
		inertia = p.LockedInertia
	}
	p.acc = int32(float64(p.acc) * inertia)
}
