package demod

import (
	"math"

	"github.com/kf7qex/gotnc/internal/dsp"
)

// BasebandConfig parameterizes a scrambled 9600-baud baseband demodulator.
type BasebandConfig struct {
	SampleRate float64
	Baud       float64
	NumSlicers int

	LockedInertia    float64
	SearchingInertia float64
}

type basebandSlicer struct {
	slicePoint float64

	pll     dsp.PLL
	dcd     DCD
	prevOut float64
	haveOut bool
}

// Baseband demodulates the scrambled NRZI 9600-baud signal presented as
// baseband after the receiver's FM discriminator: a low-pass FIR shapes the
// signal (cutoff ≈ 0.59 × baud), AGC normalizes it, and one or more
// PLL-driven slicers recover the raw (still scrambled, still NRZI-coded)
// channel bit stream (spec §4.1). Descrambling and NRZI decoding are line
// coding concerns layered on afterward, not part of the demodulator itself
// (matching direwolf, where both happen in hdlc_rec_bit rather than the
// demodulator) -- see MultiModem's wiring.
type Baseband struct {
	cfg BasebandConfig

	lpFilter []float64
	buf      []float64

	agc dsp.AGC

	slicers []basebandSlicer

	// OnBit is called once per recovered raw channel bit, before
	// descrambling or NRZI decoding.
	OnBit func(slice int, bit byte)
}

// NewBaseband builds a 9600-baud baseband demodulator.
func NewBaseband(cfg BasebandConfig) *Baseband {
	if cfg.NumSlicers < 1 {
		cfg.NumSlicers = 1
	}
	if cfg.LockedInertia == 0 {
		cfg.LockedInertia = 0.88
	}
	if cfg.SearchingInertia == 0 {
		cfg.SearchingInertia = 0.67
	}

	b := &Baseband{cfg: cfg}

	taps := int(1.714286*cfg.SampleRate/cfg.Baud) | 1
	b.lpFilter = make([]float64, taps)
	fc := 0.59 * cfg.Baud / cfg.SampleRate
	dsp.GenLowPass(fc, b.lpFilter, dsp.WindowTruncated)
	b.buf = make([]float64, taps)

	b.agc = dsp.AGC{FastAttack: 0.08, SlowDecay: 0.00012}

	stepPerSample := int32(math.Round(ticksPerPLLCycle * cfg.Baud / cfg.SampleRate))

	b.slicers = make([]basebandSlicer, cfg.NumSlicers)
	for i := range b.slicers {
		if cfg.NumSlicers > 1 {
			b.slicers[i].slicePoint = -0.5 + float64(i)*(1.0/float64(cfg.NumSlicers-1))
		}
		b.slicers[i].pll = dsp.PLL{
			StepPerSample:    stepPerSample,
			LockedInertia:    cfg.LockedInertia,
			SearchingInertia: cfg.SearchingInertia,
		}
		b.slicers[i].dcd = *NewDCD(DefaultDCDConfig())
	}

	return b
}

// ProcessSample feeds one baseband sample (post-discriminator, normalized
// roughly to -1.0..+1.0) through the demodulator.
func (b *Baseband) ProcessSample(fsam float64) {
	dsp.PushSample(fsam, b.buf)
	filtered := dsp.Convolve(b.buf, b.lpFilter)

	demodOut := b.agc.Apply(filtered)

	for i := range b.slicers {
		b.nudge(i, demodOut-b.slicers[i].slicePoint)
	}
}

func (b *Baseband) nudge(i int, demodOut float64) {
	s := &b.slicers[i]

	wrapped := s.pll.Advance()
	if wrapped {
		raw := byte(0)
		if demodOut > 0 {
			raw = 1
		}
		if b.OnBit != nil {
			b.OnBit(i, raw)
		}
		s.dcd.EachSymbol()
	}

	if s.haveOut && ((s.prevOut < 0 && demodOut > 0) || (s.prevOut > 0 && demodOut < 0)) {
		s.dcd.OnTransition(s.pll.Value())
		s.pll.OnZeroCrossing(s.prevOut, demodOut, s.dcd.Locked())
	}
	s.prevOut = demodOut
	s.haveOut = true
}

// Locked reports whether slice i's DCD currently considers the signal
// locked.
func (b *Baseband) Locked(slice int) bool { return b.slicers[slice].dcd.Locked() }
