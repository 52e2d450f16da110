package demod

import (
	"math"

	"github.com/kf7qex/gotnc/internal/dsp"
)

const ticksPerPLLCycle = 256.0 * 256.0 * 256.0 * 256.0

// minSlicerGain/maxSlicerGain bound the geometric spacing of per-slicer
// space-tone gains used for multi-slicer diversity, matching direwolf's
// MIN_G/MAX_G.
const (
	minSlicerGain = 0.5
	maxSlicerGain = 4.0
)

var cos256Table [256]float64

func init() {
	for i := range cos256Table {
		cos256Table[i] = math.Cos(float64(i) * 2.0 * math.Pi / 256.0)
	}
}

func fcos256(phase uint32) float64 { return cos256Table[(phase>>24)&0xff] }
func fsin256(phase uint32) float64 { return cos256Table[((phase>>24)-64)&0xff] }

// oscillator is a free-running local oscillator driven by a 32-bit phase
// accumulator, matching direwolf's fixed-point mark/space tone generators.
type oscillator struct {
	phase uint32
	delta uint32
}

func newOscillator(freqHz, sampleRate float64) oscillator {
	return oscillator{delta: uint32(math.Round(math.Pow(2, 32) * freqHz / sampleRate))}
}

func (o *oscillator) advance() { o.phase += o.delta }

// afskSlicer holds the per-slicer clock-recovery and carrier-detect state
// for one slicing threshold of an AFSK demodulator.
type afskSlicer struct {
	spaceGain float64

	pll          dsp.PLL
	dcd          DCD
	prevOut      float64
	havePrevOut  bool
	prevDataBit  bool
	haveDataBit  bool
}

// AFSKConfig parameterizes an AFSK demodulator instance.
type AFSKConfig struct {
	SampleRate float64
	Baud       float64
	MarkFreq   float64
	SpaceFreq  float64
	NumSlicers int

	LockedInertia    float64
	SearchingInertia float64
}

// AFSK demodulates Bell 202 (1200 baud) or Bell 103 (300 baud) audio frequency
// shift keying: mix down to baseband with quadrature mark/space local
// oscillators, low-pass filter each arm, take the amplitude, normalize with
// independent AGC, and slice the mark-minus-space difference through one or
// more PLL-driven slicers (spec §4.1).
type AFSK struct {
	cfg AFSKConfig

	markOsc, spaceOsc oscillator

	lpTaps   int
	lpFilter []float64

	mIBuf, mQBuf, sIBuf, sQBuf []float64

	markAGC, spaceAGC dsp.AGC

	slicers []afskSlicer

	// OnBit is called once per recovered data bit: slice index, bit
	// value, and a 0-100 confidence score derived from the demodulator
	// amplitude at the sampling instant.
	OnBit func(slice int, bit byte, quality int)
}

// NewAFSK builds an AFSK demodulator. lpFilterWidthSym is the low-pass
// filter length expressed in symbol periods (direwolf uses 1.857 for 300
// baud profiles and a narrower width derived from an RRC shape for 1200;
// a plain windowed-sinc low-pass of similar width is used here).
func NewAFSK(cfg AFSKConfig, lpFilterWidthSym float64, lpfBaud float64) *AFSK {
	if cfg.NumSlicers < 1 {
		cfg.NumSlicers = 1
	}
	if cfg.LockedInertia == 0 {
		cfg.LockedInertia = 0.74
	}
	if cfg.SearchingInertia == 0 {
		cfg.SearchingInertia = 0.50
	}

	a := &AFSK{cfg: cfg}
	a.markOsc = newOscillator(cfg.MarkFreq, cfg.SampleRate)
	a.spaceOsc = newOscillator(cfg.SpaceFreq, cfg.SampleRate)

	a.lpTaps = int(lpFilterWidthSym*cfg.SampleRate/cfg.Baud) | 1
	a.lpFilter = make([]float64, a.lpTaps)
	fc := lpfBaud * cfg.Baud / cfg.SampleRate
	dsp.GenLowPass(fc, a.lpFilter, dsp.WindowTruncated)

	a.mIBuf = make([]float64, a.lpTaps)
	a.mQBuf = make([]float64, a.lpTaps)
	a.sIBuf = make([]float64, a.lpTaps)
	a.sQBuf = make([]float64, a.lpTaps)

	a.markAGC = dsp.AGC{FastAttack: 0.70, SlowDecay: 0.000090}
	a.spaceAGC = dsp.AGC{FastAttack: 0.70, SlowDecay: 0.000090}

	stepPerSample := int32(math.Round(ticksPerPLLCycle * cfg.Baud / cfg.SampleRate))

	a.slicers = make([]afskSlicer, cfg.NumSlicers)
	gain := minSlicerGain
	step := math.Pow(maxSlicerGain/minSlicerGain, 1.0/float64(max(cfg.NumSlicers-1, 1)))
	for i := range a.slicers {
		a.slicers[i].spaceGain = gain
		a.slicers[i].pll = dsp.PLL{
			StepPerSample:    stepPerSample,
			LockedInertia:    cfg.LockedInertia,
			SearchingInertia: cfg.SearchingInertia,
		}
		a.slicers[i].dcd = *NewDCD(DefaultDCDConfig())
		gain *= step
	}

	return a
}

// ProcessSample feeds one normalized audio sample (-1.0..+1.0) through the
// demodulator.
func (a *AFSK) ProcessSample(sam float64) {
	dsp.PushSample(sam*fcos256(a.markOsc.phase), a.mIBuf)
	dsp.PushSample(sam*fsin256(a.markOsc.phase), a.mQBuf)
	a.markOsc.advance()

	dsp.PushSample(sam*fcos256(a.spaceOsc.phase), a.sIBuf)
	dsp.PushSample(sam*fsin256(a.spaceOsc.phase), a.sQBuf)
	a.spaceOsc.advance()

	mI := dsp.Convolve(a.mIBuf, a.lpFilter)
	mQ := dsp.Convolve(a.mQBuf, a.lpFilter)
	mAmp := math.Hypot(mI, mQ)

	sI := dsp.Convolve(a.sIBuf, a.lpFilter)
	sQ := dsp.Convolve(a.sQBuf, a.lpFilter)
	sAmp := math.Hypot(sI, sQ)

	if len(a.slicers) == 1 {
		mNorm := a.markAGC.Apply(mAmp)
		sNorm := a.spaceAGC.Apply(sAmp)
		demodOut := mNorm - sNorm
		a.nudge(0, demodOut, 1.0)
		return
	}

	// Multi-slicer: track the envelope for confidence scoring but slice
	// at several mark/space gain ratios in parallel instead of picking
	// one AGC-normalized threshold.
	a.markAGC.Apply(mAmp)
	a.spaceAGC.Apply(sAmp)

	for i := range a.slicers {
		demodOut := mAmp - sAmp*a.slicers[i].spaceGain
		amp := 0.5 * (a.markAGC.Peak - a.markAGC.Valley + (a.spaceAGC.Peak-a.spaceAGC.Valley)*a.slicers[i].spaceGain)
		if amp < 0.0000001 {
			amp = 1
		}
		a.nudge(i, demodOut, amp)
	}
}

// nudge advances slice i's PLL, samples a bit on wraparound, and updates
// its DCD and transition-nudge state (nudge_pll_afsk).
func (a *AFSK) nudge(i int, demodOut, amplitude float64) {
	s := &a.slicers[i]

	wrapped := s.pll.Advance()
	if wrapped {
		quality := int(math.Abs(demodOut) * 100.0 / amplitude)
		if quality > 100 {
			quality = 100
		}
		bit := byte(0)
		if demodOut > 0 {
			bit = 1
		}
		if a.OnBit != nil {
			a.OnBit(i, bit, quality)
		}
		if s.dcd.EachSymbol() {
			// lock state changed; caller observes via Locked().
		}
	}

	dataBit := demodOut > 0
	if s.haveDataBit && dataBit != s.prevDataBit {
		s.dcd.OnTransition(s.pll.Value())
		s.pll.OnTransition(s.dcd.Locked())
	}
	s.prevDataBit = dataBit
	s.haveDataBit = true
}

// Locked reports whether slice i's DCD currently considers the signal
// locked.
func (a *AFSK) Locked(slice int) bool { return a.slicers[slice].dcd.Locked() }
