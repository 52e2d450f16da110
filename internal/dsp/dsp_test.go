package dsp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrambleDescrambleRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	var sc Scrambler
	var dsc Descrambler

	bits := make([]byte, 5000)
	for i := range bits {
		bits[i] = byte(rnd.Intn(2))
	}

	for _, b := range bits {
		scrambled := sc.Scramble(b)
		recovered := dsc.Descramble(scrambled)
		assert.Equal(t, b, recovered)
	}
}

func TestDescramblerResyncsWithoutSharedState(t *testing.T) {
	// A descrambler started cold still recovers the correct bit stream
	// once its 17-bit history fills with scrambled bits (self-sync
	// property) -- run long enough that the initial garbage is a small
	// fraction of the stream.
	rnd := rand.New(rand.NewSource(2))
	var sc Scrambler
	var dsc Descrambler

	const n = 200
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(rnd.Intn(2))
	}

	mismatches := 0
	for i, b := range bits {
		scrambled := sc.Scramble(b)
		recovered := dsc.Descramble(scrambled)
		if i >= 17 && recovered != b {
			mismatches++
		}
	}
	assert.Zero(t, mismatches)
}

func TestAGCTracksSquareWave(t *testing.T) {
	agc := &AGC{FastAttack: 0.5, SlowDecay: 0.05}
	var last float64
	for i := 0; i < 500; i++ {
		in := 1.0
		if i%2 == 0 {
			in = -1.0
		}
		last = agc.Apply(in)
	}
	assert.InDelta(t, 0.5, last, 0.2)
	assert.Greater(t, agc.Peak, agc.Valley)
}

func TestAGCFlatSignalYieldsZero(t *testing.T) {
	agc := &AGC{FastAttack: 0.5, SlowDecay: 0.05}
	out := agc.Apply(0.0)
	assert.Equal(t, 0.0, out)
}

func TestPLLAdvanceWrapsAtExpectedPeriod(t *testing.T) {
	// 1<<28 divides 1<<32 sixteen times exactly, so the accumulator wraps
	// from positive to negative exactly once every 16 samples.
	pll := &PLL{StepPerSample: 1 << 28, LockedInertia: 0.88, SearchingInertia: 0.67}
	wraps := 0
	for i := 0; i < 1000; i++ {
		if pll.Advance() {
			wraps++
		}
	}
	assert.Greater(t, wraps, 55)
	assert.Less(t, wraps, 70)
}

func TestPLLOnZeroCrossingPullsTowardTarget(t *testing.T) {
	pll := &PLL{StepPerSample: 1000, LockedInertia: 0.0, SearchingInertia: 0.0}
	pll.OnZeroCrossing(-1.0, 1.0, true)
	assert.InDelta(t, 500.0, float64(pll.Value()), 1.0)
}

func TestPLLOnTransitionDecaysTowardZero(t *testing.T) {
	pll := &PLL{StepPerSample: 1000, LockedInertia: 0.5, SearchingInertia: 0.1}
	pll.acc = 1000
	pll.OnTransition(true)
	assert.Equal(t, int32(500), pll.Value())

	pll.acc = 1000
	pll.OnTransition(false)
	assert.Equal(t, int32(100), pll.Value())
}

func TestGenLowPassSymmetric(t *testing.T) {
	coeff := make([]float64, 31)
	GenLowPass(0.1, coeff, WindowHamming)
	for i := 0; i < len(coeff)/2; i++ {
		assert.InDelta(t, coeff[i], coeff[len(coeff)-1-i], 1e-9)
	}
}

func TestConvolveAndPushSample(t *testing.T) {
	buff := make([]float64, 4)
	PushSample(1, buff)
	PushSample(2, buff)
	PushSample(3, buff)
	assert.Equal(t, []float64{3, 2, 1, 0}, buff)

	filter := []float64{1, 0, 0, 0}
	assert.Equal(t, 3.0, Convolve(buff, filter))
}
