// Package dsp provides the signal-processing primitives shared by the
// demodulator variants: FIR filter generation/convolution, AGC envelope
// tracking, the PLL bit-clock-recovery accumulator, and the 9600-baud
// descrambling LFSR (spec §4.1).
package dsp

import "math"

// Window selects the FIR window function applied to a raw sinc low-pass
// kernel, matching the options direwolf exposes.
type Window int

const (
	WindowTruncated Window = iota
	WindowCosine
	WindowHamming
	WindowBlackman
)

// GenLowPass fills coeff (length taps) with a windowed-sinc low-pass FIR
// kernel with cutoff fc expressed as a fraction of the sample rate
// (0 < fc < 0.5).
func GenLowPass(fc float64, coeff []float64, window Window) {
	taps := len(coeff)
	center := float64(taps-1) / 2.0
	for i := 0; i < taps; i++ {
		x := float64(i) - center
		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		coeff[i] = sinc * windowValue(window, i, taps)
	}
}

func windowValue(w Window, i, taps int) float64 {
	n := float64(taps - 1)
	switch w {
	case WindowCosine:
		return math.Cos(math.Pi * (float64(i) - n/2) / (n + 1))
	case WindowHamming:
		return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/n)
	case WindowBlackman:
		return 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/n) + 0.08*math.Cos(4*math.Pi*float64(i)/n)
	default:
		return 1.0
	}
}

// Convolve computes one FIR output sample: the dot product of filter with
// the most recent len(filter) entries of data (data[0] being the newest
// sample, matching the ring-shift convention used by the demodulators).
func Convolve(data, filter []float64) float64 {
	sum := 0.0
	for j := range filter {
		sum += filter[j] * data[j]
	}
	return sum
}

// PushSample shifts buff right by one and inserts val at the front,
// maintaining a most-recent-first ring for Convolve.
func PushSample(val float64, buff []float64) {
	copy(buff[1:], buff[:len(buff)-1])
	buff[0] = val
}
