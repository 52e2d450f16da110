package dsp

import "math"

// sineTableSize matches direwolf's 256-entry quarter/full sine lookup
// table, indexed by the top 8 bits of a 32-bit phase accumulator.
const sineTableSize = 256

// ticksPerCycle is the 32-bit phase accumulator's full rotation, per
// src/gen_tone.go's TICKS_PER_CYCLE.
const ticksPerCycle = 256.0 * 256.0 * 256.0 * 256.0

// Modem selects the waveform ToneGenerator synthesizes.
type Modem int

const (
	ModemAFSK      Modem = iota // Bell 202 (1200 bps) or Bell 103 (300 bps)
	ModemBaseband9600           // G3RUH-style scrambled direct baseband
)

// ToneGenConfig carries the per-channel modem parameters needed to compute
// the phase accumulator's sample and bit increments. Grounded on
// src/gen_tone.go's gen_tone_init.
type ToneGenConfig struct {
	Modem         Modem
	SampleRate    int // audio device sample rate, Hz
	Baud          int // bit rate, e.g. 1200, 300, 9600
	MarkFreq      int // AFSK mark tone, Hz (e.g. 1200 for Bell 202)
	SpaceFreq     int // AFSK space tone, Hz (e.g. 2200 for Bell 202)
	AmplitudePct  int // 0-100, applied to the sine table at construction
}

// ToneGenerator synthesizes 16-bit signed PCM samples for one radio
// channel's transmit path, one data bit at a time. Grounded on
// src/gen_tone.go's tone_gen_put_bit_real (AFSK and MODEM_BASEBAND/SCRAMBLE
// cases only — QPSK/8PSK/EAS are out of scope here).
type ToneGenerator struct {
	cfg ToneGenConfig

	sineTable [sineTableSize]int16

	ticksPerSample  uint32
	ticksPerBit     uint32
	markIncrement   uint32
	spaceIncrement  uint32
	basebandIncrement uint32

	phase       uint32
	bitLenAcc   uint32
	prevBasebandBit byte
}

// NewToneGenerator precomputes the sine table and phase increments for
// cfg. Amplitude clipping mirrors gen_tone_init's warning-and-clamp
// behavior, silently (callers are expected to validate AmplitudePct <=
// 100 themselves; values above it still clip correctly here).
func NewToneGenerator(cfg ToneGenConfig) *ToneGenerator {
	g := &ToneGenerator{cfg: cfg}

	amp := float64(cfg.AmplitudePct) / 100.0
	for j := 0; j < sineTableSize; j++ {
		angle := (float64(j) / sineTableSize) * 2.0 * math.Pi
		s := math.Sin(angle) * 32767 * amp
		if s < -32768 {
			s = -32768
		} else if s > 32767 {
			s = 32767
		}
		g.sineTable[j] = int16(s)
	}

	rate := float64(cfg.SampleRate)
	g.ticksPerSample = uint32(ticksPerCycle/rate + 0.5)

	switch cfg.Modem {
	case ModemBaseband9600:
		g.ticksPerBit = uint32(ticksPerCycle/float64(cfg.Baud) + 0.5)
		g.basebandIncrement = uint32(float64(cfg.Baud)*0.5*ticksPerCycle/rate + 0.5)
	default: // AFSK
		g.ticksPerBit = uint32(ticksPerCycle/float64(cfg.Baud) + 0.5)
		g.markIncrement = uint32(float64(cfg.MarkFreq)*ticksPerCycle/rate + 0.5)
		g.spaceIncrement = uint32(float64(cfg.SpaceFreq)*ticksPerCycle/rate + 0.5)
	}

	return g
}

// PutBit synthesizes one bit time's worth of samples into out (appending)
// and returns the extended slice. For AFSK, bit selects mark (1) or space
// (0) tone directly — the caller is expected to have already NRZI-encoded
// the bit stream (hdlc.Assemble does this), matching direwolf's "a data
// '1' should be the mark tone" convention. For 9600 baseband, bit must
// already be scrambled (dsp.Scrambler); consecutive equal bits alternate
// the phase by +/-90 degrees, consecutive unequal bits hold the tone at
// baud/2 Hz, directly generating the waveform rather than square-wave +
// lowpass filtering (src/gen_tone.go's "Version 1.6" comment).
func (g *ToneGenerator) PutBit(bit byte, out []int16) []int16 {
	for {
		var sample int16
		switch g.cfg.Modem {
		case ModemBaseband9600:
			if bit != g.prevBasebandBit {
				g.phase += g.basebandIncrement
			} else if g.phase&0x80000000 != 0 {
				g.phase = 0xc0000000
			} else {
				g.phase = 0x40000000
			}
			sample = g.sineTable[(g.phase>>24)&0xff]
		default:
			inc := g.spaceIncrement
			if bit != 0 {
				inc = g.markIncrement
			}
			g.phase += inc
			sample = g.sineTable[(g.phase>>24)&0xff]
		}

		out = append(out, sample)

		g.bitLenAcc += g.ticksPerSample
		if g.bitLenAcc >= g.ticksPerBit {
			break
		}
	}

	g.bitLenAcc -= g.ticksPerBit
	g.prevBasebandBit = bit
	return out
}

// PutBits synthesizes an entire bit stream, a convenience wrapper around
// repeated PutBit calls for a whole transmission.
func (g *ToneGenerator) PutBits(bits []byte) []int16 {
	out := make([]int16, 0, len(bits)*int(g.cfg.SampleRate/max1(g.cfg.Baud)))
	for _, b := range bits {
		out = g.PutBit(b, out)
	}
	return out
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
