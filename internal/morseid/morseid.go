// Package morseid synthesizes Morse code audio for on-air station
// identification, the "CW ID" some repeaters and digipeaters send
// periodically alongside their APRS beacons. Grounded on src/morse.go's
// MORSE table and morse_send/morse_tone/morse_quiet/morse_units_str.
package morseid

import (
	"math"
	"unicode"
)

// ToneHz is the CW sidetone frequency; direwolf hardcodes the same
// value rather than making it configurable.
const ToneHz = 800

const sineTableSize = 256
const ticksPerCycle = 256.0 * 256.0 * 256.0 * 256.0

type code struct {
	ch  rune
	enc string
}

// table is the International Morse Code alphabet, grounded on MORSE;
// space is deliberately absent (morse_lookup treats anything not found,
// including space, as a word gap).
var table = []code{
	{'A', ".-"}, {'B', "-..."}, {'C', "-.-."}, {'D', "-.."}, {'E', "."},
	{'F', "..-."}, {'G', "--."}, {'H', "...."}, {'I', ".."}, {'J', ".---"},
	{'K', "-.-"}, {'L', ".-.."}, {'M', "--"}, {'N', "-."}, {'O', "---"},
	{'P', ".--."}, {'Q', "--.-"}, {'R', ".-."}, {'S', "..."}, {'T', "-"},
	{'U', "..-"}, {'V', "...-"}, {'W', ".--"}, {'X', "-..-"}, {'Y', "-.--"},
	{'Z', "--.."},
	{'1', ".----"}, {'2', "..---"}, {'3', "...--"}, {'4', "....-"}, {'5', "....."},
	{'6', "-...."}, {'7', "--..."}, {'8', "---.."}, {'9', "----."}, {'0', "-----"},
	{'.', ".-.-.-"}, {',', "--..--"}, {'?', "..--.."}, {'/', "-..-."},
	{'=', "-...-"}, {'-', "-....-"}, {')', "-.--.-"}, {':', "---..."},
	{';', "-.-.-."}, {'"', ".-..-."}, {'\'', ".----."}, {'$', "...-..-"},
	{'!', "-.-.--"}, {'(', "-.--."}, {'&', ".-..."}, {'+', ".-.-."},
	{'_', "..--.-"}, {'@', ".--.-."},
}

// lookup finds ch's code, upper-casing letters first. Returns ok=false
// for space or any character outside the table.
func lookup(ch rune) (string, bool) {
	if unicode.IsLower(ch) {
		ch = unicode.ToUpper(ch)
	}
	for _, c := range table {
		if c.ch == ch {
			return c.enc, true
		}
	}
	return "", false
}

// unitsForChar returns a character's length in Morse time units: a dit
// is 1, a dah is 3, plus 1 unit between each dit/dah of the same
// character. An unknown character (including space) counts as 1 unit,
// matching morse_units_ch's comment about why a mid-message space ends
// up being only 1 extra unit instead of a full 7.
func unitsForChar(ch rune) int {
	enc, ok := lookup(ch)
	if !ok {
		return 1
	}
	units := len(enc) - 1
	for _, k := range enc {
		if k == '.' {
			units++
		} else {
			units += 3
		}
	}
	return units
}

// UnitsForString returns str's total length in Morse time units,
// including 3 units of inter-character gap between every pair of
// characters. Grounded on morse_units_str.
func UnitsForString(str string) int {
	if str == "" {
		return 0
	}
	units := (len([]rune(str)) - 1) * 3
	for _, ch := range str {
		units += unitsForChar(ch)
	}
	return units
}

// MillisPerUnit converts a WPM speed to the duration of one Morse time
// unit, per the PARIS standard direwolf uses (TIME_UNITS_TO_MS).
func MillisPerUnit(wpm int) float64 {
	return 1200.0 / float64(wpm)
}

// Generator synthesizes 16-bit PCM CW audio at a fixed sample rate.
// Grounded on morse_tone/morse_quiet's phase-accumulator sine synthesis
// (the same 256-entry table/32-bit accumulator technique as
// internal/dsp.ToneGenerator, reimplemented here since CW needs
// variable-length tone/silence runs rather than one-sample-per-bit).
type Generator struct {
	sampleRate int
	sineTable  [sineTableSize]int16
	increment  uint32
}

// NewGenerator precomputes the sine table for CW tone generation at
// sampleRate Hz and ToneHz amplitude scaled 0-100.
func NewGenerator(sampleRate int, amplitudePct int) *Generator {
	g := &Generator{sampleRate: sampleRate}
	amp := float64(amplitudePct) / 100.0
	for j := 0; j < sineTableSize; j++ {
		angle := (float64(j) / sineTableSize) * 2 * math.Pi
		s := math.Sin(angle) * 32767 * amp
		if s < -32768 {
			s = -32768
		} else if s > 32767 {
			s = 32767
		}
		g.sineTable[j] = int16(s)
	}
	g.increment = uint32(float64(ToneHz)*ticksPerCycle/float64(sampleRate) + 0.5)
	return g
}

func (g *Generator) samplesForMs(ms float64) int {
	return int(ms*float64(g.sampleRate)/1000.0 + 0.5)
}

func (g *Generator) tone(units int, wpm int, phase *uint32, out []int16) []int16 {
	n := g.samplesForMs(float64(units) * MillisPerUnit(wpm))
	for i := 0; i < n; i++ {
		*phase += g.increment
		out = append(out, g.sineTable[(*phase>>24)&0xff])
	}
	return out
}

func (g *Generator) quiet(units int, wpm int, out []int16) []int16 {
	n := g.samplesForMs(float64(units) * MillisPerUnit(wpm))
	for i := 0; i < n; i++ {
		out = append(out, 0)
	}
	return out
}

func (g *Generator) quietMs(ms int, out []int16) []int16 {
	n := g.samplesForMs(float64(ms))
	for i := 0; i < n; i++ {
		out = append(out, 0)
	}
	return out
}

// Send synthesizes str as CW at wpm words per minute, with txDelayMs of
// lead-in silence and txTailMs of trailing silence (the PTT key-up/key-down
// guard times). Returns the PCM samples and the total elapsed
// milliseconds, the latter matching what morse_send returns for the
// caller to know how long to hold PTT. Grounded on morse_send.
func Send(str string, wpm, sampleRate, amplitudePct, txDelayMs, txTailMs int) ([]int16, int) {
	g := NewGenerator(sampleRate, amplitudePct)
	var out []int16
	var phase uint32

	out = g.quietMs(txDelayMs, out)

	runes := []rune(str)
	for i, ch := range runes {
		if enc, ok := lookup(ch); ok {
			for j, mark := range enc {
				units := 1
				if mark == '-' {
					units = 3
				}
				out = g.tone(units, wpm, &phase, out)
				if j != len(enc)-1 {
					out = g.quiet(1, wpm, out)
				}
			}
		} else {
			out = g.quiet(1, wpm, out)
		}
		if i != len(runes)-1 {
			out = g.quiet(3, wpm, out)
		}
	}

	out = g.quietMs(txTailMs, out)

	totalMs := txDelayMs + int(float64(UnitsForString(str))*MillisPerUnit(wpm)+0.5) + txTailMs
	return out, totalMs
}
