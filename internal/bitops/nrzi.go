package bitops

// NRZIEncoder holds the running output level for NRZI line coding: a 0 bit
// toggles the output, a 1 bit holds it (spec §4.6, GLOSSARY).
type NRZIEncoder struct {
	level byte // current output level, 0 or 1
}

// NewNRZIEncoder starts from the given initial level.
func NewNRZIEncoder(initial byte) *NRZIEncoder {
	return &NRZIEncoder{level: initial & 1}
}

// Encode returns the NRZI-encoded output level for one data bit and updates
// internal state.
func (e *NRZIEncoder) Encode(bit byte) byte {
	if bit == 0 {
		e.level ^= 1
	}
	return e.level
}

// NRZIDecoder is the inverse: given a sequence of observed signal levels, it
// recovers data bits.
type NRZIDecoder struct {
	prev byte
	init bool
}

// NewNRZIDecoder starts from the given initial level (must match the
// encoder's starting level for a correct first bit).
func NewNRZIDecoder(initial byte) *NRZIDecoder {
	return &NRZIDecoder{prev: initial & 1, init: true}
}

// Decode recovers one data bit from an observed signal level: a transition
// from the previous level means a 0 was sent, no transition means a 1.
func (d *NRZIDecoder) Decode(level byte) byte {
	level &= 1
	var bit byte
	if level != d.prev {
		bit = 0
	} else {
		bit = 1
	}
	d.prev = level
	return bit
}

// EncodeAll is a convenience wrapper for tests and short framing sequences.
func EncodeAll(bits []byte, initial byte) []byte {
	enc := NewNRZIEncoder(initial)
	out := make([]byte, len(bits))
	for i, b := range bits {
		out[i] = enc.Encode(b)
	}
	return out
}

// DecodeAll is the inverse convenience wrapper.
func DecodeAll(levels []byte, initial byte) []byte {
	dec := NewNRZIDecoder(initial)
	out := make([]byte, len(levels))
	for i, l := range levels {
		out[i] = dec.Decode(l)
	}
	return out
}
