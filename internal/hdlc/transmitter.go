package hdlc

import "github.com/kf7qex/gotnc/internal/bitops"

// flagBits is the 8-bit flag pattern 0x7E as individual bits, LSB first
// (matching the octet bit order used throughout this package).
var flagBits = byteToBits(flagPattern)

func byteToBits(b byte) []byte {
	bits := make([]byte, 8)
	for i := 0; i < 8; i++ {
		bits[i] = (b >> i) & 1
	}
	return bits
}

// AssembleBits builds the un-encoded bit stream for one transmission:
// txDelayFlags flag octets of preamble, the bit-stuffed frame (address
// bytes, control, pid, info, FCS), one or more closing flags, and
// txTailFlags flag octets of postamble (spec §4.6 steps 2-5). The flags
// themselves are never bit-stuffed, only the frame body between them.
//
// frame must already include its trailing 2-byte FCS (internal/ax25's
// Packet.Pack produces exactly this form).
//
// Callers NRZI-encode this for AFSK/FSK modems (see Assemble) or scramble
// it with dsp.Scrambler for 9600-baud baseband, per spec §4.6's tone
// generator contract.
func AssembleBits(frame []byte, txDelayFlags, txTailFlags int) []byte {
	var raw []byte
	for i := 0; i < txDelayFlags; i++ {
		raw = append(raw, flagBits...)
	}

	var dataBits []byte
	for _, b := range frame {
		for i := 0; i < 8; i++ {
			dataBits = append(dataBits, (b>>i)&1)
		}
	}
	raw = append(raw, bitops.Stuff(dataBits)...)

	// At least one closing flag, plus the requested tail padding.
	closing := 1 + txTailFlags
	if closing < 1 {
		closing = 1
	}
	for i := 0; i < closing; i++ {
		raw = append(raw, flagBits...)
	}

	return raw
}

// Assemble builds the full NRZI-encoded bit stream for one transmission,
// for AFSK/FSK modems. See AssembleBits for the frame layout.
func Assemble(frame []byte, txDelayFlags, txTailFlags int, nrziInitial byte) []byte {
	return bitops.EncodeAll(AssembleBits(frame, txDelayFlags, txTailFlags), nrziInitial)
}
