// Package ax25 implements the AX.25 UI-frame packet and address model used
// throughout the TNC: the over-the-air address encoding, the FCS, and the
// dedupe checksum that ignores the digipeater path.
package ax25

import (
	"fmt"
	"strconv"
	"strings"
)

// Field widths and limits from the AX.25 v2.2 frame layout (spec §6).
const (
	AddrLen       = 7   // bytes per encoded address (6 callsign + 1 SSID/flags)
	MaxDigipeats  = 8   // maximum repeater addresses in a transmitted frame
	MaxAddrs      = 2 + MaxDigipeats
	MaxInfoLen    = 256 // conservative ceiling on the AX.25 information field
	MinPacketLen  = 2*AddrLen + 1 /*control*/ + 1 /*pid*/
	MaxPacketLen  = MaxAddrs*AddrLen + 1 + 1 + MaxInfoLen
	ControlUI     = 0x03
	PIDNoLayer3   = 0xF0
	ssidSSIDMask  = 0x1e
	ssidHBitMask  = 0x80 // "has been repeated" bit, digipeater addresses only
	ssidCRBitMask = 0x80 // command/response bit, src/dest addresses
	ssidRRMask    = 0x60
	ssidLastMask  = 0x01 // set on the final transmitted address octet
)

// Address is one AX.25 station address: up to 6 upper-case alphanumerics
// plus an SSID 0-15. H is meaningful only for digipeater addresses (the
// "has been repeated" flag); CR is meaningful only for source/destination.
type Address struct {
	Call string
	SSID int
	H    bool
	CR   bool
}

// ParseAddress parses the text form "CALL-SSID" or "CALL-SSID*" (trailing
// '*' is an alternate way of writing H=true for a digipeater address).
func ParseAddress(text string) (Address, error) {
	s := strings.TrimSpace(text)
	h := false
	if strings.HasSuffix(s, "*") {
		h = true
		s = s[:len(s)-1]
	}

	call := s
	ssid := 0
	if i := strings.IndexByte(s, '-'); i >= 0 {
		call = s[:i]
		n, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return Address{}, fmt.Errorf("ax25: bad SSID in %q: %w", text, err)
		}
		ssid = n
	}

	if call == "" || len(call) > 6 {
		return Address{}, fmt.Errorf("ax25: callsign %q must be 1-6 characters", call)
	}
	for _, c := range call {
		if !isAddrChar(c) {
			return Address{}, fmt.Errorf("ax25: callsign %q has invalid character %q", call, c)
		}
	}
	if ssid < 0 || ssid > 15 {
		return Address{}, fmt.Errorf("ax25: SSID %d out of range 0-15", ssid)
	}

	return Address{Call: strings.ToUpper(call), SSID: ssid, H: h}, nil
}

func isAddrChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// String renders "CALL-SSID" (SSID 0 is omitted) with a trailing '*' when H
// is set, the conventional printed form for a digipeater address that has
// already been used.
func (a Address) String() string {
	s := a.Call
	if a.SSID != 0 {
		s += "-" + strconv.Itoa(a.SSID)
	}
	if a.H {
		s += "*"
	}
	return s
}

// encode packs the address into the 7-octet AX.25 wire form: each callsign
// character shifted left one bit, space-padded to 6 characters, followed by
// the SSID octet. last marks the final address in the frame (its low bit is
// always 1); isDigi selects whether bit 7 is the H flag (digipeater
// addresses) or the command/response bit (source/destination).
func (a Address) encode(last bool, isDigi bool) [AddrLen]byte {
	var out [AddrLen]byte
	call := a.Call
	for i := 0; i < 6; i++ {
		var c byte = ' '
		if i < len(call) {
			c = call[i]
		}
		out[i] = c << 1
	}

	var ssidOctet byte = ssidRRMask
	ssidOctet |= byte(a.SSID<<1) & ssidSSIDMask
	if isDigi {
		if a.H {
			ssidOctet |= ssidHBitMask
		}
	} else if a.CR {
		ssidOctet |= ssidCRBitMask
	}
	if last {
		ssidOctet |= ssidLastMask
	}
	out[6] = ssidOctet
	return out
}

// decodeAddress is the inverse of encode: it recovers an Address plus
// whether this was flagged as the last address in the frame.
func decodeAddress(b []byte, isDigi bool) (addr Address, last bool, err error) {
	if len(b) < AddrLen {
		return Address{}, false, fmt.Errorf("ax25: short address, need %d bytes, got %d", AddrLen, len(b))
	}
	var call [6]byte
	for i := 0; i < 6; i++ {
		call[i] = b[i] >> 1
	}
	addr.Call = strings.TrimRight(string(call[:]), " ")
	addr.SSID = int(b[6]&ssidSSIDMask) >> 1
	if isDigi {
		addr.H = b[6]&ssidHBitMask != 0
	} else {
		addr.CR = b[6]&ssidCRBitMask != 0
	}
	last = b[6]&ssidLastMask != 0
	return addr, last, nil
}
