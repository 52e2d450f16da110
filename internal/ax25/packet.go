package ax25

import (
	"fmt"
	"strings"
)

// Packet is a unit of AX.25 UI traffic: exactly one source, one destination,
// 0-8 digipeater addresses, and an information field. Per spec §3 a Packet
// is uniquely owned by whichever queue or goroutine currently holds it;
// handoffs between stages are a plain value/pointer move, never a shared
// reference mutated by two goroutines at once.
type Packet struct {
	Dest    Address
	Source  Address
	Digis   []Address // 0-8 entries, in transmission order
	Control byte
	PID     byte
	Info    []byte

	// ReleaseTime is not set anywhere in this module: the IGate's SATgate
	// delay queue (internal/igate) keeps each packet's release time in its
	// own {packet, channel, release time} record instead.
	ReleaseTime int64
}

// NewUI builds a UI packet (control=0x03, pid=0xF0 unless overridden).
func NewUI(source, dest Address, digis []Address, info []byte) *Packet {
	return &Packet{
		Dest:    dest,
		Source:  source,
		Digis:   append([]Address(nil), digis...),
		Control: ControlUI,
		PID:     PIDNoLayer3,
		Info:    append([]byte(nil), info...),
	}
}

// Clone returns a deep copy so a caller can hand off an independent owner
// without the original being mutated underneath it (spec §3: move, never
// share).
func (p *Packet) Clone() *Packet {
	c := *p
	c.Digis = append([]Address(nil), p.Digis...)
	c.Info = append([]byte(nil), p.Info...)
	return &c
}

// NumDigis returns the number of digipeater addresses (0-8).
func (p *Packet) NumDigis() int { return len(p.Digis) }

// FirstUnused returns the index of the first digipeater address with H=0,
// or -1 if all addresses have been used (or there are none).
func (p *Packet) FirstUnused() int {
	for i, d := range p.Digis {
		if !d.H {
			return i
		}
	}
	return -1
}

// ViaText renders the comma-separated via path as it appears in TNC2 text,
// e.g. "WIDE1-1,WIDE2-2*".
func (p *Packet) ViaText() string {
	parts := make([]string, len(p.Digis))
	for i, d := range p.Digis {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// TNC2 renders the packet in "SRC>DEST,via1,via2:info" monitor text form
// (spec §6).
func (p *Packet) TNC2() string {
	var b strings.Builder
	b.WriteString(p.Source.String())
	b.WriteByte('>')
	b.WriteString(p.Dest.String())
	for _, d := range p.Digis {
		b.WriteByte(',')
		b.WriteString(d.String())
	}
	b.WriteByte(':')
	b.Write(p.Info)
	return b.String()
}

// DTI returns the data-type indicator, the first byte of the information
// field, or 0 if the field is empty.
func (p *Packet) DTI() byte {
	if len(p.Info) == 0 {
		return 0
	}
	return p.Info[0]
}

// CutAtCRLF truncates Info at the first CR or LF, matching the IGate RX
// path's step 6 (spec §4.5): APRS info fields terminate conceptually at
// CR/LF even though the wire format allows arbitrary trailing bytes.
func (p *Packet) CutAtCRLF() {
	for i, b := range p.Info {
		if b == '\r' || b == '\n' {
			p.Info = p.Info[:i]
			return
		}
	}
}

// Validate checks the invariants from spec §3: exactly one source and
// destination (structurally guaranteed by the type), 0-8 digipeaters, and
// a non-absurd info length.
func (p *Packet) Validate() error {
	if len(p.Digis) > MaxDigipeats {
		return fmt.Errorf("ax25: %d digipeater addresses exceeds max %d", len(p.Digis), MaxDigipeats)
	}
	if len(p.Info) > MaxInfoLen {
		return fmt.Errorf("ax25: info field length %d exceeds max %d", len(p.Info), MaxInfoLen)
	}
	return nil
}

// Pack serializes the packet to its AX.25 HDLC frame form (addresses,
// control, pid, info, FCS) without bit-stuffing or flags — that is the
// concern of internal/hdlc and internal/bitops, which operate on this byte
// form.
func (p *Packet) Pack() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	addrs := make([]Address, 0, 2+len(p.Digis))
	addrs = append(addrs, p.Dest, p.Source)
	addrs = append(addrs, p.Digis...)

	buf := make([]byte, 0, len(addrs)*AddrLen+2+len(p.Info)+2)
	for i, a := range addrs {
		isDigi := i >= 2
		last := i == len(addrs)-1
		enc := a.encode(last, isDigi)
		buf = append(buf, enc[:]...)
	}

	control := p.Control
	if control == 0 {
		control = ControlUI
	}
	pid := p.PID
	if pid == 0 {
		pid = PIDNoLayer3
	}
	buf = append(buf, control, pid)
	buf = append(buf, p.Info...)

	fcs := ComputeFCS(buf)
	buf = append(buf, byte(fcs), byte(fcs>>8))
	return buf, nil
}

// ParseFrame decodes a raw (already destuffed, FCS-checked) AX.25 frame,
// the output of internal/hdlc's receiver, into a Packet. The trailing 2 FCS
// bytes must already have been verified and are stripped by the caller, or
// may be left attached — ParseFrame tolerates both by checking length.
func ParseFrame(frame []byte) (*Packet, error) {
	data := frame
	// Accept either with or without the trailing FCS; hdlc.Receiver
	// strips it before handing frames upward, but accepting both keeps
	// this usable directly against raw capture bytes in tests.
	if len(data) >= 2 && CheckFCS(data) {
		data = data[:len(data)-2]
	}
	if len(data) < MinPacketLen {
		return nil, fmt.Errorf("ax25: frame too short: %d bytes, need at least %d", len(data), MinPacketLen)
	}

	dest, _, err := decodeAddress(data[0:AddrLen], false)
	if err != nil {
		return nil, err
	}
	source, last, err := decodeAddress(data[AddrLen:2*AddrLen], false)
	if err != nil {
		return nil, err
	}

	off := 2 * AddrLen
	var digis []Address
	for !last {
		if off+AddrLen > len(data) {
			return nil, fmt.Errorf("ax25: truncated address field")
		}
		if len(digis) >= MaxDigipeats {
			return nil, fmt.Errorf("ax25: more than %d digipeater addresses", MaxDigipeats)
		}
		var d Address
		d, last, err = decodeAddress(data[off:off+AddrLen], true)
		if err != nil {
			return nil, err
		}
		digis = append(digis, d)
		off += AddrLen
	}

	if off+2 > len(data) {
		return nil, fmt.Errorf("ax25: missing control/pid")
	}
	control := data[off]
	pid := data[off+1]
	off += 2

	info := append([]byte(nil), data[off:]...)

	return &Packet{
		Dest:    dest,
		Source:  source,
		Digis:   digis,
		Control: control,
		PID:     pid,
		Info:    info,
	}, nil
}

// ParseTNC2 parses the permissive text monitor format
// "SRC>DEST,VIA1,VIA2,...:info" used on APRS-IS and in KISS monitor output
// (spec §6). It is permissive about the q-construct the way spec §4.5 step
// 3 requires: any VIA token is accepted structurally, q-construct tokens
// included, without validating they look like callsigns.
func ParseTNC2(line string) (*Packet, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return nil, fmt.Errorf("ax25: no ':' in TNC2 line %q", line)
	}
	header := line[:colon]
	info := line[colon+1:]

	gt := strings.IndexByte(header, '>')
	if gt < 0 {
		return nil, fmt.Errorf("ax25: no '>' in TNC2 header %q", header)
	}
	srcText := header[:gt]
	rest := header[gt+1:]

	parts := strings.Split(rest, ",")
	destText := parts[0]
	viaText := parts[1:]

	source, err := parseTNC2Addr(srcText)
	if err != nil {
		return nil, err
	}
	dest, err := parseTNC2Addr(destText)
	if err != nil {
		return nil, err
	}
	digis := make([]Address, 0, len(viaText))
	for _, v := range viaText {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		a, err := parseTNC2Addr(v)
		if err != nil {
			return nil, err
		}
		digis = append(digis, a)
	}

	return &Packet{
		Dest:    dest,
		Source:  source,
		Digis:   digis,
		Control: ControlUI,
		PID:     PIDNoLayer3,
		Info:    []byte(info),
	}, nil
}

// parseTNC2Addr is more permissive than ParseAddress: the q-construct
// ("qAR", "qAC", etc.) and third-party TCPIP/TCPXX tokens are not valid
// AX.25 callsigns but must round-trip through TNC2 text unharmed.
func parseTNC2Addr(text string) (Address, error) {
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
		if n, err := atoiLoose(s[i+1:]); err == nil {
			ssid = n
		}
	}
	if call == "" {
		return Address{}, fmt.Errorf("ax25: empty address in %q", text)
	}
	return Address{Call: strings.ToUpper(call), SSID: ssid, H: h}, nil
}

func atoiLoose(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// thirdPartyVias that forbid relay, per spec §4.5 steps 3-4.
var thirdPartyVias = map[string]bool{
	"TCPIP":  true,
	"TCPXX":  true,
	"RFONLY": true,
	"NOGATE": true,
}

// HasForbiddenVia reports whether any digipeater address (by callsign only,
// ignoring SSID) is one of the relay-forbidding tokens.
func (p *Packet) HasForbiddenVia() bool {
	for _, d := range p.Digis {
		if thirdPartyVias[d.Call] {
			return true
		}
	}
	return false
}

// UnwrapThirdParty recursively unwraps a third-party packet (DTI '}'),
// returning the innermost packet, per spec §4.5 step 3. It aborts (returns
// an error) if any outer via-address it passes through is forbidden.
func UnwrapThirdParty(p *Packet) (*Packet, error) {
	cur := p
	for cur.DTI() == '}' {
		if cur.HasForbiddenVia() {
			return nil, fmt.Errorf("ax25: forbidden via in third-party path")
		}
		inner, err := ParseTNC2(string(cur.Info[1:]))
		if err != nil {
			return nil, fmt.Errorf("ax25: bad third-party payload: %w", err)
		}
		cur = inner
	}
	return cur, nil
}

// DedupeKey is the (source, dest, info-trimmed) checksum spec §3 and §8
// require: it must not depend on the digipeater path, so a loop-suppressed
// retransmission with a different via list still matches the original.
//
// The checksum is computed over the concatenation of source, destination,
// and info with trailing whitespace trimmed, using the same CCITT
// polynomial as the frame FCS (direwolf's ax25_dedupe_crc uses its own
// running CRC16 seeded at 0xFFFF without the final complement; we mirror
// that exactly here since only self-consistency, not interop with the
// on-air FCS, matters for this key).
func (p *Packet) DedupeKey() uint16 {
	info := strings.TrimRight(string(p.Info), " \t\r\n")
	crc := uint16(0xFFFF)
	feed := func(s string) {
		for i := 0; i < len(s); i++ {
			crc = (crc >> 8) ^ fcsTable[(crc^uint16(s[i]))&0xFF]
		}
	}
	feed(p.Source.String())
	feed(p.Dest.String())
	feed(info)
	return crc
}
