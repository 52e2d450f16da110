// Package agwpe implements the AGWPE ("AGW Packet Engine") TCP client
// protocol: a fixed 36-byte header framing a variable-length payload,
// used by UI-View, Xastir, and other legacy AGW-aware clients as an
// alternative to KISS. Grounded on src/agwpe.go's AGWPEHeader/
// AGWPEMessage, generalized from an encode-only helper into a full
// codec plus the command-kind constants the original left implicit.
package agwpe

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DataKind is the AGWPE header's single command-type byte.
type DataKind byte

const (
	KindVersion         DataKind = 'R' // request/reply: AGWPE version
	KindPortInfo        DataKind = 'G' // port information
	KindPortCaps        DataKind = 'g'
	KindFrameCount      DataKind = 'Y' // outstanding frames for a port/channel
	KindRegisterMonitor DataKind = 'm'
	KindEnableMonitor   DataKind = 'k' // raw monitor on/off
	KindRawTNC          DataKind = 'K' // raw AX.25 frame, as transmitted/received
	KindUnprotoData     DataKind = 'M' // UI data, destination supplied in CallTo
	KindConnect         DataKind = 'C'
	KindConnectData     DataKind = 'D'
	KindDisconnect      DataKind = 'd'
	KindRegisterCall    DataKind = 'X'
	KindUnregisterCall  DataKind = 'x'
)

// Header is the canonical 36-byte AGWPE frame header. Field names and
// order mirror the teacher's AGWPEHeader byte-for-byte, since any
// reordering would break binary.Write's wire layout.
type Header struct {
	Portx        byte
	Reserved1    byte
	Reserved2    byte
	Reserved3    byte
	DataKind     DataKind
	Reserved4    byte
	PID          byte
	Reserved5    byte
	CallFrom     [10]byte
	CallTo       [10]byte
	DataLen      uint32
	UserReserved [4]byte
}

// Message is one complete AGWPE frame: header plus payload. Grounded on
// AGWPEMessage.
type Message struct {
	Header Header
	Data   []byte
}

// NewMessage builds a Message for a raw-frame or unproto-data command,
// filling CallFrom/CallTo and DataLen from the supplied strings/payload.
func NewMessage(port int, kind DataKind, callFrom, callTo string, data []byte) Message {
	var h Header
	h.Portx = byte(port)
	h.DataKind = kind
	putCall(&h.CallFrom, callFrom)
	putCall(&h.CallTo, callTo)
	h.DataLen = uint32(len(data))
	return Message{Header: h, Data: data}
}

func putCall(dst *[10]byte, call string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst[:], call)
}

func getCall(src [10]byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// CallFromStr and CallToStr decode the header's null-terminated callsign
// fields back into plain strings.
func (h Header) CallFromStr() string { return getCall(h.CallFrom) }
func (h Header) CallToStr() string   { return getCall(h.CallTo) }

// Write serializes msg to w: the fixed header via binary.Write, then the
// payload via a plain io.Writer.Write, since binary.Write cannot
// serialize a variable-length slice. Grounded on AGWPEMessage.Write,
// carried over verbatim (comment included) because it states a real
// encoding/binary constraint, not a stylistic choice.
func (msg *Message) Write(w io.Writer, order binary.ByteOrder) (int, error) {
	if err := binary.Write(w, order, msg.Header); err != nil {
		return 0, err
	}
	if msg.Header.DataLen > 0 {
		return w.Write(msg.Data)
	}
	return 0, nil
}

// headerSize is the fixed, padding-free wire size of Header: 8 single
// bytes, two 10-byte call fields, a uint32, and 4 reserved bytes.
const headerSize = 8 + 10 + 10 + 4 + 4

// ReadMessage parses one Message from r: the fixed header, then exactly
// DataLen bytes of payload. There is no framing delimiter beyond the
// header's own DataLen field, matching AGWPE's stream protocol.
func ReadMessage(r io.Reader, order binary.ByteOrder) (Message, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Message{}, fmt.Errorf("agwpe: read header: %w", err)
	}

	var h Header
	h.Portx = raw[0]
	h.Reserved1, h.Reserved2, h.Reserved3 = raw[1], raw[2], raw[3]
	h.DataKind = DataKind(raw[4])
	h.Reserved4 = raw[5]
	h.PID = raw[6]
	h.Reserved5 = raw[7]
	copy(h.CallFrom[:], raw[8:18])
	copy(h.CallTo[:], raw[18:28])
	h.DataLen = order.Uint32(raw[28:32])
	copy(h.UserReserved[:], raw[32:36])

	if h.DataLen == 0 {
		return Message{Header: h}, nil
	}

	const maxDataLen = 1 << 20 // generous bound against a corrupt/hostile length field
	if h.DataLen > maxDataLen {
		return Message{}, fmt.Errorf("agwpe: DataLen %d exceeds sanity limit", h.DataLen)
	}
	data := make([]byte, h.DataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, fmt.Errorf("agwpe: read payload: %w", err)
	}
	return Message{Header: h, Data: data}, nil
}
