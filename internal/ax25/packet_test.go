package ax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAddr(t *testing.T, s string) Address {
	t.Helper()
	a, err := ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestPackParseRoundTrip(t *testing.T) {
	src := mustAddr(t, "W1ABC-5")
	dest := mustAddr(t, "APRS")
	digis := []Address{mustAddr(t, "WIDE1-1"), mustAddr(t, "WIDE2-2")}
	digis[0].H = true

	p := NewUI(src, dest, digis, []byte("!4237.14N/07120.83W-test"))

	frame, err := p.Pack()
	require.NoError(t, err)
	assert.True(t, CheckFCS(frame))

	got, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, p.Source, got.Source)
	assert.Equal(t, p.Dest, got.Dest)
	assert.Equal(t, p.Digis, got.Digis)
	assert.Equal(t, p.Info, got.Info)
	assert.Equal(t, byte(ControlUI), got.Control)
	assert.Equal(t, byte(PIDNoLayer3), got.PID)
}

func TestDedupeKeyIgnoresDigipeaterPath(t *testing.T) {
	src := mustAddr(t, "W1ABC")
	dest := mustAddr(t, "APRS")
	info := []byte("!4237.14N/07120.83W-test")

	p1 := NewUI(src, dest, []Address{mustAddr(t, "WIDE2-2")}, info)
	p2 := NewUI(src, dest, []Address{mustAddr(t, "WIDE1-1"), mustAddr(t, "CITY*")}, info)
	p3 := NewUI(src, dest, nil, info)

	assert.Equal(t, p1.DedupeKey(), p2.DedupeKey())
	assert.Equal(t, p1.DedupeKey(), p3.DedupeKey())
}

func TestDedupeKeyTrimsTrailingWhitespace(t *testing.T) {
	src := mustAddr(t, "W1ABC")
	dest := mustAddr(t, "APRS")
	p1 := NewUI(src, dest, nil, []byte("hello"))
	p2 := NewUI(src, dest, nil, []byte("hello   \r\n"))
	assert.Equal(t, p1.DedupeKey(), p2.DedupeKey())
}

func TestDedupeKeyDiffersOnInfo(t *testing.T) {
	src := mustAddr(t, "W1ABC")
	dest := mustAddr(t, "APRS")
	p1 := NewUI(src, dest, nil, []byte("hello"))
	p2 := NewUI(src, dest, nil, []byte("goodbye"))
	assert.NotEqual(t, p1.DedupeKey(), p2.DedupeKey())
}

func TestParseTNC2(t *testing.T) {
	line := "W1ABC>APRS,WIDE2-2:!4237.14N/07120.83W-test"
	p, err := ParseTNC2(line)
	require.NoError(t, err)
	assert.Equal(t, "W1ABC", p.Source.Call)
	assert.Equal(t, "APRS", p.Dest.Call)
	require.Len(t, p.Digis, 1)
	assert.Equal(t, "WIDE2-2", p.Digis[0].String())
	assert.Equal(t, "!4237.14N/07120.83W-test", string(p.Info))
	assert.Equal(t, line, p.TNC2())
}

func TestHasForbiddenVia(t *testing.T) {
	p, err := ParseTNC2("W1ABC>APRS,TCPIP*:hello")
	require.NoError(t, err)
	assert.True(t, p.HasForbiddenVia())

	p2, err := ParseTNC2("W1ABC>APRS,WIDE1-1:hello")
	require.NoError(t, err)
	assert.False(t, p2.HasForbiddenVia())
}

func TestUnwrapThirdParty(t *testing.T) {
	p, err := ParseTNC2("MYCALL>APDW17,WIDE1-1:}K1USN-1>APWW10,TCPIP,MYCALL*:T#479,100,048,002,500,000,10000000")
	require.NoError(t, err)
	inner, err := UnwrapThirdParty(p)
	require.NoError(t, err)
	assert.Equal(t, "K1USN-1", inner.Source.Call)
	assert.Equal(t, "T#479,100,048,002,500,000,10000000", string(inner.Info))
}

func TestUnwrapThirdPartyRejectsForbiddenOuterVia(t *testing.T) {
	p, err := ParseTNC2("MYCALL>APDW17,TCPIP*:}K1USN-1>APWW10::hello")
	require.NoError(t, err)
	_, err = UnwrapThirdParty(p)
	assert.Error(t, err)
}

func TestCutAtCRLF(t *testing.T) {
	p := NewUI(mustAddr(t, "W1ABC"), mustAddr(t, "APRS"), nil, []byte("hello\r\ngarbage"))
	p.CutAtCRLF()
	assert.Equal(t, "hello", string(p.Info))
}

func TestValidateRejectsTooManyDigis(t *testing.T) {
	digis := make([]Address, MaxDigipeats+1)
	for i := range digis {
		digis[i] = mustAddr(t, "WIDE1-1")
	}
	p := NewUI(mustAddr(t, "W1ABC"), mustAddr(t, "APRS"), digis, nil)
	assert.Error(t, p.Validate())
}

func TestShortFrameRejected(t *testing.T) {
	_, err := ParseFrame(make([]byte, MinPacketLen-1))
	assert.Error(t, err)
}
