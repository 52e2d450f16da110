package pfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kf7qex/gotnc/internal/ax25"
)

func mustAddr(t *testing.T, s string) ax25.Address {
	t.Helper()
	a, err := ax25.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func posPacket(t *testing.T, source string, info string) *ax25.Packet {
	t.Helper()
	return &ax25.Packet{
		Source: mustAddr(t, source),
		Dest:   mustAddr(t, "APDW16"),
		Info:   []byte(info),
	}
}

func TestBudlistExactMatch(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("b/KJ4ERJ-9", pkt, true))
	assert.Equal(t, 0, e.Eval("b/W1AW", pkt, true))
}

func TestBudlistWildcard(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("b/KJ4ERJ*", pkt, true))
}

func TestDigipeaterUsedVsUnused(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "N0CALL", "!4237.12N/07108.42W>test")
	pkt.Digis = []ax25.Address{mustAddr(t, "WIDE1-1"), mustAddr(t, "WIDE2-1")}
	pkt.Digis[0].H = true

	assert.Equal(t, 1, e.Eval("d/WIDE1-1", pkt, true))
	assert.Equal(t, 0, e.Eval("d/WIDE2-1", pkt, true))
	assert.Equal(t, 1, e.Eval("v/WIDE2-1", pkt, true))
	assert.Equal(t, 0, e.Eval("v/WIDE1-1", pkt, true))
}

func TestUnprotoExcludesMicE(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "N0CALL", "'abc test") // mic-e DTI
	assert.Equal(t, 0, e.Eval("u/APDW16", pkt, true))
}

func TestUnprotoMatchesOrdinaryDestination(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "N0CALL", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("u/APDW16", pkt, true))
}

func TestAndOrNotPrecedence(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")

	assert.Equal(t, 1, e.Eval("b/KJ4ERJ-9 & u/APDW16", pkt, true))
	assert.Equal(t, 0, e.Eval("b/KJ4ERJ-9 & u/NOPE", pkt, true))
	assert.Equal(t, 1, e.Eval("b/NOPE | u/APDW16", pkt, true))
	assert.Equal(t, 0, e.Eval("!b/KJ4ERJ-9", pkt, true))
	assert.Equal(t, 1, e.Eval("(b/NOPE | u/APDW16) & !b/NOPE", pkt, true))
}

func TestEmptyFilterDeniesAll(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 0, e.Eval("", pkt, true))
}

func TestSyntaxErrorReturnsNegativeOne(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, -1, e.Eval("b/KJ4ERJ-9 &", pkt, true))
	assert.Equal(t, -1, e.Eval("(b/KJ4ERJ-9", pkt, true))
	assert.Equal(t, -1, e.Eval("z/nope", pkt, true))
}

func TestConnectedModeRestrictsToAddressPrimitives(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("b/KJ4ERJ-9", pkt, false))
	assert.Equal(t, -1, e.Eval("t/p", pkt, false))
}

func TestTypeFilterMatchesPosition(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("t/p", pkt, true))
	assert.Equal(t, 0, e.Eval("t/m", pkt, true))
}

func TestTypeFilterMatchesMessage(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", ":W1AW-9   :hello{1")
	assert.Equal(t, 1, e.Eval("t/m", pkt, true))
}

func TestGroupMessageAddressee(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", ":BLN1     :hello bulletin")
	assert.Equal(t, 1, e.Eval("g/BLN1", pkt, true))
	assert.Equal(t, 0, e.Eval("g/BLN1", posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>x"), true))
}

func TestRangeFilter(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test") // near Boston, MA
	// Boston is roughly 42.62N -71.14W
	assert.Equal(t, 1, e.Eval("r/42.62/-71.14/50", pkt, true))
	assert.Equal(t, 0, e.Eval("r/0/0/50", pkt, true))
}

func TestRangeFilterUnknownPositionDenies(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", ":W1AW-9   :hello{1")
	assert.Equal(t, 0, e.Eval("r/42.62/-71.14/50", pkt, true))
}

func TestSymbolFilterPrimaryTable(t *testing.T) {
	e := &Evaluator{}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 1, e.Eval("s/>", pkt, true))
	assert.Equal(t, 0, e.Eval("s/O", pkt, true))
}

type fakeHeard struct {
	nearby map[string]bool
}

func (f *fakeHeard) WasRecentlyNearby(callsign string, withinMinutes, maxHops int, lat, lon, km float64) bool {
	return f.nearby[callsign]
}

func TestIGateMessagingFilterDeniesWhenAddresseeAlreadyNearby(t *testing.T) {
	e := &Evaluator{Heard: &fakeHeard{nearby: map[string]bool{"W1AW-9": true}}, DefaultMaxHops: 3}
	pkt := posPacket(t, "KJ4ERJ-9", ":W1AW-9   :hello{1")
	assert.Equal(t, 0, e.Eval("i/180", pkt, true))
}

func TestIGateMessagingFilterPermitsWhenAddresseeNotHeard(t *testing.T) {
	e := &Evaluator{Heard: &fakeHeard{}, DefaultMaxHops: 3}
	pkt := posPacket(t, "KJ4ERJ-9", ":W1AW-9   :hello{1")
	assert.Equal(t, 1, e.Eval("i/180", pkt, true))
}

func TestIGateMessagingFilterNonMessageDenies(t *testing.T) {
	e := &Evaluator{Heard: &fakeHeard{}, DefaultMaxHops: 3}
	pkt := posPacket(t, "KJ4ERJ-9", "!4237.12N/07108.42W>test")
	assert.Equal(t, 0, e.Eval("i/180", pkt, true))
}
