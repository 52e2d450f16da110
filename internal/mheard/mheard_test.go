package mheard

import (
	"math"
	"testing"
	"time"

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

func TestSaveRFAddsNewStation(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}

	tbl.SaveRF(0, pkt)

	s, ok := tbl.Lookup("N0CALL")
	require.True(t, ok)
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 0, s.DigiHops)
	assert.False(t, s.LastHeardRF.IsZero())
}

func TestSaveRFCountsUsedDigisAsHops(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{
		Source: mustAddr(t, "N0CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE1-1*"), mustAddr(t, "WIDE2-1")},
		Info:   []byte("test"),
	}

	tbl.SaveRF(1, pkt)

	s, ok := tbl.Lookup("N0CALL")
	require.True(t, ok)
	assert.Equal(t, 1, s.DigiHops)
	assert.Equal(t, 1, s.Channel)
}

func TestSaveRFExtractsPosition(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{
		Source: mustAddr(t, "N0CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Info:   []byte("!4903.50N/07201.75W-test"),
	}

	tbl.SaveRF(0, pkt)

	s, ok := tbl.Lookup("N0CALL")
	require.True(t, ok)
	assert.InDelta(t, 49.058333, s.Lat, 0.001)
	assert.InDelta(t, -72.029166, s.Lon, 0.001)
}

func TestSaveISRecordsSourceBeforeArrow(t *testing.T) {
	tbl := New()
	tbl.SaveIS("WHO-IS>APJIW4,TCPIP*,qAC,AE5PL-JF::ZL1JSH-9 :hello{583")

	s, ok := tbl.Lookup("WHO-IS")
	require.True(t, ok)
	assert.Equal(t, 1, s.Count)
	assert.False(t, s.LastHeardIS.IsZero())
}

func TestWasRecentlyNearbyFalseWhenNeverHeard(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.WasRecentlyNearby("N0CALL", 180, 2, math.NaN(), math.NaN(), math.NaN()))
}

func TestWasRecentlyNearbyTrueWithinLimits(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	tbl.SaveRF(0, pkt)

	assert.True(t, tbl.WasRecentlyNearby("N0CALL", 180, 2, math.NaN(), math.NaN(), math.NaN()))
}

func TestWasRecentlyNearbyFalseWhenTooManyHops(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{
		Source: mustAddr(t, "N0CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE1-1*"), mustAddr(t, "WIDE2-1*"), mustAddr(t, "WIDE3-1*")},
		Info:   []byte("test"),
	}
	tbl.SaveRF(0, pkt)

	assert.False(t, tbl.WasRecentlyNearby("N0CALL", 180, 1, math.NaN(), math.NaN(), math.NaN()))
}

func TestWasRecentlyNearbyFalseWhenTooOld(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	tbl.SaveRF(0, pkt)
	tbl.stations["N0CALL"].LastHeardRF = time.Now().Add(-200 * time.Minute)

	assert.False(t, tbl.WasRecentlyNearby("N0CALL", 180, 2, math.NaN(), math.NaN(), math.NaN()))
}

func TestWasRecentlyNearbyRespectsDistance(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("!4903.50N/07201.75W-test")}
	tbl.SaveRF(0, pkt)

	assert.True(t, tbl.WasRecentlyNearby("N0CALL", 180, 2, 49.0, -72.0, 50))
	assert.False(t, tbl.WasRecentlyNearby("N0CALL", 180, 2, 0, 0, 50))
}

func TestSetGetMSP(t *testing.T) {
	tbl := New()
	pkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	tbl.SaveRF(0, pkt)

	assert.Equal(t, 0, tbl.GetMSP("N0CALL"))
	tbl.SetMSP("N0CALL", 1)
	assert.Equal(t, 1, tbl.GetMSP("N0CALL"))
}

func TestSetMSPNoopForUnknownStation(t *testing.T) {
	tbl := New()
	tbl.SetMSP("UNKNOWN", 1)
	assert.Equal(t, 0, tbl.GetMSP("UNKNOWN"))
}

func TestCountFiltersByHopsAndWindow(t *testing.T) {
	tbl := New()
	direct := &ax25.Packet{Source: mustAddr(t, "DIRECT"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	viaDigi := &ax25.Packet{
		Source: mustAddr(t, "VIADIGI"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE1-1*")},
		Info:   []byte("test"),
	}
	tbl.SaveRF(0, direct)
	tbl.SaveRF(0, viaDigi)

	assert.Equal(t, 1, tbl.Count(0, time.Hour))
	assert.Equal(t, 2, tbl.Count(1, time.Hour))
}
