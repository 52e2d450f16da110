package xmit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kf7qex/gotnc/internal/audio"
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dsp"
	"github.com/kf7qex/gotnc/internal/ptt"
	"github.com/kf7qex/gotnc/internal/tq"
)

func mustAddr(t *testing.T, s string) ax25.Address {
	t.Helper()
	a, err := ax25.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func pkt(t *testing.T, info string) *ax25.Packet {
	t.Helper()
	return &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte(info)}
}

// fakePTT records every assert/deassert call in order.
type fakePTT struct {
	calls []bool
}

func (f *fakePTT) SetPTT(assert bool) error { f.calls = append(f.calls, assert); return nil }
func (f *fakePTT) Close() error             { return nil }

var _ ptt.Controller = (*fakePTT)(nil)

// fakeDevice is an in-memory audio.Device recording everything written.
type fakeDevice struct {
	written []int16
	flushed bool
}

func (d *fakeDevice) ReadSamples(buf []int16) (int, error) { return 0, nil }
func (d *fakeDevice) WriteSamples(buf []int16) error        { d.written = append(d.written, buf...); return nil }
func (d *fakeDevice) Flush() error                           { d.flushed = true; return nil }
func (d *fakeDevice) SampleRate() int                        { return 8000 }
func (d *fakeDevice) Channels() int                          { return 1 }
func (d *fakeDevice) Close() error                            { return nil }

var _ audio.Device = (*fakeDevice)(nil)

// neverBusy reports the channel as always clear, so CSMA never waits.
type neverBusy struct{}

func (neverBusy) Busy(channel int) bool { return false }

func testChannel(t *testing.T, modem dsp.Modem, maxBundle int) (*Channel, *tq.Queue, *fakePTT, *fakeDevice) {
	t.Helper()
	q := tq.New(1)
	csma := tq.NewCSMA(tq.CSMAConfig{FullDuplex: true}, neverBusy{}, q)
	fp := &fakePTT{}
	fd := &fakeDevice{}
	gen := dsp.NewToneGenerator(dsp.ToneGenConfig{
		Modem:        modem,
		SampleRate:   8000,
		Baud:         1200,
		MarkFreq:     1200,
		SpaceFreq:    2200,
		AmplitudePct: 100,
	})
	cfg := Config{
		Channel:   0,
		TXDelay:   10 * time.Millisecond,
		TXTail:    5 * time.Millisecond,
		Baud:      1200,
		Modem:     modem,
		MaxBundle: maxBundle,
	}
	c := New(cfg, q, csma, fp, fd, gen, nil)
	return c, q, fp, fd
}

func TestTransmitBurstAssertsThenDeassertsPTT(t *testing.T) {
	c, _, fp, fd := testChannel(t, dsp.ModemAFSK, 1)

	c.transmitBurst(pkt(t, "hello"), digipeater.PriorityLow, 1)

	require.Len(t, fp.calls, 2)
	assert.True(t, fp.calls[0])
	assert.False(t, fp.calls[1])
	assert.NotEmpty(t, fd.written)
	assert.True(t, fd.flushed)
}

func TestTransmitBurstBundlesQueuedPackets(t *testing.T) {
	c, q, fp, _ := testChannel(t, dsp.ModemAFSK, 10)

	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "second"))
	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "third"))

	c.transmitBurst(pkt(t, "first"), digipeater.PriorityLow, 10)

	require.Len(t, fp.calls, 2)
	assert.True(t, q.IsEmpty(0))
}

func TestTransmitBurstStopsAtMaxBundle(t *testing.T) {
	c, q, _, _ := testChannel(t, dsp.ModemAFSK, 2)

	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "second"))
	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "third"))

	c.transmitBurst(pkt(t, "first"), digipeater.PriorityLow, 2)

	assert.Equal(t, 1, q.Count(0, digipeater.PriorityLow))
}

func TestTransmitBurstPrefersHighPriorityWhenBundling(t *testing.T) {
	c, q, _, _ := testChannel(t, dsp.ModemAFSK, 10)

	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "low"))
	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "high"))

	c.transmitBurst(pkt(t, "first"), digipeater.PriorityLow, 10)

	assert.True(t, q.IsEmpty(0))
}

func TestTransmitBurstBasebandProducesSamples(t *testing.T) {
	c, _, fp, fd := testChannel(t, dsp.ModemBaseband9600, 1)

	c.transmitBurst(pkt(t, "hello"), digipeater.PriorityLow, 1)

	require.Len(t, fp.calls, 2)
	assert.NotEmpty(t, fd.written)
}

func TestTransmitBurstMorseFlavorBypassesFraming(t *testing.T) {
	c, _, fp, fd := testChannel(t, dsp.ModemAFSK, 1)

	morsePkt := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "MORSE"), Info: []byte("N0CALL")}
	c.transmitBurst(morsePkt, digipeater.PriorityLow, 1)

	require.Len(t, fp.calls, 2)
	assert.True(t, fp.calls[0])
	assert.False(t, fp.calls[1])
	assert.NotEmpty(t, fd.written)
	assert.True(t, fd.flushed)
}

func TestTransmitBurstMorseFlavorUsesSSIDAsWPM(t *testing.T) {
	c, _, _, fd := testChannel(t, dsp.ModemAFSK, 1)

	slow := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "MORSE-5"), Info: []byte("E")}
	c.transmitBurst(slow, digipeater.PriorityLow, 1)
	slowLen := len(fd.written)

	fd.written = nil
	fast := &ax25.Packet{Source: mustAddr(t, "N0CALL"), Dest: mustAddr(t, "MORSE-9"), Info: []byte("E")}
	c.transmitBurst(fast, digipeater.PriorityLow, 1)
	fastLen := len(fd.written)

	assert.Greater(t, slowLen, fastLen)
}

func TestFrameBitsBeginsAndEndsWithFlagOctets(t *testing.T) {
	c, _, _, _ := testChannel(t, dsp.ModemAFSK, 1)

	bits := c.frameBits(pkt(t, "hi"), 1, 0)
	require.True(t, len(bits) >= 16)
	assert.Equal(t, []byte{0, 1, 1, 1, 1, 1, 1, 0}, bits[:8])
	assert.Equal(t, []byte{0, 1, 1, 1, 1, 1, 1, 0}, bits[len(bits)-8:])
}

func TestRunStopsWhenStopClosed(t *testing.T) {
	c, _, _, _ := testChannel(t, dsp.ModemAFSK, 1)

	stop := make(chan struct{})
	close(stop)
	done := make(chan struct{})
	go func() {
		c.Run(stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}

func TestRunStopsWhenQueueClosed(t *testing.T) {
	c, q, _, _ := testChannel(t, dsp.ModemAFSK, 1)

	done := make(chan struct{})
	go func() {
		c.Run(make(chan struct{}))
		close(done)
	}()

	q.Close(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after queue was closed")
	}
}

func TestRunTransmitsEnqueuedPacket(t *testing.T) {
	c, q, fp, _ := testChannel(t, dsp.ModemAFSK, 1)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(stop)
		close(done)
	}()

	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "hi"))

	require.Eventually(t, func() bool {
		return len(fp.calls) >= 2
	}, time.Second, time.Millisecond)

	close(stop)
	q.Close(0)
	<-done
}
