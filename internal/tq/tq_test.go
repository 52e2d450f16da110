package tq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/digipeater"
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

func TestEnqueueRemoveFIFOPerLane(t *testing.T) {
	q := New(1)
	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "a"))
	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "b"))
	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "c"))

	p, ok := q.Remove(0, digipeater.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, "a", string(p.Info))

	p, ok = q.Remove(0, digipeater.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, "b", string(p.Info))

	_, ok = q.Remove(0, digipeater.PriorityHigh)
	assert.False(t, ok)

	p, ok = q.Remove(0, digipeater.PriorityLow)
	require.True(t, ok)
	assert.Equal(t, "c", string(p.Info))
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New(1)
	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "a"))

	_, ok := q.Peek(0, digipeater.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, 1, q.Count(0, digipeater.PriorityHigh))
}

func TestIsEmpty(t *testing.T) {
	q := New(1)
	assert.True(t, q.IsEmpty(0))
	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "a"))
	assert.False(t, q.IsEmpty(0))
}

func TestBlockUntilNotEmptyUnblocksOnEnqueue(t *testing.T) {
	q := New(1)
	var wg sync.WaitGroup
	wg.Add(1)
	var result bool
	go func() {
		defer wg.Done()
		result = q.BlockUntilNotEmpty(0)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(0, digipeater.PriorityLow, pkt(t, "a"))
	wg.Wait()
	assert.True(t, result)
}

func TestBlockUntilNotEmptyUnblocksOnClose(t *testing.T) {
	q := New(1)
	var wg sync.WaitGroup
	wg.Add(1)
	var result bool
	go func() {
		defer wg.Done()
		result = q.BlockUntilNotEmpty(0)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close(0)
	wg.Wait()
	assert.False(t, result)
}

type fakeDCD struct {
	mu   sync.Mutex
	busy bool
}

func (f *fakeDCD) Busy(int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeDCD) setBusy(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = b
}

func TestCSMAFullDuplexAlwaysClear(t *testing.T) {
	q := New(1)
	dcd := &fakeDCD{busy: true}
	c := NewCSMA(CSMAConfig{FullDuplex: true}, dcd, q)
	assert.True(t, c.WaitForClearChannel(0))
}

func TestCSMATimesOutWhenChannelStaysBusy(t *testing.T) {
	q := New(1)
	dcd := &fakeDCD{busy: true}
	c := NewCSMA(CSMAConfig{Timeout: 30 * time.Millisecond, SlotTime: time.Millisecond, Persist: 63}, dcd, q)
	assert.False(t, c.WaitForClearChannel(0))
}

func TestCSMAHighPriorityBypassesRandomWait(t *testing.T) {
	q := New(1)
	q.Enqueue(0, digipeater.PriorityHigh, pkt(t, "digipeated"))
	dcd := &fakeDCD{}
	c := NewCSMA(CSMAConfig{Timeout: time.Second, SlotTime: time.Millisecond, Persist: 0}, dcd, q)
	assert.True(t, c.WaitForClearChannel(0))
}

func TestCSMAClearsOnceIdleAndPersistHits(t *testing.T) {
	q := New(1)
	dcd := &fakeDCD{}
	c := NewCSMA(CSMAConfig{Timeout: time.Second, SlotTime: time.Millisecond, Persist: 255}, dcd, q)
	assert.True(t, c.WaitForClearChannel(0))
}
