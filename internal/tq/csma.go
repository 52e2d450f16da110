package tq

import (
	"math/rand"
	"time"

	"github.com/kf7qex/gotnc/internal/digipeater"
)

// DCDChecker reports whether any demodulator sub-channel on a radio
// channel currently sees a carrier, i.e. hdlc_rec_data_detect_any.
type DCDChecker interface {
	Busy(channel int) bool
}

// CSMAConfig carries the per-channel DWAIT/SLOTTIME/PERSIST parameters
// (spec §5), already converted from the config file's tenths-of-a-second
// units into durations.
type CSMAConfig struct {
	DWait      time.Duration // extra settle time after DCD drops, before transmitting
	SlotTime   time.Duration // p-persistence poll interval
	Persist    int           // 0-255; a slot transmits when a random byte 0-255 is at or below it
	FullDuplex bool
	Timeout    time.Duration // give up and report not-clear after this long
}

// CSMA decides when a channel is clear enough to key up, implementing the
// classic AX.25 p-persistent algorithm. Grounded on src/xmit.go's
// wait_for_clear_channel.
type CSMA struct {
	cfg CSMAConfig
	dcd DCDChecker
	q   *Queue
	rnd *rand.Rand
}

// NewCSMA builds a gate for one channel's queue, using dcd to observe
// carrier state.
func NewCSMA(cfg CSMAConfig, dcd DCDChecker, q *Queue) *CSMA {
	return &CSMA{cfg: cfg, dcd: dcd, q: q, rnd: rand.New(rand.NewSource(1))}
}

// WaitForClearChannel blocks until channel is clear to transmit on,
// returning false if cfg.Timeout elapses first. Full-duplex channels
// always report clear immediately. A packet already waiting in the high
// priority lane (digipeated traffic) skips the random p-persistence wait
// entirely, per APRS fratricide convention.
func (c *CSMA) WaitForClearChannel(channel int) bool {
	if c.cfg.FullDuplex {
		return true
	}

	deadline := time.Now().Add(c.cfg.Timeout)

	for {
		if !c.waitWhileBusy(channel, deadline) {
			return false
		}
		if c.cfg.DWait > 0 {
			time.Sleep(c.cfg.DWait)
		}
		if !c.dcd.Busy(channel) {
			break
		}
	}

	return c.waitPersist(channel, deadline)
}

func (c *CSMA) waitWhileBusy(channel int, deadline time.Time) bool {
	for c.dcd.Busy(channel) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(checkInterval)
	}
	return true
}

func (c *CSMA) waitPersist(channel int, deadline time.Time) bool {
	for {
		if _, ok := c.q.Peek(channel, digipeater.PriorityHigh); ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(c.cfg.SlotTime)

		if c.dcd.Busy(channel) {
			if !c.waitWhileBusy(channel, deadline) {
				return false
			}
			continue
		}
		if c.rnd.Intn(256) <= c.cfg.Persist {
			return true
		}
	}
}
