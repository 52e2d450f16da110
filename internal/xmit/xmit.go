// Package xmit implements the per-channel transmit thread: waiting for a
// clear channel via CSMA, asserting PTT, serializing one or more queued
// packets through the HDLC bit-stuffer/NRZI-encoder and tone generator,
// padding with TXDELAY/TXTAIL, and deasserting PTT. Grounded on
// src/xmit.go's xmit_thread/xmit_ax25_frames/send_one_frame.
package xmit

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/kf7qex/gotnc/internal/audio"
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/bitops"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dsp"
	"github.com/kf7qex/gotnc/internal/hdlc"
	"github.com/kf7qex/gotnc/internal/morseid"
	"github.com/kf7qex/gotnc/internal/ptt"
	"github.com/kf7qex/gotnc/internal/tq"
)

// morseDestCall is frame_flavor's FLAVOR_MORSE marker: a packet addressed
// to this destination call is never framed as AX.25/HDLC data, only sent
// as an audible CW identification.
const morseDestCall = "MORSE"

// morseDefaultWPM matches MORSE_DEFAULT_WPM; the destination SSID, when
// set, overrides it as wpm = ssid*2 (src/xmit.go's FLAVOR_MORSE case).
const morseDefaultWPM = 10

// Config carries one channel's transmit-timing parameters (spec §4.6).
type Config struct {
	Channel int

	TXDelay time.Duration // PTT-to-first-flag padding
	TXTail  time.Duration // last-data-bit-to-PTT-off padding
	Baud    int
	Modem   dsp.Modem

	// MaxBundle bounds how many packets one transmission carries, the
	// first included, once the channel is seized; 1 disables bundling.
	// Further packets are taken from the queue, high-priority lane first.
	MaxBundle int
}

// Channel drives one radio channel's transmissions to completion,
// end to end.
type Channel struct {
	cfg  Config
	q    *tq.Queue
	csma *tq.CSMA
	ptt  ptt.Controller
	dev  audio.Device
	gen  *dsp.ToneGenerator

	log *log.Logger
}

// New builds a Channel. The caller is responsible for constructing q's
// shared queue, csma's shared DCD checker, and wiring dev/ptt for this
// specific radio channel.
func New(cfg Config, q *tq.Queue, csma *tq.CSMA, pttCtl ptt.Controller, dev audio.Device, gen *dsp.ToneGenerator, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{cfg: cfg, q: q, csma: csma, ptt: pttCtl, dev: dev, gen: gen, log: logger.With("channel", cfg.Channel)}
}

// Run drives this channel's transmit loop until stop is closed. Grounded
// on src/xmit.go's xmit_thread outer loop.
func (c *Channel) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !c.q.BlockUntilNotEmpty(c.cfg.Channel) {
			return // queue closed
		}

		for {
			_, hasHigh := c.q.Peek(c.cfg.Channel, digipeater.PriorityHigh)
			_, hasLow := c.q.Peek(c.cfg.Channel, digipeater.PriorityLow)
			if !hasHigh && !hasLow {
				break
			}

			ok := c.csma.WaitForClearChannel(c.cfg.Channel)

			prio := digipeater.PriorityLow
			pkt, found := c.q.Remove(c.cfg.Channel, digipeater.PriorityHigh)
			if found {
				prio = digipeater.PriorityHigh
			} else {
				pkt, found = c.q.Remove(c.cfg.Channel, digipeater.PriorityLow)
			}
			if !found {
				continue
			}

			if !ok {
				c.log.Warn("waited too long for clear channel, discarding", "packet", pkt.TNC2())
				continue
			}

			maxBundle := c.cfg.MaxBundle
			if maxBundle < 1 {
				maxBundle = 1
			}
			c.transmitBurst(pkt, prio, maxBundle)
		}
	}
}

// transmitBurst keys up once and sends pkt plus, while the channel
// remains seized, up to maxBundle-1 further packets already queued,
// taken from the high-priority lane first whatever prio is. Grounded on
// src/xmit.go's xmit_ax25_frames.
func (c *Channel) transmitBurst(first *ax25.Packet, prio digipeater.Priority, maxBundle int) {
	if first.Dest.Call == morseDestCall {
		c.sendMorse(first)
		return
	}

	start := time.Now()

	if err := c.ptt.SetPTT(true); err != nil {
		c.log.Error("PTT assert failed", "err", err)
	}

	// Build the whole transmission as one un-encoded (pre-NRZI/pre-scramble)
	// bit stream so the line encoding stays continuous across the
	// preamble, every bundled frame, and the postamble - matching
	// src/hdlc_send.go's per-channel NRZI state, which is never reset
	// mid-transmission.
	var raw []byte
	raw = append(raw, c.frameBits(first, preambleFlagCount(c.cfg.TXDelay, c.cfg.Baud), 0)...)
	numFrames := 1

	for numFrames < maxBundle {
		_, hasHigh := c.q.Peek(c.cfg.Channel, digipeater.PriorityHigh)
		nextPrio := digipeater.PriorityHigh
		if !hasHigh {
			_, hasLow := c.q.Peek(c.cfg.Channel, digipeater.PriorityLow)
			if !hasLow {
				break
			}
			nextPrio = digipeater.PriorityLow
		}
		pkt, removed := c.q.Remove(c.cfg.Channel, nextPrio)
		if !removed {
			break
		}
		raw = append(raw, c.frameBits(pkt, 0, 0)...)
		numFrames++
	}

	tailFlags := preambleFlagCount(c.cfg.TXTail, c.cfg.Baud)
	if tailFlags > 1 {
		raw = append(raw, hdlc.AssembleBits(nil, tailFlags-1, 0)...)
	}

	bits := c.encodeLine(raw)

	samples := c.gen.PutBits(bits)
	if err := c.dev.WriteSamples(samples); err != nil {
		c.log.Error("audio write failed", "err", err)
	}
	if err := c.dev.Flush(); err != nil {
		c.log.Error("audio flush failed", "err", err)
	}

	wantDuration := time.Duration(len(bits)) * time.Second / time.Duration(c.cfg.Baud)
	elapsed := time.Since(start)
	if remaining := wantDuration - elapsed; remaining > 0 {
		time.Sleep(remaining)
	} else if remaining < -100*time.Millisecond {
		c.log.Error("PTT on too long", "over_by", -remaining)
	}

	if err := c.ptt.SetPTT(false); err != nil {
		c.log.Error("PTT deassert failed", "err", err)
	}
}

// sendMorse keys up and sends pkt's info field as CW identification
// instead of HDLC-framing it, matching src/xmit.go's FLAVOR_MORSE case: a
// beacon or digipeated packet addressed to "MORSE" (e.g. dest=MORSE-10
// for 20 WPM) is meant to be heard, not decoded. Never bundled with other
// queued traffic, since it bypasses frameBits/encodeLine entirely.
func (c *Channel) sendMorse(pkt *ax25.Packet) {
	start := time.Now()

	wpm := morseDefaultWPM
	if pkt.Dest.SSID > 0 {
		wpm = pkt.Dest.SSID * 2
	}

	if err := c.ptt.SetPTT(true); err != nil {
		c.log.Error("PTT assert failed", "err", err)
	}

	samples, ms := morseid.Send(string(pkt.Info), wpm, c.dev.SampleRate(), 100,
		int(c.cfg.TXDelay.Milliseconds()), int(c.cfg.TXTail.Milliseconds()))
	if err := c.dev.WriteSamples(samples); err != nil {
		c.log.Error("audio write failed", "err", err)
	}
	if err := c.dev.Flush(); err != nil {
		c.log.Error("audio flush failed", "err", err)
	}

	if remaining := time.Duration(ms)*time.Millisecond - time.Since(start); remaining > 0 {
		time.Sleep(remaining)
	}

	if err := c.ptt.SetPTT(false); err != nil {
		c.log.Error("PTT deassert failed", "err", err)
	}
}

// frameBits packs pkt and returns its un-encoded bit-stuffed form,
// preceded by extraLeadFlags additional leading flag octets (used once,
// for the TXDELAY preamble ahead of the first frame) and followed by
// exactly one closing flag, which also serves as the next frame's
// leading flag when bundled back to back.
func (c *Channel) frameBits(pkt *ax25.Packet, extraLeadFlags, extraTailFlags int) []byte {
	frame, err := pkt.Pack()
	if err != nil {
		c.log.Error("pack frame failed", "err", err)
		return nil
	}
	return hdlc.AssembleBits(frame, extraLeadFlags, extraTailFlags)
}

// encodeLine applies this channel's line encoding to a raw, bit-stuffed
// stream: NRZI for AFSK/FSK modems, LFSR scrambling for 9600 baud
// baseband (spec §4.6's tone generator contract).
func (c *Channel) encodeLine(raw []byte) []byte {
	if c.cfg.Modem == dsp.ModemBaseband9600 {
		var scr dsp.Scrambler
		out := make([]byte, len(raw))
		for i, b := range raw {
			out[i] = scr.Scramble(b)
		}
		return out
	}
	return bitops.EncodeAll(raw, 0)
}

// preambleFlagCount converts a padding duration into a whole number of
// flag octets at this channel's bit rate (spec §4.6 steps 2/5).
func preambleFlagCount(d time.Duration, baud int) int {
	n := flagCount(d, baud)
	if n < 1 {
		n = 1
	}
	return n
}

func flagCount(d time.Duration, baud int) int {
	bits := int(d.Seconds() * float64(baud))
	return bits / 8
}
