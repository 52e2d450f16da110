package igate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/digipeater"
)

// handleServerLine implements the IS->RF path (spec §4.5) for one line
// received from the server, trailing CR/LF already stripped by the
// scanner in readLoop. Grounded on src/igate.go's igate_recv_thread and
// maybe_xmit_packet_from_igate.
func (c *Client) handleServerLine(line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "#") {
		if !c.okToSend.Load() {
			c.log.Info("server status", "line", line)
		}
		return
	}
	if !c.okToSend.Load() {
		return
	}

	// The source address is taken from the raw text, not from the parsed
	// packet: it may not be a valid AX.25 callsign (e.g. a "WHO-IS" server
	// reply), and parseTNC2Addr's permissive parsing still upper-cases it,
	// which the wrapped payload must not do.
	src, _, found := strings.Cut(line, ">")
	if !found {
		return
	}

	pkt, err := ax25.ParseTNC2(line)
	if err != nil {
		c.log.Debug("is->rf: unparsable line", "line", line, "err", err)
		return
	}
	c.heard.SaveIS(line)

	for _, d := range pkt.Digis {
		switch d.Call {
		case "QAX", "TCPXX", "RFONLY", "NOGATE":
			// qAX is deprecated (http://www.aprs-is.net/q.aspx) and, like
			// TCPXX/RFONLY/NOGATE, means this packet should not go to RF.
			return
		}
	}

	// Special case: having recently gated a message from src, pass its
	// next position report through regardless of the filter (a "courtesy
	// posit" per aprs-is.net/IGating.aspx).
	mspBypass := false
	if len(pkt.Info) > 0 && strings.ContainsRune("!=/@'`", rune(pkt.Info[0])) {
		if n := c.heard.GetMSP(src); n > 0 {
			mspBypass = true
			c.heard.SetMSP(src, n-1)
		}
	}

	if !mspBypass && c.cfg.ISToRFFilter != "" {
		if c.eval.Eval(c.cfg.ISToRFFilter, pkt, true) != 1 {
			return
		}
	}

	payload := fmt.Sprintf("%s>%s,TCPIP,%s*:%s", src, pkt.Dest.String(), c.cfg.MyCall.String(), pkt.Info)

	wrapped := &ax25.Packet{
		Source: c.cfg.MyCall,
		Dest:   c.cfg.ToCall,
		Digis:  append([]ax25.Address(nil), c.cfg.TXVia...),
		Info:   append([]byte("}"), payload...),
	}

	isMsg := isMessageMessage(pkt.Info)
	if !c.allowIG2TX(wrapped, isMsg) {
		return
	}

	c.tx.Enqueue(c.cfg.TXChan, digipeater.PriorityLow, wrapped)
	c.pktDown.Add(1)
	if isMsg {
		c.msgDown.Add(1)
		if c.cfg.IGMSP > 0 {
			c.heard.SetMSP(src, c.cfg.IGMSP)
		}
	}
}

// allowIG2TX applies the IS->TX duplicate cache and rate limits (spec
// §4.5 step 8): "messages" bypass the dedupe cache entirely, since a
// station may legitimately retry an unacknowledged message with identical
// text, and get 3x the rate-limit headroom (scaled-up limit, not a
// discounted cost) so those legitimate retries aren't throttled as
// tightly as ordinary new traffic.
func (c *Client) allowIG2TX(pkt *ax25.Packet, isMsg bool) bool {
	mult := 1
	if isMsg {
		mult = 3
	} else if c.ig2tx.Seen(pkt.DedupeKey(), c.cfg.TXChan) {
		return false
	}

	if !c.rate.allow(c.cfg.TXChan, mult) {
		return false
	}

	if !isMsg {
		c.ig2tx.Remember(pkt.DedupeKey(), c.cfg.TXChan)
	}
	return true
}

// isMessageMessage reports whether info is an APRS "message" (including
// ack/rej) addressed to a normal station, as opposed to a bulletin/NWS
// addressee or telemetry metadata, per the messages-bypass-dedupe rule.
// Grounded on src/igate.go's is_message_message.
func isMessageMessage(info []byte) bool {
	if len(info) == 0 || info[0] != ':' {
		return false
	}
	if len(info) < 11 {
		return false // too short for ":addressee:"
	}
	if len(info) >= 16 {
		switch string(info[10:16]) {
		case ":PARM.", ":UNIT.", ":EQNS.", ":BITS.":
			return false
		}
	}
	if len(info) >= 4 {
		switch string(info[1:4]) {
		case "BLN", "NWS", "SKY", "CWA", "BOM":
			return false
		}
	}
	return true
}

// rateLimiter enforces the IGate's 1-minute and 5-minute IS->RF transmit
// caps, tracked independently per channel.
type rateLimiter struct {
	mu      sync.Mutex
	oneMin  map[int][]time.Time
	fiveMin map[int][]time.Time
	limit1  int
	limit5  int
}

func newRateLimiter(limit1, limit5 int) *rateLimiter {
	if limit1 <= 0 {
		limit1 = 6
	}
	if limit1 > 20 {
		limit1 = 20
	}
	if limit5 <= 0 {
		limit5 = 20
	}
	if limit5 > 80 {
		limit5 = 80
	}
	return &rateLimiter{
		limit1:  limit1,
		limit5:  limit5,
		oneMin:  make(map[int][]time.Time),
		fiveMin: make(map[int][]time.Time),
	}
}

// allow reports whether one more transmission on channel is permitted
// right now, recording it if so. mult scales both limits, up to their
// hard caps of 20 and 80, for the message-traffic 3x allowance.
func (r *rateLimiter) allow(channel, mult int) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.oneMin[channel] = trimBefore(r.oneMin[channel], now.Add(-time.Minute))
	r.fiveMin[channel] = trimBefore(r.fiveMin[channel], now.Add(-5*time.Minute))

	lim1 := min(r.limit1*mult, 20)
	lim5 := min(r.limit5*mult, 80)

	if len(r.oneMin[channel]) >= lim1 || len(r.fiveMin[channel]) >= lim5 {
		return false
	}

	r.oneMin[channel] = append(r.oneMin[channel], now)
	r.fiveMin[channel] = append(r.fiveMin[channel], now)
	return true
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
