package igate

import (
	"strings"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
)

// ReceiveRF implements the RX->IS path (spec §4.5) for one frame received
// on channel, called by the packet processor for each configured
// (chan -> IG) pair (spec §4.3 step 3). Grounded on src/igate.go's
// igate_send_rec_packet.
func (c *Client) ReceiveRF(channel int, pkt *ax25.Packet) {
	if !c.okToSend.Load() {
		return
	}

	if c.cfg.RFToISFilter != "" && c.eval.Eval(c.cfg.RFToISFilter, pkt, true) != 1 {
		return
	}

	inner, err := ax25.UnwrapThirdParty(pkt)
	if err != nil {
		c.log.Debug("rx->is: rejected", "err", err)
		return
	}
	if inner.HasForbiddenVia() {
		return
	}
	if inner.DTI() == '?' {
		return
	}

	out := inner.Clone()
	out.CutAtCRLF()
	if len(out.Info) == 0 {
		return
	}

	if c.cfg.SatgateEnabled && len(out.Digis) > 0 && !anyDigiUsed(out.Digis) {
		c.sat.insert(out, channel, time.Now().Add(c.satgateDelay()))
		return
	}

	c.emitToServer(out)
}

func anyDigiUsed(digis []ax25.Address) bool {
	for _, d := range digis {
		if d.H {
			return true
		}
	}
	return false
}

// emitToServer applies the RX->IS duplicate cache (spec §4.5 step 9) and,
// if pkt was not recently sent, writes it to the server in TNC2 form
// (step 10). Also called directly from the SATgate delay queue once a
// deferred packet's release time arrives, still subject to this same
// gate — so a digipeated copy seen in the meantime quietly suppresses the
// delayed original.
func (c *Client) emitToServer(pkt *ax25.Packet) {
	key := pkt.DedupeKey()
	if c.rx2ig.Seen(key, 0) {
		return
	}
	c.rx2ig.Remember(key, 0)

	var b strings.Builder
	b.WriteString(pkt.Source.String())
	b.WriteByte('>')
	b.WriteString(pkt.Dest.String())
	for _, d := range pkt.Digis {
		b.WriteByte(',')
		b.WriteString(d.String())
	}
	b.WriteString(",qAR,")
	b.WriteString(c.cfg.MyCall.String())
	b.WriteByte(':')
	b.Write(pkt.Info)
	b.WriteString("\r\n")

	if err := c.writeLine(b.String()); err != nil {
		c.log.Warn("rx->is: write failed", "err", err)
		return
	}
	c.pktUp.Add(1)
	if isMessageMessage(pkt.Info) {
		c.msgUp.Add(1)
	}
}
