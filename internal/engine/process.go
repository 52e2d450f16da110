package engine

import (
	"strconv"
	"strings"

	"github.com/kf7qex/gotnc/internal/agwpe"
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/deviceid"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dlq"
	"github.com/kf7qex/gotnc/internal/kiss"
)

// processReceiveQueue drains the shared receive queue, one decoded packet
// at a time: it records the station in the heard table, optionally
// annotates it with a decoded vendor/model, broadcasts it to attached KISS
// and AGWPE clients, hands it to the digipeater, and (when an IGate is
// configured) forwards it to APRS-IS. Grounded on src/dlq.go's
// dlq_read/process_rec_frame, which performs the same per-frame fan-out.
func (s *Station) processReceiveQueue(stop <-chan struct{}) {
	for {
		item, ok := s.dlq.Pop()
		if !ok {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		s.handleReceived(item)
	}
}

func (s *Station) handleReceived(item dlq.Item) {
	pkt := item.Packet
	s.heard.SaveRF(item.Channel, pkt)

	fields := []any{"from", pkt.Source.String(), "to", pkt.Dest.String(), "subchannel", item.Subchannel}
	if s.cfg.DeviceDB != nil {
		if device := s.cfg.DeviceDB.DecodeDest(pkt.Dest.Call); device != deviceid.Unknown {
			fields = append(fields, "device", device)
		}
	}
	s.log.With("channel", item.Channel).Info("received", fields...)

	if s.kissListener != nil {
		if frame, err := pkt.Pack(); err == nil {
			s.kissListener.Broadcast(item.Channel, frame)
		}
	}
	if s.agwListener != nil {
		if frame, err := pkt.Pack(); err == nil {
			s.agwListener.Broadcast(agwpe.NewMessage(item.Channel, agwpe.KindRawTNC, pkt.Source.String(), pkt.Dest.String(), frame))
		}
	}

	s.digi.Digipeat(item.Channel, pkt)

	if s.igate != nil {
		s.igate.ReceiveRF(item.Channel, pkt)
	}
}

// kissHandler adapts an attached KISS client's outbound data frames onto
// this Station's shared transmit queue: a client opens the TCP KISS port
// to both monitor received traffic (via Broadcast) and originate its own
// transmissions, exactly like a direwolf KISS port.
type kissHandler struct {
	station *Station
}

func (h *kissHandler) OnData(channel int, payload []byte) {
	pkt, err := ax25.ParseFrame(payload)
	if err != nil {
		h.station.log.Debug("KISS client sent unparsable frame", "err", err)
		return
	}
	h.station.queue.Enqueue(channel, digipeater.PriorityHigh, pkt)
}

func (h *kissHandler) OnParam(channel int, cmd kiss.Command, value byte) {
	h.station.log.Debug("KISS param ignored", "channel", channel, "cmd", cmd, "value", value)
}

// agwpeHandler adapts an attached AGWPE client's raw-frame transmit
// requests (KindRawTNC) onto the shared transmit queue.
type agwpeHandler struct {
	station *Station
}

func (h *agwpeHandler) OnMessage(conn *agwpe.Conn, msg agwpe.Message) {
	if msg.Header.DataKind != agwpe.KindRawTNC || len(msg.Data) == 0 {
		return
	}
	pkt, err := ax25.ParseFrame(msg.Data)
	if err != nil {
		h.station.log.Debug("AGWPE client sent unparsable frame", "err", err)
		return
	}
	h.station.queue.Enqueue(int(msg.Header.Portx), digipeater.PriorityHigh, pkt)
}

// kissPort extracts the numeric TCP port from an address string of the
// form "host:port" or ":port", for dns-sd advertisement; returns 0 if it
// cannot be parsed (Announce then advertises port 0, which a client
// would simply fail to connect to -- the earlier Listen call already
// succeeded, so this only affects the mDNS record's accuracy).
func kissPort(addr string) int {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return 0
	}
	return n
}
