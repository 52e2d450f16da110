package demod

import (
	"github.com/kf7qex/gotnc/internal/bitops"
	"github.com/kf7qex/gotnc/internal/dsp"
	"github.com/kf7qex/gotnc/internal/hdlc"
)

// ModemKind selects which demodulator variant a subchannel runs.
type ModemKind int

const (
	KindAFSK1200 ModemKind = iota
	KindAFSK300
	Kind9600
)

// Result is one frame recovered from a single subchannel/slicer pair,
// tagged with enough provenance for the receive queue (spec §2.4/§3).
type Result struct {
	Subchannel int
	Slice      int
	Frame      hdlc.Frame
}

// subdemod is the uniform view MultiModem needs of either an AFSK or
// Baseband demodulator instance: feed it a sample, it reports bits.
type subdemod struct {
	kind       ModemKind
	subchannel int

	afsk      *AFSK
	baseband  *Baseband
	receivers []*hdlc.Receiver // one per slice
}

// MultiModem fans a single channel's audio stream out to several
// demodulator instances running in parallel — different tone-offset or
// filter-profile variants of the same modem type — to improve copy on
// marginal signals (spec §4.1's "multiple slicers/decoders in parallel").
// Each subchannel/slice pair runs its own independent HDLC receiver; the
// first valid frame from any of them is reported, and near-simultaneous
// duplicates from the others are left for the downstream duplicate cache
// to suppress, exactly as direwolf's multi_modem.go describes.
type MultiModem struct {
	channel int
	subs    []*subdemod

	maxRetry hdlc.RetryLevel
	passAll  bool

	// OnFrame is called for every frame any subchannel/slice decodes; a
	// frame decoded by several slices is reported once per slice.
	OnFrame func(Result)
}

// NewMultiModem creates an empty fan-out for one radio channel.
func NewMultiModem(channel int, maxRetry hdlc.RetryLevel, passAll bool) *MultiModem {
	return &MultiModem{channel: channel, maxRetry: maxRetry, passAll: passAll}
}

// AddAFSK registers an AFSK sub-decoder (1200 or 300 baud) under the given
// subchannel index and wires each of its slices to its own HDLC receiver.
// AFSK carries no scrambling, so only NRZI decoding sits between the
// demodulator's raw bit and the HDLC layer.
func (m *MultiModem) AddAFSK(subchannel int, kind ModemKind, a *AFSK) {
	sd := &subdemod{kind: kind, subchannel: subchannel, afsk: a}
	sd.receivers = m.makeReceivers(subchannel, len(a.slicers))
	decoders := make([]*bitops.NRZIDecoder, len(a.slicers))
	for i := range decoders {
		decoders[i] = bitops.NewNRZIDecoder(1)
	}
	a.OnBit = func(slice int, bit byte, quality int) {
		sd.receivers[slice].ProcessBit(decoders[slice].Decode(bit))
	}
	m.subs = append(m.subs, sd)
}

// AddBaseband registers the 9600-baud scrambled baseband sub-decoder. Its
// raw recovered bit is first unwhitened by the self-synchronizing
// descrambler, then NRZI-decoded -- in that order, matching direwolf's
// hdlc_rec_bit, which NRZI-decodes the descrambled stream rather than the
// raw one.
func (m *MultiModem) AddBaseband(subchannel int, b *Baseband) {
	sd := &subdemod{kind: Kind9600, subchannel: subchannel, baseband: b}
	sd.receivers = m.makeReceivers(subchannel, len(b.slicers))
	descramblers := make([]*dsp.Descrambler, len(b.slicers))
	decoders := make([]*bitops.NRZIDecoder, len(b.slicers))
	for i := range descramblers {
		descramblers[i] = &dsp.Descrambler{}
		decoders[i] = bitops.NewNRZIDecoder(1)
	}
	b.OnBit = func(slice int, bit byte) {
		descrambled := descramblers[slice].Descramble(bit)
		sd.receivers[slice].ProcessBit(decoders[slice].Decode(descrambled))
	}
	m.subs = append(m.subs, sd)
}

func (m *MultiModem) makeReceivers(subchannel, numSlices int) []*hdlc.Receiver {
	rxs := make([]*hdlc.Receiver, numSlices)
	for slice := 0; slice < numSlices; slice++ {
		slice := slice
		rxs[slice] = hdlc.NewReceiver(m.maxRetry, m.passAll, func(f hdlc.Frame) {
			if m.OnFrame != nil {
				m.OnFrame(Result{Subchannel: subchannel, Slice: slice, Frame: f})
			}
		})
	}
	return rxs
}

// ProcessSample feeds one audio sample to every registered sub-decoder.
func (m *MultiModem) ProcessSample(sam float64) {
	for _, sd := range m.subs {
		switch sd.kind {
		case Kind9600:
			sd.baseband.ProcessSample(sam)
		default:
			sd.afsk.ProcessSample(sam)
		}
	}
}

// NumSubchannels reports how many sub-decoders are registered.
func (m *MultiModem) NumSubchannels() int { return len(m.subs) }

// Locked reports whether the given subchannel's slice currently sees a
// carrier, i.e. direwolf's hdlc_rec_data_detect_any for one slicer.
// Reports false if no sub-decoder is registered under that subchannel.
func (m *MultiModem) Locked(subchannel, slice int) bool {
	for _, sd := range m.subs {
		if sd.subchannel != subchannel {
			continue
		}
		if sd.kind == Kind9600 {
			return sd.baseband.Locked(slice)
		}
		return sd.afsk.Locked(slice)
	}
	return false
}
