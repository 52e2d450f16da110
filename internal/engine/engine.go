// Package engine wires every other package into one running station:
// one demodulator/transmit chain per configured radio channel feeding a
// shared receive queue, a digipeater, an optional IGate client, a beacon
// scheduler, and the KISS/AGWPE client-facing ports, all built from a
// parsed internal/config.Config. Grounded on src/direwolf.go's main(),
// which performs the same top-to-bottom wiring (audio devices, demod
// banks, digipeater, igate, beacon, KISS/AGW listeners) before handing
// control to the various background threads.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kf7qex/gotnc/internal/agwpe"
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/beacon"
	"github.com/kf7qex/gotnc/internal/config"
	"github.com/kf7qex/gotnc/internal/dedupe"
	"github.com/kf7qex/gotnc/internal/deviceid"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dlq"
	"github.com/kf7qex/gotnc/internal/dnssd"
	"github.com/kf7qex/gotnc/internal/igate"
	"github.com/kf7qex/gotnc/internal/kiss"
	"github.com/kf7qex/gotnc/internal/mheard"
	"github.com/kf7qex/gotnc/internal/pfilter"
	"github.com/kf7qex/gotnc/internal/tq"
)

// digipeatDedupeWindow matches src/config.go's DEFAULT_DEDUPE: how long a
// digipeated packet's CRC is remembered to suppress a repeat digipeat of
// the same traffic.
const digipeatDedupeWindow = 30 * time.Second
const digipeatDedupeCapacity = 25

// ig2txDedupeWindow/ig2txDedupeCapacity size the shared IS->TX ring the
// same as internal/igate's own private one: 60 s, 50 entries.
const ig2txDedupeWindow = 60 * time.Second
const ig2txDedupeCapacity = 50

// DTMFDecoder is the APRStt touch-tone decoder seam: internal/config
// parses TTCORRAL/TT* directives into config.Config.TT, but decoding DTMF
// tones out of a received audio stream and turning them into an APRS
// object report is out of scope (spec.md's Non-goals). A caller that
// wires one in gets ProcessSample called with every receive-side sample
// on every channel; the default Station has a nil DTMF and skips the call.
type DTMFDecoder interface {
	ProcessSample(channel int, sam float64)
}

// Config wires a Station's dependencies and optional surfaces. Conf is
// mandatory; every other field is optional and, left zero, disables the
// surface it controls.
type Config struct {
	Conf *config.Config
	Log  *log.Logger

	// DeviceDB annotates received packets with a decoded vendor/model
	// string (spec's supplemented deviceid feature). A nil value simply
	// omits the annotation.
	DeviceDB *deviceid.Database

	// KISSAddr/AGWAddr, non-empty, open a TCP listener for that client
	// protocol (spec §2.2's "one or more attached TNC clients").
	KISSAddr string
	AGWAddr  string

	// EnableDNSSD advertises the KISS TCP listener via mDNS (spec's
	// supplemented dnssd feature); ignored if KISSAddr is empty.
	EnableDNSSD bool

	GPS  beacon.Reader
	DTMF DTMFDecoder

	// OpenAudio overrides how a channel's audio.Device is constructed,
	// letting tests substitute an in-memory device; defaults to
	// audio.Open.
	OpenAudio func(cfg config.ChannelConfig) (audioDevice, error)
}

// Station owns every live component of one running TNC/digipeater/IGate
// instance and the goroutines driving them.
type Station struct {
	cfg Config
	log *log.Logger

	conf *config.Config

	queue *tq.Queue
	dlq   *dlq.Queue
	heard *mheard.Table

	// ig2tx is the IS->TX duplicate cache shared by the digipeater (which
	// records into it, marked "by-digi", per spec §4.4's final step) and
	// the IGate client (which consults it in allowIG2TX) -- one ring, not
	// two, so a packet the digipeater just repeated to RF is never sent
	// right back out by the IGate.
	ig2tx *dedupe.Ring

	channels []*radioChannel

	digi  *digipeater.Digipeater
	igate *igate.Client
	beacons *beacon.Scheduler

	kissListener *kiss.Listener
	agwListener  *agwpe.Listener
	dnssdAnn     *dnssd.Announcer

	dcd *dcdAggregator
}

// New builds a Station from cfg, opening every configured channel's audio
// device and PTT controller. It does not start any goroutines; call Run
// for that.
func New(cfg Config) (*Station, error) {
	if cfg.Conf == nil {
		return nil, fmt.Errorf("engine: Config.Conf is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.Default()
	}
	if cfg.OpenAudio == nil {
		cfg.OpenAudio = openRealAudio
	}

	s := &Station{
		cfg:   cfg,
		log:   logger,
		conf:  cfg.Conf,
		queue: tq.New(len(cfg.Conf.Channels)),
		dlq:   dlq.New(),
		heard: mheard.New(),
		dcd:   newDCDAggregator(),
		ig2tx: dedupe.New(ig2txDedupeCapacity, ig2txDedupeWindow),
	}

	for _, cc := range cfg.Conf.Channels {
		rc, err := newRadioChannel(cc, s.queue, s.dcd, s.dlq, logger, cfg.OpenAudio, cfg.DTMF)
		if err != nil {
			s.closeChannels()
			return nil, fmt.Errorf("engine: channel %d: %w", cc.Channel, err)
		}
		s.channels = append(s.channels, rc)
		s.dcd.register(cc.Channel, rc)
	}

	s.digi = s.buildDigipeater()

	if cfg.Conf.HasIGate {
		igCfg := cfg.Conf.IGate
		if igCfg.IG2TX == nil {
			igCfg.IG2TX = s.ig2tx
		}
		s.igate = igate.New(igCfg, s.queue, s.heard, logger.With("component", "igate"))
	}

	s.beacons = beacon.New(s.buildBeaconConfig(), cfg.Conf.Beacons)

	if cfg.KISSAddr != "" {
		ln, err := kiss.Listen(cfg.KISSAddr, &kissHandler{station: s}, logger.With("component", "kiss"))
		if err != nil {
			s.closeChannels()
			return nil, fmt.Errorf("engine: KISS listen: %w", err)
		}
		s.kissListener = ln
	}

	if cfg.AGWAddr != "" {
		ln, err := agwpe.Listen(cfg.AGWAddr, logger.With("component", "agwpe"))
		if err != nil {
			s.closeChannels()
			return nil, fmt.Errorf("engine: AGWPE listen: %w", err)
		}
		s.agwListener = ln
	}

	return s, nil
}

// buildDigipeater compiles every config.DigipeatRule's Alias/Wide strings
// into *regexp.Regexp matchers -- internal/config deliberately leaves
// that decision to the caller (digipeater.Matcher accepts either) -- and
// builds the shared dedupe ring every route uses. The digipeater's IG2TX
// field is wired to s.ig2tx, the same ring the IGate client consults in
// allowIG2TX, so a repeat the digipeater just transmitted is recorded
// there too (spec §4.4's last step).
func (s *Station) buildDigipeater() *digipeater.Digipeater {
	dedup := dedupe.New(digipeatDedupeCapacity, digipeatDedupeWindow)

	routes := make([]digipeater.Route, 0, len(s.conf.Digipeat))
	for _, r := range s.conf.Digipeat {
		route := digipeater.Route{
			FromChan:   r.FromChan,
			ToChan:     r.ToChan,
			MyCallRec:  s.channelCall(r.FromChan),
			MyCallXmit: s.channelCall(r.ToChan),
			Alias:      compileMatcher(r.Alias, s.log),
			Wide:       compileMatcher(r.Wide, s.log),
			Preempt:    r.Preempt,
			ATGP:       r.ATGP,
		}
		if r.Filter != "" {
			expr := r.Filter
			eval := &pfilter.Evaluator{Heard: s.heard}
			route.Filter = func(pkt *ax25.Packet) bool {
				return eval.Eval(expr, pkt, true) == 1
			}
		}
		routes = append(routes, route)
	}

	digi := digipeater.New(routes, dedup, s.queue)
	digi.IG2TX = s.ig2tx
	return digi
}

// channelCall returns the MYCALL in effect for a given channel number,
// falling back to the global MYCALL if the channel was never configured
// (e.g. a DIGIPEAT rule referencing a channel out of range, already
// warned about by internal/config).
func (s *Station) channelCall(channel int) ax25.Address {
	for _, cc := range s.conf.Channels {
		if cc.Channel == channel {
			return cc.MyCall
		}
	}
	return s.conf.MyCall
}

// compileMatcher compiles a non-empty pattern string as a regexp,
// matching digipeat_match's own use of POSIX regex for ALIAS/WIDE
// patterns; an empty pattern means "never matches" for this field.
func compileMatcher(pattern string, logger *log.Logger) digipeater.Matcher {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Error("invalid digipeat pattern, this rule will never match", "pattern", pattern, "err", err)
		return nil
	}
	return re
}

// buildBeaconConfig wires internal/beacon's Transmitter/IGateReceiver/
// ReceiveQueue seams to this Station's concrete digipeater, IGate client,
// and receive queue.
func (s *Station) buildBeaconConfig() beacon.Config {
	cfg := beacon.Config{
		MyCall:      s.conf.MyCall,
		SmartBeacon: s.conf.SmartBeacon,
		TX:          s.queue,
		Recv:        s.dlq,
		GPS:         s.cfg.GPS,
		Log:         s.log.With("component", "beacon"),
	}
	if s.igate != nil {
		cfg.IGate = s.igate
		cfg.StatsText = func() string {
			st := s.igate.Stats()
			return fmt.Sprintf("<IGATE,MSG_CNT=%d,PKT_CNT=%d", st.MessagesUplinked, st.PacketsUplinked)
		}
	}
	return cfg
}

// Run starts every background goroutine (per-channel audio capture and
// transmit loops, the packet processor, the digipeater's IGate client,
// the beacon scheduler, and any client listeners) and blocks until ctx is
// canceled, then shuts everything down in reverse order.
func (s *Station) Run(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	for _, rc := range s.channels {
		rc := rc
		go rc.captureLoop(stop)
		go rc.xmitCh.Run(stop)
	}

	go s.processReceiveQueue(stop)

	if s.igate != nil {
		go s.igate.Run(stop)
	}
	go s.beacons.Run(stop)

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	if s.kissListener != nil {
		go func() {
			if err := s.kissListener.Serve(serveCtx); err != nil && serveCtx.Err() == nil {
				s.log.Error("KISS listener stopped", "err", err)
			}
		}()
		if s.cfg.EnableDNSSD {
			ann, err := dnssd.Announce(serveCtx, dnssd.DefaultName(), kissPort(s.cfg.KISSAddr), s.log.With("component", "dnssd"))
			if err != nil {
				s.log.Error("dns-sd announce failed", "err", err)
			} else {
				s.dnssdAnn = ann
			}
		}
	}
	if s.agwListener != nil {
		go func() {
			if err := s.agwListener.Serve(serveCtx, &agwpeHandler{station: s}); err != nil && serveCtx.Err() == nil {
				s.log.Error("AGWPE listener stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()

	for _, rc := range s.channels {
		s.queue.Close(rc.cfg.Channel)
	}
	s.dlq.Close()
	s.closeChannels()

	return nil
}

func (s *Station) closeChannels() {
	for _, rc := range s.channels {
		rc.close()
	}
	if s.kissListener != nil {
		s.kissListener.Close()
	}
	if s.agwListener != nil {
		s.agwListener.Close()
	}
}

// dcdAggregator answers tq.DCDChecker by asking every demodulator
// instance registered on a channel whether any of its slices is locked,
// matching src/demod.go's hdlc_rec_data_detect_any (true if any subchannel
// or slicer currently sees a carrier).
type dcdAggregator struct {
	byChannel map[int]*radioChannel
}

func newDCDAggregator() *dcdAggregator {
	return &dcdAggregator{byChannel: make(map[int]*radioChannel)}
}

func (d *dcdAggregator) register(channel int, rc *radioChannel) {
	d.byChannel[channel] = rc
}

func (d *dcdAggregator) Busy(channel int) bool {
	rc, ok := d.byChannel[channel]
	if !ok {
		return false
	}
	return rc.locked()
}
