// Package beacon implements the periodic and SmartBeaconing-adjusted
// beacon scheduler: one goroutine that transmits configured position,
// object, tracker, and custom beacons to a radio channel, the IGate, or
// (for testing) a simulated-reception sink, per spec §4.8. Grounded on
// src/beacon.go's beacon_thread/beacon_send/sb_calculate_next_time.
package beacon

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dlq"
)

// Kind selects what a beacon's information field contains.
type Kind int

const (
	KindPosition Kind = iota // PBEACON
	KindObject               // OBEACON
	KindTracker              // TBEACON: position from a live GPS fix
	KindCustom               // CBEACON: fixed text or a command's stdout
	KindStatus               // IGate uplink/downlink counters, direwolf's BEACON_IGATE
)

// Destination selects where a beacon's packet is delivered once built.
type Destination int

const (
	DestChannel     Destination = iota // transmit queue, low priority
	DestIGate                          // as if received on RF, fed to the IGate's RX->IS path
	DestSimulatedRX                    // injected into the receive queue, for testing/log2gpx-style review
)

const knotsToMPH = 1.15077945

// Beacon describes one configured beacon (one PBEACON/OBEACON/TBEACON/
// CBEACON/IBEACON line).
type Beacon struct {
	Kind Kind

	// Source defaults to the scheduler's MyCall for the resolved channel
	// when zero. Dest defaults to the software's APRS tocall.
	Source ax25.Address
	Dest   ax25.Address
	Via    []ax25.Address

	Messaging bool
	Every     time.Duration // fixed repeat interval; ignored by a SmartBeaconing tracker

	// Position / object fields.
	Lat, Lon        float64
	AmbiguityDigits int
	AltitudeFt      int // unknownValue to omit
	SymTable        byte
	Symbol          byte
	PowerW          int
	HeightFt        int
	GainDB          int
	Dir             string
	FreqMHz         float64
	ToneHz          float64
	OffsetMHz       float64
	Comment         string
	CommentCmd      string // appended to Comment, its stdout, if set

	ObjectName string // KindObject

	CustomText string // KindCustom: fixed info-field text
	CustomCmd  string // KindCustom: info-field text is this command's stdout

	SendTo  Destination
	Channel int // TX channel, or the channel the simulated-RX item claims
}

// state is the mutable scheduling wrapper around a user-supplied Beacon.
type state struct {
	cfg  Beacon
	next time.Time
}

// SmartBeacon carries the SmartBeaconing rate parameters (spec §4.8),
// applied to every KindTracker beacon when Enabled.
type SmartBeacon struct {
	Enabled bool

	FastSpeedMPH float64
	FastRate     time.Duration
	SlowSpeedMPH float64
	SlowRate     time.Duration

	TurnTime     time.Duration
	TurnAngleDeg float64
	TurnSlope    float64 // degrees * MPH
}

// Transmitter is satisfied by digipeater.Digipeater's tx field and by
// internal/tq.Queue directly.
type Transmitter = digipeater.Transmitter

// IGateReceiver is satisfied by internal/igate.Client.
type IGateReceiver interface {
	ReceiveRF(channel int, pkt *ax25.Packet)
}

// ReceiveQueue is satisfied by internal/dlq.Queue.
type ReceiveQueue interface {
	Push(item dlq.Item)
}

// Config wires a Scheduler's dependencies and global parameters.
type Config struct {
	MyCall     ax25.Address
	ToCall     ax25.Address // defaults to "APZGTN" when a beacon doesn't set its own Dest
	SmartBeacon SmartBeacon

	TX    Transmitter
	IGate IGateReceiver
	Recv  ReceiveQueue
	GPS   Reader

	// StatsText, if set, supplies a KindStatus beacon's info-field
	// comment (direwolf's "<IGATE,MSG_CNT=...,PKT_CNT=..." line),
	// letting a caller format its own igate.Client.Stats().
	StatsText func() string

	CmdTimeout time.Duration // defaults to 5s

	Log *log.Logger
}

const defaultToCall = "APZGTN"
const defaultCmdTimeout = 5 * time.Second

// Scheduler runs the beacon thread: one goroutine sleeping until the
// earliest due beacon (or SmartBeaconing re-evaluation point), building
// and routing each beacon whose time has come.
type Scheduler struct {
	cfg      Config
	beacons  []*state
	now      func() time.Time
	sleepFor func(d time.Duration, stop <-chan struct{}) bool

	sbPrevTime   time.Time
	sbPrevCourse float64
	sbHadCourse  bool
}

// New builds a Scheduler. Beacon i of n first fires (i+1)/n of its own
// interval after startup, so the list is spread apart in list order and
// a large beacon list doesn't burst all at once; the last one waits its
// full interval.
func New(cfg Config, beacons []Beacon) *Scheduler {
	if cfg.ToCall.Call == "" {
		cfg.ToCall = ax25.Address{Call: defaultToCall}
	}
	if cfg.CmdTimeout <= 0 {
		cfg.CmdTimeout = defaultCmdTimeout
	}
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}

	s := &Scheduler{
		cfg:      cfg,
		now:      time.Now,
		sleepFor: sleepOrStop,
	}
	now := s.now()
	for i, b := range beacons {
		st := &state{cfg: b}
		every := b.Every
		if every <= 0 {
			every = time.Minute
		}
		st.next = now.Add(every * time.Duration(i+1) / time.Duration(max(len(beacons), 1)))
		s.beacons = append(s.beacons, st)
	}
	return s
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func countTrackers(beacons []*state) int {
	n := 0
	for _, b := range beacons {
		if b.cfg.Kind == KindTracker {
			n++
		}
	}
	return n
}

// Run drives the scheduler loop until stop is closed. Grounded on
// beacon_thread: sleep until the earliest scheduled time (bounded by
// SmartBeaconing's turn-check and fast-rate horizons when a tracker beacon
// is configured), read one GPS fix, recompute tracker beacons' next time
// from it, then send every beacon that is due and reschedule it.
func (s *Scheduler) Run(stop <-chan struct{}) {
	numTrackers := countTrackers(s.beacons)
	now := s.now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		earliest := now.Add(time.Hour)
		for _, b := range s.beacons {
			if b.next.Before(earliest) {
				earliest = b.next
			}
		}
		if s.cfg.SmartBeacon.Enabled && numTrackers > 0 {
			if t := now.Add(s.cfg.SmartBeacon.TurnTime); t.Before(earliest) {
				earliest = t
			}
			if t := now.Add(s.cfg.SmartBeacon.FastRate); t.Before(earliest) {
				earliest = t
			}
		}

		if earliest.After(now) {
			if !s.sleepFor(earliest.Sub(now), stop) {
				return
			}
		}
		now = s.now()

		var fix Fix
		if numTrackers > 0 && s.cfg.GPS != nil {
			fix = s.cfg.GPS.Read()
			if s.cfg.SmartBeacon.Enabled && fix.Valid {
				tnext := s.calculateNextTime(now, fix)
				for _, b := range s.beacons {
					if b.cfg.Kind == KindTracker && tnext.Before(b.next) {
						b.next = tnext
					}
				}
			}
		}

		for _, b := range s.beacons {
			if b.next.After(now) {
				continue
			}
			s.sendAndReschedule(b, fix, now)
		}
	}
}

func (s *Scheduler) sendAndReschedule(b *state, fix Fix, now time.Time) {
	sent := s.send(b, fix)

	switch b.cfg.Kind {
	case KindTracker:
		switch {
		case !sent:
			if s.cfg.SmartBeacon.Enabled {
				b.next = now.Add(2 * time.Second) // retry soon for a fix
			} else {
				b.next = b.next.Add(every(b.cfg))
			}
		case s.cfg.SmartBeacon.Enabled:
			s.sbPrevTime = now
			s.sbPrevCourse = fix.CourseDeg
			s.sbHadCourse = fix.HasCourse
			b.next = s.calculateNextTime(now, fix)
		default:
			b.next = b.next.Add(every(b.cfg))
		}
	default:
		b.next = b.next.Add(every(b.cfg))
		if b.next.Before(now) {
			// The system clock jumped forward (e.g. NTP sync after a
			// connectionless boot); resume relative to now instead of
			// firing every beacon from the missed interval at once.
			b.next = now.Add(every(b.cfg))
			s.cfg.Log.Info("beacon schedule reset: system clock jumped forward")
		}
	}
}

func every(b Beacon) time.Duration {
	if b.Every <= 0 {
		return time.Minute
	}
	return b.Every
}

// calculateNextTime implements sb_calculate_next_time: the rate is
// SlowRate at or below SlowSpeedMPH, FastRate at or above FastSpeedMPH,
// and FastRate*FastSpeedMPH/speed in between, and a sufficient heading change
// while moving forces immediate retransmission ("corner pegging").
func (s *Scheduler) calculateNextTime(now time.Time, fix Fix) time.Time {
	sb := s.cfg.SmartBeacon
	speedMPH := fix.SpeedKts * knotsToMPH

	var rateSec float64
	switch {
	case !fix.HasSpeed:
		rateSec = (sb.FastRate.Seconds() + sb.SlowRate.Seconds()) / 2
	case speedMPH > sb.FastSpeedMPH:
		rateSec = sb.FastRate.Seconds()
	case speedMPH <= sb.SlowSpeedMPH:
		rateSec = sb.SlowRate.Seconds()
	default:
		rateSec = sb.FastRate.Seconds() * sb.FastSpeedMPH / speedMPH
	}

	base := s.sbPrevTime
	if base.IsZero() {
		base = now
	}
	next := base.Add(time.Duration(rateSec * float64(time.Second)))

	if fix.HasSpeed && speedMPH >= 1.0 && fix.HasCourse && s.sbHadCourse {
		change := headingChange(fix.CourseDeg, s.sbPrevCourse)
		turnThreshold := sb.TurnAngleDeg + sb.TurnSlope/speedMPH
		if change > turnThreshold && !s.sbPrevTime.IsZero() && !now.Before(s.sbPrevTime.Add(sb.TurnTime)) {
			next = now
		}
	}
	return next
}

// headingChange is the absolute difference between two compass headings,
// wrapped to the shorter way around the circle (never more than 180).
func headingChange(a, b float64) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff <= 180 {
		return diff
	}
	return 360 - diff
}

// send builds and routes one beacon. Returns false only for a tracker
// beacon with no usable GPS fix, in which case nothing is sent.
func (s *Scheduler) send(b *state, fix Fix) bool {
	cfg := b.cfg

	source := cfg.Source
	if source.Call == "" {
		source = s.cfg.MyCall
	}
	dest := cfg.Dest
	if dest.Call == "" {
		dest = s.cfg.ToCall
	}

	comment := cfg.Comment
	if cfg.CommentCmd != "" {
		if out, err := s.runCmd(cfg.CommentCmd); err != nil {
			s.cfg.Log.Warn("beacon comment command failed", "cmd", cfg.CommentCmd, "err", err)
		} else {
			comment += out
		}
	}

	var info string
	switch cfg.Kind {
	case KindPosition:
		// Zero is indistinguishable from "not configured" here, matching
		// common usage: an altitude is worth transmitting only when the
		// beacon config line actually set one.
		altFt := unknownValue
		if cfg.AltitudeFt != 0 {
			altFt = cfg.AltitudeFt
		}
		info = encodePosition(positionParams{
			Messaging: cfg.Messaging,
			Lat:       cfg.Lat, Lon: cfg.Lon, Ambiguity: cfg.AmbiguityDigits,
			AltFt: altFt, SymTable: cfg.SymTable, Symbol: cfg.Symbol,
			PowerW: cfg.PowerW, HeightFt: cfg.HeightFt, GainDB: cfg.GainDB, Dir: cfg.Dir,
			Course: unknownValue, SpeedKts: 0,
			FreqMHz: cfg.FreqMHz, ToneHz: cfg.ToneHz, OffsetMHz: cfg.OffsetMHz,
			Comment: comment,
		})
	case KindObject:
		info = encodeObject(cfg.ObjectName, positionParams{
			Lat: cfg.Lat, Lon: cfg.Lon, Ambiguity: cfg.AmbiguityDigits,
			AltFt: unknownValue, SymTable: cfg.SymTable, Symbol: cfg.Symbol,
			PowerW: cfg.PowerW, HeightFt: cfg.HeightFt, GainDB: cfg.GainDB, Dir: cfg.Dir,
			Course: unknownValue, SpeedKts: 0,
			Comment: comment,
		})
	case KindTracker:
		if !fix.Valid {
			return false
		}
		altFt := unknownValue
		if fix.HasAlt && cfg.AltitudeFt > 0 {
			altFt = int(fix.AltMeters*3.28084 + 0.5)
		}
		course := unknownValue
		if fix.HasCourse {
			course = int(fix.CourseDeg + 0.5)
		}
		speed := 0
		if fix.HasSpeed {
			speed = int(fix.SpeedKts + 0.5)
		}
		info = encodePosition(positionParams{
			Messaging: cfg.Messaging,
			Lat:       fix.Lat, Lon: fix.Lon, Ambiguity: cfg.AmbiguityDigits,
			AltFt: altFt, SymTable: cfg.SymTable, Symbol: cfg.Symbol,
			PowerW: cfg.PowerW, HeightFt: cfg.HeightFt, GainDB: cfg.GainDB, Dir: cfg.Dir,
			Course: course, SpeedKts: speed,
			FreqMHz: cfg.FreqMHz, ToneHz: cfg.ToneHz, OffsetMHz: cfg.OffsetMHz,
			Comment: comment,
		})
	case KindCustom:
		switch {
		case cfg.CustomCmd != "":
			out, err := s.runCmd(cfg.CustomCmd)
			if err != nil {
				s.cfg.Log.Warn("beacon info command failed", "cmd", cfg.CustomCmd, "err", err)
				return false
			}
			info = out
		default:
			info = cfg.CustomText
		}
	case KindStatus:
		info = s.statusText()
	}

	if info == "" {
		return false
	}

	pkt := ax25.NewUI(source, dest, cfg.Via, []byte(info))
	s.route(cfg, pkt)
	return true
}

// statusText builds direwolf's IGATE status line (BEACON_IGATE), a
// comment-style info field with no position, carrying cumulative packet
// counters supplied by Config.StatsText.
func (s *Scheduler) statusText() string {
	if s.cfg.StatsText != nil {
		return s.cfg.StatsText()
	}
	return "<IGATE,MSG_CNT=0,PKT_CNT=0,DIR_CNT=0,LOC_CNT=0,RF_CNT=0,UPL_CNT=0,DNL_CNT=0"
}

func (s *Scheduler) route(cfg Beacon, pkt *ax25.Packet) {
	switch cfg.SendTo {
	case DestIGate:
		if s.cfg.IGate != nil {
			s.cfg.IGate.ReceiveRF(-1, pkt) // chan -1: not subject to RF->IS filtering
		}
	case DestSimulatedRX:
		if s.cfg.Recv != nil {
			s.cfg.Recv.Push(dlq.Item{
				Channel:  cfg.Channel,
				Packet:   pkt,
				ALevel:   dlq.ALevel{Mark: -1, Space: -1},
				Received: s.now(),
			})
		}
	default:
		if s.cfg.TX != nil {
			s.cfg.TX.Enqueue(cfg.Channel, digipeater.PriorityLow, pkt)
		}
	}
}

// runCmd executes an external command for COMMENTCMD/INFOCMD, returning
// its trimmed stdout as a single line. Grounded on aprs_tt.go's
// dw_run_cmd, routed through a shell (unlike the reference
// exec.Command(cmd) call, which cannot pass arguments) so a configured
// command line with arguments actually works.
func (s *Scheduler) runCmd(cmdline string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CmdTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", cmdline).Output()
	if err != nil {
		return "", err
	}
	line := strings.ReplaceAll(string(out), "\r", " ")
	line = strings.ReplaceAll(line, "\n", " ")
	return strings.TrimSpace(line), nil
}
