// Package config reads a gotnc configuration file: one directive per line,
// '#' and '*' comments, keyword-driven like a traditional TNC config
// (ADEVICE, CHANNEL, MYCALL, MODEM, PTT, DIGIPEAT, FILTER, IGSERVER,
// IGLOGIN, IGTXVIA, IGFILTER, IGTXLIMIT, SATGATE, PBEACON/OBEACON/
// TBEACON/CBEACON, SMARTBEACON, TTCORRAL/TT*, per spec §6). Grounded on
// src/config.go's split()-then-EqualFold dispatch loop; a generic
// YAML/TOML library was considered and rejected (see DESIGN.md) because it
// would not read existing operator config files, which is the entire
// point of keeping this line-oriented format.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/audio"
	"github.com/kf7qex/gotnc/internal/beacon"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/dsp"
	"github.com/kf7qex/gotnc/internal/hdlc"
	"github.com/kf7qex/gotnc/internal/igate"
	"github.com/kf7qex/gotnc/internal/ptt"
)

// Default timing values, grounded on direwolf's own defaults for the
// matching C.go directives (DWAIT/SLOTTIME/PERSIST/TXDELAY/TXTAIL).
const (
	DefaultDWait    = 0 * time.Millisecond
	DefaultSlotTime = 100 * time.Millisecond
	DefaultPersist  = 63 // out of 255, ~p=0.25
	DefaultTXDelay  = 300 * time.Millisecond
	DefaultTXTail   = 30 * time.Millisecond
)

// ChannelConfig is one CHANNEL's complete receive/transmit/PTT wiring.
type ChannelConfig struct {
	Channel int
	MyCall  ax25.Address

	Audio audio.Config
	PTT   ptt.Config

	Baud       int
	MarkFreq   int
	SpaceFreq  int
	NumSlicers int
	Modem      dsp.Modem

	DWait      time.Duration
	SlotTime   time.Duration
	Persist    int // 0-255
	TXDelay    time.Duration
	TXTail     time.Duration
	FullDuplex bool

	MaxRetry hdlc.RetryLevel
}

// DigipeatRule is one parsed DIGIPEAT directive: a from-channel/to-channel
// pair plus its alias/wide patterns, carried as plain strings so the
// caller decides whether to compile them with regexp or with a cheaper
// matcher (digipeater.Matcher accepts either).
type DigipeatRule struct {
	FromChan int
	ToChan   int
	Alias    string
	Wide     string
	Preempt  digipeater.PreemptMode
	ATGP     string
	Filter   string // optional packet-filter expression, empty = none
}

// TTDirective carries one raw TT*/TTCORRAL config line verbatim. The
// APRStt DTMF subsystem itself is out of scope (spec.md §1); these are
// parsed and kept only so a caller wiring a DTMF decoder (not built here)
// has the configured values available, per internal/engine's DTMFDecoder
// seam.
type TTDirective struct {
	Keyword string
	Args    []string
}

// Config is everything parsed out of one configuration file.
type Config struct {
	MyCall ax25.Address

	Channels []ChannelConfig
	Digipeat []DigipeatRule

	Beacons     []beacon.Beacon
	SmartBeacon beacon.SmartBeacon

	IGate      igate.Config
	HasIGate   bool
	IGFilters  map[string]string // direction ("RF>IS"/"IS>RF") -> expr, beyond igate.Config's two fields

	LogDir string

	TT []TTDirective

	// Warnings accumulates non-fatal "invalid value, using default,
	// continuing" messages with their source line numbers, matching
	// spec §7's "Invalid configuration value: log with line number,
	// substitute default, continue" disposition.
	Warnings []string
}

// parser holds the mutable state threaded through one config file's parse
// pass: the channel currently being configured, and the audio config
// pending from the most recent ADEVICE line.
type parser struct {
	cfg Config

	line int

	curAudio   audio.Config
	haveAudio  bool
	curChannel int // index into cfg.Channels of the channel currently being configured, -1 if none
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads directives from r until EOF.
func Parse(r io.Reader) (*Config, error) {
	p := &parser{curChannel: -1}
	p.cfg.IGFilters = make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		p.line++
		p.parseLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading: %w", err)
	}
	return &p.cfg, nil
}

func (p *parser) warnf(format string, args ...any) {
	msg := fmt.Sprintf("line %d: "+format, append([]any{p.line}, args...)...)
	p.cfg.Warnings = append(p.cfg.Warnings, msg)
}

// parseLine dispatches one line to its directive handler. Grounded on
// src/config.go's split()-driven if/else-if EqualFold chain; comments
// start a line with '#' or '*', matching the teacher's own convention.
func (p *parser) parseLine(line string) {
	fields := tokenize(line)
	if len(fields) == 0 {
		return
	}
	kw := fields[0]
	if strings.HasPrefix(kw, "#") || strings.HasPrefix(kw, "*") {
		return
	}
	args := fields[1:]

	switch {
	case strings.EqualFold(kw, "MYCALL"):
		p.handleMyCall(args)
	case strings.EqualFold(kw, "ADEVICE"):
		p.handleADevice(args)
	case strings.EqualFold(kw, "CHANNEL"):
		p.handleChannel(args)
	case strings.EqualFold(kw, "MODEM"):
		p.handleModem(args)
	case strings.EqualFold(kw, "PTT"):
		p.handlePTT(args)
	case strings.EqualFold(kw, "DWAIT"):
		p.curChan().DWait = p.durationMs(args, DefaultDWait)
	case strings.EqualFold(kw, "SLOTTIME"):
		p.curChan().SlotTime = p.durationMs(args, DefaultSlotTime)
	case strings.EqualFold(kw, "PERSIST"):
		p.curChan().Persist = p.intArg(args, DefaultPersist, 0, 255)
	case strings.EqualFold(kw, "TXDELAY"):
		p.curChan().TXDelay = p.durationMs(args, DefaultTXDelay)
	case strings.EqualFold(kw, "TXTAIL"):
		p.curChan().TXTail = p.durationMs(args, DefaultTXTail)
	case strings.EqualFold(kw, "FULLDUP"):
		p.curChan().FullDuplex = p.boolArg(args)
	case strings.EqualFold(kw, "FIX_BITS"):
		p.handleFixBits(args)
	case strings.EqualFold(kw, "DIGIPEAT"):
		p.handleDigipeat(args)
	case strings.EqualFold(kw, "FILTER"):
		p.handleFilter(args)
	case strings.EqualFold(kw, "IGSERVER"):
		p.handleIGServer(args)
	case strings.EqualFold(kw, "IGLOGIN"):
		p.handleIGLogin(args)
	case strings.EqualFold(kw, "IGTXVIA"):
		p.handleIGTxVia(args)
	case strings.EqualFold(kw, "IGFILTER"):
		p.handleIGFilter(args)
	case strings.EqualFold(kw, "IGTXLIMIT"):
		p.handleIGTxLimit(args)
	case strings.EqualFold(kw, "SATGATE"):
		p.handleSatgate(args)
	case strings.EqualFold(kw, "PBEACON"):
		p.handleBeacon(beacon.KindPosition, args)
	case strings.EqualFold(kw, "OBEACON"):
		p.handleBeacon(beacon.KindObject, args)
	case strings.EqualFold(kw, "TBEACON"):
		p.handleBeacon(beacon.KindTracker, args)
	case strings.EqualFold(kw, "CBEACON"):
		p.handleBeacon(beacon.KindCustom, args)
	case strings.EqualFold(kw, "IBEACON"):
		p.handleBeacon(beacon.KindStatus, args)
	case strings.EqualFold(kw, "SMARTBEACON") || strings.EqualFold(kw, "SMARTBEACONING"):
		p.handleSmartBeacon(args)
	case strings.EqualFold(kw, "LOGDIR"):
		if len(args) > 0 {
			p.cfg.LogDir = args[0]
		}
	case strings.EqualFold(kw, "TTCORRAL"),
		strings.HasPrefix(strings.ToUpper(kw), "TT"):
		p.cfg.TT = append(p.cfg.TT, TTDirective{Keyword: strings.ToUpper(kw), Args: args})
	default:
		p.warnf("unrecognized directive %q, ignoring", kw)
	}
}

// tokenize splits a config line on whitespace, honoring double-quoted
// spans (with doubled "" as an escaped quote), grounded on src/config.go's
// split(). Tabs are treated as spaces; '#'/'*' after the first token do
// not start a comment (only a line beginning with one does), matching the
// original's per-line rather than per-token comment convention.
func tokenize(line string) []string {
	line = strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		return r
	}, line)

	var fields []string
	var cur strings.Builder
	inQuotes := false
	have := false

	flush := func() {
		if have {
			fields = append(fields, cur.String())
			cur.Reset()
			have = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				have = true
				i++
			} else {
				inQuotes = !inQuotes
				have = true
			}
		case c == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(c)
			have = true
		}
	}
	flush()
	return fields
}

// curChan returns the ChannelConfig currently being configured, creating
// an implicit channel 0 if no CHANNEL directive has appeared yet (matching
// direwolf's behavior of defaulting to channel 0 for a single-channel
// config file that never bothers with an explicit CHANNEL line).
func (p *parser) curChan() *ChannelConfig {
	if p.curChannel < 0 {
		p.cfg.Channels = append(p.cfg.Channels, defaultChannelConfig(0))
		p.curChannel = len(p.cfg.Channels) - 1
	}
	return &p.cfg.Channels[p.curChannel]
}

func defaultChannelConfig(n int) ChannelConfig {
	return ChannelConfig{
		Channel:    n,
		Baud:       1200,
		MarkFreq:   1200,
		SpaceFreq:  2200,
		NumSlicers: 1,
		Modem:      dsp.ModemAFSK,
		DWait:      DefaultDWait,
		SlotTime:   DefaultSlotTime,
		Persist:    DefaultPersist,
		TXDelay:    DefaultTXDelay,
		TXTail:     DefaultTXTail,
		MaxRetry:   hdlc.RetryTriple,
	}
}

func (p *parser) handleMyCall(args []string) {
	if len(args) == 0 {
		p.warnf("MYCALL: missing value, ignoring")
		return
	}
	addr, err := ax25.ParseAddress(strings.ToUpper(args[0]))
	if err != nil {
		p.warnf("MYCALL: invalid value %q: %v", args[0], err)
		return
	}
	p.cfg.MyCall = addr
	if p.curChannel >= 0 {
		p.curChan().MyCall = addr
	}
}

// handleADevice starts a new audio device block: "ADEVICE name" (shared
// in/out) or "ADEVICE input output". Subsequent CHANNEL directives attach
// to this device until the next ADEVICE line, matching direwolf's
// ADEVICE/CHANNEL pairing.
func (p *parser) handleADevice(args []string) {
	p.curAudio = audio.Config{SampleRate: 44100, Channels: 1}
	switch len(args) {
	case 0:
		p.warnf("ADEVICE: missing device name, using default")
	case 1:
		p.curAudio.InputDevice = args[0]
		p.curAudio.OutputDevice = args[0]
	default:
		p.curAudio.InputDevice = args[0]
		p.curAudio.OutputDevice = args[1]
	}
	p.haveAudio = true
}

func (p *parser) handleChannel(args []string) {
	if len(args) == 0 {
		p.warnf("CHANNEL: missing channel number, ignoring")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		p.warnf("CHANNEL: invalid channel number %q, ignoring", args[0])
		return
	}
	cc := defaultChannelConfig(n)
	cc.MyCall = p.cfg.MyCall
	if p.haveAudio {
		cc.Audio = p.curAudio
	}
	p.cfg.Channels = append(p.cfg.Channels, cc)
	p.curChannel = len(p.cfg.Channels) - 1
}

// handleModem parses "MODEM baud [mark space] [slicers=n]", e.g.
// "MODEM 1200", "MODEM 9600", "MODEM 300 1600 1800".
func (p *parser) handleModem(args []string) {
	if len(args) == 0 {
		p.warnf("MODEM: missing baud rate, ignoring")
		return
	}
	baud, err := strconv.Atoi(args[0])
	if err != nil {
		p.warnf("MODEM: invalid baud rate %q, ignoring", args[0])
		return
	}
	c := p.curChan()
	c.Baud = baud
	switch baud {
	case 9600:
		c.Modem = dsp.ModemBaseband9600
		c.MarkFreq, c.SpaceFreq = 0, 0
	case 300:
		c.Modem = dsp.ModemAFSK
		c.MarkFreq, c.SpaceFreq = 1600, 1800
	default:
		c.Modem = dsp.ModemAFSK
		c.MarkFreq, c.SpaceFreq = 1200, 2200
	}
	rest := args[1:]
	if len(rest) >= 2 {
		if m, err := strconv.Atoi(rest[0]); err == nil {
			c.MarkFreq = m
		}
		if s, err := strconv.Atoi(rest[1]); err == nil {
			c.SpaceFreq = s
		}
		rest = rest[2:]
	}
	for _, a := range rest {
		if n, ok := strings.CutPrefix(a, "slicers="); ok {
			if v, err := strconv.Atoi(n); err == nil && v > 0 {
				c.NumSlicers = v
			}
		}
	}
}

// handlePTT parses "PTT serial-device [-]RTS|DTR", "PTT GPIO chip line",
// "PTT CM108 device pin", or "PTT RIG model device", grounded on
// src/config.go's PTT/DCD/CON keyword handler.
func (p *parser) handlePTT(args []string) {
	if len(args) == 0 {
		p.warnf("PTT: missing arguments, ignoring")
		return
	}
	c := p.curChan()
	switch {
	case strings.EqualFold(args[0], "GPIO") && len(args) >= 3:
		line, err := strconv.Atoi(args[2])
		if err != nil {
			p.warnf("PTT GPIO: invalid line number %q, ignoring", args[2])
			return
		}
		c.PTT = ptt.Config{Method: ptt.MethodGPIO, GPIOChip: args[1], GPIOLine: line}
	case strings.EqualFold(args[0], "CM108") && len(args) >= 3:
		pin, err := strconv.Atoi(args[2])
		if err != nil {
			p.warnf("PTT CM108: invalid pin %q, ignoring", args[2])
			return
		}
		c.PTT = ptt.Config{Method: ptt.MethodCM108, CM108Device: args[1], CM108Pin: pin}
	case strings.EqualFold(args[0], "RIG") && len(args) >= 3:
		model, err := strconv.Atoi(args[1])
		if err != nil {
			p.warnf("PTT RIG: invalid model number %q, ignoring", args[1])
			return
		}
		c.PTT = ptt.Config{Method: ptt.MethodHamlib, HamlibRigModel: model, HamlibDevice: args[2]}
	default:
		// Serial: device name followed by one or two control lines,
		// each optionally prefixed '-' to invert.
		pc := ptt.Config{Method: ptt.MethodSerial, SerialDevice: args[0]}
		if len(args) > 1 {
			line, inv := parsePTTLine(args[1])
			pc.SerialLine = line
			pc.Invert = inv
		}
		if len(args) > 2 {
			line2, inv2 := parsePTTLine(args[2])
			pc.SerialLine2 = line2
			pc.Invert2 = inv2
		}
		c.PTT = pc
	}
}

func parsePTTLine(s string) (ptt.Line, bool) {
	inverted := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	switch {
	case strings.EqualFold(s, "RTS"):
		return ptt.LineRTS, inverted
	case strings.EqualFold(s, "DTR"):
		return ptt.LineDTR, inverted
	default:
		return ptt.LineNone, inverted
	}
}

// handleFixBits parses "FIX_BITS none|single|double|triple|twoseparated",
// per spec §4.2's FIX_BITS retry-level directive. The contiguous single,
// double and triple inversions are accepted as given; TWOSEPARATED, the
// O(bits^2) level, is accepted with a logged warning.
func (p *parser) handleFixBits(args []string) {
	if len(args) == 0 {
		return
	}
	c := p.curChan()
	switch strings.ToUpper(args[0]) {
	case "NONE":
		c.MaxRetry = hdlc.RetryNone
	case "SINGLE":
		c.MaxRetry = hdlc.RetrySingle
	case "DOUBLE":
		c.MaxRetry = hdlc.RetryDouble
	case "TRIPLE":
		c.MaxRetry = hdlc.RetryTriple
	case "TWOSEP", "TWOSEPARATED":
		p.warnf("FIX_BITS TWOSEPARATED: O(bits^2) retry cost accepted explicitly")
		c.MaxRetry = hdlc.RetryTwoSeparated
	default:
		p.warnf("FIX_BITS: unrecognized level %q, leaving default", args[0])
	}
}

func (p *parser) durationMs(args []string, def time.Duration) time.Duration {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		p.warnf("invalid duration %q, using default", args[0])
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (p *parser) intArg(args []string, def, lo, hi int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < lo || n > hi {
		p.warnf("invalid value %q, using default", args[0])
		return def
	}
	return n
}

func (p *parser) boolArg(args []string) bool {
	if len(args) == 0 {
		return true
	}
	return strings.EqualFold(args[0], "on") || args[0] == "1" || strings.EqualFold(args[0], "true")
}
