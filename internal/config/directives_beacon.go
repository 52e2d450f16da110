package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/beacon"
)

// handleBeacon parses one PBEACON/OBEACON/TBEACON/CBEACON/IBEACON line's
// keyword=value pairs, grounded on src/config.go's PBEACON/beacon_options
// handler. Unlike most directives, beacon parameters are given as
// "key=value" tokens rather than positionally, matching the teacher's own
// convention (and direwolf's upstream documentation) for these lines.
func (p *parser) handleBeacon(kind beacon.Kind, args []string) {
	b := beacon.Beacon{Kind: kind, SendTo: beacon.DestChannel, SymTable: '/', Symbol: '-'}

	for _, tok := range args {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		switch key {
		case "every":
			b.Every = p.seconds(val)
		case "lat", "latitude":
			b.Lat = p.float(val)
		case "long", "lon", "longitude":
			b.Lon = p.float(val)
		case "ambiguity":
			b.AmbiguityDigits = p.int0(val)
		case "altitude", "alt":
			b.AltitudeFt = p.int0(val)
		case "symbol":
			if len(val) >= 2 {
				b.SymTable = val[0]
				b.Symbol = val[1]
			} else if len(val) == 1 {
				b.Symbol = val[0]
			}
		case "overlay":
			if len(val) > 0 {
				b.SymTable = val[0]
			}
		case "power":
			b.PowerW = p.int0(val)
		case "height":
			b.HeightFt = p.int0(val)
		case "gain":
			b.GainDB = p.int0(val)
		case "dir", "directivity":
			b.Dir = val
		case "freq":
			b.FreqMHz = p.float(val)
		case "tone":
			b.ToneHz = p.float(val)
		case "offset":
			b.OffsetMHz = p.float(val)
		case "comment":
			b.Comment = val
		case "commentcmd":
			b.CommentCmd = val
		case "objname", "name":
			b.ObjectName = val
		case "info", "text":
			b.CustomText = val
		case "infocmd", "cmd":
			b.CustomCmd = val
		case "messaging":
			b.Messaging = strings.EqualFold(val, "on") || val == "1"
		case "source":
			if a, err := ax25.ParseAddress(strings.ToUpper(val)); err == nil {
				b.Source = a
			} else {
				p.warnf("%s: invalid source %q, using default", kindName(kind), val)
			}
		case "dest":
			if a, err := ax25.ParseAddress(strings.ToUpper(val)); err == nil {
				b.Dest = a
			} else {
				p.warnf("%s: invalid dest %q, using default", kindName(kind), val)
			}
		case "via":
			for _, s := range strings.Split(val, ",") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				if a, err := ax25.ParseAddress(strings.ToUpper(s)); err == nil {
					b.Via = append(b.Via, a)
				}
			}
		case "sendto":
			p.parseSendTo(&b, val)
		case "delay":
			// Initial stagger delay before the first transmission;
			// the scheduler already spreads beacons apart in list
			// order (see internal/beacon.New), so this is accepted
			// for config-file compatibility but not separately
			// modeled per-beacon.
		default:
			p.warnf("%s: unrecognized parameter %q, ignoring", kindName(kind), tok)
		}
	}

	p.cfg.Beacons = append(p.cfg.Beacons, b)
}

// parseSendTo parses direwolf's "sendto=R0" (radio channel 0), "sendto=IG"
// (IGate RX->IS path), or "sendto=RX" (simulated reception, for
// log2gpx-style review) forms.
func (p *parser) parseSendTo(b *beacon.Beacon, val string) {
	switch {
	case strings.EqualFold(val, "IG"):
		b.SendTo = beacon.DestIGate
	case strings.HasPrefix(strings.ToUpper(val), "RX"):
		b.SendTo = beacon.DestSimulatedRX
		if n, err := strconv.Atoi(val[2:]); err == nil {
			b.Channel = n
		}
	case strings.HasPrefix(strings.ToUpper(val), "R"):
		b.SendTo = beacon.DestChannel
		if n, err := strconv.Atoi(val[1:]); err == nil {
			b.Channel = n
		}
	default:
		p.warnf("sendto: unrecognized destination %q, defaulting to channel 0", val)
	}
}

func kindName(k beacon.Kind) string {
	switch k {
	case beacon.KindPosition:
		return "PBEACON"
	case beacon.KindObject:
		return "OBEACON"
	case beacon.KindTracker:
		return "TBEACON"
	case beacon.KindCustom:
		return "CBEACON"
	case beacon.KindStatus:
		return "IBEACON"
	default:
		return "BEACON"
	}
}

func (p *parser) seconds(val string) time.Duration {
	n, err := strconv.Atoi(val)
	if err != nil {
		p.warnf("invalid seconds value %q, using 0", val)
		return 0
	}
	return time.Duration(n) * time.Second
}

func (p *parser) float(val string) float64 {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		p.warnf("invalid numeric value %q, using 0", val)
		return 0
	}
	return f
}

func (p *parser) int0(val string) int {
	n, err := strconv.Atoi(val)
	if err != nil {
		p.warnf("invalid integer value %q, using 0", val)
		return 0
	}
	return n
}
