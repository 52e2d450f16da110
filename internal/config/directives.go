package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/beacon"
	"github.com/kf7qex/gotnc/internal/digipeater"
)

// handleDigipeat parses "DIGIPEAT fromchan tochan alias-pattern
// wide-pattern [off|drop|mark|trace] [atgp=PREFIX]", grounded on
// src/config.go's DIGIPEAT handler and spec §4.4's per-(from,to) rule
// shape (alias regex, WIDEn-N regex, preempt mode, optional ATGP prefix).
func (p *parser) handleDigipeat(args []string) {
	if len(args) < 4 {
		p.warnf("DIGIPEAT: expected \"fromchan tochan alias-pattern wide-pattern\", ignoring")
		return
	}
	from, err1 := strconv.Atoi(args[0])
	to, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		p.warnf("DIGIPEAT: invalid channel numbers, ignoring")
		return
	}
	rule := DigipeatRule{
		FromChan: from,
		ToChan:   to,
		Alias:    args[2],
		Wide:     args[3],
		Preempt:  digipeater.PreemptTrace,
	}
	for _, a := range args[4:] {
		switch {
		case strings.EqualFold(a, "OFF"):
			rule.Preempt = digipeater.PreemptOff
		case strings.EqualFold(a, "DROP"):
			rule.Preempt = digipeater.PreemptDrop
		case strings.EqualFold(a, "MARK"):
			rule.Preempt = digipeater.PreemptMark
		case strings.EqualFold(a, "TRACE"):
			rule.Preempt = digipeater.PreemptTrace
		default:
			if v, ok := strings.CutPrefix(a, "atgp="); ok {
				rule.ATGP = v
			}
		}
	}
	p.cfg.Digipeat = append(p.cfg.Digipeat, rule)
}

// handleFilter parses "FILTER fromchan tochan filter-expr", attaching the
// expression to the matching, already-parsed DIGIPEAT rule, per spec
// §4.4's "apply the optional filter expression" step. FILTER must follow
// the DIGIPEAT line it annotates, matching direwolf's documented ordering.
func (p *parser) handleFilter(args []string) {
	if len(args) < 3 {
		p.warnf("FILTER: expected \"fromchan tochan filter-expr\", ignoring")
		return
	}
	from, err1 := strconv.Atoi(args[0])
	to, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		p.warnf("FILTER: invalid channel numbers, ignoring")
		return
	}
	expr := strings.Join(args[2:], " ")
	for i := range p.cfg.Digipeat {
		if p.cfg.Digipeat[i].FromChan == from && p.cfg.Digipeat[i].ToChan == to {
			p.cfg.Digipeat[i].Filter = expr
			return
		}
	}
	p.warnf("FILTER: no DIGIPEAT rule %d>%d to attach to, ignoring", from, to)
}

func (p *parser) handleIGServer(args []string) {
	if len(args) == 0 {
		p.warnf("IGSERVER: missing host, ignoring")
		return
	}
	p.cfg.HasIGate = true
	host, port := args[0], 0
	if i := strings.LastIndex(host, ":"); i >= 0 {
		if n, err := strconv.Atoi(host[i+1:]); err == nil {
			port = n
			host = host[:i]
		}
	}
	p.cfg.IGate.Host = host
	p.cfg.IGate.Port = port
}

func (p *parser) handleIGLogin(args []string) {
	if len(args) < 2 {
		p.warnf("IGLOGIN: expected \"callsign passcode\", ignoring")
		return
	}
	p.cfg.HasIGate = true
	p.cfg.IGate.Login = strings.ToUpper(args[0])
	p.cfg.IGate.Passcode = args[1]
}

// handleIGTxVia parses "IGTXVIA channel via1,via2,...".
func (p *parser) handleIGTxVia(args []string) {
	if len(args) < 1 {
		p.warnf("IGTXVIA: missing channel, ignoring")
		return
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		p.warnf("IGTXVIA: invalid channel %q, ignoring", args[0])
		return
	}
	p.cfg.IGate.TXChan = ch
	if len(args) < 2 {
		return
	}
	var via []ax25.Address
	for _, s := range strings.Split(args[1], ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		a, err := ax25.ParseAddress(strings.ToUpper(s))
		if err != nil {
			p.warnf("IGTXVIA: invalid via address %q, skipping", s)
			continue
		}
		via = append(via, a)
	}
	p.cfg.IGate.TXVia = via
}

// handleIGFilter parses "IGFILTER RF>IS|IS>RF filter-expr".
func (p *parser) handleIGFilter(args []string) {
	if len(args) < 2 {
		p.warnf("IGFILTER: expected \"direction filter-expr\", ignoring")
		return
	}
	dir := strings.ToUpper(args[0])
	expr := strings.Join(args[1:], " ")
	p.cfg.IGFilters[dir] = expr
	switch dir {
	case "RF>IS":
		p.cfg.IGate.RFToISFilter = expr
	case "IS>RF":
		p.cfg.IGate.ISToRFFilter = expr
	default:
		p.warnf("IGFILTER: unrecognized direction %q, expected RF>IS or IS>RF", args[0])
	}
}

func (p *parser) handleIGTxLimit(args []string) {
	if len(args) < 2 {
		p.warnf("IGTXLIMIT: expected \"limit1 limit5\", ignoring")
		return
	}
	l1, err1 := strconv.Atoi(args[0])
	l5, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		p.warnf("IGTXLIMIT: invalid limits, ignoring")
		return
	}
	p.cfg.IGate.TxLimit1 = l1
	p.cfg.IGate.TxLimit5 = l5
}

func (p *parser) handleSatgate(args []string) {
	p.cfg.IGate.SatgateEnabled = true
	if len(args) == 0 {
		return
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil {
		p.warnf("SATGATE: invalid delay %q, using default", args[0])
		return
	}
	p.cfg.IGate.SatgateDelay = time.Duration(secs) * time.Second
}

// handleSmartBeacon parses "SMARTBEACON fast_speed fast_rate slow_speed
// slow_rate turn_time turn_angle turn_slope" — mph, seconds, seconds,
// degrees, degrees*mph respectively, per spec §3's SmartBeaconing config
// tuple and src/config.go's SMARTBEACONING handler.
func (p *parser) handleSmartBeacon(args []string) {
	if len(args) < 7 {
		p.warnf("SMARTBEACON: expected 7 parameters, ignoring")
		return
	}
	vals := make([]float64, 7)
	for i, a := range args[:7] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			p.warnf("SMARTBEACON: invalid parameter %q, ignoring entire directive", a)
			return
		}
		vals[i] = v
	}
	p.cfg.SmartBeacon = beacon.SmartBeacon{
		Enabled:      true,
		FastSpeedMPH: vals[0],
		FastRate:     time.Duration(vals[1]) * time.Second,
		SlowSpeedMPH: vals[2],
		SlowRate:     time.Duration(vals[3]) * time.Second,
		TurnTime:     time.Duration(vals[4]) * time.Second,
		TurnAngleDeg: vals[5],
		TurnSlope:    vals[6],
	}
}
