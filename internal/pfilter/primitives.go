package pfilter

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/golang/geo/s2"
)

// filtBODGU implements the shared "budlist/object/digipeater/group/unproto"
// text-matching rule: spec's b/, o/, d/, v/, g/, u/ all look for an exact
// match (or a prefix match when the pattern ends in a single trailing `*`)
// against one candidate string, among a `sep`-delimited list of
// alternatives taken from the filter spec itself. Grounded on
// src/pfilter.go's filt_bodgu.
func filtBODGU(spec string, candidate string) bool {
	if len(spec) < 2 {
		return false
	}
	sep := spec[1]
	parts := strings.Split(spec[2:], string(sep))
	for _, part := range parts {
		if idx := strings.IndexByte(part, '*'); idx >= 0 {
			if idx == len(part)-1 && strings.HasPrefix(candidate, part[:idx]) {
				return true
			}
			continue
		}
		if part == candidate {
			return true
		}
	}
	return false
}

// filtType implements t/TYPES: packet type classification, where TYPES is
// any combination of p o i m q c s t u h w n (spec §4.7 table).
func filtType(spec string, d *Decoded) int {
	if len(spec) < 3 {
		return -1
	}
	for _, f := range spec[2:] {
		switch f {
		case 'p':
			if d.Type == TypePosition {
				return 1
			}
		case 'o':
			if d.Type == TypeObject {
				return 1
			}
		case 'i':
			if d.Type == TypeItem {
				return 1
			}
		case 'm':
			if d.Type == TypeMessage {
				return 1
			}
		case 'q':
			if d.Type == TypeQuery {
				return 1
			}
		case 'c':
			if d.Type == TypeCapabilities {
				return 1
			}
		case 's':
			if d.Type == TypeStatus {
				return 1
			}
		case 't':
			if d.Type == TypeTelemetry {
				return 1
			}
		case 'u':
			if d.Type == TypeUserDefined {
				return 1
			}
		case 'h':
			if d.HasThirdPartyHeader {
				return 1
			}
		case 'w':
			if d.Type == TypeWeather {
				return 1
			}
			if (d.Type == TypePosition || d.Type == TypeObject) && d.SymbolCode == '_' {
				return 1
			}
		case 'n':
			if d.Type == TypeNWS {
				return 1
			}
		default:
			return -1
		}
	}
	return 0
}

// filtRange implements r/lat/lon/km: is the packet's position within km of
// the given point, using great-circle distance via S2.
func filtRange(spec string, d *Decoded) int {
	if math.IsNaN(d.Lat) || math.IsNaN(d.Lon) {
		return 0
	}
	sep := string(spec[1])
	parts := strings.Split(spec[2:], sep)
	if len(parts) != 3 {
		return -1
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return -1
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return -1
	}
	maxKm, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return -1
	}

	here := s2.LatLngFromDegrees(lat, lon)
	there := s2.LatLngFromDegrees(d.Lat, d.Lon)
	km := float64(here.Distance(there)) * earthRadiusKm
	if km <= maxKm {
		return 1
	}
	return 0
}

// filtSymbol implements s/PRI/ALT/OVR, matching an APRS symbol against a
// set of primary-table characters, alternate-table characters, and
// (optionally) required overlay characters. Grounded on src/pfilter.go's
// filt_s.
func filtSymbol(spec string, d *Decoded) int {
	sep := string(spec[1])
	parts := strings.Split(spec[2:], sep)
	if len(parts) == 0 || len(parts) > 3 {
		return -1
	}

	unacceptable := func(r rune) bool {
		return !unicode.IsPrint(r) || r == '|' || r == '~'
	}
	pri := parts[0]
	if strings.ContainsFunc(pri, unacceptable) {
		return -1
	}

	var alt, over string
	haveOver := false
	if len(parts) > 1 {
		alt = parts[1]
		if len(alt) == 0 {
			return -1
		}
		if strings.ContainsFunc(alt, unacceptable) {
			return -1
		}
		if len(parts) > 2 {
			over = parts[2]
			haveOver = true
			if strings.ContainsFunc(over, func(r rune) bool {
				return !(unicode.IsUpper(r) || unicode.IsDigit(r) || r == '\\')
			}) {
				return -1
			}
		}
	} else if len(pri) == 0 {
		return -1
	}

	if d.SymbolCode == 0 || d.SymbolCode == ' ' {
		return 0
	}

	if d.SymbolTable == '/' {
		if len(pri) > 0 && strings.ContainsRune(pri, rune(d.SymbolCode)) {
			return 1
		}
	}

	if alt == "" {
		return 0
	}
	if !strings.ContainsRune(alt, rune(d.SymbolCode)) {
		return 0
	}

	if haveOver {
		if len(over) > 0 {
			if strings.ContainsRune(over, rune(d.SymbolTable)) {
				return 1
			}
			return 0
		}
		if d.SymbolTable == '\\' {
			return 1
		}
		return 0
	}

	if d.SymbolTable != '/' {
		return 1
	}
	return 0
}

// filtIGateMessaging implements i/minutes[/hops[/lat/lon/km]]: a "message"
// is passed from IS to RF only if the addressee has not already been heard
// recently nearby; whether the sender has been heard on RF is not checked.
// Grounded on
// src/pfilter.go's filt_i, minus the mheard-absent case where it always
// denies (the release-1.7 recommendation to use only the time limit still
// requires a real mheard table, which this evaluator takes by interface).
func filtIGateMessaging(spec string, d *Decoded, e *Evaluator) int {
	sep := string(spec[1])
	parts := strings.Split(spec[2:], sep)

	if len(parts) == 0 || parts[0] == "" {
		return -1
	}
	heardMinutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return -1
	}

	maxHops := e.DefaultMaxHops
	var lat, lon, km float64 = math.NaN(), math.NaN(), math.NaN()

	if len(parts) > 1 {
		if parts[1] == "" {
			return -1
		}
		maxHops, err = strconv.Atoi(parts[1])
		if err != nil {
			return -1
		}
		if len(parts) > 2 && parts[2] != "" {
			if lat, err = strconv.ParseFloat(parts[2], 64); err != nil {
				return -1
			}
			if len(parts) < 4 || parts[3] == "" {
				return -1
			}
			if lon, err = strconv.ParseFloat(parts[3], 64); err != nil {
				return -1
			}
			if len(parts) < 5 || parts[4] == "" {
				return -1
			}
			if km, err = strconv.ParseFloat(parts[4], 64); err != nil {
				return -1
			}
		}
		if len(parts) > 5 {
			return -1
		}
	}

	if d.Type != TypeMessage {
		return 0
	}
	if e.Heard == nil {
		return 0
	}

	if e.Heard.WasRecentlyNearby(d.Addressee, heardMinutes, maxHops, lat, lon, km) {
		return 0
	}
	return 1
}
