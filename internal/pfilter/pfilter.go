// Package pfilter implements the packet-filter expression engine used by
// the digipeater and the IGate client to decide whether a packet is
// eligible for a given from/to path (spec §4.7). It is a tiny
// recursive-descent evaluator over a handful of single-letter primitives
// combined with `&`, `|`, `!`, and parentheses. Grounded on
// src/pfilter.go's next_token/parse_expr/parse_filter_spec family.
package pfilter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/golang/geo/s2"

	"github.com/kf7qex/gotnc/internal/ax25"
)

const earthRadiusKm = 6371.0

// PacketType is the coarse APRS payload classification a few filter
// primitives key off, a much-reduced stand-in for direwolf's decode_aprs.
type PacketType int

const (
	TypeUnknown PacketType = iota
	TypePosition
	TypeObject
	TypeItem
	TypeMessage
	TypeQuery
	TypeCapabilities
	TypeStatus
	TypeTelemetry
	TypeUserDefined
	TypeWeather
	TypeNWS
)

// Decoded holds the subset of an APRS payload's fields the filter
// primitives in §4.7 need. Unknown coordinates are math.NaN().
type Decoded struct {
	Type                PacketType
	IsMessageLike        bool // message, ack, rej, bulletin, NWS, or directed query -- eligible for g/
	Addressee           string
	Name                string // object/item name
	SymbolTable         byte   // '/' primary, '\\' alternate, 0 if undefined
	SymbolCode          byte   // 0 if undefined
	Lat, Lon            float64
	HasThirdPartyHeader bool
}

// Decode classifies an already-unwrapped APRS payload well enough to drive
// the §4.7 primitives. It is intentionally not a full decode_aprs port:
// only the data-type-indicator dispatch, symbol table/code, object/item
// name, and message addressee are extracted, which is all pfilter itself
// consults.
func Decode(pkt *ax25.Packet) Decoded {
	d := Decoded{Lat: math.NaN(), Lon: math.NaN()}
	info := pkt.Info
	if len(info) == 0 {
		return d
	}

	dti := info[0]
	switch dti {
	case '!', '=':
		d.Type = TypePosition
		parsePosition(&d, info[1:])
	case '/', '@':
		d.Type = TypePosition
		if len(info) > 8 {
			parsePosition(&d, info[8:]) // skip the 7-char timestamp + data type
		}
	case ';':
		d.Type = TypeObject
		if len(info) >= 10 {
			d.Name = strings.TrimSpace(string(info[1:10]))
		}
		if len(info) >= 37 {
			parsePosition(&d, info[18:])
		}
	case ')':
		d.Type = TypeItem
		end := strings.IndexAny(string(info[1:]), "!_")
		if end >= 0 {
			d.Name = string(info[1 : 1+end])
		}
	case ':':
		d.Type = TypeMessage
		d.IsMessageLike = true
		if len(info) >= 10 {
			d.Addressee = strings.TrimSpace(string(info[1:10]))
		}
		body := ""
		if len(info) > 10 {
			body = string(info[11:])
		}
		if strings.HasPrefix(body, "NWS-") || strings.HasPrefix(d.Addressee, "NWS") {
			d.Type = TypeNWS
		}
	case '?':
		d.Type = TypeQuery
		d.IsMessageLike = true
	case '>':
		d.Type = TypeStatus
	case 'T':
		d.Type = TypeTelemetry
	case '<':
		d.Type = TypeCapabilities
	case '}':
		d.HasThirdPartyHeader = true
	}

	if d.Type == TypePosition || d.Type == TypeObject {
		if d.SymbolCode == '_' {
			d.Type = TypeWeather
		}
	}
	return d
}

// parsePosition extracts the uncompressed-format lat/lon and symbol from an
// APRS position body "DDMM.hhN/DDDMM.hhWsym...", tolerating short or
// malformed input by leaving fields at their zero value.
func parsePosition(d *Decoded, body []byte) {
	if len(body) < 19 {
		return
	}
	lat, err := parseUncompressedLat(body[0:8])
	if err != nil {
		return
	}
	table := body[8]
	lon, err := parseUncompressedLon(body[9:18])
	if err != nil {
		return
	}
	sym := body[18]
	d.Lat = lat
	d.Lon = lon
	d.SymbolTable = table
	d.SymbolCode = sym
}

func parseUncompressedLat(b []byte) (float64, error) {
	// "DDMM.hhN" or "DDMM.hhS"
	if len(b) != 8 {
		return 0, fmt.Errorf("pfilter: short latitude field")
	}
	deg, err := strconv.ParseFloat(string(b[0:2]), 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(string(b[2:7]), 64)
	if err != nil {
		return 0, err
	}
	lat := deg + min/60.0
	switch b[7] {
	case 'S', 's':
		lat = -lat
	case 'N', 'n':
	default:
		return 0, fmt.Errorf("pfilter: bad latitude hemisphere %q", b[7])
	}
	return lat, nil
}

func parseUncompressedLon(b []byte) (float64, error) {
	// "DDDMM.hhW" or "DDDMM.hhE"
	if len(b) != 9 {
		return 0, fmt.Errorf("pfilter: short longitude field")
	}
	deg, err := strconv.ParseFloat(string(b[0:3]), 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(string(b[3:8]), 64)
	if err != nil {
		return 0, err
	}
	lon := deg + min/60.0
	switch b[8] {
	case 'W', 'w':
		lon = -lon
	case 'E', 'e':
	default:
		return 0, fmt.Errorf("pfilter: bad longitude hemisphere %q", b[8])
	}
	return lon, nil
}

// HeardLookup answers the i/ filter's "was this callsign heard recently
// nearby" question; internal/mheard implements it.
type HeardLookup interface {
	WasRecentlyNearby(callsign string, withinMinutes, maxHops int, lat, lon, km float64) bool
}

// Evaluator evaluates filter expressions against packets.
type Evaluator struct {
	Heard          HeardLookup
	DefaultMaxHops int
}

// Eval parses and evaluates expr against pkt, returning 1 (permit), 0
// (deny), or -1 (syntax error, treated as deny by the caller). isAPRS
// selects between the full primitive set and the address-only subset
// allowed for connected-mode digipeater filtering (b, d, v, u only).
func (e *Evaluator) Eval(expr string, pkt *ax25.Packet, isAPRS bool) int {
	clean := cleanControlChars(expr)
	p := &parser{
		src:    clean,
		rest:   clean,
		pkt:    pkt,
		isAPRS: isAPRS,
		eval:   e,
	}
	if isAPRS {
		d := Decode(pkt)
		p.decoded = &d
	}
	p.next()

	if p.tokType == tokEOL {
		return 0 // empty filter rejects everything
	}
	result := p.parseExpr()
	if result >= 0 && p.tokType != tokEOL {
		result = -1
	}
	return result
}

func cleanControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
