// Package mheard maintains a table of stations heard over the radio or
// relayed from APRS-IS, backing the IGate's "message sender position"
// courtesy posit feature and the `i/` packet-filter primitive. Grounded
// on src/mheard.go.
package mheard

import (
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/golang/geo/s2"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/pfilter"
)

const earthRadiusKm = 6371.0

// Station records what is known about one callsign.
type Station struct {
	Callsign string

	Count       int
	Channel     int
	DigiHops    int
	LastHeardRF time.Time
	LastHeardIS time.Time

	Lat, Lon float64 // math.NaN() if unknown

	// MSP is the number of remaining message-sender-position reports
	// this station's position is allowed to bypass IS->RF filtering for,
	// per spec's IGate §4.5 courtesy posit behavior.
	MSP int
}

// Table is the shared heard-station database, safe for concurrent use by
// the RF receive path and the IGate IS receive thread.
type Table struct {
	mu       sync.Mutex
	stations map[string]*Station
}

// New builds an empty table.
func New() *Table {
	return &Table{stations: make(map[string]*Station)}
}

// SaveRF records or updates an RF sighting of pkt's source address,
// received on channel. Hop count is the number of digipeater addresses
// marked used, reduced by one for each problematic used "WIDEn-0"
// entry left by some digipeaters (src/mheard.go's mheard_save_rf hack).
// If the payload decodes as a position report, the station's last known
// location is updated.
func (t *Table) SaveRF(channel int, pkt *ax25.Packet) {
	source := pkt.Source.Call
	hops := 0
	for _, d := range pkt.Digis {
		if d.H {
			hops++
		}
	}
	if hops > 1 {
		for _, d := range pkt.Digis {
			if d.H && d.SSID == 0 && len(d.Call) == 5 && strings.EqualFold(d.Call[:4], "WIDE") && unicode.IsDigit(rune(d.Call[4])) {
				hops--
			}
		}
	}

	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stations[source]
	if s == nil {
		s = &Station{Callsign: source, Lat: math.NaN(), Lon: math.NaN()}
		t.stations[source] = s
	}

	if s.Count > 0 && hops > s.DigiHops && now.Sub(s.LastHeardRF) < 15*time.Second {
		// Prefer the shorter path heard very recently (e.g. direct, then
		// digipeated moments later); a longer path this soon is probably
		// a slower duplicate, not a genuinely new hop count.
	} else {
		s.Count++
		s.Channel = channel
		s.DigiHops = hops
		s.LastHeardRF = now
	}

	decoded := pfilter.Decode(pkt)
	if decoded.Type == pfilter.TypePosition && !math.IsNaN(decoded.Lat) && !math.IsNaN(decoded.Lon) {
		s.Lat = decoded.Lat
		s.Lon = decoded.Lon
	}
}

// SaveIS records an IGate IS->RF sighting from a TNC2-format line as
// received from the server (trailing CR/LF already stripped). Only the
// source address, taken as the text before '>', is used: IS-sourced
// source addresses are not always valid AX.25 addresses (e.g. a WHO-IS
// server reply), so this deliberately does not go through ax25.ParseTNC2.
func (t *Table) SaveIS(tnc2Line string) {
	source, _, _ := strings.Cut(tnc2Line, ">")

	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stations[source]
	if s == nil {
		s = &Station{Callsign: source, Lat: math.NaN(), Lon: math.NaN()}
		t.stations[source] = s
	}
	s.Count++
	s.LastHeardIS = now
}

// Count reports the number of stations heard directly over RF within
// the last window, with at most maxHops digipeater hops. Used to build
// the DIR_CNT/LOC_CNT/RF_CNT fields of an IGate statistics beacon.
func (t *Table) Count(maxHops int, window time.Duration) int {
	since := time.Now().Add(-window)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, s := range t.stations {
		if !s.LastHeardRF.Before(since) && s.DigiHops <= maxHops {
			n++
		}
	}
	return n
}

// WasRecentlyNearby implements pfilter.HeardLookup for the `i/` filter
// primitive: was callsign heard directly over RF within withinMinutes,
// with at most maxHops digipeater hops, and (if lat/lon/km are all
// finite) within km kilometers of the given point.
func (t *Table) WasRecentlyNearby(callsign string, withinMinutes, maxHops int, lat, lon, km float64) bool {
	t.mu.Lock()
	s := t.stations[callsign]
	t.mu.Unlock()

	if s == nil || s.LastHeardRF.IsZero() {
		return false
	}
	if time.Since(s.LastHeardRF) > time.Duration(withinMinutes)*time.Minute {
		return false
	}
	if s.DigiHops > maxHops {
		return false
	}

	if !math.IsNaN(lat) && !math.IsNaN(lon) && !math.IsNaN(km) && !math.IsNaN(s.Lat) && !math.IsNaN(s.Lon) {
		here := s2.LatLngFromDegrees(s.Lat, s.Lon)
		there := s2.LatLngFromDegrees(lat, lon)
		dist := float64(here.Distance(there)) * earthRadiusKm
		if dist > km {
			return false
		}
	}

	return true
}

var _ pfilter.HeardLookup = (*Table)(nil)

// SetMSP sets the number of message-sender-position reports callsign's
// position is allowed to bypass IS->RF filtering for. A no-op if
// callsign has never been heard.
func (t *Table) SetMSP(callsign string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.stations[callsign]; s != nil {
		s.MSP = n
	}
}

// GetMSP returns callsign's remaining message-sender-position count, or
// 0 if it has never been heard.
func (t *Table) GetMSP(callsign string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.stations[callsign]; s != nil {
		return s.MSP
	}
	return 0
}

// Lookup returns a copy of the station record for callsign, if known.
func (t *Table) Lookup(callsign string) (Station, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.stations[callsign]; s != nil {
		return *s, true
	}
	return Station{}, false
}
