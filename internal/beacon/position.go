package beacon

import (
	"fmt"
	"math"
	"strings"
)

// unknownValue mirrors direwolf's G_UNKNOWN sentinel for an int field with
// no natural invalid value of its own (course, altitude).
const unknownValue = -1

// latToStr renders lat as APRS uncompressed "DDMM.mmN", blanking the
// least significant ambiguity digits per the APRS Protocol Reference
// (1-4; above 4 is treated as 4, 0 or below as no ambiguity).
// Grounded on encode_aprs.go's normal_position/latitude_to_str.
func latToStr(lat float64, ambiguity int) string {
	hemi := byte('N')
	if lat < 0 {
		hemi = 'S'
		lat = -lat
	}
	deg := int(lat)
	min := (lat - float64(deg)) * 60
	s := fmt.Sprintf("%02d%05.2f", deg, min)
	s = blankAmbiguity(s, ambiguity)
	return s + string(hemi)
}

// lonToStr renders lon as APRS uncompressed "DDDMM.mmW".
func lonToStr(lon float64, ambiguity int) string {
	hemi := byte('E')
	if lon < 0 {
		hemi = 'W'
		lon = -lon
	}
	deg := int(lon)
	min := (lon - float64(deg)) * 60
	s := fmt.Sprintf("%03d%05.2f", deg, min)
	s = blankAmbiguity(s, ambiguity)
	return s + string(hemi)
}

// blankAmbiguity overwrites the rightmost digits of a "DDMM.mm"-shaped
// position string with spaces, skipping the decimal point, for ambiguity
// 0 (none) through 4 (whole degrees only).
func blankAmbiguity(s string, ambiguity int) string {
	if ambiguity <= 0 {
		return s
	}
	if ambiguity > 4 {
		ambiguity = 4
	}
	b := []byte(s)
	blanked := 0
	for i := len(b) - 1; i >= 0 && blanked < ambiguity; i-- {
		if b[i] == '.' {
			continue
		}
		b[i] = ' '
		blanked++
	}
	return string(b)
}

// normalPosition builds the position+symbol fields common to position and
// object reports: lat, symbol-table id, lon, symbol code.
func normalPosition(symtab, symbol byte, lat, lon float64, ambiguity int) string {
	return latToStr(lat, ambiguity) + string(symtab) + lonToStr(lon, ambiguity) + string(symbol)
}

// cseSpdExtension appends the course/speed data extension ("ddd/sss"),
// course in [1,360] (360 for due north, 0 meaning unknown) and speed in
// knots, rounded. Grounded on cse_spd_data_extension.
func cseSpdExtension(course, speedKnots int) string {
	c := course
	if c < 0 || c > 360 {
		c = 0
	}
	s := speedKnots
	if s < 0 {
		s = 0
	}
	if s > 999 {
		s = 999
	}
	return fmt.Sprintf("%03d/%03d", c, s)
}

// phgExtension appends the power/height/gain/directivity extension.
// Grounded on phg_data_extension; power/height/gain are encoded against
// the APRS PHG code tables rather than transmitted directly.
func phgExtension(powerWatts, heightFt, gainDB int, dir string) string {
	p := phgCode(powerWatts, []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81})
	h := phgCode(heightFt, []int{10, 20, 40, 80, 160, 320, 640, 1280, 2560, 5120})
	g := gainDB
	if g < 0 {
		g = 0
	}
	if g > 9 {
		g = 9
	}
	d := directivityCode(dir)
	return fmt.Sprintf("PHG%d%d%d%d", p, h, g, d)
}

// phgCode finds the largest table index whose threshold does not exceed
// value, i.e. the nearest code that does not overstate capability.
func phgCode(value int, thresholds []int) int {
	code := 0
	for i, t := range thresholds {
		if value >= t {
			code = i
		}
	}
	return code
}

func directivityCode(dir string) int {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "NE":
		return 1
	case "E":
		return 2
	case "SE":
		return 3
	case "S":
		return 4
	case "SW":
		return 5
	case "W":
		return 6
	case "NW":
		return 7
	case "N":
		return 8
	default:
		return 0 // omni
	}
}

// frequencySpec appends the optional voice-repeater frequency/tone/offset
// annex, e.g. "146.940MHz T100 +060". Grounded on frequency_spec.
func frequencySpec(freqMHz, toneHz, offsetMHz float64) string {
	if freqMHz == 0 {
		return ""
	}
	s := fmt.Sprintf("%.3fMHz", freqMHz)
	if toneHz > 0 {
		s += fmt.Sprintf(" T%03.0f", toneHz)
	}
	if offsetMHz != 0 {
		sign := "+"
		if offsetMHz < 0 {
			sign = "-"
		}
		s += fmt.Sprintf(" %s%03.0f", sign, math.Abs(offsetMHz)*100)
	}
	return s
}

// positionParams is the shared field set between position and object
// reports.
type positionParams struct {
	Messaging bool
	Lat, Lon  float64
	Ambiguity int
	AltFt     int // unknownValue if not to be sent
	SymTable  byte
	Symbol    byte
	PowerW    int
	HeightFt  int
	GainDB    int
	Dir       string
	Course    int // unknownValue if not to be sent
	SpeedKts  int
	FreqMHz   float64
	ToneHz    float64
	OffsetMHz float64
	Comment   string
}

// encodePosition builds the information field of a position report (DTI
// '!' or '=' when Messaging is set). Compressed-format encoding is not
// implemented (see DESIGN.md); only the uncompressed form is produced.
// Grounded on encode_aprs.go's encode_position.
func encodePosition(p positionParams) string {
	dti := byte('!')
	if p.Messaging {
		dti = '='
	}

	var b strings.Builder
	b.WriteByte(dti)
	b.WriteString(normalPosition(p.SymTable, p.Symbol, p.Lat, p.Lon, p.Ambiguity))

	switch {
	case p.Course != unknownValue || p.SpeedKts > 0:
		b.WriteString(cseSpdExtension(p.Course, p.SpeedKts))
	case p.PowerW > 0 || p.HeightFt > 0 || p.GainDB > 0:
		b.WriteString(phgExtension(p.PowerW, p.HeightFt, p.GainDB, p.Dir))
	}

	if fs := frequencySpec(p.FreqMHz, p.ToneHz, p.OffsetMHz); fs != "" {
		b.WriteString(fs)
	}

	if p.AltFt != unknownValue {
		alt := p.AltFt
		if alt < -99999 {
			alt = -99999
		}
		if alt > 999999 {
			alt = 999999
		}
		fmt.Fprintf(&b, "/A=%06d", alt)
	}

	b.WriteString(p.Comment)
	return b.String()
}

// encodeObject builds the information field of an object report (DTI
// ';', fixed 9-char name field, live/killed flag, "111111z"-style
// timeless marker since timestamped objects are not produced here).
// Grounded on encode_aprs.go's encode_object.
func encodeObject(name string, p positionParams) string {
	if len(name) > 9 {
		name = name[:9]
	}
	for len(name) < 9 {
		name += " "
	}

	var b strings.Builder
	b.WriteByte(';')
	b.WriteString(name)
	b.WriteByte('*') // live, never killed
	b.WriteString("111111z")
	b.WriteString(normalPosition(p.SymTable, p.Symbol, p.Lat, p.Lon, p.Ambiguity))

	switch {
	case p.Course != unknownValue || p.SpeedKts > 0:
		b.WriteString(cseSpdExtension(p.Course, p.SpeedKts))
	case p.PowerW > 0 || p.HeightFt > 0 || p.GainDB > 0:
		b.WriteString(phgExtension(p.PowerW, p.HeightFt, p.GainDB, p.Dir))
	}
	b.WriteString(p.Comment)
	return b.String()
}
