package beacon

import "time"

// Fix is one GPS sample, shaped after dwgps_info_t: fields beyond Lat/Lon
// are reported only when the receiver's fix quality actually provides
// them. A 2D fix carries Course/Speed but no altitude; a 3D fix carries
// all three.
type Fix struct {
	Valid     bool
	Lat, Lon  float64
	HasCourse bool
	CourseDeg float64 // 0-360, true heading
	HasSpeed  bool
	SpeedKts  float64
	HasAlt    bool
	AltMeters float64
	Time      time.Time
}

// Reader supplies the current GPS fix to the scheduler. Implementations
// wrap whatever NMEA/gpsd source a tracker beacon is configured against;
// tests supply a fixed or scripted Fix directly.
type Reader interface {
	Read() Fix
}

// ReaderFunc adapts a plain function to Reader.
type ReaderFunc func() Fix

func (f ReaderFunc) Read() Fix { return f() }

// StaticReader always returns the same fix, useful for CBEACON/PBEACON
// test setups and for a tracker beacon pinned to a fixed location.
type StaticReader Fix

func (s StaticReader) Read() Fix { return Fix(s) }
