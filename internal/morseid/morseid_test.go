package morseid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitsForStringSingleChar(t *testing.T) {
	assert.Equal(t, 1, UnitsForString("E"))
}

func TestUnitsForStringDoubledChar(t *testing.T) {
	assert.Equal(t, 5, UnitsForString("EE"))
}

func TestUnitsForStringWithSpace(t *testing.T) {
	assert.Equal(t, 9, UnitsForString("E E"))
}

func TestUnitsForStringEmpty(t *testing.T) {
	assert.Equal(t, 0, UnitsForString(""))
}

func TestUnitsForStringLowercaseMatchesUppercase(t *testing.T) {
	assert.Equal(t, UnitsForString("CQ"), UnitsForString("cq"))
}

func TestLookupUnknownCharCountsAsOneUnit(t *testing.T) {
	_, ok := lookup('#')
	assert.False(t, ok)
	assert.Equal(t, 1, unitsForChar('#'))
}

func TestMillisPerUnit(t *testing.T) {
	// PARIS standard: 1 WPM = 1200ms per time unit.
	assert.InDelta(t, 1200.0, MillisPerUnit(1), 0.001)
	assert.InDelta(t, 120.0, MillisPerUnit(10), 0.001)
}

func TestSendProducesSamplesAndConsistentDuration(t *testing.T) {
	samples, totalMs := Send("CQ", 20, 8000, 100, 50, 50)
	assert.NotEmpty(t, samples)

	// Total duration should be within a sample's worth of the
	// delay+tone+tail arithmetic: txdelay + tone time + txtail.
	expectedToneMs := float64(UnitsForString("CQ")) * MillisPerUnit(20)
	assert.InDelta(t, 50+expectedToneMs+50, float64(totalMs), 1)

	expectedSamples := int(float64(len(samples)))
	// Sample count should roughly match total duration at the given rate.
	gotMs := float64(expectedSamples) * 1000.0 / 8000.0
	assert.InDelta(t, float64(totalMs), gotMs, 5)
}

func TestSendAmplitudeZeroProducesSilence(t *testing.T) {
	samples, _ := Send("E", 20, 8000, 0, 0, 0)
	for _, s := range samples {
		assert.Equal(t, int16(0), s)
	}
}
