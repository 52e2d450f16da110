package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenFalseBeforeRemember(t *testing.T) {
	r := New(25, 30*time.Second)
	assert.False(t, r.Seen(1234, 0))
}

func TestSeenTrueAfterRemember(t *testing.T) {
	r := New(25, 30*time.Second)
	r.Remember(1234, 0)
	assert.True(t, r.Seen(1234, 0))
}

func TestSeenFalseOnChannelMismatch(t *testing.T) {
	r := New(25, 30*time.Second)
	r.Remember(1234, 0)
	assert.False(t, r.Seen(1234, 1))
}

func TestSeenFalseAfterWindowExpires(t *testing.T) {
	r := New(25, 10*time.Millisecond)
	r.Remember(1234, 0)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, r.Seen(1234, 0))
}

func TestCapacityOverwritesOldestEntry(t *testing.T) {
	r := New(2, time.Minute)
	r.Remember(1, 0)
	r.Remember(2, 0)
	r.Remember(3, 0) // overwrites the slot holding key 1

	assert.False(t, r.Seen(1, 0))
	assert.True(t, r.Seen(2, 0))
	assert.True(t, r.Seen(3, 0))
}
