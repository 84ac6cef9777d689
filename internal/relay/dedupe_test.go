// ABOUTME: Tests for the replay cache: first-seen semantics, TTL expiry,
// ABOUTME: and size-bounded eviction

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplayCache_FirstSeen(t *testing.T) {
	c := newReplayCache(time.Minute, 16)
	defer c.Close()

	assert.False(t, c.CheckAndMark("MSG-1"))
	assert.True(t, c.CheckAndMark("MSG-1"))
	assert.False(t, c.CheckAndMark("MSG-2"))
}

func TestReplayCache_TTLExpiry(t *testing.T) {
	c := newReplayCache(10*time.Millisecond, 16)
	defer c.Close()

	assert.False(t, c.CheckAndMark("MSG-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.CheckAndMark("MSG-1"))
	assert.True(t, c.CheckAndMark("MSG-1"))
}

func TestReplayCache_EvictsOldest(t *testing.T) {
	c := newReplayCache(time.Minute, 2)
	defer c.Close()

	assert.False(t, c.CheckAndMark("MSG-1"))
	assert.False(t, c.CheckAndMark("MSG-2"))
	assert.False(t, c.CheckAndMark("MSG-3")) // evicts MSG-1

	assert.False(t, c.CheckAndMark("MSG-1"))
	assert.True(t, c.CheckAndMark("MSG-3"))
}

func TestReplayCache_CloseIdempotent(t *testing.T) {
	c := newReplayCache(time.Minute, 16)
	c.Close()
	c.Close()
}
