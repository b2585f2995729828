package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedup(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("a"), "expired entries are accepted again")

	d.Cleanup()
	assert.Equal(t, 1, d.Len(), "b expired, a was refreshed")

	d.Forget("a")
	assert.False(t, d.IsDuplicate("a"))
}

func TestDedup_ZeroTTLDisables(t *testing.T) {
	d := NewDedup(0)
	assert.False(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("a"))
	assert.Equal(t, 0, d.Len())
}

func TestDedup_Remember(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	d.Remember("recent", now.Add(-10*time.Second))
	d.Remember("expired", now.Add(-time.Minute))
	assert.Equal(t, 1, d.Len())
	assert.True(t, d.IsDuplicate("recent"))
	assert.False(t, d.IsDuplicate("expired"))

	// An older sighting does not shorten a newer one.
	d.Remember("recent", now.Add(-50*time.Second))
	now = now.Add(30 * time.Second)
	assert.True(t, d.IsDuplicate("recent"))
}
