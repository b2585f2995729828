package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestWeightLimiter_AddWithinWindow(t *testing.T) {
	clock := newClock()
	l := NewWeightLimiter(10, 60*time.Second, WithClock(clock.Now))

	assert.True(t, l.Add(5))
	assert.Equal(t, 5, l.Consumed())

	assert.False(t, l.Add(10))
	assert.Equal(t, 5, l.Consumed(), "rejected add must not mutate consumed")

	assert.True(t, l.Add(5))
	assert.Equal(t, 10, l.Consumed())

	assert.False(t, l.Add(1))
}

func TestWeightLimiter_LazyWindowReset(t *testing.T) {
	clock := newClock()
	l := NewWeightLimiter(10, 60*time.Second, WithClock(clock.Now))

	require.True(t, l.Add(10))

	// Exactly one window later the window has not yet elapsed.
	clock.Advance(60 * time.Second)
	assert.False(t, l.Add(1))

	clock.Advance(time.Second)
	assert.True(t, l.Add(1))
	assert.Equal(t, 1, l.Consumed())
}

func TestWeightLimiter_ResetIsLazy(t *testing.T) {
	clock := newClock()
	l := NewWeightLimiter(10, time.Second, WithClock(clock.Now))

	require.True(t, l.Add(7))
	clock.Advance(5 * time.Second)

	// No Add since the window elapsed, so nothing was reset yet.
	assert.Equal(t, 7, l.Consumed())
}

func TestWeightLimiter_Sub(t *testing.T) {
	clock := newClock()
	l := NewWeightLimiter(10, time.Minute, WithClock(clock.Now))
	require.True(t, l.Add(4))

	l.Sub(5)
	assert.Equal(t, 4, l.Consumed(), "over-subtraction is a no-op")

	l.Sub(4)
	assert.Equal(t, 4, l.Consumed(), "subtracting everything is a no-op")

	l.Sub(1)
	assert.Equal(t, 3, l.Consumed())
}

func TestWeightLimiter_ConcurrentAddNeverExceedsLimit(t *testing.T) {
	l := NewWeightLimiter(100, time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Add(1) {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, admitted)
	assert.Equal(t, 100, l.Consumed())
}
