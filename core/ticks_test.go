package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestGetTicks_Monotonic verifies the tick counter tracks a known sleep
// Given: Two tick readings separated by a 100ms sleep
// Then: The second is not smaller and the delta is close to the sleep
func TestGetTicks_Monotonic(t *testing.T) {
	first := GetTicks()
	time.Sleep(100 * time.Millisecond)
	second := GetTicks()

	assert.GreaterOrEqual(t, second, first)
	delta := second - first
	assert.GreaterOrEqual(t, delta, uint64(95))
	assert.Less(t, delta, uint64(500))
}

func TestGetTicks_NeverDecreases(t *testing.T) {
	prev := GetTicks()
	for range 10000 {
		now := GetTicks()
		if now < prev {
			t.Fatalf("ticks went backwards: %d -> %d", prev, now)
		}
		prev = now
	}
}

func TestTicksSince(t *testing.T) {
	start := GetTicks()
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, TicksSince(start), uint64(15))
	assert.Equal(t, uint64(0), TicksSince(start+1_000_000))
}

func TestCurrentGoroutineID(t *testing.T) {
	id := currentGoroutineID()
	assert.NotZero(t, id)

	other := make(chan uint64)
	go func() { other <- currentGoroutineID() }()
	assert.NotEqual(t, id, <-other)
}
