package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToBase(t *testing.T) {
	var slept time.Duration
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100})
	td.sleep = func(d time.Duration) { slept = d }

	td.WaitFrom(time.Now())

	assert.Greater(t, slept, 90*time.Millisecond)
	assert.LessOrEqual(t, slept, 100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoSleepWhenAlreadySlow(t *testing.T) {
	called := false
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 50, RandomDelayMs: 10})
	td.sleep = func(time.Duration) { called = true }

	td.WaitFrom(time.Now().Add(-time.Second))

	assert.False(t, called)
}

func TestTimingDelay_WaitFrom_JitterBounded(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})
	for i := 0; i < 20; i++ {
		var slept time.Duration
		td.sleep = func(d time.Duration) { slept = d }
		td.WaitFrom(time.Now())
		assert.Less(t, slept, 150*time.Millisecond)
	}
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var td *TimingDelay
	assert.NotPanics(t, func() { td.WaitFrom(time.Now()) })
}

func TestCryptoRandIntn(t *testing.T) {
	n, err := cryptoRandIntn(0)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 100; i++ {
		n, err := cryptoRandIntn(7)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 7)
	}
}
