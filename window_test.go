package gengate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_AdmitUpToCapacity(t *testing.T) {
	now := time.Now()
	w := newBudgetWindow(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, w.canAdmit(1, 0, now))
		w.record(1, now)
	}
	assert.False(t, w.canAdmit(1, 0, now))
	assert.Equal(t, int64(5), w.used(now))
}

func TestWindow_SlidingSumMatchesEntries(t *testing.T) {
	start := time.Now()
	w := newBudgetWindow(100, time.Minute)

	w.record(10, start)
	w.record(20, start.Add(20*time.Second))
	w.record(30, start.Add(40*time.Second))

	assert.Equal(t, int64(60), w.used(start.Add(45*time.Second)))

	// First entry ages out at start+60s.
	assert.Equal(t, int64(50), w.used(start.Add(61*time.Second)))

	// Second at start+80s.
	assert.Equal(t, int64(30), w.used(start.Add(80*time.Second)))

	// All gone.
	assert.Equal(t, int64(0), w.used(start.Add(2*time.Minute)))
}

func TestWindow_EvictionAtExactBoundary(t *testing.T) {
	start := time.Now()
	w := newBudgetWindow(1, time.Minute)

	w.record(1, start)

	// An entry is evicted once its age reaches the window duration.
	assert.False(t, w.canAdmit(1, 0, start.Add(59*time.Second)))
	assert.True(t, w.canAdmit(1, 0, start.Add(time.Minute)))
}

func TestWindow_TimeUntilAdmit(t *testing.T) {
	start := time.Now()
	w := newBudgetWindow(3, time.Minute)

	w.record(1, start)
	w.record(1, start.Add(10*time.Second))
	w.record(1, start.Add(20*time.Second))

	at := start.Add(30 * time.Second)

	// Already admissible → zero.
	w2 := newBudgetWindow(10, time.Minute)
	assert.Equal(t, time.Duration(0), w2.timeUntilAdmit(1, 0, at))

	// One unit frees when the oldest entry expires at start+60s.
	assert.Equal(t, 30*time.Second, w.timeUntilAdmit(1, 0, at))

	// Two units need the second entry gone too.
	assert.Equal(t, 40*time.Second, w.timeUntilAdmit(2, 0, at))
}

func TestWindow_TimeUntilAdmitHeldOnly(t *testing.T) {
	now := time.Now()
	w := newBudgetWindow(5, time.Minute)

	// Capacity fully held by pending usage with no entries to expire:
	// the wait falls back to the full window duration.
	assert.Equal(t, time.Minute, w.timeUntilAdmit(1, 5, now))
}

func TestWindow_RecordOverageStillCounted(t *testing.T) {
	now := time.Now()
	w := newBudgetWindow(10, time.Minute)

	// Actual usage above capacity is recorded as-is and blocks future
	// admissions until it ages out.
	w.record(15, now)
	assert.Equal(t, int64(15), w.used(now))
	assert.False(t, w.canAdmit(1, 0, now))
}
