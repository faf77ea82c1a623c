package gengate

import "time"

// windowEntry is one recorded unit of usage.
type windowEntry struct {
	at    time.Time
	units int64
}

// budgetWindow is a strict sliding-window counter: usage is the exact
// sum of entries recorded within the last duration. Entries are kept in
// insertion order (chronological) and evicted lazily on every query, so
// a burst at a window boundary is still bounded by the rolling sum.
//
// Not safe for concurrent use; the owning tracker serializes access.
type budgetWindow struct {
	capacity int64
	duration time.Duration
	entries  []windowEntry
	sum      int64
}

func newBudgetWindow(capacity int64, duration time.Duration) *budgetWindow {
	return &budgetWindow{capacity: capacity, duration: duration}
}

// evict drops entries whose age has reached the window duration.
func (w *budgetWindow) evict(now time.Time) {
	i := 0
	for i < len(w.entries) && now.Sub(w.entries[i].at) >= w.duration {
		w.sum -= w.entries[i].units
		i++
	}
	if i > 0 {
		w.entries = w.entries[:copy(w.entries, w.entries[i:])]
	}
}

// canAdmit reports whether units more can be admitted on top of the
// recorded sum and held (pending, not yet entry-backed) usage.
func (w *budgetWindow) canAdmit(units, held int64, now time.Time) bool {
	w.evict(now)
	return w.sum+held+units <= w.capacity
}

// record appends usage. Callers must have established admission via
// canAdmit under the same lock; record itself never rejects, so actual
// usage exceeding an earlier estimate is still counted in full.
func (w *budgetWindow) record(units int64, now time.Time) {
	if units <= 0 {
		return
	}
	w.entries = append(w.entries, windowEntry{at: now, units: units})
	w.sum += units
}

// timeUntilAdmit returns the minimum wait until units can be admitted,
// or zero if admission is already possible. When the shortfall cannot
// be covered by expiring entries (held usage does not age out), the
// full window duration is returned as a conservative bound; waiters are
// woken early by releases.
func (w *budgetWindow) timeUntilAdmit(units, held int64, now time.Time) time.Duration {
	w.evict(now)

	need := w.sum + held + units - w.capacity
	if need <= 0 {
		return 0
	}

	var freed int64
	for _, e := range w.entries {
		freed += e.units
		if freed >= need {
			return e.at.Add(w.duration).Sub(now)
		}
	}
	return w.duration
}

// used returns the current in-window sum after eviction.
func (w *budgetWindow) used(now time.Time) int64 {
	w.evict(now)
	return w.sum
}

// nextExpiry returns how long until the oldest entry leaves the window,
// or zero if the window is empty.
func (w *budgetWindow) nextExpiry(now time.Time) time.Duration {
	w.evict(now)
	if len(w.entries) == 0 {
		return 0
	}
	return w.entries[0].at.Add(w.duration).Sub(now)
}
