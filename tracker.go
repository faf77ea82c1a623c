package gengate

import (
	"time"

	"github.com/google/uuid"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
)

// Reservation is a provisional claim against an endpoint's budgets,
// created before a call and settled (committed or released) after.
type Reservation struct {
	ID              string
	Endpoint        string
	EstimatedTokens int64
	CreatedAt       time.Time
}

// dimensionBudget pairs one budget window with the pending total held
// against it by open reservations.
type dimensionBudget struct {
	dim     Dimension
	window  *budgetWindow
	pending int64
}

// costFor maps a token estimate onto a dimension's unit: request
// dimensions always cost one unit per call, the token dimension costs
// the estimate itself.
func costFor(dim Dimension, tokens int64) int64 {
	if dim == DimTokensPerMinute {
		return tokens
	}
	return 1
}

// tracker owns the budget windows and pending reservations for one
// endpoint. Admission is the conjunction of all configured dimensions:
// committed + pending + requested must fit every window.
//
// Not safe for concurrent use; the Limiter serializes access per
// endpoint.
type tracker struct {
	endpoint     string
	dims         []*dimensionBudget
	open         map[string]Reservation
	backoffUntil time.Time
	now          func() time.Time
}

func newTracker(cfg EndpointConfig, now func() time.Time) *tracker {
	t := &tracker{
		endpoint: cfg.Name,
		open:     make(map[string]Reservation),
		now:      now,
	}
	if cfg.RequestsPerMinute > 0 {
		t.dims = append(t.dims, &dimensionBudget{
			dim:    DimRequestsPerMinute,
			window: newBudgetWindow(cfg.RequestsPerMinute, minuteWindow),
		})
	}
	if cfg.TokensPerMinute > 0 {
		t.dims = append(t.dims, &dimensionBudget{
			dim:    DimTokensPerMinute,
			window: newBudgetWindow(cfg.TokensPerMinute, minuteWindow),
		})
	}
	if cfg.RequestsPerDay > 0 {
		t.dims = append(t.dims, &dimensionBudget{
			dim:    DimRequestsPerDay,
			window: newBudgetWindow(cfg.RequestsPerDay, dayWindow),
		})
	}
	return t
}

// reserve checks admission on every dimension and, if all admit,
// records the estimate into the pending totals. On denial it returns a
// WouldExceedQuotaError carrying per-dimension waits so the caller can
// decide whether to wait or switch endpoints.
func (t *tracker) reserve(tokens int64) (Reservation, *WouldExceedQuotaError) {
	now := t.now()

	if wErr := t.denial(tokens, now); wErr != nil {
		return Reservation{}, wErr
	}

	res := Reservation{
		ID:              uuid.New().String(),
		Endpoint:        t.endpoint,
		EstimatedTokens: tokens,
		CreatedAt:       now,
	}
	for _, d := range t.dims {
		d.pending += costFor(d.dim, tokens)
	}
	t.open[res.ID] = res
	return res, nil
}

// denial returns nil when the estimate is admissible on every
// dimension and no backoff is in force; otherwise a
// WouldExceedQuotaError with the per-dimension waits.
func (t *tracker) denial(tokens int64, now time.Time) *WouldExceedQuotaError {
	denied := false
	waits := make(map[Dimension]time.Duration, len(t.dims))
	for _, d := range t.dims {
		units := costFor(d.dim, tokens)
		if !d.window.canAdmit(units, d.pending, now) {
			denied = true
		}
		waits[d.dim] = d.window.timeUntilAdmit(units, d.pending, now)
	}

	var backoff time.Duration
	if t.backoffUntil.After(now) {
		backoff = t.backoffUntil.Sub(now)
		denied = true
	}

	if !denied {
		return nil
	}
	return &WouldExceedQuotaError{Endpoint: t.endpoint, Waits: waits, Backoff: backoff}
}

// commit settles a reservation with the actual cost: the pending
// estimate is refunded and the actual usage recorded. Actual tokens may
// exceed the estimate; the overage is recorded as-is and only affects
// future admissions.
func (t *tracker) commit(res Reservation, actualTokens int64) error {
	held, ok := t.open[res.ID]
	if !ok {
		return &ReservationError{Op: "commit", ID: res.ID, Endpoint: t.endpoint}
	}
	delete(t.open, res.ID)

	now := t.now()
	for _, d := range t.dims {
		d.pending -= costFor(d.dim, held.EstimatedTokens)
		d.window.record(costFor(d.dim, actualTokens), now)
	}
	return nil
}

// release settles a reservation with zero cost recorded, for calls that
// never happened or were abandoned.
func (t *tracker) release(res Reservation) error {
	held, ok := t.open[res.ID]
	if !ok {
		return &ReservationError{Op: "release", ID: res.ID, Endpoint: t.endpoint}
	}
	delete(t.open, res.ID)

	for _, d := range t.dims {
		d.pending -= costFor(d.dim, held.EstimatedTokens)
	}
	return nil
}

// timeUntilAdmit is the maximum wait across dimensions (and any
// registered backoff) for the given estimate. Pure query apart from
// lazy eviction.
func (t *tracker) timeUntilAdmit(tokens int64) time.Duration {
	now := t.now()

	var wait time.Duration
	for _, d := range t.dims {
		if w := d.window.timeUntilAdmit(costFor(d.dim, tokens), d.pending, now); w > wait {
			wait = w
		}
	}
	if t.backoffUntil.After(now) {
		if w := t.backoffUntil.Sub(now); w > wait {
			wait = w
		}
	}
	return wait
}

// registerBackoff holds the endpoint inadmissible for d, typically from
// an upstream retry-after hint. A shorter backoff never truncates a
// longer one already in place.
func (t *tracker) registerBackoff(d time.Duration) {
	until := t.now().Add(d)
	if until.After(t.backoffUntil) {
		t.backoffUntil = until
	}
}

// sweepAbandoned force-releases reservations older than grace and
// returns them. This bounds quota leakage from callers that crashed
// between reserve and commit.
func (t *tracker) sweepAbandoned(grace time.Duration) []Reservation {
	now := t.now()
	var swept []Reservation
	for id, res := range t.open {
		if now.Sub(res.CreatedAt) >= grace {
			swept = append(swept, res)
			delete(t.open, id)
			for _, d := range t.dims {
				d.pending -= costFor(d.dim, res.EstimatedTokens)
			}
		}
	}
	return swept
}

func (t *tracker) snapshot() EndpointSnapshot {
	now := t.now()

	snap := EndpointSnapshot{Endpoint: t.endpoint}
	if t.backoffUntil.After(now) {
		snap.Backoff = t.backoffUntil.Sub(now)
	}
	for _, d := range t.dims {
		snap.Dimensions = append(snap.Dimensions, DimensionSnapshot{
			Dimension: d.dim,
			Capacity:  d.window.capacity,
			Used:      d.window.used(now),
			Pending:   d.pending,
			NextFree:  d.window.nextExpiry(now),
		})
	}
	return snap
}

// EndpointSnapshot is a read-only view of one endpoint's quota state.
type EndpointSnapshot struct {
	Endpoint   string
	Backoff    time.Duration
	Dimensions []DimensionSnapshot
}

// DimensionSnapshot reports one budget dimension: configured capacity,
// committed usage in the window, pending reservations, and how long
// until the oldest committed unit frees.
type DimensionSnapshot struct {
	Dimension Dimension
	Capacity  int64
	Used      int64
	Pending   int64
	NextFree  time.Duration
}
