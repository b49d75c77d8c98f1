// Package ledger tracks session resource budgets with reservations.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded indicates a reservation was refused because it
// would overrun the remaining budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrUnknownReservation indicates a commit or release referenced a
// reservation the ledger has no record of.
var ErrUnknownReservation = errors.New("unknown reservation")

// Status represents the current state of budget consumption.
type Status int

const (
	// StatusOK indicates usage is below the warning threshold.
	StatusOK Status = iota
	// StatusWarning indicates usage is between warning and exhaustion.
	StatusWarning
	// StatusExhausted indicates the budget is fully consumed.
	StatusExhausted
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the fraction of budget at which a
// warning fires.
const DefaultWarningThreshold = 0.80

// Dimension names a budgeted resource.
type Dimension string

const (
	// DimTokens is the session token budget.
	DimTokens Dimension = "tokens"
	// DimActions is the session tool-invocation budget.
	DimActions Dimension = "actions"
	// DimWallClock is the session elapsed-time budget.
	DimWallClock Dimension = "wall_clock"
)

// Warning reports a budget dimension crossing the warning threshold.
// The ledger emits at most one warning per dimension per session.
type Warning struct {
	Dimension Dimension
	Used      int64
	Limit     int64
	Fraction  float64
}

// Reservation is an admitted claim against the token budget. It must
// be settled with Commit or Release exactly once.
type Reservation struct {
	id     int64
	stepID string
	tokens int64
}

// Tokens returns the reserved token amount.
func (r Reservation) Tokens() int64 { return r.tokens }

// StepID returns the step the reservation was made for.
func (r Reservation) StepID() string { return r.stepID }

// Ledger enforces session budgets with reserve-then-commit
// accounting. Before an attempt is dispatched its estimated cost is
// reserved; after it finishes the actual cost is committed and the
// reservation released. A refused reservation changes nothing.
type Ledger struct {
	mu sync.Mutex

	// tokenBudget is the maximum committed plus reserved tokens.
	// Zero means unlimited.
	tokenBudget int64
	// committed is the spend recorded from finished attempts.
	committed int64
	// reserved is the sum of outstanding reservations.
	reserved int64
	// reservations maps reservation ID to its token amount.
	reservations map[int64]Reservation
	// nextID is the next reservation identifier.
	nextID int64
	// actions counts dispatched tool invocations across the session.
	actions int64
	// actionBudget caps tool invocations. Zero means unlimited.
	actionBudget int64

	// warnThreshold is the fraction (0.0-1.0) at which warnings fire.
	warnThreshold float64
	// warned tracks which dimensions have already warned.
	warned map[Dimension]bool

	// wallBudget is the elapsed-time allowance. Zero means unlimited.
	wallBudget time.Duration
	// startedAt is when the clock began running.
	startedAt time.Time
	// pausedAt is non-zero while the clock is stopped.
	pausedAt time.Time
	// pausedTotal accumulates time spent paused.
	pausedTotal time.Duration
	// now is the time source (mainly for testing).
	now func() time.Time
}

// New creates a ledger with the given budgets. A zero budget in
// either dimension means that dimension is unlimited.
func New(tokenBudget int64, wallBudget time.Duration) *Ledger {
	return &Ledger{
		tokenBudget:   tokenBudget,
		wallBudget:    wallBudget,
		reservations:  make(map[int64]Reservation),
		warnThreshold: DefaultWarningThreshold,
		warned:        make(map[Dimension]bool),
		now:           time.Now,
	}
}

// SetNow replaces the ledger's time source (mainly for testing).
func (l *Ledger) SetNow(fn func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn != nil {
		l.now = fn
	}
}

// SetWarningThreshold sets the warning fraction. Out-of-range values
// are clamped.
func (l *Ledger) SetWarningThreshold(threshold float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	l.warnThreshold = threshold
}

// Reserve claims estimated tokens for an attempt about to dispatch.
// If the claim would push committed plus reserved spend past the
// budget the reservation is refused with ErrBudgetExceeded and the
// ledger is unchanged.
func (l *Ledger) Reserve(stepID string, tokens int64) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tokens < 0 {
		return Reservation{}, fmt.Errorf("negative reservation of %d tokens", tokens)
	}
	if l.tokenBudget > 0 && l.committed+l.reserved+tokens > l.tokenBudget {
		return Reservation{}, fmt.Errorf(
			"%w: step %s needs %d tokens, %d of %d remain",
			ErrBudgetExceeded, stepID, tokens,
			l.tokenBudget-l.committed-l.reserved, l.tokenBudget)
	}

	l.nextID++
	res := Reservation{id: l.nextID, stepID: stepID, tokens: tokens}
	l.reservations[res.id] = res
	l.reserved += tokens
	return res, nil
}

// Commit settles a reservation with the attempt's actual spend. The
// actual amount may differ from the estimate in either direction;
// overshoot is recorded so later reservations see the true position.
// Returns a warning the first time committed spend crosses the
// threshold.
func (l *Ledger) Commit(res Reservation, actual int64) (*Warning, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.reservations[res.id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownReservation, res.id)
	}
	delete(l.reservations, res.id)
	l.reserved -= held.tokens
	if actual < 0 {
		actual = 0
	}
	l.committed += actual

	return l.tokenWarningLocked(), nil
}

// Release drops a reservation without committing any spend, for
// attempts that were blocked before dispatch.
func (l *Ledger) Release(res Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.reservations[res.id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownReservation, res.id)
	}
	delete(l.reservations, res.id)
	l.reserved -= held.tokens
	return nil
}

// tokenWarningLocked returns a warning if committed spend has crossed
// the threshold and no token warning has fired yet.
func (l *Ledger) tokenWarningLocked() *Warning {
	if l.tokenBudget <= 0 || l.warned[DimTokens] {
		return nil
	}
	fraction := float64(l.committed) / float64(l.tokenBudget)
	if fraction < l.warnThreshold {
		return nil
	}
	l.warned[DimTokens] = true
	return &Warning{
		Dimension: DimTokens,
		Used:      l.committed,
		Limit:     l.tokenBudget,
		Fraction:  fraction,
	}
}

// Restore seeds committed spend from a resumed session's persisted
// attempts. The amounts were admitted when they were spent, so they
// bypass admission here; a restored total above the cap simply leaves
// the ledger exhausted.
func (l *Ledger) Restore(tokens, actions int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tokens > 0 {
		l.committed += tokens
	}
	if actions > 0 {
		l.actions += actions
	}
}

// SetActionBudget caps tool invocations across the session. Zero or
// negative means unlimited.
func (l *Ledger) SetActionBudget(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 {
		n = 0
	}
	l.actionBudget = n
}

// AdmitAction admits one tool invocation against the action budget.
// A full budget refuses the action with ErrBudgetExceeded and counts
// nothing. Returns a warning the first time usage crosses the
// threshold.
func (l *Ledger) AdmitAction() (*Warning, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.actionBudget > 0 && l.actions >= l.actionBudget {
		return nil, fmt.Errorf("%w: action budget of %d calls exhausted", ErrBudgetExceeded, l.actionBudget)
	}
	l.actions++

	if l.actionBudget <= 0 || l.warned[DimActions] {
		return nil, nil
	}
	fraction := float64(l.actions) / float64(l.actionBudget)
	if fraction < l.warnThreshold {
		return nil, nil
	}
	l.warned[DimActions] = true
	return &Warning{
		Dimension: DimActions,
		Used:      l.actions,
		Limit:     l.actionBudget,
		Fraction:  fraction,
	}, nil
}

// CountAction records one dispatched tool invocation without budget
// admission, for callers that already reserved capacity.
func (l *Ledger) CountAction() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions++
}

// TokensUsed returns committed spend.
func (l *Ledger) TokensUsed() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// TokensReserved returns the sum of outstanding reservations.
func (l *Ledger) TokensReserved() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved
}

// ActionsUsed returns the count of dispatched tool invocations.
func (l *Ledger) ActionsUsed() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.actions
}

// TokenStatus returns the budget status for the token dimension,
// considering committed spend only.
func (l *Ledger) TokenStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokenBudget <= 0 {
		return StatusOK
	}
	fraction := float64(l.committed) / float64(l.tokenBudget)
	if fraction >= 1.0 {
		return StatusExhausted
	}
	if fraction >= l.warnThreshold {
		return StatusWarning
	}
	return StatusOK
}

// StartClock begins the wall-clock measurement. Calling it again has
// no effect.
func (l *Ledger) StartClock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startedAt.IsZero() {
		l.startedAt = l.now()
	}
}

// PauseClock stops the wall clock, typically while the session waits
// on human review. Pausing an already paused clock has no effect.
func (l *Ledger) PauseClock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startedAt.IsZero() || !l.pausedAt.IsZero() {
		return
	}
	l.pausedAt = l.now()
}

// ResumeClock restarts a paused wall clock.
func (l *Ledger) ResumeClock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pausedAt.IsZero() {
		return
	}
	l.pausedTotal += l.now().Sub(l.pausedAt)
	l.pausedAt = time.Time{}
}

// Elapsed returns running wall-clock time, excluding paused periods.
func (l *Ledger) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elapsedLocked()
}

func (l *Ledger) elapsedLocked() time.Duration {
	if l.startedAt.IsZero() {
		return 0
	}
	end := l.now()
	if !l.pausedAt.IsZero() {
		end = l.pausedAt
	}
	return end.Sub(l.startedAt) - l.pausedTotal
}

// WallExceeded returns true once elapsed time has consumed the
// wall-clock budget.
func (l *Ledger) WallExceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wallBudget <= 0 {
		return false
	}
	return l.elapsedLocked() >= l.wallBudget
}

// CheckWallClock returns a warning the first time elapsed time
// crosses the threshold, and whether the budget is exhausted.
func (l *Ledger) CheckWallClock() (*Warning, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.wallBudget <= 0 {
		return nil, false
	}
	elapsed := l.elapsedLocked()
	exhausted := elapsed >= l.wallBudget

	if l.warned[DimWallClock] {
		return nil, exhausted
	}
	fraction := float64(elapsed) / float64(l.wallBudget)
	if fraction < l.warnThreshold {
		return nil, exhausted
	}
	l.warned[DimWallClock] = true
	return &Warning{
		Dimension: DimWallClock,
		Used:      int64(elapsed),
		Limit:     int64(l.wallBudget),
		Fraction:  fraction,
	}, exhausted
}
