package gate

import (
	"sync"

	"github.com/stewardlab/steward/pkg/models"
)

const (
	// DefaultReliabilityPrior is the score granted to an action type with
	// no recorded history.
	DefaultReliabilityPrior = 0.8
	// DefaultReliabilityWindow is how many recent outcomes per action
	// type feed the score.
	DefaultReliabilityWindow = 20
)

// Tracker keeps a sliding window of execution outcomes per action type so
// the gate can score empirical reliability.
type Tracker struct {
	mu      sync.Mutex
	window  int
	prior   models.TrustScore
	history map[string][]bool
}

// NewTracker creates a tracker with the given prior and window size.
// Out-of-range values fall back to the defaults.
func NewTracker(prior float64, window int) *Tracker {
	if prior <= 0 || prior > 1 {
		prior = DefaultReliabilityPrior
	}
	if window <= 0 {
		window = DefaultReliabilityWindow
	}
	return &Tracker{
		window:  window,
		prior:   models.TrustScore(prior),
		history: make(map[string][]bool),
	}
}

// Record appends one execution outcome for an action type, evicting the
// oldest entry once the window is full.
func (t *Tracker) Record(tool string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := append(t.history[tool], success)
	if len(h) > t.window {
		h = h[len(h)-t.window:]
	}
	t.history[tool] = h
}

// Score returns the success ratio over the recorded window, or the prior
// when the action type has no history yet.
func (t *Tracker) Score(tool string) models.TrustScore {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.history[tool]
	if len(h) == 0 {
		return t.prior
	}
	successes := 0
	for _, ok := range h {
		if ok {
			successes++
		}
	}
	return models.TrustScore(float64(successes) / float64(len(h)))
}

// Observations returns how many outcomes are recorded for an action type.
func (t *Tracker) Observations(tool string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history[tool])
}
