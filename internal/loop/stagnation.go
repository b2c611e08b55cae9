package loop

import (
	"log/slog"
	"math"
)

// StagnationTracker implements the controller's fallback stopping rule:
// stop once the best-seen score has not improved by more than Epsilon over
// the last Window iterations. The epsilon comparison is anchored at the last
// significant score, not the running best, so sub-epsilon gains can still
// accumulate into progress instead of re-baselining each other away.
type StagnationTracker struct {
	epsilon    float64
	window     int
	baseline   float64
	bestScore  float64
	staleCount int
	seen       int
}

// NewStagnationTracker creates a tracker for score maximization.
func NewStagnationTracker(epsilon float64, window int) *StagnationTracker {
	return &StagnationTracker{
		epsilon:   epsilon,
		window:    window,
		baseline:  math.Inf(-1),
		bestScore: math.Inf(-1),
	}
}

// Update records one iteration's score and reports whether the run has
// stagnated.
func (t *StagnationTracker) Update(score float64) bool {
	t.seen++
	if score > t.bestScore {
		t.bestScore = score
	}

	if score > t.baseline+t.epsilon {
		t.baseline = score
		t.staleCount = 0
		slog.Debug("Score improvement detected",
			"score", score,
			"best_score", t.bestScore,
		)
		return false
	}

	t.staleCount++
	slog.Debug("No significant score improvement",
		"score", score,
		"best_score", t.bestScore,
		"stale_count", t.staleCount,
		"window", t.window,
	)
	return t.staleCount >= t.window
}

// BestScore returns the best score seen so far.
func (t *StagnationTracker) BestScore() float64 {
	return t.bestScore
}

// StaleCount returns how many iterations have passed without significant
// improvement.
func (t *StagnationTracker) StaleCount() int {
	return t.staleCount
}
