// Package opt defines the pluggable optimization model contract and its
// variants: models consume (configuration, score) observations and propose
// the next configuration to try, always inside the declared search space.
package opt

import (
	"errors"
	"time"

	"ticontrol/internal/stim"
)

// Observation pairs one applied configuration with the objective score it
// produced. Observations are immutable; history is append-only.
type Observation struct {
	Config stim.TIConfiguration `json:"config"`
	Score  float64              `json:"score"`
	Time   time.Time            `json:"time"`
}

// Model is the capability set every optimization variant implements.
//
// Propose returns the next configuration to try and must respect the search
// space the model was constructed with. Proposing the same configuration
// twice is allowed only when the space is exhausted or the model is
// intentionally re-sampling.
//
// Update incorporates one new observation. Conceptually it is a pure state
// transition: feeding the same observation sequence into a fresh instance of
// a deterministic variant must reproduce the same proposals, so runs can be
// replayed for diagnostics.
//
// Models owning external resources additionally implement io.Closer; models
// with their own stopping rule implement Converger. The controller falls
// back to its stagnation rule otherwise.
type Model interface {
	Propose() (stim.TIConfiguration, error)
	Update(Observation) error
}

// Converger is optionally implemented by models that know when they are done.
type Converger interface {
	Converged() bool
}

// ErrExhausted is returned by Propose when a non-resampling model has tried
// every configuration in its space. The controller treats it as convergence.
var ErrExhausted = errors.New("search space exhausted")

// Best returns the observation with the highest score, earliest first on
// ties, or nil for an empty history.
func Best(history []Observation) *Observation {
	var best *Observation
	for i := range history {
		if best == nil || history[i].Score > best.Score {
			best = &history[i]
		}
	}
	return best
}
