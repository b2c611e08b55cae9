package opt

import (
	"fmt"
	"math/rand"

	"ticontrol/internal/stim"
)

// SweepModel is the non-adaptive reference variant: an exhaustive randomized
// sweep of the (amplitude, pair) grid with both sides driven at the same
// current. Amplitudes are drawn without replacement in seeded random order
// and the pair order is reshuffled per amplitude, the same walk the rig's
// return-path characterization uses. Proposals never repeat, the walk is
// fully determined by the seed, and Converged reports true once the grid is
// spent.
type SweepModel struct {
	space   stim.SearchSpace
	order   []stim.TIConfiguration
	cursor  int
	updates int
}

// NewSweep builds a sweep over every grid point of the space.
func NewSweep(space stim.SearchSpace, seed int64) (*SweepModel, error) {
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search space: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))

	levels := make([]int, space.AmplitudeLevels())
	for i := range levels {
		levels[i] = space.AmplitudeAt(i)
	}
	rng.Shuffle(len(levels), func(i, j int) { levels[i], levels[j] = levels[j], levels[i] })

	order := make([]stim.TIConfiguration, 0, len(levels)*len(space.Pairs))
	pairIdx := make([]int, len(space.Pairs))
	for i := range pairIdx {
		pairIdx[i] = i
	}
	for _, amp := range levels {
		rng.Shuffle(len(pairIdx), func(i, j int) { pairIdx[i], pairIdx[j] = pairIdx[j], pairIdx[i] })
		for _, pi := range pairIdx {
			order = append(order, space.Configuration(pi, amp, amp))
		}
	}

	return &SweepModel{space: space, order: order}, nil
}

// Propose returns the next grid point, or ErrExhausted once every point has
// been proposed.
func (m *SweepModel) Propose() (stim.TIConfiguration, error) {
	if m.cursor >= len(m.order) {
		return stim.TIConfiguration{}, ErrExhausted
	}
	cfg := m.order[m.cursor]
	m.cursor++
	return cfg, nil
}

// Update records the observation. The sweep is non-adaptive, so the walk is
// unaffected; the count only feeds Converged for seeded initial
// configurations the sweep never proposed itself.
func (m *SweepModel) Update(Observation) error {
	m.updates++
	return nil
}

// Converged reports whether the grid is exhausted.
func (m *SweepModel) Converged() bool {
	return m.cursor >= len(m.order)
}

// Remaining returns how many grid points have not been proposed yet.
func (m *SweepModel) Remaining() int {
	return len(m.order) - m.cursor
}
