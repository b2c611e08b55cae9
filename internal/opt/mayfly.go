package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"ticontrol/internal/stim"
)

// MayflyModel is the adaptive variant, backed by the mayfly swarm optimizer.
//
// The library drives a synchronous minimization loop that calls its
// objective function itself, while the controller needs an ask/tell model.
// The bridge inverts control: the library runs in its own goroutine and its
// objective function blocks on a candidate/score channel pair, so each
// library evaluation becomes one Propose/Update cycle of the closed loop.
//
// Positions are normalized to [0,1] per dimension because the library takes
// scalar bounds shared by all dimensions; decoding maps dimension 0 onto the
// allowed pair list and dimensions 1 and 2 onto the amplitude grid. Given a
// seed and the same observation order, the session is deterministic.
type MayflyModel struct {
	space      stim.SearchSpace
	iterations int
	population int
	seed       int64

	started bool
	closed  bool

	candidates chan []float64
	scores     chan float64
	quit       chan struct{}
	done       chan struct{}

	pending bool
	last    stim.TIConfiguration
	best    *Observation
}

const mayflyDims = 3 // pair index, amplitude A, amplitude B

// NewMayfly creates a mayfly-backed model. iterations and population bound
// the library session length; once the session finishes the model re-proposes
// the best configuration seen.
func NewMayfly(space stim.SearchSpace, iterations, population int, seed int64) (*MayflyModel, error) {
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search space: %w", err)
	}
	if iterations <= 0 || population <= 0 {
		return nil, fmt.Errorf("iterations and population must be positive, got %d/%d", iterations, population)
	}
	return &MayflyModel{
		space:      space,
		iterations: iterations,
		population: population,
		seed:       seed,
		candidates: make(chan []float64),
		scores:     make(chan float64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Propose hands out the library's next candidate, decoded into the search
// space. After the session is exhausted it intentionally re-samples the best
// observation seen so far.
func (m *MayflyModel) Propose() (stim.TIConfiguration, error) {
	if m.closed {
		return stim.TIConfiguration{}, fmt.Errorf("model is closed")
	}
	if !m.started {
		m.started = true
		go m.run()
	}
	if m.pending {
		// Last proposal was never scored; hand it out again rather than
		// desynchronizing from the library session.
		return m.last, nil
	}

	select {
	case x := <-m.candidates:
		m.last = m.decode(x)
		m.pending = true
		return m.last, nil
	case <-m.done:
		if m.best == nil {
			return stim.TIConfiguration{}, ErrExhausted
		}
		return m.best.Config, nil
	}
}

// Update feeds the observation's score back into the library session when it
// answers the pending candidate; observations for configurations the model
// never proposed (e.g. a seeded starting point) only update the best-seen
// record.
func (m *MayflyModel) Update(obs Observation) error {
	if m.closed {
		return fmt.Errorf("model is closed")
	}
	if m.best == nil || obs.Score > m.best.Score {
		o := obs
		m.best = &o
	}
	if !m.pending || obs.Config != m.last {
		return nil
	}
	m.pending = false

	// The library minimizes; the loop maximizes.
	select {
	case m.scores <- -obs.Score:
	case <-m.done:
	}
	return nil
}

// Close tears down the library session. Any in-flight evaluation unblocks
// with a worst-case cost and the goroutine drains on its own.
func (m *MayflyModel) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.quit)
	return nil
}

func (m *MayflyModel) run() {
	defer close(m.done)

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = m.evaluate
	config.ProblemSize = mayflyDims
	config.MaxIterations = m.iterations
	// Male and female swarms are sized independently; the library indexes
	// males by female index, so both must match the requested population.
	config.NPop = m.population
	config.NPopF = m.population
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	// The result is not read here: the best observation is tracked on the
	// Update path, where scores reflect what the rig actually measured.
	if _, err := mayfly.Optimize(config); err != nil {
		return
	}
}

// evaluate is the library-facing objective: publish the candidate, block
// until the closed loop reports its score.
func (m *MayflyModel) evaluate(x []float64) float64 {
	pos := append([]float64(nil), x...)
	select {
	case m.candidates <- pos:
	case <-m.quit:
		return math.Inf(1)
	}
	select {
	case cost := <-m.scores:
		return cost
	case <-m.quit:
		return math.Inf(1)
	}
}

// decode maps a normalized library position onto the search space.
func (m *MayflyModel) decode(x []float64) stim.TIConfiguration {
	pairIdx := int(clamp01(x[0]) * float64(len(m.space.Pairs)))
	if pairIdx >= len(m.space.Pairs) {
		pairIdx = len(m.space.Pairs) - 1
	}
	ampA := m.space.SnapAmplitude(m.ampOf(x[1]))
	ampB := m.space.SnapAmplitude(m.ampOf(x[2]))
	return m.space.Configuration(pairIdx, ampA, ampB)
}

func (m *MayflyModel) ampOf(x float64) float64 {
	span := float64(m.space.AmpMaxUA - m.space.AmpMinUA)
	return float64(m.space.AmpMinUA) + clamp01(x)*span
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
