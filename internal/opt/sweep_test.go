package opt

import (
	"errors"
	"testing"
	"time"

	"ticontrol/internal/stim"
)

func smallSpace() stim.SearchSpace {
	return stim.SearchSpace{
		Pairs: []stim.ChannelPair{
			{A: "a-000", B: "a-001", ReturnA: "a-002", ReturnB: "a-003"},
			{A: "a-004", B: "a-005", ReturnA: "a-006", ReturnB: "a-007"},
			{A: "a-008", B: "a-009", ReturnA: "a-010", ReturnB: "a-011"},
		},
		AmpMinUA:  33,
		AmpMaxUA:  103,
		AmpStepUA: 10,
		FreqAHz:   1200,
		FreqBHz:   1250,
	}
}

func TestSweepCoversGridWithoutRepeats(t *testing.T) {
	space := smallSpace()
	m, err := NewSweep(space, 1)
	if err != nil {
		t.Fatalf("NewSweep failed: %v", err)
	}

	want := space.AmplitudeLevels() * len(space.Pairs)
	seen := make(map[string]bool, want)
	for {
		cfg, err := m.Propose()
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		if !space.Contains(cfg) {
			t.Fatalf("Proposal %s outside the search space", cfg)
		}
		if cfg.AmplitudeAUA != cfg.AmplitudeBUA {
			t.Fatalf("Sweep drives both sides at the same current, got %s", cfg)
		}
		key := cfg.String()
		if seen[key] {
			t.Fatalf("Proposal %s repeated", key)
		}
		seen[key] = true
	}
	if len(seen) != want {
		t.Errorf("Expected %d distinct proposals, got %d", want, len(seen))
	}
	if !m.Converged() {
		t.Error("Exhausted sweep should report converged")
	}
	if m.Remaining() != 0 {
		t.Errorf("Expected 0 remaining, got %d", m.Remaining())
	}
}

func TestSweepDeterministicReplay(t *testing.T) {
	space := smallSpace()

	a, err := NewSweep(space, 42)
	if err != nil {
		t.Fatalf("NewSweep failed: %v", err)
	}
	b, err := NewSweep(space, 42)
	if err != nil {
		t.Fatalf("NewSweep failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		ca, errA := a.Propose()
		cb, errB := b.Propose()
		if errA != nil || errB != nil {
			t.Fatalf("Propose failed: %v / %v", errA, errB)
		}
		if ca != cb {
			t.Fatalf("Proposal %d diverged: %s vs %s", i, ca, cb)
		}
		// Updates must not perturb the walk.
		if err := b.Update(Observation{Config: cb, Score: float64(i), Time: time.Now()}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
}

func TestSweepDifferentSeedsDiffer(t *testing.T) {
	space := smallSpace()
	a, _ := NewSweep(space, 1)
	b, _ := NewSweep(space, 2)

	same := true
	for i := 0; i < 6; i++ {
		ca, _ := a.Propose()
		cb, _ := b.Propose()
		if ca != cb {
			same = false
			break
		}
	}
	if same {
		t.Error("Different seeds should produce different walks")
	}
}

func TestSweepRejectsInvalidSpace(t *testing.T) {
	space := smallSpace()
	space.Pairs = nil
	if _, err := NewSweep(space, 1); err == nil {
		t.Error("Invalid space should be rejected")
	}
}

func TestBest(t *testing.T) {
	if Best(nil) != nil {
		t.Error("Best of empty history should be nil")
	}

	space := smallSpace()
	history := []Observation{
		{Config: space.Configuration(0, 33, 33), Score: 0.1},
		{Config: space.Configuration(1, 43, 43), Score: 0.7},
		{Config: space.Configuration(2, 53, 53), Score: 0.7},
		{Config: space.Configuration(0, 63, 63), Score: 0.3},
	}
	best := Best(history)
	if best == nil {
		t.Fatal("Best returned nil for non-empty history")
	}
	if best.Score != 0.7 {
		t.Errorf("Expected best score 0.7, got %g", best.Score)
	}
	// Earliest observation wins ties.
	if best.Config != history[1].Config {
		t.Errorf("Tie should resolve to the earliest observation, got %s", best.Config)
	}
}
