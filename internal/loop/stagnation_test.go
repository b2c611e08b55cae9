package loop

import "testing"

func TestStagnationTrackerStopsAfterWindow(t *testing.T) {
	tr := NewStagnationTracker(0.01, 3)

	for i, score := range []float64{0.1, 0.2, 0.3} {
		if tr.Update(score) {
			t.Fatalf("Improving score %d should not stagnate", i)
		}
	}
	if tr.Update(0.3) {
		t.Fatal("First stale iteration should not stop yet")
	}
	if tr.Update(0.3) {
		t.Fatal("Second stale iteration should not stop yet")
	}
	if !tr.Update(0.3) {
		t.Fatal("Third stale iteration should stop with window 3")
	}
}

func TestStagnationTrackerResetsOnImprovement(t *testing.T) {
	tr := NewStagnationTracker(0.01, 3)

	tr.Update(0.1)
	tr.Update(0.1)
	tr.Update(0.1)
	if tr.StaleCount() != 2 {
		t.Fatalf("Expected 2 stale iterations, got %d", tr.StaleCount())
	}

	if tr.Update(0.5) {
		t.Fatal("Clear improvement should not stagnate")
	}
	if tr.StaleCount() != 0 {
		t.Errorf("Improvement should reset the stale count, got %d", tr.StaleCount())
	}
	if tr.BestScore() != 0.5 {
		t.Errorf("Expected best score 0.5, got %g", tr.BestScore())
	}
}

func TestStagnationTrackerSubEpsilonImprovement(t *testing.T) {
	tr := NewStagnationTracker(0.1, 2)

	tr.Update(0.5)
	// Better, but within epsilon of the last significant score: stale, yet
	// the best-seen record still advances.
	if tr.Update(0.55) {
		t.Fatal("One sub-epsilon step should not stop with window 2")
	}
	if tr.BestScore() != 0.55 {
		t.Errorf("Best score should track sub-epsilon gains, got %g", tr.BestScore())
	}
	// 0.65 clears the 0.5 baseline by more than epsilon even though the
	// step from 0.55 is below it: sub-epsilon gains accumulate.
	if tr.Update(0.65) {
		t.Fatal("Accumulated gains past epsilon should reset the window")
	}
	if tr.StaleCount() != 0 {
		t.Errorf("Expected stale count reset, got %d", tr.StaleCount())
	}
}

func TestStagnationTrackerCreepIsNotStagnation(t *testing.T) {
	// Scores creeping up by just under epsilon per iteration improve by
	// several epsilon per window; the tracker must not stop such a run.
	tr := NewStagnationTracker(0.01, 5)

	score := 0.5
	for i := 0; i < 20; i++ {
		if tr.Update(score) {
			t.Fatalf("Creeping improvement flagged as stagnation at iteration %d", i+1)
		}
		score += 0.009
	}
	if tr.BestScore() < 0.67 {
		t.Errorf("Best score should have accumulated the creep, got %g", tr.BestScore())
	}
}
