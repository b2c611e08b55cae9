package stim

import "testing"

func testSpace() SearchSpace {
	return SearchSpace{
		Pairs: []ChannelPair{
			{A: "a-000", B: "a-001", ReturnA: "a-002", ReturnB: "a-003"},
			{A: "a-004", B: "a-005", ReturnA: "a-006", ReturnB: "a-007"},
		},
		AmpMinUA:  33,
		AmpMaxUA:  1000,
		AmpStepUA: 10,
		FreqAHz:   1200,
		FreqBHz:   1250,
	}
}

func TestSearchSpaceValidate(t *testing.T) {
	if err := testSpace().Validate(); err != nil {
		t.Errorf("Valid space rejected: %v", err)
	}

	s := testSpace()
	s.Pairs = nil
	if err := s.Validate(); err == nil {
		t.Error("Empty pair list should be rejected")
	}

	s = testSpace()
	s.AmpStepUA = 0
	if err := s.Validate(); err == nil {
		t.Error("Zero amplitude step should be rejected")
	}

	s = testSpace()
	s.AmpMaxUA = 10
	if err := s.Validate(); err == nil {
		t.Error("Max below min should be rejected")
	}

	s = testSpace()
	s.FreqBHz = s.FreqAHz
	if err := s.Validate(); err == nil {
		t.Error("Equal carriers produce no beat and should be rejected")
	}

	s = testSpace()
	s.Pairs[0].B = s.Pairs[0].A
	if err := s.Validate(); err == nil {
		t.Error("Pair driving the same channel twice should be rejected")
	}
}

func TestAmplitudeGrid(t *testing.T) {
	s := testSpace()

	// 33, 43, ..., 993.
	if got := s.AmplitudeLevels(); got != 97 {
		t.Errorf("Expected 97 levels, got %d", got)
	}
	if got := s.AmplitudeAt(0); got != 33 {
		t.Errorf("First level: expected 33, got %d", got)
	}
	if got := s.AmplitudeAt(96); got != 993 {
		t.Errorf("Last level: expected 993, got %d", got)
	}

	// Index clamping.
	if got := s.AmplitudeAt(-3); got != 33 {
		t.Errorf("Negative index should clamp to 33, got %d", got)
	}
	if got := s.AmplitudeAt(500); got != 993 {
		t.Errorf("Out-of-range index should clamp to 993, got %d", got)
	}
}

func TestSnapAmplitude(t *testing.T) {
	s := testSpace()
	cases := []struct {
		in   float64
		want int
	}{
		{33, 33},
		{37.9, 33},
		{38.1, 43},
		{993, 993},
		{5000, 993},
		{-20, 33},
	}
	for _, c := range cases {
		if got := s.SnapAmplitude(c.in); got != c.want {
			t.Errorf("SnapAmplitude(%g) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestContains(t *testing.T) {
	s := testSpace()

	inside := s.Configuration(0, 53, 993)
	if !s.Contains(inside) {
		t.Errorf("Configuration %s should be inside the space", inside)
	}

	offGrid := s.Configuration(0, 54, 993)
	if s.Contains(offGrid) {
		t.Errorf("Off-grid amplitude %s should be outside the space", offGrid)
	}

	tooHigh := s.Configuration(1, 33, 1003)
	if s.Contains(tooHigh) {
		t.Errorf("Out-of-range amplitude %s should be outside the space", tooHigh)
	}

	wrongPair := inside
	wrongPair.Pair = ChannelPair{A: "a-100", B: "a-101", ReturnA: "a-102", ReturnB: "a-103"}
	if s.Contains(wrongPair) {
		t.Error("Unknown pair should be outside the space")
	}
}

func TestConfigurationFillsCarriers(t *testing.T) {
	s := testSpace()
	cfg := s.Configuration(1, 43, 53)
	if cfg.FreqAHz != 1200 || cfg.FreqBHz != 1250 {
		t.Errorf("Carriers not filled in: got %g/%g", cfg.FreqAHz, cfg.FreqBHz)
	}
	if cfg.Pair != s.Pairs[1] {
		t.Errorf("Wrong pair selected: %v", cfg.Pair)
	}

	// Pair index clamping keeps decoding total.
	if got := s.Configuration(99, 33, 33).Pair; got != s.Pairs[1] {
		t.Errorf("Out-of-range pair index should clamp, got %v", got)
	}
}
