package stim

import (
	"testing"
)

func TestParameterSetValidate(t *testing.T) {
	set := ParameterSet{
		Channel:           "a-000",
		Enabled:           true,
		Shape:             ShapeBiphasic,
		Polarity:          PositiveFirst,
		FirstPhaseUs:      100,
		SecondPhaseUs:     100,
		FirstAmplitudeUA:  50,
		SecondAmplitudeUA: 50,
		NumPulses:         255,
		TrainPeriodUs:     833,
	}
	if err := set.Validate(); err != nil {
		t.Errorf("Valid parameter set rejected: %v", err)
	}

	negative := set
	negative.FirstAmplitudeUA = -1
	if err := negative.Validate(); err == nil {
		t.Error("Negative amplitude should be rejected")
	}

	negative = set
	negative.SecondPhaseUs = -10
	if err := negative.Validate(); err == nil {
		t.Error("Negative phase duration should be rejected")
	}
}

func TestParameterSetDisabledUnconstrained(t *testing.T) {
	// "Off" state: a disabled set carries whatever values it carries.
	set := ParameterSet{Channel: "a-003", Enabled: false, FirstAmplitudeUA: -999}
	if err := set.Validate(); err != nil {
		t.Errorf("Disabled parameter set should be unconstrained, got %v", err)
	}

	set.Channel = ""
	if err := set.Validate(); err == nil {
		t.Error("Parameter set without channel should be rejected")
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName(0); got != "a-000" {
		t.Errorf("Expected a-000, got %s", got)
	}
	if got := ChannelName(42); got != "a-042" {
		t.Errorf("Expected a-042, got %s", got)
	}
	if got := ChannelName(127); got != "a-127" {
		t.Errorf("Expected a-127, got %s", got)
	}
}

func TestTIConfigurationBeat(t *testing.T) {
	cfg := TIConfiguration{FreqAHz: 1200, FreqBHz: 1250}
	if got := cfg.BeatHz(); got != 50 {
		t.Errorf("Expected 50 Hz beat, got %g", got)
	}

	// Order of the carriers must not matter.
	cfg = TIConfiguration{FreqAHz: 1250, FreqBHz: 1200}
	if got := cfg.BeatHz(); got != 50 {
		t.Errorf("Expected 50 Hz beat, got %g", got)
	}
}

func TestParameterSetDerivation(t *testing.T) {
	cfg := TIConfiguration{
		Pair: ChannelPair{
			A:       "a-000",
			B:       "a-001",
			ReturnA: "a-002",
			ReturnB: "a-003",
		},
		FreqAHz:      1200,
		FreqBHz:      1250,
		AmplitudeAUA: 100,
		AmplitudeBUA: 200,
	}

	sets := cfg.ParameterSets(DefaultPulseSpec())
	if len(sets) != 4 {
		t.Fatalf("Expected 4 parameter sets, got %d", len(sets))
	}

	// Sources positive-first, returns negative-first.
	if sets[0].Polarity != PositiveFirst || sets[1].Polarity != PositiveFirst {
		t.Error("Source channels must be positive-first")
	}
	if sets[2].Polarity != NegativeFirst || sets[3].Polarity != NegativeFirst {
		t.Error("Return channels must be negative-first")
	}

	// Each side's return carries the same amplitude as its source.
	if sets[0].FirstAmplitudeUA != 100 || sets[2].FirstAmplitudeUA != 100 {
		t.Errorf("Dipole A amplitudes: got %d/%d, want 100/100",
			sets[0].FirstAmplitudeUA, sets[2].FirstAmplitudeUA)
	}
	if sets[1].FirstAmplitudeUA != 200 || sets[3].FirstAmplitudeUA != 200 {
		t.Errorf("Dipole B amplitudes: got %d/%d, want 200/200",
			sets[1].FirstAmplitudeUA, sets[3].FirstAmplitudeUA)
	}

	// Train periods encode the carrier frequencies: 1e6/1200 = 833 µs,
	// 1e6/1250 = 800 µs.
	if sets[0].TrainPeriodUs != 833 {
		t.Errorf("Expected 833 µs period for 1200 Hz, got %d", sets[0].TrainPeriodUs)
	}
	if sets[1].TrainPeriodUs != 800 {
		t.Errorf("Expected 800 µs period for 1250 Hz, got %d", sets[1].TrainPeriodUs)
	}
	if sets[2].TrainPeriodUs != 833 || sets[3].TrainPeriodUs != 800 {
		t.Error("Return channels must share their source's train period")
	}

	// Both phases equal, charge balanced.
	for i, set := range sets {
		if set.FirstAmplitudeUA != set.SecondAmplitudeUA {
			t.Errorf("Set %d: phase amplitudes differ, %d vs %d", i, set.FirstAmplitudeUA, set.SecondAmplitudeUA)
		}
		if !set.Enabled {
			t.Errorf("Set %d: derived set should be enabled", i)
		}
		if err := set.Validate(); err != nil {
			t.Errorf("Set %d: derived set invalid: %v", i, err)
		}
	}
}

func TestOffParameterSets(t *testing.T) {
	cfg := TIConfiguration{
		Pair: ChannelPair{A: "a-000", B: "a-001", ReturnA: "a-002", ReturnB: "a-003"},
	}
	sets := cfg.OffParameterSets()
	if len(sets) != 4 {
		t.Fatalf("Expected 4 off sets, got %d", len(sets))
	}
	for _, set := range sets {
		if set.Enabled {
			t.Errorf("Channel %s: off set should be disabled", set.Channel)
		}
	}
}
