package stim

import "fmt"

// SearchSpace declares the bounds an optimization model must respect:
// which channel pairs it may drive and the amplitude grid it may pick
// currents from.
type SearchSpace struct {
	Pairs []ChannelPair `json:"pairs" yaml:"pairs"`

	// Amplitude grid in microamps: AmpMinUA, AmpMinUA+AmpStepUA, ... AmpMaxUA.
	AmpMinUA  int `json:"amp_min_ua" yaml:"amp_min_ua"`
	AmpMaxUA  int `json:"amp_max_ua" yaml:"amp_max_ua"`
	AmpStepUA int `json:"amp_step_ua" yaml:"amp_step_ua"`

	// Carrier frequencies shared by every configuration in the space.
	FreqAHz float64 `json:"freq_a_hz" yaml:"freq_a_hz"`
	FreqBHz float64 `json:"freq_b_hz" yaml:"freq_b_hz"`
}

// Validate checks the space is well-formed and non-empty.
func (s SearchSpace) Validate() error {
	if len(s.Pairs) == 0 {
		return fmt.Errorf("search space has no channel pairs")
	}
	for i, p := range s.Pairs {
		if p.A == "" || p.B == "" || p.ReturnA == "" || p.ReturnB == "" {
			return fmt.Errorf("pair %d is missing a channel", i)
		}
		if p.A == p.B {
			return fmt.Errorf("pair %d drives the same channel twice (%s)", i, p.A)
		}
	}
	if s.AmpStepUA <= 0 {
		return fmt.Errorf("amplitude step must be positive, got %d", s.AmpStepUA)
	}
	if s.AmpMinUA < 0 || s.AmpMaxUA < s.AmpMinUA {
		return fmt.Errorf("invalid amplitude range [%d, %d] µA", s.AmpMinUA, s.AmpMaxUA)
	}
	if s.FreqAHz <= 0 || s.FreqBHz <= 0 {
		return fmt.Errorf("carrier frequencies must be positive, got %g/%g Hz", s.FreqAHz, s.FreqBHz)
	}
	if s.FreqAHz == s.FreqBHz {
		return fmt.Errorf("carrier frequencies are equal, no beat is produced")
	}
	return nil
}

// AmplitudeLevels returns how many grid points the amplitude range contains.
func (s SearchSpace) AmplitudeLevels() int {
	if s.AmpStepUA <= 0 {
		return 0
	}
	return (s.AmpMaxUA-s.AmpMinUA)/s.AmpStepUA + 1
}

// AmplitudeAt returns the amplitude at a grid index, clamped to the range.
func (s SearchSpace) AmplitudeAt(i int) int {
	if i < 0 {
		i = 0
	}
	if n := s.AmplitudeLevels(); i >= n {
		i = n - 1
	}
	return s.AmpMinUA + i*s.AmpStepUA
}

// SnapAmplitude rounds an arbitrary amplitude onto the grid.
func (s SearchSpace) SnapAmplitude(ua float64) int {
	if s.AmpStepUA <= 0 {
		return s.AmpMinUA
	}
	i := int((ua-float64(s.AmpMinUA))/float64(s.AmpStepUA) + 0.5)
	return s.AmplitudeAt(i)
}

// Contains reports whether a configuration lies inside the space: its pair
// is one of the allowed pairs and both amplitudes sit on the grid.
func (s SearchSpace) Contains(c TIConfiguration) bool {
	found := false
	for _, p := range s.Pairs {
		if p == c.Pair {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	return s.onGrid(c.AmplitudeAUA) && s.onGrid(c.AmplitudeBUA)
}

// Configuration assembles a TIConfiguration from a pair index and two grid
// amplitudes, filling in the space's carrier frequencies.
func (s SearchSpace) Configuration(pairIdx, ampAUA, ampBUA int) TIConfiguration {
	if pairIdx < 0 {
		pairIdx = 0
	}
	if pairIdx >= len(s.Pairs) {
		pairIdx = len(s.Pairs) - 1
	}
	return TIConfiguration{
		Pair:         s.Pairs[pairIdx],
		FreqAHz:      s.FreqAHz,
		FreqBHz:      s.FreqBHz,
		AmplitudeAUA: ampAUA,
		AmplitudeBUA: ampBUA,
	}
}

func (s SearchSpace) onGrid(ua int) bool {
	if ua < s.AmpMinUA || ua > s.AmpMaxUA {
		return false
	}
	return (ua-s.AmpMinUA)%s.AmpStepUA == 0
}
