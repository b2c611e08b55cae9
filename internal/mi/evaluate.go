package mi

import (
	"fmt"
	"math"
)

// Vector maps recording channel names to their modulation index in [0, 1].
type Vector map[string]float64

// InsufficientDataError reports an epoch too short to resolve the beat
// frequency. It indicates a controller/collector mismatch rather than a
// transient condition, so callers treat it as fatal.
// Use errors.Is(err, ErrInsufficientData) to check for it.
type InsufficientDataError struct {
	BeatHz     float64
	EpochSecs  float64
	NeededSecs float64
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("epoch covers %.4f s but %.4f s is needed to resolve a %.1f Hz beat",
		e.EpochSecs, e.NeededSecs, e.BeatHz)
}

func (e *InsufficientDataError) Is(target error) bool {
	_, ok := target.(*InsufficientDataError)
	return ok
}

// ErrInsufficientData is the sentinel for errors.Is checks.
var ErrInsufficientData = &InsufficientDataError{}

// Evaluate computes the modulation index of every channel in the epoch
// relative to beatHz. The index is the fraction of the channel's signal
// power (after mean removal) concentrated at the beat frequency, estimated
// with a Goertzel filter, clamped to [0, 1]. Deterministic and
// side-effect free.
//
// Fails with *InsufficientDataError when the epoch is shorter than one beat
// period. The controller is expected not to call it in that case, but the
// check is repeated here.
func Evaluate(epoch *Epoch, beatHz float64) (Vector, error) {
	if err := epoch.Validate(); err != nil {
		return nil, err
	}
	if beatHz <= 0 {
		return nil, fmt.Errorf("beat frequency must be positive, got %g Hz", beatHz)
	}

	needed := 1.0 / beatHz
	covered := epoch.Duration().Seconds()
	if covered < needed {
		return nil, &InsufficientDataError{BeatHz: beatHz, EpochSecs: covered, NeededSecs: needed}
	}

	n := epoch.minSamples()
	out := make(Vector, len(epoch.Channels))
	for i, name := range epoch.Channels {
		out[name] = index(epoch.Samples[i][:n], epoch.SampleRateHz, beatHz)
	}
	return out, nil
}

// index computes the modulation index for one channel.
func index(samples []float64, rateHz, beatHz float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}

	var mean float64
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	var total float64
	for _, v := range samples {
		d := v - mean
		total += d * d
	}
	if total == 0 {
		return 0
	}

	// Goertzel amplitude at the beat frequency on the mean-removed signal.
	amp := goertzelAmplitude(samples, mean, rateHz, beatHz)

	// Power of a sinusoid of amplitude A is A²/2; total is already a sum of
	// squares, so scale both to per-sample power.
	beatPower := amp * amp / 2
	totalPower := total / float64(n)

	m := beatPower / totalPower
	if m > 1 {
		m = 1
	}
	return m
}

// goertzelAmplitude evaluates a single DFT bin at freqHz and returns the
// amplitude of the component, 2|X(f)|/N.
func goertzelAmplitude(samples []float64, mean, rateHz, freqHz float64) float64 {
	n := len(samples)
	w := 2 * math.Pi * freqHz / rateHz
	c := 2 * math.Cos(w)

	var s0, s1, s2 float64
	for _, v := range samples {
		s0 = (v - mean) + c*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - c*s1*s2
	if power < 0 {
		power = 0
	}
	return 2 * math.Sqrt(power) / float64(n)
}
