// Package mi computes per-channel modulation indices from recorded epochs:
// how much of each channel's signal power sits at the beat frequency the
// interfering carriers produce.
package mi

import (
	"fmt"
	"time"
)

// Epoch is one fixed-length slab of multichannel samples delivered by the
// data source. Channels and Samples are parallel: Samples[i] holds the
// samples for Channels[i]. Epochs are consumed once and discarded; nothing
// in this package retains them.
type Epoch struct {
	Start        time.Time
	SampleRateHz float64
	Channels     []string
	Samples      [][]float64
}

// Duration returns the time the epoch covers. Ragged epochs report the
// shortest channel, since that is all that can be evaluated consistently.
func (e *Epoch) Duration() time.Duration {
	if e.SampleRateHz <= 0 {
		return 0
	}
	n := e.minSamples()
	return time.Duration(float64(n) / e.SampleRateHz * float64(time.Second))
}

// Validate checks the epoch is internally consistent.
func (e *Epoch) Validate() error {
	if e.SampleRateHz <= 0 {
		return fmt.Errorf("epoch has non-positive sample rate %g", e.SampleRateHz)
	}
	if len(e.Channels) == 0 {
		return fmt.Errorf("epoch has no channels")
	}
	if len(e.Channels) != len(e.Samples) {
		return fmt.Errorf("epoch has %d channel names but %d sample arrays", len(e.Channels), len(e.Samples))
	}
	return nil
}

func (e *Epoch) minSamples() int {
	if len(e.Samples) == 0 {
		return 0
	}
	n := len(e.Samples[0])
	for _, s := range e.Samples[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}
