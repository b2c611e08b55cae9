// Package objective collapses a modulation index vector into the scalar the
// optimizer maximizes, encoding the selectivity trade-off between the target
// channel and everything else.
package objective

import (
	"fmt"

	"ticontrol/internal/mi"
)

// Scorer scores a modulation index vector against one target channel.
// The default policy is
//
//	score = MI[target] - max(MI[c] for c != target)
//
// so a single leaking off-target channel is penalized as heavily as target
// gain. The worst-case term is deliberate; use DisableOffTarget only when
// selectivity genuinely does not matter.
type Scorer struct {
	// TargetWeight scales the target channel's contribution. Zero means 1.
	TargetWeight float64

	// OffTargetWeight scales the worst off-target channel's penalty.
	// Zero means 1.
	OffTargetWeight float64

	// DisableOffTarget drops the off-target penalty entirely. Explicit
	// opt-out, not a weight of zero, so the choice is visible at call sites.
	DisableOffTarget bool
}

// Score computes the scalar objective for the given vector and target.
// Higher is better. Fails when the target channel is absent from the vector.
func (s Scorer) Score(v mi.Vector, target string) (float64, error) {
	targetMI, ok := v[target]
	if !ok {
		return 0, fmt.Errorf("target channel %s not present in modulation index vector", target)
	}

	tw := s.TargetWeight
	if tw == 0 {
		tw = 1
	}
	score := tw * targetMI

	if s.DisableOffTarget {
		return score, nil
	}

	ow := s.OffTargetWeight
	if ow == 0 {
		ow = 1
	}

	worst := 0.0
	for ch, m := range v {
		if ch == target {
			continue
		}
		if m > worst {
			worst = m
		}
	}
	return score - ow*worst, nil
}
