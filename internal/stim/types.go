// Package stim defines the stimulation-side data model: per-channel pulse
// parameter sets, the two-channel temporal-interference configuration the
// optimizer searches over, and the bounds of that search space.
package stim

import "fmt"

// ChannelID names one addressable channel on the rig, e.g. "a-000".
// Stimulation and recording channels live in disjoint namespaces even when
// the hardware multiplexes both onto the same headstage connector.
type ChannelID string

// ChannelName formats a channel index into the rig's native naming scheme.
func ChannelName(index int) ChannelID {
	return ChannelID(fmt.Sprintf("a-%03d", index))
}

// Shape selects the pulse waveform shape.
type Shape string

// Polarity selects which phase of a biphasic pulse comes first.
type Polarity string

const (
	ShapeBiphasic  Shape = "biphasic"
	ShapeTriphasic Shape = "triphasic"

	PositiveFirst Polarity = "PositiveFirst"
	NegativeFirst Polarity = "NegativeFirst"
)

// ParameterSet holds the full pulse-train configuration for one stimulation
// channel. It is a value type: derive a new one rather than mutating.
// Both phase amplitudes are kept equal by convention (charge balance).
type ParameterSet struct {
	Channel           ChannelID
	Enabled           bool
	Shape             Shape
	Polarity          Polarity
	TriggerSource     string // e.g. "KeyPressF1"
	FirstPhaseUs      int
	SecondPhaseUs     int
	InterphaseDelayUs int
	FirstAmplitudeUA  int
	SecondAmplitudeUA int
	NumPulses         int
	TrainPeriodUs     int
}

// Validate checks the non-negativity invariants. A disabled parameter set is
// the "off" state and is otherwise unconstrained.
func (p ParameterSet) Validate() error {
	if p.Channel == "" {
		return fmt.Errorf("parameter set has no channel")
	}
	if !p.Enabled {
		return nil
	}
	switch {
	case p.FirstPhaseUs < 0 || p.SecondPhaseUs < 0:
		return fmt.Errorf("channel %s: negative phase duration", p.Channel)
	case p.InterphaseDelayUs < 0:
		return fmt.Errorf("channel %s: negative interphase delay", p.Channel)
	case p.FirstAmplitudeUA < 0 || p.SecondAmplitudeUA < 0:
		return fmt.Errorf("channel %s: negative amplitude", p.Channel)
	case p.NumPulses < 0:
		return fmt.Errorf("channel %s: negative pulse count", p.Channel)
	case p.TrainPeriodUs < 0:
		return fmt.Errorf("channel %s: negative train period", p.Channel)
	}
	return nil
}

// ChannelPair is an unordered pair of driven stimulation channels with their
// return paths. The return channels carry the same train with inverted
// polarity so each side forms a dipole.
type ChannelPair struct {
	A       ChannelID `json:"a" yaml:"a"`
	B       ChannelID `json:"b" yaml:"b"`
	ReturnA ChannelID `json:"return_a" yaml:"return_a"`
	ReturnB ChannelID `json:"return_b" yaml:"return_b"`
}

// Channels lists every channel the pair drives, sources first.
func (p ChannelPair) Channels() []ChannelID {
	return []ChannelID{p.A, p.B, p.ReturnA, p.ReturnB}
}

func (p ChannelPair) String() string {
	return fmt.Sprintf("%s/%s (ret %s/%s)", p.A, p.B, p.ReturnA, p.ReturnB)
}

// TIConfiguration is the unit the optimizer searches over: which pair to
// drive, at which carrier frequencies, and at which currents. The carrier
// offset (FreqBHz - FreqAHz) sets the beat frequency at the interference
// focus.
type TIConfiguration struct {
	Pair         ChannelPair `json:"pair"`
	FreqAHz      float64     `json:"freq_a_hz"`
	FreqBHz      float64     `json:"freq_b_hz"`
	AmplitudeAUA int         `json:"amplitude_a_ua"`
	AmplitudeBUA int         `json:"amplitude_b_ua"`
}

// BeatHz returns the beat frequency produced by the carrier offset.
func (c TIConfiguration) BeatHz() float64 {
	d := c.FreqBHz - c.FreqAHz
	if d < 0 {
		return -d
	}
	return d
}

func (c TIConfiguration) String() string {
	return fmt.Sprintf("pair %s @ %d/%d µA", c.Pair, c.AmplitudeAUA, c.AmplitudeBUA)
}

// PulseSpec carries the pulse-shape defaults shared by every channel of a TI
// configuration. Values mirror the rig's dipole stimulation defaults.
type PulseSpec struct {
	PhaseDurationUs   int
	InterphaseDelayUs int
	NumPulses         int
	TriggerSource     string
}

// DefaultPulseSpec returns the pulse defaults used for TI dipole trains:
// 100 µs biphasic phases, no interphase delay, 255 pulses per trigger.
func DefaultPulseSpec() PulseSpec {
	return PulseSpec{
		PhaseDurationUs:   100,
		InterphaseDelayUs: 0,
		NumPulses:         255,
		TriggerSource:     "KeyPressF1",
	}
}
