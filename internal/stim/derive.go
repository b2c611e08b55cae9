package stim

// ParameterSets derives the four per-channel parameter sets a TI
// configuration expands into: both sources positive-first, both returns
// negative-first, each side's train period set from its carrier frequency.
// The result is what gets handed to the command sink; the configuration
// itself stays immutable.
func (c TIConfiguration) ParameterSets(spec PulseSpec) []ParameterSet {
	periodA := periodMicros(c.FreqAHz)
	periodB := periodMicros(c.FreqBHz)

	return []ParameterSet{
		channelSet(c.Pair.A, c.AmplitudeAUA, periodA, PositiveFirst, spec),
		channelSet(c.Pair.B, c.AmplitudeBUA, periodB, PositiveFirst, spec),
		channelSet(c.Pair.ReturnA, c.AmplitudeAUA, periodA, NegativeFirst, spec),
		channelSet(c.Pair.ReturnB, c.AmplitudeBUA, periodB, NegativeFirst, spec),
	}
}

// OffParameterSets returns disabled parameter sets for every channel the
// configuration drives, used to shut stimulation down safely.
func (c TIConfiguration) OffParameterSets() []ParameterSet {
	channels := c.Pair.Channels()
	sets := make([]ParameterSet, 0, len(channels))
	for _, ch := range channels {
		sets = append(sets, ParameterSet{Channel: ch, Enabled: false})
	}
	return sets
}

func channelSet(ch ChannelID, amplitudeUA, periodUs int, pol Polarity, spec PulseSpec) ParameterSet {
	return ParameterSet{
		Channel:           ch,
		Enabled:           true,
		Shape:             ShapeBiphasic,
		Polarity:          pol,
		TriggerSource:     spec.TriggerSource,
		FirstPhaseUs:      spec.PhaseDurationUs,
		SecondPhaseUs:     spec.PhaseDurationUs,
		InterphaseDelayUs: spec.InterphaseDelayUs,
		FirstAmplitudeUA:  amplitudeUA,
		SecondAmplitudeUA: amplitudeUA,
		NumPulses:         spec.NumPulses,
		TrainPeriodUs:     periodUs,
	}
}

func periodMicros(freqHz float64) int {
	if freqHz <= 0 {
		return 0
	}
	return int(1e6 / freqHz)
}
