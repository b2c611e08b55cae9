package rhx

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ticontrol/internal/stim"
)

// StimSink adapts the command client to the controller's CommandSink
// contract: stage per-channel parameter sets, then commit them by uploading
// to the headstage and triggering the pulse trains.
type StimSink struct {
	client *CommandClient

	// triggerKey is the manual trigger the staged channels listen on,
	// derived from the parameter sets' trigger source ("KeyPressF1" -> "F1").
	triggerKey string
}

// NewStimSink wraps an established command client.
func NewStimSink(client *CommandClient) *StimSink {
	return &StimSink{client: client, triggerKey: "F1"}
}

// Apply stages one parameter set. A disabled set only turns the channel off.
func (s *StimSink) Apply(ctx context.Context, set stim.ParameterSet) error {
	if err := set.Validate(); err != nil {
		return errors.WithStack(err)
	}
	ch := string(set.Channel)

	if !set.Enabled {
		return s.client.Set(ctx, ch, "stimenabled", "false")
	}

	if key, ok := strings.CutPrefix(set.TriggerSource, "KeyPress"); ok && key != "" {
		s.triggerKey = key
	}

	commands := []struct{ param, value string }{
		{"stimenabled", "true"},
		{"shape", string(set.Shape)},
		{"polarity", string(set.Polarity)},
		{"source", set.TriggerSource},
		{"firstphasedurationmicroseconds", strconv.Itoa(set.FirstPhaseUs)},
		{"secondphasedurationmicroseconds", strconv.Itoa(set.SecondPhaseUs)},
		{"interphasedelaymicroseconds", strconv.Itoa(set.InterphaseDelayUs)},
		{"firstphaseamplitudemicroamps", strconv.Itoa(set.FirstAmplitudeUA)},
		{"secondphaseamplitudemicroamps", strconv.Itoa(set.SecondAmplitudeUA)},
		{"numberofstimpulses", strconv.Itoa(set.NumPulses)},
		{"pulsetrainperiodmicroseconds", strconv.Itoa(set.TrainPeriodUs)},
	}
	for _, cmd := range commands {
		if err := s.client.Set(ctx, ch, cmd.param, cmd.value); err != nil {
			return err
		}
	}
	return nil
}

// Commit uploads the staged parameters, starts the controller and triggers
// every staged channel at once.
func (s *StimSink) Commit(ctx context.Context) error {
	if err := s.client.Execute(ctx, "uploadstimparameters"); err != nil {
		return err
	}
	if err := s.client.SetGlobal(ctx, "runmode", "run"); err != nil {
		return err
	}
	return s.client.Execute(ctx, "manualstimtriggerpulse "+s.triggerKey)
}

// Disable turns one stimulation channel off.
func (s *StimSink) Disable(ctx context.Context, ch stim.ChannelID) error {
	return s.client.Set(ctx, string(ch), "stimenabled", "false")
}

// DisableAll turns every listed channel off, continuing past individual
// failures so one bad channel cannot keep the rest stimulating.
func (s *StimSink) DisableAll(ctx context.Context, chs []stim.ChannelID) error {
	var firstErr error
	for _, ch := range chs {
		if err := s.Disable(ctx, ch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopRun halts the controller's acquisition run mode.
func (s *StimSink) StopRun(ctx context.Context) error {
	return s.client.SetGlobal(ctx, "runmode", "stop")
}
