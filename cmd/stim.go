package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticontrol/internal/config"
	"ticontrol/internal/rhx"
	"ticontrol/internal/stim"
)

var (
	stimChannelA string
	stimChannelB string
	stimReturnA  string
	stimReturnB  string
	stimAmpA     int
	stimAmpB     int
	stimDuration time.Duration
)

var stimCmd = &cobra.Command{
	Use:   "stim",
	Short: "Run a one-shot TI dipole stimulation",
	Long: `Applies one fixed TI configuration: both source channels positive-first
at their carrier frequencies, both return channels negative-first, triggered
together, held for the requested duration, then disabled.`,
	RunE: runStim,
}

func init() {
	stimCmd.Flags().StringVar(&stimChannelA, "channel-a", "a-000", "Source channel for dipole A")
	stimCmd.Flags().StringVar(&stimChannelB, "channel-b", "a-001", "Source channel for dipole B")
	stimCmd.Flags().StringVar(&stimReturnA, "return-a", "a-002", "Return channel for dipole A")
	stimCmd.Flags().StringVar(&stimReturnB, "return-b", "a-003", "Return channel for dipole B")
	stimCmd.Flags().IntVar(&stimAmpA, "amp-a", 100, "Amplitude for dipole A in µA")
	stimCmd.Flags().IntVar(&stimAmpB, "amp-b", 100, "Amplitude for dipole B in µA")
	stimCmd.Flags().DurationVar(&stimDuration, "duration", 5*time.Second, "How long to hold the stimulation")
	rootCmd.AddCommand(stimCmd)
}

func runStim(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ti := stim.TIConfiguration{
		Pair: stim.ChannelPair{
			A:       stim.ChannelID(stimChannelA),
			B:       stim.ChannelID(stimChannelB),
			ReturnA: stim.ChannelID(stimReturnA),
			ReturnB: stim.ChannelID(stimReturnB),
		},
		FreqAHz:      cfg.Stim.FreqAHz,
		FreqBHz:      cfg.Stim.FreqBHz,
		AmplitudeAUA: stimAmpA,
		AmplitudeBUA: stimAmpB,
	}

	client, err := rhx.DialCommand(cfg.Rig.CommandAddr(), 0)
	if err != nil {
		return err
	}
	defer client.Close()
	sink := rhx.NewStimSink(client)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting TI dipole stimulation",
		"pair", ti.Pair.String(),
		"amp_a_ua", stimAmpA,
		"amp_b_ua", stimAmpB,
		"beat_hz", ti.BeatHz(),
	)

	// Everything off first, then stage and commit the full configuration.
	if err := sink.DisableAll(ctx, ti.Pair.Channels()); err != nil {
		return err
	}
	for _, set := range ti.ParameterSets(cfg.PulseSpec()) {
		if err := sink.Apply(ctx, set); err != nil {
			return err
		}
	}
	if err := sink.Commit(ctx); err != nil {
		return err
	}

	select {
	case <-time.After(stimDuration):
	case <-ctx.Done():
		slog.Info("Stimulation interrupted")
	}

	offCtx, cancel := contextWithSafetyTimeout()
	defer cancel()
	if err := sink.StopRun(offCtx); err != nil {
		return err
	}
	if err := sink.DisableAll(offCtx, ti.Pair.Channels()); err != nil {
		return err
	}

	fmt.Printf("Stimulated %s for %s\n", ti.String(), stimDuration)
	return nil
}

// contextWithSafetyTimeout returns a context for shutdown commands that must
// run even after the main context was cancelled.
func contextWithSafetyTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
