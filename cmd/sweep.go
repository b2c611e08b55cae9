package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticontrol/internal/config"
	"ticontrol/internal/rhx"
	"ticontrol/internal/stim"
	"ticontrol/internal/store"
)

var (
	sweepChannelStart int
	sweepChannelEnd   int
	sweepCurrentStart int
	sweepCurrentEnd   int
	sweepCurrentStep  int
	sweepPhaseUs      int
	sweepStimTime     time.Duration
	sweepOutFolder    string
	sweepSeed         int64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Random round-robin single-channel sweep for return-path characterization",
	Long: `Sweeps a channel range one channel at a time: amplitudes are drawn in
random order without replacement, the channel order is reshuffled per
amplitude, and every stimulation is logged to a timestamped CSV file.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepChannelStart, "channel-start", 0, "First channel index")
	sweepCmd.Flags().IntVar(&sweepChannelEnd, "channel-end", 31, "Last channel index (inclusive)")
	sweepCmd.Flags().IntVar(&sweepCurrentStart, "current-start", 33, "First amplitude in µA")
	sweepCmd.Flags().IntVar(&sweepCurrentEnd, "current-end", 1000, "Last amplitude in µA")
	sweepCmd.Flags().IntVar(&sweepCurrentStep, "current-step", 66, "Amplitude step in µA")
	sweepCmd.Flags().IntVar(&sweepPhaseUs, "phase-us", 660, "Phase duration in µs for both phases")
	sweepCmd.Flags().DurationVar(&sweepStimTime, "stim-time", 10*time.Second, "How long to stimulate per channel")
	sweepCmd.Flags().StringVar(&sweepOutFolder, "out", "timing", "Output folder for CSV logs")
	sweepCmd.Flags().Int64Var(&sweepSeed, "seed", time.Now().UnixNano(), "Random seed for the sweep order")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if sweepChannelEnd < sweepChannelStart {
		return fmt.Errorf("channel range [%d, %d] is empty", sweepChannelStart, sweepChannelEnd)
	}

	client, err := rhx.DialCommand(cfg.Rig.CommandAddr(), 0)
	if err != nil {
		return err
	}
	defer client.Close()
	sink := rhx.NewStimSink(client)

	if err := os.MkdirAll(sweepOutFolder, 0755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	logPath := filepath.Join(sweepOutFolder, time.Now().Format("2006-01-02_15-04-05")+".csv")
	logger, err := store.NewSweepLogger(logPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	channels := make([]stim.ChannelID, 0, sweepChannelEnd-sweepChannelStart+1)
	for i := sweepChannelStart; i <= sweepChannelEnd; i++ {
		channels = append(channels, stim.ChannelName(i))
	}
	currents := make([]int, 0)
	for c := sweepCurrentStart; c <= sweepCurrentEnd; c += sweepCurrentStep {
		currents = append(currents, c)
	}

	rng := rand.New(rand.NewSource(sweepSeed))
	rng.Shuffle(len(currents), func(i, j int) { currents[i], currents[j] = currents[j], currents[i] })

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting sweep",
		"channels", len(channels),
		"currents", len(currents),
		"log", logPath,
	)

	var previous stim.ChannelID
	for _, current := range currents {
		rng.Shuffle(len(channels), func(i, j int) { channels[i], channels[j] = channels[j], channels[i] })
		for _, channel := range channels {
			if ctx.Err() != nil {
				slog.Info("Sweep interrupted")
				return disablePrevious(sink, previous)
			}
			slog.Info("Stimulating", "channel", channel, "current_ua", current)

			if previous != "" {
				if err := sink.Disable(ctx, previous); err != nil {
					return err
				}
			}

			set := sweepParameterSet(channel, current)
			if err := sink.Apply(ctx, set); err != nil {
				return err
			}
			if err := sink.Commit(ctx); err != nil {
				return err
			}
			if err := logger.LogStim(channel, current); err != nil {
				return err
			}

			select {
			case <-time.After(sweepStimTime):
			case <-ctx.Done():
			}

			if err := sink.StopRun(ctx); err != nil {
				return err
			}
			previous = channel
			time.Sleep(time.Second)
		}
	}

	return disablePrevious(sink, previous)
}

// sweepParameterSet builds the single-channel characterization pulse train:
// long biphasic phases, a 100-pulse burst at 100 Hz.
func sweepParameterSet(ch stim.ChannelID, currentUA int) stim.ParameterSet {
	return stim.ParameterSet{
		Channel:           ch,
		Enabled:           true,
		Shape:             stim.ShapeBiphasic,
		Polarity:          stim.PositiveFirst,
		TriggerSource:     "KeyPressF1",
		FirstPhaseUs:      sweepPhaseUs,
		SecondPhaseUs:     sweepPhaseUs,
		InterphaseDelayUs: 0,
		FirstAmplitudeUA:  currentUA,
		SecondAmplitudeUA: currentUA,
		NumPulses:         100,
		TrainPeriodUs:     10000,
	}
}

func disablePrevious(sink *rhx.StimSink, previous stim.ChannelID) error {
	if previous == "" {
		return nil
	}
	offCtx, cancel := contextWithSafetyTimeout()
	defer cancel()
	return sink.Disable(offCtx, previous)
}
