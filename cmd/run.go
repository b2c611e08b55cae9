package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ticontrol/internal/config"
	"ticontrol/internal/loop"
	"ticontrol/internal/objective"
	"ticontrol/internal/opt"
	"ticontrol/internal/rhx"
	"ticontrol/internal/stim"
	"ticontrol/internal/store"
)

var (
	runTarget    string
	runModel     string
	runSeed      int64
	runIters     int
	runMayflyPop int
	runNoPenalty bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run closed-loop TI optimization against the rig",
	Long: `Runs the closed-loop optimization: apply a candidate configuration,
wait for settle, collect one recording epoch, evaluate per-channel modulation
indices, score selectivity against the target channel, and let the model
propose the next configuration until the run converges.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&runTarget, "target", "", "Target recording channel, e.g. a-042 (required)")
	runCmd.Flags().StringVar(&runModel, "model", "mayfly", "Optimization model: mayfly, sweep")
	runCmd.Flags().Int64Var(&runSeed, "seed", 42, "Random seed")
	runCmd.Flags().IntVar(&runIters, "iters", 0, "Max iterations (0 = config value)")
	runCmd.Flags().IntVar(&runMayflyPop, "pop", 10, "Mayfly population size")
	runCmd.Flags().BoolVar(&runNoPenalty, "no-off-target-penalty", false, "Score raw target MI without the worst-case off-target penalty")

	runCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if runIters > 0 {
		cfg.Loop.MaxIterations = runIters
	}
	space := cfg.SearchSpace()

	// Rig connections.
	client, err := rhx.DialCommand(cfg.Rig.CommandAddr(), 0)
	if err != nil {
		return err
	}
	defer client.Close()
	sink := rhx.NewStimSink(client)

	source, err := rhx.DialWaveform(cfg.Rig.WaveformAddr(), cfg.Rig.ChannelNames(), cfg.Rig.SampleRateHz, cfg.Loop.CollectTimeout.Std())
	if err != nil {
		return err
	}
	defer source.Close()

	setupCtx, cancelSetup := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancelSetup()
	if err := source.EnableStreaming(setupCtx, client); err != nil {
		return fmt.Errorf("failed to enable waveform streaming: %w", err)
	}

	// Model.
	model, err := buildModel(runModel, space, cfg.Loop.MaxIterations)
	if err != nil {
		return err
	}

	loopCfg := loop.Config{
		Target:           runTarget,
		Space:            space,
		Pulse:            cfg.PulseSpec(),
		SettleDelay:      cfg.Loop.SettleDelay.Std(),
		EpochDuration:    cfg.Loop.EpochDuration.Std(),
		CollectTimeout:   cfg.Loop.CollectTimeout.Std(),
		MaxIterations:    cfg.Loop.MaxIterations,
		Epsilon:          cfg.Loop.Epsilon,
		StagnationWindow: cfg.Loop.StagnationWindow,
	}
	scorer := objective.Scorer{DisableOffTarget: runNoPenalty}

	controller, err := loop.New(loopCfg, sink, source, model, scorer)
	if err != nil {
		return err
	}

	// Persistence.
	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return err
	}
	runID := uuid.New().String()
	record := &store.RunRecord{
		RunID:     runID,
		Status:    string(loop.StatusAborted),
		StartTime: time.Now(),
		Config: store.RunConfig{
			Target:           runTarget,
			Model:            runModel,
			Pairs:            len(space.Pairs),
			AmpMinUA:         space.AmpMinUA,
			AmpMaxUA:         space.AmpMaxUA,
			AmpStepUA:        space.AmpStepUA,
			FreqAHz:          space.FreqAHz,
			FreqBHz:          space.FreqBHz,
			MaxIterations:    loopCfg.MaxIterations,
			Epsilon:          loopCfg.Epsilon,
			StagnationWindow: loopCfg.StagnationWindow,
			Seed:             runSeed,
		},
	}
	if err := fsStore.SaveRun(record); err != nil {
		return err
	}

	trace, err := store.NewTraceWriter(filepath.Join(fsStore.RunDir(runID), "trace.jsonl"))
	if err != nil {
		return err
	}
	defer trace.Close()
	csvLog, err := store.NewCSVLogger(filepath.Join(fsStore.RunDir(runID), "log.csv"))
	if err != nil {
		return err
	}
	defer csvLog.Close()

	controller.OnObservation(func(iteration int, obs opt.Observation) {
		if err := trace.WriteObservation(iteration, obs); err != nil {
			slog.Warn("Trace write failed", "error", err)
		}
		if err := csvLog.LogObservation(obs); err != nil {
			slog.Warn("CSV log write failed", "error", err)
		}
	})

	// Run, cancellable by SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting run", "run_id", runID, "target", runTarget, "model", runModel)
	start := time.Now()
	result, runErr := controller.Run(ctx)
	elapsed := time.Since(start)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := sink.StopRun(stopCtx); err != nil {
		slog.Warn("Failed to stop acquisition", "error", err)
	}

	record.Status = string(result.Status)
	record.Best = result.Best
	record.Iterations = result.Iterations
	record.EndTime = time.Now()
	if result.Err != nil {
		record.Error = result.Err.Error()
	}
	if err := fsStore.SaveRun(record); err != nil {
		slog.Error("Failed to save run record", "error", err)
	}

	if result.Best != nil {
		fmt.Printf("Run %s %s after %d iterations in %s\n", runID, result.Status, result.Iterations, elapsed.Round(time.Second))
		fmt.Printf("Best: %s (score %.4f)\n", result.Best.Config, result.Best.Score)
	} else {
		fmt.Printf("Run %s %s with no completed observations\n", runID, result.Status)
	}
	return runErr
}

func buildModel(name string, space stim.SearchSpace, maxIterations int) (opt.Model, error) {
	switch name {
	case "sweep":
		return opt.NewSweep(space, runSeed)
	case "mayfly":
		iterations := maxIterations/runMayflyPop + 1
		return opt.NewMayfly(space, iterations, runMayflyPop, runSeed)
	default:
		return nil, fmt.Errorf("unknown model: %s", name)
	}
}
