package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticontrol/internal/config"
	"ticontrol/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List persisted runs or show one run's record",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func showRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return showRun(fsStore, args[0])
	}

	infos, err := fsStore.ListRuns()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(infos))
	for _, info := range infos {
		fmt.Printf("Run ID: %s\n", info.RunID)
		fmt.Printf("  Status: %s\n", info.Status)
		fmt.Printf("  Target: %s\n", info.Target)
		fmt.Printf("  Model: %s\n", info.Model)
		fmt.Printf("  Iterations: %d\n", info.Iterations)
		if info.Iterations > 0 {
			fmt.Printf("  Best score: %.4f\n", info.BestScore)
		}
		fmt.Println()
	}
	return nil
}

func showRun(fsStore *store.FSStore, runID string) error {
	record, err := fsStore.LoadRun(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s\n", record.RunID)
	fmt.Printf("Status: %s\n", record.Status)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Target: %s\n", record.Config.Target)
	fmt.Printf("  Model: %s\n", record.Config.Model)
	fmt.Printf("  Pairs: %d\n", record.Config.Pairs)
	fmt.Printf("  Amplitudes: [%d, %d] µA step %d\n", record.Config.AmpMinUA, record.Config.AmpMaxUA, record.Config.AmpStepUA)
	fmt.Printf("  Carriers: %g / %g Hz\n", record.Config.FreqAHz, record.Config.FreqBHz)
	fmt.Printf("  Stopping: %d iterations max, epsilon %g over %d\n",
		record.Config.MaxIterations, record.Config.Epsilon, record.Config.StagnationWindow)
	fmt.Println()
	fmt.Printf("Iterations: %d\n", record.Iterations)
	if record.Best != nil {
		fmt.Printf("Best: %s (score %.4f)\n", record.Best.Config, record.Best.Score)
	}
	if record.Error != "" {
		fmt.Printf("\nError: %s\n", record.Error)
	}
	return nil
}
