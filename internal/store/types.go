package store

import (
	"time"

	"ticontrol/internal/opt"
)

// RunConfig summarizes the settings a run was started with, enough to
// interpret its record without the full controller configuration.
type RunConfig struct {
	Target           string  `json:"target"`
	Model            string  `json:"model"` // sweep, mayfly
	Pairs            int     `json:"pairs"`
	AmpMinUA         int     `json:"ampMinUA"`
	AmpMaxUA         int     `json:"ampMaxUA"`
	AmpStepUA        int     `json:"ampStepUA"`
	FreqAHz          float64 `json:"freqAHz"`
	FreqBHz          float64 `json:"freqBHz"`
	MaxIterations    int     `json:"maxIterations"`
	Epsilon          float64 `json:"epsilon"`
	StagnationWindow int     `json:"stagnationWindow"`
	Seed             int64   `json:"seed"`
}

// RunRecord is the persisted outcome of one closed-loop run. The record
// keeps only the best observation; the full history lives in the JSONL trace
// next to it.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Status is the terminal state, "converged" or "aborted"
	Status string `json:"status"`

	// Config holds the run settings summary
	Config RunConfig `json:"config"`

	// Best is the arg-max score observation, nil when the run produced none
	Best *opt.Observation `json:"best,omitempty"`

	// Iterations is how many scored iterations completed
	Iterations int `json:"iterations"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	// Error carries the fatal error message of an aborted run
	Error string `json:"error,omitempty"`
}

// RunInfo contains run metadata without the observation payload, used for
// listing runs efficiently.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Status     string    `json:"status"`
	Target     string    `json:"target"`
	Model      string    `json:"model"`
	BestScore  float64   `json:"bestScore"`
	Iterations int       `json:"iterations"`
	StartTime  time.Time `json:"startTime"`
}
