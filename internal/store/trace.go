package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"ticontrol/internal/opt"
	"ticontrol/internal/stim"
)

// TraceEntry is one line of the observation trace. Each entry is serialized
// as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Iteration is the closed-loop iteration number (1-based)
	Iteration int `json:"iteration"`

	// Config is the configuration that was applied
	Config stim.TIConfiguration `json:"config"`

	// Score is the objective score the configuration produced
	Score float64 `json:"score"`

	// Timestamp records when the observation was made
	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter appends observation entries to a JSONL file. It uses buffered
// I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates a trace writer at the given path, truncating any
// existing file.
func NewTraceWriter(path string) (*TraceWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// WriteObservation appends one scored iteration to the trace.
func (tw *TraceWriter) WriteObservation(iteration int, obs opt.Observation) error {
	return tw.Write(TraceEntry{
		Iteration: iteration,
		Config:    obs.Config,
		Score:     obs.Score,
		Timestamp: obs.Time,
	})
}

// Write appends a trace entry. The entry is buffered and flushed per line so
// an interrupted run still leaves a readable trace.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize trace entry: %w", err)
	}
	if _, err := tw.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return tw.writer.Flush()
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return tw.file.Close()
}

// ReadTrace loads every entry of a trace file, for diagnostics and replay.
func ReadTrace(path string) ([]TraceEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse trace line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return entries, nil
}
