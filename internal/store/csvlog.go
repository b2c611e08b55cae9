package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"ticontrol/internal/opt"
	"ticontrol/internal/stim"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// CSVLogger mirrors each observation into a CSV stimulation log, one row per
// applied configuration. The column layout follows the rig's historical log
// files so downstream analysis keeps working.
type CSVLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVLogger creates the log file and writes the header row.
func NewCSVLogger(path string) (*CSVLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV log: %w", err)
	}
	writer := csv.NewWriter(file)
	header := []string{
		"Date-Time",
		"Channel A", "Channel B",
		"Frequency A (Hz)", "Frequency B (Hz)",
		"Amplitude A (uA)", "Amplitude B (uA)",
		"Score",
	}
	if err := writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	writer.Flush()
	return &CSVLogger{file: file, writer: writer}, nil
}

// LogObservation appends one scored configuration, flushing immediately.
func (l *CSVLogger) LogObservation(obs opt.Observation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := obs.Config
	row := []string{
		obs.Time.Format(csvTimeLayout),
		string(cfg.Pair.A), string(cfg.Pair.B),
		strconv.FormatFloat(cfg.FreqAHz, 'f', -1, 64),
		strconv.FormatFloat(cfg.FreqBHz, 'f', -1, 64),
		strconv.Itoa(cfg.AmplitudeAUA), strconv.Itoa(cfg.AmplitudeBUA),
		strconv.FormatFloat(obs.Score, 'g', -1, 64),
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the log.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// SweepLogger writes the single-channel characterization sweep's log with
// the historical "Date-Time, Channel, Amplitude (uA)" layout.
type SweepLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewSweepLogger creates the sweep log file and writes the header row.
func NewSweepLogger(path string) (*SweepLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep log: %w", err)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Date-Time", "Channel", "Amplitude (uA)"}); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write sweep log header: %w", err)
	}
	writer.Flush()
	return &SweepLogger{file: file, writer: writer}, nil
}

// LogStim appends one stimulation event.
func (l *SweepLogger) LogStim(ch stim.ChannelID, amplitudeUA int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{time.Now().Format(csvTimeLayout), string(ch), strconv.Itoa(amplitudeUA)}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write sweep log row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the log.
func (l *SweepLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
