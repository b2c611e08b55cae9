// Package config provides YAML-backed configuration for the rig connection,
// stimulation defaults, loop tuning and search bounds. Missing files fall
// back to defaults; explicit values are validated on load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ticontrol/internal/stim"
)

// Duration wraps time.Duration so YAML values like "250ms" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config contains all rig and loop configuration settings.
type Config struct {
	// Rig holds the RHX connection settings.
	Rig RigConfig `yaml:"rig"`

	// Stim holds the pulse and carrier defaults shared by every
	// configuration the loop applies.
	Stim StimConfig `yaml:"stim"`

	// Loop tunes the closed-loop controller.
	Loop LoopConfig `yaml:"loop"`

	// Search bounds what the optimization model may propose.
	Search SearchConfig `yaml:"search"`

	// DataDir is where run records, traces and CSV logs are written.
	DataDir string `yaml:"data_dir"`
}

// RigConfig identifies the RHX controller endpoints.
type RigConfig struct {
	Host         string  `yaml:"host"`
	CommandPort  int     `yaml:"command_port"`
	WaveformPort int     `yaml:"waveform_port"`
	SampleRateHz float64 `yaml:"sample_rate_hz"`

	// RecordingChannels is how many amplifier channels the rig streams.
	RecordingChannels int `yaml:"recording_channels"`
}

// CommandAddr returns the command server address.
func (r RigConfig) CommandAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.CommandPort)
}

// WaveformAddr returns the waveform output server address.
func (r RigConfig) WaveformAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.WaveformPort)
}

// ChannelNames lists the rig's recording channels in stream order.
func (r RigConfig) ChannelNames() []string {
	names := make([]string, r.RecordingChannels)
	for i := range names {
		names[i] = string(stim.ChannelName(i))
	}
	return names
}

// StimConfig holds carrier frequencies and pulse-shape defaults.
type StimConfig struct {
	FreqAHz           float64 `yaml:"freq_a_hz"`
	FreqBHz           float64 `yaml:"freq_b_hz"`
	PhaseDurationUs   int     `yaml:"phase_duration_us"`
	InterphaseDelayUs int     `yaml:"interphase_delay_us"`
	NumPulses         int     `yaml:"num_pulses"`
	TriggerSource     string  `yaml:"trigger_source"`
}

// LoopConfig tunes the controller's timing and stopping rule.
type LoopConfig struct {
	SettleDelay      Duration `yaml:"settle_delay"`
	EpochDuration    Duration `yaml:"epoch_duration"`
	CollectTimeout   Duration `yaml:"collect_timeout"`
	MaxIterations    int      `yaml:"max_iterations"`
	Epsilon          float64  `yaml:"epsilon"`
	StagnationWindow int      `yaml:"stagnation_window"`
}

// SearchConfig bounds the optimization.
type SearchConfig struct {
	// Pairs explicitly lists the channel pairs to search. When empty,
	// StimChannels consecutive channels are grouped into dipole quads
	// (source A, source B, return A, return B).
	Pairs        []stim.ChannelPair `yaml:"pairs"`
	StimChannels int                `yaml:"stim_channels"`
	AmpMinUA     int                `yaml:"amp_min_ua"`
	AmpMaxUA     int                `yaml:"amp_max_ua"`
	AmpStepUA    int                `yaml:"amp_step_ua"`
}

// Default returns the rig's standard configuration: local RHX at 30 kS/s,
// 1200/1250 Hz carriers, 100 µs biphasic phases, a 2 s settle and 250 ms
// epochs, and the 33–1000 µA grid.
func Default() Config {
	return Config{
		Rig: RigConfig{
			Host:              "127.0.0.1",
			CommandPort:       5000,
			WaveformPort:      5001,
			SampleRateHz:      30000,
			RecordingChannels: 128,
		},
		Stim: StimConfig{
			FreqAHz:           1200,
			FreqBHz:           1250,
			PhaseDurationUs:   100,
			InterphaseDelayUs: 0,
			NumPulses:         255,
			TriggerSource:     "KeyPressF1",
		},
		Loop: LoopConfig{
			SettleDelay:      Duration(2 * time.Second),
			EpochDuration:    Duration(250 * time.Millisecond),
			CollectTimeout:   Duration(10 * time.Second),
			MaxIterations:    50,
			Epsilon:          0.005,
			StagnationWindow: 5,
		},
		Search: SearchConfig{
			StimChannels: 12,
			AmpMinUA:     33,
			AmpMaxUA:     1000,
			AmpStepUA:    10,
		},
		DataDir: "data",
	}
}

// Load reads the configuration file at path, layered over defaults. A
// missing file (or empty path) yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the loop cannot run with.
func (c Config) Validate() error {
	if c.Rig.Host == "" {
		return fmt.Errorf("rig host is empty")
	}
	if c.Rig.CommandPort <= 0 || c.Rig.WaveformPort <= 0 {
		return fmt.Errorf("rig ports must be positive")
	}
	if c.Rig.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.Rig.RecordingChannels <= 0 {
		return fmt.Errorf("recording channel count must be positive")
	}
	if len(c.Search.Pairs) == 0 && c.Search.StimChannels < 4 {
		return fmt.Errorf("at least 4 stim channels are needed to form a dipole pair")
	}
	return c.SearchSpace().Validate()
}

// SearchSpace assembles the stim.SearchSpace the config describes.
func (c Config) SearchSpace() stim.SearchSpace {
	pairs := c.Search.Pairs
	if len(pairs) == 0 {
		pairs = DefaultPairs(c.Search.StimChannels)
	}
	return stim.SearchSpace{
		Pairs:     pairs,
		AmpMinUA:  c.Search.AmpMinUA,
		AmpMaxUA:  c.Search.AmpMaxUA,
		AmpStepUA: c.Search.AmpStepUA,
		FreqAHz:   c.Stim.FreqAHz,
		FreqBHz:   c.Stim.FreqBHz,
	}
}

// PulseSpec assembles the pulse defaults the config describes.
func (c Config) PulseSpec() stim.PulseSpec {
	return stim.PulseSpec{
		PhaseDurationUs:   c.Stim.PhaseDurationUs,
		InterphaseDelayUs: c.Stim.InterphaseDelayUs,
		NumPulses:         c.Stim.NumPulses,
		TriggerSource:     c.Stim.TriggerSource,
	}
}

// DefaultPairs groups the first n stimulation channels into consecutive
// dipole quads: sources first, then their return paths.
func DefaultPairs(n int) []stim.ChannelPair {
	pairs := make([]stim.ChannelPair, 0, n/4)
	for i := 0; i+3 < n; i += 4 {
		pairs = append(pairs, stim.ChannelPair{
			A:       stim.ChannelName(i),
			B:       stim.ChannelName(i + 1),
			ReturnA: stim.ChannelName(i + 2),
			ReturnB: stim.ChannelName(i + 3),
		})
	}
	return pairs
}
