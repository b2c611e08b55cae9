// Package loop implements the closed-loop optimization controller: apply a
// configuration, wait for settle, collect an epoch, evaluate modulation
// indices, score, update the model, propose the next configuration, repeat
// until convergence or abort.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ticontrol/internal/mi"
	"ticontrol/internal/objective"
	"ticontrol/internal/opt"
	"ticontrol/internal/stim"
)

// CommandSink applies validated parameter sets to the rig. Implementations
// report per-call success or failure; the controller treats any failure as
// fatal to the current iteration's apply step.
type CommandSink interface {
	// Apply stages one parameter set on its channel.
	Apply(ctx context.Context, set stim.ParameterSet) error

	// Commit uploads the staged parameters and triggers the pulse trains.
	Commit(ctx context.Context) error

	// Disable turns one stimulation channel off.
	Disable(ctx context.Context, ch stim.ChannelID) error
}

// DataSource delivers one recording epoch of the requested duration,
// blocking until the epoch is assembled or the context expires.
type DataSource interface {
	ReadEpoch(ctx context.Context, d time.Duration) (*mi.Epoch, error)
}

// Phase names one state of the controller's state machine.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseApply    Phase = "apply"
	PhaseSettle   Phase = "settle"
	PhaseCollect  Phase = "collect"
	PhaseEvaluate Phase = "evaluate"
	PhaseScore    Phase = "score"
	PhaseUpdate   Phase = "update"
)

// Status is the terminal state of a run. Terminal states are final; the
// loop never restarts itself. Construct a new Controller to run again.
type Status string

const (
	StatusConverged Status = "converged"
	StatusAborted   Status = "aborted"
)

// Config tunes one controller run.
type Config struct {
	// Target is the recording channel whose modulation index is maximized.
	Target string

	// Space bounds what the model may propose.
	Space stim.SearchSpace

	// Pulse carries the pulse-shape defaults shared by every configuration.
	Pulse stim.PulseSpec

	// InitialConfig optionally seeds the first iteration; when nil the
	// model's first proposal is used instead.
	InitialConfig *stim.TIConfiguration

	// SettleDelay is how long to wait after applying before sampling, so the
	// stimulation reaches steady state.
	SettleDelay time.Duration

	// EpochDuration is how much data to collect per iteration. Must cover at
	// least one beat period.
	EpochDuration time.Duration

	// CollectTimeout bounds the wait for one epoch. A timed-out collect is
	// retried once before the run aborts.
	CollectTimeout time.Duration

	// MaxIterations caps the run length.
	MaxIterations int

	// Epsilon and StagnationWindow define the fallback stopping rule: stop
	// when the best score has not improved by more than Epsilon over the
	// last StagnationWindow iterations.
	Epsilon          float64
	StagnationWindow int
}

// BeatHz returns the beat frequency implied by the space's carrier offset.
func (c Config) BeatHz() float64 {
	d := c.Space.FreqBHz - c.Space.FreqAHz
	if d < 0 {
		return -d
	}
	return d
}

// Validate checks the configuration. All failures are ConfigurationErrors,
// fatal before the first apply.
func (c Config) Validate() error {
	if c.Target == "" {
		return &ConfigurationError{Reason: "no target channel"}
	}
	if err := c.Space.Validate(); err != nil {
		return &ConfigurationError{Reason: "search space", Err: err}
	}
	if c.MaxIterations <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("max iterations must be positive, got %d", c.MaxIterations)}
	}
	if c.SettleDelay < 0 {
		return &ConfigurationError{Reason: "negative settle delay"}
	}
	if c.CollectTimeout <= 0 {
		return &ConfigurationError{Reason: "collect timeout must be positive"}
	}
	if c.Epsilon < 0 {
		return &ConfigurationError{Reason: "negative epsilon"}
	}
	if c.StagnationWindow <= 0 {
		return &ConfigurationError{Reason: "stagnation window must be positive"}
	}
	beat := c.BeatHz()
	if c.EpochDuration.Seconds() < 1/beat {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"epoch duration %s cannot resolve a %.1f Hz beat", c.EpochDuration, beat)}
	}
	if c.InitialConfig != nil && !c.Space.Contains(*c.InitialConfig) {
		return &ConfigurationError{Reason: "initial configuration outside search space"}
	}
	return nil
}

// Result is what a finished run reports. Best is the arg-max score over
// history, earliest observation on ties; Err carries the fatal error of an
// aborted run.
type Result struct {
	Status     Status
	Best       *opt.Observation
	History    []opt.Observation
	Iterations int
	Err        error
}

// Controller owns one closed-loop run. It is single-threaded by design: no
// iteration starts applying before the previous iteration's update finished,
// and the sink and source see at most one in-flight request each.
type Controller struct {
	cfg    Config
	sink   CommandSink
	source DataSource
	model  opt.Model
	scorer objective.Scorer

	phase   Phase
	history []opt.Observation
	applied []stim.ChannelID

	observe func(iteration int, obs opt.Observation)
}

// New validates the configuration and constructs a controller. The currently
// applied configuration is state owned here and handed to the sink each
// iteration, never ambient rig state, so independent controllers can run
// against independent rigs.
func New(cfg Config, sink CommandSink, source DataSource, model opt.Model, scorer objective.Scorer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil || source == nil || model == nil {
		return nil, &ConfigurationError{Reason: "sink, source and model are all required"}
	}
	return &Controller{
		cfg:    cfg,
		sink:   sink,
		source: source,
		model:  model,
		scorer: scorer,
		phase:  PhaseInit,
	}, nil
}

// OnObservation registers a callback invoked after every scored iteration,
// before the model update. Callers use it to serialize observations as they
// are produced. Must be set before Run.
func (c *Controller) OnObservation(fn func(iteration int, obs opt.Observation)) {
	c.observe = fn
}

// Run executes the loop until convergence, abort, or cancellation. The
// returned error is non-nil exactly when the run aborted.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	defer c.closeModel()

	current, err := c.initialConfiguration()
	if err != nil {
		return c.abort(ctx, err)
	}

	beat := c.cfg.BeatHz()
	tracker := NewStagnationTracker(c.cfg.Epsilon, c.cfg.StagnationWindow)

	slog.Info("Starting closed-loop optimization",
		"target", c.cfg.Target,
		"beat_hz", beat,
		"max_iterations", c.cfg.MaxIterations,
		"pairs", len(c.cfg.Space.Pairs),
	)

	for iteration := 1; iteration <= c.cfg.MaxIterations; iteration++ {
		// APPLY
		if err := c.transition(ctx, PhaseApply); err != nil {
			return c.abort(ctx, err)
		}
		if err := c.apply(ctx, current); err != nil {
			return c.abort(ctx, err)
		}

		// SETTLE
		if err := c.transition(ctx, PhaseSettle); err != nil {
			return c.abort(ctx, err)
		}
		if err := c.settle(ctx); err != nil {
			return c.abort(ctx, err)
		}

		// COLLECT
		if err := c.transition(ctx, PhaseCollect); err != nil {
			return c.abort(ctx, err)
		}
		epoch, err := c.collect(ctx)
		if err != nil {
			return c.abort(ctx, err)
		}

		// EVALUATE
		if err := c.transition(ctx, PhaseEvaluate); err != nil {
			return c.abort(ctx, err)
		}
		vector, err := mi.Evaluate(epoch, beat)
		if err != nil {
			// Includes InsufficientDataError: an invariant violation between
			// controller and collector, never retried.
			return c.abort(ctx, fmt.Errorf("evaluate failed: %w", err))
		}

		// SCORE
		if err := c.transition(ctx, PhaseScore); err != nil {
			return c.abort(ctx, err)
		}
		score, err := c.scorer.Score(vector, c.cfg.Target)
		if err != nil {
			return c.abort(ctx, fmt.Errorf("score failed: %w", err))
		}

		// UPDATE
		if err := c.transition(ctx, PhaseUpdate); err != nil {
			return c.abort(ctx, err)
		}
		obs := opt.Observation{Config: current, Score: score, Time: time.Now()}
		c.history = append(c.history, obs)
		if c.observe != nil {
			c.observe(iteration, obs)
		}
		if err := c.model.Update(obs); err != nil {
			return c.abort(ctx, fmt.Errorf("model update failed: %w", err))
		}

		slog.Info("Iteration complete",
			"iteration", iteration,
			"config", current.String(),
			"score", score,
			"best_score", tracker.BestScore(),
		)

		if conv, ok := c.model.(opt.Converger); ok && conv.Converged() {
			slog.Info("Model reports convergence", "iteration", iteration)
			return c.converged(ctx)
		}
		if tracker.Update(score) {
			slog.Info("Stagnation detected, stopping",
				"iteration", iteration,
				"window", c.cfg.StagnationWindow,
				"epsilon", c.cfg.Epsilon,
			)
			return c.converged(ctx)
		}

		next, err := c.model.Propose()
		if err != nil {
			if errors.Is(err, opt.ErrExhausted) {
				slog.Info("Search space exhausted", "iteration", iteration)
				return c.converged(ctx)
			}
			return c.abort(ctx, fmt.Errorf("model propose failed: %w", err))
		}
		if !c.cfg.Space.Contains(next) {
			return c.abort(ctx, &ConfigurationError{
				Reason: fmt.Sprintf("model proposed %s outside the search space", next),
			})
		}
		current = next
	}

	slog.Info("Maximum iterations reached", "max_iterations", c.cfg.MaxIterations)
	return c.converged(ctx)
}

// initialConfiguration picks the run's first configuration: the seed when
// given, the model's first proposal otherwise.
func (c *Controller) initialConfiguration() (stim.TIConfiguration, error) {
	if c.cfg.InitialConfig != nil {
		return *c.cfg.InitialConfig, nil
	}
	cfg, err := c.model.Propose()
	if err != nil {
		return stim.TIConfiguration{}, fmt.Errorf("initial propose failed: %w", err)
	}
	if !c.cfg.Space.Contains(cfg) {
		return stim.TIConfiguration{}, &ConfigurationError{
			Reason: fmt.Sprintf("model proposed %s outside the search space", cfg),
		}
	}
	return cfg, nil
}

// apply stages every parameter set of the configuration and commits them.
// Channels driven by the previous iteration are disabled first so only one
// configuration is ever live. Any failure aborts the run: retrying a
// half-applied pair is unsafe.
func (c *Controller) apply(ctx context.Context, cfg stim.TIConfiguration) error {
	for _, ch := range c.applied {
		if err := c.sink.Disable(ctx, ch); err != nil {
			return &ApplicationError{Channel: ch, Err: err}
		}
	}
	c.applied = nil

	sets := cfg.ParameterSets(c.cfg.Pulse)
	for _, set := range sets {
		if err := set.Validate(); err != nil {
			return &ApplicationError{Channel: set.Channel, Err: err}
		}
		if err := c.sink.Apply(ctx, set); err != nil {
			return &ApplicationError{Channel: set.Channel, Err: err}
		}
	}
	if err := c.sink.Commit(ctx); err != nil {
		return &ApplicationError{Err: err}
	}

	for _, set := range sets {
		c.applied = append(c.applied, set.Channel)
	}
	return nil
}

// settle waits the configured delay, interruptible by cancellation.
func (c *Controller) settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collect reads one epoch, retrying exactly once on timeout with the same
// configuration still applied.
func (c *Controller) collect(ctx context.Context) (*mi.Epoch, error) {
	epoch, err := c.readEpoch(ctx)
	if err == nil {
		return epoch, nil
	}
	if !errors.Is(err, ErrDataTimeout) {
		return nil, err
	}

	slog.Warn("Epoch collection timed out, retrying once", "timeout", c.cfg.CollectTimeout)
	epoch, retryErr := c.readEpoch(ctx)
	if retryErr != nil {
		return nil, retryErr
	}
	return epoch, nil
}

func (c *Controller) readEpoch(ctx context.Context) (*mi.Epoch, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.cfg.CollectTimeout)
	defer cancel()

	epoch, err := c.source.ReadEpoch(readCtx, c.cfg.EpochDuration)
	if err != nil {
		if ctx.Err() != nil {
			// The run itself was cancelled, not the read deadline.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &DataTimeoutError{Timeout: c.cfg.CollectTimeout, Err: err}
		}
		return nil, fmt.Errorf("epoch read failed: %w", err)
	}
	return epoch, nil
}

// transition moves the state machine to the next phase, honoring cooperative
// cancellation at every boundary.
func (c *Controller) transition(ctx context.Context, next Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.phase = next
	slog.Debug("Phase transition", "phase", next)
	return nil
}

// converged finishes the run, shutting stimulation down before reporting.
func (c *Controller) converged(ctx context.Context) (*Result, error) {
	c.shutdownStim(ctx)
	res := &Result{
		Status:     StatusConverged,
		Best:       opt.Best(c.history),
		History:    c.history,
		Iterations: len(c.history),
	}
	return res, nil
}

// abort finishes the run with the fatal error attached. On cancellation any
// live stimulation is disabled before aborting; after a rejected apply the
// rig state is unknown and the disable decision is left to the caller.
func (c *Controller) abort(ctx context.Context, cause error) (*Result, error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		c.shutdownStim(ctx)
	}
	slog.Error("Run aborted", "phase", c.phase, "error", cause)
	res := &Result{
		Status:     StatusAborted,
		Best:       opt.Best(c.history),
		History:    c.history,
		Iterations: len(c.history),
		Err:        cause,
	}
	return res, cause
}

// shutdownStim disables every channel the controller knows to be live. It
// runs on its own deadline so a cancelled run context cannot leave the rig
// stimulating.
func (c *Controller) shutdownStim(_ context.Context) {
	if len(c.applied) == 0 {
		return
	}
	offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, ch := range c.applied {
		if err := c.sink.Disable(offCtx, ch); err != nil {
			slog.Error("Failed to disable channel during shutdown", "channel", ch, "error", err)
		}
	}
	c.applied = nil
}

func (c *Controller) closeModel() {
	if closer, ok := c.model.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("Model close failed", "error", err)
		}
	}
}
