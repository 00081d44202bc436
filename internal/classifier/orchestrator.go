package classifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
)

// Orchestrator is the single entry point for classification. Apart from a
// ValidationError it always returns a valid result.
type Orchestrator struct {
	backend    Classifier
	fallback   *Fallback
	gate       food.Gate
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithGate sets the confidence gate.
func WithGate(g food.Gate) Option { return func(o *Orchestrator) { o.gate = g } }

// WithRetryDelay sets the pause between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithFallback replaces the fallback generator.
func WithFallback(f *Fallback) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fallback = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// NewOrchestrator wraps backend.
func NewOrchestrator(backend Classifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:    backend,
		fallback:   NewFallback(DefaultFallbackBucket),
		gate:       food.DefaultGate(),
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Backend returns the wrapped classifier.
func (o *Orchestrator) Backend() Classifier { return o.backend }

// Gate returns the confidence gate.
func (o *Orchestrator) Gate() food.Gate { return o.gate }

// LoadModel loads the backend model.
func (o *Orchestrator) LoadModel(ctx context.Context) error {
	if o.backend == nil {
		return ErrModelUnavailable
	}
	return o.backend.LoadModel(ctx)
}

// Status returns the backend model state.
func (o *Orchestrator) Status() provider.State {
	if o.backend == nil {
		return provider.StateIdle
	}
	return o.backend.Status()
}

// IsConfident applies the configured gate.
func (o *Orchestrator) IsConfident(r food.ClassificationResult) bool {
	return o.gate.IsConfident(r)
}

func validate(res preprocess.Resource) error {
	if preprocess.IsEmpty(res) {
		return &ValidationError{Field: "resource", Reason: "missing or empty image"}
	}
	return nil
}

// Classify classifies res once. Backend failures yield the fallback result.
func (o *Orchestrator) Classify(ctx context.Context, res preprocess.Resource) (Result, error) {
	if err := validate(res); err != nil {
		return Result{}, err
	}
	r := o.attempt(ctx, res)
	r.Attempts = 1
	return r, nil
}

func (o *Orchestrator) attempt(ctx context.Context, res preprocess.Resource) Result {
	start := time.Now()
	var (
		r   Result
		err error
	)
	if o.backend == nil {
		err = ErrModelUnavailable
	} else {
		r, err = o.backend.Classify(ctx, res)
	}

	if err == nil && !r.Valid() {
		err = errors.New("backend returned an invalid result")
	}
	if err != nil {
		r = o.fallbackResult(res, r.ModelState)
		level := slog.LevelWarn
		if IsUnavailable(err) {
			level = slog.LevelInfo
		}
		o.logger.Log(ctx, level, "classification fell back",
			"resource", res.ID(),
			"state", r.ModelState,
			"error", err)
	}
	r.Duration = time.Since(start)
	return r
}

func (o *Orchestrator) fallbackResult(res preprocess.Resource, state provider.State) Result {
	if o.backend != nil && state == provider.StateIdle {
		state = o.backend.Status()
	}
	fr := o.fallback.Classify(res.ID())
	fr.Confidence = food.ClampConfidence(fr.Confidence)
	// A guess must never pass the gate, whatever threshold is configured.
	if gate := o.gate.MinConfidence(); fr.Confidence >= gate {
		fr.Confidence = food.ClampConfidence(gate - 1)
	}
	return Result{
		ClassificationResult: fr,
		Provenance:           ProvenanceFallback,
		ModelState:           state,
	}
}

// ClassifyWithRetry makes up to maxRetries attempts (at least one), pausing
// between them. It returns the first non-fallback result reaching
// minConfidence, or else the most confident one, earlier attempts winning ties.
func (o *Orchestrator) ClassifyWithRetry(ctx context.Context, res preprocess.Resource, minConfidence, maxRetries int) (Result, error) {
	if err := validate(res); err != nil {
		return Result{}, err
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var best Result
	attempts := 0
	for i := range maxRetries {
		if i > 0 && !o.wait(ctx) {
			break
		}
		r := o.attempt(ctx, res)
		attempts++
		if attempts == 1 || r.Confidence > best.Confidence {
			best = r
		}
		if r.Provenance != ProvenanceFallback && r.Confidence >= minConfidence {
			best = r
			break
		}
		o.logger.DebugContext(ctx, "attempt below target",
			"resource", res.ID(),
			"attempt", attempts,
			"confidence", r.Confidence,
			"target", minConfidence)
	}
	best.Attempts = attempts
	return best, nil
}

// wait sleeps for the retry delay; it reports false if ctx ended first.
func (o *Orchestrator) wait(ctx context.Context) bool {
	if o.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the backend.
func (o *Orchestrator) Close() error {
	if o.backend == nil {
		return nil
	}
	return o.backend.Close()
}
