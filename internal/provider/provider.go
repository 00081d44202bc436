// Package provider owns the process-wide model handle and its load lifecycle.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/inference"
)

// DefaultRetryBackoff is the pause Recover keeps after a failed load.
const DefaultRetryBackoff = 30 * time.Second

// State is the model lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateLoading, StateReady, StateError} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown model state %q", b)
}

// Loader creates a model. It may block for a long time.
type Loader interface {
	Load(ctx context.Context) (inference.Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (inference.Model, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (inference.Model, error) { return f(ctx) }

// ModelLoadError wraps a failed load.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string { return fmt.Sprintf("model load failed: %v", e.Err) }

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Option customises a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Provider) { p.logger = l } }

// WithLoadTimeout bounds each load attempt. Zero means no bound.
func WithLoadTimeout(d time.Duration) Option { return func(p *Provider) { p.timeout = d } }

// WithRetryBackoff sets how long Recover waits after a failed load before
// trying again.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithStateHook registers fn to be called after every state change.
func WithStateHook(fn func(State)) Option { return func(p *Provider) { p.hook = fn } }

// Provider loads a model at most once at a time and shares it read-only.
type Provider struct {
	loader  Loader
	logger  *slog.Logger
	timeout time.Duration
	backoff time.Duration
	hook    func(State)

	mu       sync.Mutex
	state    State
	model    inference.Model
	err      error
	failedAt time.Time
	done     chan struct{}
	gen      uint64

	loads atomic.Int64
}

// New creates an idle provider.
func New(loader Loader, opts ...Option) *Provider {
	p := &Provider{loader: loader, logger: slog.Default(), backoff: DefaultRetryBackoff}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Load ensures the model is loaded. Concurrent callers share one in-flight
// load. If ctx ends first Load returns ctx.Err() and the load carries on.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateReady {
		p.mu.Unlock()
		return nil
	}
	done := p.done
	if done == nil {
		done = p.startLocked(context.WithoutCancel(ctx))
	}
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateReady:
		return nil
	case StateError:
		return &ModelLoadError{Err: p.err}
	default:
		return &ModelLoadError{Err: errors.New("provider closed during load")}
	}
}

// Preload starts a background load when the provider is idle or failed.
// It never blocks.
func (p *Provider) Preload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReady || p.done != nil {
		return
	}
	p.startLocked(context.Background())
}

// Recover starts a background load when the last load failed at least the
// retry backoff ago. It reports whether a load was started and never blocks.
func (p *Provider) Recover() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateError || p.done != nil {
		return false
	}
	if time.Since(p.failedAt) < p.backoff {
		return false
	}
	p.logger.Info("retrying failed model load", "last_error", p.err)
	p.startLocked(context.Background())
	return true
}

// startLocked moves to loading and launches the loader. p.mu must be held.
func (p *Provider) startLocked(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	p.done = done
	p.err = nil
	p.gen++
	p.setStateLocked(StateLoading)
	go p.run(ctx, p.gen, done)
	return done
}

func (p *Provider) run(ctx context.Context, gen uint64, done chan struct{}) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	p.loads.Add(1)
	p.logger.Info("loading model")
	model, err := p.safeLoad(ctx)
	if err == nil && model == nil {
		err = errors.New("loader returned no model")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	defer close(done)

	if gen != p.gen {
		// Closed while loading; drop the result.
		if model != nil {
			_ = model.Close()
		}
		return
	}
	p.done = nil

	if err != nil {
		p.err = err
		p.model = nil
		p.failedAt = time.Now()
		p.setStateLocked(StateError)
		p.logger.Error("model load failed", "error", err, "duration", time.Since(start))
		return
	}
	p.model = model
	p.setStateLocked(StateReady)
	p.logger.Info("model ready", "labels", len(model.Labels()), "duration", time.Since(start))
}

func (p *Provider) safeLoad(ctx context.Context) (m inference.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	if p.loader == nil {
		return nil, errors.New("no model loader configured")
	}
	return p.loader.Load(ctx)
}

func (p *Provider) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.logger.Debug("model state changed", "from", p.state, "state", s)
	p.state = s
	if p.hook != nil {
		p.hook(s)
	}
}

// Status returns the current state.
func (p *Provider) Status() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsReady reports whether a model is available.
func (p *Provider) IsReady() bool { return p.Status() == StateReady }

// Model returns the loaded model when ready.
func (p *Provider) Model() (inference.Model, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReady || p.model == nil {
		return nil, false
	}
	return p.model, true
}

// Err returns the last load error, if the provider is in the error state.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// LoadCount returns how many times the loader has been invoked.
func (p *Provider) LoadCount() int64 { return p.loads.Load() }

// Close releases the model and returns the provider to idle. A load still in
// flight is abandoned and its model closed when it arrives.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.done = nil
	p.err = nil
	var err error
	if p.model != nil {
		err = p.model.Close()
		p.model = nil
	}
	p.setStateLocked(StateIdle)
	return err
}
