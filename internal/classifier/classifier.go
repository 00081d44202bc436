// Package classifier turns image resources into food classification results.
// Orchestrator wraps any Classifier with validation, a deterministic fallback,
// retries and the confidence gate.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
)

const (
	// NoMatchConfidence is reported with the default category when no
	// prediction maps onto a category.
	NoMatchConfidence = 25
	// DefaultTopN is how many ranked predictions are offered to the mapper.
	DefaultTopN = 5
	// DefaultRetryDelay separates attempts in ClassifyWithRetry.
	DefaultRetryDelay = 300 * time.Millisecond
)

// Provenance records where a result came from.
type Provenance string

const (
	ProvenanceModel    Provenance = "model"
	ProvenanceNoMatch  Provenance = "no_match"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceMock     Provenance = "mock"
)

// ErrModelUnavailable is returned while the model is not ready.
var ErrModelUnavailable = errors.New("model unavailable")

// ValidationError reports a request rejected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns nil; validation errors have no cause.
func (e *ValidationError) Unwrap() error { return nil }

// Result is a classification with provenance details.
type Result struct {
	food.ClassificationResult
	Provenance Provenance     `json:"provenance"`
	ModelState provider.State `json:"model_state"`
	// Label is the model label the category was mapped from, if any.
	Label    string        `json:"label,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// Classifier is a classification backend.
type Classifier interface {
	// LoadModel prepares the backend. It may block until a model is ready.
	LoadModel(ctx context.Context) error
	// Classify returns a result or an error the Orchestrator falls back on.
	Classify(ctx context.Context, res preprocess.Resource) (Result, error)
	Status() provider.State
	Close() error
}
