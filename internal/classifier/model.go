package classifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/inference"
	"github.com/MeKo-Tech/foodlens/internal/labelmap"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
)

// Stage names a step of a model-backed classification.
type Stage string

const (
	StagePreprocessing Stage = "preprocessing"
	StageInferring     Stage = "inferring"
	StageMapping       Stage = "mapping"
	StageDone          Stage = "done"
)

// ModelBackedClassifier runs preprocessing, inference and label mapping
// against the model held by a provider.
type ModelBackedClassifier struct {
	provider *provider.Provider
	pre      *preprocess.Preprocessor
	engine   *inference.Engine
	mapper   *labelmap.Mapper
	topN     int
	logger   *slog.Logger
}

// ModelOption customises a ModelBackedClassifier.
type ModelOption func(*ModelBackedClassifier)

// WithTopN sets how many predictions are mapped.
func WithTopN(n int) ModelOption {
	return func(m *ModelBackedClassifier) {
		if n > 0 {
			m.topN = n
		}
	}
}

// WithModelLogger sets the logger.
func WithModelLogger(l *slog.Logger) ModelOption {
	return func(m *ModelBackedClassifier) { m.logger = l }
}

// NewModelBacked wires a model-backed classifier. A nil mapper uses the
// built-in table.
func NewModelBacked(p *provider.Provider, pre *preprocess.Preprocessor, mapper *labelmap.Mapper, opts ...ModelOption) *ModelBackedClassifier {
	if mapper == nil {
		mapper = labelmap.Default()
	}
	m := &ModelBackedClassifier{
		provider: p,
		pre:      pre,
		engine:   inference.NewEngine(),
		mapper:   mapper,
		topN:     DefaultTopN,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// LoadModel blocks until the provider has a model or the load fails.
func (m *ModelBackedClassifier) LoadModel(ctx context.Context) error {
	return m.provider.Load(ctx)
}

// Status returns the provider state.
func (m *ModelBackedClassifier) Status() provider.State { return m.provider.Status() }

// Close releases the model.
func (m *ModelBackedClassifier) Close() error { return m.provider.Close() }

// Classify runs the pipeline. An idle provider is asked to start loading, a
// failed one to retry once its backoff has passed, and ErrModelUnavailable is
// returned without waiting.
func (m *ModelBackedClassifier) Classify(ctx context.Context, res preprocess.Resource) (Result, error) {
	state := m.provider.Status()
	model, ok := m.provider.Model()
	if !ok {
		switch state {
		case provider.StateIdle:
			m.provider.Preload()
		case provider.StateError:
			m.provider.Recover()
		}
		return Result{ModelState: state}, ErrModelUnavailable
	}
	id := ""
	if res != nil {
		id = res.ID()
	}
	log := m.logger.With("resource", id)

	log.DebugContext(ctx, "classify stage", "stage", StagePreprocessing)
	tensor, err := m.pre.ToTensor(ctx, res)
	if err != nil {
		return Result{ModelState: state}, err
	}
	defer tensor.Release()

	log.DebugContext(ctx, "classify stage", "stage", StageInferring)
	preds, err := m.engine.Classify(ctx, tensor, model, m.topN)
	if err != nil {
		return Result{ModelState: state}, err
	}

	log.DebugContext(ctx, "classify stage", "stage", StageMapping, "predictions", len(preds))
	result := m.selectMatch(preds)
	result.ModelState = state

	log.DebugContext(ctx, "classify stage",
		"stage", StageDone,
		"category", result.Category,
		"confidence", result.Confidence,
		"provenance", result.Provenance)
	return result, nil
}

// selectMatch maps predictions in rank order and keeps the most confident
// match; ties go to the better-ranked prediction.
func (m *ModelBackedClassifier) selectMatch(preds []inference.RawPrediction) Result {
	var (
		best  labelmap.Match
		label string
		found bool
	)
	for _, p := range preds {
		match, ok := m.mapper.MapToCategory(p.Label, p.Probability)
		if !ok {
			continue
		}
		if !found || match.Confidence > best.Confidence {
			best, label, found = match, p.Label, true
		}
	}
	if !found {
		return Result{
			ClassificationResult: food.ClassificationResult{
				Category:   food.DefaultCategory,
				Confidence: NoMatchConfidence,
			},
			Provenance: ProvenanceNoMatch,
		}
	}
	return Result{
		ClassificationResult: food.ClassificationResult{
			Category:   best.Category,
			Confidence: best.Confidence,
		},
		Provenance: ProvenanceModel,
		Label:      label,
	}
}

// IsUnavailable reports whether err means the model was not ready.
func IsUnavailable(err error) bool { return errors.Is(err, ErrModelUnavailable) }
