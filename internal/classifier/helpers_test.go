package classifier_test

import (
	"bytes"
	"context"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/inference"
	"github.com/MeKo-Tech/foodlens/internal/onnx/mock"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/MeKo-Tech/foodlens/internal/testutil"
	"github.com/stretchr/testify/require"
)

const tensorSize = 16

// scripted is a backend that replays canned answers.
type scripted struct {
	mu      sync.Mutex
	answers []answer
	calls   int
	state   provider.State
	onCall  func(n int)
}

type answer struct {
	result classifier.Result
	err    error
}

func confidenceAnswer(c int, label string) answer {
	return answer{result: classifier.Result{
		ClassificationResult: food.ClassificationResult{Category: food.Sushi, Confidence: c},
		Provenance:           classifier.ProvenanceModel,
		ModelState:           provider.StateReady,
		Label:                label,
	}}
}

func (s *scripted) LoadModel(context.Context) error { return nil }
func (s *scripted) Status() provider.State          { return s.state }
func (s *scripted) Close() error                    { return nil }

func (s *scripted) Classify(ctx context.Context, _ preprocess.Resource) (classifier.Result, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	var a answer
	if len(s.answers) > 0 {
		a = s.answers[min(n, len(s.answers)-1)]
	}
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return a.result, a.err
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fixedFallback(at time.Time) *classifier.Fallback {
	return &classifier.Fallback{Bucket: time.Minute, Now: func() time.Time { return at }}
}

func photoData() []byte {
	img := testutil.FoodImage(testutil.ImageSize{Width: 48, Height: 32}, testutil.PizzaColor)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func photo(t *testing.T, name string) preprocess.Resource {
	t.Helper()
	return preprocess.NewBytesResource(name, photoData())
}

// pipeline bundles a model-backed classifier with its collaborators.
type pipeline struct {
	model    *mock.Model
	provider *provider.Provider
	pool     *testutil.CountingPool
	backend  *classifier.ModelBackedClassifier
}

func buildPipeline(labels []string, probs []float32) (*pipeline, error) {
	m := mock.NewModel(tensorSize, labels, probs)
	p := provider.New(provider.LoaderFunc(func(context.Context) (inference.Model, error) {
		return m, nil
	}))
	pool := &testutil.CountingPool{}
	pre, err := preprocess.New(preprocess.Config{Size: tensorSize}, preprocess.WithPool(pool))
	if err != nil {
		return nil, err
	}
	return &pipeline{
		model:    m,
		provider: p,
		pool:     pool,
		backend:  classifier.NewModelBacked(p, pre, nil),
	}, nil
}

func newPipeline(t *testing.T, labels []string, probs []float32) *pipeline {
	t.Helper()
	p, err := buildPipeline(labels, probs)
	require.NoError(t, err)
	return p
}

func (p *pipeline) ready(t *testing.T) *pipeline {
	t.Helper()
	require.NoError(t, p.provider.Load(context.Background()))
	return p
}
