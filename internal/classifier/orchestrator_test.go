package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/inference"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frozen = time.Date(2026, 3, 14, 12, 0, 30, 0, time.UTC)

func TestOrchestrator_ValidationBeforeIO(t *testing.T) {
	backend := &scripted{answers: []answer{confidenceAnswer(90, "x")}}
	o := classifier.NewOrchestrator(backend)

	var nilBytes *preprocess.BytesResource
	for name, res := range map[string]preprocess.Resource{
		"nil":         nil,
		"nil pointer": nilBytes,
		"empty bytes": preprocess.NewBytesResource("empty", nil),
		"empty path":  preprocess.FileResource(""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := o.Classify(context.Background(), res)
			var ve *classifier.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "resource", ve.Field)

			_, err = o.ClassifyWithRetry(context.Background(), res, 60, 3)
			require.ErrorAs(t, err, &ve)
		})
	}
	assert.Zero(t, backend.Calls())
}

func TestOrchestrator_PassesThroughBackendResult(t *testing.T) {
	backend := &scripted{answers: []answer{confidenceAnswer(88, "nigiri")}}
	o := classifier.NewOrchestrator(backend)

	r, err := o.Classify(context.Background(), photo(t, "sushi.png"))
	require.NoError(t, err)
	assert.Equal(t, food.Sushi, r.Category)
	assert.Equal(t, 88, r.Confidence)
	assert.Equal(t, classifier.ProvenanceModel, r.Provenance)
	assert.Equal(t, 1, r.Attempts)
	assert.True(t, o.IsConfident(r.ClassificationResult))
}

func TestOrchestrator_FallbackOnError(t *testing.T) {
	errs := []error{
		classifier.ErrModelUnavailable,
		&preprocess.DecodeError{Op: "decode", Err: errors.New("bad")},
		&inference.InferenceError{Reason: "shape"},
		context.DeadlineExceeded,
	}
	for _, backendErr := range errs {
		t.Run(backendErr.Error(), func(t *testing.T) {
			backend := &scripted{
				answers: []answer{{err: backendErr, result: classifier.Result{ModelState: provider.StateError}}},
				state:   provider.StateError,
			}
			fb := fixedFallback(frozen)
			o := classifier.NewOrchestrator(backend, classifier.WithFallback(fb))

			r, err := o.Classify(context.Background(), photo(t, "same-id"))
			require.NoError(t, err)
			assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
			assert.True(t, r.Valid())
			assert.Equal(t, provider.StateError, r.ModelState)
			assert.Equal(t, fb.Classify("same-id"), r.ClassificationResult)
		})
	}
}

func TestOrchestrator_InvalidBackendResultFallsBack(t *testing.T) {
	bad := confidenceAnswer(150, "overconfident")
	backend := &scripted{answers: []answer{bad}, state: provider.StateReady}
	o := classifier.NewOrchestrator(backend, classifier.WithFallback(fixedFallback(frozen)))

	r, err := o.Classify(context.Background(), photo(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
	assert.True(t, r.Valid())
}

func TestOrchestrator_NilBackend(t *testing.T) {
	o := classifier.NewOrchestrator(nil)
	r, err := o.Classify(context.Background(), photo(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
	assert.Equal(t, provider.StateIdle, o.Status())
	assert.ErrorIs(t, o.LoadModel(context.Background()), classifier.ErrModelUnavailable)
	assert.NoError(t, o.Close())
}

// Every model state yields a valid result.
func TestOrchestrator_TotalAcrossModelStates(t *testing.T) {
	labels := []string{"pizza", "plate"}
	probs := []float32{0.7, 0.3}

	t.Run("idle", func(t *testing.T) {
		p := newPipeline(t, labels, probs)
		r, err := classifier.NewOrchestrator(p.backend).Classify(context.Background(), photo(t, "a"))
		require.NoError(t, err)
		assert.True(t, r.Valid())
		assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
	})

	t.Run("loading", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		p := newPipeline(t, labels, probs)
		slow := provider.New(provider.LoaderFunc(func(context.Context) (inference.Model, error) {
			<-release
			return p.model, nil
		}))
		pre, err := preprocess.New(preprocess.Config{Size: tensorSize})
		require.NoError(t, err)
		slow.Preload()

		o := classifier.NewOrchestrator(classifier.NewModelBacked(slow, pre, nil))
		r, err := o.Classify(context.Background(), photo(t, "b"))
		require.NoError(t, err)
		assert.True(t, r.Valid())
		assert.Equal(t, provider.StateLoading, r.ModelState)
	})

	t.Run("error", func(t *testing.T) {
		failing := provider.New(provider.LoaderFunc(func(context.Context) (inference.Model, error) {
			return nil, errors.New("missing weights")
		}))
		require.Error(t, failing.Load(context.Background()))
		pre, err := preprocess.New(preprocess.Config{Size: tensorSize})
		require.NoError(t, err)

		o := classifier.NewOrchestrator(classifier.NewModelBacked(failing, pre, nil))
		r, err := o.Classify(context.Background(), photo(t, "c"))
		require.NoError(t, err)
		assert.True(t, r.Valid())
		assert.Equal(t, provider.StateError, r.ModelState)
		assert.Equal(t, int64(1), failing.LoadCount(), "no reload inside the backoff")
	})

	t.Run("error recovers", func(t *testing.T) {
		p := newPipeline(t, labels, probs)
		var broken atomic.Bool
		broken.Store(true)
		flaky := provider.New(provider.LoaderFunc(func(context.Context) (inference.Model, error) {
			if broken.Load() {
				return nil, errors.New("weights not synced yet")
			}
			return p.model, nil
		}), provider.WithRetryBackoff(0))
		require.Error(t, flaky.Load(context.Background()))
		pre, err := preprocess.New(preprocess.Config{Size: tensorSize})
		require.NoError(t, err)
		o := classifier.NewOrchestrator(classifier.NewModelBacked(flaky, pre, nil))

		broken.Store(false)
		r, err := o.Classify(context.Background(), photo(t, "c"))
		require.NoError(t, err)
		assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
		assert.Equal(t, provider.StateError, r.ModelState)

		require.Eventually(t, flaky.IsReady, time.Second, 5*time.Millisecond)
		r, err = o.Classify(context.Background(), photo(t, "c"))
		require.NoError(t, err)
		assert.Equal(t, classifier.ProvenanceModel, r.Provenance)
		assert.Equal(t, int64(2), flaky.LoadCount())
	})

	t.Run("ready", func(t *testing.T) {
		p := newPipeline(t, labels, probs).ready(t)
		r, err := classifier.NewOrchestrator(p.backend).Classify(context.Background(), photo(t, "d"))
		require.NoError(t, err)
		assert.Equal(t, classifier.ProvenanceModel, r.Provenance)
		assert.Equal(t, 70, r.Confidence)
	})
}

func TestOrchestrator_ReleasesTensorsAcrossOutcomes(t *testing.T) {
	p := newPipeline(t, []string{"pizza", "plate"}, []float32{0.7, 0.3}).ready(t)
	o := classifier.NewOrchestrator(p.backend, classifier.WithRetryDelay(0))
	ctx := context.Background()

	_, _ = o.Classify(ctx, photo(t, "ok"))
	p.model.Err = errors.New("flaky")
	_, _ = o.Classify(ctx, photo(t, "fails"))
	_, _ = o.Classify(ctx, preprocess.NewBytesResource("junk", []byte("junk")))
	p.model.Err = nil
	_, _ = o.ClassifyWithRetry(ctx, photo(t, "retry"), 101, 3)

	acquired, released := p.pool.Counts()
	assert.Equal(t, 5, acquired)
	assert.Equal(t, acquired, released)
}

func TestClassifyWithRetry_StopsWhenConfident(t *testing.T) {
	backend := &scripted{answers: []answer{
		confidenceAnswer(30, "a1"), confidenceAnswer(70, "a2"), confidenceAnswer(90, "a3"),
	}}
	o := classifier.NewOrchestrator(backend, classifier.WithRetryDelay(0))

	r, err := o.ClassifyWithRetry(context.Background(), photo(t, "x"), 60, 5)
	require.NoError(t, err)
	assert.Equal(t, 70, r.Confidence)
	assert.Equal(t, "a2", r.Label)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, 2, backend.Calls())
}

func TestClassifyWithRetry_BestOfAttempts(t *testing.T) {
	backend := &scripted{answers: []answer{
		confidenceAnswer(30, "a1"), confidenceAnswer(50, "a2"), confidenceAnswer(50, "a3"),
	}}
	o := classifier.NewOrchestrator(backend, classifier.WithRetryDelay(0))

	r, err := o.ClassifyWithRetry(context.Background(), photo(t, "x"), 60, 3)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Confidence)
	assert.Equal(t, "a2", r.Label, "earliest attempt wins ties")
	assert.Equal(t, 3, r.Attempts)
}

func TestClassifyWithRetry_AtLeastOneAttempt(t *testing.T) {
	backend := &scripted{answers: []answer{confidenceAnswer(10, "only")}}
	o := classifier.NewOrchestrator(backend, classifier.WithRetryDelay(0))

	for _, n := range []int{0, -3, 1} {
		r, err := o.ClassifyWithRetry(context.Background(), photo(t, "x"), 60, n)
		require.NoError(t, err)
		assert.Equal(t, 1, r.Attempts)
	}
}

func TestClassifyWithRetry_DelayAndCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &scripted{
		answers: []answer{confidenceAnswer(20, "a1"), confidenceAnswer(95, "a2")},
		onCall: func(n int) {
			if n == 0 {
				cancel()
			}
		},
	}
	o := classifier.NewOrchestrator(backend, classifier.WithRetryDelay(time.Hour))

	start := time.Now()
	r, err := o.ClassifyWithRetry(ctx, photo(t, "x"), 60, 3)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, 20, r.Confidence)
}

func TestClassifyWithRetry_WaitsBetweenAttempts(t *testing.T) {
	backend := &scripted{answers: []answer{confidenceAnswer(20, "a"), confidenceAnswer(20, "b")}}
	o := classifier.NewOrchestrator(backend, classifier.WithRetryDelay(20*time.Millisecond))

	start := time.Now()
	r, err := o.ClassifyWithRetry(context.Background(), photo(t, "x"), 60, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestClassifyWithRetry_FallbackNeverSatisfiesTarget(t *testing.T) {
	backend := &scripted{answers: []answer{{err: classifier.ErrModelUnavailable}}}
	o := classifier.NewOrchestrator(backend,
		classifier.WithRetryDelay(0),
		classifier.WithFallback(fixedFallback(frozen)))

	for i := range 50 {
		r, err := o.ClassifyWithRetry(context.Background(), photo(t, fmt.Sprintf("photo-%d.jpg", i)), 40, 3)
		require.NoError(t, err)
		assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
		assert.Equal(t, 3, r.Attempts)
		assert.False(t, o.IsConfident(r.ClassificationResult))
	}
}

func TestOrchestrator_FallbackStaysBelowLenientGate(t *testing.T) {
	backend := &scripted{answers: []answer{{err: errors.New("decode failed")}}}
	o := classifier.NewOrchestrator(backend,
		classifier.WithGate(food.Gate{Threshold: 0.3}),
		classifier.WithFallback(fixedFallback(frozen)))

	for i := range 50 {
		r, err := o.Classify(context.Background(), photo(t, fmt.Sprintf("photo-%d.jpg", i)))
		require.NoError(t, err)
		assert.Equal(t, 29, r.Confidence)
		assert.False(t, o.IsConfident(r.ClassificationResult))
	}
}

func TestOrchestrator_Gate(t *testing.T) {
	o := classifier.NewOrchestrator(nil)
	assert.True(t, o.IsConfident(food.ClassificationResult{Category: food.Pizza, Confidence: 60}))
	assert.False(t, o.IsConfident(food.ClassificationResult{Category: food.Pizza, Confidence: 59}))

	strict := classifier.NewOrchestrator(nil, classifier.WithGate(food.Gate{Threshold: 0.8}))
	assert.False(t, strict.IsConfident(food.ClassificationResult{Category: food.Pizza, Confidence: 79}))
	assert.Equal(t, 80, strict.Gate().MinConfidence())
}

func TestValidationError(t *testing.T) {
	err := &classifier.ValidationError{Field: "resource", Reason: "missing"}
	assert.Equal(t, "invalid resource: missing", err.Error())
	assert.NoError(t, errors.Unwrap(err))
}
