package classifier_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback_DeterministicWithinBucket(t *testing.T) {
	now := frozen
	fb := &classifier.Fallback{Bucket: time.Minute, Now: func() time.Time { return now }}

	first := fb.Classify("IMG_0042.jpg")
	now = now.Add(20 * time.Second)
	assert.Equal(t, first, fb.Classify("IMG_0042.jpg"))
	assert.Equal(t, fb.Seed("IMG_0042.jpg"), fb.Seed("IMG_0042.jpg"))
}

func TestFallback_VariesAcrossBucketsAndIDs(t *testing.T) {
	now := frozen
	fb := &classifier.Fallback{Bucket: time.Minute, Now: func() time.Time { return now }}

	seeds := map[uint64]bool{}
	for i := range 10 {
		now = frozen.Add(time.Duration(i) * time.Minute)
		seeds[fb.Seed("same")] = true
	}
	assert.Len(t, seeds, 10)

	now = frozen
	assert.NotEqual(t, fb.Seed("a.jpg"), fb.Seed("b.jpg"))
}

func TestFallback_ZeroValueUsable(t *testing.T) {
	var fb classifier.Fallback
	assert.True(t, fb.Classify("x").Valid())
}

func TestFallback_Properties(t *testing.T) {
	fb := fixedFallback(frozen)
	properties := gopter.NewProperties(nil)

	properties.Property("fallback stays in band with a valid category", prop.ForAll(
		func(id string) bool {
			r := fb.Classify(id)
			return r.Category.Valid() &&
				r.Confidence >= classifier.FallbackMinConfidence &&
				r.Confidence <= classifier.FallbackMaxConfidence
		},
		gen.AnyString(),
	))

	properties.Property("fallback is a pure function of id and bucket", prop.ForAll(
		func(id string) bool { return fb.Classify(id) == fb.Classify(id) },
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestFallback_NeverConfident(t *testing.T) {
	fb := fixedFallback(frozen)
	for i := range 1000 {
		r := fb.Classify(fmt.Sprintf("photo-%d.jpg", i))
		require.Falsef(t, food.IsConfident(r), "fallback for photo-%d.jpg passed the gate with %d", i, r.Confidence)
	}
}

func TestMockClassifier(t *testing.T) {
	m := classifier.NewMockClassifier(0)
	m.Now = func() time.Time { return frozen }

	require.NoError(t, m.LoadModel(context.Background()))
	assert.Equal(t, provider.StateReady, m.Status())

	r, err := m.Classify(context.Background(), photo(t, "demo.png"))
	require.NoError(t, err)
	assert.Equal(t, classifier.ProvenanceMock, r.Provenance)
	assert.True(t, r.Category.Valid())
	assert.GreaterOrEqual(t, r.Confidence, classifier.MockMinConfidence)
	assert.LessOrEqual(t, r.Confidence, classifier.MockMaxConfidence)

	again, err := m.Classify(context.Background(), photo(t, "demo.png"))
	require.NoError(t, err)
	assert.Equal(t, r.ClassificationResult, again.ClassificationResult)
	assert.NoError(t, m.Close())
}

func TestMockClassifier_DelayHonoursContext(t *testing.T) {
	m := classifier.NewMockClassifier(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Classify(ctx, photo(t, "slow.png"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	o := classifier.NewOrchestrator(m)
	r, err := o.Classify(ctx, photo(t, "slow.png"))
	require.NoError(t, err)
	assert.Equal(t, classifier.ProvenanceFallback, r.Provenance)
}
