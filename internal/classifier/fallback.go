package classifier

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/cespare/xxhash/v2"
)

// Fallback confidence band, inclusive. The top is one below the default gate.
const (
	FallbackMinConfidence = 40
	FallbackMaxConfidence = food.DefaultMinConfidence - 1
	DefaultFallbackBucket = time.Minute
)

// Fallback derives a pseudo-random but reproducible result from a resource
// ID and a time bucket. The same ID within one bucket always yields the same
// result.
type Fallback struct {
	Bucket time.Duration
	Now    func() time.Time
}

// NewFallback creates a fallback with the given bucket width; zero means one minute.
func NewFallback(bucket time.Duration) *Fallback {
	return &Fallback{Bucket: bucket, Now: time.Now}
}

// Seed returns the generator seed for id at the current time.
func (f *Fallback) Seed(id string) uint64 {
	bucket := f.Bucket
	if bucket <= 0 {
		bucket = DefaultFallbackBucket
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	slot := now().UnixNano() / int64(bucket)

	d := xxhash.New()
	_, _ = d.WriteString(id)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatInt(slot, 10))
	return d.Sum64()
}

// Classify returns the fallback result for id.
func (f *Fallback) Classify(id string) food.ClassificationResult {
	seed := f.Seed(id)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	cats := food.Categories()
	span := FallbackMaxConfidence - FallbackMinConfidence + 1
	return food.ClassificationResult{
		Category:   cats[rng.IntN(len(cats))],
		Confidence: FallbackMinConfidence + rng.IntN(span),
	}
}
