package classifier

import (
	"context"
	"strconv"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/cespare/xxhash/v2"
)

// Mock confidence band, inclusive.
const (
	MockMinConfidence = 75
	MockMaxConfidence = 94
)

// MockClassifier is a model-free backend for demos and UI work. It hashes the
// resource ID with the current time, so repeated photos vary.
type MockClassifier struct {
	// Delay simulates inference latency.
	Delay time.Duration
	Now   func() time.Time
}

// NewMockClassifier creates a mock backend.
func NewMockClassifier(delay time.Duration) *MockClassifier {
	return &MockClassifier{Delay: delay, Now: time.Now}
}

// LoadModel does nothing.
func (m *MockClassifier) LoadModel(context.Context) error { return nil }

// Status is always ready.
func (m *MockClassifier) Status() provider.State { return provider.StateReady }

// Close does nothing.
func (m *MockClassifier) Close() error { return nil }

// Classify returns a hash-derived result after Delay.
func (m *MockClassifier) Classify(ctx context.Context, res preprocess.Resource) (Result, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	id := ""
	if res != nil {
		id = res.ID()
	}
	h := xxhash.Sum64String(id + strconv.FormatInt(now().UnixMilli(), 10))

	cats := food.Categories()
	span := uint64(MockMaxConfidence - MockMinConfidence + 1)
	return Result{
		ClassificationResult: food.ClassificationResult{
			Category:   cats[h%uint64(len(cats))],
			Confidence: MockMinConfidence + int((h>>32)%span),
		},
		Provenance: ProvenanceMock,
		ModelState: provider.StateReady,
	}, nil
}
