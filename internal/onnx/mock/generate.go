// Package mock provides synthetic model outputs and an in-memory model for tests
// that must run without ONNX Runtime or model files.
package mock

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// Probabilities builds a probability vector over n labels where the given
// indices receive the given probabilities and the remaining mass is spread
// evenly across the other labels. The result sums to at most 1.
func Probabilities(n int, assign map[int]float32) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	var used float32
	assigned := 0
	for idx, p := range assign {
		if idx < 0 || idx >= n {
			continue
		}
		out[idx] = clamp01(p)
		used += out[idx]
		assigned++
	}
	rest := n - assigned
	if rest <= 0 || used >= 1 {
		return out
	}
	share := (1 - used) / float32(rest)
	for i := range out {
		if _, ok := assign[i]; !ok {
			out[i] = share
		}
	}
	return out
}

// PeakedLogits builds logits over n classes such that softmax puts roughly
// peak probability on index idx.
func PeakedLogits(n, idx int, peak float64) []float32 {
	if n <= 0 || idx < 0 || idx >= n {
		return nil
	}
	if peak <= 0 || peak >= 1 {
		peak = 0.9
	}
	// p = e^a / (e^a + (n-1)) -> a = ln(p*(n-1)/(1-p))
	a := math.Log(peak * float64(n-1) / (1 - peak))
	out := make([]float32, n)
	out[idx] = float32(a)
	return out
}

// Model is an in-memory inference.Model returning a fixed probability vector.
type Model struct {
	Shape   []int64
	Names   []string
	Output  []float32
	Err     error
	mu      sync.Mutex
	calls   atomic.Int64
	closed  atomic.Bool
	lastLen int
}

// NewModel creates a model expecting [1,3,size,size] input.
func NewModel(size int, labels []string, output []float32) *Model {
	return &Model{
		Shape:  []int64{1, 3, int64(size), int64(size)},
		Names:  labels,
		Output: output,
	}
}

// InputShape implements inference.Model.
func (m *Model) InputShape() []int64 { return m.Shape }

// Labels implements inference.Model.
func (m *Model) Labels() []string { return m.Names }

// Infer implements inference.Model.
func (m *Model) Infer(ctx context.Context, data []float32) ([]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	m.lastLen = len(data)
	m.mu.Unlock()
	out := make([]float32, len(m.Output))
	copy(out, m.Output)
	return out, nil
}

// Close implements inference.Model.
func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many times Infer ran.
func (m *Model) Calls() int64 { return m.calls.Load() }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// LastInputLen returns the length of the most recent input.
func (m *Model) LastInputLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLen
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
