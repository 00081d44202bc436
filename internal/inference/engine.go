package inference

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// DefaultTopK is the number of predictions returned when the caller passes topK <= 0.
const DefaultTopK = 5

// RawPrediction is a label straight from the model with its probability.
type RawPrediction struct {
	Label       string  `json:"label"`
	Index       int     `json:"index"`
	Probability float64 `json:"probability"`
}

// Tensor is the input consumed by the engine. Data is NCHW float32.
type Tensor interface {
	Data() []float32
	Shape() []int64
}

// Model is a loaded image classification model.
// Infer must be safe for concurrent use and return one probability per label.
type Model interface {
	InputShape() []int64
	Labels() []string
	Infer(ctx context.Context, data []float32) ([]float32, error)
	Close() error
}

// InferenceError reports a model invoked in a bad state or with a mismatched input.
type InferenceError struct {
	Reason string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference error: %s: %v", e.Reason, e.Err)
	}
	return "inference error: " + e.Reason
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Engine runs a model against a preprocessed tensor and ranks its outputs.
type Engine struct{}

// NewEngine creates an inference engine.
func NewEngine() *Engine { return &Engine{} }

// Classify returns up to topK predictions ordered by descending probability.
// The caller keeps ownership of tensor.
func (e *Engine) Classify(ctx context.Context, tensor Tensor, model Model, topK int) ([]RawPrediction, error) {
	if model == nil {
		return nil, &InferenceError{Reason: "model not ready"}
	}
	if tensor == nil {
		return nil, &InferenceError{Reason: "nil input tensor"}
	}
	if err := checkShape(tensor, model.InputShape()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Reason: "cancelled", Err: err}
	}

	probs, err := model.Infer(ctx, tensor.Data())
	if err != nil {
		return nil, &InferenceError{Reason: "model run failed", Err: err}
	}

	labels := model.Labels()
	if len(probs) != len(labels) {
		return nil, &InferenceError{
			Reason: fmt.Sprintf("output has %d values for %d labels", len(probs), len(labels)),
		}
	}

	return TopK(probs, labels, topK), nil
}

func checkShape(tensor Tensor, want []int64) error {
	got := tensor.Shape()
	if len(want) == 0 {
		return &InferenceError{Reason: "model reports no input shape"}
	}
	if len(got) != len(want) {
		return &InferenceError{Reason: fmt.Sprintf("tensor shape %v does not match model input %v", got, want)}
	}
	expected := 1
	for i := range want {
		// Non-positive dimensions are dynamic in the model and accept any size.
		if want[i] > 0 && got[i] != want[i] {
			return &InferenceError{Reason: fmt.Sprintf("tensor shape %v does not match model input %v", got, want)}
		}
		expected *= int(got[i])
	}
	if len(tensor.Data()) != expected {
		return &InferenceError{
			Reason: fmt.Sprintf("tensor data length %d != %d for shape %v", len(tensor.Data()), expected, got),
		}
	}
	return nil
}

// TopK ranks probabilities and pairs them with their labels.
// Ties keep the lower label index first.
func TopK(probs []float32, labels []string, k int) []RawPrediction {
	if k <= 0 {
		k = DefaultTopK
	}
	preds := make([]RawPrediction, len(probs))
	for i, p := range probs {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		preds[i] = RawPrediction{Label: label, Index: i, Probability: float64(p)}
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Probability > preds[j].Probability })
	if k > len(preds) {
		k = len(preds)
	}
	return preds[:k]
}

// ErrNoLabels is returned when a labels file contains no entries.
var ErrNoLabels = errors.New("labels file is empty")
