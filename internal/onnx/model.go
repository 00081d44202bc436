// Package onnx implements inference.Model on top of ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/MeKo-Tech/foodlens/internal/inference"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// ModelConfig describes an image classification model on disk.
type ModelConfig struct {
	ModelPath  string
	LabelsPath string
	// Labels overrides LabelsPath when non-empty.
	Labels []string
	// ImageSize fills dynamic spatial input dimensions.
	ImageSize int
	// OutputLogits applies softmax to the raw model output.
	OutputLogits bool
	NumThreads   int
	LibraryDir   string
	GPU          GPUConfig
	Logger       *slog.Logger
}

// Model is an ONNX Runtime session producing one probability per label.
type Model struct {
	mu      sync.RWMutex
	session *onnxrt.DynamicAdvancedSession
	input   onnxrt.InputOutputInfo
	output  onnxrt.InputOutputInfo
	shape   []int64
	labels  []string
	logits  bool
	logger  *slog.Logger
}

var _ inference.Model = (*Model)(nil)

// LoadModel opens the model file and creates a session. It blocks until the
// session is ready; ctx is checked between steps.
func LoadModel(ctx context.Context, cfg ModelConfig) (*Model, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := validateModelPath(cfg.ModelPath); err != nil {
		return nil, err
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, err
	}

	labels := cfg.Labels
	if len(labels) == 0 {
		var err error
		if labels, err = inference.LoadLabels(cfg.LabelsPath); err != nil {
			return nil, err
		}
	}

	if err := InitRuntime(cfg.LibraryDir, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, out, err := modelIO(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	shape, err := ResolveInputShape(in.Dimensions, cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	if err := checkOutputClasses(out.Dimensions, len(labels)); err != nil {
		return nil, err
	}

	opts, err := createSessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			logger.Warn("failed to destroy session options", "error", err)
		}
	}()

	sess, err := onnxrt.NewDynamicAdvancedSession(cfg.ModelPath, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	logger.Info("model loaded",
		"path", cfg.ModelPath,
		"input", in.Name,
		"output", out.Name,
		"shape", shape,
		"labels", len(labels),
		"gpu", cfg.GPU.UseGPU)

	return &Model{
		session: sess,
		input:   in,
		output:  out,
		shape:   shape,
		labels:  labels,
		logits:  cfg.OutputLogits,
		logger:  logger,
	}, nil
}

func validateModelPath(modelPath string) error {
	if modelPath == "" {
		return errors.New("empty model path")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return err
	}
	return nil
}

func modelIO(modelPath string) (onnxrt.InputOutputInfo, onnxrt.InputOutputInfo, error) {
	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxrt.InputOutputInfo{}, onnxrt.InputOutputInfo{}, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return onnxrt.InputOutputInfo{}, onnxrt.InputOutputInfo{},
			fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	return inputs[0], outputs[0], nil
}

// checkOutputClasses compares the static class dimension against the label count.
func checkOutputClasses(dims []int64, labels int) error {
	if len(dims) == 0 {
		return nil
	}
	classes := dims[len(dims)-1]
	if classes > 0 && int(classes) != labels {
		return fmt.Errorf("model emits %d classes but %d labels were provided", classes, labels)
	}
	return nil
}

func createSessionOptions(cfg ModelConfig) (*onnxrt.SessionOptions, error) {
	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		_ = opts.SetIntraOpNumThreads(cfg.NumThreads)
	}
	return opts, nil
}

// InputShape returns the resolved [1,3,H,W] input shape.
func (m *Model) InputShape() []int64 {
	out := make([]int64, len(m.shape))
	copy(out, m.shape)
	return out
}

// Labels returns the class labels in output order.
func (m *Model) Labels() []string { return m.labels }

// Infer runs the session on NCHW data and returns per-label probabilities.
func (m *Model) Infer(ctx context.Context, data []float32) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, errors.New("model is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if want := Elements(m.shape); len(data) != want {
		return nil, fmt.Errorf("input length %d != %d", len(data), want)
	}

	if m.logger.Enabled(ctx, slog.LevelDebug) {
		lo, hi, mean := TensorStats(data)
		m.logger.DebugContext(ctx, "running model", "min", lo, "max", hi, "mean", mean)
	}

	input, err := onnxrt.NewTensor(onnxrt.NewShape(m.shape...), data)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			m.logger.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxrt.Value{nil}
	if err := m.session.Run([]onnxrt.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				m.logger.Warn("failed to destroy output tensor", "error", err)
			}
		}
	}()

	t, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	raw := t.GetData()
	probs := make([]float32, len(raw))
	copy(probs, raw)

	if m.logits {
		probs = inference.Softmax(probs)
	}
	return probs, nil
}

// Close destroys the session. Further Infer calls fail.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
