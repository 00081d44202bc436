package onnx

import (
	"fmt"
)

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// ResolveInputShape replaces dynamic dimensions in a model input shape.
// The batch becomes 1 and dynamic spatial dimensions become size.
func ResolveInputShape(dims []int64, size int) ([]int64, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("expected 4D input, got %dD", len(dims))
	}
	out := make([]int64, 4)
	copy(out, dims)
	if out[0] <= 0 {
		out[0] = 1
	}
	if out[1] <= 0 {
		out[1] = 3
	}
	for i := 2; i < 4; i++ {
		if out[i] <= 0 {
			out[i] = int64(size)
		}
	}
	if out[0] != 1 {
		return nil, fmt.Errorf("batch size %d not supported", out[0])
	}
	if out[1] != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", out[1])
	}
	if err := ValidateNCHW(out); err != nil {
		return nil, err
	}
	return out, nil
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}

// Elements returns the number of values a shape holds.
func Elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
