package onnx

import (
	"testing"
)

func TestValidateNCHW(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		wantErr bool
	}{
		{"valid", []int64{1, 3, 224, 224}, false},
		{"rank 3", []int64{3, 224, 224}, true},
		{"zero dim", []int64{1, 0, 224, 224}, true},
		{"negative dim", []int64{1, 3, -1, 224}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNCHW(tt.shape); (err != nil) != tt.wantErr {
				t.Errorf("ValidateNCHW(%v) error = %v, wantErr %v", tt.shape, err, tt.wantErr)
			}
		})
	}
}

func TestResolveInputShape(t *testing.T) {
	tests := []struct {
		name    string
		dims    []int64
		size    int
		want    []int64
		wantErr bool
	}{
		{"static", []int64{1, 3, 224, 224}, 0, []int64{1, 3, 224, 224}, false},
		{"dynamic batch", []int64{-1, 3, 224, 224}, 0, []int64{1, 3, 224, 224}, false},
		{"dynamic spatial", []int64{-1, 3, -1, -1}, 192, []int64{1, 3, 192, 192}, false},
		{"dynamic spatial without size", []int64{1, 3, -1, -1}, 0, nil, true},
		{"batch of two", []int64{2, 3, 224, 224}, 0, nil, true},
		{"grayscale", []int64{1, 1, 224, 224}, 0, nil, true},
		{"rank 2", []int64{1, 1000}, 224, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveInputShape(tt.dims, tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveInputShape error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("ResolveInputShape = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestResolveInputShape_DoesNotMutate(t *testing.T) {
	dims := []int64{-1, 3, -1, -1}
	if _, err := ResolveInputShape(dims, 224); err != nil {
		t.Fatal(err)
	}
	if dims[0] != -1 || dims[2] != -1 {
		t.Errorf("input dims mutated: %v", dims)
	}
}

func TestTensorStats(t *testing.T) {
	lo, hi, mean := TensorStats([]float32{-1, 0, 1, 4})
	if lo != -1 || hi != 4 || mean != 1 {
		t.Errorf("TensorStats = (%v, %v, %v), want (-1, 4, 1)", lo, hi, mean)
	}
	lo, hi, mean = TensorStats(nil)
	if lo != 0 || hi != 0 || mean != 0 {
		t.Error("empty data must yield zeros")
	}
}

func TestElements(t *testing.T) {
	if n := Elements([]int64{1, 3, 4, 4}); n != 48 {
		t.Errorf("Elements = %d, want 48", n)
	}
	if n := Elements(nil); n != 0 {
		t.Errorf("Elements(nil) = %d, want 0", n)
	}
}
