package onnx

import (
	"fmt"
	"log/slog"
	"strconv"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// GPUConfig holds configuration for CUDA acceleration.
type GPUConfig struct {
	UseGPU                bool   `mapstructure:"use_gpu"                   yaml:"use_gpu"                   json:"use_gpu"`
	DeviceID              int    `mapstructure:"device_id"                 yaml:"device_id"                 json:"device_id"`
	GPUMemLimit           uint64 `mapstructure:"mem_limit"                 yaml:"mem_limit"                 json:"mem_limit"`                 // bytes, 0 = unlimited
	ArenaExtendStrategy   string `mapstructure:"arena_extend_strategy"     yaml:"arena_extend_strategy"     json:"arena_extend_strategy"`     // kNextPowerOfTwo | kSameAsRequested
	CUDNNConvAlgoSearch   string `mapstructure:"cudnn_conv_algo_search"    yaml:"cudnn_conv_algo_search"    json:"cudnn_conv_algo_search"`    // EXHAUSTIVE | HEURISTIC | DEFAULT
	DoCopyInDefaultStream bool   `mapstructure:"do_copy_in_default_stream" yaml:"do_copy_in_default_stream" json:"do_copy_in_default_stream"`
}

// DefaultGPUConfig returns a CPU-only configuration with CUDA defaults filled in.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy:   "kNextPowerOfTwo",
		CUDNNConvAlgoSearch:   "DEFAULT",
		DoCopyInDefaultStream: true,
	}
}

// cudaSettings renders the provider options passed to ONNX Runtime.
func (g GPUConfig) cudaSettings() map[string]string {
	settings := map[string]string{
		"device_id": strconv.Itoa(g.DeviceID),
	}
	if g.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(g.GPUMemLimit, 10)
	}
	if g.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = g.ArenaExtendStrategy
	}
	if g.CUDNNConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = g.CUDNNConvAlgoSearch
	}
	if g.DoCopyInDefaultStream {
		settings["do_copy_in_default_stream"] = "1"
	} else {
		settings["do_copy_in_default_stream"] = "0"
	}
	return settings
}

// ConfigureSessionForGPU appends the CUDA execution provider to opts.
// It is a no-op when the GPU is not requested.
func ConfigureSessionForGPU(opts *onnxrt.SessionOptions, gpu GPUConfig) error {
	if !gpu.UseGPU {
		return nil
	}

	cudaOpts, err := onnxrt.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if destroyErr := cudaOpts.Destroy(); destroyErr != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", destroyErr)
		}
	}()

	if err := cudaOpts.Update(gpu.cudaSettings()); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// ValidateGPUConfig checks the CUDA settings. CPU-only configs are always valid.
func ValidateGPUConfig(gpu GPUConfig) error {
	if !gpu.UseGPU {
		return nil
	}
	if gpu.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", gpu.DeviceID)
	}

	switch gpu.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
	default:
		return fmt.Errorf("invalid arena extend strategy: %s (must be 'kNextPowerOfTwo' or "+
			"'kSameAsRequested')", gpu.ArenaExtendStrategy)
	}

	switch gpu.CUDNNConvAlgoSearch {
	case "", "EXHAUSTIVE", "HEURISTIC", "DEFAULT":
	default:
		return fmt.Errorf("invalid CUDNN conv algo search: %s (must be 'EXHAUSTIVE', 'HEURISTIC', or "+
			"'DEFAULT')", gpu.CUDNNConvAlgoSearch)
	}
	return nil
}
