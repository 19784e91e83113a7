package onnx

import (
	"fmt"
	"log/slog"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU              bool   // Enable the CUDA execution provider
	DeviceID            int    // CUDA device ID
	GPUMemLimit         uint64 // Bytes, 0 = unlimited
	ArenaExtendStrategy string // "kNextPowerOfTwo" or "kSameAsRequested"
	CUDNNConvAlgoSearch string // "EXHAUSTIVE", "HEURISTIC" or "DEFAULT"
}

// DefaultGPUConfig returns a CPU-only configuration.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy: "kNextPowerOfTwo",
		CUDNNConvAlgoSearch: "DEFAULT",
	}
}

// ValidateGPUConfig checks the CUDA settings when the GPU is enabled.
func ValidateGPUConfig(c GPUConfig) error {
	if !c.UseGPU {
		return nil
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	switch c.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
	default:
		return fmt.Errorf("invalid arena extend strategy: %s", c.ArenaExtendStrategy)
	}
	switch c.CUDNNConvAlgoSearch {
	case "", "EXHAUSTIVE", "HEURISTIC", "DEFAULT":
	default:
		return fmt.Errorf("invalid CUDNN conv algo search: %s", c.CUDNNConvAlgoSearch)
	}
	return nil
}

func cudaSettings(c GPUConfig) map[string]string {
	s := map[string]string{
		"device_id":                 strconv.Itoa(c.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if c.GPUMemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(c.GPUMemLimit, 10)
	}
	if c.ArenaExtendStrategy != "" {
		s["arena_extend_strategy"] = c.ArenaExtendStrategy
	}
	if c.CUDNNConvAlgoSearch != "" {
		s["cudnn_conv_algo_search"] = c.CUDNNConvAlgoSearch
	}
	return s
}

// ConfigureSessionForGPU appends the CUDA provider to opts when enabled.
func ConfigureSessionForGPU(opts *ort.SessionOptions, c GPUConfig) error {
	if !c.UseGPU {
		return nil
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cuda.Update(cudaSettings(c)); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}
