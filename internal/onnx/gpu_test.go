package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultGPUConfig(t *testing.T) {
	c := DefaultGPUConfig()
	assert.False(t, c.UseGPU)
	assert.Equal(t, 0, c.DeviceID)
	assert.Equal(t, "kNextPowerOfTwo", c.ArenaExtendStrategy)
	assert.Equal(t, "DEFAULT", c.CUDNNConvAlgoSearch)
}

func TestValidateGPUConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GPUConfig
		wantErr bool
	}{
		{"cpu config ignores fields", GPUConfig{DeviceID: -5}, false},
		{"valid gpu", GPUConfig{UseGPU: true, ArenaExtendStrategy: "kSameAsRequested", CUDNNConvAlgoSearch: "HEURISTIC"}, false},
		{"negative device", GPUConfig{UseGPU: true, DeviceID: -1}, true},
		{"bad arena", GPUConfig{UseGPU: true, ArenaExtendStrategy: "always"}, true},
		{"bad algo search", GPUConfig{UseGPU: true, CUDNNConvAlgoSearch: "FAST"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGPUConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCUDASettings(t *testing.T) {
	s := cudaSettings(GPUConfig{UseGPU: true, DeviceID: 2, GPUMemLimit: 1 << 30})
	assert.Equal(t, "2", s["device_id"])
	assert.Equal(t, "1073741824", s["gpu_mem_limit"])
	assert.NotContains(t, s, "arena_extend_strategy")
}

func TestLibraryCandidates_EnvFirst(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/custom/libonnxruntime.so")
	c, err := libraryCandidates(true)
	if err != nil {
		t.Skip("unsupported OS")
	}
	assert.Equal(t, "/custom/libonnxruntime.so", c[0])
	assert.Contains(t, c[1], "gpu")
}
