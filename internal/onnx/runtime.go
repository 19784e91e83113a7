package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the ONNX Runtime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB"

var envMu sync.Mutex

func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists places the shared library is searched for,
// GPU builds first when useGPU is set.
func libraryCandidates(useGPU bool) ([]string, error) {
	name, err := libraryName()
	if err != nil {
		return nil, err
	}
	var out []string
	if p := os.Getenv(LibraryPathEnv); p != "" {
		out = append(out, p)
	}
	if useGPU {
		out = append(out, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	out = append(out,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			out = append(out, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		out = append(out, filepath.Join(root, "onnxruntime", "lib", name))
	}
	return out, nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

// SetONNXLibraryPath points onnxruntime_go at the first shared library found.
func SetONNXLibraryPath(useGPU bool) error {
	candidates, err := libraryCandidates(useGPU)
	if err != nil {
		return err
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			ort.SetSharedLibraryPath(p)
			slog.Debug("Using ONNX Runtime library", "path", p)
			return nil
		}
	}
	return fmt.Errorf("ONNX Runtime library not found (set %s)", LibraryPathEnv)
}

// InitEnvironment loads the shared library and initializes ONNX Runtime
// once per process. Later calls are no-ops.
func InitEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(useGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// DestroyEnvironment tears down ONNX Runtime at process exit.
func DestroyEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("failed to destroy ONNX Runtime environment", "error", err)
	}
}

// SessionOptions configures a session built by NewSession.
type SessionOptions struct {
	GPU        GPUConfig
	NumThreads int
}

// ModelIO reads the declared inputs and outputs of a model file.
func ModelIO(modelPath string) ([]ort.InputOutputInfo, []ort.InputOutputInfo, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	return in, out, nil
}

// NewSession creates a dynamic session bound to the named inputs and outputs.
func NewSession(modelPath string, inputs, outputs []string, o SessionOptions) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()
	if err := ConfigureSessionForGPU(opts, o.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if o.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(o.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Destroy releases ONNX values, skipping nils.
func Destroy(values ...ort.Value) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if err := v.Destroy(); err != nil {
			slog.Warn("failed to destroy tensor", "error", err)
		}
	}
}

// Float32Data extracts data and shape from a float32 output value.
func Float32Data(v ort.Value) ([]float32, []int64, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", v)
	}
	return t.GetData(), t.GetShape(), nil
}
