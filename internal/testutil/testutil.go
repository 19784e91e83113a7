package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// GetModelsDir returns the models directory used by model-backed tests,
// honouring OCRSAM_MODELS_DIR.
func GetModelsDir(t *testing.T) string {
	t.Helper()
	if dir := os.Getenv("OCRSAM_MODELS_DIR"); dir != "" {
		return dir
	}
	root, err := GetProjectRoot()
	require.NoError(t, err, "Failed to find project root")
	return filepath.Join(root, "models")
}

// SkipWithoutModels skips t unless every path exists.
func SkipWithoutModels(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if !FileExists(p) {
			t.Skipf("model file not available: %s", p)
		}
	}
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
