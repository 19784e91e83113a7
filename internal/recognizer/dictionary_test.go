package recognizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCharset(t *testing.T) {
	cs, err := ReadCharset(strings.NewReader("\uFEFFa\nb\n\nc\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", " "}, cs.Tokens)
	assert.Equal(t, 4, cs.Size())

	// Class 0 is blank, class 1 is "a".
	assert.Equal(t, "acb a", cs.Decode([]int{1, 3, 2, 4, 1, 0, 99}))
}

func TestReadCharset_Empty(t *testing.T) {
	_, err := ReadCharset(strings.NewReader("\n\n"))
	require.Error(t, err)
}

func TestLoadCharset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("H\nE\nL\nO\n"), 0o600))
	cs, err := LoadCharset(path)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", cs.Decode([]int{1, 2, 3, 3, 4}))

	_, err = LoadCharset(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	_, err = LoadCharset("")
	require.Error(t, err)
}
