package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommandAndCaptureOutput runs the root command with args after
// restoring every flag to its default.
func executeCommandAndCaptureOutput(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return strings.TrimSpace(buf.String()), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "ocrsam", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, output, "Segment Anything")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "ocrsam "), output)
}

func TestRootCommandSubcommands(t *testing.T) {
	var names []string
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"detect", "inpaint", "serve", "config", "check"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, err := executeCommandAndCaptureOutput(t, "--does-not-exist")
	require.Error(t, err)
}

func TestRootCommandNoArgs(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t)
	require.NoError(t, err)
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandConfiguration(t *testing.T) {
	assert.True(t, rootCmd.HasSubCommands())
	for _, name := range []string{"config", "verbose", "log-level", "models-dir", "gpu", "inpaint-endpoint"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	_, err := executeCommandAndCaptureOutput(t, "config", "show", "--log-level", "debug", "--inpaint-endpoint", "http://gpu:9000")
	require.NoError(t, err)

	cfg := GetConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://gpu:9000", cfg.Inpaint.Endpoint)
}
