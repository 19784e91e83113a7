package support

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ocrsam/cmd/ocrsam/cmd"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/cucumber/godog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// expand replaces {tmp} and {backend} placeholders in step arguments.
func (tc *TestContext) expand(s string) string {
	s = strings.ReplaceAll(s, "{tmp}", tc.TempDir)
	if tc.Backend != nil {
		s = strings.ReplaceAll(s, "{backend}", tc.Backend.URL)
	}
	return s
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// iRunOcrsam executes the CLI in-process with whitespace-separated args.
func (tc *TestContext) iRunOcrsam(args string) error {
	root := cmd.GetRootCommand()
	resetFlags(root)

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(strings.Fields(tc.expand(args)))

	tc.LastError = root.Execute()
	tc.LastOutput = buf.String()
	return nil
}

func (tc *TestContext) theSceneAndItsMaskTableAreSaved() error {
	if tc.MaskTable == "" {
		return fmt.Errorf("no mask table; run detection first")
	}
	if err := utils.SavePNG(filepath.Join(tc.TempDir, "scene.png"), tc.Scene); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tc.TempDir, "scene.masks"), []byte(tc.MaskTable), 0o600)
}

func (tc *TestContext) theCommandShouldSucceed() error {
	if tc.LastError != nil {
		return fmt.Errorf("command failed: %w\n%s", tc.LastError, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theCommandShouldFailWith(text string) error {
	if tc.LastError == nil {
		return fmt.Errorf("command succeeded, output: %s", tc.LastOutput)
	}
	if !strings.Contains(tc.LastError.Error(), text) {
		return fmt.Errorf("expected error containing %q, got %v", text, tc.LastError)
	}
	return nil
}

func (tc *TestContext) theOutputShouldContain(text string) error {
	if !strings.Contains(tc.LastOutput, tc.expand(text)) {
		return fmt.Errorf("output does not contain %q:\n%s", text, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theFileShouldExist(path string) error {
	if _, err := os.Stat(tc.expand(path)); err != nil {
		return fmt.Errorf("expected file %s: %w", path, err)
	}
	return nil
}

func (tc *TestContext) theFileShouldOnlyDifferInsideMask(path string, index int) error {
	img, err := utils.LoadImage(tc.expand(path))
	if err != nil {
		return err
	}
	tc.LastImage = img
	return tc.onlyPixelsInsideMaskShouldDiffer(index)
}

// RegisterCLISteps registers steps that drive the ocrsam command.
func (tc *TestContext) RegisterCLISteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "ocrsam ([^"]*)"$`, tc.iRunOcrsam)
	sc.Step(`^the scene and its mask table are saved$`, tc.theSceneAndItsMaskTableAreSaved)
	sc.Step(`^the command should succeed$`, tc.theCommandShouldSucceed)
	sc.Step(`^the command should fail with "([^"]*)"$`, tc.theCommandShouldFailWith)
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^the file "([^"]*)" should exist$`, tc.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should only differ from the scene inside mask (\d+)$`, tc.theFileShouldOnlyDifferInsideMask)
}
