package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
	"github.com/spf13/cobra"
)

// checkCmd verifies the local setup before serving.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check ONNX Runtime and model files",
	Long: `Verify that the ONNX Runtime shared library loads and that every model
file the pipeline needs is present under the models directory.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		dir := models.GetModelsDir(cfg.ModelsDir)
		_, _ = fmt.Fprintf(out, "Models directory: %s\n", dir)

		missing := 0
		for _, m := range models.ListAvailableModels() {
			path := models.ResolveModelPath(dir, m.Type, m.Filename)
			status := "ok"
			if err := models.ValidateModelExists(path); err != nil {
				status = "missing"
				missing++
			}
			_, _ = fmt.Fprintf(out, "  %-18s %-8s %s\n", m.Name, status, path)
		}

		runtimeErr := onnx.InitEnvironment(cfg.GPU.Enabled)
		if runtimeErr != nil {
			_, _ = fmt.Fprintf(out, "ONNX Runtime: %v\n", runtimeErr)
		} else {
			_, _ = fmt.Fprintln(out, "ONNX Runtime: ok")
			onnx.DestroyEnvironment()
		}

		switch {
		case runtimeErr != nil:
			return fmt.Errorf("setup incomplete: %w", runtimeErr)
		case missing > 0:
			return fmt.Errorf("setup incomplete: %d model file(s) missing", missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
