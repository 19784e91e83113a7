package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

// detectCmd runs stage A on a single image.
var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Find, read and segment the text regions of an image",
	Long: `Run text spotting and box-prompted segmentation on an image.

The summary lists one region per line as "{index}:{text}". The mask table
written with --table is the input of the inpaint command.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  ocrsam detect sign.jpg
  ocrsam detect sign.jpg --table masks.txt --preview preview.png
  ocrsam detect sign.jpg --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runDetect,
}

type detectOutput struct {
	Summary   string         `json:"summary"`
	Regions   []regionOutput `json:"regions"`
	MaskTable string         `json:"mask_table,omitempty"`
}

type regionOutput struct {
	Index         int        `json:"index"`
	Text          string     `json:"text"`
	DetConfidence float64    `json:"det_confidence"`
	RecConfidence float64    `json:"rec_confidence"`
	Box           [4]float64 `json:"box"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != outputFormatText && format != outputFormatJSON {
		return fmt.Errorf("invalid output format: %s (must be text or json)", format)
	}
	previewPath, _ := cmd.Flags().GetString("preview")
	tablePath, _ := cmd.Flags().GetString("table")

	img, err := utils.LoadImage(args[0])
	if err != nil {
		return err
	}

	cfg := GetConfig()
	p, err := pipeline.NewBuilderFromConfig(cfg.ToPipelineConfig()).Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	res, err := p.DetectSegment(cmd.Context(), img)
	if err != nil {
		return err
	}
	slog.Debug("Detection finished", "file", args[0], "regions", len(res.Regions),
		"total_ms", res.Timing.TotalNs/1e6)

	if previewPath != "" {
		if err := utils.SavePNG(previewPath, res.Preview); err != nil {
			return err
		}
	}
	if tablePath != "" {
		if err := os.WriteFile(tablePath, []byte(res.MaskTable), 0o600); err != nil {
			return fmt.Errorf("failed to write mask table: %w", err)
		}
	}

	return writeDetectOutput(cmd, res, format, tablePath == "")
}

// writeDetectOutput prints the summary. The mask table is embedded in JSON
// output when it was not written to a file.
func writeDetectOutput(cmd *cobra.Command, res *pipeline.DetectResult, format string, embedTable bool) error {
	out := cmd.OutOrStdout()
	if format == outputFormatText {
		if res.Summary == "" {
			_, err := fmt.Fprintln(cmd.ErrOrStderr(), "no text regions found")
			return err
		}
		_, err := fmt.Fprint(out, res.Summary)
		return err
	}

	o := detectOutput{Summary: res.Summary, Regions: make([]regionOutput, len(res.Regions))}
	for i, r := range res.Regions {
		o.Regions[i] = regionOutput{
			Index:         i,
			Text:          r.Text,
			DetConfidence: r.DetConfidence,
			RecConfidence: r.RecConfidence,
			Box:           [4]float64{r.Box.MinX, r.Box.MinY, r.Box.MaxX, r.Box.MaxY},
		}
	}
	if embedTable {
		o.MaskTable = res.MaskTable
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	detectCmd.Flags().String("preview", "", "write the annotated preview PNG to this path")
	detectCmd.Flags().String("table", "", "write the serialized mask table to this path")
	detectCmd.Flags().String("det-model", "", "override detection model path")
	detectCmd.Flags().String("rec-model", "", "override recognition model path")
	detectCmd.Flags().String("dict", "", "override recognizer dictionary path")
	detectCmd.Flags().StringP("language", "l", "en", "recognition language")
	detectCmd.Flags().String("det-polygon-mode", "minrect", "detector polygon mode: minrect or contour")
	detectCmd.Flags().String("sam-encoder", "", "override SAM encoder model path")
	detectCmd.Flags().String("sam-decoder", "", "override SAM decoder model path")
	detectCmd.Flags().Float64("mask-threshold", 0, "SAM mask logit threshold")

	bindFlags(detectCmd.Flags(), []flagBinding{
		{"spotter.detector.model_path", "det-model"},
		{"spotter.recognizer.model_path", "rec-model"},
		{"spotter.recognizer.dict_path", "dict"},
		{"spotter.recognizer.language", "language"},
		{"spotter.detector.polygon_mode", "det-polygon-mode"},
		{"segmenter.encoder_path", "sam-encoder"},
		{"segmenter.decoder_path", "sam-decoder"},
		{"segmenter.mask_threshold", "mask-threshold"},
	})
}
