package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// example is one generated image with the boxes of the words drawn on it.
type example struct {
	Name  string             `json:"name"`
	File  string             `json:"file"`
	Words []string           `json:"words"`
	Boxes []utils.Box        `json:"boxes,omitempty"`
	Size  testutil.ImageSize `json:"size"`

	cfg testutil.TestImageConfig
}

func examples() []example {
	sign := testutil.TestImageConfig{
		Size:       testutil.SmallSize,
		Background: color.RGBA{R: 40, G: 90, B: 160, A: 255},
		Foreground: color.White,
		Words:      []testutil.PlacedText{{Text: "HELLO", X: 130, Y: 110}},
	}
	poster := testutil.TestImageConfig{
		Size:       testutil.MediumSize,
		Background: color.RGBA{R: 245, G: 235, B: 210, A: 255},
		Foreground: color.RGBA{R: 30, G: 30, B: 30, A: 255},
		Words: []testutil.PlacedText{
			{Text: "GRAND OPENING", X: 260, Y: 80},
			{Text: "Saturday", X: 290, Y: 220},
			{Text: "10am - 6pm", X: 285, Y: 260},
		},
	}
	wall := testutil.TestImageConfig{
		Size:       testutil.MediumSize,
		Background: color.RGBA{R: 150, G: 150, B: 150, A: 255},
		Foreground: color.RGBA{R: 200, G: 20, B: 20, A: 255},
		Words: []testutil.PlacedText{
			{Text: "NO PARKING", X: 60, Y: 60},
			{Text: "EXIT", X: 500, Y: 400},
		},
	}
	tilted := sign
	tilted.Rotation = 12

	return []example{
		{Name: "hello-sign", cfg: sign},
		{Name: "opening-poster", cfg: poster},
		{Name: "parking-wall", cfg: wall},
		{Name: "tilted-sign", cfg: tilted},
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir   = flag.String("out", "examples", "directory to write example images to")
		manifest = flag.Bool("manifest", true, "also write examples.json describing each image")
		help     = flag.Bool("h", false, "Show help")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic example images for the ocrsam web UI.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}

	written, err := generate(*outDir)
	if err != nil {
		slog.Error("Failed to generate examples", "error", err)
		os.Exit(1)
	}
	if *manifest {
		if err := writeManifest(*outDir, written); err != nil {
			slog.Error("Failed to write manifest", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Example generation completed", "dir", *outDir, "count", len(written))
}

// generate renders every example into dir.
func generate(dir string) ([]example, error) {
	if err := testutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	list := examples()
	for i := range list {
		ex := &list[i]
		img, boxes := testutil.GenerateTextImage(ex.cfg)
		ex.File = ex.Name + ".png"
		ex.Boxes = boxes
		ex.Size = ex.cfg.Size
		for _, w := range ex.cfg.Words {
			ex.Words = append(ex.Words, w.Text)
		}
		if err := utils.SavePNG(filepath.Join(dir, ex.File), img); err != nil {
			return nil, err
		}
		slog.Debug("Wrote example", "file", ex.File)
	}
	return list, nil
}

func writeManifest(dir string, list []example) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "examples.json"), data, 0o600)
}
