package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/config"
	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommandArgs(t *testing.T) {
	_, err := executeCommandAndCaptureOutput(t, "detect")
	require.Error(t, err)

	_, err = executeCommandAndCaptureOutput(t, "detect", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)

	_, err = executeCommandAndCaptureOutput(t, "detect", "x.png", "--format", "csv")
	require.ErrorContains(t, err, "invalid output format")
}

func TestDetectCommandFlags(t *testing.T) {
	for _, name := range []string{"format", "preview", "table", "det-model", "rec-model", "sam-encoder", "sam-decoder"} {
		assert.NotNil(t, detectCmd.Flags().Lookup(name), name)
	}
}

func TestInpaintCommandRequiresTableAndIndex(t *testing.T) {
	_, err := executeCommandAndCaptureOutput(t, "inpaint", "x.png", "--index", "0")
	require.ErrorContains(t, err, "--table")

	_, err = executeCommandAndCaptureOutput(t, "inpaint", "x.png", "--table", "t.txt")
	require.ErrorContains(t, err, "--index")
}

// writeHelloFixture runs stage A with fake models and stores the image
// and its mask table on disk.
func writeHelloFixture(t *testing.T) (imgPath, tablePath string, res *pipeline.DetectResult) {
	t.Helper()
	img, sp := testutil.HelloScenario()
	p, err := pipeline.New(sp, &testutil.FakeSegmenter{}, &testutil.FakeGenerator{}, pipeline.DefaultConfig())
	require.NoError(t, err)
	res, err = p.DetectSegment(context.Background(), img)
	require.NoError(t, err)

	dir := t.TempDir()
	imgPath = filepath.Join(dir, "hello.png")
	tablePath = filepath.Join(dir, "hello.masks")
	require.NoError(t, utils.SavePNG(imgPath, img))
	require.NoError(t, os.WriteFile(tablePath, []byte(res.MaskTable), 0o600))
	return imgPath, tablePath, res
}

func TestInpaintCommandEndToEnd(t *testing.T) {
	backend := testutil.NewDiffusionBackend()
	defer backend.Close()
	imgPath, tablePath, res := writeHelloFixture(t)

	output, err := executeCommandAndCaptureOutput(t, "inpaint", imgPath,
		"--table", tablePath, "--index", "0", "--prompt", "neon graffiti", "--seed", "9",
		"--inpaint-endpoint", backend.URL)
	require.NoError(t, err)

	outPath := strings.TrimSuffix(imgPath, ".png") + "_inpainted_0.png"
	assert.Contains(t, output, outPath)
	assert.Equal(t, 1, backend.Requests())

	orig, err := utils.LoadImage(imgPath)
	require.NoError(t, err)
	out, err := utils.LoadImage(outPath)
	require.NoError(t, err)
	in, outside := testutil.CountDiff(orig, out, func(x, y int) bool { return res.Masks[0].At(x, y) })
	assert.Zero(t, outside)
	assert.Positive(t, in)
}

func TestInpaintCommandBadIndex(t *testing.T) {
	backend := testutil.NewDiffusionBackend()
	defer backend.Close()
	imgPath, tablePath, _ := writeHelloFixture(t)

	_, err := executeCommandAndCaptureOutput(t, "inpaint", imgPath,
		"--table", tablePath, "--index", "4", "--prompt", "x", "--inpaint-endpoint", backend.URL)
	var selErr *pipeline.SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Zero(t, backend.Requests())
}

func TestDefaultInpaintOutput(t *testing.T) {
	assert.Equal(t, "dir/photo_inpainted_3.png", defaultInpaintOutput("dir/photo.jpg", 3))
	assert.Equal(t, "noext_inpainted_0.png", defaultInpaintOutput("noext", 0))
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocrsam.yaml")

	output, err := executeCommandAndCaptureOutput(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, output, path)

	_, err = executeCommandAndCaptureOutput(t, "config", "init", path)
	require.Error(t, err, "existing file must not be overwritten without --force")

	_, err = executeCommandAndCaptureOutput(t, "config", "init", path, "--force")
	require.NoError(t, err)

	cfg, err := config.NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Inpaint.Steps, cfg.Inpaint.Steps)

	output, err = executeCommandAndCaptureOutput(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "inpaint:")
	assert.Contains(t, output, "segmenter:")
}

func TestConfigPaths(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, output, "/etc/ocrsam")
}
