package main

import (
	"bytes"
	"context"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/imgrestore/internal/config"
	"github.com/YannKr/imgrestore/internal/db"
	"github.com/YannKr/imgrestore/internal/enhance"
	"github.com/YannKr/imgrestore/internal/imageio"
	"github.com/YannKr/imgrestore/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestParseFlagsRequiresInput(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags(nil, testConfig(t), &stderr)
	assert.ErrorIs(t, err, errNoInput)
	assert.Contains(t, stderr.String(), "Usage: imgrestore")
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseFlags([]string{"-i", "in.png", "-wavelet", "db4", "-level", "2", "-noise", "15"}, testConfig(t), &stderr)
	require.NoError(t, err)
	assert.Equal(t, "in.png", o.input)
	assert.Equal(t, "db4", o.params.Denoise.Wavelet)
	assert.Equal(t, 2, o.params.Denoise.Level)
	assert.Equal(t, 15.0, o.params.NoiseSigma)
	assert.Equal(t, 20.0, o.params.NLM.H)

	o, err = parseFlags([]string{"photo.jpg"}, testConfig(t), &stderr)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", o.input)

	_, err = parseFlags([]string{"-level", "deep"}, testConfig(t), &stderr)
	assert.Error(t, err)
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewGray(image.Rect(0, 0, 48, 40))
	for i := range img.Pix {
		img.Pix[i] = uint8(90 + (i%48)*2 + rng.Intn(16))
	}
	path := filepath.Join(dir, "input.png")
	require.NoError(t, imageio.Save(path, img))
	return path
}

func smallParams() pipeline.Params {
	p := pipeline.DefaultParams()
	p.Denoise.Wavelet = "db2"
	p.Denoise.Level = 2
	p.NLM.TemplateWindow = 3
	p.NLM.SearchWindow = 7
	p.Tiles = 4
	return p
}

func TestRunWritesStagesAndRecords(t *testing.T) {
	dir := t.TempDir()
	o := &options{
		input:   writeInput(t, dir),
		outDir:  filepath.Join(dir, "out"),
		record:  true,
		dataDir: filepath.Join(dir, "data"),
		cols:    3,
		cell:    64,
		params:  smallParams(),
	}

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout))
	out := stdout.String()
	assert.Contains(t, out, "IMAGE QUALITY METRICS")
	assert.Contains(t, out, "Recorded run ")

	for _, name := range append(pipeline.StageNames(), "sheet") {
		_, err := os.Stat(filepath.Join(o.outDir, name+".png"))
		assert.NoError(t, err, name)
	}
	denoised, err := imageio.Load(filepath.Join(o.outDir, "denoised.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 40), denoised.Bounds())

	id := strings.TrimSpace(out[strings.Index(out, "Recorded run ")+len("Recorded run "):])
	database, err := db.Open(o.dataDir)
	require.NoError(t, err)
	defer database.Close()
	got, err := db.GetRun(database, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "input.png", got.SourceName)
	assert.Len(t, got.Scores, 5)
}

func TestParseOps(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseFlags([]string{"-i", "in.png", "-op", "clahe, sharpen"}, testConfig(t), &stderr)
	require.NoError(t, err)
	require.NotNil(t, o.custom)

	o, err = parseFlags([]string{"-i", "in.png", "-op", "ENHANCE"}, testConfig(t), &stderr)
	require.NoError(t, err)
	require.NotNil(t, o.custom)

	_, err = parseFlags([]string{"-i", "in.png", "-op", "clahe,sepia"}, testConfig(t), &stderr)
	assert.ErrorIs(t, err, enhance.ErrUnknownOperator)

	_, err = parseFlags([]string{"-i", "in.png", "-op", "enhance,gamma"}, testConfig(t), &stderr)
	assert.ErrorIs(t, err, enhance.ErrUnknownOperator)

	o, err = parseFlags([]string{"-i", "in.png"}, testConfig(t), &stderr)
	require.NoError(t, err)
	assert.Nil(t, o.custom)
}

func TestRunCustomOps(t *testing.T) {
	dir := t.TempDir()
	custom, err := parseOps("equalize,gamma")
	require.NoError(t, err)
	o := &options{
		input:  writeInput(t, dir),
		outDir: filepath.Join(dir, "out"),
		cols:   3,
		cell:   64,
		ops:    "equalize,gamma",
		custom: custom,
		params: smallParams(),
	}

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout))
	assert.Contains(t, stdout.String(), "Custom (equalize,gamma): PSNR = ")

	out, err := imageio.Load(filepath.Join(o.outDir, "custom.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 40), out.Bounds())
}

func TestRunMissingInput(t *testing.T) {
	o := &options{input: filepath.Join(t.TempDir(), "nope.png"), params: smallParams()}
	err := run(context.Background(), o, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load image")
}
