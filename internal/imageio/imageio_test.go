package imageio_test

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/imgrestore/internal/imageio"
)

func ramp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	return img
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := ramp(37, 21)
	path := filepath.Join(dir, "ramp.png")
	require.NoError(t, imageio.Save(path, src))

	got, err := imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, src.Pix, got.Pix)
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramp.jpg")
	require.NoError(t, imageio.Save(path, ramp(16, 16)))
	got, err := imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Bounds().Dx())
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	err := imageio.Save(filepath.Join(t.TempDir(), "x.gifv"), ramp(2, 2))
	assert.ErrorIs(t, err, imageio.ErrUnsupportedFormat)
}

func TestLoadErrors(t *testing.T) {
	_, err := imageio.Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = imageio.Decode(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestToGrayUsesLumaWeights(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(5, 5, 7, 6))
	rgba.Set(5, 5, color.RGBA{R: 255, A: 255})
	rgba.Set(6, 5, color.RGBA{G: 255, A: 255})
	g := imageio.ToGray(rgba)
	assert.Equal(t, image.Rect(0, 0, 2, 1), g.Bounds())
	assert.InDelta(t, 0.299*255, float64(g.Pix[0]), 1)
	assert.InDelta(t, 0.587*255, float64(g.Pix[1]), 1)
}

func TestCrop(t *testing.T) {
	src := ramp(10, 8)
	c := imageio.Crop(src, 4, 3)
	require.Equal(t, image.Rect(0, 0, 4, 3), c.Bounds())
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, src.GrayAt(x, y), c.GrayAt(x, y))
		}
	}

	// Oversized requests clamp to the source extent.
	big := imageio.Crop(src, 50, 50)
	assert.Equal(t, src.Bounds(), big.Bounds())
	assert.Equal(t, src.Pix, big.Pix)

	// Sub-images crop relative to their own origin.
	sub := src.SubImage(image.Rect(2, 3, 10, 8)).(*image.Gray)
	sc := imageio.Crop(sub, 2, 2)
	assert.Equal(t, src.GrayAt(2, 3), sc.GrayAt(0, 0))
	assert.Equal(t, src.GrayAt(3, 4), sc.GrayAt(1, 1))

	// The copy is independent of the source.
	c.Pix[0] = 200
	assert.NotEqual(t, uint8(200), src.Pix[0])
}

func TestDigest(t *testing.T) {
	a := ramp(20, 20)
	b := imageio.Clone(a)
	assert.Equal(t, imageio.Digest(a), imageio.Digest(b))
	assert.Len(t, imageio.Digest(a), 64)

	b.Pix[7]++
	assert.NotEqual(t, imageio.Digest(a), imageio.Digest(b))

	// Same pixels, different shape.
	assert.NotEqual(t, imageio.Digest(ramp(10, 40)), imageio.Digest(ramp(40, 10)))

	big := ramp(30, 30)
	sub := big.SubImage(image.Rect(5, 5, 15, 15)).(*image.Gray)
	assert.Equal(t, imageio.Digest(imageio.Clone(sub)), imageio.Digest(sub))
}

func TestAddGaussianNoise(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 128, 128))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}

	same := imageio.AddGaussianNoise(flat, 0, 1)
	assert.Equal(t, flat.Pix, same.Pix)

	n1 := imageio.AddGaussianNoise(flat, 10, 42)
	n2 := imageio.AddGaussianNoise(flat, 10, 42)
	n3 := imageio.AddGaussianNoise(flat, 10, 43)
	assert.Equal(t, n1.Pix, n2.Pix)
	assert.NotEqual(t, n1.Pix, n3.Pix)
	assert.Equal(t, bytes.Repeat([]byte{128}, len(flat.Pix)), flat.Pix, "source mutated")

	var sum, sq float64
	for _, p := range n1.Pix {
		d := float64(p) - 128
		sum += d
		sq += d * d
	}
	n := float64(len(n1.Pix))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)
	assert.InDelta(t, 0, mean, 0.5)
	assert.InDelta(t, 10, std, 0.5)
}
