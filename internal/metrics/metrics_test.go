package metrics

import (
	"encoding/json"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGray(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func offset(img *image.Gray, d int) *image.Gray {
	out := image.NewGray(img.Bounds())
	for i, p := range img.Pix {
		out.Pix[i] = uint8(min(int(p)+d, 255))
	}
	return out
}

func TestPSNRIdentical(t *testing.T) {
	img := randomGray(32, 24, 1)
	p, err := PSNR(img, img)
	require.NoError(t, err)
	assert.True(t, math.IsInf(p, 1))
}

func TestPSNRKnownValue(t *testing.T) {
	ref := image.NewGray(image.Rect(0, 0, 16, 16))
	cand := offset(ref, 5)
	p, err := PSNR(ref, cand)
	require.NoError(t, err)
	// MSE 25.
	assert.InDelta(t, 10*math.Log10(255*255/25.0), p, 1e-12)
}

func TestPSNRCropsReference(t *testing.T) {
	ref := randomGray(40, 30, 2)
	cand := ref.SubImage(image.Rect(0, 0, 33, 21)).(*image.Gray)
	p, err := PSNR(ref, cand)
	require.NoError(t, err)
	assert.True(t, math.IsInf(p, 1))

	_, err = PSNR(cand, ref)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSSIMIdentical(t *testing.T) {
	img := randomGray(30, 20, 3)
	s, err := SSIM(img, img)
	require.NoError(t, err)
	assert.InDelta(t, 1, s, 1e-12)
}

func TestSSIMDegradesWithNoise(t *testing.T) {
	ref := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			ref.Pix[y*64+x] = uint8(x * 4)
		}
	}
	rng := rand.New(rand.NewSource(4))
	light := image.NewGray(ref.Bounds())
	heavy := image.NewGray(ref.Bounds())
	for i, p := range ref.Pix {
		n := rng.NormFloat64()
		light.Pix[i] = uint8(math.Max(0, math.Min(255, float64(p)+3*n)))
		heavy.Pix[i] = uint8(math.Max(0, math.Min(255, float64(p)+30*n)))
	}
	sl, err := SSIM(ref, light)
	require.NoError(t, err)
	sh, err := SSIM(ref, heavy)
	require.NoError(t, err)
	assert.Greater(t, sl, sh)
	assert.Less(t, sl, 1.0)
	assert.Greater(t, sh, -1.0)
}

func TestSSIMFlatCandidate(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 10, 10))
	s, err := SSIM(flat, flat)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(s))
	assert.InDelta(t, 1, s, 1e-12)
}

func TestSSIMTooSmall(t *testing.T) {
	img := randomGray(6, 12, 5)
	_, err := SSIM(img, img)
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestEmptyInputs(t *testing.T) {
	empty := image.NewGray(image.Rectangle{})
	_, err := PSNR(empty, empty)
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = Compare(nil, randomGray(8, 8, 6))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestCompare(t *testing.T) {
	ref := randomGray(20, 20, 7)
	cand := offset(ref, 1)
	sc, err := Compare(ref, cand)
	require.NoError(t, err)
	p, _ := PSNR(ref, cand)
	s, _ := SSIM(ref, cand)
	assert.Equal(t, Score{PSNR: p, SSIM: s}, sc)
	assert.Greater(t, sc.PSNR, 40.0)
}

func TestScoreJSON(t *testing.T) {
	data, err := json.Marshal(Score{PSNR: math.Inf(1), SSIM: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"psnr":null,"ssim":1}`, string(data))

	var back Score
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(back.PSNR, 1))

	data, err = json.Marshal(Score{PSNR: 31.5, SSIM: 0.9})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Score{PSNR: 31.5, SSIM: 0.9}, back)
}
