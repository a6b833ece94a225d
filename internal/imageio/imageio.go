// Package imageio loads, stores and fingerprints 8-bit grayscale images.
package imageio

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/stat/distuv"
)

// JPEGQuality is used by Save for .jpg/.jpeg outputs.
const JPEGQuality = 95

// ErrUnsupportedFormat is returned by Save for unknown output extensions.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Extensions lists the input formats Load understands.
var Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// Load opens an image file and converts it to 8-bit luma.
func Load(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Decode reads any registered image format and converts it to 8-bit luma
// with ITU-R 601 weights. The result always has its origin at (0, 0).
func Decode(r io.Reader) (*image.Gray, error) {
	decoded, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return ToGray(decoded), nil
}

// ToGray converts img to a fresh *image.Gray anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Save writes img to path; the extension selects PNG or JPEG.
func Save(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: JPEGQuality})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Crop returns a copy of the top-left w x h region of img. The region is
// clamped to the image extent, so Crop never reads past the source.
func Crop(img *image.Gray, w, h int) *image.Gray {
	b := img.Bounds()
	w = min(w, b.Dx())
	h = min(h, b.Dy())
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+w], img.Pix[off:off+w])
	}
	return out
}

// Clone returns a copy of img anchored at the origin.
func Clone(img *image.Gray) *image.Gray {
	b := img.Bounds()
	return Crop(img, b.Dx(), b.Dy())
}

// Digest returns the hex BLAKE2b-256 of the image dimensions and pixels.
// Images with equal pixels hash equally regardless of stride or origin.
func Digest(img *image.Gray) string {
	h, _ := blake2b.New256(nil)
	b := img.Bounds()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(dims[4:8], uint32(b.Dy()))
	h.Write(dims[:])
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		h.Write(img.Pix[off : off+b.Dx()])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AddGaussianNoise returns a copy of img with zero-mean Gaussian noise of
// the given standard deviation added to every sample, rounded and clipped
// to [0, 255]. The noise sequence is determined by seed.
func AddGaussianNoise(img *image.Gray, sigma float64, seed uint64) *image.Gray {
	out := Clone(img)
	if sigma <= 0 {
		return out
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	noise := distuv.Normal{Mu: 0, Sigma: sigma}
	for i, p := range out.Pix {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		v := math.Round(float64(p) + noise.Quantile(u))
		out.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out
}
