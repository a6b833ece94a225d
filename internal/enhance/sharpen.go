package enhance

import (
	"image"
	"math"

	"github.com/disintegration/gift"
)

const (
	sharpenKernel = 9
	sharpenSigma  = 10.0
	sharpenAmount = 0.5
)

// GaussianKernel returns a normalised 1D Gaussian of the given odd size.
func GaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	c := float64(size-1) / 2
	sum := 0.0
	for i := range k {
		d := float64(i) - c
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// GaussianBlur applies a size x size Gaussian and rounds back to 8 bits.
// Borders replicate the edge samples.
func GaussianBlur(img *image.Gray, size int, sigma float64) *image.Gray {
	k := GaussianKernel(size, sigma)
	kernel := make([]float32, size*size)
	for y, ky := range k {
		for x, kx := range k {
			kernel[y*size+x] = float32(ky * kx)
		}
	}
	g := gift.New(gift.Convolution(kernel, true, false, false, 0))
	out := image.NewGray(g.Bounds(img.Bounds()))
	g.Draw(out, img)
	return out
}

// Sharpen applies unsharp masking: 1.5*img - 0.5*blur, where blur is a 9x9
// Gaussian with sigma 10.
func Sharpen(img *image.Gray) *image.Gray {
	blur := GaussianBlur(img, sharpenKernel, sharpenSigma)
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := (1+sharpenAmount)*float64(at(img, x, y)) - sharpenAmount*float64(blur.Pix[y*blur.Stride+x])
			out.Pix[y*out.Stride+x] = saturate(v)
		}
	}
	return out
}
