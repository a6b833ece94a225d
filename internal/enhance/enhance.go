// Package enhance provides contrast and sharpness operators for 8-bit
// grayscale images. Every operator is a pure function: it returns a new
// image anchored at the origin and leaves its input untouched.
package enhance

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/YannKr/imgrestore/internal/nlmeans"
)

// Defaults for the registered operators.
const (
	DefaultClipLimit = 3.0
	DefaultTiles     = 8
	DefaultGamma     = 1.2
)

var (
	// ErrUnknownOperator is returned by Lookup for unregistered names.
	ErrUnknownOperator = errors.New("unknown enhancement operator")
	// ErrInvalidParams is returned by operator constructors for out-of-range
	// parameters.
	ErrInvalidParams = errors.New("invalid enhancement parameters")
)

// Operator maps an image to a new image of the same size.
type Operator func(*image.Gray) *image.Gray

// Names of the registered operators, in display order.
const (
	OpEqualize = "equalize"
	OpCLAHE    = "clahe"
	OpGamma    = "gamma"
	OpSharpen  = "sharpen"
)

var registry = map[string]Operator{
	OpEqualize: Equalize,
	OpCLAHE:    mustOp(CLAHE(DefaultClipLimit, DefaultTiles, DefaultTiles)),
	OpGamma:    mustOp(Gamma(DefaultGamma)),
	OpSharpen:  Sharpen,
}

func mustOp(op Operator, err error) Operator {
	if err != nil {
		panic(err)
	}
	return op
}

// Lookup returns the operator registered under name with default parameters.
func Lookup(name string) (Operator, error) {
	op, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return op, nil
}

// Names returns the registered operator names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Chain composes operators left to right.
func Chain(ops ...Operator) Operator {
	return func(img *image.Gray) *image.Gray {
		out := img
		for _, op := range ops {
			out = op(out)
		}
		if out == img {
			out = clone(img)
		}
		return out
	}
}

// Enhance runs the combined enhancement chain: light non-local means
// (strength 7), CLAHE, gamma 1.1 and unsharp masking.
func Enhance(img *image.Gray) (*image.Gray, error) {
	den, err := nlmeans.Denoise(img, nlmeans.Params{H: 7, TemplateWindow: 7, SearchWindow: 21})
	if err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}
	gamma, err := Gamma(1.1)
	if err != nil {
		return nil, err
	}
	clahe, err := CLAHE(DefaultClipLimit, DefaultTiles, DefaultTiles)
	if err != nil {
		return nil, err
	}
	return Chain(clahe, gamma, Sharpen)(den), nil
}

// Map applies a 256-entry lookup table to every sample.
func Map(img *image.Gray, lut *[256]uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = lut[src[x]]
		}
	}
	return out
}

func clone(img *image.Gray) *image.Gray {
	var identity [256]uint8
	for i := range identity {
		identity[i] = uint8(i)
	}
	return Map(img, &identity)
}

// at reads sample (x, y) relative to the image origin.
func at(img *image.Gray, x, y int) uint8 {
	b := img.Bounds()
	return img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)]
}

// reflect101 maps k onto [0, n) by mirroring about the edge samples.
func reflect101(k, n int) int {
	if n == 1 {
		return 0
	}
	period := 2*n - 2
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - k
	}
	return k
}

// saturate rounds half to even and clamps to [0, 255].
func saturate(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}
