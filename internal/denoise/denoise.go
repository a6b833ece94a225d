// Package denoise implements wavelet-domain noise suppression for 8-bit
// grayscale images: multi-level decomposition, a median-absolute-deviation
// noise estimate on the finest horizontal detail subband, universal soft
// thresholding of every detail subband, and reconstruction.
package denoise

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YannKr/imgrestore/internal/wavelet"
)

const (
	// DefaultWavelet is the filter family used when Options.Wavelet is empty.
	DefaultWavelet = "db8"
	// DefaultLevel is the decomposition depth used when Options.Level is zero.
	DefaultLevel = 3

	// madScale converts a median absolute deviation into a Gaussian standard
	// deviation (the 0.75 quantile of the standard normal distribution).
	madScale = 0.6745
)

// ErrEmptyImage is returned for images with a zero dimension.
var ErrEmptyImage = fmt.Errorf("%w: empty image", wavelet.ErrInvalidShape)

// Options selects the filter family and decomposition depth.
type Options struct {
	Wavelet string
	Level   int
}

// DefaultOptions returns db8 at depth 3.
func DefaultOptions() Options {
	return Options{Wavelet: DefaultWavelet, Level: DefaultLevel}
}

func (o Options) withDefaults() Options {
	if o.Wavelet == "" {
		o.Wavelet = DefaultWavelet
	}
	return o
}

// Result is the outcome of one Wavelet call.
type Result struct {
	// Image is at least as large as the input along each axis; callers that
	// need the original extent crop it themselves.
	Image     *image.Gray
	Sigma     float64
	Threshold float64
	Wavelet   string
	Level     int
}

// Wavelet denoises img. The input is never modified.
func Wavelet(img *image.Gray, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	fam, err := wavelet.Lookup(opts.Wavelet)
	if err != nil {
		return nil, err
	}

	src := toDense(img)
	dec, err := wavelet.Decompose(src, fam, opts.Level)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	// Sigma comes from the untouched finest horizontal subband.
	sigma := EstimateSigma(dec.Details[0].H)
	b := img.Bounds()
	tau := UniversalThreshold(sigma, b.Dx()*b.Dy())

	thresholded := &wavelet.Decomposition{
		Approx:  dec.Approx,
		Details: thresholdDetails(dec.Details, tau),
		Rows:    dec.Rows,
		Cols:    dec.Cols,
	}
	rec, err := wavelet.Reconstruct(thresholded, fam)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}

	slog.Debug("wavelet denoise",
		"wavelet", fam.Name, "level", opts.Level,
		"sigma", sigma, "threshold", tau,
		"width", b.Dx(), "height", b.Dy())

	return &Result{
		Image:     fromDense(rec),
		Sigma:     sigma,
		Threshold: tau,
		Wavelet:   fam.Name,
		Level:     opts.Level,
	}, nil
}

// EstimateSigma returns median(|h|)/0.6745. The median of an even number of
// values is the mean of the two middle ones.
func EstimateSigma(h mat.Matrix) float64 {
	r, c := h.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	abs := make([]float64, 0, r*c)
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			abs = append(abs, math.Abs(h.At(y, x)))
		}
	}
	return median(abs) / madScale
}

// UniversalThreshold returns sigma*sqrt(2 ln n), or 0 when n <= 1.
func UniversalThreshold(sigma float64, n int) float64 {
	if n <= 1 || sigma <= 0 {
		return 0
	}
	return sigma * math.Sqrt(2*math.Log(float64(n)))
}

// SoftThreshold shrinks c toward zero by tau: 0 when |c| <= tau,
// sign(c)(|c|-tau) otherwise.
func SoftThreshold(c, tau float64) float64 {
	mag := math.Abs(c) - tau
	if mag <= 0 {
		return 0
	}
	return math.Copysign(mag, c)
}

// ThresholdSubband returns a soft-thresholded copy of m with the same shape.
func ThresholdSubband(m *mat.Dense, tau float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return SoftThreshold(v, tau)
	}, m)
	return &out
}

// thresholdDetails soft-thresholds every detail subband concurrently. The
// subbands are independent until reconstruction.
func thresholdDetails(details []wavelet.Detail, tau float64) []wavelet.Detail {
	out := make([]wavelet.Detail, len(details))
	var wg sync.WaitGroup
	for i, d := range details {
		wg.Add(3)
		go func() {
			defer wg.Done()
			out[i].H = ThresholdSubband(d.H, tau)
		}()
		go func() {
			defer wg.Done()
			out[i].V = ThresholdSubband(d.V, tau)
		}()
		go func() {
			defer wg.Done()
			out[i].D = ThresholdSubband(d.D, tau)
		}()
	}
	wg.Wait()
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

// toDense copies the pixels of img into a rows x cols matrix.
func toDense(img *image.Gray) *mat.Dense {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	m := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		row := m.RawRowView(y)
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x, p := range img.Pix[off : off+w] {
			row[x] = float64(p)
		}
	}
	return m
}

// fromDense clips samples to [0, 255] and truncates them to uint8.
func fromDense(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := m.RawRowView(y)
		pix := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range row {
			pix[x] = clipU8(v)
		}
	}
	return out
}

// snapTolerance absorbs floating-point round-off in a reconstruction so an
// exact integer does not truncate to its predecessor.
const snapTolerance = 1e-6

// clipU8 clamps v to [0, 255] and converts to uint8, truncating any
// fractional part.
func clipU8(v float64) uint8 {
	if r := math.Round(v); math.Abs(v-r) < snapTolerance {
		v = r
	}
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// IsInvalidShape reports whether err is a shape or depth violation.
func IsInvalidShape(err error) bool {
	return errors.Is(err, wavelet.ErrInvalidShape)
}
