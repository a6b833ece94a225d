// Package metrics scores a candidate image against a reference with peak
// signal-to-noise ratio and mean structural similarity.
//
// The reference is always cropped to the candidate's extent before scoring,
// never the other way round: a candidate larger than its reference is an
// error.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	dataRange = 255.0

	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

var (
	ErrShapeMismatch = errors.New("reference smaller than candidate")
	ErrTooSmall      = errors.New("image smaller than the similarity window")
	ErrEmptyImage    = errors.New("empty image")
)

// Score pairs the two quality measures for one comparison.
type Score struct {
	PSNR float64 `json:"psnr"`
	SSIM float64 `json:"ssim"`
}

// MarshalJSON encodes an infinite PSNR (identical images) as null.
func (s Score) MarshalJSON() ([]byte, error) {
	var v struct {
		PSNR *float64 `json:"psnr"`
		SSIM float64  `json:"ssim"`
	}
	if !math.IsInf(s.PSNR, 0) && !math.IsNaN(s.PSNR) {
		v.PSNR = &s.PSNR
	}
	v.SSIM = s.SSIM
	return json.Marshal(v)
}

// UnmarshalJSON reverses MarshalJSON.
func (s *Score) UnmarshalJSON(data []byte) error {
	var v struct {
		PSNR *float64 `json:"psnr"`
		SSIM float64  `json:"ssim"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.PSNR = math.Inf(1)
	if v.PSNR != nil {
		s.PSNR = *v.PSNR
	}
	s.SSIM = v.SSIM
	return nil
}

// Compare computes both PSNR and SSIM.
func Compare(reference, candidate *image.Gray) (Score, error) {
	p, err := PSNR(reference, candidate)
	if err != nil {
		return Score{}, err
	}
	s, err := SSIM(reference, candidate)
	if err != nil {
		return Score{}, err
	}
	return Score{PSNR: p, SSIM: s}, nil
}

// PSNR returns 10*log10(255^2/MSE) in decibels. Identical images score +Inf.
func PSNR(reference, candidate *image.Gray) (float64, error) {
	ref, cand, _, _, err := aligned(reference, candidate)
	if err != nil {
		return 0, err
	}
	floats.Sub(ref, cand)
	mse := floats.Dot(ref, ref) / float64(len(ref))
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(dataRange*dataRange/mse), nil
}

// SSIM returns the mean structural similarity over a 7x7 uniform window
// with sample statistics. The data range is the candidate's max-min, or 255
// for a flat candidate. Windows touching the border are excluded from the
// mean.
func SSIM(reference, candidate *image.Gray) (float64, error) {
	x, y, w, h, err := aligned(reference, candidate)
	if err != nil {
		return 0, err
	}
	if w < ssimWindow || h < ssimWindow {
		return 0, fmt.Errorf("%w: %dx%d", ErrTooSmall, w, h)
	}

	r := floats.Max(y) - floats.Min(y)
	if r == 0 {
		r = dataRange
	}
	c1 := (ssimK1 * r) * (ssimK1 * r)
	c2 := (ssimK2 * r) * (ssimK2 * r)

	sx := newIntegral(x, nil, w, h)
	sy := newIntegral(y, nil, w, h)
	sxx := newIntegral(x, x, w, h)
	syy := newIntegral(y, y, w, h)
	sxy := newIntegral(x, y, w, h)

	const np = ssimWindow * ssimWindow
	covNorm := float64(np) / float64(np-1)
	vals := make([]float64, 0, (w-ssimWindow+1)*(h-ssimWindow+1))
	for r0 := 0; r0+ssimWindow <= h; r0++ {
		for c0 := 0; c0+ssimWindow <= w; c0++ {
			ux := sx.box(r0, c0) / np
			uy := sy.box(r0, c0) / np
			vx := covNorm * (sxx.box(r0, c0)/np - ux*ux)
			vy := covNorm * (syy.box(r0, c0)/np - uy*uy)
			vxy := covNorm * (sxy.box(r0, c0)/np - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			vals = append(vals, num/den)
		}
	}
	return stat.Mean(vals, nil), nil
}

// aligned flattens candidate and the matching top-left region of reference
// into row-major float slices.
func aligned(reference, candidate *image.Gray) (ref, cand []float64, w, h int, err error) {
	if reference == nil || candidate == nil || candidate.Bounds().Empty() || reference.Bounds().Empty() {
		return nil, nil, 0, 0, ErrEmptyImage
	}
	rb, cb := reference.Bounds(), candidate.Bounds()
	w, h = cb.Dx(), cb.Dy()
	if rb.Dx() < w || rb.Dy() < h {
		return nil, nil, 0, 0, fmt.Errorf("%w: reference %dx%d, candidate %dx%d",
			ErrShapeMismatch, rb.Dx(), rb.Dy(), w, h)
	}
	ref = make([]float64, w*h)
	cand = make([]float64, w*h)
	for yy := 0; yy < h; yy++ {
		ro := reference.PixOffset(rb.Min.X, rb.Min.Y+yy)
		co := candidate.PixOffset(cb.Min.X, cb.Min.Y+yy)
		for xx := 0; xx < w; xx++ {
			ref[yy*w+xx] = float64(reference.Pix[ro+xx])
			cand[yy*w+xx] = float64(candidate.Pix[co+xx])
		}
	}
	return ref, cand, w, h, nil
}

// integral is a summed-area table of a (or a*b when b is set) with one row
// and column of zero padding.
type integral struct {
	sum    []float64
	stride int
}

func newIntegral(a, b []float64, w, h int) integral {
	it := integral{sum: make([]float64, (w+1)*(h+1)), stride: w + 1}
	for y := 0; y < h; y++ {
		run := 0.0
		for x := 0; x < w; x++ {
			v := a[y*w+x]
			if b != nil {
				v *= b[y*w+x]
			}
			run += v
			it.sum[(y+1)*it.stride+x+1] = it.sum[y*it.stride+x+1] + run
		}
	}
	return it
}

// box sums the window whose top-left sample is (r0, c0).
func (it integral) box(r0, c0 int) float64 {
	r1, c1 := r0+ssimWindow, c0+ssimWindow
	return it.sum[r1*it.stride+c1] - it.sum[r0*it.stride+c1] - it.sum[r1*it.stride+c0] + it.sum[r0*it.stride+c0]
}
