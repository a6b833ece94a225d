// Package nlmeans implements non-local means denoising for 8-bit grayscale
// images.
//
// Every pixel is replaced by a weighted mean of the pixels in its search
// window. A candidate's weight is exp(-d/h^2), where d is the mean squared
// difference between the template windows around the two pixels. Borders are
// extended by reflection without repeating the edge sample.
package nlmeans

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"
)

// weightThreshold drops candidates whose weight is negligible.
const weightThreshold = 0.001

var (
	// ErrInvalidParams is returned for non-positive strength or even or
	// non-positive window sizes.
	ErrInvalidParams = errors.New("invalid non-local means parameters")
	// ErrEmptyImage is returned for images with a zero dimension.
	ErrEmptyImage = errors.New("empty image")
)

// Params controls the filter.
type Params struct {
	// H is the filter strength; larger values smooth more.
	H float64
	// TemplateWindow is the odd side length of the patch compared between pixels.
	TemplateWindow int
	// SearchWindow is the odd side length of the neighbourhood searched for
	// similar patches.
	SearchWindow int
}

// DefaultParams returns strength 20 with 7x7 templates and a 21x21 search.
func DefaultParams() Params {
	return Params{H: 20, TemplateWindow: 7, SearchWindow: 21}
}

func (p Params) validate() error {
	if p.H <= 0 || math.IsNaN(p.H) {
		return fmt.Errorf("%w: strength %v must be positive", ErrInvalidParams, p.H)
	}
	if p.TemplateWindow < 1 || p.TemplateWindow%2 == 0 {
		return fmt.Errorf("%w: template window %d must be odd and positive", ErrInvalidParams, p.TemplateWindow)
	}
	if p.SearchWindow < 1 || p.SearchWindow%2 == 0 {
		return fmt.Errorf("%w: search window %d must be odd and positive", ErrInvalidParams, p.SearchWindow)
	}
	return nil
}

// Denoise returns a filtered copy of img with the same dimensions, anchored
// at the origin.
func Denoise(img *image.Gray, p Params) (*image.Gray, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &filter{
		th:  p.TemplateWindow / 2,
		sh:  p.SearchWindow / 2,
		h2:  p.H * p.H,
		tsq: float64(p.TemplateWindow * p.TemplateWindow),
		w:   w,
	}
	f.pad = f.th + f.sh
	f.pw = w + 2*f.pad
	ph := h + 2*f.pad

	f.src = make([]float64, f.pw*ph)
	for y := 0; y < ph; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+reflect101(y-f.pad, h))
		row := f.src[y*f.pw : (y+1)*f.pw]
		for x := range row {
			row[x] = float64(img.Pix[off+reflect101(x-f.pad, w)])
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	bands := min(runtime.GOMAXPROCS(0), h)
	per := (h + bands - 1) / bands
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += per {
		y1 := min(y0+per, h)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.rows(y0, y1, out)
		}()
	}
	wg.Wait()
	return out, nil
}

type filter struct {
	src     []float64 // padded source, row stride pw
	pw, pad int
	th, sh  int
	h2, tsq float64
	w       int
}

// rows filters output rows [y0, y1). For every search offset it builds an
// integral image of squared differences over the band (plus the template
// margin) so each template distance is four lookups.
func (f *filter) rows(y0, y1 int, out *image.Gray) {
	rows := y1 - y0
	tw := 2*f.th + 1
	rh := rows + 2*f.th
	rw := f.w + 2*f.th
	stride := rw + 1

	integ := make([]float64, (rh+1)*stride)
	num := make([]float64, rows*f.w)
	den := make([]float64, rows*f.w)

	for dy := -f.sh; dy <= f.sh; dy++ {
		for dx := -f.sh; dx <= f.sh; dx++ {
			shift := dy*f.pw + dx
			for i := 0; i < rh; i++ {
				base := (y0+f.pad-f.th+i)*f.pw + f.pad - f.th
				line := f.src[base : base+rw]
				prev := integ[i*stride:]
				cur := integ[(i+1)*stride:]
				acc := 0.0
				for j, v := range line {
					d := v - f.src[base+j+shift]
					acc += d * d
					cur[j+1] = prev[j+1] + acc
				}
			}

			for y := 0; y < rows; y++ {
				top := integ[y*stride:]
				bot := integ[(y+tw)*stride:]
				cand := (y0+y+f.pad)*f.pw + f.pad + shift
				for x := 0; x < f.w; x++ {
					ssd := bot[x+tw] - top[x+tw] - bot[x] + top[x]
					wgt := math.Exp(-(ssd / f.tsq) / f.h2)
					if wgt < weightThreshold {
						continue
					}
					num[y*f.w+x] += wgt * f.src[cand+x]
					den[y*f.w+x] += wgt
				}
			}
		}
	}

	for y := 0; y < rows; y++ {
		pix := out.Pix[(y0+y)*out.Stride:]
		for x := 0; x < f.w; x++ {
			v := math.Round(num[y*f.w+x] / den[y*f.w+x])
			pix[x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
}

// reflect101 maps k onto [0, n) by mirroring about the edge samples
// (..., x2, x1 | x0, x1, ..., xn-1 | xn-2, ...).
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
