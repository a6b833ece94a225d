package enhance

import (
	"fmt"
	"image"
	"math"
)

const histSize = 256

// Equalize spreads the global histogram over the full 8-bit range. The
// lowest occupied level maps to 0; a single-level image maps every sample to
// that level.
func Equalize(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var hist [histSize]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[at(img, x, y)]++
		}
	}

	var lut [256]uint8
	total := w * h
	if total == 0 {
		return Map(img, &lut)
	}
	i := 0
	for hist[i] == 0 {
		i++
	}
	if hist[i] == total {
		for j := range lut {
			lut[j] = uint8(i)
		}
		return Map(img, &lut)
	}

	scale := float64(histSize-1) / float64(total-hist[i])
	sum := 0
	lut[i] = 0
	for i++; i < histSize; i++ {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	return Map(img, &lut)
}

// CLAHE returns a contrast-limited adaptive histogram equalisation operator
// working on a tilesX x tilesY grid. Each tile histogram is clipped at
// clipLimit times its mean bin height, the excess is spread evenly over all
// bins, and per-tile mappings are blended bilinearly. A clipLimit <= 0
// disables clipping.
func CLAHE(clipLimit float64, tilesX, tilesY int) (Operator, error) {
	if tilesX < 1 || tilesY < 1 {
		return nil, fmt.Errorf("%w: tile grid %dx%d", ErrInvalidParams, tilesX, tilesY)
	}
	if math.IsNaN(clipLimit) {
		return nil, fmt.Errorf("%w: clip limit NaN", ErrInvalidParams)
	}
	return func(img *image.Gray) *image.Gray {
		return clahe(img, clipLimit, tilesX, tilesY)
	}, nil
}

func clahe(img *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// Tiles are sized over a grid extended (by mirroring) to a multiple of
	// the tile count. Whenever either axis needs padding, both axes are
	// extended, the divisible one by a whole tile count.
	ew, eh := w, h
	if w%tilesX != 0 || h%tilesY != 0 {
		ew = w + tilesX - w%tilesX
		eh = h + tilesY - h%tilesY
	}
	tw, th := ew/tilesX, eh/tilesY
	area := tw * th

	limit := 0
	if clipLimit > 0 {
		limit = max(int(clipLimit*float64(area)/histSize), 1)
	}
	lutScale := float64(histSize-1) / float64(area)

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			var hist [histSize]int
			for y := ty * th; y < (ty+1)*th; y++ {
				sy := reflect101(y, h)
				for x := tx * tw; x < (tx+1)*tw; x++ {
					hist[at(img, reflect101(x, w), sy)]++
				}
			}
			if limit > 0 {
				clipHistogram(&hist, limit)
			}
			lut := &luts[ty*tilesX+tx]
			sum := 0
			for i := range hist {
				sum += hist[i]
				lut[i] = saturate(float64(sum) * lutScale)
			}
		}
	}

	invTW, invTH := 1/float64(tw), 1/float64(th)
	for y := 0; y < h; y++ {
		tyf := float64(y)*invTH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ty1 = max(ty1, 0)
		ty2 = min(ty2, tilesY-1)

		for x := 0; x < w; x++ {
			txf := float64(x)*invTW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			tx1 = max(tx1, 0)
			tx2 = min(tx2, tilesX-1)

			v := at(img, x, y)
			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bot := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			out.Pix[y*out.Stride+x] = saturate(top*(1-ya) + bot*ya)
		}
	}
	return out
}

// clipHistogram caps every bin at limit and redistributes the excess: an
// equal share to every bin, then the remainder one sample at a time at an
// even stride from bin 0.
func clipHistogram(hist *[histSize]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}
	batch := clipped / histSize
	residual := clipped - batch*histSize
	for i := range hist {
		hist[i] += batch
	}
	if residual != 0 {
		step := max(histSize/residual, 1)
		for i := 0; i < histSize && residual > 0; i, residual = i+step, residual-1 {
			hist[i]++
		}
	}
}
