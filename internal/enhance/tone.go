package enhance

import (
	"fmt"
	"image"
	"math"
)

// GammaTable builds the lookup table i -> ((i/255)^(1/gamma))*255, truncated
// to an integer.
func GammaTable(gamma float64) [256]uint8 {
	var lut [256]uint8
	inv := 1 / gamma
	for i := range lut {
		v := math.Pow(float64(i)/255, inv) * 255
		lut[i] = uint8(math.Min(255, math.Max(0, v)))
	}
	return lut
}

// Gamma returns a gamma correction operator. Values above 1 brighten
// midtones.
func Gamma(gamma float64) (Operator, error) {
	if !(gamma > 0) || math.IsInf(gamma, 0) {
		return nil, fmt.Errorf("%w: gamma %v must be positive and finite", ErrInvalidParams, gamma)
	}
	lut := GammaTable(gamma)
	return func(img *image.Gray) *image.Gray {
		return Map(img, &lut)
	}, nil
}
