// Package wavelet implements multi-level 2D discrete wavelet transforms with
// orthogonal Daubechies filter banks and half-sample symmetric boundary
// extension.
//
// Coefficient sizes follow the usual convention for symmetric extension: a
// signal of length n analysed with a filter of length F yields
// floor((n+F-1)/2) coefficients per band, and synthesis from m coefficients
// yields 2m-F+2 samples. Reconstruction can therefore be one sample longer
// than the original signal along any axis whose length was odd.
package wavelet

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MaxOrder is the highest Daubechies order available through Lookup.
const MaxOrder = 10

// ErrUnknownWavelet is returned by Lookup for names outside the supported set.
var ErrUnknownWavelet = errors.New("unknown wavelet")

// Family is an orthogonal two-channel filter bank.
type Family struct {
	Name  string
	DecLo []float64
	DecHi []float64
	RecLo []float64
	RecHi []float64
}

// Len returns the filter length F.
func (f *Family) Len() int {
	return len(f.DecLo)
}

var (
	familyMu    sync.Mutex
	familyCache = map[int]*Family{}
)

// Lookup returns the filter bank for name. Accepted names are "haar" and
// "db1" through "db10", case-insensitively.
func Lookup(name string) (*Family, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	order := 0
	switch {
	case key == "haar":
		order = 1
	case strings.HasPrefix(key, "db"):
		n, err := strconv.Atoi(key[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownWavelet, name)
		}
		order = n
	}
	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWavelet, name)
	}

	familyMu.Lock()
	defer familyMu.Unlock()
	if f, ok := familyCache[order]; ok {
		return f, nil
	}
	f, err := daubechies(order)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", key, err)
	}
	familyCache[order] = f
	return f, nil
}

// daubechies builds the order-n Daubechies filter bank by spectral
// factorisation. The Daubechies polynomial
//
//	P(y) = sum_{k=0}^{n-1} C(n-1+k, k) y^k,  y = sin^2(w/2)
//
// is factored through its roots; each root y maps to a pair of reciprocal
// zeros z, 1/z of the lowpass filter via z + 1/z = 2 - 4y, and the zero inside
// the unit circle is kept (minimum phase). The result is scaled so the
// lowpass taps sum to sqrt(2).
func daubechies(n int) (*Family, error) {
	poly := []complex128{1}
	for i := 0; i < n; i++ {
		poly = polyMul(poly, []complex128{1, 1})
	}

	roots, err := daubechiesRoots(n)
	if err != nil {
		return nil, err
	}
	for _, y := range roots {
		b := 2 - 4*y
		disc := cmplx.Sqrt(b*b - 4)
		z := (b + disc) / 2
		if cmplx.Abs(z) > 1 {
			z = (b - disc) / 2
		}
		poly = polyMul(poly, []complex128{1, -z})
	}

	recLo := make([]float64, len(poly))
	for i, c := range poly {
		recLo[i] = real(c)
	}
	floats.Scale(math.Sqrt2/floats.Sum(recLo), recLo)

	return newFamily(fmt.Sprintf("db%d", n), recLo), nil
}

// daubechiesRoots returns the roots of the order-n Daubechies polynomial as
// the eigenvalues of its companion matrix.
func daubechiesRoots(n int) ([]complex128, error) {
	deg := n - 1
	if deg == 0 {
		return nil, nil
	}
	coef := make([]float64, n)
	for k := 0; k < n; k++ {
		coef[k] = binomial(n-1+k, k)
	}

	comp := mat.NewDense(deg, deg, nil)
	for i := 1; i < deg; i++ {
		comp.Set(i, i-1, 1)
	}
	lead := coef[deg]
	for i := 0; i < deg; i++ {
		comp.Set(i, deg-1, -coef[i]/lead)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(comp, mat.EigenNone); !ok {
		return nil, errors.New("companion matrix eigen-decomposition did not converge")
	}
	return eig.Values(nil), nil
}

// newFamily derives the remaining three filters of an orthogonal bank from
// its reconstruction lowpass filter.
func newFamily(name string, recLo []float64) *Family {
	f := len(recLo)
	recHi := make([]float64, f)
	for k := range recHi {
		recHi[k] = recLo[f-1-k]
		if k%2 == 1 {
			recHi[k] = -recHi[k]
		}
	}
	return &Family{
		Name:  name,
		DecLo: reversed(recLo),
		DecHi: reversed(recHi),
		RecLo: recLo,
		RecHi: recHi,
	}
}

func polyMul(a, b []complex128) []complex128 {
	out := make([]complex128, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func reversed(s []float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
