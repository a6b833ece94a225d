package wavelet

import (
	"gonum.org/v1/gonum/mat"
)

// Coeffs2D holds the four subbands of a single-level 2D transform.
//
// H is highpass along the row axis and lowpass along the column axis, V is
// the converse, and D is highpass along both.
type Coeffs2D struct {
	A, H, V, D *mat.Dense
}

// analysisLen is the number of coefficients per band for a signal of length n.
func analysisLen(n, f int) int {
	return (n + f - 1) / 2
}

// synthesisLen is the number of samples reconstructed from m coefficients.
func synthesisLen(m, f int) int {
	return 2*m - f + 2
}

// reflect maps an arbitrary index onto [0, n) using half-sample symmetric
// extension (x[-1] = x[0], x[n] = x[n-1]).
func reflect(k, n int) int {
	period := 2 * n
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - 1 - k
	}
	return k
}

// forward1D writes the lowpass and highpass analysis of src into lo and hi,
// each of length analysisLen(len(src), F).
// lo[o] = sum_j decLo[j] * src[2o+1-j], likewise for hi.
func forward1D(src []float64, fam *Family, lo, hi []float64) {
	n := len(src)
	f := fam.Len()
	for o := range lo {
		var a, d float64
		base := 2*o + 1
		// The highpass taps sum to zero, so accumulating differences from
		// the first sample under the filter keeps flat regions exactly zero.
		ref := src[reflect(base, n)]
		for j := 0; j < f; j++ {
			k := base - j
			if k < 0 || k >= n {
				k = reflect(k, n)
			}
			x := src[k]
			a += fam.DecLo[j] * x
			d += fam.DecHi[j] * (x - ref)
		}
		lo[o] = a
		hi[o] = d
	}
}

// inverse1D reconstructs synthesisLen(len(lo), F) samples into dst from the
// two coefficient bands. It is the transpose of forward1D.
func inverse1D(lo, hi []float64, fam *Family, dst []float64) {
	f := fam.Len()
	for n := range dst {
		var s float64
		// Only taps with 0 <= n+f-2-2o <= f-1 contribute.
		oMax := (n + f - 2) / 2
		if oMax > len(lo)-1 {
			oMax = len(lo) - 1
		}
		for o := n / 2; o <= oMax; o++ {
			idx := n + f - 2 - 2*o
			s += fam.RecLo[idx]*lo[o] + fam.RecHi[idx]*hi[o]
		}
		dst[n] = s
	}
}

// Forward2D applies a single-level 2D transform to src. Rows are filtered
// first, then each column of the intermediate results.
//
// Subband layout in the transform domain:
//
//	[ A | V ]
//	[ H | D ]
func Forward2D(src *mat.Dense, fam *Family) Coeffs2D {
	rows, cols := src.Dims()
	f := fam.Len()
	cm := analysisLen(cols, f)
	rm := analysisLen(rows, f)

	// Step 1: rows.
	lowX := mat.NewDense(rows, cm, nil)
	highX := mat.NewDense(rows, cm, nil)
	for y := 0; y < rows; y++ {
		forward1D(src.RawRowView(y), fam, lowX.RawRowView(y), highX.RawRowView(y))
	}

	// Step 2: columns of both intermediates.
	c := Coeffs2D{
		A: mat.NewDense(rm, cm, nil),
		H: mat.NewDense(rm, cm, nil),
		V: mat.NewDense(rm, cm, nil),
		D: mat.NewDense(rm, cm, nil),
	}
	col := make([]float64, rows)
	lo := make([]float64, rm)
	hi := make([]float64, rm)
	for x := 0; x < cm; x++ {
		mat.Col(col, x, lowX)
		forward1D(col, fam, lo, hi)
		c.A.SetCol(x, lo)
		c.H.SetCol(x, hi)

		mat.Col(col, x, highX)
		forward1D(col, fam, lo, hi)
		c.V.SetCol(x, lo)
		c.D.SetCol(x, hi)
	}
	return c
}

// Inverse2D reconstructs a 2D array from the four subbands produced by
// Forward2D. All subbands must share one shape.
func Inverse2D(c Coeffs2D, fam *Family) *mat.Dense {
	rm, cm := c.A.Dims()
	f := fam.Len()
	rows := synthesisLen(rm, f)
	cols := synthesisLen(cm, f)

	// Step 1: columns.
	lowX := mat.NewDense(rows, cm, nil)
	highX := mat.NewDense(rows, cm, nil)
	lo := make([]float64, rm)
	hi := make([]float64, rm)
	col := make([]float64, rows)
	for x := 0; x < cm; x++ {
		mat.Col(lo, x, c.A)
		mat.Col(hi, x, c.H)
		inverse1D(lo, hi, fam, col)
		lowX.SetCol(x, col)

		mat.Col(lo, x, c.V)
		mat.Col(hi, x, c.D)
		inverse1D(lo, hi, fam, col)
		highX.SetCol(x, col)
	}

	// Step 2: rows.
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		inverse1D(lowX.RawRowView(y), highX.RawRowView(y), fam, out.RawRowView(y))
	}
	return out
}
