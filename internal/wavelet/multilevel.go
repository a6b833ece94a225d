package wavelet

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidShape is returned when an input has a zero dimension, or when the
// requested depth cannot be reached for the input size and filter length.
var ErrInvalidShape = errors.New("invalid shape")

// Detail is the triple of detail subbands produced at one level.
type Detail struct {
	H, V, D *mat.Dense
}

// Decomposition is a multi-level 2D transform. Details[0] is the finest
// level and Details[len-1] the coarsest; Approx belongs to the coarsest level.
type Decomposition struct {
	Approx  *mat.Dense
	Details []Detail
	// Rows and Cols record the shape of the decomposed input.
	Rows, Cols int
}

// Levels returns the number of detail levels.
func (d *Decomposition) Levels() int {
	return len(d.Details)
}

// MaxLevel returns the deepest useful decomposition level for a signal of
// length n and filter length f.
func MaxLevel(n, f int) int {
	if f < 2 || n < f-1 {
		return 0
	}
	return int(math.Floor(math.Log2(float64(n) / float64(f-1))))
}

// Decompose performs a level-deep 2D transform of src.
func Decompose(src *mat.Dense, fam *Family, level int) (*Decomposition, error) {
	if src == nil || src.IsEmpty() {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidShape)
	}
	rows, cols := src.Dims()
	if level < 1 {
		return nil, fmt.Errorf("%w: level %d must be at least 1", ErrInvalidShape, level)
	}
	if limit := MaxLevel(min(rows, cols), fam.Len()); level > limit {
		return nil, fmt.Errorf("%w: level %d exceeds maximum %d for %dx%d input and %s",
			ErrInvalidShape, level, limit, cols, rows, fam.Name)
	}

	d := &Decomposition{
		Details: make([]Detail, level),
		Rows:    rows,
		Cols:    cols,
	}
	cur := src
	for i := 0; i < level; i++ {
		c := Forward2D(cur, fam)
		d.Details[i] = Detail{H: c.H, V: c.V, D: c.D}
		cur = c.A
	}
	d.Approx = cur
	return d, nil
}

// Reconstruct inverts Decompose. Working from the coarsest level outward, a
// running approximation that is one sample larger than the next level's
// detail subbands is trimmed to their shape before synthesis.
//
// The result may be one sample larger than the original input along each
// axis whose length was odd.
func Reconstruct(d *Decomposition, fam *Family) (*mat.Dense, error) {
	if d == nil || d.Approx == nil || len(d.Details) == 0 {
		return nil, fmt.Errorf("%w: empty decomposition", ErrInvalidShape)
	}
	cur := d.Approx
	for i := len(d.Details) - 1; i >= 0; i-- {
		det := d.Details[i]
		r, c := det.H.Dims()
		if err := sameShape(r, c, det.V, det.D); err != nil {
			return nil, fmt.Errorf("level %d: %w", i+1, err)
		}
		ar, ac := cur.Dims()
		if ar < r || ac < c || ar > r+1 || ac > c+1 {
			return nil, fmt.Errorf("%w: level %d approximation %dx%d does not fit details %dx%d",
				ErrInvalidShape, i+1, ar, ac, r, c)
		}
		if ar != r || ac != c {
			cur = cur.Slice(0, r, 0, c).(*mat.Dense)
		}
		cur = Inverse2D(Coeffs2D{A: cur, H: det.H, V: det.V, D: det.D}, fam)
	}
	return cur, nil
}

func sameShape(r, c int, ms ...*mat.Dense) error {
	for _, m := range ms {
		mr, mc := m.Dims()
		if mr != r || mc != c {
			return fmt.Errorf("%w: detail subbands %dx%d and %dx%d differ", ErrInvalidShape, r, c, mr, mc)
		}
	}
	return nil
}
