package wire

import (
	"fmt"

	"github.com/qubitlabs/qkd/bb84/bitmap"
)

// A toeplitz represents a matrix whose diagonals are all constant. It
// operates in F_2, i.e. all of its scalars are 0 or 1. An m x n toeplitz
// matrix doubles as an unconditionally-secure universal hash from n bits
// down to m.
type toeplitz struct {
	// The diagonal constants for this toeplitz matrix, starting from the
	// bottom left and ending with the top right.
	diags bitmap.Dense

	m int
	n int
}

// Mul computes the matrix product Av between the toeplitz matrix t and the
// provided vector.
func (t toeplitz) Mul(vec bitmap.Dense) (bitmap.Dense, error) {
	if t.diags.Size() < t.m+t.n-1 {
		return bitmap.Empty(), fmt.Errorf("improper toeplitz construction, has %d diagonals, needs %d", t.diags.Size(), t.m+t.n-1)
	}
	if t.n != vec.Size() {
		return bitmap.Empty(), fmt.Errorf("multiplying %dx%d matrix into %d-dim vector", t.m, t.n, vec.Size())
	}

	r := bitmap.Empty()
	for off := t.m - 1; off >= 0; off-- {
		row, err := t.diags.Slice(off, off+t.n)
		if err != nil {
			return bitmap.Empty(), err
		}
		r.AppendBit(row.And(vec).Parity())
	}
	return r, nil
}
