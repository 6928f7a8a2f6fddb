package wire

import (
	"testing"

	"github.com/qubitlabs/qkd/bb84/bitmap"
)

func TestToeplitzMul(t *testing.T) {
	tcs := []struct {
		mat  toeplitz
		vec  bitmap.Dense
		eout bitmap.Dense
	}{
		{
			// (0 1 0)
			// (0 0 1)
			// (1 0 0)
			mat: toeplitz{
				diags: bitmap.NewDense([]byte{0b01001}, 5),
				m:     3,
				n:     3,
			},
			// (0 1 1)^T
			vec: bitmap.NewDense([]byte{0b110}, 3),
			// (1 1 0)^T
			eout: bitmap.NewDense([]byte{0b011}, 3),
		}, {
			// (0 0)
			// (1 0)
			// (0 1)
			// (1 0)
			mat: toeplitz{
				diags: bitmap.NewDense([]byte{0b00101}, 5),
				m:     4,
				n:     2,
			},
			// (1 0)^T
			vec: bitmap.NewDense([]byte{0b01}, 2),
			// (0 1 0 1)^T
			eout: bitmap.NewDense([]byte{0b1010}, 4),
		}, {
			// (1 1 1 0)
			// (0 1 1 1)
			mat: toeplitz{
				diags: bitmap.NewDense([]byte{0b01110}, 5),
				m:     2,
				n:     4,
			},
			// (1 0 0 0)^T
			vec: bitmap.NewDense([]byte{0b01}, 4),
			// (1 0)^T
			eout: bitmap.NewDense([]byte{0b01}, 2),
		},
	}

	for _, tc := range tcs {
		out, err := tc.mat.Mul(tc.vec)
		if err != nil {
			t.Fatalf("%dx%d toeplitz mul: %v", tc.mat.m, tc.mat.n, err)
		}
		if !out.Equal(tc.eout) {
			t.Errorf("%dx%d toeplitz mul == %v, want %v", tc.mat.m, tc.mat.n, out, tc.eout)
		}
	}
}

func TestToeplitzDimensionErrors(t *testing.T) {
	short := toeplitz{diags: bitmap.NewDense([]byte{0b111}, 3), m: 3, n: 3}
	if _, err := short.Mul(bitmap.NewDense([]byte{0b101}, 3)); err == nil {
		t.Errorf("mul with too few diagonals succeeded, want error")
	}

	ok := toeplitz{diags: bitmap.NewDense([]byte{0b11111}, 5), m: 3, n: 3}
	if _, err := ok.Mul(bitmap.NewDense([]byte{0b1}, 2)); err == nil {
		t.Errorf("mul with mismatched vector succeeded, want error")
	}
}
