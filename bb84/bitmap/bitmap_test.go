package bitmap

import (
	"bytes"
	"testing"
)

func TestAnd(t *testing.T) {
	tcs := []struct {
		name string
		a    Dense
		b    Dense
		eout Dense
	}{
		{
			name: "aligned",
			a:    NewDense([]byte{0b101}, 8),
			b:    NewDense([]byte{0b110}, 8),
			eout: NewDense([]byte{0b100}, 8),
		}, {
			name: "short a",
			a:    NewDense([]byte{0b101}, 8),
			b:    NewDense([]byte{0b110, 0b1}, 9),
			eout: NewDense([]byte{0b100}, 8),
		}, {
			name: "short b",
			a:    NewDense([]byte{0b101, 0b1}, 9),
			b:    NewDense([]byte{0b110}, 8),
			eout: NewDense([]byte{0b100}, 8),
		}, {
			name: "empty a",
			b:    NewDense([]byte{0b110}, 8),
			eout: Empty(),
		}, {
			name: "empty b",
			a:    NewDense([]byte{0b110}, 8),
			eout: Empty(),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.a.And(tc.b)
			if out.Size() != tc.eout.Size() {
				t.Errorf("got bitmap of len %d, want %d", out.Size(), tc.eout.Size())
			}
			if !out.Equal(tc.eout) {
				t.Errorf("and(%v, %v) == %v, want %v", tc.a, tc.b, out, tc.eout)
			}
		})
	}
}

func TestXOr(t *testing.T) {
	tcs := []struct {
		name string
		a    Dense
		b    Dense
		eout Dense
	}{
		{
			name: "aligned",
			a:    NewDense([]byte{0b101}, 8),
			b:    NewDense([]byte{0b110}, 8),
			eout: NewDense([]byte{0b011}, 8),
		}, {
			name: "short a",
			a:    NewDense([]byte{0b101}, 8),
			b:    NewDense([]byte{0b110, 0b1}, 9),
			eout: NewDense([]byte{0b011, 0b1}, 9),
		}, {
			name: "short b",
			a:    NewDense([]byte{0b101, 0b1}, 9),
			b:    NewDense([]byte{0b110}, 8),
			eout: NewDense([]byte{0b011, 0b1}, 9),
		}, {
			name: "empty a",
			b:    NewDense([]byte{0b110}, 8),
			eout: NewDense([]byte{0b110}, 8),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.a.XOr(tc.b)
			if !out.Equal(tc.eout) {
				t.Errorf("xor(%v, %v) == %v, want %v", tc.a, tc.b, out, tc.eout)
			}
		})
	}
}

func TestXNor(t *testing.T) {
	tcs := []struct {
		name string
		a    Dense
		b    Dense
		eout Dense
	}{
		{
			name: "aligned",
			a:    NewDense([]byte{0b101}, 3),
			b:    NewDense([]byte{0b110}, 3),
			eout: NewDense([]byte{0b100}, 3),
		}, {
			name: "identical",
			a:    NewDense([]byte{0b10110101}, 8),
			b:    NewDense([]byte{0b10110101}, 8),
			eout: NewDense([]byte{0xFF}, 8),
		}, {
			name: "short b",
			a:    NewDense([]byte{0b101, 0b1}, 9),
			b:    NewDense([]byte{0b101}, 8),
			eout: NewDense([]byte{0xFF, 0b0}, 9),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.a.XNor(tc.b)
			if !out.Equal(tc.eout) {
				t.Errorf("xnor(%v, %v) == %v, want %v", tc.a, tc.b, out, tc.eout)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	tcs := []struct {
		name string
		d    Dense
		mask Dense
		eout Dense
	}{
		{
			name: "keep all",
			d:    NewDense([]byte{0b10110}, 5),
			mask: NewDense([]byte{0b11111}, 5),
			eout: NewDense([]byte{0b10110}, 5),
		}, {
			name: "keep none",
			d:    NewDense([]byte{0b10110}, 5),
			mask: NewDense([]byte{0}, 5),
			eout: Empty(),
		}, {
			name: "alternating",
			d:    NewDense([]byte{0b10110110}, 8),
			mask: NewDense([]byte{0b01010101}, 8),
			eout: NewDense([]byte{0b0110}, 4),
		}, {
			name: "short mask drops tail",
			d:    NewDense([]byte{0b11111111}, 8),
			mask: NewDense([]byte{0b11}, 2),
			eout: NewDense([]byte{0b11}, 2),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.d.Select(tc.mask)
			if !out.Equal(tc.eout) {
				t.Errorf("select(%v, %v) == %v, want %v", tc.d, tc.mask, out, tc.eout)
			}
		})
	}
}

func TestWithout(t *testing.T) {
	tcs := []struct {
		name    string
		d       Dense
		indices []int
		eout    string
	}{
		{
			name:    "drop none",
			d:       NewDense([]byte{0b0110}, 4),
			indices: nil,
			eout:    "0110",
		}, {
			name:    "drop ends",
			d:       NewDense([]byte{0b0110}, 4),
			indices: []int{0, 3},
			eout:    "11",
		}, {
			name:    "drop middle",
			d:       NewDense([]byte{0b10101101}, 8),
			indices: []int{2, 3, 4},
			eout:    "10101",
		}, {
			name:    "drop all",
			d:       NewDense([]byte{0b111}, 3),
			indices: []int{0, 1, 2},
			eout:    "",
		}, {
			name:    "out of range ignored",
			d:       NewDense([]byte{0b111}, 3),
			indices: []int{5},
			eout:    "111",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			eout, err := FromString(tc.eout)
			if err != nil {
				t.Fatalf("bad expectation %q: %v", tc.eout, err)
			}
			out := tc.d.Without(tc.indices)
			if !out.Equal(eout) {
				t.Errorf("without(%v, %v) == %v, want %v", tc.d, tc.indices, out, eout)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	d := NewDense([]byte{0b10110100, 0b1101}, 12)
	tcs := []struct {
		name       string
		start, end int
		eout       string
		wantErr    bool
	}{
		{name: "aligned prefix", start: 0, end: 8, eout: "00101101"},
		{name: "offset", start: 3, end: 12, eout: "011011011"},
		{name: "offset interior", start: 5, end: 7, eout: "10"},
		{name: "empty", start: 4, end: 4, eout: ""},
		{name: "negative start", start: -1, end: 4, wantErr: true},
		{name: "inverted", start: 5, end: 3, wantErr: true},
		{name: "overlong", start: 0, end: 13, wantErr: true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out, err := d.Slice(tc.start, tc.end)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("slice(%d, %d) succeeded, want error", tc.start, tc.end)
				}
				return
			}
			if err != nil {
				t.Fatalf("slice(%d, %d): %v", tc.start, tc.end, err)
			}
			eout, _ := FromString(tc.eout)
			if !out.Equal(eout) {
				t.Errorf("slice(%d, %d) == %v, want %v", tc.start, tc.end, out, eout)
			}
		})
	}
}

func TestGetFlipAppend(t *testing.T) {
	d := Empty()
	for i := 0; i < 10; i++ {
		d.AppendBit(i%3 == 0)
	}
	if d.Size() != 10 {
		t.Fatalf("appended 10 bits, got size %d", d.Size())
	}
	for i := 0; i < 10; i++ {
		if d.Get(i) != (i%3 == 0) {
			t.Errorf("bit %d == %v, want %v", i, d.Get(i), i%3 == 0)
		}
	}
	d.Flip(4)
	if !d.Get(4) {
		t.Errorf("bit 4 still unset after Flip")
	}
	if d.Get(-1) || d.Get(10) {
		t.Errorf("out-of-range Get returned true")
	}
}

func TestParityAndCount(t *testing.T) {
	tcs := []struct {
		name    string
		d       Dense
		eparity bool
		ecount  int
	}{
		{name: "empty", d: Empty(), eparity: false, ecount: 0},
		{name: "single one", d: NewDense([]byte{0b1}, 1), eparity: true, ecount: 1},
		{name: "two ones", d: NewDense([]byte{0b101}, 3), eparity: false, ecount: 2},
		{name: "truncated byte", d: NewDense([]byte{0xFF}, 3), eparity: true, ecount: 3},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.Parity(); got != tc.eparity {
				t.Errorf("parity(%v) == %v, want %v", tc.d, got, tc.eparity)
			}
			if got := tc.d.CountOnes(); got != tc.ecount {
				t.Errorf("countOnes(%v) == %d, want %d", tc.d, got, tc.ecount)
			}
		})
	}
}

func TestDataCopies(t *testing.T) {
	src := []byte{0b1010}
	d := NewDense(src, 4)
	data := d.Data()
	data[0] = 0
	if !bytes.Equal(d.Data(), []byte{0b1010}) {
		t.Errorf("mutating Data() result mutated the bitmap")
	}
	src[0] = 0
	if !bytes.Equal(d.Data(), []byte{0b1010}) {
		t.Errorf("mutating the source slice mutated the bitmap")
	}
}

func TestSliceViewRoundTrip(t *testing.T) {
	d := NewDense([]byte{0b11110000, 0b0011}, 12)
	v, err := d.Slice(4, 10)
	if err != nil {
		t.Fatalf("slice(4, 10): %v", err)
	}
	if got := v.Data(); !bytes.Equal(got, []byte{0b111111}) {
		t.Errorf("view data == %08b, want %08b", got, 0b111111)
	}
	if v.CountOnes() != 6 {
		t.Errorf("view countOnes == %d, want 6", v.CountOnes())
	}
}
