// Package bitmap provides utilities for operating on densely-packed arrays of
// booleans.
package bitmap

import (
	"fmt"
	"math/bits"
	"strings"
)

// TODO: this could be more efficient on many architectures if we used larger
//   blocks than 8-bit bytes.

const blockSize = 8

// A Dense is a bit array where every bit is explicitly represented. Bits are
// packed little-endian within each byte.
type Dense struct {
	bits []byte
	len  int

	offset int
}

// NewDense returns a new Dense whose data is a copy of data, and whose length
// is bitLen. If bitLen is longer than data, then trailing zeros are added. If
// bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * blockSize
	}
	b := make([]byte, BytesFor(bitLen))
	copy(b, data)
	return Dense{
		bits: b,
		len:  bitLen,
	}
}

// Empty returns an empty, dense bit array.
func Empty() Dense {
	return Dense{}
}

// FromString converts a string of '1's and '0's to a Dense, ignoring spaces.
// The leftmost character becomes bit 0.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %s", s)
		}
	}
	return d, nil
}

// Size returns the number of bits in d.
func (d Dense) Size() int {
	return d.len
}

// ByteSize returns the number of bytes necessary to represent d.
func (d Dense) ByteSize() int {
	return BytesFor(d.len)
}

// Data returns a copy of the byte data underlying d.
func (d Dense) Data() []byte {
	data := make([]byte, 0, BytesFor(d.len))
	for i := 0; i < BytesFor(d.len); i++ {
		data = append(data, d.getByte(i))
	}
	return data
}

// Get returns the bit at idx. Out-of-range reads return false.
func (d Dense) Get(idx int) bool {
	if idx < 0 || idx >= d.len {
		return false
	}
	idx += d.offset
	block := d.bits[idx/blockSize]
	pos := idx % blockSize
	return 0 < block&(1<<pos)
}

// Flip inverts the bit at idx. Flipping through a view produced by Slice
// modifies the underlying array.
func (d *Dense) Flip(idx int) {
	idx += d.offset
	d.bits[idx/blockSize] ^= 1 << (idx % blockSize)
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	if d.offset != 0 {
		*d = NewDense(d.Data(), d.len)
	}
	pos := d.len % blockSize
	d.len++
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[len(d.bits)-1] |= 1 << pos
	}
}

// Parity returns the overall parity of d, with true corresponding to 1 and
// false to 0.
func (d Dense) Parity() bool {
	var sum byte
	for i := 0; i < BytesFor(d.len); i++ {
		sum ^= d.getByte(i)
	}
	return bits.OnesCount8(sum)%2 == 1
}

// CountOnes returns the total number of bits set in d.
func (d Dense) CountOnes() int {
	var sum int
	for i := 0; i < BytesFor(d.len); i++ {
		sum += bits.OnesCount8(d.getByte(i))
	}
	return sum
}

// Select selects a subset of bits from d, according to which bits are set in
// mask.
func (d Dense) Select(mask Dense) Dense {
	var r Dense
	for i := 0; i < d.len; i++ {
		if !mask.Get(i) {
			continue
		}
		r.AppendBit(d.Get(i))
	}
	return r
}

// Without returns a copy of d with the bits at the given indices removed,
// preserving the order of the survivors. Indices must be sorted ascending and
// duplicate-free; out-of-range entries are ignored.
func (d Dense) Without(indices []int) Dense {
	r := Dense{}
	j := 0
	for i := 0; i < d.len; i++ {
		if j < len(indices) && indices[j] == i {
			j++
			continue
		}
		r.AppendBit(d.Get(i))
	}
	return r
}

// Slice creates a view into d including bits [start, end).
func (d Dense) Slice(start, end int) (Dense, error) {
	if end-start > d.len {
		return Dense{}, fmt.Errorf("slicing bitmap of len %d up to %d", d.len, end-start)
	}
	if start < 0 {
		return Dense{}, fmt.Errorf("slicing bitmap with negative start: %d", start)
	}
	if end < start {
		return Dense{}, fmt.Errorf("slicing bitmap to negative length: %d", end-start)
	}
	blockStart := start / blockSize
	blockEnd := BytesFor(end)
	if blockEnd < blockStart {
		blockEnd = blockStart
	}
	return Dense{
		bits:   d.bits[blockStart:blockEnd],
		len:    end - start,
		offset: start % blockSize,
	}, nil
}

// Equal reports whether d and other contain the same bits in the same order.
func (d Dense) Equal(other Dense) bool {
	if d.len != other.len {
		return false
	}
	for i := 0; i < BytesFor(d.len); i++ {
		if d.getByte(i) != other.getByte(i) {
			return false
		}
	}
	return true
}

// String renders d as a string of '0's and '1's, bit 0 leftmost.
func (d Dense) String() string {
	var sb strings.Builder
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (d Dense) getByte(i int) byte {
	lo := d.bits[i] >> d.offset
	var hi byte
	if d.offset > 0 && i+1 < len(d.bits) {
		hi = d.bits[i+1] << (blockSize - d.offset)
	}
	r := lo | hi
	overdraw := (i+1)*blockSize - d.len
	if overdraw < 0 {
		overdraw = 0
	}
	return r << overdraw >> overdraw
}

// BytesFor returns the number of bytes necessary to represent the given
// number of bits.
func BytesFor(bits int) int {
	return (bits + blockSize - 1) / blockSize
}
