package bitmap

// And computes a bitwise AND operation between d and other. If one of the two
// is shorter than the other, then trailing 0s are implicitly added to make the
// sizes match.
func (d Dense) And(other Dense) Dense {
	short := other
	if d.len < other.len {
		short = d
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(short.len)),
		len:  short.len,
	}
	for i := 0; i < BytesFor(short.len); i++ {
		r.bits = append(r.bits, d.getByte(i)&other.getByte(i))
	}
	return r
}

// XOr computes a bitwise XOR operation between d and other. If one of the two
// is shorter than the other, then trailing 0s are implicitly added to make the
// sizes match.
func (d Dense) XOr(other Dense) Dense {
	short, long := other, d
	if d.len < other.len {
		short, long = d, other
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(long.len)),
		len:  long.len,
	}
	for i := 0; i < BytesFor(short.len); i++ {
		r.bits = append(r.bits, short.getByte(i)^long.getByte(i))
	}
	for j := BytesFor(short.len); j < BytesFor(long.len); j++ {
		r.bits = append(r.bits, long.getByte(j)) // 0^v == v
	}
	return r
}

// XNor computes a bitwise equality operation between d and other. If one of
// the two is shorter than the other, then trailing 0s are implicitly added to
// make the sizes match.
func (d Dense) XNor(other Dense) Dense {
	short, long := other, d
	if d.len < other.len {
		short, long = d, other
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(long.len)),
		len:  long.len,
	}
	for i := 0; i < BytesFor(short.len); i++ {
		r.bits = append(r.bits, ^short.getByte(i)^long.getByte(i))
	}
	for j := BytesFor(short.len); j < BytesFor(long.len); j++ {
		r.bits = append(r.bits, ^long.getByte(j)) // ~(0^v) == ~v
	}
	return r
}
