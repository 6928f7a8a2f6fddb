// Package qubit models the quantum leg of a BB84 exchange: polarization
// bases, encoded qubits, and the encode/measure oracle the protocol drives.
package qubit

import "fmt"

// A Basis is one of the two mutually unbiased bases a bit may be encoded or
// measured in. Measuring in the encoding basis recovers the bit exactly;
// measuring in the other basis yields a uniformly random result.
type Basis uint8

const (
	// Rectilinear is the 0/90-degree polarization basis.
	Rectilinear Basis = iota
	// Diagonal is the 45/135-degree polarization basis.
	Diagonal
)

// FromBit maps a basis-selection bit to a Basis, with false corresponding to
// Rectilinear. The protocol packs basis choices into bitmaps using this
// convention.
func FromBit(b bool) Basis {
	if b {
		return Diagonal
	}
	return Rectilinear
}

// Bit is the inverse of FromBit.
func (b Basis) Bit() bool {
	return b == Diagonal
}

func (b Basis) String() string {
	switch b {
	case Rectilinear:
		return "rectilinear"
	case Diagonal:
		return "diagonal"
	default:
		return fmt.Sprintf("Basis(%d)", uint8(b))
	}
}

// A Qubit is an encoded quantum bit in flight between the two participants.
// Its contents are observable only through an Oracle's Measure; the zero
// Qubit is vacant and cannot be measured.
type Qubit struct {
	bit   bool
	basis Basis
	live  bool
}

// An Oracle performs the per-bit quantum operations of the protocol. The
// orchestration layer assumes nothing about the mechanism behind it beyond
// the measurement contract documented on Measure.
type Oracle interface {
	// Encode prepares a qubit carrying bit in the given basis. Encoding is
	// deterministic in its inputs.
	Encode(bit bool, basis Basis) (Qubit, error)

	// Measure collapses q in the given basis. If q was encoded in the same
	// basis the original bit is returned with certainty; otherwise the
	// result is uniformly random.
	Measure(q Qubit, basis Basis) (bool, error)
}
