package qubit

import (
	"errors"
	"fmt"
	"math/rand"
)

// A Simulator is an Oracle backed by pRNG rather than optics. Measuring in
// the wrong basis flips a fair coin, exactly matching the abstract
// measurement contract. Not safe for concurrent use; give each measuring
// party its own Simulator.
type Simulator struct {
	rand *rand.Rand
}

// NewSimulator returns a Simulator drawing its measurement randomness from r.
func NewSimulator(r *rand.Rand) *Simulator {
	return &Simulator{rand: r}
}

// Encode implements the Oracle interface.
func (s *Simulator) Encode(bit bool, basis Basis) (Qubit, error) {
	if basis != Rectilinear && basis != Diagonal {
		return Qubit{}, fmt.Errorf("encoding in unknown basis %v", basis)
	}
	return Qubit{bit: bit, basis: basis, live: true}, nil
}

// Measure implements the Oracle interface.
func (s *Simulator) Measure(q Qubit, basis Basis) (bool, error) {
	if !q.live {
		return false, errors.New("measuring a vacant qubit")
	}
	if basis != Rectilinear && basis != Diagonal {
		return false, fmt.Errorf("measuring in unknown basis %v", basis)
	}
	if q.basis == basis {
		return q.bit, nil
	}
	return s.rand.Intn(2) == 1, nil
}
