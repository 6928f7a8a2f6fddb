// Package entropy provides the explicit randomness source consumed by a key
// negotiation: uniform bit strings for payload and basis selection, and
// uniform index samples for check-bit selection. Keeping the source explicit
// rather than process-global makes negotiations seedable for tests; callers
// needing unconditional security should seed from a hardware source.
package entropy

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/qubitlabs/qkd/bb84/bitmap"
)

// ErrInvalidParameter is returned when a sampling request is malformed, e.g.
// more indices are requested than the population holds.
var ErrInvalidParameter = errors.New("entropy: invalid parameter")

// A Source produces the random inputs for one side of a negotiation.
type Source struct {
	rand *rand.Rand
}

// NewSource returns a Source seeded with the given value. Equal seeds yield
// identical streams.
func NewSource(seed int64) *Source {
	return &Source{rand: rand.New(rand.NewSource(seed))}
}

// FromRand returns a Source drawing from r.
func FromRand(r *rand.Rand) *Source {
	return &Source{rand: r}
}

// Bits returns n independently uniform bits. Non-positive n yields an empty
// bitmap.
func (s *Source) Bits(n int) bitmap.Dense {
	if n <= 0 {
		return bitmap.Empty()
	}
	buf := make([]byte, bitmap.BytesFor(n))
	s.rand.Read(buf)
	return bitmap.NewDense(buf, n)
}

// SampleIndices returns k distinct indices drawn uniformly without
// replacement from [0, population), sorted ascending.
func (s *Source) SampleIndices(population, k int) ([]int, error) {
	if population < 0 || k < 0 {
		return nil, fmt.Errorf("%w: sampling %d from %d", ErrInvalidParameter, k, population)
	}
	if k > population {
		return nil, fmt.Errorf("%w: sample size %d exceeds population %d", ErrInvalidParameter, k, population)
	}
	idx := s.rand.Perm(population)[:k]
	sort.Ints(idx)
	return idx, nil
}
