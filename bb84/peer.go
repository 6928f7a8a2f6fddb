package bb84

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qubitlabs/qkd/bb84/bitmap"
	"github.com/qubitlabs/qkd/bb84/qubit"
	"github.com/qubitlabs/qkd/bb84/wire"
)

// A sender is the party that chooses payload bits, encodes them, and places
// qubits on the quantum channel.
type sender struct {
	peerConfig
}

// A receiver is the party that measures incoming qubits in independently
// chosen bases.
type receiver struct {
	peerConfig
}

// NegotiateKey implements the Peer interface.
func (s *sender) NegotiateKey(ctx context.Context) (key bitmap.Dense, stats Stats, err error) {
	defer s.fillCounts(&stats)

	stats.State = StateTransmitting
	bits, bases, err := s.transmit(ctx)
	if err != nil {
		return bitmap.Empty(), stats, err
	}

	stats.State = StateReconciling
	sifted, err := s.sift(ctx, bits, bases, &stats)
	if err != nil {
		return bitmap.Empty(), stats, err
	}

	stats.State = StateVerifying
	key, err = s.verify(ctx, sifted, &stats)
	if err != nil {
		return bitmap.Empty(), stats, err
	}
	stats.State = StateSucceeded
	s.log.Debug("negotiation succeeded",
		zap.Int("siftedBits", stats.SiftedBits),
		zap.Int("keyBits", key.Size()))
	return key, stats, nil
}

// transmit draws this run's payload bits and bases and pushes the encoded
// qubits through the quantum channel, strictly one at a time.
func (s *sender) transmit(ctx context.Context) (bits, bases bitmap.Dense, err error) {
	if s.bitsFunc == nil {
		bits = s.rand.Bits(s.n)
	} else {
		bits = s.bitsFunc()
	}
	if s.basesFunc == nil {
		bases = s.rand.Bits(s.n)
	} else {
		bases = s.basesFunc()
	}
	for i := 0; i < s.n; i++ {
		q, err := s.oracle.Encode(bits.Get(i), qubit.FromBit(bases.Get(i)))
		if err != nil {
			return bitmap.Empty(), bitmap.Empty(), fmt.Errorf("encoding qubit %d: %w", i, err)
		}
		if err := s.quantum.Send(ctx, q); err != nil {
			return bitmap.Empty(), bitmap.Empty(), fmt.Errorf("sending qubit %d: %w", i, err)
		}
	}
	return bits, bases, nil
}

// sift receives the receiver's basis announcement, computes and announces
// the basis-hit mask, and filters this side's bits down to the sifted key.
func (s *sender) sift(ctx context.Context, bits, bases bitmap.Dense, stats *Stats) (bitmap.Dense, error) {
	ba := new(wire.BasisAnnouncement)
	if err := s.side.Read(ctx, ba); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving basis announcement: %w", err)
	}
	if ba.Bases.Size() != s.n {
		return bitmap.Empty(), fmt.Errorf("%w: peer announced %d bases for %d transmissions",
			ErrKeyMismatch, ba.Bases.Size(), s.n)
	}
	mask := bases.XNor(ba.Bases)
	sifted := bits.Select(mask)
	hma := &wire.HitMaskAnnouncement{Mask: mask, SiftedLen: sifted.Size()}
	if err := s.side.Write(ctx, hma); err != nil {
		return bitmap.Empty(), fmt.Errorf("announcing hit mask: %w", err)
	}
	stats.SiftedBits = sifted.Size()
	s.log.Debug("sifting complete", zap.Int("siftedBits", sifted.Size()))
	return sifted, nil
}

// verify checks the receiver's sample against this side's sifted key,
// announces the verdict, and strips the exposed bits from the key.
func (s *sender) verify(ctx context.Context, sifted bitmap.Dense, stats *Stats) (bitmap.Dense, error) {
	cs := new(wire.CheckSample)
	if err := s.side.Read(ctx, cs); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving check sample: %w", err)
	}
	stats.CheckedBits = len(cs.Indices)
	if cs.SiftedLen != sifted.Size() {
		// Desynchronized sifting voids the run before any comparison.
		if err := s.side.Write(ctx, &wire.Verdict{OK: false}); err != nil {
			return bitmap.Empty(), fmt.Errorf("announcing verdict: %w", err)
		}
		return bitmap.Empty(), fmt.Errorf("%w: peer sifted %d bits, we sifted %d",
			ErrKeyMismatch, cs.SiftedLen, sifted.Size())
	}
	if err := validateSample(cs.Indices, sifted.Size()); err != nil {
		return bitmap.Empty(), err
	}

	ok := true
	for j, idx := range cs.Indices {
		if sifted.Get(idx) != cs.Bits.Get(j) {
			ok = false
		}
	}
	if err := s.side.Write(ctx, &wire.Verdict{OK: ok}); err != nil {
		return bitmap.Empty(), fmt.Errorf("announcing verdict: %w", err)
	}
	if !ok {
		stats.State = StateTamperDetected
		s.log.Warn("check bits disagree, discarding run", zap.Int("checkedBits", len(cs.Indices)))
		return bitmap.Empty(), ErrTamperDetected
	}
	return sifted.Without(cs.Indices), nil
}

// NegotiateKey implements the Peer interface.
func (r *receiver) NegotiateKey(ctx context.Context) (key bitmap.Dense, stats Stats, err error) {
	defer r.fillCounts(&stats)

	stats.State = StateTransmitting
	bits, bases, err := r.measure(ctx)
	if err != nil {
		return bitmap.Empty(), stats, err
	}

	stats.State = StateReconciling
	sifted, err := r.sift(ctx, bits, bases, &stats)
	if err != nil {
		return bitmap.Empty(), stats, err
	}

	stats.State = StateVerifying
	key, err = r.verify(ctx, sifted, &stats)
	if err != nil {
		return bitmap.Empty(), stats, err
	}
	stats.State = StateSucceeded
	r.log.Debug("negotiation succeeded",
		zap.Int("siftedBits", stats.SiftedBits),
		zap.Int("keyBits", key.Size()))
	return key, stats, nil
}

// measure draws this run's measurement bases and decodes incoming qubits,
// building the transmission record index-aligned with the sender's.
func (r *receiver) measure(ctx context.Context) (bits, bases bitmap.Dense, err error) {
	if r.basesFunc == nil {
		bases = r.rand.Bits(r.n)
	} else {
		bases = r.basesFunc()
	}
	bits = bitmap.Empty()
	for i := 0; i < r.n; i++ {
		q, err := r.quantum.Receive(ctx)
		if err != nil {
			return bitmap.Empty(), bitmap.Empty(), fmt.Errorf("receiving qubit %d: %w", i, err)
		}
		bit, err := r.oracle.Measure(q, qubit.FromBit(bases.Get(i)))
		if err != nil {
			return bitmap.Empty(), bitmap.Empty(), fmt.Errorf("measuring qubit %d: %w", i, err)
		}
		bits.AppendBit(bit)
	}
	return bits, bases, nil
}

// sift announces this side's bases, applies the sender's hit mask, and
// cross-checks the resulting key length.
func (r *receiver) sift(ctx context.Context, bits, bases bitmap.Dense, stats *Stats) (bitmap.Dense, error) {
	if err := r.side.Write(ctx, &wire.BasisAnnouncement{Bases: bases}); err != nil {
		return bitmap.Empty(), fmt.Errorf("announcing bases: %w", err)
	}
	hma := new(wire.HitMaskAnnouncement)
	if err := r.side.Read(ctx, hma); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving hit mask: %w", err)
	}
	if hma.Mask.Size() != r.n {
		return bitmap.Empty(), fmt.Errorf("%w: hit mask covers %d of %d transmissions",
			ErrKeyMismatch, hma.Mask.Size(), r.n)
	}
	sifted := bits.Select(hma.Mask)
	if hma.SiftedLen != sifted.Size() {
		return bitmap.Empty(), fmt.Errorf("%w: peer sifted %d bits, we sifted %d",
			ErrKeyMismatch, hma.SiftedLen, sifted.Size())
	}
	stats.SiftedBits = sifted.Size()
	r.log.Debug("sifting complete", zap.Int("siftedBits", sifted.Size()))
	return sifted, nil
}

// verify samples the sifted key, announces the sample, and acts on the
// sender's verdict. Sampled bits are public once announced and are discarded
// from the key whatever the outcome.
func (r *receiver) verify(ctx context.Context, sifted bitmap.Dense, stats *Stats) (bitmap.Dense, error) {
	k := int(r.checkFraction * float64(sifted.Size()))
	indices, err := r.rand.SampleIndices(sifted.Size(), k)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("sampling check bits: %w", err)
	}
	sample := bitmap.Empty()
	for _, idx := range indices {
		sample.AppendBit(sifted.Get(idx))
	}
	stats.CheckedBits = k
	cs := &wire.CheckSample{Indices: indices, Bits: sample, SiftedLen: sifted.Size()}
	if err := r.side.Write(ctx, cs); err != nil {
		return bitmap.Empty(), fmt.Errorf("announcing check sample: %w", err)
	}

	verdict := new(wire.Verdict)
	if err := r.side.Read(ctx, verdict); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving verdict: %w", err)
	}
	if !verdict.OK {
		stats.State = StateTamperDetected
		r.log.Warn("check bits disagree, discarding run", zap.Int("checkedBits", k))
		return bitmap.Empty(), ErrTamperDetected
	}
	return sifted.Without(indices), nil
}

// validateSample rejects check samples that are unsorted, duplicated, or out
// of range; any of those means the peer is broken, not that the channel was
// tampered with.
func validateSample(indices []int, siftedLen int) error {
	prev := -1
	for _, idx := range indices {
		if idx <= prev {
			return fmt.Errorf("check sample indices not strictly ascending at %d", idx)
		}
		if idx >= siftedLen {
			return fmt.Errorf("check sample index %d outside sifted key of %d bits", idx, siftedLen)
		}
		prev = idx
	}
	return nil
}
