// Package bb84 implements the classical control plane of the BB84 quantum
// key distribution protocol: basis selection, quantum-leg orchestration,
// basis reconciliation (sifting), and check-bit verification. Two Peers, a
// sender and a receiver, drive a single-slot quantum channel through an
// encode/measure oracle and exchange authenticated classical messages until
// they either share a key or detect tampering.
package bb84

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/qubitlabs/qkd/bb84/bitmap"
	"github.com/qubitlabs/qkd/bb84/channel"
	"github.com/qubitlabs/qkd/bb84/entropy"
	"github.com/qubitlabs/qkd/bb84/qubit"
	"github.com/qubitlabs/qkd/bb84/wire"
)

var (
	// DefaultKeyLength is a reasonable number of qubits to transmit per
	// negotiation. Unlike the other defaults it is not applied implicitly,
	// since a zero KeyLength is a meaningful (if degenerate) request.
	DefaultKeyLength = 4096

	// DefaultCheckFraction is the fraction of sifted bits sacrificed for
	// verification when PeerOpts.CheckFraction is left zero.
	DefaultCheckFraction = 0.25

	// DefaultEpsilonAuth is the acceptable forgery probability per classical
	// message when PeerOpts.EpsilonAuth is left zero.
	DefaultEpsilonAuth = 1e-12
)

var (
	// ErrTamperDetected reports that check-bit verification failed. It is
	// the protocol's designed defense, not a malfunction: all key material
	// from the run has been discarded, and the caller may retry with a
	// fresh run and fresh randomness.
	ErrTamperDetected = errors.New("bb84: check bits disagree, possible eavesdropping")

	// ErrKeyMismatch reports that the two parties derived sifted keys of
	// different lengths, i.e. they desynchronized during reconciliation.
	ErrKeyMismatch = errors.New("bb84: sifted key lengths disagree")

	// ErrInvalidParameter mirrors entropy.ErrInvalidParameter for options
	// validation.
	ErrInvalidParameter = entropy.ErrInvalidParameter
)

// A State identifies how far a negotiation has progressed. Succeeded and
// TamperDetected are terminal; a peer never retries on its own, since reusing
// any bit of a failed run would leak information.
type State int

const (
	StateInit State = iota
	StateTransmitting
	StateReconciling
	StateVerifying
	StateSucceeded
	StateTamperDetected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateTransmitting:
		return "TRANSMITTING"
	case StateReconciling:
		return "RECONCILING"
	case StateVerifying:
		return "VERIFYING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateTamperDetected:
		return "TAMPER_DETECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats packages together a collection of potentially interesting metrics
// pertaining to a BB84 key negotiation.
type Stats struct {
	State            State
	SiftedBits       int
	CheckedBits      int
	MessagesSent     int
	MessagesReceived int
	BytesRead        int
	BytesWritten     int
}

// A Peer represents one of the two legitimate participants in a BB84 key
// exchange.
type Peer interface {
	// NegotiateKey performs one full protocol run: quantum transmission,
	// sifting, and check-bit verification. On success it returns the final
	// shared key; a verification failure surfaces as ErrTamperDetected with
	// no key material.
	NegotiateKey(ctx context.Context) (bitmap.Dense, Stats, error)
}

// A PeerOpts packages together the arguments necessary to construct a new
// Peer. Several fields have no reasonable defaults, and leaving them to
// zero-initialize will result in NewSender/NewReceiver returning an error.
// Both parties must agree on KeyLength, CheckFraction, EpsilonAuth, and the
// Secret stream.
type PeerOpts struct {
	// Oracle performs per-bit quantum encode and measure operations. Must
	// be non-nil.
	Oracle qubit.Oracle

	// Quantum carries encoded qubits between the parties, one at a time.
	// Must be non-nil.
	Quantum *channel.Channel[qubit.Qubit]

	// Classical carries authenticated protocol messages. Must be non-nil
	// and distinct from Quantum's underlying instance.
	Classical *channel.Channel[[]byte]

	// Secret provides a bootstrap secret shared between the parties,
	// consumed for classical-message authentication. Must be non-nil.
	Secret io.Reader

	// Rand provides this party's private randomness. This may use pRNG for
	// experiments and tests, but for unconditional security it must be
	// truly random. Must be non-nil.
	Rand *entropy.Source

	// KeyLength is the number of qubits to transmit, i.e. the pre-sifting
	// bit count. Zero performs an empty (but valid) negotiation; negative
	// values are rejected.
	KeyLength int

	// CheckFraction is the fraction of the sifted key the receiver samples
	// for verification, in (0, 1]. Defaults to DefaultCheckFraction.
	CheckFraction float64

	// EpsilonAuth is the probability we are willing to accept that an
	// adversary can forge a classical message. Defaults to
	// DefaultEpsilonAuth.
	EpsilonAuth float64

	// Logger receives negotiation progress. Defaults to a nop logger.
	Logger *zap.Logger
}

// NewSender returns a Peer playing the sending role, configured in
// accordance with opts, or an error if the options are nonsensical.
func NewSender(opts PeerOpts) (Peer, error) {
	c, err := newPeerConfig(opts)
	if err != nil {
		return nil, err
	}
	return &sender{peerConfig: c}, nil
}

// NewReceiver returns a Peer playing the receiving role, configured in
// accordance with opts, or an error if the options are nonsensical.
func NewReceiver(opts PeerOpts) (Peer, error) {
	c, err := newPeerConfig(opts)
	if err != nil {
		return nil, err
	}
	return &receiver{peerConfig: c}, nil
}

// peerConfig holds the validated, defaulted state shared by both roles.
type peerConfig struct {
	oracle        qubit.Oracle
	quantum       *channel.Channel[qubit.Qubit]
	side          *wire.Framer
	rand          *entropy.Source
	log           *zap.Logger
	n             int
	checkFraction float64

	// Test seams, mirroring the production bit draws.
	bitsFunc  func() bitmap.Dense
	basesFunc func() bitmap.Dense
}

func newPeerConfig(opts PeerOpts) (peerConfig, error) {
	if opts.Oracle == nil {
		return peerConfig{}, errors.New("must provide Oracle")
	}
	if opts.Quantum == nil {
		return peerConfig{}, errors.New("must provide Quantum channel")
	}
	if opts.Classical == nil {
		return peerConfig{}, errors.New("must provide Classical channel")
	}
	if opts.Secret == nil {
		return peerConfig{}, errors.New("must provide Secret")
	}
	if opts.Rand == nil {
		return peerConfig{}, errors.New("must provide Rand")
	}
	n := opts.KeyLength
	if n < 0 {
		return peerConfig{}, fmt.Errorf("%w: key length %d", ErrInvalidParameter, n)
	}
	frac := opts.CheckFraction
	if frac == 0 {
		frac = DefaultCheckFraction
	}
	if frac < 0 || frac > 1 {
		return peerConfig{}, fmt.Errorf("%w: check fraction %v outside (0, 1]", ErrInvalidParameter, frac)
	}
	epsAuth := opts.EpsilonAuth
	if epsAuth == 0 {
		epsAuth = DefaultEpsilonAuth
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	side, err := wire.NewFramer(opts.Classical, opts.Secret, epsAuth, maxFrameBytes(n))
	if err != nil {
		return peerConfig{}, err
	}
	return peerConfig{
		oracle:        opts.Oracle,
		quantum:       opts.Quantum,
		side:          side,
		rand:          opts.Rand,
		log:           logger,
		n:             n,
		checkFraction: frac,
	}, nil
}

// maxFrameBytes bounds the largest classical frame a negotiation over n
// qubits can produce: a check sample of up to n five-byte varint indices,
// the sampled bits, and tag overhead.
func maxFrameBytes(n int) int {
	return 5*n + bitmap.BytesFor(n) + 64
}

func (c *peerConfig) fillCounts(s *Stats) {
	s.MessagesSent, s.MessagesReceived, s.BytesRead, s.BytesWritten = c.side.Counts()
}
