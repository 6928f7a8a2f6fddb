package bb84

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/qubitlabs/qkd/bb84/bitmap"
	"github.com/qubitlabs/qkd/bb84/channel"
	"github.com/qubitlabs/qkd/bb84/entropy"
	"github.com/qubitlabs/qkd/bb84/qubit"
)

// A ProtocolOpts packages together the arguments necessary to construct a
// Protocol, an in-process pairing of a sender and a receiver over fresh
// channels.
type ProtocolOpts struct {
	// Oracle backs both parties' quantum operations. Must be non-nil. Only
	// the receiving side measures, so a *qubit.Simulator is safe here
	// despite not being concurrency-safe in general.
	Oracle qubit.Oracle

	// SenderRand and ReceiverRand provide each party's private randomness.
	// Both must be non-nil and independent.
	SenderRand, ReceiverRand *entropy.Source

	// Secret is the shared authentication secret; both parties read an
	// identical copy.
	Secret []byte

	// KeyLength, CheckFraction, and EpsilonAuth are as in PeerOpts.
	KeyLength     int
	CheckFraction float64
	EpsilonAuth   float64

	// Logger receives progress from both parties. Defaults to a nop logger.
	Logger *zap.Logger
}

// A Result packages the terminal artifacts of a successful protocol run.
// Each party owns an independent copy of the key; on an honest run the two
// are identical.
type Result struct {
	SenderKey     bitmap.Dense
	ReceiverKey   bitmap.Dense
	SenderStats   Stats
	ReceiverStats Stats
}

// A Protocol drives one sender and one receiver through complete protocol
// runs. Each call to Run is an independent negotiation; terminal outcomes
// are never retried internally.
type Protocol struct {
	opts ProtocolOpts
}

// NewProtocol validates opts and returns a Protocol.
func NewProtocol(opts ProtocolOpts) (*Protocol, error) {
	if opts.Oracle == nil {
		return nil, errors.New("must provide Oracle")
	}
	if opts.SenderRand == nil || opts.ReceiverRand == nil {
		return nil, errors.New("must provide SenderRand and ReceiverRand")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("must provide Secret")
	}
	return &Protocol{opts: opts}, nil
}

// Run executes one full negotiation, rendezvousing both parties on fresh
// single-slot channels. On success both keys in the Result are populated; a
// detected tamper surfaces as ErrTamperDetected with stats but no key
// material.
func (p *Protocol) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sPeer, rPeer, err := p.buildPeers()
	if err != nil {
		return Result{}, err
	}

	type outcome struct {
		key   bitmap.Dense
		stats Stats
		err   error
	}
	sCh := make(chan outcome, 1)
	rCh := make(chan outcome, 1)
	go func() {
		k, s, err := sPeer.NegotiateKey(ctx)
		if err != nil {
			cancel() // unblock the other party
		}
		sCh <- outcome{k, s, err}
	}()
	go func() {
		k, s, err := rPeer.NegotiateKey(ctx)
		if err != nil {
			cancel()
		}
		rCh <- outcome{k, s, err}
	}()
	sOut, rOut := <-sCh, <-rCh

	res := Result{SenderStats: sOut.stats, ReceiverStats: rOut.stats}
	switch {
	case errors.Is(sOut.err, ErrKeyMismatch):
		return res, sOut.err
	case errors.Is(rOut.err, ErrKeyMismatch):
		return res, rOut.err
	case errors.Is(sOut.err, ErrTamperDetected) || errors.Is(rOut.err, ErrTamperDetected):
		return res, ErrTamperDetected
	case sOut.err != nil:
		return res, fmt.Errorf("sender: %w", sOut.err)
	case rOut.err != nil:
		return res, fmt.Errorf("receiver: %w", rOut.err)
	}
	res.SenderKey = sOut.key
	res.ReceiverKey = rOut.key
	return res, nil
}

func (p *Protocol) buildPeers() (Peer, Peer, error) {
	qch := channel.New[qubit.Qubit]()
	cch := channel.New[[]byte]()
	common := PeerOpts{
		Oracle:        p.opts.Oracle,
		Quantum:       qch,
		Classical:     cch,
		KeyLength:     p.opts.KeyLength,
		CheckFraction: p.opts.CheckFraction,
		EpsilonAuth:   p.opts.EpsilonAuth,
		Logger:        p.opts.Logger,
	}

	sOpts := common
	sOpts.Rand = p.opts.SenderRand
	sOpts.Secret = bytes.NewReader(p.opts.Secret)
	sPeer, err := NewSender(sOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("building sender: %w", err)
	}

	rOpts := common
	rOpts.Rand = p.opts.ReceiverRand
	rOpts.Secret = bytes.NewReader(p.opts.Secret)
	rPeer, err := NewReceiver(rOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("building receiver: %w", err)
	}
	return sPeer, rPeer, nil
}
