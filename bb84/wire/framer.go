package wire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"github.com/qubitlabs/qkd/bb84/bitmap"
	"github.com/qubitlabs/qkd/bb84/channel"
)

// A Framer reads and writes authenticated messages over a single-slot
// classical channel. The structure of a frame is trivial: message | mac.
//
// MACs are computed by applying a secret Toeplitz matrix to create a hash,
// then applying a one-time pad to the hash to allow for unconditional
// security. Both parties must construct their Framers with identical secret
// streams and parameters; each frame advances the pad, so framing falls out
// of sync permanently if either side drops a message.
type Framer struct {
	ch     *channel.Channel[[]byte]
	secret io.Reader
	t      toeplitz

	sent, received          int
	bytesRead, bytesWritten int
}

// NewFramer returns a Framer speaking over ch, drawing MAC material from
// secret. maxFrameBytes bounds the size of any single message; epsilonAuth
// is the acceptable probability of a forged frame going undetected, and
// determines the MAC width.
func NewFramer(ch *channel.Channel[[]byte], secret io.Reader, epsilonAuth float64, maxFrameBytes int) (*Framer, error) {
	if epsilonAuth <= 0 || epsilonAuth >= 1 {
		return nil, fmt.Errorf("epsilonAuth must lie in (0, 1), got %v", epsilonAuth)
	}
	if maxFrameBytes < 0 {
		return nil, fmt.Errorf("negative maxFrameBytes: %d", maxFrameBytes)
	}
	macBits := int(math.Ceil(math.Log2(1 / epsilonAuth)))
	// Round the MAC up to a whole number of bytes so frames split cleanly.
	macBits = (macBits + 7) / 8 * 8
	diags := make([]byte, maxFrameBytes+macBits/8+1)
	if _, err := io.ReadFull(secret, diags); err != nil {
		return nil, fmt.Errorf("reading mac diagonals: %w", err)
	}
	return &Framer{
		ch:     ch,
		secret: secret,
		t: toeplitz{
			diags: bitmap.NewDense(diags, -1),
			m:     macBits,
		},
	}, nil
}

// Write marshals m, appends its MAC, and places the frame on the channel,
// blocking until the channel is free or ctx is done.
func (f *Framer) Write(ctx context.Context, m Message) error {
	marshalled := m.Marshal()
	mac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	frame := append(marshalled, mac...)
	if err := f.ch.Send(ctx, frame); err != nil {
		return err
	}
	f.sent++
	f.bytesWritten += len(frame)
	return nil
}

// Read takes the next frame off the channel, verifies its MAC, and
// unmarshals it into m, blocking until a frame is present or ctx is done.
func (f *Framer) Read(ctx context.Context, m Message) error {
	frame, err := f.ch.Receive(ctx)
	if err != nil {
		return err
	}
	macLen := f.t.m / 8
	if len(frame) < macLen {
		return fmt.Errorf("frame of %d bytes cannot carry a %d-byte mac", len(frame), macLen)
	}
	marshalled, mac := frame[:len(frame)-macLen], frame[len(frame)-macLen:]
	emac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if !bytes.Equal(mac, emac) {
		return fmt.Errorf("invalid mac: got %v, expected %v", mac, emac)
	}
	f.received++
	f.bytesRead += len(frame)
	return m.Unmarshal(marshalled)
}

// Counts returns the number of messages and bytes this Framer has exchanged.
func (f *Framer) Counts() (sent, received, bytesRead, bytesWritten int) {
	return f.sent, f.received, f.bytesRead, f.bytesWritten
}

func (f *Framer) buildMAC(msg []byte) ([]byte, error) {
	f.t.n = len(msg) * 8
	hash, err := f.t.Mul(bitmap.NewDense(msg, -1))
	if err != nil {
		return nil, err
	}
	otp := make([]byte, hash.ByteSize())
	if _, err := io.ReadFull(f.secret, otp); err != nil {
		return nil, fmt.Errorf("reading one-time pad: %w", err)
	}
	mac := hash.XOr(bitmap.NewDense(otp, -1))
	return mac.Data(), nil
}
