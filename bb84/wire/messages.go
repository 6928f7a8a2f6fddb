// Package wire defines the classical-channel messages exchanged during a key
// negotiation and the authenticated framing that carries them. Messages use
// the protobuf wire format, encoded directly with protowire: the message set
// is four fixed shapes, small enough that hand-rolled codecs beat carrying a
// generator toolchain.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/qubitlabs/qkd/bb84/bitmap"
)

// A Message is a classical-channel payload that knows its own encoding.
type Message interface {
	Marshal() []byte
	Unmarshal(data []byte) error
}

// A BasisAnnouncement carries the receiver's per-transmission measurement
// basis choices back to the sender, one bit per transmission.
//
// Fields: 1 = basis bits (bytes), 2 = bit length (varint).
type BasisAnnouncement struct {
	Bases bitmap.Dense
}

// Marshal implements the Message interface.
func (m *BasisAnnouncement) Marshal() []byte {
	return appendDense(nil, 1, 2, m.Bases)
}

// Unmarshal implements the Message interface.
func (m *BasisAnnouncement) Unmarshal(data []byte) error {
	var d denseFields
	if err := scan(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		return d.field(1, 2, num, typ, data)
	}); err != nil {
		return err
	}
	var err error
	m.Bases, err = d.dense()
	return err
}

// A HitMaskAnnouncement carries the sender's basis-hit mask: bit i is set iff
// both parties chose the same basis for transmission i. SiftedLen echoes the
// sender's sifted key length so the receiver can detect desynchronization
// before any check bits are exposed.
//
// Fields: 1 = mask bits (bytes), 2 = bit length (varint),
// 3 = sifted length (varint).
type HitMaskAnnouncement struct {
	Mask      bitmap.Dense
	SiftedLen int
}

// Marshal implements the Message interface.
func (m *HitMaskAnnouncement) Marshal() []byte {
	b := appendDense(nil, 1, 2, m.Mask)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SiftedLen))
	return b
}

// Unmarshal implements the Message interface.
func (m *HitMaskAnnouncement) Unmarshal(data []byte) error {
	var d denseFields
	var sifted uint64
	if err := scan(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == 3 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			sifted = v
			return n, nil
		}
		return d.field(1, 2, num, typ, data)
	}); err != nil {
		return err
	}
	var err error
	if m.Mask, err = d.dense(); err != nil {
		return err
	}
	m.SiftedLen = int(sifted)
	return nil
}

// A CheckSample carries the receiver's verification sample: Indices[i] is a
// position in the sifted key, sorted ascending and duplicate-free, and bit i
// of Bits is the receiver's sifted bit at that position. SiftedLen is the
// receiver's sifted key length, cross-checked by the sender.
//
// Fields: 1 = packed indices (bytes of varints), 2 = sample bits (bytes),
// 3 = sample bit length (varint), 4 = sifted length (varint).
type CheckSample struct {
	Indices   []int
	Bits      bitmap.Dense
	SiftedLen int
}

// Marshal implements the Message interface.
func (m *CheckSample) Marshal() []byte {
	var packed []byte
	for _, idx := range m.Indices {
		packed = protowire.AppendVarint(packed, uint64(idx))
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	b = appendDense(b, 2, 3, m.Bits)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SiftedLen))
	return b
}

// Unmarshal implements the Message interface.
func (m *CheckSample) Unmarshal(data []byte) error {
	var d denseFields
	var packed []byte
	var sifted uint64
	if err := scan(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			packed = v
			return n, nil
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			sifted = v
			return n, nil
		default:
			return d.field(2, 3, num, typ, data)
		}
	}); err != nil {
		return err
	}

	m.Indices = nil
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return protowire.ParseError(n)
		}
		m.Indices = append(m.Indices, int(v))
		packed = packed[n:]
	}
	var err error
	if m.Bits, err = d.dense(); err != nil {
		return err
	}
	if m.Bits.Size() != len(m.Indices) {
		return fmt.Errorf("check sample carries %d bits for %d indices", m.Bits.Size(), len(m.Indices))
	}
	m.SiftedLen = int(sifted)
	return nil
}

// A Verdict carries the sender's verification outcome back to the receiver.
//
// Fields: 1 = ok (varint bool).
type Verdict struct {
	OK bool
}

// Marshal implements the Message interface.
func (m *Verdict) Marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	var v uint64
	if m.OK {
		v = 1
	}
	return protowire.AppendVarint(b, v)
}

// Unmarshal implements the Message interface.
func (m *Verdict) Unmarshal(data []byte) error {
	m.OK = false
	return scan(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			m.OK = v != 0
			return n, nil
		}
		return -1, nil
	})
}

// scan walks the fields of a wire-format message, dispatching each to f. A
// negative length from f means the field is unknown and should be skipped.
func scan(data []byte, f func(num protowire.Number, typ protowire.Type, data []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		n, err := f(num, typ, data)
		if err != nil {
			return err
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

// denseFields accumulates the (bytes, bit-length) field pair which encodes a
// bitmap.Dense.
type denseFields struct {
	bits   []byte
	bitLen uint64
}

func (d *denseFields) field(dataNum, lenNum protowire.Number, num protowire.Number, typ protowire.Type, data []byte) (int, error) {
	switch {
	case num == dataNum && typ == protowire.BytesType:
		v, n := protowire.ConsumeBytes(data)
		d.bits = v
		return n, nil
	case num == lenNum && typ == protowire.VarintType:
		v, n := protowire.ConsumeVarint(data)
		d.bitLen = v
		return n, nil
	default:
		return -1, nil
	}
}

func (d *denseFields) dense() (bitmap.Dense, error) {
	if int(d.bitLen) > len(d.bits)*8 {
		return bitmap.Empty(), fmt.Errorf("bit length %d exceeds %d payload bytes", d.bitLen, len(d.bits))
	}
	return bitmap.NewDense(d.bits, int(d.bitLen)), nil
}

func appendDense(b []byte, dataNum, lenNum protowire.Number, d bitmap.Dense) []byte {
	b = protowire.AppendTag(b, dataNum, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Data())
	b = protowire.AppendTag(b, lenNum, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Size()))
	return b
}
