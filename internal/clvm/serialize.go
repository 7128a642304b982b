package clvm

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// Parse decodes a CLVM canonical-serialization byte string into a Value
// tree. This is the format puzzle reveals and solutions are stored in.
func Parse(b []byte) (*Value, error) {
	r := bytes.NewReader(b)
	v, err := parseOne(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("clvm: %d trailing bytes after program", r.Len())
	}
	return v, nil
}

func parseOne(r *bytes.Reader) (*Value, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("clvm: unexpected end of program: %w", err)
	}

	if first == 0xff {
		left, err := parseOne(r)
		if err != nil {
			return nil, err
		}
		right, err := parseOne(r)
		if err != nil {
			return nil, err
		}
		return Cons(left, right), nil
	}

	atom, err := decodeAtom(first, r)
	if err != nil {
		return nil, err
	}
	return NewAtom(atom), nil
}

// decodeAtom reads an atom's payload given its already-consumed length byte,
// following CLVM's unary-prefixed variable-length size encoding.
func decodeAtom(first byte, r *bytes.Reader) ([]byte, error) {
	if first == 0x80 {
		return []byte{}, nil
	}
	if first < 0x80 {
		return []byte{first}, nil
	}

	bitCount := 0
	bitMask := byte(0x80)
	b := first
	for b&bitMask != 0 {
		bitCount++
		b &^= bitMask
		bitMask >>= 1
		if bitCount > 5 {
			return nil, fmt.Errorf("clvm: atom length prefix too long")
		}
	}

	sizeBlob := []byte{b}
	if bitCount > 1 {
		extra := make([]byte, bitCount-1)
		if _, err := r.Read(extra); err != nil {
			return nil, fmt.Errorf("clvm: truncated atom length: %w", err)
		}
		sizeBlob = append(sizeBlob, extra...)
	}

	size := 0
	for _, sb := range sizeBlob {
		size = size<<8 | int(sb)
	}

	out := make([]byte, size)
	if size > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, fmt.Errorf("clvm: truncated atom payload: %w", err)
		}
	}
	return out, nil
}

// Serialize encodes a Value tree into CLVM canonical serialization.
func Serialize(v *Value) []byte {
	var buf bytes.Buffer
	serializeInto(&buf, v)
	return buf.Bytes()
}

func serializeInto(buf *bytes.Buffer, v *Value) {
	if !v.IsAtom() {
		buf.WriteByte(0xff)
		serializeInto(buf, v.Left)
		serializeInto(buf, v.Right)
		return
	}
	encodeAtom(buf, v.Atom)
}

func encodeAtom(buf *bytes.Buffer, atom []byte) {
	switch {
	case len(atom) == 0:
		buf.WriteByte(0x80)
	case len(atom) == 1 && atom[0] < 0x80:
		buf.WriteByte(atom[0])
	case len(atom) < 0x40:
		buf.WriteByte(0x80 | byte(len(atom)))
		buf.Write(atom)
	case len(atom) < 0x2000:
		buf.WriteByte(0xc0 | byte(len(atom)>>8))
		buf.WriteByte(byte(len(atom)))
		buf.Write(atom)
	case len(atom) < 0x100000:
		buf.WriteByte(0xe0 | byte(len(atom)>>16))
		buf.WriteByte(byte(len(atom) >> 8))
		buf.WriteByte(byte(len(atom)))
		buf.Write(atom)
	default:
		buf.WriteByte(0xf0 | byte(len(atom)>>24))
		buf.WriteByte(byte(len(atom) >> 16))
		buf.WriteByte(byte(len(atom) >> 8))
		buf.WriteByte(byte(len(atom)))
		buf.Write(atom)
	}
}

// TreeHash computes the CLVM "sha256tree" hash used for puzzle hashes:
// atoms hash as sha256(0x01 || atom), pairs hash as
// sha256(0x02 || treehash(left) || treehash(right)).
func TreeHash(v *Value) [32]byte {
	if v.IsAtom() {
		h := sha256.Sum256(append([]byte{0x01}, v.Atom...))
		return h
	}
	lh := TreeHash(v.Left)
	rh := TreeHash(v.Right)
	buf := make([]byte, 0, 1+32+32)
	buf = append(buf, 0x02)
	buf = append(buf, lh[:]...)
	buf = append(buf, rh[:]...)
	return sha256.Sum256(buf)
}
