// Package clvm implements a minimal CLVM-like S-expression evaluator: just
// enough of Chia's on-chain bytecode language to curry a puzzle, run it
// against a solution, and read off the resulting condition list. It is not
// a general-purpose CLVM implementation; it covers the operator subset that
// singleton, CAT, and AMM-pair puzzles actually exercise.
package clvm

import (
	"fmt"
	"math/big"
)

// Value is a CLVM S-expression node: either an atom (a byte string) or a
// cons pair of two Values. A nil Left/Right pair with both fields nil and
// Atom empty represents the canonical empty list / false atom.
type Value struct {
	// Atom holds the atom's bytes when this node is an atom (Left == nil).
	Atom []byte

	// Left and Right are non-nil when this node is a cons pair.
	Left  *Value
	Right *Value
}

// Nil is the canonical empty-atom value, CLVM's "()" / false.
var Nil = &Value{Atom: []byte{}}

// NewAtom wraps raw bytes as an atom node.
func NewAtom(b []byte) *Value {
	return &Value{Atom: b}
}

// NewInt encodes an integer as a minimal-length signed big-endian atom, the
// canonical CLVM integer encoding.
func NewInt(n int64) *Value {
	return NewBigInt(big.NewInt(n))
}

// NewBigInt encodes a *big.Int as a minimal-length signed big-endian atom.
func NewBigInt(n *big.Int) *Value {
	if n.Sign() == 0 {
		return NewAtom(nil)
	}
	b := n.Bytes()
	if n.Sign() < 0 {
		// two's complement minimal encoding for negative values.
		b = twosComplement(b)
	} else if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return NewAtom(b)
}

func twosComplement(magnitude []byte) []byte {
	// magnitude is the absolute value's big-endian bytes; produce the
	// minimal two's-complement negative encoding.
	buf := make([]byte, len(magnitude)+1)
	copy(buf[1:], magnitude)
	v := new(big.Int).SetBytes(buf)
	mod := new(big.Int).Lsh(big.NewInt(1), uint(len(buf)*8))
	v.Sub(mod, v)
	out := v.Bytes()
	for len(out) < len(buf) {
		out = append([]byte{0}, out...)
	}
	if len(out) > 1 && out[0] == 0xff && out[1]&0x80 != 0 {
		out = out[1:]
	}
	return out
}

// Cons builds a cons pair (left . right).
func Cons(left, right *Value) *Value {
	return &Value{Left: left, Right: right}
}

// ListOf builds a proper list terminated by Nil from the given elements.
func ListOf(items ...*Value) *Value {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

// IsAtom reports whether v is an atom (leaf) node.
func (v *Value) IsAtom() bool {
	return v.Left == nil && v.Right == nil
}

// IsNil reports whether v is the canonical empty atom.
func (v *Value) IsNil() bool {
	return v.IsAtom() && len(v.Atom) == 0
}

// First returns the left element of a cons pair.
func (v *Value) First() (*Value, error) {
	if v.IsAtom() {
		return nil, fmt.Errorf("clvm: first of non-cons atom")
	}
	return v.Left, nil
}

// Rest returns the right element of a cons pair.
func (v *Value) Rest() (*Value, error) {
	if v.IsAtom() {
		return nil, fmt.Errorf("clvm: rest of non-cons atom")
	}
	return v.Right, nil
}

// AsInt decodes an atom as a signed big-endian integer.
func (v *Value) AsInt() (*big.Int, error) {
	if !v.IsAtom() {
		return nil, fmt.Errorf("clvm: not an atom")
	}
	if len(v.Atom) == 0 {
		return big.NewInt(0), nil
	}
	n := new(big.Int).SetBytes(v.Atom)
	if v.Atom[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(v.Atom)*8))
		n.Sub(n, mod)
	}
	return n, nil
}

// AsBytes returns the atom's raw bytes.
func (v *Value) AsBytes() ([]byte, error) {
	if !v.IsAtom() {
		return nil, fmt.Errorf("clvm: not an atom")
	}
	return v.Atom, nil
}

// ToSlice walks a proper list into a Go slice of its elements.
func (v *Value) ToSlice() ([]*Value, error) {
	var out []*Value
	cur := v
	for {
		if cur.IsAtom() {
			if cur.IsNil() {
				return out, nil
			}
			return nil, fmt.Errorf("clvm: improper list")
		}
		out = append(out, cur.Left)
		cur = cur.Right
	}
}

// Nth returns the n-th element (0-indexed) of a proper list.
func (v *Value) Nth(n int) (*Value, error) {
	items, err := v.ToSlice()
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(items) {
		return nil, fmt.Errorf("clvm: index %d out of range (len %d)", n, len(items))
	}
	return items[n], nil
}
