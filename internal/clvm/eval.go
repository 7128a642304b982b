package clvm

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Opcode is a CLVM operator number.
type Opcode int64

const (
	OpQuote  Opcode = 1
	OpApply  Opcode = 2
	OpIf     Opcode = 3
	OpCons   Opcode = 4
	OpFirst  Opcode = 5
	OpRest   Opcode = 6
	OpListP  Opcode = 7
	OpRaise  Opcode = 8
	OpEq     Opcode = 9
	OpSha256 Opcode = 11
	OpConcat Opcode = 14
	OpAdd    Opcode = 16
	OpSub    Opcode = 17
	OpMul    Opcode = 18
	OpGT     Opcode = 21
	OpNot    Opcode = 28
	OpAny    Opcode = 29
	OpAll    Opcode = 30
)

// DefaultMaxCost bounds the number of operator dispatches a single Eval may
// perform, guarding against malformed or adversarial programs.
const DefaultMaxCost = 2_000_000

// evaluator carries the per-call cost budget.
type evaluator struct {
	cost    int
	maxCost int
}

// Eval runs a CLVM program against an environment (the "args"/solution)
// and returns the resulting Value tree.
func Eval(program, args *Value) (*Value, error) {
	return EvalWithCost(program, args, DefaultMaxCost)
}

// EvalWithCost is Eval with an explicit operator-dispatch budget.
func EvalWithCost(program, args *Value, maxCost int) (*Value, error) {
	e := &evaluator{maxCost: maxCost}
	return e.eval(program, args)
}

func (e *evaluator) charge() error {
	e.cost++
	if e.cost > e.maxCost {
		return fmt.Errorf("clvm: exceeded max cost %d", e.maxCost)
	}
	return nil
}

func (e *evaluator) eval(program, env *Value) (*Value, error) {
	if err := e.charge(); err != nil {
		return nil, err
	}

	if program.IsAtom() {
		return traverse(program, env)
	}

	operatorNode := program.Left
	operandList := program.Right

	if !operatorNode.IsAtom() {
		return nil, fmt.Errorf("clvm: operator must be an atom opcode")
	}
	opInt, err := operatorNode.AsInt()
	if err != nil {
		return nil, err
	}
	op := Opcode(opInt.Int64())

	if op == OpQuote {
		return operandList, nil
	}

	operands, err := operandList.ToSlice()
	if err != nil {
		return nil, fmt.Errorf("clvm: improper operand list: %w", err)
	}

	evaluated := make([]*Value, len(operands))
	for i, operand := range operands {
		v, err := e.eval(operand, env)
		if err != nil {
			return nil, err
		}
		evaluated[i] = v
	}

	return e.apply(op, evaluated)
}

// traverse navigates env by the integer path encoded in the atom node,
// following CLVM's standard "path into environment" convention: the bits
// below the leading sentinel bit are read from the least significant end,
// bit 1 meaning take the right (rest) branch, bit 0 the left (first) one.
func traverse(pathAtom, env *Value) (*Value, error) {
	n, err := pathAtom.AsInt()
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("clvm: negative path %s", n)
	}
	if n.Sign() == 0 {
		return nil, fmt.Errorf("clvm: path 0 is invalid")
	}
	if n.Cmp(big.NewInt(1)) == 0 {
		return env, nil
	}

	bitLen := n.BitLen()
	cur := env
	for i := 0; i < bitLen-1; i++ {
		if cur.IsAtom() {
			return nil, fmt.Errorf("clvm: path into atom environment")
		}
		if n.Bit(i) == 1 {
			cur = cur.Right
		} else {
			cur = cur.Left
		}
	}
	return cur, nil
}

func (e *evaluator) apply(op Opcode, args []*Value) (*Value, error) {
	switch op {
	case OpApply:
		if len(args) != 2 {
			return nil, fmt.Errorf("clvm: a takes 2 args, got %d", len(args))
		}
		return e.eval(args[0], args[1])

	case OpIf:
		if len(args) != 3 {
			return nil, fmt.Errorf("clvm: i takes 3 args, got %d", len(args))
		}
		if isTruthy(args[0]) {
			return args[1], nil
		}
		return args[2], nil

	case OpCons:
		if len(args) != 2 {
			return nil, fmt.Errorf("clvm: c takes 2 args, got %d", len(args))
		}
		return Cons(args[0], args[1]), nil

	case OpFirst:
		if len(args) != 1 {
			return nil, fmt.Errorf("clvm: f takes 1 arg, got %d", len(args))
		}
		return args[0].First()

	case OpRest:
		if len(args) != 1 {
			return nil, fmt.Errorf("clvm: r takes 1 arg, got %d", len(args))
		}
		return args[0].Rest()

	case OpListP:
		if len(args) != 1 {
			return nil, fmt.Errorf("clvm: l takes 1 arg, got %d", len(args))
		}
		if args[0].IsAtom() {
			return Nil, nil
		}
		return NewInt(1), nil

	case OpRaise:
		return nil, fmt.Errorf("clvm: (x) raised: %v", args)

	case OpEq:
		if len(args) != 2 {
			return nil, fmt.Errorf("clvm: = takes 2 args, got %d", len(args))
		}
		a, err := args[0].AsBytes()
		if err != nil {
			return nil, err
		}
		b, err := args[1].AsBytes()
		if err != nil {
			return nil, err
		}
		if bytesEqual(a, b) {
			return NewInt(1), nil
		}
		return Nil, nil

	case OpSha256:
		return sha256Atoms(args)

	case OpConcat:
		return concatAtoms(args)

	case OpAdd:
		return foldInts(args, big.NewInt(0), (*big.Int).Add)

	case OpMul:
		return foldInts(args, big.NewInt(1), (*big.Int).Mul)

	case OpSub:
		return subInts(args)

	case OpGT:
		if len(args) != 2 {
			return nil, fmt.Errorf("clvm: > takes 2 args, got %d", len(args))
		}
		a, err := args[0].AsInt()
		if err != nil {
			return nil, err
		}
		b, err := args[1].AsInt()
		if err != nil {
			return nil, err
		}
		if a.Cmp(b) > 0 {
			return NewInt(1), nil
		}
		return Nil, nil

	case OpNot:
		if len(args) != 1 {
			return nil, fmt.Errorf("clvm: not takes 1 arg, got %d", len(args))
		}
		if isTruthy(args[0]) {
			return Nil, nil
		}
		return NewInt(1), nil

	case OpAny:
		for _, a := range args {
			if isTruthy(a) {
				return NewInt(1), nil
			}
		}
		return Nil, nil

	case OpAll:
		for _, a := range args {
			if !isTruthy(a) {
				return Nil, nil
			}
		}
		return NewInt(1), nil

	default:
		return nil, fmt.Errorf("clvm: unsupported opcode %d", op)
	}
}

func isTruthy(v *Value) bool {
	return !v.IsNil()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func foldInts(args []*Value, identity *big.Int, op func(z, x, y *big.Int) *big.Int) (*Value, error) {
	acc := new(big.Int).Set(identity)
	for _, a := range args {
		n, err := a.AsInt()
		if err != nil {
			return nil, err
		}
		acc = op(acc, acc, n)
	}
	return NewBigInt(acc), nil
}

func subInts(args []*Value) (*Value, error) {
	if len(args) == 0 {
		return NewInt(0), nil
	}
	first, err := args[0].AsInt()
	if err != nil {
		return nil, err
	}
	acc := new(big.Int).Set(first)
	for _, a := range args[1:] {
		n, err := a.AsInt()
		if err != nil {
			return nil, err
		}
		acc.Sub(acc, n)
	}
	return NewBigInt(acc), nil
}

func sha256Atoms(args []*Value) (*Value, error) {
	h := sha256.New()
	for _, a := range args {
		b, err := a.AsBytes()
		if err != nil {
			return nil, err
		}
		h.Write(b)
	}
	return NewAtom(h.Sum(nil)), nil
}

func concatAtoms(args []*Value) (*Value, error) {
	var out []byte
	for _, a := range args {
		b, err := a.AsBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return NewAtom(out), nil
}
