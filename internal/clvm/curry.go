package clvm

import "fmt"

// Curry wraps a puzzle with a set of permanently-bound parameters using the
// standard chialisp currying technique:
//
//	(a (q . PUZZLE) (c (q . arg1) (c (q . arg2) ... (c (q . argN) 1) ...)))
//
// The result is itself a runnable puzzle whose solution becomes environment
// 1 while args 1..N are fixed.
func Curry(puzzle *Value, args ...*Value) *Value {
	env := buildCurryEnv(args)
	return ListOf(NewAtom([]byte{byte(OpApply)}), quoteOf(puzzle), env)
}

func buildCurryEnv(args []*Value) *Value {
	env := NewInt(1)
	for i := len(args) - 1; i >= 0; i-- {
		env = ListOf(NewAtom([]byte{byte(OpCons)}), quoteOf(args[i]), env)
	}
	return env
}

func quoteOf(v *Value) *Value {
	return Cons(NewAtom([]byte{byte(OpQuote)}), v)
}

// Uncurry reverses Curry, returning the inner puzzle and the curried
// argument list in order. It expects exactly the shape Curry produces.
func Uncurry(curried *Value) (puzzle *Value, args []*Value, err error) {
	if curried.IsAtom() {
		return nil, nil, fmt.Errorf("clvm: uncurry: not a cons")
	}
	opVal, err := curried.First()
	if err != nil {
		return nil, nil, err
	}
	opInt, err := opVal.AsInt()
	if err != nil || Opcode(opInt.Int64()) != OpApply {
		return nil, nil, fmt.Errorf("clvm: uncurry: expected outer (a ...)")
	}

	rest, err := curried.Rest()
	if err != nil {
		return nil, nil, err
	}
	quotedPuzzle, err := rest.First()
	if err != nil {
		return nil, nil, err
	}
	puzzle, err = unquote(quotedPuzzle)
	if err != nil {
		return nil, nil, err
	}

	rest2, err := rest.Rest()
	if err != nil {
		return nil, nil, err
	}
	envNode, err := rest2.First()
	if err != nil {
		return nil, nil, err
	}

	for {
		if envNode.IsAtom() {
			break
		}
		opv, err := envNode.First()
		if err != nil {
			return nil, nil, err
		}
		oi, err := opv.AsInt()
		if err != nil || Opcode(oi.Int64()) != OpCons {
			break
		}
		r, err := envNode.Rest()
		if err != nil {
			return nil, nil, err
		}
		quotedArg, err := r.First()
		if err != nil {
			return nil, nil, err
		}
		arg, err := unquote(quotedArg)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, arg)

		r2, err := r.Rest()
		if err != nil {
			return nil, nil, err
		}
		envNode, err = r2.First()
		if err != nil {
			return nil, nil, err
		}
	}

	return puzzle, args, nil
}

func unquote(v *Value) (*Value, error) {
	if v.IsAtom() {
		return nil, fmt.Errorf("clvm: expected quoted value")
	}
	opVal, err := v.First()
	if err != nil {
		return nil, err
	}
	opInt, err := opVal.AsInt()
	if err != nil || Opcode(opInt.Int64()) != OpQuote {
		return nil, fmt.Errorf("clvm: expected (q . value)")
	}
	return v.Rest()
}
