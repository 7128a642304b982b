package clvm

import "fmt"

// ConditionOpcode identifies a CLVM condition (the output of running a
// puzzle against its solution), per Chia's condition-code convention.
type ConditionOpcode int64

const (
	ConditionAggSigUnsafe ConditionOpcode = 49
	ConditionAggSigMe     ConditionOpcode = 50
	ConditionCreateCoin   ConditionOpcode = 51
	ConditionReserveFee   ConditionOpcode = 52
)

// Conditions runs a puzzle reveal against a solution and groups the
// resulting condition list by opcode, each entry holding that condition's
// argument atoms in order (the opcode atom itself is stripped).
func Conditions(puzzleReveal, solution []byte) (map[ConditionOpcode][][][]byte, error) {
	puzzle, err := Parse(puzzleReveal)
	if err != nil {
		return nil, fmt.Errorf("clvm: parse puzzle reveal: %w", err)
	}
	sol, err := Parse(solution)
	if err != nil {
		return nil, fmt.Errorf("clvm: parse solution: %w", err)
	}

	result, err := Eval(puzzle, sol)
	if err != nil {
		return nil, fmt.Errorf("clvm: puzzle evaluation failed: %w", err)
	}

	return GroupConditions(result)
}

// GroupConditions walks an already-evaluated condition list and groups it
// by opcode.
func GroupConditions(result *Value) (map[ConditionOpcode][][][]byte, error) {
	items, err := result.ToSlice()
	if err != nil {
		return nil, fmt.Errorf("clvm: condition result is not a proper list: %w", err)
	}

	out := make(map[ConditionOpcode][][][]byte)
	for _, cond := range items {
		fields, err := cond.ToSlice()
		if err != nil || len(fields) == 0 {
			return nil, fmt.Errorf("clvm: malformed condition")
		}
		opInt, err := fields[0].AsInt()
		if err != nil {
			return nil, fmt.Errorf("clvm: condition opcode not an atom: %w", err)
		}
		op := ConditionOpcode(opInt.Int64())

		args := make([][]byte, 0, len(fields)-1)
		for _, f := range fields[1:] {
			b, err := f.AsBytes()
			if err != nil {
				return nil, fmt.Errorf("clvm: condition argument not an atom: %w", err)
			}
			args = append(args, b)
		}
		out[op] = append(out[op], args)
	}
	return out, nil
}

// CreateCoin is a decoded CREATE_COIN condition.
type CreateCoin struct {
	PuzzleHash [32]byte
	Amount     uint64
}

// CreateCoins extracts every CREATE_COIN condition from a grouped condition
// map, in declaration order.
func CreateCoins(conds map[ConditionOpcode][][][]byte) ([]CreateCoin, error) {
	var out []CreateCoin
	for _, args := range conds[ConditionCreateCoin] {
		if len(args) < 2 {
			return nil, fmt.Errorf("clvm: CREATE_COIN with %d args, want >= 2", len(args))
		}
		if len(args[0]) != 32 {
			return nil, fmt.Errorf("clvm: CREATE_COIN puzzle hash has length %d, want 32", len(args[0]))
		}
		var ph [32]byte
		copy(ph[:], args[0])
		amount := bytesToUint64(args[1])
		out = append(out, CreateCoin{PuzzleHash: ph, Amount: amount})
	}
	return out, nil
}

func bytesToUint64(b []byte) uint64 {
	var n uint64
	for _, by := range b {
		n = n<<8 | uint64(by)
	}
	return n
}
