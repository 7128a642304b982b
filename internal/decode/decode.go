// Package decode implements the spend decoder: given a coin's puzzle
// reveal and solution, it runs the CLVM evaluator in internal/clvm to
// produce the coin's CREATE_COIN conditions and, for AMM pair coins, the
// pre/post reserve state of the spend.
package decode

import (
	"fmt"

	"github.com/tibetswap/analytics-indexer/internal/clvm"
)

// SingletonLauncherHash is the well-known puzzle hash of Chia's singleton
// launcher coin. A spend whose coin carries this puzzle hash is a genesis
// launcher spend, not a normal singleton recreation.
var SingletonLauncherHash = mustHex("eff07522495060c066f66f32acc2a77e3a3e737aca8baea4d1a64ea4cdc13da9")

func mustHex(s string) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		b := hexNibble(s[i*2])<<4 | hexNibble(s[i*2+1])
		out[i] = b
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// Operation classifies a pair transaction by its liquidity delta.
type Operation string

const (
	OperationSwap            Operation = "SWAP"
	OperationAddLiquidity    Operation = "ADD_LIQUIDITY"
	OperationRemoveLiquidity Operation = "REMOVE_LIQUIDITY"
)

// ReserveState is a pair coin's curried state triple.
type ReserveState struct {
	XchReserve   int64
	TokenReserve int64
	Liquidity    int64
}

// StateChange is the signed delta between two ReserveStates.
type StateChange struct {
	Xch       int64
	Token     int64
	Liquidity int64
}

// Delta computes the signed state change of a spend: new minus old.
func Delta(old, new ReserveState) StateChange {
	return StateChange{
		Xch:       new.XchReserve - old.XchReserve,
		Token:     new.TokenReserve - old.TokenReserve,
		Liquidity: new.Liquidity - old.Liquidity,
	}
}

// Classify maps a state change to its operation kind: zero liquidity
// delta is a swap, positive is an add, negative is a remove.
func Classify(change StateChange) Operation {
	switch {
	case change.Liquidity == 0:
		return OperationSwap
	case change.Liquidity > 0:
		return OperationAddLiquidity
	default:
		return OperationRemoveLiquidity
	}
}

// Conditions parses and runs a puzzle reveal against its solution, returning
// the grouped condition map.
func Conditions(puzzleReveal, solution []byte) (map[clvm.ConditionOpcode][][][]byte, error) {
	return clvm.Conditions(puzzleReveal, solution)
}

// CreateCoins returns every CREATE_COIN condition produced by a spend, in
// declaration order.
func CreateCoins(puzzleReveal, solution []byte) ([]clvm.CreateCoin, error) {
	conds, err := Conditions(puzzleReveal, solution)
	if err != nil {
		return nil, err
	}
	return clvm.CreateCoins(conds)
}

// PairSpend is the decoded result of a single pair-coin spend: the reserve
// state immediately before the spend (read off the puzzle's curried
// parameters) and immediately after (computed by running the solution's
// embedded new-state sub-puzzle).
type PairSpend struct {
	OldState ReserveState
	NewState ReserveState
}

// DecodePairSpend extracts the pre/post reserve state of a pair spend.
//
// The old state is read from the curried parameters of the pair's inner
// puzzle: the puzzle reveal is a singleton (MOD_HASH . (SINGLETON_STRUCT .
// INNER_PUZZLE)) curry; uncurrying the inner puzzle itself yields a curry
// argument tree whose third element is the (xch, token, liquidity) state
// triple.
//
// The new state is obtained by evaluating the solution's embedded
// new-state sub-puzzle: by convention the pair's inner solution is a list
// whose first element is the new-state puzzle reveal and whose second
// element is the parameters to pass it. That sub-puzzle is invoked with
// (old_state, params, dummy_singleton_struct, dummy_coin_id) and the first
// element of its result is the new state triple.
func DecodePairSpend(puzzleReveal, solution []byte) (*PairSpend, error) {
	puzzle, err := clvm.Parse(puzzleReveal)
	if err != nil {
		return nil, fmt.Errorf("decode: parse puzzle reveal: %w", err)
	}
	sol, err := clvm.Parse(solution)
	if err != nil {
		return nil, fmt.Errorf("decode: parse solution: %w", err)
	}

	oldState, innerSolution, err := extractOldStateAndInnerSolution(puzzle, sol)
	if err != nil {
		return nil, fmt.Errorf("decode: extract old state: %w", err)
	}

	newState, err := evalNewState(oldState, innerSolution)
	if err != nil {
		return nil, fmt.Errorf("decode: evaluate new state: %w", err)
	}

	return &PairSpend{OldState: *oldState, NewState: *newState}, nil
}

// extractOldStateAndInnerSolution uncurries the outer singleton layer and
// its inner pair puzzle, returning the curried old state and the inner
// (pair-specific) solution branch the singleton top layer passes through.
func extractOldStateAndInnerSolution(puzzle, solution *clvm.Value) (*ReserveState, *clvm.Value, error) {
	_, singletonArgs, err := clvm.Uncurry(puzzle)
	if err != nil {
		return nil, nil, fmt.Errorf("uncurry singleton layer: %w", err)
	}
	if len(singletonArgs) < 2 {
		return nil, nil, fmt.Errorf("singleton curry has %d args, want >= 2", len(singletonArgs))
	}
	innerPuzzle := singletonArgs[1]

	_, innerArgs, err := clvm.Uncurry(innerPuzzle)
	if err != nil {
		return nil, nil, fmt.Errorf("uncurry pair inner puzzle: %w", err)
	}
	if len(innerArgs) < 3 {
		return nil, nil, fmt.Errorf("pair inner curry has %d args, want >= 3", len(innerArgs))
	}

	oldState, err := valueToReserveState(innerArgs[2])
	if err != nil {
		return nil, nil, fmt.Errorf("decode old state triple: %w", err)
	}

	// The singleton top-layer solution is (lineage_proof amount inner_solution);
	// the inner solution is itself (new_state_puzzle new_state_params . _rest).
	solFields, err := solution.ToSlice()
	if err != nil || len(solFields) < 3 {
		return nil, nil, fmt.Errorf("malformed singleton solution")
	}
	innerSolution := solFields[2]

	return oldState, innerSolution, nil
}

// evalNewState invokes the new-state sub-puzzle embedded in the inner
// solution, following the pair puzzle's merkle-dispatch convention.
func evalNewState(oldState *ReserveState, innerSolution *clvm.Value) (*ReserveState, error) {
	fields, err := innerSolution.ToSlice()
	if err != nil || len(fields) < 2 {
		return nil, fmt.Errorf("malformed inner solution: expected (new_state_puzzle params ...)")
	}
	newStatePuzzle := fields[0]
	params := fields[1]

	dummySingletonStruct := clvm.Nil
	dummyCoinID := clvm.NewAtom(make([]byte, 32))

	env := clvm.ListOf(reserveStateToValue(*oldState), params, dummySingletonStruct, dummyCoinID)

	result, err := clvm.Eval(newStatePuzzle, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate new-state sub-puzzle: %w", err)
	}

	newStateValue, err := result.First()
	if err != nil {
		return nil, fmt.Errorf("new-state result is not a list: %w", err)
	}
	return valueToReserveState(newStateValue)
}

// valueToReserveState decodes a state triple, accepting both the proper-list
// form (xch token liquidity . ()) and the bare improper-pair form
// (xch . (token . liquidity)) chialisp currying tends to produce.
func valueToReserveState(v *clvm.Value) (*ReserveState, error) {
	if items, err := v.ToSlice(); err == nil && len(items) == 3 {
		return reserveStateFromAtoms(items[0], items[1], items[2])
	}

	xch, err := v.First()
	if err != nil {
		return nil, fmt.Errorf("state triple: %w", err)
	}
	rest, err := v.Rest()
	if err != nil {
		return nil, fmt.Errorf("state triple: %w", err)
	}
	token, err := rest.First()
	if err != nil {
		return nil, fmt.Errorf("state triple: %w", err)
	}
	liq, err := rest.Rest()
	if err != nil {
		return nil, fmt.Errorf("state triple: %w", err)
	}
	return reserveStateFromAtoms(xch, token, liq)
}

func reserveStateFromAtoms(xch, token, liq *clvm.Value) (*ReserveState, error) {
	x, err := xch.AsInt()
	if err != nil {
		return nil, err
	}
	tk, err := token.AsInt()
	if err != nil {
		return nil, err
	}
	lq, err := liq.AsInt()
	if err != nil {
		return nil, err
	}
	return &ReserveState{XchReserve: x.Int64(), TokenReserve: tk.Int64(), Liquidity: lq.Int64()}, nil
}

func reserveStateToValue(s ReserveState) *clvm.Value {
	return clvm.ListOf(clvm.NewInt(s.XchReserve), clvm.NewInt(s.TokenReserve), clvm.NewInt(s.Liquidity))
}
