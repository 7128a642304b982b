package decode

import (
	"bytes"
	"testing"

	"github.com/tibetswap/analytics-indexer/internal/clvm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		change StateChange
		want   Operation
	}{
		{StateChange{Xch: 10, Token: -5, Liquidity: 0}, OperationSwap},
		{StateChange{Xch: 10, Token: 5, Liquidity: 3}, OperationAddLiquidity},
		{StateChange{Xch: -10, Token: -5, Liquidity: -3}, OperationRemoveLiquidity},
	}
	for _, c := range cases {
		got := Classify(c.change)
		if got != c.want {
			t.Errorf("Classify(%+v) = %s, want %s", c.change, got, c.want)
		}
	}
}

func TestDelta(t *testing.T) {
	old := ReserveState{XchReserve: 100, TokenReserve: 200, Liquidity: 50}
	new := ReserveState{XchReserve: 110, TokenReserve: 190, Liquidity: 50}
	d := Delta(old, new)
	if d.Xch != 10 || d.Token != -10 || d.Liquidity != 0 {
		t.Errorf("Delta = %+v, want {10 -10 0}", d)
	}
}

func TestCreateCoins(t *testing.T) {
	ph := bytes.Repeat([]byte{0x11}, 32)
	condList := clvm.ListOf(clvm.ListOf(clvm.NewInt(51), clvm.NewAtom(ph), clvm.NewInt(1000)))
	program := clvm.Cons(clvm.NewInt(1), condList) // (q . conditions)

	coins, err := CreateCoins(clvm.Serialize(program), clvm.Serialize(clvm.Nil))
	if err != nil {
		t.Fatalf("CreateCoins error: %v", err)
	}
	if len(coins) != 1 || coins[0].Amount != 1000 {
		t.Fatalf("got %+v, want one coin of amount 1000", coins)
	}
}

// buildInnerPairPuzzle constructs a pair inner puzzle curried with two
// placeholder arguments followed by the (xch, token, liquidity) state triple
// as its third curry argument, mirroring the shape DecodePairSpend expects.
func buildInnerPairPuzzle(mod string, state ReserveState) *clvm.Value {
	body := clvm.ListOf(clvm.NewInt(int64(clvm.OpQuote)))
	return clvm.Curry(body,
		clvm.NewAtom([]byte(mod+"-a")),
		clvm.NewAtom([]byte(mod+"-b")),
		reserveStateToValue(state),
	)
}

func TestDecodePairSpend(t *testing.T) {
	oldState := ReserveState{XchReserve: 1000, TokenReserve: 2000, Liquidity: 500}
	newState := ReserveState{XchReserve: 1100, TokenReserve: 1900, Liquidity: 500}

	innerPuzzle := buildInnerPairPuzzle("mod", oldState)
	// outer singleton layer: curry(SINGLETON_MOD, SINGLETON_STRUCT, innerPuzzle)
	outerPuzzle := clvm.Curry(
		clvm.ListOf(clvm.NewInt(int64(clvm.OpQuote))),
		clvm.NewAtom([]byte("singleton-struct")),
		innerPuzzle,
	)

	// new-state sub-puzzle: ignores its environment and always returns the
	// fixed new state triple, wrapped as a one-element result list.
	newStatePuzzle := clvm.Cons(
		clvm.NewInt(int64(clvm.OpQuote)),
		clvm.ListOf(reserveStateToValue(newState)),
	)
	innerSolution := clvm.ListOf(newStatePuzzle, clvm.Nil)
	solution := clvm.ListOf(clvm.Nil, clvm.NewInt(1000), innerSolution)

	spend, err := DecodePairSpend(clvm.Serialize(outerPuzzle), clvm.Serialize(solution))
	if err != nil {
		t.Fatalf("DecodePairSpend error: %v", err)
	}
	if spend.OldState != oldState {
		t.Errorf("OldState = %+v, want %+v", spend.OldState, oldState)
	}
	if spend.NewState != newState {
		t.Errorf("NewState = %+v, want %+v", spend.NewState, newState)
	}

	change := Delta(spend.OldState, spend.NewState)
	if Classify(change) != OperationSwap {
		t.Errorf("classified as %s, want SWAP", Classify(change))
	}
}
