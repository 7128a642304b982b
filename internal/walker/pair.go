package walker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/tibetswap/analytics-indexer/internal/clvm"
	"github.com/tibetswap/analytics-indexer/internal/decode"
	"github.com/tibetswap/analytics-indexer/internal/rpcclient"
	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// PairWalker advances one pair singleton's lineage, decoding every spend
// into a transaction with signed reserve deltas.
type PairWalker struct {
	node FullNode
	ts   *TimestampResolver
	log  *logging.Logger
}

// NewPairWalker creates a pair walker.
func NewPairWalker(node FullNode, ts *TimestampResolver) *PairWalker {
	return &PairWalker{
		node: node,
		ts:   ts,
		log:  logging.GetDefault().Component("pair"),
	}
}

// HeightTimestamp pairs a block height with its resolved wall-clock
// timestamp.
type HeightTimestamp struct {
	Height    uint32
	Timestamp uint64
}

// PairResult is one pair walk's outcome. Advanced is false when the pair's
// current coin is still unspent and nothing changed.
type PairResult struct {
	CurrentCoinID    string
	Reserves         decode.ReserveState
	LastTxIndex      int64
	TradeVolumeDelta *big.Int
	Transactions     []storage.Transaction
	Heights          []HeightTimestamp
	Advanced         bool
}

// Walk follows the pair lineage from the persisted position. The launcher
// coin, if that is where the pair still sits, is hopped over without
// emitting a transaction; every subsequent spend becomes one transaction
// with a dense, strictly increasing pair_tx_index.
func (w *PairWalker) Walk(ctx context.Context, pair *storage.Pair) (*PairResult, error) {
	current, err := parseCoinID(pair.CurrentCoinID)
	if err != nil {
		return nil, err
	}

	rec, err := w.node.GetCoinRecordByName(ctx, current)
	if err != nil {
		return nil, err
	}

	result := &PairResult{
		CurrentCoinID: pair.CurrentCoinID,
		Reserves: decode.ReserveState{
			XchReserve:   pair.XchReserve,
			TokenReserve: pair.TokenReserve,
			Liquidity:    pair.Liquidity,
		},
		LastTxIndex:      pair.LastTxIndex,
		TradeVolumeDelta: big.NewInt(0),
	}

	if rec.PuzzleHash == decode.SingletonLauncherHash {
		if !rec.Spent {
			return result, nil
		}
		current, rec, err = w.hopLauncher(ctx, current, rec.SpentHeight)
		if err != nil {
			return nil, err
		}
		result.CurrentCoinID = coinIDHex(current)
		result.Advanced = true
	}

	seenHeights := make(map[uint32]bool)

	for rec.Spent {
		ps, err := w.node.GetPuzzleAndSolution(ctx, current, rec.SpentHeight)
		if err != nil {
			return nil, err
		}

		spend, err := decode.DecodePairSpend(ps.PuzzleReveal, ps.Solution)
		if err != nil {
			return nil, fmt.Errorf("walker: decode pair spend %s: %w", coinIDHex(current), err)
		}

		change := decode.Delta(spend.OldState, spend.NewState)
		op := decode.Classify(change)

		result.LastTxIndex++
		result.Transactions = append(result.Transactions, storage.Transaction{
			CoinID:         coinIDHex(current),
			PairLauncherID: pair.LauncherID,
			Operation:      op,
			Height:         rec.SpentHeight,
			PairTxIndex:    result.LastTxIndex,
			StateChange:    change,
			NewState:       spend.NewState,
		})

		if !seenHeights[rec.SpentHeight] {
			seenHeights[rec.SpentHeight] = true
			ts, err := w.ts.Resolve(ctx, rec.SpentHeight)
			if err != nil {
				return nil, err
			}
			result.Heights = append(result.Heights, HeightTimestamp{Height: rec.SpentHeight, Timestamp: ts})
		}

		if op == decode.OperationSwap {
			absXch := change.Xch
			if absXch < 0 {
				absXch = -absXch
			}
			result.TradeVolumeDelta.Add(result.TradeVolumeDelta, big.NewInt(absXch))
		}

		next, err := singletonChild(current, ps)
		if err != nil {
			return nil, fmt.Errorf("walker: pair spend %s: %w", coinIDHex(current), err)
		}

		result.Reserves = spend.NewState
		current = next
		result.CurrentCoinID = coinIDHex(current)
		result.Advanced = true

		rec, err = w.node.GetCoinRecordByName(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// hopLauncher follows a pair's genesis launcher spend to its first real
// singleton coin, which carries the pair puzzle.
func (w *PairWalker) hopLauncher(ctx context.Context, launcher [32]byte, spentHeight uint32) ([32]byte, *rpcclient.CoinRecord, error) {
	ps, err := w.node.GetPuzzleAndSolution(ctx, launcher, spentHeight)
	if err != nil {
		return [32]byte{}, nil, err
	}
	coins, err := decode.CreateCoins(ps.PuzzleReveal, ps.Solution)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("walker: decode pair launcher spend %s: %w", coinIDHex(launcher), err)
	}
	if len(coins) == 0 {
		return [32]byte{}, nil, fmt.Errorf("walker: pair launcher spend %s created no coins", coinIDHex(launcher))
	}

	child := clvm.CoinID(launcher, coins[0].PuzzleHash, coins[0].Amount)
	rec, err := w.node.GetCoinRecordByName(ctx, child)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return child, rec, nil
}

// singletonChild finds the amount-1 CREATE_COIN in a pair spend and derives
// the child coin id.
func singletonChild(parent [32]byte, ps *rpcclient.PuzzleAndSolution) ([32]byte, error) {
	coins, err := decode.CreateCoins(ps.PuzzleReveal, ps.Solution)
	if err != nil {
		return [32]byte{}, err
	}
	for _, cc := range coins {
		if cc.Amount == 1 {
			return clvm.CoinID(parent, cc.PuzzleHash, 1), nil
		}
	}
	return [32]byte{}, fmt.Errorf("no amount-1 CREATE_COIN to follow")
}
