package walker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/tibetswap/analytics-indexer/internal/clvm"
	"github.com/tibetswap/analytics-indexer/internal/decode"
	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/pkg/helpers"
	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// RouterWalker advances a router singleton's lineage and collects the pair
// launchers each spend deploys.
type RouterWalker struct {
	node FullNode
	meta MetadataFetcher
	log  *logging.Logger
}

// NewRouterWalker creates a router walker.
func NewRouterWalker(node FullNode, meta MetadataFetcher) *RouterWalker {
	return &RouterWalker{
		node: node,
		meta: meta,
		log:  logging.GetDefault().Component("router"),
	}
}

// RouterResult is one router walk's outcome: the newest unspent coin id and
// the pairs deployed along the way, in spend order.
type RouterResult struct {
	CurrentCoinID string
	NewPairs      []storage.Pair
}

// Walk follows the router lineage from the persisted position to the newest
// unspent coin. Every spend either recreates the router (CREATE_COIN with
// amount 1) or deploys a pair launcher (amount 2); any other amount is a
// protocol violation and aborts the pass.
func (w *RouterWalker) Walk(ctx context.Context, router *storage.Router) (*RouterResult, error) {
	current, err := parseCoinID(router.CurrentCoinID)
	if err != nil {
		return nil, err
	}

	rec, err := w.node.GetCoinRecordByName(ctx, current)
	if err != nil {
		return nil, err
	}

	result := &RouterResult{CurrentCoinID: router.CurrentCoinID}

	for rec.Spent {
		ps, err := w.node.GetPuzzleAndSolution(ctx, current, rec.SpentHeight)
		if err != nil {
			return nil, err
		}

		coins, err := decode.CreateCoins(ps.PuzzleReveal, ps.Solution)
		if err != nil {
			return nil, fmt.Errorf("walker: decode router spend %s: %w", coinIDHex(current), err)
		}

		// The tail hash announced by this spend, resolved lazily: only
		// non-launcher router spends that actually deploy a pair carry one.
		var assetID [32]byte
		haveAsset := false

		next := current
		advanced := false
		for _, cc := range coins {
			switch cc.Amount {
			case 1:
				next = clvm.CoinID(current, cc.PuzzleHash, 1)
				advanced = true
			case 2:
				if cc.PuzzleHash != decode.SingletonLauncherHash {
					return nil, fmt.Errorf("walker: pair deployment child of %s is not a singleton launcher", coinIDHex(current))
				}
				if rec.PuzzleHash == decode.SingletonLauncherHash {
					return nil, fmt.Errorf("walker: router launcher spend %s deploys a pair", coinIDHex(current))
				}
				if !haveAsset {
					assetID, err = tailHashFromSolution(ps.Solution)
					if err != nil {
						return nil, fmt.Errorf("walker: router spend %s: %w", coinIDHex(current), err)
					}
					haveAsset = true
				}
				launcherID := clvm.CoinID(current, cc.PuzzleHash, 2)
				result.NewPairs = append(result.NewPairs, w.newPair(ctx, router, launcherID, assetID))
			default:
				return nil, fmt.Errorf("walker: unexpected CREATE_COIN amount %d in router spend %s", cc.Amount, coinIDHex(current))
			}
		}
		if !advanced {
			return nil, fmt.Errorf("walker: router spend %s did not recreate the singleton", coinIDHex(current))
		}

		current = next
		result.CurrentCoinID = coinIDHex(current)

		rec, err = w.node.GetCoinRecordByName(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// newPair builds a fresh pair row for a launcher deployment, with metadata
// resolved best-effort.
func (w *RouterWalker) newPair(ctx context.Context, router *storage.Router, launcherID, assetID [32]byte) storage.Pair {
	info := w.meta.Fetch(ctx, assetID)
	w.log.Info("Discovered new pair",
		"launcher", coinIDHex(launcherID),
		"asset", helpers.BytesToHex(assetID[:]),
		"name", info.Name,
	)
	return storage.Pair{
		LauncherID:       coinIDHex(launcherID),
		RouterLauncherID: router.LauncherID,
		AssetID:          coinIDHex(assetID),
		Name:             info.Name,
		ShortName:        info.ShortName,
		ImageURL:         info.ImageURL,
		CurrentCoinID:    coinIDHex(launcherID),
		TradeVolume:      big.NewInt(0),
		TradeVolumeUSD:   big.NewInt(0),
		LastTxIndex:      -1,
	}
}

// tailHashFromSolution extracts the asset id a router spend announces: the
// last element of the last element of the solution program.
func tailHashFromSolution(solution []byte) ([32]byte, error) {
	var out [32]byte

	sol, err := clvm.Parse(solution)
	if err != nil {
		return out, fmt.Errorf("parse solution: %w", err)
	}
	top, err := sol.ToSlice()
	if err != nil || len(top) == 0 {
		return out, fmt.Errorf("solution is not a non-empty list")
	}
	inner, err := top[len(top)-1].ToSlice()
	if err != nil || len(inner) == 0 {
		return out, fmt.Errorf("solution tail branch is not a non-empty list")
	}
	tail, err := inner[len(inner)-1].AsBytes()
	if err != nil {
		return out, fmt.Errorf("tail hash is not an atom: %w", err)
	}
	if len(tail) != 32 || helpers.IsZeroBytes(tail) {
		return out, fmt.Errorf("tail hash has %d bytes or is zero", len(tail))
	}
	copy(out[:], tail)
	return out, nil
}
