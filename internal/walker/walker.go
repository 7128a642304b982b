// Package walker implements the lineage walkers: the router walker that
// discovers newly deployed pairs, the pair walker that turns each pair
// spend into a transaction with before/after reserves, and the block
// timestamp resolver. Walkers never write to the store; they return
// results for the orchestrator to persist atomically.
package walker

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/tibetswap/analytics-indexer/internal/metadata"
	"github.com/tibetswap/analytics-indexer/internal/rpcclient"
	"github.com/tibetswap/analytics-indexer/pkg/helpers"
)

// FullNode is the subset of the full-node RPC surface the walkers consume.
type FullNode interface {
	GetCoinRecordByName(ctx context.Context, coinID [32]byte) (*rpcclient.CoinRecord, error)
	GetPuzzleAndSolution(ctx context.Context, coinID [32]byte, spentHeight uint32) (*rpcclient.PuzzleAndSolution, error)
	GetBlockRecordByHeight(ctx context.Context, height uint32) (*rpcclient.BlockRecord, error)
}

// MetadataFetcher resolves a token's human-facing metadata, falling back
// to placeholders internally; it never fails.
type MetadataFetcher interface {
	Fetch(ctx context.Context, assetID [32]byte) metadata.Info
}

// parseCoinID decodes a hex coin id (with or without 0x prefix) into its
// 32-byte form.
func parseCoinID(s string) ([32]byte, error) {
	var out [32]byte
	b, err := helpers.HexToBytes(s)
	if err != nil {
		return out, fmt.Errorf("walker: parse coin id %q: %w", s, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("walker: coin id %q has %d bytes, want 32", s, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func coinIDHex(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
