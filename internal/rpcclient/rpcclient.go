// Package rpcclient wraps the Chia full-node RPC client with the bounded
// retry and context-scoped call shape every network-facing component of
// the indexer uses.
package rpcclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chia-network/go-chia-libs/pkg/config"
	"github.com/chia-network/go-chia-libs/pkg/rpc"
	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// Config configures the full-node RPC connection.
type Config struct {
	// BaseURL is the full node's RPC endpoint.
	BaseURL string

	// APIKey, when set, is appended to the URL path the way hosted RPC
	// proxies expect their key.
	APIKey string

	// Timeout bounds every individual RPC call.
	Timeout time.Duration
}

// Client is a thin, retrying wrapper around go-chia-libs' full-node RPC
// client. Every public method retries transient failures with a bounded
// exponential backoff before giving up.
type Client struct {
	inner  *rpc.Client
	logger *logging.Logger
	maxTry time.Duration
}

// New builds a Client from Config. The underlying go-chia-libs client is
// constructed once and reused for the process lifetime.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: parse base url: %w", err)
	}
	if cfg.APIKey != "" {
		base = base.JoinPath(cfg.APIKey)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	inner, err := rpc.NewClient(
		rpc.ConnectionModeHTTP,
		rpc.WithManualConfig(config.ChiaConfig{}),
		rpc.WithBaseURL(base),
		rpc.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: build full node client: %w", err)
	}
	return &Client{
		inner:  inner,
		logger: logging.GetDefault().Component("rpcclient"),
		maxTry: 30 * time.Second,
	}, nil
}

// retry runs fn with an exponential backoff capped at the client's max
// retry window, honoring ctx cancellation between attempts.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = c.maxTry
	bo := backoff.WithContext(exp, ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := fn(); err != nil {
			c.logger.Debugf("rpc call %s attempt %d failed: %v", op, attempt, err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: %w", op, err)
	}
	return nil
}

// CoinRecord is the subset of a Chia coin record the indexer needs.
type CoinRecord struct {
	ParentCoinID    [32]byte
	PuzzleHash      [32]byte
	Amount          uint64
	ConfirmedHeight uint32
	SpentHeight     uint32
	Spent           bool
}

// GetCoinRecordByName fetches a coin record by its coin ID.
func (c *Client) GetCoinRecordByName(ctx context.Context, coinID [32]byte) (*CoinRecord, error) {
	var out *CoinRecord
	err := c.retry(ctx, "GetCoinRecordByName", func() error {
		resp, _, err := c.inner.FullNodeService.GetCoinRecordByName(&rpc.GetCoinRecordByNameOptions{
			Name: hexPrefixed(coinID[:]),
		})
		if err != nil {
			return err
		}
		rec, ok := resp.CoinRecord.Get()
		if !ok {
			return fmt.Errorf("coin record not found")
		}
		out = &CoinRecord{
			ParentCoinID:    [32]byte(rec.Coin.ParentCoinInfo),
			PuzzleHash:      [32]byte(rec.Coin.PuzzleHash),
			Amount:          uint64(rec.Coin.Amount),
			ConfirmedHeight: uint32(rec.ConfirmedBlockIndex),
			SpentHeight:     uint32(rec.SpentBlockIndex),
			Spent:           rec.SpentBlockIndex > 0,
		}
		return nil
	})
	return out, err
}

// PuzzleAndSolution is a spent coin's puzzle reveal and solution, as
// serialized CLVM programs.
type PuzzleAndSolution struct {
	PuzzleReveal []byte
	Solution     []byte
}

// GetPuzzleAndSolution fetches the puzzle reveal and solution a coin was
// spent with. spentHeight must be the coin's recorded spent height.
func (c *Client) GetPuzzleAndSolution(ctx context.Context, coinID [32]byte, spentHeight uint32) (*PuzzleAndSolution, error) {
	var out *PuzzleAndSolution
	err := c.retry(ctx, "GetPuzzleAndSolution", func() error {
		resp, _, err := c.inner.FullNodeService.GetPuzzleAndSolution(&rpc.GetPuzzleAndSolutionOptions{
			CoinID: types.Bytes32(coinID),
			Height: spentHeight,
		})
		if err != nil {
			return err
		}
		cs, ok := resp.CoinSolution.Get()
		if !ok {
			return fmt.Errorf("puzzle and solution not found")
		}
		out = &PuzzleAndSolution{
			PuzzleReveal: []byte(cs.PuzzleReveal),
			Solution:     []byte(cs.Solution),
		}
		return nil
	})
	return out, err
}

// BlockRecord is the subset of a Chia block record the timestamp resolver
// needs. Timestamp is zero while the block has no foliage timestamp.
type BlockRecord struct {
	Height    uint32
	Timestamp uint64
}

// GetBlockRecordByHeight fetches the canonical block record at a height.
func (c *Client) GetBlockRecordByHeight(ctx context.Context, height uint32) (*BlockRecord, error) {
	var out *BlockRecord
	err := c.retry(ctx, "GetBlockRecordByHeight", func() error {
		resp, _, err := c.inner.FullNodeService.GetBlockRecordByHeight(&rpc.GetBlockByHeightOptions{
			BlockHeight: int(height),
		})
		if err != nil {
			return err
		}
		br, ok := resp.BlockRecord.Get()
		if !ok {
			return fmt.Errorf("block record not found at height %d", height)
		}
		var ts uint64
		if t, ok := br.Timestamp.Get(); ok {
			ts = uint64(t.Unix())
		}
		out = &BlockRecord{Height: height, Timestamp: ts}
		return nil
	})
	return out, err
}

func hexPrefixed(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hexDigits[c>>4]
		out[2+i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
