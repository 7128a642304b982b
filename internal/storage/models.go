package storage

import (
	"math/big"

	"github.com/tibetswap/analytics-indexer/internal/decode"
)

// Router is one router singleton's persisted lineage position.
type Router struct {
	LauncherID    string
	Variant       string
	CurrentCoinID string
}

// Pair is one AMM pool's persisted state.
type Pair struct {
	LauncherID       string
	RouterLauncherID string
	AssetID          string
	Name             string
	ShortName        string
	ImageURL         string
	CurrentCoinID    string
	XchReserve       int64
	TokenReserve     int64
	Liquidity        int64
	TradeVolume      *big.Int
	TradeVolumeUSD   *big.Int
	LastTxIndex      int64
}

// Transaction is one immutable pair-spend event.
type Transaction struct {
	CoinID           string
	PairLauncherID   string
	Operation        decode.Operation
	Height           uint32
	PairTxIndex      int64
	StateChange      decode.StateChange
	NewState         decode.ReserveState
	USDVolumeApplied bool
}
