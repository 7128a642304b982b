package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/tibetswap/analytics-indexer/internal/decode"
)

// InsertPair creates a fresh pair row when the router walker discovers a
// new pair launcher deployment. Pair identity is permanent once assigned,
// so a conflict here means this pair was already recorded by a prior,
// interrupted pass; it is treated as already-applied.
func (t *Tx) InsertPair(ctx context.Context, p Pair) error {
	tradeVolume := p.TradeVolume
	if tradeVolume == nil {
		tradeVolume = big.NewInt(0)
	}
	tradeVolumeUSD := p.TradeVolumeUSD
	if tradeVolumeUSD == nil {
		tradeVolumeUSD = big.NewInt(0)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pairs (
			launcher_id, router_launcher_id, asset_id, name, short_name, image_url,
			current_coin_id, xch_reserve, token_reserve, liquidity,
			trade_volume, trade_volume_usd, last_tx_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(launcher_id) DO NOTHING
	`,
		p.LauncherID, p.RouterLauncherID, p.AssetID, p.Name, p.ShortName, p.ImageURL,
		p.CurrentCoinID, p.XchReserve, p.TokenReserve, p.Liquidity,
		tradeVolume.Text(10), tradeVolumeUSD.Text(10), p.LastTxIndex,
	)
	if err != nil {
		return fmt.Errorf("storage: insert pair: %w", err)
	}
	return nil
}

// UpdatePairState applies the pair walker's end-of-pass result: the new
// lineage position, the final reserves, the incremented last_tx_index, and
// the trade_volume delta accrued by this pass's SWAPs.
func (t *Tx) UpdatePairState(ctx context.Context, launcherID, currentCoinID string, reserves decode.ReserveState, lastTxIndex int64, tradeVolumeDelta *big.Int) error {
	if tradeVolumeDelta == nil || tradeVolumeDelta.Sign() == 0 {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE pairs SET current_coin_id = ?, xch_reserve = ?, token_reserve = ?,
				liquidity = ?, last_tx_index = ?
			WHERE launcher_id = ?
		`, currentCoinID, reserves.XchReserve, reserves.TokenReserve, reserves.Liquidity, lastTxIndex, launcherID)
		if err != nil {
			return fmt.Errorf("storage: update pair state: %w", err)
		}
		return nil
	}

	current, err := t.tradeVolume(ctx, launcherID)
	if err != nil {
		return err
	}
	newVolume := new(big.Int).Add(current, tradeVolumeDelta)

	_, err = t.tx.ExecContext(ctx, `
		UPDATE pairs SET current_coin_id = ?, xch_reserve = ?, token_reserve = ?,
			liquidity = ?, last_tx_index = ?, trade_volume = ?
		WHERE launcher_id = ?
	`, currentCoinID, reserves.XchReserve, reserves.TokenReserve, reserves.Liquidity, lastTxIndex, newVolume.Text(10), launcherID)
	if err != nil {
		return fmt.Errorf("storage: update pair state: %w", err)
	}
	return nil
}

// AddTradeVolumeUSD adds deltaCents to a pair's cumulative trade_volume_usd,
// used by both the immediate-update and back-fill USD paths.
func (t *Tx) AddTradeVolumeUSD(ctx context.Context, launcherID string, deltaCents *big.Int) error {
	if deltaCents == nil || deltaCents.Sign() == 0 {
		return nil
	}

	row := t.tx.QueryRowContext(ctx, `SELECT trade_volume_usd FROM pairs WHERE launcher_id = ?`, launcherID)
	var current string
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: read trade_volume_usd: %w", err)
	}
	currentValue, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return fmt.Errorf("storage: malformed trade_volume_usd %q for pair %s", current, launcherID)
	}
	newValue := new(big.Int).Add(currentValue, deltaCents)

	_, err := t.tx.ExecContext(ctx, `UPDATE pairs SET trade_volume_usd = ? WHERE launcher_id = ?`, newValue.Text(10), launcherID)
	if err != nil {
		return fmt.Errorf("storage: update trade_volume_usd: %w", err)
	}
	return nil
}

func (t *Tx) tradeVolume(ctx context.Context, launcherID string) (*big.Int, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT trade_volume FROM pairs WHERE launcher_id = ?`, launcherID)
	var current string
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read trade_volume: %w", err)
	}
	value, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return nil, fmt.Errorf("storage: malformed trade_volume %q for pair %s", current, launcherID)
	}
	return value, nil
}

// GetPair reads a single pair row outside of a transaction.
func (s *Storage) GetPair(ctx context.Context, launcherID string) (*Pair, error) {
	row := s.db.QueryRowContext(ctx, pairSelectColumns+` WHERE launcher_id = ?`, launcherID)
	return scanPair(row)
}

// ListPairs returns every known pair row, used by the orchestrator to walk
// each pair in turn.
func (s *Storage) ListPairs(ctx context.Context) ([]*Pair, error) {
	rows, err := s.db.QueryContext(ctx, pairSelectColumns)
	if err != nil {
		return nil, fmt.Errorf("storage: list pairs: %w", err)
	}
	defer rows.Close()

	var out []*Pair
	for rows.Next() {
		p, err := scanPairRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const pairSelectColumns = `
	SELECT launcher_id, router_launcher_id, asset_id, name, short_name, image_url,
		current_coin_id, xch_reserve, token_reserve, liquidity,
		trade_volume, trade_volume_usd, last_tx_index
	FROM pairs
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(row *sql.Row) (*Pair, error) {
	return scanPairRow(row)
}

func scanPairRow(row rowScanner) (*Pair, error) {
	var p Pair
	var tradeVolume, tradeVolumeUSD string
	err := row.Scan(
		&p.LauncherID, &p.RouterLauncherID, &p.AssetID, &p.Name, &p.ShortName, &p.ImageURL,
		&p.CurrentCoinID, &p.XchReserve, &p.TokenReserve, &p.Liquidity,
		&tradeVolume, &tradeVolumeUSD, &p.LastTxIndex,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: scan pair: %w", err)
	}

	var ok bool
	p.TradeVolume, ok = new(big.Int).SetString(tradeVolume, 10)
	if !ok {
		return nil, fmt.Errorf("storage: malformed trade_volume %q for pair %s", tradeVolume, p.LauncherID)
	}
	p.TradeVolumeUSD, ok = new(big.Int).SetString(tradeVolumeUSD, 10)
	if !ok {
		return nil, fmt.Errorf("storage: malformed trade_volume_usd %q for pair %s", tradeVolumeUSD, p.LauncherID)
	}
	return &p, nil
}
