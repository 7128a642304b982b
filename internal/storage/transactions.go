package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tibetswap/analytics-indexer/internal/decode"
)

// InsertTransaction appends an immutable transaction row. A conflict on
// coin_id means a prior, interrupted pass already recorded this spend; it
// is treated as already-applied rather than an error, and reported via the
// returned flag so callers do not re-apply side effects (USD volume).
func (t *Tx) InsertTransaction(ctx context.Context, tr Transaction) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (
			coin_id, pair_launcher_id, operation, height, pair_tx_index,
			state_change_xch, state_change_token, state_change_liquidity,
			new_state_xch, new_state_token, new_state_liquidity,
			usd_volume_applied
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(coin_id) DO NOTHING
	`,
		tr.CoinID, tr.PairLauncherID, string(tr.Operation), tr.Height, tr.PairTxIndex,
		tr.StateChange.Xch, tr.StateChange.Token, tr.StateChange.Liquidity,
		tr.NewState.XchReserve, tr.NewState.TokenReserve, tr.NewState.Liquidity,
		boolToInt(tr.USDVolumeApplied),
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: insert transaction: %w", err)
	}
	return affected > 0, nil
}

// MarkTransactionUSDVolumeApplied flags a transaction as having already
// contributed to its pair's trade_volume_usd, enforcing the "exactly once"
// invariant between the immediate-update and back-fill USD paths.
func (t *Tx) MarkTransactionUSDVolumeApplied(ctx context.Context, coinID string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE transactions SET usd_volume_applied = 1 WHERE coin_id = ?`, coinID)
	if err != nil {
		return fmt.Errorf("storage: mark usd volume applied: %w", err)
	}
	return nil
}

// ListTransactionsForPair returns every transaction of a pair ordered by
// pair_tx_index, used to verify lineage monotonicity and state-change
// consistency.
func (s *Storage) ListTransactionsForPair(ctx context.Context, pairLauncherID string) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelectColumns+` WHERE pair_launcher_id = ? ORDER BY pair_tx_index ASC`, pairLauncherID)
	if err != nil {
		return nil, fmt.Errorf("storage: list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		tr, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

const transactionSelectColumns = `
	SELECT coin_id, pair_launcher_id, operation, height, pair_tx_index,
		state_change_xch, state_change_token, state_change_liquidity,
		new_state_xch, new_state_token, new_state_liquidity,
		usd_volume_applied
	FROM transactions
`

func scanTransactionRow(row rowScanner) (*Transaction, error) {
	var tr Transaction
	var op string
	var usdApplied int
	err := row.Scan(
		&tr.CoinID, &tr.PairLauncherID, &op, &tr.Height, &tr.PairTxIndex,
		&tr.StateChange.Xch, &tr.StateChange.Token, &tr.StateChange.Liquidity,
		&tr.NewState.XchReserve, &tr.NewState.TokenReserve, &tr.NewState.Liquidity,
		&usdApplied,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: scan transaction: %w", err)
	}
	tr.Operation = decode.Operation(op)
	tr.USDVolumeApplied = usdApplied != 0
	return &tr, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
