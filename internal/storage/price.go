package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertPriceBucket records an hourly XCH/USD price bucket. Idempotent on
// from_timestamp: price buckets are immutable once written.
func (t *Tx) InsertPriceBucket(ctx context.Context, fromTimestamp, toTimestamp uint64, priceCents int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO average_usd_price (from_timestamp, to_timestamp, price_cents) VALUES (?, ?, ?)
		ON CONFLICT(from_timestamp) DO NOTHING
	`, fromTimestamp, toTimestamp, priceCents)
	if err != nil {
		return fmt.Errorf("storage: insert price bucket: %w", err)
	}
	return nil
}

// MaxToTimestamp returns the upper bound of the most recently synced price
// bucket, the resume point for the next sync_prices pass.
func (s *Storage) MaxToTimestamp(ctx context.Context) (uint64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MAX(to_timestamp) FROM average_usd_price`)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		return 0, false, fmt.Errorf("storage: max to_timestamp: %w", err)
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return uint64(ts.Int64), true, nil
}

// PriceCentsForTimestamp returns the price_cents of the bucket covering
// timestamp, if any bucket has been synced that far yet.
func (s *Storage) PriceCentsForTimestamp(ctx context.Context, timestamp uint64) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT price_cents FROM average_usd_price
		WHERE from_timestamp <= ? AND to_timestamp > ?
	`, timestamp, timestamp)
	var cents int64
	if err := row.Scan(&cents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("storage: price for timestamp: %w", err)
	}
	return cents, true, nil
}

// PriceCentsForTimestamp is the Tx-scoped variant of the lookup above,
// used by the immediate USD-volume path so the bucket read happens in the
// same snapshot that appends the transaction.
func (t *Tx) PriceCentsForTimestamp(ctx context.Context, timestamp uint64) (int64, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT price_cents FROM average_usd_price
		WHERE from_timestamp <= ? AND to_timestamp > ?
	`, timestamp, timestamp)
	var cents int64
	if err := row.Scan(&cents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("storage: price for timestamp: %w", err)
	}
	return cents, true, nil
}

// PairVolume is one pair's absolute XCH volume summed over SWAP
// transactions whose timestamp falls inside a synced price bucket and
// which have not yet had USD volume applied.
type PairVolume struct {
	PairLauncherID string
	AbsXchVolume   int64
}

// SumUnappliedSwapVolumeInPeriod sums |state_change_xch| for every SWAP
// transaction whose block timestamp lies in [fromTimestamp, toTimestamp)
// and whose usd_volume_applied flag is not yet set, grouped by pair. A
// bucket's price applies to every swap that hasn't already accounted for
// it, whichever path (immediate update or back-fill) gets there first.
func (t *Tx) SumUnappliedSwapVolumeInPeriod(ctx context.Context, fromTimestamp, toTimestamp uint64) ([]PairVolume, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT tr.pair_launcher_id, SUM(ABS(tr.state_change_xch))
		FROM transactions tr
		JOIN height_to_timestamp h ON tr.height = h.height
		WHERE tr.operation = 'SWAP'
			AND tr.usd_volume_applied = 0
			AND h.timestamp >= ? AND h.timestamp < ?
		GROUP BY tr.pair_launcher_id
	`, fromTimestamp, toTimestamp)
	if err != nil {
		return nil, fmt.Errorf("storage: sum unapplied swap volume: %w", err)
	}
	defer rows.Close()

	var out []PairVolume
	for rows.Next() {
		var pv PairVolume
		if err := rows.Scan(&pv.PairLauncherID, &pv.AbsXchVolume); err != nil {
			return nil, fmt.Errorf("storage: scan pair volume: %w", err)
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

// MarkSwapsUSDVolumeAppliedInPeriod flags every SWAP transaction in
// [fromTimestamp, toTimestamp) as having had its USD volume applied, after
// the caller has added that volume to the relevant pairs' trade_volume_usd.
func (t *Tx) MarkSwapsUSDVolumeAppliedInPeriod(ctx context.Context, fromTimestamp, toTimestamp uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET usd_volume_applied = 1
		WHERE coin_id IN (
			SELECT tr.coin_id FROM transactions tr
			JOIN height_to_timestamp h ON tr.height = h.height
			WHERE tr.operation = 'SWAP'
				AND tr.usd_volume_applied = 0
				AND h.timestamp >= ? AND h.timestamp < ?
		)
	`, fromTimestamp, toTimestamp)
	if err != nil {
		return fmt.Errorf("storage: mark swaps usd volume applied: %w", err)
	}
	return nil
}
