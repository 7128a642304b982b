package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertHeightTimestamp records a block height's wall-clock timestamp.
// Idempotent on height: a conflict means this height was already recorded
// by a prior pass.
func (t *Tx) InsertHeightTimestamp(ctx context.Context, height uint32, timestamp uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO height_to_timestamp (height, timestamp) VALUES (?, ?)
		ON CONFLICT(height) DO NOTHING
	`, height, timestamp)
	if err != nil {
		return fmt.Errorf("storage: insert height timestamp: %w", err)
	}
	return nil
}

// GetTimestamp looks up a previously recorded height's timestamp.
func (s *Storage) GetTimestamp(ctx context.Context, height uint32) (uint64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT timestamp FROM height_to_timestamp WHERE height = ?`, height)
	var ts uint64
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("storage: get timestamp: %w", err)
	}
	return ts, true, nil
}

// MinTimestamp returns the earliest recorded block timestamp, used by the
// USD price synchronizer to determine where to start an empty price
// series.
func (s *Storage) MinTimestamp(ctx context.Context) (uint64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp) FROM height_to_timestamp`)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		return 0, false, fmt.Errorf("storage: min timestamp: %w", err)
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return uint64(ts.Int64), true, nil
}
