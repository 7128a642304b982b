package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that found no matching row.
var ErrNotFound = errors.New("storage: not found")

// UpsertRouter inserts a router row on first bootstrap, or idempotently
// re-applies its current_coin_id advance on retry after a crash. Router
// rows are identified by launcher_id and never change variant once
// created.
func (t *Tx) UpsertRouter(ctx context.Context, r Router) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO routers (launcher_id, variant, current_coin_id)
		VALUES (?, ?, ?)
		ON CONFLICT(launcher_id) DO UPDATE SET current_coin_id = excluded.current_coin_id
	`, r.LauncherID, r.Variant, r.CurrentCoinID)
	if err != nil {
		return fmt.Errorf("storage: upsert router: %w", err)
	}
	return nil
}

// GetRouter reads a router's persisted position outside of a transaction.
func (s *Storage) GetRouter(ctx context.Context, launcherID string) (*Router, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT launcher_id, variant, current_coin_id FROM routers WHERE launcher_id = ?
	`, launcherID)

	var r Router
	if err := row.Scan(&r.LauncherID, &r.Variant, &r.CurrentCoinID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get router: %w", err)
	}
	return &r, nil
}

// ListRouters returns every known router row.
func (s *Storage) ListRouters(ctx context.Context) ([]*Router, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT launcher_id, variant, current_coin_id FROM routers`)
	if err != nil {
		return nil, fmt.Errorf("storage: list routers: %w", err)
	}
	defer rows.Close()

	var out []*Router
	for rows.Next() {
		var r Router
		if err := rows.Scan(&r.LauncherID, &r.Variant, &r.CurrentCoinID); err != nil {
			return nil, fmt.Errorf("storage: scan router: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
