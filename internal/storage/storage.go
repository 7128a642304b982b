// Package storage provides persistent storage for the indexer using
// SQLite, the store of record for routers, pairs, transactions, block
// timestamps, and USD price buckets.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the analytics indexer.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance, creating the data directory and the
// database file if they do not already exist.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "indexer.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer; the orchestrator is the only writer
	// and the query layer (out of scope) reads from independent snapshots.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Router: one row per market variant, advancing current_coin_id
	-- monotonically along the router singleton's lineage.
	CREATE TABLE IF NOT EXISTS routers (
		launcher_id TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		current_coin_id TEXT NOT NULL
	);

	-- Pair: one row per AMM pool, created once by the router walker and
	-- mutated by the pair walker and the USD back-fill pass.
	CREATE TABLE IF NOT EXISTS pairs (
		launcher_id TEXT PRIMARY KEY,
		router_launcher_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		name TEXT NOT NULL,
		short_name TEXT NOT NULL,
		image_url TEXT NOT NULL,
		current_coin_id TEXT NOT NULL,
		xch_reserve INTEGER NOT NULL DEFAULT 0,
		token_reserve INTEGER NOT NULL DEFAULT 0,
		liquidity INTEGER NOT NULL DEFAULT 0,
		trade_volume TEXT NOT NULL DEFAULT '0',
		trade_volume_usd TEXT NOT NULL DEFAULT '0',
		last_tx_index INTEGER NOT NULL DEFAULT -1,

		FOREIGN KEY (router_launcher_id) REFERENCES routers(launcher_id)
	);

	CREATE INDEX IF NOT EXISTS idx_pairs_router ON pairs(router_launcher_id);
	CREATE INDEX IF NOT EXISTS idx_pairs_asset ON pairs(asset_id);

	-- Transaction: one row per pair spend, immutable once inserted.
	CREATE TABLE IF NOT EXISTS transactions (
		coin_id TEXT PRIMARY KEY,
		pair_launcher_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		height INTEGER NOT NULL,
		pair_tx_index INTEGER NOT NULL,

		state_change_xch INTEGER NOT NULL,
		state_change_token INTEGER NOT NULL,
		state_change_liquidity INTEGER NOT NULL,

		new_state_xch INTEGER NOT NULL,
		new_state_token INTEGER NOT NULL,
		new_state_liquidity INTEGER NOT NULL,

		usd_volume_applied INTEGER NOT NULL DEFAULT 0,

		FOREIGN KEY (pair_launcher_id) REFERENCES pairs(launcher_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_pair ON transactions(pair_launcher_id, pair_tx_index);
	CREATE INDEX IF NOT EXISTS idx_transactions_height ON transactions(height);

	-- HeightToTimestamp: one row per observed block height, immutable.
	CREATE TABLE IF NOT EXISTS height_to_timestamp (
		height INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_height_timestamp ON height_to_timestamp(timestamp);

	-- AverageUsdPrice: contiguous, disjoint hourly XCH/USD price buckets.
	CREATE TABLE IF NOT EXISTS average_usd_price (
		from_timestamp INTEGER PRIMARY KEY,
		to_timestamp INTEGER NOT NULL,
		price_cents INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations runs schema migrations for existing databases. These are
// ALTER TABLE statements guarding additive changes; errors are ignored
// since the column may already exist.
func (s *Storage) runMigrations() error {
	migrations := []string{
		"ALTER TABLE transactions ADD COLUMN usd_volume_applied INTEGER NOT NULL DEFAULT 0",
	}

	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}

	return nil
}

// Tx is a single atomic unit of work against the store. Every write method
// on Tx participates in the same underlying *sql.Tx; callers commit or
// roll back through WithTx.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single SQLite transaction, committing on success
// and rolling back if fn returns an error. All mutations from one sync
// pass go through a single WithTx call so a crash never leaves partial
// state behind.
func (s *Storage) WithTx(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}

	t := &Tx{tx: sqlTx}

	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("storage: rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("storage: commit transaction: %w", err)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
