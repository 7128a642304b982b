// Package orchestrator runs the periodic synchronization loop: router
// walks, pair walks, timestamp persistence, and price syncing, with one
// atomic store commit per pair pass so a crash at any point restarts
// cleanly from the persisted position.
package orchestrator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/internal/walker"
	"github.com/tibetswap/analytics-indexer/pkg/helpers"
	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// RouterWalker advances a router lineage.
type RouterWalker interface {
	Walk(ctx context.Context, router *storage.Router) (*walker.RouterResult, error)
}

// PairWalker advances a pair lineage.
type PairWalker interface {
	Walk(ctx context.Context, pair *storage.Pair) (*walker.PairResult, error)
}

// PriceSynchronizer extends the USD price series and applies prices to
// freshly persisted swaps.
type PriceSynchronizer interface {
	SyncPrices(ctx context.Context) (uint64, error)
	UpdateTransactionUSDVolume(ctx context.Context, tx *storage.Tx, tr storage.Transaction, timestamp uint64) error
}

// RouterSeed identifies one router variant to bootstrap and track.
type RouterSeed struct {
	Variant    string
	LauncherID string
}

// Config holds the orchestrator's scheduling parameters.
type Config struct {
	Routers []RouterSeed

	IterationInterval    time.Duration
	FailureBackoff       time.Duration
	PriceSyncMinInterval time.Duration
	PriceSyncGracePeriod time.Duration
}

// DefaultConfig returns the cadence the indexer runs with in production.
func DefaultConfig() Config {
	return Config{
		IterationInterval:    60 * time.Second,
		FailureBackoff:       60 * time.Second,
		PriceSyncMinInterval: 300 * time.Second,
		PriceSyncGracePeriod: 900 * time.Second,
	}
}

// Orchestrator is the single writer against the store. It owns the sync
// loop's lifecycle and cadence.
type Orchestrator struct {
	store  *storage.Storage
	router RouterWalker
	pair   PairWalker
	price  PriceSynchronizer
	cfg    Config
	clk    clock.Clock
	log    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lastPriceSync time.Time
}

// New creates an orchestrator. A nil clk selects the real clock.
func New(store *storage.Storage, router RouterWalker, pair PairWalker, price PriceSynchronizer, cfg Config, clk clock.Clock) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:  store,
		router: router,
		pair:   pair,
		price:  price,
		cfg:    cfg,
		clk:    clk,
		log:    logging.GetDefault().Component("orchestrator"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the sync loop in the background.
func (o *Orchestrator) Start() error {
	go o.run()
	o.log.Info("Sync orchestrator started",
		"routers", len(o.cfg.Routers),
		"interval", o.cfg.IterationInterval,
	)
	return nil
}

// Stop signals the loop to exit and waits for the current iteration to
// finish its commit or roll back.
func (o *Orchestrator) Stop() error {
	o.cancel()
	<-o.done
	o.log.Info("Sync orchestrator stopped")
	return nil
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		err := o.RunOnce(o.ctx)

		wait := o.cfg.IterationInterval
		if err != nil {
			if o.ctx.Err() != nil {
				return
			}
			o.log.Error("Sync iteration failed, backing off", "error", err)
			wait = o.cfg.FailureBackoff
		}

		select {
		case <-o.ctx.Done():
			return
		case <-o.clk.After(wait):
		}
	}
}

// RunOnce performs a single synchronization iteration: router walks first
// (new pairs must exist before they can be walked), then pair walks, then
// the price sync when its cadence gate opens.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	iteration := uuid.NewString()[:8]
	log := o.log.With("iteration", iteration)

	if err := o.bootstrapRouters(ctx); err != nil {
		return err
	}

	routers, err := o.store.ListRouters(ctx)
	if err != nil {
		return err
	}
	for _, r := range routers {
		if err := o.syncRouter(ctx, log, r); err != nil {
			return fmt.Errorf("router %s: %w", r.LauncherID, err)
		}
	}

	pairs, err := o.store.ListPairs(ctx)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := o.syncPair(ctx, log, p); err != nil {
			return fmt.Errorf("pair %s: %w", p.LauncherID, err)
		}
	}

	return o.maybeSyncPrices(ctx, log)
}

// bootstrapRouters inserts a router row for each configured variant that
// the store does not know yet, positioned at its launcher coin.
func (o *Orchestrator) bootstrapRouters(ctx context.Context) error {
	for _, seed := range o.cfg.Routers {
		if seed.LauncherID == "" {
			continue
		}
		launcherID, err := normalizeLauncherID(seed.LauncherID)
		if err != nil {
			return err
		}

		_, err = o.store.GetRouter(ctx, launcherID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		o.log.Info("Bootstrapping router", "variant", seed.Variant, "launcher", launcherID)
		err = o.store.WithTx(ctx, func(tx *storage.Tx) error {
			return tx.UpsertRouter(ctx, storage.Router{
				LauncherID:    launcherID,
				Variant:       seed.Variant,
				CurrentCoinID: launcherID,
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) syncRouter(ctx context.Context, log *logging.Logger, r *storage.Router) error {
	res, err := o.router.Walk(ctx, r)
	if err != nil {
		return err
	}
	if res.CurrentCoinID == r.CurrentCoinID && len(res.NewPairs) == 0 {
		return nil
	}

	err = o.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.UpsertRouter(ctx, storage.Router{
			LauncherID:    r.LauncherID,
			Variant:       r.Variant,
			CurrentCoinID: res.CurrentCoinID,
		}); err != nil {
			return err
		}
		for _, p := range res.NewPairs {
			if err := tx.InsertPair(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Router advanced",
		"variant", r.Variant,
		"new_pairs", len(res.NewPairs),
		"current", res.CurrentCoinID,
	)
	return nil
}

// syncPair commits one pair walk's entire outcome as a single atomic unit:
// height rows, transactions, immediate USD updates, and the pair's new
// position.
func (o *Orchestrator) syncPair(ctx context.Context, log *logging.Logger, p *storage.Pair) error {
	res, err := o.pair.Walk(ctx, p)
	if err != nil {
		return err
	}
	if !res.Advanced {
		return nil
	}

	timestamps := make(map[uint32]uint64, len(res.Heights))
	for _, h := range res.Heights {
		timestamps[h.Height] = h.Timestamp
	}

	err = o.store.WithTx(ctx, func(tx *storage.Tx) error {
		for _, h := range res.Heights {
			if err := tx.InsertHeightTimestamp(ctx, h.Height, h.Timestamp); err != nil {
				return err
			}
		}
		for _, tr := range res.Transactions {
			inserted, err := tx.InsertTransaction(ctx, tr)
			if err != nil {
				return err
			}
			if !inserted {
				log.Debug("Transaction already recorded, skipping", "coin", tr.CoinID)
				continue
			}
			if ts, ok := timestamps[tr.Height]; ok {
				if err := o.price.UpdateTransactionUSDVolume(ctx, tx, tr, ts); err != nil {
					return err
				}
			}
		}
		return tx.UpdatePairState(ctx, p.LauncherID, res.CurrentCoinID, res.Reserves, res.LastTxIndex, res.TradeVolumeDelta)
	})
	if err != nil {
		return err
	}

	if len(res.Transactions) > 0 {
		log.Info("Pair advanced",
			"pair", p.ShortName,
			"txs", len(res.Transactions),
			"swap_volume_xch", helpers.MojoToXCH(res.TradeVolumeDelta.Uint64()),
		)
	}
	return nil
}

// maybeSyncPrices runs the price sync when both gates open: enough time
// since the last attempt, and the newest bucket old enough that the
// upstream feed has settled data past it.
func (o *Orchestrator) maybeSyncPrices(ctx context.Context, log *logging.Logger) error {
	now := o.clk.Now()
	if !o.lastPriceSync.IsZero() && now.Sub(o.lastPriceSync) < o.cfg.PriceSyncMinInterval {
		return nil
	}

	maxTo, ok, err := o.store.MaxToTimestamp(ctx)
	if err != nil {
		return err
	}
	if ok && uint64(now.Unix()) < maxTo+uint64(o.cfg.PriceSyncGracePeriod.Seconds()) {
		return nil
	}

	o.lastPriceSync = now
	through, err := o.price.SyncPrices(ctx)
	if err != nil {
		return err
	}
	if through > 0 {
		log.Info("Price series synced", "through", through)
	}
	return nil
}

// normalizeLauncherID canonicalizes a configured launcher id to lowercase
// hex without a 0x prefix, the form every store key uses.
func normalizeLauncherID(s string) (string, error) {
	b, err := helpers.HexToBytes(s)
	if err != nil {
		return "", fmt.Errorf("orchestrator: launcher id %q: %w", s, err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("orchestrator: launcher id %q has %d bytes, want 32", s, len(b))
	}
	return hex.EncodeToString(b), nil
}
