package orchestrator

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tibetswap/analytics-indexer/internal/decode"
	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/internal/walker"
)

var routerLauncher = strings.Repeat("aa", 32)

// fakeRouterWalker replays a scripted sequence of results, then reports no
// further advance, the way a real walker behaves once the lineage tip is
// unspent.
type fakeRouterWalker struct {
	queue []*walker.RouterResult
}

func (f *fakeRouterWalker) Walk(_ context.Context, r *storage.Router) (*walker.RouterResult, error) {
	if len(f.queue) == 0 {
		return &walker.RouterResult{CurrentCoinID: r.CurrentCoinID}, nil
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res, nil
}

type fakePairWalker struct {
	queue []*walker.PairResult
}

func (f *fakePairWalker) Walk(_ context.Context, p *storage.Pair) (*walker.PairResult, error) {
	if len(f.queue) == 0 {
		return &walker.PairResult{
			CurrentCoinID:    p.CurrentCoinID,
			LastTxIndex:      p.LastTxIndex,
			TradeVolumeDelta: big.NewInt(0),
		}, nil
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res, nil
}

type fakePrice struct {
	syncCalls int
	immediate int
}

func (f *fakePrice) SyncPrices(context.Context) (uint64, error) {
	f.syncCalls++
	return 0, nil
}

func (f *fakePrice) UpdateTransactionUSDVolume(context.Context, *storage.Tx, storage.Transaction, uint64) error {
	f.immediate++
	return nil
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunOnceBootstrapsRouter(t *testing.T) {
	store := newTestStore(t)
	cfg := DefaultConfig()
	cfg.Routers = []RouterSeed{{Variant: "standard", LauncherID: "0x" + routerLauncher}}

	o := New(store, &fakeRouterWalker{}, &fakePairWalker{}, &fakePrice{}, cfg, clock.NewMock())
	if err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	r, err := store.GetRouter(context.Background(), routerLauncher)
	if err != nil {
		t.Fatalf("router not bootstrapped: %v", err)
	}
	if r.CurrentCoinID != routerLauncher {
		t.Errorf("router current = %s, want the launcher itself", r.CurrentCoinID)
	}
	if r.Variant != "standard" {
		t.Errorf("router variant = %s", r.Variant)
	}

	pairs, err := store.ListPairs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Errorf("got %d pairs on empty bootstrap, want 0", len(pairs))
	}
}

func TestRunOnceFullPassAndIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Routers = []RouterSeed{{Variant: "standard", LauncherID: routerLauncher}}

	newPair := storage.Pair{
		LauncherID:       "pair-1",
		RouterLauncherID: routerLauncher,
		AssetID:          strings.Repeat("bb", 32),
		Name:             "CAT 0xbbbbbbbb",
		ShortName:        "???",
		ImageURL:         "https://tibetswap.io/unknown-token.png",
		CurrentCoinID:    "pair-1",
		TradeVolume:      big.NewInt(0),
		TradeVolumeUSD:   big.NewInt(0),
		LastTxIndex:      -1,
	}

	routerFake := &fakeRouterWalker{queue: []*walker.RouterResult{{
		CurrentCoinID: "router-coin-2",
		NewPairs:      []storage.Pair{newPair},
	}}}

	pairFake := &fakePairWalker{queue: []*walker.PairResult{{
		CurrentCoinID: "pair-coin-2",
		Reserves:      decode.ReserveState{XchReserve: 1100, TokenReserve: 1818, Liquidity: 1414},
		LastTxIndex:   0,
		Transactions: []storage.Transaction{{
			CoinID:         "pair-coin-1",
			PairLauncherID: "pair-1",
			Operation:      decode.OperationSwap,
			Height:         20,
			PairTxIndex:    0,
			StateChange:    decode.StateChange{Xch: 100, Token: -182, Liquidity: 0},
			NewState:       decode.ReserveState{XchReserve: 1100, TokenReserve: 1818, Liquidity: 1414},
		}},
		Heights:          []walker.HeightTimestamp{{Height: 20, Timestamp: 1700000400}},
		TradeVolumeDelta: big.NewInt(100),
		Advanced:         true,
	}}}

	price := &fakePrice{}
	o := New(store, routerFake, pairFake, price, cfg, clock.NewMock())

	if err := o.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	// The router walk runs before the pair walks, so the pair discovered
	// this iteration was also walked this iteration.
	r, err := store.GetRouter(ctx, routerLauncher)
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentCoinID != "router-coin-2" {
		t.Errorf("router current = %s, want router-coin-2", r.CurrentCoinID)
	}

	pair, err := store.GetPair(ctx, "pair-1")
	if err != nil {
		t.Fatal(err)
	}
	if pair.CurrentCoinID != "pair-coin-2" {
		t.Errorf("pair current = %s, want pair-coin-2", pair.CurrentCoinID)
	}
	if pair.XchReserve != 1100 || pair.TokenReserve != 1818 || pair.Liquidity != 1414 {
		t.Errorf("pair reserves = %d/%d/%d", pair.XchReserve, pair.TokenReserve, pair.Liquidity)
	}
	if pair.TradeVolume.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("trade volume = %s, want 100", pair.TradeVolume)
	}
	if pair.LastTxIndex != 0 {
		t.Errorf("last tx index = %d, want 0", pair.LastTxIndex)
	}

	txs, err := store.ListTransactionsForPair(ctx, "pair-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Operation != decode.OperationSwap {
		t.Fatalf("transactions = %+v", txs)
	}

	ts, ok, err := store.GetTimestamp(ctx, 20)
	if err != nil || !ok || ts != 1700000400 {
		t.Errorf("height 20 timestamp = %d ok=%v err=%v", ts, ok, err)
	}

	if price.immediate != 1 {
		t.Errorf("immediate USD updates = %d, want 1", price.immediate)
	}

	// Second iteration with nothing new on chain: the store must not
	// change.
	if err := o.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce error: %v", err)
	}

	pair2, _ := store.GetPair(ctx, "pair-1")
	if pair2.TradeVolume.Cmp(pair.TradeVolume) != 0 || pair2.LastTxIndex != pair.LastTxIndex {
		t.Errorf("second pass mutated the pair: %+v", pair2)
	}
	txs2, _ := store.ListTransactionsForPair(ctx, "pair-1")
	if len(txs2) != 1 {
		t.Errorf("second pass duplicated transactions: %d rows", len(txs2))
	}
	if price.immediate != 1 {
		t.Errorf("second pass re-applied USD volume: %d calls", price.immediate)
	}
}

func TestPriceSyncCadenceGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	price := &fakePrice{}
	clk := clock.NewMock()
	clk.Set(time.Unix(1700000000, 0))

	o := New(store, &fakeRouterWalker{}, &fakePairWalker{}, price, cfg, clk)

	if err := o.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if price.syncCalls != 1 {
		t.Fatalf("sync calls = %d, want 1", price.syncCalls)
	}

	// Within the minimum interval: gated off.
	clk.Add(60 * time.Second)
	if err := o.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if price.syncCalls != 1 {
		t.Errorf("sync calls = %d, want still 1", price.syncCalls)
	}

	// Past the minimum interval: runs again.
	clk.Add(300 * time.Second)
	if err := o.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if price.syncCalls != 2 {
		t.Errorf("sync calls = %d, want 2", price.syncCalls)
	}
}

func TestPriceSyncGracePeriodGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A bucket whose end is too recent for the feed to have settled the
	// next hour keeps the price sync gated off.
	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertPriceBucket(ctx, 1699996800, 1700000400, 3000)
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	price := &fakePrice{}
	clk := clock.NewMock()
	clk.Set(time.Unix(1700000400+600, 0))

	o := New(store, &fakeRouterWalker{}, &fakePairWalker{}, price, cfg, clk)
	if err := o.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if price.syncCalls != 0 {
		t.Errorf("sync calls = %d, want 0 inside the grace period", price.syncCalls)
	}

	clk.Add(10 * time.Minute)
	if err := o.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if price.syncCalls != 1 {
		t.Errorf("sync calls = %d, want 1 after the grace period", price.syncCalls)
	}
}

func TestStartStop(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultConfig()
	cfg.IterationInterval = time.Hour

	o := New(store, &fakeRouterWalker{}, &fakePairWalker{}, &fakePrice{}, cfg, clock.New())
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	if err := o.Stop(); err != nil {
		t.Fatal(err)
	}
}
