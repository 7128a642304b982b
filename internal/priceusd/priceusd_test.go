package priceusd

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tibetswap/analytics-indexer/internal/decode"
	"github.com/tibetswap/analytics-indexer/internal/storage"
)

func TestPriceCents(t *testing.T) {
	cases := []struct {
		entry Entry
		want  int64
	}{
		// Volume-weighted: floor(30 * 100 / 1) = 3000 cents.
		{Entry{VolumeFrom: 1, VolumeTo: 30}, 3000},
		// Floor division: floor(100 * 100 / 3) = 3333.
		{Entry{VolumeFrom: 3, VolumeTo: 100}, 3333},
		// Close fallback when either volume is zero.
		{Entry{Close: 29.99}, 2999},
		{Entry{Close: 29.99, VolumeFrom: 5}, 2999},
	}
	for _, c := range cases {
		if got := PriceCents(c.entry); got != c.want {
			t.Errorf("PriceCents(%+v) = %d, want %d", c.entry, got, c.want)
		}
	}
}

type fakeFeed struct {
	entries []Entry
	fail    bool
	calls   int
}

func (f *fakeFeed) FetchHourly(_ context.Context, _ uint64, _ int) ([]Entry, error) {
	f.calls++
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	return f.entries, nil
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

func seedPair(t *testing.T, store *storage.Storage, launcherID string) {
	t.Helper()
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertPair(ctx, storage.Pair{
			LauncherID:       launcherID,
			RouterLauncherID: "router",
			AssetID:          "asset-" + launcherID,
			Name:             "Test Token",
			ShortName:        "TT",
			ImageURL:         "https://example.invalid/t.png",
			CurrentCoinID:    launcherID,
			LastTxIndex:      -1,
		})
	})
	if err != nil {
		t.Fatalf("seed pair: %v", err)
	}
}

func seedSwap(t *testing.T, store *storage.Storage, coinID, pairID string, height uint32, timestamp uint64, xchDelta int64) {
	t.Helper()
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertHeightTimestamp(ctx, height, timestamp); err != nil {
			return err
		}
		_, err := tx.InsertTransaction(ctx, storage.Transaction{
			CoinID:         coinID,
			PairLauncherID: pairID,
			Operation:      decode.OperationSwap,
			Height:         height,
			PairTxIndex:    0,
			StateChange:    decode.StateChange{Xch: xchDelta, Token: -1, Liquidity: 0},
			NewState:       decode.ReserveState{XchReserve: 1000, TokenReserve: 1000, Liquidity: 100},
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed swap: %v", err)
	}
}

func TestSyncPricesBackfillsSwapVolume(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const bucketStart = uint64(1700000400)

	seedPair(t, store, "pair-a")
	seedPair(t, store, "pair-b")
	// 100 mojos at $30.00/XCH floors to 0 cents; a full XCH yields 3000.
	seedSwap(t, store, "coin-a", "pair-a", 20, bucketStart+60, 100)
	seedSwap(t, store, "coin-b", "pair-b", 21, bucketStart+120, 1_000_000_000_000)

	feed := &fakeFeed{entries: []Entry{{Time: bucketStart, VolumeFrom: 1, VolumeTo: 30}}}
	clk := clock.NewMock()
	clk.Set(time.Unix(int64(bucketStart)+9600, 0))

	s := NewSynchronizer(store, feed, clk)
	through, err := s.SyncPrices(ctx)
	if err != nil {
		t.Fatalf("SyncPrices error: %v", err)
	}
	if through != bucketStart+3600 {
		t.Errorf("synced through %d, want %d", through, bucketStart+3600)
	}

	cents, ok, err := store.PriceCentsForTimestamp(ctx, bucketStart+60)
	if err != nil || !ok {
		t.Fatalf("bucket lookup: cents=%d ok=%v err=%v", cents, ok, err)
	}
	if cents != 3000 {
		t.Errorf("price cents = %d, want 3000", cents)
	}

	pairA, err := store.GetPair(ctx, "pair-a")
	if err != nil {
		t.Fatal(err)
	}
	if pairA.TradeVolumeUSD.Sign() != 0 {
		t.Errorf("pair-a USD volume = %s, want 0", pairA.TradeVolumeUSD)
	}

	pairB, err := store.GetPair(ctx, "pair-b")
	if err != nil {
		t.Fatal(err)
	}
	if pairB.TradeVolumeUSD.Cmp(big.NewInt(3000)) != 0 {
		t.Errorf("pair-b USD volume = %s, want 3000", pairB.TradeVolumeUSD)
	}

	// Both swaps are now accounted for, including the zero-cent one.
	for _, pairID := range []string{"pair-a", "pair-b"} {
		txs, err := store.ListTransactionsForPair(ctx, pairID)
		if err != nil {
			t.Fatal(err)
		}
		if len(txs) != 1 || !txs[0].USDVolumeApplied {
			t.Errorf("%s transactions not marked applied: %+v", pairID, txs)
		}
	}

	// A second pass finds nothing to do and changes nothing.
	through2, err := s.SyncPrices(ctx)
	if err != nil {
		t.Fatalf("second SyncPrices error: %v", err)
	}
	if through2 != through {
		t.Errorf("second pass moved the series to %d", through2)
	}
	pairB2, _ := store.GetPair(ctx, "pair-b")
	if pairB2.TradeVolumeUSD.Cmp(pairB.TradeVolumeUSD) != 0 {
		t.Errorf("second pass changed pair-b USD volume to %s", pairB2.TradeVolumeUSD)
	}
}

func TestSyncPricesFeedFailureRetriesNextCycle(t *testing.T) {
	store := newTestStore(t)
	seedPair(t, store, "pair-a")
	seedSwap(t, store, "coin-a", "pair-a", 20, 1700000460, 100)

	feed := &fakeFeed{fail: true}
	clk := clock.NewMock()
	clk.Set(time.Unix(1700010000, 0))

	s := NewSynchronizer(store, feed, clk)
	through, err := s.SyncPrices(context.Background())
	if err != nil {
		t.Fatalf("SyncPrices error: %v", err)
	}
	if through != 0 {
		t.Errorf("got %d, want 0 to signal retry next cycle", through)
	}
}

func TestSyncPricesNothingToDo(t *testing.T) {
	store := newTestStore(t)

	feed := &fakeFeed{}
	clk := clock.NewMock()
	// Just after the genesis hour: the settled window has not moved past
	// the series start yet.
	clk.Set(time.Unix(1684130400+900, 0))

	s := NewSynchronizer(store, feed, clk)
	through, err := s.SyncPrices(context.Background())
	if err != nil {
		t.Fatalf("SyncPrices error: %v", err)
	}
	if through != 1684130400 {
		t.Errorf("got %d, want genesis start", through)
	}
	if feed.calls != 0 {
		t.Errorf("feed called %d times, want 0", feed.calls)
	}
}

func TestUpdateTransactionUSDVolumeImmediate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const bucketStart = uint64(1700000400)
	seedPair(t, store, "pair-a")

	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertPriceBucket(ctx, bucketStart, bucketStart+3600, 3000)
	})
	if err != nil {
		t.Fatal(err)
	}

	s := NewSynchronizer(store, &fakeFeed{}, clock.NewMock())

	tr := storage.Transaction{
		CoinID:         "coin-a",
		PairLauncherID: "pair-a",
		Operation:      decode.OperationSwap,
		Height:         20,
		PairTxIndex:    0,
		StateChange:    decode.StateChange{Xch: -1_000_000_000_000, Token: 5, Liquidity: 0},
		NewState:       decode.ReserveState{XchReserve: 1, TokenReserve: 1, Liquidity: 1},
	}
	err = store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertHeightTimestamp(ctx, 20, bucketStart+60); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, tr); err != nil {
			return err
		}
		return s.UpdateTransactionUSDVolume(ctx, tx, tr, bucketStart+60)
	})
	if err != nil {
		t.Fatalf("immediate update: %v", err)
	}

	pair, err := store.GetPair(ctx, "pair-a")
	if err != nil {
		t.Fatal(err)
	}
	if pair.TradeVolumeUSD.Cmp(big.NewInt(3000)) != 0 {
		t.Errorf("USD volume = %s, want 3000", pair.TradeVolumeUSD)
	}

	// The swap is marked applied, so a later back-fill over the same
	// window finds nothing.
	err = store.WithTx(ctx, func(tx *storage.Tx) error {
		volumes, err := tx.SumUnappliedSwapVolumeInPeriod(ctx, bucketStart, bucketStart+3600)
		if err != nil {
			return err
		}
		if len(volumes) != 0 {
			t.Errorf("unapplied volumes after immediate update: %+v", volumes)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUpdateTransactionUSDVolumeNoBucketYet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedPair(t, store, "pair-a")

	s := NewSynchronizer(store, &fakeFeed{}, clock.NewMock())
	tr := storage.Transaction{
		CoinID:         "coin-a",
		PairLauncherID: "pair-a",
		Operation:      decode.OperationSwap,
		StateChange:    decode.StateChange{Xch: 100},
	}
	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		return s.UpdateTransactionUSDVolume(ctx, tx, tr, 1700000460)
	})
	if err != nil {
		t.Fatalf("expected skip, got %v", err)
	}

	pair, _ := store.GetPair(ctx, "pair-a")
	if pair.TradeVolumeUSD.Sign() != 0 {
		t.Errorf("USD volume = %s, want 0", pair.TradeVolumeUSD)
	}
}
