package priceusd

import (
	"context"
	"math/big"

	"github.com/benbjohnson/clock"

	"github.com/tibetswap/analytics-indexer/internal/decode"
	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

const (
	bucketSeconds = 3600

	// settleSeconds skips the most recent quarter hour so the upstream
	// API has settled data for the bucket.
	settleSeconds = 900

	// maxEntriesPerRequest stays under the upstream's 2000-candle cap.
	maxEntriesPerRequest = 1998

	// genesisTimestamp is the TibetSwap v2 launch (May 15th, 2023), the
	// series start before any block timestamp has been indexed.
	genesisTimestamp = 1684130400
)

// mojosPerXCH converts mojo volume to whole-XCH terms for USD math.
var mojosPerXCH = big.NewInt(1_000_000_000_000)

// Feed is the candle source SyncPrices consumes.
type Feed interface {
	FetchHourly(ctx context.Context, toTimestamp uint64, limit int) ([]Entry, error)
}

// Synchronizer extends the hourly price series and applies prices to swap
// volume, guaranteeing each swap contributes to its pair's USD volume
// exactly once across the back-fill and immediate paths.
type Synchronizer struct {
	store *storage.Storage
	feed  Feed
	clk   clock.Clock
	log   *logging.Logger
}

// NewSynchronizer creates a price synchronizer.
func NewSynchronizer(store *storage.Storage, feed Feed, clk clock.Clock) *Synchronizer {
	if clk == nil {
		clk = clock.New()
	}
	return &Synchronizer{
		store: store,
		feed:  feed,
		clk:   clk,
		log:   logging.GetDefault().Component("priceusd"),
	}
}

// SyncPrices extends the price series up to the most recent settled hour,
// committing each bucket together with the USD back-fill it triggers.
// Returns the new series upper bound, or 0 when the upstream feed failed
// and the next cycle should retry.
func (s *Synchronizer) SyncPrices(ctx context.Context) (uint64, error) {
	start, err := s.seriesStart(ctx)
	if err != nil {
		return 0, err
	}

	now := uint64(s.clk.Now().Unix())
	end := (now - settleSeconds) / bucketSeconds * bucketSeconds
	if start >= end {
		return start, nil
	}

	s.log.Info("Syncing prices", "from", start, "to", end)

	current := start
	synced := 0
	for current < end {
		limit := int((end - current) / bucketSeconds)
		if limit > maxEntriesPerRequest {
			limit = maxEntriesPerRequest
		}
		if limit == 0 {
			break
		}
		toTs := current + uint64(limit)*bucketSeconds

		entries, err := s.feed.FetchHourly(ctx, toTs, limit)
		if err != nil {
			s.log.Warn("Price feed unavailable, retrying next cycle", "error", err)
			return 0, nil
		}

		inserted := 0
		for _, e := range entries {
			if e.Time < current || e.Time >= end {
				continue
			}
			if err := s.applyBucket(ctx, e); err != nil {
				return 0, err
			}
			current = e.Time + bucketSeconds
			inserted++
			synced++
		}
		if inserted == 0 {
			s.log.Warn("Price feed returned no new candles", "current", current, "end", end)
			break
		}
	}

	s.log.Info("Price sync complete", "buckets", synced, "through", current)
	return current, nil
}

// seriesStart picks where to extend from: the series' upper bound, else the
// earliest indexed block's hour, else the exchange genesis hour.
func (s *Synchronizer) seriesStart(ctx context.Context) (uint64, error) {
	maxTo, ok, err := s.store.MaxToTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return maxTo, nil
	}

	minTs, ok, err := s.store.MinTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return minTs / bucketSeconds * bucketSeconds, nil
	}
	return genesisTimestamp, nil
}

// applyBucket inserts one price bucket and back-fills USD volume for every
// swap in its window that has not yet been accounted for, as one atomic
// commit.
func (s *Synchronizer) applyBucket(ctx context.Context, e Entry) error {
	from := e.Time
	to := e.Time + bucketSeconds
	cents := PriceCents(e)

	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertPriceBucket(ctx, from, to, cents); err != nil {
			return err
		}

		volumes, err := tx.SumUnappliedSwapVolumeInPeriod(ctx, from, to)
		if err != nil {
			return err
		}
		for _, pv := range volumes {
			usdCents := usdVolumeCents(pv.AbsXchVolume, cents)
			if err := tx.AddTradeVolumeUSD(ctx, pv.PairLauncherID, usdCents); err != nil {
				return err
			}
		}
		return tx.MarkSwapsUSDVolumeAppliedInPeriod(ctx, from, to)
	})
}

// UpdateTransactionUSDVolume applies a freshly persisted swap's USD volume
// immediately when a price bucket already covers its timestamp, within the
// same store transaction that appended it. When no bucket exists yet the
// back-fill path picks the swap up later.
func (s *Synchronizer) UpdateTransactionUSDVolume(ctx context.Context, tx *storage.Tx, tr storage.Transaction, timestamp uint64) error {
	if tr.Operation != decode.OperationSwap {
		return nil
	}

	cents, ok, err := tx.PriceCentsForTimestamp(ctx, timestamp)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	absXch := tr.StateChange.Xch
	if absXch < 0 {
		absXch = -absXch
	}
	if err := tx.AddTradeVolumeUSD(ctx, tr.PairLauncherID, usdVolumeCents(absXch, cents)); err != nil {
		return err
	}
	return tx.MarkTransactionUSDVolumeApplied(ctx, tr.CoinID)
}

// usdVolumeCents converts mojo volume at a cents-per-XCH price to USD
// cents, floor-divided.
func usdVolumeCents(absXchMojos, priceCents int64) *big.Int {
	out := big.NewInt(absXchMojos)
	out.Mul(out, big.NewInt(priceCents))
	return out.Div(out, mojosPerXCH)
}
