package walker

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// DefaultTimestampRetryInterval bounds each sleep while waiting for a
// block's foliage timestamp to materialize.
const DefaultTimestampRetryInterval = 5 * time.Second

// TimestampResolver maps a block height to its wall-clock timestamp. A
// block's timestamp can briefly be absent right after the block lands;
// the resolver retries until it appears or the context is cancelled.
type TimestampResolver struct {
	node          FullNode
	clk           clock.Clock
	retryInterval time.Duration
	log           *logging.Logger
}

// NewTimestampResolver creates a resolver. retryInterval <= 0 selects the
// default.
func NewTimestampResolver(node FullNode, clk clock.Clock, retryInterval time.Duration) *TimestampResolver {
	if clk == nil {
		clk = clock.New()
	}
	if retryInterval <= 0 {
		retryInterval = DefaultTimestampRetryInterval
	}
	return &TimestampResolver{
		node:          node,
		clk:           clk,
		retryInterval: retryInterval,
		log:           logging.GetDefault().Component("timestamp"),
	}
}

// Resolve returns the timestamp of the block at height, retrying until the
// full node reports a non-zero timestamp. It only fails when ctx is done.
func (r *TimestampResolver) Resolve(ctx context.Context, height uint32) (uint64, error) {
	for {
		br, err := r.node.GetBlockRecordByHeight(ctx, height)
		switch {
		case err != nil:
			r.log.Debugf("block record at height %d unavailable, retrying: %v", height, err)
		case br.Timestamp == 0:
			r.log.Debugf("block at height %d has no timestamp yet, retrying", height)
		default:
			return br.Timestamp, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.clk.After(r.retryInterval):
		}
	}
}
