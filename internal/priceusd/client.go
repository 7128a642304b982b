// Package priceusd maintains the hourly USD/XCH price series and folds it
// into pair trade volumes: a feed client for the upstream historical hourly
// API, and a synchronizer that extends the bucket series and back-fills
// swap USD volume.
package priceusd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// FeedConfig configures the upstream price feed client.
type FeedConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Entry is one hourly candle from the upstream feed. Time is the opening
// timestamp of the hour the candle aggregates.
type Entry struct {
	Time       uint64  `json:"time"`
	Close      float64 `json:"close"`
	VolumeFrom float64 `json:"volumefrom"`
	VolumeTo   float64 `json:"volumeto"`
}

// Client fetches hourly XCH/USD candles from a CryptoCompare-shaped feed.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
}

// NewClient builds a feed client from FeedConfig.
func NewClient(cfg FeedConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     logging.GetDefault().Component("pricefeed"),
	}
}

type feedEnvelope struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []Entry `json:"Data"`
	} `json:"Data"`
}

// FetchHourly returns up to limit+1 hourly candles ending at toTimestamp.
// Transient failures are retried a few times before the error surfaces to
// the synchronizer, which then gives up until the next cycle.
func (c *Client) FetchHourly(ctx context.Context, toTimestamp uint64, limit int) ([]Entry, error) {
	var out []Entry

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, 3), ctx)

	err := backoff.Retry(func() error {
		entries, err := c.fetchOnce(ctx, toTimestamp, limit)
		if err != nil {
			c.log.Debugf("price fetch toTs=%d failed: %v", toTimestamp, err)
			return err
		}
		out = entries
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("priceusd: fetch hourly candles: %w", err)
	}
	return out, nil
}

func (c *Client) fetchOnce(ctx context.Context, toTimestamp uint64, limit int) ([]Entry, error) {
	url := fmt.Sprintf("%s?fsym=XCH&tsym=USD&limit=%d&toTs=%d", c.baseURL, limit, toTimestamp)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope feedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Response != "Success" {
		return nil, fmt.Errorf("feed error: %s", envelope.Message)
	}
	return envelope.Data.Data, nil
}

// PriceCents derives the bucket's USD cents per XCH from a candle: the
// volume-weighted average when both volumes are present, the close price
// otherwise, floor-divided in both cases so totals stay reproducible.
func PriceCents(e Entry) int64 {
	if e.VolumeFrom > 0 && e.VolumeTo > 0 {
		return int64(math.Floor(e.VolumeTo * 100 / e.VolumeFrom))
	}
	return int64(math.Floor(e.Close * 100))
}
