// Package metadata fetches human-facing asset metadata (display name,
// short code, image) for a newly discovered pair's token. The upstream
// service is best-effort: any failure or "not found" response falls back
// to a deterministic placeholder derived from the asset id.
package metadata

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

// Config configures the asset-metadata HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a thin best-effort HTTP client for the asset-metadata service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// New builds a Client from Config.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logging.GetDefault().Component("metadata"),
	}
}

// Info is the subset of asset metadata the indexer persists on a Pair row.
type Info struct {
	Name      string
	ShortName string
	ImageURL  string
}

type apiResponse struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	URI   string `json:"nft_uri"`
	Error string `json:"error"`
}

// Fetch retrieves metadata for a token's asset id (the CAT tail hash,
// hex-encoded without a 0x prefix). On any transport error, non-2xx
// status, or an {"error": ...} response body, it returns placeholder
// defaults rather than an error: a failed metadata lookup must never
// block a new pair from being recorded.
func (c *Client) Fetch(ctx context.Context, assetID [32]byte) Info {
	info, err := c.fetch(ctx, assetID)
	if err != nil {
		c.logger.Debugf("metadata lookup for %x failed, using placeholder: %v", assetID, err)
		return placeholder(assetID)
	}
	return info
}

func (c *Client) fetch(ctx context.Context, assetID [32]byte) (Info, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, hex.EncodeToString(assetID[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("metadata: unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, fmt.Errorf("metadata: decode response: %w", err)
	}
	if body.Error != "" {
		return Info{}, fmt.Errorf("metadata: %s", body.Error)
	}
	if body.Name == "" {
		return Info{}, fmt.Errorf("metadata: empty name in response")
	}

	return Info{Name: body.Name, ShortName: body.Code, ImageURL: body.URI}, nil
}

// placeholder builds the deterministic default metadata used when the
// asset-metadata service has nothing for this asset.
func placeholder(assetID [32]byte) Info {
	return Info{
		Name:      fmt.Sprintf("CAT 0x%s", hex.EncodeToString(assetID[:4])),
		ShortName: "???",
		ImageURL:  "https://tibetswap.io/unknown-token.png",
	}
}
