package stac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/italolelis/geofetch/internal/fetch"
	"github.com/italolelis/geofetch/internal/logctx"
	"github.com/italolelis/geofetch/internal/telemetry"
)

const (
	// DefaultBaseURL is the Planetary Computer STAC API root.
	DefaultBaseURL = "https://planetarycomputer.microsoft.com/api/stac/v1"

	// DataAssetKey is the asset holding the raster itself on Planetary
	// Computer DEM collections.
	DataAssetKey = "data"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

	// tokenLeeway is how close to expiry a cached SAS token may get before
	// it is refreshed.
	tokenLeeway = 5 * time.Minute
)

// Config configures the catalog client.
type Config struct {
	// BaseURL is the STAC API root. Defaults to the Planetary Computer.
	BaseURL string
	// SASURL is the SAS token endpoint root. Derived from BaseURL when
	// empty (the Planetary Computer serves it next to the STAC API).
	SASURL string
	// SubscriptionKey is an optional Planetary Computer API key; anonymous
	// access works but is throttled harder.
	SubscriptionKey string
}

// Client talks to a Planetary Computer style STAC catalog: search by
// collection, bounding box and time range, then sign asset hrefs with
// short-lived SAS tokens before download.
type Client struct {
	baseURL         string
	sasURL          string
	subscriptionKey string
	hc              *http.Client
	tel             *telemetry.Telemetry

	mu     sync.Mutex
	tokens map[string]sasToken
}

type sasToken struct {
	token  string
	expiry time.Time
}

func NewClient(cfg Config, hc *http.Client, tel *telemetry.Telemetry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.SASURL == "" {
		cfg.SASURL = strings.TrimSuffix(cfg.BaseURL, "/stac/v1") + "/sas/v1"
	}

	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		sasURL:          strings.TrimRight(cfg.SASURL, "/"),
		subscriptionKey: cfg.SubscriptionKey,
		hc:              hc,
		tel:             tel,
		tokens:          make(map[string]sasToken),
	}
}

// Search queries the catalog and returns every matching item, following
// rel=next pagination links until the result set is exhausted.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]Item, error) {
	logger := logctx.LoggerFromContext(ctx).With("collection", params.Collection)

	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid search parameters: %w", err)
	}

	logger.Info("searching catalog", "bbox", params.BBox, "time_range", params.Datetime)

	var items []Item

	err := c.tel.InstrumentCatalogOperation(ctx, "stac", "search", func(ctx context.Context) error {
		next := c.searchURL(params)

		for next != "" {
			var page searchResponse
			if err := c.getJSON(ctx, next, &page); err != nil {
				return fmt.Errorf("failed to fetch search page: %w", err)
			}

			items = append(items, page.Features...)
			next = nextLink(page.Links)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("items found", "item_count", len(items), "base_url", c.baseURL)

	return items, nil
}

// Descriptors maps items to asset descriptors for the fetcher, signing each
// asset href. Items missing the requested asset key are skipped with a log
// line rather than failing the batch.
func (c *Client) Descriptors(ctx context.Context, items []Item, assetKey string) ([]fetch.AssetDescriptor, error) {
	logger := logctx.LoggerFromContext(ctx)

	if assetKey == "" {
		assetKey = DataAssetKey
	}

	descriptors := make([]fetch.AssetDescriptor, 0, len(items))

	for _, item := range items {
		asset, ok := item.Assets[assetKey]
		if !ok {
			logger.Warn("item has no matching asset, skipping", "item_id", item.ID, "asset_key", assetKey)

			continue
		}

		signed, err := c.SignHref(ctx, item.Collection, asset.Href)
		if err != nil {
			return nil, fmt.Errorf("failed to sign asset href for item %s: %w", item.ID, err)
		}

		descriptors = append(descriptors, fetch.AssetDescriptor{
			ID:              item.ID,
			SourceURL:       signed,
			DestinationPath: fileNameFromHref(asset.Href),
			ExpectedSize:    asset.FileSize,
		})
	}

	return descriptors, nil
}

// SignHref appends a SAS token for the collection to the asset href. Tokens
// are cached per collection until shortly before expiry.
func (c *Client) SignHref(ctx context.Context, collection, href string) (string, error) {
	token, err := c.collectionToken(ctx, collection)
	if err != nil {
		return "", err
	}

	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}

	return href + sep + token, nil
}

func (c *Client) collectionToken(ctx context.Context, collection string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[collection]
	c.mu.Unlock()

	if ok && time.Until(cached.expiry) > tokenLeeway {
		return cached.token, nil
	}

	var payload struct {
		Token  string `json:"token"`
		Expiry string `json:"msft:expiry"`
	}

	err := c.tel.InstrumentCatalogOperation(ctx, "stac", "sign", func(ctx context.Context) error {
		return c.getJSON(ctx, c.sasURL+"/token/"+url.PathEscape(collection), &payload)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch sas token for %s: %w", collection, err)
	}

	tok := sasToken{token: payload.Token}
	if exp, err := time.Parse(time.RFC3339, payload.Expiry); err == nil {
		tok.expiry = exp
	}

	c.mu.Lock()
	c.tokens[collection] = tok
	c.mu.Unlock()

	return tok.token, nil
}

func (c *Client) searchURL(params SearchParams) string {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	bbox := make([]string, len(params.BBox))
	for i, v := range params.BBox {
		bbox[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	q := url.Values{}
	q.Set("collections", params.Collection)
	q.Set("bbox", strings.Join(bbox, ","))
	q.Set("limit", strconv.Itoa(limit))

	if params.Datetime != "" {
		q.Set("datetime", params.Datetime)
	}

	return c.baseURL + "/search?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.subscriptionKey != "" {
		req.Header.Set(subscriptionKeyHeader, c.subscriptionKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func nextLink(links []Link) string {
	for _, l := range links {
		// POST-style next links are not followed; the catalog also serves
		// GET pagination for query-string searches.
		if l.Rel == "next" && (l.Method == "" || l.Method == http.MethodGet) {
			return l.Href
		}
	}

	return ""
}

func fileNameFromHref(href string) string {
	if u, err := url.Parse(href); err == nil {
		return path.Base(u.Path)
	}

	return path.Base(href)
}
