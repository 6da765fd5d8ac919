package copernicus

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/italolelis/geofetch/internal/fetch"
	"github.com/italolelis/geofetch/internal/logctx"
	"github.com/italolelis/geofetch/internal/stac"
	"github.com/italolelis/geofetch/internal/telemetry"
	"github.com/venicegeo/geojson-go/geojson"
)

// Copernicus GLO DEM tiles are published as public COGs on S3, one tile per
// integer degree of latitude and longitude, named after the SW corner.
const (
	Collection90m = "copernicus-dem-90m"
	Collection30m = "copernicus-dem-30m"
)

// Config configures the tile client.
type Config struct {
	Collection string
	// BaseURL overrides the public tile bucket endpoint, used in tests.
	// Defaults to https://{collection}.s3.amazonaws.com.
	BaseURL string
}

// Client resolves a bounding box into downloadable Copernicus DEM tiles.
// There is no search API for these collections; the tile grid is derived
// from the bbox and missing tiles are pruned with existence probes.
type Client struct {
	collection string
	arcsecond  string
	baseURL    string
	hc         *http.Client
	tel        *telemetry.Telemetry
}

// IsCopernicusCollection reports whether a collection name belongs to the
// Copernicus DEM tile grid rather than a STAC catalog.
func IsCopernicusCollection(collection string) bool {
	return collection == Collection90m || collection == Collection30m
}

func NewClient(cfg Config, hc *http.Client, tel *telemetry.Telemetry) (*Client, error) {
	if !IsCopernicusCollection(cfg.Collection) {
		return nil, fmt.Errorf("invalid collection %q: must be one of %s, %s", cfg.Collection, Collection90m, Collection30m)
	}

	arcsecond := "3"
	if cfg.Collection == Collection30m {
		arcsecond = "1"
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Collection + ".s3.amazonaws.com"
	}

	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		collection: cfg.Collection,
		arcsecond:  arcsecond,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		hc:         hc,
		tel:        tel,
	}, nil
}

// TileURLs returns the candidate tile URLs covering the bounding box. The
// grid is widened to whole degrees on every side, so edge tiles that only
// graze the bbox are included.
func (c *Client) TileURLs(bbox geojson.BoundingBox) ([]string, error) {
	if err := stac.ValidateBBox(bbox); err != nil {
		return nil, err
	}

	minLon := int(math.Floor(bbox[0]))
	minLat := int(math.Floor(bbox[1]))
	maxLon := int(math.Ceil(bbox[2]))
	maxLat := int(math.Ceil(bbox[3]))

	var urls []string

	for lon := minLon; lon <= maxLon; lon++ {
		for lat := minLat; lat <= maxLat; lat++ {
			name := c.tileName(lat, lon)
			urls = append(urls, c.baseURL+"/"+name+"/"+name+".tif")
		}
	}

	return urls, nil
}

// Descriptors probes each candidate tile and returns descriptors for the
// ones that exist. Tiles over open ocean are simply absent from the bucket;
// those are skipped and reported, not failed.
func (c *Client) Descriptors(ctx context.Context, bbox geojson.BoundingBox) ([]fetch.AssetDescriptor, error) {
	logger := logctx.LoggerFromContext(ctx).With("collection", c.collection)

	urls, err := c.TileURLs(bbox)
	if err != nil {
		return nil, err
	}

	descriptors := make([]fetch.AssetDescriptor, 0, len(urls))

	var missing []string

	err = c.tel.InstrumentCatalogOperation(ctx, "copernicus", "probe_tiles", func(ctx context.Context) error {
		for _, tileURL := range urls {
			size, exists, err := c.probe(ctx, tileURL)
			if err != nil {
				return fmt.Errorf("failed to probe tile: %w", err)
			}

			if !exists {
				missing = append(missing, tileURL)

				continue
			}

			name := tileFileName(tileURL)

			descriptors = append(descriptors, fetch.AssetDescriptor{
				ID:              strings.TrimSuffix(name, ".tif"),
				SourceURL:       tileURL,
				DestinationPath: name,
				ExpectedSize:    size,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		logger.Debug("tiles not present in bucket", "missing_count", len(missing))
	}

	logger.Info("valid tiles found", "tile_count", len(descriptors), "probed", len(urls))

	return descriptors, nil
}

func (c *Client) probe(ctx context.Context, tileURL string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, tileURL, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, false, err
	}

	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		size := resp.ContentLength
		if size < 0 {
			size = 0
		}

		return size, true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// S3 answers 403 for missing keys when listing is disabled.
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unexpected status %d probing %s", resp.StatusCode, tileURL)
	}
}

// tileName builds the tile base name for a SW corner, e.g.
// Copernicus_DSM_COG_30_N48_00_W122_00_DEM.
func (c *Client) tileName(lat, lon int) string {
	ns := "N"
	if lat < 0 {
		ns = "S"
	}

	ew := "E"
	if lon < 0 {
		ew = "W"
	}

	return fmt.Sprintf("Copernicus_DSM_COG_%s0_%s%d_00_%s%03d_00_DEM", c.arcsecond, ns, abs(lat), ew, abs(lon))
}

func tileFileName(tileURL string) string {
	idx := strings.LastIndex(tileURL, "/")

	return tileURL[idx+1:]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
