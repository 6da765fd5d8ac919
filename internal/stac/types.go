package stac

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/venicegeo/geojson-go/geojson"
)

// Item is a STAC item as returned by the catalog search endpoint, reduced to
// the fields the fetch pipeline cares about.
type Item struct {
	ID         string              `json:"id"`
	Collection string              `json:"collection"`
	BBox       geojson.BoundingBox `json:"bbox"`
	Properties ItemProperties      `json:"properties"`
	Assets     map[string]Asset    `json:"assets"`
}

type ItemProperties struct {
	Datetime string `json:"datetime"`
}

// Asset is one downloadable file attached to an item. FileSize carries the
// STAC file extension's byte count when the catalog provides it.
type Asset struct {
	Href     string `json:"href"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	FileSize int64  `json:"file:size"`
}

// Link is a STAC hypermedia link; rel=next links drive pagination.
type Link struct {
	Rel    string `json:"rel"`
	Href   string `json:"href"`
	Method string `json:"method"`
}

type searchResponse struct {
	Features []Item `json:"features"`
	Links    []Link `json:"links"`
}

// SearchParams describe one catalog query.
type SearchParams struct {
	Collection string
	BBox       geojson.BoundingBox
	// Datetime is an ISO-8601 interval such as "2000-12-01/2020-12-31".
	// Either side may be ".." for an open range.
	Datetime string
	// Limit is the page size requested from the catalog, not a cap on the
	// total result count.
	Limit int
}

func (p SearchParams) validate() error {
	if p.Collection == "" {
		return fmt.Errorf("collection is required")
	}

	if err := ValidateBBox(p.BBox); err != nil {
		return err
	}

	if p.Datetime != "" {
		if err := ValidateInterval(p.Datetime); err != nil {
			return err
		}
	}

	return nil
}

// ValidateBBox checks a [min-lon, min-lat, max-lon, max-lat] bounding box.
func ValidateBBox(bb geojson.BoundingBox) error {
	if len(bb) != 4 {
		return fmt.Errorf("bbox must have exactly 4 values, got %d", len(bb))
	}

	minLon, minLat, maxLon, maxLat := bb[0], bb[1], bb[2], bb[3]

	if minLon < -180 || maxLon > 180 {
		return fmt.Errorf("bbox longitudes must be within [-180, 180]")
	}

	if minLat < -90 || maxLat > 90 {
		return fmt.Errorf("bbox latitudes must be within [-90, 90]")
	}

	if minLon >= maxLon || minLat >= maxLat {
		return fmt.Errorf("bbox min values must be strictly less than max values")
	}

	return nil
}

// ValidateInterval checks an ISO-8601 time interval of the form
// "start/end", where each side is a date, an RFC3339 timestamp, or "..".
func ValidateInterval(interval string) error {
	parts := strings.Split(interval, "/")
	if len(parts) > 2 {
		return fmt.Errorf("invalid time interval %q", interval)
	}

	open := 0

	for _, part := range parts {
		if part == ".." {
			open++

			continue
		}

		if err := parseTimeBound(part); err != nil {
			return fmt.Errorf("invalid time interval %q: %w", interval, err)
		}
	}

	if open == len(parts) {
		return fmt.Errorf("time interval %q has no bounds", interval)
	}

	return nil
}

func parseTimeBound(s string) error {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}

	return fmt.Errorf("cannot parse %q as a date or RFC3339 timestamp", s)
}

// ParseBBox parses four space-separated floats into a bounding box.
func ParseBBox(s string) (geojson.BoundingBox, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return nil, fmt.Errorf("bbox must be four space-separated floats, got %q", s)
	}

	bb := make(geojson.BoundingBox, 0, 4)

	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox value %q: %w", f, err)
		}

		bb = append(bb, v)
	}

	if err := ValidateBBox(bb); err != nil {
		return nil, err
	}

	return bb, nil
}
