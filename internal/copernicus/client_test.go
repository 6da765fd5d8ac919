package copernicus_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/geofetch/internal/copernicus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venicegeo/geojson-go/geojson"
)

func TestNewClient_InvalidCollection(t *testing.T) {
	_, err := copernicus.NewClient(copernicus.Config{Collection: "3dep-lidar-dsm"}, nil, nil)
	assert.ErrorContains(t, err, "invalid collection")
}

func TestIsCopernicusCollection(t *testing.T) {
	assert.True(t, copernicus.IsCopernicusCollection("copernicus-dem-90m"))
	assert.True(t, copernicus.IsCopernicusCollection("copernicus-dem-30m"))
	assert.False(t, copernicus.IsCopernicusCollection("3dep-lidar-dsm"))
	assert.False(t, copernicus.IsCopernicusCollection(""))
}

func TestTileURLs(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		bbox       geojson.BoundingBox
		want       []string
	}{
		{
			"northwest hemisphere 90m",
			copernicus.Collection90m,
			geojson.BoundingBox{-121.846, 48.7, -121.823, 48.76},
			[]string{
				"https://copernicus-dem-90m.s3.amazonaws.com/Copernicus_DSM_COG_30_N48_00_W122_00_DEM/Copernicus_DSM_COG_30_N48_00_W122_00_DEM.tif",
				"https://copernicus-dem-90m.s3.amazonaws.com/Copernicus_DSM_COG_30_N49_00_W122_00_DEM/Copernicus_DSM_COG_30_N49_00_W122_00_DEM.tif",
				"https://copernicus-dem-90m.s3.amazonaws.com/Copernicus_DSM_COG_30_N48_00_W121_00_DEM/Copernicus_DSM_COG_30_N48_00_W121_00_DEM.tif",
				"https://copernicus-dem-90m.s3.amazonaws.com/Copernicus_DSM_COG_30_N49_00_W121_00_DEM/Copernicus_DSM_COG_30_N49_00_W121_00_DEM.tif",
			},
		},
		{
			"southeast hemisphere 30m",
			copernicus.Collection30m,
			geojson.BoundingBox{18.2, -34.5, 18.9, -33.7},
			[]string{
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S35_00_E018_00_DEM/Copernicus_DSM_COG_10_S35_00_E018_00_DEM.tif",
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S34_00_E018_00_DEM/Copernicus_DSM_COG_10_S34_00_E018_00_DEM.tif",
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S33_00_E018_00_DEM/Copernicus_DSM_COG_10_S33_00_E018_00_DEM.tif",
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S35_00_E019_00_DEM/Copernicus_DSM_COG_10_S35_00_E019_00_DEM.tif",
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S34_00_E019_00_DEM/Copernicus_DSM_COG_10_S34_00_E019_00_DEM.tif",
				"https://copernicus-dem-30m.s3.amazonaws.com/Copernicus_DSM_COG_10_S33_00_E019_00_DEM/Copernicus_DSM_COG_10_S33_00_E019_00_DEM.tif",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := copernicus.NewClient(copernicus.Config{Collection: tt.collection}, nil, nil)
			require.NoError(t, err)

			urls, err := c.TileURLs(tt.bbox)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, urls)
		})
	}
}

func TestTileURLs_InvalidBBox(t *testing.T) {
	c, err := copernicus.NewClient(copernicus.Config{Collection: copernicus.Collection90m}, nil, nil)
	require.NoError(t, err)

	_, err = c.TileURLs(geojson.BoundingBox{0, 0, 1})
	assert.ErrorContains(t, err, "exactly 4 values")
}

func TestDescriptors_PrunesMissingTiles(t *testing.T) {
	present := "/Copernicus_DSM_COG_30_N48_00_W122_00_DEM/Copernicus_DSM_COG_30_N48_00_W122_00_DEM.tif"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)

		if r.URL.Path == present {
			w.Header().Set("Content-Length", "1024")

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c, err := copernicus.NewClient(copernicus.Config{
		Collection: copernicus.Collection90m,
		BaseURL:    ts.URL,
	}, nil, nil)
	require.NoError(t, err)

	descriptors, err := c.Descriptors(context.Background(), geojson.BoundingBox{-121.846, 48.7, -121.823, 48.76})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	d := descriptors[0]
	assert.Equal(t, "Copernicus_DSM_COG_30_N48_00_W122_00_DEM", d.ID)
	assert.Equal(t, ts.URL+present, d.SourceURL)
	assert.Equal(t, "Copernicus_DSM_COG_30_N48_00_W122_00_DEM.tif", d.DestinationPath)
	assert.Equal(t, int64(1024), d.ExpectedSize)
}

func TestDescriptors_ProbeFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := copernicus.NewClient(copernicus.Config{
		Collection: copernicus.Collection90m,
		BaseURL:    ts.URL,
	}, nil, nil)
	require.NoError(t, err)

	_, err = c.Descriptors(context.Background(), geojson.BoundingBox{-121.846, 48.7, -121.823, 48.76})
	assert.ErrorContains(t, err, "failed to probe tile")
}
