package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

func TestGeoJSONRoundTrip(t *testing.T) {
	fc := feature.NewCollection([]feature.Feature{
		feature.New(feature.NewPoint(139.6503, 35.6762), map[string]any{"city": "Tokyo"}),
		feature.New(feature.NewPoint(151.2093, -33.8688), map[string]any{"city": "Sydney"}),
	})

	path := filepath.Join(t.TempDir(), "cities.geojson")
	require.NoError(t, WriteGeoJSON(path, fc))

	loaded, err := ReadGeoJSON(path)
	require.NoError(t, err)

	feats := loaded.Features()
	require.Len(t, feats, 2)
	assert.Equal(t, "Tokyo", feats[0].Properties["city"])
	assert.Equal(t, "Sydney", feats[1].Properties["city"])
	assert.Equal(t, []float64{139.6503, 35.6762}, feats[0].Geometry.Coordinates)
}

func TestReadGeoJSONErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadGeoJSON(filepath.Join(dir, "absent.geojson"))
	assert.Error(t, err)
}
