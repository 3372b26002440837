package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndex(t *testing.T) {
	ix := New()
	assert.NotNil(t, ix)
	assert.Equal(t, int64(0), ix.Count())
}

func TestIndexPoints(t *testing.T) {
	ix := New()

	points := []*Point{
		{ID: "1", Lat: 37.7749, Lon: -122.4194}, // San Francisco
		{ID: "2", Lat: 34.0522, Lon: -118.2437}, // Los Angeles
		{ID: "3", Lat: 40.7128, Lon: -74.0060},  // New York
		nil,
	}

	ix.IndexPoints(points)
	assert.Equal(t, int64(3), ix.Count())
}

func TestWithin(t *testing.T) {
	ix := New()

	centerLat, centerLon := 40.0, -74.0
	points := []*Point{
		{ID: "center", Lat: centerLat, Lon: centerLon},
		{ID: "near", Lat: centerLat + 0.1, Lon: centerLon + 0.1}, // ~14km away
		{ID: "far", Lat: centerLat + 1.0, Lon: centerLon + 1.0},  // ~140km away
	}
	ix.IndexPoints(points)

	// Search within 50km
	matches, err := ix.Within(centerLat, centerLon, 50000)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Ascending distance order
	assert.Equal(t, "center", matches[0].ID)
	assert.Equal(t, "near", matches[1].ID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
	assert.InDelta(t, 14000, matches[1].Distance, 1000)
}

func TestWithinEastWestAtMidLatitude(t *testing.T) {
	ix := New()

	// At 48.86N a longitude degree spans only ~73km of arc, so a point
	// 0.135 degrees due east sits about 9.9km away, inside a 10km radius
	centerLat, centerLon := 48.8566, 2.3522
	ix.IndexPoints([]*Point{
		{ID: "east-in", Lat: centerLat, Lon: centerLon + 0.135},
		{ID: "east-out", Lat: centerLat, Lon: centerLon + 0.155},
	})

	matches, err := ix.Within(centerLat, centerLon, 10000)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "east-in", matches[0].ID)
	assert.InDelta(t, 9876, matches[0].Distance, 150)
}

func TestWithinCarriesValue(t *testing.T) {
	ix := New()
	ix.IndexPoints([]*Point{{ID: "1", Lat: 51.5074, Lon: -0.1278, Value: "payload"}})

	matches, err := ix.Within(51.5074, -0.1278, 1000)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "payload", matches[0].Value)
}

func TestNearest(t *testing.T) {
	ix := New()

	var points []*Point
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			points = append(points, &Point{
				ID:  fmt.Sprintf("%d,%d", i, j),
				Lat: float64(i),
				Lon: float64(j),
			})
		}
	}
	ix.IndexPoints(points)

	matches := ix.Nearest(5.0, 5.0, 5)
	require.Len(t, matches, 5)
	assert.Equal(t, "5,5", matches[0].ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
	}
}

func TestClear(t *testing.T) {
	ix := New()
	ix.IndexPoints([]*Point{{ID: "1", Lat: 48.8566, Lon: 2.3522}})
	require.Equal(t, int64(1), ix.Count())

	ix.Clear()
	assert.Equal(t, int64(0), ix.Count())

	matches, err := ix.Within(48.8566, 2.3522, 1000)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDistance(t *testing.T) {
	// Paris to London is roughly 344km
	d := Distance(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 344000, d, 5000)

	assert.Equal(t, 0.0, Distance(40.0, -74.0, 40.0, -74.0))
}
