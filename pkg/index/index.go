// Package index provides an R-Tree backed spatial index over point records.
// It is used by the query graph to answer within-distance searches without
// scanning a whole collection, and is usable standalone.
package index

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
)

const (
	tolerance   = 0.01
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	earthRadius = 6371000.0 // meters
)

// Point is an indexed location with an opaque payload.
type Point struct {
	ID    string
	Lat   float64
	Lon   float64
	Value any
}

// Match is a point returned from a search together with its great-circle
// distance from the query location, in meters.
type Match struct {
	*Point
	Distance float64
}

// spatialItem wraps a Point for R-Tree indexing
type spatialItem struct {
	*Point
	rect *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

// Index is a thread-safe R-Tree based geographical index.
type Index struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// New creates an empty index.
func New() *Index {
	return &Index{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// IndexPoints indexes a batch of points, preparing the spatial wrappers in
// parallel across CPU cores.
func (ix *Index) IndexPoints(points []*Point) {
	if len(points) == 0 {
		return
	}

	numCPU := runtime.NumCPU()
	spatialItems := make([]rtreego.Spatial, len(points))
	var wg sync.WaitGroup

	batchSize := len(points) / numCPU
	if batchSize < 1 {
		batchSize = 1
		numCPU = len(points)
	}

	for i := 0; i < numCPU && i*batchSize < len(points); i++ {
		wg.Add(1)
		start := i * batchSize
		end := start + batchSize
		if i == numCPU-1 || end > len(points) {
			end = len(points)
		}

		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				point := points[j]
				if point == nil {
					continue
				}
				rtPoint := rtreego.Point{point.Lat, point.Lon}
				rect := rtPoint.ToRect(tolerance)
				spatialItems[j] = &spatialItem{point, rect}
			}
		}(start, end)
	}

	wg.Wait()

	// Insert items into the tree (this part must be synchronized)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	count := int64(0)
	for _, item := range spatialItems {
		if item != nil {
			ix.tree.Insert(item)
			count++
		}
	}
	ix.itemCount.Add(count)
}

// Within returns all indexed points whose great-circle distance from the
// given location is at most radius meters, ordered by ascending distance.
func (ix *Index) Within(lat, lon, radius float64) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Convert radius to degrees for the candidate box. A longitude degree
	// spans cos(lat) times less distance than a latitude degree, so the
	// east-west extent must widen with latitude; clamp near the poles where
	// the band covers all longitudes.
	latDeg := (radius / earthRadius) * (180 / math.Pi)
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonDeg := latDeg / cosLat

	// Pad by the indexing tolerance so items sitting exactly on the radius
	// still intersect the candidate box.
	latPad := latDeg + tolerance
	lonPad := lonDeg + tolerance
	bounds, err := rtreego.NewRect(
		rtreego.Point{lat - latPad, lon - lonPad},
		[]float64{2 * latPad, 2 * lonPad},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	results := ix.tree.SearchIntersect(bounds)

	// Filter candidates by actual distance
	matches := make([]Match, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok || item.Point == nil {
			continue
		}

		dist := Distance(lat, lon, item.Lat, item.Lon)
		if dist <= radius {
			matches = append(matches, Match{item.Point, dist})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	return matches, nil
}

// Nearest returns the n indexed points closest to the given location,
// ordered by ascending distance.
func (ix *Index) Nearest(lat, lon float64, n int) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	queryPoint := rtreego.Point{lat, lon}
	results := ix.tree.NearestNeighbors(n, queryPoint)

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok || item.Point == nil {
			continue
		}
		matches = append(matches, Match{item.Point, Distance(lat, lon, item.Lat, item.Lon)})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	return matches
}

// Count returns the number of indexed points.
func (ix *Index) Count() int64 {
	return ix.itemCount.Load()
}

// Clear removes all points from the index.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	ix.itemCount.Store(0)
}

// Distance calculates the Haversine distance between two lat/lon points
// in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
