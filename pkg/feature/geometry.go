// Package feature implements a lazily-evaluated query graph over collections
// of point features. Geometries, features, collections, filters and joins are
// all immutable values: composing a pipeline allocates new values and nothing
// is evaluated until Compute is called.
package feature

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GeometryKind is the kind tag carried by every Geometry.
const GeometryKind = "Point"

// Geometry is an immutable point location.
type Geometry struct {
	Kind        string    `json:"kind"`
	Coordinates []float64 `json:"coordinates"`
}

// NewPoint creates a point geometry from the given coordinates.
// For 2-D points the order is [lon, lat].
func NewPoint(coordinates ...float64) Geometry {
	coords := make([]float64, len(coordinates))
	copy(coords, coordinates)
	return Geometry{Kind: GeometryKind, Coordinates: coords}
}

// Copy returns an independent copy of the geometry.
func (g Geometry) Copy() Geometry {
	return NewPoint(g.Coordinates...)
}

// Lon returns the first coordinate, or 0 if the geometry is empty.
func (g Geometry) Lon() float64 {
	if len(g.Coordinates) < 1 {
		return 0
	}
	return g.Coordinates[0]
}

// Lat returns the second coordinate, or 0 if the geometry is empty.
func (g Geometry) Lat() float64 {
	if len(g.Coordinates) < 2 {
		return 0
	}
	return g.Coordinates[1]
}

// ToMap returns the serializable form of the geometry.
func (g Geometry) ToMap() map[string]any {
	coords := make([]any, len(g.Coordinates))
	for i, c := range g.Coordinates {
		coords[i] = c
	}
	return map[string]any{
		"kind":        GeometryKind,
		"coordinates": coords,
	}
}

// ToPoint returns a reusable function that extracts the named fields from a
// record, coerces each to a number and builds a point geometry whose
// coordinate order matches the field order. Non-numeric values are an error;
// coercion failures propagate to the caller.
func ToPoint(fields ...string) func(record map[string]any) (Geometry, error) {
	names := make([]string, len(fields))
	copy(names, fields)

	return func(record map[string]any) (Geometry, error) {
		coords := make([]float64, len(names))
		for i, name := range names {
			raw, ok := record[name]
			if !ok {
				return Geometry{}, fmt.Errorf("to_point: record has no field %q", name)
			}
			v, err := toFloat(raw)
			if err != nil {
				return Geometry{}, fmt.Errorf("to_point: field %q: %w", name, err)
			}
			coords[i] = v
		}
		return NewPoint(coords...), nil
	}
}

// toFloat coerces common record value types to float64.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to a number: %w", x, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to a number", v)
	}
}
