// Package source constructs feature collections from external data:
// in-memory records, CSV and GeoJSON files, remote services and PostGIS.
// Adapters produce collections; they never evaluate query graphs.
package source

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

// GeometryFunc builds the geometry for one property record, typically a
// feature.ToPoint closure.
type GeometryFunc func(record map[string]any) (feature.Geometry, error)

// FromRecords builds a materialized collection from a flat ordered sequence
// of property records. Each record becomes one feature, in input order: its
// geometry from geomFn, its properties from the record itself.
func FromRecords(records []map[string]any, geomFn GeometryFunc) (feature.FeatureCollection, error) {
	feats := make([]feature.Feature, 0, len(records))
	for i, record := range records {
		geom, err := geomFn(record)
		if err != nil {
			return feature.FeatureCollection{}, fmt.Errorf("record %d: %w", i, err)
		}
		feats = append(feats, feature.New(geom, record))
	}
	return feature.NewCollection(feats), nil
}

// FromCSV builds a materialized collection from a CSV file with a header
// row. Every row becomes one record keyed by the header fields; values stay
// strings, geomFn coerces the coordinate fields.
func FromCSV(path string, geomFn GeometryFunc) (feature.FeatureCollection, error) {
	file, err := os.Open(path)
	if err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("failed to open csv: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return feature.FeatureCollection{}, fmt.Errorf("csv %s has no header row", path)
	}

	header := rows[0]
	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		records = append(records, record)
	}
	return FromRecords(records, geomFn)
}
