package source

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

// ReadGeoJSON builds a materialized collection from a {kind, features} file
// on disk.
func ReadGeoJSON(path string) (feature.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	fc, err := feature.FromMap(raw)
	if err != nil {
		return feature.FeatureCollection{}, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

// WriteGeoJSON writes a collection to disk as {kind, features}. The
// collection must already be materialized; deferred features are not
// resolved here.
func WriteGeoJSON(path string, fc feature.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
