package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

// ErrBadServicePath reports a service path that does not have the
// SERVICE/PRODUCT/VARIANT shape.
var ErrBadServicePath = errors.New("service path must look like SERVICE/PRODUCT/VARIANT")

// Catalog maps service names to the endpoints that back them.
type Catalog struct {
	Services map[string]Service `yaml:"services"`
}

// Service describes one remote feature service.
type Service struct {
	BaseURL     string `yaml:"base_url"`
	Description string `yaml:"description,omitempty"`
}

// LoadCatalog reads and parses the YAML service catalog from the specified
// path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// FromService resolves an opaque SERVICE/PRODUCT/VARIANT path against the
// catalog and returns a deferred collection backed by the service. The path
// shape and service name are validated here and fail fast; the queryable
// field metadata is fetched immediately so Properties can be answered
// without materializing, while the records themselves are fetched only by
// Compute. Service failures are not caught; they surface to the caller.
func FromService(client *http.Client, cat *Catalog, path string) (feature.FeatureCollection, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return feature.FeatureCollection{}, fmt.Errorf("%q: %w", path, ErrBadServicePath)
	}

	svc, ok := cat.Services[parts[0]]
	if !ok {
		return feature.FeatureCollection{}, fmt.Errorf("unknown service %q", parts[0])
	}

	dataURL := fmt.Sprintf("%s/%s/%s", strings.TrimRight(svc.BaseURL, "/"), parts[1], parts[2])

	fields, err := fetchFields(client, dataURL+"/fields")
	if err != nil {
		return feature.FeatureCollection{}, err
	}

	log.Debug().
		Str("path", path).
		Int("fields", len(fields)).
		Msg("Resolved service collection")

	return feature.NewDeferred(feature.Source{
		Fields: fields,
		Fetch: func() ([]feature.Feature, error) {
			log.Info().Str("path", path).Msg("Fetching features from service")
			return fetchFeatures(client, dataURL)
		},
	}), nil
}

func fetchFields(client *http.Client, url string) (map[string]string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service returned %s for %s", resp.Status, url)
	}

	var fields map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode field metadata: %w", err)
	}
	return fields, nil
}

func fetchFeatures(client *http.Client, url string) ([]feature.Feature, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service returned %s for %s", resp.Status, url)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}

	fc, err := feature.FromMap(raw)
	if err != nil {
		return nil, err
	}
	return fc.Features(), nil
}
