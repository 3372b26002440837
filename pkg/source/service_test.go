package source

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohere-llc/geoquery/pkg/feature"
)

func testService(t *testing.T, dataFetches *atomic.Int64) (*Catalog, *http.Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/forecast/hourly/fields", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"temperature": "surface temperature", "temp_dew": "dew point", "station": "station id"}`)
	})
	mux.HandleFunc("/forecast/hourly", func(w http.ResponseWriter, r *http.Request) {
		if dataFetches != nil {
			dataFetches.Add(1)
		}
		fmt.Fprint(w, `{
			"kind": "FeatureCollection",
			"features": [
				{"kind": "Feature",
				 "geometry": {"kind": "Point", "coordinates": [-0.1278, 51.5074]},
				 "properties": {"station": "london-1", "temperature": 14.2}},
				{"kind": "Feature",
				 "geometry": {"kind": "Point", "coordinates": [2.3522, 48.8566]},
				 "properties": {"station": "paris-1", "temperature": 17.8}}
			]
		}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cat := &Catalog{Services: map[string]Service{
		"METEO": {BaseURL: server.URL},
	}}
	return cat, server.Client()
}

func TestFromServicePathValidation(t *testing.T) {
	cat, client := testService(t, nil)

	for _, path := range []string{"", "METEO", "METEO/forecast", "METEO//hourly", "a/b/c/d"} {
		_, err := FromService(client, cat, path)
		require.Error(t, err, "path %q", path)
		assert.True(t, errors.Is(err, ErrBadServicePath))
	}

	_, err := FromService(client, cat, "NOPE/forecast/hourly")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadServicePath)
}

func TestFromServiceLazyFetch(t *testing.T) {
	var fetches atomic.Int64
	cat, client := testService(t, &fetches)

	fc, err := FromService(client, cat, "METEO/forecast/hourly")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fetches.Load(), "construction only fetches field metadata")

	// Properties come from the schema call, without materializing
	keys, err := fc.Properties("temp")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"temperature": {}, "temp_dew": {}}, keys)
	assert.Nil(t, fc.Features())
	assert.Equal(t, int64(0), fetches.Load())

	computed, err := fc.Compute()
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetches.Load())

	feats := computed.Features()
	require.Len(t, feats, 2)
	assert.Equal(t, "london-1", feats[0].Properties["station"])
	assert.Equal(t, "paris-1", feats[1].Properties["station"])
}

func TestFromServiceFiltered(t *testing.T) {
	cat, client := testService(t, nil)

	fc, err := FromService(client, cat, "METEO/forecast/hourly")
	require.NoError(t, err)

	out, err := fc.Filter(feature.Equals("station", "paris-1")).Compute()
	require.NoError(t, err)
	require.Len(t, out.Features(), 1)
	assert.Equal(t, "paris-1", out.Features()[0].Properties["station"])
}

func TestFromServiceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cat := &Catalog{Services: map[string]Service{"METEO": {BaseURL: server.URL}}}

	_, err := FromService(server.Client(), cat, "METEO/forecast/hourly")
	assert.Error(t, err, "schema failures surface to the caller")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	body := "services:\n  METEO:\n    base_url: http://meteo.example\n    description: weather service\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Contains(t, cat.Services, "METEO")
	assert.Equal(t, "http://meteo.example", cat.Services["METEO"].BaseURL)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
