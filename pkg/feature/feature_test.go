package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureGet(t *testing.T) {
	ft := New(NewPoint(0, 0), map[string]any{"name": "origin"})

	v, ok := ft.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "origin", v)

	_, ok = ft.Get("missing")
	assert.False(t, ok)
}

func TestFeatureSetCopyOnWrite(t *testing.T) {
	ft := New(NewPoint(0, 0), map[string]any{"a": 1, "b": 2})

	patched := ft.Set(map[string]any{"b": 20, "c": 3})

	// Patch wins on collision, new keys appear
	assert.Equal(t, map[string]any{"a": 1, "b": 20, "c": 3}, patched.Properties)

	// Receiver is unchanged
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, ft.Properties)
}

func TestFeatureToMap(t *testing.T) {
	ft := New(NewPoint(139.6503, 35.6762), map[string]any{"city": "Tokyo"})
	m := ft.ToMap()

	require.Equal(t, "Feature", m["kind"])
	geom, ok := m["geometry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Point", geom["kind"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Tokyo", props["city"])
}
