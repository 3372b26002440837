package feature

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
)

// CollectionKind is the kind tag carried by every FeatureCollection.
const CollectionKind = "FeatureCollection"

// Source is a deferred producer of features, typically backed by a remote
// service. Fields maps queryable property names to metadata so Properties
// can be answered without fetching; Fetch produces the ordered features.
type Source struct {
	Fields map[string]string
	Fetch  func() ([]Feature, error)
}

// FeatureCollection is an ordered sequence of features, or a deferred
// computation awaiting materialization. Three representations share one
// contract:
//
//   - materialized: an ordered feature sequence plus lazily-applied pending
//     filters;
//   - deferred join: a bound Join plus pending filters;
//   - deferred source: a Source plus pending filters.
//
// Filter never evaluates anything; only Compute walks the graph and
// produces a materialized collection. Collections are immutable values.
type FeatureCollection struct {
	feats   []Feature
	join    *Join
	source  *Source
	pending []Filter
}

// NewCollection creates a materialized collection from an ordered feature
// sequence. Order is caller-significant and preserved through non-join
// filters.
func NewCollection(feats []Feature) FeatureCollection {
	return FeatureCollection{feats: feats}
}

// NewDeferred creates a collection backed by a deferred source.
func NewDeferred(src Source) FeatureCollection {
	return FeatureCollection{source: &src}
}

// FromMap builds a materialized collection from a raw
// {kind, features} structure.
func FromMap(raw map[string]any) (FeatureCollection, error) {
	rawFeats, ok := raw["features"].([]any)
	if !ok {
		return FeatureCollection{}, fmt.Errorf("feature collection has no features list")
	}

	feats := make([]Feature, 0, len(rawFeats))
	for i, rf := range rawFeats {
		fm, ok := rf.(map[string]any)
		if !ok {
			return FeatureCollection{}, fmt.Errorf("feature %d is not a mapping", i)
		}
		ft, err := featureFromMap(fm)
		if err != nil {
			return FeatureCollection{}, fmt.Errorf("feature %d: %w", i, err)
		}
		feats = append(feats, ft)
	}
	return NewCollection(feats), nil
}

func featureFromMap(raw map[string]any) (Feature, error) {
	geom := Geometry{Kind: GeometryKind}
	if gm, ok := raw["geometry"].(map[string]any); ok {
		coords, _ := gm["coordinates"].([]any)
		values := make([]float64, 0, len(coords))
		for _, c := range coords {
			v, err := toFloat(c)
			if err != nil {
				return Feature{}, fmt.Errorf("geometry coordinate: %w", err)
			}
			values = append(values, v)
		}
		geom = NewPoint(values...)
	}

	props, _ := raw["properties"].(map[string]any)
	return New(geom, props), nil
}

// Features returns the ordered feature sequence of a materialized
// collection. On a deferred collection it returns nil: only Compute
// resolves a join or source.
func (c FeatureCollection) Features() []Feature {
	if c.join != nil || c.source != nil {
		return nil
	}
	return c.feats
}

// Filter returns a new collection of the same representation with the given
// filters appended to its pending list, in call order. Nothing is
// evaluated; materialized collections also keep pending filters and apply
// them at compute time, so chained Filter calls cost nothing until the
// caller asks for results.
func (c FeatureCollection) Filter(filters ...Filter) FeatureCollection {
	pending := make([]Filter, 0, len(c.pending)+len(filters))
	pending = append(pending, c.pending...)
	pending = append(pending, filters...)
	c.pending = pending
	return c
}

// Properties returns the set of distinct property keys known to the
// collection that match pattern, or all known keys if pattern is empty. For
// a materialized collection the keys are scanned from its features; for a
// source-backed collection they come from the source's field metadata.
// Properties never forces evaluation of a deferred collection and never
// fails on absent keys.
func (c FeatureCollection) Properties(pattern string) (map[string]struct{}, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid property pattern: %w", err)
		}
	}

	keys := map[string]struct{}{}
	collect := func(key string) {
		if re == nil || re.MatchString(key) {
			keys[key] = struct{}{}
		}
	}

	if c.source != nil {
		for key := range c.source.Fields {
			collect(key)
		}
		return keys, nil
	}
	for _, ft := range c.Features() {
		for key := range ft.Properties {
			collect(key)
		}
	}
	return keys, nil
}

// Compute resolves the collection to a materialized one. A bound join is
// delegated to Join.Compute with the pending filters; a source is fetched
// and the pending filters applied; a materialized collection with pending
// filters applies them in list order, a join-mode filter expanding one
// input feature into zero or more outputs. A materialized collection with
// no pending work is returned unchanged. Errors from predicates, join
// expansions and sources propagate unaltered.
func (c FeatureCollection) Compute() (FeatureCollection, error) {
	if c.join != nil {
		return c.join.Compute(c.pending)
	}

	feats := c.feats
	if c.source != nil {
		log.Debug().Int("pending", len(c.pending)).Msg("Fetching source collection")
		var err error
		if feats, err = c.source.Fetch(); err != nil {
			return FeatureCollection{}, err
		}
	} else if len(c.pending) == 0 {
		return c, nil
	}

	for _, f := range c.pending {
		before := len(feats)
		var err error
		if feats, err = f.Compute(feats); err != nil {
			return FeatureCollection{}, err
		}
		log.Debug().
			Str("filter", f.Kind()).
			Int("in", before).
			Int("out", len(feats)).
			Msg("Applied filter")
	}
	return NewCollection(feats), nil
}

// Info computes the collection and returns its serializable form.
func (c FeatureCollection) Info() (map[string]any, error) {
	resolved, err := c.Compute()
	if err != nil {
		return nil, err
	}
	return resolved.ToMap(), nil
}

// ToMap returns the serializable form of the collection. Features of a
// deferred collection are not included; Compute first to materialize them.
func (c FeatureCollection) ToMap() map[string]any {
	feats := c.Features()
	out := make([]any, len(feats))
	for i, ft := range feats {
		out[i] = ft.ToMap()
	}
	return map[string]any{
		"kind":     CollectionKind,
		"features": out,
	}
}

// MarshalJSON serializes the collection as {kind, features}.
func (c FeatureCollection) MarshalJSON() ([]byte, error) {
	feats := c.Features()
	if feats == nil {
		feats = []Feature{}
	}
	return json.Marshal(struct {
		Kind     string    `json:"kind"`
		Features []Feature `json:"features"`
	}{Kind: CollectionKind, Features: feats})
}
