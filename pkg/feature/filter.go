package feature

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cohere-llc/geoquery/pkg/index"
)

// Default property names under which a join records which feature matched
// and how well.
const (
	DefaultMatchKey   = "match_id"
	DefaultQualityKey = "match_quality"
)

// Filter is a named operation over features. A filter built by Equals or
// DateRange is in predicate mode: Compute keeps the ordered subsequence of
// features the predicate accepts. A filter built by WithinDistance is in
// join mode: once a right-hand collection is bound via
// ApplyFeatureCollection, Compute expands every input feature into its
// matches against the bound collection.
//
// Filters are immutable values; every transform returns a new Filter.
type Filter struct {
	kind       string
	cfg        any
	matchKey   string
	qualityKey string
	limit      int
	bound      *FeatureCollection
}

type equalsConfig struct {
	field string
	value any
}

type dateRangeConfig struct {
	field    string
	rawStart string
	rawEnd   string
	start    time.Time
	end      time.Time
	err      error
}

type withinDistanceConfig struct {
	leftField  string
	rightField string
	distance   float64
}

// Equals creates a predicate filter matching features whose property under
// field equals value. A feature without the field passes: absence is treated
// as a pass, not a mismatch.
func Equals(field string, value any) Filter {
	return Filter{
		kind:       "equals",
		cfg:        equalsConfig{field: field, value: value},
		matchKey:   DefaultMatchKey,
		qualityKey: DefaultQualityKey,
	}
}

// DateRange creates a predicate filter matching features whose property
// under field, parsed as an ISO-8601 date, lies in [start, end] inclusive.
// start and end are ISO-8601 calendar dates such as "2023-04-01"; a
// malformed bound surfaces as an error from Compute.
func DateRange(field, start, end string) Filter {
	cfg := dateRangeConfig{field: field, rawStart: start, rawEnd: end}
	var err error
	if cfg.start, err = parseDate(start); err != nil {
		cfg.err = fmt.Errorf("date_range: start %q: %w", start, err)
	} else if cfg.end, err = parseDate(end); err != nil {
		cfg.err = fmt.Errorf("date_range: end %q: %w", end, err)
	}
	return Filter{
		kind:       "date_range",
		cfg:        cfg,
		matchKey:   DefaultMatchKey,
		qualityKey: DefaultQualityKey,
	}
}

// WithinDistance creates a join filter matching, for each candidate feature,
// the bound-collection features whose geometry lies within distance meters
// (great-circle) of the candidate's geometry, ordered by ascending distance.
// leftField and rightField name the coordinate-bearing columns the joined
// geometries were built from. The filter must be bound with
// ApplyFeatureCollection before it can compute.
func WithinDistance(leftField, rightField string, distance float64) Filter {
	return Filter{
		kind:       "within_distance",
		cfg:        withinDistanceConfig{leftField: leftField, rightField: rightField, distance: distance},
		matchKey:   DefaultMatchKey,
		qualityKey: DefaultQualityKey,
	}
}

// Kind returns the filter's kind tag.
func (f Filter) Kind() string {
	return f.kind
}

// MatchKey returns the property name under which matches are recorded.
func (f Filter) MatchKey() string {
	return f.matchKey
}

// QualityKey returns the property name under which match quality is recorded.
func (f Filter) QualityKey() string {
	return f.qualityKey
}

// IsJoin reports whether the filter is a join-mode filter.
func (f Filter) IsJoin() bool {
	_, ok := f.cfg.(withinDistanceConfig)
	return ok
}

// ApplyFeatureCollection returns a new filter with fc bound as the
// right-hand side of a join. The receiver is unchanged. Binding a
// predicate-mode filter is valid but has no effect on its computation.
func (f Filter) ApplyFeatureCollection(fc FeatureCollection) Filter {
	f.bound = &fc
	return f
}

// bind configures the filter for a join: the resolved collection to search,
// the property names for the match and its quality, and a cap on matches per
// input feature (0 for no cap).
func (f Filter) bind(fc FeatureCollection, matchKey, qualityKey string, limit int) Filter {
	f.bound = &fc
	if matchKey != "" {
		f.matchKey = matchKey
	}
	if qualityKey != "" {
		f.qualityKey = qualityKey
	}
	f.limit = limit
	return f
}

// Compute applies the filter to an ordered sequence of features. Predicate
// filters return the matching subsequence in input order. Join filters
// expand each input feature into zero or more matched features,
// concatenated in input order; computing an unbound join filter is an
// error.
func (f Filter) Compute(feats []Feature) ([]Feature, error) {
	switch cfg := f.cfg.(type) {
	case equalsConfig:
		return filterBy(feats, func(ft Feature) (bool, error) {
			v, ok := ft.Get(cfg.field)
			if !ok {
				return true, nil
			}
			return looseEqual(v, cfg.value), nil
		})
	case dateRangeConfig:
		if cfg.err != nil {
			return nil, cfg.err
		}
		return filterBy(feats, func(ft Feature) (bool, error) {
			v, ok := ft.Get(cfg.field)
			if !ok {
				return false, nil
			}
			t, err := parseDateValue(v)
			if err != nil {
				return false, fmt.Errorf("date_range: field %q: %w", cfg.field, err)
			}
			// Calendar-date comparison: a timestamp anywhere on the end
			// date is still inside the closed interval.
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return !d.Before(cfg.start) && !d.After(cfg.end), nil
		})
	case withinDistanceConfig:
		return f.expand(feats, cfg)
	default:
		return nil, fmt.Errorf("filter %q has no computation", f.kind)
	}
}

// expand runs the within-distance join: every input feature is matched
// against the bound collection and emitted once per match, tagged with the
// matched feature and the distance in meters.
func (f Filter) expand(feats []Feature, cfg withinDistanceConfig) ([]Feature, error) {
	if f.bound == nil {
		return nil, fmt.Errorf("within_distance: %w", ErrFilterNotBound)
	}

	candidates := f.bound.Features()
	ix := index.New()
	points := make([]*index.Point, len(candidates))
	for i := range candidates {
		points[i] = &index.Point{
			Lat:   candidates[i].Geometry.Lat(),
			Lon:   candidates[i].Geometry.Lon(),
			Value: candidates[i],
		}
	}
	ix.IndexPoints(points)

	log.Debug().
		Str("kind", f.kind).
		Int("features", len(feats)).
		Int64("candidates", ix.Count()).
		Float64("distance", cfg.distance).
		Msg("Expanding join filter")

	var out []Feature
	for _, ft := range feats {
		matches, err := ix.Within(ft.Geometry.Lat(), ft.Geometry.Lon(), cfg.distance)
		if err != nil {
			return nil, err
		}
		if f.limit > 0 && len(matches) > f.limit {
			matches = matches[:f.limit]
		}
		for _, m := range matches {
			out = append(out, ft.Set(map[string]any{
				f.matchKey:   m.Value.(Feature),
				f.qualityKey: m.Distance,
			}))
		}
	}
	return out, nil
}

// ToMap returns the serializable form of the filter: its kind tag plus the
// named parameters of its configuration.
func (f Filter) ToMap() map[string]any {
	m := map[string]any{"kind": f.kind}
	switch cfg := f.cfg.(type) {
	case equalsConfig:
		m["field"] = cfg.field
		m["value"] = cfg.value
	case dateRangeConfig:
		m["field"] = cfg.field
		m["start"] = cfg.rawStart
		m["end"] = cfg.rawEnd
	case withinDistanceConfig:
		m["left_field"] = cfg.leftField
		m["right_field"] = cfg.rightField
		m["distance"] = cfg.distance
		m["match_key"] = f.matchKey
		m["quality_key"] = f.qualityKey
	}
	return m
}

func filterBy(feats []Feature, pred func(Feature) (bool, error)) ([]Feature, error) {
	out := make([]Feature, 0, len(feats))
	for _, ft := range feats {
		ok, err := pred(ft)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ft)
		}
	}
	return out, nil
}

// looseEqual compares property values, treating all numeric kinds as one
// domain so a JSON 2.0 equals a Go int 2.
func looseEqual(a, b any) bool {
	af, aok := numericValue(a)
	bf, bok := numericValue(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseDateValue parses a feature property as a timestamp. Date-only values
// and RFC 3339 timestamps are accepted; time.Time values pass through.
func parseDateValue(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return parseDate(x)
	default:
		return time.Time{}, fmt.Errorf("cannot parse %T as a date", v)
	}
}
