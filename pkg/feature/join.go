package feature

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Default property names under which save_best records the winning match
// and its distance.
const (
	DefaultBestMatchKey    = "best_match"
	DefaultBestDistanceKey = "best_distance"
)

// Join is a deferred binary combinator over two feature collections and one
// join filter. Apply binds the operands and wraps the join in a deferred
// collection; nothing is evaluated until that collection is computed. Joins
// are immutable values.
type Join struct {
	kind        string
	left        *FeatureCollection
	right       *FeatureCollection
	filter      *Filter
	matchKey    string
	distanceKey string
	bestOnly    bool
}

// Matches creates a join keeping every matched feature per candidate,
// recorded under matchKey and distanceKey. Empty keys leave the join
// filter's own defaults in place.
func Matches(matchKey, distanceKey string) Join {
	return Join{
		kind:        "matches",
		matchKey:    matchKey,
		distanceKey: distanceKey,
	}
}

// SaveBest creates a join keeping one matched feature per candidate, the
// closest one, recorded under matchKey and distanceKey. Empty keys default
// to "best_match" and "best_distance".
func SaveBest(matchKey, distanceKey string) Join {
	if matchKey == "" {
		matchKey = DefaultBestMatchKey
	}
	if distanceKey == "" {
		distanceKey = DefaultBestDistanceKey
	}
	return Join{
		kind:        "save_best",
		matchKey:    matchKey,
		distanceKey: distanceKey,
		bestOnly:    true,
	}
}

// Kind returns the join's kind tag.
func (j Join) Kind() string {
	return j.kind
}

// MatchKey returns the property name under which the winning match is
// recorded.
func (j Join) MatchKey() string {
	return j.matchKey
}

// DistanceKey returns the property name under which the winning match's
// distance is recorded.
func (j Join) DistanceKey() string {
	return j.distanceKey
}

// Apply binds the two operand collections and the join filter, returning a
// new deferred collection wrapping the bound join. Nothing is evaluated.
func (j Join) Apply(left, right FeatureCollection, filter Filter) FeatureCollection {
	j.left = &left
	j.right = &right
	j.filter = &filter
	return FeatureCollection{join: &j}
}

// Compute resolves the join with the given outer filters, which were
// accumulated on the deferred collection after Apply. The left side is
// materialized first with the outer filters applied, the join filter is
// bound against that resolved left side, and the right side is then run
// through the bound join filter followed by every outer filter again. The
// join is right-driven: for every right feature the join filter searches
// the resolved left set, so the right side's cardinality drives the
// expansion and each outer filter is evaluated against both sides.
func (j Join) Compute(outer []Filter) (FeatureCollection, error) {
	if j.left == nil || j.right == nil || j.filter == nil {
		return FeatureCollection{}, fmt.Errorf("cannot compute join %q: %w", j.kind, ErrJoinNotConfigured)
	}

	log.Debug().
		Str("kind", j.kind).
		Int("outer_filters", len(outer)).
		Msg("Resolving join")

	leftResolved, err := j.left.Filter(outer...).Compute()
	if err != nil {
		return FeatureCollection{}, err
	}

	limit := 0
	if j.bestOnly {
		limit = 1
	}
	bound := j.filter.bind(leftResolved, j.matchKey, j.distanceKey, limit)

	filters := make([]Filter, 0, len(outer)+1)
	filters = append(filters, bound)
	filters = append(filters, outer...)
	return j.right.Filter(filters...).Compute()
}
