package feature

import "errors"

// Configuration errors. These are detected at the call that finds them and
// are never retried or defaulted.
var (
	// ErrJoinNotConfigured reports a Join computed before all of
	// left/right/filter were bound.
	ErrJoinNotConfigured = errors.New("join is missing left, right or filter")

	// ErrFilterNotBound reports a join-mode filter computed before a
	// right-hand collection was bound to it.
	ErrFilterNotBound = errors.New("join filter has no bound feature collection")
)
