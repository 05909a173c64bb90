package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write lost to a unique-constraint violation
// - ErrUnchanged: requested mutation would leave the row as it already is
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store or backing resource temporarily unavailable
// - ErrExhausted: a bounded retry loop ran out of attempts
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnchanged    = errors.New("unchanged")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrExhausted    = errors.New("exhausted")
)
