package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these
// (optionally wrapped) so services can translate them into domain
// errors without inspecting driver-specific failures.
//
// These represent factual states about resources, not validation
// failures:
// - ErrNotFound: record/rule does not exist in the store
// - ErrConflict: transactional conflict, safe to retry with fresh state
// - ErrInvalidState: record in wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
