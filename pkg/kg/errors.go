package kg

import "errors"

// Error taxonomy for graph construction and retrieval. Only configuration
// and startup resource errors propagate to callers; the per-candidate
// conditions below are absorbed and logged.
var (
	// ErrExtraction marks a malformed content unit or candidate. The unit
	// is skipped and the stream continues.
	ErrExtraction = errors.New("malformed extraction candidate")

	// ErrResolutionConflict marks an ambiguous entity merge. It is
	// resolved deterministically toward the highest-similarity match and
	// logged, never returned from an ingest.
	ErrResolutionConflict = errors.New("ambiguous entity resolution")

	// ErrCapacityExceeded marks an insertion against a full graph. It
	// triggers the eviction policy and is never a hard failure.
	ErrCapacityExceeded = errors.New("graph node capacity exceeded")
)
