package registry

import "errors"

// ErrNotFound is returned when a scanId has no matching record.
var ErrNotFound = errors.New("scan not found")

// ErrConflict is returned when an operation would violate the
// single-active-scan invariant, or would stop a scan not in a
// stoppable state.
var ErrConflict = errors.New("scan conflict")
