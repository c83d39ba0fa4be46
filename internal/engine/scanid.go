package engine

import "github.com/google/uuid"

// newScanID generates an opaque scan identifier for callers that don't
// supply their own.
func newScanID() string {
	return uuid.NewString()
}
