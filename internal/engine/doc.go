// Package engine owns the scan lifecycle end to end: it normalizes
// subnets, admits a scan into the registry, runs the worker pool, and
// finalizes the record once the pool drains or is cancelled.
//
// Engine holds no process-wide globals. Every field is either
// immutable after construction or owned by one of its mutex-guarded
// collaborators (registry.Registry, registry.Estimator); per-scan
// cancellation lives in a private map of context.CancelFunc, guarded by
// its own mutex, so stopping one scan can never reach another.
package engine
