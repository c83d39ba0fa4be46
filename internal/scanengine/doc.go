// Package scanengine drives one scan's worker pool: for each prepared
// CIDR work item it supervises a masscan child process (the Port-Scan
// Driver), dispatches application-layer probes against whatever it
// finds open (the Probe Dispatcher), and reports progress back to the
// caller.
//
// Cancellation is a per-scan context.Context, not a process-wide
// signal: every scan gets its own token so an operator stopping scan A
// can never affect scan B.
package scanengine
