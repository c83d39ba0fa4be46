package probe

import (
	"context"
	"log"
	"time"

	"github.com/SentinalMax/MineScan/internal/scanengine"
)

// Recorder persists one successful status exchange. It is a narrow
// interface so probe doesn't need to import the store package directly;
// internal/store.Store satisfies it.
type Recorder interface {
	RecordServer(ctx context.Context, ip string, port int, status *StatusResponse, observedAt time.Time) error
}

// VerificationResult is the narrow shape Adapter needs out of an
// internal/verify.Result, so this package doesn't have to import verify
// just to accept its return type.
type VerificationResult struct {
	Confirmed bool
	Service   string
	Product   string
	Version   string
}

// Verifier is the optional corroboration collaborator
// (internal/verify.Verifier satisfies this) that re-checks an endpoint
// the SLP handshake already confirmed open, via an independent method
// (nmap service detection). Left nil, Adapter skips verification
// entirely — this is the default, since it requires a locally
// available nmap binary the control plane doesn't assume.
type Verifier interface {
	Confirm(ctx context.Context, ip string, port int) (VerificationResult, error)
}

// VerificationRecorder persists a Verifier's result against an
// already-recorded observation. internal/store.Store satisfies it via
// UpdateVerification.
type VerificationRecorder interface {
	UpdateVerification(ctx context.Context, ip string, port int, service, product, version string) error
}

// Adapter wires a Prober and a Recorder into the scanengine.Probe
// contract the dispatcher invokes per open endpoint. Verifier and
// VerificationRecorder are optional; Probe works with either or both
// left nil.
type Adapter struct {
	Prober   *Prober
	Recorder Recorder

	Verifier     Verifier
	VerifyRecord VerificationRecorder
}

// NewAdapter returns an Adapter with a default-timeout Prober and
// verification disabled.
func NewAdapter(recorder Recorder) *Adapter {
	return &Adapter{Prober: &Prober{Timeout: DefaultTimeout}, Recorder: recorder}
}

// Probe satisfies scanengine.Probe: it is deliberately forgiving —
// timeouts and connection refusals are the overwhelmingly common case
// for scanned hosts that happen to have 25565 open for something else,
// so they are returned as plain errors for the dispatcher to log, never
// panics.
func (a *Adapter) Probe(ctx context.Context, ep scanengine.OpenEndpoint) error {
	status, err := a.Prober.Status(ctx, ep.IP, ep.Port)
	if err != nil {
		return err
	}
	if a.Recorder == nil {
		return nil
	}
	if err := a.Recorder.RecordServer(ctx, ep.IP, ep.Port, status, time.Now()); err != nil {
		log.Printf("probe: failed to persist %s:%d: %v", ep.IP, ep.Port, err)
		return err
	}

	a.verify(ctx, ep)
	return nil
}

// verify runs the optional corroboration pass, if wired. Failures are
// logged and never affect the already-recorded SLP observation, per
// internal/verify's "never a hard failure of the SLP result" policy.
func (a *Adapter) verify(ctx context.Context, ep scanengine.OpenEndpoint) {
	if a.Verifier == nil {
		return
	}
	result, err := a.Verifier.Confirm(ctx, ep.IP, ep.Port)
	if err != nil {
		log.Printf("probe: verification of %s:%d failed: %v", ep.IP, ep.Port, err)
		return
	}
	if !result.Confirmed || a.VerifyRecord == nil {
		return
	}
	if err := a.VerifyRecord.UpdateVerification(ctx, ep.IP, ep.Port, result.Service, result.Product, result.Version); err != nil {
		log.Printf("probe: failed to persist verification for %s:%d: %v", ep.IP, ep.Port, err)
	}
}
