package engine

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/SentinalMax/MineScan/internal/registry"
	"github.com/SentinalMax/MineScan/internal/scanengine"
	"github.com/SentinalMax/MineScan/internal/subnet"
)

// Config holds the engine's resolved tunables. All three fields
// correspond to the environment variables documented in
// internal/config.
type Config struct {
	PingsPerSec   int
	MaxActive     int
	ChunkPrefixV4 *int // nil disables chunking
}

// StartScanRequest is the normalized input to StartScan, already
// stripped of the HTTP layer's request-body shape.
type StartScanRequest struct {
	Subnets       []string
	ScanID        string // optional; generated by StartScan if empty
	MaxActive     *int   // optional per-request override
}

// StartScanResult carries either the admitted record or a structured
// rejection reason the control plane can map to an HTTP status.
type StartScanResult struct {
	Record         registry.ScanRecord
	InvalidSubnets []string
}

// ErrNoSubnets is returned when, after normalization, no valid subnet
// remains to scan.
var ErrNoSubnets = fmt.Errorf("no valid subnets to scan")

// NotifyFunc is an optional hook invoked once per scan on every
// terminal status transition (completed, stopped, or failed). It
// generalizes the original scanner's hardcoded Discord-webhook
// completion ping into a pluggable callback; left nil, Engine does
// nothing beyond its own logging.
type NotifyFunc func(rec registry.ScanRecord)

// Engine coordinates one scan's full lifecycle: normalize, admit, run
// the worker pool, finalize, and feed the throughput estimator.
type Engine struct {
	Config Config
	Probe  scanengine.Probe
	Notify NotifyFunc

	Registry  *registry.Registry
	Estimator *registry.Estimator

	detectedCPUs int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Engine. cfg.MaxActive, if zero, defaults to the
// detected CPU affinity count.
func New(cfg Config, probe scanengine.Probe) *Engine {
	detected := runtime.NumCPU()
	if cfg.MaxActive < 1 {
		cfg.MaxActive = detected
	}
	return &Engine{
		Config:       cfg,
		Probe:        probe,
		Registry:     registry.New(),
		Estimator:    registry.NewEstimator(),
		detectedCPUs: detected,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// resolveMaxActive applies §5's precedence: explicit request value,
// else the engine default, clamped down (never up) to detected CPUs.
func (e *Engine) resolveMaxActive(requested *int) int {
	maxActive := e.Config.MaxActive
	if requested != nil && *requested >= 1 {
		maxActive = *requested
	}
	if maxActive > e.detectedCPUs {
		log.Printf("engine: requested maxActive %d exceeds detected CPUs %d; clamping", maxActive, e.detectedCPUs)
		maxActive = e.detectedCPUs
	}
	if maxActive < 1 {
		maxActive = 1
	}
	return maxActive
}

// StartScan normalizes and admits req, then launches the worker pool in
// the background. It returns as soon as the record is admitted; the
// caller's HTTP handler thread never blocks on scan work.
func (e *Engine) StartScan(now float64, req StartScanRequest) (StartScanResult, error) {
	normalized, invalid := subnet.ParseAndCollapse(req.Subnets)
	if len(invalid) > 0 {
		return StartScanResult{InvalidSubnets: invalid}, ErrInvalidSubnets
	}
	if len(normalized) == 0 {
		return StartScanResult{}, ErrNoSubnets
	}

	chunkEnabled := e.Config.ChunkPrefixV4 != nil
	chunkPrefix := 0
	if chunkEnabled {
		chunkPrefix = *e.Config.ChunkPrefixV4
	}
	workItems, hostCount := subnet.Prepare(normalized, chunkPrefix, chunkEnabled)
	if len(workItems) == 0 {
		return StartScanResult{}, ErrNoSubnets
	}

	maxActive := e.resolveMaxActive(req.MaxActive)

	scanID := req.ScanID
	if scanID == "" {
		scanID = newScanID()
	}

	rec := registry.ScanRecord{
		ScanID:       scanID,
		Subnets:      normalized,
		TotalSubnets: len(workItems),
		HostCount:    hostCount.Int64(),
		Status:       registry.StatusQueued,
		CreatedAt:    now,
	}
	if seconds, ok := e.Estimator.Estimate(rec.HostCount); ok {
		rec.EstimatedSeconds = &seconds
	}

	if err := e.Registry.Admit(rec); err != nil {
		return StartScanResult{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[scanID] = cancel
	e.mu.Unlock()

	go e.run(ctx, scanID, workItems, maxActive)

	admitted, _ := e.Registry.Get(scanID)
	return StartScanResult{Record: admitted}, nil
}

// ErrInvalidSubnets is returned when one or more input subnets failed
// to parse; the caller inspects StartScanResult.InvalidSubnets for
// which ones.
var ErrInvalidSubnets = fmt.Errorf("invalid subnets")

// run drives one scan's worker pool to completion and finalizes the
// registry record. It always clears the per-scan cancel func on exit.
func (e *Engine) run(ctx context.Context, scanID string, workItems []string, maxActive int) {
	defer e.clearCancel(scanID)

	startedAt := float64(time.Now().Unix())
	if err := e.Registry.Start(scanID, startedAt); err != nil {
		log.Printf("engine: scan %s vanished before start: %v", scanID, err)
		return
	}

	driver := &scanengine.Driver{PingsPerSec: e.Config.PingsPerSec, MaxActive: maxActive}
	dispatcher := &scanengine.Dispatcher{Probe: e.Probe}
	pool := &scanengine.Pool{
		Driver:     driver,
		Dispatcher: dispatcher,
		MaxActive:  maxActive,
		OnProgress: func(cidr string, hosts int) {
			e.Registry.AddProgress(scanID, 1, hosts)
		},
	}

	// Pool.Run recovers panics in its own worker goroutines (the
	// goroutines that actually run Driver/Dispatcher/Probe code) and
	// reports the first one back here instead of letting it crash the
	// process, per §7's Fatal error kind.
	runErr := pool.Run(ctx, workItems)

	rec, err := e.Registry.Get(scanID)
	if err != nil {
		log.Printf("engine: scan %s vanished before finalize: %v", scanID, err)
		return
	}

	status := registry.StatusCompleted
	switch {
	case runErr != nil:
		status = registry.StatusFailed
	case rec.Status == registry.StatusStopping || ctx.Err() != nil:
		status = registry.StatusStopped
	}

	finishedAt := float64(time.Now().Unix())
	hostCount, duration := e.Registry.Finalize(scanID, status, finishedAt, runErr)
	e.Estimator.Observe(hostCount, duration)

	if runErr != nil {
		log.Printf("engine: scan %s failed: %v", scanID, runErr)
	}
	log.Printf("engine: scan %s finished status=%s subnets=%d hosts=%s duration=%s",
		scanID, status, rec.TotalSubnets, humanize.Comma(hostCount), humanize.RelTime(time.Unix(int64(startedAt), 0), time.Unix(int64(finishedAt), 0), "", "elapsed"))
	e.notify(scanID)
}

// notify invokes the optional completion hook with the now-finalized
// record, if one is wired. A missing or vanished record is not possible
// here in practice (Finalize just wrote it), but the lookup failing is
// treated as "nothing to notify" rather than a panic.
func (e *Engine) notify(scanID string) {
	if e.Notify == nil {
		return
	}
	rec, err := e.Registry.Get(scanID)
	if err != nil {
		return
	}
	e.Notify(rec)
}

// StopScan requests cooperative cancellation of scanID. It returns
// immediately after signalling; the background task transitions the
// record to stopped once the pool observes the cancelled context.
func (e *Engine) StopScan(scanID string) error {
	if err := e.Registry.RequestStop(scanID); err != nil {
		return err
	}

	e.mu.Lock()
	cancel, ok := e.cancels[scanID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (e *Engine) clearCancel(scanID string) {
	e.mu.Lock()
	delete(e.cancels, scanID)
	e.mu.Unlock()
}
