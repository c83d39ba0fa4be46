package scanengine

import (
	"context"
	"log"

	"golang.org/x/sync/semaphore"
)

// Probe is the application-layer collaborator invoked against one open
// endpoint. It is responsible for its own persistence side effects; the
// dispatcher only bounds parallelism and isolates failures.
type Probe func(ctx context.Context, endpoint OpenEndpoint) error

// Dispatcher fans a subnet's open endpoints out to Probe with bounded
// intra-subnet parallelism.
type Dispatcher struct {
	Probe Probe
}

// Dispatch invokes d.Probe once per endpoint, capping concurrency at
// max(1, maxActive/2). A probe failure is logged and never propagated;
// it cannot stall or fail the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoints []OpenEndpoint, maxActive int) {
	if d.Probe == nil || len(endpoints) == 0 {
		return
	}

	parallelism := maxActive / 2
	if parallelism < 1 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	for _, ep := range endpoints {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(ep OpenEndpoint) {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					log.Printf("scanengine: probe %s:%d panicked: %v", ep.IP, ep.Port, r)
				}
			}()
			if err := d.Probe(ctx, ep); err != nil {
				log.Printf("scanengine: probe %s:%d failed: %v", ep.IP, ep.Port, err)
			}
		}(ep)
	}

	// Wait for all in-flight probes to finish by reacquiring the full
	// weight; this blocks until every released slot has returned.
	_ = sem.Acquire(context.Background(), int64(parallelism))
}
