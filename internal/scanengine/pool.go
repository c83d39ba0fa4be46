package scanengine

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
)

// ProgressFunc is called once per drained work item with the CIDR that
// was just scanned and the number of host addresses it covers.
type ProgressFunc func(cidr string, hostsInSubnet int)

// Pool is the bounded-concurrency executor that pulls WorkItems from a
// shared queue and feeds each through a Driver then a Dispatcher. Its
// lifetime is the span of one scan: workers exit once the queue is
// empty or ctx is cancelled, never spawning per-subnet threads.
type Pool struct {
	Driver     *Driver
	Dispatcher *Dispatcher
	MaxActive  int
	OnProgress ProgressFunc
}

// Run drains workItems with W = min(maxActive, len(workItems)) workers
// and blocks until every worker has exited, either by draining the
// queue or observing ctx cancellation. An uncaught panic in any
// worker's scan work (driver or dispatcher) is recovered here, in the
// same goroutine that ran it, recorded as the first such failure, and
// used to cancel the remaining workers early; the caller is expected to
// finalize the scan as failed (§7's Fatal error kind) when Run returns
// a non-nil error, rather than completed or stopped.
func (p *Pool) Run(ctx context.Context, workItems []string) error {
	if len(workItems) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan string, len(workItems))
	for _, item := range workItems {
		queue <- item
	}
	close(queue)

	workers := p.MaxActive
	if workers > len(workItems) {
		workers = len(workItems)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		failure error
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if failure == nil {
						failure = fmt.Errorf("worker panic: %v", r)
					}
					mu.Unlock()
					cancel()
				}
			}()
			p.runWorker(runCtx, queue)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return failure
}

func (p *Pool) runWorker(ctx context.Context, queue <-chan string) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case cidr, ok := <-queue:
			if !ok {
				return
			}
			p.runOne(ctx, cidr)
		default:
			return
		}
	}
}

func (p *Pool) runOne(ctx context.Context, cidr string) {
	endpoints := p.Driver.ScanSubnet(ctx, cidr)
	if len(endpoints) > 0 {
		p.Dispatcher.Dispatch(ctx, endpoints, p.MaxActive)
	}
	if p.OnProgress != nil {
		p.OnProgress(cidr, hostsInCIDR(cidr))
	}
}

// hostsInCIDR returns the number of addresses in cidr, or 0 if it fails
// to parse (defensive; workItems are already validated by the subnet
// package before reaching the pool). Wide v6 blocks are clamped to
// 1<<62 rather than overflowed, since this only feeds a progress
// counter, not the admission-time hostCount computed by the subnet
// package's big.Int arithmetic.
func hostsInCIDR(cidr string) int {
	pfx, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0
	}
	bits := pfx.Addr().BitLen()
	shift := bits - pfx.Bits()
	if shift < 0 {
		return 0
	}
	if shift > 62 {
		return 1 << 62
	}
	return 1 << uint(shift)
}
