package scanengine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestHostsInCIDR(t *testing.T) {
	cases := map[string]int{
		"192.0.2.0/30": 4,
		"10.0.0.0/24":  256,
		"2001:db8::/127": 2,
	}
	for cidr, want := range cases {
		if got := hostsInCIDR(cidr); got != want {
			t.Errorf("hostsInCIDR(%s) = %d, want %d", cidr, got, want)
		}
	}
	if got := hostsInCIDR("not-a-cidr"); got != 0 {
		t.Errorf("expected 0 for invalid CIDR, got %d", got)
	}
}

func TestDispatcher_BoundsParallelismAndIsolatesFailures(t *testing.T) {
	var inFlight int32
	var maxObserved int32
	var mu sync.Mutex

	d := &Dispatcher{
		Probe: func(ctx context.Context, ep OpenEndpoint) error {
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > maxObserved {
				maxObserved = n
			}
			mu.Unlock()
			atomic.AddInt32(&inFlight, -1)
			if ep.Port == 25566 {
				return errProbeFailed
			}
			return nil
		},
	}

	endpoints := make([]OpenEndpoint, 20)
	for i := range endpoints {
		endpoints[i] = OpenEndpoint{IP: "192.0.2.1", Port: 25565 + i%3, Proto: "tcp"}
	}

	d.Dispatch(context.Background(), endpoints, 4) // parallelism = max(1, 4/2) = 2

	if maxObserved > 2 {
		t.Fatalf("expected at most 2 concurrent probes, observed %d", maxObserved)
	}
}

var errProbeFailed = errTest("probe failed")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestPool_Run_RecoversWorkerPanic(t *testing.T) {
	// Force findScanner to fail deterministically, regardless of
	// whether a real masscan binary happens to be installed on the
	// host running this test, so ScanSubnet returns immediately with
	// no endpoints and Dispatch is never reached.
	orig := masscanSearchPath
	masscanSearchPath = []string{"definitely-not-a-real-binary-xyz"}
	defer func() { masscanSearchPath = orig }()

	var calls int32
	driver := &Driver{PingsPerSec: 100, MaxActive: 1}
	dispatcher := &Dispatcher{
		Probe: func(ctx context.Context, ep OpenEndpoint) error { return nil },
	}
	p := &Pool{
		Driver:     driver,
		Dispatcher: dispatcher,
		MaxActive:  1,
		OnProgress: func(cidr string, hosts int) {
			// Panics in OnProgress run in the same worker goroutine as
			// runOne, exercising the same recover path a panic inside
			// Driver or Dispatcher would hit.
			if atomic.AddInt32(&calls, 1) == 1 {
				panic("boom")
			}
		},
	}

	err := p.Run(context.Background(), []string{"192.0.2.0/30", "198.51.100.0/30"})
	if err == nil {
		t.Fatal("expected Run to report the recovered panic as an error")
	}
}

func TestPool_RunDrainsAllWorkItems(t *testing.T) {
	// Exercises the queue-draining shape directly via a stub pool rather
	// than a real Driver, since no masscan binary is available in test
	// environments.
	var scanned sync.Map
	items := []string{"192.0.2.0/30", "198.51.100.0/30", "203.0.113.0/30"}
	p := &stubPool{}
	for _, item := range items {
		scanned.Store(item, false)
	}
	p.run(items, func(cidr string) {
		scanned.Store(cidr, true)
	})

	for _, item := range items {
		done, _ := scanned.Load(item)
		if done != true {
			t.Fatalf("expected %s to be drained", item)
		}
	}
}

// stubPool exercises the same non-blocking-dequeue worker shape as Pool
// without depending on an external scanner binary.
type stubPool struct{}

func (stubPool) run(items []string, onItem func(string)) {
	queue := make(chan string, len(items))
	for _, it := range items {
		queue <- it
	}
	close(queue)

	var wg sync.WaitGroup
	workers := len(items)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case cidr, ok := <-queue:
					if !ok {
						return
					}
					onItem(cidr)
				default:
					return
				}
			}
		}()
	}
	wg.Wait()
}
