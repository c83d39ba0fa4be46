package engine

import (
	"context"
	"testing"
	"time"

	"github.com/SentinalMax/MineScan/internal/registry"
	"github.com/SentinalMax/MineScan/internal/scanengine"
)

func noopProbe(ctx context.Context, ep scanengine.OpenEndpoint) error { return nil }

func waitForTerminal(t *testing.T, e *Engine, scanID string, timeout time.Duration) registry.ScanRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := e.Registry.Get(scanID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		switch rec.Status {
		case registry.StatusCompleted, registry.StatusStopped, registry.StatusFailed:
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %s did not reach a terminal status within %s", scanID, timeout)
	return registry.ScanRecord{}
}

func TestStartScan_HappyPath(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 2}, noopProbe)

	result, err := e.StartScan(1000, StartScanRequest{Subnets: []string{"192.0.2.0/30"}})
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if result.Record.TotalSubnets != 1 || result.Record.HostCount != 4 {
		t.Fatalf("unexpected record: %+v", result.Record)
	}

	rec := waitForTerminal(t, e, result.Record.ScanID, 2*time.Second)
	if rec.Status != registry.StatusCompleted {
		t.Fatalf("expected completed, got %v (error=%s)", rec.Status, rec.Error)
	}
	if rec.SubnetsDone != 1 || rec.HostsDone != 4 {
		t.Fatalf("expected subnetsDone=1 hostsDone=4, got %d/%d", rec.SubnetsDone, rec.HostsDone)
	}
	if e.Registry.ActiveScanID() != "" {
		t.Fatalf("expected active slot cleared after completion")
	}
}

func TestStartScan_InvalidSubnets(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)

	result, err := e.StartScan(1, StartScanRequest{Subnets: []string{"10.0.0.0/24", "garbage", "::/0"}})
	if err != ErrInvalidSubnets {
		t.Fatalf("expected ErrInvalidSubnets, got %v", err)
	}
	if len(result.InvalidSubnets) != 1 || result.InvalidSubnets[0] != "garbage" {
		t.Fatalf("expected invalidSubnets=[garbage], got %v", result.InvalidSubnets)
	}
}

func TestStartScan_EmptySubnets(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)
	if _, err := e.StartScan(1, StartScanRequest{Subnets: nil}); err != ErrNoSubnets {
		t.Fatalf("expected ErrNoSubnets, got %v", err)
	}
}

func TestStartScan_RejectsConcurrent(t *testing.T) {
	// Drives the conflict path directly against the registry rather
	// than racing a real scan's completion: a scan that finds no
	// scanner binary can finish before a second StartScan call lands,
	// which would make a timing-based version of this test flaky.
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)

	if err := e.Registry.Admit(registry.ScanRecord{ScanID: "busy", CreatedAt: 1}); err != nil {
		t.Fatalf("seed admit: %v", err)
	}

	_, err := e.StartScan(2, StartScanRequest{Subnets: []string{"192.0.2.0/30"}})
	if err != registry.ErrConflict {
		t.Fatalf("expected ErrConflict on second scan, got %v", err)
	}
}

func TestStopScan_NotFoundAndConflict(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)

	if err := e.StopScan("missing"); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	result, err := e.StartScan(1, StartScanRequest{Subnets: []string{"192.0.2.0/30"}})
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitForTerminal(t, e, result.Record.ScanID, 2*time.Second)

	if err := e.StopScan(result.Record.ScanID); err != registry.ErrConflict {
		t.Fatalf("expected ErrConflict stopping a terminal scan, got %v", err)
	}
}

func TestStartScan_NotifiesOnTerminalStatus(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)

	notified := make(chan registry.ScanRecord, 1)
	e.Notify = func(rec registry.ScanRecord) { notified <- rec }

	result, err := e.StartScan(1000, StartScanRequest{Subnets: []string{"192.0.2.0/30"}})
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	select {
	case rec := <-notified:
		if rec.ScanID != result.Record.ScanID {
			t.Fatalf("expected notify for scan %s, got %s", result.Record.ScanID, rec.ScanID)
		}
		if rec.Status != registry.StatusCompleted {
			t.Fatalf("expected notify with terminal status, got %v", rec.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Notify to fire on scan completion")
	}
}

func TestResolveMaxActive_ClampsToDetectedCPUs(t *testing.T) {
	e := New(Config{PingsPerSec: 100, MaxActive: 1}, noopProbe)
	e.detectedCPUs = 4

	huge := 999
	if got := e.resolveMaxActive(&huge); got != 4 {
		t.Fatalf("expected clamp to 4, got %d", got)
	}

	small := 2
	if got := e.resolveMaxActive(&small); got != 2 {
		t.Fatalf("expected request value 2 to pass through, got %d", got)
	}

	if got := e.resolveMaxActive(nil); got != 1 {
		t.Fatalf("expected engine default 1 with no override, got %d", got)
	}
}
