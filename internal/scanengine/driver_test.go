package scanengine

import (
	"context"
	"strings"
	"testing"
)

func TestReadEndpoints_ParsesOpenLines(t *testing.T) {
	input := "open tcp 25565 192.0.2.1\n" +
		"open tcp 25566 192.0.2.2 1690000000\n" +
		"garbage line\n" +
		"open tcp notaport 192.0.2.3\n" +
		"\n"

	var seen []OpenEndpoint
	got := readEndpoints(context.Background(), strings.NewReader(input), func(ep OpenEndpoint) {
		seen = append(seen, ep)
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 parsed endpoints, got %d: %v", len(got), got)
	}
	if got[0].IP != "192.0.2.1" || got[0].Port != 25565 || got[0].Proto != "tcp" {
		t.Fatalf("unexpected first endpoint: %+v", got[0])
	}
	if got[1].IP != "192.0.2.2" || got[1].Port != 25566 {
		t.Fatalf("unexpected second endpoint: %+v", got[1])
	}
	if len(seen) != len(got) {
		t.Fatalf("OnEndpoint callback count mismatch: %d vs %d", len(seen), len(got))
	}
}

func TestReadEndpoints_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := "open tcp 25565 192.0.2.1\n"
	got := readEndpoints(ctx, strings.NewReader(input), nil)
	if len(got) != 0 {
		t.Fatalf("expected no endpoints read after cancellation, got %v", got)
	}
}

func TestDriver_Rate(t *testing.T) {
	d := &Driver{PingsPerSec: 4800, MaxActive: 4}
	if got := d.rate(); got != "1200" {
		t.Fatalf("expected rate 1200, got %s", got)
	}

	zero := &Driver{PingsPerSec: 100, MaxActive: 0}
	if got := zero.rate(); got != "100" {
		t.Fatalf("expected maxActive clamped to 1 giving rate 100, got %s", got)
	}
}

func TestFindScanner_MissingReturnsError(t *testing.T) {
	orig := masscanSearchPath
	masscanSearchPath = []string{"definitely-not-a-real-binary-xyz"}
	defer func() { masscanSearchPath = orig }()

	if _, err := findScanner(); err == nil {
		t.Fatal("expected error when no candidate resolves")
	}
}
