package verify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"
)

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout bounds a single nmap invocation.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.timeout = d }
}

// Verifier runs nmap service detection against an endpoint the core scan
// already found open, to confirm it looks like a Minecraft service rather
// than some other listener that happens to sit on the same port.
type Verifier struct {
	timeout time.Duration
}

// NewVerifier returns a Verifier with a conservative default timeout.
// Callers decide whether to use it at all — there is no package-level
// "enabled" flag, since the decision belongs to whoever wires the probe
// pipeline together (see cmd/controlplane).
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Result is the outcome of one verification attempt.
type Result struct {
	Confirmed bool
	Service   string
	Product   string
	Version   string
}

// Available reports whether the nmap binary can be invoked at all. Callers
// should check this once at startup and skip wiring Verifier in if it
// returns false, rather than failing every Confirm call.
func (v *Verifier) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(ctx, nmap.WithTargets("localhost"), nmap.WithListScan())
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// Confirm runs an nmap service-detection scan against ip:port and reports
// whether nmap's own fingerprint is consistent with a Minecraft service.
// nmap ships a "minecraft" service signature; agreement is treated as
// confirmation, and an unrecognized or unrelated service name is not — but
// is never treated as a hard failure of the underlying SLP probe result,
// since nmap's probe set can legitimately miss a server that SLP itself
// answered correctly.
func (v *Verifier) Confirm(ctx context.Context, ip string, port int) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(ip),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithServiceInfo(),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return Result{}, fmt.Errorf("build nmap scanner: %w", err)
	}

	run, warnings, err := scanner.Run()
	if err != nil {
		return Result{}, fmt.Errorf("nmap scan %s:%d: %w", ip, port, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("verify: nmap warnings for %s:%d: %v", ip, port, *warnings)
	}
	if len(run.Hosts) == 0 {
		return Result{}, nil
	}

	for _, p := range run.Hosts[0].Ports {
		if int(p.ID) != port {
			continue
		}
		service := strings.ToLower(p.Service.Name)
		confirmed := service == "minecraft" || strings.Contains(service, "minecraft")
		return Result{
			Confirmed: confirmed,
			Service:   p.Service.Name,
			Product:   p.Service.Product,
			Version:   p.Service.Version,
		}, nil
	}
	return Result{}, nil
}
