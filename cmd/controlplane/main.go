package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/SentinalMax/MineScan/internal/config"
	"github.com/SentinalMax/MineScan/internal/control"
	"github.com/SentinalMax/MineScan/internal/engine"
	"github.com/SentinalMax/MineScan/internal/probe"
	"github.com/SentinalMax/MineScan/internal/store"
	"github.com/SentinalMax/MineScan/internal/verify"
)

// verifierShim adapts internal/verify.Verifier's Confirm signature onto
// probe.Verifier's, since probe deliberately avoids importing the verify
// package just to accept its Result type.
type verifierShim struct{ v *verify.Verifier }

func (s verifierShim) Confirm(ctx context.Context, ip string, port int) (probe.VerificationResult, error) {
	result, err := s.v.Confirm(ctx, ip, port)
	if err != nil {
		return probe.VerificationResult{}, err
	}
	return probe.VerificationResult{
		Confirmed: result.Confirmed,
		Service:   result.Service,
		Product:   result.Product,
		Version:   result.Version,
	}, nil
}

func main() {
	dbPath := flag.String("db", "./minescan.db", "SQLite database path for discovered servers")
	gopsEnabled := flag.Bool("gops", false, "Start github.com/google/gops diagnostics agent")
	verifyEnabled := flag.Bool("verify", false, "Corroborate open endpoints with an nmap service-detection pass (requires a local nmap binary and suitable privileges)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting MineScan control plane...")

	if *gopsEnabled {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Printf("gops: failed to start diagnostics agent: %v", err)
		}
	}

	cfg := config.Load()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Printf("Database opened: %s", *dbPath)

	probeAdapter := probe.NewAdapter(db)

	if *verifyEnabled {
		verifier := verify.NewVerifier()
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		available := verifier.Available(checkCtx)
		cancel()
		if available {
			probeAdapter.Verifier = verifierShim{v: verifier}
			probeAdapter.VerifyRecord = db
			log.Println("nmap verification enabled")
		} else {
			log.Println("nmap verification requested but nmap is not available; continuing without it")
		}
	}

	eng := engine.New(engine.Config{
		PingsPerSec:   cfg.PingsPerSec,
		MaxActive:     cfg.MaxActive,
		ChunkPrefixV4: cfg.ChunkPrefixV4,
	}, probeAdapter.Probe)

	handler := &control.Handler{Engine: eng}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ControlPort),
		Handler:      handler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Control plane listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down control plane...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Control plane stopped")
}
