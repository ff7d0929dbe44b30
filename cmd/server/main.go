package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picapica/photobooth-server/internal/api"
	"github.com/picapica/photobooth-server/internal/audit"
	"github.com/picapica/photobooth-server/internal/config"
	"github.com/picapica/photobooth-server/internal/dispatch"
	"github.com/picapica/photobooth-server/internal/relay"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.GetPort()
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	pool := relay.NewPool(cfg.SMTP)

	logger, err := audit.NewLogger(cfg.Audit.LogDir)
	if err != nil {
		log.Fatalf("Failed to open delivery log: %v", err)
	}

	aggregator := audit.NewAggregator(cfg.Audit.LogDir)
	dispatcher := dispatch.NewService(cfg, pool, logger, aggregator)
	router := api.SetupRoutes(api.NewHandlers(dispatcher), cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s (relay %s)", server.Addr, cfg.SMTP.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// In-flight requests are drained; now the relay sessions and the audit
	// writer can go.
	pool.Close()
	logger.Close()

	log.Println("Server stopped")
}
