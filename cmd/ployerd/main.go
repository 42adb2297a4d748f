// Package main is the entry point for the ployerd daemon: the control
// plane process wiring storage, the container/proxy/git adapters, every
// background loop, and the HTTP surface together.
//
// Grounded on the teacher's cmd/deployerd/main.go: flag parsing, a -setup
// bootstrap path, Podman/Caddy readiness probing with a startup warning
// rather than a fatal error, and the signal-driven graceful shutdown.
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

	"github.com/nusendra/ployer/internal/config"
	"github.com/nusendra/ployer/internal/crypto"
	"github.com/nusendra/ployer/internal/deploy"
	"github.com/nusendra/ployer/internal/engine"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/gitclient"
	"github.com/nusendra/ployer/internal/health"
	"github.com/nusendra/ployer/internal/httpapi"
	"github.com/nusendra/ployer/internal/proxy"
	"github.com/nusendra/ployer/internal/serverhealth"
	"github.com/nusendra/ployer/internal/stats"
	"github.com/nusendra/ployer/internal/storage"
)

var version = "0.1.0"

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		port        = flag.Int("port", 0, "HTTP server port (overrides PLOYER_BIND_PORT)")
		setup       = flag.Bool("setup", false, "run initial setup and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ployerd version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.BindPort = *port
	}

	paths := config.GetPaths(cfg)
	if err := config.EnsureDirectories(paths); err != nil {
		log.Fatalf("failed to create directories: %v", err)
	}

	if *setup {
		runSetup(cfg, paths)
		return
	}

	if cfg.IsSecretKeyDefault() {
		log.Printf("WARNING: PLOYER_SECRET_KEY is unset, using the insecure development default")
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	eng := engine.NewClient(cfg.EngineSocket)
	if err := eng.Ping(context.Background()); err != nil {
		log.Printf("warning: container engine not reachable at %s: %v", cfg.EngineSocket, err)
	} else {
		log.Printf("container engine connected at %s", cfg.EngineSocket)
	}

	proxyMgr := proxy.NewManager(cfg.ProxyAdminURL)
	if !proxyMgr.IsReady(context.Background()) {
		log.Printf("warning: reverse proxy admin API not reachable at %s", cfg.ProxyAdminURL)
	} else {
		log.Printf("reverse proxy connected at %s", cfg.ProxyAdminURL)
	}

	scm := gitclient.New()
	bus := eventbus.New(eventbus.DefaultBufferSize)
	envelope := crypto.New(cfg.SecretKey)

	executor := deploy.NewExecutor(store, eng, scm, proxyMgr, bus, envelope, paths.Builds)

	healthCtl := health.NewController(store, eng, bus)
	healthCtl.Start()
	defer healthCtl.Stop()

	statsAgg := stats.NewAggregator(store, eng, bus)
	statsAgg.Start()
	defer statsAgg.Stop()

	liveness := serverhealth.NewMonitor(store, bus)
	liveness.Start()
	defer liveness.Stop()

	handler := httpapi.New(store, executor, proxyMgr, bus, envelope, cfg.SecretKey, paths.Data, cfg.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.BindHost, cfg.BindPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("ployerd listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
	log.Println("stopped")
}

func runSetup(cfg *config.Config, paths config.Paths) {
	fmt.Println("=== ployer setup ===")
	fmt.Printf("data directory: %s\n", paths.Data)
	fmt.Printf("builds directory: %s\n", paths.Builds)

	fmt.Print("checking container engine... ")
	eng := engine.NewClient(cfg.EngineSocket)
	if err := eng.Ping(context.Background()); err != nil {
		fmt.Printf("NOT REACHABLE (%v)\n", err)
	} else {
		fmt.Println("OK")
	}

	fmt.Print("checking reverse proxy admin API... ")
	proxyMgr := proxy.NewManager(cfg.ProxyAdminURL)
	if proxyMgr.IsReady(context.Background()) {
		fmt.Println("OK")
	} else {
		fmt.Println("NOT REACHABLE")
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	store.Close()
	fmt.Printf("database initialized: %s\n", cfg.DBPath)

	fmt.Println()
	fmt.Println("setup complete. start the daemon with: ployerd")
}
