package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spider/internal/config"
	"spider/internal/graph"
	"spider/internal/handler"
	"spider/internal/hub"
	"spider/internal/pattern"
	"spider/internal/resolver"
	"spider/internal/scanner"
	"spider/internal/service"
	"spider/internal/store"
	"spider/internal/store/sqlite"
	"spider/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Spider server...")

	// Load configuration
	var cfg *config.Config
	var cfgPath string
	var err error
	if *configPath != "" {
		cfg, cfgPath, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgPath != "" {
		log.Printf("Config loaded: %s", cfgPath)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Initialize SQLite store
	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	// Load the diagnostic pattern library
	library, err := pattern.Open(cfg.Patterns.Path)
	if err != nil {
		log.Fatalf("Failed to load pattern library: %v", err)
	}
	log.Printf("Pattern library loaded: %s (%d patterns, %d rejected)",
		cfg.Patterns.Path, len(library.Patterns()), library.Rejected())

	// Root context for background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize event bus and SSE hub
	eventBus := service.NewEventBus()
	sseHub := hub.New()
	go sseHub.Run()
	sseHub.Relay(ctx, eventBus)

	// Build the scanner registry from the configured fleet
	registry := scanner.NewRegistry(cfg.Scan.HostTimeout.Duration())
	runners, err := registerScanners(registry, cfg)
	if err != nil {
		log.Fatalf("Failed to set up scanners: %v", err)
	}
	defer func() {
		for _, r := range runners {
			if err := r.Close(); err != nil {
				log.Printf("Runner close error: %v", err)
			}
		}
	}()

	// Initialize services
	res := resolver.New(resolver.NewIndex())
	builder := graph.NewBuilder(graph.DefaultRules()...)
	ingestor := service.NewIngestor(registry, res, builder, st, eventBus)
	diagnoser := service.NewDiagnoser(ingestor, library, st, eventBus)
	svc := service.New(ingestor, diagnoser, cfg.Scan.Interval.Duration())

	// Prune old generations after each completed cycle
	if cfg.Scan.KeepGenerations > 0 {
		go pruneLoop(ctx, eventBus, st, cfg.Scan.KeepGenerations)
	}

	// Reload patterns when the file changes on disk
	if cfg.Patterns.Watch {
		w := watcher.New(cfg.Patterns.Path, func() {
			if err := diagnoser.ReloadPatterns(); err != nil {
				log.Printf("Pattern reload failed: %v", err)
			}
		})
		go func() {
			if err := w.Watch(ctx); err != nil && err != context.Canceled {
				log.Printf("Pattern watcher stopped: %v", err)
			}
		}()
	}

	// Start the scan loop
	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Scan loop stopped: %v", err)
		}
	}()

	// Setup routes
	h := handler.New(svc, library)
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.Handle("GET /events", sseHub)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop background loops
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// registerScanners wires one scanner set per configured host. Local hosts
// run commands directly; remote hosts go over SSH with a shared runner
// per host. The network sweep runs from the server host and is attached
// to the first local host in the fleet.
func registerScanners(registry *scanner.Registry, cfg *config.Config) ([]scanner.CommandRunner, error) {
	var runners []scanner.CommandRunner

	networkHost := ""
	for i := range cfg.Hosts {
		h := &cfg.Hosts[i]

		var runner scanner.CommandRunner
		if h.Local() {
			runner = scanner.LocalRunner{}
			if networkHost == "" {
				networkHost = h.ID
			}
		} else {
			sshRunner, err := scanner.NewSSHRunner(h.Addr, h.User, h.KeyPath, 30*time.Second)
			if err != nil {
				return runners, err
			}
			runner = sshRunner
			runners = append(runners, sshRunner)
		}

		if cfg.Scanners.Host {
			registry.Register(h.ID, scanner.NewHostScanner(runner))
		}
		if cfg.Scanners.Docker {
			registry.Register(h.ID, scanner.NewDockerScanner(runner))
		}
		if cfg.Scanners.Process.Enabled {
			ps := scanner.NewProcessScanner(runner)
			ps.Filter = cfg.Scanners.Process.Filter
			registry.Register(h.ID, ps)
		}
		if len(cfg.Scanners.Files) > 0 && h.Local() {
			registry.Register(h.ID, scanner.NewFileScanner(cfg.Scanners.Files))
		}
	}

	if cfg.Scanners.Network.Enabled {
		if networkHost == "" {
			log.Println("Network scanner enabled but no local host to attach it to, skipping")
		} else {
			registry.Register(networkHost,
				scanner.NewNetworkScanner(cfg.Scanners.Network.Targets, cfg.Scanners.Network.Ports))
		}
	}

	return runners, nil
}

// pruneLoop trims old graph generations after each scan cycle. It walks
// the store's host catalog rather than the live fleet, so hosts that left
// the config still have their history bounded.
func pruneLoop(ctx context.Context, bus *service.EventBus, st store.Store, keep int) {
	events := make(chan service.Event, 16)
	bus.Subscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event.Type != service.EventCycleComplete {
				continue
			}
			hosts, err := st.Hosts(ctx)
			if err != nil {
				log.Printf("Prune skipped, host listing failed: %v", err)
				continue
			}
			for _, hostID := range hosts {
				if err := st.PruneGenerations(ctx, hostID, keep); err != nil {
					log.Printf("Prune failed for %s: %v", hostID, err)
				}
			}
		}
	}
}
