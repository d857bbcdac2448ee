package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tessera.estate/internal/config"
	"tessera.estate/internal/persistence/archive"
	"tessera.estate/internal/persistence/journal"
	"tessera.estate/internal/persistence/mirror"
	"tessera.estate/internal/persistence/store"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/reasoning"
	"tessera.estate/internal/sim/multinet"
	"tessera.estate/internal/sim/network"
	"tessera.estate/internal/transport/eventstream"
	"tessera.estate/internal/transport/httpapi"
	"tessera.estate/internal/transport/relay"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/network.yaml", "config file path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		storeDSN   = flag.String("store", "", "index store DSN (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *storeDSN != "" {
		cfg.StoreDSN = *storeDSN
	}
	if len(cfg.Networks) == 0 {
		logger.Fatalf("no networks configured in %s", *configPath)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Index store: queryable read model, never authoritative for
	// simulation state.
	var idx *store.Store
	if strings.TrimSpace(cfg.StoreDSN) != "" {
		idx, err = store.Open(cfg.StoreDSN)
		if err != nil {
			logger.Fatalf("open store %s: %v", cfg.StoreDSN, err)
		}
		defer idx.Close()
	}

	var mir *mirror.Mirror
	if cfg.Mirror.Enabled() {
		mir, err = mirror.New(cfg.Mirror, cfg.DataDir, logger)
		if err != nil {
			logger.Fatalf("init mirror: %v", err)
		}
		defer mir.Close()
	}

	hub := eventstream.NewHub()
	events := []network.EventSink{hub}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		rel, err := relay.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatalf("nats relay: %v", err)
		}
		defer rel.Close()
		events = append(events, rel)
	}

	var narrator reasoning.Engine
	switch {
	case strings.TrimSpace(cfg.Reasoning.URL) != "":
		narrator = reasoning.NewHTTPEngine(cfg.Reasoning.URL, cfg.Reasoning.Token)
	case cfg.Reasoning.Stub:
		narrator = reasoning.Stub{}
	}

	runtimes := map[string]*multinet.Runtime{}
	for _, spec := range cfg.Networks {
		netCfg, err := spec.Build()
		if err != nil {
			logger.Fatalf("network %s: %v", spec.ID, err)
		}
		if netCfg.ReasoningTimeoutSeconds == 0 {
			netCfg.ReasoningTimeoutSeconds = cfg.Reasoning.TimeoutSeconds
		}

		netLogger := log.New(os.Stdout, "["+spec.ID+"] ", log.LstdFlags|log.Lmicroseconds)
		session, err := network.NewSession(netCfg, netLogger)
		if err != nil {
			logger.Fatalf("network %s: %v", spec.ID, err)
		}

		jw := journal.NewWriter(cfg.DataDir, spec.ID)
		defer jw.Close()
		session.AddSink(jw)
		if idx != nil {
			session.AddSink(idx)
		}
		// Journal before archive: the year bundle must be on disk when
		// the copy runs.
		session.AddSink(&archiveSink{dataDir: cfg.DataDir, mirror: mir, log: netLogger})
		session.SetEvents(fanout(events))
		if narrator != nil {
			session.SetNarrator(narrator)
		}

		runtimes[spec.ID] = &multinet.Runtime{Session: session, Clock: network.NewClock(session)}
	}

	mgr, err := multinet.NewManager(runtimes, cfg.DefaultNetworkID)
	if err != nil {
		logger.Fatalf("manager: %v", err)
	}

	api := httpapi.NewServer(mgr, logger)
	api.SetEventStream(eventstream.NewServer(mgr, hub, logger).Handler())
	api.SetMetrics(metricsHandler(mgr, mir))

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	logger.Printf("listening on %s (networks: %s)", cfg.Listen, strings.Join(mgr.IDs(), ", "))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Printf("shutdown: %v", err)
	}
}

// fanout publishes one event to every sink; a single sink passes through
// untouched.
func fanout(sinks []network.EventSink) network.EventSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return fanoutSink(sinks)
}

type fanoutSink []network.EventSink

func (f fanoutSink) Publish(ev protocol.Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// archiveSink bundles each finished year and hands the artifacts to the
// object-store mirror.
type archiveSink struct {
	dataDir string
	mirror  *mirror.Mirror
	log     *log.Logger
}

func (a *archiveSink) AppendTick(rec network.TickRecord) error {
	year, archivedPath, ok, err := archive.ArchiveYear(a.dataDir, rec)
	if err != nil {
		return fmt.Errorf("archive year: %w", err)
	}
	if !ok {
		return nil
	}
	a.log.Printf("archived year %d -> %s", year, filepath.Base(archivedPath))
	if a.mirror != nil {
		a.mirror.Enqueue(archivedPath)
		a.mirror.Enqueue(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
		a.mirror.Enqueue(filepath.Join(a.dataDir, rec.NetworkID,
			fmt.Sprintf("ticks-Y%04d.jsonl.zst", year)))
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
