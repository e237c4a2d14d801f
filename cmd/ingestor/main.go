package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/routepulse/routepulse/client"
	natsadapter "github.com/routepulse/routepulse/internal/adapters/nats"
	"github.com/routepulse/routepulse/internal/adapters/postgres"
	"github.com/routepulse/routepulse/internal/adapters/valkey"
	"github.com/routepulse/routepulse/internal/core/ports"
	"github.com/routepulse/routepulse/internal/core/usecases"
	"github.com/routepulse/routepulse/internal/pkg/config"
	"github.com/routepulse/routepulse/internal/pkg/logging"
	"github.com/routepulse/routepulse/internal/pkg/metrics"
	"github.com/routepulse/routepulse/internal/pkg/telemetry"
	"github.com/routepulse/routepulse/routeevent"
)

// routePoller owns the upstream call handle for one route. The first poll
// executes the handle; later polls clone it, since a handle runs once.
type routePoller struct {
	routeID string
	events  *client.Events
	polled  bool
}

func newRoutePoller(baseURL, routeID string, debug bool) (*routePoller, error) {
	ev, err := client.NewEvents(baseURL, routeID)
	if err != nil {
		return nil, err
	}
	ev.EnableDebug(debug)
	return &routePoller{routeID: routeID, events: ev}, nil
}

func (p *routePoller) fetch(ctx context.Context) ([]routeevent.RouteEvent, error) {
	var (
		resp *client.Response[[]routeevent.RouteEvent]
		err  error
	)
	if !p.polled {
		p.polled = true
		resp, err = p.events.Execute(ctx)
	} else {
		call, cerr := p.events.Clone()
		if cerr != nil {
			return nil, cerr
		}
		resp, err = call.Execute(ctx)
	}
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccessful() {
		return nil, fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func main() {
	cfg, err := config.Load("routepulse-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("routepulse-ingestor", logLevel, "json")

	if cfg.Upstream.BaseURL == "" {
		log.Fatal("upstream.base_url is required")
	}
	if len(cfg.Upstream.Routes) == 0 {
		log.Fatal("upstream.routes is empty, nothing to poll")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	db.StartPoolMetrics(ctx, 15*time.Second)

	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, skipping cache invalidation", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var pubSvc ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, skipping fan-out", "error", err)
	} else {
		defer pub.Close()
		pubSvc = pub
	}

	ingest := usecases.NewIngestService(postgres.NewEventRepo(db), cacheSvc, pubSvc)

	pollers := make([]*routePoller, 0, len(cfg.Upstream.Routes))
	for _, routeID := range cfg.Upstream.Routes {
		p, err := newRoutePoller(cfg.Upstream.BaseURL, routeID, cfg.Upstream.Debug)
		if err != nil {
			log.Fatalf("poller for route %s: %v", routeID, err)
		}
		pollers = append(pollers, p)
	}

	// Prometheus scrape endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("metrics endpoint starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()

	interval := time.Duration(cfg.Upstream.PollInterval) * time.Second
	slog.Info("ingestor starting",
		"routes", len(pollers),
		"interval", interval.String(),
		"upstream", cfg.Upstream.BaseURL,
	)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pollAll(ctx, cfg, ingest, pollers)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollAll(ctx, cfg, ingest, pollers)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())
	cancel()
}

// pollAll fetches every configured route with bounded concurrency.
func pollAll(ctx context.Context, cfg *config.Config, ingest *usecases.IngestService, pollers []*routePoller) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Upstream.Concurrency)

	for _, p := range pollers {
		wg.Add(1)
		go func(p *routePoller) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pollRoute(ctx, ingest, p)
		}(p)
	}

	wg.Wait()
}

func pollRoute(ctx context.Context, ingest *usecases.IngestService, p *routePoller) {
	start := time.Now()

	evs, err := p.fetch(ctx)
	metrics.UpstreamPollDuration.WithLabelValues(p.routeID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamPollErrors.WithLabelValues(p.routeID).Inc()
		slog.Error("poll failed", "route_id", p.routeID, "error", err)
		return
	}

	stored, err := ingest.StoreRouteEvents(ctx, p.routeID, evs)
	if err != nil {
		metrics.UpstreamPollErrors.WithLabelValues(p.routeID).Inc()
		slog.Error("store failed", "route_id", p.routeID, "error", err)
		return
	}

	metrics.EventsIngested.WithLabelValues(p.routeID).Add(float64(stored))
	slog.Info("route polled", "route_id", p.routeID, "fetched", len(evs), "stored", stored)
}
