// Command server runs the network twin engine.
//
// # Usage
//
//	server --config config.yaml --listen :8080
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Config file (YAML)
// - Environment variables (NETTWIN_*)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twinlab/nettwin/db/migrate"
	"github.com/twinlab/nettwin/internal/actions"
	"github.com/twinlab/nettwin/internal/api"
	"github.com/twinlab/nettwin/internal/bus"
	"github.com/twinlab/nettwin/internal/cache"
	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/internal/graphdb"
	"github.com/twinlab/nettwin/internal/hub"
	"github.com/twinlab/nettwin/internal/ingest"
	"github.com/twinlab/nettwin/internal/metrics"
	"github.com/twinlab/nettwin/internal/monitor"
	"github.com/twinlab/nettwin/internal/recorder"
	"github.com/twinlab/nettwin/internal/twin"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		listen     = flag.String("listen", "", "Listen address (overrides config)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("nettwin-server v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	reg := twin.NewRegistry(cfg.Twin.ModelName)

	msgBus, err := bus.New(cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer msgBus.Close()

	responseCache := cache.New(msgBus.Client(), logger)

	queue := ingest.NewQueue(cfg.Queue.Depth, cfg.Queue.OfferTimeout, logger)

	// Persistence is optional; without a database URL the queue drains
	// into a discard loop so it never fills.
	var rec *recorder.Recorder
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DatabaseConnectTimeout)
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err == nil {
			err = pool.Ping(ctx)
		}
		if err == nil {
			err = migrate.Run(ctx, pool, logger)
		}
		cancel()
		if err != nil {
			logger.Error("failed to set up database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("connected to database")

		rec = recorder.New(queue.Out(), recorder.NewTimescaleSink(pool, logger), logger)
		rec.Start()
		defer rec.Stop()
	} else {
		logger.Warn("no database configured, telemetry history disabled")
		go func() {
			for range queue.Out() {
			}
		}()
	}

	eventHub := hub.New(func() any {
		reg.RLock()
		defer reg.RUnlock()
		return twin.Project(reg)
	}, logger)
	eventHub.Start()
	defer eventHub.Stop()

	pipeline := ingest.NewPipeline(reg, queue, eventHub, logger)
	actionLog := actions.NewLog(eventHub, logger)

	liveness := monitor.New(reg, eventHub, cfg.Monitor.Interval, cfg.Monitor.Timeout, logger)
	liveness.Start()
	defer liveness.Stop()

	var mirror api.GraphMirror
	if cfg.Neo4j.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DatabaseConnectTimeout)
		m, err := graphdb.New(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, logger)
		cancel()
		if err != nil {
			logger.Error("failed to connect to neo4j", "error", err)
			os.Exit(1)
		}
		defer m.Close(context.Background())
		mirror = m
	}

	msgBus.SubscribeTelemetry(pipeline.Process)
	msgBus.SubscribeResults(actionLog.Resolve)

	collector := metrics.NewCollector(reg, queue, actionLog)

	apiServer := api.NewServer(api.Deps{
		Registry:       reg,
		Pipeline:       pipeline,
		ActionLog:      actionLog,
		Commands:       msgBus,
		Broadcast:      eventHub,
		Collector:      collector,
		Cache:          responseCache,
		Mirror:         mirror,
		AgentTokenHash: cfg.Agent.TokenHash,
	}, logger)
	apiServer.Mux().Handle("GET /ws", eventHub)

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			"listen", cfg.Server.Listen,
			"model", cfg.Twin.ModelName)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
