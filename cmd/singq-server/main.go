// Command singq-server runs the singq HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/patrikvak/singq/internal/broadcast"
	"github.com/patrikvak/singq/internal/config"
	"github.com/patrikvak/singq/internal/reorder"
	"github.com/patrikvak/singq/internal/server"
	"github.com/patrikvak/singq/internal/store"
)

func main() {
	configPath := flag.String("config", envOrDefault("SINGQ_CONFIG", "singq.toml"), "Path to the configuration file")
	listen := flag.String("listen", os.Getenv("SINGQ_LISTEN"), "Listen address (overrides the config file)")
	dbPath := flag.String("db", os.Getenv("SINGQ_DB"), "SQLite database path (overrides the config file)")
	logLevel := flag.String("log-level", os.Getenv("SINGQ_LOG_LEVEL"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", os.Getenv("SINGQ_LOG_FORMAT"), "Log format (json, text)")
	webhookURLs := flag.String("webhook-urls", os.Getenv("SINGQ_WEBHOOK_URLS"), "Comma-separated webhook URLs notified on apply")
	natsURL := flag.String("nats-url", os.Getenv("SINGQ_NATS_URL"), "NATS server URL for reorder broadcasts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	if *webhookURLs != "" {
		cfg.Broadcast.WebhookURLs = splitURLs(*webhookURLs)
	}
	if *natsURL != "" {
		cfg.Broadcast.NATSURL = *natsURL
	}

	// Setup logger
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Server.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	// Broadcast gateway
	var targets broadcast.Multi
	if wb := broadcast.NewWebhookBroadcaster(cfg.Broadcast.WebhookURLs, logger); wb != nil {
		targets = append(targets, wb)
		logger.Info("webhooks configured", "count", len(cfg.Broadcast.WebhookURLs))
	}
	if cfg.Broadcast.NATSURL != "" {
		nb, err := broadcast.NewNATSBroadcaster(cfg.Broadcast.NATSURL, cfg.Broadcast.NATSSubject, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err, "url", cfg.Broadcast.NATSURL)
			os.Exit(1)
		}
		defer nb.Close()
		targets = append(targets, nb)
		logger.Info("nats configured", "url", cfg.Broadcast.NATSURL)
	}
	var broadcaster reorder.Broadcaster = broadcast.Nop{}
	if len(targets) > 0 {
		broadcaster = targets
	}

	plans := reorder.NewDualPlanStore(st, logger)
	svc := reorder.NewService(st, plans, st, broadcaster,
		reorder.NewFairnessOptimizer(cfg.Scoring()),
		reorder.Config{PlanTTL: cfg.PlanTTL(), Defaults: cfg.Constraints()},
		logger)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(svc, nil, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting singq-server", "listen", cfg.Server.Listen, "db", cfg.Store.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func splitURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
