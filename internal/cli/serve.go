package cli

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrikvak/singq/internal/broadcast"
	"github.com/patrikvak/singq/internal/config"
	"github.com/patrikvak/singq/internal/reorder"
	"github.com/patrikvak/singq/internal/server"
	"github.com/patrikvak/singq/internal/store"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the singq HTTP server",
	Long: `Run the singq HTTP server.

The server exposes the reorder preview/apply workflow plus queue and
audit views. Applied reorders are broadcast to the configured webhook
URLs and NATS subject.

Examples:
  singq serve
  singq serve --listen 0.0.0.0:8730`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides the config file)")
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)

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

	broadcaster, closeBroadcast, err := buildBroadcaster(cfg, logger)
	if err != nil {
		logger.Error("failed to set up broadcast gateway", "error", err)
		os.Exit(1)
	}
	defer closeBroadcast()

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

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting singq server", "listen", cfg.Server.Listen, "db", cfg.Store.Path)
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

// newLogger builds a slog.Logger from the configured level and format.
func newLogger(logLevel, logFormat string) *slog.Logger {
	var level slog.Level
	switch logLevel {
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
	if logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// buildBroadcaster assembles the broadcast gateway from the config.
// The returned close func disconnects NATS; it is a no-op otherwise.
func buildBroadcaster(cfg *config.Config, logger *slog.Logger) (reorder.Broadcaster, func(), error) {
	var targets broadcast.Multi

	if wb := broadcast.NewWebhookBroadcaster(cfg.Broadcast.WebhookURLs, logger); wb != nil {
		targets = append(targets, wb)
		logger.Info("webhook broadcast configured", "count", len(cfg.Broadcast.WebhookURLs))
	}

	closeFn := func() {}
	if cfg.Broadcast.NATSURL != "" {
		nb, err := broadcast.NewNATSBroadcaster(cfg.Broadcast.NATSURL, cfg.Broadcast.NATSSubject, logger)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, nb)
		closeFn = nb.Close
		logger.Info("nats broadcast configured", "url", cfg.Broadcast.NATSURL)
	}

	if len(targets) == 0 {
		return broadcast.Nop{}, closeFn, nil
	}
	return targets, closeFn, nil
}
