package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/studyforge/internal/adapters/http"
	"github.com/kirillkom/studyforge/internal/bootstrap"
	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/observability/logging"
	"github.com/kirillkom/studyforge/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Install("api", "info")
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logging.Install("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:   app.Ingest,
		Reader:     app.Reader,
		StudyPacks: app.StudyPacks,
		Trigger:    app.Trigger,
		Accounts:   app.Ledger,
		Payments:   app.Payments,
		Identity:   app.Identity,
	}, metrics.NewHTTPServerMetrics("api"))
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		slog.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
