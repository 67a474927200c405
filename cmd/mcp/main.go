package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/studyforge/internal/adapters/mcp"
	"github.com/kirillkom/studyforge/internal/bootstrap"
	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/observability/logging"
)

// Stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.SetDefault(logging.NewJSONLogger(os.Stderr, "mcp", "info"))
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer("studyforge", "1.0.0", mcpadapter.NewTools(app.Trigger, app.Ledger, app.Reader))
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_serve_failed", "error", err)
	}
}
