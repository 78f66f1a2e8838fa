// Command bitbucket-mcp serves Bitbucket Server pull request tools over MCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket-mcp/internal/bitbucket"
	"bitbucket-mcp/internal/config"
	"bitbucket-mcp/internal/tools"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger writes to stderr; stdout belongs to the stdio transport.
// --debug switches to human-readable text at debug level.
func newLogger(level string, debug bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newDispatcher loads the Bitbucket configuration once and wires the tool
// dispatcher to a client built from it.
func newDispatcher() (*tools.Dispatcher, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.LogLevel(), flagDebug)
	logger.Info("bitbucket configured",
		"url", cfg.BaseURL(),
		"auth", cfg.Auth().String(),
		"default_project", cfg.DefaultProject(),
	)
	return tools.NewDispatcher(cfg, bitbucket.New(cfg), logger), logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
