package main

import (
	"spindle/cmd/spindle/cmd"

	"spindle/core/logger"

	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// main is the entry point of the spindle application.
func main() {
	ctx := logger.WithComponentName(context.Background(), "main")

	// Flush buffered log entries on exit. Sync on stdout can fail on some
	// platforms, which is not worth reporting.
	defer func() { _ = logger.Logger.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info(ctx, "Received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()
	}()

	cmd.Execute(ctx)
}
