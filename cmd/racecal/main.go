package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"racecal/internal/cli"
	appLog "racecal/internal/log"
)

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := cli.Execute(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
