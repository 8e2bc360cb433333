package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/app"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forwarder start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("forwarder starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	forwarder, err := app.NewForwarder(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize forwarder", "error", err)
		return err
	}

	// SIGHUP re-reads the destination config without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			forwarder.ReloadDestinations()
		}
	}()

	if err := forwarder.Run(ctx); err != nil {
		return fmt.Errorf("forwarder run: %w", err)
	}

	return nil
}
