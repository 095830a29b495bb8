package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"spate/internal/config"
	"spate/internal/daemon"
	"spate/internal/engine/memengine"
	"spate/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, memengine.New(), logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := registerPlugins(d); err != nil {
		logger.Error("register plugins", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	select {
	case <-ctx.Done():
		d.Stop()
	case <-d.Done():
	}
	logger.Info("spated shut down")
}
