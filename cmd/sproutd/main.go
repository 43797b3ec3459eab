package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"sprout/internal/api"
	"sprout/internal/config"
	"sprout/internal/daemon"
	"sprout/internal/logging"
	"sprout/internal/milestones"
	"sprout/internal/notifications"
	"sprout/internal/pipeline"
	"sprout/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return
	}

	if err := milestones.Seed(ctx, st); err != nil {
		logger.Error("seed milestone library", logging.Error(err))
		_ = st.Close()
		return
	}

	notifier := notifications.NewService(cfg)
	supervisor := pipeline.New(cfg, st, logger, notifier)
	server := api.NewServer(cfg, st, logger, supervisor)

	d, err := daemon.New(cfg, st, logger, supervisor, server)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("sproutd shutting down")
}
