package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"winch/internal/config"
	"winch/internal/daemon"
	"winch/internal/fetch"
	"winch/internal/logging"
	"winch/internal/queue"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	engine, err := fetch.NewClient(cfg.Fetch)
	if err != nil {
		logger.Error("build fetch client", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, store, engine, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("winchd shutting down")
}
