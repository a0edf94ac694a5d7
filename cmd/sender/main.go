package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/app/senderapp"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to APP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()
	log.Info("starting broadcast sender",
		zap.String("env", cfg.Env),
		zap.Int("batch_size", cfg.Broadcast.BatchSize),
		zap.Duration("process_interval", cfg.Broadcast.ProcessInterval),
		zap.Bool("track_users", cfg.Bot.TrackUsers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := senderapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create sender app", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatal("sender app failed", zap.Error(err))
	}
}
