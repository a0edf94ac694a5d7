package senderapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	s3infra "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/s3"
	tginfra "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/telegram"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/cleanup"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/sender"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	redrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/redis"
	broadcastsvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/broadcasts"
)

type userToucher interface {
	Touch(ctx context.Context, in pgrepo.BotUserTouch) error
}

// App drains queued broadcasts, removes old finished jobs and keeps the
// bot_users table fresh from incoming bot messages.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	bot        *tginfra.Bot
	users      userToucher
	senderJob  *sender.Job
	cleanupJob *cleanup.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for sender app: %w", err)
	}

	s3Client, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		// Text broadcasts still go out; photo jobs fail per recipient.
		logger.Warn("s3 init failed, images disabled", zap.Error(err))
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	storage := broadcastsvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	jobRepo := pgrepo.NewBroadcastJobRepo(pool)

	retention := time.Duration(cfg.Broadcast.CleanupAfterDays) * 24 * time.Hour
	cleanupJob := cleanup.New(jobRepo, storage, retention, logger.Named("cleanup"))

	var (
		bot       *tginfra.Bot
		senderJob *sender.Job
	)
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err = tginfra.NewBot(cfg.Bot.Token)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		senderJob = sender.New(jobRepo, redrepo.NewLockRepo(redisClient), storage, bot, sender.Config{
			BatchSize:   cfg.Broadcast.BatchSize,
			LockTTL:     cfg.Broadcast.LockTTL,
			ImageURLTTL: cfg.Broadcast.ImageURLTTL,
			RatePerSec:  cfg.Bot.SendRatePerSec,
			Burst:       cfg.Bot.SendBurst,
		}, logger.Named("sender"))
	} else {
		logger.Warn("BOT_TOKEN is empty, broadcast delivery disabled")
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		postgres:   pool,
		redis:      redisClient,
		bot:        bot,
		users:      pgrepo.NewBotUserRepo(pool),
		senderJob:  senderJob,
		cleanupJob: cleanupJob,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sender app started")

	errCh := make(chan error, 3)
	go func() {
		errCh <- a.runCleanupLoop(ctx)
	}()
	if a.senderJob != nil {
		go func() {
			errCh <- a.senderJob.Run(ctx, a.cfg.Broadcast.ProcessInterval)
		}()
	}
	if a.bot != nil && a.cfg.Bot.TrackUsers {
		go func() {
			errCh <- a.bot.Listen(ctx, tginfra.Handlers{
				OnMessage: a.handleMessage,
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("sender app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
}

func (a *App) runCleanupLoop(ctx context.Context) error {
	if a.cleanupJob == nil {
		return nil
	}

	interval := a.cfg.Broadcast.CleanupInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	if err := a.cleanupJob.Run(ctx); err != nil {
		a.logger.Warn("broadcast cleanup failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.cleanupJob.Run(ctx); err != nil {
				a.logger.Warn("broadcast cleanup failed", zap.Error(err))
			}
		}
	}
}

// handleMessage records the sender as an active bot user. Storage errors are
// logged so that one bad update does not stop the listener.
func (a *App) handleMessage(ctx context.Context, update tginfra.MessageUpdate) error {
	if a.users == nil || update.UserID == 0 {
		return nil
	}

	name := strings.TrimSpace(strings.TrimSpace(update.FirstName) + " " + strings.TrimSpace(update.LastName))
	err := a.users.Touch(ctx, pgrepo.BotUserTouch{
		TelegramID: update.UserID,
		Name:       name,
		Username:   strings.TrimSpace(update.Username),
		SeenAt:     update.SentAt,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("failed to record bot user activity", zap.Error(err), zap.Int64("telegram_id", update.UserID))
	}
	return nil
}
