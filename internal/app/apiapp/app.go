package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	s3infra "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/s3"
	tginfra "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/telegram"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/sender"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	redrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/redis"
	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	broadcastsvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/broadcasts"
	historysvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/history"
	planssvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/plans"
)

type App struct {
	cfg         config.Config
	logger      *zap.Logger
	server      *http.Server
	postgres    *pgxpool.Pool
	redis       *goredis.Client
	s3          *minio.Client
	closeRoster func() error
	httpRouter  http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	roster, err := newRosterSource(cfg.Roster, pool, redisClient, log)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		_ = redisClient.Close()
		return nil, err
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	jobRepo := pgrepo.NewBroadcastJobRepo(pool)
	planRepo := pgrepo.NewSubscriptionPlanRepo(pool)
	imageStorage := broadcastsvc.NewS3Storage(s3Client, cfg.S3.Bucket)

	historyService := historysvc.NewService(jobRepo, historysvc.Config{
		DefaultLimit: cfg.Broadcast.HistoryLimit,
	})
	planService := planssvc.NewService(planRepo)
	audienceService := audiencesvc.NewService(roster.provider)
	broadcastService := broadcastsvc.NewService(jobRepo, audienceService, imageStorage, broadcastsvc.Config{
		CancelOldDays:    cfg.Broadcast.CancelOldDays,
		CleanupAfterDays: cfg.Broadcast.CleanupAfterDays,
	})

	var processor *sender.Job
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err := tginfra.NewBot(cfg.Bot.Token)
		if err != nil {
			log.Warn("telegram init failed, manual processing disabled", zap.Error(err))
		} else {
			processor = sender.New(jobRepo, redrepo.NewLockRepo(redisClient), imageStorage, bot, sender.Config{
				BatchSize:   cfg.Broadcast.BatchSize,
				LockTTL:     cfg.Broadcast.LockTTL,
				ImageURLTTL: cfg.Broadcast.ImageURLTTL,
				RatePerSec:  cfg.Bot.SendRatePerSec,
				Burst:       cfg.Bot.SendBurst,
			}, log.Named("sender"))
		}
	} else {
		log.Warn("BOT_TOKEN is empty, manual processing disabled")
	}

	RegisterRoutes(r, Dependencies{
		HistoryService:   historyService,
		PlanService:      planService,
		AudienceService:  audienceService,
		BroadcastService: broadcastService,
		Processor:        processor,
		Logger:           log,
		Config:           cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:         cfg,
		logger:      log,
		server:      server,
		postgres:    pool,
		redis:       redisClient,
		s3:          s3Client,
		closeRoster: roster.closeFn,
		httpRouter:  r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.closeRoster != nil {
		if err := a.closeRoster(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
