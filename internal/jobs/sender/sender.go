package sender

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/telegram"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
)

const (
	maxErrorLength = 500
	// statusCheckEvery is how many sends pass between job status re-reads.
	statusCheckEvery = 10
)

var ErrNotConfigured = errors.New("broadcast sender is not configured")

type JobStore interface {
	NextProcessable(ctx context.Context) (model.BroadcastJob, error)
	GetByID(ctx context.Context, id int64) (model.BroadcastJob, error)
	MarkRunning(ctx context.Context, id int64) error
	PendingRecipients(ctx context.Context, jobID int64, limit int) ([]model.BroadcastRecipient, error)
	MarkRecipientSent(ctx context.Context, jobID, recipientID int64) error
	MarkRecipientFailed(ctx context.Context, jobID, recipientID int64, reason string) error
	FinishIfResolved(ctx context.Context, jobID int64) (bool, error)
}

type Locker interface {
	AcquireJob(ctx context.Context, jobID int64, ttl time.Duration) (string, error)
	ReleaseJob(ctx context.Context, jobID int64, token string) error
}

type ImageLinker interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Messenger interface {
	Send(ctx context.Context, msg telegram.Message) error
}

type Config struct {
	BatchSize   int
	LockTTL     time.Duration
	ImageURLTTL time.Duration
	RatePerSec  float64
	Burst       int
}

// Result describes one processing pass.
type Result struct {
	JobID    int64
	Sent     int
	Failed   int
	Finished bool
	// Idle is set when nothing was queued.
	Idle bool
	// Busy is set when another worker holds the job lock or the job left the
	// queued/running states before this pass started.
	Busy bool
	// Throttled is set when Telegram asked the bot to slow down.
	Throttled bool
	// Interrupted is set when the job was paused or cancelled mid-batch.
	Interrupted bool
	// Unlocked is set when the batch went out without the distributed lock.
	Unlocked bool
}

func (r Result) Processed() int {
	return r.Sent + r.Failed
}

type Job struct {
	jobs      JobStore
	locker    Locker
	images    ImageLinker
	messenger Messenger
	limiter   *rate.Limiter
	cfg       Config
	sleep     func(context.Context, time.Duration) error
	logger    *zap.Logger
}

func New(jobs JobStore, locker Locker, images ImageLinker, messenger Messenger, cfg Config, logger *zap.Logger) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.ImageURLTTL <= 0 {
		cfg.ImageURLTTL = 24 * time.Hour
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		jobs:      jobs,
		locker:    locker,
		images:    images,
		messenger: messenger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cfg:       cfg,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// RunOnce sends one batch of the oldest processable job.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	if j == nil || j.jobs == nil || j.messenger == nil {
		return Result{}, ErrNotConfigured
	}

	job, err := j.jobs.NextProcessable(ctx)
	if err != nil {
		if errors.Is(err, pgrepo.ErrNotFound) {
			return Result{Idle: true}, nil
		}
		return Result{}, fmt.Errorf("get next broadcast job: %w", err)
	}

	result := Result{JobID: job.ID}

	if j.locker != nil {
		token, err := j.locker.AcquireJob(ctx, job.ID, j.cfg.LockTTL)
		switch {
		case err != nil && ctx.Err() != nil:
			return result, fmt.Errorf("acquire broadcast job lock: %w", err)
		case err != nil:
			// Lock backend is down; the conditional MarkRunning below is the only guard.
			j.logger.Warn("broadcast job lock unavailable, sending without it", zap.Error(err), zap.Int64("job_id", job.ID))
			result.Unlocked = true
		case token == "":
			result.Busy = true
			return result, nil
		default:
			defer func() {
				if err := j.locker.ReleaseJob(context.WithoutCancel(ctx), job.ID, token); err != nil {
					j.logger.Warn("failed to release broadcast job lock", zap.Error(err), zap.Int64("job_id", job.ID))
				}
			}()
		}
	}

	if err := j.jobs.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, pgrepo.ErrStatusConflict) {
			result.Busy = true
			return result, nil
		}
		return result, fmt.Errorf("mark broadcast job running: %w", err)
	}

	recipients, err := j.jobs.PendingRecipients(ctx, job.ID, j.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list pending recipients: %w", err)
	}

	photoURL := ""
	if job.ImageKey != "" && len(recipients) > 0 {
		if j.images == nil {
			return result, fmt.Errorf("%w: image storage is missing for job %d", ErrNotConfigured, job.ID)
		}
		photoURL, err = j.images.PresignGet(ctx, job.ImageKey, j.cfg.ImageURLTTL)
		if err != nil {
			return result, fmt.Errorf("presign broadcast image: %w", err)
		}
	}

	for i, recipient := range recipients {
		if i > 0 && i%statusCheckEvery == 0 {
			current, err := j.jobs.GetByID(ctx, job.ID)
			if err != nil {
				return result, fmt.Errorf("reload broadcast job: %w", err)
			}
			if !IsActive(current.Status) {
				j.logger.Info("broadcast job stopped mid-batch",
					zap.Int64("job_id", job.ID),
					zap.String("status", string(current.Status)),
				)
				result.Interrupted = true
				return result, nil
			}
		}

		if err := j.limiter.Wait(ctx); err != nil {
			return result, err
		}

		sendErr := j.messenger.Send(ctx, buildMessage(job, recipient.TelegramID, photoURL))
		if sendErr != nil {
			if errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded) {
				return result, sendErr
			}
			if wait, ok := telegram.RetryAfter(sendErr); ok {
				j.logger.Warn("telegram flood control, pausing batch",
					zap.Int64("job_id", job.ID),
					zap.Duration("retry_after", wait),
				)
				result.Throttled = true
				if err := j.sleep(ctx, wait); err != nil {
					return result, err
				}
				break
			}

			if err := j.jobs.MarkRecipientFailed(ctx, job.ID, recipient.ID, truncate(sendErr.Error(), maxErrorLength)); err != nil {
				return result, fmt.Errorf("mark recipient failed: %w", err)
			}
			result.Failed++
			continue
		}

		if err := j.jobs.MarkRecipientSent(ctx, job.ID, recipient.ID); err != nil {
			return result, fmt.Errorf("mark recipient sent: %w", err)
		}
		result.Sent++
	}

	finished, err := j.jobs.FinishIfResolved(ctx, job.ID)
	if err != nil {
		return result, fmt.Errorf("finish broadcast job: %w", err)
	}
	result.Finished = finished

	if result.Processed() > 0 || finished {
		j.logger.Info("broadcast batch processed",
			zap.Int64("job_id", job.ID),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Bool("finished", finished),
		)
	}

	return result, nil
}

// Drain keeps sending batches until the queue is idle, the job is locked
// elsewhere or a pass makes no progress.
func (j *Job) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, nil
		}

		result, err := j.RunOnce(ctx)
		if err != nil {
			return total, err
		}
		total += result.Processed()

		if result.Idle || result.Busy || result.Throttled || result.Interrupted {
			return total, nil
		}
		if result.Processed() == 0 && !result.Finished {
			return total, nil
		}
	}
}

func (j *Job) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			j.logger.Error("broadcast sender pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// IsActive reports whether the job can still be sent.
func IsActive(status enums.JobStatus) bool {
	return status == enums.JobStatusQueued || status == enums.JobStatusRunning
}

func buildMessage(job model.BroadcastJob, chatID int64, photoURL string) telegram.Message {
	return telegram.Message{
		ChatID:    chatID,
		Text:      job.Text,
		ParseMode: job.Payload.ParseMode,
		PhotoURL:  photoURL,
		Buttons:   job.CustomButtons,
	}
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
