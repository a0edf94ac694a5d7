package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

const batchLimit = 200

type JobStore interface {
	ListFinishedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.BroadcastJob, error)
	Delete(ctx context.Context, id int64, allowed []enums.JobStatus) error
}

type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Job removes finished broadcast jobs past retention together with their images.
type Job struct {
	jobs      JobStore
	storage   ObjectDeleter
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func New(jobs JobStore, storage ObjectDeleter, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		jobs:      jobs,
		storage:   storage,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	jobs, err := j.jobs.ListFinishedOlderThan(ctx, cutoff, batchLimit)
	if err != nil {
		return fmt.Errorf("list stale broadcast jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	finished := []enums.JobStatus{enums.JobStatusDone, enums.JobStatusCancelled, enums.JobStatusFailed}
	for _, job := range jobs {
		if job.ImageKey != "" && j.storage != nil {
			if err := j.storage.Delete(ctx, job.ImageKey); err != nil {
				j.logger.Warn("failed to delete broadcast image from storage", zap.Error(err), zap.String("object_key", job.ImageKey))
			}
		}
		if err := j.jobs.Delete(ctx, job.ID, finished); err != nil {
			return fmt.Errorf("delete broadcast job %d: %w", job.ID, err)
		}
	}

	j.logger.Info("cleanup stale broadcast jobs completed", zap.Int("deleted", len(jobs)))
	return nil
}
