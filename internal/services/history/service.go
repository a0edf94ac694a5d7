package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var (
	ErrValidation         = errors.New("validation error")
	ErrHistoryUnavailable = errors.New("broadcast history unavailable")
)

type JobStore interface {
	ListRecent(ctx context.Context, limit int) ([]model.BroadcastJob, error)
}

type Config struct {
	DefaultLimit int
}

type Service struct {
	store        JobStore
	defaultLimit int
}

func NewService(store JobStore, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > MaxLimit {
		cfg.DefaultLimit = DefaultLimit
	}
	return &Service{
		store:        store,
		defaultLimit: cfg.DefaultLimit,
	}
}

// Recent returns up to limit broadcast jobs, newest first. A zero limit uses the
// configured default. An empty table yields an empty, non-nil slice.
func (s *Service) Recent(ctx context.Context, limit int) ([]model.BroadcastJob, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit must be positive: %w", ErrValidation)
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: job store is nil", ErrHistoryUnavailable)
	}

	jobs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	if jobs == nil {
		jobs = []model.BroadcastJob{}
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}
