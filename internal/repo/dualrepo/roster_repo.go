package dualrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
)

const (
	ModeDual = "dual"
	ModeFile = "file"
	ModeDB   = "db"
)

type RosterRepo interface {
	ListUsers(context.Context) (model.Roster, error)
	Delete(context.Context, string) error
}

// DualRepo reads the roster from the database and falls back to the JSON file
// when the database is unavailable. Deletes follow the same routing.
type DualRepo struct {
	dbRepo   RosterRepo
	fileRepo RosterRepo
	mode     string
}

func NewRosterRepo(dbRepo RosterRepo, fileRepo RosterRepo, mode string) *DualRepo {
	normalizedMode := strings.ToLower(strings.TrimSpace(mode))
	switch normalizedMode {
	case ModeDB, ModeFile, ModeDual:
	default:
		normalizedMode = ModeDual
	}
	return &DualRepo{
		dbRepo:   dbRepo,
		fileRepo: fileRepo,
		mode:     normalizedMode,
	}
}

func (r *DualRepo) ListUsers(ctx context.Context) (model.Roster, error) {
	return callWithFallback(ctx, r, func(repo RosterRepo) (model.Roster, error) {
		return repo.ListUsers(ctx)
	})
}

func (r *DualRepo) Delete(ctx context.Context, id string) error {
	_, err := callWithFallback(ctx, r, func(repo RosterRepo) (struct{}, error) {
		return struct{}{}, repo.Delete(ctx, id)
	})
	return err
}

// IsFallbackable reports whether a database error should be retried against the file.
// Caller cancellation and a missing row are answers, not outages.
func IsFallbackable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, pgrepo.ErrNotFound)
}

func callWithFallback[T any](ctx context.Context, dualRepo *DualRepo, call func(RosterRepo) (T, error)) (T, error) {
	var zero T
	if dualRepo == nil {
		return zero, errors.New("dual roster repo is nil")
	}

	switch dualRepo.mode {
	case ModeDB:
		if dualRepo.dbRepo == nil {
			return zero, errors.New("db roster repo is not configured")
		}
		return call(dualRepo.dbRepo)
	case ModeFile:
		if dualRepo.fileRepo == nil {
			return zero, errors.New("file roster repo is not configured")
		}
		return call(dualRepo.fileRepo)
	default:
		if dualRepo.dbRepo == nil {
			if dualRepo.fileRepo == nil {
				return zero, errors.New("roster repos are not configured")
			}
			return call(dualRepo.fileRepo)
		}

		value, err := call(dualRepo.dbRepo)
		if err == nil {
			return value, nil
		}
		if dualRepo.fileRepo == nil || !IsFallbackable(ctx, err) {
			return zero, err
		}
		fileValue, fileErr := call(dualRepo.fileRepo)
		if fileErr != nil {
			return zero, fmt.Errorf("db err: %v; file fallback err: %w", err, fileErr)
		}
		return fileValue, nil
	}
}
