package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type stubJobStore struct {
	jobs    []model.BroadcastJob
	cutoff  time.Time
	deleted []int64
	allowed []enums.JobStatus
}

func (s *stubJobStore) ListFinishedOlderThan(_ context.Context, cutoff time.Time, _ int) ([]model.BroadcastJob, error) {
	s.cutoff = cutoff
	return s.jobs, nil
}

func (s *stubJobStore) Delete(_ context.Context, id int64, allowed []enums.JobStatus) error {
	s.deleted = append(s.deleted, id)
	s.allowed = allowed
	return nil
}

type stubStorage struct {
	keys []string
	err  error
}

func (s *stubStorage) Delete(_ context.Context, key string) error {
	s.keys = append(s.keys, key)
	return s.err
}

func TestRunDeletesStaleJobsAndImages(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &stubJobStore{jobs: []model.BroadcastJob{
		{ID: 1, Status: enums.JobStatusDone, ImageKey: "broadcasts/a.jpg"},
		{ID: 2, Status: enums.JobStatusCancelled},
	}}
	storage := &stubStorage{err: errors.New("s3 down")}

	job := New(store, storage, 48*time.Hour, nil)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run cleanup: %v", err)
	}

	if !store.cutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff: %s", store.cutoff)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("unexpected deleted jobs: %v", store.deleted)
	}
	if len(storage.keys) != 1 || storage.keys[0] != "broadcasts/a.jpg" {
		t.Fatalf("unexpected deleted images: %v", storage.keys)
	}
	for _, status := range store.allowed {
		if !status.Finished() {
			t.Fatalf("cleanup must only delete finished jobs, got allowed status %s", status)
		}
	}
}

func TestRunWithoutStoreIsNoop(t *testing.T) {
	if err := New(nil, nil, 0, nil).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
