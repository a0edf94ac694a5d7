package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type stubRosterSource struct {
	roster      model.Roster
	err         error
	listCalls   int
	deleteCalls int
}

func (s *stubRosterSource) ListUsers(context.Context) (model.Roster, error) {
	s.listCalls++
	return s.roster, s.err
}

func (s *stubRosterSource) Delete(context.Context, string) error {
	s.deleteCalls++
	return nil
}

func TestRosterCacheServesSecondReadFromRedis(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	lastActive := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	source := &stubRosterSource{roster: model.Roster{
		Users:   []model.BotUser{{ID: "u1", TelegramID: 1001, Name: "Anna", LastActive: lastActive}},
		Skipped: 1,
	}}
	repo := NewRosterCacheRepo(client, source, time.Minute, nil)
	ctx := context.Background()

	if _, err := repo.ListUsers(ctx); err != nil {
		t.Fatalf("first list: %v", err)
	}
	roster, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if source.listCalls != 1 {
		t.Fatalf("expected one source call, got %d", source.listCalls)
	}
	if len(roster.Users) != 1 || roster.Users[0].Name != "Anna" || !roster.Users[0].LastActive.Equal(lastActive) {
		t.Fatalf("unexpected cached roster: %+v", roster)
	}
	if roster.Skipped != 1 {
		t.Fatalf("unexpected cached skipped count: %d", roster.Skipped)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.ListUsers(ctx); err != nil {
		t.Fatalf("list after expiry: %v", err)
	}
	if source.listCalls != 2 {
		t.Fatalf("expected source call after ttl expiry, got %d", source.listCalls)
	}
}

func TestRosterCacheDeleteInvalidatesSnapshot(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	source := &stubRosterSource{}
	repo := NewRosterCacheRepo(client, source, time.Minute, nil)
	ctx := context.Background()

	if _, err := repo.ListUsers(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !mr.Exists(rosterSnapshotKey) {
		t.Fatalf("expected snapshot key to be cached")
	}
	if err := repo.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(rosterSnapshotKey) {
		t.Fatalf("expected snapshot key to be dropped")
	}
	if source.deleteCalls != 1 {
		t.Fatalf("expected delete forwarded to source")
	}
}

func TestRosterCacheFallsBackToSourceWhenRedisDown(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer func() { _ = client.Close() }()
	mr.Close()

	source := &stubRosterSource{roster: model.Roster{Users: []model.BotUser{{ID: "u1"}}}}
	repo := NewRosterCacheRepo(client, source, time.Minute, nil)

	roster, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list with redis down: %v", err)
	}
	if len(roster.Users) != 1 {
		t.Fatalf("unexpected roster: %+v", roster)
	}
}

func TestRosterCacheDeleteSucceedsWhenRedisDown(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer func() { _ = client.Close() }()
	mr.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	source := &stubRosterSource{}
	repo := NewRosterCacheRepo(client, source, time.Minute, zap.New(core))

	if err := repo.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("delete must succeed once the source removed the user: %v", err)
	}
	if source.deleteCalls != 1 {
		t.Fatalf("expected delete forwarded to source")
	}
	if logs.FilterMessage("roster cache not invalidated after delete").Len() != 1 {
		t.Fatalf("expected invalidation failure to be logged, got %v", logs.All())
	}
}

func TestRosterCachePropagatesSourceError(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	sourceErr := errors.New("db down")
	repo := NewRosterCacheRepo(client, &stubRosterSource{err: sourceErr}, time.Minute, nil)

	if _, err := repo.ListUsers(context.Background()); !errors.Is(err, sourceErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	if mr.Exists(rosterSnapshotKey) {
		t.Fatalf("failed reads must not be cached")
	}
}

func TestLockRepoIsExclusiveUntilReleased(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewLockRepo(client)
	ctx := context.Background()

	token, err := repo.AcquireJob(ctx, 7, time.Minute)
	if err != nil || token == "" {
		t.Fatalf("first acquire: token=%q err=%v", token, err)
	}

	second, err := repo.AcquireJob(ctx, 7, time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if second != "" {
		t.Fatalf("expected second acquire to fail while lock is held")
	}

	if err := repo.ReleaseJob(ctx, 7, "someone-else"); err != nil {
		t.Fatalf("release with foreign token: %v", err)
	}
	if !mr.Exists(jobLockKey(7)) {
		t.Fatalf("foreign token must not release the lock")
	}

	if err := repo.ReleaseJob(ctx, 7, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	third, err := repo.AcquireJob(ctx, 7, time.Minute)
	if err != nil || third == "" {
		t.Fatalf("acquire after release: token=%q err=%v", third, err)
	}
}

func TestLockRepoExpiresAfterTTL(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewLockRepo(client)
	ctx := context.Background()

	if token, err := repo.AcquireJob(ctx, 9, 30*time.Second); err != nil || token == "" {
		t.Fatalf("acquire: token=%q err=%v", token, err)
	}
	mr.FastForward(31 * time.Second)

	if token, err := repo.AcquireJob(ctx, 9, 30*time.Second); err != nil || token == "" {
		t.Fatalf("acquire after ttl: token=%q err=%v", token, err)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
