package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

const rosterFixture = `{
  "users": [
    {"id": "u1", "telegram_id": "1001", "name": "Anna", "username": "anna", "zodiac_sign": "aries", "is_premium": true, "last_active": "2024-03-09T12:00:00.000Z", "created_at": "2024-01-01T00:00:00Z", "message_count": 12, "extra": {"keep": true}},
    {"id": "u2", "telegram_id": 1002, "name": "Boris", "last_active": "2024-02-01T08:30:00Z"},
    {"id": "u3", "name": "No telegram", "last_active": "2024-02-01T08:30:00Z"},
    {"id": "u4", "telegram_id": "1004", "name": "Never active"},
    {"id": "u5", "telegram_id": {"broken": true}},
    "not an object"
  ]
}`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot-users.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestListUsersDecodesValidRecordsAndCountsSkipped(t *testing.T) {
	repo := NewBotUserRepo(writeFixture(t, rosterFixture))

	roster, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}

	want := []model.BotUser{
		{
			ID:           "u1",
			TelegramID:   1001,
			Name:         "Anna",
			Username:     "anna",
			ZodiacSign:   "aries",
			IsPremium:    true,
			LastActive:   time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
			CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			MessageCount: 12,
		},
		{
			ID:         "u2",
			TelegramID: 1002,
			Name:       "Boris",
			LastActive: time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(want, roster.Users); diff != "" {
		t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
	}
	if roster.Skipped != 4 {
		t.Fatalf("unexpected skipped count: got %d want 4", roster.Skipped)
	}
}

func TestListUsersMissingFileIsEmpty(t *testing.T) {
	repo := NewBotUserRepo(filepath.Join(t.TempDir(), "absent.json"))

	roster, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(roster.Users) != 0 || roster.Skipped != 0 {
		t.Fatalf("expected empty roster, got %+v", roster)
	}
}

func TestListUsersMalformedFileFails(t *testing.T) {
	repo := NewBotUserRepo(writeFixture(t, `{"users": [`))

	if _, err := repo.ListUsers(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDeleteRewritesFileKeepingOtherRecords(t *testing.T) {
	ctx := context.Background()
	path := writeFixture(t, rosterFixture)
	repo := NewBotUserRepo(path)

	if err := repo.Delete(ctx, "u2"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := repo.Delete(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	var doc struct {
		Users []any `json:"users"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode rewritten file: %v", err)
	}
	if len(doc.Users) != 5 {
		t.Fatalf("unexpected record count after delete: got %d want 5", len(doc.Users))
	}
	first, ok := doc.Users[0].(map[string]any)
	if !ok || first["extra"] == nil {
		t.Fatalf("unknown fields must survive a rewrite: %v", doc.Users[0])
	}

	roster, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(roster.Users) != 1 || roster.Users[0].ID != "u1" {
		t.Fatalf("unexpected roster after delete: %+v", roster.Users)
	}
}
