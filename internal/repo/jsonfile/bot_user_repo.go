// Package jsonfile reads the bot roster from the JSON document the bot keeps on disk.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

var ErrNotFound = errors.New("bot user not found")

// BotUserRepo re-reads the file on every call because the bot process owns
// and rewrites it independently.
type BotUserRepo struct {
	path string
	mu   sync.Mutex
}

type document struct {
	Users []json.RawMessage `json:"users"`
}

type record struct {
	ID           string          `json:"id"`
	TelegramID   json.RawMessage `json:"telegram_id"`
	Name         string          `json:"name"`
	Username     string          `json:"username"`
	BirthDate    string          `json:"birth_date"`
	BirthCity    string          `json:"birth_city"`
	Timezone     string          `json:"timezone"`
	ZodiacSign   string          `json:"zodiac_sign"`
	IsPremium    bool            `json:"is_premium"`
	LastActive   string          `json:"last_active"`
	CreatedAt    string          `json:"created_at"`
	MessageCount int             `json:"message_count"`
}

func NewBotUserRepo(path string) *BotUserRepo {
	return &BotUserRepo{path: path}
}

// ListUsers decodes every record independently; records that cannot be decoded
// or lack a telegram id or last-active time are counted in Skipped.
func (r *BotUserRepo) ListUsers(ctx context.Context) (model.Roster, error) {
	if err := ctx.Err(); err != nil {
		return model.Roster{}, err
	}

	r.mu.Lock()
	doc, err := r.read()
	r.mu.Unlock()
	if err != nil {
		return model.Roster{}, err
	}

	roster := model.Roster{Users: make([]model.BotUser, 0, len(doc.Users))}
	for _, raw := range doc.Users {
		user, ok := decodeUser(raw)
		if !ok {
			roster.Skipped++
			continue
		}
		roster.Users = append(roster.Users, user)
	}

	return roster, nil
}

// Delete removes the record with the given id and rewrites the file. Other
// records keep any fields this package does not know about.
func (r *BotUserRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}

	kept := make([]json.RawMessage, 0, len(doc.Users))
	found := false
	for _, raw := range doc.Users {
		var rec struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &rec); err == nil && rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, raw)
	}
	if !found {
		return ErrNotFound
	}

	doc.Users = kept
	return r.write(doc)
}

func (r *BotUserRepo) read() (document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("read roster file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode roster file: %w", err)
	}
	return doc, nil
}

func (r *BotUserRepo) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode roster file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".bot-users-*.json")
	if err != nil {
		return fmt.Errorf("create temp roster file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp roster file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp roster file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace roster file: %w", err)
	}
	return nil
}

func decodeUser(raw json.RawMessage) (model.BotUser, bool) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.BotUser{}, false
	}

	telegramID, ok := parseTelegramID(rec.TelegramID)
	if !ok {
		return model.BotUser{}, false
	}

	user := model.BotUser{
		ID:           rec.ID,
		TelegramID:   telegramID,
		Name:         rec.Name,
		Username:     rec.Username,
		BirthDate:    rec.BirthDate,
		BirthCity:    rec.BirthCity,
		Timezone:     rec.Timezone,
		ZodiacSign:   rec.ZodiacSign,
		IsPremium:    rec.IsPremium,
		LastActive:   parseTime(rec.LastActive),
		CreatedAt:    parseTime(rec.CreatedAt),
		MessageCount: rec.MessageCount,
	}
	if user.ID == "" {
		user.ID = strconv.FormatInt(telegramID, 10)
	}
	return user, user.Valid()
}

// parseTelegramID accepts both "12345" and 12345.
func parseTelegramID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		id, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64)
		return id, err == nil && id > 0
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, false
	}
	id, err := asNumber.Int64()
	return id, err == nil && id > 0
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
