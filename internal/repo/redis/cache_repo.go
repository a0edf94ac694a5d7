package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

const rosterSnapshotKey = "roster:snapshot"

type RosterSource interface {
	ListUsers(context.Context) (model.Roster, error)
	Delete(context.Context, string) error
}

// RosterCacheRepo is a read-through cache of the full roster snapshot.
// Redis failures are not fatal: reads go straight to the source and a stale
// snapshot lives at most ttl.
type RosterCacheRepo struct {
	client *goredis.Client
	source RosterSource
	ttl    time.Duration
	logger *zap.Logger
}

type cachedRoster struct {
	Users   []cachedBotUser `json:"users"`
	Skipped int             `json:"skipped"`
}

type cachedBotUser struct {
	ID           string    `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Name         string    `json:"name,omitempty"`
	Username     string    `json:"username,omitempty"`
	BirthDate    string    `json:"birth_date,omitempty"`
	BirthCity    string    `json:"birth_city,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	ZodiacSign   string    `json:"zodiac_sign,omitempty"`
	IsPremium    bool      `json:"is_premium"`
	LastActive   time.Time `json:"last_active"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

func NewRosterCacheRepo(client *goredis.Client, source RosterSource, ttl time.Duration, logger *zap.Logger) *RosterCacheRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCacheRepo{client: client, source: source, ttl: ttl, logger: logger}
}

func (r *RosterCacheRepo) ListUsers(ctx context.Context) (model.Roster, error) {
	if r.source == nil {
		return model.Roster{}, errors.New("roster source is nil")
	}
	if r.client == nil || r.ttl <= 0 {
		return r.source.ListUsers(ctx)
	}

	if roster, ok := r.get(ctx); ok {
		return roster, nil
	}

	roster, err := r.source.ListUsers(ctx)
	if err != nil {
		return model.Roster{}, err
	}
	_ = r.set(ctx, roster)

	return roster, nil
}

// Delete removes the user from the source and drops the cached snapshot.
func (r *RosterCacheRepo) Delete(ctx context.Context, id string) error {
	if r.source == nil {
		return errors.New("roster source is nil")
	}
	if err := r.source.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.Invalidate(ctx); err != nil {
		r.logger.Warn("roster cache not invalidated after delete", zap.Error(err), zap.String("user_id", id), zap.Duration("stale_for", r.ttl))
	}
	return nil
}

func (r *RosterCacheRepo) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, rosterSnapshotKey).Err(); err != nil {
		return fmt.Errorf("invalidate roster cache: %w", err)
	}
	return nil
}

func (r *RosterCacheRepo) get(ctx context.Context) (model.Roster, bool) {
	data, err := r.client.Get(ctx, rosterSnapshotKey).Bytes()
	if err != nil {
		return model.Roster{}, false
	}

	var cached cachedRoster
	if err := json.Unmarshal(data, &cached); err != nil {
		return model.Roster{}, false
	}

	roster := model.Roster{
		Users:   make([]model.BotUser, 0, len(cached.Users)),
		Skipped: cached.Skipped,
	}
	for _, u := range cached.Users {
		roster.Users = append(roster.Users, model.BotUser{
			ID:           u.ID,
			TelegramID:   u.TelegramID,
			Name:         u.Name,
			Username:     u.Username,
			BirthDate:    u.BirthDate,
			BirthCity:    u.BirthCity,
			Timezone:     u.Timezone,
			ZodiacSign:   u.ZodiacSign,
			IsPremium:    u.IsPremium,
			LastActive:   u.LastActive.UTC(),
			CreatedAt:    u.CreatedAt.UTC(),
			MessageCount: u.MessageCount,
		})
	}
	return roster, true
}

func (r *RosterCacheRepo) set(ctx context.Context, roster model.Roster) error {
	cached := cachedRoster{
		Users:   make([]cachedBotUser, 0, len(roster.Users)),
		Skipped: roster.Skipped,
	}
	for _, u := range roster.Users {
		cached.Users = append(cached.Users, cachedBotUser{
			ID:           u.ID,
			TelegramID:   u.TelegramID,
			Name:         u.Name,
			Username:     u.Username,
			BirthDate:    u.BirthDate,
			BirthCity:    u.BirthCity,
			Timezone:     u.Timezone,
			ZodiacSign:   u.ZodiacSign,
			IsPremium:    u.IsPremium,
			LastActive:   u.LastActive,
			CreatedAt:    u.CreatedAt,
			MessageCount: u.MessageCount,
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode roster snapshot: %w", err)
	}
	if err := r.client.Set(ctx, rosterSnapshotKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store roster snapshot: %w", err)
	}
	return nil
}
