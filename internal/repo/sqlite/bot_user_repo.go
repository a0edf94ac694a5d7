// Package sqlite reads the bot roster from the SQLite database the Telegram bot
// writes to. The schema is owned by the bot; this package never migrates it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

var ErrNotFound = errors.New("bot user not found")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02",
}

type BotUserRepo struct {
	db *sql.DB
}

// Open opens the database at path. A single connection is kept so that
// ":memory:" databases stay visible across calls.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func NewBotUserRepo(db *sql.DB) *BotUserRepo {
	return &BotUserRepo{db: db}
}

// ListUsers returns the bot's users ordered by last update. The bot touches
// updated_at on every interaction, so it serves as last activity.
func (r *BotUserRepo) ListUsers(ctx context.Context) (model.Roster, error) {
	if r.db == nil {
		return model.Roster{}, errors.New("sqlite db is not configured")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tg_id, name, birth_date, birth_city, tz, zodiac, is_premium, created_at, updated_at
		 FROM users
		 ORDER BY updated_at DESC, id`)
	if err != nil {
		return model.Roster{}, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	roster := model.Roster{Users: make([]model.BotUser, 0)}
	for rows.Next() {
		var (
			id        int64
			tgID      sql.NullInt64
			name      sql.NullString
			birthDate sql.NullString
			birthCity sql.NullString
			tz        sql.NullString
			zodiac    sql.NullString
			premium   sql.NullBool
			createdAt sql.NullString
			updatedAt sql.NullString
		)
		if err := rows.Scan(&id, &tgID, &name, &birthDate, &birthCity, &tz, &zodiac, &premium, &createdAt, &updatedAt); err != nil {
			return model.Roster{}, fmt.Errorf("scan user: %w", err)
		}

		user := model.BotUser{
			ID:         strconv.FormatInt(id, 10),
			TelegramID: tgID.Int64,
			Name:       name.String,
			BirthDate:  formatDate(birthDate.String),
			BirthCity:  birthCity.String,
			Timezone:   tz.String,
			ZodiacSign: zodiac.String,
			IsPremium:  premium.Bool,
			CreatedAt:  parseTime(createdAt.String),
			LastActive: parseTime(updatedAt.String),
		}
		if !user.Valid() {
			roster.Skipped++
			continue
		}
		roster.Users = append(roster.Users, user)
	}
	if err := rows.Err(); err != nil {
		return model.Roster{}, fmt.Errorf("iterate users: %w", err)
	}

	return roster, nil
}

func (r *BotUserRepo) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errors.New("sqlite db is not configured")
	}

	numericID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, numericID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// formatDate keeps birth dates as YYYY-MM-DD whether the driver returned the
// stored text or a parsed timestamp.
func formatDate(raw string) string {
	if t := parseTime(raw); !t.IsZero() {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(raw)
}
