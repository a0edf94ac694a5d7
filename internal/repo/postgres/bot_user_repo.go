package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type BotUserRepo struct {
	pool *pgxpool.Pool
}

// BotUserTouch is what the bot learns about a user from an incoming update.
type BotUserTouch struct {
	TelegramID int64
	Name       string
	Username   string
	SeenAt     time.Time
}

func NewBotUserRepo(pool *pgxpool.Pool) *BotUserRepo {
	return &BotUserRepo{pool: pool}
}

// ListUsers returns every targetable bot user ordered by last activity.
// Rows without a telegram id or last-active timestamp are counted in Skipped.
func (r *BotUserRepo) ListUsers(ctx context.Context) (model.Roster, error) {
	if r.pool == nil {
		return model.Roster{}, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	id,
	telegram_id,
	name,
	username,
	birth_date,
	birth_city,
	timezone,
	zodiac_sign,
	is_premium,
	last_active,
	created_at,
	message_count
FROM bot_users
ORDER BY last_active DESC NULLS LAST, id
`)
	if err != nil {
		return model.Roster{}, fmt.Errorf("list bot users: %w", err)
	}
	defer rows.Close()

	roster := model.Roster{Users: make([]model.BotUser, 0)}
	for rows.Next() {
		var (
			user       model.BotUser
			telegramID *int64
			username   *string
			birthDate  *string
			birthCity  *string
			timezone   *string
			zodiacSign *string
			lastActive *time.Time
		)
		if err := rows.Scan(
			&user.ID,
			&telegramID,
			&user.Name,
			&username,
			&birthDate,
			&birthCity,
			&timezone,
			&zodiacSign,
			&user.IsPremium,
			&lastActive,
			&user.CreatedAt,
			&user.MessageCount,
		); err != nil {
			return model.Roster{}, fmt.Errorf("scan bot user: %w", err)
		}
		if telegramID == nil || lastActive == nil {
			roster.Skipped++
			continue
		}

		user.TelegramID = *telegramID
		user.LastActive = lastActive.UTC()
		user.Username = derefString(username)
		user.BirthDate = derefString(birthDate)
		user.BirthCity = derefString(birthCity)
		user.Timezone = derefString(timezone)
		user.ZodiacSign = derefString(zodiacSign)
		if !user.Valid() {
			roster.Skipped++
			continue
		}
		roster.Users = append(roster.Users, user)
	}
	if err := rows.Err(); err != nil {
		return model.Roster{}, fmt.Errorf("iterate bot users: %w", err)
	}

	return roster, nil
}

func (r *BotUserRepo) Delete(ctx context.Context, id string) error {
	if r.pool == nil {
		return ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
DELETE FROM bot_users
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("delete bot user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Touch records activity for a telegram user, creating the row on first contact.
func (r *BotUserRepo) Touch(ctx context.Context, in BotUserTouch) error {
	if r.pool == nil {
		return ErrNotConfigured
	}
	if in.TelegramID <= 0 {
		return fmt.Errorf("invalid telegram id")
	}

	seenAt := in.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO bot_users (telegram_id, name, username, last_active, message_count)
VALUES ($1, COALESCE($2, ''), $3, $4, 1)
ON CONFLICT (telegram_id)
DO UPDATE
SET
	name = COALESCE(NULLIF(EXCLUDED.name, ''), bot_users.name),
	username = COALESCE(EXCLUDED.username, bot_users.username),
	last_active = GREATEST(EXCLUDED.last_active, bot_users.last_active),
	message_count = bot_users.message_count + 1
`,
		in.TelegramID,
		nullableString(in.Name),
		nullableString(in.Username),
		seenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert bot user: %w", err)
	}

	return nil
}
