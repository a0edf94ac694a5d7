package dto

import (
	"strconv"
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type BotUser struct {
	ID           string    `json:"id"`
	TelegramID   string    `json:"telegram_id"`
	Name         string    `json:"name"`
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

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalUsers  int `json:"totalUsers"`
	Limit       int `json:"limit"`
}

type BotUsersPage struct {
	Users      []BotUser  `json:"users"`
	Pagination Pagination `json:"pagination"`
	Skipped    int        `json:"skipped"`
}

type BotUsersResponse struct {
	Success bool         `json:"success"`
	Data    BotUsersPage `json:"data"`
}

type SuccessMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewBotUser renders the telegram id as a string, as the admin UI expects.
func NewBotUser(user model.BotUser) BotUser {
	return BotUser{
		ID:           user.ID,
		TelegramID:   strconv.FormatInt(user.TelegramID, 10),
		Name:         user.Name,
		Username:     user.Username,
		BirthDate:    user.BirthDate,
		BirthCity:    user.BirthCity,
		Timezone:     user.Timezone,
		ZodiacSign:   user.ZodiacSign,
		IsPremium:    user.IsPremium,
		LastActive:   user.LastActive,
		CreatedAt:    user.CreatedAt,
		MessageCount: user.MessageCount,
	}
}

func NewBotUsers(users []model.BotUser) []BotUser {
	out := make([]BotUser, 0, len(users))
	for _, user := range users {
		out = append(out, NewBotUser(user))
	}
	return out
}
