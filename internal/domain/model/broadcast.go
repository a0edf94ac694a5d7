package model

import (
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
)

type BroadcastButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// BroadcastPayload is the audience filter and delivery options captured when a job is created.
type BroadcastPayload struct {
	Segment          enums.Segment     `json:"segment"`
	ActiveWithinDays int               `json:"active_within_days,omitempty"`
	InactiveDays     int               `json:"inactive_days,omitempty"`
	Zodiac           string            `json:"zodiac,omitempty"`
	SearchText       string            `json:"search_text,omitempty"`
	ParseMode        string            `json:"parse_mode,omitempty"`
	ImageKey         string            `json:"image_key,omitempty"`
	CustomButtons    []BroadcastButton `json:"custom_buttons,omitempty"`
}

type BroadcastJob struct {
	ID            int64
	Title         string
	Text          string
	Payload       BroadcastPayload
	Total         int
	Sent          int
	Failed        int
	Status        enums.JobStatus
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ImageKey      string
	CustomButtons []BroadcastButton
	HasImage      bool
	HasButtons    bool
}

type BroadcastRecipient struct {
	ID         int64
	JobID      int64
	TelegramID int64
	BotUserID  string
	Status     enums.RecipientStatus
	Error      string
	SentAt     *time.Time
	UserName   string
}

type RecipientStats struct {
	Total   int
	Sent    int
	Failed  int
	Pending int
}

// Resolved reports whether every recipient has either been sent to or has failed.
func (s RecipientStats) Resolved() bool {
	return s.Total > 0 && s.Sent+s.Failed >= s.Total
}
