package dto

import (
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

// FailureResponse is the error body of every notifications endpoint.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type BroadcastButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type BroadcastJobRow struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Text          string            `json:"text"`
	Total         int               `json:"total"`
	Sent          int               `json:"sent"`
	Failed        int               `json:"failed"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	ImageKey      string            `json:"image_key,omitempty"`
	CustomButtons []BroadcastButton `json:"custom_buttons"`
	HasImage      bool              `json:"has_image"`
	HasButtons    bool              `json:"has_buttons"`
}

type HistoryResponse struct {
	Success bool              `json:"success"`
	Rows    []BroadcastJobRow `json:"rows"`
}

// CreateBroadcastRequest is the JSON form of a new broadcast. Multipart
// requests use the same field names.
type CreateBroadcastRequest struct {
	Title            string            `json:"title"`
	Text             string            `json:"text"`
	ParseMode        string            `json:"parseMode"`
	Segment          string            `json:"segment"`
	ActiveWithinDays int               `json:"activeWithinDays"`
	InactiveDays     int               `json:"inactiveDays"`
	Zodiac           string            `json:"zodiac"`
	Search           string            `json:"search"`
	ButtonText       string            `json:"buttonText"`
	ButtonURL        string            `json:"buttonUrl"`
	CustomButtons    []BroadcastButton `json:"customButtons"`
}

type CreateBroadcastResponse struct {
	Success bool  `json:"success"`
	JobID   int64 `json:"jobId"`
	Total   int   `json:"total"`
	Skipped int   `json:"skipped"`
}

type AudienceRequest struct {
	Segment          string `json:"segment"`
	ActiveWithinDays int    `json:"activeWithinDays"`
	InactiveDays     int    `json:"inactiveDays"`
	Zodiac           string `json:"zodiac"`
	Search           string `json:"search"`
}

type AudienceResponse struct {
	Success bool      `json:"success"`
	Total   int       `json:"total"`
	Skipped int       `json:"skipped"`
	Users   []BotUser `json:"users"`
}

type JobActionRequest struct {
	Action string `json:"action"`
}

type JobActionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	NewStatus string `json:"newStatus,omitempty"`
}

type BulkRequest struct {
	Action string `json:"action"`
	Days   int    `json:"days"`
}

type BulkResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AffectedRows int64  `json:"affectedRows"`
}

type FailedRecipient struct {
	ID         int64      `json:"id"`
	TelegramID int64      `json:"telegram_id"`
	UserName   string     `json:"user_name"`
	Error      string     `json:"error"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

type RecipientStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent_count"`
	Failed  int `json:"failed_count"`
	Pending int `json:"pending_count"`
}

type JobErrorsResponse struct {
	Success bool              `json:"success"`
	Job     BroadcastJobRow   `json:"job"`
	Errors  []FailedRecipient `json:"errors"`
	Stats   RecipientStats    `json:"stats"`
}

type ProcessResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	JobID     int64  `json:"jobId,omitempty"`
	Processed int    `json:"processed"`
	Sent      int    `json:"successCount"`
	Errors    int    `json:"errors"`
}

// ProgressEvent is the payload of a job progress server-sent event.
type ProgressEvent struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

func NewBroadcastJobRow(job model.BroadcastJob) BroadcastJobRow {
	buttons := make([]BroadcastButton, 0, len(job.CustomButtons))
	for _, button := range job.CustomButtons {
		buttons = append(buttons, BroadcastButton{Text: button.Text, URL: button.URL})
	}

	return BroadcastJobRow{
		ID:            job.ID,
		Title:         job.Title,
		Text:          job.Text,
		Total:         job.Total,
		Sent:          job.Sent,
		Failed:        job.Failed,
		Status:        string(job.Status),
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
		ImageKey:      job.ImageKey,
		CustomButtons: buttons,
		HasImage:      job.HasImage,
		HasButtons:    job.HasButtons,
	}
}

func NewProgressEvent(job model.BroadcastJob) ProgressEvent {
	return ProgressEvent{
		ID:     job.ID,
		Status: string(job.Status),
		Total:  job.Total,
		Sent:   job.Sent,
		Failed: job.Failed,
	}
}

func ToModelButtons(in []BroadcastButton) []model.BroadcastButton {
	out := make([]model.BroadcastButton, 0, len(in))
	for _, button := range in {
		out = append(out, model.BroadcastButton{Text: button.Text, URL: button.URL})
	}
	return out
}
