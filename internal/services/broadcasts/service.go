package broadcasts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
)

const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
	maxTitleLength   = 200
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNoRecipients      = errors.New("no recipients for broadcast")
	ErrJobNotFound       = errors.New("broadcast job not found")
	ErrInvalidTransition = errors.New("broadcast job status does not allow this action")
	ErrImageUpload       = errors.New("broadcast image upload failed")
	ErrPersistence       = errors.New("broadcast persistence error")
)

type JobStore interface {
	CreateWithRecipients(ctx context.Context, job model.BroadcastJob, recipients []model.BroadcastRecipient) (model.BroadcastJob, error)
	GetByID(ctx context.Context, id int64) (model.BroadcastJob, error)
	TransitionStatus(ctx context.Context, id int64, from []enums.JobStatus, next enums.JobStatus) (model.BroadcastJob, error)
	Delete(ctx context.Context, id int64, allowed []enums.JobStatus) error
	ListFailedRecipients(ctx context.Context, jobID int64, limit int) ([]model.BroadcastRecipient, error)
	RecipientStats(ctx context.Context, jobID int64) (model.RecipientStats, error)
	CancelOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteFinishedOlderThan(ctx context.Context, cutoff time.Time) (int64, []string, error)
	PauseRunning(ctx context.Context) (int64, error)
}

type AudienceSelector interface {
	Select(ctx context.Context, c audience.Criteria) (audience.Selection, error)
}

type ImageStorage interface {
	EnsureBucket(ctx context.Context) error
	PutImage(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

type Config struct {
	CancelOldDays     int
	CleanupAfterDays  int
	FailedReportLimit int
}

type Service struct {
	jobs     JobStore
	audience AudienceSelector
	images   ImageStorage
	cfg      Config
	now      func() time.Time
}

type Image struct {
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
}

type CreateInput struct {
	Title     string
	Text      string
	ParseMode string
	Audience  audience.Criteria
	Buttons   []model.BroadcastButton
	Image     *Image
}

type CreateResult struct {
	Job     model.BroadcastJob
	Skipped int
}

type ErrorReport struct {
	Job    model.BroadcastJob
	Failed []model.BroadcastRecipient
	Stats  model.RecipientStats
}

func NewService(jobs JobStore, selector AudienceSelector, images ImageStorage, cfg Config) *Service {
	if cfg.CancelOldDays <= 0 {
		cfg.CancelOldDays = 7
	}
	if cfg.CleanupAfterDays <= 0 {
		cfg.CleanupAfterDays = 30
	}
	if cfg.FailedReportLimit <= 0 {
		cfg.FailedReportLimit = 100
	}
	return &Service{
		jobs:     jobs,
		audience: selector,
		images:   images,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create selects the audience, stores the optional image and queues a job with
// one pending recipient per distinct telegram id.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	title := strings.TrimSpace(in.Title)
	text := strings.TrimSpace(in.Text)
	if title == "" || text == "" {
		return CreateResult{}, fmt.Errorf("title and text are required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return CreateResult{}, fmt.Errorf("title is too long: %w", ErrValidation)
	}
	textLimit := maxTextLength
	if in.Image != nil {
		textLimit = maxCaptionLength
	}
	if utf8.RuneCountInString(text) > textLimit {
		return CreateResult{}, fmt.Errorf("text exceeds %d characters: %w", textLimit, ErrValidation)
	}
	parseMode, err := normalizeParseMode(in.ParseMode)
	if err != nil {
		return CreateResult{}, err
	}
	if s.jobs == nil || s.audience == nil {
		return CreateResult{}, fmt.Errorf("%w: broadcast dependencies are not configured", ErrPersistence)
	}

	selection, err := s.audience.Select(ctx, in.Audience)
	if err != nil {
		if errors.Is(err, audience.ErrValidation) {
			return CreateResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return CreateResult{}, err
	}

	recipients := make([]model.BroadcastRecipient, 0, len(selection.Users))
	seen := make(map[int64]struct{}, len(selection.Users))
	for _, user := range selection.Users {
		if _, ok := seen[user.TelegramID]; ok {
			continue
		}
		seen[user.TelegramID] = struct{}{}
		recipients = append(recipients, model.BroadcastRecipient{
			TelegramID: user.TelegramID,
			BotUserID:  user.ID,
			Status:     enums.RecipientStatusPending,
		})
	}
	if len(recipients) == 0 {
		return CreateResult{}, ErrNoRecipients
	}

	buttons := NormalizeButtons(in.Buttons)
	segment, _ := enums.ParseSegment(in.Audience.Segment)
	job := model.BroadcastJob{
		Title: title,
		Text:  text,
		Payload: model.BroadcastPayload{
			Segment:          segment,
			ActiveWithinDays: in.Audience.ActiveWithinDays,
			InactiveDays:     in.Audience.InactiveDays,
			Zodiac:           strings.TrimSpace(in.Audience.Zodiac),
			SearchText:       strings.TrimSpace(in.Audience.SearchText),
			ParseMode:        parseMode,
			CustomButtons:    buttons,
		},
		CustomButtons: buttons,
	}

	if in.Image != nil {
		key, err := s.uploadImage(ctx, *in.Image)
		if err != nil {
			return CreateResult{}, err
		}
		job.ImageKey = key
		job.Payload.ImageKey = key
	}

	created, err := s.jobs.CreateWithRecipients(ctx, job, recipients)
	if err != nil {
		if job.ImageKey != "" && s.images != nil {
			_ = s.images.Delete(context.WithoutCancel(ctx), job.ImageKey)
		}
		return CreateResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return CreateResult{Job: created, Skipped: selection.Skipped}, nil
}

// Apply runs a control action against a job. Transitions are conditional
// updates, so a job that moved on concurrently yields ErrInvalidTransition.
func (s *Service) Apply(ctx context.Context, id int64, action enums.JobAction) (model.BroadcastJob, error) {
	if id <= 0 {
		return model.BroadcastJob{}, fmt.Errorf("invalid job id: %w", ErrValidation)
	}
	if s.jobs == nil {
		return model.BroadcastJob{}, fmt.Errorf("%w: job store is nil", ErrPersistence)
	}

	var (
		from []enums.JobStatus
		next enums.JobStatus
	)
	switch action {
	case enums.JobActionCancel:
		from, next = []enums.JobStatus{enums.JobStatusQueued, enums.JobStatusRunning}, enums.JobStatusCancelled
	case enums.JobActionPause:
		from, next = []enums.JobStatus{enums.JobStatusRunning}, enums.JobStatusPaused
	case enums.JobActionResume:
		from, next = []enums.JobStatus{enums.JobStatusPaused}, enums.JobStatusQueued
	case enums.JobActionDelete:
		return model.BroadcastJob{}, s.Delete(ctx, id)
	default:
		return model.BroadcastJob{}, fmt.Errorf("unknown action %q: %w", action, ErrValidation)
	}

	job, err := s.jobs.TransitionStatus(ctx, id, from, next)
	if err != nil {
		return model.BroadcastJob{}, mapStoreError(err)
	}
	return job, nil
}

// Delete removes a job that is not running or done, together with its
// recipients and image.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid job id: %w", ErrValidation)
	}
	if s.jobs == nil {
		return fmt.Errorf("%w: job store is nil", ErrPersistence)
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return mapStoreError(err)
	}
	if !job.Status.Deletable() {
		return ErrInvalidTransition
	}

	if err := s.jobs.Delete(ctx, id, deletableStatuses()); err != nil {
		return mapStoreError(err)
	}
	if job.ImageKey != "" && s.images != nil {
		_ = s.images.Delete(ctx, job.ImageKey)
	}
	return nil
}

func (s *Service) Errors(ctx context.Context, id int64) (ErrorReport, error) {
	if id <= 0 {
		return ErrorReport{}, fmt.Errorf("invalid job id: %w", ErrValidation)
	}
	if s.jobs == nil {
		return ErrorReport{}, fmt.Errorf("%w: job store is nil", ErrPersistence)
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return ErrorReport{}, mapStoreError(err)
	}
	failed, err := s.jobs.ListFailedRecipients(ctx, id, s.cfg.FailedReportLimit)
	if err != nil {
		return ErrorReport{}, mapStoreError(err)
	}
	stats, err := s.jobs.RecipientStats(ctx, id)
	if err != nil {
		return ErrorReport{}, mapStoreError(err)
	}

	return ErrorReport{Job: job, Failed: failed, Stats: stats}, nil
}

// Bulk applies a maintenance action to many jobs and returns how many changed.
// days overrides the configured age threshold when positive.
func (s *Service) Bulk(ctx context.Context, action enums.BulkAction, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative: %w", ErrValidation)
	}
	if s.jobs == nil {
		return 0, fmt.Errorf("%w: job store is nil", ErrPersistence)
	}

	var (
		affected int64
		err      error
	)
	switch action {
	case enums.BulkActionCancelOld:
		if days == 0 {
			days = s.cfg.CancelOldDays
		}
		affected, err = s.jobs.CancelOlderThan(ctx, s.cutoff(days))
	case enums.BulkActionCleanupCompleted:
		if days == 0 {
			days = s.cfg.CleanupAfterDays
		}
		var imageKeys []string
		affected, imageKeys, err = s.jobs.DeleteFinishedOlderThan(ctx, s.cutoff(days))
		if err == nil && s.images != nil {
			for _, key := range imageKeys {
				_ = s.images.Delete(ctx, key)
			}
		}
	case enums.BulkActionPauseAllRunning:
		affected, err = s.jobs.PauseRunning(ctx)
	default:
		return 0, fmt.Errorf("unknown bulk action %q: %w", action, ErrValidation)
	}
	if err != nil {
		return 0, mapStoreError(err)
	}
	return affected, nil
}

// Progress returns the current state of a job.
func (s *Service) Progress(ctx context.Context, id int64) (model.BroadcastJob, error) {
	if id <= 0 {
		return model.BroadcastJob{}, fmt.Errorf("invalid job id: %w", ErrValidation)
	}
	if s.jobs == nil {
		return model.BroadcastJob{}, fmt.Errorf("%w: job store is nil", ErrPersistence)
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return model.BroadcastJob{}, mapStoreError(err)
	}
	return job, nil
}

func (s *Service) cutoff(days int) time.Time {
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

func (s *Service) uploadImage(ctx context.Context, img Image) (string, error) {
	if img.Body == nil || img.Size <= 0 {
		return "", fmt.Errorf("image is empty: %w", ErrValidation)
	}
	contentType := strings.ToLower(strings.TrimSpace(img.ContentType))
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unsupported image content type %q: %w", img.ContentType, ErrValidation)
	}
	if s.images == nil {
		return "", fmt.Errorf("%w: image storage is not configured", ErrImageUpload)
	}

	if err := s.images.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrImageUpload, err)
	}

	key := buildImageKey(s.now().UTC(), img.FileName)
	if err := s.images.PutImage(ctx, key, img.Body, img.Size, contentType); err != nil {
		return "", fmt.Errorf("%w: %w", ErrImageUpload, err)
	}
	return key, nil
}

func buildImageKey(now time.Time, fileName string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("%s%s/%s%s", ImageKeyPrefix, now.Format("2006/01/02"), uuid.NewString(), ext)
}

func normalizeParseMode(raw string) (string, error) {
	switch strings.TrimSpace(raw) {
	case "":
		return "", nil
	case "Markdown", "MarkdownV2", "HTML":
		return strings.TrimSpace(raw), nil
	default:
		return "", fmt.Errorf("unsupported parse mode %q: %w", raw, ErrValidation)
	}
}

func deletableStatuses() []enums.JobStatus {
	return []enums.JobStatus{
		enums.JobStatusQueued,
		enums.JobStatusPaused,
		enums.JobStatusCancelled,
		enums.JobStatusFailed,
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, pgrepo.ErrNotFound):
		return ErrJobNotFound
	case errors.Is(err, pgrepo.ErrStatusConflict):
		return ErrInvalidTransition
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}
