package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/sender"
	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	broadcastsvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/broadcasts"
	historysvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/history"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
	httperrors "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/errors"
)

const defaultMaxUploadBytes = 10 << 20

// BatchProcessor sends one batch of the oldest processable broadcast.
type BatchProcessor interface {
	RunOnce(ctx context.Context) (sender.Result, error)
}

type NotificationsHandler struct {
	history        *historysvc.Service
	audience       *audiencesvc.Service
	broadcasts     *broadcastsvc.Service
	processor      BatchProcessor
	maxUploadBytes int64
	pollInterval   time.Duration
	logger         *zap.Logger
}

func NewNotificationsHandler(
	history *historysvc.Service,
	audience *audiencesvc.Service,
	broadcasts *broadcastsvc.Service,
	maxUploadBytes int64,
	logger *zap.Logger,
) *NotificationsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationsHandler{
		history:        history,
		audience:       audience,
		broadcasts:     broadcasts,
		maxUploadBytes: maxUploadBytes,
		pollInterval:   time.Second,
		logger:         logger,
	}
}

func (h *NotificationsHandler) AttachProcessor(processor BatchProcessor) {
	h.processor = processor
}

func (h *NotificationsHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeFailure(w, http.StatusInternalServerError, "history_error")
		return
	}

	limit, ok := intQuery(r, "limit", 0)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_limit")
		return
	}

	jobs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, historysvc.ErrValidation) {
			writeFailure(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		h.logger.Error("load broadcast history", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "history_error")
		return
	}

	rows := make([]dto.BroadcastJobRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, dto.NewBroadcastJobRow(job))
	}
	httperrors.Write(w, http.StatusOK, dto.HistoryResponse{Success: true, Rows: rows})
}

func (h *NotificationsHandler) Audience(w http.ResponseWriter, r *http.Request) {
	if h.audience == nil {
		writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		return
	}

	var req dto.AudienceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_request")
		return
	}

	selection, err := h.audience.Select(r.Context(), audiencesvc.Criteria{
		Segment:          req.Segment,
		ActiveWithinDays: req.ActiveWithinDays,
		InactiveDays:     req.InactiveDays,
		Zodiac:           req.Zodiac,
		SearchText:       req.Search,
	})
	if err != nil {
		h.writeAudienceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AudienceResponse{
		Success: true,
		Total:   len(selection.Users),
		Skipped: selection.Skipped,
		Users:   dto.NewBotUsers(selection.Users),
	})
}

func (h *NotificationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	var (
		in      broadcastsvc.CreateInput
		cleanup func()
		err     error
	)
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		in, cleanup, err = h.parseMultipartCreate(r)
	} else {
		in, err = parseJSONCreate(r)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := h.broadcasts.Create(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, broadcastsvc.ErrValidation):
			writeFailure(w, http.StatusBadRequest, "validation_error")
		case errors.Is(err, broadcastsvc.ErrNoRecipients):
			writeFailure(w, http.StatusBadRequest, "no_recipients")
		case errors.Is(err, audiencesvc.ErrSourceUnavailable):
			writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		case errors.Is(err, broadcastsvc.ErrImageUpload):
			h.logger.Error("upload broadcast image", zap.Error(err))
			writeFailure(w, http.StatusBadGateway, "image_upload_failed")
		default:
			h.logger.Error("create broadcast", zap.Error(err))
			writeFailure(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	h.logger.Info("broadcast queued",
		zap.Int64("job_id", result.Job.ID),
		zap.Int("total", result.Job.Total),
		zap.Int("skipped", result.Skipped),
	)
	httperrors.Write(w, http.StatusOK, dto.CreateBroadcastResponse{
		Success: true,
		JobID:   result.Job.ID,
		Total:   result.Job.Total,
		Skipped: result.Skipped,
	})
}

func (h *NotificationsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	id, ok := int64URLParam(r, "id")
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_job_id")
		return
	}

	var req dto.JobActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_action")
		return
	}
	action, ok := enums.ParseJobAction(req.Action)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_action")
		return
	}

	job, err := h.broadcasts.Apply(r.Context(), id, action)
	if err != nil {
		h.writeJobError(w, err, fmt.Sprintf("cannot_%s_job", action))
		return
	}

	if action == enums.JobActionDelete {
		httperrors.Write(w, http.StatusOK, dto.JobActionResponse{Success: true, Message: "broadcast deleted"})
		return
	}
	httperrors.Write(w, http.StatusOK, dto.JobActionResponse{
		Success:   true,
		Message:   fmt.Sprintf("broadcast %s applied", action),
		NewStatus: string(job.Status),
	})
}

func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	id, ok := int64URLParam(r, "id")
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_job_id")
		return
	}

	if err := h.broadcasts.Delete(r.Context(), id); err != nil {
		h.writeJobError(w, err, "cannot_delete_active_job")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.JobActionResponse{Success: true, Message: "broadcast deleted"})
}

func (h *NotificationsHandler) Errors(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	id, ok := int64URLParam(r, "id")
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_job_id")
		return
	}

	report, err := h.broadcasts.Errors(r.Context(), id)
	if err != nil {
		h.writeJobError(w, err, "invalid_job_state")
		return
	}

	failed := make([]dto.FailedRecipient, 0, len(report.Failed))
	for _, recipient := range report.Failed {
		failed = append(failed, dto.FailedRecipient{
			ID:         recipient.ID,
			TelegramID: recipient.TelegramID,
			UserName:   recipient.UserName,
			Error:      recipient.Error,
			SentAt:     recipient.SentAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.JobErrorsResponse{
		Success: true,
		Job:     dto.NewBroadcastJobRow(report.Job),
		Errors:  failed,
		Stats: dto.RecipientStats{
			Total:   report.Stats.Total,
			Sent:    report.Stats.Sent,
			Failed:  report.Stats.Failed,
			Pending: report.Stats.Pending,
		},
	})
}

func (h *NotificationsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	var req dto.BulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_action")
		return
	}
	action, ok := enums.ParseBulkAction(req.Action)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_action")
		return
	}

	affected, err := h.broadcasts.Bulk(r.Context(), action, req.Days)
	if err != nil {
		if errors.Is(err, broadcastsvc.ErrValidation) {
			writeFailure(w, http.StatusBadRequest, "invalid_days")
			return
		}
		h.logger.Error("bulk broadcast action", zap.Error(err), zap.String("action", string(action)))
		writeFailure(w, http.StatusInternalServerError, "internal_error")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.BulkResponse{
		Success:      true,
		Message:      fmt.Sprintf("%s affected %d broadcasts", action, affected),
		AffectedRows: affected,
	})
}

func (h *NotificationsHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		writeFailure(w, http.StatusServiceUnavailable, "sender_unavailable")
		return
	}

	result, err := h.processor.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("process broadcast batch", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "processing_error")
		return
	}

	message := "processed"
	switch {
	case result.Idle:
		message = "no_jobs"
	case result.Busy:
		message = "already_processing"
	case result.Interrupted:
		message = "job_modified_during_processing"
	case result.Finished:
		message = "done"
	}

	httperrors.Write(w, http.StatusOK, dto.ProcessResponse{
		Success:   true,
		Message:   message,
		JobID:     result.JobID,
		Processed: result.Processed(),
		Sent:      result.Sent,
		Errors:    result.Failed,
	})
}

// Events streams job progress as server-sent events until the job finishes or
// the client goes away.
func (h *NotificationsHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.broadcasts == nil {
		writeFailure(w, http.StatusServiceUnavailable, "broadcasts_unavailable")
		return
	}

	id, ok := int64URLParam(r, "id")
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_job_id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeFailure(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var (
		last  dto.ProgressEvent
		first = true
	)
	for {
		job, err := h.broadcasts.Progress(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			code := "internal_error"
			if errors.Is(err, broadcastsvc.ErrJobNotFound) {
				code = "job_not_found"
			}
			writeEvent(w, "error", dto.FailureResponse{Success: false, Error: code})
			flusher.Flush()
			return
		}

		event := dto.NewProgressEvent(job)
		if first || event != last {
			writeEvent(w, "progress", event)
			last, first = event, false
		} else {
			writeEvent(w, "ping", map[string]int64{"ts": time.Now().Unix()})
		}
		flusher.Flush()

		if job.Status.Finished() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *NotificationsHandler) writeAudienceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audiencesvc.ErrValidation):
		writeFailure(w, http.StatusBadRequest, "invalid_audience")
	case errors.Is(err, audiencesvc.ErrSourceUnavailable):
		h.logger.Error("select audience", zap.Error(err))
		writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
	default:
		h.logger.Error("select audience", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *NotificationsHandler) writeJobError(w http.ResponseWriter, err error, conflictCode string) {
	switch {
	case errors.Is(err, broadcastsvc.ErrValidation):
		writeFailure(w, http.StatusBadRequest, "invalid_job_id")
	case errors.Is(err, broadcastsvc.ErrJobNotFound):
		writeFailure(w, http.StatusNotFound, "job_not_found")
	case errors.Is(err, broadcastsvc.ErrInvalidTransition):
		writeFailure(w, http.StatusBadRequest, conflictCode)
	default:
		h.logger.Error("broadcast job operation", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "internal_error")
	}
}

func parseJSONCreate(r *http.Request) (broadcastsvc.CreateInput, error) {
	var req dto.CreateBroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		return broadcastsvc.CreateInput{}, err
	}
	return createInputFromRequest(req), nil
}

func (h *NotificationsHandler) parseMultipartCreate(r *http.Request) (broadcastsvc.CreateInput, func(), error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return broadcastsvc.CreateInput{}, nil, err
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	activeWithin, err := formInt(r, "activeWithinDays")
	if err != nil {
		return broadcastsvc.CreateInput{}, cleanup, err
	}
	inactiveDays, err := formInt(r, "inactiveDays")
	if err != nil {
		return broadcastsvc.CreateInput{}, cleanup, err
	}

	req := dto.CreateBroadcastRequest{
		Title:            r.FormValue("title"),
		Text:             r.FormValue("text"),
		ParseMode:        r.FormValue("parseMode"),
		Segment:          r.FormValue("segment"),
		ActiveWithinDays: activeWithin,
		InactiveDays:     inactiveDays,
		Zodiac:           r.FormValue("zodiac"),
		Search:           r.FormValue("search"),
		ButtonText:       r.FormValue("buttonText"),
		ButtonURL:        r.FormValue("buttonUrl"),
	}
	if raw := strings.TrimSpace(r.FormValue("customButtons")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.CustomButtons); err != nil {
			h.logger.Warn("ignore malformed custom buttons", zap.Error(err))
			req.CustomButtons = nil
		}
	}

	in := createInputFromRequest(req)

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return broadcastsvc.CreateInput{}, cleanup, err
	default:
		in.Image = imageFromPart(file, header)
		closeFile := cleanup
		cleanup = func() {
			_ = file.Close()
			closeFile()
		}
	}

	return in, cleanup, nil
}

func createInputFromRequest(req dto.CreateBroadcastRequest) broadcastsvc.CreateInput {
	buttons := make([]model.BroadcastButton, 0, len(req.CustomButtons)+1)
	if strings.TrimSpace(req.ButtonText) != "" && strings.TrimSpace(req.ButtonURL) != "" {
		buttons = append(buttons, model.BroadcastButton{Text: req.ButtonText, URL: req.ButtonURL})
	}
	buttons = append(buttons, dto.ToModelButtons(req.CustomButtons)...)

	return broadcastsvc.CreateInput{
		Title:     req.Title,
		Text:      req.Text,
		ParseMode: req.ParseMode,
		Audience: audiencesvc.Criteria{
			Segment:          req.Segment,
			ActiveWithinDays: req.ActiveWithinDays,
			InactiveDays:     req.InactiveDays,
			Zodiac:           req.Zodiac,
			SearchText:       req.Search,
		},
		Buttons: buttons,
	}
}

func imageFromPart(file multipart.File, header *multipart.FileHeader) *broadcastsvc.Image {
	return &broadcastsvc.Image{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
	}
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func writeEvent(w http.ResponseWriter, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
