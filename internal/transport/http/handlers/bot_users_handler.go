package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
	httperrors "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/errors"
)

type BotUsersHandler struct {
	audience *audiencesvc.Service
	logger   *zap.Logger
}

func NewBotUsersHandler(audience *audiencesvc.Service, logger *zap.Logger) *BotUsersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotUsersHandler{audience: audience, logger: logger}
}

func (h *BotUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.audience == nil {
		writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		return
	}

	page, ok := intQuery(r, "page", 1)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_page")
		return
	}
	limit, ok := intQuery(r, "limit", audiencesvc.DefaultPageLimit)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	inactiveDays, ok := intQuery(r, "inactive_days", 0)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_inactive_days")
		return
	}
	activeWithin, ok := intQuery(r, "active_within_days", 0)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid_active_within_days")
		return
	}

	query := r.URL.Query()
	result, err := h.audience.List(r.Context(), audiencesvc.PageQuery{
		Criteria: audiencesvc.Criteria{
			Segment:          query.Get("segment"),
			ActiveWithinDays: activeWithin,
			InactiveDays:     inactiveDays,
			Zodiac:           query.Get("zodiac"),
			SearchText:       query.Get("search"),
		},
		Page:  page,
		Limit: limit,
		Sort:  query.Get("sort"),
		Order: query.Get("order"),
	})
	if err != nil {
		switch {
		case errors.Is(err, audiencesvc.ErrValidation):
			writeFailure(w, http.StatusBadRequest, "validation_error")
		case errors.Is(err, audiencesvc.ErrSourceUnavailable):
			h.logger.Error("list bot users", zap.Error(err))
			writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		default:
			h.logger.Error("list bot users", zap.Error(err))
			writeFailure(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.BotUsersResponse{
		Success: true,
		Data: dto.BotUsersPage{
			Users: dto.NewBotUsers(result.Users),
			Pagination: dto.Pagination{
				CurrentPage: result.Page,
				TotalPages:  result.TotalPages,
				TotalUsers:  result.Total,
				Limit:       result.Limit,
			},
			Skipped: result.Skipped,
		},
	})
}

func (h *BotUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.audience == nil {
		writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		return
	}

	if err := h.audience.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		switch {
		case errors.Is(err, audiencesvc.ErrValidation):
			writeFailure(w, http.StatusBadRequest, "invalid_user_id")
		case errors.Is(err, audiencesvc.ErrUserNotFound):
			writeFailure(w, http.StatusNotFound, "user_not_found")
		case errors.Is(err, audiencesvc.ErrDeleteNotSupported):
			writeFailure(w, http.StatusMethodNotAllowed, "delete_not_supported")
		default:
			h.logger.Error("delete bot user", zap.Error(err))
			writeFailure(w, http.StatusServiceUnavailable, "audience_source_unavailable")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SuccessMessageResponse{Success: true, Message: "bot user deleted"})
}
