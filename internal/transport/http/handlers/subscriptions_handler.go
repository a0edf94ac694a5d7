package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	planssvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/plans"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
	httperrors "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/errors"
)

type SubscriptionsHandler struct {
	plans  *planssvc.Service
	logger *zap.Logger
}

func NewSubscriptionsHandler(plans *planssvc.Service, logger *zap.Logger) *SubscriptionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionsHandler{plans: plans, logger: logger}
}

func (h *SubscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	plans, err := h.plans.List(r.Context())
	if err != nil {
		h.writePlanError(w, err, "failed to load subscription plans")
		return
	}

	items := make([]dto.SubscriptionPlan, 0, len(plans))
	for _, plan := range plans {
		items = append(items, dto.NewSubscriptionPlan(plan))
	}
	httperrors.Write(w, http.StatusOK, dto.SubscriptionPlansResponse{Plans: items})
}

func (h *SubscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	var req dto.SubscriptionPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.plans.Create(r.Context(), planInput(req))
	if err != nil {
		h.writePlanError(w, err, "failed to create subscription plan")
		return
	}
	h.writePlan(w, plan, "subscription plan created")
}

func (h *SubscriptionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	var req dto.SubscriptionPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.plans.Update(r.Context(), chi.URLParam(r, "id"), planInput(req))
	if err != nil {
		h.writePlanError(w, err, "failed to update subscription plan")
		return
	}
	h.writePlan(w, plan, "subscription plan updated")
}

func (h *SubscriptionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	if err := h.plans.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writePlanError(w, err, "failed to delete subscription plan")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.MessageResponse{Message: "subscription plan deleted"})
}

// ToggleActive flips is_active in one statement and returns the stored plan.
func (h *SubscriptionsHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	plan, err := h.plans.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writePlanError(w, err, "failed to change subscription plan status")
		return
	}

	message := "subscription plan deactivated"
	if plan.IsActive {
		message = "subscription plan activated"
	}
	h.writePlan(w, plan, message)
}

func (h *SubscriptionsHandler) TogglePopular(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "subscription plans are unavailable")
		return
	}

	plan, err := h.plans.TogglePopular(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writePlanError(w, err, "failed to change subscription plan popularity")
		return
	}

	message := "subscription plan unmarked as popular"
	if plan.IsPopular {
		message = "subscription plan marked as popular"
	}
	h.writePlan(w, plan, message)
}

func (h *SubscriptionsHandler) writePlan(w http.ResponseWriter, plan model.SubscriptionPlan, message string) {
	httperrors.Write(w, http.StatusOK, dto.SubscriptionPlanResponse{
		Plan:    dto.NewSubscriptionPlan(plan),
		Message: message,
	})
}

func (h *SubscriptionsHandler) writePlanError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, planssvc.ErrValidation):
		writeErrorMessage(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, planssvc.ErrPlanNotFound):
		writeErrorMessage(w, http.StatusNotFound, "subscription plan not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, fallback)
	}
}

func planInput(req dto.SubscriptionPlanRequest) planssvc.PlanInput {
	return planssvc.PlanInput{
		Name:         req.Name,
		Duration:     req.Duration,
		Price:        req.Price,
		PricePerWeek: req.PricePerWeek,
		Discount:     req.Discount,
		Savings:      req.Savings,
		Features:     req.Features,
		IsActive:     req.IsActive,
		IsPopular:    req.IsPopular,
	}
}

// validationMessage drops the sentinel suffix from wrapped validation errors.
func validationMessage(err error) string {
	message := err.Error()
	if idx := strings.LastIndex(message, ": "+planssvc.ErrValidation.Error()); idx > 0 {
		return message[:idx]
	}
	return message
}
