package dto

import (
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type SubscriptionPlan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Duration     string    `json:"duration"`
	Price        float64   `json:"price"`
	PricePerWeek *float64  `json:"pricePerWeek"`
	Discount     float64   `json:"discount"`
	Savings      *int      `json:"savings"`
	Features     []string  `json:"features"`
	IsActive     bool      `json:"isActive"`
	IsPopular    bool      `json:"isPopular"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type SubscriptionPlanRequest struct {
	Name         string   `json:"name"`
	Duration     string   `json:"duration"`
	Price        float64  `json:"price"`
	PricePerWeek *float64 `json:"pricePerWeek"`
	Discount     float64  `json:"discount"`
	Savings      *int     `json:"savings"`
	Features     []string `json:"features"`
	IsActive     *bool    `json:"isActive"`
	IsPopular    bool     `json:"isPopular"`
}

type SubscriptionPlansResponse struct {
	Plans []SubscriptionPlan `json:"plans"`
}

type SubscriptionPlanResponse struct {
	Plan    SubscriptionPlan `json:"plan"`
	Message string           `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorMessageResponse is the bare {error} body used by the subscriptions API.
type ErrorMessageResponse struct {
	Error string `json:"error"`
}

func NewSubscriptionPlan(plan model.SubscriptionPlan) SubscriptionPlan {
	features := plan.Features
	if features == nil {
		features = []string{}
	}

	return SubscriptionPlan{
		ID:           plan.ID,
		Name:         plan.Name,
		Duration:     plan.Duration,
		Price:        plan.Price,
		PricePerWeek: plan.PricePerWeek,
		Discount:     plan.Discount,
		Savings:      plan.Savings,
		Features:     features,
		IsActive:     plan.IsActive,
		IsPopular:    plan.IsPopular,
		CreatedAt:    plan.CreatedAt,
		UpdatedAt:    plan.UpdatedAt,
	}
}
