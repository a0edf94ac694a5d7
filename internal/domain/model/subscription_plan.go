package model

import "time"

type SubscriptionPlan struct {
	ID           string
	Name         string
	Duration     string
	Price        float64
	PricePerWeek *float64
	Discount     float64
	Savings      *int
	Features     []string
	IsActive     bool
	IsPopular    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
