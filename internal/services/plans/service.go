package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrPlanNotFound = errors.New("subscription plan not found")
	ErrPersistence  = errors.New("subscription plan persistence error")
)

type PlanStore interface {
	List(ctx context.Context) ([]model.SubscriptionPlan, error)
	Create(ctx context.Context, in pgrepo.SubscriptionPlanWrite) (model.SubscriptionPlan, error)
	Update(ctx context.Context, id string, in pgrepo.SubscriptionPlanWrite) (model.SubscriptionPlan, error)
	Delete(ctx context.Context, id string) error
	ToggleActive(ctx context.Context, id string) (model.SubscriptionPlan, error)
	TogglePopular(ctx context.Context, id string) (model.SubscriptionPlan, error)
}

type Service struct {
	store PlanStore
}

type PlanInput struct {
	Name         string
	Duration     string
	Price        float64
	PricePerWeek *float64
	Discount     float64
	Savings      *int
	Features     []string
	IsActive     *bool
	IsPopular    bool
}

func NewService(store PlanStore) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]model.SubscriptionPlan, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	plans, err := s.store.List(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if plans == nil {
		plans = []model.SubscriptionPlan{}
	}
	return plans, nil
}

func (s *Service) Create(ctx context.Context, in PlanInput) (model.SubscriptionPlan, error) {
	write, err := normalizeInput(in)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if s.store == nil {
		return model.SubscriptionPlan{}, fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	plan, err := s.store.Create(ctx, write)
	if err != nil {
		return model.SubscriptionPlan{}, mapStoreError(err)
	}
	return plan, nil
}

func (s *Service) Update(ctx context.Context, id string, in PlanInput) (model.SubscriptionPlan, error) {
	id, err := normalizeID(id)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	write, err := normalizeInput(in)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if s.store == nil {
		return model.SubscriptionPlan{}, fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	plan, err := s.store.Update(ctx, id, write)
	if err != nil {
		return model.SubscriptionPlan{}, mapStoreError(err)
	}
	return plan, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	if s.store == nil {
		return fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// ToggleActive negates is_active with one atomic store call and returns the
// updated plan.
func (s *Service) ToggleActive(ctx context.Context, id string) (model.SubscriptionPlan, error) {
	id, err := normalizeID(id)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if s.store == nil {
		return model.SubscriptionPlan{}, fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	plan, err := s.store.ToggleActive(ctx, id)
	if err != nil {
		return model.SubscriptionPlan{}, mapStoreError(err)
	}
	return plan, nil
}

func (s *Service) TogglePopular(ctx context.Context, id string) (model.SubscriptionPlan, error) {
	id, err := normalizeID(id)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if s.store == nil {
		return model.SubscriptionPlan{}, fmt.Errorf("%w: plan store is nil", ErrPersistence)
	}

	plan, err := s.store.TogglePopular(ctx, id)
	if err != nil {
		return model.SubscriptionPlan{}, mapStoreError(err)
	}
	return plan, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, pgrepo.ErrNotFound) {
		return ErrPlanNotFound
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("plan id is required: %w", ErrValidation)
	}
	return id, nil
}

func normalizeInput(in PlanInput) (pgrepo.SubscriptionPlanWrite, error) {
	name := strings.TrimSpace(in.Name)
	duration := strings.TrimSpace(in.Duration)
	if name == "" || duration == "" {
		return pgrepo.SubscriptionPlanWrite{}, fmt.Errorf("name and duration are required: %w", ErrValidation)
	}
	if in.Price <= 0 {
		return pgrepo.SubscriptionPlanWrite{}, fmt.Errorf("price must be positive: %w", ErrValidation)
	}
	if in.Discount < 0 || in.Discount > 100 {
		return pgrepo.SubscriptionPlanWrite{}, fmt.Errorf("discount must be within 0..100: %w", ErrValidation)
	}
	if in.PricePerWeek != nil && *in.PricePerWeek < 0 {
		return pgrepo.SubscriptionPlanWrite{}, fmt.Errorf("price per week must not be negative: %w", ErrValidation)
	}

	features := make([]string, 0, len(in.Features))
	for _, feature := range in.Features {
		if trimmed := strings.TrimSpace(feature); trimmed != "" {
			features = append(features, trimmed)
		}
	}
	if len(features) == 0 {
		return pgrepo.SubscriptionPlanWrite{}, fmt.Errorf("at least one feature is required: %w", ErrValidation)
	}

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	return pgrepo.SubscriptionPlanWrite{
		Name:         name,
		Duration:     duration,
		Price:        in.Price,
		PricePerWeek: in.PricePerWeek,
		Discount:     in.Discount,
		Savings:      in.Savings,
		Features:     features,
		IsActive:     isActive,
		IsPopular:    in.IsPopular,
	}, nil
}
