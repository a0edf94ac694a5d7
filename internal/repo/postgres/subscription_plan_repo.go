package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type SubscriptionPlanRepo struct {
	pool *pgxpool.Pool
}

// SubscriptionPlanWrite holds the editable columns of a plan.
type SubscriptionPlanWrite struct {
	Name         string
	Duration     string
	Price        float64
	PricePerWeek *float64
	Discount     float64
	Savings      *int
	Features     []string
	IsActive     bool
	IsPopular    bool
}

const subscriptionPlanColumns = `
	id,
	name,
	duration,
	price,
	price_per_week,
	discount,
	savings,
	features,
	is_active,
	is_popular,
	created_at,
	updated_at`

func NewSubscriptionPlanRepo(pool *pgxpool.Pool) *SubscriptionPlanRepo {
	return &SubscriptionPlanRepo{pool: pool}
}

func (r *SubscriptionPlanRepo) List(ctx context.Context) ([]model.SubscriptionPlan, error) {
	if r.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+subscriptionPlanColumns+`
FROM subscription_plans
ORDER BY created_at DESC, id
`)
	if err != nil {
		return nil, fmt.Errorf("list subscription plans: %w", err)
	}
	defer rows.Close()

	plans := make([]model.SubscriptionPlan, 0)
	for rows.Next() {
		plan, err := scanSubscriptionPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription plans: %w", err)
	}

	return plans, nil
}

func (r *SubscriptionPlanRepo) Create(ctx context.Context, in SubscriptionPlanWrite) (model.SubscriptionPlan, error) {
	if r.pool == nil {
		return model.SubscriptionPlan{}, ErrNotConfigured
	}

	features, err := encodeFeatures(in.Features)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}

	plan, err := scanSubscriptionPlan(r.pool.QueryRow(ctx, `
INSERT INTO subscription_plans (
	name,
	duration,
	price,
	price_per_week,
	discount,
	savings,
	features,
	is_active,
	is_popular
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING`+subscriptionPlanColumns,
		strings.TrimSpace(in.Name),
		strings.TrimSpace(in.Duration),
		in.Price,
		in.PricePerWeek,
		in.Discount,
		in.Savings,
		features,
		in.IsActive,
		in.IsPopular,
	))
	if err != nil {
		return model.SubscriptionPlan{}, fmt.Errorf("insert subscription plan: %w", err)
	}

	return plan, nil
}

func (r *SubscriptionPlanRepo) Update(ctx context.Context, id string, in SubscriptionPlanWrite) (model.SubscriptionPlan, error) {
	if r.pool == nil {
		return model.SubscriptionPlan{}, ErrNotConfigured
	}

	features, err := encodeFeatures(in.Features)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}

	plan, err := scanSubscriptionPlan(r.pool.QueryRow(ctx, `
UPDATE subscription_plans
SET
	name = $2,
	duration = $3,
	price = $4,
	price_per_week = $5,
	discount = $6,
	savings = $7,
	features = $8,
	is_active = $9,
	is_popular = $10,
	updated_at = NOW()
WHERE id = $1
RETURNING`+subscriptionPlanColumns,
		id,
		strings.TrimSpace(in.Name),
		strings.TrimSpace(in.Duration),
		in.Price,
		in.PricePerWeek,
		in.Discount,
		in.Savings,
		features,
		in.IsActive,
		in.IsPopular,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SubscriptionPlan{}, ErrNotFound
		}
		return model.SubscriptionPlan{}, fmt.Errorf("update subscription plan: %w", err)
	}

	return plan, nil
}

func (r *SubscriptionPlanRepo) Delete(ctx context.Context, id string) error {
	if r.pool == nil {
		return ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
DELETE FROM subscription_plans
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("delete subscription plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ToggleActive flips is_active in a single statement so concurrent toggles
// serialize on the row lock and never lose an update.
func (r *SubscriptionPlanRepo) ToggleActive(ctx context.Context, id string) (model.SubscriptionPlan, error) {
	if r.pool == nil {
		return model.SubscriptionPlan{}, ErrNotConfigured
	}

	plan, err := scanSubscriptionPlan(r.pool.QueryRow(ctx, `
UPDATE subscription_plans
SET
	is_active = NOT is_active,
	updated_at = NOW()
WHERE id = $1
RETURNING`+subscriptionPlanColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SubscriptionPlan{}, ErrNotFound
		}
		return model.SubscriptionPlan{}, fmt.Errorf("toggle subscription plan active: %w", err)
	}

	return plan, nil
}

func (r *SubscriptionPlanRepo) TogglePopular(ctx context.Context, id string) (model.SubscriptionPlan, error) {
	if r.pool == nil {
		return model.SubscriptionPlan{}, ErrNotConfigured
	}

	plan, err := scanSubscriptionPlan(r.pool.QueryRow(ctx, `
UPDATE subscription_plans
SET
	is_popular = NOT is_popular,
	updated_at = NOW()
WHERE id = $1
RETURNING`+subscriptionPlanColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SubscriptionPlan{}, ErrNotFound
		}
		return model.SubscriptionPlan{}, fmt.Errorf("toggle subscription plan popular: %w", err)
	}

	return plan, nil
}

func scanSubscriptionPlan(row pgx.Row) (model.SubscriptionPlan, error) {
	var (
		plan     model.SubscriptionPlan
		features []byte
	)
	if err := row.Scan(
		&plan.ID,
		&plan.Name,
		&plan.Duration,
		&plan.Price,
		&plan.PricePerWeek,
		&plan.Discount,
		&plan.Savings,
		&features,
		&plan.IsActive,
		&plan.IsPopular,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		return model.SubscriptionPlan{}, err
	}

	plan.Features = []string{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &plan.Features); err != nil {
			return model.SubscriptionPlan{}, fmt.Errorf("decode plan features: %w", err)
		}
	}

	return plan, nil
}

func encodeFeatures(features []string) (string, error) {
	if features == nil {
		features = []string{}
	}
	data, err := json.Marshal(features)
	if err != nil {
		return "", fmt.Errorf("encode plan features: %w", err)
	}
	return string(data), nil
}
