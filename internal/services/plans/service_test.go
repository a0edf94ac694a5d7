package plans

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
)

// memoryPlanStore flips flags under a mutex, mirroring the single-statement
// update the postgres repo performs.
type memoryPlanStore struct {
	mu        sync.Mutex
	plans     map[string]model.SubscriptionPlan
	toggleErr error
	writes    int
}

func newMemoryPlanStore(plans ...model.SubscriptionPlan) *memoryPlanStore {
	store := &memoryPlanStore{plans: map[string]model.SubscriptionPlan{}}
	for _, plan := range plans {
		store.plans[plan.ID] = plan
	}
	return store
}

func (m *memoryPlanStore) List(context.Context) ([]model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SubscriptionPlan, 0, len(m.plans))
	for _, plan := range m.plans {
		out = append(out, plan)
	}
	return out, nil
}

func (m *memoryPlanStore) Create(_ context.Context, in pgrepo.SubscriptionPlanWrite) (model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	plan := model.SubscriptionPlan{
		ID:        "new",
		Name:      in.Name,
		Duration:  in.Duration,
		Price:     in.Price,
		Features:  in.Features,
		IsActive:  in.IsActive,
		IsPopular: in.IsPopular,
	}
	m.plans[plan.ID] = plan
	return plan, nil
}

func (m *memoryPlanStore) Update(_ context.Context, id string, in pgrepo.SubscriptionPlanWrite) (model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return model.SubscriptionPlan{}, pgrepo.ErrNotFound
	}
	m.writes++
	plan.Name = in.Name
	m.plans[id] = plan
	return plan, nil
}

func (m *memoryPlanStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return pgrepo.ErrNotFound
	}
	m.writes++
	delete(m.plans, id)
	return nil
}

func (m *memoryPlanStore) ToggleActive(_ context.Context, id string) (model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggleErr != nil {
		return model.SubscriptionPlan{}, m.toggleErr
	}
	plan, ok := m.plans[id]
	if !ok {
		return model.SubscriptionPlan{}, pgrepo.ErrNotFound
	}
	m.writes++
	plan.IsActive = !plan.IsActive
	m.plans[id] = plan
	return plan, nil
}

func (m *memoryPlanStore) TogglePopular(_ context.Context, id string) (model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return model.SubscriptionPlan{}, pgrepo.ErrNotFound
	}
	m.writes++
	plan.IsPopular = !plan.IsPopular
	m.plans[id] = plan
	return plan, nil
}

func TestToggleActiveTwiceRestoresOriginalValue(t *testing.T) {
	store := newMemoryPlanStore(model.SubscriptionPlan{ID: "p1", IsActive: true})
	svc := NewService(store)

	first, err := svc.ToggleActive(context.Background(), "p1")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if first.IsActive {
		t.Fatalf("first toggle should deactivate the plan")
	}

	second, err := svc.ToggleActive(context.Background(), "p1")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if !second.IsActive {
		t.Fatalf("second toggle should restore the original value")
	}
}

func TestToggleActiveConcurrentEvenTogglesKeepValue(t *testing.T) {
	store := newMemoryPlanStore(model.SubscriptionPlan{ID: "p1", IsActive: false})
	svc := NewService(store)

	const toggles = 50
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ToggleActive(context.Background(), "p1"); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.plans["p1"].IsActive {
		t.Fatalf("an even number of toggles must leave the flag unchanged")
	}
}

func TestToggleActiveMissingPlanIsNotFound(t *testing.T) {
	svc := NewService(newMemoryPlanStore())

	plan, err := svc.ToggleActive(context.Background(), "missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if errors.Is(err, ErrPersistence) {
		t.Fatalf("not found must not be reported as persistence error")
	}
	if plan.ID != "" {
		t.Fatalf("expected zero plan, got %+v", plan)
	}
}

func TestToggleActiveStoreFailureIsPersistenceError(t *testing.T) {
	store := newMemoryPlanStore(model.SubscriptionPlan{ID: "p1", IsActive: true})
	store.toggleErr = context.DeadlineExceeded
	svc := NewService(store)

	_, err := svc.ToggleActive(context.Background(), "p1")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if store.writes != 0 || !store.plans["p1"].IsActive {
		t.Fatalf("failed toggle must not write: writes=%d plan=%+v", store.writes, store.plans["p1"])
	}
}

func TestToggleActiveBlankIDIsValidationError(t *testing.T) {
	svc := NewService(newMemoryPlanStore())

	if _, err := svc.ToggleActive(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTogglePopular(t *testing.T) {
	svc := NewService(newMemoryPlanStore(model.SubscriptionPlan{ID: "p1"}))

	plan, err := svc.TogglePopular(context.Background(), "p1")
	if err != nil {
		t.Fatalf("toggle popular: %v", err)
	}
	if !plan.IsPopular {
		t.Fatalf("expected plan to become popular")
	}
	if _, err := svc.TogglePopular(context.Background(), "nope"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryPlanStore())

	cases := []struct {
		name string
		in   PlanInput
	}{
		{name: "missing name", in: PlanInput{Duration: "1 month", Price: 10, Features: []string{"a"}}},
		{name: "zero price", in: PlanInput{Name: "Basic", Duration: "1 month", Features: []string{"a"}}},
		{name: "blank features", in: PlanInput{Name: "Basic", Duration: "1 month", Price: 10, Features: []string{" "}}},
		{name: "discount over 100", in: PlanInput{Name: "Basic", Duration: "1 month", Price: 10, Discount: 120, Features: []string{"a"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateTrimsAndDefaultsActive(t *testing.T) {
	svc := NewService(newMemoryPlanStore())

	plan, err := svc.Create(context.Background(), PlanInput{
		Name:     "  Premium ",
		Duration: "3 months",
		Price:    990,
		Features: []string{" Daily forecast ", "", "Natal chart"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if plan.Name != "Premium" || !plan.IsActive {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if len(plan.Features) != 2 || plan.Features[0] != "Daily forecast" {
		t.Fatalf("unexpected features: %#v", plan.Features)
	}
}

func TestDeleteMissingPlanIsNotFound(t *testing.T) {
	svc := NewService(newMemoryPlanStore())

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}
