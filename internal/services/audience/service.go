package audience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/rules"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/jsonfile"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/sqlite"
)

const (
	DefaultInactiveDays = 7
	DefaultPageLimit    = 20
	MaxPageLimit        = 100
)

var (
	ErrValidation         = errors.New("validation error")
	ErrSourceUnavailable  = errors.New("audience source unavailable")
	ErrUserNotFound       = errors.New("bot user not found")
	ErrDeleteNotSupported = errors.New("roster source does not support delete")
)

// RosterProvider is any source that can list the full bot roster.
type RosterProvider interface {
	ListUsers(ctx context.Context) (model.Roster, error)
}

type RosterDeleter interface {
	Delete(ctx context.Context, id string) error
}

type Criteria struct {
	Segment          string
	ActiveWithinDays int
	InactiveDays     int
	Zodiac           string
	SearchText       string
}

type Selection struct {
	Users   []model.BotUser
	Skipped int
}

type PageQuery struct {
	Criteria
	Page  int
	Limit int
	Sort  string
	Order string
}

type Page struct {
	Users      []model.BotUser
	Total      int
	Page       int
	Limit      int
	TotalPages int
	Skipped    int
}

type Service struct {
	provider RosterProvider
	now      func() time.Time
}

func NewService(provider RosterProvider) *Service {
	return &Service{
		provider: provider,
		now:      time.Now,
	}
}

// Select loads the roster and keeps users matching segment, recency and search
// together. Provider order is preserved.
func (s *Service) Select(ctx context.Context, c Criteria) (Selection, error) {
	f, err := newFilter(c, s.now().UTC())
	if err != nil {
		return Selection{}, err
	}
	if s.provider == nil {
		return Selection{}, fmt.Errorf("%w: roster provider is nil", ErrSourceUnavailable)
	}

	roster, err := s.provider.ListUsers(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	selection := Selection{
		Users:   make([]model.BotUser, 0, len(roster.Users)),
		Skipped: roster.Skipped,
	}
	for _, user := range roster.Users {
		if !user.Valid() {
			selection.Skipped++
			continue
		}
		if f.match(user) {
			selection.Users = append(selection.Users, user)
		}
	}

	return selection, nil
}

// List selects users and returns one sorted page of them.
func (s *Service) List(ctx context.Context, q PageQuery) (Page, error) {
	sortKey, err := normalizeSort(q.Sort)
	if err != nil {
		return Page{}, err
	}
	descending, err := normalizeOrder(q.Order)
	if err != nil {
		return Page{}, err
	}

	selection, err := s.Select(ctx, q.Criteria)
	if err != nil {
		return Page{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	users := selection.Users
	sort.SliceStable(users, func(i, j int) bool {
		if descending {
			return less(sortKey, users[j], users[i])
		}
		return less(sortKey, users[i], users[j])
	})

	total := len(users)
	start := total
	if page-1 < (total+limit-1)/limit {
		start = (page - 1) * limit
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Page{
		Users:      users[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
		Skipped:    selection.Skipped,
	}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("user id is required: %w", ErrValidation)
	}

	deleter, ok := s.provider.(RosterDeleter)
	if !ok {
		return ErrDeleteNotSupported
	}

	if err := deleter.Delete(ctx, id); err != nil {
		if errors.Is(err, pgrepo.ErrNotFound) || errors.Is(err, jsonfile.ErrNotFound) || errors.Is(err, sqlite.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return nil
}

type filter struct {
	segment        enums.Segment
	zodiac         string
	search         string
	activeCutoff   time.Time
	inactiveCutoff time.Time
}

func newFilter(c Criteria, now time.Time) (filter, error) {
	segment, ok := enums.ParseSegment(c.Segment)
	if !ok {
		return filter{}, fmt.Errorf("unknown segment %q: %w", c.Segment, ErrValidation)
	}
	if c.ActiveWithinDays < 0 || c.InactiveDays < 0 {
		return filter{}, fmt.Errorf("day counts must not be negative: %w", ErrValidation)
	}

	f := filter{
		segment: segment,
		zodiac:  strings.TrimSpace(c.Zodiac),
		search:  strings.ToLower(strings.TrimSpace(c.SearchText)),
	}
	if segment == enums.SegmentZodiac && f.zodiac == "" {
		return filter{}, fmt.Errorf("zodiac segment requires a sign: %w", ErrValidation)
	}
	if c.ActiveWithinDays > 0 {
		f.activeCutoff = now.Add(-time.Duration(c.ActiveWithinDays) * 24 * time.Hour)
	}
	if segment == enums.SegmentInactive {
		days := c.InactiveDays
		if days == 0 {
			days = DefaultInactiveDays
		}
		f.inactiveCutoff = now.Add(-time.Duration(days) * 24 * time.Hour)
	}

	return f, nil
}

func (f filter) match(user model.BotUser) bool {
	switch f.segment {
	case enums.SegmentPremium:
		if !user.IsPremium {
			return false
		}
	case enums.SegmentFree:
		if user.IsPremium {
			return false
		}
	case enums.SegmentInactive:
		if !user.LastActive.Before(f.inactiveCutoff) {
			return false
		}
	case enums.SegmentZodiac:
		if !strings.EqualFold(userSign(user), f.zodiac) {
			return false
		}
	}

	if !f.activeCutoff.IsZero() && user.LastActive.Before(f.activeCutoff) {
		return false
	}

	if f.search != "" {
		fields := []string{
			user.Name,
			user.Username,
			strconv.FormatInt(user.TelegramID, 10),
			userSign(user),
		}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), f.search) {
				return true
			}
		}
		return false
	}

	return true
}

// userSign prefers the stored sign and falls back to the birth date.
func userSign(user model.BotUser) string {
	if sign := strings.TrimSpace(user.ZodiacSign); sign != "" {
		return sign
	}
	return rules.ZodiacFromBirthDate(user.BirthDate)
}

const (
	sortLastActive   = "last_active"
	sortName         = "name"
	sortCreatedAt    = "created_at"
	sortMessageCount = "message_count"
)

func normalizeSort(raw string) (string, error) {
	switch key := strings.ToLower(strings.TrimSpace(raw)); key {
	case "":
		return sortLastActive, nil
	case sortLastActive, sortName, sortCreatedAt, sortMessageCount:
		return key, nil
	default:
		return "", fmt.Errorf("unknown sort %q: %w", raw, ErrValidation)
	}
}

func normalizeOrder(raw string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "DESC":
		return true, nil
	case "ASC":
		return false, nil
	default:
		return false, fmt.Errorf("unknown order %q: %w", raw, ErrValidation)
	}
}

func less(key string, a, b model.BotUser) bool {
	switch key {
	case sortName:
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	case sortCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt)
	case sortMessageCount:
		return a.MessageCount < b.MessageCount
	default:
		return a.LastActive.Before(b.LastActive)
	}
}
