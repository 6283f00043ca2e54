package habits

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/events"
	"github.com/rshade/ecohabit/internal/observability"
)

const (
	defaultSummaryCacheSize = 1024
	defaultHabitLimit       = 50
	maxHabitLimit           = 500
	dayLayout               = "2006-01-02"
)

// Service coordinates habit tracking, summaries and challenges.
type Service struct {
	repo      Repository
	calc      carbon.ImpactCalculator
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
	tracer    trace.Tracer

	cacheSize int
	summaries *lru.Cache[string, DailySummary]

	// generations counts summary invalidations per user so a summary computed
	// from a read that raced with a tracked habit is not cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher. Defaults to events.NopPublisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSummaryCacheSize sets the number of cached daily summaries.
func WithSummaryCacheSize(n int) Option {
	return func(s *Service) { s.cacheSize = n }
}

// NewService creates a Service.
func NewService(repo Repository, calc carbon.ImpactCalculator, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidArgument)
	}
	if calc == nil {
		calc = carbon.DefaultCalculator()
	}
	s := &Service{
		repo:      repo,
		calc:      calc,
		publisher: events.NopPublisher{},
		logger:    zerolog.Nop(),
		now:       time.Now,
		tracer:    otel.Tracer("github.com/rshade/ecohabit/internal/habits"),
		cacheSize: defaultSummaryCacheSize,

		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[string, DailySummary](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create summary cache: %w", err)
	}
	s.summaries = cache
	return s, nil
}

// Calculator returns the impact calculator used by the service.
func (s *Service) Calculator() carbon.ImpactCalculator {
	return s.calc
}

// SignUp creates the profile for a newly registered user.
func (s *Service) SignUp(ctx context.Context, userID, username string) (_ Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "habits.SignUp")
	defer func() { endSpan(span, err) }()

	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" {
		return Profile{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if username == "" {
		return Profile{}, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	now := s.now().UTC()
	p := Profile{
		ID:        userID,
		Username:  username,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("profile created")
	return p, nil
}

// GetProfile returns a user's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ProfileUpdate holds the user-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateProfile applies user-editable changes to a profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	var name string
	if update.Username != nil {
		name = strings.TrimSpace(*update.Username)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: username is required", ErrInvalidArgument)
		}
	}
	now := s.now().UTC()
	p, err := s.repo.UpdateProfile(ctx, userID, func(p *Profile) error {
		if name != "" {
			p.Username = name
		}
		if update.AvatarURL != nil {
			p.AvatarURL = strings.TrimSpace(*update.AvatarURL)
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// ValidateEntry rejects entries the calculator should never see from the
// track form: a missing category or a value that is not a positive number.
func ValidateEntry(entry carbon.ActivityEntry) error {
	if strings.TrimSpace(string(entry.Category)) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidArgument)
	}
	if math.IsNaN(entry.Value) || math.IsInf(entry.Value, 0) || entry.Value <= 0 {
		return ErrInvalidValue
	}
	return nil
}

// TrackHabit validates and prices an activity entry, stores it, and updates
// the user's points, level, streak and CO2 saved.
func (s *Service) TrackHabit(ctx context.Context, userID string, entry carbon.ActivityEntry) (_ TrackResult, err error) {
	ctx, span := s.tracer.Start(ctx, "habits.TrackHabit",
		trace.WithAttributes(attribute.String("habit.category", string(entry.Category))))
	defer func() { endSpan(span, err) }()

	if err := ValidateEntry(entry); err != nil {
		return TrackResult{}, err
	}

	now := s.now().UTC()
	impact := s.calc.CalculateCarbonImpact(entry)
	saved := s.savingsVersusDefault(entry, impact)

	habit := Habit{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  entry.Category,
		Value:     entry.Value,
		Unit:      entry.Unit,
		Mode:      entry.Mode,
		Type:      entry.Type,
		CO2Impact: impact,
		CreatedAt: now,
	}
	profile, err := s.repo.RecordHabit(ctx, habit, func(p *Profile, lastAt time.Time) error {
		p.EcoPoints += PointsPerHabit
		p.Level = LevelForPoints(p.EcoPoints)
		p.StreakDays = NextStreak(p.StreakDays, lastAt, now)
		p.CO2Saved += saved
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return TrackResult{}, fmt.Errorf("record habit: %w", err)
	}

	s.invalidateSummaries(userID, now)
	observability.RecordHabitTracked(string(entry.Category), impact, now)

	s.publish(ctx, events.TypeHabitTracked, userID, now, map[string]any{
		"habit_id":   habit.ID,
		"category":   habit.Category,
		"co2_impact": habit.CO2Impact,
		"saved_kg":   saved,
	})

	s.logger.Debug().
		Str("user_id", userID).
		Str("category", string(entry.Category)).
		Float64("impact_kg", impact).
		Msg("habit tracked")

	return TrackResult{Habit: habit, Profile: profile, SavedKg: saved}, nil
}

// savingsVersusDefault is the impact avoided compared with the category's
// default mode or type, e.g. taking the train instead of the car.
func (s *Service) savingsVersusDefault(entry carbon.ActivityEntry, impact float64) float64 {
	baseline := entry
	baseline.Mode = ""
	baseline.Type = ""
	if saved := s.calc.CalculateCarbonImpact(baseline) - impact; saved > 0 {
		return saved
	}
	return 0
}

// ListHabits returns a user's most recent habits, newest first.
func (s *Service) ListHabits(ctx context.Context, userID string, limit int) ([]Habit, error) {
	if limit <= 0 {
		limit = defaultHabitLimit
	}
	if limit > maxHabitLimit {
		limit = maxHabitLimit
	}
	habits, err := s.repo.ListHabits(ctx, userID, HabitFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// DailySummary aggregates a user's habits for the UTC day containing `day`
// and compares it with the previous day.
func (s *Service) DailySummary(ctx context.Context, userID string, day time.Time) (_ DailySummary, err error) {
	ctx, span := s.tracer.Start(ctx, "habits.DailySummary")
	defer func() { endSpan(span, err) }()

	dayStart := startOfDay(day)
	key := summaryKey(userID, dayStart)
	if cached, ok := s.summaries.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cloneSummary(cached), nil
	}

	gen := s.generation(userID)
	prevStart := dayStart.AddDate(0, 0, -1)
	habits, err := s.repo.ListHabits(ctx, userID, HabitFilter{
		Since: prevStart,
		Until: dayStart.AddDate(0, 0, 1),
	})
	if err != nil {
		return DailySummary{}, fmt.Errorf("list habits: %w", err)
	}

	summary := DailySummary{
		UserID:     userID,
		Day:        dayStart,
		ByCategory: make(map[carbon.Category]float64),
	}
	for _, h := range habits {
		if h.CreatedAt.Before(dayStart) {
			summary.PreviousDayKg += h.CO2Impact
			continue
		}
		summary.Entries++
		summary.TotalKg += h.CO2Impact
		summary.ByCategory[h.Category] += h.CO2Impact
	}
	summary.EcoPoints = summary.Entries * PointsPerHabit
	if summary.PreviousDayKg > 0 {
		summary.PercentChange = (summary.TotalKg - summary.PreviousDayKg) / summary.PreviousDayKg * 100
	}

	s.genMu.Lock()
	if s.generations[userID] == gen {
		s.summaries.Add(key, summary)
	}
	s.genMu.Unlock()
	return cloneSummary(summary), nil
}

// invalidateSummaries drops cached summaries affected by a habit on day `at`:
// that day and the following one, whose percent change depends on it.
func (s *Service) invalidateSummaries(userID string, at time.Time) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[userID]++

	day := startOfDay(at)
	s.summaries.Remove(summaryKey(userID, day))
	s.summaries.Remove(summaryKey(userID, day.AddDate(0, 0, 1)))
}

func (s *Service) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

func summaryKey(userID string, day time.Time) string {
	return userID + "|" + day.Format(dayLayout)
}

func cloneSummary(in DailySummary) DailySummary {
	out := in
	out.ByCategory = make(map[carbon.Category]float64, len(in.ByCategory))
	for k, v := range in.ByCategory {
		out.ByCategory[k] = v
	}
	return out
}

func (s *Service) publish(ctx context.Context, eventType, userID string, at time.Time, payload any) {
	event, err := events.New(eventType, userID, at, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("user_id", userID).
			Msg("failed to publish event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
