package habits_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/events"
	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/storage/memory"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	svc       *habits.Service
	store     *memory.Store
	publisher *events.RecordingPublisher
	clock     *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		publisher: &events.RecordingPublisher{},
		clock:     &clock{now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)},
	}
	svc, err := habits.NewService(f.store, carbon.DefaultCalculator(),
		habits.WithPublisher(f.publisher),
		habits.WithClock(f.clock.Now),
		habits.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) signUp(t *testing.T, userID string) {
	t.Helper()
	_, err := f.svc.SignUp(context.Background(), userID, "user-"+userID)
	require.NoError(t, err)
}

func TestNewService(t *testing.T) {
	_, err := habits.NewService(nil, nil)
	assert.ErrorIs(t, err, habits.ErrInvalidArgument)

	svc, err := habits.NewService(memory.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, carbon.DefaultCalculator(), svc.Calculator())

	_, err = habits.NewService(memory.New(), nil, habits.WithSummaryCacheSize(0))
	assert.Error(t, err)
}

func TestService_SignUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SignUp(ctx, "u1", "  leafy  ")
	require.NoError(t, err)
	assert.Equal(t, "leafy", p.Username)
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.EcoPoints)
	assert.Zero(t, p.StreakDays)
	assert.Zero(t, p.CO2Saved)

	_, err = f.svc.SignUp(ctx, "u1", "again")
	assert.ErrorIs(t, err, habits.ErrAlreadyExists)

	_, err = f.svc.SignUp(ctx, "", "x")
	assert.ErrorIs(t, err, habits.ErrInvalidArgument)

	_, err = f.svc.SignUp(ctx, "u2", " ")
	assert.ErrorIs(t, err, habits.ErrInvalidArgument)
}

func TestService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	name := "green"
	avatar := " https://example.com/a.png "
	p, err := f.svc.UpdateProfile(ctx, "u1", habits.ProfileUpdate{Username: &name, AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "green", p.Username)
	assert.Equal(t, "https://example.com/a.png", p.AvatarURL)

	empty := ""
	_, err = f.svc.UpdateProfile(ctx, "u1", habits.ProfileUpdate{Username: &empty})
	assert.ErrorIs(t, err, habits.ErrInvalidArgument)

	_, err = f.svc.UpdateProfile(ctx, "missing", habits.ProfileUpdate{})
	assert.ErrorIs(t, err, habits.ErrNotFound)
}

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   carbon.ActivityEntry
		wantErr error
	}{
		{"valid", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 1}, nil},
		{"missing category", carbon.ActivityEntry{Value: 1}, habits.ErrInvalidArgument},
		{"zero", carbon.ActivityEntry{Category: carbon.CategoryElectricity}, habits.ErrInvalidValue},
		{"negative", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: -2}, habits.ErrInvalidValue},
		{"NaN", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: math.NaN()}, habits.ErrInvalidValue},
		{"Inf", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: math.Inf(1)}, habits.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := habits.ValidateEntry(tt.entry)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_TrackHabit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	res, err := f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{
		Category: carbon.CategoryTransport,
		Value:    100,
		Unit:     carbon.UnitKm,
		Mode:     carbon.ModeTrain,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Habit.ID)
	assert.InDelta(t, 5.0, res.Habit.CO2Impact, 1e-9)
	assert.InDelta(t, 15.0, res.SavedKg, 1e-9, "train instead of car saves 20-5 kg")
	assert.Equal(t, habits.PointsPerHabit, res.Profile.EcoPoints)
	assert.Equal(t, 1, res.Profile.StreakDays)
	assert.InDelta(t, 15.0, res.Profile.CO2Saved, 1e-9)

	stored, err := f.svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, res.Profile, stored)

	tracked := f.publisher.EventsOfType(events.TypeHabitTracked)
	require.Len(t, tracked, 1)
	assert.Equal(t, "u1", tracked[0].UserID)
}

func TestService_TrackHabit_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	_, err := f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 0})
	assert.ErrorIs(t, err, habits.ErrInvalidValue)

	_, err = f.svc.TrackHabit(ctx, "nobody", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 1})
	assert.ErrorIs(t, err, habits.ErrNotFound)

	list, err := f.svc.ListHabits(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.publisher.Events())
}

func TestService_TrackHabit_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = errors.New("broker down")
	f.signUp(t, "u1")

	_, err := f.svc.TrackHabit(context.Background(), "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 3})
	assert.NoError(t, err)
}

func TestService_TrackHabit_NoSavingsForDefaultOrWorse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	res, err := f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryConsumption, Value: 2, Type: carbon.TypeMeat})
	require.NoError(t, err)
	assert.Zero(t, res.SavedKg)

	res, err = f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 2})
	require.NoError(t, err)
	assert.Zero(t, res.SavedKg)

	res, err = f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryConsumption, Value: 2, Type: carbon.TypeWater})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, res.SavedKg, 1e-9)
}

func TestService_TrackHabit_StreakAndLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")
	entry := carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 1, Unit: carbon.UnitKWh}

	var res habits.TrackResult
	var err error
	for day := 0; day < 3; day++ {
		res, err = f.svc.TrackHabit(ctx, "u1", entry)
		require.NoError(t, err)
		res, err = f.svc.TrackHabit(ctx, "u1", entry)
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, 3, res.Profile.StreakDays)
	assert.Equal(t, 60, res.Profile.EcoPoints)

	// Skipping a day resets the streak.
	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.TrackHabit(ctx, "u1", entry)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Profile.StreakDays)

	for i := 0; i < 3; i++ {
		res, err = f.svc.TrackHabit(ctx, "u1", entry)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, res.Profile.EcoPoints)
	assert.Equal(t, 2, res.Profile.Level)
}

func TestService_ListHabits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	for i := 1; i <= 5; i++ {
		_, err := f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: float64(i)})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	list, err := f.svc.ListHabits(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 5.0, list[0].Value, "newest first")
	assert.Equal(t, 3.0, list[2].Value)
}

func TestService_DailySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")

	// Previous day: 4 kg.
	_, err := f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 10})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	// Today: 2 kg electricity + 3 kg bus.
	_, err = f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryElectricity, Value: 5})
	require.NoError(t, err)
	_, err = f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryTransport, Value: 30, Unit: carbon.UnitKm, Mode: carbon.ModeBus})
	require.NoError(t, err)

	summary, err := f.svc.DailySummary(ctx, "u1", f.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Entries)
	assert.InDelta(t, 5.0, summary.TotalKg, 1e-9)
	assert.InDelta(t, 4.0, summary.PreviousDayKg, 1e-9)
	assert.InDelta(t, 25.0, summary.PercentChange, 1e-9)
	assert.InDelta(t, 2.0, summary.ByCategory[carbon.CategoryElectricity], 1e-9)
	assert.InDelta(t, 3.0, summary.ByCategory[carbon.CategoryTransport], 1e-9)
	assert.Equal(t, 20, summary.EcoPoints)
	assert.Equal(t, time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC), summary.Day)

	// Mutating a returned summary does not leak into the cache.
	summary.ByCategory[carbon.CategoryElectricity] = 999
	again, err := f.svc.DailySummary(ctx, "u1", f.clock.Now())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, again.ByCategory[carbon.CategoryElectricity], 1e-9)

	// Tracking invalidates the cached summary.
	_, err = f.svc.TrackHabit(ctx, "u1", carbon.ActivityEntry{Category: carbon.CategoryConsumption, Value: 1, Type: carbon.TypeMeat})
	require.NoError(t, err)
	updated, err := f.svc.DailySummary(ctx, "u1", f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Entries)
	assert.InDelta(t, 7.0, updated.TotalKg, 1e-9)
}

func TestService_DailySummary_Empty(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "u1")

	summary, err := f.svc.DailySummary(context.Background(), "u1", f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.Entries)
	assert.Zero(t, summary.PercentChange)
	assert.NotNil(t, summary.ByCategory)
}
