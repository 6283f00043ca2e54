// Package storagetest holds behavior tests shared by every habits.Repository
// implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/habits"
)

// base is truncated to milliseconds so stores that persist millisecond
// timestamps round-trip exactly.
var base = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// Run exercises repo against the habits.Repository contract. newRepo must
// return an empty repository for every call.
func Run(t *testing.T, newRepo func(t *testing.T) habits.Repository) {
	t.Helper()

	t.Run("profiles", func(t *testing.T) { testProfiles(t, newRepo(t)) })
	t.Run("habits", func(t *testing.T) { testHabits(t, newRepo(t)) })
	t.Run("challenges", func(t *testing.T) { testChallenges(t, newRepo(t)) })
	t.Run("user challenges", func(t *testing.T) { testUserChallenges(t, newRepo(t)) })
	t.Run("concurrent habits", func(t *testing.T) { testConcurrentHabits(t, newRepo(t)) })
	t.Run("concurrent challenge completion", func(t *testing.T) { testConcurrentAdvance(t, newRepo(t)) })
	t.Run("mutation errors roll back", func(t *testing.T) { testMutationRollback(t, newRepo(t)) })
}

func testProfiles(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	p := habits.Profile{
		ID:        "user-1",
		Username:  "fern",
		Level:     1,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, repo.CreateProfile(ctx, p))
	assert.ErrorIs(t, repo.CreateProfile(ctx, p), habits.ErrAlreadyExists)

	got, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p.EcoPoints = 120
	p.Level = 2
	p.StreakDays = 3
	p.CO2Saved = 15.5
	p.AvatarURL = "https://example.com/fern.png"
	p.UpdatedAt = base.Add(time.Hour)
	updated, err := repo.UpdateProfile(ctx, "user-1", func(stored *habits.Profile) error {
		want := p
		want.ID = "ignored"
		*stored = want
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, p, updated, "profile id cannot be changed")

	got, err = repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = repo.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, habits.ErrNotFound)
	_, err = repo.UpdateProfile(ctx, "missing", func(*habits.Profile) error { return nil })
	assert.ErrorIs(t, err, habits.ErrNotFound)
}

func testHabits(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateProfile(ctx, habits.Profile{ID: "user-1", Username: "fern", Level: 1, CreatedAt: base, UpdatedAt: base}))

	var lastSeen []time.Time
	for i := 0; i < 4; i++ {
		h := habits.Habit{
			ID:        fmt.Sprintf("habit-%d", i),
			UserID:    "user-1",
			Category:  carbon.CategoryTransport,
			Value:     float64(10 * (i + 1)),
			Unit:      carbon.UnitKm,
			Mode:      carbon.ModeBus,
			CO2Impact: float64(i + 1),
			CreatedAt: base.Add(time.Duration(i) * 12 * time.Hour),
		}
		p, err := repo.RecordHabit(ctx, h, func(p *habits.Profile, lastHabitAt time.Time) error {
			lastSeen = append(lastSeen, lastHabitAt)
			p.EcoPoints += 10
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10*(i+1), p.EcoPoints)
	}
	require.Len(t, lastSeen, 4)
	assert.True(t, lastSeen[0].IsZero(), "no habit before the first")
	assert.True(t, base.Add(24*time.Hour).Equal(lastSeen[3]))

	dup := habits.Habit{ID: "habit-0", UserID: "user-1", Category: carbon.CategoryElectricity, Value: 1, CreatedAt: base}
	_, err := repo.RecordHabit(ctx, dup, nil)
	assert.ErrorIs(t, err, habits.ErrAlreadyExists)
	_, err = repo.RecordHabit(ctx, habits.Habit{ID: "orphan", UserID: "nobody", Category: carbon.CategoryElectricity, CreatedAt: base}, nil)
	assert.ErrorIs(t, err, habits.ErrNotFound)

	profile, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 40, profile.EcoPoints, "failed records leave the profile untouched")

	all, err := repo.ListHabits(ctx, "user-1", habits.HabitFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "habit-3", all[0].ID, "newest first")
	assert.Equal(t, carbon.ModeBus, all[0].Mode)
	assert.Equal(t, carbon.UnitKm, all[0].Unit)
	assert.InDelta(t, 4.0, all[0].CO2Impact, 1e-9)
	assert.True(t, base.Add(36*time.Hour).Equal(all[0].CreatedAt))

	limited, err := repo.ListHabits(ctx, "user-1", habits.HabitFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "habit-3", limited[0].ID)

	window, err := repo.ListHabits(ctx, "user-1", habits.HabitFilter{
		Since: base.Add(12 * time.Hour),
		Until: base.Add(36 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "habit-2", window[0].ID)
	assert.Equal(t, "habit-1", window[1].ID)

	none, err := repo.ListHabits(ctx, "user-2", habits.HabitFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testChallenges(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	mk := func(id string, end time.Time) habits.Challenge {
		return habits.Challenge{
			ID:          id,
			Title:       "Challenge " + id,
			Description: "Take the train",
			Reward:      100,
			Category:    "transport",
			Target:      5,
			StartDate:   base.Add(-48 * time.Hour),
			EndDate:     end,
		}
	}
	ended := mk("a-ended", base.Add(-time.Hour))
	later := mk("b-later", base.Add(72*time.Hour))
	sooner := mk("c-sooner", base.Add(24*time.Hour))
	for _, c := range []habits.Challenge{ended, later, sooner} {
		require.NoError(t, repo.CreateChallenge(ctx, c))
	}
	assert.ErrorIs(t, repo.CreateChallenge(ctx, later), habits.ErrAlreadyExists)

	got, err := repo.GetChallenge(ctx, "b-later")
	require.NoError(t, err)
	assert.Equal(t, later.Title, got.Title)
	assert.Equal(t, later.Target, got.Target)
	assert.True(t, later.EndDate.Equal(got.EndDate))

	_, err = repo.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, habits.ErrNotFound)

	active, err := repo.ListActiveChallenges(ctx, base)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c-sooner", active[0].ID)
	assert.Equal(t, "b-later", active[1].ID)
}

func testUserChallenges(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateProfile(ctx, habits.Profile{ID: "user-1", Username: "fern", Level: 1, CreatedAt: base, UpdatedAt: base}))
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, repo.CreateChallenge(ctx, habits.Challenge{
			ID: id, Title: id, Target: 3, StartDate: base, EndDate: base.Add(24 * time.Hour),
		}))
	}

	first := habits.UserChallenge{ID: "uc-1", UserID: "user-1", ChallengeID: "c1", JoinedAt: base}
	second := habits.UserChallenge{ID: "uc-2", UserID: "user-1", ChallengeID: "c2", JoinedAt: base.Add(time.Minute)}
	require.NoError(t, repo.JoinChallenge(ctx, first))
	require.NoError(t, repo.JoinChallenge(ctx, second))
	assert.ErrorIs(t, repo.JoinChallenge(ctx, habits.UserChallenge{ID: "uc-3", UserID: "user-1", ChallengeID: "c1", JoinedAt: base}), habits.ErrAlreadyExists)

	uc, p, err := repo.AdvanceChallenge(ctx, "user-1", "c1", func(uc *habits.UserChallenge, p *habits.Profile) error {
		uc.Progress = 3
		uc.Completed = true
		p.EcoPoints += 50
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", uc.ChallengeID)
	assert.Equal(t, 50, p.EcoPoints)

	got, err := repo.GetUserChallenge(ctx, "user-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Progress)
	assert.True(t, got.Completed)
	profile, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 50, profile.EcoPoints)

	_, err = repo.GetUserChallenge(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, habits.ErrNotFound)
	_, _, err = repo.AdvanceChallenge(ctx, "user-1", "missing", func(*habits.UserChallenge, *habits.Profile) error { return nil })
	assert.ErrorIs(t, err, habits.ErrNotFound)

	list, err := repo.ListUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ChallengeID, "most recently joined first")
	assert.Equal(t, "c1", list[1].ChallengeID)
}

func testConcurrentHabits(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateProfile(ctx, habits.Profile{ID: "user-1", Username: "fern", Level: 1, CreatedAt: base, UpdatedAt: base}))

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.RecordHabit(ctx, habits.Habit{
				ID:        fmt.Sprintf("h-%02d", i),
				UserID:    "user-1",
				Category:  carbon.CategoryElectricity,
				Value:     1,
				Unit:      carbon.UnitKWh,
				CO2Impact: 0.4,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}, func(p *habits.Profile, _ time.Time) error {
				p.EcoPoints += 10
				p.CO2Saved += 0.5
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := repo.ListHabits(ctx, "user-1", habits.HabitFilter{})
	require.NoError(t, err)
	assert.Len(t, list, goroutines)

	p, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10*goroutines, p.EcoPoints, "no profile update is lost")
	assert.InDelta(t, 0.5*goroutines, p.CO2Saved, 1e-9)
}

func testConcurrentAdvance(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateProfile(ctx, habits.Profile{ID: "user-1", Username: "fern", Level: 1, CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, repo.CreateChallenge(ctx, habits.Challenge{
		ID: "c1", Title: "c1", Reward: 200, Target: 3, StartDate: base, EndDate: base.Add(24 * time.Hour),
	}))
	require.NoError(t, repo.JoinChallenge(ctx, habits.UserChallenge{ID: "uc-1", UserID: "user-1", ChallengeID: "c1", JoinedAt: base}))

	const goroutines = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.AdvanceChallenge(ctx, "user-1", "c1", func(uc *habits.UserChallenge, p *habits.Profile) error {
				if uc.Completed {
					return nil
				}
				uc.Progress = 3
				uc.Completed = true
				p.EcoPoints += 200
				mu.Lock()
				awarded++
				mu.Unlock()
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, awarded, "only one caller sees the challenge incomplete")
	p, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 200, p.EcoPoints)
}

func testMutationRollback(t *testing.T, repo habits.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateProfile(ctx, habits.Profile{ID: "user-1", Username: "fern", Level: 1, CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, repo.CreateChallenge(ctx, habits.Challenge{
		ID: "c1", Title: "c1", Reward: 50, Target: 1, StartDate: base, EndDate: base.Add(24 * time.Hour),
	}))
	require.NoError(t, repo.JoinChallenge(ctx, habits.UserChallenge{ID: "uc-1", UserID: "user-1", ChallengeID: "c1", JoinedAt: base}))

	boom := errors.New("boom")

	_, err := repo.RecordHabit(ctx, habits.Habit{ID: "h-1", UserID: "user-1", Category: carbon.CategoryElectricity, Value: 1, CreatedAt: base},
		func(p *habits.Profile, _ time.Time) error {
			p.EcoPoints = 999
			return boom
		})
	assert.ErrorIs(t, err, boom)
	list, err := repo.ListHabits(ctx, "user-1", habits.HabitFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "habit insert is rolled back")

	_, err = repo.UpdateProfile(ctx, "user-1", func(p *habits.Profile) error {
		p.Username = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, _, err = repo.AdvanceChallenge(ctx, "user-1", "c1", func(uc *habits.UserChallenge, p *habits.Profile) error {
		uc.Completed = true
		p.EcoPoints += 50
		return boom
	})
	assert.ErrorIs(t, err, boom)

	uc, err := repo.GetUserChallenge(ctx, "user-1", "c1")
	require.NoError(t, err)
	assert.False(t, uc.Completed)
	p, err := repo.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "fern", p.Username)
	assert.Equal(t, 0, p.EcoPoints)
}
