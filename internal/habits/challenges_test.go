package habits_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/ecohabit/internal/events"
	"github.com/rshade/ecohabit/internal/habits"
)

func (f *fixture) createChallenge(t *testing.T, target, reward int, end time.Time) habits.Challenge {
	t.Helper()
	c, err := f.svc.CreateChallenge(context.Background(), habits.Challenge{
		Title:     "Car-free week",
		Reward:    reward,
		Category:  "transport",
		Target:    target,
		StartDate: f.clock.Now().Add(-24 * time.Hour),
		EndDate:   end,
	})
	require.NoError(t, err)
	return c
}

func TestService_CreateChallenge_Validation(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()
	end := start.Add(7 * 24 * time.Hour)

	tests := []struct {
		name      string
		challenge habits.Challenge
	}{
		{"missing title", habits.Challenge{Target: 1, StartDate: start, EndDate: end}},
		{"zero target", habits.Challenge{Title: "x", StartDate: start, EndDate: end}},
		{"negative reward", habits.Challenge{Title: "x", Target: 1, Reward: -5, StartDate: start, EndDate: end}},
		{"missing dates", habits.Challenge{Title: "x", Target: 1}},
		{"end before start", habits.Challenge{Title: "x", Target: 1, StartDate: end, EndDate: start}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateChallenge(context.Background(), tt.challenge)
			assert.ErrorIs(t, err, habits.ErrInvalidArgument)
		})
	}
}

func TestService_ListActiveChallenges(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	later := f.createChallenge(t, 5, 50, now.Add(72*time.Hour))
	sooner := f.createChallenge(t, 5, 50, now.Add(24*time.Hour))
	f.createChallenge(t, 5, 50, now.Add(time.Hour))

	f.clock.Advance(2 * time.Hour)
	active, err := f.svc.ListActiveChallenges(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, sooner.ID, active[0].ID)
	assert.Equal(t, later.ID, active[1].ID)
}

func TestService_JoinChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")
	c := f.createChallenge(t, 5, 50, f.clock.Now().Add(48*time.Hour))

	uc, err := f.svc.JoinChallenge(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, uc.ChallengeID)
	assert.Zero(t, uc.Progress)
	assert.False(t, uc.Completed)
	assert.Len(t, f.publisher.EventsOfType(events.TypeChallengeJoined), 1)

	_, err = f.svc.JoinChallenge(ctx, "u1", c.ID)
	assert.ErrorIs(t, err, habits.ErrAlreadyExists)

	_, err = f.svc.JoinChallenge(ctx, "u1", "missing")
	assert.ErrorIs(t, err, habits.ErrNotFound)

	_, err = f.svc.JoinChallenge(ctx, "nobody", c.ID)
	assert.ErrorIs(t, err, habits.ErrNotFound)

	joined, err := f.svc.ListUserChallenges(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, joined, 1)
}

func TestService_JoinChallenge_Closed(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "u1")
	c := f.createChallenge(t, 5, 50, f.clock.Now().Add(time.Hour))

	f.clock.Advance(2 * time.Hour)
	_, err := f.svc.JoinChallenge(context.Background(), "u1", c.ID)
	assert.ErrorIs(t, err, habits.ErrChallengeClosed)
}

func TestService_UpdateChallengeProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")
	c := f.createChallenge(t, 5, 50, f.clock.Now().Add(48*time.Hour))

	_, err := f.svc.UpdateChallengeProgress(ctx, "u1", c.ID, 1)
	assert.ErrorIs(t, err, habits.ErrNotJoined)

	_, err = f.svc.JoinChallenge(ctx, "u1", c.ID)
	require.NoError(t, err)

	tests := []struct {
		name          string
		progress      int
		wantProgress  int
		wantCompleted bool
	}{
		{"partial", 3, 3, false},
		{"clamped below", -4, 0, false},
		{"clamped above completes", 12, 5, true},
		{"completed stays completed", 1, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, err := f.svc.UpdateChallengeProgress(ctx, "u1", c.ID, tt.progress)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgress, uc.Progress)
			assert.Equal(t, tt.wantCompleted, uc.Completed)
		})
	}

	p, err := f.svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, p.EcoPoints, "reward is awarded exactly once")
	assert.Len(t, f.publisher.EventsOfType(events.TypeChallengeCompleted), 1)
}

func TestService_CompleteChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "u1")
	c := f.createChallenge(t, 7, 150, f.clock.Now().Add(48*time.Hour))

	_, err := f.svc.JoinChallenge(ctx, "u1", c.ID)
	require.NoError(t, err)

	uc, err := f.svc.CompleteChallenge(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.True(t, uc.Completed)
	assert.Equal(t, 7, uc.Progress)

	p, err := f.svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 150, p.EcoPoints)
	assert.Equal(t, 2, p.Level)
}
