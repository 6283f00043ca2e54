package habits

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a profile, challenge or participation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record that already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidValue is returned when a habit value is empty, non-finite or not positive.
	ErrInvalidValue = errors.New("value must be a positive number")

	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrChallengeClosed is returned when joining a challenge past its end date.
	ErrChallengeClosed = errors.New("challenge has ended")

	// ErrNotJoined is returned when updating progress on a challenge the user has not joined.
	ErrNotJoined = errors.New("challenge not joined")
)

// ProfileMutation edits a profile while the repository holds it locked.
// Changes to the profile ID are ignored.
type ProfileMutation func(p *Profile) error

// HabitMutation edits the owner's profile while a habit is recorded.
// lastHabitAt is the creation time of the user's newest habit before the one
// being recorded, zero if there is none.
type HabitMutation func(p *Profile, lastHabitAt time.Time) error

// ChallengeMutation edits a participation and its user's profile together.
type ChallengeMutation func(uc *UserChallenge, p *Profile) error

// Repository persists profiles, habits and challenges.
// Implementations must be safe for concurrent use. Mutations run once, inside
// a single transaction (or lock) covering every row they touch; an error from
// a mutation aborts the change and is returned unwrapped.
type Repository interface {
	CreateProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
	// UpdateProfile applies mutate to the stored profile and returns the result.
	UpdateProfile(ctx context.Context, userID string, mutate ProfileMutation) (Profile, error)

	// RecordHabit stores h and applies mutate to its owner's profile atomically.
	// A nil mutate leaves the profile unchanged. The profile must exist.
	RecordHabit(ctx context.Context, h Habit, mutate HabitMutation) (Profile, error)
	// ListHabits returns a user's habits newest first.
	ListHabits(ctx context.Context, userID string, filter HabitFilter) ([]Habit, error)

	CreateChallenge(ctx context.Context, c Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, error)
	// ListActiveChallenges returns challenges whose end date is at or after now,
	// soonest ending first.
	ListActiveChallenges(ctx context.Context, now time.Time) ([]Challenge, error)

	JoinChallenge(ctx context.Context, uc UserChallenge) error
	GetUserChallenge(ctx context.Context, userID, challengeID string) (UserChallenge, error)
	// AdvanceChallenge applies mutate to a participation and its user's profile
	// atomically. It returns ErrNotFound when either does not exist.
	AdvanceChallenge(ctx context.Context, userID, challengeID string, mutate ChallengeMutation) (UserChallenge, Profile, error)
	ListUserChallenges(ctx context.Context, userID string) ([]UserChallenge, error)
}
