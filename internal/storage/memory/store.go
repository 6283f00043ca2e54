// Package memory provides an in-memory habits repository for tests and local use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rshade/ecohabit/internal/habits"
)

// Store implements habits.Repository in memory.
type Store struct {
	mu             sync.RWMutex
	profiles       map[string]habits.Profile
	habits         map[string][]habits.Habit
	challenges     map[string]habits.Challenge
	userChallenges map[string]habits.UserChallenge
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		profiles:       make(map[string]habits.Profile),
		habits:         make(map[string][]habits.Habit),
		challenges:     make(map[string]habits.Challenge),
		userChallenges: make(map[string]habits.UserChallenge),
	}
}

func userChallengeKey(userID, challengeID string) string {
	return userID + "/" + challengeID
}

// CreateProfile implements habits.Repository.
func (s *Store) CreateProfile(ctx context.Context, p habits.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return habits.ErrAlreadyExists
	}
	s.profiles[p.ID] = p
	return nil
}

// GetProfile implements habits.Repository.
func (s *Store) GetProfile(ctx context.Context, userID string) (habits.Profile, error) {
	if err := ctx.Err(); err != nil {
		return habits.Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return habits.Profile{}, habits.ErrNotFound
	}
	return p, nil
}

// UpdateProfile implements habits.Repository.
func (s *Store) UpdateProfile(ctx context.Context, userID string, mutate habits.ProfileMutation) (habits.Profile, error) {
	if err := ctx.Err(); err != nil {
		return habits.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return habits.Profile{}, habits.ErrNotFound
	}
	if err := mutate(&p); err != nil {
		return habits.Profile{}, err
	}
	p.ID = userID
	s.profiles[userID] = p
	return p, nil
}

// RecordHabit implements habits.Repository.
func (s *Store) RecordHabit(ctx context.Context, h habits.Habit, mutate habits.HabitMutation) (habits.Profile, error) {
	if err := ctx.Err(); err != nil {
		return habits.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[h.UserID]
	if !ok {
		return habits.Profile{}, habits.ErrNotFound
	}
	var last time.Time
	for _, existing := range s.habits[h.UserID] {
		if existing.ID == h.ID {
			return habits.Profile{}, habits.ErrAlreadyExists
		}
		if existing.CreatedAt.After(last) {
			last = existing.CreatedAt
		}
	}
	if mutate != nil {
		if err := mutate(&p, last); err != nil {
			return habits.Profile{}, err
		}
		p.ID = h.UserID
	}
	s.habits[h.UserID] = append(s.habits[h.UserID], h)
	s.profiles[h.UserID] = p
	return p, nil
}

// ListHabits implements habits.Repository.
func (s *Store) ListHabits(ctx context.Context, userID string, filter habits.HabitFilter) ([]habits.Habit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stored := s.habits[userID]
	out := make([]habits.Habit, 0, len(stored))
	// Walk backwards so habits sharing a timestamp list the latest insert first.
	for i := len(stored) - 1; i >= 0; i-- {
		if filter.Matches(stored[i].CreatedAt) {
			out = append(out, stored[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateChallenge implements habits.Repository.
func (s *Store) CreateChallenge(ctx context.Context, c habits.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return habits.ErrAlreadyExists
	}
	s.challenges[c.ID] = c
	return nil
}

// GetChallenge implements habits.Repository.
func (s *Store) GetChallenge(ctx context.Context, id string) (habits.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return habits.Challenge{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return habits.Challenge{}, habits.ErrNotFound
	}
	return c, nil
}

// ListActiveChallenges implements habits.Repository.
func (s *Store) ListActiveChallenges(ctx context.Context, now time.Time) ([]habits.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]habits.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if c.ActiveAt(now) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndDate.Before(out[j].EndDate)
	})
	return out, nil
}

// JoinChallenge implements habits.Repository.
func (s *Store) JoinChallenge(ctx context.Context, uc habits.UserChallenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userChallengeKey(uc.UserID, uc.ChallengeID)
	if _, ok := s.userChallenges[key]; ok {
		return habits.ErrAlreadyExists
	}
	s.userChallenges[key] = uc
	return nil
}

// GetUserChallenge implements habits.Repository.
func (s *Store) GetUserChallenge(ctx context.Context, userID, challengeID string) (habits.UserChallenge, error) {
	if err := ctx.Err(); err != nil {
		return habits.UserChallenge{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	uc, ok := s.userChallenges[userChallengeKey(userID, challengeID)]
	if !ok {
		return habits.UserChallenge{}, habits.ErrNotFound
	}
	return uc, nil
}

// AdvanceChallenge implements habits.Repository.
func (s *Store) AdvanceChallenge(ctx context.Context, userID, challengeID string, mutate habits.ChallengeMutation) (habits.UserChallenge, habits.Profile, error) {
	if err := ctx.Err(); err != nil {
		return habits.UserChallenge{}, habits.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userChallengeKey(userID, challengeID)
	uc, ok := s.userChallenges[key]
	if !ok {
		return habits.UserChallenge{}, habits.Profile{}, habits.ErrNotFound
	}
	p, ok := s.profiles[userID]
	if !ok {
		return habits.UserChallenge{}, habits.Profile{}, habits.ErrNotFound
	}
	if err := mutate(&uc, &p); err != nil {
		return habits.UserChallenge{}, habits.Profile{}, err
	}
	uc.UserID, uc.ChallengeID, p.ID = userID, challengeID, userID
	s.userChallenges[key] = uc
	s.profiles[userID] = p
	return uc, p, nil
}

// ListUserChallenges implements habits.Repository.
func (s *Store) ListUserChallenges(ctx context.Context, userID string) ([]habits.UserChallenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []habits.UserChallenge
	for _, uc := range s.userChallenges {
		if uc.UserID == userID {
			out = append(out, uc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ChallengeID < out[j].ChallengeID
		}
		return out[i].JoinedAt.After(out[j].JoinedAt)
	})
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ habits.Repository = (*Store)(nil)
