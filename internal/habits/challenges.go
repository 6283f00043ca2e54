package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rshade/ecohabit/internal/events"
	"github.com/rshade/ecohabit/internal/observability"
)

// CreateChallenge validates and stores a new challenge.
func (s *Service) CreateChallenge(ctx context.Context, c Challenge) (Challenge, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	switch {
	case c.Title == "":
		return Challenge{}, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	case c.Target <= 0:
		return Challenge{}, fmt.Errorf("%w: target must be greater than zero", ErrInvalidArgument)
	case c.Reward < 0:
		return Challenge{}, fmt.Errorf("%w: reward must not be negative", ErrInvalidArgument)
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return Challenge{}, fmt.Errorf("%w: start and end dates are required", ErrInvalidArgument)
	case !c.EndDate.After(c.StartDate):
		return Challenge{}, fmt.Errorf("%w: end date must be after start date", ErrInvalidArgument)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	if err := s.repo.CreateChallenge(ctx, c); err != nil {
		return Challenge{}, fmt.Errorf("create challenge: %w", err)
	}
	return c, nil
}

// ListActiveChallenges returns challenges that have not ended yet.
func (s *Service) ListActiveChallenges(ctx context.Context) ([]Challenge, error) {
	challenges, err := s.repo.ListActiveChallenges(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// ListUserChallenges returns the challenges a user has joined.
func (s *Service) ListUserChallenges(ctx context.Context, userID string) ([]UserChallenge, error) {
	ucs, err := s.repo.ListUserChallenges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user challenges: %w", err)
	}
	return ucs, nil
}

// JoinChallenge enrolls a user in an open challenge.
func (s *Service) JoinChallenge(ctx context.Context, userID, challengeID string) (_ UserChallenge, err error) {
	ctx, span := s.tracer.Start(ctx, "habits.JoinChallenge",
		trace.WithAttributes(attribute.String("challenge.id", challengeID)))
	defer func() { endSpan(span, err) }()

	if _, err := s.repo.GetProfile(ctx, userID); err != nil {
		return UserChallenge{}, fmt.Errorf("get profile: %w", err)
	}
	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return UserChallenge{}, fmt.Errorf("get challenge: %w", err)
	}
	now := s.now().UTC()
	if !challenge.ActiveAt(now) {
		return UserChallenge{}, ErrChallengeClosed
	}

	uc := UserChallenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challengeID,
		JoinedAt:    now,
	}
	if err := s.repo.JoinChallenge(ctx, uc); err != nil {
		return UserChallenge{}, fmt.Errorf("join challenge: %w", err)
	}

	s.publish(ctx, events.TypeChallengeJoined, userID, now, map[string]any{
		"challenge_id": challengeID,
	})
	return uc, nil
}

// UpdateChallengeProgress sets a user's progress on a joined challenge.
// Progress is clamped to [0, target]. Reaching the target completes the
// challenge and awards its reward once; completed challenges stay completed.
func (s *Service) UpdateChallengeProgress(ctx context.Context, userID, challengeID string, progress int) (_ UserChallenge, err error) {
	ctx, span := s.tracer.Start(ctx, "habits.UpdateChallengeProgress",
		trace.WithAttributes(
			attribute.String("challenge.id", challengeID),
			attribute.Int("challenge.progress", progress),
		))
	defer func() { endSpan(span, err) }()

	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return UserChallenge{}, fmt.Errorf("get challenge: %w", err)
	}

	now := s.now().UTC()
	completedNow := false
	uc, _, err := s.repo.AdvanceChallenge(ctx, userID, challengeID, func(uc *UserChallenge, p *Profile) error {
		if uc.Completed {
			return nil
		}
		uc.Progress = clampInt(progress, 0, challenge.Target)
		if uc.Progress < challenge.Target {
			return nil
		}
		uc.Completed = true
		completedNow = true
		p.EcoPoints += challenge.Reward
		p.Level = LevelForPoints(p.EcoPoints)
		p.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return UserChallenge{}, ErrNotJoined
	}
	if err != nil {
		return UserChallenge{}, fmt.Errorf("advance challenge: %w", err)
	}
	if !completedNow {
		return uc, nil
	}

	observability.RecordChallengeCompleted()
	s.publish(ctx, events.TypeChallengeCompleted, userID, now, map[string]any{
		"challenge_id": challengeID,
		"reward":       challenge.Reward,
	})
	s.logger.Info().
		Str("user_id", userID).
		Str("challenge_id", challengeID).
		Int("reward", challenge.Reward).
		Msg("challenge completed")
	return uc, nil
}

// CompleteChallenge marks a joined challenge as done by setting its progress to the target.
func (s *Service) CompleteChallenge(ctx context.Context, userID, challengeID string) (UserChallenge, error) {
	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return UserChallenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return s.UpdateChallengeProgress(ctx, userID, challengeID, challenge.Target)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
