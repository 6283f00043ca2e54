// Package postgres provides a Postgres-backed habits repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/habits"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for profiles, habits and challenges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects to databaseURL, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// CreateProfile implements habits.Repository.
func (r *Repository) CreateProfile(ctx context.Context, p habits.Profile) error {
	const query = `INSERT INTO profiles (id, username, avatar_url, level, eco_points, streak_days, co2_saved, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Username, p.AvatarURL, p.Level, p.EcoPoints, p.StreakDays, p.CO2Saved,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return mapWriteErr("create profile", err)
}

const profileColumns = `id, username, avatar_url, level, eco_points, streak_days, co2_saved, created_at, updated_at`

func scanProfile(row pgx.Row) (habits.Profile, error) {
	var p habits.Profile
	err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Level, &p.EcoPoints, &p.StreakDays, &p.CO2Saved, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return habits.Profile{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// GetProfile implements habits.Repository.
func (r *Repository) GetProfile(ctx context.Context, userID string) (habits.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, userID))
}

func lockProfile(ctx context.Context, tx pgx.Tx, userID string) (habits.Profile, error) {
	return scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1 FOR UPDATE`, userID))
}

func saveProfile(ctx context.Context, tx pgx.Tx, p habits.Profile) error {
	const query = `UPDATE profiles
        SET username=$2, avatar_url=$3, level=$4, eco_points=$5, streak_days=$6, co2_saved=$7, updated_at=$8
        WHERE id=$1`
	tag, err := tx.Exec(ctx, query,
		p.ID, p.Username, p.AvatarURL, p.Level, p.EcoPoints, p.StreakDays, p.CO2Saved, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return habits.ErrNotFound
	}
	return nil
}

// UpdateProfile implements habits.Repository.
func (r *Repository) UpdateProfile(ctx context.Context, userID string, mutate habits.ProfileMutation) (habits.Profile, error) {
	var out habits.Profile
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		p.ID = userID
		if err := saveProfile(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// RecordHabit implements habits.Repository.
func (r *Repository) RecordHabit(ctx context.Context, h habits.Habit, mutate habits.HabitMutation) (habits.Profile, error) {
	var out habits.Profile
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, h.UserID)
		if err != nil {
			return err
		}
		var last *time.Time
		if err := tx.QueryRow(ctx, `SELECT MAX(created_at) FROM habits WHERE user_id=$1`, h.UserID).Scan(&last); err != nil {
			return fmt.Errorf("latest habit: %w", err)
		}
		const insert = `INSERT INTO habits (id, user_id, category, value, unit, mode, type, co2_impact, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
		_, err = tx.Exec(ctx, insert,
			h.ID, h.UserID, string(h.Category), h.Value, h.Unit, string(h.Mode), string(h.Type), h.CO2Impact,
			h.CreatedAt.UTC(),
		)
		if err := mapWriteErr("insert habit", err); err != nil {
			return err
		}
		if mutate != nil {
			var lastAt time.Time
			if last != nil {
				lastAt = last.UTC()
			}
			if err := mutate(&p, lastAt); err != nil {
				return err
			}
			p.ID = h.UserID
			if err := saveProfile(ctx, tx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	return out, err
}

// ListHabits implements habits.Repository.
func (r *Repository) ListHabits(ctx context.Context, userID string, filter habits.HabitFilter) ([]habits.Habit, error) {
	query := `SELECT id, user_id, category, value, unit, mode, type, co2_impact, created_at
        FROM habits WHERE user_id=$1`
	args := []any{userID}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var out []habits.Habit
	for rows.Next() {
		var (
			h                    habits.Habit
			category, mode, kind string
		)
		if err := rows.Scan(&h.ID, &h.UserID, &category, &h.Value, &h.Unit, &mode, &kind, &h.CO2Impact, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		h.Category = carbon.Category(category)
		h.Mode = carbon.TransportMode(mode)
		h.Type = carbon.ConsumptionType(kind)
		h.CreatedAt = h.CreatedAt.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return out, nil
}

// CreateChallenge implements habits.Repository.
func (r *Repository) CreateChallenge(ctx context.Context, c habits.Challenge) error {
	const query = `INSERT INTO challenges (id, title, description, reward, category, target, start_date, end_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Title, c.Description, c.Reward, c.Category, c.Target, c.StartDate.UTC(), c.EndDate.UTC(),
	)
	return mapWriteErr("create challenge", err)
}

const challengeColumns = `id, title, description, reward, category, target, start_date, end_date`

func scanChallenge(row pgx.Row) (habits.Challenge, error) {
	var c habits.Challenge
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Reward, &c.Category, &c.Target, &c.StartDate, &c.EndDate); err != nil {
		return habits.Challenge{}, err
	}
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	return c, nil
}

// GetChallenge implements habits.Repository.
func (r *Repository) GetChallenge(ctx context.Context, id string) (habits.Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return habits.Challenge{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

// ListActiveChallenges implements habits.Repository.
func (r *Repository) ListActiveChallenges(ctx context.Context, now time.Time) ([]habits.Challenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE end_date >= $1 ORDER BY end_date ASC, id ASC`,
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var out []habits.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}
	return out, nil
}

// JoinChallenge implements habits.Repository.
func (r *Repository) JoinChallenge(ctx context.Context, uc habits.UserChallenge) error {
	const query = `INSERT INTO user_challenges (id, user_id, challenge_id, progress, completed, joined_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query, uc.ID, uc.UserID, uc.ChallengeID, uc.Progress, uc.Completed, uc.JoinedAt.UTC())
	return mapWriteErr("join challenge", err)
}

const userChallengeColumns = `id, user_id, challenge_id, progress, completed, joined_at`

func scanUserChallenge(row pgx.Row) (habits.UserChallenge, error) {
	var uc habits.UserChallenge
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &uc.Progress, &uc.Completed, &uc.JoinedAt); err != nil {
		return habits.UserChallenge{}, err
	}
	uc.JoinedAt = uc.JoinedAt.UTC()
	return uc, nil
}

// GetUserChallenge implements habits.Repository.
func (r *Repository) GetUserChallenge(ctx context.Context, userID, challengeID string) (habits.UserChallenge, error) {
	uc, err := scanUserChallenge(r.pool.QueryRow(ctx,
		`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id=$1 AND challenge_id=$2`,
		userID, challengeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return habits.UserChallenge{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.UserChallenge{}, fmt.Errorf("get user challenge: %w", err)
	}
	return uc, nil
}

// AdvanceChallenge implements habits.Repository.
func (r *Repository) AdvanceChallenge(ctx context.Context, userID, challengeID string, mutate habits.ChallengeMutation) (habits.UserChallenge, habits.Profile, error) {
	var (
		outUC habits.UserChallenge
		outP  habits.Profile
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		uc, err := scanUserChallenge(tx.QueryRow(ctx,
			`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id=$1 AND challenge_id=$2 FOR UPDATE`,
			userID, challengeID))
		if errors.Is(err, pgx.ErrNoRows) {
			return habits.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user challenge: %w", err)
		}
		p, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&uc, &p); err != nil {
			return err
		}
		p.ID = userID
		if _, err := tx.Exec(ctx,
			`UPDATE user_challenges SET progress=$3, completed=$4 WHERE user_id=$1 AND challenge_id=$2`,
			userID, challengeID, uc.Progress, uc.Completed); err != nil {
			return fmt.Errorf("update user challenge: %w", err)
		}
		if err := saveProfile(ctx, tx, p); err != nil {
			return err
		}
		uc.UserID, uc.ChallengeID = userID, challengeID
		outUC, outP = uc, p
		return nil
	})
	if err != nil {
		return habits.UserChallenge{}, habits.Profile{}, err
	}
	return outUC, outP, nil
}

// ListUserChallenges implements habits.Repository.
func (r *Repository) ListUserChallenges(ctx context.Context, userID string) ([]habits.UserChallenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id=$1
        ORDER BY joined_at DESC, challenge_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user challenges: %w", err)
	}
	defer rows.Close()

	var out []habits.UserChallenge
	for rows.Next() {
		uc, err := scanUserChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user challenge: %w", err)
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user challenges: %w", err)
	}
	return out, nil
}

func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return habits.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ habits.Repository = (*Repository)(nil)
