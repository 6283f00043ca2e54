// Package sqlite provides a SQLite-backed habits repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/storage/sqlite/migrations"
)

// Store persists habits state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection keeps concurrent habit inserts from racing on the file lock.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateProfile implements habits.Repository.
func (s *Store) CreateProfile(ctx context.Context, p habits.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO profiles (
		   id, username, avatar_url, level, eco_points, streak_days, co2_saved, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.AvatarURL, p.Level, p.EcoPoints, p.StreakDays, p.CO2Saved,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return habits.ErrAlreadyExists
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

const profileColumns = `id, username, avatar_url, level, eco_points, streak_days, co2_saved, created_at, updated_at`

func scanProfile(row scanner) (habits.Profile, error) {
	var (
		p                    habits.Profile
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Level, &p.EcoPoints, &p.StreakDays, &p.CO2Saved, &createdAt, &updatedAt); err != nil {
		return habits.Profile{}, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

// GetProfile implements habits.Repository.
func (s *Store) GetProfile(ctx context.Context, userID string) (habits.Profile, error) {
	if err := ctx.Err(); err != nil {
		return habits.Profile{}, err
	}
	p, err := scanProfile(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return habits.Profile{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// withTx runs fn in a transaction. The DSN's _txlock=immediate makes every
// transaction take the write lock when it begins.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func profileTx(ctx context.Context, tx *sql.Tx, userID string) (habits.Profile, error) {
	p, err := scanProfile(tx.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return habits.Profile{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func saveProfileTx(ctx context.Context, tx *sql.Tx, p habits.Profile) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE profiles
		 SET username = ?, avatar_url = ?, level = ?, eco_points = ?, streak_days = ?, co2_saved = ?, updated_at = ?
		 WHERE id = ?`,
		p.Username, p.AvatarURL, p.Level, p.EcoPoints, p.StreakDays, p.CO2Saved, toMillis(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res)
}

// UpdateProfile implements habits.Repository.
func (s *Store) UpdateProfile(ctx context.Context, userID string, mutate habits.ProfileMutation) (habits.Profile, error) {
	var out habits.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := profileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		p.ID = userID
		if err := saveProfileTx(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// RecordHabit implements habits.Repository.
func (s *Store) RecordHabit(ctx context.Context, h habits.Habit, mutate habits.HabitMutation) (habits.Profile, error) {
	var out habits.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := profileTx(ctx, tx, h.UserID)
		if err != nil {
			return err
		}
		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(created_at) FROM habits WHERE user_id = ?`, h.UserID).Scan(&last); err != nil {
			return fmt.Errorf("latest habit: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO habits (id, user_id, category, value, unit, mode, type, co2_impact, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.UserID, string(h.Category), h.Value, h.Unit, string(h.Mode), string(h.Type), h.CO2Impact,
			toMillis(h.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return habits.ErrAlreadyExists
			}
			return fmt.Errorf("insert habit: %w", err)
		}
		if mutate != nil {
			var lastAt time.Time
			if last.Valid {
				lastAt = fromMillis(last.Int64)
			}
			if err := mutate(&p, lastAt); err != nil {
				return err
			}
			p.ID = h.UserID
			if err := saveProfileTx(ctx, tx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	return out, err
}

// ListHabits implements habits.Repository.
func (s *Store) ListHabits(ctx context.Context, userID string, filter habits.HabitFilter) ([]habits.Habit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `SELECT id, user_id, category, value, unit, mode, type, co2_impact, created_at
		 FROM habits WHERE user_id = ?`
	args := []any{userID}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, toMillis(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += " AND created_at < ?"
		args = append(args, toMillis(filter.Until))
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var out []habits.Habit
	for rows.Next() {
		var (
			h                    habits.Habit
			category, mode, kind string
			createdAt            int64
		)
		if err := rows.Scan(&h.ID, &h.UserID, &category, &h.Value, &h.Unit, &mode, &kind, &h.CO2Impact, &createdAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		h.Category = carbon.Category(category)
		h.Mode = carbon.TransportMode(mode)
		h.Type = carbon.ConsumptionType(kind)
		h.CreatedAt = fromMillis(createdAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return out, nil
}

// CreateChallenge implements habits.Repository.
func (s *Store) CreateChallenge(ctx context.Context, c habits.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO challenges (id, title, description, reward, category, target, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.Reward, c.Category, c.Target, toMillis(c.StartDate), toMillis(c.EndDate),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return habits.ErrAlreadyExists
		}
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

const challengeColumns = `id, title, description, reward, category, target, start_date, end_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row scanner) (habits.Challenge, error) {
	var (
		c          habits.Challenge
		start, end int64
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Reward, &c.Category, &c.Target, &start, &end); err != nil {
		return habits.Challenge{}, err
	}
	c.StartDate = fromMillis(start)
	c.EndDate = fromMillis(end)
	return c, nil
}

// GetChallenge implements habits.Repository.
func (s *Store) GetChallenge(ctx context.Context, id string) (habits.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return habits.Challenge{}, err
	}
	c, err := scanChallenge(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return habits.Challenge{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

// ListActiveChallenges implements habits.Repository.
func (s *Store) ListActiveChallenges(ctx context.Context, now time.Time) ([]habits.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE end_date >= ? ORDER BY end_date ASC, id ASC`,
		toMillis(now))
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
func (s *Store) JoinChallenge(ctx context.Context, uc habits.UserChallenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_challenges (id, user_id, challenge_id, progress, completed, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uc.ID, uc.UserID, uc.ChallengeID, uc.Progress, uc.Completed, toMillis(uc.JoinedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return habits.ErrAlreadyExists
		}
		return fmt.Errorf("join challenge: %w", err)
	}
	return nil
}

const userChallengeColumns = `id, user_id, challenge_id, progress, completed, joined_at`

func scanUserChallenge(row scanner) (habits.UserChallenge, error) {
	var (
		uc       habits.UserChallenge
		joinedAt int64
	)
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &uc.Progress, &uc.Completed, &joinedAt); err != nil {
		return habits.UserChallenge{}, err
	}
	uc.JoinedAt = fromMillis(joinedAt)
	return uc, nil
}

// GetUserChallenge implements habits.Repository.
func (s *Store) GetUserChallenge(ctx context.Context, userID, challengeID string) (habits.UserChallenge, error) {
	if err := ctx.Err(); err != nil {
		return habits.UserChallenge{}, err
	}
	uc, err := scanUserChallenge(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id = ? AND challenge_id = ?`,
		userID, challengeID))
	if errors.Is(err, sql.ErrNoRows) {
		return habits.UserChallenge{}, habits.ErrNotFound
	}
	if err != nil {
		return habits.UserChallenge{}, fmt.Errorf("get user challenge: %w", err)
	}
	return uc, nil
}

// AdvanceChallenge implements habits.Repository.
func (s *Store) AdvanceChallenge(ctx context.Context, userID, challengeID string, mutate habits.ChallengeMutation) (habits.UserChallenge, habits.Profile, error) {
	var (
		outUC habits.UserChallenge
		outP  habits.Profile
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		uc, err := scanUserChallenge(tx.QueryRowContext(ctx,
			`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id = ? AND challenge_id = ?`,
			userID, challengeID))
		if errors.Is(err, sql.ErrNoRows) {
			return habits.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user challenge: %w", err)
		}
		p, err := profileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&uc, &p); err != nil {
			return err
		}
		p.ID = userID
		res, err := tx.ExecContext(ctx,
			`UPDATE user_challenges SET progress = ?, completed = ? WHERE user_id = ? AND challenge_id = ?`,
			uc.Progress, uc.Completed, userID, challengeID,
		)
		if err != nil {
			return fmt.Errorf("update user challenge: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if err := saveProfileTx(ctx, tx, p); err != nil {
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
func (s *Store) ListUserChallenges(ctx context.Context, userID string) ([]habits.UserChallenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id = ?
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

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return habits.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ habits.Repository = (*Store)(nil)
