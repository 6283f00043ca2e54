// Package habits implements eco-habit tracking: profiles, logged habit entries
// with their carbon impact, daily summaries and challenges.
package habits

import (
	"time"

	"github.com/rshade/ecohabit/internal/carbon"
)

// Profile is a user's gamification state.
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Level      int       `json:"level"`
	EcoPoints  int       `json:"eco_points"`
	StreakDays int       `json:"streak_days"`
	CO2Saved   float64   `json:"co2_saved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Habit is one logged activity together with its computed impact.
type Habit struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Category  carbon.Category        `json:"category"`
	Value     float64                `json:"value"`
	Unit      string                 `json:"unit"`
	Mode      carbon.TransportMode   `json:"mode,omitempty"`
	Type      carbon.ConsumptionType `json:"type,omitempty"`
	CO2Impact float64                `json:"co2_impact"`
	CreatedAt time.Time              `json:"created_at"`
}

// Entry returns the activity entry the habit was computed from.
func (h Habit) Entry() carbon.ActivityEntry {
	return carbon.ActivityEntry{
		Category: h.Category,
		Value:    h.Value,
		Unit:     h.Unit,
		Mode:     h.Mode,
		Type:     h.Type,
	}
}

// Challenge is a time-boxed goal users can join.
type Challenge struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Reward      int       `json:"reward"`
	Category    string    `json:"category"`
	Target      int       `json:"target"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// ActiveAt reports whether the challenge is still open at t.
func (c Challenge) ActiveAt(t time.Time) bool {
	return !c.EndDate.Before(t)
}

// UserChallenge is a user's participation in a challenge.
type UserChallenge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	Progress    int       `json:"progress"`
	Completed   bool      `json:"completed"`
	JoinedAt    time.Time `json:"joined_at"`
}

// HabitFilter narrows ListHabits. Zero values mean unbounded.
type HabitFilter struct {
	// Since is the inclusive lower bound on CreatedAt.
	Since time.Time
	// Until is the exclusive upper bound on CreatedAt.
	Until time.Time
	// Limit caps the number of habits returned.
	Limit int
}

// Matches reports whether a habit created at t falls inside the filter window.
func (f HabitFilter) Matches(t time.Time) bool {
	if !f.Since.IsZero() && t.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.Before(f.Until) {
		return false
	}
	return true
}

// DailySummary aggregates one UTC day of a user's habits.
type DailySummary struct {
	UserID        string                      `json:"user_id"`
	Day           time.Time                   `json:"day"`
	Entries       int                         `json:"entries"`
	TotalKg       float64                     `json:"total_kg"`
	ByCategory    map[carbon.Category]float64 `json:"by_category"`
	PreviousDayKg float64                     `json:"previous_day_kg"`
	// PercentChange is the change against the previous day, in percent.
	// It is zero when the previous day has no impact.
	PercentChange float64 `json:"percent_change"`
	EcoPoints     int     `json:"eco_points"`
}

// TrackResult is returned by TrackHabit.
type TrackResult struct {
	Habit   Habit   `json:"habit"`
	Profile Profile `json:"profile"`
	SavedKg float64 `json:"saved_kg"`
}
