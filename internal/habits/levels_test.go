package habits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLevelForPoints(t *testing.T) {
	tests := []struct {
		points int
		want   int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{250, 3},
		{1000, 11},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForPoints(tt.points), "points=%d", tt.points)
	}
}

func TestLevelProgress(t *testing.T) {
	assert.InDelta(t, 0.0, LevelProgress(0), 1e-9)
	assert.InDelta(t, 0.5, LevelProgress(150), 1e-9)
	assert.InDelta(t, 0.9, LevelProgress(90), 1e-9)
	assert.InDelta(t, 0.0, LevelProgress(-5), 1e-9)
}

func TestNextStreak(t *testing.T) {
	day := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current int
		last    time.Time
		at      time.Time
		want    int
	}{
		{"first habit", 0, time.Time{}, day, 1},
		{"same day", 4, day.Add(-6 * time.Hour), day, 4},
		{"next day", 4, day.Add(-20 * time.Hour), day, 5},
		{"gap resets", 4, day.Add(-72 * time.Hour), day, 1},
		{"backdated", 4, day.Add(48 * time.Hour), day, 4},
		{"zero current restarts", 0, day.Add(-20 * time.Hour), day, 1},
		{"non-UTC input", 2, time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC), day.In(time.FixedZone("X", 3600)), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStreak(tt.current, tt.last, tt.at))
		})
	}
}
