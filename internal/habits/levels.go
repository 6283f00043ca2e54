package habits

import "time"

const (
	// PointsPerHabit is awarded for every tracked habit.
	PointsPerHabit = 10

	// PointsPerLevel is the number of eco points between levels.
	PointsPerLevel = 100
)

// LevelForPoints returns the level reached with the given eco points.
// Users start at level 1.
func LevelForPoints(points int) int {
	if points < 0 {
		points = 0
	}
	return 1 + points/PointsPerLevel
}

// LevelProgress returns the fraction [0, 1) of the way to the next level.
func LevelProgress(points int) float64 {
	if points < 0 {
		points = 0
	}
	return float64(points%PointsPerLevel) / PointsPerLevel
}

// NextStreak returns the streak after activity on day `at`, given the time of the
// previous activity (zero if none). Days are UTC calendar days.
func NextStreak(current int, last, at time.Time) int {
	if last.IsZero() || current <= 0 {
		return 1
	}
	lastDay := startOfDay(last)
	today := startOfDay(at)
	switch {
	case lastDay.Equal(today):
		return current
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return current + 1
	case lastDay.After(today):
		// Backdated entry; the streak is unchanged.
		return current
	default:
		return 1
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
