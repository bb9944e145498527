package leveling

import "math"

const (
	volumePerXP    = 10
	xpPerPB        = 50
	xpPerStreakDay = 5
	maxStreakDays  = 30

	// MaxVolume, MaxPersonalBests and MaxReportedStreak bound what one workout may report.
	MaxVolume         = 1_000_000
	MaxPersonalBests  = 100
	MaxReportedStreak = 3650

	// MaxWorkoutXP is the most a single workout can earn.
	MaxWorkoutXP = MaxVolume/volumePerXP + MaxPersonalBests*xpPerPB + maxStreakDays*xpPerStreakDay
)

// WorkoutXP is the XP a single workout earns: one point per ten units of volume,
// a bonus per personal best and a streak bonus capped at thirty days. Inputs past
// their bounds saturate, so the result is always in [0, MaxWorkoutXP].
func WorkoutXP(volume float64, personalBests, streakDays int) int64 {
	xp := int64(0)
	if volume > 0 && !math.IsInf(volume, 0) {
		xp += int64(math.Floor(math.Min(volume, MaxVolume) / volumePerXP))
	}
	if personalBests > 0 {
		xp += int64(min(personalBests, MaxPersonalBests)) * xpPerPB
	}
	if streakDays > 0 {
		xp += int64(min(streakDays, maxStreakDays)) * xpPerStreakDay
	}
	return xp
}
