// Package events defines the payloads published for derived-table changes.
package events

import "time"

// Event types written to the outbox.
const (
	TypeAchievementUnlocked  = "achievement.unlocked"
	TypeLeaderboardRefreshed = "leaderboard.refreshed"
)

// AchievementUnlocked is emitted once per newly created (user, achievement) pair.
type AchievementUnlocked struct {
	RunID           string    `json:"run_id"`
	UserID          int64     `json:"user_id"`
	AchievementID   int64     `json:"achievement_id"`
	AchievementType string    `json:"achievement_type"`
	Threshold       float64   `json:"threshold"`
	Value           float64   `json:"value"`
	UnlockedAt      time.Time `json:"unlocked_at"`
}

// LeaderboardRefreshed is emitted when a (type, period) snapshot is replaced.
type LeaderboardRefreshed struct {
	RunID           string    `json:"run_id"`
	LeaderboardType string    `json:"leaderboard_type"`
	PeriodStart     string    `json:"period_start"`
	PeriodEnd       string    `json:"period_end"`
	Entries         int       `json:"entries"`
	LeaderUserID    *int64    `json:"leader_user_id,omitempty"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}
