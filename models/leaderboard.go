package models

import "time"

// LeaderboardEntry — one row per passing submission. Append-only: entries are
// written once and never mutated.
type LeaderboardEntry struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	ProblemID string    `gorm:"index;not null" json:"problem_id"`
	Username  string    `gorm:"index" json:"username"`
	TimeMs    int64     `json:"time_ms"`
	Language  string    `json:"language" gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
