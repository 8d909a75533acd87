package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProfile tracks a player's point balance and cumulative counters.
// Rows are created lazily on first interaction with a floor balance of zero.
// TotalPoints is only ever mutated by hint consumption and match scoring.
type UserProfile struct {
	ID       string `gorm:"primaryKey" json:"id"` // the external player id
	Username string `gorm:"index;not null" json:"username"`

	TotalPoints int64 `json:"total_points" gorm:"default:0"`

	MatchesPlayed  int64 `json:"matches_played" gorm:"default:0"`
	MatchesWon     int64 `json:"matches_won" gorm:"default:0"`
	ProblemsSolved int64 `json:"problems_solved" gorm:"default:0"`

	LastSeen *time.Time `json:"last_seen,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
