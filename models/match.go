package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Match statuses. Transitions only move forward: waiting → active → completed.
const (
	MatchWaiting   = "waiting"
	MatchActive    = "active"
	MatchCompleted = "completed"
)

// Winner values, set exactly once when a match completes.
const (
	WinnerPlayer1 = "player1"
	WinnerPlayer2 = "player2"
	WinnerDraw    = "draw"
)

// PlayerRole names one side of a match.
type PlayerRole string

const (
	RolePlayer1 PlayerRole = "player1"
	RolePlayer2 PlayerRole = "player2"
)

func (r PlayerRole) Opponent() PlayerRole {
	if r == RolePlayer1 {
		return RolePlayer2
	}
	return RolePlayer1
}

// Match records a single head-to-head coding race.
// The row is the only shared mutable state between the two participants;
// every multi-writer field is mutated through conditional updates only.
type Match struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	ProblemID string `gorm:"index;not null" json:"problem_id"` // immutable once set

	Player1ID string  `gorm:"index;not null" json:"player1_id"`
	Player2ID *string `gorm:"index" json:"player2_id,omitempty"` // nil while waiting

	// Synthetic-opponent tag. Explicit columns: nothing in the core ever
	// parses identifier strings to tell a bot from a human.
	Player2IsBot bool     `json:"player2_is_bot" gorm:"default:false"`
	BotSkill     *float64 `json:"bot_skill,omitempty"`

	Status string `json:"status" gorm:"type:varchar(16);index;check:status IN ('waiting','active','completed')"`

	Player1TimeMs *int64 `json:"player1_time,omitempty"`
	Player2TimeMs *int64 `json:"player2_time,omitempty"`
	Player1Passed *bool  `json:"player1_passed,omitempty"`
	Player2Passed *bool  `json:"player2_passed,omitempty"`

	Winner *string `json:"winner,omitempty" gorm:"type:varchar(8)"`

	// StartedAt is stamped on the waiting → active transition and is the
	// server-side basis for elapsed submission times.
	StartedAt *time.Time `json:"started_at,omitempty"`

	Timestamps
}

// RoleOf resolves which side of the match the given player id occupies.
// Unknown ids resolve to player1; access control happens before this point.
func (m *Match) RoleOf(playerID string) PlayerRole {
	if m.Player2ID != nil && *m.Player2ID == playerID {
		return RolePlayer2
	}
	return RolePlayer1
}

// Submitted reports whether the given side has recorded a result.
func (m *Match) Submitted(role PlayerRole) bool {
	if role == RolePlayer1 {
		return m.Player1Passed != nil
	}
	return m.Player2Passed != nil
}

// BothSubmitted is the completion predicate input: both sides have reported.
func (m *Match) BothSubmitted() bool {
	return m.Player1Passed != nil && m.Player2Passed != nil
}

// Participant identifies one side of a match. Synthetic participants carry
// the skill multiplier drawn when they were attached.
type Participant struct {
	ID        string
	Synthetic bool
	Skill     float64
}

// Bot skill multiplier range: scales every simulated delay so the synthetic
// opponent is neither trivially beatable nor unbeatable.
const (
	BotSkillMin = 0.5
	BotSkillMax = 1.5
)

func HumanParticipant(id string) Participant {
	return Participant{ID: id}
}

// NewSyntheticParticipant draws a fresh synthetic identity with a skill
// multiplier in [BotSkillMin, BotSkillMax).
func NewSyntheticParticipant() Participant {
	return Participant{
		ID:        uuid.NewString(),
		Synthetic: true,
		Skill:     BotSkillMin + rand.Float64()*(BotSkillMax-BotSkillMin),
	}
}

// Opponent returns the participant occupying the other slot.
func (m *Match) Opponent(role PlayerRole) Participant {
	if role == RolePlayer1 {
		if m.Player2ID == nil {
			return Participant{}
		}
		p := Participant{ID: *m.Player2ID, Synthetic: m.Player2IsBot}
		if m.BotSkill != nil {
			p.Skill = *m.BotSkill
		}
		return p
	}
	return HumanParticipant(m.Player1ID)
}
