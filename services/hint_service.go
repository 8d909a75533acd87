package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"code-race-system/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// HintCost is the fixed point price charged per successfully generated hint.
const HintCost = 5

// Per-identity request caps, independent of point balance. They bound the
// upstream hint-service cost exposure.
const (
	hintsPerMinute = 10
	hintsPerHour   = 50
)

// ErrRateLimited is the distinct rejection for too many hint requests,
// regardless of balance.
var ErrRateLimited = errors.New("hint rate limit reached")

// InsufficientPointsError rejects a hint request when the balance cannot
// cover one hint. It carries the balance observed at check time.
type InsufficientPointsError struct {
	Balance int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for a hint: balance %d, cost %d", e.Balance, HintCost)
}

// HintRequest carries the problem context the upstream generator needs.
type HintRequest struct {
	ProblemTitle       string        `json:"problem_title"`
	ProblemDescription string        `json:"problem_description"`
	UserCode           string        `json:"user_code"`
	Question           string        `json:"question"`
	History            []ChatMessage `json:"history,omitempty"`
}

// ChatMessage is one turn of the mentor conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// HintGenerator produces natural-language guidance. May fail (quota, auth,
// network); failures must never cost the player points.
type HintGenerator interface {
	Generate(ctx context.Context, req HintRequest) (string, error)
}

type identityLimiter struct {
	perMinute *rate.Limiter
	perHour   *rate.Limiter
}

// HintService gates hint requests on the account's point balance and a
// per-identity rate limit, and charges only on successful generation.
type HintService struct {
	DB        *gorm.DB
	Profiles  *ProfileService
	Generator HintGenerator

	mu       sync.Mutex
	limiters map[string]*identityLimiter
}

func NewHintService(db *gorm.DB, profiles *ProfileService, generator HintGenerator) *HintService {
	return &HintService{
		DB:        db,
		Profiles:  profiles,
		Generator: generator,
		limiters:  make(map[string]*identityLimiter),
	}
}

func (s *HintService) allow(playerID string) bool {
	s.mu.Lock()
	lim, ok := s.limiters[playerID]
	if !ok {
		lim = &identityLimiter{
			perMinute: rate.NewLimiter(rate.Limit(float64(hintsPerMinute)/60.0), hintsPerMinute),
			perHour:   rate.NewLimiter(rate.Limit(float64(hintsPerHour)/3600.0), hintsPerHour),
		}
		s.limiters[playerID] = lim
	}
	s.mu.Unlock()

	return lim.perMinute.Allow() && lim.perHour.Allow()
}

// AvailableHints returns how many hints the balance can currently cover.
func (s *HintService) AvailableHints(playerID string) (int64, int64, error) {
	profile, err := s.Profiles.EnsureProfile(playerID)
	if err != nil {
		return 0, 0, err
	}
	return profile.TotalPoints / HintCost, profile.TotalPoints, nil
}

// RequestHint runs the full guard: rate limit, balance floor, upstream
// generation, then deduction. The deduction happens at fulfillment time, not
// request time, so a failed generation is never charged.
//
// The balance check and the deduction are two separate store operations; a
// player racing themselves between them can overdraw by at most one hint's
// worth of points. That is an accepted, bounded loss, not a correctness
// violation — the deduction itself is still guarded so the balance never
// goes below zero.
func (s *HintService) RequestHint(ctx context.Context, playerID string, req HintRequest) (string, error) {
	if !s.allow(playerID) {
		return "", ErrRateLimited
	}

	available, balance, err := s.AvailableHints(playerID)
	if err != nil {
		return "", err
	}
	if available < 1 {
		return "", &InsufficientPointsError{Balance: balance}
	}

	text, err := s.Generator.Generate(ctx, req)
	if err != nil {
		return "", err // balance untouched
	}

	res := s.DB.Model(&models.UserProfile{}).
		Where("id = ? AND total_points >= ?", playerID, HintCost).
		Update("total_points", gorm.Expr("total_points - ?", HintCost))
	if res.Error != nil {
		log.Printf("Hint deduction error for %s: %v", playerID, res.Error)
	} else if res.RowsAffected == 0 {
		log.Printf("⚠️  Hint delivered without charge to %s: balance dropped below cost mid-request", playerID)
	}

	return text, nil
}

// --- fiber handlers ---

// GetAvailableHints reports the hint count and balance for an account.
func (s *HintService) GetAvailableHints(c *fiber.Ctx) error {
	available, balance, err := s.AvailableHints(c.Params("id"))
	if err != nil {
		log.Printf("DB Error reading balance for %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{
		"available_hints": available,
		"total_points":    balance,
		"hint_cost":       HintCost,
	})
}

// RequestHintHandler is the HTTP shell over RequestHint. Insufficient
// balance and rate limiting are normal outcomes with distinct shapes, not
// error paths.
func (s *HintService) RequestHintHandler(c *fiber.Ctx) error {
	playerID, _ := c.Locals("player_id").(string)

	var req HintRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	text, err := s.RequestHint(c.Context(), playerID, req)
	if err != nil {
		var insufficient *InsufficientPointsError
		switch {
		case errors.Is(err, ErrRateLimited):
			return c.Status(429).JSON(fiber.Map{
				"error": "rate limit reached, please wait before asking again",
			})
		case errors.As(err, &insufficient):
			return c.Status(402).JSON(fiber.Map{
				"error":           "not enough points for a hint",
				"total_points":    insufficient.Balance,
				"available_hints": insufficient.Balance / HintCost,
				"hint_cost":       HintCost,
			})
		default:
			log.Printf("Hint generation failed for %s: %v", playerID, err)
			return c.Status(502).JSON(fiber.Map{
				"error": "hint service unavailable, you were not charged",
			})
		}
	}

	return c.JSON(fiber.Map{"text": text, "charged": HintCost})
}
