package services

import (
	"errors"
	"log"
	"time"

	"code-race-system/models"
	"code-race-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Window after which a profile no longer counts as online.
const presenceWindow = 2 * time.Minute

// ProfileService owns user profiles and the fire-and-forget presence signal.
// No core invariant depends on presence; it only feeds the stats endpoint.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// EnsureProfile returns the player's profile, creating a minimal one on
// first interaction (zero point floor, generated display name). Idempotent.
func (s *ProfileService) EnsureProfile(playerID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.DB.First(&profile, "id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.UserProfile{
			ID:       playerID,
			Username: utils.GeneratePlayerName(),
		}
		if createErr := s.DB.Create(&profile).Error; createErr != nil {
			// Lost a creation race with another request for the same player.
			if ferr := s.DB.First(&profile, "id = ?", playerID).Error; ferr != nil {
				return nil, createErr
			}
		}
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// --- fiber handlers ---

type pingRequest struct {
	PlayerID string `json:"player_id"`
}

// Ping records a liveness signal. A conditional last_seen update that hits
// zero rows means the profile does not exist yet, so one is created lazily.
func (s *ProfileService) Ping(c *fiber.Ctx) error {
	var req pingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	playerID := req.PlayerID
	if playerID == "" {
		playerID, _ = c.Locals("player_id").(string)
	}
	if playerID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "player id is required"})
	}

	now := time.Now()
	res := s.DB.Model(&models.UserProfile{}).
		Where("id = ?", playerID).
		Update("last_seen", now)
	if res.Error != nil {
		log.Printf("Presence update error for %s: %v", playerID, res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update presence"})
	}

	if res.RowsAffected == 0 {
		profile := models.UserProfile{
			ID:       playerID,
			Username: utils.GeneratePlayerName(),
			LastSeen: &now,
		}
		if err := s.DB.Create(&profile).Error; err != nil {
			log.Printf("Presence insert error for %s: %v", playerID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to create presence"})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetProfile returns one profile, creating it lazily like every other first
// interaction does.
func (s *ProfileService) GetProfile(c *fiber.Ctx) error {
	profile, err := s.EnsureProfile(c.Params("id"))
	if err != nil {
		log.Printf("DB Error fetching profile %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(profile)
}

// Stats reports aggregate counts: players seen recently plus waiting/active
// match totals.
func (s *ProfileService) Stats(c *fiber.Ctx) error {
	counts, err := s.AggregateCounts()
	if err != nil {
		log.Printf("DB Error computing stats: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(counts)
}

// AggregateCounts is shared by the stats endpoint and the stats reporter
// worker.
func (s *ProfileService) AggregateCounts() (fiber.Map, error) {
	var online, waiting, active int64

	cutoff := time.Now().Add(-presenceWindow)
	if err := s.DB.Model(&models.UserProfile{}).
		Where("last_seen > ?", cutoff).
		Count(&online).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Match{}).
		Where("status = ?", models.MatchWaiting).
		Count(&waiting).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Match{}).
		Where("status = ?", models.MatchActive).
		Count(&active).Error; err != nil {
		return nil, err
	}

	return fiber.Map{
		"players_online":  online,
		"matches_waiting": waiting,
		"matches_active":  active,
	}, nil
}
