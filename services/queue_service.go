package services

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"code-race-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Queue modes.
const (
	ModeCompetitive = "competitive"
	ModePractice    = "practice" // immediate race against a synthetic opponent
)

// Queue tuning. The staleness window bounds queue growth from abandoned
// sessions; the poll interval covers a dropped change notification.
const (
	DefaultBotFallback  = 30 * time.Second
	DefaultPollInterval = 3 * time.Second
	DefaultStaleAfter   = 2 * time.Minute
)

// ErrNoProblems means the problem catalog is empty. This is fatal to
// queueing — a data issue, not a transient one.
var ErrNoProblems = errors.New("no problems available")

// QueueService pairs players into matches. All mutual exclusion between
// concurrent joiners is expressed as conditional updates on the match row;
// there is no in-process lock to take.
type QueueService struct {
	DB       *gorm.DB
	Notifier *Notifier
	Bots     *BotRunner

	BotFallback  time.Duration
	PollInterval time.Duration
	StaleAfter   time.Duration
}

func NewQueueService(db *gorm.DB, notifier *Notifier, bots *BotRunner) *QueueService {
	return &QueueService{
		DB:           db,
		Notifier:     notifier,
		Bots:         bots,
		BotFallback:  DefaultBotFallback,
		PollInterval: DefaultPollInterval,
		StaleAfter:   DefaultStaleAfter,
	}
}

// EnterQueue blocks until the caller lands in a match and returns its id, or
// until ctx is canceled (in which case any waiting match the caller created
// is deleted, best-effort). Mode practice short-circuits the queue entirely.
func (s *QueueService) EnterQueue(ctx context.Context, playerID, mode string) (string, error) {
	s.CleanupOwnWaiting(playerID)
	s.DeleteStaleWaiting()

	if mode == ModePractice {
		m, err := s.createBotMatch(playerID)
		if err != nil {
			return "", err
		}
		return m.ID, nil
	}

	if m, ok := s.tryJoin(playerID); ok {
		return m.ID, nil
	}

	own, err := s.createWaiting(playerID)
	if err != nil {
		return "", err
	}

	sub := s.Notifier.Subscribe(own.ID)
	defer func() { s.Notifier.Unsubscribe(sub) }()

	botTimer := time.NewTimer(s.BotFallback)
	defer botTimer.Stop()
	poll := time.NewTicker(s.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CancelWaiting(own.ID, playerID)
			return "", ctx.Err()

		case ev, ok := <-sub.C:
			if ok && ev.Match.Status == models.MatchActive && ev.Match.Player2ID != nil {
				return own.ID, nil
			}

		case <-botTimer.C:
			if m, ok := s.attachBot(own.ID); ok {
				return m.ID, nil
			}
			// Someone claimed the slot just before the timer fired; the
			// claim notification (or next poll) resolves the wait.

		case <-poll.C:
			// Fallback 1: our match was claimed but the push got dropped.
			var current models.Match
			if err := s.DB.First(&current, "id = ?", own.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Row vanished (stale sweep from another process); start over.
					own, err = s.createWaiting(playerID)
					if err != nil {
						return "", err
					}
					s.Notifier.Unsubscribe(sub)
					sub = s.Notifier.Subscribe(own.ID)
					continue
				}
				log.Printf("Queue poll error for match %s: %v", own.ID, err)
				continue
			}
			if current.Status == models.MatchActive && current.Player2ID != nil {
				return own.ID, nil
			}

			// Fallback 2: an older waiting match appeared reachable (e.g. its
			// creator queued just before us and the notification channel is
			// unreliable). Release our own slot first so we can never end up
			// attached to two matches at once.
			if cand, ok := s.findJoinable(playerID, &current.CreatedAt); ok {
				if !s.CancelWaiting(own.ID, playerID) {
					// Our match got claimed in the meantime; resolve it.
					if err := s.DB.First(&current, "id = ?", own.ID).Error; err == nil &&
						current.Status == models.MatchActive {
						return own.ID, nil
					}
					continue
				}
				if m, claimed := s.claim(cand.ID, playerID); claimed {
					return m.ID, nil
				}
				// Claim missed: put ourselves back in the pool.
				own, err = s.createWaiting(playerID)
				if err != nil {
					return "", err
				}
				s.Notifier.Unsubscribe(sub)
				sub = s.Notifier.Subscribe(own.ID)
			}
		}
	}
}

// tryJoin attempts to claim the oldest joinable waiting match.
func (s *QueueService) tryJoin(playerID string) (*models.Match, bool) {
	// The self-match revert path is expected to be unreachable; the bound
	// just keeps a pathological store from spinning us forever.
	for attempt := 0; attempt < 3; attempt++ {
		cand, ok := s.findJoinable(playerID, nil)
		if !ok {
			return nil, false
		}
		m, claimed := s.claim(cand.ID, playerID)
		if claimed {
			return m, true
		}
		var check models.Match
		if err := s.DB.First(&check, "id = ?", cand.ID).Error; err == nil &&
			check.Player2ID != nil && *check.Player2ID == playerID {
			// claim() reverted a self-match; retry the search
			continue
		}
		// Someone else got there first — fall through to create-and-wait.
		return nil, false
	}
	return nil, false
}

// findJoinable returns the single oldest waiting match with an empty second
// slot and a different creator, optionally bounded to rows older than before.
func (s *QueueService) findJoinable(playerID string, before *time.Time) (*models.Match, bool) {
	q := s.DB.Where("status = ? AND player2_id IS NULL AND player1_id <> ?", models.MatchWaiting, playerID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var candidates []models.Match
	if err := q.Order("created_at ASC").Limit(1).Find(&candidates).Error; err != nil {
		log.Printf("Queue search error: %v", err) // transient; retried next tick
		return nil, false
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return &candidates[0], true
}

// claim performs the conditional second-slot grab. Zero affected rows means
// someone else won the race — expected and silent. After a successful claim
// the creator id is re-verified: a self-match is a correctness violation and
// is actively reverted, never tolerated.
func (s *QueueService) claim(matchID, playerID string) (*models.Match, bool) {
	now := time.Now()
	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND status = ? AND player2_id IS NULL AND player1_id <> ?",
			matchID, models.MatchWaiting, playerID).
		Updates(map[string]interface{}{
			"player2_id":     playerID,
			"player2_is_bot": false,
			"status":         models.MatchActive,
			"started_at":     now,
		})
	if res.Error != nil {
		log.Printf("Queue claim error for match %s: %v", matchID, res.Error)
		return nil, false
	}
	if res.RowsAffected == 0 {
		return nil, false
	}

	var m models.Match
	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		log.Printf("Queue claim readback error for match %s: %v", matchID, err)
		return nil, false
	}

	if m.Player1ID == playerID {
		log.Printf("❌ Self-match detected on %s for player %s — reverting claim", matchID, playerID)
		s.DB.Model(&models.Match{}).
			Where("id = ? AND player2_id = ?", matchID, playerID).
			Updates(map[string]interface{}{
				"player2_id": nil,
				"status":     models.MatchWaiting,
				"started_at": nil,
			})
		return nil, false
	}

	s.Notifier.Publish(m)
	return &m, true
}

func (s *QueueService) createWaiting(playerID string) (*models.Match, error) {
	problem, err := s.pickProblem()
	if err != nil {
		return nil, err
	}
	m := models.Match{
		ID:        uuid.NewString(),
		ProblemID: problem.ID,
		Player1ID: playerID,
		Status:    models.MatchWaiting,
	}
	if err := s.DB.Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// createBotMatch skips the queue: the match starts active with a synthetic
// opponent already attached.
func (s *QueueService) createBotMatch(playerID string) (*models.Match, error) {
	problem, err := s.pickProblem()
	if err != nil {
		return nil, err
	}
	p := models.NewSyntheticParticipant()
	now := time.Now()
	m := models.Match{
		ID:           uuid.NewString(),
		ProblemID:    problem.ID,
		Player1ID:    playerID,
		Player2ID:    &p.ID,
		Player2IsBot: true,
		BotSkill:     &p.Skill,
		Status:       models.MatchActive,
		StartedAt:    &now,
	}
	if err := s.DB.Create(&m).Error; err != nil {
		return nil, err
	}
	s.Notifier.Publish(m)
	s.Bots.Schedule(m)
	return &m, nil
}

// attachBot force-fills the second slot after the fallback delay, guarded on
// the match still waiting with an empty slot.
func (s *QueueService) attachBot(matchID string) (*models.Match, bool) {
	p := models.NewSyntheticParticipant()
	now := time.Now()
	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND status = ? AND player2_id IS NULL", matchID, models.MatchWaiting).
		Updates(map[string]interface{}{
			"player2_id":     p.ID,
			"player2_is_bot": true,
			"bot_skill":      p.Skill,
			"status":         models.MatchActive,
			"started_at":     now,
		})
	if res.Error != nil {
		log.Printf("Bot attach error for match %s: %v", matchID, res.Error)
		return nil, false
	}
	if res.RowsAffected == 0 {
		return nil, false
	}

	var m models.Match
	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		log.Printf("Bot attach readback error for match %s: %v", matchID, err)
		return nil, false
	}
	s.Notifier.Publish(m)
	s.Bots.Schedule(m)
	return &m, true
}

// CancelWaiting deletes the caller's own waiting match, conditioned on it
// still being waiting so a just-claimed match is never destroyed. Returns
// whether a row was actually removed.
func (s *QueueService) CancelWaiting(matchID, playerID string) bool {
	res := s.DB.Where("id = ? AND player1_id = ? AND status = ?", matchID, playerID, models.MatchWaiting).
		Delete(&models.Match{})
	if res.Error != nil {
		log.Printf("Queue cancel error for match %s: %v", matchID, res.Error)
		return false
	}
	return res.RowsAffected > 0
}

// CleanupOwnWaiting removes any waiting match previously created by this
// player, so nobody can reappear as their own future opponent.
func (s *QueueService) CleanupOwnWaiting(playerID string) {
	res := s.DB.Where("player1_id = ? AND status = ?", playerID, models.MatchWaiting).
		Delete(&models.Match{})
	if res.Error != nil {
		log.Printf("Queue self-cleanup error for player %s: %v", playerID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Removed %d leftover waiting match(es) for player %s", res.RowsAffected, playerID)
	}
}

// DeleteStaleWaiting sweeps waiting matches older than the staleness window.
func (s *QueueService) DeleteStaleWaiting() {
	cutoff := time.Now().Add(-s.StaleAfter)
	res := s.DB.Where("status = ? AND created_at < ?", models.MatchWaiting, cutoff).
		Delete(&models.Match{})
	if res.Error != nil {
		log.Printf("Stale queue sweep error: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Swept %d stale waiting match(es)", res.RowsAffected)
	}
}

// pickProblem draws uniformly over the whole catalog: a random offset into a
// stable ordering, so growth never skews selection toward early rows.
func (s *QueueService) pickProblem() (*models.Problem, error) {
	var count int64
	if err := s.DB.Model(&models.Problem{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoProblems
	}

	var problems []models.Problem
	if err := s.DB.Order("id ASC").
		Offset(rand.Intn(int(count))).
		Limit(1).
		Find(&problems).Error; err != nil {
		return nil, err
	}
	if len(problems) == 0 {
		// Catalog shrank between the count and the read.
		return nil, ErrNoProblems
	}
	return &problems[0], nil
}

// --- fiber handlers ---

type enterQueueRequest struct {
	Mode string `json:"mode"`
}

// EnterQueueHandler blocks until the caller is matched. Client disconnects
// cancel the wait (and delete the caller's waiting match).
func (s *QueueService) EnterQueueHandler(c *fiber.Ctx) error {
	playerID, _ := c.Locals("player_id").(string)

	var req enterQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeCompetitive
	}
	if mode != ModeCompetitive && mode != ModePractice {
		return c.Status(400).JSON(fiber.Map{"error": "unknown mode", "mode": mode})
	}

	matchID, err := s.EnterQueue(c.Context(), playerID, mode)
	if err != nil {
		if errors.Is(err, ErrNoProblems) {
			return c.Status(503).JSON(fiber.Map{"error": "no problems available"})
		}
		if errors.Is(err, context.Canceled) {
			return nil // client went away; nothing to answer
		}
		log.Printf("Queue error for player %s: %v", playerID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to enter queue"})
	}

	return c.JSON(fiber.Map{"match_id": matchID})
}
