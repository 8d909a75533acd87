package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"code-race-system/models"
	"code-race-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SSE poll fallback interval: bounds worst-case completion detection latency
// when a push notification is dropped.
const watchPollInterval = 2 * time.Second

// MatchService owns the match state machine: waiting → active → completed.
type MatchService struct {
	DB       *gorm.DB
	Notifier *Notifier
	Profiles *ProfileService
	Sandbox  SandboxExecutor
}

func NewMatchService(db *gorm.DB, notifier *Notifier, profiles *ProfileService, sandbox SandboxExecutor) *MatchService {
	return &MatchService{DB: db, Notifier: notifier, Profiles: profiles, Sandbox: sandbox}
}

// ComputeWinner adjudicates a finished race. It is pure and deterministic, so
// both sides can run it independently and reach the same answer:
//   - exactly one side passed → that side wins
//   - both passed → strictly smaller elapsed time wins, ties go to player2
//   - neither passed → draw
func ComputeWinner(p1Passed, p2Passed bool, p1TimeMs, p2TimeMs int64) string {
	switch {
	case p1Passed && !p2Passed:
		return models.WinnerPlayer1
	case !p1Passed && p2Passed:
		return models.WinnerPlayer2
	case p1Passed && p2Passed:
		if p1TimeMs < p2TimeMs {
			return models.WinnerPlayer1
		}
		return models.WinnerPlayer2
	default:
		return models.WinnerDraw
	}
}

func roleColumns(role models.PlayerRole) (timeCol, passCol string) {
	if role == models.RolePlayer2 {
		return "player2_time_ms", "player2_passed"
	}
	return "player1_time_ms", "player1_passed"
}

// RecordSubmission stores one side's result and runs completion adjudication.
// The write is conditional on the match still being active and that side not
// having reported yet, so a late writer (e.g. a bot firing after the match
// was finalized) affects zero rows and is silently ignored.
func (s *MatchService) RecordSubmission(matchID string, role models.PlayerRole, passed bool, elapsedMs int64) (*models.Match, error) {
	timeCol, passCol := roleColumns(role)

	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND status = ? AND "+passCol+" IS NULL", matchID, models.MatchActive).
		Updates(map[string]interface{}{timeCol: elapsedMs, passCol: passed})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		var m models.Match
		if err := s.DB.First(&m, "id = ?", matchID).Error; err == nil {
			s.Notifier.Publish(m)
		}
	}

	return s.FinalizeIfComplete(matchID)
}

// FinalizeIfComplete applies active → completed once both sides have
// reported. The transition is guarded on status still being active: when two
// near-simultaneous submissions both reach this point, exactly one write
// lands and the loser of the race sees zero rows — which is fine, because
// the winner computation is identical on both sides.
func (s *MatchService) FinalizeIfComplete(matchID string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		return nil, err
	}

	if m.Status != models.MatchActive || !m.BothSubmitted() {
		return &m, nil
	}

	var p1Time, p2Time int64
	if m.Player1TimeMs != nil {
		p1Time = *m.Player1TimeMs
	}
	if m.Player2TimeMs != nil {
		p2Time = *m.Player2TimeMs
	}
	winner := ComputeWinner(*m.Player1Passed, *m.Player2Passed, p1Time, p2Time)

	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchActive).
		Updates(map[string]interface{}{"status": models.MatchCompleted, "winner": winner})
	if res.Error != nil {
		return nil, res.Error
	}

	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		return nil, err
	}

	if res.RowsAffected > 0 {
		s.applyOutcome(m)
		s.Notifier.Publish(m)
		log.Printf("🏁 Match %s completed, winner: %s", m.ID, winner)
	}

	return &m, nil
}

// applyOutcome bumps the cumulative counters on both human profiles.
// Point awards live outside the race core; only counters are touched here.
func (s *MatchService) applyOutcome(m models.Match) {
	s.bumpCounters(m.Player1ID, m.Winner != nil && *m.Winner == models.WinnerPlayer1,
		m.Player1Passed != nil && *m.Player1Passed)
	if m.Player2ID != nil && !m.Player2IsBot {
		s.bumpCounters(*m.Player2ID, m.Winner != nil && *m.Winner == models.WinnerPlayer2,
			m.Player2Passed != nil && *m.Player2Passed)
	}
}

func (s *MatchService) bumpCounters(playerID string, won, solved bool) {
	if _, err := s.Profiles.EnsureProfile(playerID); err != nil {
		log.Printf("Failed to ensure profile %s: %v", playerID, err)
		return
	}
	updates := map[string]interface{}{"matches_played": gorm.Expr("matches_played + 1")}
	if won {
		updates["matches_won"] = gorm.Expr("matches_won + 1")
	}
	if solved {
		updates["problems_solved"] = gorm.Expr("problems_solved + 1")
	}
	if err := s.DB.Model(&models.UserProfile{}).Where("id = ?", playerID).Updates(updates).Error; err != nil {
		log.Printf("Failed to update counters for %s: %v", playerID, err)
	}
}

// AppendLeaderboardEntry writes the append-only record of a passing run.
func (s *MatchService) AppendLeaderboardEntry(problemID, username string, timeMs int64, language string) error {
	entry := models.LeaderboardEntry{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		Username:  username,
		TimeMs:    timeMs,
		Language:  language,
	}
	return s.DB.Create(&entry).Error
}

// --- fiber handlers ---

// GetMatch returns the match row together with its problem.
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	var m models.Match
	if err := s.DB.First(&m, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		log.Printf("DB Error fetching match %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var problem models.Problem
	if err := s.DB.First(&problem, "id = ?", m.ProblemID).Error; err != nil {
		log.Printf("DB Error fetching problem %s: %v", m.ProblemID, err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	samples, _ := problem.SampleTestCases()
	starter, _ := problem.StarterCode()

	return c.JSON(fiber.Map{
		"match": m,
		"problem": fiber.Map{
			"id":           problem.ID,
			"title":        problem.Title,
			"slug":         problem.Slug,
			"difficulty":   problem.Difficulty,
			"description":  problem.Description,
			"constraints":  problem.Constraints,
			"sample_cases": samples,
			"starter_code": starter,
		},
	})
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (s *MatchService) loadMatchForPlayer(c *fiber.Ctx) (*models.Match, *models.Problem, error) {
	playerID, _ := c.Locals("player_id").(string)

	var m models.Match
	if err := s.DB.First(&m, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return nil, nil, c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if playerID != m.Player1ID && (m.Player2ID == nil || *m.Player2ID != playerID) {
		return nil, nil, c.Status(403).JSON(fiber.Map{"error": "not a participant of this match"})
	}

	var problem models.Problem
	if err := s.DB.First(&problem, "id = ?", m.ProblemID).Error; err != nil {
		return nil, nil, c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	return &m, &problem, nil
}

// RunTests executes the caller's code against the sample cases only.
func (s *MatchService) RunTests(c *fiber.Ctx) error {
	m, problem, err := s.loadMatchForPlayer(c)
	if m == nil {
		return err
	}

	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	samples, err := problem.SampleTestCases()
	if err != nil {
		log.Printf("Corrupt test cases for problem %s: %v", problem.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "problem data error"})
	}

	result := s.Sandbox.Execute(c.Context(), req.Code, req.Language, samples)
	return c.JSON(result)
}

// Submit runs the full test set, records the submission and adjudicates.
func (s *MatchService) Submit(c *fiber.Ctx) error {
	playerID, _ := c.Locals("player_id").(string)

	m, problem, err := s.loadMatchForPlayer(c)
	if m == nil {
		return err
	}
	if m.Status != models.MatchActive {
		return c.Status(409).JSON(fiber.Map{"error": "match is not active", "status": m.Status})
	}

	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	cases, err := problem.TestCases()
	if err != nil {
		log.Printf("Corrupt test cases for problem %s: %v", problem.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "problem data error"})
	}

	result := s.Sandbox.Execute(c.Context(), req.Code, req.Language, cases)

	// Server-side clock: elapsed since the match went active.
	started := m.CreatedAt
	if m.StartedAt != nil {
		started = *m.StartedAt
	}
	elapsed := time.Since(started).Milliseconds()

	role := m.RoleOf(playerID)
	updated, recErr := s.RecordSubmission(m.ID, role, result.AllPassed, elapsed)
	if recErr != nil {
		log.Printf("Failed to record submission for match %s: %v", m.ID, recErr)
		return c.Status(500).JSON(fiber.Map{"error": "failed to record submission"})
	}

	if result.AllPassed {
		profile, perr := s.Profiles.EnsureProfile(playerID)
		username := "Anonymous"
		if perr == nil {
			username = profile.Username
		}
		if lbErr := s.AppendLeaderboardEntry(problem.ID, username, elapsed, req.Language); lbErr != nil {
			log.Printf("Failed to append leaderboard entry: %v", lbErr)
		}
	}

	return c.JSON(fiber.Map{
		"results":      result.Results,
		"all_passed":   result.AllPassed,
		"time_ms":      elapsed,
		"time_display": utils.FormatTime(elapsed),
		"match":        updated,
	})
}

// GetLeaderboard lists passing runs for one problem, fastest first.
func (s *MatchService) GetLeaderboard(c *fiber.Ctx) error {
	var entries []models.LeaderboardEntry
	if err := s.DB.Where("problem_id = ?", c.Params("id")).
		Order("time_ms ASC").
		Limit(50).
		Find(&entries).Error; err != nil {
		log.Printf("DB Error fetching leaderboard for %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	type leaderboardRow struct {
		models.LeaderboardEntry
		TimeDisplay string `json:"time_display"`
	}
	rows := make([]leaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, leaderboardRow{e, utils.FormatTimeDetailed(e.TimeMs)})
	}

	return c.JSON(fiber.Map{"problem_id": c.Params("id"), "entries": rows, "count": len(rows)})
}

// StreamMatchSSE streams match change events to one participant. It runs the
// push subscription and a fixed-interval poll side by side — deliberate
// redundancy so a silently dropped push channel only delays detection until
// the next poll tick.
func (s *MatchService) StreamMatchSSE(c *fiber.Ctx) error {
	matchID := c.Params("id")

	var m models.Match
	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	sub := s.Notifier.Subscribe(matchID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Notifier.Unsubscribe(sub)

		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()

		var lastPayload string

		emit := func(ev MatchEvent) bool {
			payload, err := json.Marshal(ev)
			if err != nil {
				return true
			}
			if ev.Phase == "" && string(payload) == lastPayload {
				return true // nothing changed since the last poll
			}
			lastPayload = string(payload)
			fmt.Fprintf(w, "event: match\ndata: %s\n\n", payload)
			return w.Flush() == nil
		}

		// Initial snapshot so the client does not wait a full tick.
		if !emit(MatchEvent{Match: m}) {
			return
		}

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if !emit(ev) {
					return
				}
				if ev.Match.Status == models.MatchCompleted {
					return
				}
			case <-ticker.C:
				var current models.Match
				if err := s.DB.First(&current, "id = ?", matchID).Error; err != nil {
					log.Printf("SSE poll error for match %s: %v", matchID, err)
					continue
				}
				if !emit(MatchEvent{Match: current}) {
					return
				}
				if current.Status == models.MatchCompleted {
					return
				}
			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
