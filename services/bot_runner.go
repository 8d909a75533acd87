package services

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"code-race-system/models"
)

// BotTiming holds the synthetic opponent's delay ranges. The coding and
// submit ranges are scaled by the per-match skill multiplier; difficulty is
// expressed purely through timing — the bot always eventually passes.
type BotTiming struct {
	PhaseDelay time.Duration // fixed delay before the opponent shows as coding

	CodingMin time.Duration // "coding" phase duration (scaled)
	CodingMax time.Duration

	TestingMin time.Duration // extra "testing" time on top of coding (unscaled)
	TestingMax time.Duration

	SubmitMin time.Duration // total time until the fake submission (scaled)
	SubmitMax time.Duration
}

var DefaultBotTiming = BotTiming{
	PhaseDelay: 3 * time.Second,
	CodingMin:  20 * time.Second,
	CodingMax:  40 * time.Second,
	TestingMin: 5 * time.Second,
	TestingMax: 10 * time.Second,
	SubmitMin:  30 * time.Second,
	SubmitMax:  90 * time.Second,
}

// BotRunner drives synthetic opponents. Each scheduled match gets one
// cancellable goroutine; every scheduling path has a matching cancellation
// path keyed off match completion, so no timer outlives its match. Even if a
// cancel is missed, the conditional submission write makes a late bot write
// harmless.
type BotRunner struct {
	Matches  *MatchService
	Notifier *Notifier
	Timing   BotTiming

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewBotRunner(matches *MatchService, notifier *Notifier) *BotRunner {
	return &BotRunner{
		Matches:  matches,
		Notifier: notifier,
		Timing:   DefaultBotTiming,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Schedule starts the simulated opponent for a match whose second slot holds
// a synthetic participant. Idempotent per match id.
func (r *BotRunner) Schedule(m models.Match) {
	if !m.Player2IsBot || m.Status != models.MatchActive {
		return
	}

	r.mu.Lock()
	if _, running := r.cancels[m.ID]; running {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[m.ID] = cancel
	r.mu.Unlock()

	go r.run(ctx, m)
}

// Cancel stops the simulated opponent for one match, if it is still running.
func (r *BotRunner) Cancel(matchID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[matchID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown cancels every running simulation.
func (r *BotRunner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
}

func (r *BotRunner) remove(matchID string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[matchID]; ok {
		cancel()
		delete(r.cancels, matchID)
	}
	r.mu.Unlock()
}

func between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func scaled(d time.Duration, skill float64) time.Duration {
	return time.Duration(float64(d) * skill)
}

func (r *BotRunner) run(ctx context.Context, m models.Match) {
	defer r.remove(m.ID)

	skill := 1.0
	if opp := m.Opponent(models.RolePlayer1); opp.Synthetic && opp.Skill > 0 {
		skill = opp.Skill
	}

	t := r.Timing
	codingAt := t.PhaseDelay
	testingAt := scaled(between(t.CodingMin, t.CodingMax), skill) + between(t.TestingMin, t.TestingMax)
	submitAt := scaled(between(t.SubmitMin, t.SubmitMax), skill)

	sub := r.Notifier.Subscribe(m.ID)
	defer r.Notifier.Unsubscribe(sub)

	start := time.Now()
	step := func(at time.Duration) bool {
		return r.sleep(ctx, sub, at-time.Since(start))
	}

	if !step(codingAt) {
		return
	}
	r.publishPhase(m.ID, PhaseCoding)

	if !step(testingAt) {
		return
	}
	r.publishPhase(m.ID, PhaseTesting)

	if !step(submitAt) {
		return
	}
	r.publishPhase(m.ID, PhaseSubmitted)

	// The synthetic opponent always produces a correct solution; its elapsed
	// time is the scaled delay itself.
	if _, err := r.Matches.RecordSubmission(m.ID, models.RolePlayer2, true, submitAt.Milliseconds()); err != nil {
		log.Printf("Bot submission failed for match %s: %v", m.ID, err)
	}
}

// sleep waits out one timeline step, returning false if the match completed
// or the simulation was canceled in the meantime.
func (r *BotRunner) sleep(ctx context.Context, sub *Subscription, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			if ev.Match.Status == models.MatchCompleted {
				return false
			}
		case <-timer.C:
			return true
		}
	}
}

func (r *BotRunner) publishPhase(matchID, phase string) {
	var current models.Match
	if err := r.Matches.DB.First(&current, "id = ?", matchID).Error; err != nil {
		return
	}
	if current.Status == models.MatchCompleted {
		return
	}
	r.Notifier.PublishPhase(current, phase)
}
