package services

import (
	"testing"
	"time"

	"code-race-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Timeline compressed to milliseconds so a full simulated race fits in a test.
func fastBotTiming() BotTiming {
	return BotTiming{
		PhaseDelay: 5 * time.Millisecond,
		CodingMin:  5 * time.Millisecond,
		CodingMax:  10 * time.Millisecond,
		TestingMin: 5 * time.Millisecond,
		TestingMax: 10 * time.Millisecond,
		SubmitMin:  20 * time.Millisecond,
		SubmitMax:  30 * time.Millisecond,
	}
}

func TestBotRunner_CompletesMatchAgainstFailedHuman(t *testing.T) {
	db, _, _, matches, bots, queue := newTestStack(t)
	seedProblem(t, db)
	bots.Timing = fastBotTiming()

	m, err := queue.createBotMatch("alice")
	require.NoError(t, err)

	// The human submits a failing attempt before the simulated opponent is
	// done; the bot's eventual passing submission decides the match.
	_, err = matches.RecordSubmission(m.ID, models.RolePlayer1, false, 1000)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var current models.Match
		if db.First(&current, "id = ?", m.ID).Error != nil {
			return false
		}
		return current.Status == models.MatchCompleted
	}, 5*time.Second, 10*time.Millisecond)

	var final models.Match
	require.NoError(t, db.First(&final, "id = ?", m.ID).Error)
	require.NotNil(t, final.Winner)
	assert.Equal(t, models.WinnerPlayer2, *final.Winner)
	require.NotNil(t, final.Player2Passed)
	assert.True(t, *final.Player2Passed)
	require.NotNil(t, final.Player2TimeMs)
	assert.Positive(t, *final.Player2TimeMs)
}

func TestBotRunner_CancelPreventsSubmission(t *testing.T) {
	db, _, _, _, bots, queue := newTestStack(t)
	seedProblem(t, db)
	// Default (seconds-scale) timing: the cancel always lands well before the
	// first phase of the simulated timeline.

	m, err := queue.createBotMatch("alice")
	require.NoError(t, err)

	bots.Cancel(m.ID)

	// Give the canceled goroutine more than its full timeline to (not) act.
	time.Sleep(100 * time.Millisecond)

	var current models.Match
	require.NoError(t, db.First(&current, "id = ?", m.ID).Error)
	assert.Equal(t, models.MatchActive, current.Status)
	assert.Nil(t, current.Player2Passed)
	assert.Nil(t, current.Player2TimeMs)
}

func TestBotRunner_ScheduleGuards(t *testing.T) {
	db, _, _, _, bots, _ := newTestStack(t)
	seedProblem(t, db)
	bots.Timing = fastBotTiming()

	human := "bob"
	bots.Schedule(models.Match{ID: "human-match", Player2ID: &human, Status: models.MatchActive})
	bots.Schedule(models.Match{ID: "waiting-match", Player2IsBot: true, Status: models.MatchWaiting})

	bots.mu.Lock()
	running := len(bots.cancels)
	bots.mu.Unlock()
	assert.Zero(t, running, "only active matches with a synthetic opponent get a simulation")
}
