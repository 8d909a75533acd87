package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"code-race-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastQueue(q *QueueService) *QueueService {
	q.PollInterval = 25 * time.Millisecond
	q.BotFallback = 10 * time.Second // far enough away not to interfere
	return q
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)

	m, err := queue.createWaiting("alice")
	require.NoError(t, err)

	claimed, ok := queue.claim(m.ID, "bob")
	require.True(t, ok)
	require.NotNil(t, claimed.Player2ID)
	assert.Equal(t, "bob", *claimed.Player2ID)
	assert.Equal(t, models.MatchActive, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	// Second claimer sees zero affected rows — an expected miss, not an error.
	_, ok = queue.claim(m.ID, "carol")
	assert.False(t, ok)

	var final models.Match
	require.NoError(t, db.First(&final, "id = ?", m.ID).Error)
	assert.Equal(t, "bob", *final.Player2ID)
}

func TestClaim_NeverOwnMatch(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)

	m, err := queue.createWaiting("alice")
	require.NoError(t, err)

	// The conditional claim excludes the creator, so even a direct attempt
	// to claim one's own match misses.
	_, ok := queue.claim(m.ID, "alice")
	assert.False(t, ok)

	_, found := queue.tryJoin("alice")
	assert.False(t, found, "own waiting match must not be joinable")

	var current models.Match
	require.NoError(t, db.First(&current, "id = ?", m.ID).Error)
	assert.Equal(t, models.MatchWaiting, current.Status)
	assert.Nil(t, current.Player2ID)
}

func TestEnterQueue_PairsTwoPlayers(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)
	fastQueue(queue)

	type result struct {
		matchID string
		err     error
	}
	aliceCh := make(chan result, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		id, err := queue.EnterQueue(ctx, "alice", ModeCompetitive)
		aliceCh <- result{id, err}
	}()

	// Let alice create her waiting match before bob searches.
	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.Match{}).Where("status = ?", models.MatchWaiting).Count(&n)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	bobID, err := queue.EnterQueue(ctx, "bob", ModeCompetitive)
	require.NoError(t, err)

	alice := <-aliceCh
	require.NoError(t, alice.err)
	assert.Equal(t, bobID, alice.matchID, "both players must land in the same match")

	var m models.Match
	require.NoError(t, db.First(&m, "id = ?", bobID).Error)
	assert.Equal(t, models.MatchActive, m.Status)
	assert.Equal(t, "alice", m.Player1ID)
	require.NotNil(t, m.Player2ID)
	assert.Equal(t, "bob", *m.Player2ID)
	assert.NotEqual(t, m.Player1ID, *m.Player2ID)
	assert.False(t, m.Player2IsBot)
}

func TestEnterQueue_BotFallback(t *testing.T) {
	db, _, _, _, bots, queue := newTestStack(t)
	seedProblem(t, db)
	queue.BotFallback = 30 * time.Millisecond
	queue.PollInterval = 10 * time.Millisecond
	bots.Timing = fastBotTiming()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := queue.EnterQueue(ctx, "alice", ModeCompetitive)
	require.NoError(t, err)

	var m models.Match
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	assert.Equal(t, models.MatchActive, m.Status)
	assert.True(t, m.Player2IsBot)
	require.NotNil(t, m.BotSkill)
	assert.GreaterOrEqual(t, *m.BotSkill, models.BotSkillMin)
	assert.Less(t, *m.BotSkill, models.BotSkillMax)
	require.NotNil(t, m.Player2ID)
	assert.NotEqual(t, "alice", *m.Player2ID)
}

func TestEnterQueue_PracticeModeIsImmediate(t *testing.T) {
	db, _, _, _, bots, queue := newTestStack(t)
	seedProblem(t, db)
	bots.Timing = fastBotTiming()

	start := time.Now()
	id, err := queue.EnterQueue(context.Background(), "alice", ModePractice)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "practice mode must not wait in the queue")

	var m models.Match
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	assert.Equal(t, models.MatchActive, m.Status)
	assert.True(t, m.Player2IsBot)
	assert.NotNil(t, m.StartedAt)
}

func TestEnterQueue_EmptyCatalogIsFatal(t *testing.T) {
	_, _, _, _, _, queue := newTestStack(t)

	_, err := queue.EnterQueue(context.Background(), "alice", ModeCompetitive)
	require.ErrorIs(t, err, ErrNoProblems)
}

func TestEnterQueue_CancelDeletesOwnWaitingMatch(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)
	fastQueue(queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := queue.EnterQueue(ctx, "alice", ModeCompetitive)
		done <- err
	}()

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.Match{}).Where("player1_id = ?", "alice").Count(&n)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	var n int64
	db.Model(&models.Match{}).Where("player1_id = ?", "alice").Count(&n)
	assert.Zero(t, n, "canceling the queue must delete the caller's waiting match")
}

func TestCancelWaiting_DoesNotDestroyClaimedMatch(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)

	m, err := queue.createWaiting("alice")
	require.NoError(t, err)
	_, ok := queue.claim(m.ID, "bob")
	require.True(t, ok)

	// Alice cancels "her" match, but it was just claimed: conditional delete
	// must miss.
	assert.False(t, queue.CancelWaiting(m.ID, "alice"))

	var current models.Match
	require.NoError(t, db.First(&current, "id = ?", m.ID).Error)
	assert.Equal(t, models.MatchActive, current.Status)
}

func TestCleanupOwnWaiting(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)

	_, err := queue.createWaiting("alice")
	require.NoError(t, err)
	_, err = queue.createWaiting("alice")
	require.NoError(t, err)

	queue.CleanupOwnWaiting("alice")

	_, found := queue.findJoinable("bob", nil)
	assert.False(t, found, "alice must never meet her own leftover matches")
}

func TestStaleWaitingSweep(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	seedProblem(t, db)

	m, err := queue.createWaiting("alice")
	require.NoError(t, err)
	old := time.Now().Add(-3 * time.Minute)
	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", m.ID).Update("created_at", old).Error)

	queue.DeleteStaleWaiting()

	_, found := queue.findJoinable("bob", nil)
	assert.False(t, found, "stale waiting matches must not be joinable after the sweep")
}

func TestPickProblem_ReachesWholeCatalog(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	for i := 0; i < 15; i++ {
		title := fmt.Sprintf("Problem %02d", i)
		p := models.Problem{
			ID:         uuid.NewString(),
			Title:      title,
			Slug:       models.SlugFrom(title),
			Difficulty: "easy",
		}
		require.NoError(t, db.Create(&p).Error)
	}

	seen := map[string]bool{}
	for i := 0; i < 400; i++ {
		p, err := queue.pickProblem()
		require.NoError(t, err)
		seen[p.ID] = true
	}
	assert.Len(t, seen, 15, "selection must not be biased toward a prefix of the catalog")
}

// A player already waiting picks up an older waiting match through the poll
// fallback when the push notification never arrives.
func TestEnterQueue_PollFallbackJoinsOlderMatch(t *testing.T) {
	db, _, _, _, _, queue := newTestStack(t)
	problem := seedProblem(t, db)
	fastQueue(queue)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		matchID string
		err     error
	}
	bobCh := make(chan result, 1)
	go func() {
		id, err := queue.EnterQueue(ctx, "bob", ModeCompetitive)
		bobCh <- result{id, err}
	}()

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.Match{}).Where("player1_id = ?", "bob").Count(&n)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Insert alice's waiting match behind bob's back, older than his own,
	// without any notification — only the poll tick can find it.
	aliceMatch := models.Match{
		ID:        "alice-waiting",
		ProblemID: problem.ID,
		Player1ID: "alice",
		Status:    models.MatchWaiting,
	}
	require.NoError(t, db.Create(&aliceMatch).Error)
	old := time.Now().Add(-30 * time.Second)
	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", aliceMatch.ID).Update("created_at", old).Error)

	bob := <-bobCh
	require.NoError(t, bob.err)
	assert.Equal(t, aliceMatch.ID, bob.matchID)

	var claimed models.Match
	require.NoError(t, db.First(&claimed, "id = ?", aliceMatch.ID).Error)
	assert.Equal(t, models.MatchActive, claimed.Status)
	require.NotNil(t, claimed.Player2ID)
	assert.Equal(t, "bob", *claimed.Player2ID)

	var leftovers int64
	db.Model(&models.Match{}).Where("player1_id = ? AND status = ?", "bob", models.MatchWaiting).Count(&leftovers)
	assert.Zero(t, leftovers, "bob's own waiting match must be released when he joins another")
}
