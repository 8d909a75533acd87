package services

import (
	"sync"

	"code-race-system/models"
)

// Bot activity phases surfaced to the opponent's client. They are purely
// cosmetic: no invariant depends on them.
const (
	PhaseCoding    = "coding"
	PhaseTesting   = "testing"
	PhaseSubmitted = "submitted"
)

// MatchEvent is one row-changed notification for a match, optionally tagged
// with a synthetic-opponent activity phase.
type MatchEvent struct {
	Match models.Match `json:"match"`
	Phase string       `json:"phase,omitempty"`
}

// Subscription is a single listener on one match's event stream.
type Subscription struct {
	C       <-chan MatchEvent
	ch      chan MatchEvent
	matchID string
	id      int
}

// Notifier fans match change events out to per-match subscribers.
//
// Delivery is best-effort: sends never block, and a slow subscriber simply
// misses events. Every consumer runs a poll fallback alongside its
// subscription, so a dropped push only costs latency, never correctness.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan MatchEvent
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]chan MatchEvent)}
}

// Subscribe registers a listener for change events on one match id.
func (n *Notifier) Subscribe(matchID string) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan MatchEvent, 16)
	n.next++
	if n.subs[matchID] == nil {
		n.subs[matchID] = make(map[int]chan MatchEvent)
	}
	n.subs[matchID][n.next] = ch

	return &Subscription{C: ch, ch: ch, matchID: matchID, id: n.next}
}

// Unsubscribe removes the listener. Safe to call more than once.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if listeners, ok := n.subs[sub.matchID]; ok {
		if _, ok := listeners[sub.id]; ok {
			delete(listeners, sub.id)
			close(sub.ch)
		}
		if len(listeners) == 0 {
			delete(n.subs, sub.matchID)
		}
	}
}

// Publish delivers a match snapshot to all current subscribers.
func (n *Notifier) Publish(match models.Match) {
	n.PublishPhase(match, "")
}

// PublishPhase delivers a snapshot tagged with a bot activity phase.
func (n *Notifier) PublishPhase(match models.Match, phase string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs[match.ID] {
		select {
		case ch <- MatchEvent{Match: match, Phase: phase}:
		default:
			// subscriber is not keeping up; the poll fallback covers it
		}
	}
}
