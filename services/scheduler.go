// services/scheduler.go
package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartCleanupScheduler sweeps abandoned waiting matches in the background.
// Per-player self-cleanup on queue entry is the primary mechanism; this is
// the backstop that bounds queue growth when a client never comes back.
func (s *QueueService) StartCleanupScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.DeleteStaleWaiting()
		}),
	)
}
