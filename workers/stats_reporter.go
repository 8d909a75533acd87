package workers

import (
	"context"
	"log"
	"time"

	"code-race-system/services"
)

// PollStats periodically logs the aggregate presence/match counts.
// Fire-and-forget observability; nothing depends on it.
func PollStats(ctx context.Context, profiles *services.ProfileService, pollInterval time.Duration) {
	log.Println("Starting stats reporter...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stats reporter stopped")
			return
		case <-ticker.C:
			counts, err := profiles.AggregateCounts()
			if err != nil {
				log.Printf("[Stats] DB error: %v", err)
				continue
			}
			log.Printf("[Stats] online=%v waiting=%v active=%v",
				counts["players_online"], counts["matches_waiting"], counts["matches_active"])
		}
	}
}
