package media

import (
	"context"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/logger"
)

const defaultEvictionInterval = 5 * time.Minute

type sessionSweeper interface {
	EvictStaleSessions(ctx context.Context) int
}

// RunSessionEviction sweeps idle upload sessions on a fixed cadence until the
// context is canceled. The session store lives in the API process, so the
// sweep has to run there too; the cron worker only sees the database side.
func RunSessionEviction(ctx context.Context, svc sessionSweeper, interval time.Duration, logg *logger.Logger) {
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = defaultEvictionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := svc.EvictStaleSessions(ctx); evicted > 0 && logg != nil {
				logg.Info(logg.WithField(ctx, "sessions_evicted", evicted), "idle upload sessions evicted")
			}
		}
	}
}
