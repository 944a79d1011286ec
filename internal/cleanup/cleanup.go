package cleanup

import (
	"context"
	"time"

	"stockscan/internal/logger"
)

const (
	DefaultInterval   = time.Minute
	maxDeletionPerRun = 25 // Maximum history rows to delete per run
)

// SessionReaper is satisfied by *scan.Manager.
type SessionReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

// HistoryPruner is satisfied by *data.History.
type HistoryPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Janitor closes idle scan sessions, which releases any camera they still
// hold, and trims old scan history.
type Janitor struct {
	Sessions    SessionReaper
	SessionIdle time.Duration
	History     HistoryPruner // nil when history is disabled
	Retention   time.Duration
	Interval    time.Duration
}

// Start runs the janitor until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	go func() {
		logger.LogInfo("Cleanup routine started - running every %v", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.LogInfo("Cleanup routine stopped")
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs one cleanup pass and returns how many sessions and
// history rows were removed.
func (j *Janitor) RunOnce(ctx context.Context) (sessions, events int) {
	if j.Sessions != nil && j.SessionIdle > 0 {
		sessions = j.Sessions.ReapIdle(j.SessionIdle)
	}

	if j.History != nil && j.Retention > 0 {
		cutoffTime := time.Now().Add(-j.Retention)
		n, err := j.History.PruneBefore(ctx, cutoffTime, maxDeletionPerRun)
		if err != nil {
			logger.LogError("Failed to prune scan history: %v", err)
		} else {
			events = n
		}
		if events > 0 {
			logger.LogInfo("Pruned %d scan events older than %v", events, cutoffTime.Format("2006-01-02 15:04:05"))
		}
	}
	return sessions, events
}
