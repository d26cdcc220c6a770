package discovery

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the sweeper looks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// ExpiringRepository can drop idle sessions.
type ExpiringRepository interface {
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)
}

// CleanupCallback is called with the IDs the sweeper removed.
type CleanupCallback func(ids []string)

// StartSweeper runs a background goroutine that periodically deletes
// sessions idle for longer than ttl. It stops when ctx is done.
func StartSweeper(ctx context.Context, repo ExpiringRepository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo ExpiringRepository, ttl time.Duration, onCleanup CleanupCallback) {
	ids, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Session sweeper failed to clean up expired sessions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	slog.Info("Session sweeper removed idle sessions", "count", len(ids))
	if onCleanup != nil {
		onCleanup(ids)
	}
}
