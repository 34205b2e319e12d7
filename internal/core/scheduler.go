package core

// scheduler.go forgets finished import sessions after a retention period so
// the in-memory session table does not grow without bound. Unfinished
// sessions are never pruned; polling sessions end on their own.

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig configures the session prune scheduler.
type PruneConfig struct {
	Retention     time.Duration // How long a finished session stays listed (default: 24h)
	CheckInterval time.Duration // How often to prune (default: 10m)
}

// StartPruneScheduler prunes immediately and then every CheckInterval until
// ctx is cancelled. Run it in its own goroutine.
func (c *Coordinator) StartPruneScheduler(ctx context.Context, cfg PruneConfig) {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Minute
	}

	slog.Info("session prune scheduler started",
		"retention", cfg.Retention,
		"interval", cfg.CheckInterval,
	)

	c.runPrune(cfg.Retention)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session prune scheduler stopped")
			return
		case <-ticker.C:
			c.runPrune(cfg.Retention)
		}
	}
}

func (c *Coordinator) runPrune(retention time.Duration) {
	if n := c.Prune(c.now().Add(-retention)); n > 0 {
		slog.Info("pruned finished import sessions", "count", n)
	}
}
