package staging

// sweeper.go bounds the growth of entries nobody takes: a correlation key
// whose poller timed out or was abandoned would otherwise stay forever.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts entries older than the retention ceiling.
type Sweeper struct {
	evictor   Evictor
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper returns a sweeper for e. It does nothing until Run is called.
func NewSweeper(e Evictor, retention, interval time.Duration) *Sweeper {
	return &Sweeper{
		evictor:   e,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps immediately, then every interval, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("staging sweeper started",
		"retention", s.retention.String(),
		"interval", s.interval.String(),
	)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("staging sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce evicts everything older than the retention ceiling.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.evictor.Evict(ctx, s.now().Add(-s.retention))
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	n, err := s.SweepOnce(ctx)
	if err != nil {
		slog.Error("staging sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("evicted stale staged imports",
			"entries_evicted", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
