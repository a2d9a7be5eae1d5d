package engine

import (
	"context"
	"log/slog"
	"time"
)

// Poller periodically invokes a poll function until its context is cancelled.
// It decouples job state advancement from API reads: a read returns the last
// persisted snapshot while the poller talks to the scheduler out of band.
type Poller struct {
	interval time.Duration
	poll     func(ctx context.Context)
	logger   *slog.Logger
}

// NewPoller creates a poller invoking poll every interval.
func NewPoller(interval time.Duration, poll func(ctx context.Context), logger *slog.Logger) *Poller {
	return &Poller{interval: interval, poll: poll, logger: logger}
}

// Run blocks, polling on every tick, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval.String())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			start := time.Now()
			p.poll(ctx)
			pollDuration.Observe(time.Since(start).Seconds())
		}
	}
}
