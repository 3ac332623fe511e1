package engine

import (
	"context"
	"log/slog"
	"time"
)

// SessionExpirer lets the reaper drive payment-session expiry without
// depending on the payment package.
type SessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Reaper periodically force-terminates abandoned rounds and expired payment
// sessions. It is a database sweep rather than an in-memory timer so the work
// survives process restarts.
type Reaper struct {
	engine       *Engine
	sessions     SessionExpirer
	interval     time.Duration
	roundTimeout time.Duration
	logger       *slog.Logger
}

func NewReaper(e *Engine, sessions SessionExpirer, interval, roundTimeout time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		engine:       e,
		sessions:     sessions,
		interval:     interval,
		roundTimeout: roundTimeout,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	if n, err := r.engine.SweepStale(ctx, r.roundTimeout); err != nil {
		r.logger.Error("round sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("round sweep", "reaped", n)
	}

	if r.sessions == nil {
		return
	}
	if n, err := r.sessions.ExpireStale(ctx, time.Now()); err != nil {
		r.logger.Error("session sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("session sweep", "expired", n)
	}
}
