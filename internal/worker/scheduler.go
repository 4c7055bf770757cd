// Package worker runs the background side of messaging: the scheduler that
// releases due messages, the in-process dispatch queue and the throttled
// sender in front of the gateway.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher moves due scheduled messages to the dispatch queue.
type Dispatcher interface {
	DispatchDue(ctx context.Context, limit int) (int, error)
}

// Locker guards one scheduler run across replicas.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler periodically releases due messages. With a Locker only the
// replica holding the lock dispatches on a given tick.
type Scheduler struct {
	dispatcher Dispatcher
	lock       Locker
	interval   time.Duration
	batch      int
	logger     *zap.Logger
}

// NewScheduler creates a scheduler. lock may be nil on a single replica.
func NewScheduler(dispatcher Dispatcher, lock Locker, interval time.Duration, batch int, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Scheduler{
		dispatcher: dispatcher,
		lock:       lock,
		interval:   interval,
		batch:      batch,
		logger:     logger,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduler run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one dispatch pass and returns how many messages it queued.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return 0, err
		}
		if !acquired {
			s.logger.Debug("another replica is dispatching, skipping")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release scheduler lock", zap.Error(err))
			}
		}()
	}

	n, err := s.dispatcher.DispatchDue(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("scheduled messages released", zap.Int("count", n))
	}
	return n, nil
}
