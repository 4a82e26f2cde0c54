package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpirySweeper periodically applies the time-driven expiry transition.
type ExpirySweeper struct {
	subs     *SubscriptionService
	notifier Notifier
	interval time.Duration
	logger   *slog.Logger
}

// NewExpirySweeper creates a sweeper running every interval.
func NewExpirySweeper(subs *SubscriptionService, notifier Notifier, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{subs: subs, notifier: notifier, interval: interval, logger: logger}
}

// Start begins the sweep loop in a background goroutine. It stops when ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) {
	// Start immediately, then ticker
	go func() {
		_, _ = s.SweepOnce(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce expires lapsed subscriptions and trials and notifies about each one.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.subs.ExpireLapsed(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	now := s.subs.now()
	for _, id := range ids {
		s.notifier.SubscriptionChanged(ctx, Change{UserID: id, Cause: "expiry_sweep", At: now})
	}
	s.logger.Info("expired lapsed subscriptions", "count", len(ids))
	return len(ids), nil
}
