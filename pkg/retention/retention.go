// Package retention periodically deletes conversations that have been idle
// longer than the configured retention period.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Deleter removes conversations last updated before cutoff.
type Deleter interface {
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs the retention job on a cron schedule.
type Sweeper struct {
	store    Deleter
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// New creates a Sweeper. schedule accepts standard five-field expressions
// and descriptors such as @daily.
func New(store Deleter, maxAge time.Duration, schedule string) (*Sweeper, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", maxAge)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(parser)),
		now:      time.Now,
	}, nil
}

// Sweep deletes expired conversations once.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.DeleteConversationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	if n > 0 {
		slog.Info("Retention sweep removed conversations", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run schedules the sweep and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("Retention sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	s.cron.Start()
	slog.Info("Retention sweeper started", "schedule", s.schedule, "maxAge", s.maxAge)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("Retention sweeper stopped")
	return nil
}
