// Package scheduler runs the periodic retention pass that prunes old
// terminal sessions from local storage.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PruneFunc removes sessions last updated before the cutoff and returns the
// number removed.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int, error)

// Scheduler fires the retention prune on a cron schedule.
type Scheduler struct {
	schedule string
	maxAge   time.Duration
	prune    PruneFunc
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler that calls prune on the given cron schedule with a
// cutoff of now minus maxAge.
func New(schedule string, maxAge time.Duration, prune PruneFunc) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		maxAge:   maxAge,
		prune:    prune,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the retention entry and starts the cron ticker.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		cutoff := time.Now().Add(-s.maxAge)
		pruned, err := s.prune(context.Background(), cutoff)
		if err != nil {
			slog.Error("retention prune failed", "error", err)
			return
		}
		if pruned > 0 {
			slog.Info("pruned old sessions", "count", pruned, "cutoff", cutoff)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("retention scheduler started", "schedule", s.schedule, "max_age", s.maxAge)
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
