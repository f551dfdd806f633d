// Package jobs runs the periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/store"
)

// Specs holds the cron expressions of each job; an empty spec skips the job.
type Specs struct {
	LapsedStreaks string
	Leaderboard   string
}

// Scheduler owns the cron runner and the jobs it triggers.
type Scheduler struct {
	cron        *cron.Cron
	users       store.UserStore
	leaderboard func(ctx context.Context) error
	now         func() time.Time
	log         *zap.Logger
}

// NewScheduler builds a UTC scheduler. refreshLeaderboard may be nil.
func NewScheduler(users store.UserStore, refreshLeaderboard func(ctx context.Context) error, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(time.UTC)),
		users:       users,
		leaderboard: refreshLeaderboard,
		now:         time.Now,
		log:         log,
	}
}

// Start registers the jobs and starts the runner. Jobs run until Stop.
func (s *Scheduler) Start(ctx context.Context, specs Specs) error {
	if specs.LapsedStreaks != "" {
		if _, err := s.cron.AddFunc(specs.LapsedStreaks, func() {
			if _, err := s.SweepLapsedStreaks(ctx); err != nil {
				s.log.Error("[CRON] lapsed streak sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule lapsed streak sweep %q: %w", specs.LapsedStreaks, err)
		}
	}
	if specs.Leaderboard != "" && s.leaderboard != nil {
		if _, err := s.cron.AddFunc(specs.Leaderboard, func() {
			if err := s.leaderboard(ctx); err != nil {
				s.log.Warn("[CRON] leaderboard refresh failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule leaderboard refresh %q: %w", specs.Leaderboard, err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("lapsed_streaks", specs.LapsedStreaks),
		zap.String("leaderboard", specs.Leaderboard),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// SweepLapsedStreaks zeroes the streak of every user whose last claim is
// before the start of yesterday (UTC): they missed at least one full day.
func (s *Scheduler) SweepLapsedStreaks(ctx context.Context) (int64, error) {
	cutoff := store.StartOfUTCDay(s.now()).AddDate(0, 0, -1)
	n, err := s.users.ResetLapsedStreaks(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("[CRON] lapsed streaks reset", zap.Int64("users", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
