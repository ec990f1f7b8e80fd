// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PendingExpirer cancels pending reservations created before a cutoff.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, olderThan time.Time) (int, error)
}

// PendingSweeper cancels reservations whose payment never arrived within the TTL.
type PendingSweeper struct {
	expirer PendingExpirer
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	cron *cron.Cron
}

func NewPendingSweeper(expirer PendingExpirer, ttl time.Duration, logger zerolog.Logger) *PendingSweeper {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PendingSweeper{
		expirer: expirer,
		ttl:     ttl,
		timeout: 30 * time.Second,
		logger:  logger.With().Str("job", "pending_sweeper").Logger(),
		now:     time.Now,
	}
}

// Start schedules the sweep with a cron spec such as "@every 1m".
// Overlapping runs are skipped rather than queued.
func (s *PendingSweeper) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()

	s.logger.Info().Str("schedule", schedule).Dur("ttl", s.ttl).Msg("pending sweeper started")
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *PendingSweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("pending sweeper did not stop in time")
	}
}

func (s *PendingSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("pending sweep failed")
	}
}

// Sweep runs one expiry pass and returns the number of reservations cancelled.
func (s *PendingSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	n, err := s.expirer.ExpirePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("expired", n).Time("cutoff", cutoff).Msg("expired pending reservations")
	}
	return n, nil
}
