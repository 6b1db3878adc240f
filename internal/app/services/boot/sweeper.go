package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// Sweeper periodically prunes idle orchestrators from a registry. It is a
// lifecycle-managed service driven by a cron schedule.
type Sweeper struct {
	registry *Registry
	maxIdle  time.Duration
	schedule string
	log      *logger.Logger

	cron *cron.Cron
}

// NewSweeper constructs a sweeper. An empty schedule defaults to every ten
// minutes; a non-positive maxIdle defaults to one hour.
func NewSweeper(registry *Registry, maxIdle time.Duration, schedule string, log *logger.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 10m"
	}
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	if log == nil {
		log = logger.NewDefault("boot-sweeper")
	}
	return &Sweeper{
		registry: registry,
		maxIdle:  maxIdle,
		schedule: schedule,
		log:      log,
	}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "boot-sweeper" }

// Start begins the sweep schedule.
func (s *Sweeper) Start(_ context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the sweep schedule and waits for an in-progress sweep.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweep() {
	if removed := s.registry.Sweep(s.maxIdle); removed > 0 {
		s.log.Infof("pruned %d idle boot orchestrators", removed)
	}
}
