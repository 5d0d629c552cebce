package cache

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired entries from a Store on a cron
// schedule, so entries that are never looked up again do not hold
// memory until eviction reaches them.
type Sweeper struct {
	store    Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper creates a sweeper for store. The schedule uses cron
// syntax, including the "@every 5m" descriptor form.
func NewSweeper(store Store, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		logger:   logger,
	}
}

// Start validates the schedule and begins sweeping in the background.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if removed := s.store.Sweep(); removed > 0 {
			s.logger.Debug("cache sweep removed expired entries",
				"removed", removed,
				"remaining", s.store.Len())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("cache sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
}
