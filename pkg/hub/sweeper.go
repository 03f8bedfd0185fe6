package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hanif/warden/internal/observability"
)

// sweepSchedule is the fixed eviction interval, independent of caller
// activity.
const sweepSchedule = "@every 10m"

// Sweeper periodically retires sessions idle past their registry's timeout.
type Sweeper struct {
	registry *Registry
	cron     *cron.Cron
}

// NewSweeper creates a sweeper for one registry. Call Start to schedule it.
func NewSweeper(registry *Registry) *Sweeper {
	return &Sweeper{registry: registry}
}

// Start schedules the sweep. Calling Start twice is an error.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, func() {
		evicted := s.registry.Sweep(context.Background())
		stats := s.registry.Stats()
		s.registry.deps.Logger.Debug().
			Str("registry_type", stats.Type).
			Int("live", stats.Live).
			Dur("oldest_idle", stats.OldestIdle).
			Int("evicted", evicted).
			Msg("Sweep finished")
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	s.cron = c

	s.registry.deps.Logger.Info().
		Str("registry_type", s.registry.opts.Type).
		Dur("idle_timeout", s.registry.opts.IdleTimeout).
		Msg("Eviction sweeper started")

	return nil
}

// Stop halts future sweeps. A sweep already running finishes on its own.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
}

// Sweep retires every session idle past the registry's timeout through the
// shared destruction path. A slow cleanup never blocks the rest of the
// sweep; it races the cleanup deadline and the entry is removed regardless.
func (r *Registry) Sweep(ctx context.Context) int {
	now := time.Now()
	evicted := 0

	for _, s := range r.liveSessions() {
		idle := now.Sub(s.LastActive())
		if idle <= r.opts.IdleTimeout {
			continue
		}

		r.deps.Logger.Info().
			Str("session_id", s.ID()).
			Str("registry_type", r.opts.Type).
			Dur("idle", idle).
			Msg("Evicting idle session")

		r.destroy(s, "evicted")
		observability.RecordEviction(r.opts.Type)
		evicted++
	}

	return evicted
}
