// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/pvrd/internal/bus"
	"github.com/ManuGH/pvrd/internal/log"
)

// Notify requests a background pass. Requests arriving while one is pending
// coalesce into it.
func (s *Store) Notify(reason string) {
	select {
	case s.notifyCh <- reason:
	default:
	}
}

// Subscribe delivers a ReserveUpdated message for every committed change.
func (s *Store) Subscribe(ctx context.Context) (bus.Subscriber, error) {
	return s.deps.Bus.Subscribe(ctx, Topic)
}

// Run executes notified and periodic passes until ctx is done. Passes are
// spaced by MinPassInterval; a pass that finds the store busy is retried.
func (s *Store) Run(ctx context.Context) error {
	logger := s.logger.With().Str(log.FieldComponent, "reserve.runner").Logger()

	var tick <-chan time.Time
	if s.cfg.RefreshInterval > 0 {
		t := time.NewTicker(s.cfg.RefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	s.Notify("startup")
	for {
		var reason string
		select {
		case <-ctx.Done():
			return nil
		case reason = <-s.notifyCh:
		case <-tick:
			reason = "refresh"
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		err := s.Recompute(ctx, reason)
		switch {
		case err == nil:
		case errors.Is(err, ErrExecutionLocked):
			s.Notify(reason)
		case ctx.Err() != nil:
			return nil
		default:
			logger.Error().Err(err).Str("trigger", reason).Msg("background scheduler pass failed")
		}
	}
}
