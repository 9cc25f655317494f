// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/log"
)

// resolveManual builds the reservation template for req from the guide.
func (s *Store) resolveManual(ctx context.Context, req *ManualRequest) (Reserve, error) {
	now := s.deps.Now()
	r := Reserve{
		AllowEndLack: req.AllowEndLack,
		Save:         req.Save,
		Encode:       req.Encode.Clone(),
		Tags:         slices.Clone(req.Tags),
		TunerID:      NoTuner,
	}

	if req.TimeSpec != nil {
		ch, err := s.deps.Programs.Channel(ctx, req.TimeSpec.ChannelID)
		if errors.Is(err, epg.ErrNotFound) {
			return r, invalid("channel %d not found", req.TimeSpec.ChannelID)
		}
		if err != nil {
			return r, fmt.Errorf("resolve channel: %w", err)
		}
		ts := *req.TimeSpec
		r.TimeSpec = &ts
		r.ChannelID = ch.ID
		r.NetworkID = ch.NetworkID
		r.BroadcastType = ch.BroadcastType
		r.Name = ts.Name
		r.StartAt = ts.StartAt
		r.EndAt = ts.EndAt
		return r, nil
	}

	prog, err := s.deps.Programs.Program(ctx, req.ProgramID)
	if errors.Is(err, epg.ErrNotFound) {
		return r, invalid("program %d not found", req.ProgramID)
	}
	if err != nil {
		return r, fmt.Errorf("resolve program: %w", err)
	}
	if !prog.EndAt.After(now) {
		return r, invalid("program %d already ended", req.ProgramID)
	}
	applyProgram(&r, &prog)
	return r, nil
}

// AddManual validates req and adds a manual reservation. The returned id is
// committed together with the pass that scheduled it.
func (s *Store) AddManual(ctx context.Context, req ManualRequest) (int64, error) {
	if err := req.validate(s.deps.Now()); err != nil {
		return 0, err
	}
	tmpl, err := s.resolveManual(ctx, &req)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.withLock(ctx, "reserve.manual_added", func(p *pass) error {
		if tmpl.ProgramID != 0 {
			for _, r := range p.work {
				if r.IsManual() && r.ProgramID == tmpl.ProgramID {
					return invalid("program %d is already reserved by reserve %d", tmpl.ProgramID, r.ID)
				}
			}
		}
		r := tmpl.Clone()
		r.ID = p.allocID()
		r.CreatedAt = p.now
		p.work[r.ID] = &r
		id = r.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64(log.FieldReserveID, id).Str(log.FieldEvent, "reserve.manual_added").Msg("manual reservation added")
	return id, nil
}

// Edit replaces the directives of a manual reservation.
func (s *Store) Edit(ctx context.Context, id int64, opts Options) error {
	ctx = log.ContextWithReserveID(ctx, id)
	if err := opts.validate(); err != nil {
		return err
	}
	return s.withLock(ctx, "reserve.edited", func(p *pass) error {
		r, ok := p.work[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if !r.IsManual() {
			return invalid("reserve %d is rule-derived; edit the rule instead", id)
		}
		r.AllowEndLack = opts.AllowEndLack
		r.Save = opts.Save
		r.Encode = opts.Encode.Clone()
		r.Tags = slices.Clone(opts.Tags)
		return nil
	})
}

// Cancel removes a manual reservation or skips a rule-derived one. An active
// recording is torn down before the change is committed.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	ctx = log.ContextWithReserveID(ctx, id)
	return s.withLock(ctx, "reserve.canceled", func(p *pass) error {
		r, ok := p.work[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}

		s.mu.RLock()
		stopper := s.stopper
		s.mu.RUnlock()
		if stopper != nil {
			if err := stopper.StopRecording(ctx, id, "canceled"); err != nil {
				logger := log.WithContext(ctx, s.logger)
				logger.Warn().Err(err).Msg("stopping recording on cancel failed")
			}
		}

		if r.IsManual() {
			delete(p.work, id)
		} else {
			r.UserSkip = true
			r.SkipReleased = false
		}
		logger := log.WithContext(ctx, s.logger)
		logger.Info().Str(log.FieldEvent, "reserve.canceled").Msg("reservation canceled")
		return nil
	})
}

// Skip excludes a rule-derived reservation from recording.
func (s *Store) Skip(ctx context.Context, id int64) error {
	ctx = log.ContextWithReserveID(ctx, id)
	return s.withLock(ctx, "reserve.skipped", func(p *pass) error {
		r, ok := p.work[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if r.IsManual() {
			return invalid("manual reserve %d cannot be skipped; cancel it instead", id)
		}
		r.UserSkip = true
		r.SkipReleased = false
		return nil
	})
}

// RemoveSkip brings a skipped reservation back, overriding duplicate
// avoidance for it.
func (s *Store) RemoveSkip(ctx context.Context, id int64) error {
	ctx = log.ContextWithReserveID(ctx, id)
	return s.withLock(ctx, "reserve.skip_removed", func(p *pass) error {
		r, ok := p.work[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if !r.IsSkip {
			return invalid("reserve %d is not skipped", id)
		}
		r.UserSkip = false
		r.SkipReleased = true
		return nil
	})
}

// RemoveOverlap lets a duplicate slot record on its own.
func (s *Store) RemoveOverlap(ctx context.Context, id int64) error {
	ctx = log.ContextWithReserveID(ctx, id)
	return s.withLock(ctx, "reserve.overlap_removed", func(p *pass) error {
		r, ok := p.work[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if !r.IsOverlap {
			return invalid("reserve %d is not an overlap", id)
		}
		r.OverlapReleased = true
		return nil
	})
}

// Remove drops a reservation the recording engine is done with. When a pass
// is running the removal is queued and applied by the next pass.
func (s *Store) Remove(ctx context.Context, id int64) error {
	ctx = log.ContextWithReserveID(ctx, id)
	const trigger = "reserve.removed"
	gen, ok := s.lock.TryLock(trigger)
	if !ok {
		s.queueRemoval(id)
		s.Notify(trigger)
		s.logger.Debug().Int64(log.FieldReserveID, id).Msg("store busy, removal queued")
		return nil
	}
	defer s.lock.Unlock(gen)
	return s.runPass(ctx, gen, trigger, func(p *pass) error {
		p.remove(id)
		return nil
	})
}

// Get returns a copy of one committed reservation.
func (s *Store) Get(id int64) (Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Reserve{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.Clone(), nil
}

// Snapshot returns the committed set.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Counts returns the committed classification counts.
func (s *Store) Counts() Counts {
	return s.Snapshot().Counts
}

// ListFilter selects reservations for List. Zero values match everything;
// Limit 0 means no limit.
type ListFilter struct {
	Status Status
	RuleID int64
	Offset int
	Limit  int
}

type Page struct {
	Items []Reserve `json:"items"`
	Total int       `json:"total"`
}

// List pages through the committed set in start order.
func (s *Store) List(f ListFilter) Page {
	snap := s.Snapshot()
	var matched []Reserve
	for i := range snap.Reserves {
		r := &snap.Reserves[i]
		if f.Status != "" && r.Status() != f.Status {
			continue
		}
		if f.RuleID != 0 && r.RuleID != f.RuleID {
			continue
		}
		matched = append(matched, *r)
	}

	page := Page{Total: len(matched), Items: []Reserve{}}
	start := min(max(f.Offset, 0), len(matched))
	end := len(matched)
	if f.Limit > 0 {
		end = min(start+f.Limit, end)
	}
	for _, r := range matched[start:end] {
		page.Items = append(page.Items, r.Clone())
	}
	return page
}
