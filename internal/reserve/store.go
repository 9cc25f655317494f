// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/pvrd/internal/bus"
	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/telemetry"
	"github.com/ManuGH/pvrd/internal/tuner"
)

// Topic carries ReserveUpdated events.
const Topic = "reserve.updated"

// ReserveUpdated is published once per committed pass that changed anything.
type ReserveUpdated struct {
	Revision uint64
	Trigger  string
	// PassID is the correlation id logged by the pass that produced the diff.
	PassID string
	Diff
}

type RuleSource interface {
	EnabledRules(ctx context.Context) ([]dvr.Rule, error)
}

type CandidateFinder interface {
	FindCandidates(ctx context.Context, r *dvr.Rule, w dvr.Window) ([]dvr.Candidate, error)
}

type SkipGuard interface {
	ShouldSkip(ctx context.Context, r *dvr.Rule, c dvr.Candidate) (bool, error)
}

// SessionStopper tears down an active recording and returns once it is gone.
type SessionStopper interface {
	StopRecording(ctx context.Context, reserveID int64, reason string) error
}

type Config struct {
	// Horizon is how far ahead rules are matched.
	Horizon time.Duration
	// LockTimeout force-releases a stuck pass.
	LockTimeout time.Duration
	// MinPassInterval paces background passes.
	MinPassInterval time.Duration
	// RefreshInterval schedules periodic passes; zero disables them.
	RefreshInterval time.Duration
	// PublishTimeout bounds delivery of one ReserveUpdated event.
	PublishTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Horizon <= 0 {
		c.Horizon = 8 * 24 * time.Hour
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.MinPassInterval <= 0 {
		c.MinPassInterval = time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
}

type Deps struct {
	Rules    RuleSource
	Matcher  CandidateFinder
	Guard    SkipGuard
	Programs epg.Store
	Tuners   tuner.Inventory
	Repo     Repository
	Bus      bus.Bus
	Now      func() time.Time
}

// Snapshot is an immutable view of the committed set. Callers must not
// modify the slice.
type Snapshot struct {
	Revision uint64
	Reserves []Reserve
	Counts   Counts
}

// Store is the single writer of the reservation set. Every mutation runs a
// full scheduler pass under a try-lock and commits the resulting diff.
type Store struct {
	cfg    Config
	deps   Deps
	sched  *Scheduler
	lock   *execLock
	logger zerolog.Logger
	tracer trace.Tracer

	mu      sync.RWMutex
	byID    map[int64]Reserve // replaced wholesale on commit
	snap    Snapshot
	meta    Meta
	tuners  tuner.Snapshot
	stopper SessionStopper
	// lastPass is the evaluation time of the last committed pass.
	lastPass time.Time

	pendMu  sync.Mutex
	pending map[int64]struct{}

	notifyCh chan string
	limiter  *rate.Limiter
}

// Open restores the committed set from the repository. It does not run a
// pass; call Recompute or Run for that.
func Open(ctx context.Context, cfg Config, deps Deps) (*Store, error) {
	if deps.Rules == nil || deps.Matcher == nil || deps.Programs == nil || deps.Tuners == nil || deps.Repo == nil {
		return nil, errors.New("reserve store: missing dependency")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewMemoryBus()
	}
	cfg.setDefaults()

	st, err := deps.Repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve store: load: %w", err)
	}

	s := &Store{
		cfg:      cfg,
		deps:     deps,
		sched:    NewScheduler(),
		logger:   log.WithComponent("reserve.store"),
		tracer:   telemetry.Tracer("pvrd.reserve"),
		byID:     make(map[int64]Reserve, len(st.Reserves)),
		meta:     st.Meta.clone(),
		pending:  make(map[int64]struct{}),
		notifyCh: make(chan string, 1),
		limiter:  rate.NewLimiter(rate.Every(cfg.MinPassInterval), 1),
	}
	if s.meta.Dismissed == nil {
		s.meta.Dismissed = make(map[string]time.Time)
	}
	s.lock = newExecLock(cfg.LockTimeout, s.onForceRelease)

	for _, r := range st.Reserves {
		s.byID[r.ID] = r
		if r.ID > s.meta.LastID {
			s.meta.LastID = r.ID
		}
	}
	s.snap = buildSnapshot(0, s.byID)
	return s, nil
}

func buildSnapshot(rev uint64, byID map[int64]Reserve) Snapshot {
	list := make([]Reserve, 0, len(byID))
	for _, r := range byID {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartAt.Equal(list[j].StartAt) {
			return list[i].StartAt.Before(list[j].StartAt)
		}
		return list[i].ID < list[j].ID
	})
	return Snapshot{Revision: rev, Reserves: list, Counts: CountOf(list)}
}

// SetStopper installs the recording engine used by Cancel.
func (s *Store) SetStopper(st SessionStopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopper = st
}

func (s *Store) onForceRelease(holder string, heldFor time.Duration) {
	metrics.IncLockForceReleased()
	// Fatal level without exiting: the daemon keeps serving.
	s.logger.WithLevel(zerolog.FatalLevel).
		Str(log.FieldEvent, "scheduler.lock_force_released").
		Str("holder", holder).
		Dur("held_for", heldFor).
		Msg("scheduler pass exceeded lock timeout, lock force-released")
}

// pass is the working state of one scheduler run.
type pass struct {
	now  time.Time
	work map[int64]*Reserve
	meta Meta
}

func (p *pass) allocID() int64 {
	p.meta.LastID++
	return p.meta.LastID
}

// remove drops a reservation. Rule-derived slots are remembered until they
// end so the rule does not recreate them.
func (p *pass) remove(id int64) {
	r, ok := p.work[id]
	if !ok {
		return
	}
	if !r.IsManual() {
		p.meta.Dismissed[r.identityKey()] = r.EndAt
	}
	delete(p.work, id)
}

func (s *Store) withLock(ctx context.Context, trigger string, mutate func(p *pass) error) error {
	gen, ok := s.lock.TryLock(trigger)
	if !ok {
		metrics.ObserveSchedulerPass(trigger, "locked", 0)
		return ErrExecutionLocked
	}
	defer s.lock.Unlock(gen)
	return s.runPass(ctx, gen, trigger, mutate)
}

// Recompute runs a full pass now. It fails fast with ErrExecutionLocked when
// another pass is running.
func (s *Store) Recompute(ctx context.Context, trigger string) error {
	return s.withLock(ctx, trigger, nil)
}

func (s *Store) runPass(ctx context.Context, gen uint64, trigger string, mutate func(p *pass) error) error {
	started := time.Now()
	passID := uuid.NewString()
	ctx = log.ContextWithCorrelationID(ctx, passID)
	logger := log.WithContext(ctx, s.logger)
	ctx, span := s.tracer.Start(ctx, "reserve.pass", trace.WithAttributes(attribute.String(telemetry.PassTriggerKey, trigger)))
	defer span.End()

	var drained []int64
	fail := func(result string, err error) error {
		// Removals requested while locked must survive a failed pass.
		for _, id := range drained {
			s.queueRemoval(id)
		}
		metrics.ObserveSchedulerPass(trigger, result, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return err
	}

	s.mu.RLock()
	prev := s.byID
	p := &pass{now: s.deps.Now(), work: make(map[int64]*Reserve, len(prev)), meta: s.meta.clone()}
	s.mu.RUnlock()
	for id, r := range prev {
		c := r.Clone()
		p.work[id] = &c
	}
	if p.meta.Dismissed == nil {
		p.meta.Dismissed = make(map[string]time.Time)
	}

	drained = s.drainPending()
	for _, id := range drained {
		p.remove(id)
	}
	if mutate != nil {
		if err := mutate(p); err != nil {
			return fail("rejected", err)
		}
	}
	for key, until := range p.meta.Dismissed {
		if !until.After(p.now) {
			delete(p.meta.Dismissed, key)
		}
	}

	manual := s.refreshManual(ctx, p)
	derived, nRules, err := s.deriveFromRules(ctx, p)
	if err != nil {
		return fail("error", err)
	}
	tuners := s.loadTuners(ctx)

	all := append(manual, derived...)
	span.SetAttributes(telemetry.PassAttributes(trigger, nRules, len(all), len(tuners))...)

	res := s.sched.Schedule(all, tuners)
	next := make(map[int64]Reserve, len(res.Reserves))
	for i := range res.Reserves {
		r := &res.Reserves[i]
		if old, ok := prev[r.ID]; ok && !Changed(old, *r) {
			r.UpdatedAt = old.UpdatedAt
		} else {
			r.UpdatedAt = p.now
		}
		next[r.ID] = *r
	}
	diff := ComputeDiff(prev, res.Reserves)
	metaChanged := p.meta.LastID != s.currentMeta().LastID || !maps.Equal(p.meta.Dismissed, s.currentMeta().Dismissed)

	var rev uint64
	committed, err := s.lock.Commit(gen, func() error {
		if !diff.Empty() || metaChanged {
			if err := s.deps.Repo.Apply(ctx, diff, p.meta); err != nil {
				return fmt.Errorf("persist pass: %w", err)
			}
		}
		s.mu.Lock()
		rev = s.snap.Revision
		if !diff.Empty() {
			rev++
		}
		s.byID = next
		s.snap = Snapshot{Revision: rev, Reserves: res.Reserves, Counts: res.Counts}
		s.meta = p.meta
		s.tuners = tuners
		s.lastPass = p.now
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "scheduler.pass_failed").Str("trigger", trigger).Msg("scheduler pass could not be committed")
		return fail("error", err)
	}
	if !committed {
		logger.Warn().Str(log.FieldEvent, "scheduler.pass_stale").Str("trigger", trigger).Msg("discarding scheduler pass after lock timeout")
		return fail("stale", errStalePass)
	}

	metrics.ObserveSchedulerPass(trigger, "committed", time.Since(started))
	metrics.SetReservations(res.Counts.Normal, res.Counts.Conflict, res.Counts.Skip, res.Counts.Overlap)
	span.SetAttributes(telemetry.DiffAttributes(len(diff.Inserted), len(diff.Updated), len(diff.Deleted))...)

	if diff.Empty() {
		logger.Debug().Str("trigger", trigger).Dur("took", time.Since(started)).Msg("scheduler pass committed without changes")
		return nil
	}
	logger.Info().
		Str(log.FieldEvent, "scheduler.pass_committed").
		Str("trigger", trigger).
		Uint64(log.FieldRevision, rev).
		Int("inserted", len(diff.Inserted)).
		Int("updated", len(diff.Updated)).
		Int("deleted", len(diff.Deleted)).
		Int("normal", res.Counts.Normal).
		Int("conflict", res.Counts.Conflict).
		Dur("took", time.Since(started)).
		Msg("scheduler pass committed")

	s.publish(ReserveUpdated{Revision: rev, Trigger: trigger, PassID: passID, Diff: diff})
	return nil
}

// LastPass reports when the last pass was committed; zero before the first.
func (s *Store) LastPass() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPass
}

func (s *Store) currentMeta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

func (s *Store) publish(ev ReserveUpdated) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.deps.Bus.Publish(ctx, Topic, ev); err != nil {
		s.logger.Error().Err(err).Uint64(log.FieldRevision, ev.Revision).Msg("failed to publish reservation diff")
	}
}

// refreshManual re-resolves manual reservations against the guide and drops
// the ones that have ended.
func (s *Store) refreshManual(ctx context.Context, p *pass) []Reserve {
	var out []Reserve
	for _, r := range p.work {
		if !r.IsManual() {
			continue
		}
		if !r.IsTimeSpecified() {
			prog, err := s.deps.Programs.Program(ctx, r.ProgramID)
			switch {
			case err == nil:
				applyProgram(r, &prog)
			case errors.Is(err, epg.ErrNotFound):
				// Keep the last known slot.
			default:
				s.logger.Warn().Err(err).Int64(log.FieldReserveID, r.ID).Msg("program lookup failed, keeping slot")
			}
		}
		if !r.EndAt.After(p.now) {
			continue
		}
		r.IsSkip = false
		out = append(out, *r)
	}
	return out
}

func applyProgram(r *Reserve, prog *epg.Program) {
	r.ProgramID = prog.ID
	r.ChannelID = prog.ChannelID
	r.NetworkID = prog.NetworkID
	r.BroadcastType = prog.BroadcastType
	r.Name = prog.Name
	r.StartAt = prog.StartAt
	r.EndAt = prog.EndAt
}

// deriveFromRules regenerates rule-derived reservations, reusing the ids and
// user overrides of existing ones with the same identity.
func (s *Store) deriveFromRules(ctx context.Context, p *pass) ([]Reserve, int, error) {
	rules, err := s.deps.Rules.EnabledRules(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load rules: %w", err)
	}

	existing := make(map[string]*Reserve)
	byRule := make(map[int64][]*Reserve)
	for _, r := range p.work {
		if r.IsManual() {
			continue
		}
		existing[r.identityKey()] = r
		byRule[r.RuleID] = append(byRule[r.RuleID], r)
	}

	window := dvr.Window{From: p.now, To: p.now.Add(s.cfg.Horizon)}
	seen := make(map[string]bool)
	var out []Reserve

	for i := range rules {
		rule := &rules[i]
		cands, err := s.deps.Matcher.FindCandidates(ctx, rule, window)
		if err != nil {
			// Keep what the rule had rather than tearing down its recordings.
			s.logger.Warn().Err(err).Int64(log.FieldRuleID, rule.ID).Msg("rule matching failed, keeping previous reservations")
			for _, r := range byRule[rule.ID] {
				if r.EndAt.After(p.now) && !seen[r.identityKey()] {
					seen[r.identityKey()] = true
					out = append(out, *r)
				}
			}
			continue
		}

		for _, c := range cands {
			if !c.EndAt.After(p.now) {
				continue
			}
			key := identityKey(rule.ID, c.ProgramID, c.ChannelID, c.StartAt)
			if seen[key] {
				continue
			}
			if _, dismissed := p.meta.Dismissed[key]; dismissed {
				continue
			}
			seen[key] = true

			var r Reserve
			if old, ok := existing[key]; ok {
				r = *old
			} else {
				r = Reserve{ID: p.allocID(), CreatedAt: p.now, TunerID: NoTuner}
			}
			fillFromRule(&r, rule, &c)

			r.IsSkip = r.UserSkip
			if !r.IsSkip && !r.SkipReleased && s.deps.Guard != nil {
				skip, err := s.deps.Guard.ShouldSkip(ctx, rule, c)
				if err != nil {
					s.logger.Warn().Err(err).Int64(log.FieldRuleID, rule.ID).Msg("duplicate check failed, not skipping")
				} else {
					r.IsSkip = skip
				}
			}
			out = append(out, r)
		}
	}
	return out, len(rules), nil
}

func fillFromRule(r *Reserve, rule *dvr.Rule, c *dvr.Candidate) {
	r.RuleID = rule.ID
	r.ChannelID = c.ChannelID
	r.NetworkID = c.NetworkID
	r.BroadcastType = c.BroadcastType
	r.Name = c.Name
	r.StartAt = c.StartAt
	r.EndAt = c.EndAt
	if c.IsTimeSpecified() {
		r.ProgramID = 0
		r.TimeSpec = &TimeSpec{ChannelID: c.ChannelID, StartAt: c.StartAt, EndAt: c.EndAt, Name: c.Name}
	} else {
		r.ProgramID = c.ProgramID
		r.TimeSpec = nil
	}
	r.AllowEndLack = rule.Reserve.AllowEndLack
	r.Save = rule.Save
	r.Encode = rule.Encode.Clone()
	r.Tags = append([]int64(nil), rule.Reserve.Tags...)
}

func (s *Store) loadTuners(ctx context.Context) tuner.Snapshot {
	devs, err := s.deps.Tuners.GetTuners(ctx)
	if err != nil {
		s.mu.RLock()
		last := s.tuners
		s.mu.RUnlock()
		s.logger.Warn().Err(err).Int("last_known", len(last)).Msg("tuner inventory unavailable, using last snapshot")
		return last
	}
	return tuner.NewSnapshot(devs)
}

func (s *Store) queueRemoval(id int64) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	s.pending[id] = struct{}{}
}

func (s *Store) drainPending() []int64 {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[int64]struct{})
	return ids
}
