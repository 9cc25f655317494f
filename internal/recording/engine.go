// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recording executes committed reservations: it wakes at prep time,
// leases a tuner, records the stream to disk and hands the result to the
// recorded store and the encode queue.
package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/bus"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/fsm"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/recorded"
	"github.com/ManuGH/pvrd/internal/reserve"
	"github.com/ManuGH/pvrd/internal/tuner"
)

// ReserveSource is the committed reservation set and its change feed.
type ReserveSource interface {
	Snapshot() reserve.Snapshot
	Subscribe(ctx context.Context) (bus.Subscriber, error)
	Remove(ctx context.Context, id int64) error
	Notify(reason string)
}

type TunerPool interface {
	Acquire(ctx context.Context, req tuner.Request) (*tuner.Handle, error)
}

type RecordedStore interface {
	CreateRecorded(ctx context.Context, rec recorded.Recorded, file recorded.VideoFile) (int64, error)
	AppendVideoFile(ctx context.Context, recordedID int64, f recorded.VideoFile) (int64, error)
	AddTags(ctx context.Context, recordedID int64, tags []int64) error
}

type ChannelLookup interface {
	Channel(ctx context.Context, id int64) (epg.Channel, error)
}

type Config struct {
	// PrepLeadTime is how long before start a tuner is acquired.
	PrepLeadTime time.Duration
	// PrepTimeout bounds the wait for the first packet after prep.
	PrepTimeout    time.Duration
	RecordedDir    string
	FileNameFormat string
	Extension      string
	// Location is used for file name dates.
	Location *time.Location
	// PersistTimeout bounds each finalization call.
	PersistTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.PrepLeadTime <= 0 {
		c.PrepLeadTime = 15 * time.Second
	}
	if c.PrepTimeout <= 0 {
		c.PrepTimeout = 30 * time.Second
	}
	if c.FileNameFormat == "" {
		c.FileNameFormat = DefaultFileNameFormat
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
}

type Deps struct {
	Reserves ReserveSource
	Tuners   TunerPool
	Opener   Opener
	Recorded RecordedStore
	// Encode may be nil when encoding is disabled.
	Encode encode.Queue
	// Channels is optional; it fills Target.ServiceID.
	Channels ChannelLookup
	Clock    Clock
}

// ActiveRecording is a reservation the engine is currently executing.
type ActiveRecording struct {
	ReserveID int64       `json:"reserveId"`
	RuleID    int64       `json:"ruleId,omitempty"`
	ChannelID int64       `json:"channelId"`
	Name      string      `json:"name"`
	State     State       `json:"state"`
	Tuner     string      `json:"tuner,omitempty"`
	StartAt   time.Time   `json:"startAt"`
	EndAt     time.Time   `json:"endAt"`
	Path      string      `json:"path,omitempty"`
	Stats     PacketStats `json:"stats"`
}

type job struct {
	res     reserve.Reserve
	machine *fsm.Machine[State, Event]
	session *Session
	handle  *tuner.Handle
	path    string
	reason  string
	waiters []chan struct{}
	// waitSince is set while prep waits for a tuner held by another session.
	waitSince time.Time
}

// tunerRetryInterval paces acquire attempts while a prep waits for a
// tuner handover.
const tunerRetryInterval = 5 * time.Second

// userStopReasons are stops requested by an operator. Rule recurrence is not
// re-evaluated after them.
var userStopReasons = map[string]bool{
	"canceled": true,
	"api.stop": true,
}

type stopRequest struct {
	id     int64
	reason string
	done   chan struct{}
}

type activeEntry struct {
	info    ActiveRecording
	counter *packetCounter
}

// Engine drives one state machine per normal reservation. A single goroutine
// (Run) owns all job state; sessions report back through a channel.
type Engine struct {
	cfg    Config
	deps   Deps
	clock  Clock
	logger zerolog.Logger

	jobs      map[int64]*job
	finished  map[int64]time.Time // executed reserves -> end, until deleted
	deadlines *deadlineQueue
	timer     Timer
	live      int

	events  chan sessionEvent
	stopCh  chan stopRequest
	quit    chan struct{}
	running atomic.Bool
	async   sync.WaitGroup

	mu     sync.RWMutex
	active []activeEntry
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Reserves == nil || deps.Tuners == nil || deps.Opener == nil || deps.Recorded == nil {
		return nil, errors.New("recording engine: missing dependency")
	}
	if cfg.RecordedDir == "" {
		return nil, errors.New("recording engine: recorded dir is required")
	}
	cfg.setDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		clock:     clock,
		logger:    log.WithComponent("recording.engine"),
		jobs:      make(map[int64]*job),
		finished:  make(map[int64]time.Time),
		deadlines: newDeadlineQueue(),
		events:    make(chan sessionEvent),
		stopCh:    make(chan stopRequest),
		quit:      make(chan struct{}),
	}, nil
}

// Run executes reservations until ctx is done. Sessions still running at
// that point are stopped and their partial files left on disk; the
// reservations stay in the store.
func (e *Engine) Run(ctx context.Context) error {
	sub, err := e.deps.Reserves.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("recording engine: subscribe: %w", err)
	}
	defer func() { _ = sub.Close() }()

	e.timer = e.clock.NewTimer(time.Hour)
	e.timer.Stop()
	defer e.timer.Stop()

	e.running.Store(true)
	defer e.running.Store(false)

	for _, r := range e.deps.Reserves.Snapshot().Reserves {
		e.track(ctx, r)
	}
	e.resetTimer()
	e.publishActive()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				e.shutdown()
				return nil
			}
			if ev, ok := msg.(reserve.ReserveUpdated); ok {
				e.applyDiff(ctx, ev)
			}
		case ev := <-e.events:
			e.handleSession(ctx, ev)
		case req := <-e.stopCh:
			e.handleStop(ctx, req)
		case <-e.timer.C():
			e.handleDeadlines(ctx)
		}
		e.resetTimer()
		e.publishActive()
	}
}

// StopRecording tears down the session of reserveID and returns once its
// file is closed. Unknown or idle reservations return immediately.
func (e *Engine) StopRecording(ctx context.Context, reserveID int64, reason string) error {
	if !e.running.Load() {
		return nil
	}
	req := stopRequest{id: reserveID, reason: reason, done: make(chan struct{})}
	select {
	case e.stopCh <- req:
	case <-e.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active lists reservations that are prepping, recording or finishing.
func (e *Engine) Active() []ActiveRecording {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ActiveRecording, len(e.active))
	for i, a := range e.active {
		out[i] = a.info
		if a.counter != nil {
			out[i].Stats = a.counter.Stats()
		}
	}
	return out
}

func (e *Engine) applyDiff(ctx context.Context, ev reserve.ReserveUpdated) {
	logger := log.WithContext(log.ContextWithCorrelationID(ctx, ev.PassID), e.logger)
	logger.Debug().
		Uint64(log.FieldRevision, ev.Revision).
		Int("inserted", len(ev.Inserted)).
		Int("updated", len(ev.Updated)).
		Int("deleted", len(ev.Deleted)).
		Msg("applying reserve diff")
	// Stops first so demoted sessions start releasing their tuners before
	// new reservations try to acquire one.
	for _, r := range ev.Deleted {
		e.untrack(ctx, r)
	}
	for _, r := range ev.Updated {
		e.track(ctx, r)
	}
	for _, r := range ev.Inserted {
		e.track(ctx, r)
	}
	e.purgeFinished()
}

func (e *Engine) prepAt(r *reserve.Reserve) time.Time {
	return r.StartAt.Add(-e.cfg.PrepLeadTime)
}

// track folds an inserted or updated reservation into the job set.
func (e *Engine) track(ctx context.Context, r reserve.Reserve) {
	if _, done := e.finished[r.ID]; done {
		return
	}
	now := e.clock.Now()
	runnable := r.Status() == reserve.StatusNormal && r.RecordEnd().After(now)

	j, ok := e.jobs[r.ID]
	if !ok {
		if !runnable {
			return
		}
		e.jobs[r.ID] = &job{res: r, machine: newMachine()}
		e.deadlines.set(r.ID, e.prepAt(&r))
		e.logger.Debug().Int64(log.FieldReserveID, r.ID).Time("prep_at", e.prepAt(&r)).Msg("recording scheduled")
		return
	}

	j.res = r
	switch j.machine.State() {
	case StateScheduled:
		if !runnable {
			e.cancelScheduled(ctx, j, "reserve."+string(r.Status()))
			return
		}
		e.deadlines.set(r.ID, e.prepAt(&r))
	case StatePrepping:
		if r.Status() != reserve.StatusNormal {
			e.stop(ctx, j, "reserve."+string(r.Status()))
		}
	case StateRecording:
		if r.Status() != reserve.StatusNormal {
			e.stop(ctx, j, "reserve."+string(r.Status()))
			return
		}
		e.deadlines.set(r.ID, r.RecordEnd())
	}
}

func (e *Engine) untrack(ctx context.Context, r reserve.Reserve) {
	if _, done := e.finished[r.ID]; done {
		delete(e.finished, r.ID)
		return
	}
	if j, ok := e.jobs[r.ID]; ok {
		e.stop(ctx, j, "reserve.deleted")
	}
}

func (e *Engine) purgeFinished() {
	now := e.clock.Now()
	for id, end := range e.finished {
		if end.Before(now.Add(-24 * time.Hour)) {
			delete(e.finished, id)
		}
	}
}

func (e *Engine) fire(ctx context.Context, j *job, ev Event) bool {
	from := j.machine.State()
	to, err := j.machine.Fire(ctx, ev)
	if err != nil {
		e.logger.Error().Err(err).Int64(log.FieldReserveID, j.res.ID).Msg("recording transition rejected")
		return false
	}
	e.logger.Info().
		Int64(log.FieldReserveID, j.res.ID).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldEvent, "recording."+string(ev)).
		Msg("recording state changed")
	return true
}

// stop handles an explicit stop: scheduled jobs are dropped, live sessions
// are told to finish.
func (e *Engine) stop(ctx context.Context, j *job, reason string) {
	switch j.machine.State() {
	case StateScheduled:
		e.cancelScheduled(ctx, j, reason)
	case StatePrepping:
		if e.fire(ctx, j, EventCancel) {
			j.reason = reason
			e.deadlines.remove(j.res.ID)
			metrics.IncRecordingOutcome(outcome(StateCanceled))
			j.session.cancel()
		}
	case StateRecording:
		if e.fire(ctx, j, EventStop) {
			j.reason = reason
			e.deadlines.remove(j.res.ID)
			j.session.cancel()
		}
	}
}

func (e *Engine) cancelScheduled(ctx context.Context, j *job, reason string) {
	if e.fire(ctx, j, EventCancel) {
		metrics.IncRecordingOutcome(outcome(StateCanceled))
		e.logger.Debug().Int64(log.FieldReserveID, j.res.ID).Str(log.FieldReason, reason).Msg("scheduled recording dropped")
	}
	e.release(j)
}

func (e *Engine) handleStop(ctx context.Context, req stopRequest) {
	j, ok := e.jobs[req.id]
	if !ok {
		close(req.done)
		return
	}
	if j.machine.State() == StateScheduled {
		e.cancelScheduled(ctx, j, req.reason)
		close(req.done)
		return
	}
	j.waiters = append(j.waiters, req.done)
	e.stop(ctx, j, req.reason)
}

func (e *Engine) handleDeadlines(ctx context.Context) {
	now := e.clock.Now()
	for _, id := range e.deadlines.popDue(now) {
		j, ok := e.jobs[id]
		if !ok {
			continue
		}
		switch j.machine.State() {
		case StateScheduled:
			e.prep(ctx, j, now)
		case StatePrepping:
			e.failPrep(ctx, j, fmt.Errorf("no data within %s", e.cfg.PrepTimeout))
		case StateRecording:
			e.stop(ctx, j, "end")
		}
	}
}

func (e *Engine) prep(ctx context.Context, j *job, now time.Time) {
	r := &j.res
	h, err := e.deps.Tuners.Acquire(ctx, tuner.Request{Hint: r.TunerID, Type: r.BroadcastType, NetworkID: r.NetworkID})
	if errors.Is(err, tuner.ErrNoTunerAvailable) {
		if until := e.handoverDeadline(j, now); now.Before(until) && e.leaseEndsBy(until) {
			e.awaitTuner(j, now, until)
			return
		}
	}
	if !e.fire(ctx, j, EventPrep) {
		if h != nil {
			h.Release()
		}
		return
	}
	j.waitSince = time.Time{}
	if err != nil {
		e.failPrep(ctx, j, fmt.Errorf("acquire tuner: %w", err))
		return
	}
	dir, err := outputDir(e.cfg.RecordedDir, r)
	if err != nil {
		h.Release()
		e.failPrep(ctx, j, err)
		return
	}

	target := Target{
		ReserveID:     r.ID,
		ChannelID:     r.ChannelID,
		NetworkID:     r.NetworkID,
		BroadcastType: r.BroadcastType,
	}
	if e.deps.Channels != nil {
		if ch, err := e.deps.Channels.Channel(ctx, r.ChannelID); err == nil {
			target.ServiceID = ch.ServiceID
		}
	}

	format := r.Save.RecordedFormat
	if format == "" {
		format = e.cfg.FileNameFormat
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      r.ID,
		opener:  e.deps.Opener,
		handle:  h,
		target:  target,
		dir:     dir,
		stem:    FileName(format, r, e.cfg.Location),
		ext:     e.cfg.Extension,
		counter: newPacketCounter(),
		cancel:  cancel,
		events:  e.events,
	}
	j.session = s
	j.handle = h
	e.live++
	e.deadlines.set(r.ID, now.Add(e.cfg.PrepTimeout))
	e.logger.Info().
		Int64(log.FieldReserveID, r.ID).
		Int64(log.FieldChannelID, r.ChannelID).
		Str(log.FieldTuner, h.Device.Name).
		Msg("recording prepping")
	go s.run(sctx)
}

// handoverDeadline is the latest time a prep may keep waiting for a tuner:
// PrepTimeout past the later of start and the first attempt, capped at the
// end of the recording.
func (e *Engine) handoverDeadline(j *job, now time.Time) time.Time {
	since := j.waitSince
	if since.IsZero() {
		since = now
	}
	until := j.res.StartAt
	if since.After(until) {
		until = since
	}
	until = until.Add(e.cfg.PrepTimeout)
	if end := j.res.RecordEnd(); end.Before(until) {
		until = end
	}
	return until
}

// leaseEndsBy reports whether a session of this engine gives its tuner back
// no later than t.
func (e *Engine) leaseEndsBy(t time.Time) bool {
	for _, o := range e.jobs {
		if o.handle == nil {
			continue
		}
		switch o.machine.State() {
		case StatePrepping, StateRecording:
			if !o.res.RecordEnd().After(t) {
				return true
			}
		default:
			// Already stopping.
			return true
		}
	}
	return false
}

// awaitTuner keeps j scheduled until a session releases its tuner or the
// handover deadline passes.
func (e *Engine) awaitTuner(j *job, now, until time.Time) {
	if j.waitSince.IsZero() {
		j.waitSince = now
		e.logger.Info().
			Int64(log.FieldReserveID, j.res.ID).
			Time("until", until).
			Msg("recording waiting for tuner handover")
	}
	next := now.Add(tunerRetryInterval)
	if next.After(until) {
		next = until
	}
	e.deadlines.set(j.res.ID, next)
}

// retryWaiting re-runs prep for reservations waiting on a tuner, earliest
// start first.
func (e *Engine) retryWaiting(ctx context.Context) {
	var waiting []*job
	for _, j := range e.jobs {
		if !j.waitSince.IsZero() && j.machine.State() == StateScheduled {
			waiting = append(waiting, j)
		}
	}
	sort.Slice(waiting, func(a, b int) bool {
		if !waiting[a].res.StartAt.Equal(waiting[b].res.StartAt) {
			return waiting[a].res.StartAt.Before(waiting[b].res.StartAt)
		}
		return waiting[a].res.ID < waiting[b].res.ID
	})
	now := e.clock.Now()
	for _, j := range waiting {
		e.prep(ctx, j, now)
	}
}

// failPrep gives up on a reservation before any data was written. The
// reservation is removed and not retried.
func (e *Engine) failPrep(ctx context.Context, j *job, cause error) {
	if !e.fire(ctx, j, EventPrepFailed) {
		return
	}
	e.deadlines.remove(j.res.ID)
	metrics.IncRecordingOutcome(outcome(StateFailedPrep))
	e.logger.Error().Err(cause).
		Int64(log.FieldReserveID, j.res.ID).
		Str(log.FieldEvent, "recording.failed_prep").
		Msg("recording preparation failed")
	e.finished[j.res.ID] = j.res.EndAt
	e.removeReserve(ctx, j.res.ID)
	if j.session != nil {
		j.session.cancel()
		return
	}
	e.release(j)
}

func (e *Engine) handleSession(ctx context.Context, ev sessionEvent) {
	j, ok := e.jobs[ev.id]
	if !ok {
		return
	}
	switch ev.kind {
	case sessionFirstPacket:
		j.path = ev.path
		if j.machine.State() != StatePrepping || !e.fire(ctx, j, EventFirstPacket) {
			return
		}
		e.deadlines.set(j.res.ID, j.res.RecordEnd())
		e.logger.Info().
			Int64(log.FieldReserveID, j.res.ID).
			Str(log.FieldPath, ev.path).
			Time("until", j.res.RecordEnd()).
			Msg("recording started")

	case sessionEnded:
		e.live--
		j.session = nil
		if j.handle != nil {
			j.handle.Release()
			j.handle = nil
		}
		res := ev.result
		metrics.AddRecordingPackets(res.stats.Packets, res.stats.Drops, res.stats.Errors)

		switch j.machine.State() {
		case StatePrepping:
			cause := res.err
			if cause == nil {
				cause = errStreamEnded
			}
			e.failPrep(ctx, j, cause)
		case StateRecording:
			e.failRecording(ctx, j, res)
		case StateFinishing:
			e.complete(ctx, j, res)
		case StateCanceled:
			if res.path != "" {
				_ = os.Remove(res.path)
			}
			e.release(j)
		default:
			e.release(j)
		}
		e.retryWaiting(ctx)
	}
}

func (e *Engine) complete(ctx context.Context, j *job, res sessionResult) {
	if !e.fire(ctx, j, EventFinished) {
		return
	}
	metrics.IncRecordingOutcome(outcome(StateCompleted))
	if res.err != nil {
		e.logger.Warn().Err(res.err).Int64(log.FieldReserveID, j.res.ID).Msg("recording finished with error")
	}
	recID := e.persist(ctx, j, res, false)
	e.logger.Info().
		Int64(log.FieldReserveID, j.res.ID).
		Int64(log.FieldRecordedID, recID).
		Str(log.FieldReason, j.reason).
		Str(log.FieldPath, res.path).
		Int64("drops", res.stats.Drops).
		Int64("errors", res.stats.Errors).
		Str(log.FieldEvent, "recording.completed").
		Msg("recording completed")

	e.finished[j.res.ID] = j.res.EndAt
	e.removeReserve(ctx, j.res.ID)
	if !j.res.IsManual() && !userStopReasons[j.reason] {
		e.deps.Reserves.Notify("recording.finished")
	}
	e.release(j)
}

// failRecording keeps the partial file and registers it as a failed item.
func (e *Engine) failRecording(ctx context.Context, j *job, res sessionResult) {
	if !e.fire(ctx, j, EventStreamFailed) {
		return
	}
	metrics.IncRecordingOutcome(outcome(StateFailedRecording))
	recID := e.persist(ctx, j, res, true)
	e.logger.Error().Err(res.err).
		Int64(log.FieldReserveID, j.res.ID).
		Int64(log.FieldRecordedID, recID).
		Str(log.FieldPath, res.path).
		Str(log.FieldEvent, "recording.failed_recording").
		Msg("recording failed")

	e.finished[j.res.ID] = j.res.EndAt
	e.removeReserve(ctx, j.res.ID)
	e.release(j)
}

// persist writes the recorded item and returns its id, or 0 when it could
// not be stored.
func (e *Engine) persist(ctx context.Context, j *job, res sessionResult, failed bool) int64 {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
	defer cancel()

	r := &j.res
	logger := e.logger.With().Int64(log.FieldReserveID, r.ID).Logger()
	recID, err := e.deps.Recorded.CreateRecorded(pctx, recorded.Recorded{
		ReserveID:  r.ID,
		RuleID:     r.RuleID,
		ProgramID:  r.ProgramID,
		ChannelID:  r.ChannelID,
		Name:       r.Name,
		StartAt:    r.StartAt,
		EndAt:      r.RecordEnd(),
		DropCount:  res.stats.Drops,
		ErrorCount: res.stats.Errors,
		IsFailed:   failed,
	}, recorded.VideoFile{})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldPath, res.path).Msg("storing recorded item failed")
		return 0
	}

	if len(r.Tags) > 0 {
		if err := e.deps.Recorded.AddTags(pctx, recID, r.Tags); err != nil {
			logger.Error().Err(err).Int64(log.FieldRecordedID, recID).Msg("applying tags failed")
		}
	}
	if res.path == "" {
		return recID
	}
	fileID, err := e.deps.Recorded.AppendVideoFile(pctx, recID, recorded.VideoFile{
		Type: recorded.FileTS,
		Name: "TS",
		Path: res.path,
		Size: res.size,
	})
	if err != nil {
		logger.Error().Err(err).Int64(log.FieldRecordedID, recID).Msg("registering video file failed")
		return recID
	}
	if !failed {
		e.pushEncode(ctx, encode.Plan(recID, fileID, r.Encode))
	}
	return recID
}

// pushEncode hands requests to the encode queue without waiting.
func (e *Engine) pushEncode(ctx context.Context, reqs []encode.Request) {
	if e.deps.Encode == nil || len(reqs) == 0 {
		return
	}
	e.async.Add(1)
	go func() {
		defer e.async.Done()
		for _, req := range reqs {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
			err := e.deps.Encode.PushEncode(pctx, req)
			cancel()
			if err != nil {
				e.logger.Error().Err(err).
					Int64(log.FieldRecordedID, req.RecordedID).
					Str("mode", req.Mode).
					Msg("encode request not queued")
			}
		}
	}()
}

// removeReserve runs off the loop: a store pass publishes back to us.
func (e *Engine) removeReserve(ctx context.Context, id int64) {
	e.async.Add(1)
	go func() {
		defer e.async.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
		defer cancel()
		if err := e.deps.Reserves.Remove(rctx, id); err != nil && !errors.Is(err, reserve.ErrNotFound) {
			e.logger.Error().Err(err).Int64(log.FieldReserveID, id).Msg("removing executed reservation failed")
		}
	}()
}

// release forgets j and wakes everyone waiting for its teardown.
func (e *Engine) release(j *job) {
	delete(e.jobs, j.res.ID)
	e.deadlines.remove(j.res.ID)
	for _, w := range j.waiters {
		close(w)
	}
	j.waiters = nil
}

func (e *Engine) resetTimer() {
	e.timer.Stop()
	at, ok := e.deadlines.peek()
	if !ok {
		return
	}
	d := at.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	e.timer.Reset(d)
}

func (e *Engine) publishActive() {
	list := make([]activeEntry, 0, len(e.jobs))
	for _, j := range e.jobs {
		st := j.machine.State()
		if st == StateScheduled || lifecycle.IsTerminal(st) {
			continue
		}
		a := activeEntry{info: ActiveRecording{
			ReserveID: j.res.ID,
			RuleID:    j.res.RuleID,
			ChannelID: j.res.ChannelID,
			Name:      j.res.Name,
			State:     st,
			StartAt:   j.res.StartAt,
			EndAt:     j.res.RecordEnd(),
			Path:      j.path,
		}}
		if j.handle != nil {
			a.info.Tuner = j.handle.Device.Name
		}
		if j.session != nil {
			a.counter = j.session.counter
		}
		list = append(list, a)
	}
	sort.Slice(list, func(i, k int) bool { return list[i].info.ReserveID < list[k].info.ReserveID })

	e.mu.Lock()
	e.active = list
	e.mu.Unlock()
	metrics.SetRecordingsActive(len(list))
}

func (e *Engine) shutdown() {
	close(e.quit)
	for _, j := range e.jobs {
		if j.session != nil {
			j.session.cancel()
		}
	}
	for e.live > 0 {
		ev := <-e.events
		if ev.kind != sessionEnded {
			continue
		}
		e.live--
		j, ok := e.jobs[ev.id]
		if !ok {
			continue
		}
		if j.handle != nil {
			j.handle.Release()
			j.handle = nil
		}
		if ev.result.path != "" {
			e.logger.Warn().
				Int64(log.FieldReserveID, ev.id).
				Str(log.FieldPath, ev.result.path).
				Msg("recording interrupted by shutdown")
		}
	}
	for _, j := range e.jobs {
		e.release(j)
	}
	e.async.Wait()
	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()
	metrics.SetRecordingsActive(0)
}
