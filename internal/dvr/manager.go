// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/log"
)

var ErrRuleNotFound = errors.New("rule not found")

// RulesFileName is the rule file inside the data directory.
const RulesFileName = "rules.json"

// Notifier is told whenever the rule set changes.
type Notifier interface {
	Notify(reason string)
}

type rulesFile struct {
	NextID int64  `json:"nextId"`
	Rules  []Rule `json:"rules"`
}

// Manager owns the rule set and persists it as one JSON file. Every
// successful mutation is written atomically before the notifier fires.
type Manager struct {
	mu        sync.RWMutex
	rules     map[int64]Rule
	nextID    int64
	dataPath  string
	lastSaved []byte
	notifier  Notifier
	now       func() time.Time
	logger    zerolog.Logger
}

func NewManager(dataDir string) *Manager {
	return &Manager{
		rules:    make(map[int64]Rule),
		nextID:   1,
		dataPath: filepath.Join(dataDir, RulesFileName),
		now:      time.Now,
		logger:   log.WithComponent("dvr.rules"),
	}
}

// SetNotifier installs the recompute trigger. Call before serving requests.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

func (m *Manager) Path() string { return m.dataPath }

func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.loadLocked()
	return err
}

// loadLocked reads the file and reports whether the in-memory set changed.
func (m *Manager) loadLocked() (bool, error) {
	data, err := os.ReadFile(m.dataPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if bytes.Equal(data, m.lastSaved) {
		return false, nil
	}

	var stored rulesFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("decode %s: %w", m.dataPath, err)
	}

	rules := make(map[int64]Rule, len(stored.Rules))
	next := stored.NextID
	for _, r := range stored.Rules {
		if err := r.Validate(); err != nil {
			return false, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		rules[r.ID] = r
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	if next < 1 {
		next = 1
	}
	m.rules = rules
	m.nextID = next
	m.lastSaved = data
	return true, nil
}

// getRulesSlice returns the rules ordered by id (requires lock).
func (m *Manager) getRulesSlice() []Rule {
	sorted := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// saveLocked writes the current set (requires write lock).
func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(rulesFile{NextID: m.nextID, Rules: m.getRulesSlice()}, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(m.dataPath, data, 0o600); err != nil {
		return err
	}
	m.lastSaved = data
	return nil
}

func (m *Manager) notify(reason string) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()
	if n != nil {
		n.Notify(reason)
	}
}

func (m *Manager) AddRule(r Rule) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	id := m.nextID
	r.ID = id
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rules[id] = r
	m.nextID++

	if err := m.saveLocked(); err != nil {
		// Rollback on save failure
		delete(m.rules, id)
		m.nextID--
		m.mu.Unlock()
		return 0, fmt.Errorf("failed to save rule: %w", err)
	}
	m.mu.Unlock()

	m.logger.Info().Int64(log.FieldRuleID, id).Str(log.FieldEvent, "rule.added").Msg("rule added")
	m.notify("rule.added")
	return id, nil
}

func (m *Manager) GetRule(id int64) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	return r, ok
}

// GetRules returns all rules ordered by id.
func (m *Manager) GetRules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRulesSlice()
}

// EnabledRules returns the enabled rules ordered by id.
func (m *Manager) EnabledRules(context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.getRulesSlice()
	out := all[:0]
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateRule replaces the rule's options. Id and creation time are server
// managed.
func (m *Manager) UpdateRule(id int64, upd Rule) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	existing, ok := m.rules[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	upd.ID = id
	upd.CreatedAt = existing.CreatedAt
	upd.UpdatedAt = m.now()
	m.rules[id] = upd

	if err := m.saveLocked(); err != nil {
		// Rollback on save failure
		m.rules[id] = existing
		m.mu.Unlock()
		return fmt.Errorf("failed to update rule: %w", err)
	}
	m.mu.Unlock()

	m.logger.Info().Int64(log.FieldRuleID, id).Str(log.FieldEvent, "rule.updated").Msg("rule updated")
	m.notify("rule.updated")
	return nil
}

// SetEnabled toggles a rule without touching its options.
func (m *Manager) SetEnabled(id int64, enabled bool) error {
	m.mu.Lock()
	existing, ok := m.rules[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	if existing.Enabled == enabled {
		m.mu.Unlock()
		return nil
	}
	upd := existing
	upd.Enabled = enabled
	upd.UpdatedAt = m.now()
	m.rules[id] = upd

	if err := m.saveLocked(); err != nil {
		m.rules[id] = existing
		m.mu.Unlock()
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	m.mu.Unlock()

	event := "rule.disabled"
	if enabled {
		event = "rule.enabled"
	}
	m.logger.Info().Int64(log.FieldRuleID, id).Str(log.FieldEvent, event).Msg("rule toggled")
	m.notify(event)
	return nil
}

func (m *Manager) DeleteRule(id int64) error {
	m.mu.Lock()
	existing, ok := m.rules[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}

	delete(m.rules, id)
	if err := m.saveLocked(); err != nil {
		// Rollback on save failure
		m.rules[id] = existing
		m.mu.Unlock()
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	m.mu.Unlock()

	m.logger.Info().Int64(log.FieldRuleID, id).Str(log.FieldEvent, "rule.deleted").Msg("rule deleted")
	m.notify("rule.deleted")
	return nil
}

// Watch reloads the rule file when it is edited outside the daemon and
// notifies on change. The directory is watched because atomic replacement
// swaps the inode. Watch blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(m.dataPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch rules dir: %w", err)
	}
	m.logger.Info().Str(log.FieldEvent, "rules.watcher_started").Str(log.FieldPath, m.dataPath).Msg("watching rule file for changes")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	const debounceDuration = 300 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Str(log.FieldEvent, "rules.watcher_stopped").Msg("rule watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.dataPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, m.reloadFromDisk)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error().Err(err).Str(log.FieldEvent, "rules.watcher_error").Msg("rule watcher error")
		}
	}
}

func (m *Manager) reloadFromDisk() {
	m.mu.Lock()
	changed, err := m.loadLocked()
	m.mu.Unlock()
	if err != nil {
		m.logger.Error().Err(err).Str(log.FieldEvent, "rules.reload_failed").Msg("rule file reload failed, keeping previous rules")
		return
	}
	if !changed {
		return
	}
	m.logger.Info().Str(log.FieldEvent, "rules.reloaded").Msg("rule file changed on disk")
	m.notify("rule.reloaded")
}
