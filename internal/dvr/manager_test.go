// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) Notify(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

func newsRule() Rule {
	return Rule{Enabled: true, Search: SearchOption{Keyword: TextQuery{Keyword: "News"}}}
}

func TestManager_IDsAscendAndAreNotReused(t *testing.T) {
	m := NewManager(t.TempDir())

	first, err := m.AddRule(newsRule())
	require.NoError(t, err)
	second, err := m.AddRule(newsRule())
	require.NoError(t, err)
	assert.Less(t, first, second)

	require.NoError(t, m.DeleteRule(second))
	third, err := m.AddRule(newsRule())
	require.NoError(t, err)
	assert.Greater(t, third, second)

	rules := m.GetRules()
	require.Len(t, rules, 2)
	assert.Equal(t, first, rules[0].ID)
	assert.Equal(t, third, rules[1].ID)
}

func TestManager_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	id, err := m.AddRule(newsRule())
	require.NoError(t, err)
	require.NoError(t, m.SetEnabled(id, false))

	reloaded := NewManager(dir)
	require.NoError(t, reloaded.Load())
	r, ok := reloaded.GetRule(id)
	require.True(t, ok)
	assert.False(t, r.Enabled)
	assert.Equal(t, "News", r.Search.Keyword.Keyword)

	next, err := reloaded.AddRule(newsRule())
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestManager_ValidationRejectsBeforeMutation(t *testing.T) {
	m := NewManager(t.TempDir())
	n := &recordingNotifier{}
	m.SetNotifier(n)

	_, err := m.AddRule(Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "[", Regex: true}}})
	require.ErrorIs(t, err, ErrInvalidRuleOption)
	assert.Empty(t, m.GetRules())
	assert.Empty(t, n.all())

	_, err = os.Stat(m.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestManager_NotifiesOnEveryMutation(t *testing.T) {
	m := NewManager(t.TempDir())
	n := &recordingNotifier{}
	m.SetNotifier(n)

	id, err := m.AddRule(newsRule())
	require.NoError(t, err)
	upd := newsRule()
	upd.Search.Keyword.Keyword = "Weather"
	require.NoError(t, m.UpdateRule(id, upd))
	require.NoError(t, m.SetEnabled(id, false))
	require.NoError(t, m.SetEnabled(id, false)) // no-op
	require.NoError(t, m.DeleteRule(id))

	assert.Equal(t, []string{"rule.added", "rule.updated", "rule.disabled", "rule.deleted"}, n.all())
}

func TestManager_UpdatePreservesServerFields(t *testing.T) {
	m := NewManager(t.TempDir())
	created := time.Unix(1700000000, 0)
	m.now = func() time.Time { return created }
	id, err := m.AddRule(newsRule())
	require.NoError(t, err)

	later := created.Add(time.Hour)
	m.now = func() time.Time { return later }
	upd := newsRule()
	upd.ID = 999
	require.NoError(t, m.UpdateRule(id, upd))

	r, ok := m.GetRule(id)
	require.True(t, ok)
	assert.Equal(t, id, r.ID)
	assert.True(t, r.CreatedAt.Equal(created))
	assert.True(t, r.UpdatedAt.Equal(later))
}

func TestManager_NotFound(t *testing.T) {
	m := NewManager(t.TempDir())
	assert.ErrorIs(t, m.UpdateRule(42, newsRule()), ErrRuleNotFound)
	assert.ErrorIs(t, m.SetEnabled(42, true), ErrRuleNotFound)
	assert.ErrorIs(t, m.DeleteRule(42), ErrRuleNotFound)
}

func TestManager_RollbackOnSaveFailure(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"))
	_, err := m.AddRule(newsRule())
	require.Error(t, err)
	assert.Empty(t, m.GetRules())
}

func TestManager_EnabledRules(t *testing.T) {
	m := NewManager(t.TempDir())
	a, _ := m.AddRule(newsRule())
	b, _ := m.AddRule(newsRule())
	require.NoError(t, m.SetEnabled(a, false))

	rules, err := m.EnabledRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, b, rules[0].ID)
	assert.Len(t, m.GetRules(), 2)
}

func TestManager_WatchReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	n := &recordingNotifier{}
	m.SetNotifier(n)
	_, err := m.AddRule(newsRule())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	edited := rulesFile{NextID: 10, Rules: []Rule{
		{ID: 1, Enabled: true, Search: SearchOption{Keyword: TextQuery{Keyword: "News"}}},
		{ID: 5, Enabled: true, Search: SearchOption{Keyword: TextQuery{Keyword: "Sports"}}},
	}}
	data, err := json.Marshal(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.Path(), data, 0o600))

	require.Eventually(t, func() bool {
		_, ok := m.GetRule(5)
		return ok
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, n.all(), "rule.reloaded")

	id, err := m.AddRule(newsRule())
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
}
