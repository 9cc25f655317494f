// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"fmt"
	"time"
)

// HistoryStore answers whether something was recorded recently.
type HistoryStore interface {
	HasRecentRecording(ctx context.Context, name string, channelID int64, since time.Time) (bool, error)
}

// HistoryGuard applies a rule's duplicate avoidance to its candidates.
type HistoryGuard struct {
	history HistoryStore
	now     func() time.Time
}

func NewHistoryGuard(history HistoryStore, now func() time.Time) *HistoryGuard {
	if now == nil {
		now = time.Now
	}
	return &HistoryGuard{history: history, now: now}
}

// ShouldSkip reports whether c duplicates a recording made within the rule's
// avoidance period. A period of zero days looks at the whole history.
func (g *HistoryGuard) ShouldSkip(ctx context.Context, r *Rule, c Candidate) (bool, error) {
	if r == nil || !r.Reserve.AvoidDuplicate || g.history == nil {
		return false, nil
	}
	var since time.Time
	if days := r.Reserve.PeriodToAvoidDuplicate; days > 0 {
		since = g.now().AddDate(0, 0, -days)
	}
	dup, err := g.history.HasRecentRecording(ctx, c.Name, c.ChannelID, since)
	if err != nil {
		return false, fmt.Errorf("history lookup for %q: %w", c.Name, err)
	}
	return dup, nil
}
