// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/ManuGH/pvrd/internal/epg"
)

// MatchResult contains the outcome of a rule match against a program.
type MatchResult struct {
	Matched bool
	Reasons []string
}

func mismatch(reason string) MatchResult {
	return MatchResult{Matched: false, Reasons: []string{reason}}
}

// textMatcher is a compiled TextQuery.
type textMatcher struct {
	q     TextQuery
	re    *regexp.Regexp
	terms []string
}

func compileText(q TextQuery) (*textMatcher, error) {
	if strings.TrimSpace(q.Keyword) == "" {
		return nil, nil
	}
	m := &textMatcher{q: q}
	kw := normalize(q.Keyword, q.CaseSensitive)
	if q.Regex {
		expr := kw
		if !q.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRuleOption, err)
		}
		m.re = re
		return m, nil
	}
	m.terms = strings.Fields(kw)
	return m, nil
}

// normalize folds full-width and half-width variants so that "ＡＢＣ" and "ABC"
// compare equal.
func normalize(s string, caseSensitive bool) string {
	s = width.Fold.String(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func (m *textMatcher) fields(p *epg.Program) []string {
	var out []string
	q := m.q
	if q.Name || (!q.Description && !q.Extended) {
		out = append(out, p.Name)
	}
	if q.Description {
		out = append(out, p.Description)
	}
	if q.Extended {
		out = append(out, p.Extended)
	}
	return out
}

// match reports whether the program text satisfies the query. Plain keywords
// are whitespace-separated terms that must all appear.
func (m *textMatcher) match(p *epg.Program) bool {
	fields := m.fields(p)
	if m.re != nil {
		for _, f := range fields {
			if m.re.MatchString(width.Fold.String(f)) {
				return true
			}
		}
		return false
	}
	text := normalize(strings.Join(fields, "\n"), m.q.CaseSensitive)
	for _, term := range m.terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// compiledRule caches the regular expressions of a rule for one matching pass.
type compiledRule struct {
	rule    *Rule
	keyword *textMatcher
	ignore  *textMatcher
	loc     *time.Location
}

func compileRule(r *Rule, loc *time.Location) (*compiledRule, error) {
	kw, err := compileText(r.Search.Keyword)
	if err != nil {
		return nil, err
	}
	ig, err := compileText(r.Search.Ignore)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &compiledRule{rule: r, keyword: kw, ignore: ig, loc: loc}, nil
}

// Matches evaluates the rule's search predicates against a program. Window
// and day checks use the program start in the given location.
func (r *Rule) Matches(p *epg.Program, loc *time.Location) MatchResult {
	c, err := compileRule(r, loc)
	if err != nil {
		return mismatch(fmt.Sprintf("rule config error: %v", err))
	}
	return c.matches(p)
}

func (c *compiledRule) matches(p *epg.Program) MatchResult {
	s := c.rule.Search
	res := MatchResult{Matched: true}

	if len(s.ChannelIDs) > 0 {
		if !slices.Contains(s.ChannelIDs, p.ChannelID) {
			return mismatch("channel mismatch")
		}
		res.Reasons = append(res.Reasons, "channel match")
	}

	if len(s.BroadcastTypes) > 0 && !slices.Contains(s.BroadcastTypes, p.BroadcastType) {
		return mismatch("broadcast type mismatch")
	}

	if s.FreeOnly && !p.IsFree {
		return mismatch("not free")
	}

	if c.keyword != nil {
		if !c.keyword.match(p) {
			return mismatch("keyword mismatch")
		}
		res.Reasons = append(res.Reasons, "keyword match")
	}
	if c.ignore != nil && c.ignore.match(p) {
		return mismatch("ignore keyword hit")
	}

	if len(s.Genres) > 0 {
		if !genreMatch(s.Genres, p.Genres) {
			return mismatch("genre mismatch")
		}
		res.Reasons = append(res.Reasons, "genre match")
	}

	d := p.Duration()
	if s.DurationMinSec > 0 && d < time.Duration(s.DurationMinSec)*time.Second {
		return mismatch("shorter than durationMin")
	}
	if s.DurationMaxSec > 0 && d > time.Duration(s.DurationMaxSec)*time.Second {
		return mismatch("longer than durationMax")
	}

	if len(s.Periods) > 0 {
		in := false
		for _, per := range s.Periods {
			if !p.StartAt.Before(per.StartAt) && p.StartAt.Before(per.EndAt) {
				in = true
				break
			}
		}
		if !in {
			return mismatch("outside search periods")
		}
	}

	if len(s.Times) > 0 {
		start := p.StartAt.In(c.loc)
		ok := false
		for _, tw := range s.Times {
			hit, err := tw.contains(start)
			if err != nil {
				return mismatch(fmt.Sprintf("window config error: %v", err))
			}
			if hit {
				ok = true
				break
			}
		}
		if !ok {
			return mismatch("time window mismatch")
		}
		res.Reasons = append(res.Reasons, "time window match")
	}

	return res
}

func genreMatch(filters, genres []epg.Genre) bool {
	for _, f := range filters {
		for _, g := range genres {
			if f.Lv1 == g.Lv1 && (f.Lv2 < 0 || f.Lv2 == g.Lv2) {
				return true
			}
		}
	}
	return false
}

// contains reports whether t falls into the window. For windows crossing
// midnight the part after midnight belongs to the previous day's slot.
func (tw TimeWindow) contains(t time.Time) (bool, error) {
	day := int(t.Weekday())
	if tw.Window != "" {
		in, err := IsTimeInWindow(t, tw.Window)
		if err != nil || !in {
			return false, err
		}
		start, end, _ := parseWindow(tw.Window)
		if start > end && t.Hour()*60+t.Minute() < end {
			day = (day + 6) % 7
		}
	}
	if len(tw.Days) == 0 {
		return true, nil
	}
	return slices.Contains(tw.Days, day), nil
}

// parseWindow returns start and end minutes after midnight for "HH:MM-HH:MM"
// or "HHMM-HHMM".
func parseWindow(windowStr string) (int, int, error) {
	clean := strings.ReplaceAll(windowStr, ":", "")
	parts := strings.Split(clean, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window %q", windowStr)
	}
	var mins [2]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid window %q: %w", windowStr, err)
		}
		h, m := v/100, v%100
		if h > 24 || m > 59 || (h == 24 && m != 0) {
			return 0, 0, fmt.Errorf("invalid window %q: %04d out of range", windowStr, v)
		}
		mins[i] = h*60 + m
	}
	return mins[0], mins[1], nil
}

// IsTimeInWindow checks if the clock time of t falls within the window.
// Supports midnight crossing (e.g., "22:00-02:00"). Start is inclusive, end
// exclusive. Equal bounds never match.
func IsTimeInWindow(t time.Time, windowStr string) (bool, error) {
	startMins, endMins, err := parseWindow(windowStr)
	if err != nil {
		return false, err
	}
	tMins := t.Hour()*60 + t.Minute()

	switch {
	case startMins < endMins:
		return tMins >= startMins && tMins < endMins, nil
	case startMins > endMins:
		return tMins >= startMins || tMins < endMins, nil
	default:
		return false, nil
	}
}
