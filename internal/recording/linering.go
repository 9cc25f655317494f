// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"strings"
	"sync"
)

// LineRing keeps the last lines written to it. Recorder stderr goes here so
// failures can be logged with context.
type LineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	size  int
	tail  string // unterminated line
}

func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 20
	}
	return &LineRing{lines: make([]string, capacity), size: capacity}
}

func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.tail + string(p)
	parts := strings.Split(s, "\n")
	r.tail = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		r.lines[r.head] = line
		r.head = (r.head + 1) % r.size
	}
	return len(p), nil
}

// LastN returns up to n lines, oldest first, including a pending partial
// line.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]string, 0, r.size+1)
	for i := 0; i < r.size; i++ {
		if l := r.lines[(r.head+i)%r.size]; l != "" {
			ordered = append(ordered, l)
		}
	}
	if t := strings.TrimSpace(r.tail); t != "" {
		ordered = append(ordered, t)
	}
	if len(ordered) <= n {
		return ordered
	}
	return ordered[len(ordered)-n:]
}
