// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"container/heap"
	"time"
)

type deadline struct {
	at    time.Time
	id    int64
	index int
}

type deadlineHeap []*deadline

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].id < h[j].id
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *deadlineHeap) Push(x any) {
	d := x.(*deadline)
	d.index = len(*h)
	*h = append(*h, d)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	d.index = -1
	return d
}

// deadlineQueue holds at most one pending deadline per reservation.
type deadlineQueue struct {
	h    deadlineHeap
	byID map[int64]*deadline
}

func newDeadlineQueue() *deadlineQueue {
	return &deadlineQueue{byID: make(map[int64]*deadline)}
}

// set schedules or moves the deadline of id.
func (q *deadlineQueue) set(id int64, at time.Time) {
	if d, ok := q.byID[id]; ok {
		d.at = at
		heap.Fix(&q.h, d.index)
		return
	}
	d := &deadline{at: at, id: id}
	heap.Push(&q.h, d)
	q.byID[id] = d
}

func (q *deadlineQueue) remove(id int64) {
	d, ok := q.byID[id]
	if !ok {
		return
	}
	heap.Remove(&q.h, d.index)
	delete(q.byID, id)
}

func (q *deadlineQueue) peek() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].at, true
}

// popDue removes and returns the ids whose deadline is not after now, in
// deadline order.
func (q *deadlineQueue) popDue(now time.Time) []int64 {
	var ids []int64
	for len(q.h) > 0 && !q.h[0].at.After(now) {
		d := heap.Pop(&q.h).(*deadline)
		delete(q.byID, d.id)
		ids = append(ids, d.id)
	}
	return ids
}

func (q *deadlineQueue) Len() int { return len(q.h) }
