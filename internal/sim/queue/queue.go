// Package queue buffers pending intents between ticks. Submission is
// concurrent and append-only; each tick takes a frozen, deterministically
// ordered copy of its month partition, so late arrivals never touch a tick
// in progress.
package queue

import (
	"encoding/json"
	"sort"
	"sync"
)

// Priority bands. Participant and NPC submissions stay at or below
// PriorityParticipantMax; milestone actions emitted by pre-computation and
// healing mitigations sit above so they resolve first.
const (
	PriorityParticipantMax = 100
	PriorityMilestone      = 900
	PriorityHealing        = 1000
)

// Action sources, recorded for audit events.
const (
	SourceParticipant = "participant"
	SourceNPC         = "npc"
	SourceSystem      = "system"
	SourceHealing     = "healing"
)

// Pending is one queued intent. Immutable after submission; resolution
// consumes it exactly once and produces ledger entries, never mutations.
type Pending struct {
	ID       string
	Actor    string
	Type     string
	Payload  interface{}
	Raw      json.RawMessage
	Priority int
	Month    int
	Seq      uint64
	Source   string
}

type Queue struct {
	mu      sync.Mutex
	seq     uint64
	byMonth map[int][]*Pending
}

func New() *Queue {
	return &Queue{byMonth: map[int][]*Pending{}}
}

// Add stamps the submission sequence and appends p to its month partition.
func (q *Queue) Add(p *Pending) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	p.Seq = q.seq
	q.byMonth[p.Month] = append(q.byMonth[p.Month], p)
}

// TakeMonth removes and returns every action queued for month m or
// earlier, ordered by priority descending with submission sequence as
// the FIFO tie-break. Draining earlier partitions too picks up actions
// that were stamped for a month the clock had already entered by the
// time they landed; they resolve in the next tick instead of stranding.
// The ordering is part of the replay contract.
func (q *Queue) TakeMonth(m int) []*Pending {
	q.mu.Lock()
	var actions []*Pending
	for month, part := range q.byMonth {
		if month <= m {
			actions = append(actions, part...)
			delete(q.byMonth, month)
		}
	}
	q.mu.Unlock()

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		return actions[i].Seq < actions[j].Seq
	})
	return actions
}

// Restore puts a taken partition back after a failed tick. Sequence
// numbers are preserved, so a later TakeMonth reproduces the same order.
func (q *Queue) Restore(m int, actions []*Pending) {
	if len(actions) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byMonth[m] = append(actions, q.byMonth[m]...)
}

// PendingCount reports the size of one month partition.
func (q *Queue) PendingCount(m int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byMonth[m])
}

// Len reports the total queued actions across all partitions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, part := range q.byMonth {
		n += len(part)
	}
	return n
}
