package queue

import (
	"sync"

	"tessera.estate/internal/protocol"
)

const dedupeTTLMonths = 12

type dedupeKey struct {
	Actor    string
	ActionID string
}

type dedupeEntry struct {
	Receipt      protocol.SubmitReceipt
	ExpiresMonth int
}

// Dedupe remembers submission receipts by (actor, action id) so a retried
// submission returns the original receipt instead of queueing twice.
type Dedupe struct {
	mu      sync.Mutex
	entries map[dedupeKey]dedupeEntry
}

func NewDedupe() *Dedupe {
	return &Dedupe{entries: map[dedupeKey]dedupeEntry{}}
}

// CheckOrRemember returns the stored receipt for (actor, actionID) if one
// is live, or stores proposed and returns it. Empty action ids are never
// deduplicated.
func (d *Dedupe) CheckOrRemember(actor, actionID string, nowMonth int, proposed protocol.SubmitReceipt) (protocol.SubmitReceipt, bool) {
	if actionID == "" {
		return proposed, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// Opportunistic cleanup.
	for k, v := range d.entries {
		if nowMonth >= v.ExpiresMonth {
			delete(d.entries, k)
		}
	}

	key := dedupeKey{Actor: actor, ActionID: actionID}
	if e, ok := d.entries[key]; ok && nowMonth < e.ExpiresMonth {
		r := e.Receipt
		r.Duplicate = true
		return r, true
	}
	d.entries[key] = dedupeEntry{Receipt: proposed, ExpiresMonth: nowMonth + dedupeTTLMonths}
	return proposed, false
}
