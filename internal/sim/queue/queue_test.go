package queue

import (
	"sync"
	"testing"

	"tessera.estate/internal/protocol"
)

func TestTakeMonthOrdering(t *testing.T) {
	q := New()
	q.Add(&Pending{ID: "a", Month: 1, Priority: 10})
	q.Add(&Pending{ID: "b", Month: 1, Priority: 50})
	q.Add(&Pending{ID: "c", Month: 1, Priority: 10})
	q.Add(&Pending{ID: "d", Month: 2, Priority: 99})
	q.Add(&Pending{ID: "e", Month: 1, Priority: PriorityHealing})

	got := q.TakeMonth(1)
	want := []string{"e", "b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("took %d actions, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if q.PendingCount(1) != 0 {
		t.Fatalf("month 1 partition should be drained")
	}
	if q.PendingCount(2) != 1 {
		t.Fatalf("month 2 partition should be untouched")
	}
}

func TestTakeMonthDrainsStalePartitions(t *testing.T) {
	q := New()
	q.Add(&Pending{ID: "late", Month: 1, Priority: 10})
	q.Add(&Pending{ID: "cur", Month: 2, Priority: 10})
	q.Add(&Pending{ID: "next", Month: 3, Priority: 10})

	// An action stamped for a month the clock has already passed rides
	// along with the current take instead of stranding forever.
	got := q.TakeMonth(2)
	if len(got) != 2 || got[0].ID != "late" || got[1].ID != "cur" {
		t.Fatalf("take = %+v, want [late cur]", got)
	}
	if q.PendingCount(1) != 0 || q.PendingCount(2) != 0 {
		t.Fatalf("stale partitions not drained")
	}
	if q.PendingCount(3) != 1 {
		t.Fatalf("future partition should be untouched")
	}
}

func TestRestoreReproducesOrder(t *testing.T) {
	q := New()
	q.Add(&Pending{ID: "a", Month: 1, Priority: 10})
	q.Add(&Pending{ID: "b", Month: 1, Priority: 10})
	first := q.TakeMonth(1)
	q.Restore(1, first)
	second := q.TakeMonth(1)
	if len(second) != 2 || second[0].ID != "a" || second[1].ID != "b" {
		t.Fatalf("restored order diverged: %v, %v", second[0].ID, second[1].ID)
	}
}

func TestConcurrentAdd(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Add(&Pending{Month: 3})
		}()
	}
	wg.Wait()
	if n := q.PendingCount(3); n != 50 {
		t.Fatalf("pending = %d, want 50", n)
	}
	seen := map[uint64]bool{}
	for _, p := range q.TakeMonth(3) {
		if seen[p.Seq] {
			t.Fatalf("duplicate sequence %d", p.Seq)
		}
		seen[p.Seq] = true
	}
}

func TestDedupeReturnsOriginalReceipt(t *testing.T) {
	d := NewDedupe()
	orig := protocol.SubmitReceipt{ActionID: "x1", Accepted: true, QueuedForMonth: 4}

	got, dup := d.CheckOrRemember("alice", "x1", 3, orig)
	if dup {
		t.Fatalf("first submission flagged duplicate")
	}
	if got != orig {
		t.Fatalf("first receipt altered: %+v", got)
	}

	replay, dup := d.CheckOrRemember("alice", "x1", 5, protocol.SubmitReceipt{ActionID: "x1", QueuedForMonth: 6})
	if !dup {
		t.Fatalf("second submission not flagged duplicate")
	}
	if replay.QueuedForMonth != 4 || !replay.Duplicate {
		t.Fatalf("duplicate receipt should be the original: %+v", replay)
	}

	// Different actor, same id: no collision.
	if _, dup := d.CheckOrRemember("bob", "x1", 5, orig); dup {
		t.Fatalf("dedupe collided across actors")
	}
}

func TestDedupeExpires(t *testing.T) {
	d := NewDedupe()
	orig := protocol.SubmitReceipt{ActionID: "x1", Accepted: true, QueuedForMonth: 1}
	d.CheckOrRemember("alice", "x1", 0, orig)
	if _, dup := d.CheckOrRemember("alice", "x1", dedupeTTLMonths, orig); dup {
		t.Fatalf("entry should expire after %d months", dedupeTTLMonths)
	}
}

func TestEmptyIDNeverDeduped(t *testing.T) {
	d := NewDedupe()
	r := protocol.SubmitReceipt{Accepted: true}
	if _, dup := d.CheckOrRemember("alice", "", 0, r); dup {
		t.Fatalf("empty id deduped")
	}
	if _, dup := d.CheckOrRemember("alice", "", 0, r); dup {
		t.Fatalf("empty id deduped on repeat")
	}
}
