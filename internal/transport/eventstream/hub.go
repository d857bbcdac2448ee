// Package eventstream fans committed events out to websocket observers.
// Every event gets a per-network cursor and lives in a bounded ring, so a
// reconnecting client can resume from its last cursor and get at-least-once
// delivery for anything still inside the ring.
package eventstream

import (
	"sync"

	"tessera.estate/internal/protocol"
)

const ringCapacity = 4096

// subscriber buffers outbound events; a subscriber that cannot keep up is
// closed and must reconnect with its cursor.
type subscriber struct {
	network string
	ch      chan protocol.EventItem

	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type ring struct {
	buf  []protocol.EventItem
	next uint64 // cursor of the next event to publish
}

func (r *ring) append(ev protocol.Event) protocol.EventItem {
	item := protocol.EventItem{Cursor: r.next, Event: ev}
	r.next++
	if len(r.buf) == ringCapacity {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = item
	} else {
		r.buf = append(r.buf, item)
	}
	return item
}

// since returns buffered events with cursor >= from.
func (r *ring) since(from uint64) []protocol.EventItem {
	for i, item := range r.buf {
		if item.Cursor >= from {
			out := make([]protocol.EventItem, len(r.buf)-i)
			copy(out, r.buf[i:])
			return out
		}
	}
	return nil
}

// Hub is the process-wide event fan-out. It implements network.EventSink;
// sessions publish into it after each commit.
type Hub struct {
	mu    sync.Mutex
	rings map[string]*ring
	subs  map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rings: map[string]*ring{},
		subs:  map[string]map[*subscriber]struct{}{},
	}
}

// Publish routes one event by its "network" field. Events without one are
// dropped; every session stamps its own id before publishing.
func (h *Hub) Publish(ev protocol.Event) {
	networkID, _ := ev["network"].(string)
	if networkID == "" {
		return
	}

	h.mu.Lock()
	r := h.rings[networkID]
	if r == nil {
		r = &ring{}
		h.rings[networkID] = r
	}
	item := r.append(ev)

	var stalled []*subscriber
	for sub := range h.subs[networkID] {
		select {
		case sub.ch <- item:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(h.subs[networkID], sub)
	}
	h.mu.Unlock()

	// Closing outside the lock; the client re-attaches with its cursor.
	for _, sub := range stalled {
		sub.close()
	}
}

// Subscribe attaches a new observer and replays anything still buffered
// from sinceCursor. The returned next cursor is where live delivery
// starts.
func (h *Hub) Subscribe(networkID string, sinceCursor uint64) (*subscriber, []protocol.EventItem, uint64) {
	sub := &subscriber{network: networkID, ch: make(chan protocol.EventItem, 256)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[networkID] == nil {
		h.subs[networkID] = map[*subscriber]struct{}{}
	}
	h.subs[networkID][sub] = struct{}{}

	var backlog []protocol.EventItem
	next := uint64(0)
	if r := h.rings[networkID]; r != nil {
		if sinceCursor > 0 {
			backlog = r.since(sinceCursor)
		}
		next = r.next
	}
	return sub, backlog, next
}

func (h *Hub) Unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[sub.network], sub)
	h.mu.Unlock()
	sub.close()
}
