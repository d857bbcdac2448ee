package network

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tessera.estate/internal/protocol"
	"tessera.estate/internal/reasoning"
	"tessera.estate/internal/sim/queue"
)

// RunTick processes exactly one month: freeze the queue partition, run the
// batch phases on cloned state, audit, and commit atomically. A concurrent
// caller gets ErrClockBusy; a failed tick restores the queue and leaves
// every committed structure untouched.
func (s *Session) RunTick() (*TickRecord, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return nil, ErrClockBusy
	}
	defer s.processing.Store(false)
	return s.runTick()
}

func (s *Session) runTick() (*TickRecord, error) {
	s.mu.Lock()
	month := s.month + 1
	failInjected := s.failNextTick
	s.failNextTick = false
	t := &tickState{
		month:      month,
		book:       s.book.Clone(),
		props:      cloneProps(s.props),
		parts:      cloneParts(s.parts),
		exit:       cloneExit(s.exit),
		healer:     s.healer.Clone(),
		condition:  s.condition,
		indicators: s.indicators,
	}
	s.mu.Unlock()

	started := time.Now()
	s.events.Publish(protocol.Event{
		"type":    protocol.EventProcessingStarted,
		"network": s.cfg.NetworkID,
		"month":   month,
	})

	taken := s.queue.TakeMonth(month)
	t.actions = taken
	for _, a := range taken {
		if a.Seq > t.nextSeq {
			t.nextSeq = a.Seq
		}
	}

	err := func() error {
		if err := s.precompute(t); err != nil {
			return err
		}
		s.npcStep(t)
		s.healingStep(t)
		sortActions(t.actions)
		if err := s.resolve(t); err != nil {
			return err
		}
		if failInjected {
			return fmt.Errorf("injected consistency fault")
		}
		return t.book.Audit(s.totals)
	}()
	if err != nil {
		s.queue.Restore(month, taken)
		s.log.Printf("tick month %d aborted: %v", month, err)
		s.events.Publish(protocol.Event{
			"type":    protocol.EventTickFailed,
			"network": s.cfg.NetworkID,
			"month":   month,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("tick month %d: %w", month, err)
	}

	health := s.computeHealth(t.book, t.props, t.exit, t.ctr)
	snap := s.buildSnapshot(t.book, t.props, t.parts, t.exit, month, t.condition, t.indicators, health)
	s.adaptNPCs(t, snap)
	snap.Digest = s.stateDigest(t, snap)

	rec := TickRecord{
		NetworkID: s.cfg.NetworkID,
		Month:     month,
		Digest:    snap.Digest,
		Actions:   externalRecords(taken),
		Entries:   t.entries,
		Events:    t.events,
		Snapshot:  snap,
	}

	s.mu.Lock()
	s.month = month
	s.book = t.book
	s.entries = append(s.entries, t.entries...)
	s.props = t.props
	s.parts = t.parts
	s.exit = t.exit
	s.condition = t.condition
	s.indicators = t.indicators
	s.healer = t.healer
	s.snapshot = snap
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if err := sink.AppendTick(rec); err != nil {
			s.log.Printf("tick sink month %d: %v", month, err)
		}
	}
	for _, ev := range t.events {
		ev["network"] = s.cfg.NetworkID
		s.events.Publish(ev)
	}
	s.events.Publish(protocol.Event{
		"type":        protocol.EventMonthCompleted,
		"network":     s.cfg.NetworkID,
		"month":       month,
		"digest":      snap.Digest,
		"entries":     len(t.entries),
		"duration_ms": time.Since(started).Milliseconds(),
	})

	s.narrate(rec)
	return &rec, nil
}

// sortActions restores the resolution order contract after injections:
// priority descending, submission sequence ascending.
func sortActions(actions []*queue.Pending) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		return actions[i].Seq < actions[j].Seq
	})
}

// externalRecords keeps only participant submissions for the journal; NPC,
// milestone and healing actions are re-derived on replay.
func externalRecords(actions []*queue.Pending) []ActionRecord {
	var out []ActionRecord
	for _, a := range actions {
		if a.Source != queue.SourceParticipant {
			continue
		}
		out = append(out, ActionRecord{
			ID:       a.ID,
			Actor:    a.Actor,
			Type:     a.Type,
			Priority: a.Priority,
			Seq:      a.Seq,
			Payload:  a.Raw,
		})
	}
	return out
}

// narrate hands the committed tick to the reasoning collaborator after
// commit, off the tick path. The response surfaces as events only; by the
// time it arrives the month is already final.
func (s *Session) narrate(rec TickRecord) {
	n := s.narrator
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(s.cfg.ReasoningTimeoutSeconds)*time.Second)
		defer cancel()

		resp, err := n.Narrate(ctx, reasoning.TickBrief{
			NetworkID: rec.NetworkID,
			Month:     rec.Month,
			Snapshot:  rec.Snapshot,
			Events:    rec.Events,
		})
		if err != nil {
			s.log.Printf("month %d: %v", rec.Month,
				&ExternalDependencyError{Op: "narrate", Err: err})
			return
		}
		ev := protocol.Event{
			"type":    protocol.EventNarrative,
			"network": rec.NetworkID,
			"month":   rec.Month,
			"summary": resp.Summary,
		}
		if len(resp.Events) > 0 {
			ev["events"] = resp.Events
		}
		if len(resp.Alerts) > 0 {
			ev["alerts"] = resp.Alerts
		}
		s.events.Publish(ev)
		if len(resp.Suggestions) > 0 {
			s.events.Publish(protocol.Event{
				"type":        protocol.EventAdvisory,
				"network":     rec.NetworkID,
				"month":       rec.Month,
				"suggestions": resp.Suggestions,
			})
		}
	}()
}
