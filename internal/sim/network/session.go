// Package network owns one simulated network end to end: the session
// object holding ledger, queue and working state, the batch processor
// that resolves a month, and the clock that schedules it. All mutation
// funnels through the tick; everything else reads immutable snapshots.
package network

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/reasoning"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/ledger"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/npc"
	"tessera.estate/internal/sim/queue"
)

// TickRecord is the durable unit of one committed tick: the externally
// submitted actions that went in, the entries and events that came out,
// and the resulting snapshot digest. The journal and the store both
// consume it; replay reconstructs state from the sequence.
type TickRecord struct {
	NetworkID string           `json:"network_id"`
	Month     int              `json:"month"`
	Digest    string           `json:"digest"`
	Actions   []ActionRecord   `json:"actions,omitempty"`
	Entries   []ledger.Entry   `json:"entries,omitempty"`
	Events    []protocol.Event `json:"events,omitempty"`
	Snapshot  *market.Snapshot `json:"snapshot"`
}

// ActionRecord preserves an externally submitted action for replay. NPC
// and healing actions are re-derived, not recorded.
type ActionRecord struct {
	ID       string          `json:"id"`
	Actor    string          `json:"actor"`
	Type     string          `json:"type"`
	Priority int             `json:"priority"`
	Seq      uint64          `json:"seq"`
	Payload  json.RawMessage `json:"payload"`
}

// TickSink receives committed tick records. Sink failures are logged and
// do not fail the tick; the in-memory ledger remains authoritative.
type TickSink interface {
	AppendTick(rec TickRecord) error
}

// EventSink receives lifecycle and narrative events after commit.
type EventSink interface {
	Publish(ev protocol.Event)
}

type noopEvents struct{}

func (noopEvents) Publish(protocol.Event) {}

// Session is one network: the explicit context object owning ledger,
// queue, working state and healing controller. Multiple sessions coexist
// in one process without shared globals.
type Session struct {
	cfg Config
	log *log.Logger

	mu         sync.RWMutex
	month      int
	book       *ledger.Book
	entries    []ledger.Entry
	props      map[string]*propertyState
	parts      map[string]*participantState
	exit       []exitEntry
	condition  market.Condition
	indicators market.Indicators
	healer     *healing.Controller
	snapshot   *market.Snapshot
	totals     map[string]int64

	queue  *queue.Queue
	dedupe *queue.Dedupe

	processing atomic.Bool
	inCutoff   atomic.Bool

	narrator reasoning.Engine
	sinks    []TickSink
	events   EventSink

	// failNextTick injects a consistency fault for tests exercising the
	// abort path.
	failNextTick bool
}

// NewSession builds a network at genesis: month 0, all balances and token
// issues written as genesis ledger entries.
func NewSession(cfg Config, logger *log.Logger) (*Session, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("network %s: %w", cfg.NetworkID, err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[network] ", log.LstdFlags)
	}

	s := &Session{
		cfg:        cfg,
		log:        logger,
		book:       ledger.NewBook(),
		props:      map[string]*propertyState{},
		parts:      map[string]*participantState{},
		condition:  cfg.InitialCondition,
		indicators: cfg.InitialIndicators,
		healer:     healing.NewController(cfg.Healing),
		totals:     map[string]int64{},
		queue:      queue.New(),
		dedupe:     queue.NewDedupe(),
		events:     noopEvents{},
	}

	for _, gp := range cfg.Genesis.Participants {
		ps := &participantState{
			ID:          gp.ID,
			Name:        gp.Name,
			Role:        gp.Role,
			NPC:         gp.NPC,
			Personality: gp.Personality,
		}
		if gp.NPC {
			ps.Tracker = &npc.Tracker{}
		}
		s.parts[gp.ID] = ps
		if gp.Balance > 0 {
			e := ledger.Entry{
				ID:     fmt.Sprintf("G-DEP-%s", gp.ID),
				Month:  0,
				Type:   ledger.EntryGenesisDeposit,
				To:     gp.ID,
				Amount: gp.Balance,
			}
			s.book.Seal(&e)
			if err := s.book.Apply(&e); err != nil {
				return nil, fmt.Errorf("genesis deposit %s: %w", gp.ID, err)
			}
			s.entries = append(s.entries, e)
		}
	}

	for _, gpr := range cfg.Genesis.Properties {
		status := gpr.Status
		if status == "" {
			status = market.StatusAvailable
		}
		s.props[gpr.ID] = &propertyState{
			ID:           gpr.ID,
			Name:         gpr.Name,
			TotalTokens:  gpr.TotalTokens,
			Valuation:    gpr.Valuation,
			RentYieldBps: gpr.RentYieldBps,
			Status:       status,
			OwnerID:      gpr.OwnerID,
			TenantID:     gpr.TenantID,
		}
		s.totals[gpr.ID] = gpr.TotalTokens

		issue := func(to string, tokens int64, tag string) error {
			if tokens <= 0 {
				return nil
			}
			e := ledger.Entry{
				ID:         fmt.Sprintf("G-ISS-%s-%s", gpr.ID, tag),
				Month:      0,
				Type:       ledger.EntryGenesisIssue,
				To:         to,
				PropertyID: gpr.ID,
				Tokens:     tokens,
			}
			s.book.Seal(&e)
			if err := s.book.Apply(&e); err != nil {
				return fmt.Errorf("genesis issue %s to %s: %w", gpr.ID, to, err)
			}
			s.entries = append(s.entries, e)
			return nil
		}
		if err := issue(gpr.OwnerID, gpr.OwnerTokens, "owner"); err != nil {
			return nil, err
		}
		if err := issue(cfg.FoundationID, gpr.TotalTokens-gpr.OwnerTokens, "float"); err != nil {
			return nil, err
		}
	}

	if err := s.book.Audit(s.totals); err != nil {
		return nil, fmt.Errorf("genesis audit: %w", err)
	}

	s.snapshot = s.buildSnapshot(s.book, s.props, s.parts, s.exit, 0, s.condition, s.indicators, market.Health{})
	return s, nil
}

// SetNarrator installs the reasoning collaborator. Nil keeps narrative off.
func (s *Session) SetNarrator(n reasoning.Engine) { s.narrator = n }

// AddSink attaches a tick sink (store, journal).
func (s *Session) AddSink(sink TickSink) {
	if sink != nil {
		s.sinks = append(s.sinks, sink)
	}
}

// SetEvents installs the lifecycle event sink.
func (s *Session) SetEvents(sink EventSink) {
	if sink != nil {
		s.events = sink
	}
}

func (s *Session) ID() string { return s.cfg.NetworkID }

// Month reports the last completed month.
func (s *Session) Month() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.month
}

// Snapshot returns the latest published market state. Immutable; share
// freely.
func (s *Session) Snapshot() *market.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Condition reports the current market condition.
func (s *Session) Condition() market.Condition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.condition
}

// PendingCount reports queued actions for the next month.
func (s *Session) PendingCount() int {
	return s.queue.PendingCount(s.Month() + 1)
}

// Entries returns ledger entries, optionally filtered by participant and
// property.
func (s *Session) Entries(participant, property string) []ledger.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if participant != "" && e.From != participant && e.To != participant {
			continue
		}
		if property != "" && e.PropertyID != property {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HealingState is the operator view of the self-healing controller.
type HealingState struct {
	Strategies []*healing.Strategy `json:"strategies"`
	Weights    map[string]float64  `json:"weights"`
}

// Healing reports active and recent strategies with the learned weights.
func (s *Session) Healing() HealingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HealingState{
		Strategies: s.healer.Strategies(),
		Weights:    s.healer.Weights(),
	}
}

// targetMonth assigns the month a submission resolves in: the next tick,
// or the one after when the next tick is inside its cutoff window or
// already processing.
func (s *Session) targetMonth() int {
	m := s.Month() + 1
	if s.processing.Load() || s.inCutoff.Load() {
		m++
	}
	return m
}

// Submit validates an action optimistically against current state and
// queues it. Authoritative validation happens again at resolution; state
// may shift between now and the tick.
func (s *Session) Submit(req protocol.SubmitRequest) protocol.SubmitReceipt {
	actionID := req.Action.ID
	if actionID == "" {
		actionID = uuid.NewString()
	}

	fail := func(code, msg string) protocol.SubmitReceipt {
		return protocol.SubmitReceipt{ActionID: actionID, Accepted: false, Code: code, Message: msg}
	}

	payload, err := protocol.DecodePayload(req.Action.Type, req.Action.Payload)
	if err != nil {
		return fail(protocol.ErrBadRequest, err.Error())
	}

	s.mu.RLock()
	actor := s.parts[req.ActorID]
	var verr *ValidationError
	if actor == nil || actor.Archived {
		verr = reject(protocol.ErrUnknownActor, "unknown actor %s", req.ActorID)
	} else {
		verr = s.precheck(req.ActorID, req.Action.Type, payload)
	}
	s.mu.RUnlock()
	if verr != nil {
		return fail(verr.Code, verr.Reason)
	}

	priority := req.Action.Priority
	if priority > queue.PriorityParticipantMax {
		priority = queue.PriorityParticipantMax
	}
	if priority < 0 {
		priority = 0
	}

	month := s.targetMonth()
	receipt := protocol.SubmitReceipt{ActionID: actionID, Accepted: true, QueuedForMonth: month}
	if stored, dup := s.dedupe.CheckOrRemember(req.ActorID, actionID, s.Month(), receipt); dup {
		return stored
	}

	s.queue.Add(&queue.Pending{
		ID:       actionID,
		Actor:    req.ActorID,
		Type:     req.Action.Type,
		Payload:  payload,
		Raw:      req.Action.Payload,
		Priority: priority,
		Month:    month,
		Source:   queue.SourceParticipant,
	})
	return receipt
}

// SubmitRecorded queues a journalled action for the next tick, skipping
// the optimistic precheck and dedupe. Replay feeds actions through here:
// the precheck compares against whatever interim state the replayer has
// reached, which is not the state the action was accepted against, so a
// recorded action always enters the queue and resolution judges it the
// same way the live tick did.
func (s *Session) SubmitRecorded(rec ActionRecord) error {
	payload, err := protocol.DecodePayload(rec.Type, rec.Payload)
	if err != nil {
		return fmt.Errorf("recorded action %s: %w", rec.ID, err)
	}
	priority := rec.Priority
	if priority > queue.PriorityParticipantMax {
		priority = queue.PriorityParticipantMax
	}
	if priority < 0 {
		priority = 0
	}
	s.queue.Add(&queue.Pending{
		ID:       rec.ID,
		Actor:    rec.Actor,
		Type:     rec.Type,
		Payload:  payload,
		Raw:      rec.Payload,
		Priority: priority,
		Month:    s.Month() + 1,
		Source:   queue.SourceParticipant,
	})
	return nil
}

// precheck is the optimistic submission-time validation. Callers hold the
// read lock.
func (s *Session) precheck(actor, actionType string, payload interface{}) *ValidationError {
	switch p := payload.(type) {
	case *protocol.BuyPayload:
		prop := s.props[p.PropertyID]
		if prop == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if p.Tokens <= 0 {
			return reject(protocol.ErrBadRequest, "tokens must be positive")
		}
		cost := prop.tokenPrice() * money.Cents(p.Tokens)
		if s.book.Balance(actor) < cost {
			return reject(protocol.ErrInsufficientFunds, "balance %s below estimated cost %s", s.book.Balance(actor), cost)
		}
	case *protocol.SellPayload:
		prop := s.props[p.PropertyID]
		if prop == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if p.Tokens <= 0 {
			return reject(protocol.ErrBadRequest, "tokens must be positive")
		}
		free := s.book.Holding(actor, p.PropertyID) - reservedTokens(s.exit, actor, p.PropertyID)
		if free < p.Tokens {
			return reject(protocol.ErrInsufficientHoldings, "holds %d unreserved of %d requested", free, p.Tokens)
		}
	case *protocol.PayRentPayload:
		prop := s.props[p.PropertyID]
		if prop == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if prop.TenantID != actor {
			return reject(protocol.ErrNotTenant, "%s is not the tenant of %s", actor, p.PropertyID)
		}
	case *protocol.VotePayload:
		if s.props[p.PropertyID] == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
	case *protocol.CompleteServicePayload:
		if s.props[p.PropertyID] == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if s.parts[actor] == nil || s.parts[actor].Role != market.RoleServiceProvider {
			return reject(protocol.ErrNoPermission, "%s is not a service provider", actor)
		}
	case *protocol.AccessEquityPayload:
		prop := s.props[p.PropertyID]
		if prop == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if prop.OwnerID != actor {
			return reject(protocol.ErrNoPermission, "%s does not own %s", actor, p.PropertyID)
		}
	case *protocol.ListPropertyPayload:
		prop := s.props[p.PropertyID]
		if prop == nil {
			return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
		}
		if prop.Status != market.StatusDraft {
			return reject(protocol.ErrPropertyUnavailable, "property %s is not a draft", p.PropertyID)
		}
		if prop.OwnerID != actor && actor != s.cfg.FoundationID {
			return reject(protocol.ErrNoPermission, "%s cannot list %s", actor, p.PropertyID)
		}
	}
	return nil
}
