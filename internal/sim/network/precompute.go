package network

import (
	"fmt"
	"sort"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/ledger"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/queue"
)

// tickState is the working copy one tick mutates. Nothing in it is shared
// until commit swaps it into the session.
type tickState struct {
	month      int
	book       *ledger.Book
	props      map[string]*propertyState
	parts      map[string]*participantState
	exit       []exitEntry
	healer     *healing.Controller
	condition  market.Condition
	indicators market.Indicators

	actions []*queue.Pending
	nextSeq uint64

	entries  []ledger.Entry
	events   []protocol.Event
	ctr      tickCounters
	entryNum int

	// resolveErr records a ledger apply failure inside a resolver; the
	// tick treats it as fatal after the action loop drains.
	resolveErr error
}

func (t *tickState) nextEntryID() string {
	t.entryNum++
	return fmt.Sprintf("L%04d-%04d", t.month, t.entryNum)
}

// commit seals and applies one entry to the working book and records it.
// An apply failure here is a resolution bug and aborts the tick.
func (t *tickState) commit(e ledger.Entry) error {
	e.ID = t.nextEntryID()
	e.Month = t.month
	t.book.Seal(&e)
	if err := t.book.Apply(&e); err != nil {
		return err
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *tickState) event(ev protocol.Event) {
	ev["month"] = t.month
	t.events = append(t.events, ev)
}

// inject appends a derived action (NPC, milestone, healing) behind the
// frozen participant submissions, preserving the deterministic order
// contract.
func (t *tickState) inject(actor, actionType string, payload interface{}, priority int, source string) {
	t.nextSeq++
	t.actions = append(t.actions, &queue.Pending{
		ID:       fmt.Sprintf("%s-%04d-%d", source, t.month, t.nextSeq),
		Actor:    actor,
		Type:     actionType,
		Payload:  payload,
		Priority: priority,
		Month:    t.month,
		Seq:      t.nextSeq,
		Source:   source,
	})
}

func (t *tickState) sortedPropIDs() []string {
	ids := make([]string, 0, len(t.props))
	for id := range t.props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// precompute runs the deterministic first phase of a tick: macro drift,
// condition transition, valuation drift, rent and dividends, and lease or
// buyback milestone advancement. Only ledger entries and working-state
// fields change; no queued action is consumed yet.
func (s *Session) precompute(t *tickState) error {
	seed := s.cfg.Seed

	t.indicators = t.indicators.Drift(s.cfg.IndicatorBands, seed, t.month)
	t.condition = market.NextCondition(
		s.cfg.ConditionTable, t.condition, t.indicators, s.cfg.MacroBands,
		market.Hash2(seed, t.month, 1),
	)

	for _, id := range t.sortedPropIDs() {
		p := t.props[id]
		if p.Status == market.StatusDraft || p.Status == market.StatusArchived {
			continue
		}
		drift := market.ValuationDriftBps(s.cfg.DriftTable, t.condition, seed, t.month, p.ID)
		p.LastDriftBps = drift
		p.Valuation += money.MulBps(p.Valuation, drift)
		if p.Valuation < money.Cents(p.TotalTokens) {
			// Token price floors at one cent.
			p.Valuation = money.Cents(p.TotalTokens)
		}
	}

	if err := s.accrueRent(t); err != nil {
		return err
	}
	s.advanceMilestones(t)
	return nil
}

// accrueRent collects one month's rent per occupied property, all or
// nothing against the payer's balance, and distributes the net of the
// service fee pro-rata to investor holders.
func (s *Session) accrueRent(t *tickState) error {
	for _, id := range t.sortedPropIDs() {
		p := t.props[id]
		if !p.occupied() || p.RentYieldBps <= 0 {
			continue
		}

		full := money.MonthlyFromAnnualBps(p.Valuation, p.RentYieldBps)
		payer := p.TenantID
		due := full
		if p.Status == market.StatusOwnerOccupied {
			// Resident owners owe only the investor-held share.
			payer = p.OwnerID
			investor := p.TotalTokens - t.book.Holding(p.OwnerID, p.ID)
			due = money.Cents(int64(full) * investor / p.TotalTokens)
		}
		if payer == "" || due <= 0 {
			continue
		}

		t.ctr.rentDue += due
		if t.book.Balance(payer) < due {
			p.Arrears += due
			t.event(protocol.Event{
				"type":     "RENT_MISSED",
				"property": p.ID,
				"payer":    payer,
				"due":      int64(due),
				"arrears":  int64(p.Arrears),
			})
			continue
		}

		if err := t.commit(ledger.Entry{
			Type:       ledger.EntryRent,
			From:       payer,
			To:         s.cfg.FoundationID,
			PropertyID: p.ID,
			Amount:     due,
		}); err != nil {
			return err
		}
		t.ctr.rentCollected += due
		if err := s.distribute(t, p, payer, due); err != nil {
			return err
		}
	}
	return nil
}

// distribute pays dividends from collected rent minus the service fee.
// Largest-remainder allocation keeps the payout sum exact; the fee and
// any unallocated remainder stay in the treasury.
func (s *Session) distribute(t *tickState, p *propertyState, payer string, collected money.Cents) error {
	fee := money.MulBps(collected, s.cfg.ServiceFeeBps)
	net := collected - fee
	if net <= 0 {
		return nil
	}

	holders := t.book.Holders(p.ID)
	recipients := holders[:0]
	weights := make([]int64, 0, len(holders))
	for _, h := range holders {
		if p.Status == market.StatusOwnerOccupied && h.Participant == p.OwnerID {
			// The resident owner's share of rent is the part they never paid.
			continue
		}
		recipients = append(recipients, h)
		weights = append(weights, h.Tokens)
	}
	shares := money.Allocate(net, weights)
	for i, h := range recipients {
		if shares[i] <= 0 || h.Participant == s.cfg.FoundationID {
			// The float's share just stays in the treasury.
			continue
		}
		if err := t.commit(ledger.Entry{
			Type:       ledger.EntryDividend,
			From:       s.cfg.FoundationID,
			To:         h.Participant,
			PropertyID: p.ID,
			Amount:     shares[i],
		}); err != nil {
			return err
		}
	}
	return nil
}

// advanceMilestones moves buyback schedules forward and lets vacant stock
// find tenants. Both are deterministic rolls from the seeded stream.
func (s *Session) advanceMilestones(t *tickState) {
	for _, id := range t.sortedPropIDs() {
		p := t.props[id]
		switch p.Status {
		case market.StatusTenantBuyback:
			if p.BuybackLeft <= 0 || p.OwnerID == "" {
				continue
			}
			settled := t.book.Holding(p.OwnerID, p.ID) -
				reservedTokens(t.exit, p.OwnerID, p.ID)
			investor := p.TotalTokens - settled
			sched := investor / int64(p.BuybackLeft)
			if sched < 1 && investor > 0 {
				sched = investor
			}
			if sched > 0 {
				t.inject(p.OwnerID, protocol.ActionBuy,
					&protocol.BuyPayload{PropertyID: p.ID, Tokens: sched},
					queue.PriorityMilestone, queue.SourceSystem)
			}
		case market.StatusAvailable:
			// Vacant stock gets tenanted with a modest monthly chance,
			// doubled while a vacancy incentive discounts it.
			denom := uint64(4)
			if p.Discounted {
				denom = 2
			}
			roll := market.Hash3(s.cfg.Seed, t.month, market.HashID(p.ID), 41)
			if roll%denom != 0 {
				continue
			}
			tenant := s.pickTenant(t, p)
			if tenant == "" {
				continue
			}
			p.TenantID = tenant
			p.Status = market.StatusTenanted
			p.Discounted = false
			t.event(protocol.Event{
				"type":     "LEASE_STARTED",
				"property": p.ID,
				"tenant":   tenant,
			})
		}
	}
}

// pickTenant finds the first unhoused renter-side participant in sorted
// order; deterministic by construction.
func (s *Session) pickTenant(t *tickState, p *propertyState) string {
	housed := map[string]bool{}
	for _, prop := range t.props {
		if prop.TenantID != "" {
			housed[prop.TenantID] = true
		}
	}
	ids := make([]string, 0, len(t.parts))
	for id := range t.parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ps := t.parts[id]
		if ps.Archived || housed[id] {
			continue
		}
		if ps.Role == market.RoleRenter || ps.Role == market.RoleTenant {
			return id
		}
	}
	return ""
}
