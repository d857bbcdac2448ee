package network

import (
	"math/rand"
	"sort"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/npc"
	"tessera.estate/internal/sim/queue"
)

// npcStep lets every NPC and the foundation market maker decide against a
// mid-tick snapshot and injects their intents behind the frozen participant
// submissions. Per-NPC rngs are derived from (seed, month, npc id), so the
// whole step replays bit for bit.
func (s *Session) npcStep(t *tickState) {
	snap := s.buildSnapshot(t.book, t.props, t.parts, t.exit, t.month, t.condition, t.indicators, market.Health{})

	ids := make([]string, 0, len(t.parts))
	for id := range t.parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ps := t.parts[id]
		if !ps.NPC || ps.Archived || id == s.cfg.FoundationID {
			continue
		}
		rng := rand.New(rand.NewSource(int64(market.Hash3(s.cfg.Seed, t.month, market.HashID(id), 51))))
		for _, in := range npc.Decide(snap, snap.Participant(id), ps.Personality, rng) {
			t.inject(id, in.Type, in.Payload, in.Priority, queue.SourceNPC)
		}
	}

	maker := npc.MakerConfig{
		BidBudgetBps: s.cfg.MakerBidBps,
		MinFloatBps:  s.cfg.Healing.Thresholds.MinFloatBps,
	}
	for _, in := range npc.MakerDecide(snap, s.cfg.FoundationID, maker) {
		t.inject(s.cfg.FoundationID, in.Type, in.Payload, in.Priority, queue.SourceNPC)
	}
}

// healingStep senses health on the mid-tick state, runs the controller's
// five phases, and materializes its directives. Trade-failure rate is
// carried over from the last committed tick because this tick has not
// traded yet.
func (s *Session) healingStep(t *tickState) {
	health := s.computeHealth(t.book, t.props, t.exit, t.ctr)
	if prev := s.Snapshot(); prev != nil {
		health.TradeFailureBps = prev.Health.TradeFailureBps
	}
	snap := s.buildSnapshot(t.book, t.props, t.parts, t.exit, t.month, t.condition, t.indicators, health)

	out := t.healer.Run(snap, s.cfg.Seed, t.month)

	for _, b := range out.Breaches {
		t.event(protocol.Event{
			"type":      protocol.EventHealthAlert,
			"metric":    b.Metric,
			"value":     b.Value,
			"threshold": b.Threshold,
		})
	}
	for _, st := range out.Started {
		t.event(protocol.Event{
			"type":      "STRATEGY_STARTED",
			"strategy":  st.ID,
			"kind":      st.Kind,
			"metric":    st.TargetMetric,
			"category":  st.Category,
			"property":  st.PropertyID,
			"escalated": st.Escalated,
		})
	}
	for _, st := range out.Changed {
		t.event(protocol.Event{
			"type":     protocol.EventStrategyUpdate,
			"strategy": st.ID,
			"status":   st.Status,
			"kind":     st.Kind,
			"metric":   st.TargetMetric,
		})
	}
	for _, d := range out.Directives {
		s.applyDirective(t, d)
	}
}

// applyDirective turns one controller directive into foundation actions at
// healing priority or direct working-state adjustments.
func (s *Session) applyDirective(t *tickState, d healing.Directive) {
	t.event(protocol.Event{
		"type":     "STRATEGY_DIRECTIVE",
		"strategy": d.StrategyID,
		"kind":     d.Kind,
		"property": d.PropertyID,
		"tokens":   d.Tokens,
		"budget":   int64(d.Budget),
	})

	switch d.Kind {
	case healing.KindLiquidityFloorBids, healing.KindPartialExitProgram:
		// Floor bids: clear exit entries oldest-first inside the budget.
		budget := d.Budget
		for _, e := range t.exit {
			if e.Seller == s.cfg.FoundationID || e.Ask <= 0 {
				continue
			}
			tokens := e.Tokens
			if cost := e.Ask * money.Cents(tokens); cost > budget {
				tokens = int64(budget / e.Ask)
			}
			if tokens < 1 {
				break
			}
			t.inject(s.cfg.FoundationID, protocol.ActionBuy,
				&protocol.BuyPayload{PropertyID: e.PropertyID, Tokens: tokens},
				queue.PriorityHealing, queue.SourceHealing)
			budget -= e.Ask * money.Cents(tokens)
			if budget <= 0 {
				break
			}
		}

	case healing.KindBuyerSellerMatch:
		if d.PropertyID != "" && d.Tokens > 0 {
			t.inject(s.cfg.FoundationID, protocol.ActionBuy,
				&protocol.BuyPayload{PropertyID: d.PropertyID, Tokens: d.Tokens},
				queue.PriorityHealing, queue.SourceHealing)
		}

	case healing.KindVacancyIncentive:
		for _, id := range t.sortedPropIDs() {
			p := t.props[id]
			if d.PropertyID != "" && p.ID != d.PropertyID {
				continue
			}
			if p.Status == market.StatusAvailable && !p.Discounted {
				p.Discounted = true
				t.event(protocol.Event{
					"type":         "VACANCY_INCENTIVE",
					"property":     p.ID,
					"discount_bps": s.cfg.Healing.VacancyDiscountBps,
				})
			}
		}

	case healing.KindRentToOwnAccel:
		p := s.directiveTarget(t, d, func(p *propertyState) bool { return p.Arrears > 0 })
		if p == nil {
			return
		}
		switch p.Status {
		case market.StatusTenanted:
			if p.TenantID == "" {
				return
			}
			p.OwnerID = p.TenantID
			p.Status = market.StatusTenantBuyback
			p.BuybackLeft = s.cfg.BuybackMonths
			t.event(protocol.Event{
				"type":     "RENT_TO_OWN_STARTED",
				"property": p.ID,
				"tenant":   p.TenantID,
				"months":   p.BuybackLeft,
			})
		case market.StatusTenantBuyback:
			if p.BuybackLeft > 1 {
				p.BuybackLeft = (p.BuybackLeft + 1) / 2
				t.event(protocol.Event{
					"type":        "BUYBACK_ACCELERATED",
					"property":    p.ID,
					"months_left": p.BuybackLeft,
				})
			}
		}

	case healing.KindHomeownerOutreach:
		p := s.directiveTarget(t, d, func(p *propertyState) bool { return p.Arrears > 0 })
		if p == nil || p.OutreachOn {
			return
		}
		p.OutreachOn = true
		relief := p.Arrears / 2
		p.Arrears -= relief
		t.event(protocol.Event{
			"type":     "ARREARS_RELIEF",
			"property": p.ID,
			"relief":   int64(relief),
			"arrears":  int64(p.Arrears),
		})

	case healing.KindPropertySourcing:
		for _, id := range t.sortedPropIDs() {
			p := t.props[id]
			if p.Status != market.StatusDraft {
				continue
			}
			t.inject(s.cfg.FoundationID, protocol.ActionListProperty,
				&protocol.ListPropertyPayload{PropertyID: p.ID},
				queue.PriorityHealing, queue.SourceHealing)
			return
		}
		// Nothing in the pipeline to list; the strategy keeps verifying.
	}
}

// directiveTarget resolves a directive's property: the named one when set,
// otherwise the first matching property in sorted order.
func (s *Session) directiveTarget(t *tickState, d healing.Directive, match func(*propertyState) bool) *propertyState {
	if d.PropertyID != "" {
		return t.props[d.PropertyID]
	}
	for _, id := range t.sortedPropIDs() {
		if p := t.props[id]; match(p) {
			return p
		}
	}
	return nil
}

// adaptNPCs runs each NPC's self-correction against the committed month:
// realized return is drift plus yield over the portfolio, expected is the
// yield it was priced for.
func (s *Session) adaptNPCs(t *tickState, snap *market.Snapshot) {
	ids := make([]string, 0, len(t.parts))
	for id := range t.parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ps := t.parts[id]
		if !ps.NPC || ps.Tracker == nil {
			continue
		}
		pv := snap.Participant(id)
		if pv == nil || len(pv.Holdings) == 0 {
			continue
		}
		var wExpected, wRealized, tokens int64
		for _, h := range pv.Holdings {
			prop := snap.Property(h.PropertyID)
			if prop == nil {
				continue
			}
			wExpected += prop.RentYield * h.Tokens
			wRealized += (prop.RentYield + prop.LastDrift*12) * h.Tokens
			tokens += h.Tokens
		}
		if tokens == 0 {
			continue
		}
		ps.Tracker.Observe(wExpected/tokens, wRealized/tokens)
		ps.Personality = ps.Tracker.Adapt(ps.Personality)
	}
}
