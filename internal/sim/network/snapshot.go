package network

import (
	"sort"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/ledger"
	"tessera.estate/internal/sim/market"
)

// buildSnapshot projects the working state into an immutable market
// snapshot. Slices are sorted so two identical states serialize
// identically.
func (s *Session) buildSnapshot(book *ledger.Book, props map[string]*propertyState, parts map[string]*participantState, exit []exitEntry, month int, cond market.Condition, ind market.Indicators, health market.Health) *market.Snapshot {
	snap := &market.Snapshot{
		NetworkID:  s.cfg.NetworkID,
		Month:      month,
		Condition:  cond,
		Indicators: ind,
		Health:     health,
		Treasury:   book.Balance(s.cfg.FoundationID),
	}

	ids := make([]string, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := props[id]
		snap.Properties = append(snap.Properties, market.PropertyView{
			ID:          p.ID,
			Name:        p.Name,
			Status:      p.Status,
			TotalTokens: p.TotalTokens,
			Valuation:   p.Valuation,
			TokenPrice:  p.tokenPrice(),
			RentYield:   p.RentYieldBps,
			TenantID:    p.TenantID,
			OwnerID:     p.OwnerID,
			Arrears:     p.Arrears,
			FloatTokens: book.Holding(s.cfg.FoundationID, p.ID),
			LastDrift:   p.LastDriftBps,
			Discounted:  p.Discounted,
		})
	}

	pids := make([]string, 0, len(parts))
	for id := range parts {
		pids = append(pids, id)
	}
	sort.Strings(pids)
	for _, id := range pids {
		ps := parts[id]
		if ps.Archived {
			continue
		}
		pv := market.ParticipantView{
			ID:      ps.ID,
			Role:    ps.Role,
			Balance: book.Balance(ps.ID),
			NPC:     ps.NPC,
		}
		for _, propID := range ids {
			if n := book.Holding(ps.ID, propID); n > 0 {
				pv.Holdings = append(pv.Holdings, market.HoldingView{
					PropertyID: propID,
					Tokens:     n,
					ShareBps:   money.Ratio{Num: n, Den: props[propID].TotalTokens}.Bps(),
				})
			}
		}
		snap.Participants = append(snap.Participants, pv)
	}

	for _, e := range exit {
		snap.ExitQueue = append(snap.ExitQueue, market.ExitEntryView{
			Seller:     e.Seller,
			PropertyID: e.PropertyID,
			Tokens:     e.Tokens,
			SinceMonth: e.SinceMonth,
			AskPrice:   e.Ask,
		})
	}
	return snap
}

// tickCounters accumulate the per-tick inputs to the health metrics.
type tickCounters struct {
	rentDue       money.Cents
	rentCollected money.Cents
	trades        int
	tradeFailures int
}

// computeHealth derives the sensed health metrics from the post-trade
// working state.
func (s *Session) computeHealth(book *ledger.Book, props map[string]*propertyState, exit []exitEntry, ctr tickCounters) market.Health {
	var h market.Health
	h.ExitQueueLength = len(exit)

	var exitValue money.Cents
	for _, e := range exit {
		exitValue += e.Ask * money.Cents(e.Tokens)
	}
	treasury := book.Balance(s.cfg.FoundationID)
	if exitValue > 0 {
		h.LiquidityRatioBps = market.MeasuredBps(int64(treasury), int64(exitValue))
	} else {
		// No exits pending: liquidity is not under test.
		h.LiquidityRatioBps = 10_000
	}

	var occupiable, occupied int64
	var totalTokens, floatTokens int64
	for _, p := range props {
		switch p.Status {
		case market.StatusDraft, market.StatusArchived:
			continue
		}
		occupiable++
		if p.occupied() {
			occupied++
		}
		totalTokens += p.TotalTokens
		floatTokens += book.Holding(s.cfg.FoundationID, p.ID)
	}
	if occupiable > 0 {
		h.OccupancyBps = market.MeasuredBps(occupied, occupiable)
	} else {
		// Nothing on the market to occupy.
		h.OccupancyBps = 10_000
	}
	if totalTokens > 0 {
		h.FloatBps = market.MeasuredBps(floatTokens, totalTokens)
	} else {
		h.FloatBps = 10_000
	}

	if ctr.rentDue > 0 {
		h.RentCollectionBps = market.MeasuredBps(int64(ctr.rentCollected), int64(ctr.rentDue))
	} else {
		h.RentCollectionBps = 10_000
	}
	if ctr.trades > 0 {
		h.TradeFailureBps = money.Ratio{Num: int64(ctr.tradeFailures), Den: int64(ctr.trades)}.Bps()
	}
	return h
}
