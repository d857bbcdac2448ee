package npc

import (
	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/market"
)

// MakerConfig sizes the foundation's two-sided liquidity. Bids clear the
// oldest exit-queue entries within a treasury-proportional budget; asks
// replenish the tradeable float, priced at a spread above mid by the
// resolution layer.
type MakerConfig struct {
	BidBudgetBps int64
	MinFloatBps  int64
}

// MakerDecide is the market-maker variant: instead of a personality it
// reads treasury reserve and exit-queue depth from the snapshot.
func MakerDecide(snap *market.Snapshot, foundationID string, cfg MakerConfig) []Intent {
	if cfg.BidBudgetBps <= 0 {
		cfg.BidBudgetBps = 1000
	}
	if cfg.MinFloatBps <= 0 {
		cfg.MinFloatBps = 500
	}
	var out []Intent

	// Bid side: buy the oldest exit entries, oldest first, until the
	// budget runs out. The snapshot's exit queue is already in match
	// order.
	budget := money.MulBps(snap.Treasury, cfg.BidBudgetBps)
	for _, e := range snap.ExitQueue {
		if e.Seller == foundationID || e.AskPrice <= 0 {
			continue
		}
		cost := e.AskPrice * money.Cents(e.Tokens)
		tokens := e.Tokens
		if cost > budget {
			tokens = int64(budget / e.AskPrice)
			cost = e.AskPrice * money.Cents(tokens)
		}
		if tokens < 1 {
			break
		}
		out = append(out, Intent{
			Type:     protocol.ActionBuy,
			Payload:  &protocol.BuyPayload{PropertyID: e.PropertyID, Tokens: tokens},
			Priority: tradePriority,
		})
		budget -= cost
		if budget <= 0 {
			break
		}
	}

	// Ask side: keep a standing spread-priced offer in every tradeable
	// property that has no asks on the book, sized against the float so
	// the book stays two-sided without draining the reserve.
	found := snap.Participant(foundationID)
	if found == nil {
		return out
	}
	asked := map[string]bool{}
	for _, e := range snap.ExitQueue {
		if e.Seller == foundationID {
			asked[e.PropertyID] = true
		}
	}
	for _, h := range found.Holdings {
		prop := snap.Property(h.PropertyID)
		if prop == nil || !tradeable(prop.Status) || prop.TotalTokens <= 0 || asked[prop.ID] {
			continue
		}
		ask := h.Tokens / 4
		if min := prop.TotalTokens * cfg.MinFloatBps / 10_000; ask > min && min > 0 {
			ask = min
		}
		if ask < 1 {
			continue
		}
		out = append(out, Intent{
			Type:     protocol.ActionSell,
			Payload:  &protocol.SellPayload{PropertyID: h.PropertyID, Tokens: ask},
			Priority: tradePriority,
		})
	}
	return out
}
