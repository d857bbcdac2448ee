package network

import (
	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/npc"
)

// propertyState is the mutable working record for one property. Physical
// attributes are fixed at genesis; everything else is revised only inside
// a tick, on the working copy.
type propertyState struct {
	ID           string
	Name         string
	TotalTokens  int64
	Valuation    money.Cents
	RentYieldBps int64
	Status       string
	OwnerID      string
	TenantID     string
	Arrears      money.Cents
	BuybackLeft  int
	LastDriftBps int64
	Discounted   bool
	OutreachOn   bool
}

func (p *propertyState) tokenPrice() money.Cents {
	if p.TotalTokens <= 0 {
		return 0
	}
	return p.Valuation / money.Cents(p.TotalTokens)
}

func (p *propertyState) occupied() bool {
	switch p.Status {
	case "tenanted", "owner_occupied", "tenant_buyback":
		return true
	}
	return false
}

func (p *propertyState) clone() *propertyState {
	cp := *p
	return &cp
}

// participantState holds identity and, for NPCs, the adaptive personality.
// Balances and holdings live in the ledger book only.
type participantState struct {
	ID          string
	Name        string
	Role        string
	NPC         bool
	Archived    bool
	Personality npc.Personality
	Tracker     *npc.Tracker
}

func (p *participantState) clone() *participantState {
	cp := *p
	if p.Tracker != nil {
		t := *p.Tracker
		cp.Tracker = &t
	}
	return &cp
}

// exitEntry is one unmatched sell waiting for a buyer. Tokens remain with
// the seller until matched; the entry only reserves them.
type exitEntry struct {
	Seller     string
	PropertyID string
	Tokens     int64
	SinceMonth int
	Ask        money.Cents
}

func cloneProps(src map[string]*propertyState) map[string]*propertyState {
	out := make(map[string]*propertyState, len(src))
	for id, p := range src {
		out[id] = p.clone()
	}
	return out
}

func cloneParts(src map[string]*participantState) map[string]*participantState {
	out := make(map[string]*participantState, len(src))
	for id, p := range src {
		out[id] = p.clone()
	}
	return out
}

func cloneExit(src []exitEntry) []exitEntry {
	out := make([]exitEntry, len(src))
	copy(out, src)
	return out
}

// reservedTokens sums a seller's tokens already waiting in the exit queue
// for one property, so a second sell cannot double-spend them.
func reservedTokens(exit []exitEntry, seller, propertyID string) int64 {
	var sum int64
	for _, e := range exit {
		if e.Seller == seller && e.PropertyID == propertyID {
			sum += e.Tokens
		}
	}
	return sum
}
