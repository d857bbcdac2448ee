package ledger

import (
	"fmt"
	"sort"

	"tessera.estate/internal/money"
)

type pairKey struct {
	Participant string
	PropertyID  string
}

// Book is the in-memory projection of the entry sequence: cash balances,
// token holdings, and per-pair chain heads. It is owned by a single
// goroutine; ticks work on a Clone and swap it in on commit.
type Book struct {
	balances map[string]money.Cents
	holdings map[string]map[string]int64
	heads    map[pairKey]string
}

func NewBook() *Book {
	return &Book{
		balances: map[string]money.Cents{},
		holdings: map[string]map[string]int64{},
		heads:    map[pairKey]string{},
	}
}

func (b *Book) Clone() *Book {
	nb := &Book{
		balances: make(map[string]money.Cents, len(b.balances)),
		holdings: make(map[string]map[string]int64, len(b.holdings)),
		heads:    make(map[pairKey]string, len(b.heads)),
	}
	for k, v := range b.balances {
		nb.balances[k] = v
	}
	for p, hm := range b.holdings {
		cp := make(map[string]int64, len(hm))
		for prop, n := range hm {
			cp[prop] = n
		}
		nb.holdings[p] = cp
	}
	for k, v := range b.heads {
		nb.heads[k] = v
	}
	return nb
}

func (b *Book) Balance(participant string) money.Cents {
	return b.balances[participant]
}

func (b *Book) Holding(participant, propertyID string) int64 {
	return b.holdings[participant][propertyID]
}

// Seal computes PrevHash and Hash for e against the current chain heads.
// Call immediately before Apply; the pair head the entry extends is the
// chain participant's.
func (b *Book) Seal(e *Entry) {
	key := pairKey{Participant: e.chainParticipant(), PropertyID: e.PropertyID}
	e.PrevHash = b.heads[key]
	e.Hash = e.ComputeHash()
}

// Apply moves cash and tokens per the entry type and advances chain heads
// for both sides. Entries must have been validated upstream; a failed
// guard here means a resolution bug, so the book is left untouched and the
// caller treats the error as fatal to the tick.
func (b *Book) Apply(e *Entry) error {
	if e.Hash == "" {
		return fmt.Errorf("apply %s: unsealed entry", e.Type)
	}
	if e.movesTokens() && e.Type != EntryGenesisIssue {
		if got := b.Holding(e.From, e.PropertyID); got < e.Tokens {
			return fmt.Errorf("apply %s %s: %s holds %d/%d tokens of %s",
				e.Type, e.ID, e.From, got, e.Tokens, e.PropertyID)
		}
	}
	// Genesis deposits mint cash into the network from outside; there is
	// no payer to check.
	if e.movesCash() && e.Type != EntryGenesisDeposit {
		payer := e.From
		if e.movesTokens() {
			payer = e.To
		}
		if bal := b.Balance(payer); bal < e.Amount {
			return fmt.Errorf("apply %s %s: %s balance %d below %d",
				e.Type, e.ID, payer, bal, e.Amount)
		}
	}

	switch {
	case e.Type == EntryGenesisDeposit:
		b.credit(e.To, e.Amount)
	case e.Type == EntryGenesisIssue:
		b.addHolding(e.To, e.PropertyID, e.Tokens)
	case e.movesTokens():
		b.addHolding(e.From, e.PropertyID, -e.Tokens)
		b.addHolding(e.To, e.PropertyID, e.Tokens)
		if e.Amount != 0 {
			b.credit(e.To, -e.Amount)
			b.credit(e.From, e.Amount)
		}
	case e.movesCash():
		b.credit(e.From, -e.Amount)
		b.credit(e.To, e.Amount)
	}

	if e.From != "" {
		b.heads[pairKey{Participant: e.From, PropertyID: e.PropertyID}] = e.Hash
	}
	if e.To != "" && e.To != e.From {
		b.heads[pairKey{Participant: e.To, PropertyID: e.PropertyID}] = e.Hash
	}
	return nil
}

func (b *Book) credit(participant string, delta money.Cents) {
	b.balances[participant] += delta
}

func (b *Book) addHolding(participant, propertyID string, delta int64) {
	hm := b.holdings[participant]
	if hm == nil {
		hm = map[string]int64{}
		b.holdings[participant] = hm
	}
	hm[propertyID] += delta
	if hm[propertyID] == 0 {
		delete(hm, propertyID)
	}
}

// Participants returns every participant with a balance or holding, sorted.
func (b *Book) Participants() []string {
	seen := map[string]struct{}{}
	for p := range b.balances {
		seen[p] = struct{}{}
	}
	for p := range b.holdings {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Holder is one participant's position in a property.
type Holder struct {
	Participant string
	Tokens      int64
}

// Holders returns the non-zero positions in a property, sorted by
// participant for deterministic distribution order.
func (b *Book) Holders(propertyID string) []Holder {
	out := []Holder{}
	for p, hm := range b.holdings {
		if n := hm[propertyID]; n > 0 {
			out = append(out, Holder{Participant: p, Tokens: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}

// HeldTotal sums all holdings of a property.
func (b *Book) HeldTotal(propertyID string) int64 {
	var sum int64
	for _, hm := range b.holdings {
		sum += hm[propertyID]
	}
	return sum
}

// TokenizedShare is the fraction of a property not held by its resident
// owner, the quantity bounded by the owner-occupier rule.
func (b *Book) TokenizedShare(propertyID, ownerID string, totalTokens int64) money.Ratio {
	return money.Ratio{Num: totalTokens - b.Holding(ownerID, propertyID), Den: totalTokens}
}
