package ledger

import (
	"errors"
	"fmt"
	"testing"
)

const prop = "karratha-03"

func seedBook(t *testing.T) (*Book, []Entry) {
	t.Helper()
	b := NewBook()
	var entries []Entry
	add := func(e Entry) {
		t.Helper()
		b.Seal(&e)
		if err := b.Apply(&e); err != nil {
			t.Fatalf("apply %s: %v", e.Type, err)
		}
		entries = append(entries, e)
	}
	add(Entry{ID: "g1", Month: 0, Type: EntryGenesisDeposit, To: "foundation", Amount: 100_000_00})
	add(Entry{ID: "g2", Month: 0, Type: EntryGenesisDeposit, To: "alice", Amount: 20_000_00})
	add(Entry{ID: "g3", Month: 0, Type: EntryGenesisIssue, To: "foundation", PropertyID: prop, Tokens: 100_000})
	return b, entries
}

func TestGenesisDepositNeedsNoPayer(t *testing.T) {
	b := NewBook()
	e := Entry{ID: "g1", Month: 0, Type: EntryGenesisDeposit, To: "foundation", Amount: 10_000_000_00}
	b.Seal(&e)
	if err := b.Apply(&e); err != nil {
		t.Fatalf("deposit into an empty book: %v", err)
	}
	if got := b.Balance("foundation"); got != 10_000_000_00 {
		t.Fatalf("foundation balance = %d, want 1000000000", got)
	}

	// The payer guard still applies to ordinary cash movers.
	rent := Entry{ID: "r1", Month: 1, Type: EntryRent, From: "nobody", To: "foundation",
		PropertyID: prop, Amount: 1_00}
	b.Seal(&rent)
	if err := b.Apply(&rent); err == nil {
		t.Fatalf("rent from an unfunded payer should fail")
	}
}

func TestTradeMovesTokensAndCash(t *testing.T) {
	b, _ := seedBook(t)

	// Alice buys 10,000 of 100,000 tokens at $1.00 each.
	e := Entry{ID: "t1", Month: 1, Type: EntryTrade, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 10_000_00, Tokens: 10_000}
	b.Seal(&e)
	if err := b.Apply(&e); err != nil {
		t.Fatalf("apply trade: %v", err)
	}

	if got := b.Holding("alice", prop); got != 10_000 {
		t.Fatalf("alice holdings = %d, want 10000", got)
	}
	if got := b.Balance("alice"); got != 10_000_00 {
		t.Fatalf("alice balance = %d, want 1000000", got)
	}
	if got := b.Balance("foundation"); got != 110_000_00 {
		t.Fatalf("foundation balance = %d, want 11000000", got)
	}
	if got := b.HeldTotal(prop); got != 100_000 {
		t.Fatalf("held total = %d, want 100000", got)
	}
}

func TestApplyGuardsHoldingsAndFunds(t *testing.T) {
	b, _ := seedBook(t)

	over := Entry{ID: "t2", Month: 1, Type: EntryTrade, From: "alice", To: "foundation",
		PropertyID: prop, Amount: 5_000_00, Tokens: 5_000}
	b.Seal(&over)
	if err := b.Apply(&over); err == nil {
		t.Fatalf("selling unheld tokens should fail")
	}
	if b.Holding("alice", prop) != 0 || b.Balance("alice") != 20_000_00 {
		t.Fatalf("failed apply mutated the book")
	}

	broke := Entry{ID: "t3", Month: 1, Type: EntryTrade, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 50_000_00, Tokens: 50_000}
	b.Seal(&broke)
	if err := b.Apply(&broke); err == nil {
		t.Fatalf("buying beyond balance should fail")
	}
}

func TestReplayMatchesLive(t *testing.T) {
	b, entries := seedBook(t)
	trade := Entry{ID: "t1", Month: 1, Type: EntryTrade, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 10_000_00, Tokens: 10_000}
	b.Seal(&trade)
	if err := b.Apply(&trade); err != nil {
		t.Fatalf("apply: %v", err)
	}
	entries = append(entries, trade)

	div := Entry{ID: "d1", Month: 2, Type: EntryDividend, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 50_00}
	b.Seal(&div)
	if err := b.Apply(&div); err != nil {
		t.Fatalf("apply dividend: %v", err)
	}
	entries = append(entries, div)

	rb, err := Replay(entries, map[string]int64{prop: 100_000})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, p := range b.Participants() {
		if rb.Balance(p) != b.Balance(p) {
			t.Fatalf("replayed balance for %s = %d, live %d", p, rb.Balance(p), b.Balance(p))
		}
		if rb.Holding(p, prop) != b.Holding(p, prop) {
			t.Fatalf("replayed holding for %s diverges", p)
		}
	}
}

func TestReplayDetectsTampering(t *testing.T) {
	b, entries := seedBook(t)
	trade := Entry{ID: "t1", Month: 1, Type: EntryTrade, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 10_000_00, Tokens: 10_000}
	b.Seal(&trade)
	if err := b.Apply(&trade); err != nil {
		t.Fatalf("apply: %v", err)
	}
	entries = append(entries, trade)

	tampered := make([]Entry, len(entries))
	copy(tampered, entries)
	tampered[len(tampered)-1].Amount = 1_00
	if _, err := Replay(tampered, map[string]int64{prop: 100_000}); err == nil {
		t.Fatalf("tampered amount should break the hash chain")
	}
}

func TestAuditConservationAndNegativity(t *testing.T) {
	b, _ := seedBook(t)
	if err := b.Audit(map[string]int64{prop: 100_000}); err != nil {
		t.Fatalf("audit clean book: %v", err)
	}

	if err := b.Audit(map[string]int64{prop: 99_999}); err == nil {
		t.Fatalf("audit should catch a conservation mismatch")
	} else {
		var ce *ConsistencyError
		if !errors.As(err, &ce) || ce.Kind != "conservation" {
			t.Fatalf("wrong error: %v", err)
		}
	}

	b.credit("alice", -30_000_00)
	if err := b.Audit(map[string]int64{prop: 100_000}); err == nil {
		t.Fatalf("audit should catch a negative balance")
	}
}

func TestCloneIsolation(t *testing.T) {
	b, _ := seedBook(t)
	cl := b.Clone()
	e := Entry{ID: "t1", Month: 1, Type: EntryTrade, From: "foundation", To: "alice",
		PropertyID: prop, Amount: 10_000_00, Tokens: 10_000}
	cl.Seal(&e)
	if err := cl.Apply(&e); err != nil {
		t.Fatalf("apply on clone: %v", err)
	}
	if b.Holding("alice", prop) != 0 {
		t.Fatalf("clone mutation leaked into the original")
	}
	if b.Balance("alice") != 20_000_00 {
		t.Fatalf("clone mutation leaked into balances")
	}
}

func TestHoldersDeterministicOrder(t *testing.T) {
	b := NewBook()
	for i, p := range []string{"zoe", "alice", "mike"} {
		e := Entry{ID: fmt.Sprint("g", i), Month: 0, Type: EntryGenesisIssue, To: p,
			PropertyID: prop, Tokens: int64(10 * (i + 1))}
		b.Seal(&e)
		if err := b.Apply(&e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	hs := b.Holders(prop)
	if len(hs) != 3 || hs[0].Participant != "alice" || hs[1].Participant != "mike" || hs[2].Participant != "zoe" {
		t.Fatalf("holders not sorted: %+v", hs)
	}
}

