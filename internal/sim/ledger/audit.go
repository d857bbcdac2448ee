package ledger

import "fmt"

// ConsistencyError means the book violates a conservation invariant.
// It is fatal to the tick that produced it: the working copy is discarded
// and nothing commits.
type ConsistencyError struct {
	PropertyID  string
	Participant string
	Got         int64
	Want        int64
	Kind        string
}

func (e *ConsistencyError) Error() string {
	switch e.Kind {
	case "conservation":
		return fmt.Sprintf("consistency: property %s holds %d tokens, issued %d", e.PropertyID, e.Got, e.Want)
	case "negative_balance":
		return fmt.Sprintf("consistency: participant %s balance %d below zero", e.Participant, e.Got)
	default:
		return fmt.Sprintf("consistency: %s", e.Kind)
	}
}

// Audit re-derives the conservation invariants: every property's holdings
// sum to its issued total, and no balance is negative. totals maps
// property id to total_tokens_issued.
func (b *Book) Audit(totals map[string]int64) error {
	for prop, want := range totals {
		if got := b.HeldTotal(prop); got != want {
			return &ConsistencyError{Kind: "conservation", PropertyID: prop, Got: got, Want: want}
		}
	}
	for _, p := range b.Participants() {
		if bal := b.Balance(p); bal < 0 {
			return &ConsistencyError{Kind: "negative_balance", Participant: p, Got: int64(bal)}
		}
		for prop, n := range b.holdings[p] {
			if n < 0 {
				return &ConsistencyError{Kind: "conservation", PropertyID: prop, Participant: p, Got: n}
			}
		}
	}
	return nil
}
