package ledger

import "fmt"

// Replay rebuilds a book from an ordered entry sequence, verifying each
// entry's hash and chain linkage as it goes, then audits conservation
// against totals. This is the recovery path and the audit path; it shares
// Apply with the live path so they cannot drift.
func Replay(entries []Entry, totals map[string]int64) (*Book, error) {
	b := NewBook()
	for i := range entries {
		e := entries[i]
		key := pairKey{Participant: e.chainParticipant(), PropertyID: e.PropertyID}
		if head := b.heads[key]; head != e.PrevHash {
			return nil, fmt.Errorf("replay entry %d (%s): chain head mismatch for %s/%s", i, e.ID, key.Participant, key.PropertyID)
		}
		if got := e.ComputeHash(); got != e.Hash {
			return nil, fmt.Errorf("replay entry %d (%s): hash mismatch", i, e.ID)
		}
		if err := b.Apply(&e); err != nil {
			return nil, fmt.Errorf("replay entry %d: %w", i, err)
		}
	}
	if err := b.Audit(totals); err != nil {
		return nil, err
	}
	return b, nil
}
