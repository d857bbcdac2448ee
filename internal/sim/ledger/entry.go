// Package ledger is the append-only record of completed transactions and
// the sole authority for balances and holdings. Entries are immutable and
// hash-chained per participant+property pair; current state is a replayable
// projection, never an independent source of truth.
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"tessera.estate/internal/money"
)

// Entry types.
const (
	EntryGenesisDeposit = "GENESIS_DEPOSIT"
	EntryGenesisIssue   = "GENESIS_ISSUE"
	EntryTrade          = "TRADE"
	EntryBuyback        = "BUYBACK"
	EntryEquityRelease  = "EQUITY_RELEASE"
	EntryRent           = "RENT"
	EntryRentArrears    = "RENT_ARREARS"
	EntryDividend       = "DIVIDEND"
	EntryServicePayment = "SERVICE_PAYMENT"
	EntryIncentive      = "INCENTIVE"
	EntryVote           = "VOTE"
	EntryListing        = "LISTING"
)

// Entry is one immutable ledger record.
//
// Token-moving types (TRADE, BUYBACK, EQUITY_RELEASE) move Tokens from
// From to To and Amount cents from To to From. Cash-only types move Amount
// from From to To. VOTE and LISTING move nothing; VOTE stores the weight
// in Tokens.
type Entry struct {
	ID         string      `json:"id"`
	Month      int         `json:"month"`
	Type       string      `json:"type"`
	From       string      `json:"from,omitempty"`
	To         string      `json:"to,omitempty"`
	PropertyID string      `json:"property_id,omitempty"`
	Amount     money.Cents `json:"amount_cents"`
	Tokens     int64       `json:"tokens,omitempty"`
	Detail     string      `json:"detail,omitempty"`

	// PrevHash is the hash of the prior entry touching the same
	// (chain participant, property) pair; Hash covers all fields above
	// plus PrevHash.
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`
}

// chainParticipant picks the side whose causal history the entry extends:
// the paying/selling side when present, otherwise the receiver.
func (e *Entry) chainParticipant() string {
	if e.From != "" {
		return e.From
	}
	return e.To
}

func (e *Entry) movesTokens() bool {
	switch e.Type {
	case EntryTrade, EntryBuyback, EntryEquityRelease, EntryGenesisIssue:
		return true
	}
	return false
}

func (e *Entry) movesCash() bool {
	switch e.Type {
	case EntryVote, EntryListing, EntryGenesisIssue:
		return false
	}
	return e.Amount != 0
}

// ComputeHash derives the entry hash from its canonical encoding. PrevHash
// must already be set.
func (e *Entry) ComputeHash() string {
	h := sha256.New()
	var tmp [8]byte
	writeStr := func(s string) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(s)))
		h.Write(tmp[:])
		h.Write([]byte(s))
	}
	writeI64 := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	writeStr(e.ID)
	writeI64(int64(e.Month))
	writeStr(e.Type)
	writeStr(e.From)
	writeStr(e.To)
	writeStr(e.PropertyID)
	writeI64(int64(e.Amount))
	writeI64(e.Tokens)
	writeStr(e.Detail)
	writeStr(e.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}
