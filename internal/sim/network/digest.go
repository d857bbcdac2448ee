package network

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"tessera.estate/internal/sim/market"
)

// stateDigest folds the entire post-tick state into one sha256: macro
// regime, every balance, holding and property field, the exit queue, and
// the healing controller's strategies and learned weights. Two runs from
// the same seed and action log must produce the same digest every month;
// replay verifies exactly this.
func (s *Session) stateDigest(t *tickState, snap *market.Snapshot) string {
	h := sha256.New()
	writeStr(h, snap.NetworkID)
	writeI64(h, int64(snap.Month))
	writeStr(h, string(snap.Condition))
	writeI64(h, snap.Indicators.InterestBps)
	writeI64(h, snap.Indicators.PopGrowthBps)
	writeI64(h, snap.Indicators.CommodityBps)
	writeI64(h, int64(snap.Treasury))

	for i := range snap.Properties {
		p := &snap.Properties[i]
		writeStr(h, p.ID)
		writeStr(h, p.Status)
		writeI64(h, p.TotalTokens)
		writeI64(h, int64(p.Valuation))
		writeI64(h, p.RentYield)
		writeStr(h, p.TenantID)
		writeStr(h, p.OwnerID)
		writeI64(h, int64(p.Arrears))
		writeI64(h, p.FloatTokens)
		writeI64(h, p.LastDrift)
		writeBool(h, p.Discounted)
	}

	for i := range snap.Participants {
		pv := &snap.Participants[i]
		writeStr(h, pv.ID)
		writeI64(h, int64(pv.Balance))
		for _, hd := range pv.Holdings {
			writeStr(h, hd.PropertyID)
			writeI64(h, hd.Tokens)
		}
	}

	for _, e := range snap.ExitQueue {
		writeStr(h, e.Seller)
		writeStr(h, e.PropertyID)
		writeI64(h, e.Tokens)
		writeI64(h, int64(e.SinceMonth))
		writeI64(h, int64(e.AskPrice))
	}

	weights := t.healer.Weights()
	kinds := make([]string, 0, len(weights))
	for k := range weights {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		writeStr(h, k)
		writeI64(h, int64(math.Round(weights[k]*1000)))
	}
	for _, st := range t.healer.Strategies() {
		writeStr(h, st.ID)
		writeStr(h, st.Status)
		writeI64(h, st.BestValue)
		writeI64(h, int64(st.VerifyTicksLeft))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDigest recomputes the committed snapshot's digest; replay calls it
// after rebuilding state from the journal.
func VerifyDigest(snap *market.Snapshot, want string) bool {
	return snap != nil && snap.Digest == want
}

func writeStr(h hash.Hash, s string) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(s)))
	h.Write(tmp[:])
	h.Write([]byte(s))
}

func writeI64(h hash.Hash, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	h.Write(tmp[:])
}

func writeBool(h hash.Hash, v bool) {
	if v {
		writeI64(h, 1)
	} else {
		writeI64(h, 0)
	}
}
