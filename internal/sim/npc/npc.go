// Package npc turns a market snapshot into queued intents. Every decision
// is a pure function of (snapshot, own position, personality, seeded rng),
// so a fixed seed reproduces the same actions month after month.
package npc

import (
	"math/rand"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/market"
)

type Goal string

const (
	GoalAccumulate Goal = "accumulate"
	GoalIncome     Goal = "income"
	GoalDivest     Goal = "divest"
	GoalStabilize  Goal = "stabilize"
)

// Personality biases the weighted scoring. Risk tolerance and patience are
// permille (0..1000).
type Personality struct {
	RiskTolerance int  `yaml:"risk_tolerance" json:"risk_tolerance"`
	Patience      int  `yaml:"patience" json:"patience"`
	Goal          Goal `yaml:"goal" json:"goal"`
}

// Intent is one decided action, not yet queued.
type Intent struct {
	Type     string
	Payload  interface{}
	Priority int
}

// Scoring weights and biases. Numbers match the feel of the reference
// tuning; they are constants rather than config because NPC temperament
// is part of the engine, not the deployment.
const (
	weightYield = 3
	weightTrend = 2
	jitterSpan  = 15

	baseActThreshold = 60
	discountBonus    = 40
	cashNeedBonus    = 50
	divestSellBonus  = 30

	tradePriority = 10
	rentPriority  = 80
)

var buyBias = map[Goal]map[market.Condition]int64{
	GoalAccumulate: {market.Boom: 15, market.Stable: 10, market.Stagnant: 0, market.Declining: -5, market.Bust: -10},
	GoalIncome:     {market.Boom: 0, market.Stable: 5, market.Stagnant: 0, market.Declining: -10, market.Bust: -20},
	GoalDivest:     {market.Boom: -20, market.Stable: -20, market.Stagnant: -20, market.Declining: -20, market.Bust: -20},
	GoalStabilize:  {market.Boom: -20, market.Stable: 0, market.Stagnant: 5, market.Declining: 15, market.Bust: 25},
}

var sellBias = map[Goal]map[market.Condition]int64{
	GoalAccumulate: {},
	GoalIncome:     {market.Bust: 10},
	GoalDivest:     {market.Boom: divestSellBonus, market.Stable: divestSellBonus, market.Stagnant: divestSellBonus, market.Declining: divestSellBonus, market.Bust: divestSellBonus},
	GoalStabilize:  {market.Boom: 20},
}

// Decide scores buy/sell/hold per property for one participant and returns
// the intents that clear the patience-scaled threshold.
func Decide(snap *market.Snapshot, self *market.ParticipantView, p Personality, rng *rand.Rand) []Intent {
	if self == nil {
		return nil
	}
	var out []Intent

	// Settle arrears first: tenants protect their lease before trading.
	for i := range snap.Properties {
		prop := &snap.Properties[i]
		if prop.TenantID == self.ID && prop.Arrears > 0 && self.Balance >= prop.Arrears {
			out = append(out, Intent{
				Type:     protocol.ActionPayRent,
				Payload:  &protocol.PayRentPayload{PropertyID: prop.ID},
				Priority: rentPriority,
			})
			break
		}
	}

	threshold := actThreshold(p)
	holdings := holdingIndex(self)

	for i := range snap.Properties {
		prop := &snap.Properties[i]
		if !tradeable(prop.Status) || prop.TokenPrice <= 0 {
			continue
		}
		score := buyScore(snap, prop, p)
		score += int64(rng.Intn(jitterSpan*2+1) - jitterSpan)
		held := holdings[prop.ID]

		switch {
		case score >= threshold:
			tokens := buySize(self.Balance, prop.TokenPrice, p)
			if tokens > 0 {
				out = append(out, Intent{
					Type:     protocol.ActionBuy,
					Payload:  &protocol.BuyPayload{PropertyID: prop.ID, Tokens: tokens},
					Priority: tradePriority,
				})
			}
		case held > 0 && -score+sellBias[p.Goal][snap.Condition]+cashNeed(self, snap) >= threshold:
			tokens := sellSize(held, p)
			if tokens > 0 {
				out = append(out, Intent{
					Type:     protocol.ActionSell,
					Payload:  &protocol.SellPayload{PropertyID: prop.ID, Tokens: tokens},
					Priority: tradePriority,
				})
			}
		}
	}
	return out
}

func tradeable(status string) bool {
	switch status {
	case market.StatusAvailable, market.StatusTenanted, market.StatusOwnerOccupied, market.StatusTenantBuyback:
		return true
	}
	return false
}

func buyScore(snap *market.Snapshot, prop *market.PropertyView, p Personality) int64 {
	effYield := prop.RentYield
	if prop.Status == market.StatusAvailable {
		// Vacant stock earns nothing until tenanted; price in the prospect.
		effYield /= 2
	}
	yieldEdge := effYield - snap.Indicators.InterestBps
	score := weightYield*yieldEdge/10 + weightTrend*prop.LastDrift/10
	score += buyBias[p.Goal][snap.Condition]
	if prop.Discounted {
		score += discountBonus
	}
	return score
}

func cashNeed(self *market.ParticipantView, snap *market.Snapshot) int64 {
	// Thin balances push toward selling regardless of goal.
	var rentDue money.Cents
	for i := range snap.Properties {
		if snap.Properties[i].TenantID == self.ID {
			rentDue += money.MonthlyFromAnnualBps(snap.Properties[i].Valuation, snap.Properties[i].RentYield)
		}
	}
	if rentDue > 0 && self.Balance < rentDue*3 {
		return cashNeedBonus
	}
	return 0
}

func actThreshold(p Personality) int64 {
	// Patience raises the bar to act; impatient profiles churn more.
	return baseActThreshold * int64(500+clampPermille(p.Patience)) / 1000
}

func buySize(balance money.Cents, tokenPrice money.Cents, p Personality) int64 {
	budget := money.Cents(int64(balance) * int64(clampPermille(p.RiskTolerance)) / 2000)
	tokens := int64(budget) / int64(tokenPrice)
	if tokens < 1 {
		return 0
	}
	return tokens
}

func sellSize(held int64, p Personality) int64 {
	urgency := int64(1000-clampPermille(p.Patience))/2 + 100
	tokens := held * urgency / 1000
	if tokens < 1 {
		tokens = 1
	}
	if tokens > held {
		tokens = held
	}
	return tokens
}

func holdingIndex(self *market.ParticipantView) map[string]int64 {
	out := make(map[string]int64, len(self.Holdings))
	for _, h := range self.Holdings {
		out[h.PropertyID] = h.Tokens
	}
	return out
}

func clampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}
