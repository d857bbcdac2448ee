package network

import (
	"fmt"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/npc"
)

// Owner-equity policies for the 49% rule.
const (
	PolicyReject     = "reject"
	PolicyReclassify = "reclassify"
)

// OwnerThresholdBps is the ceiling on the investor-held share of an
// owner-occupied property. Crossing it forces rejection or reclassification
// per the configured policy; it is never silently exceeded.
const OwnerThresholdBps = 4900

// Config is one network's full tuning, assembled by internal/config from
// network.yaml and handed to NewSession.
type Config struct {
	NetworkID string
	Seed      int64

	IntervalSeconds int
	CutoffSeconds   int
	Schedule        string // optional cron expression overriding the countdown

	// IntervalPresets maps operator-facing speed names to countdown
	// lengths in seconds, selectable through the clock API.
	IntervalPresets map[string]int

	OwnerEquityPolicy string
	BuybackMonths     int
	ServiceFeeBps     int64
	MakerSpreadBps    int64
	MakerBidBps       int64

	InitialCondition  market.Condition
	InitialIndicators market.Indicators
	ConditionTable    market.TransitionWeights
	DriftTable        market.DriftTable
	MacroBands        market.MacroBands
	IndicatorBands    market.IndicatorBands

	Healing healing.Config

	ReasoningTimeoutSeconds int

	FoundationID string
	Genesis      Genesis
}

// Genesis seeds the network: every participant balance and every property
// issue becomes a genesis ledger entry, so even the starting state is
// replay-derivable.
type Genesis struct {
	Participants []GenesisParticipant
	Properties   []GenesisProperty
}

type GenesisParticipant struct {
	ID          string
	Name        string
	Role        string
	Balance     money.Cents
	NPC         bool
	Personality npc.Personality
}

type GenesisProperty struct {
	ID           string
	Name         string
	TotalTokens  int64
	Valuation    money.Cents
	RentYieldBps int64
	Status       string
	OwnerID      string
	OwnerTokens  int64
	TenantID     string
}

func (c *Config) normalize() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 300
	}
	if c.CutoffSeconds <= 0 {
		c.CutoffSeconds = 10
	}
	if len(c.IntervalPresets) == 0 {
		c.IntervalPresets = map[string]int{
			"fast":     60,
			"standard": 300,
			"slow":     900,
			"hourly":   3600,
		}
	}
	if c.OwnerEquityPolicy == "" {
		c.OwnerEquityPolicy = PolicyReject
	}
	if c.BuybackMonths <= 0 {
		c.BuybackMonths = 24
	}
	if c.ServiceFeeBps <= 0 {
		c.ServiceFeeBps = 800
	}
	if c.MakerSpreadBps <= 0 {
		c.MakerSpreadBps = 150
	}
	if c.MakerBidBps <= 0 {
		c.MakerBidBps = 1000
	}
	if c.InitialCondition == "" {
		c.InitialCondition = market.Stable
	}
	if c.ReasoningTimeoutSeconds <= 0 {
		c.ReasoningTimeoutSeconds = 30
	}
	if c.FoundationID == "" {
		c.FoundationID = "foundation"
	}
}

func (c *Config) validate() error {
	if c.NetworkID == "" {
		return fmt.Errorf("network id required")
	}
	switch c.OwnerEquityPolicy {
	case PolicyReject, PolicyReclassify:
	default:
		return fmt.Errorf("unknown owner_equity_policy %q", c.OwnerEquityPolicy)
	}
	for name, seconds := range c.IntervalPresets {
		if seconds < 1 {
			return fmt.Errorf("interval preset %q: %d seconds", name, seconds)
		}
	}
	seen := map[string]bool{}
	foundationFound := false
	for _, p := range c.Genesis.Participants {
		if p.ID == "" {
			return fmt.Errorf("genesis participant with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate genesis participant %s", p.ID)
		}
		seen[p.ID] = true
		if p.Balance < 0 {
			return fmt.Errorf("genesis participant %s: negative balance", p.ID)
		}
		if p.ID == c.FoundationID {
			foundationFound = true
			if p.Role != market.RoleFoundation {
				return fmt.Errorf("participant %s must carry the foundation role", p.ID)
			}
		}
	}
	if !foundationFound {
		return fmt.Errorf("genesis must include the foundation participant %q", c.FoundationID)
	}
	for _, p := range c.Genesis.Properties {
		if p.ID == "" {
			return fmt.Errorf("genesis property with empty id")
		}
		if p.TotalTokens <= 0 {
			return fmt.Errorf("genesis property %s: total_tokens must be positive", p.ID)
		}
		if p.Valuation <= 0 {
			return fmt.Errorf("genesis property %s: valuation must be positive", p.ID)
		}
		if p.OwnerTokens < 0 || p.OwnerTokens > p.TotalTokens {
			return fmt.Errorf("genesis property %s: owner tokens out of range", p.ID)
		}
		if p.OwnerTokens > 0 && p.OwnerID == "" {
			return fmt.Errorf("genesis property %s: owner tokens without owner", p.ID)
		}
		if p.OwnerID != "" && !seen[p.OwnerID] {
			return fmt.Errorf("genesis property %s: unknown owner %s", p.ID, p.OwnerID)
		}
		if p.TenantID != "" && !seen[p.TenantID] {
			return fmt.Errorf("genesis property %s: unknown tenant %s", p.ID, p.TenantID)
		}
		if p.Status == market.StatusOwnerOccupied {
			investor := money.Ratio{Num: p.TotalTokens - p.OwnerTokens, Den: p.TotalTokens}
			if investor.Bps() > OwnerThresholdBps {
				return fmt.Errorf("genesis property %s: investor share %s%% exceeds owner-occupier ceiling", p.ID, investor.Percent())
			}
		}
	}
	return nil
}
