// Package config loads network.yaml: server-level settings plus one spec
// per simulated network. Specs carry full market tuning with sensible
// defaults, so a minimal file only names networks and their genesis.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tessera.estate/internal/money"
	"tessera.estate/internal/persistence/mirror"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/network"
	"tessera.estate/internal/sim/npc"
)

type File struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"data_dir"`
	StoreDSN string `yaml:"store_dsn"`

	NATSURL string `yaml:"nats_url,omitempty"`

	Reasoning ReasoningSpec `yaml:"reasoning,omitempty"`
	Mirror    mirror.Config `yaml:"mirror,omitempty"`

	DefaultNetworkID string        `yaml:"default_network_id"`
	Networks         []NetworkSpec `yaml:"networks"`
}

type ReasoningSpec struct {
	URL            string `yaml:"url,omitempty"`
	Token          string `yaml:"token,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	// Stub enables the built-in deterministic narrator when no URL is set.
	Stub bool `yaml:"stub,omitempty"`
}

// NetworkSpec is the yaml shape of one network's tuning; Build turns it
// into a network.Config.
type NetworkSpec struct {
	ID   string `yaml:"id"`
	Seed int64  `yaml:"seed"`

	IntervalSeconds int            `yaml:"interval_seconds,omitempty"`
	CutoffSeconds   int            `yaml:"cutoff_seconds,omitempty"`
	Schedule        string         `yaml:"schedule,omitempty"`
	IntervalPresets map[string]int `yaml:"interval_presets,omitempty"`

	OwnerEquityPolicy string `yaml:"owner_equity_policy,omitempty"`
	BuybackMonths     int    `yaml:"buyback_months,omitempty"`
	ServiceFeeBps     int64  `yaml:"service_fee_bps,omitempty"`
	MakerSpreadBps    int64  `yaml:"maker_spread_bps,omitempty"`
	MakerBidBps       int64  `yaml:"maker_bid_bps,omitempty"`

	InitialCondition  string          `yaml:"initial_condition,omitempty"`
	InitialIndicators *IndicatorsSpec `yaml:"initial_indicators,omitempty"`

	ConditionTable market.TransitionWeights `yaml:"condition_table,omitempty"`
	DriftTable     market.DriftTable        `yaml:"drift_table,omitempty"`
	MacroBands     *market.MacroBands       `yaml:"macro_bands,omitempty"`
	IndicatorBands *market.IndicatorBands   `yaml:"indicator_bands,omitempty"`

	Healing healing.Config `yaml:"healing,omitempty"`

	ReasoningTimeoutSeconds int `yaml:"reasoning_timeout_seconds,omitempty"`

	FoundationID string      `yaml:"foundation_id,omitempty"`
	Genesis      GenesisSpec `yaml:"genesis"`
}

type IndicatorsSpec struct {
	InterestBps  int64 `yaml:"interest_bps"`
	PopGrowthBps int64 `yaml:"pop_growth_bps"`
	CommodityBps int64 `yaml:"commodity_bps"`
}

type GenesisSpec struct {
	Participants []ParticipantSpec `yaml:"participants"`
	Properties   []PropertySpec    `yaml:"properties"`
}

type ParticipantSpec struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name,omitempty"`
	Role        string          `yaml:"role"`
	Balance     string          `yaml:"balance,omitempty"` // dollars, e.g. "25000.00"
	NPC         bool            `yaml:"npc,omitempty"`
	Personality npc.Personality `yaml:"personality,omitempty"`
}

type PropertySpec struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	TotalTokens  int64  `yaml:"total_tokens"`
	Valuation    string `yaml:"valuation"` // dollars
	RentYieldBps int64  `yaml:"rent_yield_bps"`
	Status       string `yaml:"status,omitempty"`
	OwnerID      string `yaml:"owner_id,omitempty"`
	OwnerTokens  int64  `yaml:"owner_tokens,omitempty"`
	TenantID     string `yaml:"tenant_id,omitempty"`
}

// Load reads and validates a config file. An empty path yields defaults
// with no networks, which the caller treats as a configuration error.
func Load(path string) (File, error) {
	cfg := File{
		Listen:   ":8080",
		DataDir:  "./data",
		StoreDSN: "./data/index.db",
	}
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("network.yaml: %w", err)
	}
	if len(cfg.Networks) > 0 && cfg.DefaultNetworkID == "" {
		cfg.DefaultNetworkID = cfg.Networks[0].ID
	}
	seen := map[string]bool{}
	for _, n := range cfg.Networks {
		if n.ID == "" {
			return cfg, fmt.Errorf("network.yaml: network with empty id")
		}
		if seen[n.ID] {
			return cfg, fmt.Errorf("network.yaml: duplicate network %s", n.ID)
		}
		seen[n.ID] = true
	}
	if cfg.DefaultNetworkID != "" && !seen[cfg.DefaultNetworkID] {
		return cfg, fmt.Errorf("network.yaml: default network %s not defined", cfg.DefaultNetworkID)
	}
	return cfg, nil
}

// Build converts the spec into a runnable network.Config, filling every
// table the file left out with the default tuning.
func (n NetworkSpec) Build() (network.Config, error) {
	cfg := network.Config{
		NetworkID:         n.ID,
		Seed:              n.Seed,
		IntervalSeconds:   n.IntervalSeconds,
		CutoffSeconds:     n.CutoffSeconds,
		Schedule:          n.Schedule,
		IntervalPresets:   n.IntervalPresets,
		OwnerEquityPolicy: n.OwnerEquityPolicy,
		BuybackMonths:     n.BuybackMonths,
		ServiceFeeBps:     n.ServiceFeeBps,
		MakerSpreadBps:    n.MakerSpreadBps,
		MakerBidBps:       n.MakerBidBps,
		InitialCondition:  market.Condition(n.InitialCondition),
		ConditionTable:    n.ConditionTable,
		DriftTable:        n.DriftTable,
		Healing:           n.Healing,
		FoundationID:      n.FoundationID,
	}
	cfg.ReasoningTimeoutSeconds = n.ReasoningTimeoutSeconds
	if n.InitialIndicators != nil {
		cfg.InitialIndicators = market.Indicators{
			InterestBps:  n.InitialIndicators.InterestBps,
			PopGrowthBps: n.InitialIndicators.PopGrowthBps,
			CommodityBps: n.InitialIndicators.CommodityBps,
		}
	} else {
		cfg.InitialIndicators = defaultIndicators
	}
	if cfg.ConditionTable == nil {
		cfg.ConditionTable = defaultConditionTable()
	}
	if cfg.DriftTable == nil {
		cfg.DriftTable = defaultDriftTable()
	}
	if n.MacroBands != nil {
		cfg.MacroBands = *n.MacroBands
	} else {
		cfg.MacroBands = defaultMacroBands
	}
	if n.IndicatorBands != nil {
		cfg.IndicatorBands = *n.IndicatorBands
	} else {
		cfg.IndicatorBands = defaultIndicatorBands
	}
	if cfg.Healing.Thresholds == (market.Thresholds{}) {
		cfg.Healing.Thresholds = defaultThresholds
	}

	for _, p := range n.Genesis.Participants {
		balance := money.Cents(0)
		if p.Balance != "" {
			var err error
			if balance, err = money.ParseDollars(p.Balance); err != nil {
				return cfg, fmt.Errorf("participant %s balance: %w", p.ID, err)
			}
		}
		cfg.Genesis.Participants = append(cfg.Genesis.Participants, network.GenesisParticipant{
			ID: p.ID, Name: p.Name, Role: p.Role, Balance: balance,
			NPC: p.NPC, Personality: p.Personality,
		})
	}
	for _, p := range n.Genesis.Properties {
		valuation, err := money.ParseDollars(p.Valuation)
		if err != nil {
			return cfg, fmt.Errorf("property %s valuation: %w", p.ID, err)
		}
		cfg.Genesis.Properties = append(cfg.Genesis.Properties, network.GenesisProperty{
			ID: p.ID, Name: p.Name, TotalTokens: p.TotalTokens, Valuation: valuation,
			RentYieldBps: p.RentYieldBps, Status: p.Status,
			OwnerID: p.OwnerID, OwnerTokens: p.OwnerTokens, TenantID: p.TenantID,
		})
	}
	return cfg, nil
}
