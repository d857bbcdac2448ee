package config

import (
	"os"
	"path/filepath"
	"testing"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/market"
)

const sampleYAML = `
listen: ":9090"
data_dir: /var/lib/tessera
store_dsn: /var/lib/tessera/index.db
default_network_id: net-a
networks:
  - id: net-a
    seed: 7
    interval_seconds: 120
    interval_presets:
      blitz: 30
      leisurely: 1200
    owner_equity_policy: reclassify
    initial_condition: boom
    initial_indicators:
      interest_bps: 600
      pop_growth_bps: 90
      commodity_bps: 4000
    genesis:
      participants:
        - id: foundation
          role: foundation
          balance: "250000.00"
        - id: alice
          role: investor
          balance: "25000.50"
      properties:
        - id: prop-1
          total_tokens: 100000
          valuation: "500000.00"
          rent_yield_bps: 480
          status: tenanted
          tenant_id: alice
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndBuild(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.DefaultNetworkID != "net-a" {
		t.Fatalf("server fields: %+v", cfg)
	}
	if len(cfg.Networks) != 1 {
		t.Fatalf("networks = %d", len(cfg.Networks))
	}

	net, err := cfg.Networks[0].Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if net.Seed != 7 || net.IntervalSeconds != 120 {
		t.Fatalf("tuning: %+v", net)
	}
	if net.IntervalPresets["blitz"] != 30 || net.IntervalPresets["leisurely"] != 1200 {
		t.Fatalf("interval presets: %+v", net.IntervalPresets)
	}
	if net.InitialCondition != market.Boom || net.InitialIndicators.InterestBps != 600 {
		t.Fatalf("initial market state: %+v", net)
	}
	// Tables omitted from the file come from the defaults.
	if len(net.ConditionTable) != 5 || len(net.DriftTable) != 5 {
		t.Fatalf("default tables not filled: %+v", net)
	}
	if net.Healing.Thresholds.MinOccupancyBps == 0 {
		t.Fatalf("default thresholds not filled: %+v", net.Healing)
	}

	if net.Genesis.Participants[1].Balance != money.Cents(2500050) {
		t.Fatalf("balance parse: %+v", net.Genesis.Participants[1])
	}
	if net.Genesis.Properties[0].Valuation != money.Cents(50000000) {
		t.Fatalf("valuation parse: %+v", net.Genesis.Properties[0])
	}
}

func TestLoadRejectsDuplicateNetworks(t *testing.T) {
	body := `
networks:
  - id: net-a
  - id: net-a
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("duplicate network id accepted")
	}
}

func TestLoadRejectsUnknownDefault(t *testing.T) {
	body := `
default_network_id: nope
networks:
  - id: net-a
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("unknown default network accepted")
	}
}

func TestBuildRejectsBadMoney(t *testing.T) {
	spec := NetworkSpec{
		ID: "net-a",
		Genesis: GenesisSpec{
			Properties: []PropertySpec{{ID: "p", TotalTokens: 1, Valuation: "not-money"}},
		},
	}
	if _, err := spec.Build(); err == nil {
		t.Fatal("bad valuation accepted")
	}
}
