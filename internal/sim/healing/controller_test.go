package healing

import (
	"testing"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/market"
)

func testConfig() Config {
	return Config{
		Thresholds: market.Thresholds{
			MinLiquidityRatioBps: 10_000,
			MaxExitQueueLength:   3,
			MinOccupancyBps:      6000,
		},
		VerifyTicks:         3,
		ImprovementDeltaBps: 100,
		FloorBidBudgetBps:   2000,
	}
}

func stressedSnapshot(month int, queueLen int, liquidityBps int64) *market.Snapshot {
	snap := &market.Snapshot{
		Month:    month,
		Treasury: money.Cents(50_000_00),
		Health: market.Health{
			LiquidityRatioBps: liquidityBps,
			ExitQueueLength:   queueLen,
			OccupancyBps:      8000,
		},
	}
	for i := 0; i < queueLen; i++ {
		snap.ExitQueue = append(snap.ExitQueue, market.ExitEntryView{
			Seller: "p1", PropertyID: "prop_a", Tokens: 100, AskPrice: 100, SinceMonth: month - 1,
		})
	}
	return snap
}

func TestBreachStartsStrategyWithinOneTick(t *testing.T) {
	c := NewController(testConfig())
	out := c.Run(stressedSnapshot(5, 10, 2000), 42, 5)

	if len(out.Breaches) == 0 {
		t.Fatalf("expected breaches, got none")
	}
	if len(out.Started) == 0 {
		t.Fatalf("expected a strategy to start on breach")
	}
	for _, s := range out.Started {
		if s.Status != StatusActive {
			t.Errorf("strategy %s status = %s, want active", s.ID, s.Status)
		}
		if s.ActivationMonth != 5 {
			t.Errorf("strategy %s activation month = %d, want 5", s.ID, s.ActivationMonth)
		}
	}
	if len(out.Directives) == 0 {
		t.Fatalf("active strategies produced no directives")
	}
}

func TestIdempotentTriggering(t *testing.T) {
	c := NewController(testConfig())
	c.Run(stressedSnapshot(5, 10, 2000), 42, 5)
	before := len(c.active)

	// Same breach next tick: no second strategy for the same cause.
	out := c.Run(stressedSnapshot(6, 10, 2000), 42, 6)
	if len(out.Started) != 0 {
		t.Fatalf("sustained breach started %d extra strategies, want 0", len(out.Started))
	}
	if len(c.active) != before {
		t.Fatalf("active strategies %d, want %d", len(c.active), before)
	}
}

func TestResolveOnImprovement(t *testing.T) {
	c := NewController(testConfig())
	c.Run(stressedSnapshot(5, 10, 2000), 42, 5)

	// Liquidity recovers past baseline + delta.
	healthy := stressedSnapshot(6, 0, 12_000)
	out := c.Run(healthy, 42, 6)

	resolved := false
	for _, s := range out.Changed {
		if s.Status == StatusResolved {
			resolved = true
		}
	}
	if !resolved {
		t.Fatalf("expected at least one strategy resolved after recovery")
	}
	for _, s := range c.active {
		if s.terminal() {
			t.Errorf("terminal strategy %s still active", s.ID)
		}
	}
}

func TestFailAndEscalateAfterWindow(t *testing.T) {
	cfg := testConfig()
	cfg.VerifyTicks = 2
	c := NewController(cfg)
	c.Run(stressedSnapshot(5, 10, 2000), 42, 5)
	first := c.active[len(c.active)-1].Kind

	// No improvement for the whole verification window.
	var failed *Strategy
	for m := 6; m <= 9; m++ {
		out := c.Run(stressedSnapshot(m, 10, 2000), 42, m)
		for _, s := range out.Changed {
			if s.Status == StatusFailed {
				failed = s
			}
		}
		if failed != nil {
			break
		}
	}
	if failed == nil {
		t.Fatalf("strategy never failed under sustained breach")
	}

	// The replacement escalates to a different kind.
	out := c.Run(stressedSnapshot(10, 10, 2000), 42, 10)
	if len(out.Started) == 0 {
		t.Fatalf("no escalated strategy after failure")
	}
	esc := out.Started[0]
	if !esc.Escalated {
		t.Errorf("replacement strategy not marked escalated")
	}
	if esc.Kind == first && failed.Kind == first {
		t.Errorf("escalation picked the same kind %s that just failed", first)
	}
}

func TestLearnAdjustsWeights(t *testing.T) {
	c := NewController(testConfig())
	w0 := c.Weights()[KindLiquidityFloorBids]
	c.learn(KindLiquidityFloorBids, true)
	if got := c.Weights()[KindLiquidityFloorBids]; got <= w0 {
		t.Errorf("resolved outcome should raise weight: %v -> %v", w0, got)
	}
	for i := 0; i < 50; i++ {
		c.learn(KindLiquidityFloorBids, false)
	}
	if got := c.Weights()[KindLiquidityFloorBids]; got < 0.25 {
		t.Errorf("weight floor violated: %v", got)
	}
}

func TestDiagnosePropertyStress(t *testing.T) {
	snap := stressedSnapshot(3, 0, 20_000)
	snap.Health.OccupancyBps = 3000
	snap.Properties = []market.PropertyView{
		{ID: "prop_a", Status: market.StatusTenanted, Valuation: 400_000_00},
		{ID: "prop_b", Status: market.StatusAvailable, Valuation: 600_000_00},
	}
	cause, prop := diagnose(market.Breach{Metric: market.MetricOccupancy, Value: 3000, Threshold: 6000}, snap)
	if cause != CauseProperty || prop != "prop_b" {
		t.Fatalf("diagnose = (%s, %s), want (property_idiosyncratic, prop_b)", cause, prop)
	}
}
