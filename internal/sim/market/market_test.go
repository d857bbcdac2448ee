package market

import "testing"

func testTable() TransitionWeights {
	return TransitionWeights{
		Stable:    {Boom: 0.15, Stable: 0.55, Stagnant: 0.20, Declining: 0.10},
		Boom:      {Boom: 0.50, Stable: 0.35, Stagnant: 0.15},
		Stagnant:  {Stable: 0.25, Stagnant: 0.45, Declining: 0.25, Bust: 0.05},
		Declining: {Stagnant: 0.25, Declining: 0.45, Bust: 0.30},
		Bust:      {Bust: 0.50, Declining: 0.35, Stagnant: 0.15},
	}
}

func neutralIndicators() Indicators {
	return Indicators{InterestBps: 450, PopGrowthBps: 100, CommodityBps: 10_000}
}

func testBands() MacroBands {
	return MacroBands{
		CommodityHighBps: 12_000,
		CommodityLowBps:  8_500,
		PopGrowthHighBps: 200,
		PopGrowthLowBps:  -50,
	}
}

func TestNextConditionDeterministic(t *testing.T) {
	table := testTable()
	cur := Stable
	ind := neutralIndicators()
	var first []Condition
	for run := 0; run < 2; run++ {
		c := cur
		var seq []Condition
		for month := 1; month <= 60; month++ {
			c = NextCondition(table, c, ind, testBands(), Hash2(1337, month, 7))
			seq = append(seq, c)
		}
		if run == 0 {
			first = seq
			continue
		}
		for i := range seq {
			if seq[i] != first[i] {
				t.Fatalf("month %d diverged: %s vs %s", i+1, seq[i], first[i])
			}
		}
	}
}

func TestMacroBandsTiltTransitions(t *testing.T) {
	table := testTable()
	hot := Indicators{InterestBps: 450, PopGrowthBps: 400, CommodityBps: 14_000}
	cold := Indicators{InterestBps: 450, PopGrowthBps: -100, CommodityBps: 7_000}

	counts := func(ind Indicators) map[Condition]int {
		out := map[Condition]int{}
		for month := 0; month < 400; month++ {
			c := NextCondition(table, Stagnant, ind, testBands(), Hash2(99, month, 3))
			out[c]++
		}
		return out
	}

	hotCounts := counts(hot)
	coldCounts := counts(cold)
	hotUp := hotCounts[Stable] + hotCounts[Boom]
	coldUp := coldCounts[Stable] + coldCounts[Boom]
	if hotUp <= coldUp {
		t.Fatalf("hot macro should climb more often: hot=%d cold=%d", hotUp, coldUp)
	}
	hotDown := hotCounts[Declining] + hotCounts[Bust]
	coldDown := coldCounts[Declining] + coldCounts[Bust]
	if coldDown <= hotDown {
		t.Fatalf("cold macro should decline more often: cold=%d hot=%d", coldDown, hotDown)
	}
}

func TestIndicatorWalkStaysInBand(t *testing.T) {
	bands := IndicatorBands{
		Interest:  IndicatorBand{MinBps: 50, MaxBps: 1200, StepBps: 25},
		PopGrowth: IndicatorBand{MinBps: -150, MaxBps: 400, StepBps: 30},
		Commodity: IndicatorBand{MinBps: 7_000, MaxBps: 15_000, StepBps: 200},
	}
	ind := neutralIndicators()
	for month := 1; month <= 240; month++ {
		ind = ind.Drift(bands, 42, month)
		if ind.InterestBps < 50 || ind.InterestBps > 1200 {
			t.Fatalf("interest out of band at month %d: %d", month, ind.InterestBps)
		}
		if ind.PopGrowthBps < -150 || ind.PopGrowthBps > 400 {
			t.Fatalf("pop growth out of band at month %d: %d", month, ind.PopGrowthBps)
		}
		if ind.CommodityBps < 7_000 || ind.CommodityBps > 15_000 {
			t.Fatalf("commodity out of band at month %d: %d", month, ind.CommodityBps)
		}
	}
}

func TestValuationDriftWithinRange(t *testing.T) {
	table := DriftTable{
		Boom: {MinBps: 50, MaxBps: 120},
		Bust: {MinBps: -150, MaxBps: -60},
	}
	for month := 1; month <= 120; month++ {
		d := ValuationDriftBps(table, Boom, 7, month, "karratha-03")
		if d < 50 || d > 120 {
			t.Fatalf("boom drift out of range: %d", d)
		}
		d = ValuationDriftBps(table, Bust, 7, month, "karratha-03")
		if d < -150 || d > -60 {
			t.Fatalf("bust drift out of range: %d", d)
		}
	}
	if ValuationDriftBps(table, Stable, 7, 1, "x") != 0 {
		t.Fatalf("missing condition should drift zero")
	}
}

func TestSampleWeightedStable(t *testing.T) {
	w := map[string]float64{"a": 1, "b": 2, "c": 3}
	for roll := uint64(0); roll < 50; roll++ {
		if SampleWeighted(w, roll) != SampleWeighted(w, roll) {
			t.Fatalf("sample not stable for roll %d", roll)
		}
	}
	if SampleWeighted(map[string]float64{}, 1) != "" {
		t.Fatalf("empty weights should pick nothing")
	}
	if SampleWeighted(map[string]float64{"a": -1}, 1) != "" {
		t.Fatalf("non-positive weights should pick nothing")
	}
}

func TestBreaches(t *testing.T) {
	th := Thresholds{
		MinLiquidityRatioBps: 10_000,
		MaxExitQueueLength:   25,
		MaxTradeFailureBps:   2_000,
		MinOccupancyBps:      7_000,
		MinRentCollectionBps: 8_500,
	}
	healthy := Health{LiquidityRatioBps: 20_000, ExitQueueLength: 3, TradeFailureBps: 100, OccupancyBps: 9_000, RentCollectionBps: 9_900}
	if got := th.Breaches(healthy); len(got) != 0 {
		t.Fatalf("healthy metrics breached: %+v", got)
	}

	stressed := Health{LiquidityRatioBps: 4_000, ExitQueueLength: 40, TradeFailureBps: 3_000, OccupancyBps: 5_000, RentCollectionBps: 6_000}
	got := th.Breaches(stressed)
	if len(got) != 5 {
		t.Fatalf("expected 5 breaches, got %d: %+v", len(got), got)
	}
	if got[0].Metric != MetricLiquidityRatio {
		t.Fatalf("breach order changed: %+v", got)
	}

	// Liquidity ratio is defined only when something waits to exit, and
	// zero occupancy/rent ratios mean no data, not a measured zero.
	idle := Health{LiquidityRatioBps: 0, ExitQueueLength: 0}
	if got := th.Breaches(idle); len(got) != 0 {
		t.Fatalf("idle network breached: %+v", got)
	}
}

func TestMeasuredBpsFloorsAtOne(t *testing.T) {
	if got := MeasuredBps(0, 10); got != 1 {
		t.Fatalf("measured zero = %d, want the 1 bp floor", got)
	}
	if got := MeasuredBps(5, 10); got != 5_000 {
		t.Fatalf("half = %d bps, want 5000", got)
	}
}
