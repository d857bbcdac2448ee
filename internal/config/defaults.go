package config

import "tessera.estate/internal/sim/market"

// Default tuning, used for any table a network spec leaves out. The
// transition rows keep each condition sticky with drift toward its
// neighbours; bust and boom decay back toward the middle.
func defaultConditionTable() market.TransitionWeights {
	return market.TransitionWeights{
		market.Boom: {
			market.Boom: 0.55, market.Stable: 0.30, market.Stagnant: 0.10,
			market.Declining: 0.04, market.Bust: 0.01,
		},
		market.Stable: {
			market.Boom: 0.10, market.Stable: 0.60, market.Stagnant: 0.20,
			market.Declining: 0.08, market.Bust: 0.02,
		},
		market.Stagnant: {
			market.Boom: 0.05, market.Stable: 0.25, market.Stagnant: 0.45,
			market.Declining: 0.20, market.Bust: 0.05,
		},
		market.Declining: {
			market.Boom: 0.02, market.Stable: 0.10, market.Stagnant: 0.28,
			market.Declining: 0.45, market.Bust: 0.15,
		},
		market.Bust: {
			market.Boom: 0.01, market.Stable: 0.05, market.Stagnant: 0.24,
			market.Declining: 0.30, market.Bust: 0.40,
		},
	}
}

func defaultDriftTable() market.DriftTable {
	return market.DriftTable{
		market.Boom:      {MinBps: 30, MaxBps: 100},
		market.Stable:    {MinBps: -10, MaxBps: 40},
		market.Stagnant:  {MinBps: -20, MaxBps: 20},
		market.Declining: {MinBps: -60, MaxBps: -5},
		market.Bust:      {MinBps: -150, MaxBps: -40},
	}
}

var defaultIndicators = market.Indicators{
	InterestBps:  450,
	PopGrowthBps: 120,
	CommodityBps: 5000,
}

var defaultMacroBands = market.MacroBands{
	CommodityHighBps: 6500,
	CommodityLowBps:  3500,
	PopGrowthHighBps: 180,
	PopGrowthLowBps:  40,
}

var defaultIndicatorBands = market.IndicatorBands{
	Interest:  market.IndicatorBand{MinBps: 50, MaxBps: 1200, StepBps: 25},
	PopGrowth: market.IndicatorBand{MinBps: -50, MaxBps: 300, StepBps: 20},
	Commodity: market.IndicatorBand{MinBps: 2000, MaxBps: 9000, StepBps: 250},
}

var defaultThresholds = market.Thresholds{
	MinLiquidityRatioBps: 500,
	MaxExitQueueLength:   25,
	MaxTradeFailureBps:   2000,
	MinOccupancyBps:      7000,
	MinRentCollectionBps: 8000,
	MinFloatBps:          300,
}
