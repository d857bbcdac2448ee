package market

// Indicators are the macro inputs to the condition machine, all in basis
// points (commodity index: 10000 = baseline 100).
type Indicators struct {
	InterestBps  int64 `json:"interest_bps"`
	PopGrowthBps int64 `json:"pop_growth_bps"`
	CommodityBps int64 `json:"commodity_bps"`
}

// IndicatorBand bounds one indicator's deterministic random walk.
type IndicatorBand struct {
	MinBps  int64 `yaml:"min_bps" json:"min_bps"`
	MaxBps  int64 `yaml:"max_bps" json:"max_bps"`
	StepBps int64 `yaml:"step_bps" json:"step_bps"`
}

// IndicatorBands configures the three walks.
type IndicatorBands struct {
	Interest  IndicatorBand `yaml:"interest" json:"interest"`
	PopGrowth IndicatorBand `yaml:"pop_growth" json:"pop_growth"`
	Commodity IndicatorBand `yaml:"commodity" json:"commodity"`
}

// Drift advances each indicator one month inside its band. Step offsets
// come from the seeded stream with distinct salts per indicator.
func (ind Indicators) Drift(bands IndicatorBands, seed int64, month int) Indicators {
	return Indicators{
		InterestBps:  walk(ind.InterestBps, bands.Interest, Hash3(seed, month, 11, 0)),
		PopGrowthBps: walk(ind.PopGrowthBps, bands.PopGrowth, Hash3(seed, month, 12, 0)),
		CommodityBps: walk(ind.CommodityBps, bands.Commodity, Hash3(seed, month, 13, 0)),
	}
}

func walk(v int64, band IndicatorBand, roll uint64) int64 {
	if band.StepBps > 0 {
		span := band.StepBps*2 + 1
		v += int64(roll%uint64(span)) - band.StepBps
	}
	if band.MaxBps > band.MinBps {
		if v < band.MinBps {
			v = band.MinBps
		}
		if v > band.MaxBps {
			v = band.MaxBps
		}
	}
	return v
}

// DriftRange bounds monthly valuation drift for one condition.
type DriftRange struct {
	MinBps int64 `yaml:"min_bps" json:"min_bps"`
	MaxBps int64 `yaml:"max_bps" json:"max_bps"`
}

// DriftTable maps condition to valuation drift range.
type DriftTable map[Condition]DriftRange

// ValuationDriftBps picks this month's drift for one property under the
// current condition, deterministic per (seed, month, property).
func ValuationDriftBps(table DriftTable, cond Condition, seed int64, month int, propertyID string) int64 {
	r, ok := table[cond]
	if !ok || r.MaxBps < r.MinBps {
		return 0
	}
	span := r.MaxBps - r.MinBps + 1
	roll := Hash3(seed, month, HashID(propertyID), 21)
	return r.MinBps + int64(roll%uint64(span))
}
