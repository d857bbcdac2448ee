// Package market holds the shared market vocabulary: property statuses,
// participant roles, the five-state condition machine, macro indicators,
// health metrics, and the immutable per-tick snapshot.
package market

// Condition is the macro regime governing valuation drift.
type Condition string

const (
	Boom      Condition = "boom"
	Stable    Condition = "stable"
	Stagnant  Condition = "stagnant"
	Declining Condition = "declining"
	Bust      Condition = "bust"
)

var Conditions = []Condition{Boom, Stable, Stagnant, Declining, Bust}

// rank orders conditions from bust (0) to boom (4) for directional weight
// shifts.
func rank(c Condition) int {
	switch c {
	case Bust:
		return 0
	case Declining:
		return 1
	case Stagnant:
		return 2
	case Stable:
		return 3
	case Boom:
		return 4
	}
	return 2
}

// TransitionWeights maps a current condition to next-condition weights.
type TransitionWeights map[Condition]map[Condition]float64

// MacroBands are the indicator thresholds that tilt condition transitions.
type MacroBands struct {
	CommodityHighBps int64 `yaml:"commodity_high_bps" json:"commodity_high_bps"`
	CommodityLowBps  int64 `yaml:"commodity_low_bps" json:"commodity_low_bps"`
	PopGrowthHighBps int64 `yaml:"pop_growth_high_bps" json:"pop_growth_high_bps"`
	PopGrowthLowBps  int64 `yaml:"pop_growth_low_bps" json:"pop_growth_low_bps"`
}

const macroTilt = 0.30

// NextCondition evaluates the transition machine once for a tick. Macro
// indicators above both high bands tilt weight boomward; either indicator
// under its low band tilts bustward. The roll comes from the seeded hash
// stream, so the trajectory is fixed per (seed, month).
func NextCondition(table TransitionWeights, cur Condition, ind Indicators, bands MacroBands, roll uint64) Condition {
	row := table[cur]
	if len(row) == 0 {
		return cur
	}
	weights := make(map[string]float64, len(row))
	for c, w := range row {
		weights[string(c)] = w
	}

	boomward := ind.CommodityBps >= bands.CommodityHighBps && ind.PopGrowthBps >= bands.PopGrowthHighBps
	bustward := ind.CommodityBps <= bands.CommodityLowBps || ind.PopGrowthBps <= bands.PopGrowthLowBps
	if boomward && !bustward {
		tiltToward(weights, cur, +1)
	} else if bustward && !boomward {
		tiltToward(weights, cur, -1)
	}

	picked := SampleWeighted(weights, roll)
	if picked == "" {
		return cur
	}
	return Condition(picked)
}

func tiltToward(weights map[string]float64, cur Condition, dir int) {
	shifted := false
	for c := range weights {
		r := rank(Condition(c))
		if (dir > 0 && r > rank(cur)) || (dir < 0 && r < rank(cur)) {
			weights[c] += macroTilt
			shifted = true
		}
	}
	// At the end of the scale the push lands on staying put.
	if !shifted {
		weights[string(cur)] += macroTilt
	}
}
