package market

import "tessera.estate/internal/money"

// Health are the per-tick network-health metrics the self-healing
// controller senses. Ratios are basis points; a zero ratio means the
// metric had no data this tick, not a measured zero.
type Health struct {
	LiquidityRatioBps int64 `json:"liquidity_ratio_bps"`
	ExitQueueLength   int   `json:"exit_queue_length"`
	TradeFailureBps   int64 `json:"trade_failure_bps"`
	OccupancyBps      int64 `json:"occupancy_bps"`
	RentCollectionBps int64 `json:"rent_collection_bps"`
	FloatBps          int64 `json:"float_bps"`
}

// Metric names, used as breach/strategy cause keys.
const (
	MetricLiquidityRatio = "liquidity_ratio"
	MetricExitQueue      = "exit_queue_length"
	MetricTradeFailure   = "trade_failure_rate"
	MetricOccupancy      = "occupancy_rate"
	MetricRentCollection = "rent_collection_rate"
	MetricFloat          = "float_ratio"
)

// Thresholds are the documented healthy bounds. A zero threshold disables
// its check.
type Thresholds struct {
	MinLiquidityRatioBps int64 `yaml:"min_liquidity_ratio_bps" json:"min_liquidity_ratio_bps"`
	MaxExitQueueLength   int   `yaml:"max_exit_queue_length" json:"max_exit_queue_length"`
	MaxTradeFailureBps   int64 `yaml:"max_trade_failure_bps" json:"max_trade_failure_bps"`
	MinOccupancyBps      int64 `yaml:"min_occupancy_bps" json:"min_occupancy_bps"`
	MinRentCollectionBps int64 `yaml:"min_rent_collection_bps" json:"min_rent_collection_bps"`
	MinFloatBps          int64 `yaml:"min_float_bps" json:"min_float_bps"`
}

// Breach reports one metric outside its healthy bound.
type Breach struct {
	Metric    string `json:"metric"`
	Value     int64  `json:"value"`
	Threshold int64  `json:"threshold"`
}

// Breaches lists every threshold h violates, in a fixed order.
func (t Thresholds) Breaches(h Health) []Breach {
	var out []Breach
	if t.MinLiquidityRatioBps > 0 && h.ExitQueueLength > 0 && h.LiquidityRatioBps < t.MinLiquidityRatioBps {
		out = append(out, Breach{Metric: MetricLiquidityRatio, Value: h.LiquidityRatioBps, Threshold: t.MinLiquidityRatioBps})
	}
	if t.MaxExitQueueLength > 0 && h.ExitQueueLength > t.MaxExitQueueLength {
		out = append(out, Breach{Metric: MetricExitQueue, Value: int64(h.ExitQueueLength), Threshold: int64(t.MaxExitQueueLength)})
	}
	if t.MaxTradeFailureBps > 0 && h.TradeFailureBps > t.MaxTradeFailureBps {
		out = append(out, Breach{Metric: MetricTradeFailure, Value: h.TradeFailureBps, Threshold: t.MaxTradeFailureBps})
	}
	if t.MinOccupancyBps > 0 && h.OccupancyBps > 0 && h.OccupancyBps < t.MinOccupancyBps {
		out = append(out, Breach{Metric: MetricOccupancy, Value: h.OccupancyBps, Threshold: t.MinOccupancyBps})
	}
	if t.MinRentCollectionBps > 0 && h.RentCollectionBps > 0 && h.RentCollectionBps < t.MinRentCollectionBps {
		out = append(out, Breach{Metric: MetricRentCollection, Value: h.RentCollectionBps, Threshold: t.MinRentCollectionBps})
	}
	if t.MinFloatBps > 0 && h.FloatBps > 0 && h.FloatBps < t.MinFloatBps {
		out = append(out, Breach{Metric: MetricFloat, Value: h.FloatBps, Threshold: t.MinFloatBps})
	}
	return out
}

// MeasuredBps converts a measured num/den ratio to basis points with a
// floor of one. Zero is reserved for "no data this tick", so a genuine
// measured zero reports as 1 bp and still breaches minimum thresholds.
func MeasuredBps(num, den int64) int64 {
	bps := money.Ratio{Num: num, Den: den}.Bps()
	if bps < 1 {
		bps = 1
	}
	return bps
}

// MetricValue extracts one metric by name, for strategy verification.
func (h Health) MetricValue(metric string) int64 {
	switch metric {
	case MetricLiquidityRatio:
		return h.LiquidityRatioBps
	case MetricExitQueue:
		return int64(h.ExitQueueLength)
	case MetricTradeFailure:
		return h.TradeFailureBps
	case MetricOccupancy:
		return h.OccupancyBps
	case MetricRentCollection:
		return h.RentCollectionBps
	case MetricFloat:
		return h.FloatBps
	}
	return 0
}

// Improvement direction per metric: true when larger is healthier.
func MetricRises(metric string) bool {
	switch metric {
	case MetricLiquidityRatio, MetricOccupancy, MetricRentCollection, MetricFloat:
		return true
	}
	return false
}
