// Package healing is the five-phase monitor/responder that senses
// network-health metrics, diagnoses breaches, activates a mitigation
// strategy from a fixed catalogue, verifies the target metric and feeds
// the outcome back into future strategy selection.
package healing

import (
	"fmt"

	"tessera.estate/internal/sim/market"
)

// Strategy statuses.
const (
	StatusMonitoring = "monitoring"
	StatusActive     = "active"
	StatusVerifying  = "verifying"
	StatusResolved   = "resolved"
	StatusFailed     = "failed"
)

// Diagnosis categories.
const (
	CauseNetwork  = "network_macro"
	CauseProperty = "property_idiosyncratic"
)

// Strategy kinds, the fixed catalogue.
const (
	KindLiquidityFloorBids  = "liquidity_floor_bids"
	KindBuyerSellerMatch    = "buyer_seller_match"
	KindPartialExitProgram  = "partial_exit_program"
	KindRentToOwnAccel      = "rent_to_own_acceleration"
	KindPropertySourcing    = "property_sourcing"
	KindHomeownerOutreach   = "homeowner_outreach"
	KindVacancyIncentive    = "vacancy_incentive"
)

// Kinds lists the catalogue in escalation order per target metric; the
// escalation path for a failed strategy is the next kind in its row.
var escalation = map[string][]string{
	market.MetricLiquidityRatio: {KindBuyerSellerMatch, KindLiquidityFloorBids, KindPartialExitProgram},
	market.MetricExitQueue:      {KindBuyerSellerMatch, KindLiquidityFloorBids, KindPartialExitProgram},
	market.MetricTradeFailure:   {KindBuyerSellerMatch, KindLiquidityFloorBids},
	market.MetricOccupancy:      {KindVacancyIncentive, KindHomeownerOutreach, KindPropertySourcing},
	market.MetricRentCollection: {KindRentToOwnAccel, KindHomeownerOutreach},
	market.MetricFloat:          {KindPropertySourcing},
}

// Strategy is one instantiated mitigation working through its own state
// machine. Immutable identity, mutable progress.
type Strategy struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Cause           string `json:"cause"`
	Category        string `json:"category"`
	PropertyID      string `json:"property_id,omitempty"`
	TargetMetric    string `json:"target_metric"`
	Status          string `json:"status"`
	ActivationMonth int    `json:"activation_month"`
	BaselineValue   int64  `json:"baseline_value"`
	BestValue       int64  `json:"best_value"`
	VerifyTicksLeft int    `json:"verify_ticks_left"`
	Escalated       bool   `json:"escalated"`
}

func (s *Strategy) terminal() bool {
	return s.Status == StatusResolved || s.Status == StatusFailed
}

// improved reports whether value beats the baseline by at least delta in
// the metric's healthy direction.
func (s *Strategy) improved(value, delta int64) bool {
	if market.MetricRises(s.TargetMetric) {
		return value >= s.BaselineValue+delta
	}
	return value <= s.BaselineValue-delta
}

func strategyID(kind string, month int, propertyID string) string {
	if propertyID == "" {
		return fmt.Sprintf("H%03d-%s", month, kind)
	}
	return fmt.Sprintf("H%03d-%s-%s", month, kind, propertyID)
}
