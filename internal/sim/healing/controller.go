package healing

import (
	"sort"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/market"
)

// Config tunes the controller.
type Config struct {
	Thresholds market.Thresholds `yaml:"thresholds" json:"thresholds"`

	// VerifyTicks is how many ticks a strategy gets to move its target
	// metric before it fails and escalates.
	VerifyTicks int `yaml:"verify_ticks" json:"verify_ticks"`

	// ImprovementDeltaBps is the minimum move of the target metric
	// (basis points, or absolute units for queue length) that counts as
	// improvement during verification.
	ImprovementDeltaBps int64 `yaml:"improvement_delta_bps" json:"improvement_delta_bps"`

	// FloorBidBudgetBps caps one tick's liquidity-pool spend as a share
	// of treasury.
	FloorBidBudgetBps int64 `yaml:"floor_bid_budget_bps" json:"floor_bid_budget_bps"`

	// VacancyDiscountBps is the price discount advertised on vacant
	// stock under a vacancy_incentive strategy.
	VacancyDiscountBps int64 `yaml:"vacancy_discount_bps" json:"vacancy_discount_bps"`
}

// Directive is one concrete mitigation the batch processor materializes:
// floor bids become maximum-priority foundation buy actions, incentives
// and accelerations become working-state adjustments.
type Directive struct {
	StrategyID string      `json:"strategy_id"`
	Kind       string      `json:"kind"`
	PropertyID string      `json:"property_id,omitempty"`
	Tokens     int64       `json:"tokens,omitempty"`
	Budget     money.Cents `json:"budget_cents,omitempty"`
}

// Outcome is one tick's pass over all five phases.
type Outcome struct {
	Breaches   []market.Breach
	Started    []*Strategy
	Changed    []*Strategy
	Directives []Directive
}

// Controller owns the live strategies and the learned selection weights.
// It is driven once per tick from inside the batch; it never touches the
// ledger itself.
type Controller struct {
	cfg     Config
	weights map[string]float64
	active  []*Strategy
	history []*Strategy
}

func NewController(cfg Config) *Controller {
	if cfg.VerifyTicks <= 0 {
		cfg.VerifyTicks = 3
	}
	if cfg.ImprovementDeltaBps <= 0 {
		cfg.ImprovementDeltaBps = 100
	}
	if cfg.FloorBidBudgetBps <= 0 {
		cfg.FloorBidBudgetBps = 2000
	}
	w := map[string]float64{}
	for _, kinds := range escalation {
		for _, k := range kinds {
			w[k] = 1.0
		}
	}
	return &Controller{cfg: cfg, weights: w}
}

// Clone deep-copies the controller. Ticks run the phases on a clone and
// swap it in at commit, so an aborted tick cannot half-advance a strategy.
func (c *Controller) Clone() *Controller {
	nc := &Controller{
		cfg:     c.cfg,
		weights: make(map[string]float64, len(c.weights)),
		active:  make([]*Strategy, len(c.active)),
		history: make([]*Strategy, len(c.history)),
	}
	for k, v := range c.weights {
		nc.weights[k] = v
	}
	for i, s := range c.active {
		cp := *s
		nc.active[i] = &cp
	}
	for i, s := range c.history {
		cp := *s
		nc.history[i] = &cp
	}
	return nc
}

// Strategies returns live and terminal strategies, live first.
func (c *Controller) Strategies() []*Strategy {
	out := make([]*Strategy, 0, len(c.active)+len(c.history))
	out = append(out, c.active...)
	out = append(out, c.history...)
	return out
}

// Run executes verify -> learn for live strategies, then sense ->
// diagnose -> respond for fresh breaches, all deterministically from the
// snapshot and the seeded hash stream.
func (c *Controller) Run(snap *market.Snapshot, seed int64, month int) Outcome {
	var out Outcome

	c.verify(snap, &out)

	out.Breaches = c.cfg.Thresholds.Breaches(snap.Health)
	for _, breach := range out.Breaches {
		cause, propertyID := diagnose(breach, snap)
		if c.covered(breach.Metric) {
			continue
		}
		s := c.respond(breach, cause, propertyID, snap, seed, month)
		if s == nil {
			continue
		}
		c.active = append(c.active, s)
		out.Started = append(out.Started, s)
	}

	for _, s := range c.active {
		if s.Status != StatusActive && s.Status != StatusVerifying {
			continue
		}
		if d, ok := c.directive(s, snap); ok {
			out.Directives = append(out.Directives, d)
		}
	}

	c.compact()
	return out
}

// verify re-measures each live strategy's target metric and advances its
// state machine, feeding outcomes into the weight table (the learn phase).
func (c *Controller) verify(snap *market.Snapshot, out *Outcome) {
	for _, s := range c.active {
		if s.terminal() || s.Status == StatusMonitoring {
			continue
		}
		val := snap.Health.MetricValue(s.TargetMetric)
		if market.MetricRises(s.TargetMetric) && val > s.BestValue {
			s.BestValue = val
		} else if !market.MetricRises(s.TargetMetric) && val < s.BestValue {
			s.BestValue = val
		}

		switch {
		case s.improved(val, c.cfg.ImprovementDeltaBps):
			s.Status = StatusResolved
			c.learn(s.Kind, true)
			out.Changed = append(out.Changed, s)
		case s.VerifyTicksLeft <= 1:
			s.Status = StatusFailed
			c.learn(s.Kind, false)
			out.Changed = append(out.Changed, s)
		default:
			s.Status = StatusVerifying
			s.VerifyTicksLeft--
		}
	}
}

// covered implements idempotent triggering: a metric with a strategy
// still in the active list does not spawn another. Strategies that went
// terminal this tick stay covering until compact moves them to history,
// so a failure escalates on the next tick, through lastFailed, rather
// than re-rolling a fresh strategy in the same pass.
func (c *Controller) covered(metric string) bool {
	for _, s := range c.active {
		if s.TargetMetric == metric {
			return true
		}
	}
	return false
}

// diagnose classifies a breach as network-wide or single-property stress.
// Occupancy and rent-collection breaches point at the worst property when
// one stands out; liquidity, exit-queue and trade-failure stress is
// network-wide by nature.
func diagnose(b market.Breach, snap *market.Snapshot) (cause, propertyID string) {
	switch b.Metric {
	case market.MetricOccupancy:
		if id := worstVacant(snap); id != "" {
			return CauseProperty, id
		}
	case market.MetricRentCollection:
		if id := worstArrears(snap); id != "" {
			return CauseProperty, id
		}
	}
	return CauseNetwork, ""
}

func worstVacant(snap *market.Snapshot) string {
	var id string
	var best money.Cents
	for i := range snap.Properties {
		p := &snap.Properties[i]
		if p.Status == market.StatusAvailable && p.Valuation > best {
			best = p.Valuation
			id = p.ID
		}
	}
	return id
}

func worstArrears(snap *market.Snapshot) string {
	var id string
	var best money.Cents
	for i := range snap.Properties {
		p := &snap.Properties[i]
		if p.Arrears > best {
			best = p.Arrears
			id = p.ID
		}
	}
	return id
}

// respond picks a catalogue entry for the breach, biased by the learned
// weight table and gated by treasury affordability. A failed strategy for
// the same metric escalates to the next kind in its row instead of
// re-rolling.
func (c *Controller) respond(b market.Breach, cause, propertyID string, snap *market.Snapshot, seed int64, month int) *Strategy {
	kinds := escalation[b.Metric]
	if len(kinds) == 0 {
		return nil
	}

	kind := ""
	if prev := c.lastFailed(b.Metric); prev != nil {
		kind = nextKind(kinds, prev.Kind)
		if kind == "" {
			// Escalation exhausted; restart the row at reduced scope.
			kind = kinds[0]
		}
	} else {
		weights := make(map[string]float64, len(kinds))
		for _, k := range kinds {
			if !c.affordable(k, snap) {
				continue
			}
			weights[k] = c.weights[k]
		}
		kind = market.SampleWeighted(weights, market.Hash3(seed, month, market.HashID(b.Metric), 31))
		if kind == "" {
			kind = kinds[0]
		}
	}

	s := &Strategy{
		ID:              strategyID(kind, month, propertyID),
		Kind:            kind,
		Cause:           b.Metric,
		Category:        cause,
		PropertyID:      propertyID,
		TargetMetric:    b.Metric,
		Status:          StatusActive,
		ActivationMonth: month,
		BaselineValue:   b.Value,
		BestValue:       b.Value,
		VerifyTicksLeft: c.cfg.VerifyTicks,
	}
	if prev := c.lastFailed(b.Metric); prev != nil {
		s.Escalated = true
	}
	return s
}

func (c *Controller) lastFailed(metric string) *Strategy {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].TargetMetric == metric && c.history[i].Status == StatusFailed {
			return c.history[i]
		}
	}
	return nil
}

func nextKind(kinds []string, after string) string {
	for i, k := range kinds {
		if k == after && i+1 < len(kinds) {
			return kinds[i+1]
		}
	}
	return ""
}

func (c *Controller) affordable(kind string, snap *market.Snapshot) bool {
	switch kind {
	case KindLiquidityFloorBids, KindPartialExitProgram:
		return snap.Treasury > 0
	}
	return true
}

// directive materializes one tick of work for a live strategy.
func (c *Controller) directive(s *Strategy, snap *market.Snapshot) (Directive, bool) {
	d := Directive{StrategyID: s.ID, Kind: s.Kind, PropertyID: s.PropertyID}
	switch s.Kind {
	case KindLiquidityFloorBids:
		d.Budget = money.MulBps(snap.Treasury, c.cfg.FloorBidBudgetBps)
		return d, d.Budget > 0 && len(snap.ExitQueue) > 0
	case KindBuyerSellerMatch:
		if len(snap.ExitQueue) == 0 {
			return d, false
		}
		oldest := snap.ExitQueue[0]
		d.PropertyID = oldest.PropertyID
		d.Tokens = oldest.Tokens
		d.Budget = oldest.AskPrice * money.Cents(oldest.Tokens)
		return d, true
	case KindPartialExitProgram:
		d.Budget = money.MulBps(snap.Treasury, c.cfg.FloorBidBudgetBps*2)
		return d, d.Budget > 0 && len(snap.ExitQueue) > 0
	case KindVacancyIncentive, KindRentToOwnAccel, KindHomeownerOutreach, KindPropertySourcing:
		return d, true
	}
	return d, false
}

// learn nudges the selection weight for a kind on resolution or failure,
// bounded so no kind ever drops out of the catalogue entirely.
func (c *Controller) learn(kind string, resolved bool) {
	w := c.weights[kind]
	if resolved {
		w += 0.25
	} else {
		w -= 0.25
	}
	if w < 0.25 {
		w = 0.25
	}
	if w > 4.0 {
		w = 4.0
	}
	c.weights[kind] = w
}

// compact moves terminal strategies to history, keeping active ordered.
func (c *Controller) compact() {
	live := c.active[:0]
	for _, s := range c.active {
		if s.terminal() {
			c.history = append(c.history, s)
		} else {
			live = append(live, s)
		}
	}
	c.active = live
	sort.SliceStable(c.active, func(i, j int) bool { return c.active[i].ID < c.active[j].ID })
}

// Weights exposes a copy of the learned table, for the digest and tests.
func (c *Controller) Weights() map[string]float64 {
	out := make(map[string]float64, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}
