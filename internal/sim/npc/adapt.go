package npc

// Tracker is one NPC's rolling realized-vs-expected return, the input to
// its self-correction. Values are basis points of portfolio value.
type Tracker struct {
	ExpectedBps int64 `json:"expected_bps"`
	RealizedBps int64 `json:"realized_bps"`
	Months      int   `json:"months"`
}

// Risk-tolerance nudge bounds (permille). Adaptation never pushes a
// personality outside these.
const (
	riskFloor = 100
	riskCeil  = 900
	riskStep  = 25

	// ewmaKeep/ewmaDiv: rolling metrics decay 3/4 per month.
	ewmaKeep = 3
	ewmaDiv  = 4
)

// Observe folds one month's expected and realized portfolio return into
// the rolling metric.
func (t *Tracker) Observe(expectedBps, realizedBps int64) {
	if t.Months == 0 {
		t.ExpectedBps = expectedBps
		t.RealizedBps = realizedBps
	} else {
		t.ExpectedBps = (t.ExpectedBps*ewmaKeep + expectedBps) / ewmaDiv
		t.RealizedBps = (t.RealizedBps*ewmaKeep + realizedBps) / ewmaDiv
	}
	t.Months++
}

// Adapt nudges risk tolerance toward whichever side the rolling record
// supports: beating expectations emboldens, falling short chastens. The
// move is a fixed step inside hard bounds, so given the same history two
// runs adapt identically.
func (t *Tracker) Adapt(p Personality) Personality {
	if t.Months == 0 {
		return p
	}
	switch {
	case t.RealizedBps > t.ExpectedBps:
		p.RiskTolerance += riskStep
	case t.RealizedBps < t.ExpectedBps:
		p.RiskTolerance -= riskStep
	}
	if p.RiskTolerance < riskFloor {
		p.RiskTolerance = riskFloor
	}
	if p.RiskTolerance > riskCeil {
		p.RiskTolerance = riskCeil
	}
	return p
}
