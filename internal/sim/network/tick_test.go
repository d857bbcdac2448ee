package network

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/healing"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/npc"
	"tessera.estate/internal/sim/queue"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// flatConfig pins the market flat: stable forever, zero drift, fixed
// indicators. Money arithmetic becomes exactly predictable.
func flatConfig() Config {
	return Config{
		NetworkID:         "net-test",
		Seed:              42,
		OwnerEquityPolicy: PolicyReject,
		InitialCondition:  market.Stable,
		InitialIndicators: market.Indicators{InterestBps: 450, PopGrowthBps: 150, CommodityBps: 10_000},
		ConditionTable: market.TransitionWeights{
			market.Stable: {market.Stable: 1},
		},
		DriftTable: market.DriftTable{
			market.Stable: {MinBps: 0, MaxBps: 0},
		},
		FoundationID: "foundation",
		Genesis: Genesis{
			Participants: []GenesisParticipant{
				{ID: "foundation", Role: market.RoleFoundation, Balance: 100_000_00},
				{ID: "alice", Role: market.RoleInvestor, Balance: 100_000_00},
				{ID: "bob", Role: market.RoleTenant, Balance: 50_000_00},
			},
			Properties: []GenesisProperty{
				// $500,000 over 100,000 tokens: 500 cents per token.
				// 120 bps annual yield: $500 rent per month.
				{ID: "prop-1", Name: "12 Harbour St", TotalTokens: 100_000,
					Valuation: 50_000_000, RentYieldBps: 120,
					Status: market.StatusTenanted, TenantID: "bob"},
			},
		},
	}
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := NewSession(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func submit(t *testing.T, s *Session, actor, id, actionType string, payload interface{}) protocol.SubmitReceipt {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return s.Submit(protocol.SubmitRequest{
		ActorID: actor,
		Action:  protocol.ActionMsg{ID: id, Type: actionType, Payload: raw},
	})
}

func mustTick(t *testing.T, s *Session) *TickRecord {
	t.Helper()
	rec, err := s.RunTick()
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	return rec
}

type eventRecorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *eventRecorder) Publish(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) byType(typ string) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Event
	for _, ev := range r.events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestBuyFillsFromFloatAtSpreadPrice(t *testing.T) {
	s := newTestSession(t, flatConfig())

	rc := submit(t, s, "alice", "a-1", protocol.ActionBuy,
		protocol.BuyPayload{PropertyID: "prop-1", Tokens: 10_000})
	if !rc.Accepted {
		t.Fatalf("submit rejected: %s %s", rc.Code, rc.Message)
	}
	mustTick(t, s)

	snap := s.Snapshot()
	alice := snap.Participant("alice")
	if alice == nil || len(alice.Holdings) != 1 || alice.Holdings[0].Tokens != 10_000 {
		t.Fatalf("alice holdings = %+v, want 10000 tokens of prop-1", alice)
	}
	// Mid 500 plus 150 bps spread = 507 cents per token, on every fill.
	wantCost := money.Cents(10_000 * 507)
	if got := money.Cents(100_000_00) - alice.Balance; got != wantCost {
		t.Fatalf("alice paid %s, want %s", got, wantCost)
	}
}

func TestDividendDistribution(t *testing.T) {
	s := newTestSession(t, flatConfig())

	submit(t, s, "alice", "a-1", protocol.ActionBuy,
		protocol.BuyPayload{PropertyID: "prop-1", Tokens: 10_000})
	mustTick(t, s)

	before := s.Snapshot().Participant("alice").Balance
	rec := mustTick(t, s)

	// $500 rent, 8% service fee: $460 to distribute. Alice holds 10%.
	want := money.Cents(46_00)
	got := s.Snapshot().Participant("alice").Balance - before
	if got != want {
		t.Fatalf("alice dividend = %s, want %s", got, want)
	}

	var rent, dividends int
	for _, e := range rec.Entries {
		switch e.Type {
		case "RENT":
			rent++
		case "DIVIDEND":
			dividends++
		}
	}
	if rent != 1 || dividends == 0 {
		t.Fatalf("entries: %d rent, %d dividends", rent, dividends)
	}
}

func TestOversellRejectedAtSubmit(t *testing.T) {
	s := newTestSession(t, flatConfig())

	rc := submit(t, s, "alice", "a-1", protocol.ActionSell,
		protocol.SellPayload{PropertyID: "prop-1", Tokens: 10})
	if rc.Accepted || rc.Code != protocol.ErrInsufficientHoldings {
		t.Fatalf("receipt = %+v, want %s rejection", rc, protocol.ErrInsufficientHoldings)
	}
}

func TestDuplicateSubmissionReturnsOriginalReceipt(t *testing.T) {
	s := newTestSession(t, flatConfig())

	first := submit(t, s, "alice", "a-1", protocol.ActionBuy,
		protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100})
	second := submit(t, s, "alice", "a-1", protocol.ActionBuy,
		protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100})
	if !second.Duplicate {
		t.Fatalf("second receipt not flagged duplicate: %+v", second)
	}
	if second.QueuedForMonth != first.QueuedForMonth {
		t.Fatalf("duplicate queued for %d, original %d", second.QueuedForMonth, first.QueuedForMonth)
	}

	mustTick(t, s)
	if got := s.Snapshot().Participant("alice").Holdings[0].Tokens; got != 100 {
		t.Fatalf("alice holds %d tokens, want 100 (queued once)", got)
	}
}

func ownerOccupiedConfig(policy string) Config {
	cfg := flatConfig()
	cfg.OwnerEquityPolicy = policy
	cfg.Genesis.Participants = append(cfg.Genesis.Participants, GenesisParticipant{
		ID: "olivia", Role: market.RoleHomeowner, Balance: 20_000_00,
	})
	cfg.Genesis.Properties = append(cfg.Genesis.Properties, GenesisProperty{
		ID: "prop-2", Name: "4 Mill Ln", TotalTokens: 100_000,
		Valuation: 40_000_000, RentYieldBps: 100,
		Status: market.StatusOwnerOccupied, OwnerID: "olivia", OwnerTokens: 60_000,
	})
	return cfg
}

func TestOwnerThresholdRejectPolicy(t *testing.T) {
	s := newTestSession(t, ownerOccupiedConfig(PolicyReject))
	rec := &eventRecorder{}
	s.SetEvents(rec)

	// Selling 15,000 of 60,000 would push the investor share to 55%.
	rc := submit(t, s, "olivia", "o-1", protocol.ActionSell,
		protocol.SellPayload{PropertyID: "prop-2", Tokens: 15_000})
	if !rc.Accepted {
		t.Fatalf("submit rejected early: %+v", rc)
	}
	mustTick(t, s)

	var found bool
	for _, ev := range rec.byType("ACTION_REJECTED") {
		if ev["code"] == protocol.ErrOwnerThreshold {
			found = true
		}
	}
	if !found {
		t.Fatalf("no %s rejection event", protocol.ErrOwnerThreshold)
	}
	if got := s.Snapshot().Property("prop-2").Status; got != market.StatusOwnerOccupied {
		t.Fatalf("status = %s, want unchanged owner_occupied", got)
	}
	for _, e := range s.Snapshot().ExitQueue {
		if e.Seller == "olivia" {
			t.Fatalf("rejected sale still queued: %+v", e)
		}
	}
}

func TestOwnerThresholdReclassifyPolicy(t *testing.T) {
	s := newTestSession(t, ownerOccupiedConfig(PolicyReclassify))
	rec := &eventRecorder{}
	s.SetEvents(rec)

	submit(t, s, "olivia", "o-1", protocol.ActionSell,
		protocol.SellPayload{PropertyID: "prop-2", Tokens: 15_000})
	mustTick(t, s)

	prop := s.Snapshot().Property("prop-2")
	if prop.Status != market.StatusTenantBuyback {
		t.Fatalf("status = %s, want tenant_buyback", prop.Status)
	}
	if prop.TenantID != "olivia" {
		t.Fatalf("tenant = %s, want olivia staying in residence", prop.TenantID)
	}
	if len(rec.byType("PROPERTY_RECLASSIFIED")) == 0 {
		t.Fatal("no PROPERTY_RECLASSIFIED event")
	}
}

func TestTickFailureRestoresQueueAndState(t *testing.T) {
	s := newTestSession(t, flatConfig())
	rec := &eventRecorder{}
	s.SetEvents(rec)

	submit(t, s, "alice", "a-1", protocol.ActionBuy,
		protocol.BuyPayload{PropertyID: "prop-1", Tokens: 1_000})
	digestBefore := s.Snapshot().Digest
	s.failNextTick = true

	if _, err := s.RunTick(); err == nil {
		t.Fatal("RunTick succeeded despite injected fault")
	}
	if s.Month() != 0 {
		t.Fatalf("month advanced to %d after failed tick", s.Month())
	}
	if s.Snapshot().Digest != digestBefore {
		t.Fatal("snapshot changed after failed tick")
	}
	if s.queue.PendingCount(1) != 1 {
		t.Fatalf("queue has %d pending for month 1, want 1 restored", s.queue.PendingCount(1))
	}
	if len(rec.byType("TICK_FAILED")) != 1 {
		t.Fatal("no TICK_FAILED event")
	}

	// The retried tick consumes the restored action.
	mustTick(t, s)
	if got := s.Snapshot().Participant("alice").Holdings[0].Tokens; got != 1_000 {
		t.Fatalf("alice holds %d tokens after retry, want 1000", got)
	}
}

func TestStaleSubmissionResolvesNextTick(t *testing.T) {
	s := newTestSession(t, flatConfig())
	mustTick(t, s)

	// A submission racing the tick can land in a partition the tick has
	// already frozen. The next tick must sweep it up, not strand it.
	raw, err := json.Marshal(protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	s.queue.Add(&queue.Pending{
		ID: "a-1", Actor: "alice", Type: protocol.ActionBuy,
		Payload: &protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100},
		Raw:     raw, Month: 1, Source: queue.SourceParticipant,
	})

	mustTick(t, s)
	if s.queue.Len() != 0 {
		t.Fatalf("queue still holds %d actions after the sweep", s.queue.Len())
	}
	if got := holdingOf(s, "alice", "prop-1"); got != 100 {
		t.Fatalf("alice holds %d tokens, want 100 from the swept action", got)
	}
}

func TestRecordedActionSkipsSubmissionPrecheck(t *testing.T) {
	s := newTestSession(t, flatConfig())
	rec := &eventRecorder{}
	s.SetEvents(rec)

	// A journalled buy far beyond the actor's balance would fail the
	// optimistic precheck; queued directly it is judged at resolution,
	// which fills what the balance affords.
	raw, err := json.Marshal(protocol.BuyPayload{PropertyID: "prop-1", Tokens: 1_000_000})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := s.SubmitRecorded(ActionRecord{
		ID: "a-1", Actor: "alice", Type: protocol.ActionBuy, Payload: raw,
	}); err != nil {
		t.Fatalf("SubmitRecorded: %v", err)
	}
	if s.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 queued without precheck", s.PendingCount())
	}

	tick := mustTick(t, s)
	if len(tick.Actions) != 1 || tick.Actions[0].ID != "a-1" {
		t.Fatalf("tick actions = %+v, want the recorded action journalled", tick.Actions)
	}
	if got := holdingOf(s, "alice", "prop-1"); got == 0 {
		t.Fatal("recorded buy filled nothing")
	}
	if len(rec.byType("ACTION_RESOLVED")) == 0 {
		t.Fatal("no ACTION_RESOLVED event for the recorded action")
	}
}

func TestConcurrentTickGetsClockBusy(t *testing.T) {
	s := newTestSession(t, flatConfig())
	s.processing.Store(true)
	if _, err := s.RunTick(); err != ErrClockBusy {
		t.Fatalf("err = %v, want ErrClockBusy", err)
	}
	s.processing.Store(false)
	mustTick(t, s)
}

func npcConfig() Config {
	cfg := flatConfig()
	cfg.ConditionTable = market.TransitionWeights{
		market.Stable:   {market.Stable: 0.8, market.Boom: 0.1, market.Declining: 0.1},
		market.Boom:     {market.Boom: 0.6, market.Stable: 0.4},
		market.Declining: {market.Declining: 0.5, market.Stable: 0.4, market.Bust: 0.1},
		market.Bust:     {market.Bust: 0.5, market.Declining: 0.3, market.Stagnant: 0.2},
		market.Stagnant: {market.Stagnant: 0.6, market.Stable: 0.4},
	}
	cfg.DriftTable = market.DriftTable{
		market.Boom: {MinBps: 50, MaxBps: 150}, market.Stable: {MinBps: -20, MaxBps: 60},
		market.Stagnant: {MinBps: -30, MaxBps: 30}, market.Declining: {MinBps: -120, MaxBps: -10},
		market.Bust: {MinBps: -300, MaxBps: -80},
	}
	cfg.IndicatorBands = market.IndicatorBands{
		Interest:  market.IndicatorBand{MinBps: 100, MaxBps: 900, StepBps: 25},
		PopGrowth: market.IndicatorBand{MinBps: -100, MaxBps: 400, StepBps: 20},
		Commodity: market.IndicatorBand{MinBps: 7000, MaxBps: 13000, StepBps: 200},
	}
	cfg.Genesis.Participants = append(cfg.Genesis.Participants,
		GenesisParticipant{ID: "npc-1", Role: market.RoleInvestor, Balance: 80_000_00, NPC: true,
			Personality: npc.Personality{RiskTolerance: 700, Patience: 200, Goal: npc.GoalAccumulate}},
		GenesisParticipant{ID: "npc-2", Role: market.RoleInvestor, Balance: 60_000_00, NPC: true,
			Personality: npc.Personality{RiskTolerance: 300, Patience: 800, Goal: npc.GoalIncome}},
	)
	return cfg
}

func TestDeterministicReplaySameDigests(t *testing.T) {
	run := func() []string {
		s := newTestSession(t, npcConfig())
		var digests []string
		for m := 1; m <= 6; m++ {
			if m == 1 {
				submit(t, s, "alice", "a-1", protocol.ActionBuy,
					protocol.BuyPayload{PropertyID: "prop-1", Tokens: 2_000})
			}
			if m == 3 {
				submit(t, s, "alice", "a-2", protocol.ActionSell,
					protocol.SellPayload{PropertyID: "prop-1", Tokens: 500})
			}
			rec := mustTick(t, s)
			digests = append(digests, rec.Digest)
		}
		return digests
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("month %d digest diverged:\n  %s\n  %s", i+1, a[i], b[i])
		}
	}
}

func TestTokenAndCashConservation(t *testing.T) {
	s := newTestSession(t, npcConfig())

	sumCash := func() money.Cents {
		var sum money.Cents
		snap := s.Snapshot()
		for i := range snap.Participants {
			sum += snap.Participants[i].Balance
		}
		return sum
	}
	initial := sumCash()

	for m := 1; m <= 12; m++ {
		mustTick(t, s)
	}

	if got := sumCash(); got != initial {
		t.Fatalf("cash not conserved: %s -> %s", initial, got)
	}
	snap := s.Snapshot()
	for i := range snap.Properties {
		p := &snap.Properties[i]
		var held int64
		for j := range snap.Participants {
			for _, h := range snap.Participants[j].Holdings {
				if h.PropertyID == p.ID {
					held += h.Tokens
				}
			}
		}
		if held != p.TotalTokens {
			t.Fatalf("property %s: %d tokens held of %d issued", p.ID, held, p.TotalTokens)
		}
	}
}

func TestHealingStrategyStartsOnOccupancyBreach(t *testing.T) {
	cfg := flatConfig()
	cfg.Healing = healing.Config{
		Thresholds: market.Thresholds{MinOccupancyBps: 9_000},
	}
	cfg.Genesis.Properties = append(cfg.Genesis.Properties, GenesisProperty{
		ID: "prop-3", Name: "9 Vacant Ct", TotalTokens: 50_000,
		Valuation: 30_000_000, RentYieldBps: 110, Status: market.StatusAvailable,
	})
	s := newTestSession(t, cfg)
	rec := &eventRecorder{}
	s.SetEvents(rec)

	mustTick(t, s)
	mustTick(t, s)

	if len(rec.byType("STRATEGY_STARTED")) == 0 {
		t.Fatal("occupancy breach did not start a strategy")
	}
}

func TestBuybackScheduleReclassifiesAtThreshold(t *testing.T) {
	cfg := ownerOccupiedConfig(PolicyReclassify)
	cfg.BuybackMonths = 4
	s := newTestSession(t, cfg)
	rec := &eventRecorder{}
	s.SetEvents(rec)

	// Releasing equity past the ceiling reclassifies and starts the
	// buyback schedule; unlike a queued sale the transfer is immediate.
	submit(t, s, "olivia", "o-1", protocol.ActionAccessEquity,
		protocol.AccessEquityPayload{PropertyID: "prop-2", Tokens: 15_000})
	mustTick(t, s)
	if got := s.Snapshot().Property("prop-2").Status; got != market.StatusTenantBuyback {
		t.Fatalf("status after sale = %s, want tenant_buyback", got)
	}

	// Milestone buybacks run every month; the schedule must land the
	// property back under the ceiling and reclassify to owner_occupied.
	for m := 0; m < 8; m++ {
		mustTick(t, s)
		if s.Snapshot().Property("prop-2").Status == market.StatusOwnerOccupied {
			return
		}
	}
	t.Fatalf("property never reclassified; status = %s, investor tokens = %d",
		s.Snapshot().Property("prop-2").Status,
		s.Snapshot().Property("prop-2").TotalTokens-holdingOf(s, "olivia", "prop-2"))
}

func holdingOf(s *Session, participant, property string) int64 {
	pv := s.Snapshot().Participant(participant)
	if pv == nil {
		return 0
	}
	for _, h := range pv.Holdings {
		if h.PropertyID == property {
			return h.Tokens
		}
	}
	return 0
}
