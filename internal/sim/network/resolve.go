package network

import (
	"fmt"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/ledger"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/queue"
)

// resolverFunc applies one action to the working state, returning a typed
// rejection or nil. Resolution never partially applies: a rejection leaves
// the tick state exactly as it found it.
type resolverFunc func(s *Session, t *tickState, a *queue.Pending) *ValidationError

var resolvers = map[string]resolverFunc{
	protocol.ActionBuy:             resolveBuy,
	protocol.ActionSell:            resolveSell,
	protocol.ActionPayRent:         resolvePayRent,
	protocol.ActionVote:            resolveVote,
	protocol.ActionCompleteService: resolveCompleteService,
	protocol.ActionAccessEquity:    resolveAccessEquity,
	protocol.ActionListProperty:    resolveListProperty,
}

func init() {
	for _, at := range protocol.SupportedActionTypes {
		if _, ok := resolvers[at]; !ok {
			panic(fmt.Sprintf("no resolver registered for action type %s", at))
		}
	}
}

// resolve consumes the ordered action list. Rejections become audit events,
// never errors; an error return means a ledger apply failed, which aborts
// the whole tick.
func (s *Session) resolve(t *tickState) error {
	for _, a := range t.actions {
		fn := resolvers[a.Type]
		if fn == nil {
			// Closed enum; decoding upstream should make this unreachable.
			s.rejectAction(t, a, reject(protocol.ErrBadRequest, "unsupported action type %s", a.Type))
			continue
		}
		if a.Type == protocol.ActionBuy || a.Type == protocol.ActionSell {
			t.ctr.trades++
		}
		verr := fn(s, t, a)
		if t.resolveErr != nil {
			return t.resolveErr
		}
		if verr != nil {
			s.rejectAction(t, a, verr)
			continue
		}
		t.event(protocol.Event{
			"type":      protocol.EventActionResolved,
			"action_id": a.ID,
			"actor":     a.Actor,
			"action":    a.Type,
			"source":    a.Source,
		})
	}
	return nil
}

func (s *Session) rejectAction(t *tickState, a *queue.Pending, verr *ValidationError) {
	if a.Type == protocol.ActionBuy || a.Type == protocol.ActionSell {
		t.ctr.tradeFailures++
	}
	t.event(protocol.Event{
		"type":      protocol.EventActionRejected,
		"action_id": a.ID,
		"actor":     a.Actor,
		"action":    a.Type,
		"source":    a.Source,
		"code":      verr.Code,
		"reason":    verr.Reason,
	})
}

func tradeableProp(p *propertyState) bool {
	switch p.Status {
	case market.StatusAvailable, market.StatusTenanted, market.StatusOwnerOccupied, market.StatusTenantBuyback:
		return true
	}
	return false
}

// floatAskPrice is the foundation's standing offer: mid plus the maker
// spread, less any vacancy-incentive discount.
func (s *Session) floatAskPrice(p *propertyState) money.Cents {
	base := p.tokenPrice()
	if p.Discounted {
		base -= money.MulBps(base, s.cfg.Healing.VacancyDiscountBps)
	}
	price := base + money.MulBps(base, s.cfg.MakerSpreadBps)
	if price < 1 {
		price = 1
	}
	return price
}

// resolveBuy fills from the exit queue oldest-first, then from the
// foundation float. Partial fills are allowed; zero fill rejects. A
// buyback-schedule action writes BUYBACK entries and advances the
// rent-to-own state machine.
func resolveBuy(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.BuyPayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed BUY payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	if !tradeableProp(prop) {
		return reject(protocol.ErrPropertyUnavailable, "property %s is %s", prop.ID, prop.Status)
	}
	if p.Tokens <= 0 {
		return reject(protocol.ErrBadRequest, "tokens must be positive")
	}

	buyback := a.Source == queue.SourceSystem &&
		prop.Status == market.StatusTenantBuyback && a.Actor == prop.OwnerID
	entryType := ledger.EntryTrade
	if buyback {
		entryType = ledger.EntryBuyback
	}

	remaining := p.Tokens
	var filled int64
	starved := false

	fill := func(seller string, tokens int64, price money.Cents) error {
		if err := t.commit(ledger.Entry{
			Type:       entryType,
			From:       seller,
			To:         a.Actor,
			PropertyID: prop.ID,
			Amount:     price * money.Cents(tokens),
			Tokens:     tokens,
		}); err != nil {
			return err
		}
		remaining -= tokens
		filled += tokens
		return nil
	}

	// Exit queue first, in match order.
	kept := t.exit[:0]
	for i := range t.exit {
		e := t.exit[i]
		if remaining <= 0 || e.PropertyID != prop.ID || e.Seller == a.Actor {
			kept = append(kept, e)
			continue
		}
		price := e.Ask
		if price < 1 {
			price = 1
		}
		take := e.Tokens
		if take > remaining {
			take = remaining
		}
		if afford := int64(t.book.Balance(a.Actor) / price); take > afford {
			take = afford
			starved = true
		}
		if take < 1 {
			kept = append(kept, e)
			continue
		}
		if err := fill(e.Seller, take, price); err != nil {
			t.resolveErr = err
			return reject(protocol.ErrInternal, "ledger apply failed")
		}
		e.Tokens -= take
		if e.Tokens > 0 {
			kept = append(kept, e)
		}
	}
	t.exit = kept

	// Then the foundation float at the standing ask.
	if remaining > 0 && a.Actor != s.cfg.FoundationID {
		avail := t.book.Holding(s.cfg.FoundationID, prop.ID) -
			reservedTokens(t.exit, s.cfg.FoundationID, prop.ID)
		price := s.floatAskPrice(prop)
		take := remaining
		if take > avail {
			take = avail
		}
		if afford := int64(t.book.Balance(a.Actor) / price); take > afford {
			take = afford
			starved = true
		}
		if take >= 1 {
			if err := fill(s.cfg.FoundationID, take, price); err != nil {
				t.resolveErr = err
				return reject(protocol.ErrInternal, "ledger apply failed")
			}
		}
	}

	if filled == 0 {
		if starved {
			return reject(protocol.ErrInsufficientFunds, "balance cannot fund any tokens of %s", prop.ID)
		}
		return reject(protocol.ErrNoSupply, "no tokens of %s offered", prop.ID)
	}

	t.event(protocol.Event{
		"type":      "TRADE_FILLED",
		"action_id": a.ID,
		"buyer":     a.Actor,
		"property":  prop.ID,
		"tokens":    filled,
		"requested": p.Tokens,
	})

	if buyback {
		advanceBuyback(s, t, prop)
	}
	return nil
}

// advanceBuyback ticks the rent-to-own schedule down and reclassifies to
// owner_occupied once the investor share is back inside the ceiling.
func advanceBuyback(s *Session, t *tickState, prop *propertyState) {
	if prop.BuybackLeft > 0 {
		prop.BuybackLeft--
	}
	settled := t.book.Holding(prop.OwnerID, prop.ID) -
		reservedTokens(t.exit, prop.OwnerID, prop.ID)
	investor := money.Ratio{
		Num: prop.TotalTokens - settled,
		Den: prop.TotalTokens,
	}
	if investor.Bps() <= OwnerThresholdBps {
		prop.Status = market.StatusOwnerOccupied
		prop.BuybackLeft = 0
		t.event(protocol.Event{
			"type":         protocol.EventPropertyReclassify,
			"property":     prop.ID,
			"status":       prop.Status,
			"investor_bps": investor.Bps(),
		})
	}
}

// resolveSell queues an exit entry: tokens stay with the seller, reserved
// until matched. The 49% ceiling is enforced here for resident owners, per
// the configured policy.
func resolveSell(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.SellPayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed SELL payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	if !tradeableProp(prop) {
		return reject(protocol.ErrPropertyUnavailable, "property %s is %s", prop.ID, prop.Status)
	}
	if p.Tokens <= 0 {
		return reject(protocol.ErrBadRequest, "tokens must be positive")
	}
	free := t.book.Holding(a.Actor, prop.ID) - reservedTokens(t.exit, a.Actor, prop.ID)
	if free < p.Tokens {
		return reject(protocol.ErrInsufficientHoldings, "%s holds %d unreserved tokens of %s", a.Actor, free, prop.ID)
	}

	if prop.Status == market.StatusOwnerOccupied && a.Actor == prop.OwnerID {
		// Reserved tokens are as good as sold for the ceiling.
		after := money.Ratio{
			Num: prop.TotalTokens - (free - p.Tokens),
			Den: prop.TotalTokens,
		}
		if after.Bps() > OwnerThresholdBps {
			if s.cfg.OwnerEquityPolicy == PolicyReject {
				return reject(protocol.ErrOwnerThreshold,
					"sale would push investor share to %s%%, above the owner-occupier ceiling", after.Percent())
			}
			prop.Status = market.StatusTenantBuyback
			prop.TenantID = prop.OwnerID
			prop.BuybackLeft = s.cfg.BuybackMonths
			t.event(protocol.Event{
				"type":         protocol.EventPropertyReclassify,
				"property":     prop.ID,
				"status":       prop.Status,
				"investor_bps": after.Bps(),
			})
		}
	}

	ask := prop.tokenPrice()
	if a.Actor == s.cfg.FoundationID {
		// The maker's standing offer sits a spread above mid.
		ask += money.MulBps(ask, s.cfg.MakerSpreadBps)
	}
	if ask < 1 {
		ask = 1
	}
	t.exit = append(t.exit, exitEntry{
		Seller:     a.Actor,
		PropertyID: prop.ID,
		Tokens:     p.Tokens,
		SinceMonth: t.month,
		Ask:        ask,
	})
	t.event(protocol.Event{
		"type":      "EXIT_QUEUED",
		"action_id": a.ID,
		"seller":    a.Actor,
		"property":  prop.ID,
		"tokens":    p.Tokens,
		"ask_cents": int64(ask),
	})
	return nil
}

// resolvePayRent settles accumulated arrears in full; current-month rent is
// collected by pre-computation, not by actions.
func resolvePayRent(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.PayRentPayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed PAY_RENT payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	payer := prop.TenantID
	if prop.Status == market.StatusOwnerOccupied {
		payer = prop.OwnerID
	}
	if payer != a.Actor {
		return reject(protocol.ErrNotTenant, "%s does not owe rent on %s", a.Actor, prop.ID)
	}
	if prop.Arrears <= 0 {
		return reject(protocol.ErrNothingOwed, "no arrears on %s", prop.ID)
	}
	owed := prop.Arrears
	if t.book.Balance(a.Actor) < owed {
		return reject(protocol.ErrInsufficientFunds, "balance below arrears of %s", owed)
	}
	if err := t.commit(ledger.Entry{
		Type:       ledger.EntryRentArrears,
		From:       a.Actor,
		To:         s.cfg.FoundationID,
		PropertyID: prop.ID,
		Amount:     owed,
	}); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	prop.Arrears = 0
	prop.OutreachOn = false
	t.ctr.rentCollected += owed
	if err := s.distribute(t, prop, a.Actor, owed); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	t.event(protocol.Event{
		"type":     "ARREARS_SETTLED",
		"property": prop.ID,
		"payer":    a.Actor,
		"amount":   int64(owed),
	})
	return nil
}

// resolveVote records a token-weighted governance vote as a ledger entry;
// it moves nothing but is hash-chained like everything else.
func resolveVote(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.VotePayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed VOTE payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	weight := t.book.Holding(a.Actor, prop.ID)
	if weight <= 0 {
		return reject(protocol.ErrNoPermission, "%s holds no tokens of %s", a.Actor, prop.ID)
	}
	switch p.Choice {
	case protocol.VoteYes, protocol.VoteNo, protocol.VoteAbstain:
	default:
		return reject(protocol.ErrBadRequest, "unknown vote choice %q", p.Choice)
	}
	if err := t.commit(ledger.Entry{
		Type:       ledger.EntryVote,
		From:       a.Actor,
		PropertyID: prop.ID,
		Tokens:     weight,
		Detail:     p.Topic + ":" + p.Choice,
	}); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	t.event(protocol.Event{
		"type":     "VOTE_CAST",
		"property": prop.ID,
		"voter":    a.Actor,
		"topic":    p.Topic,
		"choice":   p.Choice,
		"weight":   weight,
	})
	return nil
}

// resolveCompleteService pays a provider's invoice from the treasury.
func resolveCompleteService(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.CompleteServicePayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed COMPLETE_SERVICE payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	actor := t.parts[a.Actor]
	if actor == nil || actor.Role != market.RoleServiceProvider {
		return reject(protocol.ErrNoPermission, "%s is not a service provider", a.Actor)
	}
	invoice := money.Cents(p.InvoiceCents)
	if invoice <= 0 {
		return reject(protocol.ErrBadRequest, "invoice must be positive")
	}
	if t.book.Balance(s.cfg.FoundationID) < invoice {
		return reject(protocol.ErrTreasuryLimit, "treasury cannot cover invoice of %s", invoice)
	}
	if err := t.commit(ledger.Entry{
		Type:       ledger.EntryServicePayment,
		From:       s.cfg.FoundationID,
		To:         a.Actor,
		PropertyID: prop.ID,
		Amount:     invoice,
		Detail:     p.Task,
	}); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	t.event(protocol.Event{
		"type":     "SERVICE_COMPLETED",
		"property": prop.ID,
		"provider": a.Actor,
		"task":     p.Task,
		"amount":   p.InvoiceCents,
	})
	return nil
}

// resolveAccessEquity lets a resident owner sell tokens straight to the
// foundation for cash, inside the same 49% ceiling as an open-market sale.
func resolveAccessEquity(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.AccessEquityPayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed ACCESS_EQUITY payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	if prop.OwnerID != a.Actor {
		return reject(protocol.ErrNoPermission, "%s does not own %s", a.Actor, prop.ID)
	}
	if p.Tokens <= 0 {
		return reject(protocol.ErrBadRequest, "tokens must be positive")
	}
	free := t.book.Holding(a.Actor, prop.ID) - reservedTokens(t.exit, a.Actor, prop.ID)
	if free < p.Tokens {
		return reject(protocol.ErrInsufficientHoldings, "%s holds %d unreserved tokens of %s", a.Actor, free, prop.ID)
	}

	if prop.Status == market.StatusOwnerOccupied {
		after := money.Ratio{
			Num: prop.TotalTokens - (free - p.Tokens),
			Den: prop.TotalTokens,
		}
		if after.Bps() > OwnerThresholdBps {
			if s.cfg.OwnerEquityPolicy == PolicyReject {
				return reject(protocol.ErrOwnerThreshold,
					"release would push investor share to %s%%, above the owner-occupier ceiling", after.Percent())
			}
			prop.Status = market.StatusTenantBuyback
			prop.TenantID = prop.OwnerID
			prop.BuybackLeft = s.cfg.BuybackMonths
			t.event(protocol.Event{
				"type":         protocol.EventPropertyReclassify,
				"property":     prop.ID,
				"status":       prop.Status,
				"investor_bps": after.Bps(),
			})
		}
	}

	price := prop.tokenPrice()
	cost := price * money.Cents(p.Tokens)
	if t.book.Balance(s.cfg.FoundationID) < cost {
		return reject(protocol.ErrTreasuryLimit, "treasury cannot fund release of %s", cost)
	}
	if err := t.commit(ledger.Entry{
		Type:       ledger.EntryEquityRelease,
		From:       a.Actor,
		To:         s.cfg.FoundationID,
		PropertyID: prop.ID,
		Amount:     cost,
		Tokens:     p.Tokens,
	}); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	t.event(protocol.Event{
		"type":     "EQUITY_ACCESSED",
		"property": prop.ID,
		"owner":    a.Actor,
		"tokens":   p.Tokens,
		"amount":   int64(cost),
	})
	return nil
}

// resolveListProperty moves a draft onto the market, optionally revising
// the listing valuation.
func resolveListProperty(s *Session, t *tickState, a *queue.Pending) *ValidationError {
	p, ok := a.Payload.(*protocol.ListPropertyPayload)
	if !ok {
		return reject(protocol.ErrBadRequest, "malformed LIST_PROPERTY payload")
	}
	prop := t.props[p.PropertyID]
	if prop == nil {
		return reject(protocol.ErrUnknownProperty, "unknown property %s", p.PropertyID)
	}
	if prop.Status != market.StatusDraft {
		return reject(protocol.ErrPropertyUnavailable, "property %s is not a draft", prop.ID)
	}
	if prop.OwnerID != a.Actor && a.Actor != s.cfg.FoundationID {
		return reject(protocol.ErrNoPermission, "%s cannot list %s", a.Actor, prop.ID)
	}
	if p.ValuationCents > 0 {
		prop.Valuation = money.Cents(p.ValuationCents)
	}
	prop.Status = market.StatusAvailable
	if err := t.commit(ledger.Entry{
		Type:       ledger.EntryListing,
		From:       a.Actor,
		PropertyID: prop.ID,
		Detail:     "listed",
	}); err != nil {
		t.resolveErr = err
		return reject(protocol.ErrInternal, "ledger apply failed")
	}
	t.event(protocol.Event{
		"type":      "PROPERTY_LISTED",
		"property":  prop.ID,
		"lister":    a.Actor,
		"valuation": int64(prop.Valuation),
	})
	return nil
}
