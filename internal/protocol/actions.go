package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action types form a closed enum; payload shape is fixed per type and
// checked at the submission boundary, never inferred at resolution time.
const (
	ActionBuy             = "BUY"
	ActionSell            = "SELL"
	ActionPayRent         = "PAY_RENT"
	ActionVote            = "VOTE"
	ActionCompleteService = "COMPLETE_SERVICE"
	ActionAccessEquity    = "ACCESS_EQUITY"
	ActionListProperty    = "LIST_PROPERTY"
)

var SupportedActionTypes = []string{
	ActionBuy,
	ActionSell,
	ActionPayRent,
	ActionVote,
	ActionCompleteService,
	ActionAccessEquity,
	ActionListProperty,
}

// ActionMsg is the wire shape of one submitted action. ID is chosen by the
// client for idempotent resubmission; the server assigns one when omitted.
type ActionMsg struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type"`
	Priority int             `json:"priority,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type BuyPayload struct {
	PropertyID string `json:"property_id"`
	Tokens     int64  `json:"tokens"`
}

type SellPayload struct {
	PropertyID string `json:"property_id"`
	Tokens     int64  `json:"tokens"`
}

type PayRentPayload struct {
	PropertyID string `json:"property_id"`
}

type VotePayload struct {
	PropertyID string `json:"property_id"`
	Topic      string `json:"topic"`
	Choice     string `json:"choice"`
}

// Vote choices.
const (
	VoteYes     = "YES"
	VoteNo      = "NO"
	VoteAbstain = "ABSTAIN"
)

type CompleteServicePayload struct {
	PropertyID   string `json:"property_id"`
	Task         string `json:"task"`
	InvoiceCents int64  `json:"invoice_cents"`
}

type AccessEquityPayload struct {
	PropertyID string `json:"property_id"`
	Tokens     int64  `json:"tokens"`
}

type ListPropertyPayload struct {
	PropertyID     string `json:"property_id"`
	ValuationCents int64  `json:"valuation_cents,omitempty"`
}

// DecodePayload decodes raw into the payload struct for actionType with a
// strict decoder. Call after schema validation; the strict pass catches
// drift between schema and struct tags.
func DecodePayload(actionType string, raw json.RawMessage) (interface{}, error) {
	var dst interface{}
	switch actionType {
	case ActionBuy:
		dst = &BuyPayload{}
	case ActionSell:
		dst = &SellPayload{}
	case ActionPayRent:
		dst = &PayRentPayload{}
	case ActionVote:
		dst = &VotePayload{}
	case ActionCompleteService:
		dst = &CompleteServicePayload{}
	case ActionAccessEquity:
		dst = &AccessEquityPayload{}
	case ActionListProperty:
		dst = &ListPropertyPayload{}
	default:
		return nil, fmt.Errorf("unsupported action type %q", actionType)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
	}
	return dst, nil
}
