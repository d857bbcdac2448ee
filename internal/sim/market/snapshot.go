package market

import "tessera.estate/internal/money"

// Property statuses.
const (
	StatusDraft         = "draft"
	StatusAvailable     = "available"
	StatusTenanted      = "tenanted"
	StatusOwnerOccupied = "owner_occupied"
	StatusTenantBuyback = "tenant_buyback"
	StatusArchived      = "archived"
)

// Participant roles.
const (
	RoleInvestor        = "investor"
	RoleRenter          = "renter"
	RoleTenant          = "tenant"
	RoleHomeowner       = "homeowner"
	RoleServiceProvider = "service_provider"
	RoleFoundation      = "foundation"
)

// Snapshot is the immutable per-tick view of the network. A new one is
// published at every commit; observers share it without locking.
type Snapshot struct {
	NetworkID  string      `json:"network_id"`
	Month      int         `json:"month"`
	Condition  Condition   `json:"condition"`
	Indicators Indicators  `json:"indicators"`
	Health     Health      `json:"health"`
	Treasury   money.Cents `json:"treasury_cents"`

	Properties   []PropertyView    `json:"properties"`
	Participants []ParticipantView `json:"participants"`
	ExitQueue    []ExitEntryView   `json:"exit_queue"`

	Digest string `json:"digest"`
}

type PropertyView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Status      string      `json:"status"`
	TotalTokens int64       `json:"total_tokens"`
	Valuation   money.Cents `json:"valuation_cents"`
	TokenPrice  money.Cents `json:"token_price_cents"`
	RentYield   int64       `json:"rent_yield_bps"`
	TenantID    string      `json:"tenant_id,omitempty"`
	OwnerID     string      `json:"owner_id,omitempty"`
	Arrears     money.Cents `json:"arrears_cents,omitempty"`
	FloatTokens int64       `json:"float_tokens"`
	LastDrift   int64       `json:"last_drift_bps"`
	Discounted  bool        `json:"discounted,omitempty"`
}

type HoldingView struct {
	PropertyID string `json:"property_id"`
	Tokens     int64  `json:"tokens"`
	ShareBps   int64  `json:"share_bps"`
}

type ParticipantView struct {
	ID       string        `json:"id"`
	Role     string        `json:"role"`
	Balance  money.Cents   `json:"balance_cents"`
	Holdings []HoldingView `json:"holdings,omitempty"`
	NPC      bool          `json:"npc,omitempty"`
}

// ExitEntryView is one unmatched sell waiting in the exit queue.
type ExitEntryView struct {
	Seller     string      `json:"seller"`
	PropertyID string      `json:"property_id"`
	Tokens     int64       `json:"tokens"`
	SinceMonth int         `json:"since_month"`
	AskPrice   money.Cents `json:"ask_price_cents"`
}

// Property returns the view for id, or nil.
func (s *Snapshot) Property(id string) *PropertyView {
	for i := range s.Properties {
		if s.Properties[i].ID == id {
			return &s.Properties[i]
		}
	}
	return nil
}

// Participant returns the view for id, or nil.
func (s *Snapshot) Participant(id string) *ParticipantView {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}
