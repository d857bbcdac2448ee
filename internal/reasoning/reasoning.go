// Package reasoning is the optional narrative collaborator: after every
// committed tick it receives a brief of the month and returns structured
// commentary. Its output is advisory by contract; the simulation never
// reads it back.
package reasoning

import (
	"context"

	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/market"
)

// TickBrief is what the collaborator sees: the committed snapshot and the
// month's events, nothing mutable.
type TickBrief struct {
	NetworkID string           `json:"network_id"`
	Month     int              `json:"month"`
	Snapshot  *market.Snapshot `json:"snapshot"`
	Events    []protocol.Event `json:"events,omitempty"`
}

// Engine produces a narrative for one committed tick. Implementations must
// honor the context deadline; the caller imposes a hard timeout and drops
// late responses.
type Engine interface {
	Narrate(ctx context.Context, brief TickBrief) (protocol.NarrativeResponse, error)
}
