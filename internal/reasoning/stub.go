package reasoning

import (
	"context"
	"fmt"

	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/market"
)

// Stub is the built-in narrator for deployments without an external
// reasoning service: a one-line summary derived from the snapshot, fully
// deterministic.
type Stub struct{}

func (Stub) Narrate(_ context.Context, brief TickBrief) (protocol.NarrativeResponse, error) {
	snap := brief.Snapshot
	if snap == nil {
		return protocol.NarrativeResponse{Summary: fmt.Sprintf("Month %d completed.", brief.Month)}, nil
	}
	resp := protocol.NarrativeResponse{
		Summary: fmt.Sprintf("Month %d: market %s, %d properties, %d exits queued, treasury %s.",
			brief.Month, snap.Condition, len(snap.Properties), len(snap.ExitQueue), snap.Treasury),
	}
	if snap.Condition == market.Bust || snap.Condition == market.Declining {
		resp.Alerts = append(resp.Alerts,
			fmt.Sprintf("market condition is %s; expect valuation pressure", snap.Condition))
	}
	for i := range snap.Properties {
		p := &snap.Properties[i]
		if p.Arrears > 0 {
			resp.Events = append(resp.Events, protocol.NarrativeEvent{
				Headline:   fmt.Sprintf("%s carries arrears of %s", p.ID, p.Arrears),
				PropertyID: p.ID,
				Severity:   "warning",
			})
		}
	}
	return resp, nil
}
