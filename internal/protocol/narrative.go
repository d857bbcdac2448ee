package protocol

import "encoding/json"

// NarrativeResponse is the structured reply of the reasoning collaborator.
// It is advisory by contract: nothing in it feeds back into ledger state.
type NarrativeResponse struct {
	Summary     string            `json:"summary"`
	Events      []NarrativeEvent  `json:"events,omitempty"`
	Alerts      []string          `json:"alerts,omitempty"`
	Suggestions []SuggestedAction `json:"suggestions,omitempty"`
}

type NarrativeEvent struct {
	Headline   string `json:"headline"`
	Body       string `json:"body,omitempty"`
	PropertyID string `json:"property_id,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

// SuggestedAction is a non-binding proposal for a future month. It is
// surfaced as an event only; it never enters the queue by itself.
type SuggestedAction struct {
	ActorID string          `json:"actor_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Note    string          `json:"note,omitempty"`
}
