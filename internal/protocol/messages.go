package protocol

// SubmitRequest (client -> server): one action for the queue.
type SubmitRequest struct {
	ActorID string    `json:"actor_id"`
	Action  ActionMsg `json:"action"`
}

// SubmitReceipt (server -> client). A duplicate submission returns the
// receipt of the original, flagged, not an error.
type SubmitReceipt struct {
	ActionID       string `json:"action_id"`
	Accepted       bool   `json:"accepted"`
	QueuedForMonth int    `json:"queued_for_month,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ClockStatus (server -> client): the clock-control read surface.
type ClockStatus struct {
	NetworkID        string `json:"network_id"`
	Month            int    `json:"month"`
	Mode             string `json:"mode"`
	Processing       bool   `json:"processing"`
	IntervalSeconds  int    `json:"interval_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
	PendingActions   int    `json:"pending_actions"`
	Condition        string `json:"condition"`
	Schedule         string `json:"schedule,omitempty"`

	// IntervalPresets are the named speeds accepted by the interval
	// endpoint.
	IntervalPresets map[string]int `json:"interval_presets,omitempty"`
}

// Lifecycle event types carried on the observer stream.
const (
	EventTickWarning        = "TICK_WARNING"
	EventProcessingStarted  = "PROCESSING_STARTED"
	EventMonthCompleted     = "MONTH_COMPLETED"
	EventTickFailed         = "TICK_FAILED"
	EventConfigChanged      = "CONFIG_CHANGED"
	EventModeChanged        = "MODE_CHANGED"
	EventActionResolved     = "ACTION_RESOLVED"
	EventActionRejected     = "ACTION_REJECTED"
	EventHealthAlert        = "HEALTH_ALERT"
	EventStrategyUpdate     = "STRATEGY_UPDATE"
	EventNarrative          = "NARRATIVE"
	EventAdvisory           = "ADVISORY"
	EventPropertyReclassify = "PROPERTY_RECLASSIFIED"
)

// Event is a loose key/value payload; "type" and "month" are always set.
type Event map[string]interface{}

// EventItem frames one event with its replay cursor.
type EventItem struct {
	Cursor uint64 `json:"cursor"`
	Event  Event  `json:"event"`
}

// SUBSCRIBE (client -> server): attach to a network's event stream,
// optionally resuming from a cursor for at-least-once delivery.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	NetworkID       string `json:"network_id"`
	SinceCursor     uint64 `json:"since_cursor,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	NetworkID       string `json:"network_id"`
	Month           int    `json:"month"`
	NextCursor      uint64 `json:"next_cursor"`
}

// EVENT_BATCH (server -> client)
type EventBatchMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	NetworkID       string      `json:"network_id"`
	Events          []EventItem `json:"events"`
	NextCursor      uint64      `json:"next_cursor"`
}

// ERROR (server -> client) for stream-level failures.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
