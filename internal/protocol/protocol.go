package protocol

import "encoding/json"

const Version = "1.0"

// Stream message types.
const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeWelcome    = "WELCOME"
	TypeEventBatch = "EVENT_BATCH"
	TypeError      = "ERROR"
)

// Clock modes on the wire.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
	ModePaused = "paused"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
