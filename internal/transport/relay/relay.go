// Package relay republishes committed events onto NATS, one subject per
// network and event type, for downstream services that want events without
// holding a websocket open.
package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"tessera.estate/internal/protocol"
)

// Relay implements network.EventSink over a NATS connection. Publishing is
// fire-and-forget; a broker outage never blocks or fails a tick.
type Relay struct {
	conn *nats.Conn
	log  *log.Logger
}

func Connect(url string, logger *log.Logger) (*Relay, error) {
	conn, err := nats.Connect(url,
		nats.Name("tessera-server"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Relay{conn: conn, log: logger}, nil
}

// Publish sends the event to tessera.events.<network>.<type>.
func (r *Relay) Publish(ev protocol.Event) {
	networkID, _ := ev["network"].(string)
	evType, _ := ev["type"].(string)
	if networkID == "" || evType == "" {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("tessera.events.%s.%s", networkID, evType)
	if err := r.conn.Publish(subject, payload); err != nil {
		r.log.Printf("relay publish %s: %v", subject, err)
	}
}

func (r *Relay) Close() {
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
	}
}
