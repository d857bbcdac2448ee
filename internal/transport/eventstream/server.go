package eventstream

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/multinet"
)

type Server struct {
	mgr *multinet.Manager
	hub *Hub
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(mgr *multinet.Manager, hub *Hub, logger *log.Logger) *Server {
	return &Server{
		mgr: mgr,
		hub: hub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub, networkID, ok := s.handshake(conn)
		if !ok {
			return
		}
		defer s.hub.Unsubscribe(sub)

		done := make(chan struct{})

		// Writer: coalesce whatever is queued into one batch per write.
		go func() {
			defer close(done)
			for item := range sub.ch {
				batch := []protocol.EventItem{item}
			drain:
				for len(batch) < 64 {
					select {
					case more, open := <-sub.ch:
						if !open {
							break drain
						}
						batch = append(batch, more)
					default:
						break drain
					}
				}
				msg := protocol.EventBatchMsg{
					Type:            protocol.TypeEventBatch,
					ProtocolVersion: protocol.Version,
					NetworkID:       networkID,
					Events:          batch,
					NextCursor:      batch[len(batch)-1].Cursor + 1,
				}
				if err := writeJSON(conn, msg); err != nil {
					return
				}
			}
		}()

		// Reader: only watches for close; the stream is one-way after
		// SUBSCRIBE.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.hub.Unsubscribe(sub)
		<-done
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*subscriber, string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		writeError(conn, protocol.ErrProtoBadRequest, "expected SUBSCRIBE")
		return nil, "", false
	}
	var req protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		writeError(conn, protocol.ErrProtoBadRequest, "malformed SUBSCRIBE")
		return nil, "", false
	}
	if req.ProtocolVersion != protocol.Version {
		writeError(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return nil, "", false
	}

	rt := s.mgr.Runtime(req.NetworkID)
	if rt == nil {
		writeError(conn, protocol.ErrNetworkNotFound, "unknown network "+req.NetworkID)
		return nil, "", false
	}
	networkID := rt.Session.ID()

	sub, backlog, next := s.hub.Subscribe(networkID, req.SinceCursor)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		NetworkID:       networkID,
		Month:           rt.Session.Month(),
		NextCursor:      next,
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.hub.Unsubscribe(sub)
		return nil, "", false
	}
	if len(backlog) > 0 {
		batch := protocol.EventBatchMsg{
			Type:            protocol.TypeEventBatch,
			ProtocolVersion: protocol.Version,
			NetworkID:       networkID,
			Events:          backlog,
			NextCursor:      backlog[len(backlog)-1].Cursor + 1,
		}
		if err := writeJSON(conn, batch); err != nil {
			s.hub.Unsubscribe(sub)
			return nil, "", false
		}
	}
	return sub, networkID, true
}

func writeError(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
