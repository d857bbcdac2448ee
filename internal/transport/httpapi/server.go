// Package httpapi is the REST surface: submissions, market reads, ledger
// queries and clock control, all keyed by network id. Handlers never touch
// simulation internals directly; everything goes through session and clock
// methods, so a request can never observe a half-applied tick.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/multinet"
	"tessera.estate/internal/sim/network"
)

type Server struct {
	mgr *multinet.Manager
	log *log.Logger

	// ws handles GET /v1/networks/{networkID}/events/ws; nil disables
	// the stream.
	ws http.HandlerFunc
	// metrics serves the Prometheus text exposition.
	metrics http.HandlerFunc
}

func NewServer(mgr *multinet.Manager, logger *log.Logger) *Server {
	return &Server{mgr: mgr, log: logger}
}

func (s *Server) SetEventStream(h http.HandlerFunc) { s.ws = h }
func (s *Server) SetMetrics(h http.HandlerFunc)     { s.metrics = h }

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics)
	}

	r.Route("/v1/networks", func(r chi.Router) {
		r.Get("/", s.handleListNetworks)
		r.Route("/{networkID}", func(r chi.Router) {
			r.Use(s.withRuntime)
			r.Get("/clock", s.handleClockStatus)
			r.Post("/clock/interval", s.handleClockInterval)
			r.Post("/clock/mode", s.handleClockMode)
			r.Post("/clock/force-tick", s.handleForceTick)
			r.Post("/clock/pause", s.handleClockPause)
			r.Post("/clock/resume", s.handleClockResume)
			r.Post("/actions", s.handleSubmit)
			r.Get("/market", s.handleMarket)
			r.Get("/properties", s.handleProperties)
			r.Get("/participants", s.handleParticipants)
			r.Get("/ledger", s.handleLedger)
			r.Get("/healing", s.handleHealing)
			if s.ws != nil {
				r.Get("/events/ws", s.ws)
			}
		})
	})
	return r
}

type ctxKey int

const runtimeKey ctxKey = 0

func withRT(ctx context.Context, rt *multinet.Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey, rt)
}

func rtFrom(r *http.Request) *multinet.Runtime {
	return r.Context().Value(runtimeKey).(*multinet.Runtime)
}

// withRuntime resolves {networkID} once; unknown networks 404 before any
// handler runs.
func (s *Server) withRuntime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "networkID")
		rt := s.mgr.Runtime(id)
		if rt == nil {
			writeErr(w, http.StatusNotFound, protocol.ErrNetworkNotFound, "unknown network "+id)
			return
		}
		next.ServeHTTP(w, r.WithContext(withRT(r.Context(), rt)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "networks": s.mgr.IDs()})
}

type networkRef struct {
	ID        string `json:"id"`
	Month     int    `json:"month"`
	Condition string `json:"condition"`
	Mode      string `json:"mode"`
	Default   bool   `json:"default,omitempty"`
}

func (s *Server) handleListNetworks(w http.ResponseWriter, _ *http.Request) {
	out := []networkRef{}
	for _, id := range s.mgr.IDs() {
		rt := s.mgr.Runtime(id)
		out = append(out, networkRef{
			ID:        id,
			Month:     rt.Session.Month(),
			Condition: string(rt.Session.Condition()),
			Mode:      rt.Clock.Mode(),
			Default:   id == s.mgr.DefaultID(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": out})
}

func (s *Server) handleClockStatus(w http.ResponseWriter, r *http.Request) {
	rt := rtFrom(r)
	st := rt.Clock.Status()
	writeJSON(w, http.StatusOK, protocol.ClockStatus{
		NetworkID:        rt.Session.ID(),
		Month:            st.Month,
		Mode:             st.Mode,
		Processing:       st.Processing,
		IntervalSeconds:  rt.Clock.Interval(),
		RemainingSeconds: st.RemainingSeconds,
		PendingActions:   st.PendingActions,
		Condition:        string(rt.Session.Condition()),
		Schedule:         rt.Clock.Schedule(),
		IntervalPresets:  rt.Clock.Presets(),
	})
}

// handleClockInterval accepts either an explicit seconds value or the
// name of a configured preset.
func (s *Server) handleClockInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int    `json:"seconds"`
		Preset  string `json:"preset"`
	}
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.Preset != "" {
		err = rtFrom(r).Clock.SetPreset(req.Preset)
	} else {
		err = rtFrom(r).Clock.SetInterval(req.Seconds)
	}
	if err != nil {
		writeErr(w, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	s.handleClockStatus(w, r)
}

func (s *Server) handleClockMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := rtFrom(r).Clock.SetMode(req.Mode); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	s.handleClockStatus(w, r)
}

func (s *Server) handleClockPause(w http.ResponseWriter, r *http.Request) {
	_ = rtFrom(r).Clock.SetMode(network.ModePaused)
	s.handleClockStatus(w, r)
}

func (s *Server) handleClockResume(w http.ResponseWriter, r *http.Request) {
	_ = rtFrom(r).Clock.SetMode(network.ModeAuto)
	s.handleClockStatus(w, r)
}

func (s *Server) handleForceTick(w http.ResponseWriter, r *http.Request) {
	rec, err := rtFrom(r).Clock.ForceTick()
	if err != nil {
		if errors.Is(err, network.ErrClockBusy) {
			writeErr(w, http.StatusConflict, protocol.ErrClockBusy, "tick already in progress")
			return
		}
		writeErr(w, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":   rec.Month,
		"digest":  rec.Digest,
		"entries": len(rec.Entries),
		"events":  len(rec.Events),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req protocol.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	receipt := rtFrom(r).Session.Submit(req)
	status := http.StatusOK
	if !receipt.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, receipt)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rtFrom(r).Session.Snapshot())
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	snap := rtFrom(r).Session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"month":      snap.Month,
		"properties": snap.Properties,
	})
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	snap := rtFrom(r).Session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"month":        snap.Month,
		"participants": snap.Participants,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries := rtFrom(r).Session.Entries(q.Get("participant"), q.Get("property"))
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHealing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rtFrom(r).Session.Healing())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.ErrProtoBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
