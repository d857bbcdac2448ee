package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tessera.estate/internal/protocol"
)

// Clock modes.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
	ModePaused = "paused"
)

// warnSeconds before a scheduled tick, observers get a TICK_WARNING so
// clients can flush pending submissions.
const warnSeconds = 30

// Clock drives a session's ticks: a one-second countdown in auto mode, an
// optional cron schedule, or operator force-ticks in manual mode. Pausing
// freezes the countdown where it stands; resuming continues it.
type Clock struct {
	s *Session

	mu        sync.Mutex
	mode      string
	interval  int
	cutoff    int
	remaining int
	warned    bool
	cron      *cron.Cron
}

func NewClock(s *Session) *Clock {
	return &Clock{
		s:         s,
		mode:      ModeAuto,
		interval:  s.cfg.IntervalSeconds,
		cutoff:    s.cfg.CutoffSeconds,
		remaining: s.cfg.IntervalSeconds,
	}
}

// Run owns the countdown until ctx ends. With a cron schedule configured
// the countdown is replaced by the schedule; manual and paused modes stop
// the clock without stopping Run.
func (c *Clock) Run(ctx context.Context) error {
	if sched := c.s.cfg.Schedule; sched != "" {
		cr := cron.New()
		if _, err := cr.AddFunc(sched, func() { c.fire() }); err != nil {
			return fmt.Errorf("clock schedule %q: %w", sched, err)
		}
		c.mu.Lock()
		c.cron = cr
		c.remaining = -1
		c.mu.Unlock()
		cr.Start()
		<-ctx.Done()
		<-cr.Stop().Done()
		return ctx.Err()
	}

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.step()
		}
	}
}

func (c *Clock) step() {
	c.mu.Lock()
	if c.mode != ModeAuto {
		c.mu.Unlock()
		return
	}
	c.remaining--
	rem := c.remaining
	warn := rem == warnSeconds && c.interval > warnSeconds && !c.warned
	if warn {
		c.warned = true
	}
	cutoff := c.cutoff
	c.mu.Unlock()

	if warn {
		c.s.events.Publish(protocol.Event{
			"type":              protocol.EventTickWarning,
			"network":           c.s.cfg.NetworkID,
			"month":             c.s.Month() + 1,
			"seconds_remaining": warnSeconds,
		})
	}
	if rem <= cutoff && rem > 0 {
		c.s.inCutoff.Store(true)
	}
	if rem <= 0 {
		c.fire()
	}
}

func (c *Clock) fire() {
	c.s.inCutoff.Store(false)
	if _, err := c.s.RunTick(); err != nil && err != ErrClockBusy {
		c.s.log.Printf("scheduled tick: %v", err)
	}
	c.mu.Lock()
	c.remaining = c.interval
	c.warned = false
	c.mu.Unlock()
}

// ForceTick runs a tick immediately, whatever the mode, and resets the
// countdown. A tick already in flight surfaces as ErrClockBusy.
func (c *Clock) ForceTick() (*TickRecord, error) {
	rec, err := c.s.RunTick()
	if err != nil {
		return nil, err
	}
	c.s.inCutoff.Store(false)
	c.mu.Lock()
	c.remaining = c.interval
	c.warned = false
	c.mu.Unlock()
	return rec, nil
}

func (c *Clock) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches between auto, manual and paused. Pausing keeps the
// remaining countdown; switching back to auto resumes from it.
func (c *Clock) SetMode(mode string) error {
	switch mode {
	case ModeAuto, ModeManual, ModePaused:
	default:
		return fmt.Errorf("unknown clock mode %q", mode)
	}
	c.mu.Lock()
	prev := c.mode
	c.mode = mode
	if prev != ModeAuto && mode == ModeAuto && c.remaining <= 0 {
		c.remaining = c.interval
	}
	c.mu.Unlock()
	if prev != mode {
		c.s.events.Publish(protocol.Event{
			"type":    protocol.EventModeChanged,
			"network": c.s.cfg.NetworkID,
			"mode":    mode,
			"from":    prev,
		})
	}
	return nil
}

// SetInterval retunes the countdown length for subsequent ticks.
func (c *Clock) SetInterval(seconds int) error {
	return c.setInterval(seconds, "")
}

// SetPreset retunes the countdown to a named entry of the network's
// interval preset table.
func (c *Clock) SetPreset(name string) error {
	seconds, ok := c.s.cfg.IntervalPresets[name]
	if !ok {
		return fmt.Errorf("unknown interval preset %q", name)
	}
	return c.setInterval(seconds, name)
}

// Presets exposes the named interval table. Read-only after start.
func (c *Clock) Presets() map[string]int { return c.s.cfg.IntervalPresets }

func (c *Clock) setInterval(seconds int, preset string) error {
	if seconds < 1 {
		return fmt.Errorf("interval must be at least one second")
	}
	c.mu.Lock()
	c.interval = seconds
	if c.remaining > seconds {
		c.remaining = seconds
	}
	c.mu.Unlock()
	ev := protocol.Event{
		"type":             protocol.EventConfigChanged,
		"network":          c.s.cfg.NetworkID,
		"interval_seconds": seconds,
	}
	if preset != "" {
		ev["preset"] = preset
	}
	c.s.events.Publish(ev)
	return nil
}

// Interval reports the configured countdown length in seconds.
func (c *Clock) Interval() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Schedule reports the cron expression, empty when the countdown drives
// the clock.
func (c *Clock) Schedule() string { return c.s.cfg.Schedule }

// Remaining reports seconds to the next auto tick; -1 under a cron
// schedule.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Status is the operator view of the clock.
type Status struct {
	Mode             string `json:"mode"`
	Month            int    `json:"month"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Processing       bool   `json:"processing"`
	PendingActions   int    `json:"pending_actions"`
}

func (c *Clock) Status() Status {
	return Status{
		Mode:             c.Mode(),
		Month:            c.s.Month(),
		RemainingSeconds: c.Remaining(),
		Processing:       c.s.processing.Load(),
		PendingActions:   c.s.PendingCount(),
	}
}
