// Package multinet runs several networks in one process. Each network is
// fully isolated, with its own session, clock, seed and sinks; the
// manager only routes lookups and owns the clock goroutines.
package multinet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"tessera.estate/internal/sim/network"
)

// Runtime pairs one network's session with its clock.
type Runtime struct {
	Session *network.Session
	Clock   *network.Clock
}

type Manager struct {
	mu        sync.RWMutex
	runtimes  map[string]*Runtime
	defaultID string
}

func NewManager(runtimes map[string]*Runtime, defaultID string) (*Manager, error) {
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("no networks configured")
	}
	for id, rt := range runtimes {
		if rt == nil || rt.Session == nil || rt.Clock == nil {
			return nil, fmt.Errorf("network %s: incomplete runtime", id)
		}
	}
	if defaultID == "" {
		ids := make([]string, 0, len(runtimes))
		for id := range runtimes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		defaultID = ids[0]
	}
	if runtimes[defaultID] == nil {
		return nil, fmt.Errorf("default network %s not configured", defaultID)
	}
	return &Manager{runtimes: runtimes, defaultID: defaultID}, nil
}

// Runtime looks a network up by id; the empty id resolves to the default
// network. Nil means unknown.
func (m *Manager) Runtime(id string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == "" {
		id = m.defaultID
	}
	return m.runtimes[id]
}

func (m *Manager) DefaultID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultID
}

// IDs lists configured networks, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run drives every clock until ctx ends; the first clock error stops the
// group.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	m.mu.RLock()
	for _, rt := range m.runtimes {
		clock := rt.Clock
		g.Go(func() error {
			if err := clock.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}
	m.mu.RUnlock()
	return g.Wait()
}
