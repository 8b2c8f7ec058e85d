// Package connectivity tracks whether the device can reach the backend. The
// host platform pushes state changes; nothing here polls the network.
package connectivity

import (
	"sync"

	"github.com/farmlink/agrosync/internal/logging"
)

// Monitor holds the online flag and notifies subscribers when the device
// comes back online.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func()
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int]func()),
	}
}

// IsOnline returns the last reported state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a state report. Subscribers run once on each
// offline to online transition, never on repeated online reports. They run
// on the caller's goroutine after the lock is released.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	var fire []func()
	if online && !was {
		fire = make([]func(), 0, len(m.subs))
		for _, fn := range m.subs {
			fire = append(fire, fn)
		}
	}
	m.mu.Unlock()

	if was != online {
		logging.Info("Connectivity changed", map[string]interface{}{
			"was_online": was,
			"is_online":  online,
		})
	}
	for _, fn := range fire {
		fn()
	}
}

// OnReconnect registers fn for offline to online transitions. The returned
// function unsubscribes it; calling it more than once is harmless.
func (m *Monitor) OnReconnect(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}
