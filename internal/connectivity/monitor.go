// Package connectivity tracks whether the till can reach the order service.
//
// The Monitor holds a single online flag. It is driven either directly via
// Set (an operator toggle or an OS network notification) or by a Prober that
// periodically issues a HEAD request to the order service.
package connectivity

import (
	"log/slog"
	"sync"
)

// Listener is called after every online/offline transition.
type Listener func(online bool)

// Monitor holds the online flag and notifies listeners on transitions.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run on
// the goroutine that caused the transition, outside the lock.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]Listener
	nextID    int
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, listeners: make(map[int]Listener)}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state. Listeners run only when it changes.
// It reports whether a transition happened.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if l, ok := m.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	slog.Info("connectivity changed", "online", online)
	for _, l := range listeners {
		l(online)
	}
	return true
}

// OnChange registers l and returns a func that removes it.
// Listeners run in registration order.
func (m *Monitor) OnChange(l Listener) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}
