package mididarwin

import "sync"

// deliveryGate admits packet handlers running on CoreMIDI threads while open.
// close blocks until every admitted handler has left, after which enter fails
// until the gate is opened again.
type deliveryGate struct {
	mu     sync.RWMutex
	closed bool
}

// enter reports whether the caller may deliver. A true result must be paired with leave.
func (g *deliveryGate) enter() bool {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return false
	}
	return true
}

func (g *deliveryGate) leave() {
	g.mu.RUnlock()
}

func (g *deliveryGate) open() {
	g.mu.Lock()
	g.closed = false
	g.mu.Unlock()
}

func (g *deliveryGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
