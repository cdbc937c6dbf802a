package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/wagate-io/wagate/internal/bus"
)

// State represents the connection state of a single session identity.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
)

// validTransitions defines allowed state transitions. The only legal
// mutation path for a session's state is Machine.Transition; anything the
// engine signals outside this table is rejected and the caller decides
// whether that rejection is noise or a bug.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions for one identity.
type Machine struct {
	mu       sync.RWMutex
	identity string
	current  State
	bus      *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(identity string, b *bus.Bus) *Machine {
	return &Machine{
		identity: identity,
		current:  Disconnected,
		bus:      b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSessionState,
			Identity:  m.identity,
			Timestamp: time.Now(),
			Payload: bus.StatePayload{
				From: string(from),
				To:   string(to),
			},
		})
	}
	return nil
}
