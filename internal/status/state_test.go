package status

import (
	"testing"

	"github.com/wagate-io/wagate/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("default", nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want disconnected", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Disconnected},
		{Connected, Reconnecting},
		{Connected, Disconnected},
		{Reconnecting, Connected},
		{Reconnecting, Connecting},
		{Reconnecting, Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("default", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connected},
		{Disconnected, Reconnecting},
		{Connecting, Reconnecting},
		{Connected, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("default", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (should not have changed)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine("default", b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindSessionState {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindSessionState)
	}
	if evt.Identity != "default" {
		t.Errorf("event identity = %q, want default", evt.Identity)
	}
	change, ok := evt.Payload.(bus.StatePayload)
	if !ok {
		t.Fatalf("payload type = %T, want bus.StatePayload", evt.Payload)
	}
	if change.From != "disconnected" || change.To != "connecting" {
		t.Errorf("change = %s -> %s, want disconnected -> connecting", change.From, change.To)
	}
}

func TestRejectedTransitionEmitsNoEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine("default", b)
	if err := m.Transition(Connected); err == nil {
		t.Fatal("Transition(disconnected -> connected) should fail")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event for rejected transition: %v", evt)
	default:
		// Expected.
	}
}

// TestLoginLifecycle walks the first-connect path:
// disconnected -> connecting -> connected.
func TestLoginLifecycle(t *testing.T) {
	m := NewMachine("default", nil)
	for _, s := range []State{Connecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want connected", m.Current())
	}
}

// TestDropRecoverCycle walks an unexpected disconnect and recovery:
// connected -> reconnecting -> connected.
func TestDropRecoverCycle(t *testing.T) {
	m := NewMachine("default", nil)
	walkTo(t, m, Connected)

	for _, s := range []State{Reconnecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want connected", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
